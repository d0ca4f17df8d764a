package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"CrisisDesk/internal/crisis"
	"CrisisDesk/internal/model"
	"CrisisDesk/pkg/breaker"
	"CrisisDesk/storage/mq"
)

// Publisher 发布 JSON 消息，由 storage/mq.Broker 实现
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

const (
	breakerMaxFailures  = 5
	breakerResetTimeout = 30 * time.Second
)

// CrisisTeamBroadcaster 把危机事件发到 crisis.alerts 交换机
type CrisisTeamBroadcaster struct {
	pub     Publisher
	breaker *breaker.CircuitBreaker
	logger  *zap.Logger
}

var _ crisis.NotificationChannel = (*CrisisTeamBroadcaster)(nil)

func NewCrisisTeamBroadcaster(pub Publisher, logger *zap.Logger) *CrisisTeamBroadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CrisisTeamBroadcaster{
		pub:     pub,
		breaker: breaker.New("crisis_team_broadcast", breakerMaxFailures, breakerResetTimeout),
		logger:  logger,
	}
}

func (b *CrisisTeamBroadcaster) BroadcastToCrisisTeam(ctx context.Context, event crisis.CrisisEvent) error {
	msg := model.CrisisAlertMessage{
		MessageID:        event.EventID,
		Kind:             model.AlertKindCrisis,
		InterventionID:   event.InterventionID,
		UserID:           event.UserID,
		Severity:         event.Severity.String(),
		InterventionType: string(event.InterventionType),
		Urgent:           event.Urgent,
		HasSupport:       event.HasSupport,
		OccurredAt:       event.OccurredAt,
	}
	if event.Location != nil {
		lat, lng := event.Location.Latitude, event.Location.Longitude
		msg.Latitude, msg.Longitude, msg.Address = &lat, &lng, event.Location.Address
	}

	return b.publish(ctx, msg)
}

// BroadcastFollowUpReminder 随访到期时提醒危机团队联系用户
func (b *CrisisTeamBroadcaster) BroadcastFollowUpReminder(ctx context.Context, msg model.CrisisAlertMessage) error {
	msg.Kind = model.AlertKindFollowUpReminder
	return b.publish(ctx, msg)
}

func (b *CrisisTeamBroadcaster) publish(ctx context.Context, msg model.CrisisAlertMessage) error {
	err := b.breaker.Call(ctx, func(ctx context.Context) error {
		return b.pub.Publish(ctx, mq.ExchangeCrisisAlerts, mq.AlertRoutingKey(msg.Severity), msg)
	})
	if err != nil {
		return err
	}

	b.logger.Info("Crisis team notified",
		zap.String("message_id", msg.MessageID),
		zap.String("kind", msg.Kind),
		zap.Int64("intervention_id", msg.InterventionID),
		zap.String("severity", msg.Severity),
	)
	return nil
}

// EmergencyDispatcher 将调度请求投递到 crisis.dispatch，由调度中心对接服务消费
type EmergencyDispatcher struct {
	pub     Publisher
	breaker *breaker.CircuitBreaker
	logger  *zap.Logger
	ids     func() string
	now     func() time.Time
}

var _ crisis.EmergencyDispatcher = (*EmergencyDispatcher)(nil)

func NewEmergencyDispatcher(pub Publisher, ids func() string, logger *zap.Logger) *EmergencyDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmergencyDispatcher{
		pub:     pub,
		breaker: breaker.New("emergency_dispatch", breakerMaxFailures, breakerResetTimeout),
		logger:  logger,
		ids:     ids,
		now:     time.Now,
	}
}

func (d *EmergencyDispatcher) Trigger(ctx context.Context, userID string, severity crisis.Severity, location *crisis.Location) error {
	msg := model.EmergencyDispatchMessage{
		MessageID:   d.ids(),
		UserID:      userID,
		Severity:    severity.String(),
		RequestedAt: d.now(),
	}
	if location != nil {
		lat, lng := location.Latitude, location.Longitude
		msg.Latitude, msg.Longitude, msg.Address = &lat, &lng, location.Address
	}

	err := d.breaker.Call(ctx, func(ctx context.Context) error {
		return d.pub.Publish(ctx, mq.ExchangeCrisisDispatch, mq.RoutingKeyEmergencyDispatch, msg)
	})
	if err != nil {
		return err
	}

	d.logger.Warn("Emergency dispatch requested",
		zap.String("message_id", msg.MessageID),
		zap.String("user_id", userID),
		zap.String("severity", msg.Severity),
		zap.Bool("has_location", location != nil),
	)
	return nil
}
