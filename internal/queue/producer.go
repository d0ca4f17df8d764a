package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"CrisisDesk/internal/crisis"
	"CrisisDesk/internal/model"
	"CrisisDesk/pkg/metrics"
	"CrisisDesk/storage/mq"
)

// DelayedPublisher 由 storage/mq.Broker 实现
type DelayedPublisher interface {
	PublishDelayed(ctx context.Context, exchange, routingKey string, delay time.Duration, body interface{}) error
}

// QueuedMarker 入队成功后标记，scheduler 不再重复扫描
type QueuedMarker interface {
	MarkFollowUpQueued(ctx context.Context, id int64, at time.Time) error
}

const (
	RouteMQ        = "mq"
	RouteScheduler = "scheduler"
)

// FollowUpProducer 24 小时内的随访直接发延迟消息，更远的交给 scheduler 扫描
type FollowUpProducer struct {
	pub    DelayedPublisher
	marker QueuedMarker
	logger *zap.Logger
	now    func() time.Time
}

var _ crisis.FollowUpScheduler = (*FollowUpProducer)(nil)

func NewFollowUpProducer(pub DelayedPublisher, marker QueuedMarker, logger *zap.Logger) *FollowUpProducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FollowUpProducer{pub: pub, marker: marker, logger: logger, now: time.Now}
}

// FollowUpMessageID 同一条记录的消息 ID 固定，重复投递由消费者去重
func FollowUpMessageID(recordID int64) string {
	return fmt.Sprintf("follow_up_%d", recordID)
}

// ScheduleFollowUp 实现 crisis.FollowUpScheduler
func (p *FollowUpProducer) ScheduleFollowUp(ctx context.Context, recordID int64, userID string, at time.Time) error {
	_, err := p.ScheduleIfNeeded(ctx, recordID, userID, at)
	return err
}

// ScheduleIfNeeded 返回是否已发送延迟消息
func (p *FollowUpProducer) ScheduleIfNeeded(ctx context.Context, recordID int64, userID string, at time.Time) (bool, error) {
	now := p.now()
	delay := at.Sub(now)
	if delay < 0 {
		delay = 0
	}

	if delay > mq.MaxDelay {
		p.logger.Info("Follow-up delay exceeds 24 hours, will be handled by scheduled task",
			zap.Int64("intervention_id", recordID),
			zap.String("user_id", userID),
			zap.Duration("delay", delay),
		)
		metrics.GetMetrics().RecordFollowUpScheduled(ctx, RouteScheduler)
		return false, nil
	}

	msg := model.FollowUpMessage{
		MessageID:      FollowUpMessageID(recordID),
		InterventionID: recordID,
		UserID:         userID,
		FollowUpAt:     at,
		DelaySeconds:   int(delay.Seconds()),
	}

	if err := p.pub.PublishDelayed(ctx, mq.ExchangeDelayed, mq.RoutingKeyFollowUpDue, delay, msg); err != nil {
		p.logger.Error("Failed to publish follow-up message",
			zap.Int64("intervention_id", recordID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return false, fmt.Errorf("failed to publish follow-up message: %w", err)
	}

	if p.marker != nil {
		if err := p.marker.MarkFollowUpQueued(ctx, recordID, now); err != nil {
			// 标记失败只会导致 scheduler 重复入队，消费者会去重
			p.logger.Warn("Failed to mark follow-up queued",
				zap.Int64("intervention_id", recordID),
				zap.Error(err),
			)
		}
	}

	metrics.GetMetrics().RecordFollowUpScheduled(ctx, RouteMQ)
	p.logger.Info("Published follow-up message",
		zap.String("message_id", msg.MessageID),
		zap.Int64("intervention_id", recordID),
		zap.Duration("delay", delay),
	)
	return true, nil
}
