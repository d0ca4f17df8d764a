package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CrisisDesk/internal/crisis"
	"CrisisDesk/internal/model"
	"CrisisDesk/pkg/breaker"
	pkgerrors "CrisisDesk/pkg/errors"
	"CrisisDesk/pkg/sms"
	"CrisisDesk/storage/mq"
)

type published struct {
	exchange   string
	routingKey string
	body       interface{}
}

type fakePublisher struct {
	mu    sync.Mutex
	err   error
	calls []published
}

func (f *fakePublisher) Publish(_ context.Context, exchange, routingKey string, body interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, published{exchange: exchange, routingKey: routingKey, body: body})
	return f.err
}

func TestBroadcastToCrisisTeam(t *testing.T) {
	pub := &fakePublisher{}
	b := NewCrisisTeamBroadcaster(pub, nil)

	err := b.BroadcastToCrisisTeam(context.Background(), crisis.CrisisEvent{
		EventID:          "evt-1",
		InterventionID:   99,
		UserID:           "user-1",
		Severity:         crisis.SeverityCritical,
		InterventionType: crisis.InterventionCall,
		Urgent:           true,
		Location:         &crisis.Location{Latitude: 40.7, Longitude: -74.0, Address: "NYC"},
		OccurredAt:       time.Now(),
	})
	require.NoError(t, err)

	require.Len(t, pub.calls, 1)
	assert.Equal(t, mq.ExchangeCrisisAlerts, pub.calls[0].exchange)
	assert.Equal(t, "crisis.alert.critical", pub.calls[0].routingKey)

	msg := pub.calls[0].body.(model.CrisisAlertMessage)
	assert.Equal(t, model.AlertKindCrisis, msg.Kind)
	assert.Equal(t, int64(99), msg.InterventionID)
	require.NotNil(t, msg.Latitude)
	assert.InDelta(t, 40.7, *msg.Latitude, 1e-9)
}

func TestBroadcast_BreakerOpensAfterFailures(t *testing.T) {
	pub := &fakePublisher{err: assert.AnError}
	b := NewCrisisTeamBroadcaster(pub, nil)
	event := crisis.CrisisEvent{Severity: crisis.SeverityEmergency}

	for i := 0; i < breakerMaxFailures; i++ {
		assert.ErrorIs(t, b.BroadcastToCrisisTeam(context.Background(), event), assert.AnError)
	}

	err := b.BroadcastToCrisisTeam(context.Background(), event)
	assert.ErrorIs(t, err, breaker.ErrOpen)
	assert.Len(t, pub.calls, breakerMaxFailures)
}

func TestBroadcastFollowUpReminder(t *testing.T) {
	pub := &fakePublisher{}
	b := NewCrisisTeamBroadcaster(pub, nil)

	require.NoError(t, b.BroadcastFollowUpReminder(context.Background(), model.CrisisAlertMessage{
		MessageID: "m1",
		Severity:  "MODERATE",
	}))
	msg := pub.calls[0].body.(model.CrisisAlertMessage)
	assert.Equal(t, model.AlertKindFollowUpReminder, msg.Kind)
	assert.Equal(t, "crisis.alert.moderate", pub.calls[0].routingKey)
}

func TestEmergencyDispatcher_Trigger(t *testing.T) {
	pub := &fakePublisher{}
	d := NewEmergencyDispatcher(pub, func() string { return "dispatch-1" }, nil)

	require.NoError(t, d.Trigger(context.Background(), "user-1", crisis.SeverityEmergency, nil))
	require.Len(t, pub.calls, 1)
	assert.Equal(t, mq.ExchangeCrisisDispatch, pub.calls[0].exchange)
	assert.Equal(t, mq.RoutingKeyEmergencyDispatch, pub.calls[0].routingKey)

	msg := pub.calls[0].body.(model.EmergencyDispatchMessage)
	assert.Equal(t, "dispatch-1", msg.MessageID)
	assert.Equal(t, "EMERGENCY", msg.Severity)
	assert.Nil(t, msg.Latitude)

	pub.err = assert.AnError
	assert.ErrorIs(t, d.Trigger(context.Background(), "user-1", crisis.SeverityEmergency, nil), assert.AnError)
}

func smsConfig() SMSConfig {
	return SMSConfig{SignName: "CrisisDesk", TemplateCode: "SMS_1", PhoneHashSalt: "salt"}
}

func TestNotifyContacts(t *testing.T) {
	client := sms.NewMockClient()
	n := NewSMSContactNotifier(client, smsConfig(), nil)

	err := n.NotifyContacts(context.Background(), "user-1", crisis.SeverityEmergency, []crisis.EmergencyContact{
		{Name: "Mom", Phone: "+15551234567"},
		{Name: "Bad", Phone: "abc"},
		{Name: "Friend", Phone: "+15557654321"},
	})
	require.NoError(t, err)

	calls := client.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "+15551234567", calls[0].Phone)
	assert.JSONEq(t, `{"name":"Mom"}`, calls[0].TemplateParam)
	assert.Equal(t, "SMS_1", calls[1].TemplateCode)
}

func TestNotifyContacts_Errors(t *testing.T) {
	client := sms.NewMockClient()

	n := NewSMSContactNotifier(client, SMSConfig{TemplateCode: "SMS_1"}, nil)
	assert.ErrorIs(t, n.NotifyContacts(context.Background(), "u", crisis.SeverityEmergency, nil), pkgerrors.ErrSignNameRequired)

	n = NewSMSContactNotifier(client, smsConfig(), nil)
	err := n.NotifyContacts(context.Background(), "u", crisis.SeverityEmergency, []crisis.EmergencyContact{{Name: "x", Phone: "12"}})
	assert.ErrorIs(t, err, errNoValidContacts)

	client.FailNext = true
	err = n.NotifyContacts(context.Background(), "u", crisis.SeverityEmergency, []crisis.EmergencyContact{{Name: "Mom", Phone: "+15551234567"}})
	assert.Error(t, err)
	assert.Len(t, client.Calls(), 1)
}
