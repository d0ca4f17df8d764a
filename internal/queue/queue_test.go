package queue

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CrisisDesk/internal/model"
	pkgerrors "CrisisDesk/pkg/errors"
	"CrisisDesk/storage/mq"
)

type delayedCall struct {
	exchange   string
	routingKey string
	delay      time.Duration
	body       interface{}
}

type fakeDelayedPublisher struct {
	err   error
	calls []delayedCall
}

func (f *fakeDelayedPublisher) PublishDelayed(_ context.Context, exchange, routingKey string, delay time.Duration, body interface{}) error {
	f.calls = append(f.calls, delayedCall{exchange: exchange, routingKey: routingKey, delay: delay, body: body})
	return f.err
}

type fakeQueuedMarker struct {
	ids []int64
}

func (f *fakeQueuedMarker) MarkFollowUpQueued(_ context.Context, id int64, _ time.Time) error {
	f.ids = append(f.ids, id)
	return nil
}

func newProducer(pub DelayedPublisher, marker QueuedMarker, now time.Time) *FollowUpProducer {
	p := NewFollowUpProducer(pub, marker, nil)
	p.now = func() time.Time { return now }
	return p
}

func TestScheduleIfNeeded_WithinDelayCeiling(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pub := &fakeDelayedPublisher{}
	marker := &fakeQueuedMarker{}
	p := newProducer(pub, marker, now)

	queued, err := p.ScheduleIfNeeded(context.Background(), 7, "user-1", now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, queued)

	require.Len(t, pub.calls, 1)
	assert.Equal(t, mq.ExchangeDelayed, pub.calls[0].exchange)
	assert.Equal(t, mq.RoutingKeyFollowUpDue, pub.calls[0].routingKey)
	assert.Equal(t, 24*time.Hour, pub.calls[0].delay)

	msg := pub.calls[0].body.(model.FollowUpMessage)
	assert.Equal(t, "follow_up_7", msg.MessageID)
	assert.Equal(t, []int64{7}, marker.ids)
}

func TestScheduleIfNeeded_BeyondCeilingDeferred(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pub := &fakeDelayedPublisher{}
	marker := &fakeQueuedMarker{}
	p := newProducer(pub, marker, now)

	queued, err := p.ScheduleIfNeeded(context.Background(), 8, "user-1", now.Add(72*time.Hour))
	require.NoError(t, err)
	assert.False(t, queued)
	assert.Empty(t, pub.calls)
	assert.Empty(t, marker.ids)
}

func TestScheduleFollowUp_PastDueAndFailure(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pub := &fakeDelayedPublisher{}
	p := newProducer(pub, nil, now)

	require.NoError(t, p.ScheduleFollowUp(context.Background(), 9, "user-1", now.Add(-time.Hour)))
	assert.Equal(t, time.Duration(0), pub.calls[0].delay)

	pub.err = assert.AnError
	assert.ErrorIs(t, p.ScheduleFollowUp(context.Background(), 9, "user-1", now.Add(time.Hour)), assert.AnError)
}

type fakeFollowUpStore struct {
	mu      sync.Mutex
	records map[int64]*model.InterventionRecord
	getErr  error
	sent    []int64
}

func (f *fakeFollowUpStore) GetForFollowUp(_ context.Context, id int64) (*model.InterventionRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	r, ok := f.records[id]
	if !ok {
		return nil, pkgerrors.InterventionNotFound
	}
	return r, nil
}

func (f *fakeFollowUpStore) MarkFollowUpSent(_ context.Context, id int64, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, id)
	return true, nil
}

type fakeReminder struct {
	err  error
	msgs []model.CrisisAlertMessage
}

func (f *fakeReminder) BroadcastFollowUpReminder(_ context.Context, msg model.CrisisAlertMessage) error {
	f.msgs = append(f.msgs, msg)
	return f.err
}

type consumerFixture struct {
	store    *fakeFollowUpStore
	reminder *fakeReminder
	mr       *miniredis.Miniredis
	consumer *FollowUpConsumer
}

func newConsumerFixture(t *testing.T) *consumerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redislib.NewClient(&redislib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	due := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	f := &consumerFixture{
		store: &fakeFollowUpStore{records: map[int64]*model.InterventionRecord{
			1: {BaseModel: model.BaseModel{ID: 1}, UserID: "user-1", Severity: "HIGH", Status: model.InterventionStatusActive, FollowUpDate: &due},
			2: {BaseModel: model.BaseModel{ID: 2}, UserID: "user-2", Severity: "MODERATE", Status: model.InterventionStatusCompleted},
		}},
		reminder: &fakeReminder{},
		mr:       mr,
	}
	f.consumer = NewFollowUpConsumer(f.store, f.reminder, NewMessageMarker(client, "test"), nil)
	return f
}

func body(t *testing.T, id int64) []byte {
	data, err := json.Marshal(model.FollowUpMessage{MessageID: FollowUpMessageID(id), InterventionID: id})
	require.NoError(t, err)
	return data
}

func isSkip(err error) bool {
	_, ok := err.(*pkgerrors.SkipMessageError)
	return ok
}

func TestHandle_SendsReminderOnce(t *testing.T) {
	f := newConsumerFixture(t)

	require.NoError(t, f.consumer.Handle(context.Background(), body(t, 1)))
	require.Len(t, f.reminder.msgs, 1)
	assert.Equal(t, "HIGH", f.reminder.msgs[0].Severity)
	assert.Equal(t, "user-1", f.reminder.msgs[0].UserID)
	assert.Equal(t, []int64{1}, f.store.sent)

	// 重复投递被幂等标记拦截
	err := f.consumer.Handle(context.Background(), body(t, 1))
	assert.True(t, isSkip(err))
	assert.Len(t, f.reminder.msgs, 1)

	v, err := f.mr.Get("test:msg:follow_up_1")
	require.NoError(t, err)
	assert.Equal(t, "processed", v)
}

func TestHandle_SkipsCompletedAndMissing(t *testing.T) {
	f := newConsumerFixture(t)

	assert.True(t, isSkip(f.consumer.Handle(context.Background(), body(t, 2))))
	assert.True(t, isSkip(f.consumer.Handle(context.Background(), body(t, 404))))
	assert.True(t, isSkip(f.consumer.Handle(context.Background(), []byte("{not json"))))
	assert.Empty(t, f.reminder.msgs)
}

func TestHandle_FailureAllowsRetry(t *testing.T) {
	f := newConsumerFixture(t)
	f.reminder.err = assert.AnError

	err := f.consumer.Handle(context.Background(), body(t, 1))
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, isSkip(err))
	assert.False(t, f.mr.Exists("test:msg:follow_up_1"))

	f.reminder.err = nil
	require.NoError(t, f.consumer.Handle(context.Background(), body(t, 1)))
	assert.Equal(t, []int64{1}, f.store.sent)
}

func TestHandle_RedisDownStillProcesses(t *testing.T) {
	f := newConsumerFixture(t)
	f.mr.Close()

	require.NoError(t, f.consumer.Handle(context.Background(), body(t, 1)))
	assert.Len(t, f.reminder.msgs, 1)
}
