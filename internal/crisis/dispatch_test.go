package crisis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "CrisisDesk/pkg/errors"
)

type dispatchFixture struct {
	store      *fakeStore
	notifier   *fakeNotifier
	dispatcher *fakeDispatcher
	contacts   *fakeContacts
	auditor    *fakeAuditor
	followUps  *fakeFollowUps
	ids        *sequenceIDs
	now        time.Time
}

func newDispatchFixture() *dispatchFixture {
	return &dispatchFixture{
		store:      &fakeStore{},
		notifier:   &fakeNotifier{},
		dispatcher: &fakeDispatcher{},
		contacts:   &fakeContacts{},
		auditor:    &fakeAuditor{},
		followUps:  &fakeFollowUps{},
		ids:        &sequenceIDs{},
		now:        time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
	}
}

func (f *dispatchFixture) coordinator(timeout time.Duration) *Coordinator {
	return NewCoordinator(CoordinatorConfig{
		Store:      f.store,
		Notifier:   f.notifier,
		Dispatcher: f.dispatcher,
		Contacts:   f.contacts,
		FollowUps:  f.followUps,
		Auditor:    f.auditor,
		IDs:        f.ids,
		Catalog:    NewCatalog(DefaultResources()),
		Timeout:    timeout,
		Now:        func() time.Time { return f.now },
	})
}

// settle 等待后台随访调度结束
func settle(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
}

func emergencyInput() Input {
	return Input{
		Symptoms:          []string{"hopelessness"},
		ImmediateRisk:     true,
		EmergencyContacts: []EmergencyContact{{Name: "Alex", Phone: "+15551234567"}},
		Location:          &Location{Latitude: 1, Longitude: 2},
	}
}

func TestDispatch_EmergencyCallsEveryCollaborator(t *testing.T) {
	f := newDispatchFixture()
	c := f.coordinator(time.Second)

	out := c.Dispatch(context.Background(), PlanFor(SeverityEmergency), emergencyInput(), "user-1")

	require.NoError(t, out.PersistenceErr)
	require.NoError(t, out.NotificationErr)
	assert.True(t, out.AlertsSent)
	assert.True(t, out.EmergencyDispatchTriggered)
	assert.Equal(t, int64(1001), out.RecordID)
	require.NotNil(t, out.FollowUpDate)
	assert.Equal(t, f.now.Add(2*time.Hour), *out.FollowUpDate)

	saved := f.store.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, "user-1", saved[0].UserID)
	assert.Equal(t, RecordStatusActive, saved[0].Status)
	assert.Equal(t, InterventionEmergencyDispatch, saved[0].InterventionType)
	assert.NotEmpty(t, saved[0].ResourcesProvided)

	require.Equal(t, 1, f.notifier.count())
	assert.Equal(t, int64(1001), f.notifier.events[0].InterventionID)
	assert.Equal(t, int32(1), f.dispatcher.calls.Load())
	assert.Equal(t, &Location{Latitude: 1, Longitude: 2}, f.dispatcher.location)
	assert.Equal(t, int32(1), f.contacts.calls.Load())
	settle(t, c)
	assert.Equal(t, 1, f.followUps.count())
	assert.Empty(t, f.auditor.failures)
}

func TestDispatch_CriticalBroadcastsWithoutDispatch(t *testing.T) {
	f := newDispatchFixture()
	in := emergencyInput()
	in.ImmediateRisk = false

	out := f.coordinator(time.Second).Dispatch(context.Background(), PlanFor(SeverityCritical), in, "user-1")

	assert.True(t, out.AlertsSent)
	assert.False(t, out.EmergencyDispatchTriggered)
	assert.Equal(t, 1, f.notifier.count())
	assert.Zero(t, f.dispatcher.calls.Load())
	assert.Zero(t, f.contacts.calls.Load())
}

func TestDispatch_LowOnlyPersists(t *testing.T) {
	for _, sev := range []Severity{SeverityHigh, SeverityModerate, SeverityLow} {
		t.Run(string(sev), func(t *testing.T) {
			f := newDispatchFixture()
			c := f.coordinator(time.Second)

			out := c.Dispatch(context.Background(), PlanFor(sev), Input{Symptoms: []string{"s"}}, "user-1")
			settle(t, c)

			assert.False(t, out.AlertsSent)
			assert.False(t, out.EmergencyDispatchTriggered)
			assert.Len(t, f.store.saved(), 1)
			assert.Zero(t, f.notifier.count())
			if sev == SeverityLow {
				assert.Nil(t, out.FollowUpDate)
				assert.Zero(t, f.followUps.count())
			} else {
				assert.Equal(t, 1, f.followUps.count())
			}
		})
	}
}

func TestDispatch_AnonymousIsResourceOnly(t *testing.T) {
	f := newDispatchFixture()

	out := f.coordinator(time.Second).Dispatch(context.Background(), PlanFor(SeverityEmergency), emergencyInput(), "")

	assert.Equal(t, Outcome{}, out)
	assert.Empty(t, f.store.saved())
	assert.Zero(t, f.notifier.count())
	assert.Zero(t, f.dispatcher.calls.Load())
}

func TestDispatch_FailuresAreIsolated(t *testing.T) {
	f := newDispatchFixture()
	f.store.err = errBoom
	f.notifier.err = errBoom
	f.contacts.err = errBoom

	out := f.coordinator(time.Second).Dispatch(context.Background(), PlanFor(SeverityEmergency), emergencyInput(), "user-1")

	// 存储与广播失败不影响紧急调度
	assert.Equal(t, int32(1), f.dispatcher.calls.Load())
	assert.True(t, out.AlertsSent)
	assert.True(t, out.EmergencyDispatchTriggered)
	assert.Zero(t, out.RecordID)

	require.Error(t, out.PersistenceErr)
	var depErr *pkgerrors.DependencyError
	require.True(t, errors.As(out.PersistenceErr, &depErr))
	assert.Equal(t, CollaboratorPersistence, depErr.Dependency)
	assert.ErrorIs(t, out.PersistenceErr, pkgerrors.DependencyUnavailable)
	assert.ErrorIs(t, out.PersistenceErr, errBoom)

	require.Error(t, out.NotificationErr)
	assert.ErrorIs(t, out.NotificationErr, errBoom)

	assert.Len(t, f.auditor.errorsFor(CollaboratorPersistence), 1)
	assert.Len(t, f.auditor.errorsFor(CollaboratorCrisisTeam), 1)
	assert.Len(t, f.auditor.errorsFor(CollaboratorContacts), 1)
	assert.Zero(t, f.followUps.count())
}

func TestDispatch_RecoversPanics(t *testing.T) {
	f := newDispatchFixture()
	f.store.panics = true

	out := f.coordinator(time.Second).Dispatch(context.Background(), PlanFor(SeverityCritical), Input{SuicidalIdeation: true, HasPlan: true}, "user-1")

	require.Error(t, out.PersistenceErr)
	assert.NoError(t, out.NotificationErr)
	assert.Equal(t, 1, f.notifier.count())
}

func TestDispatch_HungCollaboratorBoundedByTimeout(t *testing.T) {
	f := newDispatchFixture()
	f.notifier.block = true
	timeout := 50 * time.Millisecond

	start := time.Now()
	out := f.coordinator(timeout).Dispatch(context.Background(), PlanFor(SeverityEmergency), emergencyInput(), "user-1")
	elapsed := time.Since(start)

	assert.Less(t, elapsed, timeout+collectGrace+200*time.Millisecond)
	assert.NoError(t, out.PersistenceErr)
	require.Error(t, out.NotificationErr)
	assert.ErrorIs(t, out.NotificationErr, context.DeadlineExceeded)
	assert.Equal(t, int32(1), f.dispatcher.calls.Load())
}

func TestDispatch_CallerCancellationDoesNotAbortCalls(t *testing.T) {
	f := newDispatchFixture()
	f.store.delay = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := f.coordinator(time.Second).Dispatch(ctx, PlanFor(SeverityHigh), Input{SuicidalIdeation: true}, "user-1")

	require.NoError(t, out.PersistenceErr)
	assert.Len(t, f.store.saved(), 1)
}

func TestDispatch_IDGeneratorFailureFallsBackToStore(t *testing.T) {
	f := newDispatchFixture()
	f.ids.err = errBoom

	out := f.coordinator(time.Second).Dispatch(context.Background(), PlanFor(SeverityModerate), Input{SelfHarmRisk: true}, "user-1")

	require.NoError(t, out.PersistenceErr)
	assert.Equal(t, int64(1), out.RecordID)
}

func TestDispatch_FollowUpFailureIsAudited(t *testing.T) {
	f := newDispatchFixture()
	f.followUps.err = errBoom
	c := f.coordinator(time.Second)

	out := c.Dispatch(context.Background(), PlanFor(SeverityHigh), Input{SuicidalIdeation: true}, "user-1")
	settle(t, c)

	assert.NoError(t, out.PersistenceErr)
	assert.NotZero(t, out.RecordID)
	assert.Len(t, f.auditor.errorsFor(CollaboratorFollowUp), 1)
}

func TestDispatch_HungFollowUpKeepsSavedRecord(t *testing.T) {
	f := newDispatchFixture()
	f.followUps.block = true
	timeout := 100 * time.Millisecond
	c := f.coordinator(timeout)

	start := time.Now()
	out := c.Dispatch(context.Background(), PlanFor(SeverityHigh), Input{SuicidalIdeation: true}, "user-1")

	assert.Less(t, time.Since(start), timeout)
	require.NoError(t, out.PersistenceErr)
	assert.Equal(t, int64(1001), out.RecordID)
	assert.Len(t, f.store.saved(), 1)
	assert.Empty(t, f.auditor.errorsFor(CollaboratorPersistence))

	settle(t, c)
	failures := f.auditor.errorsFor(CollaboratorFollowUp)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0].err, context.DeadlineExceeded)
}

func TestDispatch_SuccessAtDeadlineKeepsRecordID(t *testing.T) {
	f := newDispatchFixture()
	timeout := 60 * time.Millisecond
	f.store.finishAtDeadline = true

	out := f.coordinator(timeout).Dispatch(context.Background(), PlanFor(SeverityModerate), Input{SelfHarmRisk: true}, "user-1")

	require.NoError(t, out.PersistenceErr)
	assert.Equal(t, int64(1001), out.RecordID)
	assert.Len(t, f.store.saved(), 1)
}
