package crisis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var errBoom = errors.New("boom")

type fakeStore struct {
	mu      sync.Mutex
	records []*Record
	err     error
	delay   time.Duration
	panics  bool

	// 等到 ctx 到期后才成功返回
	finishAtDeadline bool
}

func (f *fakeStore) CreateInterventionRecord(ctx context.Context, record *Record) (int64, error) {
	if f.panics {
		panic("store exploded")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if f.finishAtDeadline {
		<-ctx.Done()
	}
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	if record.ID == 0 {
		return int64(len(f.records)), nil
	}
	return record.ID, nil
}

func (f *fakeStore) saved() []*Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Record(nil), f.records...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []CrisisEvent
	err    error
	block  bool
}

func (f *fakeNotifier) BroadcastToCrisisTeam(ctx context.Context, event CrisisEvent) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeDispatcher struct {
	mu       sync.Mutex
	calls    atomic.Int32
	err      error
	location *Location
}

func (f *fakeDispatcher) Trigger(_ context.Context, _ string, _ Severity, location *Location) error {
	f.calls.Add(1)
	f.mu.Lock()
	f.location = location
	f.mu.Unlock()
	return f.err
}

type fakeContacts struct {
	calls atomic.Int32
	err   error
}

func (f *fakeContacts) NotifyContacts(context.Context, string, Severity, []EmergencyContact) error {
	f.calls.Add(1)
	return f.err
}

type fakeLimiter struct {
	mu      sync.Mutex
	allowed bool
	err     error
	calls   atomic.Int32
	last    string
}

func (f *fakeLimiter) Check(_ context.Context, identifier string) (Decision, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = identifier
	f.mu.Unlock()
	if f.err != nil {
		return Decision{}, f.err
	}
	return Decision{Allowed: f.allowed}, nil
}

type auditCall struct {
	entry AuditEntry
	err   error
}

type fakeAuditor struct {
	mu        sync.Mutex
	successes []auditCall
	failures  []auditCall
}

func (f *fakeAuditor) LogSuccess(_ context.Context, entry AuditEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes = append(f.successes, auditCall{entry: entry})
}

func (f *fakeAuditor) LogError(_ context.Context, entry AuditEntry, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, auditCall{entry: entry, err: err})
}

func (f *fakeAuditor) errorsFor(collaborator string) []auditCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []auditCall
	for _, c := range f.failures {
		if c.entry.Details["collaborator"] == collaborator {
			out = append(out, c)
		}
	}
	return out
}

type fakeFollowUps struct {
	mu    sync.Mutex
	calls []time.Time
	err   error
	block bool
}

func (f *fakeFollowUps) ScheduleFollowUp(ctx context.Context, _ int64, _ string, at time.Time) error {
	f.mu.Lock()
	f.calls = append(f.calls, at)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func (f *fakeFollowUps) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type sequenceIDs struct {
	next atomic.Int64
	err  error
}

func (s *sequenceIDs) NextID() (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return 1000 + s.next.Add(1), nil
}

func boolp(v bool) *bool {
	return &v
}

// validRequest 所有风险因素为 false 的合法请求
func validRequest() Request {
	return Request{
		Symptoms:          []string{"anxiety"},
		SuicidalIdeation:  boolp(false),
		HomicidalIdeation: boolp(false),
		SelfHarmRisk:      boolp(false),
		SubstanceUse:      boolp(false),
		HasSupport:        boolp(true),
		HasPlan:           boolp(false),
		HasMeans:          boolp(false),
		ImmediateRisk:     boolp(false),
	}
}
