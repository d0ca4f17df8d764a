package crisis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	pkgerrors "CrisisDesk/pkg/errors"
	"CrisisDesk/pkg/metrics"
)

const (
	defaultCollaboratorTimeout = 3 * time.Second
	// 等待协作方返回结果的额外宽限
	collectGrace = 100 * time.Millisecond
)

// 协作方名称，用于日志、审计与指标
const (
	CollaboratorPersistence = "persistence"
	CollaboratorCrisisTeam  = "crisis_team"
	CollaboratorDispatch    = "emergency_dispatch"
	CollaboratorContacts    = "emergency_contacts"
	CollaboratorFollowUp    = "follow_up"
)

// Outcome 调度结果，各协作方的失败以可选错误字段体现
type Outcome struct {
	RecordID                   int64
	AlertsSent                 bool
	EmergencyDispatchTriggered bool
	FollowUpDate               *time.Time
	PersistenceErr             error
	NotificationErr            error
}

// Degraded 是否有协作方失败
func (o Outcome) Degraded() bool {
	return o.PersistenceErr != nil || o.NotificationErr != nil
}

// CoordinatorConfig 调度协调器依赖，除 Store 外均可为 nil
type CoordinatorConfig struct {
	Store      PersistenceStore
	Notifier   NotificationChannel
	Dispatcher EmergencyDispatcher
	Contacts   ContactNotifier
	FollowUps  FollowUpScheduler
	Auditor    Auditor
	IDs        IDGenerator
	Catalog    *Catalog
	Timeout    time.Duration
	Logger     *zap.Logger
	Now        func() time.Time
}

// Coordinator 执行方案带来的副作用，每个协作方独立隔离失败
type Coordinator struct {
	cfg CoordinatorConfig
	// 后台随访调度
	pending sync.WaitGroup
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCollaboratorTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Coordinator{cfg: cfg}
}

type taskResult struct {
	name     string
	recordID int64
	err      error
}

type task struct {
	name string
	run  func(ctx context.Context) (int64, error)
}

// Dispatch 并发执行持久化与通知，最长等待 Timeout+grace 后返回。
// 匿名调用（userID 为空）只返回资源，不落库也不通知。
func (c *Coordinator) Dispatch(ctx context.Context, plan Plan, in Input, userID string) Outcome {
	if userID == "" {
		c.cfg.Logger.Debug("Anonymous assessment, dispatch degraded to resource-only",
			zap.String("severity", plan.Severity.String()),
		)
		return Outcome{}
	}

	start := time.Now()
	now := c.cfg.Now()
	outcome := Outcome{
		AlertsSent:                 plan.Severity.RequiresAlert(),
		EmergencyDispatchTriggered: plan.Severity == SeverityEmergency,
		FollowUpDate:               plan.FollowUpDate(now),
	}

	record := c.buildRecord(plan, in, userID, now, outcome.FollowUpDate)
	tasks := c.buildTasks(plan, in, userID, record, now)
	results := c.runAll(ctx, tasks)

	var notifyErrs []error
	for _, t := range tasks {
		res, ok := results[t.name]
		if !ok {
			res = taskResult{name: t.name, err: pkgerrors.ErrCollaboratorTimeout}
		}

		if res.err != nil {
			depErr := pkgerrors.NewDependencyError(t.name, res.err)
			c.reportFailure(ctx, t.name, plan.Severity, userID, record.ID, depErr)
			if t.name == CollaboratorPersistence {
				outcome.PersistenceErr = depErr
			} else {
				notifyErrs = append(notifyErrs, depErr)
			}
			continue
		}

		if t.name == CollaboratorPersistence {
			outcome.RecordID = res.recordID
		}
	}
	outcome.NotificationErr = errors.Join(notifyErrs...)

	metrics.GetMetrics().RecordDispatchDuration(ctx, plan.Severity.String(), time.Since(start).Seconds())

	c.cfg.Logger.Info("Crisis dispatch finished",
		zap.Int64("intervention_id", outcome.RecordID),
		zap.String("user_id", userID),
		zap.String("severity", plan.Severity.String()),
		zap.Bool("alerts_sent", outcome.AlertsSent),
		zap.Bool("emergency_dispatch", outcome.EmergencyDispatchTriggered),
		zap.Bool("degraded", outcome.Degraded()),
		zap.Duration("elapsed", time.Since(start)),
	)

	return outcome
}

func (c *Coordinator) buildRecord(plan Plan, in Input, userID string, now time.Time, followUp *time.Time) *Record {
	record := &Record{
		UserID:            userID,
		Severity:          plan.Severity,
		InterventionType:  plan.InterventionType,
		Status:            RecordStatusActive,
		Symptoms:          append([]string(nil), in.Symptoms...),
		TriggerEvent:      in.TriggerEvent,
		FollowUpRequired:  plan.FollowUpRequired,
		FollowUpDate:      followUp,
		ResourcesProvided: c.cfg.Catalog.Get().Names(),
		CreatedAt:         now,
	}

	if c.cfg.IDs != nil {
		id, err := c.cfg.IDs.NextID()
		if err != nil {
			// 交给存储层自行分配 ID，通知事件中暂不带 ID
			c.cfg.Logger.Warn("Failed to pre-assign intervention ID", zap.Error(err))
		} else {
			record.ID = id
		}
	}
	return record
}

func (c *Coordinator) buildTasks(plan Plan, in Input, userID string, record *Record, now time.Time) []task {
	var tasks []task

	if c.cfg.Store != nil {
		tasks = append(tasks, task{
			name: CollaboratorPersistence,
			run: func(ctx context.Context) (int64, error) {
				id, err := c.cfg.Store.CreateInterventionRecord(ctx, record)
				if err != nil {
					return 0, err
				}
				c.scheduleFollowUpAsync(ctx, id, userID, plan.Severity, record.FollowUpDate)
				return id, nil
			},
		})
	} else {
		c.cfg.Logger.Warn("No persistence store configured, intervention record not saved")
	}

	if plan.Severity.RequiresAlert() && c.cfg.Notifier != nil {
		event := CrisisEvent{
			EventID:          uuid.NewString(),
			InterventionID:   record.ID,
			UserID:           userID,
			Severity:         plan.Severity,
			InterventionType: plan.InterventionType,
			Urgent:           plan.Urgent,
			HasSupport:       in.HasSupport,
			Location:         in.Location,
			OccurredAt:       now,
		}
		tasks = append(tasks, task{
			name: CollaboratorCrisisTeam,
			run: func(ctx context.Context) (int64, error) {
				return 0, c.cfg.Notifier.BroadcastToCrisisTeam(ctx, event)
			},
		})
	}

	if plan.Severity == SeverityEmergency {
		if c.cfg.Dispatcher != nil {
			tasks = append(tasks, task{
				name: CollaboratorDispatch,
				run: func(ctx context.Context) (int64, error) {
					return 0, c.cfg.Dispatcher.Trigger(ctx, userID, plan.Severity, in.Location)
				},
			})
		}
		if c.cfg.Contacts != nil && len(in.EmergencyContacts) > 0 {
			contacts := append([]EmergencyContact(nil), in.EmergencyContacts...)
			tasks = append(tasks, task{
				name: CollaboratorContacts,
				run: func(ctx context.Context) (int64, error) {
					return 0, c.cfg.Contacts.NotifyContacts(ctx, userID, plan.Severity, contacts)
				},
			})
		}
	}

	return tasks
}

// scheduleFollowUpAsync 记录落库后在后台调度随访，使用独立的超时，
// 失败只记录审计，不影响持久化结果
func (c *Coordinator) scheduleFollowUpAsync(ctx context.Context, recordID int64, userID string, sev Severity, at *time.Time) {
	if at == nil || c.cfg.FollowUps == nil {
		return
	}

	detached := context.WithoutCancel(ctx)
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				c.reportFailure(detached, CollaboratorFollowUp, sev, userID, recordID,
					pkgerrors.NewDependencyError(CollaboratorFollowUp, fmt.Errorf("panic: %v", r)))
			}
		}()

		callCtx, cancel := context.WithTimeout(detached, c.cfg.Timeout)
		defer cancel()
		if err := c.cfg.FollowUps.ScheduleFollowUp(callCtx, recordID, userID, *at); err != nil {
			c.reportFailure(detached, CollaboratorFollowUp, sev, userID, recordID, pkgerrors.NewDependencyError(CollaboratorFollowUp, err))
		}
	}()
}

// Wait 等待后台随访调度完成，关闭服务时调用
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runAll 每个协作方一个 goroutine，调用方取消不会中断已发出的调用
func (c *Coordinator) runAll(ctx context.Context, tasks []task) map[string]taskResult {
	results := make(map[string]taskResult, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	detached := context.WithoutCancel(ctx)
	ch := make(chan taskResult, len(tasks))

	for _, t := range tasks {
		go func(t task) {
			callCtx, cancel := context.WithTimeout(detached, c.cfg.Timeout)
			defer cancel()
			defer func() {
				if r := recover(); r != nil {
					ch <- taskResult{name: t.name, err: fmt.Errorf("panic: %v", r)}
				}
			}()

			// 协作方在截止时刻成功返回仍算成功
			id, err := t.run(callCtx)
			ch <- taskResult{name: t.name, recordID: id, err: err}
		}(t)
	}

	timer := time.NewTimer(c.cfg.Timeout + collectGrace)
	defer timer.Stop()

	for len(results) < len(tasks) {
		select {
		case res := <-ch:
			results[res.name] = res
		case <-timer.C:
			c.cfg.Logger.Warn("Dispatch collaborators exceeded time budget",
				zap.Int("completed", len(results)),
				zap.Int("total", len(tasks)),
				zap.Duration("budget", c.cfg.Timeout),
			)
			return results
		}
	}
	return results
}

func (c *Coordinator) reportFailure(ctx context.Context, collaborator string, sev Severity, userID string, recordID int64, err error) {
	c.cfg.Logger.Warn("Crisis dispatch collaborator failed",
		zap.String("collaborator", collaborator),
		zap.String("severity", sev.String()),
		zap.String("user_id", userID),
		zap.Int64("intervention_id", recordID),
		zap.Error(err),
	)

	metrics.GetMetrics().RecordDispatchFailure(ctx, collaborator, sev.String())

	if c.cfg.Auditor == nil {
		return
	}
	entityID := ""
	if recordID != 0 {
		entityID = strconv.FormatInt(recordID, 10)
	}
	c.cfg.Auditor.LogError(ctx, AuditEntry{
		Action:   AuditActionDispatch,
		Entity:   AuditEntityRecord,
		EntityID: entityID,
		UserID:   userID,
		Details: map[string]any{
			"collaborator": collaborator,
			"severity":     sev.String(),
		},
	}, err)
}
