package crisis

import (
	"context"
	"time"
)

// PersistenceStore 保存干预记录
type PersistenceStore interface {
	CreateInterventionRecord(ctx context.Context, record *Record) (int64, error)
}

// NotificationChannel 向危机响应团队广播
type NotificationChannel interface {
	BroadcastToCrisisTeam(ctx context.Context, event CrisisEvent) error
}

// EmergencyDispatcher 触发紧急服务调度
type EmergencyDispatcher interface {
	Trigger(ctx context.Context, userID string, severity Severity, location *Location) error
}

// ContactNotifier 通知调用方提供的紧急联系人
type ContactNotifier interface {
	NotifyContacts(ctx context.Context, userID string, severity Severity, contacts []EmergencyContact) error
}

// RateLimiter 按标识限流
type RateLimiter interface {
	Check(ctx context.Context, identifier string) (Decision, error)
}

// Auditor 审计落地
type Auditor interface {
	LogSuccess(ctx context.Context, entry AuditEntry)
	LogError(ctx context.Context, entry AuditEntry, err error)
}

// FollowUpScheduler 在记录落库后安排随访
type FollowUpScheduler interface {
	ScheduleFollowUp(ctx context.Context, recordID int64, userID string, at time.Time) error
}

// IDGenerator 生成干预记录 ID
type IDGenerator interface {
	NextID() (int64, error)
}
