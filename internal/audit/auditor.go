package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"CrisisDesk/internal/crisis"
	"CrisisDesk/internal/model"
)

const (
	defaultBufferSize = 256
	maxErrorLength    = 512
	writeTimeout      = 5 * time.Second
)

type correlationKey struct{}

// WithCorrelationID 将请求 ID 放入 context，同一请求的审计记录共享该 ID
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID 没有则新生成
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// Auditor 审计日志先写 zap，再异步落库，写库失败不影响调用方
type Auditor struct {
	db      *gorm.DB
	logger  *zap.Logger
	entries chan *model.AuditLog
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
}

var _ crisis.Auditor = (*Auditor)(nil)

// NewAuditor db 为 nil 时只写日志
func NewAuditor(db *gorm.DB, logger *zap.Logger, bufferSize int) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	a := &Auditor{
		db:      db,
		logger:  logger,
		entries: make(chan *model.AuditLog, bufferSize),
	}

	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Auditor) LogSuccess(ctx context.Context, entry crisis.AuditEntry) {
	a.record(ctx, entry, nil)
}

func (a *Auditor) LogError(ctx context.Context, entry crisis.AuditEntry, err error) {
	a.record(ctx, entry, err)
}

func (a *Auditor) record(ctx context.Context, entry crisis.AuditEntry, err error) {
	row := &model.AuditLog{
		CorrelationID: CorrelationID(ctx),
		Action:        entry.Action,
		Entity:        entry.Entity,
		EntityID:      entry.EntityID,
		UserID:        entry.UserID,
		Success:       err == nil,
		Details:       model.JSONB(entry.Details),
	}

	fields := []zap.Field{
		zap.String("correlation_id", row.CorrelationID),
		zap.String("action", row.Action),
		zap.String("entity", row.Entity),
		zap.String("entity_id", row.EntityID),
		zap.String("user_id", row.UserID),
		zap.Any("details", entry.Details),
	}

	if err != nil {
		msg := err.Error()
		if len(msg) > maxErrorLength {
			msg = msg[:maxErrorLength]
		}
		row.Error = &msg
		a.logger.Warn("Audit", append(fields, zap.Bool("success", false), zap.Error(err))...)
	} else {
		a.logger.Info("Audit", append(fields, zap.Bool("success", true))...)
	}

	if a.db == nil {
		return
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}

	select {
	case a.entries <- row:
	default:
		a.logger.Warn("Audit buffer full, dropping audit log",
			zap.String("correlation_id", row.CorrelationID),
			zap.String("action", row.Action),
		)
	}
}

func (a *Auditor) run() {
	defer a.wg.Done()

	for row := range a.entries {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := a.db.WithContext(ctx).Create(row).Error; err != nil {
			a.logger.Error("Failed to persist audit log",
				zap.String("correlation_id", row.CorrelationID),
				zap.String("action", row.Action),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// Close 停止接收并等待缓冲区写完
func (a *Auditor) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.entries)
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
