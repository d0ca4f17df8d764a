package schedule

// 随访调度器：定期扫描即将到期的随访，补投延迟消息
// 解决 RabbitMQ 延迟消息最多只能延迟 1 天的问题

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"CrisisDesk/internal/model"
)

const (
	defaultScanBatch   = 500
	publishConcurrency = 8
)

// DueFinder 查询待入队的随访
type DueFinder interface {
	FindDueFollowUps(ctx context.Context, until time.Time, limit int) ([]model.InterventionRecord, error)
}

// FollowUpPublisher 由 queue.FollowUpProducer 实现
type FollowUpPublisher interface {
	ScheduleIfNeeded(ctx context.Context, recordID int64, userID string, at time.Time) (bool, error)
}

// FollowUpScheduler 随访扫描器
type FollowUpScheduler struct {
	finder    DueFinder
	publisher FollowUpPublisher
	logger    *zap.Logger
	now       func() time.Time

	jobMu      sync.Mutex
	jobRunning bool
}

func NewFollowUpScheduler(finder DueFinder, publisher FollowUpPublisher, logger *zap.Logger) *FollowUpScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FollowUpScheduler{finder: finder, publisher: publisher, logger: logger, now: time.Now}
}

// CheckDueFollowUps 扫描 follow_up_date 在未来 window 内（含已过期）的记录并投递延迟消息
// 返回成功入队的数量
func (s *FollowUpScheduler) CheckDueFollowUps(ctx context.Context, window time.Duration) (int, error) {
	s.jobMu.Lock()
	if s.jobRunning {
		s.jobMu.Unlock()
		s.logger.Info("Follow-up check job already running, skipping")
		return 0, nil
	}
	s.jobRunning = true
	s.jobMu.Unlock()

	defer func() {
		s.jobMu.Lock()
		s.jobRunning = false
		s.jobMu.Unlock()
	}()

	start := s.now()

	records, err := s.finder.FindDueFollowUps(ctx, start.Add(window), defaultScanBatch)
	if err != nil {
		s.logger.Error("Failed to query due follow-ups", zap.Error(err))
		return 0, err
	}
	if len(records) == 0 {
		s.logger.Debug("No follow-ups approaching due time", zap.Duration("window", window))
		return 0, nil
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		queued  int
		failed  int
		limiter = make(chan struct{}, publishConcurrency)
	)

	for i := range records {
		r := records[i]
		if r.FollowUpDate == nil {
			continue
		}

		wg.Add(1)
		limiter <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-limiter }()

			ok, err := s.publisher.ScheduleIfNeeded(ctx, r.ID, r.UserID, *r.FollowUpDate)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				failed++
				s.logger.Error("Failed to queue follow-up",
					zap.Int64("intervention_id", r.ID),
					zap.Error(err),
				)
			case ok:
				queued++
			default:
				// 扫描窗口应小于 24 小时，正常不会走到这里
				s.logger.Warn("Follow-up still beyond delay ceiling, will retry next scan",
					zap.Int64("intervention_id", r.ID),
					zap.Time("follow_up_date", *r.FollowUpDate),
				)
			}
		}()
	}
	wg.Wait()

	s.logger.Info("Follow-up check completed",
		zap.Int("found", len(records)),
		zap.Int("queued", queued),
		zap.Int("failed", failed),
		zap.Duration("duration", s.now().Sub(start)),
	)

	if failed > 0 {
		return queued, fmt.Errorf("follow-up check completed with %d errors", failed)
	}
	return queued, nil
}

// Run 每 interval 扫描一次，直到 ctx 取消
func (s *FollowUpScheduler) Run(ctx context.Context, interval, window time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runOnce(ctx, interval, window)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, interval, window)
		}
	}
}

func (s *FollowUpScheduler) runOnce(ctx context.Context, interval, window time.Duration) {
	runCtx, cancel := context.WithTimeout(ctx, interval)
	defer cancel()
	if _, err := s.CheckDueFollowUps(runCtx, window); err != nil {
		s.logger.Error("Follow-up check run failed", zap.Error(err))
	}
}
