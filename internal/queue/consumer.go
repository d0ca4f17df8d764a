package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"CrisisDesk/internal/model"
	pkgerrors "CrisisDesk/pkg/errors"
	"CrisisDesk/pkg/metrics"
	"CrisisDesk/storage/mq"
)

// FollowUpStore 消费者需要的存储能力
type FollowUpStore interface {
	GetForFollowUp(ctx context.Context, id int64) (*model.InterventionRecord, error)
	MarkFollowUpSent(ctx context.Context, id int64, at time.Time) (bool, error)
}

// ReminderNotifier 随访提醒推送
type ReminderNotifier interface {
	BroadcastFollowUpReminder(ctx context.Context, msg model.CrisisAlertMessage) error
}

// Idempotency 消息幂等标记
type Idempotency interface {
	TryMarkProcessing(ctx context.Context, messageID string) (bool, error)
	Unmark(ctx context.Context, messageID string) error
	MarkProcessed(ctx context.Context, messageID string) error
}

// FollowUpConsumer 处理到期的随访消息
type FollowUpConsumer struct {
	store    FollowUpStore
	notifier ReminderNotifier
	marks    Idempotency
	logger   *zap.Logger
	now      func() time.Time
}

func NewFollowUpConsumer(store FollowUpStore, notifier ReminderNotifier, marks Idempotency, logger *zap.Logger) *FollowUpConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FollowUpConsumer{store: store, notifier: notifier, marks: marks, logger: logger, now: time.Now}
}

// Start 阻塞消费直到 ctx 取消
func (c *FollowUpConsumer) Start(ctx context.Context) error {
	return mq.Consume(ctx, mq.ConsumeOptions{
		Queue:         mq.QueueFollowUpDue,
		ConsumerTag:   "follow_up_consumer",
		PrefetchCount: 10,
		Handler:       c.Handle,
	})
}

func skip(format string, args ...interface{}) error {
	return &pkgerrors.SkipMessageError{Reason: fmt.Sprintf(format, args...)}
}

// Handle 单条消息处理，返回 SkipMessageError 表示直接 ack
func (c *FollowUpConsumer) Handle(ctx context.Context, body []byte) error {
	var msg model.FollowUpMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		// 格式错误重试也无意义
		return skip("invalid follow-up message: %v", err)
	}
	if msg.MessageID == "" {
		msg.MessageID = FollowUpMessageID(msg.InterventionID)
	}

	acquired, err := c.marks.TryMarkProcessing(ctx, msg.MessageID)
	if err != nil {
		// Redis 不可用时继续处理，MarkFollowUpSent 的条件更新兜底
		c.logger.Warn("Failed to check message processed status",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
	} else if !acquired {
		return skip("message %s already processed", msg.MessageID)
	}

	if err := c.process(ctx, msg); err != nil {
		var skipErr *pkgerrors.SkipMessageError
		if errors.As(err, &skipErr) {
			c.markProcessed(ctx, msg.MessageID)
			return err
		}
		if unmarkErr := c.marks.Unmark(ctx, msg.MessageID); unmarkErr != nil {
			c.logger.Warn("Failed to unmark message", zap.String("message_id", msg.MessageID), zap.Error(unmarkErr))
		}
		metrics.GetMetrics().RecordFollowUpSent(ctx, "failed")
		return err
	}

	c.markProcessed(ctx, msg.MessageID)
	return nil
}

func (c *FollowUpConsumer) process(ctx context.Context, msg model.FollowUpMessage) error {
	record, err := c.store.GetForFollowUp(ctx, msg.InterventionID)
	if err != nil {
		if errors.Is(err, pkgerrors.InterventionNotFound) {
			return skip("intervention %d not found", msg.InterventionID)
		}
		return err
	}

	if record.Status != model.InterventionStatusActive {
		metrics.GetMetrics().RecordFollowUpSent(ctx, "skipped")
		return skip("intervention %d is %s", record.ID, record.Status)
	}
	if record.FollowUpSentAt != nil {
		return skip("follow-up for intervention %d already sent", record.ID)
	}

	followUpAt := msg.FollowUpAt
	if record.FollowUpDate != nil {
		followUpAt = *record.FollowUpDate
	}

	err = c.notifier.BroadcastFollowUpReminder(ctx, model.CrisisAlertMessage{
		MessageID:      msg.MessageID,
		InterventionID: record.ID,
		UserID:         record.UserID,
		Severity:       record.Severity,
		FollowUpAt:     &followUpAt,
		OccurredAt:     c.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to broadcast follow-up reminder: %w", err)
	}

	marked, err := c.store.MarkFollowUpSent(ctx, record.ID, c.now())
	if err != nil {
		// 提醒已发出，记录失败不重试，避免重复提醒
		c.logger.Error("Failed to mark follow-up sent",
			zap.Int64("intervention_id", record.ID),
			zap.Error(err),
		)
	} else if !marked {
		c.logger.Info("Follow-up already marked sent by another consumer",
			zap.Int64("intervention_id", record.ID),
		)
	}

	metrics.GetMetrics().RecordFollowUpSent(ctx, "sent")
	c.logger.Info("Follow-up reminder sent",
		zap.String("message_id", msg.MessageID),
		zap.Int64("intervention_id", record.ID),
		zap.String("severity", record.Severity),
	)
	return nil
}

func (c *FollowUpConsumer) markProcessed(ctx context.Context, messageID string) {
	if err := c.marks.MarkProcessed(ctx, messageID); err != nil {
		c.logger.Warn("Failed to mark message as processed",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}
