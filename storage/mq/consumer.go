package mq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"CrisisDesk/config"
	pkgerrors "CrisisDesk/pkg/errors"
	"CrisisDesk/pkg/logger"
	pkgmq "CrisisDesk/pkg/mq"
)

// MessageHandler 返回 SkipMessageError 时直接 ack，其余错误 nack 并重新入队
type MessageHandler func(ctx context.Context, body []byte) error

type ConsumeOptions struct {
	Queue         string
	ConsumerTag   string
	PrefetchCount int
	Handler       MessageHandler
}

// Consume 阻塞消费直到 ctx 取消或 channel 关闭
func Consume(ctx context.Context, opts ConsumeOptions) error {
	c := Connection()
	if c == nil {
		return ErrConnectionNil
	}

	ch, err := c.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if opts.PrefetchCount > 0 {
		if err := ch.Qos(opts.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	msgs, err := ch.Consume(
		opts.Queue,
		opts.ConsumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.Logger.Info("Started consuming messages",
		zap.String("queue", opts.Queue),
		zap.String("consumer_tag", opts.ConsumerTag),
		zap.Int("prefetch_count", opts.PrefetchCount),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Logger.Info("Consumer stopped",
				zap.String("queue", opts.Queue),
				zap.String("consumer_tag", opts.ConsumerTag),
			)
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed for queue %s", opts.Queue)
			}
			handleDelivery(ctx, opts, msg)
		}
	}
}

// Acknowledger 测试中替换 amqp.Delivery 的确认行为
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func handleDelivery(ctx context.Context, opts ConsumeOptions, msg amqp.Delivery) {
	msgCtx, span := pkgmq.StartConsumeSpan(ctx, config.Cfg.ServiceName, opts.Queue, msg)
	start := time.Now()
	err := opts.Handler(msgCtx, msg.Body)
	pkgmq.RecordHandled(msgCtx, span, opts.Queue, err, time.Since(start))

	settle(opts, msg, err)
}

func settle(opts ConsumeOptions, ack Acknowledger, err error) {
	var skip *pkgerrors.SkipMessageError
	switch {
	case err == nil:
		_ = ack.Ack(false)
	case errors.As(err, &skip):
		logger.Logger.Info("Message skipped",
			zap.String("queue", opts.Queue),
			zap.String("reason", skip.Reason),
		)
		_ = ack.Ack(false)
	default:
		logger.Logger.Error("Failed to process message",
			zap.String("queue", opts.Queue),
			zap.String("consumer_tag", opts.ConsumerTag),
			zap.Error(err),
		)
		_ = ack.Nack(false, true)
	}
}
