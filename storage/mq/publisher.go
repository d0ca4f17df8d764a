package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"CrisisDesk/config"
	"CrisisDesk/pkg/logger"
	pkgmq "CrisisDesk/pkg/mq"
)

// MaxDelay RabbitMQ 延迟消息插件建议的最大延迟，超过的由 scheduler 扫描处理
const MaxDelay = 24 * time.Hour

var (
	ErrConnectionNil = errors.New("RabbitMQ connection is nil")
	ErrDelayTooLong  = errors.New("delay exceeds 24 hours limit, use scheduled task instead")
)

var (
	publisherCh *amqp.Channel
	pubMutex    sync.RWMutex // 读多写少
)

func getPublisherChannel() (*amqp.Channel, error) {
	pubMutex.RLock()
	if publisherCh != nil && !publisherCh.IsClosed() {
		ch := publisherCh
		pubMutex.RUnlock()
		return ch, nil
	}
	pubMutex.RUnlock()

	pubMutex.Lock()
	defer pubMutex.Unlock()

	if publisherCh != nil && !publisherCh.IsClosed() {
		return publisherCh, nil
	}

	if conn == nil || conn.IsClosed() {
		return nil, ErrConnectionNil
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open publish channel: %w", err)
	}
	publisherCh = ch

	closeChan := ch.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		<-closeChan

		pubMutex.Lock()
		if publisherCh == ch {
			publisherCh = nil
		}
		pubMutex.Unlock()

		logger.Logger.Warn("Publisher channel closed, will recreate on next publish",
			zap.String("component", "rabbitmq"),
		)
	}()

	logger.Logger.Info("Publisher channel created",
		zap.String("component", "rabbitmq"),
	)
	return ch, nil
}

func buildPublishing(body interface{}) (amqp.Publishing, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal message: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         bodyBytes,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}, nil
}

// PublishMessage 发送普通消息
func PublishMessage(ctx context.Context, exchange, routingKey string, body interface{}) error {
	ch, err := getPublisherChannel()
	if err != nil {
		return err
	}

	msg, err := buildPublishing(body)
	if err != nil {
		return err
	}

	if err := pkgmq.PublishWithTracing(ctx, ch, config.Cfg.ServiceName, exchange, routingKey, msg); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// PublishDelayedMessage 发送延迟消息，delay 超过 MaxDelay 返回 ErrDelayTooLong
func PublishDelayedMessage(ctx context.Context, exchange, routingKey string, delay time.Duration, body interface{}) error {
	if delay > MaxDelay {
		return ErrDelayTooLong
	}
	if delay < 0 {
		delay = 0
	}

	ch, err := getPublisherChannel()
	if err != nil {
		return err
	}

	msg, err := buildPublishing(body)
	if err != nil {
		return err
	}
	msg.Headers = amqp.Table{
		"x-delay": delay.Milliseconds(),
	}

	if err := pkgmq.PublishWithTracing(ctx, ch, config.Cfg.ServiceName, exchange, routingKey, msg); err != nil {
		return fmt.Errorf("failed to publish delayed message: %w", err)
	}
	return nil
}

// Broker 把包级发布函数暴露为可注入的实现
type Broker struct{}

func (Broker) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return PublishMessage(ctx, exchange, routingKey, body)
}

func (Broker) PublishDelayed(ctx context.Context, exchange, routingKey string, delay time.Duration, body interface{}) error {
	return PublishDelayedMessage(ctx, exchange, routingKey, delay, body)
}
