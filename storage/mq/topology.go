package mq

import (
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// 交换机与路由键
const (
	// 危机团队告警，topic 交换机，控制台按严重等级订阅
	ExchangeCrisisAlerts = "crisis.alerts"
	// 紧急服务调度请求
	ExchangeCrisisDispatch = "crisis.dispatch"
	// 延迟消息交换机，依赖 rabbitmq_delayed_message_exchange 插件
	ExchangeDelayed = "scheduler.delayed"

	RoutingKeyEmergencyDispatch = "crisis.emergency.dispatch"
	RoutingKeyFollowUpDue       = "crisis.follow_up.due"
	RoutingKeyFollowUpReminder  = "crisis.follow_up.reminder"

	QueueFollowUpDue       = "crisis.follow_up.due"
	QueueEmergencyDispatch = "crisis.emergency.dispatch"
)

// AlertRoutingKey 告警按严重等级路由，如 crisis.alert.emergency
func AlertRoutingKey(severity string) string {
	return "crisis.alert." + strings.ToLower(severity)
}

// Declarer 声明拓扑所需的 channel 能力
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// DeclareTopology 幂等声明，server 与 worker 启动时都会调用
func DeclareTopology(ch Declarer) error {
	exchanges := []struct {
		name string
		kind string
		args amqp.Table
	}{
		{name: ExchangeCrisisAlerts, kind: amqp.ExchangeTopic},
		{name: ExchangeCrisisDispatch, kind: amqp.ExchangeDirect},
		{name: ExchangeDelayed, kind: "x-delayed-message", args: amqp.Table{"x-delayed-type": amqp.ExchangeDirect}},
	}
	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, ex.args); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", ex.name, err)
		}
	}

	bindings := []struct {
		queue      string
		exchange   string
		routingKey string
	}{
		{queue: QueueFollowUpDue, exchange: ExchangeDelayed, routingKey: RoutingKeyFollowUpDue},
		{queue: QueueEmergencyDispatch, exchange: ExchangeCrisisDispatch, routingKey: RoutingKeyEmergencyDispatch},
	}
	for _, b := range bindings {
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", b.queue, err)
		}
		if err := ch.QueueBind(b.queue, b.routingKey, b.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", b.queue, err)
		}
	}
	return nil
}
