package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeJobs Exchange = "cascade.jobs"
	ExchangeDLQ  Exchange = "cascade.dlq"

	// ExchangeEvents — fanout для WorkflowUpdate: каждый подписанный
	// процесс (API с его WebSocket hub'ом) получает копию события.
	ExchangeEvents Exchange = "cascade.events"
)

// Queues — имена очередей.
const (
	// QueueJobsExecute — немедленное выполнение узла.
	QueueJobsExecute Queue = "jobs.execute"

	// QueueJobsDelayed — отложенное выполнение (wait-узлы).
	QueueJobsDelayed Queue = "jobs.delayed"

	// QueueDLQJobs — dead letter queue для некорректных jobs.
	QueueDLQJobs Queue = "dlq.jobs"
)

// Routing keys.
const (
	RoutingKeyExecute RoutingKey = "execute"
	RoutingKeyDelayed RoutingKey = "delayed"
	RoutingKeyDLQJobs RoutingKey = "jobs"
)

// SetupTopology объявляет exchanges, queues и bindings.
// Идемпотентна — безопасно вызывать при каждом старте сервиса.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeJobs, "direct"},
		{ExchangeDLQ, "direct"},
		{ExchangeEvents, "fanout"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	// Некорректные payload'ы из рабочих очередей уходят в DLQ.
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQJobs),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		{QueueJobsExecute, dlqArgs},
		{QueueJobsDelayed, dlqArgs},
		{QueueDLQJobs, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueJobsExecute, RoutingKeyExecute, ExchangeJobs},
		{QueueJobsDelayed, RoutingKeyDelayed, ExchangeJobs},
		{QueueDLQJobs, RoutingKeyDLQJobs, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}
