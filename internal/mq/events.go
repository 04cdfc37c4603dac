package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Cascade/internal/domain"
)

// Таймаут публикации одного события.
const eventPublishTimeout = 5 * time.Second

// EventPublisher публикует WorkflowUpdate в fanout exchange.
//
// Реализует интерфейс Broadcaster движка: выполнение узлов идёт в
// worker-процессах, а WebSocket hub живёт в API-процессе — события
// пересекают границу процессов через брокер.
//
// Доставка fire-and-forget: ошибка публикации логируется и не
// прерывает выполнение узла.
type EventPublisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewEventPublisher создаёт новый EventPublisher.
func NewEventPublisher(conn *Connection, logger *slog.Logger) *EventPublisher {
	return &EventPublisher{
		conn:   conn,
		logger: logger,
	}
}

// Broadcast публикует событие. Не блокирует дольше таймаута.
func (p *EventPublisher) Broadcast(update domain.WorkflowUpdate) {
	body, err := json.Marshal(update)
	if err != nil {
		p.logger.Error("failed to marshal workflow update", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventPublishTimeout)
	defer cancel()

	err = p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		return ch.PublishWithContext(
			ctx,
			string(ExchangeEvents),
			"", // fanout игнорирует routing key
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				Body:        body,
			},
		)
	})
	if err != nil {
		p.logger.Error("failed to publish workflow update",
			"workflow_id", update.WorkflowID,
			"status", update.Status,
			"error", err,
		)
	}
}

// EventSubscriber доставляет WorkflowUpdate из fanout exchange
// локальному получателю (WebSocket hub'у API-процесса).
//
// Каждый подписчик объявляет собственную эксклюзивную auto-delete
// очередь: события не переживают рестарт процесса, replay не нужен.
type EventSubscriber struct {
	conn    *Connection
	logger  *slog.Logger
	handler func(domain.WorkflowUpdate)
}

// NewEventSubscriber создаёт новый EventSubscriber.
func NewEventSubscriber(conn *Connection, logger *slog.Logger, handler func(domain.WorkflowUpdate)) *EventSubscriber {
	return &EventSubscriber{
		conn:    conn,
		logger:  logger,
		handler: handler,
	}
}

// Start потребляет события до отмены контекста.
func (s *EventSubscriber) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		deliveries, err := s.setupConsume()
		if err != nil {
			s.logger.Error("failed to subscribe to events", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.conn.ReconnectNotify():
				continue
			}
		}

		s.logger.Info("event subscriber started")

		if err := s.process(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("event stream closed, reconnecting")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.conn.ReconnectNotify():
				continue
			}
		}
	}
}

// setupConsume объявляет эксклюзивную очередь и привязывает её к fanout.
func (s *EventSubscriber) setupConsume() (<-chan amqp.Delivery, error) {
	ch := s.conn.Channel()
	if ch == nil {
		return nil, fmt.Errorf("no channel available")
	}

	queue, err := ch.QueueDeclare(
		"",    // auto-generated name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("declare event queue: %w", err)
	}

	if err := ch.QueueBind(queue.Name, "", string(ExchangeEvents), false, nil); err != nil {
		return nil, fmt.Errorf("bind event queue: %w", err)
	}

	deliveries, err := ch.Consume(
		queue.Name,
		"",   // consumer tag
		true, // auto-ack: потеря события не критична
		true, // exclusive
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("consume events: %w", err)
	}

	return deliveries, nil
}

// process передаёт события обработчику.
func (s *EventSubscriber) process(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("event stream closed")
			}

			var update domain.WorkflowUpdate
			if err := json.Unmarshal(raw.Body, &update); err != nil {
				s.logger.Error("failed to unmarshal workflow update", "error", err)
				continue
			}

			s.handler(update)
		}
	}
}
