package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// JobType — тип job в очереди.
type JobType string

// Типы jobs.
const (
	// JobTypeExecute — немедленное выполнение узла.
	JobTypeExecute JobType = "execute-task"

	// JobTypeDelayed — выполнение узла после задержки.
	JobTypeDelayed JobType = "delayed-task"
)

// Job — единица диспетчеризации в очереди.
//
// Несёт идентификаторы workflow/узла и метаданные retry. Счётчик
// попыток ведёт очередь: при re-enqueue воркер инкрементирует
// Attempt, движок получает его как явный аргумент.
type Job struct {
	// ID — уникальный идентификатор job (для дедупликации в логах).
	ID string `json:"id"`

	// Type — тип job.
	Type JobType `json:"type"`

	// WorkflowID — workflow, узел которого нужно выполнить.
	WorkflowID int64 `json:"workflowId"`

	// NodeID — узел для выполнения.
	NodeID int64 `json:"nodeId"`

	// Attempt — число уже сделанных попыток (0 для первой постановки).
	Attempt int `json:"attemptsMade"`

	// Delay — задержка перед выполнением в миллисекундах
	// (только для JobTypeDelayed).
	Delay int64 `json:"delay,omitempty"`

	// Timestamp — время постановки в очередь.
	Timestamp time.Time `json:"timestamp"`
}

// Publisher публикует jobs в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// PublishExecute ставит в очередь немедленное выполнение узла.
// attempt — число уже сделанных попыток (0 для первой постановки).
func (p *Publisher) PublishExecute(ctx context.Context, workflowID, nodeID int64, attempt int) error {
	job := &Job{
		ID:         uuid.New().String(),
		Type:       JobTypeExecute,
		WorkflowID: workflowID,
		NodeID:     nodeID,
		Attempt:    attempt,
		Timestamp:  time.Now(),
	}

	return p.publish(ctx, RoutingKeyExecute, job)
}

// PublishDelayed ставит в очередь отложенное выполнение узла.
// Задержку реализует потребитель очереди jobs.delayed (Scheduler).
func (p *Publisher) PublishDelayed(ctx context.Context, workflowID, nodeID int64, delay time.Duration) error {
	job := &Job{
		ID:         uuid.New().String(),
		Type:       JobTypeDelayed,
		WorkflowID: workflowID,
		NodeID:     nodeID,
		Delay:      delay.Milliseconds(),
		Timestamp:  time.Now(),
	}

	return p.publish(ctx, RoutingKeyDelayed, job)
}

// publish сериализует job и публикует его durable-сообщением.
func (p *Publisher) publish(ctx context.Context, routingKey RoutingKey, job *Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(ExchangeJobs),
			string(routingKey),
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // job переживёт рестарт RabbitMQ
				MessageId:    job.ID,
				Timestamp:    job.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", ExchangeJobs, routingKey, err)
		}

		p.logger.Debug("published job",
			"routing_key", routingKey,
			"job_id", job.ID,
			"type", job.Type,
			"workflow_id", job.WorkflowID,
			"node_id", job.NodeID,
			"attempt", job.Attempt,
		)

		return nil
	})
}
