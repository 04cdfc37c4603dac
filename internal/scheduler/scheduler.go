package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Cascade/internal/engine"
	"github.com/shaiso/Cascade/internal/mq"
	"github.com/shaiso/Cascade/internal/repo"
	"github.com/shaiso/Cascade/internal/telemetry"
)

// Default configuration values.
const defaultPrefetch = 10

// Executor выполняет узел workflow. Реализуется engine.Engine.
type Executor interface {
	ExecuteNode(ctx context.Context, workflowID, nodeID int64, attempt int) error
}

// Enqueuer ставит execute job в очередь. Реализуется mq.Publisher.
type Enqueuer interface {
	PublishExecute(ctx context.Context, workflowID, nodeID int64, attempt int) error
}

// Scheduler реализует задержку wait-узлов.
//
// Потребляет очередь jobs.delayed: для каждого job приостанавливает
// только обрабатывающий его слот consumer'а на job.Delay миллисекунд,
// затем вызывает движок на самом wait-узле. Delay к этому моменту уже
// реализован, поэтому узел выполняется инлайн вместе с цепочкой
// преемников.
//
// Ошибки выполнения после задержки не ждут заново: retry уходит в
// очередь немедленного выполнения с инкрементированным счётчиком
// попыток, дальше действует политика worker'а.
type Scheduler struct {
	executor Executor
	enqueuer Enqueuer

	consumer *mq.Consumer

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Scheduler.
type Config struct {
	// Executor — движок выполнения (обязательно).
	Executor Executor

	// Enqueuer — публикация retry jobs (обязательно).
	Enqueuer Enqueuer

	// Conn — соединение с RabbitMQ.
	Conn *mq.Connection

	// Prefetch — сколько delayed jobs ждут одновременно (default: 10).
	// Каждый ожидающий job занимает слот consumer'а на всю задержку.
	Prefetch int

	// Logger — логгер.
	Logger *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		executor: cfg.Executor,
		enqueuer: cfg.Enqueuer,
		logger:   logger,
	}

	if cfg.Conn != nil {
		s.consumer = mq.NewConsumer(cfg.Conn, logger, mq.ConsumerConfig{
			Queue:    mq.QueueJobsDelayed,
			Handler:  s.handleJob,
			Prefetch: prefetch,
		})
	}

	return s
}

// Start запускает потребление очереди jobs.delayed.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	s.logger.Info("scheduler starting")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("consumer stopped", "error", err)
		}
	}()

	return nil
}

// Stop останавливает Scheduler.
//
// Ожидающие jobs возвращаются в очередь (без ack) и после рестарта
// отрабатывают задержку заново.
func (s *Scheduler) Stop() {
	s.logger.Info("scheduler stopping")
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// handleJob ждёт задержку и выполняет wait-узел.
func (s *Scheduler) handleJob(ctx context.Context, delivery *mq.Delivery) error {
	job := delivery.Job
	logger := telemetry.WithJobID(
		telemetry.WithNodeID(telemetry.WithWorkflowID(s.logger, job.WorkflowID), job.NodeID),
		job.ID,
	)

	delay := time.Duration(job.Delay) * time.Millisecond
	logger.Info("delayed job received", "delay", delay)

	if err := sleep(ctx, delay); err != nil {
		// Останов во время ожидания: вернуть job в очередь
		return err
	}

	telemetry.DelayedJobs.Inc()

	err := s.executor.ExecuteNode(ctx, job.WorkflowID, job.NodeID, job.Attempt)
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if isPermanent(err) {
		logger.Error("delayed job failed permanently", "error", err)
		return nil
	}

	logger.Warn("delayed job failed, re-enqueueing for immediate retry", "error", err)
	telemetry.JobRetries.Inc()

	if err := s.enqueuer.PublishExecute(ctx, job.WorkflowID, job.NodeID, job.Attempt+1); err != nil {
		return err
	}
	return nil
}

// sleep блокирует на delay или до отмены контекста.
func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isPermanent сообщает, что retry ошибку не исправит.
func isPermanent(err error) bool {
	return errors.Is(err, repo.ErrNotFound) || errors.Is(err, engine.ErrCycleDetected)
}
