package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shaiso/Cascade/internal/engine"
	"github.com/shaiso/Cascade/internal/mq"
	"github.com/shaiso/Cascade/internal/repo"
	"github.com/shaiso/Cascade/internal/telemetry"
)

// Default configuration values.
const (
	defaultMaxRetries = 3
	defaultPrefetch   = 5
)

// Executor выполняет узел workflow. Реализуется engine.Engine.
type Executor interface {
	ExecuteNode(ctx context.Context, workflowID, nodeID int64, attempt int) error
}

// Enqueuer повторно ставит job в очередь. Реализуется mq.Publisher.
type Enqueuer interface {
	PublishExecute(ctx context.Context, workflowID, nodeID int64, attempt int) error
}

// Worker потребляет jobs немедленного выполнения.
//
// Worker — stateless компонент системы, который:
//   - Получает jobs из очереди jobs.execute (event-driven)
//   - Вызывает движок с номером попытки из payload'а
//   - Реализует retry: ошибка выполнения ведёт к re-enqueue с
//     инкрементированным счётчиком, пока attempt < maxRetries
//   - По достижении потолка логирует провал терминально и гасит job
//
// Ошибки repo.ErrNotFound и engine.ErrCycleDetected постоянны: retry
// их не исправит, job гасится сразу.
//
// Workers масштабируются горизонтально — несколько экземпляров
// могут потреблять из одной очереди.
type Worker struct {
	executor Executor
	enqueuer Enqueuer

	consumer *mq.Consumer

	maxRetries int

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Worker.
type Config struct {
	// Executor — движок выполнения (обязательно).
	Executor Executor

	// Enqueuer — публикация retry jobs (обязательно).
	Enqueuer Enqueuer

	// Conn — соединение с RabbitMQ.
	Conn *mq.Connection

	// MaxRetries — потолок повторных попыток (default: 3).
	// Суммарно job выполняется не более MaxRetries+1 раз.
	MaxRetries int

	// Prefetch — степень параллелизма consumer'а (default: 5).
	Prefetch int

	// Logger — логгер.
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Worker{
		executor:   cfg.Executor,
		enqueuer:   cfg.Enqueuer,
		maxRetries: maxRetries,
		logger:     logger,
	}

	if cfg.Conn != nil {
		w.consumer = mq.NewConsumer(cfg.Conn, logger, mq.ConsumerConfig{
			Queue:    mq.QueueJobsExecute,
			Handler:  w.handleJob,
			Prefetch: prefetch,
		})
	}

	return w
}

// Start запускает потребление очереди jobs.execute.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("worker starting", "max_retries", w.maxRetries)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("consumer stopped", "error", err)
		}
	}()

	return nil
}

// Stop останавливает Worker и дожидается завершения текущих jobs.
func (w *Worker) Stop() {
	w.logger.Info("worker stopping")
	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

// handleJob обрабатывает один job из очереди.
//
// Возвращаемая ошибка означает инфраструктурный сбой (job вернётся в
// очередь средствами consumer'а). Ошибки выполнения обрабатываются
// здесь же через политику retry и наружу не выходят.
func (w *Worker) handleJob(ctx context.Context, delivery *mq.Delivery) error {
	job := delivery.Job
	logger := telemetry.WithJobID(
		telemetry.WithNodeID(telemetry.WithWorkflowID(w.logger, job.WorkflowID), job.NodeID),
		job.ID,
	)

	err := w.executor.ExecuteNode(ctx, job.WorkflowID, job.NodeID, job.Attempt)
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		// Останов во время выполнения: вернуть job в очередь
		return ctx.Err()
	}

	if isPermanent(err) {
		logger.Error("job failed permanently", "attempt", job.Attempt, "error", err)
		return nil
	}

	if job.Attempt < w.maxRetries {
		logger.Warn("job failed, re-enqueueing",
			"attempt", job.Attempt,
			"max_retries", w.maxRetries,
			"error", err,
		)
		telemetry.JobRetries.Inc()

		if err := w.enqueuer.PublishExecute(ctx, job.WorkflowID, job.NodeID, job.Attempt+1); err != nil {
			// Не смогли поставить retry: вернуть исходный job в очередь
			return err
		}
		return nil
	}

	telemetry.JobsDropped.Inc()
	logger.Error("job failed after exhausting retries",
		"attempt", job.Attempt,
		"max_retries", w.maxRetries,
		"error", err,
	)
	return nil
}

// isPermanent сообщает, что retry ошибку не исправит.
func isPermanent(err error) bool {
	return errors.Is(err, repo.ErrNotFound) || errors.Is(err, engine.ErrCycleDetected)
}
