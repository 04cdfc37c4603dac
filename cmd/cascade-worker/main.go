// Cascade Worker — выполняет цепочки узлов workflow.
//
// Процесс объединяет worker pool (очередь jobs.execute) и scheduler
// (очередь jobs.delayed, задержки wait-узлов). События выполнения
// публикуются в fanout exchange и доходят до WebSocket-подписчиков
// через API-процесс.
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Cascade/internal/engine"
	"github.com/shaiso/Cascade/internal/mq"
	"github.com/shaiso/Cascade/internal/repo"
	"github.com/shaiso/Cascade/internal/runners"
	"github.com/shaiso/Cascade/internal/scheduler"
	"github.com/shaiso/Cascade/internal/telemetry"
	"github.com/shaiso/Cascade/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting cascade-worker")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	workflowRepo := repo.NewWorkflowRepo(pool)
	stateRepo := repo.NewStateRepo(pool)

	// RabbitMQ
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}
	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}

	publisher := mq.NewPublisher(mqConn, logger)

	// Движок: действия узлов через registry, события в fanout exchange
	eng := engine.New(engine.Config{
		Graphs:      workflowRepo,
		States:      stateRepo,
		Runner:      runners.NewDispatcher(runners.DefaultRegistry(), &engine.FixedDelayRunner{}),
		Broadcaster: mq.NewEventPublisher(mqConn, logger),
		Delayed:     publisher,
		Logger:      logger,
	})

	// Worker pool
	w := worker.New(worker.Config{
		Executor:   eng,
		Enqueuer:   publisher,
		Conn:       mqConn,
		MaxRetries: envInt("MAX_RETRIES", 0),
		Prefetch:   envInt("WORKER_PREFETCH", 0),
		Logger:     logger,
	})
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// Scheduler для wait-узлов
	sched := scheduler.New(scheduler.Config{
		Executor: eng,
		Enqueuer: publisher,
		Conn:     mqConn,
		Prefetch: envInt("SCHEDULER_PREFETCH", 0),
		Logger:   logger,
	})
	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("WORKER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	sched.Stop()
	w.Stop()
	logger.Info("cascade-worker stopped")
}

// envInt читает целочисленную переменную окружения, 0 — не задана.
func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
