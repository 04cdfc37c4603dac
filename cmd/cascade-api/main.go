// Cascade API — HTTP API и broadcaster событий.
//
// Процесс обслуживает:
//   - REST API workflows (/api/v1/...)
//   - WebSocket поток событий (/ws)
//   - /healthz и /metrics
//
// Выполнение узлов идёт в worker-процессах; их события приходят
// сюда через fanout exchange и раздаются WebSocket-подписчикам.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Cascade/internal/api"
	"github.com/shaiso/Cascade/internal/events"
	"github.com/shaiso/Cascade/internal/mq"
	"github.com/shaiso/Cascade/internal/repo"
	"github.com/shaiso/Cascade/internal/telemetry"
)

var startTime = time.Now()

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting cascade-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

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

	// WebSocket hub и мост событий из worker-процессов
	hub := events.NewHub(logger)
	defer hub.Close()

	subscriber := mq.NewEventSubscriber(mqConn, logger, hub.Broadcast)
	go func() {
		if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("event subscriber stopped", "error", err)
		}
	}()

	eventsToken := os.Getenv("EVENTS_TOKEN")
	if eventsToken == "" {
		logger.Warn("EVENTS_TOKEN is not set, event stream accepts unauthenticated subscribers")
	}

	eventServer := events.NewServer(events.ServerConfig{
		Hub:      hub,
		Verifier: &events.StaticTokenVerifier{Token: eventsToken},
		Statuses: events.StatusFunc(func(ctx context.Context, workflowID int64) (string, error) {
			wf, err := workflowRepo.GetByID(ctx, workflowID)
			if err != nil {
				return "", err
			}
			return string(wf.Status), nil
		}),
		Logger: logger,
	})

	// Lifecycle-события идут через fanout: собственный subscriber
	// вернёт их в локальный hub, другие API-процессы получат копию
	handler := api.NewHandler(api.Config{
		WorkflowRepo: workflowRepo,
		StateRepo:    stateRepo,
		Enqueuer:     publisher,
		Broadcaster:  mq.NewEventPublisher(mqConn, logger),
		Logger:       logger,
	})

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/ws", eventServer)

	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("cascade-api stopped")
}
