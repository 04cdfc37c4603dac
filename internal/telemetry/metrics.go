package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики движка и инфраструктуры. Регистрируются в глобальном
// реестре Prometheus; экспорт — /metrics endpoint каждого сервиса.
var (
	// NodesExecuted — выполненные узлы по итоговому статусу
	// (completed/failed).
	NodesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cascade_nodes_executed_total",
		Help: "Node executions by terminal status",
	}, []string{"status"})

	// NodeExecutionDuration — длительность выполнения узла.
	NodeExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cascade_node_execution_seconds",
		Help:    "Node unit-of-work duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// JobRetries — повторные постановки jobs после ошибки.
	JobRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cascade_job_retries_total",
		Help: "Jobs re-enqueued after a failed attempt",
	})

	// JobsDropped — jobs, остановленные по достижении потолка retry.
	JobsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cascade_jobs_dropped_total",
		Help: "Jobs abandoned after exhausting retries",
	})

	// DelayedJobs — обработанные отложенные jobs.
	DelayedJobs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cascade_delayed_jobs_total",
		Help: "Delayed jobs processed by the scheduler",
	})

	// EventsPublished — события, разосланные подписчикам.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cascade_events_published_total",
		Help: "Workflow update events broadcast to subscribers",
	}, []string{"status"})

	// Subscribers — текущее число подключённых подписчиков.
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cascade_event_subscribers",
		Help: "Currently connected event stream subscribers",
	})
)
