package events

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/telemetry"
)

// Размер исходящего буфера подписчика. Подписчик, не успевающий
// вычитывать буфер, отключается, чтобы не блокировать рассылку.
const clientSendBuffer = 64

// Envelope — конверт исходящего сообщения.
type Envelope struct {
	// Type — тип сообщения (workflow-update, workflow-status, error).
	Type string `json:"type"`

	// Data — полезная нагрузка.
	Data any `json:"data,omitempty"`
}

// Hub ведёт реестр живых подписчиков и рассылает им события.
//
// Рассылка fire-and-forget: без replay, без фильтрации по workflow,
// без подтверждений. Подписчики, отключившиеся или не успевающие
// читать, молча удаляются из реестра.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
	logger  *slog.Logger
}

// NewHub создаёт новый Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*client]bool),
		logger:  logger,
	}
}

// Broadcast рассылает событие всем подписчикам.
func (h *Hub) Broadcast(update domain.WorkflowUpdate) {
	payload, err := json.Marshal(Envelope{Type: "workflow-update", Data: update})
	if err != nil {
		h.logger.Error("failed to marshal workflow update", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.trySend(payload) {
			// Подписчик не успевает: отключаем
			h.logger.Warn("dropping slow subscriber", "remote", c.remote)
			h.unregister(c)
		}
	}

	telemetry.EventsPublished.WithLabelValues(update.Status).Inc()
	h.logger.Debug("event broadcast",
		"workflow_id", update.WorkflowID,
		"status", update.Status,
		"subscribers", len(clients),
	)
}

// Subscribers возвращает число подключённых подписчиков.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close отключает всех подписчиков.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]bool)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	telemetry.Subscribers.Set(0)
}

// register добавляет подписчика в реестр.
func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()

	telemetry.Subscribers.Set(float64(count))
	h.logger.Info("subscriber connected", "remote", c.remote, "subscribers", count)
}

// unregister удаляет подписчика и закрывает его соединение.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	c.close()
	telemetry.Subscribers.Set(float64(count))
	h.logger.Info("subscriber disconnected", "remote", c.remote, "subscribers", count)
}
