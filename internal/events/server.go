package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shaiso/Cascade/internal/repo"
)

// StatusProvider отвечает на синхронный запрос workflow-status.
type StatusProvider interface {
	WorkflowStatus(ctx context.Context, workflowID int64) (string, error)
}

// StatusFunc адаптирует функцию к интерфейсу StatusProvider.
type StatusFunc func(ctx context.Context, workflowID int64) (string, error)

// WorkflowStatus вызывает функцию.
func (f StatusFunc) WorkflowStatus(ctx context.Context, workflowID int64) (string, error) {
	return f(ctx, workflowID)
}

// statusQuery — входящий запрос подписчика.
type statusQuery struct {
	Type       string `json:"type"`
	WorkflowID int64  `json:"workflowId"`
}

// statusReply — ответ на workflow-status.
type statusReply struct {
	WorkflowID int64  `json:"workflowId"`
	Status     string `json:"status"`
}

// Server принимает WebSocket-подключения подписчиков.
//
// Подключение проходит проверку bearer-токена до upgrade: провал
// закрывает соединение сразу со статусом 401. После upgrade подписчик
// получает все события Broadcast и может задавать синхронные запросы
// workflow-status.
type Server struct {
	hub      *Hub
	verifier TokenVerifier
	statuses StatusProvider
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// ServerConfig — конфигурация Server.
type ServerConfig struct {
	// Hub — реестр подписчиков (обязательно).
	Hub *Hub

	// Verifier — проверка токена (опционально; nil принимает всех).
	Verifier TokenVerifier

	// Statuses — ответы на workflow-status (опционально).
	Statuses StatusProvider

	// Logger — логгер.
	Logger *slog.Logger
}

// NewServer создаёт новый Server.
func NewServer(cfg ServerConfig) *Server {
	verifier := cfg.Verifier
	if verifier == nil {
		verifier = &StaticTokenVerifier{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		hub:      cfg.Hub,
		verifier: verifier,
		statuses: cfg.Statuses,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Подписчики — браузерные клиенты с других origin'ов
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP реализует http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := s.verifier.Verify(bearerToken(r)); err != nil {
		s.logger.Warn("subscriber rejected", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "authentication rejected", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newClient(conn)
	s.hub.register(c)

	// Контекст запроса гаснет при возврате из ServeHTTP, а соединение
	// живёт дальше
	go c.writePump()
	go s.readPump(context.WithoutCancel(r.Context()), c)
}

// readPump читает входящие запросы подписчика до закрытия соединения.
func (s *Server) readPump(ctx context.Context, c *client) {
	defer s.hub.unregister(c)

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("subscriber read failed", "remote", c.remote, "error", err)
			}
			return
		}

		s.handleQuery(ctx, c, payload)
	}
}

// handleQuery обрабатывает один входящий запрос.
func (s *Server) handleQuery(ctx context.Context, c *client, payload []byte) {
	var query statusQuery
	if err := json.Unmarshal(payload, &query); err != nil {
		s.reply(c, Envelope{Type: "error", Data: "malformed query"})
		return
	}

	switch query.Type {
	case "workflow-status":
		s.replyStatus(ctx, c, query.WorkflowID)
	default:
		s.reply(c, Envelope{Type: "error", Data: "unknown query type"})
	}
}

// replyStatus отвечает на запрос workflow-status.
func (s *Server) replyStatus(ctx context.Context, c *client, workflowID int64) {
	if s.statuses == nil {
		s.reply(c, Envelope{Type: "error", Data: "status queries not supported"})
		return
	}

	status, err := s.statuses.WorkflowStatus(ctx, workflowID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.reply(c, Envelope{Type: "error", Data: "workflow not found"})
			return
		}
		s.logger.Error("status query failed", "workflow_id", workflowID, "error", err)
		s.reply(c, Envelope{Type: "error", Data: "internal error"})
		return
	}

	s.reply(c, Envelope{
		Type: "workflow-status",
		Data: statusReply{WorkflowID: workflowID, Status: status},
	})
}

// reply отправляет ответ одному подписчику.
func (s *Server) reply(c *client, envelope Envelope) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		s.logger.Error("failed to marshal reply", "error", err)
		return
	}
	if !c.trySend(payload) {
		s.hub.unregister(c)
	}
}
