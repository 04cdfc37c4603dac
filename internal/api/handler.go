package api

import (
	"context"
	"log/slog"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/repo"
)

// Enqueuer ставит execute jobs в очередь. Реализуется mq.Publisher.
type Enqueuer interface {
	PublishExecute(ctx context.Context, workflowID, nodeID int64, attempt int) error
}

// Broadcaster рассылает события жизненного цикла. Реализуется events.Hub.
type Broadcaster interface {
	Broadcast(update domain.WorkflowUpdate)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	workflowRepo *repo.WorkflowRepo
	stateRepo    *repo.StateRepo
	enqueuer     Enqueuer
	broadcaster  Broadcaster
	logger       *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	WorkflowRepo *repo.WorkflowRepo
	StateRepo    *repo.StateRepo
	Enqueuer     Enqueuer
	Broadcaster  Broadcaster
	Logger       *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	broadcaster := cfg.Broadcaster
	if broadcaster == nil {
		broadcaster = nopBroadcaster{}
	}

	return &Handler{
		workflowRepo: cfg.WorkflowRepo,
		stateRepo:    cfg.StateRepo,
		enqueuer:     cfg.Enqueuer,
		broadcaster:  broadcaster,
		logger:       cfg.Logger,
	}
}

// nopBroadcaster отбрасывает события.
type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(domain.WorkflowUpdate) {}
