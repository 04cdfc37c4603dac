package runners

import (
	"context"
	"fmt"

	"github.com/shaiso/Cascade/internal/domain"
)

// Fallback выполняет узлы без действия в конфигурации.
// Сигнатура совпадает с Runner движка.
type Fallback interface {
	Run(ctx context.Context, wf *domain.Workflow, node *domain.Node) error
}

// Dispatcher выбирает действие узла по configuration.action и
// делегирует выполнение зарегистрированному Handler'у.
//
// Узел без действия уходит в Fallback (имитация работы). Незнакомое
// действие — ошибка конфигурации, узел проходит обычный путь ретраев.
type Dispatcher struct {
	registry *Registry
	fallback Fallback
}

// NewDispatcher создаёт диспетчер действий.
func NewDispatcher(registry *Registry, fallback Fallback) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		fallback: fallback,
	}
}

// Run выполняет полезную работу узла.
func (d *Dispatcher) Run(ctx context.Context, wf *domain.Workflow, node *domain.Node) error {
	action := GetConfigString(node.Configuration, "action")
	if action == "" {
		return d.fallback.Run(ctx, wf, node)
	}

	handler, err := d.registry.Get(action)
	if err != nil {
		return fmt.Errorf("node %d: %w", node.ID, err)
	}

	return handler.Run(ctx, &Request{
		WorkflowID: wf.ID,
		NodeID:     node.ID,
		Config:     node.Configuration,
	})
}
