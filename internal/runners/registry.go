package runners

import (
	"fmt"
	"sort"
	"sync"
)

// Registry — реестр действий узлов.
//
// Позволяет регистрировать и получать реализации Handler по имени
// действия. Потокобезопасен.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// DefaultRegistry создаёт реестр со стандартными действиями.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(NewDelayHandler())
	r.Register(NewHTTPHandler())

	return r
}

// Register регистрирует действие в реестре.
// Если действие с таким именем уже существует, оно перезаписывается.
func (r *Registry) Register(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[handler.Action()] = handler
}

// Get возвращает действие по имени.
// Возвращает ErrActionNotFound, если действие не зарегистрировано.
func (r *Registry) Get(action string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, exists := r.handlers[action]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrActionNotFound, action)
	}

	return handler, nil
}

// Has проверяет, зарегистрировано ли действие.
func (r *Registry) Has(action string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[action]
	return exists
}

// Actions возвращает список всех зарегистрированных действий.
func (r *Registry) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	actions := make([]string, 0, len(r.handlers))
	for action := range r.handlers {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	return actions
}
