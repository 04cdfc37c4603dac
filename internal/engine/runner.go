package engine

import (
	"context"
	"time"

	"github.com/shaiso/Cascade/internal/domain"
)

// Runner выполняет полезную работу узла.
//
// Движок не знает, что именно делает узел: он фиксирует состояние,
// рассылает события и обходит цепочку, а саму работу делегирует
// Runner'у. Это точка расширения для реальных интеграций.
type Runner interface {
	Run(ctx context.Context, wf *domain.Workflow, node *domain.Node) error
}

// Длительность имитируемой работы по умолчанию.
const defaultRunDelay = time.Second

// FixedDelayRunner имитирует работу узла фиксированной паузой.
// Используется как Runner по умолчанию.
type FixedDelayRunner struct {
	// Delay — длительность паузы (default: 1s).
	Delay time.Duration
}

// Run блокирует на Delay или до отмены контекста.
func (r *FixedDelayRunner) Run(ctx context.Context, _ *domain.Workflow, _ *domain.Node) error {
	delay := r.Delay
	if delay <= 0 {
		delay = defaultRunDelay
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

// RunnerFunc адаптирует функцию к интерфейсу Runner.
type RunnerFunc func(ctx context.Context, wf *domain.Workflow, node *domain.Node) error

// Run вызывает функцию.
func (f RunnerFunc) Run(ctx context.Context, wf *domain.Workflow, node *domain.Node) error {
	return f(ctx, wf, node)
}
