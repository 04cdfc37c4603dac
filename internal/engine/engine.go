package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/repo"
	"github.com/shaiso/Cascade/internal/telemetry"
)

// GraphStore загружает workflow вместе с узлами.
type GraphStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Workflow, error)
}

// StateStore персистит записи ExecutionState.
type StateStore interface {
	Start(ctx context.Context, workflowID, nodeID int64) (*domain.ExecutionState, error)
	Complete(ctx context.Context, stateID int64) error
	Fail(ctx context.Context, stateID int64) error
}

// Broadcaster доставляет события живым подписчикам.
// Доставка fire-and-forget: ошибки рассылки выполнение не прерывают.
type Broadcaster interface {
	Broadcast(update domain.WorkflowUpdate)
}

// DelayedEnqueuer ставит отложенное выполнение узла в очередь.
// Задержку реализует потребитель очереди, а не движок.
type DelayedEnqueuer interface {
	PublishDelayed(ctx context.Context, workflowID, nodeID int64, delay time.Duration) error
}

// Engine выполняет цепочки узлов workflow.
//
// Для каждого узла движок:
//  1. Создаёт запись ExecutionState (in_progress) и рассылает событие.
//  2. Выполняет полезную работу через Runner.
//  3. Закрывает запись терминальным статусом и рассылает событие.
//  4. Переходит к преемнику из разрешённой NodeSpec.
//
// Цепочка обходится итеративно со списком посещённых узлов: ссылки
// преемников слабые и могут образовывать цикл — повторное попадание
// в выполненный узел прерывает обход с ErrCycleDetected.
//
// Wait-узлы в цепочке не выполняются инлайн: при встрече wait-преемника
// движок ставит delayed job и завершает текущий проход. Отложенный job
// после истечения задержки вызывает ExecuteNode уже на самом wait-узле.
type Engine struct {
	graphs      GraphStore
	states      StateStore
	broadcaster Broadcaster
	delayed     DelayedEnqueuer
	runner      Runner
	logger      *slog.Logger
}

// Config — конфигурация Engine.
type Config struct {
	// Graphs — загрузка workflows (обязательно).
	Graphs GraphStore

	// States — персистенция ExecutionState (обязательно).
	States StateStore

	// Broadcaster — рассылка событий (опционально; если nil — события
	// отбрасываются).
	Broadcaster Broadcaster

	// Delayed — постановка отложенных jobs (обязательно, если
	// workflows содержат wait-узлы).
	Delayed DelayedEnqueuer

	// Runner — полезная работа узла (опционально; если nil —
	// используется FixedDelayRunner).
	Runner Runner

	// Logger — логгер (опционально; если nil — slog.Default()).
	Logger *slog.Logger
}

// New создаёт новый Engine.
func New(cfg Config) *Engine {
	runner := cfg.Runner
	if runner == nil {
		runner = &FixedDelayRunner{}
	}

	broadcaster := cfg.Broadcaster
	if broadcaster == nil {
		broadcaster = nopBroadcaster{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		graphs:      cfg.Graphs,
		states:      cfg.States,
		broadcaster: broadcaster,
		delayed:     cfg.Delayed,
		runner:      runner,
		logger:      logger,
	}
}

// ExecuteNode выполняет узел и далее всю цепочку его преемников.
//
// attempt — номер попытки из очереди (0 для первой); влияет только
// на логирование, политика retry живёт на уровне worker'а.
//
// Возвращает repo.ErrNotFound, если workflow или узел не существуют,
// ErrCycleDetected при цикле в цепочке, ErrExecutionFailed (внутри
// ExecutionError) при ошибке полезной работы.
func (e *Engine) ExecuteNode(ctx context.Context, workflowID, nodeID int64, attempt int) error {
	wf, err := e.graphs.GetByID(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("load workflow %d: %w", workflowID, err)
	}

	current, ok := wf.FindNode(nodeID)
	if !ok {
		return fmt.Errorf("workflow %d: node %d: %w", workflowID, nodeID, repo.ErrNotFound)
	}

	visited := make(map[int64]bool)

	for {
		if visited[current.ID] {
			return &ExecutionError{
				WorkflowID: wf.ID,
				NodeID:     current.ID,
				Err:        ErrCycleDetected,
			}
		}
		visited[current.ID] = true

		spec, err := current.ResolveSpec()
		if err != nil {
			return fmt.Errorf("resolve node spec: %w", err)
		}

		if err := e.runNode(ctx, wf, current, attempt); err != nil {
			return err
		}

		if spec.Next == nil {
			// Конец цепочки.
			return nil
		}

		next, ok := wf.FindNode(*spec.Next)
		if !ok {
			return fmt.Errorf("workflow %d: next node %d: %w", wf.ID, *spec.Next, repo.ErrNotFound)
		}

		if next.Type == domain.NodeTypeWait {
			return e.scheduleWait(ctx, wf, next)
		}

		current = next
	}
}

// ExecuteNextNode выполняет позиционного преемника узла — следующий
// узел в порядке вставки, независимо от настроенных ссылок. Если узел
// не найден или последний в списке, молча логирует и ничего не делает.
func (e *Engine) ExecuteNextNode(ctx context.Context, workflowID, nodeID int64, attempt int) error {
	wf, err := e.graphs.GetByID(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("load workflow %d: %w", workflowID, err)
	}

	next, ok := wf.NodeAfter(nodeID)
	if !ok {
		telemetry.WithWorkflowID(e.logger, wf.ID).Info("no next node to execute",
			"node_id", nodeID,
		)
		return nil
	}

	return e.ExecuteNode(ctx, workflowID, next.ID, attempt)
}

// ExecuteParallelNodes выполняет несколько цепочек конкурентно.
//
// Всегда дожидается завершения всех веток: ошибка одной ветки не
// отменяет остальные. Возвращает объединённую ошибку всех
// провалившихся веток.
func (e *Engine) ExecuteParallelNodes(ctx context.Context, workflowID int64, nodeIDs []int64, attempt int) error {
	var wg sync.WaitGroup
	errs := make([]error, len(nodeIDs))

	for i, nodeID := range nodeIDs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = e.ExecuteNode(ctx, workflowID, nodeID, attempt)
		}()
	}

	wg.Wait()
	return errors.Join(errs...)
}

// runNode выполняет один узел: запись состояния, события, работа.
func (e *Engine) runNode(ctx context.Context, wf *domain.Workflow, node *domain.Node, attempt int) error {
	logger := telemetry.WithNodeID(telemetry.WithWorkflowID(e.logger, wf.ID), node.ID)

	state, err := e.states.Start(ctx, wf.ID, node.ID)
	if err != nil {
		return fmt.Errorf("start execution state: %w", err)
	}

	e.broadcast(wf, node, domain.EventStatusInProgress, "")
	logger.Info("node execution started",
		"node_name", node.DisplayName(),
		"node_type", node.Type,
		"attempt", attempt,
	)

	started := time.Now()
	runErr := e.runner.Run(ctx, wf, node)
	telemetry.NodeExecutionDuration.Observe(time.Since(started).Seconds())

	if runErr != nil {
		state.MarkFailed()
		if err := e.states.Fail(ctx, state.ID); err != nil {
			logger.Error("failed to mark execution state failed", "error", err)
		}
		e.broadcast(wf, node, domain.EventStatusFailed, runErr.Error())
		telemetry.NodesExecuted.WithLabelValues(domain.EventStatusFailed).Inc()
		logger.Error("node execution failed", "attempt", attempt, "error", runErr)

		return &ExecutionError{
			WorkflowID: wf.ID,
			NodeID:     node.ID,
			Err:        errors.Join(ErrExecutionFailed, runErr),
		}
	}

	state.MarkCompleted()
	if err := e.states.Complete(ctx, state.ID); err != nil {
		return fmt.Errorf("complete execution state: %w", err)
	}

	e.broadcast(wf, node, domain.EventStatusCompleted, "")
	telemetry.NodesExecuted.WithLabelValues(domain.EventStatusCompleted).Inc()
	logger.Info("node executed", "duration", state.CompletedAt.Sub(state.StartedAt))

	return nil
}

// scheduleWait ставит delayed job для wait-узла и завершает проход.
func (e *Engine) scheduleWait(ctx context.Context, wf *domain.Workflow, node *domain.Node) error {
	if e.delayed == nil {
		return fmt.Errorf("%w: delayed enqueuer", ErrNotConfigured)
	}

	spec, err := node.ResolveSpec()
	if err != nil {
		return fmt.Errorf("resolve wait node spec: %w", err)
	}

	if err := e.delayed.PublishDelayed(ctx, wf.ID, node.ID, spec.Wait.Delay); err != nil {
		return fmt.Errorf("enqueue delayed node %d: %w", node.ID, err)
	}

	telemetry.WithNodeID(telemetry.WithWorkflowID(e.logger, wf.ID), node.ID).Info(
		"wait node scheduled",
		"delay", spec.Wait.Delay,
	)
	return nil
}

// broadcast рассылает событие выполнения узла.
func (e *Engine) broadcast(wf *domain.Workflow, node *domain.Node, status, message string) {
	update := domain.NewWorkflowUpdate(wf.ID, &node.ID, status)
	update.WorkflowName = wf.Name
	update.NodeName = node.DisplayName()
	update.Message = message
	e.broadcaster.Broadcast(update)
}

// nopBroadcaster отбрасывает события.
type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(domain.WorkflowUpdate) {}
