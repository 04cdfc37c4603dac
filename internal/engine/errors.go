package engine

import (
	"errors"
	"fmt"
)

// Ошибки выполнения цепочки узлов.
var (
	// ErrExecutionFailed — полезная работа узла завершилась ошибкой.
	ErrExecutionFailed = errors.New("node execution failed")

	// ErrCycleDetected — цепочка преемников вернулась к уже
	// выполненному узлу.
	ErrCycleDetected = errors.New("cycle detected in successor chain")

	// ErrNotConfigured — движку не передан обязательный коллаборатор.
	ErrNotConfigured = errors.New("engine collaborator not configured")
)

// ExecutionError — ошибка выполнения с контекстом узла.
type ExecutionError struct {
	WorkflowID int64 // workflow, в котором произошла ошибка
	NodeID     int64 // узел, на котором остановилось выполнение
	Err        error // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("workflow %d: node %d: %v", e.WorkflowID, e.NodeID, e.Err)
}

// Unwrap возвращает базовую ошибку для errors.Is/As.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}
