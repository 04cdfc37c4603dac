package domain

import (
	"time"
)

// ExecutionStatus — статус одной попытки выполнения узла.
//
// Жизненный цикл:
//
//	pending → in_progress → completed
//	                      ↘ failed
//
// Терминальные статусы финальны — дальнейшие переходы запрещены.
type ExecutionStatus string

const (
	// ExecutionStatusPending — запись создана, выполнение не началось.
	ExecutionStatusPending ExecutionStatus = "pending"

	// ExecutionStatusInProgress — узел выполняется.
	ExecutionStatusInProgress ExecutionStatus = "in_progress"

	// ExecutionStatusCompleted — узел успешно завершён.
	ExecutionStatusCompleted ExecutionStatus = "completed"

	// ExecutionStatusFailed — выполнение узла завершилось ошибкой.
	ExecutionStatusFailed ExecutionStatus = "failed"
)

// IsTerminal возвращает true, если статус финальный.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed:
		return true
	default:
		return false
	}
}

// ExecutionState — персистентная запись одной попытки выполнить узел.
//
// Создаётся когда узел начинает выполняться, переводится в
// completed/failed при завершении. Записи не удаляются по одной —
// только каскадно вместе с родительским workflow. Для одного узла
// может существовать несколько записей (повторные запуски);
// авторитетна последняя по StartedAt.
type ExecutionState struct {
	// ID — уникальный идентификатор записи.
	ID int64 `json:"id"`

	// WorkflowID — ссылка на workflow.
	WorkflowID int64 `json:"workflow_id"`

	// NodeID — ссылка на узел.
	NodeID int64 `json:"node_id"`

	// StartedAt — время начала выполнения.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt — время завершения. Nil, пока выполнение идёт.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Status — текущий статус попытки.
	Status ExecutionStatus `json:"status"`
}

// MarkCompleted переводит запись в completed.
func (s *ExecutionState) MarkCompleted() {
	now := time.Now()
	s.Status = ExecutionStatusCompleted
	s.CompletedAt = &now
}

// MarkFailed переводит запись в failed.
func (s *ExecutionState) MarkFailed() {
	now := time.Now()
	s.Status = ExecutionStatusFailed
	s.CompletedAt = &now
}
