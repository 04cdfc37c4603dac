package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Cascade/internal/domain"
)

// StateRepo — репозиторий записей ExecutionState.
//
// Записи создаются при старте выполнения узла и переводятся в
// терминальный статус при завершении. Терминальные статусы финальны:
// Complete/Fail применяются только к записи в in_progress.
type StateRepo struct {
	pool *pgxpool.Pool
}

// NewStateRepo создаёт новый StateRepo.
func NewStateRepo(pool *pgxpool.Pool) *StateRepo {
	return &StateRepo{pool: pool}
}

// Start создаёт запись о начале выполнения узла (in_progress).
func (r *StateRepo) Start(ctx context.Context, workflowID, nodeID int64) (*domain.ExecutionState, error) {
	query := `
		INSERT INTO execution_states (workflow_id, node_id, started_at, status)
		VALUES ($1, $2, NOW(), $3)
		RETURNING id, workflow_id, node_id, started_at, completed_at, status
	`
	var state domain.ExecutionState
	err := r.pool.QueryRow(ctx, query, workflowID, nodeID, domain.ExecutionStatusInProgress).Scan(
		&state.ID,
		&state.WorkflowID,
		&state.NodeID,
		&state.StartedAt,
		&state.CompletedAt,
		&state.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("insert execution state: %w", err)
	}
	return &state, nil
}

// Complete переводит запись в completed.
func (r *StateRepo) Complete(ctx context.Context, stateID int64) error {
	return r.finish(ctx, stateID, domain.ExecutionStatusCompleted)
}

// Fail переводит запись в failed.
func (r *StateRepo) Fail(ctx context.Context, stateID int64) error {
	return r.finish(ctx, stateID, domain.ExecutionStatusFailed)
}

// finish закрывает запись терминальным статусом.
// Возвращает ErrInvalidState, если запись уже терминальна.
func (r *StateRepo) finish(ctx context.Context, stateID int64, status domain.ExecutionStatus) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE execution_states
		SET status = $2, completed_at = NOW()
		WHERE id = $1 AND status = $3
	`, stateID, status, domain.ExecutionStatusInProgress)
	if err != nil {
		return fmt.Errorf("finish execution state: %w", err)
	}
	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM execution_states WHERE id = $1)`, stateID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check execution state: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return fmt.Errorf("%w: execution state %d is terminal", ErrInvalidState, stateID)
	}
	return nil
}

// Latest возвращает последнюю по started_at запись для пары
// (workflow, node) — она авторитетна для запросов "текущего" статуса.
func (r *StateRepo) Latest(ctx context.Context, workflowID, nodeID int64) (*domain.ExecutionState, error) {
	query := `
		SELECT id, workflow_id, node_id, started_at, completed_at, status
		FROM execution_states
		WHERE workflow_id = $1 AND node_id = $2
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`
	var state domain.ExecutionState
	err := r.pool.QueryRow(ctx, query, workflowID, nodeID).Scan(
		&state.ID,
		&state.WorkflowID,
		&state.NodeID,
		&state.StartedAt,
		&state.CompletedAt,
		&state.Status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest execution state: %w", err)
	}
	return &state, nil
}

// ListByWorkflow возвращает все записи workflow, новые первыми.
func (r *StateRepo) ListByWorkflow(ctx context.Context, workflowID int64) ([]domain.ExecutionState, error) {
	query := `
		SELECT id, workflow_id, node_id, started_at, completed_at, status
		FROM execution_states
		WHERE workflow_id = $1
		ORDER BY started_at DESC, id DESC
	`
	rows, err := r.pool.Query(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list execution states: %w", err)
	}
	defer rows.Close()

	var states []domain.ExecutionState
	for rows.Next() {
		var state domain.ExecutionState
		if err := rows.Scan(
			&state.ID,
			&state.WorkflowID,
			&state.NodeID,
			&state.StartedAt,
			&state.CompletedAt,
			&state.Status,
		); err != nil {
			return nil, fmt.Errorf("scan execution state: %w", err)
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

// DeleteByWorkflow удаляет все записи workflow (bulk-удаление при
// удалении родителя; по одной записи не удаляются).
func (r *StateRepo) DeleteByWorkflow(ctx context.Context, workflowID int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM execution_states WHERE workflow_id = $1`, workflowID); err != nil {
		return fmt.Errorf("delete execution states by workflow: %w", err)
	}
	return nil
}
