package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Cascade/internal/domain"
)

// WorkflowRepo — репозиторий хранилища графа: workflows и их узлы.
//
// Чтение workflow всегда возвращает полный набор узлов в порядке
// вставки. Записи — last-writer-wins: токена оптимистичной
// конкуренции нет, это осознанное ограничение.
type WorkflowRepo struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepo создаёт новый WorkflowRepo.
func NewWorkflowRepo(pool *pgxpool.Pool) *WorkflowRepo {
	return &WorkflowRepo{pool: pool}
}

// Create создаёт workflow вместе с узлами.
// Возвращает ErrAlreadyExists, если имя занято неудалённым workflow.
func (r *WorkflowRepo) Create(ctx context.Context, wf *domain.Workflow) error {
	defJSON, err := json.Marshal(orEmpty(wf.Definition))
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}

	status := wf.Status
	if status == "" {
		status = domain.WorkflowStatusActive
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO workflows (name, definition, status)
		VALUES ($1, $2, $3)
		RETURNING id, status, created_at, updated_at
	`, wf.Name, defJSON, status).Scan(
		&wf.ID,
		&wf.Status,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: workflow %q", ErrAlreadyExists, wf.Name)
	}
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}

	if err := insertNodes(ctx, tx, wf.ID, wf.Nodes); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID возвращает workflow с узлами в порядке вставки.
func (r *WorkflowRepo) GetByID(ctx context.Context, id int64) (*domain.Workflow, error) {
	query := `
		SELECT id, name, definition, status, created_at, updated_at
		FROM workflows
		WHERE id = $1 AND deleted_at IS NULL
	`
	var wf domain.Workflow
	var defJSON []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&wf.ID,
		&wf.Name,
		&defJSON,
		&wf.Status,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow by id: %w", err)
	}

	if err := json.Unmarshal(defJSON, &wf.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}

	nodes, err := r.listNodes(ctx, id)
	if err != nil {
		return nil, err
	}
	wf.Nodes = nodes

	return &wf, nil
}

// GetByName возвращает неудалённый workflow по имени (без узлов).
func (r *WorkflowRepo) GetByName(ctx context.Context, name string) (*domain.Workflow, error) {
	query := `
		SELECT id, name, definition, status, created_at, updated_at
		FROM workflows
		WHERE name = $1 AND deleted_at IS NULL
	`
	var wf domain.Workflow
	var defJSON []byte
	err := r.pool.QueryRow(ctx, query, name).Scan(
		&wf.ID,
		&wf.Name,
		&defJSON,
		&wf.Status,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow by name: %w", err)
	}

	if err := json.Unmarshal(defJSON, &wf.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}

	return &wf, nil
}

// List возвращает страницу workflows с узлами.
func (r *WorkflowRepo) List(ctx context.Context, page, limit int) ([]domain.Workflow, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, name, definition, status, created_at, updated_at
		FROM workflows
		WHERE deleted_at IS NULL
		ORDER BY id
		OFFSET $1 LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, (page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []domain.Workflow
	for rows.Next() {
		var wf domain.Workflow
		var defJSON []byte
		if err := rows.Scan(
			&wf.ID,
			&wf.Name,
			&defJSON,
			&wf.Status,
			&wf.CreatedAt,
			&wf.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		if err := json.Unmarshal(defJSON, &wf.Definition); err != nil {
			return nil, fmt.Errorf("unmarshal definition: %w", err)
		}
		workflows = append(workflows, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range workflows {
		nodes, err := r.listNodes(ctx, workflows[i].ID)
		if err != nil {
			return nil, err
		}
		workflows[i].Nodes = nodes
	}

	return workflows, nil
}

// Update обновляет workflow. Если wf.Nodes непустой, набор узлов
// заменяется целиком (как в исходной семантике update).
func (r *WorkflowRepo) Update(ctx context.Context, wf *domain.Workflow) error {
	defJSON, err := json.Marshal(orEmpty(wf.Definition))
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE workflows
		SET name = $2, definition = $3, status = $4, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, wf.ID, wf.Name, defJSON, wf.Status)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: workflow %q", ErrAlreadyExists, wf.Name)
	}
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	if len(wf.Nodes) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM nodes WHERE workflow_id = $1`, wf.ID); err != nil {
			return fmt.Errorf("delete nodes: %w", err)
		}
		if err := insertNodes(ctx, tx, wf.ID, wf.Nodes); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Delete помечает workflow удалённым и каскадно удаляет его узлы
// и execution states.
func (r *WorkflowRepo) Delete(ctx context.Context, id int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE workflows SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM execution_states WHERE workflow_id = $1`, id); err != nil {
		return fmt.Errorf("delete execution states: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM nodes WHERE workflow_id = $1`, id); err != nil {
		return fmt.Errorf("delete nodes: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// CreateNodes добавляет узлы к workflow, продолжая порядок вставки.
func (r *WorkflowRepo) CreateNodes(ctx context.Context, workflowID int64, nodes []domain.Node) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var next int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(position), -1) + 1
		FROM nodes WHERE workflow_id = $1
	`, workflowID).Scan(&next)
	if err != nil {
		return fmt.Errorf("get next position: %w", err)
	}

	for i := range nodes {
		nodes[i].Position = next + i
	}
	if err := insertNodesAt(ctx, tx, workflowID, nodes); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// DeleteNodesByWorkflow удаляет все узлы workflow.
func (r *WorkflowRepo) DeleteNodesByWorkflow(ctx context.Context, workflowID int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM nodes WHERE workflow_id = $1`, workflowID); err != nil {
		return fmt.Errorf("delete nodes by workflow: %w", err)
	}
	return nil
}

// listNodes возвращает узлы workflow в порядке вставки.
func (r *WorkflowRepo) listNodes(ctx context.Context, workflowID int64) ([]domain.Node, error) {
	query := `
		SELECT id, workflow_id, type, name, configuration, next_node_id,
		       position, created_at, updated_at
		FROM nodes
		WHERE workflow_id = $1
		ORDER BY position, id
	`
	rows, err := r.pool.Query(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []domain.Node
	for rows.Next() {
		var node domain.Node
		var confJSON []byte
		if err := rows.Scan(
			&node.ID,
			&node.WorkflowID,
			&node.Type,
			&node.Name,
			&confJSON,
			&node.NextNodeID,
			&node.Position,
			&node.CreatedAt,
			&node.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		if err := json.Unmarshal(confJSON, &node.Configuration); err != nil {
			return nil, fmt.Errorf("unmarshal configuration: %w", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// insertNodes вставляет узлы с позициями по порядку среза.
func insertNodes(ctx context.Context, tx pgx.Tx, workflowID int64, nodes []domain.Node) error {
	for i := range nodes {
		nodes[i].Position = i
	}
	return insertNodesAt(ctx, tx, workflowID, nodes)
}

// insertNodesAt вставляет узлы с уже выставленными позициями.
func insertNodesAt(ctx context.Context, tx pgx.Tx, workflowID int64, nodes []domain.Node) error {
	for i := range nodes {
		node := &nodes[i]
		confJSON, err := json.Marshal(orEmpty(node.Configuration))
		if err != nil {
			return fmt.Errorf("marshal configuration: %w", err)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO nodes (workflow_id, type, name, configuration, next_node_id, position)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at, updated_at
		`, workflowID, node.Type, node.Name, confJSON, node.NextNodeID, node.Position).Scan(
			&node.ID,
			&node.CreatedAt,
			&node.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert node: %w", err)
		}
		node.WorkflowID = workflowID
	}
	return nil
}

// orEmpty заменяет nil-карту на пустую, чтобы в jsonb не попал NULL.
func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// isUniqueViolation проверяет нарушение уникальности (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
