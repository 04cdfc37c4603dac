package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema — DDL хранилища графа workflow.
//
// Имя workflow уникально среди неудалённых записей (частичный индекс).
// Узлы и execution_states удаляются каскадно вместе с workflow.
const schema = `
CREATE TABLE IF NOT EXISTS workflows (
    id          BIGSERIAL PRIMARY KEY,
    name        TEXT        NOT NULL,
    definition  JSONB       NOT NULL DEFAULT '{}',
    status      TEXT        NOT NULL DEFAULT 'active',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at  TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS workflows_name_unique
    ON workflows (name) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS nodes (
    id            BIGSERIAL PRIMARY KEY,
    workflow_id   BIGINT      NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
    type          TEXT        NOT NULL,
    name          TEXT        NOT NULL DEFAULT '',
    configuration JSONB       NOT NULL DEFAULT '{}',
    next_node_id  BIGINT,
    position      INT         NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS nodes_workflow_position
    ON nodes (workflow_id, position);

CREATE TABLE IF NOT EXISTS execution_states (
    id           BIGSERIAL PRIMARY KEY,
    workflow_id  BIGINT      NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
    node_id      BIGINT      NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    started_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMPTZ,
    status       TEXT        NOT NULL DEFAULT 'pending'
);

CREATE INDEX IF NOT EXISTS execution_states_workflow_node
    ON execution_states (workflow_id, node_id, started_at DESC);
`

// Migrate применяет схему БД. Идемпотентна.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
