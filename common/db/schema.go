package db

import (
	"context"
	"fmt"
)

// Schema statements are idempotent so every service can run them at
// startup without coordination. The triggers are the producers of the
// change-notification pipeline: every task INSERT/UPDATE publishes a
// JSON payload on the task_created/task_updated channels.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		workflow_id UUID NOT NULL,
		assignee_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING'
			CHECK (status IN ('PENDING','RUNNING','COMPLETED','FAILED')),
		input_data JSONB,
		result JSONB,
		directives JSONB,
		parent_task_id UUID REFERENCES tasks(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS edges (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		workflow_id UUID NOT NULL,
		source_task_id UUID NOT NULL REFERENCES tasks(id),
		target_task_id UUID NOT NULL REFERENCES tasks(id),
		condition JSONB,
		data_flow JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS task_history (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		task_id UUID NOT NULL REFERENCES tasks(id),
		version_number INT NOT NULL,
		data_snapshot JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE(task_id, version_number)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_tasks_workflow_id ON tasks(workflow_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_result ON tasks USING GIN (result)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_source_task_id ON edges(source_task_id)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_workflow_id ON edges(workflow_id)`,
	`CREATE INDEX IF NOT EXISTS idx_task_history_task_id ON task_history(task_id)`,

	`CREATE OR REPLACE FUNCTION touch_task_updated_at()
	RETURNS TRIGGER AS $$
	BEGIN
		NEW.updated_at = now();
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,

	`DROP TRIGGER IF EXISTS task_touch_trigger ON tasks`,

	`CREATE TRIGGER task_touch_trigger
	BEFORE UPDATE ON tasks
	FOR EACH ROW
	EXECUTE FUNCTION touch_task_updated_at()`,

	`CREATE OR REPLACE FUNCTION notify_task_update()
	RETURNS TRIGGER AS $$
	DECLARE
		payload TEXT;
	BEGIN
		payload := json_build_object(
			'task_id', NEW.id,
			'status', NEW.status,
			'updated_at', NEW.updated_at
		)::text;
		PERFORM pg_notify('task_updated', payload);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,

	`DROP TRIGGER IF EXISTS task_update_trigger ON tasks`,

	`CREATE TRIGGER task_update_trigger
	AFTER UPDATE ON tasks
	FOR EACH ROW
	EXECUTE FUNCTION notify_task_update()`,

	`CREATE OR REPLACE FUNCTION notify_task_creation()
	RETURNS TRIGGER AS $$
	DECLARE
		payload TEXT;
	BEGIN
		payload := json_build_object(
			'task_id', NEW.id,
			'workflow_id', NEW.workflow_id,
			'assignee_id', NEW.assignee_id,
			'status', NEW.status,
			'created_at', NEW.created_at
		)::text;
		PERFORM pg_notify('task_created', payload);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,

	`DROP TRIGGER IF EXISTS task_creation_trigger ON tasks`,

	`CREATE TRIGGER task_creation_trigger
	AFTER INSERT ON tasks
	FOR EACH ROW
	EXECUTE FUNCTION notify_task_creation()`,
}

// EnsureSchema creates tables, indexes and notification triggers if
// they do not exist yet. Safe to run on every startup.
func EnsureSchema(ctx context.Context, q Querier) error {
	for _, stmt := range schemaStatements {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}
