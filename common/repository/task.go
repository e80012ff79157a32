package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/synapse/orchestrator/common/db"
	"github.com/synapse/orchestrator/common/models"
)

// TaskRepository handles database operations for tasks. Methods with
// an In suffix run against a caller-supplied Querier so the
// materializer and intervention service can compose them inside one
// transaction.
type TaskRepository struct {
	db *db.DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(database *db.DB) *TaskRepository {
	return &TaskRepository{db: database}
}

// CreateTaskParams are the caller-supplied fields of a new task.
// Status starts PENDING; ids and timestamps come from the database.
type CreateTaskParams struct {
	WorkflowID   uuid.UUID
	AssigneeID   string
	InputData    map[string]interface{}
	ParentTaskID *uuid.UUID
	Directives   *models.TaskDirectives
}

const taskColumns = `id, workflow_id, assignee_id, status, input_data, result, directives, parent_task_id, created_at, updated_at`

func scanTask(row pgx.Row) (*models.Task, error) {
	task := &models.Task{}
	err := row.Scan(
		&task.ID,
		&task.WorkflowID,
		&task.AssigneeID,
		&task.Status,
		&task.InputData,
		&task.Result,
		&task.Directives,
		&task.ParentTaskID,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Create inserts a new PENDING task and returns the stored row
func (r *TaskRepository) Create(ctx context.Context, params CreateTaskParams) (*models.Task, error) {
	return r.CreateIn(ctx, r.db.Pool, params)
}

// CreateIn is Create against a caller-supplied Querier
func (r *TaskRepository) CreateIn(ctx context.Context, q db.Querier, params CreateTaskParams) (*models.Task, error) {
	query := `
		INSERT INTO tasks (workflow_id, assignee_id, input_data, parent_task_id, directives)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + taskColumns

	task, err := scanTask(q.QueryRow(
		ctx,
		query,
		params.WorkflowID,
		params.AssigneeID,
		params.InputData,
		params.ParentTaskID,
		params.Directives,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return task, nil
}

// GetByID retrieves a task by its id
func (r *TaskRepository) GetByID(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := scanTask(r.db.QueryRow(ctx, query, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return task, nil
}

// LockForUpdateIn reads a task holding its row lock for the rest of
// the transaction. Engine claims use SKIP LOCKED, so a locked row is
// invisible to workers until the caller commits.
func (r *TaskRepository) LockForUpdateIn(ctx context.Context, q db.Querier, taskID uuid.UUID) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 FOR UPDATE`

	task, err := scanTask(q.QueryRow(ctx, query, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock task: %w", err)
	}

	return task, nil
}

// Claim locks a task for dispatch. One short transaction takes the
// row lock with SKIP LOCKED and, iff the row is PENDING, promotes it
// to RUNNING before releasing. The returned task carries the
// pre-claim status so the engine can route on it. A nil task with a
// nil error means another worker owns the row or the id is unknown.
func (r *TaskRepository) Claim(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	var claimed *models.Task

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 FOR UPDATE SKIP LOCKED`

		task, err := scanTask(tx.QueryRow(ctx, query, taskID))
		if errors.Is(err, pgx.ErrNoRows) {
			// Locked by another worker, or the id is unknown
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to claim task: %w", err)
		}

		if task.Status == models.StatusPending {
			_, err := tx.Exec(ctx, `UPDATE tasks SET status = $2 WHERE id = $1`, taskID, models.StatusRunning)
			if err != nil {
				return fmt.Errorf("failed to promote claimed task: %w", err)
			}
		}

		claimed = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

// ListPending returns all PENDING tasks, oldest first. Used to seed
// the work queue at engine startup.
func (r *TaskRepository) ListPending(ctx context.Context) ([]*models.Task, error) {
	return r.listWhere(ctx, `status = $1`, string(models.StatusPending))
}

// ListByStatus returns all tasks with the given status, oldest first
func (r *TaskRepository) ListByStatus(ctx context.Context, status models.TaskStatus) ([]*models.Task, error) {
	return r.listWhere(ctx, `status = $1`, string(status))
}

// ListByWorkflow returns all tasks of a workflow, oldest first
func (r *TaskRepository) ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*models.Task, error) {
	return r.listWhere(ctx, `workflow_id = $1`, workflowID)
}

// FindByResultProperty returns tasks whose result carries the given
// top-level key with the given text value
func (r *TaskRepository) FindByResultProperty(ctx context.Context, key, value string) ([]*models.Task, error) {
	return r.listWhere(ctx, `result ->> $1 = $2`, key, value)
}

func (r *TaskRepository) listWhere(ctx context.Context, where string, args ...any) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + where + ` ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}

	return tasks, nil
}

// UpdateStatusAndResult sets status and overwrites result in one
// guarded write. A nil result clears the column; callers that need to
// keep the old result must pass it back. Returns ErrTaskNotFound or
// ErrInvalidTransition when nothing was updated.
func (r *TaskRepository) UpdateStatusAndResult(ctx context.Context, taskID uuid.UUID, status models.TaskStatus, result map[string]interface{}) error {
	return r.UpdateStatusAndResultIn(ctx, r.db.Pool, taskID, status, result)
}

// UpdateStatusAndResultIn is UpdateStatusAndResult against a caller-supplied Querier
func (r *TaskRepository) UpdateStatusAndResultIn(ctx context.Context, q db.Querier, taskID uuid.UUID, status models.TaskStatus, result map[string]interface{}) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}

	query := `
		UPDATE tasks
		SET status = $2, result = $3
		WHERE id = $1 AND status = ANY($4)
	`

	tag, err := q.Exec(ctx, query, taskID, status, result, models.AllowedSourceStrings(status))
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.explainRejectedWrite(ctx, q, taskID, status)
	}

	return nil
}

// UpdateContext rewrites result without touching status. This is the
// tool-call scratch path: consumers must read status, not result.
func (r *TaskRepository) UpdateContext(ctx context.Context, taskID uuid.UUID, context map[string]interface{}) error {
	query := `UPDATE tasks SET result = $2 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, taskID, context)
	if err != nil {
		return fmt.Errorf("failed to update task context: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}

	return nil
}

// UpdateInputAndStatus rewrites input_data and status in one guarded
// write. This is the successor-activation path.
func (r *TaskRepository) UpdateInputAndStatus(ctx context.Context, taskID uuid.UUID, input map[string]interface{}, status models.TaskStatus) error {
	return r.UpdateInputAndStatusIn(ctx, r.db.Pool, taskID, input, status)
}

// UpdateInputAndStatusIn is UpdateInputAndStatus against a caller-supplied Querier
func (r *TaskRepository) UpdateInputAndStatusIn(ctx context.Context, q db.Querier, taskID uuid.UUID, input map[string]interface{}, status models.TaskStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}

	query := `
		UPDATE tasks
		SET input_data = $2, status = $3
		WHERE id = $1 AND status = ANY($4)
	`

	tag, err := q.Exec(ctx, query, taskID, input, status, models.AllowedSourceStrings(status))
	if err != nil {
		return fmt.Errorf("failed to update task input: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.explainRejectedWrite(ctx, q, taskID, status)
	}

	return nil
}

// UpdateInputIn rewrites input_data only
func (r *TaskRepository) UpdateInputIn(ctx context.Context, q db.Querier, taskID uuid.UUID, input map[string]interface{}) error {
	query := `UPDATE tasks SET input_data = $2 WHERE id = $1`

	tag, err := q.Exec(ctx, query, taskID, input)
	if err != nil {
		return fmt.Errorf("failed to update task input: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}

	return nil
}

// UpdateStatusIn sets status without touching result or input
func (r *TaskRepository) UpdateStatusIn(ctx context.Context, q db.Querier, taskID uuid.UUID, status models.TaskStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}

	query := `UPDATE tasks SET status = $2 WHERE id = $1 AND status = ANY($3)`

	tag, err := q.Exec(ctx, query, taskID, status, models.AllowedSourceStrings(status))
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.explainRejectedWrite(ctx, q, taskID, status)
	}

	return nil
}

// ApplyInterventionIn rewrites a locked task on behalf of an operator:
// input, result and assignee as given, status forced back to PENDING.
func (r *TaskRepository) ApplyInterventionIn(ctx context.Context, q db.Querier, taskID uuid.UUID, input, result map[string]interface{}, assigneeID string) error {
	query := `
		UPDATE tasks
		SET input_data = $2, result = $3, assignee_id = $4, status = $5
		WHERE id = $1
	`

	tag, err := q.Exec(ctx, query, taskID, input, result, assigneeID, models.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to apply intervention: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}

	return nil
}

// explainRejectedWrite distinguishes a missing row from a forbidden
// transition after a guarded UPDATE matched nothing
func (r *TaskRepository) explainRejectedWrite(ctx context.Context, q db.Querier, taskID uuid.UUID, target models.TaskStatus) error {
	var current models.TaskStatus
	err := q.QueryRow(ctx, `SELECT status FROM tasks WHERE id = $1`, taskID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to probe task status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, target)
}
