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

// HistoryRepository handles database operations for task history.
// Versions are gapless per task starting at 1; the UNIQUE constraint
// on (task_id, version_number) turns racing appends into
// ErrVersionConflict instead of silent gaps.
type HistoryRepository struct {
	db *db.DB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(database *db.DB) *HistoryRepository {
	return &HistoryRepository{db: database}
}

const historyColumns = `id, task_id, version_number, data_snapshot, created_at`

func scanHistory(row pgx.Row) (*models.TaskHistoryRecord, error) {
	rec := &models.TaskHistoryRecord{}
	err := row.Scan(
		&rec.ID,
		&rec.TaskID,
		&rec.VersionNumber,
		&rec.DataSnapshot,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Append inserts a snapshot at an explicit version number
func (r *HistoryRepository) Append(ctx context.Context, taskID uuid.UUID, version int, snapshot map[string]interface{}) error {
	return r.AppendIn(ctx, r.db.Pool, taskID, version, snapshot)
}

// AppendIn is Append against a caller-supplied Querier
func (r *HistoryRepository) AppendIn(ctx context.Context, q db.Querier, taskID uuid.UUID, version int, snapshot map[string]interface{}) error {
	query := `
		INSERT INTO task_history (task_id, version_number, data_snapshot)
		VALUES ($1, $2, $3)
	`

	_, err := q.Exec(ctx, query, taskID, version, snapshot)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: task %s version %d", ErrVersionConflict, taskID, version)
	}
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}

	return nil
}

// AppendNextIn inserts a snapshot at the next free version number and
// returns that number. The SELECT and INSERT run as one statement, so
// two racing appends produce one winner and one ErrVersionConflict.
func (r *HistoryRepository) AppendNextIn(ctx context.Context, q db.Querier, taskID uuid.UUID, snapshot map[string]interface{}) (int, error) {
	query := `
		INSERT INTO task_history (task_id, version_number, data_snapshot)
		SELECT $1, COALESCE(MAX(version_number), 0) + 1, $2
		FROM task_history
		WHERE task_id = $1
		RETURNING version_number
	`

	var version int
	err := q.QueryRow(ctx, query, taskID, snapshot).Scan(&version)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("%w: task %s", ErrVersionConflict, taskID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to append history: %w", err)
	}

	return version, nil
}

// ListByTask returns all history records of a task, oldest version first
func (r *HistoryRepository) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.TaskHistoryRecord, error) {
	query := `SELECT ` + historyColumns + ` FROM task_history WHERE task_id = $1 ORDER BY version_number`

	rows, err := r.db.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var records []*models.TaskHistoryRecord
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	return records, nil
}

// Latest returns the highest-versioned record of a task
func (r *HistoryRepository) Latest(ctx context.Context, taskID uuid.UUID) (*models.TaskHistoryRecord, error) {
	query := `SELECT ` + historyColumns + ` FROM task_history WHERE task_id = $1 ORDER BY version_number DESC LIMIT 1`

	rec, err := scanHistory(r.db.QueryRow(ctx, query, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrHistoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest history: %w", err)
	}

	return rec, nil
}

// GetVersionIn returns one specific version of a task's history
func (r *HistoryRepository) GetVersionIn(ctx context.Context, q db.Querier, taskID uuid.UUID, version int) (*models.TaskHistoryRecord, error) {
	query := `SELECT ` + historyColumns + ` FROM task_history WHERE task_id = $1 AND version_number = $2`

	rec, err := scanHistory(q.QueryRow(ctx, query, taskID, version))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrHistoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history version: %w", err)
	}

	return rec, nil
}
