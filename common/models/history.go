package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskHistoryRecord is an append-only versioned snapshot of a task,
// used by rollback and time-travel interventions. version_number is
// gapless per task starting at 1.
// Maps to: task_history table
type TaskHistoryRecord struct {
	ID            uuid.UUID              `db:"id" json:"id"`
	TaskID        uuid.UUID              `db:"task_id" json:"task_id"`
	VersionNumber int                    `db:"version_number" json:"version_number"`
	DataSnapshot  map[string]interface{} `db:"data_snapshot" json:"data_snapshot"`
	CreatedAt     time.Time              `db:"created_at" json:"created_at"`
}

// Snapshot keys written by the intervention service
const (
	SnapshotKeyStatus     = "status"
	SnapshotKeyInputData  = "input_data"
	SnapshotKeyResult     = "result"
	SnapshotKeyAssigneeID = "assignee_id"
	SnapshotKeyOperator   = "operator"
	SnapshotKeyComment    = "comment"
)
