package service

import (
	"context"
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/synapse/orchestrator/common/db"
	"github.com/synapse/orchestrator/common/logger"
	"github.com/synapse/orchestrator/common/models"
)

// txRunner runs a function inside one transaction
type txRunner interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// taskStore is the slice of the task repository the intervention
// transaction composes
type taskStore interface {
	LockForUpdateIn(ctx context.Context, q db.Querier, taskID uuid.UUID) (*models.Task, error)
	ApplyInterventionIn(ctx context.Context, q db.Querier, taskID uuid.UUID, input, result map[string]interface{}, assigneeID string) error
}

// historyStore is the slice of the history repository the intervention
// transaction composes
type historyStore interface {
	AppendNextIn(ctx context.Context, q db.Querier, taskID uuid.UUID, snapshot map[string]interface{}) (int, error)
	GetVersionIn(ctx context.Context, q db.Querier, taskID uuid.UUID, version int) (*models.TaskHistoryRecord, error)
}

// InterventionService applies operator interventions to tasks. The
// whole operation is one transaction holding the task's row lock, so
// engine claims skip the row until the rewrite commits.
type InterventionService struct {
	db      txRunner
	tasks   taskStore
	history historyStore
	log     *logger.Logger
}

// NewInterventionService creates a new intervention service
func NewInterventionService(database txRunner, tasks taskStore, history historyStore, log *logger.Logger) *InterventionService {
	return &InterventionService{
		db:      database,
		tasks:   tasks,
		history: history,
		log:     log,
	}
}

// InterventionResult reports what an applied intervention produced
type InterventionResult struct {
	TaskID          uuid.UUID `json:"task_id"`
	SnapshotVersion int       `json:"snapshot_version"`
	Status          string    `json:"status"`
}

// Apply executes a ROLLBACK_AND_MODIFY intervention: snapshot the
// current task state into history, optionally restore a historical
// version, apply the operator's input and assignee changes, and reset
// status to PENDING. PAUSE and RESUME are rejected: the state machine
// has no paused state.
func (s *InterventionService) Apply(ctx context.Context, taskID uuid.UUID, req *models.InterventionRequest, operator string) (*InterventionResult, error) {
	if req.InterventionType != models.InterventionRollbackAndModify {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedIntervention, req.InterventionType)
	}

	var result *InterventionResult

	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		task, err := s.tasks.LockForUpdateIn(ctx, tx, taskID)
		if err != nil {
			return err
		}

		// The pre-intervention state becomes the next history version,
		// so the intervention itself can be rolled back later
		snapshot := map[string]interface{}{
			models.SnapshotKeyStatus:     string(task.Status),
			models.SnapshotKeyInputData:  task.InputData,
			models.SnapshotKeyResult:     task.Result,
			models.SnapshotKeyAssigneeID: task.AssigneeID,
			models.SnapshotKeyOperator:   operator,
			models.SnapshotKeyComment:    req.Comment,
		}
		version, err := s.history.AppendNextIn(ctx, tx, taskID, snapshot)
		if err != nil {
			return err
		}

		input := task.InputData
		taskResult := task.Result
		assignee := task.AssigneeID

		if req.RollbackToVersion != nil {
			rec, err := s.history.GetVersionIn(ctx, tx, taskID, *req.RollbackToVersion)
			if err != nil {
				return err
			}
			input, taskResult, assignee = restoreSnapshot(rec.DataSnapshot, input, taskResult, assignee)
		}

		switch {
		case req.NewInputData != nil:
			input = req.NewInputData
		case len(req.InputPatch) > 0:
			input, err = patchInput(input, req.InputPatch)
			if err != nil {
				return fmt.Errorf("%w: input_patch: %v", ErrInvalidIntervention, err)
			}
		}

		if req.NewAssigneeID != nil {
			assignee = *req.NewAssigneeID
		}

		if err := s.tasks.ApplyInterventionIn(ctx, tx, taskID, input, taskResult, assignee); err != nil {
			return err
		}

		result = &InterventionResult{
			TaskID:          taskID,
			SnapshotVersion: version,
			Status:          string(models.StatusPending),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("intervention applied",
		"task_id", taskID,
		"operator", operator,
		"snapshot_version", result.SnapshotVersion,
		"rollback_to", req.RollbackToVersion)

	return result, nil
}

// restoreSnapshot pulls task state out of a history snapshot. Missing
// keys keep the current value.
func restoreSnapshot(snapshot map[string]interface{}, input, result map[string]interface{}, assignee string) (map[string]interface{}, map[string]interface{}, string) {
	if v, ok := snapshot[models.SnapshotKeyInputData].(map[string]interface{}); ok {
		input = v
	}
	if v, ok := snapshot[models.SnapshotKeyResult].(map[string]interface{}); ok {
		result = v
	}
	if v, ok := snapshot[models.SnapshotKeyAssigneeID].(string); ok && v != "" {
		assignee = v
	}
	return input, result, assignee
}

// patchInput applies an RFC 6902 patch to the input document
func patchInput(input map[string]interface{}, rawPatch json.RawMessage) (map[string]interface{}, error) {
	patch, err := jsonpatch.DecodePatch(rawPatch)
	if err != nil {
		return nil, fmt.Errorf("decode patch: %w", err)
	}

	if input == nil {
		input = map[string]interface{}{}
	}
	doc, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encode input: %w", err)
	}

	patched, err := patch.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("apply patch: %w", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(patched, &out); err != nil {
		return nil, fmt.Errorf("decode patched input: %w", err)
	}
	return out, nil
}
