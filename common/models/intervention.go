package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// InterventionType names a human-in-the-loop operation
type InterventionType string

const (
	InterventionRollbackAndModify InterventionType = "ROLLBACK_AND_MODIFY"
	InterventionPause             InterventionType = "PAUSE"
	InterventionResume            InterventionType = "RESUME"
)

// InterventionRequest is an operator's request to rewrite a task,
// optionally restoring a historical version first. PAUSE and RESUME
// are accepted on the wire but unsupported by the four-state machine.
type InterventionRequest struct {
	InterventionType  InterventionType       `json:"intervention_type"`
	TargetTaskID      uuid.UUID              `json:"target_task_id"`
	RollbackToVersion *int                   `json:"rollback_to_version,omitempty"`
	NewInputData      map[string]interface{} `json:"new_input_data,omitempty"`
	InputPatch        json.RawMessage        `json:"input_patch,omitempty"`
	NewAssigneeID     *string                `json:"new_assignee_id,omitempty"`
	Comment           string                 `json:"comment"`
}
