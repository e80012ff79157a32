package models

import (
	"time"

	"github.com/google/uuid"
)

// Postgres notification channels fired by the tasks table triggers
const (
	ChannelTaskCreated = "task_created"
	ChannelTaskUpdated = "task_updated"
)

// TaskNotification is the payload the triggers publish. Creation
// events carry workflow/assignee/created_at on top of the update
// fields, so one shape decodes both channels.
type TaskNotification struct {
	TaskID     uuid.UUID  `json:"task_id"`
	Status     TaskStatus `json:"status"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
	WorkflowID *uuid.UUID `json:"workflow_id,omitempty"`
	AssigneeID string     `json:"assignee_id,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
}
