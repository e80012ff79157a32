package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	StatusPending   TaskStatus = "PENDING"
	StatusRunning   TaskStatus = "RUNNING"
	StatusCompleted TaskStatus = "COMPLETED"
	StatusFailed    TaskStatus = "FAILED"
)

// Assignee prefixes route a task to its executor kind
const (
	AssigneeKindAgent = "Agent"
	AssigneeKindTool  = "Tool"
	AssigneeKindGroup = "Group"
)

// allowedSources maps a target status to the statuses a task may hold
// when the write is issued. PENDING accepts every source: claimed tasks
// re-enter on tool calls, successors are (re)activated, and operators
// push terminal tasks back for another run.
var allowedSources = map[TaskStatus][]TaskStatus{
	StatusPending:   {StatusPending, StatusRunning, StatusCompleted, StatusFailed},
	StatusRunning:   {StatusPending},
	StatusCompleted: {StatusRunning},
	StatusFailed:    {StatusRunning},
}

// Valid reports whether s is one of the four task statuses
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether s ends normal flow
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether the state machine permits s -> next
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, from := range allowedSources[next] {
		if from == s {
			return true
		}
	}
	return false
}

// AllowedSources returns the statuses a task may hold for a write that
// sets it to target. Used to guard UPDATEs with status = ANY($n).
func AllowedSources(target TaskStatus) []TaskStatus {
	sources := allowedSources[target]
	out := make([]TaskStatus, len(sources))
	copy(out, sources)
	return out
}

// AllowedSourceStrings is AllowedSources as plain strings for SQL args
func AllowedSourceStrings(target TaskStatus) []string {
	sources := allowedSources[target]
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = string(s)
	}
	return out
}

// Task is the unit of dispatch
// Maps to: tasks table
type Task struct {
	ID         uuid.UUID `db:"id" json:"id"`
	WorkflowID uuid.UUID `db:"workflow_id" json:"workflow_id"`

	// Set when this task was materialized from a blueprint returned
	// by another task
	ParentTaskID *uuid.UUID `db:"parent_task_id" json:"parent_task_id,omitempty"`

	// "Agent:<name>", "Tool:<name>" or "Group:<name>"
	AssigneeID string `db:"assignee_id" json:"assignee_id"`

	Status TaskStatus `db:"status" json:"status"`

	// Task arguments (JSONB)
	InputData map[string]interface{} `db:"input_data" json:"input_data"`

	// Final output, and also the mutable context carrier between
	// agent re-entries on the tool-call path. Read status, not the
	// presence of result.
	Result map[string]interface{} `db:"result" json:"result,omitempty"`

	// Loop/timeout/on-failure descriptors, stored faithfully and
	// interpreted at a higher layer
	Directives *TaskDirectives `db:"directives" json:"directives,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AssigneeKind returns the prefix before the first ':' ("Agent",
// "Tool", "Group"), or "" when the assignee has no prefix
func (t *Task) AssigneeKind() string {
	kind, _, found := strings.Cut(t.AssigneeID, ":")
	if !found {
		return ""
	}
	return kind
}

// AssigneeName returns the part after the first ':'
func (t *Task) AssigneeName() string {
	_, name, _ := strings.Cut(t.AssigneeID, ":")
	return name
}

// IsAgentTask reports whether the task is assigned to an agent
func (t *Task) IsAgentTask() bool {
	return t.AssigneeKind() == AssigneeKindAgent
}

// IsToolTask reports whether the task is assigned directly to a tool
func (t *Task) IsToolTask() bool {
	return t.AssigneeKind() == AssigneeKindTool
}
