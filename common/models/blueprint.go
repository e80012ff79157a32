package models

import "github.com/google/uuid"

// LoopType selects how a loop directive expands its template
type LoopType string

const (
	LoopParallelIteration LoopType = "PARALLEL_ITERATION"
	LoopSerialIteration   LoopType = "SERIAL_ITERATION"
)

// ContextPriority ranks context overrides when fusing prompts
type ContextPriority string

const (
	PriorityNormal  ContextPriority = "NORMAL"
	PriorityHighest ContextPriority = "HIGHEST"
)

// LoopDirective describes an iteration over a collection. The template
// is a definition, not a reference, so the self-reference cannot form
// a runtime cycle.
type LoopDirective struct {
	Type               LoopType        `json:"type"`
	IterationInputKey  string          `json:"iteration_input_key"`
	InputSourceTaskID  string          `json:"input_source_task_id"`
	TaskTemplate       *TaskDefinition `json:"task_template"`
	MaxIterations      *int            `json:"max_iterations,omitempty"`
}

// TaskDirectives carries execution modifiers. They are persisted with
// the task and logged by the engine; interpretation happens at a
// higher layer.
type TaskDirectives struct {
	LoopDirective    *LoopDirective         `json:"loop_directive,omitempty"`
	OnFailure        map[string]interface{} `json:"on_failure,omitempty"`
	TimeoutSeconds   *int                   `json:"timeout_seconds,omitempty"`
	HumanInteraction map[string]interface{} `json:"human_interaction,omitempty"`
}

// ContextOverrides tunes how the agent runtime assembles context for
// the task. Stored and forwarded, never interpreted here.
type ContextOverrides struct {
	Priority              ContextPriority          `json:"priority"`
	IncludeAssets         []map[string]interface{} `json:"include_assets,omitempty"`
	IncludeTaskResults    []string                 `json:"include_task_results,omitempty"`
	AdHocText             string                   `json:"ad_hoc_text,omitempty"`
	OverrideContextConfig map[string]interface{}   `json:"override_context_config,omitempty"`
}

// TaskDefinition is a task inside a blueprint. TaskID is a placeholder
// chosen by the blueprint author, scoped to the blueprint; the
// materializer maps it to a DB-assigned UUID.
type TaskDefinition struct {
	TaskID           string                 `json:"task_id"`
	ParentTaskID     *string                `json:"parent_task_id,omitempty"`
	InputData        map[string]interface{} `json:"input_data"`
	AssigneeID       string                 `json:"assignee_id"`
	ContextOverrides *ContextOverrides      `json:"context_overrides,omitempty"`
	Directives       *TaskDirectives        `json:"directives,omitempty"`
}

// EdgeDefinition is an edge inside a blueprint. Source and target may
// name placeholders from the same blueprint or real task UUIDs.
type EdgeDefinition struct {
	SourceTaskID string     `json:"source_task_id"`
	TargetTaskID string     `json:"target_task_id"`
	Condition    *Condition `json:"condition,omitempty"`
	DataFlow     *DataFlow  `json:"data_flow,omitempty"`
}

// TaskUpdate rewrites input and/or status of an existing task by real id
type TaskUpdate struct {
	TaskID       uuid.UUID              `json:"task_id"`
	NewInputData map[string]interface{} `json:"new_input_data,omitempty"`
	NewStatus    *TaskStatus            `json:"new_status,omitempty"`
}

// PlanBlueprint is an atomic batch of graph changes: new tasks, new
// edges and task updates. A nil WorkflowID tells the materializer to
// generate one.
type PlanBlueprint struct {
	WorkflowID  *uuid.UUID       `json:"workflow_id,omitempty"`
	NewTasks    []TaskDefinition `json:"new_tasks"`
	NewEdges    []EdgeDefinition `json:"new_edges"`
	UpdateTasks []TaskUpdate     `json:"update_tasks"`
}

// IsEmpty reports whether the blueprint carries no changes at all
func (b *PlanBlueprint) IsEmpty() bool {
	return len(b.NewTasks) == 0 && len(b.NewEdges) == 0 && len(b.UpdateTasks) == 0
}
