package models

import (
	"time"

	"github.com/google/uuid"
)

// EvaluatorCEL is the only predicate dialect the router understands
const EvaluatorCEL = "CEL"

// Condition guards an edge. The expression is evaluated against the
// source task's result document; see the condition package.
type Condition struct {
	Evaluator  string `json:"evaluator"`
	Expression string `json:"expression"`
}

// DataFlow remaps fields of the source result into the target input.
// Keys are target input keys, values are source expressions (dotted
// paths, top-level keys, or literals as a fallback).
type DataFlow struct {
	Mappings map[string]string `json:"mappings"`
}

// Edge is a directed conditional link between two tasks of a workflow
// Maps to: edges table
type Edge struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	WorkflowID   uuid.UUID  `db:"workflow_id" json:"workflow_id"`
	SourceTaskID uuid.UUID  `db:"source_task_id" json:"source_task_id"`
	TargetTaskID uuid.UUID  `db:"target_task_id" json:"target_task_id"`
	Condition    *Condition `db:"condition" json:"condition,omitempty"`
	DataFlow     *DataFlow  `db:"data_flow" json:"data_flow,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// IsUnconditional reports whether the edge fires on any completion
func (e *Edge) IsUnconditional() bool {
	return e.Condition == nil
}
