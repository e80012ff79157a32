package service

import "errors"

var (
	// ErrInvalidBlueprint wraps blueprint validation failures so the
	// handler can distinguish them from materialization errors
	ErrInvalidBlueprint = errors.New("invalid blueprint")

	// ErrUnsupportedIntervention marks intervention types the
	// four-state machine cannot honor (PAUSE, RESUME)
	ErrUnsupportedIntervention = errors.New("unsupported intervention type")

	// ErrInvalidIntervention marks a malformed intervention body, such
	// as an input patch that does not decode or apply
	ErrInvalidIntervention = errors.New("invalid intervention")

	// ErrWorkflowNotFound is returned when a workflow id matches no
	// tasks and no edges
	ErrWorkflowNotFound = errors.New("workflow not found")
)
