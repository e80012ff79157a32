package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/synapse/orchestrator/common/blueprint"
	"github.com/synapse/orchestrator/common/logger"
	"github.com/synapse/orchestrator/common/models"
	"github.com/synapse/orchestrator/common/repository"
)

// WorkflowService validates and materializes submitted blueprints and
// reads back workflow state
type WorkflowService struct {
	materializer *blueprint.Materializer
	tasks        *repository.TaskRepository
	edges        *repository.EdgeRepository
	limits       blueprint.Limits
	log          *logger.Logger
}

// NewWorkflowService creates a new workflow service
func NewWorkflowService(
	materializer *blueprint.Materializer,
	tasks *repository.TaskRepository,
	edges *repository.EdgeRepository,
	limits blueprint.Limits,
	log *logger.Logger,
) *WorkflowService {
	return &WorkflowService{
		materializer: materializer,
		tasks:        tasks,
		edges:        edges,
		limits:       limits,
		log:          log,
	}
}

// WorkflowSnapshot is the full persisted state of one workflow
type WorkflowSnapshot struct {
	WorkflowID uuid.UUID      `json:"workflow_id"`
	Tasks      []*models.Task `json:"tasks"`
	Edges      []*models.Edge `json:"edges"`
}

// Submit validates a blueprint and materializes it atomically. The
// returned ids let the caller address tasks it only knew by
// placeholder.
func (s *WorkflowService) Submit(ctx context.Context, bp *models.PlanBlueprint) (*blueprint.Materialized, error) {
	if err := blueprint.Validate(bp, s.limits); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBlueprint, err)
	}

	materialized, err := s.materializer.CreateWorkflowFromBlueprint(ctx, bp)
	if err != nil {
		return nil, err
	}

	s.log.Info("workflow submitted",
		"workflow_id", materialized.WorkflowID,
		"tasks", len(materialized.TaskIDs),
		"edges", len(materialized.EdgeIDs))

	return materialized, nil
}

// Snapshot returns all tasks and edges of a workflow. A workflow with
// neither is unknown.
func (s *WorkflowService) Snapshot(ctx context.Context, workflowID uuid.UUID) (*WorkflowSnapshot, error) {
	tasks, err := s.tasks.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	edges, err := s.edges.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if len(tasks) == 0 && len(edges) == 0 {
		return nil, ErrWorkflowNotFound
	}

	return &WorkflowSnapshot{
		WorkflowID: workflowID,
		Tasks:      tasks,
		Edges:      edges,
	}, nil
}

// ListTasks returns a workflow's tasks, optionally filtered by status
func (s *WorkflowService) ListTasks(ctx context.Context, workflowID uuid.UUID, status *models.TaskStatus) ([]*models.Task, error) {
	tasks, err := s.tasks.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if status == nil {
		return tasks, nil
	}

	filtered := tasks[:0]
	for _, task := range tasks {
		if task.Status == *status {
			filtered = append(filtered, task)
		}
	}
	return filtered, nil
}
