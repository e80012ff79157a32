package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/synapse/orchestrator/common/logger"
	"github.com/synapse/orchestrator/common/models"
	"github.com/synapse/orchestrator/common/repository"
)

// TaskService exposes task reads and the operator context-injection
// write
type TaskService struct {
	tasks   *repository.TaskRepository
	history *repository.HistoryRepository
	log     *logger.Logger
}

// NewTaskService creates a new task service
func NewTaskService(tasks *repository.TaskRepository, history *repository.HistoryRepository, log *logger.Logger) *TaskService {
	return &TaskService{
		tasks:   tasks,
		history: history,
		log:     log,
	}
}

// Get returns one task by id
func (s *TaskService) Get(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	return s.tasks.GetByID(ctx, taskID)
}

// ListByStatus returns all tasks with the given status, oldest first
func (s *TaskService) ListByStatus(ctx context.Context, status models.TaskStatus) ([]*models.Task, error) {
	return s.tasks.ListByStatus(ctx, status)
}

// Search finds tasks whose result carries a top-level key with the
// given text value
func (s *TaskService) Search(ctx context.Context, key, value string) ([]*models.Task, error) {
	return s.tasks.FindByResultProperty(ctx, key, value)
}

// UpdateContext rewrites a task's result column without touching
// status. This is the operator context-injection path: the engine
// reads status, not result, so a RUNNING task is not disturbed.
func (s *TaskService) UpdateContext(ctx context.Context, taskID uuid.UUID, context map[string]interface{}) error {
	if err := s.tasks.UpdateContext(ctx, taskID, context); err != nil {
		return err
	}

	s.log.Info("task context updated", "task_id", taskID)
	return nil
}

// History returns a task's snapshot history, newest version first
func (s *TaskService) History(ctx context.Context, taskID uuid.UUID) ([]*models.TaskHistoryRecord, error) {
	records, err := s.history.ListByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	// Repository orders oldest first
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}
