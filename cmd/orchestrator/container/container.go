package container

import (
	"github.com/synapse/orchestrator/cmd/orchestrator/service"
	"github.com/synapse/orchestrator/common/blueprint"
	"github.com/synapse/orchestrator/common/bootstrap"
	"github.com/synapse/orchestrator/common/ratelimit"
	"github.com/synapse/orchestrator/common/repository"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	Components *bootstrap.Components

	// Repositories
	TaskRepo    *repository.TaskRepository
	EdgeRepo    *repository.EdgeRepository
	HistoryRepo *repository.HistoryRepository

	// Services
	WorkflowService     *service.WorkflowService
	TaskService         *service.TaskService
	InterventionService *service.InterventionService

	// RateLimiter is nil when rate limiting is disabled
	RateLimiter *ratelimit.RateLimiter
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	taskRepo := repository.NewTaskRepository(components.DB)
	edgeRepo := repository.NewEdgeRepository(components.DB)
	historyRepo := repository.NewHistoryRepository(components.DB)

	materializer := blueprint.NewMaterializer(components.DB, taskRepo, edgeRepo, components.Logger)

	limits := blueprint.Limits{
		MaxTasks: components.Config.Limits.MaxBlueprintTasks,
		MaxEdges: components.Config.Limits.MaxBlueprintEdges,
	}

	workflowService := service.NewWorkflowService(materializer, taskRepo, edgeRepo, limits, components.Logger)
	taskService := service.NewTaskService(taskRepo, historyRepo, components.Logger)
	interventionService := service.NewInterventionService(components.DB, taskRepo, historyRepo, components.Logger)

	var rateLimiter *ratelimit.RateLimiter
	if components.Config.Limits.RateLimitEnabled && components.Redis != nil {
		rateLimiter = ratelimit.NewRateLimiter(components.Redis.GetUnderlying(), components.Logger)
	}

	return &Container{
		Components:          components,
		TaskRepo:            taskRepo,
		EdgeRepo:            edgeRepo,
		HistoryRepo:         historyRepo,
		WorkflowService:     workflowService,
		TaskService:         taskService,
		InterventionService: interventionService,
		RateLimiter:         rateLimiter,
	}, nil
}
