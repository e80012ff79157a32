package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/synapse/orchestrator/cmd/orchestrator/container"
	"github.com/synapse/orchestrator/cmd/orchestrator/handlers"
	"github.com/synapse/orchestrator/common/middleware"
)

// RegisterWorkflowRoutes registers all workflow-related routes
func RegisterWorkflowRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewWorkflowHandler(c.WorkflowService)

	workflows := e.Group("/v1/workflows")
	{
		// Submission is the only write path, so it alone carries the
		// rate limits
		submitGuards := []echo.MiddlewareFunc{}
		if c.RateLimiter != nil {
			cfg := c.Components.Config.Limits
			submitGuards = append(submitGuards,
				middleware.GlobalRateLimitMiddleware(c.RateLimiter, cfg.GlobalPerMinute),
				middleware.ClientRateLimitMiddleware(c.RateLimiter, cfg.SubmitsPerMinute),
			)
		}

		workflows.POST("", h.CreateWorkflow, submitGuards...)   // POST /v1/workflows
		workflows.GET("/:id", h.GetWorkflow)                    // GET  /v1/workflows/:id
		workflows.GET("/:id/tasks", h.ListWorkflowTasks)        // GET  /v1/workflows/:id/tasks
	}
}
