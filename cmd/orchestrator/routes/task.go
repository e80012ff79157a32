package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/synapse/orchestrator/cmd/orchestrator/container"
	"github.com/synapse/orchestrator/cmd/orchestrator/handlers"
)

// RegisterTaskRoutes registers all task-related routes
func RegisterTaskRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewTaskHandler(c.TaskService, c.InterventionService)

	tasks := e.Group("/v1/tasks")
	{
		tasks.GET("", h.ListTasks)                      // GET   /v1/tasks?status=PENDING
		tasks.GET("/search", h.SearchTasks)             // GET   /v1/tasks/search?key=…&value=…
		tasks.GET("/:id", h.GetTask)                    // GET   /v1/tasks/:id
		tasks.GET("/:id/history", h.GetHistory)         // GET   /v1/tasks/:id/history
		tasks.PATCH("/:id/context", h.UpdateContext)    // PATCH /v1/tasks/:id/context
		tasks.POST("/:id/interventions", h.Intervene)   // POST  /v1/tasks/:id/interventions
	}
}
