package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/synapse/orchestrator/cmd/orchestrator/service"
	"github.com/synapse/orchestrator/common/models"
)

// TaskHandler handles task reads, context injection and operator
// interventions
type TaskHandler struct {
	tasks         *service.TaskService
	interventions *service.InterventionService
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(tasks *service.TaskService, interventions *service.InterventionService) *TaskHandler {
	return &TaskHandler{
		tasks:         tasks,
		interventions: interventions,
	}
}

// GetTask returns one task by id
// GET /v1/tasks/:id
func (h *TaskHandler) GetTask(c echo.Context) error {
	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "task id is not a valid UUID")
	}

	task, err := h.tasks.Get(c.Request().Context(), taskID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, task)
}

// ListTasks returns tasks by status, defaulting to PENDING
// GET /v1/tasks?status=PENDING
func (h *TaskHandler) ListTasks(c echo.Context) error {
	status := models.StatusPending
	if raw := c.QueryParam("status"); raw != "" {
		status = models.TaskStatus(raw)
		if !status.Valid() {
			return badRequest(c, "unknown status "+raw)
		}
	}

	tasks, err := h.tasks.ListByStatus(c.Request().Context(), status)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": status,
		"tasks":  tasks,
	})
}

// SearchTasks finds tasks by a top-level result property
// GET /v1/tasks/search?key=…&value=…
func (h *TaskHandler) SearchTasks(c echo.Context) error {
	key := c.QueryParam("key")
	value := c.QueryParam("value")
	if key == "" || value == "" {
		return badRequest(c, "key and value query parameters are required")
	}

	tasks, err := h.tasks.Search(c.Request().Context(), key, value)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"key":   key,
		"value": value,
		"tasks": tasks,
	})
}

// GetHistory returns a task's snapshot history, newest first
// GET /v1/tasks/:id/history
func (h *TaskHandler) GetHistory(c echo.Context) error {
	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "task id is not a valid UUID")
	}

	records, err := h.tasks.History(c.Request().Context(), taskID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"task_id": taskID,
		"history": records,
	})
}

// UpdateContext rewrites a task's result column, leaving status alone
// PATCH /v1/tasks/:id/context
func (h *TaskHandler) UpdateContext(c echo.Context) error {
	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "task id is not a valid UUID")
	}

	var body map[string]interface{}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "request body is not a JSON object")
	}

	if err := h.tasks.UpdateContext(c.Request().Context(), taskID, body); err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"task_id": taskID,
		"updated": true,
	})
}

// Intervene applies an operator intervention to a task
// POST /v1/tasks/:id/interventions
func (h *TaskHandler) Intervene(c echo.Context) error {
	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "task id is not a valid UUID")
	}

	var req models.InterventionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "request body is not a valid intervention")
	}

	operator := c.Request().Header.Get("X-Operator-Id")
	if operator == "" {
		operator = "anonymous"
	}

	result, err := h.interventions.Apply(c.Request().Context(), taskID, &req, operator)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, result)
}
