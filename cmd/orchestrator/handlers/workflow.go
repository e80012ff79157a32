package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/synapse/orchestrator/cmd/orchestrator/service"
	"github.com/synapse/orchestrator/common/models"
)

// WorkflowHandler handles workflow-related requests
type WorkflowHandler struct {
	workflows *service.WorkflowService
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(workflows *service.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{workflows: workflows}
}

// CreateWorkflow validates and materializes a blueprint
// POST /v1/workflows
func (h *WorkflowHandler) CreateWorkflow(c echo.Context) error {
	var bp models.PlanBlueprint
	if err := c.Bind(&bp); err != nil {
		return badRequest(c, "request body is not a valid blueprint")
	}

	materialized, err := h.workflows.Submit(c.Request().Context(), &bp)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusCreated, materialized)
}

// GetWorkflow returns all tasks and edges of a workflow
// GET /v1/workflows/:id
func (h *WorkflowHandler) GetWorkflow(c echo.Context) error {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "workflow id is not a valid UUID")
	}

	snapshot, err := h.workflows.Snapshot(c.Request().Context(), workflowID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, snapshot)
}

// ListWorkflowTasks returns a workflow's tasks, optionally filtered by
// status
// GET /v1/workflows/:id/tasks?status=PENDING
func (h *WorkflowHandler) ListWorkflowTasks(c echo.Context) error {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "workflow id is not a valid UUID")
	}

	var status *models.TaskStatus
	if raw := c.QueryParam("status"); raw != "" {
		parsed := models.TaskStatus(raw)
		if !parsed.Valid() {
			return badRequest(c, "unknown status "+raw)
		}
		status = &parsed
	}

	tasks, err := h.workflows.ListTasks(c.Request().Context(), workflowID, status)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"workflow_id": workflowID,
		"tasks":       tasks,
	})
}
