package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/synapse/orchestrator/cmd/orchestrator/service"
	"github.com/synapse/orchestrator/common/repository"
)

// errorResponse maps service and repository errors onto HTTP statuses
func errorResponse(c echo.Context, err error) error {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, repository.ErrTaskNotFound),
		errors.Is(err, service.ErrWorkflowNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidBlueprint),
		errors.Is(err, service.ErrUnsupportedIntervention),
		errors.Is(err, repository.ErrHistoryNotFound):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidIntervention):
		status = http.StatusBadRequest
	case errors.Is(err, repository.ErrInvalidTransition),
		errors.Is(err, repository.ErrVersionConflict):
		status = http.StatusConflict
	}

	return c.JSON(status, map[string]interface{}{
		"error": err.Error(),
	})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, map[string]interface{}{
		"error": message,
	})
}
