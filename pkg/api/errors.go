package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/queryflow/queryflow/pkg/executor"
	"github.com/queryflow/queryflow/pkg/services"
)

// respondServiceError writes the HTTP response for a service-layer error.
// The invalid-tools rejection carries a structured body listing both the
// offending and available tool identifiers, so it is written directly rather
// than through an HTTPError message.
func respondServiceError(c *echo.Context, err error) error {
	var toolsErr *executor.InvalidToolsError
	if errors.As(err, &toolsErr) {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"error":           "Invalid tools requested",
			"message":         toolsErr.Error(),
			"invalid_tools":   toolsErr.Invalid,
			"available_tools": toolsErr.Available,
		})
	}
	return mapServiceError(err)
}

// mapServiceError maps service-layer errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	if errors.Is(err, services.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if errors.Is(err, services.ErrSessionRunning) {
		return echo.NewHTTPError(http.StatusConflict, "session is still running")
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
