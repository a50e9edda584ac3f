package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// healthHandler handles GET /health. State is process-local, so the checks
// are gauges rather than reachability probes.
func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &HealthResponse{
		Status:        "healthy",
		Sessions:      s.sessions.SessionCount(),
		ActiveStreams: s.sessions.ActiveStreams(),
		Workers:       s.cfg.WorkerCount,
	})
}
