// Package api exposes the session lifecycle and event streaming endpoints
// over HTTP.
package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/queryflow/queryflow/pkg/config"
	"github.com/queryflow/queryflow/pkg/services"
)

// Server is the HTTP API server.
type Server struct {
	cfg      *config.Config
	sessions *services.SessionService

	echo *echo.Echo
	http *http.Server
}

// NewServer creates the API server and registers its routes.
func NewServer(cfg *config.Config, sessions *services.SessionService) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		echo:     echo.New(),
	}

	s.echo.Use(securityHeaders())
	s.echo.Use(requestLogger())

	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/sessions", s.createSessionHandler)
	v1.POST("/sessions/:id/messages", s.continueSessionHandler)
	v1.GET("/sessions/:id", s.getSessionHandler)
	v1.GET("/sessions/:id/events", s.sessionEventsHandler)
	v1.GET("/sessions/:id/stream", s.streamSessionHandler)
	v1.GET("/sessions/:id/ws", s.wsSessionHandler)
	v1.DELETE("/sessions/:id", s.deleteSessionHandler)

	return s
}

// Handler returns the root HTTP handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start begins serving on addr. Blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.echo,
	}
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
