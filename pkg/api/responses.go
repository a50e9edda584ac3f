package api

import (
	"time"

	"github.com/queryflow/queryflow/pkg/events"
)

// SessionResponse is returned by session create/continue.
type SessionResponse struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	StreamURL string    `json:"stream_url"`
}

// EventsResponse is returned by GET /api/v1/sessions/:id/events.
type EventsResponse struct {
	SessionID   string             `json:"session_id"`
	Events      []events.StepEvent `json:"events"`
	TotalEvents int                `json:"total_events"`
}

// DeleteResponse is returned by DELETE /api/v1/sessions/:id.
type DeleteResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Sessions      int    `json:"sessions"`
	ActiveStreams int    `json:"active_streams"`
	Workers       int    `json:"workers"`
}
