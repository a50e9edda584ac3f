// Package events provides the per-session event log and the in-process
// delivery bus that fans events out to live stream subscribers.
package events

import "time"

// Event types broadcast over a session's stream, in the order a normal
// execution produces them.
const (
	EventTypeUserMessage      = "user_message"
	EventTypeSessionStarted   = "session_started"
	EventTypeStepUpdate       = "step_update"
	EventTypeStepCompleted    = "step_completed"
	EventTypeSessionCompleted = "session_completed"
	EventTypeSessionFailed    = "session_failed"
)

// Synthetic event types emitted per-connection by the streaming endpoints.
// Never appended to the session's event log.
const (
	EventTypeConnected = "connected"
	EventTypeHeartbeat = "heartbeat"
)

// StepEvent is one immutable, ordered notification about a session's
// progress. Events are strictly ordered by append time within a session.
type StepEvent struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	StepID    string    `json:"step_id,omitempty"`
	StepName  string    `json:"step_name,omitempty"`
	ToolID    string    `json:"tool_id,omitempty"`
	Status    string    `json:"status"`
	Output    any       `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Envelope is the wire shape delivered to stream subscribers. IsHistorical
// distinguishes replayed-from-log events from events delivered at broadcast
// time.
type Envelope struct {
	StepEvent
	IsHistorical bool `json:"is_historical"`
}

// Connected builds the synthetic handshake event sent once when a stream
// connection is established.
func Connected(sessionID string) StepEvent {
	return StepEvent{
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		EventType: EventTypeConnected,
		Status:    "connected",
		Output:    "Connected to session stream",
	}
}

// Heartbeat builds the synthetic liveness pulse sent when no event arrives
// within the stream's heartbeat interval.
func Heartbeat(sessionID string) StepEvent {
	return StepEvent{
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		EventType: EventTypeHeartbeat,
		Status:    "ok",
	}
}
