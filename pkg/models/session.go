package models

import (
	"sync"
	"time"
)

// QueryType selects the tool set and prompt template for an execution.
type QueryType string

const (
	QueryTypeChat     QueryType = "chat"
	QueryTypeResearch QueryType = "research"
	QueryTypeDocs     QueryType = "docs"
)

// Valid reports whether the query type is one of the supported values.
func (q QueryType) Valid() bool {
	switch q {
	case QueryTypeChat, QueryTypeResearch, QueryTypeDocs:
		return true
	}
	return false
}

// SessionStatus represents the current state of a session.
type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Session represents one query execution and its status/result lifecycle.
//
// StartedAt is set at most once, on the first transition into running.
// CompletedAt, Result, Error and ExecutionTime are set exactly once, on the
// single transition into a terminal state. Exactly one of Result/Error is
// populated in a terminal state.
type Session struct {
	ID            string        `json:"session_id"`
	Status        SessionStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	StartedAt     *time.Time    `json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at"`
	Result        any           `json:"result"`
	Error         string        `json:"error,omitempty"`
	ExecutionTime *float64      `json:"execution_time"`

	mu sync.RWMutex // protects concurrent access to session fields
}

// MarkRunning transitions the session into running. StartedAt is only
// written on the first such transition (thread-safe).
func (s *Session) MarkRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Status = StatusRunning
	if s.StartedAt == nil {
		now := time.Now().UTC()
		s.StartedAt = &now
	}
}

// MarkCompleted transitions the session into completed with its result and
// execution duration in seconds. A second terminal transition is ignored so
// racing finalizers cannot interleave terminal-field writes (thread-safe).
func (s *Session) MarkCompleted(result any, executionTime float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status.Terminal() {
		return
	}
	now := time.Now().UTC()
	s.Status = StatusCompleted
	s.CompletedAt = &now
	s.Result = result
	s.Error = ""
	s.ExecutionTime = &executionTime
}

// MarkFailed transitions the session into failed with the error message and
// execution duration in seconds. Ignored if already terminal (thread-safe).
func (s *Session) MarkFailed(errMsg string, executionTime float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status.Terminal() {
		return
	}
	now := time.Now().UTC()
	s.Status = StatusFailed
	s.CompletedAt = &now
	s.Result = nil
	s.Error = errMsg
	s.ExecutionTime = &executionTime
}

// ResetForRun revives the session back to pending for a follow-up query,
// clearing terminal fields but preserving ID and CreatedAt. It refuses to
// reset a session that is currently running and reports whether the reset
// was applied (thread-safe).
func (s *Session) ResetForRun() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status == StatusRunning {
		return false
	}
	s.Status = StatusPending
	s.CompletedAt = nil
	s.Result = nil
	s.Error = ""
	s.ExecutionTime = nil
	return true
}

// CurrentStatus returns the status under the read lock.
func (s *Session) CurrentStatus() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// Clone creates a safe copy of the session for reading and serialization.
func (s *Session) Clone() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Session{
		ID:            s.ID,
		Status:        s.Status,
		CreatedAt:     s.CreatedAt,
		StartedAt:     s.StartedAt,
		CompletedAt:   s.CompletedAt,
		Result:        s.Result,
		Error:         s.Error,
		ExecutionTime: s.ExecutionTime,
	}
}
