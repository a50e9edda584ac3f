// Package session holds the process-wide registry of in-flight and
// completed query executions. State lives for the process lifetime only.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/queryflow/queryflow/pkg/models"
)

// Store manages sessions in memory.
type Store struct {
	sessions map[string]*models.Session
	mu       sync.RWMutex
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*models.Session),
	}
}

// Create allocates a new pending session with a fresh unique identifier.
func (s *Store) Create() *models.Session {
	sess := &models.Session{
		ID:        uuid.New().String(),
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return sess
}

// Get retrieves a session by ID.
func (s *Store) Get(sessionID string) (*models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	return sess, ok
}

// UpdateStatus applies a status transition to a session. Unknown IDs are a
// no-op; callers are expected to have verified existence. Transitions to a
// terminal state carry the result or error and the execution duration in
// seconds; per-session locking in models.Session serializes concurrent
// updates so terminal-field writes cannot interleave.
func (s *Store) UpdateStatus(sessionID string, status models.SessionStatus, result any, errMsg string, executionTime float64) {
	sess, ok := s.Get(sessionID)
	if !ok {
		return
	}

	switch status {
	case models.StatusRunning:
		sess.MarkRunning()
	case models.StatusCompleted:
		sess.MarkCompleted(result, executionTime)
	case models.StatusFailed:
		sess.MarkFailed(errMsg, executionTime)
	case models.StatusPending:
		sess.ResetForRun()
	}
}

// Remove deletes a session from the store. The caller owns the
// only-when-no-subscribers cleanup policy.
func (s *Store) Remove(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Count returns the number of stored sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
