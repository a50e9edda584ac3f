// Package services contains the orchestration layer between the HTTP
// handlers and the session store, event bus and execution driver.
package services

import (
	"log/slog"

	"github.com/queryflow/queryflow/pkg/events"
	"github.com/queryflow/queryflow/pkg/executor"
	"github.com/queryflow/queryflow/pkg/models"
	"github.com/queryflow/queryflow/pkg/session"
)

// SessionService coordinates session lifecycle, event access and execution
// launches. One long-lived instance is constructed at startup and shared by
// every request handler.
type SessionService struct {
	store  *session.Store
	bus    *events.Bus
	driver *executor.Driver
	engine executor.Engine
}

// NewSessionService creates the session service.
func NewSessionService(store *session.Store, bus *events.Bus, driver *executor.Driver, engine executor.Engine) *SessionService {
	return &SessionService{
		store:  store,
		bus:    bus,
		driver: driver,
		engine: engine,
	}
}

// Create validates the tool selection for the query type, creates a pending
// session and launches its execution in the background. The returned
// snapshot reflects the session at creation time. If the tool selection is
// invalid the session is never created and an *executor.InvalidToolsError
// is returned.
func (s *SessionService) Create(query string, queryType models.QueryType, repoName string) (models.Session, error) {
	if err := executor.ValidateTools(s.engine, executor.ToolsFor(queryType)); err != nil {
		return models.Session{}, err
	}

	sess := s.store.Create()
	slog.Info("Created session",
		"session_id", sess.ID, "query_type", queryType)

	s.driver.Launch(sess.ID, query, queryType, repoName)
	return sess.Clone(), nil
}

// Continue revives an existing session for a follow-up query. Returns
// ErrNotFound for an unknown session and ErrSessionRunning when the session
// is still executing; in the conflict case the in-flight execution is left
// untouched.
func (s *SessionService) Continue(sessionID, query string, queryType models.QueryType, repoName string) (models.Session, error) {
	sess, ok := s.store.Get(sessionID)
	if !ok {
		return models.Session{}, ErrNotFound
	}

	if err := executor.ValidateTools(s.engine, executor.ToolsFor(queryType)); err != nil {
		return models.Session{}, err
	}

	// Status check and reset are one critical section on the session, so a
	// concurrent run cannot slip in between them.
	if !sess.ResetForRun() {
		return models.Session{}, ErrSessionRunning
	}

	slog.Info("Continuing session",
		"session_id", sessionID, "query_type", queryType)

	s.driver.Launch(sessionID, query, queryType, repoName)
	return sess.Clone(), nil
}

// Get returns a snapshot of the session.
func (s *SessionService) Get(sessionID string) (models.Session, error) {
	sess, ok := s.store.Get(sessionID)
	if !ok {
		return models.Session{}, ErrNotFound
	}
	return sess.Clone(), nil
}

// Events returns up to the last limit stored events for the session.
func (s *SessionService) Events(sessionID string, limit int) ([]events.StepEvent, error) {
	if _, ok := s.store.Get(sessionID); !ok {
		return nil, ErrNotFound
	}
	return s.bus.Recent(sessionID, limit), nil
}

// Subscribe verifies the session exists and registers a new stream
// subscriber for it.
func (s *SessionService) Subscribe(sessionID string) (*events.Subscriber, error) {
	if _, ok := s.store.Get(sessionID); !ok {
		return nil, ErrNotFound
	}
	return s.bus.Subscribe(sessionID), nil
}

// Unsubscribe removes a stream subscriber from the session.
func (s *SessionService) Unsubscribe(sessionID string, sub *events.Subscriber) {
	s.bus.Unsubscribe(sessionID, sub)
}

// Replay returns the stored events to replay to a newly-connected
// subscriber, oldest first.
func (s *SessionService) Replay(sessionID string, limit int) []events.StepEvent {
	return s.bus.Recent(sessionID, limit)
}

// Delete removes all session state iff no subscribers remain; with live
// subscribers it is deliberately a no-op so clients mid-stream are never
// severed by a delete racing with them. Reports whether the session was
// removed now or deferred.
func (s *SessionService) Delete(sessionID string) (bool, error) {
	if _, ok := s.store.Get(sessionID); !ok {
		return false, ErrNotFound
	}

	if !s.bus.DropIfIdle(sessionID) {
		slog.Info("Session delete deferred, subscribers still connected",
			"session_id", sessionID)
		return false, nil
	}

	s.store.Remove(sessionID)
	slog.Info("Session deleted", "session_id", sessionID)
	return true, nil
}

// SessionCount returns the number of stored sessions (health reporting).
func (s *SessionService) SessionCount() int {
	return s.store.Count()
}

// ActiveStreams returns the number of live stream subscribers across all
// sessions (health reporting).
func (s *SessionService) ActiveStreams() int {
	return s.bus.TotalSubscribers()
}
