package services

import "errors"

var (
	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrSessionRunning is returned when attempting to continue a session
	// that is still executing.
	ErrSessionRunning = errors.New("session is still running")
)
