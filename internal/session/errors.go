package session

import "errors"

var (
	// ErrHydration marks a persisted log that could not be read back. It is
	// logged by Restore and never returned to callers.
	ErrHydration = errors.New("session: persisted log unreadable")

	// ErrTurnInProgress is returned by BeginTurn when another turn holds the session.
	ErrTurnInProgress = errors.New("session: turn already in progress")
)
