package session

import "errors"

var (
	// ErrInvalidSession indicates a session violating the logged-in/token invariant.
	ErrInvalidSession = errors.New("invalid session")
	// ErrPersistence indicates the persisted record could not be read, written or removed.
	ErrPersistence = errors.New("session persistence failure")
	// ErrNoRecord indicates there is no persisted session record.
	ErrNoRecord = errors.New("no persisted session record")
)
