package entities

import "errors"

var (
	// ErrStoreUnavailable means the document store failed or is not initialized.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrNotPersisted means a session without a store id was about to be mutated.
	ErrNotPersisted = errors.New("session is not persisted")
	// ErrInsufficientData means fewer records were available than required.
	ErrInsufficientData = errors.New("insufficient data")

	ErrOutOfRange       = errors.New("value out of range")
	ErrSessionCompleted = errors.New("session already completed")
)
