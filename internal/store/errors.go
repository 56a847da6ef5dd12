package store

import "errors"

var (
	// ErrStateCorruption is returned by Load when persisted state exists but
	// cannot be parsed. Callers treat it as empty state.
	ErrStateCorruption = errors.New("state corrupted")

	// ErrPersistence is returned by Save when the state could not be written.
	ErrPersistence = errors.New("state not persisted")

	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown state backend")
)
