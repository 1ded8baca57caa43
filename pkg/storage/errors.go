package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a message does not exist.
	ErrNotFound = errors.New("message not found")
)
