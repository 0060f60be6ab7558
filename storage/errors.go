package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a task is not found.
	ErrNotFound = errors.New("task not found")
)
