package persistence

import "errors"

var (
	// ErrNotFound is returned when a key does not exist in the store.
	ErrNotFound = errors.New("not found")

	// ErrCorrupted is returned when a stored value cannot be decoded.
	ErrCorrupted = errors.New("corrupted stored value")
)
