package storage

import "errors"

// Sentinel errors keep store-specific outcomes consistent across the
// in-memory and postgres implementations.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)
