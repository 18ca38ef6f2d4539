package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no record exists for a key.
	ErrNotFound = errors.New("store: record not found")

	// ErrVersionConflict is returned by Put when the stored version does not
	// match the caller's expected version.
	ErrVersionConflict = errors.New("store: version conflict")
)

// Record is a stored value and the revision it was written at.
type Record struct {
	Data    []byte
	Version int64
}

// Store is a key/value store with per-key compare-and-set writes.
//
// Versions start at 1 and increase by one on every successful Put. An
// expected version of 0 means "create": the Put fails with
// ErrVersionConflict if the key already exists.
type Store interface {
	// Get returns the record for key, or ErrNotFound.
	Get(ctx context.Context, key string) (Record, error)

	// Put writes data iff the current version equals expected and returns
	// the new version.
	Put(ctx context.Context, key string, data []byte, expected int64) (int64, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
