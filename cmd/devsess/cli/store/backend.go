package store

import (
	"context"
)

// Backend is the generic persistence interface behind the session store.
//
// State operations move the whole registry at once; entity operations act on
// single records. Every backend guarantees that a WriteState followed by a
// ReadState in the same process observes the written session set, and that
// entity writes are all-or-nothing.
type Backend interface {
	// Location identifies the backing file or connection for diagnostics.
	Location() string

	// Initialize prepares the backing store (creates the file or schema).
	// Idempotent.
	Initialize(ctx context.Context) error

	// ReadState returns the full registry state. A missing backing file
	// yields an empty state, not an error.
	ReadState(ctx context.Context) (*DBState, error)

	// WriteState replaces the full registry state and returns the number of
	// bytes written (0 for SQL backends, which count rows instead).
	WriteState(ctx context.Context, state *DBState) (int, error)

	// Get returns the record, or (nil, nil) when absent.
	Get(ctx context.Context, session string) (*SessionRecord, error)

	// GetAll returns records matching the filter, or all records for nil.
	GetAll(ctx context.Context, filter *Filter) ([]SessionRecord, error)

	// Create inserts a new record. Fails with fault.ErrConflict when the
	// session already exists.
	Create(ctx context.Context, record SessionRecord) error

	// Update merges the patch into an existing record and returns the
	// updated copy, or (nil, nil) when the session is absent.
	Update(ctx context.Context, session string, patch Patch) (*SessionRecord, error)

	// Delete removes the record, reporting whether one was removed.
	Delete(ctx context.Context, session string) (bool, error)

	// Exists reports whether the session is present.
	Exists(ctx context.Context, session string) (bool, error)

	// Close releases the backing file or connection pool.
	Close() error
}
