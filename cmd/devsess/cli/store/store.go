package store

import (
	"context"
	"fmt"
	"time"

	"devsess.io/cli/cmd/devsess/cli/fault"
	"devsess.io/cli/cmd/devsess/cli/paths"
	"devsess.io/cli/cmd/devsess/cli/task"
)

// Store is the session registry consumed by the rest of the core. It wraps a
// Backend with input validation, task-ID normalization, and the store-boundary
// failure policy: persistence errors are logged once here and surfaced as
// absent/false/error per operation.
//
// Store owns the canonical records; every accessor returns copies. The
// canonical workspace path for a record is derived here and nowhere else.
type Store struct {
	backend Backend
	baseDir string
}

// New wraps a backend. baseDir is the state directory under which session
// workspaces live.
func New(backend Backend, baseDir string) *Store {
	return &Store{backend: backend, baseDir: baseDir}
}

// Backend exposes the underlying persistence for diagnostics (doctor).
func (s *Store) Backend() Backend { return s.backend }

// BaseDir returns the state base directory the store resolves paths under.
func (s *Store) BaseDir() string { return s.baseDir }

// Close releases the backend.
func (s *Store) Close() error { return s.backend.Close() }

// List returns a snapshot of all records. Iteration order is unspecified.
// Persistence failures log and return an empty snapshot.
func (s *Store) List(ctx context.Context) []SessionRecord {
	records, err := s.backend.GetAll(ctx, nil)
	if err != nil {
		warnOnce(ctx, "list", err)
		return nil
	}
	return records
}

// Get returns the record for the session, or false when absent or on
// persistence failure.
func (s *Store) Get(ctx context.Context, session string) (*SessionRecord, bool) {
	rec, err := s.backend.Get(ctx, session)
	if err != nil {
		warnOnce(ctx, "get", err)
		return nil, false
	}
	if rec == nil {
		return nil, false
	}
	return rec, true
}

// GetByTaskID returns the record whose task ID normalizes to the same value
// as tid. tid is accepted in any form task.Normalize accepts.
func (s *Store) GetByTaskID(ctx context.Context, tid string) (*SessionRecord, bool) {
	want, err := task.Normalize(tid)
	if err != nil {
		return nil, false
	}
	records, err := s.backend.GetAll(ctx, nil)
	if err != nil {
		warnOnce(ctx, "get-by-task", err)
		return nil, false
	}
	for i := range records {
		if records[i].TaskID == "" {
			continue
		}
		if got, err := task.Normalize(string(records[i].TaskID)); err == nil && got == want {
			rec := records[i].Clone()
			return &rec, true
		}
	}
	return nil, false
}

// Add inserts a new record. The session name is validated, CreatedAt is
// stamped when zero, and the task ID is canonicalized. Duplicate sessions
// fail with fault.ErrConflict.
func (s *Store) Add(ctx context.Context, record SessionRecord) error {
	if err := paths.ValidateSessionName(record.Session); err != nil {
		return fmt.Errorf("%w: %v", fault.ErrInvalidInput, err)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.TaskID != "" {
		id, err := task.Normalize(string(record.TaskID))
		if err != nil {
			return err
		}
		record.TaskID = id
	}
	if err := s.backend.Create(ctx, record); err != nil {
		warnOnce(ctx, "add", err)
		return err
	}
	return nil
}

// Update merges the patch into an existing record. The session name itself
// is protected by construction (Patch has no session field). Updating an
// absent session is a no-op returning (nil, nil).
func (s *Store) Update(ctx context.Context, session string, patch Patch) (*SessionRecord, error) {
	if patch.TaskID != nil && *patch.TaskID != "" {
		id, err := task.Normalize(string(*patch.TaskID))
		if err != nil {
			return nil, err
		}
		patch.TaskID = &id
	}
	rec, err := s.backend.Update(ctx, session, patch)
	if err != nil {
		warnOnce(ctx, "update", err)
		return nil, err
	}
	return rec, nil
}

// Delete removes the record, reporting whether one was removed.
func (s *Store) Delete(ctx context.Context, session string) bool {
	removed, err := s.backend.Delete(ctx, session)
	if err != nil {
		warnOnce(ctx, "delete", err)
		return false
	}
	return removed
}

// RepoPath returns the canonical workspace path for a record:
// <baseDir>/sessions/<session>. The path depends only on the session name,
// never on the repository name; see the migrator for the legacy layout.
func (s *Store) RepoPath(record *SessionRecord) string {
	return paths.SessionDir(s.baseDir, record.Session)
}

// SessionWorkdir returns the canonical workspace path for a session name,
// or false when the session is not registered.
func (s *Store) SessionWorkdir(ctx context.Context, session string) (string, bool) {
	rec, ok := s.Get(ctx, session)
	if !ok {
		return "", false
	}
	return s.RepoPath(rec), true
}
