package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"devsess.io/cli/cmd/devsess/cli/fault"
	"devsess.io/cli/cmd/devsess/cli/jsonutil"
	"devsess.io/cli/cmd/devsess/cli/logging"
)

// fileLocks serializes writes per database path within this process.
// Cross-process safety comes from the write-then-rename in writeFile.
var fileLocks sync.Map // path -> *sync.Mutex

func lockFor(path string) *sync.Mutex {
	mu, _ := fileLocks.LoadOrStore(path, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// JSONBackend persists the registry as a single JSON file.
//
// Reads accept both the current object form {"sessions":[...],"baseDir":...}
// and the legacy bare array form. Writes always emit the object form. An
// unparseable file reads as empty state and is logged at WARN, never
// returned as an error.
type JSONBackend struct {
	path    string
	baseDir string
}

// NewJSONBackend returns a JSON file backend at path. baseDir is recorded in
// the written state so the layout survives relocation of the file.
func NewJSONBackend(path, baseDir string) *JSONBackend {
	return &JSONBackend{path: path, baseDir: baseDir}
}

func (b *JSONBackend) Location() string { return b.path }

func (b *JSONBackend) Close() error { return nil }

// Initialize creates the parent directory and an empty database file if none
// exists. A zero-byte file counts as missing and is rewritten as empty state.
func (b *JSONBackend) Initialize(ctx context.Context) error {
	mu := lockFor(b.path)
	mu.Lock()
	defer mu.Unlock()

	if info, err := os.Stat(b.path); err == nil && info.Size() > 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o750); err != nil {
		return fmt.Errorf("%w: creating database directory: %v", fault.ErrTransientIO, err)
	}
	_, err := b.writeFile(&DBState{Sessions: []SessionRecord{}, BaseDir: b.baseDir})
	return err
}

func (b *JSONBackend) ReadState(ctx context.Context) (*DBState, error) {
	mu := lockFor(b.path)
	mu.Lock()
	defer mu.Unlock()
	return b.readState(ctx), nil
}

// readState must be called with the path lock held.
func (b *JSONBackend) readState(ctx context.Context) *DBState {
	empty := &DBState{Sessions: []SessionRecord{}, BaseDir: b.baseDir}

	data, err := os.ReadFile(b.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn(ctx, "failed to read session database, treating as empty",
				"path", b.path, "error", err.Error())
		}
		return empty
	}

	// Current object form first.
	var state DBState
	if err := json.Unmarshal(data, &state); err == nil && state.Sessions != nil {
		if state.BaseDir == "" {
			state.BaseDir = b.baseDir
		}
		return &state
	}

	// Legacy bare array form.
	var sessions []SessionRecord
	if err := json.Unmarshal(data, &sessions); err == nil {
		return &DBState{Sessions: sessions, BaseDir: b.baseDir}
	}

	// Object form with a null/missing sessions key still counts as empty.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err == nil {
		if state.BaseDir != "" {
			empty.BaseDir = state.BaseDir
		}
		return empty
	}

	logging.Warn(ctx, "session database is not valid JSON, treating as empty",
		"path", b.path)
	return empty
}

func (b *JSONBackend) WriteState(ctx context.Context, state *DBState) (int, error) {
	mu := lockFor(b.path)
	mu.Lock()
	defer mu.Unlock()
	return b.writeFile(state)
}

// writeFile writes the state atomically via a temporary sibling file.
// Must be called with the path lock held.
func (b *JSONBackend) writeFile(state *DBState) (int, error) {
	if state.Sessions == nil {
		state.Sessions = []SessionRecord{}
	}
	if state.BaseDir == "" {
		state.BaseDir = b.baseDir
	}

	data, err := jsonutil.MarshalIndentWithNewline(state, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshaling session database: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0o750); err != nil {
		return 0, fmt.Errorf("%w: creating database directory: %v", fault.ErrTransientIO, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(b.path), filepath.Base(b.path)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("%w: creating temporary database file: %v", fault.ErrTransientIO, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("%w: writing session database: %v", fault.ErrTransientIO, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("%w: closing temporary database file: %v", fault.ErrTransientIO, err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("%w: replacing session database: %v", fault.ErrTransientIO, err)
	}

	return len(data), nil
}

func (b *JSONBackend) Get(ctx context.Context, session string) (*SessionRecord, error) {
	mu := lockFor(b.path)
	mu.Lock()
	defer mu.Unlock()

	state := b.readState(ctx)
	for i := range state.Sessions {
		if state.Sessions[i].Session == session {
			rec := state.Sessions[i].Clone()
			return &rec, nil
		}
	}
	return nil, nil
}

func (b *JSONBackend) GetAll(ctx context.Context, filter *Filter) ([]SessionRecord, error) {
	mu := lockFor(b.path)
	mu.Lock()
	defer mu.Unlock()

	state := b.readState(ctx)
	out := make([]SessionRecord, 0, len(state.Sessions))
	for i := range state.Sessions {
		if filter.Matches(&state.Sessions[i]) {
			out = append(out, state.Sessions[i].Clone())
		}
	}
	return out, nil
}

func (b *JSONBackend) Create(ctx context.Context, record SessionRecord) error {
	mu := lockFor(b.path)
	mu.Lock()
	defer mu.Unlock()

	state := b.readState(ctx)
	for i := range state.Sessions {
		if state.Sessions[i].Session == record.Session {
			return fmt.Errorf("%w: session %q already exists", fault.ErrConflict, record.Session)
		}
	}
	state.Sessions = append(state.Sessions, record.Clone())
	_, err := b.writeFile(state)
	return err
}

func (b *JSONBackend) Update(ctx context.Context, session string, patch Patch) (*SessionRecord, error) {
	mu := lockFor(b.path)
	mu.Lock()
	defer mu.Unlock()

	state := b.readState(ctx)
	for i := range state.Sessions {
		if state.Sessions[i].Session != session {
			continue
		}
		patch.Apply(&state.Sessions[i])
		if _, err := b.writeFile(state); err != nil {
			return nil, err
		}
		rec := state.Sessions[i].Clone()
		return &rec, nil
	}
	return nil, nil
}

func (b *JSONBackend) Delete(ctx context.Context, session string) (bool, error) {
	mu := lockFor(b.path)
	mu.Lock()
	defer mu.Unlock()

	state := b.readState(ctx)
	for i := range state.Sessions {
		if state.Sessions[i].Session == session {
			state.Sessions = append(state.Sessions[:i], state.Sessions[i+1:]...)
			if _, err := b.writeFile(state); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

func (b *JSONBackend) Exists(ctx context.Context, session string) (bool, error) {
	rec, err := b.Get(ctx, session)
	return rec != nil, err
}
