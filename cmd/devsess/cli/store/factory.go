package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"devsess.io/cli/cmd/devsess/cli/fault"
	"devsess.io/cli/cmd/devsess/cli/paths"
)

// Backend type names accepted by the factory.
const (
	BackendJSON     = "json"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Default database file names under the state base directory.
const (
	JSONFileName   = "sessions.json"
	SQLiteFileName = "sessions.db"
)

// Config selects and parameterizes a persistence backend.
type Config struct {
	// Backend is one of BackendJSON, BackendSQLite, BackendPostgres.
	// Empty selects JSON.
	Backend string

	// Path overrides the database file location (JSON and SQLite).
	Path string

	// DSN is the Postgres connection string. Empty falls back to
	// DEVSESS_POSTGRES_URL.
	DSN string

	// BaseDir overrides the state base directory.
	BaseDir string
}

// Open builds a Store from the config and initializes its backend. The
// factory owns nothing beyond the config; the returned store owns the
// backend and must be closed.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	base := cfg.BaseDir
	if base == "" {
		base = paths.BaseDir()
	}

	backend, err := newBackend(cfg, base)
	if err != nil {
		return nil, err
	}
	if err := backend.Initialize(ctx); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("initializing session store at %s: %w", backend.Location(), err)
	}
	return New(backend, base), nil
}

func newBackend(cfg Config, base string) (Backend, error) {
	switch cfg.Backend {
	case "", BackendJSON:
		path := cfg.Path
		if path == "" {
			path = filepath.Join(base, JSONFileName)
		}
		return NewJSONBackend(path, base), nil

	case BackendSQLite:
		path := cfg.Path
		if path == "" {
			path = filepath.Join(base, SQLiteFileName)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("%w: creating database directory: %v", fault.ErrTransientIO, err)
		}
		return NewSQLiteBackend(path, base)

	case BackendPostgres:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = os.Getenv(PostgresURLEnvVar)
		}
		return NewPostgresBackend(dsn, base)

	default:
		return nil, fmt.Errorf("%w: unknown store backend %q (expected %s, %s, or %s)",
			fault.ErrInvalidInput, cfg.Backend, BackendJSON, BackendSQLite, BackendPostgres)
	}
}
