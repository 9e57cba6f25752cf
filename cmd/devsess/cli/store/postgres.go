package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"devsess.io/cli/cmd/devsess/cli/fault"
	"devsess.io/cli/cmd/devsess/cli/redact"
)

// Connection pool limits for the networked backend.
const (
	pgMaxOpenConns    = 10
	pgConnectTimeout  = 30 * time.Second
	pgConnMaxIdleTime = 600 * time.Second
)

// PostgresURLEnvVar names the connection string for the networked backend.
const PostgresURLEnvVar = "DEVSESS_POSTGRES_URL"

// postgresDialect adapts sqlBackend to a networked PostgreSQL database.
type postgresDialect struct{}

func (postgresDialect) name() string { return "postgres" }

func (postgresDialect) placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) createTable() string {
	return `CREATE TABLE IF NOT EXISTS sessions (
		session TEXT PRIMARY KEY,
		repo_name TEXT NOT NULL,
		repo_url TEXT NOT NULL,
		created_at TEXT NOT NULL,
		task_id TEXT,
		branch TEXT,
		pr_branch TEXT,
		pr_approved JSONB,
		pr_state JSONB,
		backend_type TEXT,
		pull_request JSONB
	)`
}

// migrations are additive only; the schema never drops a column.
func (postgresDialect) migrations() []string {
	return []string{
		"ALTER TABLE sessions ADD COLUMN IF NOT EXISTS pr_approved JSONB",
		"ALTER TABLE sessions ADD COLUMN IF NOT EXISTS pr_state JSONB",
		"ALTER TABLE sessions ADD COLUMN IF NOT EXISTS backend_type TEXT",
		"ALTER TABLE sessions ADD COLUMN IF NOT EXISTS pull_request JSONB",
	}
}

func (postgresDialect) isDuplicateColumn(err error) bool {
	var pqErr *pq.Error
	if asPQError(err, &pqErr) {
		return pqErr.Code == "42701" // duplicate_column
	}
	return false
}

func (postgresDialect) isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if asPQError(err, &pqErr) {
		return pqErr.Code == "23505" // unique_violation
	}
	return false
}

func asPQError(err error, target **pq.Error) bool {
	for err != nil {
		if e, ok := err.(*pq.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// NewPostgresBackend connects to the database named by the connection
// string. A connect_timeout is added when the DSN does not carry one.
func NewPostgresBackend(dsn, baseDir string) (Backend, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty postgres connection string (set %s)", fault.ErrInvalidInput, PostgresURLEnvVar)
	}
	if !strings.Contains(dsn, "connect_timeout") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += fmt.Sprintf("%sconnect_timeout=%d", sep, int(pgConnectTimeout.Seconds()))
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening postgres connection: %v", fault.ErrBackendUnavailable, err)
	}
	db.SetMaxOpenConns(pgMaxOpenConns)
	db.SetConnMaxIdleTime(pgConnMaxIdleTime)

	return &sqlBackend{
		db:       db,
		location: redact.DSN(dsn),
		baseDir:  baseDir,
		d:        postgresDialect{},
	}, nil
}
