package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	// Embedded SQL backend driver.
	_ "github.com/mattn/go-sqlite3"

	"devsess.io/cli/cmd/devsess/cli/fault"
)

// sqliteBusyTimeoutMs is how long the driver waits on a locked database
// before failing a statement.
const sqliteBusyTimeoutMs = 5000

// sqliteDialect adapts sqlBackend to the embedded SQLite database.
type sqliteDialect struct{}

func (sqliteDialect) name() string { return "sqlite" }

func (sqliteDialect) placeholder(int) string { return "?" }

func (sqliteDialect) createTable() string {
	return `CREATE TABLE IF NOT EXISTS sessions (
		session TEXT PRIMARY KEY,
		repo_name TEXT NOT NULL,
		repo_url TEXT NOT NULL,
		created_at TEXT NOT NULL,
		task_id TEXT,
		branch TEXT,
		pr_branch TEXT,
		pr_approved TEXT,
		pr_state TEXT,
		backend_type TEXT,
		pull_request TEXT
	)`
}

// migrations add columns introduced after the initial schema. SQLite has no
// ADD COLUMN IF NOT EXISTS, so duplicate-column errors are detected and
// ignored instead.
func (sqliteDialect) migrations() []string {
	return []string{
		"ALTER TABLE sessions ADD COLUMN pr_approved TEXT",
		"ALTER TABLE sessions ADD COLUMN pr_state TEXT",
		"ALTER TABLE sessions ADD COLUMN backend_type TEXT",
		"ALTER TABLE sessions ADD COLUMN pull_request TEXT",
	}
}

func (sqliteDialect) isDuplicateColumn(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}

func (sqliteDialect) isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// NewSQLiteBackend opens (or creates) the embedded database at path.
func NewSQLiteBackend(path, baseDir string) (Backend, error) {
	dsn := "file:" + path + "?_busy_timeout=" + strconv.Itoa(sqliteBusyTimeoutMs) + "&_journal_mode=WAL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening sqlite database %q: %v", fault.ErrTransientIO, path, err)
	}
	// The embedded database permits a single writer; funnel everything
	// through one connection to keep the busy timeout meaningful.
	db.SetMaxOpenConns(1)

	return &sqlBackend{
		db:       db,
		location: path,
		baseDir:  baseDir,
		d:        sqliteDialect{},
	}, nil
}
