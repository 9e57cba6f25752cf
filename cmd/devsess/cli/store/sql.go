package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"devsess.io/cli/cmd/devsess/cli/fault"
	"devsess.io/cli/cmd/devsess/cli/logging"
)

// dialect captures the differences between the embedded and networked SQL
// backends. Everything else (schema shape, codec, transaction discipline) is
// shared in sqlBackend.
type dialect interface {
	// name is the backend type for diagnostics ("sqlite", "postgres").
	name() string

	// placeholder renders the n-th (1-based) statement parameter.
	placeholder(n int) string

	// createTable is the idempotent table creation statement.
	createTable() string

	// migrations are additive ALTER TABLE statements, applied in order.
	// Duplicate-column failures are ignored.
	migrations() []string

	// isDuplicateColumn reports whether err means the migration column
	// already exists.
	isDuplicateColumn(err error) bool

	// isUniqueViolation reports whether err means a primary key collision.
	isUniqueViolation(err error) bool
}

// sqlBackend implements Backend over database/sql for both SQL dialects.
type sqlBackend struct {
	db       *sql.DB
	location string
	baseDir  string
	d        dialect
}

func (b *sqlBackend) Location() string { return b.location }

func (b *sqlBackend) Close() error { return b.db.Close() }

// Initialize creates the sessions table and applies additive migrations.
// Both steps tolerate pre-existing schema.
func (b *sqlBackend) Initialize(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, b.d.createTable()); err != nil {
		return fmt.Errorf("%w: creating sessions table: %v", classifySQLErr(err), err)
	}
	for _, stmt := range b.d.migrations() {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			if b.d.isDuplicateColumn(err) {
				continue
			}
			return fmt.Errorf("%w: applying schema migration: %v", classifySQLErr(err), err)
		}
	}
	return nil
}

func (b *sqlBackend) selectStmt(where string) string {
	q := "SELECT " + strings.Join(sessionColumns, ", ") + " FROM sessions"
	if where != "" {
		q += " WHERE " + where
	}
	return q
}

func (b *sqlBackend) ReadState(ctx context.Context) (*DBState, error) {
	records, err := b.GetAll(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &DBState{Sessions: records, BaseDir: b.baseDir}, nil
}

// WriteState replaces all rows in one transaction: truncate, then batched
// inserts of at most insertBatchSize rows each. Returns the row count.
func (b *sqlBackend) WriteState(ctx context.Context, state *DBState) (int, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: starting write transaction: %v", classifySQLErr(err), err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions"); err != nil {
		return 0, fmt.Errorf("%w: truncating sessions: %v", classifySQLErr(err), err)
	}

	for start := 0; start < len(state.Sessions); start += insertBatchSize {
		end := min(start+insertBatchSize, len(state.Sessions))
		if err := b.insertBatch(ctx, tx, state.Sessions[start:end]); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: committing write transaction: %v", classifySQLErr(err), err)
	}
	return len(state.Sessions), nil
}

func (b *sqlBackend) insertBatch(ctx context.Context, tx *sql.Tx, records []SessionRecord) error {
	if len(records) == 0 {
		return nil
	}

	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString("INSERT INTO sessions (")
	sb.WriteString(strings.Join(sessionColumns, ", "))
	sb.WriteString(") VALUES ")

	n := 1
	for i := range records {
		vals, err := recordValues(&records[i])
		if err != nil {
			return err
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := range vals {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(b.d.placeholder(n))
			n++
		}
		sb.WriteString(")")
		args = append(args, vals...)
	}

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("%w: inserting session batch: %v", classifySQLErr(err), err)
	}
	return nil
}

func (b *sqlBackend) Get(ctx context.Context, session string) (*SessionRecord, error) {
	row := b.db.QueryRowContext(ctx, b.selectStmt("session = "+b.d.placeholder(1)), session)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading session %q: %v", classifySQLErr(err), session, err)
	}
	return rec, nil
}

func (b *sqlBackend) GetAll(ctx context.Context, filter *Filter) ([]SessionRecord, error) {
	rows, err := b.db.QueryContext(ctx, b.selectStmt("")+" ORDER BY session")
	if err != nil {
		return nil, fmt.Errorf("%w: listing sessions: %v", classifySQLErr(err), err)
	}
	defer func() { _ = rows.Close() }()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding session row: %v", classifySQLErr(err), err)
		}
		if filter.Matches(rec) {
			out = append(out, *rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating sessions: %v", classifySQLErr(err), err)
	}
	if out == nil {
		out = []SessionRecord{}
	}
	return out, nil
}

func (b *sqlBackend) Create(ctx context.Context, record SessionRecord) error {
	vals, err := recordValues(&record)
	if err != nil {
		return err
	}

	placeholders := make([]string, len(vals))
	for i := range vals {
		placeholders[i] = b.d.placeholder(i + 1)
	}
	stmt := "INSERT INTO sessions (" + strings.Join(sessionColumns, ", ") +
		") VALUES (" + strings.Join(placeholders, ", ") + ")"

	if _, err := b.db.ExecContext(ctx, stmt, vals...); err != nil {
		if b.d.isUniqueViolation(err) {
			return fmt.Errorf("%w: session %q already exists", fault.ErrConflict, record.Session)
		}
		return fmt.Errorf("%w: inserting session %q: %v", classifySQLErr(err), record.Session, err)
	}
	return nil
}

// Update reads the row, applies the patch, and rewrites every column inside
// one transaction so concurrent writers cannot interleave partial updates.
func (b *sqlBackend) Update(ctx context.Context, session string, patch Patch) (*SessionRecord, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: starting update transaction: %v", classifySQLErr(err), err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, b.selectStmt("session = "+b.d.placeholder(1)), session)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading session %q: %v", classifySQLErr(err), session, err)
	}

	patch.Apply(rec)
	rec.Session = session // primary key is immutable

	vals, err := recordValues(rec)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("UPDATE sessions SET ")
	for i, col := range sessionColumns[1:] {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(col + " = " + b.d.placeholder(i+1))
	}
	sb.WriteString(" WHERE session = " + b.d.placeholder(len(sessionColumns)))

	args := append(append([]any{}, vals[1:]...), session)
	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("%w: updating session %q: %v", classifySQLErr(err), session, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: committing update: %v", classifySQLErr(err), err)
	}
	return rec, nil
}

func (b *sqlBackend) Delete(ctx context.Context, session string) (bool, error) {
	res, err := b.db.ExecContext(ctx, "DELETE FROM sessions WHERE session = "+b.d.placeholder(1), session)
	if err != nil {
		return false, fmt.Errorf("%w: deleting session %q: %v", classifySQLErr(err), session, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: reading delete result: %v", classifySQLErr(err), err)
	}
	return n > 0, nil
}

func (b *sqlBackend) Exists(ctx context.Context, session string) (bool, error) {
	var one int
	err := b.db.QueryRowContext(ctx,
		"SELECT 1 FROM sessions WHERE session = "+b.d.placeholder(1), session).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: checking session %q: %v", classifySQLErr(err), session, err)
	}
	return true, nil
}

// classifySQLErr maps driver errors onto the shared error kinds. Connection
// problems are transient from the caller's perspective; everything else is
// plain I/O.
func classifySQLErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "timeout") {
		return fault.ErrBackendUnavailable
	}
	return fault.ErrTransientIO
}

// warnOnce logs a store-boundary error once at WARN. Kept here so both SQL
// dialects and the factory share the same boundary logging discipline.
func warnOnce(ctx context.Context, op string, err error) {
	if err == nil {
		return
	}
	logging.Warn(ctx, "session store operation failed",
		"op", op, "error", err.Error())
}
