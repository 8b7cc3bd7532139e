package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// SQLite is a Storage backed by a modernc.org/sqlite connection, grounded
// on the pattern the Neo4j adapter used for connection lifecycle and
// error wrapping (connect once, verify, wrap every failure with its
// operation).
type SQLite struct {
	db  *sql.DB
	log *zap.Logger
}

// Option configures Open via the functional-options pattern.
type Option func(*SQLite)

// WithLogger attaches a logger SQLite uses for Debug-level statement
// tracing and Warn-level rollback notices.
func WithLogger(log *zap.Logger) Option {
	return func(s *SQLite) { s.log = log }
}

// Open opens (creating if necessary) a SQLite database file and ensures
// the nodes/edges schema exists.
func Open(path string, opts ...Option) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: failed to connect to %s: %w", path, err)
	}

	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid lock contention

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: failed to apply schema: %w", err)
	}

	s := &SQLite{db: db, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Execute implements Storage.
func (s *SQLite) Execute(ctx context.Context, query string, params []any) (Result, error) {
	s.log.Debug("store: executing", zap.String("sql", query))
	return execute(ctx, s.db, query, params)
}

// Transaction implements Storage.
func (s *SQLite) Transaction(ctx context.Context, body func(ctx context.Context, tx Storage) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: failed to begin transaction: %w", err)
	}

	tx := &sqliteTx{tx: sqlTx, log: s.log}

	if err := body(ctx, tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("store: rollback failed: %v (original error: %w)", rbErr, err)
		}
		s.log.Warn("store: transaction rolled back", zap.Error(err))
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("store: commit failed: %w", err)
	}
	return nil
}

// Close implements Storage.
func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: failed to close: %w", err)
	}
	return nil
}

// sqliteTx is the Storage view handed to a Transaction body: every
// Execute call runs against the open transaction, and Transaction itself
// refuses to nest, since the executor never opens nested transactions.
type sqliteTx struct {
	tx  *sql.Tx
	log *zap.Logger
}

func (t *sqliteTx) Execute(ctx context.Context, query string, params []any) (Result, error) {
	t.log.Debug("store: executing", zap.String("sql", query))
	return execute(ctx, t.tx, query, params)
}

func (t *sqliteTx) Transaction(context.Context, func(ctx context.Context, tx Storage) error) error {
	return fmt.Errorf("store: nested transactions are not supported")
}

func (t *sqliteTx) Close() error {
	return nil
}

// producesRows reports whether query is a row-returning statement, as
// opposed to a bare mutation. Every statement the translator emits
// begins with SELECT, WITH (a recursive CTE feeding a SELECT), INSERT,
// UPDATE, or DELETE.
func producesRows(query string) bool {
	trimmed := strings.TrimSpace(query)
	upper := strings.ToUpper(trimmed)
	return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// execute runs query exactly once: statements that produce rows (SELECT,
// optionally CTE-prefixed) go through QueryContext; mutating statements
// (INSERT/UPDATE/DELETE) go through ExecContext. Running both would
// execute an INSERT twice.
func execute(ctx context.Context, q queryer, query string, params []any) (Result, error) {
	if !producesRows(query) {
		res, err := q.ExecContext(ctx, query, params...)
		if err != nil {
			return Result{}, fmt.Errorf("store: exec failed: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return Result{}, fmt.Errorf("store: failed to read rows affected: %w", err)
		}
		return Result{Changes: int(n)}, nil
	}

	rows, err := q.QueryContext(ctx, query, params...)
	if err != nil {
		return Result{}, fmt.Errorf("store: query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("store: failed to read columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, fmt.Errorf("store: scan failed: %w", err)
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			m[c] = vals[i]
		}
		out = append(out, Row{Columns: cols, Values: m})
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("store: row iteration failed: %w", err)
	}

	return Result{Rows: out}, nil
}
