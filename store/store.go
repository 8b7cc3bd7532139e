// Package store defines the storage contract the executor runs its
// translated SQL against, and a SQLite-backed implementation of it.
package store

import "context"

// Row is an ordered mapping from column name to cell value.
type Row struct {
	Columns []string
	Values  map[string]any
}

// Get returns the value stored at column, or nil if absent.
func (r Row) Get(column string) any {
	return r.Values[column]
}

// Result is the outcome of running one statement.
type Result struct {
	Rows    []Row
	Changes int
}

// Storage is the interface the executor consumes. It never knows about
// Cypher; it runs parameterized SQL and reports rows/changes.
type Storage interface {
	// Execute runs one parameterized statement and returns its rows and
	// the number of rows it changed (for INSERT/UPDATE/DELETE).
	Execute(ctx context.Context, sql string, params []any) (Result, error)

	// Transaction runs body atomically. Any error returned from body
	// rolls back the whole transaction; a nil return commits it. The
	// executor never opens nested transactions, so implementations may
	// assume body will not call Transaction again.
	Transaction(ctx context.Context, body func(ctx context.Context, tx Storage) error) error

	// Close releases the underlying connection.
	Close() error
}
