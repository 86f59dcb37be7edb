// Package engine presents a uniform row-returning SQL interface over the
// supported backends, with a bounded connection pool per engine.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/veridata-io/veridata/internal/sqlexpr"
)

// ErrPoolTimeout indicates a statement could not acquire a pooled connection
// within the configured wait.
var ErrPoolTimeout = errors.New("connection pool timeout")

// Engine is a handle to one SQL backend. Every RunSQL call acquires one
// pooled connection, runs one statement and releases the connection on all
// exit paths. Close releases the pool; the handle is unusable afterwards.
type Engine interface {
	// RunSQL executes one statement and returns the eagerly materialized rows.
	RunSQL(ctx context.Context, query string) (*Rows, error)

	// ListColumns returns the ordered column names of a table. Used to
	// reject suites referencing nonexistent columns at load time.
	ListColumns(ctx context.Context, table string) ([]string, error)

	// Dialect names the SQL variant the backend understands.
	Dialect() sqlexpr.Dialect

	// Close releases the pool and the underlying connections.
	Close() error
}

// Rows is an eagerly materialized result table. Values carry the driver's
// scalar types with []byte normalized to string.
type Rows struct {
	Columns []string
	Data    [][]any
}

// Len returns the number of rows.
func (r *Rows) Len() int { return len(r.Data) }

// Value returns the value at (row, column name). The second return is false
// when the row index or column name is out of range.
func (r *Rows) Value(row int, col string) (any, bool) {
	if row < 0 || row >= len(r.Data) {
		return nil, false
	}
	for i, c := range r.Columns {
		if c == col {
			return r.Data[row][i], true
		}
	}
	return nil, false
}

// Scalar returns the single value of a one-row, one-column result.
func (r *Rows) Scalar() (any, error) {
	if len(r.Data) != 1 || len(r.Columns) != 1 {
		return nil, fmt.Errorf("expected scalar result, got %d row(s) x %d column(s)", len(r.Data), len(r.Columns))
	}
	return r.Data[0][0], nil
}

// EngineError wraps a backend failure together with the statement that
// produced it. The runner converts these to per-validator ERROR results.
type EngineError struct {
	SQL string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error: %v (sql: %s)", e.Err, e.SQL)
}

func (e *EngineError) Unwrap() error { return e.Err }
