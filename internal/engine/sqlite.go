package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"

	"github.com/veridata-io/veridata/internal/sqlexpr"
)

var memSeq atomic.Uint64

// MemoryDSN returns a connection string for a process-unique in-memory
// database. Shared cache keeps an engine's pooled connections on the same
// store while distinct engines stay isolated.
func MemoryDSN() string {
	return fmt.Sprintf("file:veridata_mem_%d?mode=memory&cache=shared", memSeq.Add(1))
}

// NewSQLite opens the embedded reference backend over a database file.
// An empty path opens a private in-memory database.
func NewSQLite(path string, opts Options) (*SQLEngine, error) {
	dsn := path
	if dsn == "" {
		dsn = MemoryDSN()
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", dsn, err)
	}
	e := NewSQLEngine(db, sqlexpr.DialectSQLite, opts)
	// Force the first connection so shared-cache memory databases stay alive
	// for the engine's lifetime.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite %q: %w", dsn, err)
	}
	return e, nil
}

// Seed executes arbitrary setup statements on the embedded backend outside
// the pooled statement path. Intended for tests and local tooling.
func (e *SQLEngine) Seed(ctx context.Context, stmts ...string) error {
	for _, s := range stmts {
		if _, err := e.db.ExecContext(ctx, s); err != nil {
			return &EngineError{SQL: s, Err: err}
		}
	}
	return nil
}
