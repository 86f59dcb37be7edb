package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/veridata-io/veridata/internal/sqlexpr"
	"github.com/veridata-io/veridata/pkg/logger"
)

// SQLEngine adapts any database/sql backend to the Engine interface.
type SQLEngine struct {
	db      *sql.DB
	dialect sqlexpr.Dialect
	pool    *pool
	log     *logger.Logger
}

// Options tunes an engine's pool and logging.
type Options struct {
	// PoolSize bounds concurrent statements. Defaults to 1.
	PoolSize int

	// PoolTimeout is the maximum wait for a pooled connection. Zero waits
	// indefinitely.
	PoolTimeout time.Duration

	Logger *logger.Logger
}

// NewSQLEngine wraps an open database handle. The engine takes ownership of
// db and closes it on Close.
func NewSQLEngine(db *sql.DB, dialect sqlexpr.Dialect, opts Options) *SQLEngine {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	size := opts.PoolSize
	if size < 1 {
		size = 1
	}
	db.SetMaxOpenConns(size)
	return &SQLEngine{
		db:      db,
		dialect: dialect,
		pool:    newPool(size, opts.PoolTimeout),
		log:     log,
	}
}

// RunSQL executes one statement and materializes the full result.
func (e *SQLEngine) RunSQL(ctx context.Context, query string) (*Rows, error) {
	if err := e.pool.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.pool.release()

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &EngineError{SQL: query, Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &EngineError{SQL: query, Err: err}
	}

	out := &Rows{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &EngineError{SQL: query, Err: err}
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out.Data = append(out.Data, values)
	}
	if err := rows.Err(); err != nil {
		return nil, &EngineError{SQL: query, Err: err}
	}

	e.log.WithField("rows", out.Len()).
		WithField("duration", time.Since(start)).
		Debugf("ran statement: %s", query)
	return out, nil
}

// ListColumns returns the ordered column names of table using a zero-row
// projection, which works unchanged across backends.
func (e *SQLEngine) ListColumns(ctx context.Context, table string) ([]string, error) {
	res, err := e.RunSQL(ctx, "SELECT * FROM "+table+" LIMIT 0")
	if err != nil {
		return nil, err
	}
	return res.Columns, nil
}

// Dialect names the backend's SQL variant.
func (e *SQLEngine) Dialect() sqlexpr.Dialect { return e.dialect }

// Close releases the underlying database handle.
func (e *SQLEngine) Close() error { return e.db.Close() }
