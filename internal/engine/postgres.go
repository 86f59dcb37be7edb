package engine

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/veridata-io/veridata/internal/sqlexpr"
)

// NewPostgres connects to a PostgreSQL warehouse. The connection string is
// anything lib/pq accepts (URL or key=value form).
func NewPostgres(dsn string, opts Options) (*SQLEngine, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewSQLEngine(db, sqlexpr.DialectPostgres, opts), nil
}
