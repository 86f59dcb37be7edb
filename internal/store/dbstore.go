// Package store provides the reference result stores: an embedded SQL store
// and a file-artifact store. Both are append-only; pruning is out-of-band.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/veridata-io/veridata/internal/engine"
	"github.com/veridata-io/veridata/internal/result"
	"github.com/veridata-io/veridata/pkg/logger"
)

// The table column is stored as table_name because "table" is a reserved
// word on several backends.
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	suite_name  TEXT NOT NULL,
	sla_name    TEXT,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	status      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS results (
	run_id         TEXT NOT NULL REFERENCES runs(run_id),
	binding_ix     INTEGER NOT NULL,
	validator_type TEXT NOT NULL,
	engine         TEXT NOT NULL,
	table_name     TEXT NOT NULL,
	status         TEXT NOT NULL,
	severity       TEXT NOT NULL,
	metric_values  TEXT,
	error_sample   TEXT,
	error_message  TEXT,
	started_at     TIMESTAMP NOT NULL,
	duration_ms    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS slas (
	sla_name TEXT PRIMARY KEY,
	config   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS statistics (
	run_id      TEXT NOT NULL REFERENCES runs(run_id),
	engine      TEXT NOT NULL,
	schema_name TEXT,
	table_name  TEXT NOT NULL,
	column_name TEXT NOT NULL,
	metric_key  TEXT NOT NULL,
	value       TEXT
);

CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id);
CREATE INDEX IF NOT EXISTS idx_statistics_series
	ON statistics(engine, table_name, metric_key);
`

// DBStore persists runs into an embedded SQL database.
type DBStore struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewDBStore opens (and if needed initializes) the store at path. An empty
// path keeps the store in memory, which is only useful in tests.
func NewDBStore(path string, log *logger.Logger) (*DBStore, error) {
	if log == nil {
		log = logger.Nop()
	}
	dsn := path
	if dsn == "" {
		dsn = engine.MemoryDSN()
	}
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open result store %q: %w", dsn, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize result store: %w", err)
	}
	return &DBStore{db: db, log: log}, nil
}

// Close releases the underlying database.
func (s *DBStore) Close() error { return s.db.Close() }

// PersistRun records the run, its results and the optional SLA in one
// transaction.
func (s *DBStore) PersistRun(ctx context.Context, run result.RunMetadata, results []result.ValidationResult, sla *result.SLARecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, suite_name, sla_name, started_at, finished_at, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, run.SuiteName, nullString(run.SLAName), run.StartedAt, run.FinishedAt, string(run.Status),
	); err != nil {
		return fmt.Errorf("persist run %s: %w", run.RunID, err)
	}

	for _, res := range results {
		var metricJSON, sampleJSON any
		if len(res.MetricValues) > 0 {
			if metricJSON, err = marshalNullable(res.MetricValues); err != nil {
				return err
			}
		}
		if len(res.ErrorRows) > 0 {
			if sampleJSON, err = marshalNullable(res.ErrorRows); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO results (run_id, binding_ix, validator_type, engine, table_name,
				status, severity, metric_values, error_sample, error_message, started_at, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			res.RunID, res.BindingIx, res.ValidatorType, res.EngineName, res.Table,
			string(res.Status), string(res.Severity), metricJSON, sampleJSON,
			nullString(res.ErrorMessage), res.StartedAt, res.Duration.Milliseconds(),
		); err != nil {
			return fmt.Errorf("persist result %d of run %s: %w", res.BindingIx, res.RunID, err)
		}
	}

	if sla != nil {
		cfg, err := json.Marshal(sla.Config)
		if err != nil {
			return fmt.Errorf("encode sla %s: %w", sla.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO slas (sla_name, config) VALUES (?, ?)
			 ON CONFLICT(sla_name) DO UPDATE SET config = excluded.config`,
			sla.Name, string(cfg),
		); err != nil {
			return fmt.Errorf("persist sla %s: %w", sla.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.WithField("run_id", run.RunID).Debugf("persisted %d result(s)", len(results))
	return nil
}

// PersistStats appends column statistics for a run.
func (s *DBStore) PersistStats(ctx context.Context, run result.RunMetadata, stats []result.ColumnStat) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, st := range stats {
		value, err := marshalNullable(st.Value)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO statistics (run_id, engine, schema_name, table_name, column_name, metric_key, value)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, st.EngineName, nullString(st.Schema), st.Table, st.Column, st.MetricKey, value,
		); err != nil {
			return fmt.Errorf("persist statistic %s.%s: %w", st.Table, st.Column, err)
		}
	}
	return tx.Commit()
}

// RecentMetricValues reads the recorded statistic series for drift checks,
// most recent first.
func (s *DBStore) RecentMetricValues(ctx context.Context, engineName, table, metricKey string, window int) ([]float64, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT st.value
		 FROM statistics st JOIN runs r ON r.run_id = st.run_id
		 WHERE st.engine = ? AND st.table_name = ? AND st.metric_key = ?
		 ORDER BY r.started_at DESC LIMIT ?`,
		engineName, table, metricKey, window,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		if !raw.Valid {
			continue
		}
		var f float64
		if err := json.Unmarshal([]byte(raw.String), &f); err != nil {
			continue
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// RunRecord is a run with its results, as the query side returns it.
type RunRecord struct {
	Run     result.RunMetadata        `json:"run"`
	Results []result.ValidationResult `json:"results"`
}

type runRow struct {
	RunID      string       `db:"run_id"`
	SuiteName  string       `db:"suite_name"`
	SLAName    *string      `db:"sla_name"`
	StartedAt  time.Time    `db:"started_at"`
	FinishedAt sql.NullTime `db:"finished_at"`
	Status     string       `db:"status"`
}

func (r runRow) metadata() result.RunMetadata {
	m := result.RunMetadata{
		RunID:     r.RunID,
		SuiteName: r.SuiteName,
		StartedAt: r.StartedAt,
		Status:    result.RunStatus(r.Status),
	}
	if r.SLAName != nil {
		m.SLAName = *r.SLAName
	}
	if r.FinishedAt.Valid {
		t := r.FinishedAt.Time
		m.FinishedAt = &t
	}
	return m
}

// ListRuns returns up to limit runs, most recent first.
func (s *DBStore) ListRuns(ctx context.Context, limit int) ([]result.RunMetadata, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT run_id, suite_name, sla_name, started_at, finished_at, status
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit); err != nil {
		return nil, err
	}
	out := make([]result.RunMetadata, len(rows))
	for i, r := range rows {
		out[i] = r.metadata()
	}
	return out, nil
}

type resultRow struct {
	RunID         string         `db:"run_id"`
	BindingIx     int            `db:"binding_ix"`
	ValidatorType string         `db:"validator_type"`
	Engine        string         `db:"engine"`
	TableName     string         `db:"table_name"`
	Status        string         `db:"status"`
	Severity      string         `db:"severity"`
	MetricValues  sql.NullString `db:"metric_values"`
	ErrorSample   sql.NullString `db:"error_sample"`
	ErrorMessage  sql.NullString `db:"error_message"`
	StartedAt     time.Time      `db:"started_at"`
	DurationMS    int64          `db:"duration_ms"`
}

// GetRun returns one run with its results, or sql.ErrNoRows.
func (s *DBStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	var row runRow
	if err := s.db.GetContext(ctx, &row,
		`SELECT run_id, suite_name, sla_name, started_at, finished_at, status
		 FROM runs WHERE run_id = ?`, runID); err != nil {
		return nil, err
	}

	var resRows []resultRow
	if err := s.db.SelectContext(ctx, &resRows,
		`SELECT run_id, binding_ix, validator_type, engine, table_name, status, severity,
			metric_values, error_sample, error_message, started_at, duration_ms
		 FROM results WHERE run_id = ? ORDER BY binding_ix`, runID); err != nil {
		return nil, err
	}

	rec := &RunRecord{Run: row.metadata(), Results: make([]result.ValidationResult, 0, len(resRows))}
	for _, rr := range resRows {
		res := result.ValidationResult{
			RunID:         rr.RunID,
			BindingIx:     rr.BindingIx,
			ValidatorType: rr.ValidatorType,
			EngineName:    rr.Engine,
			Table:         rr.TableName,
			Status:        result.Status(rr.Status),
			Severity:      result.Severity(rr.Severity),
			StartedAt:     rr.StartedAt,
			Duration:      time.Duration(rr.DurationMS) * time.Millisecond,
		}
		if rr.MetricValues.Valid {
			_ = json.Unmarshal([]byte(rr.MetricValues.String), &res.MetricValues)
		}
		if rr.ErrorSample.Valid {
			_ = json.Unmarshal([]byte(rr.ErrorSample.String), &res.ErrorRows)
		}
		if rr.ErrorMessage.Valid {
			res.ErrorMessage = rr.ErrorMessage.String
		}
		rec.Results = append(rec.Results, res)
	}
	return rec, nil
}

func marshalNullable(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode store value: %w", err)
	}
	return string(b), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
