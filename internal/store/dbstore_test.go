package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridata-io/veridata/internal/result"
)

func testStore(t *testing.T) *DBStore {
	t.Helper()
	s, err := NewDBStore("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun(runID string) (result.RunMetadata, []result.ValidationResult) {
	run := result.NewRun("orders_suite", "core_sla", runID)
	results := []result.ValidationResult{
		{
			RunID:         run.RunID,
			BindingIx:     0,
			ValidatorType: "ColumnNotNull",
			EngineName:    "warehouse",
			Table:         "orders",
			Status:        result.StatusPass,
			Severity:      result.SeverityFail,
			MetricValues:  map[string]any{"null_cnt": float64(0)},
			StartedAt:     run.StartedAt,
			Duration:      25 * time.Millisecond,
		},
		{
			RunID:         run.RunID,
			BindingIx:     1,
			ValidatorType: "RowCountValidator",
			EngineName:    "warehouse",
			Table:         "orders",
			Status:        result.StatusFail,
			Severity:      result.SeverityWarn,
			MetricValues:  map[string]any{"row_cnt": float64(12)},
			ErrorMessage:  "row count 12 below minimum 100",
			StartedAt:     run.StartedAt,
			Duration:      40 * time.Millisecond,
		},
	}
	run.Finish(result.RunComplete)
	return run, results
}

func TestPersistAndGetRun(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	run, results := sampleRun("run-1")
	sla := &result.SLARecord{Name: "core_sla", Config: map[string]any{"suites": []string{"orders_suite"}}}
	require.NoError(t, s.PersistRun(ctx, run, results, sla))

	rec, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "orders_suite", rec.Run.SuiteName)
	assert.Equal(t, "core_sla", rec.Run.SLAName)
	assert.Equal(t, result.RunComplete, rec.Run.Status)
	require.NotNil(t, rec.Run.FinishedAt)

	require.Len(t, rec.Results, 2)
	assert.Equal(t, result.StatusPass, rec.Results[0].Status)
	assert.Equal(t, float64(0), rec.Results[0].MetricValues["null_cnt"])
	assert.Equal(t, "row count 12 below minimum 100", rec.Results[1].ErrorMessage)
	assert.Equal(t, 40*time.Millisecond, rec.Results[1].Duration)
}

func TestGetRunNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestListRunsMostRecentFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	older := result.RunMetadata{
		RunID: "run-old", SuiteName: "s",
		StartedAt: time.Now().UTC().Add(-time.Hour), Status: result.RunComplete,
	}
	newer := result.RunMetadata{
		RunID: "run-new", SuiteName: "s",
		StartedAt: time.Now().UTC(), Status: result.RunComplete,
	}
	require.NoError(t, s.PersistRun(ctx, older, nil, nil))
	require.NoError(t, s.PersistRun(ctx, newer, nil, nil))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-new", runs[0].RunID)
	assert.Equal(t, "run-old", runs[1].RunID)
}

func TestDuplicateRunIDRejected(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	run, results := sampleRun("run-dup")
	require.NoError(t, s.PersistRun(ctx, run, results, nil))
	assert.Error(t, s.PersistRun(ctx, run, results, nil), "store is append-only")
}

func TestPersistStatsAndRecentMetricValues(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i, runID := range []string{"r1", "r2", "r3"} {
		run := result.RunMetadata{
			RunID: runID, SuiteName: "s",
			StartedAt: time.Now().UTC().Add(time.Duration(i) * time.Minute),
			Status:    result.RunComplete,
		}
		require.NoError(t, s.PersistRun(ctx, run, nil, nil))
		require.NoError(t, s.PersistStats(ctx, run, []result.ColumnStat{
			{EngineName: "db", Table: "orders", Column: "*", MetricKey: "row_cnt", Value: float64(100 + i)},
		}))
	}

	values, err := s.RecentMetricValues(ctx, "db", "orders", "row_cnt", 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{102, 101}, values, "most recent first, capped at window")

	none, err := s.RecentMetricValues(ctx, "db", "orders", "null_pct", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}
