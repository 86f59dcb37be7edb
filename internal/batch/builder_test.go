package batch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridata-io/veridata/internal/metric"
	"github.com/veridata-io/veridata/internal/sqlexpr"
)

func TestBuildFusesFilteredAndUnfiltered(t *testing.T) {
	reqs := []metric.Request{
		{Key: metric.RowCnt, Alias: "total"},
		{Key: metric.RowCnt, Alias: "active", Filter: "status = 'active'"},
	}
	sql, err := Build(metric.Default, sqlexpr.DialectSQLite, "users", reqs)
	require.NoError(t, err)
	want := "SELECT COUNT(*) AS total, " +
		"SUM(CASE WHEN (status = 'active') THEN 1 ELSE 0 END) AS active " +
		"FROM users"
	assert.Equal(t, want, sql)
}

func TestBuildProjectionOrderMatchesInput(t *testing.T) {
	reqs := []metric.Request{
		{Key: metric.Max, Columns: []string{"id"}, Alias: "v0"},
		{Key: metric.RowCnt, Alias: "v1"},
		{Key: metric.Min, Columns: []string{"id"}, Alias: "v2"},
	}
	sql, err := Build(metric.Default, sqlexpr.DialectSQLite, "t", reqs)
	require.NoError(t, err)
	assert.Equal(t, "SELECT MAX(id) AS v0, COUNT(*) AS v1, MIN(id) AS v2 FROM t", sql)
}

func TestBuildSharedFilterBecomesWhere(t *testing.T) {
	reqs := []metric.Request{
		{Key: metric.RowCnt, Alias: "cnt", Filter: "region = 'eu'"},
		{Key: metric.Min, Columns: []string{"amount"}, Alias: "lo", Filter: "region = 'eu'"},
	}
	sql, err := Build(metric.Default, sqlexpr.DialectSQLite, "orders", reqs)
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) AS cnt, MIN(amount) AS lo FROM orders WHERE region = 'eu'", sql)
}

func TestBuildMixedFiltersStayPerRequest(t *testing.T) {
	reqs := []metric.Request{
		{Key: metric.RowCnt, Alias: "eu", Filter: "region = 'eu'"},
		{Key: metric.RowCnt, Alias: "us", Filter: "region = 'us'"},
	}
	sql, err := Build(metric.Default, sqlexpr.DialectSQLite, "orders", reqs)
	require.NoError(t, err)
	assert.NotContains(t, sql, "WHERE")
	assert.Contains(t, sql, "SUM(CASE WHEN (region = 'eu') THEN 1 ELSE 0 END) AS eu")
	assert.Contains(t, sql, "SUM(CASE WHEN (region = 'us') THEN 1 ELSE 0 END) AS us")
}

func TestBuildDuplicateAlias(t *testing.T) {
	reqs := []metric.Request{
		{Key: metric.RowCnt, Alias: "x"},
		{Key: metric.RowCnt, Alias: "x"},
	}
	_, err := Build(metric.Default, sqlexpr.DialectSQLite, "t", reqs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateAlias))
}

func TestBuildEmptyAlias(t *testing.T) {
	_, err := Build(metric.Default, sqlexpr.DialectSQLite, "t", []metric.Request{{Key: metric.RowCnt}})
	require.Error(t, err)
}

func TestBuildUnknownMetric(t *testing.T) {
	_, err := Build(metric.Default, sqlexpr.DialectSQLite, "t",
		[]metric.Request{{Key: "no_such", Alias: "x"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, metric.ErrUnknownMetric))
}

func TestBuildRejectsNonAggregateMetric(t *testing.T) {
	set := metric.NewSet()
	require.NoError(t, set.Register("bare", func(cols ...string) (sqlexpr.Expr, error) {
		return sqlexpr.Column{Name: "c"}, nil
	}))
	_, err := Build(set, sqlexpr.DialectSQLite, "t", []metric.Request{{Key: "bare", Alias: "x"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidMetric))
}

func TestBuildRejectsBareColumnBesideAggregate(t *testing.T) {
	set := metric.NewSet()
	require.NoError(t, set.Register("mixed", func(cols ...string) (sqlexpr.Expr, error) {
		return sqlexpr.Binary{Op: "+", Left: sqlexpr.CountStar(), Right: sqlexpr.Column{Name: "c"}}, nil
	}))
	_, err := Build(set, sqlexpr.DialectSQLite, "t", []metric.Request{{Key: "mixed", Alias: "x"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidMetric))
}

func TestBuildNoRequests(t *testing.T) {
	_, err := Build(metric.Default, sqlexpr.DialectSQLite, "t", nil)
	require.Error(t, err)
}

func TestBuildFilteredRatio(t *testing.T) {
	reqs := []metric.Request{
		{Key: metric.NullPct, Columns: []string{"email"}, Alias: "p", Filter: "kind = 'b'"},
		{Key: metric.RowCnt, Alias: "n"},
	}
	sql, err := Build(metric.Default, sqlexpr.DialectSQLite, "t", reqs)
	require.NoError(t, err)
	// The ratio's denominator COUNT(*) must be filtered too.
	assert.Contains(t, sql, "NULLIF(SUM(CASE WHEN (kind = 'b') THEN 1 ELSE 0 END), 0)")
}
