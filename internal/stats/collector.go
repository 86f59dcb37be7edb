// Package stats collects per-column statistics for a table in a single
// fused scan, for persistence alongside validation results.
package stats

import (
	"context"
	"fmt"

	"github.com/veridata-io/veridata/internal/batch"
	"github.com/veridata-io/veridata/internal/engine"
	"github.com/veridata-io/veridata/internal/metric"
	"github.com/veridata-io/veridata/internal/result"
)

// columnMetrics are collected for every column of a profiled table.
var columnMetrics = []string{metric.Min, metric.Max, metric.NullPct, metric.DistinctCnt, metric.NonNullCnt}

// Collector profiles tables through the metric batch path.
type Collector struct {
	metrics *metric.Set
}

// NewCollector builds a collector over a metric set; nil uses the
// process-wide set.
func NewCollector(set *metric.Set) *Collector {
	if set == nil {
		set = metric.Default
	}
	return &Collector{metrics: set}
}

// Collect profiles every column of the table plus the table row count with
// one fused statement after the column listing.
func (c *Collector) Collect(ctx context.Context, engineName string, eng engine.Engine, table string) ([]result.ColumnStat, error) {
	columns, err := eng.ListColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	var requests []metric.Request
	for i, col := range columns {
		for _, key := range columnMetrics {
			requests = append(requests, metric.Request{
				Key:     key,
				Columns: []string{col},
				Alias:   fmt.Sprintf("c%d_%s", i, key),
			})
		}
	}
	requests = append(requests, metric.Request{Key: metric.RowCnt, Alias: "row_cnt"})

	query, err := batch.Build(c.metrics, eng.Dialect(), table, requests)
	if err != nil {
		return nil, err
	}
	rows, err := eng.RunSQL(ctx, query)
	if err != nil {
		return nil, err
	}
	if rows.Len() != 1 {
		return nil, fmt.Errorf("statistics scan returned %d row(s), expected 1", rows.Len())
	}

	stats := make([]result.ColumnStat, 0, len(requests))
	for i, col := range columns {
		for _, key := range columnMetrics {
			v, _ := rows.Value(0, fmt.Sprintf("c%d_%s", i, key))
			stats = append(stats, result.ColumnStat{
				EngineName: engineName,
				Table:      table,
				Column:     col,
				MetricKey:  key,
				Value:      v,
			})
		}
	}
	rowCnt, _ := rows.Value(0, "row_cnt")
	stats = append(stats, result.ColumnStat{
		EngineName: engineName,
		Table:      table,
		Column:     "*",
		MetricKey:  metric.RowCnt,
		Value:      rowCnt,
	})
	return stats, nil
}
