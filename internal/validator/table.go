package validator

import (
	"context"
	"fmt"
	"strings"

	"github.com/veridata-io/veridata/internal/metric"
)

// RowCount expects the table's row count within optional bounds.
type RowCount struct {
	base
	Min *int64
	Max *int64
}

func NewRowCount(min, max *int64, opts Options) (*RowCount, error) {
	if min == nil && max == nil {
		return nil, fmt.Errorf("row count expectation needs at least one bound")
	}
	if min != nil && max != nil && *min > *max {
		return nil, fmt.Errorf("row count bounds inverted: min %d > max %d", *min, *max)
	}
	return &RowCount{base: base{opts: opts.Normalize()}, Min: min, Max: max}, nil
}

func (v *RowCount) Type() string { return "RowCountValidator" }

func (v *RowCount) MetricRequests() []metric.Request {
	return []metric.Request{v.request(metric.RowCnt)}
}

func (v *RowCount) Interpret(values map[string]any) Outcome {
	n, ok := asInt(values[metric.RowCnt])
	if !ok {
		return fail(values, "row_cnt is not numeric: %v", values[metric.RowCnt])
	}
	if v.Min != nil && n < *v.Min {
		return fail(values, "row count %d below minimum %d", n, *v.Min)
	}
	if v.Max != nil && n > *v.Max {
		return fail(values, "row count %d above maximum %d", n, *v.Max)
	}
	return pass(values)
}

// PrimaryKeyUniqueness expects the key columns to identify every row.
type PrimaryKeyUniqueness struct {
	base
	Keys []string
}

func NewPrimaryKeyUniqueness(keys []string, opts Options) (*PrimaryKeyUniqueness, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("primary key expectation needs at least one key column")
	}
	return &PrimaryKeyUniqueness{base: base{opts: opts.Normalize()}, Keys: keys}, nil
}

func (v *PrimaryKeyUniqueness) Type() string { return "PrimaryKeyUniqueness" }

func (v *PrimaryKeyUniqueness) MetricRequests() []metric.Request {
	return []metric.Request{
		v.request(metric.RowCnt),
		v.request(metric.DistinctCnt, v.Keys...),
	}
}

func (v *PrimaryKeyUniqueness) Interpret(values map[string]any) Outcome {
	rows, okRows := asInt(values[metric.RowCnt])
	distinct, okDistinct := asInt(values[metric.DistinctCnt])
	if !okRows || !okDistinct {
		return fail(values, "row_cnt/distinct_cnt are not numeric: %v, %v", values[metric.RowCnt], values[metric.DistinctCnt])
	}
	if rows == distinct {
		return pass(values)
	}
	return fail(values, "key (%s) has %d duplicate row(s)", strings.Join(v.Keys, ", "), rows-distinct)
}

// DuplicateRow samples key tuples occurring more than once.
type DuplicateRow struct {
	base
	Keys         []string
	MaxErrorRows int
}

func NewDuplicateRow(keys []string, maxErrorRows int, opts Options) (*DuplicateRow, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("duplicate row expectation needs at least one key column")
	}
	if maxErrorRows <= 0 {
		maxErrorRows = DefaultMaxErrorRows
	}
	return &DuplicateRow{base: base{opts: opts.Normalize()}, Keys: keys, MaxErrorRows: maxErrorRows}, nil
}

func (v *DuplicateRow) Type() string { return "DuplicateRowValidator" }

func (v *DuplicateRow) Execute(ctx context.Context, ec ExecContext) (Outcome, error) {
	keys := strings.Join(v.Keys, ", ")
	query := fmt.Sprintf(
		"SELECT %s, COUNT(*) AS dup_cnt FROM %s%s GROUP BY %s HAVING COUNT(*) > 1 LIMIT %d",
		keys, ec.Table, whereClause(v.opts.Where), keys, v.MaxErrorRows+1,
	)
	rows, err := ec.Engine.RunSQL(ctx, query)
	if err != nil {
		return Outcome{}, err
	}
	if rows.Len() == 0 {
		return pass(map[string]any{"duplicate_key_cnt": int64(0)}), nil
	}
	sample, truncated := rowsToMaps(rows, v.MaxErrorRows)
	out := fail(map[string]any{"duplicate_key_cnt": int64(rows.Len())},
		"key (%s) has duplicated tuples", keys)
	out.ErrorRows = sample
	out.Truncated = truncated
	return out, nil
}

// SqlErrorRows runs caller-supplied SQL expected to return zero rows; any
// returned row is an error sample.
type SqlErrorRows struct {
	base
	SQL          string
	MaxErrorRows int
}

func NewSqlErrorRows(sql string, maxErrorRows int, opts Options) (*SqlErrorRows, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, fmt.Errorf("error rows expectation needs a statement")
	}
	if maxErrorRows <= 0 {
		maxErrorRows = DefaultMaxErrorRows
	}
	return &SqlErrorRows{base: base{opts: opts.Normalize()}, SQL: sql, MaxErrorRows: maxErrorRows}, nil
}

func (v *SqlErrorRows) Type() string { return "SqlErrorRowsValidator" }

func (v *SqlErrorRows) Execute(ctx context.Context, ec ExecContext) (Outcome, error) {
	query := fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", strings.TrimRight(strings.TrimSpace(v.SQL), ";"), v.MaxErrorRows+1)
	rows, err := ec.Engine.RunSQL(ctx, query)
	if err != nil {
		return Outcome{}, err
	}
	if rows.Len() == 0 {
		return pass(map[string]any{"error_row_cnt": int64(0)}), nil
	}
	sample, truncated := rowsToMaps(rows, v.MaxErrorRows)
	out := fail(map[string]any{"error_row_cnt": int64(rows.Len())}, "statement returned %d error row(s)", rows.Len())
	out.ErrorRows = sample
	out.Truncated = truncated
	return out, nil
}

// whereClause renders an optional predicate as a leading-space WHERE clause.
func whereClause(pred string) string {
	if pred == "" {
		return ""
	}
	return " WHERE " + pred
}
