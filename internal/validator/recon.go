package validator

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/veridata-io/veridata/internal/batch"
	"github.com/veridata-io/veridata/internal/engine"
	"github.com/veridata-io/veridata/internal/metric"
)

// TableReconciliation expects a table and its counterpart on another engine
// to hold the same number of rows. The where predicate, if any, restricts
// both sides.
type TableReconciliation struct {
	base
	CompareEngine string
	CompareTable  string
}

func NewTableReconciliation(compareEngine, compareTable string, opts Options) (*TableReconciliation, error) {
	if compareEngine == "" {
		return nil, fmt.Errorf("reconciliation expectation needs a compare engine")
	}
	return &TableReconciliation{
		base:          base{opts: opts.Normalize()},
		CompareEngine: compareEngine,
		CompareTable:  compareTable,
	}, nil
}

func (v *TableReconciliation) Type() string { return "TableReconciliation" }

func (v *TableReconciliation) Execute(ctx context.Context, ec ExecContext) (Outcome, error) {
	other, ok := ec.Engines[v.CompareEngine]
	if !ok {
		return Outcome{}, fmt.Errorf("unknown compare engine %q", v.CompareEngine)
	}
	compareTable := v.CompareTable
	if compareTable == "" {
		compareTable = ec.Table
	}

	left, err := countRows(ctx, ec.Metrics, ec.Engine, ec.Table, v.opts.Where)
	if err != nil {
		return Outcome{}, err
	}
	right, err := countRows(ctx, ec.Metrics, other, compareTable, v.opts.Where)
	if err != nil {
		return Outcome{}, err
	}

	values := map[string]any{"row_cnt": left, "compare_row_cnt": right}
	if left == right {
		return pass(values), nil
	}
	return fail(values, "row counts differ: %d vs %d on %s.%s",
		left, right, v.CompareEngine, compareTable), nil
}

func countRows(ctx context.Context, set *metric.Set, eng engine.Engine, table, where string) (int64, error) {
	reqs := []metric.Request{{Key: metric.RowCnt, Alias: "row_cnt", Filter: where}}
	query, err := batch.Build(set, eng.Dialect(), table, reqs)
	if err != nil {
		return 0, err
	}
	res, err := eng.RunSQL(ctx, query)
	if err != nil {
		return 0, err
	}
	scalar, err := res.Scalar()
	if err != nil {
		return 0, err
	}
	n, ok := asInt(scalar)
	if !ok {
		return 0, fmt.Errorf("row count is not numeric: %v", scalar)
	}
	return n, nil
}

// ColumnMapping pairs a column with its counterpart on the compare side.
type ColumnMapping struct {
	Column        string
	CompareColumn string
	// CastType, when set, casts the compare-side column before aggregation.
	CastType string
	// Tolerance, when non-nil, relaxes numeric equality to a maximum
	// absolute difference. Exact equality otherwise.
	Tolerance *float64
}

// ColumnReconciliation expects min/max/non-null-count of mapped columns to
// agree across two engines.
type ColumnReconciliation struct {
	base
	CompareEngine string
	CompareTable  string
	Mappings      []ColumnMapping
}

func NewColumnReconciliation(compareEngine, compareTable string, mappings []ColumnMapping, opts Options) (*ColumnReconciliation, error) {
	if compareEngine == "" {
		return nil, fmt.Errorf("reconciliation expectation needs a compare engine")
	}
	if len(mappings) == 0 {
		return nil, fmt.Errorf("column reconciliation needs at least one mapping")
	}
	return &ColumnReconciliation{
		base:          base{opts: opts.Normalize()},
		CompareEngine: compareEngine,
		CompareTable:  compareTable,
		Mappings:      mappings,
	}, nil
}

func (v *ColumnReconciliation) Type() string { return "ColumnReconciliation" }

var reconMetrics = []string{metric.Min, metric.Max, metric.NonNullCnt}

func (v *ColumnReconciliation) Execute(ctx context.Context, ec ExecContext) (Outcome, error) {
	other, ok := ec.Engines[v.CompareEngine]
	if !ok {
		return Outcome{}, fmt.Errorf("unknown compare engine %q", v.CompareEngine)
	}
	compareTable := v.CompareTable
	if compareTable == "" {
		compareTable = ec.Table
	}

	leftReqs := make([]metric.Request, 0, len(v.Mappings)*len(reconMetrics))
	rightReqs := make([]metric.Request, 0, len(v.Mappings)*len(reconMetrics))
	for i, m := range v.Mappings {
		compareCol := m.CompareColumn
		if compareCol == "" {
			compareCol = m.Column
		}
		if m.CastType != "" {
			compareCol = "CAST(" + compareCol + " AS " + m.CastType + ")"
		}
		for _, key := range reconMetrics {
			alias := fmt.Sprintf("m%d_%s", i, key)
			leftReqs = append(leftReqs, metric.Request{Key: key, Columns: []string{m.Column}, Alias: alias, Filter: v.opts.Where})
			rightReqs = append(rightReqs, metric.Request{Key: key, Columns: []string{compareCol}, Alias: alias, Filter: v.opts.Where})
		}
	}

	left, err := runBatch(ctx, ec.Metrics, ec.Engine, ec.Table, leftReqs)
	if err != nil {
		return Outcome{}, err
	}
	right, err := runBatch(ctx, ec.Metrics, other, compareTable, rightReqs)
	if err != nil {
		return Outcome{}, err
	}

	values := make(map[string]any, len(leftReqs)*2)
	var mismatches []string
	for i, m := range v.Mappings {
		tolerance := 0.0
		if m.Tolerance != nil {
			tolerance = *m.Tolerance
		}
		for _, key := range reconMetrics {
			alias := fmt.Sprintf("m%d_%s", i, key)
			lv, rv := left[alias], right[alias]
			values[alias] = lv
			values["compare_"+alias] = rv
			if !scalarsAgree(lv, rv, tolerance) {
				mismatches = append(mismatches,
					fmt.Sprintf("%s(%s): %v vs %v", key, m.Column, lv, rv))
			}
		}
	}
	if len(mismatches) == 0 {
		return pass(values), nil
	}
	return fail(values, "mismatched metrics: %s", strings.Join(mismatches, "; ")), nil
}

func runBatch(ctx context.Context, set *metric.Set, eng engine.Engine, table string, reqs []metric.Request) (map[string]any, error) {
	query, err := batch.Build(set, eng.Dialect(), table, reqs)
	if err != nil {
		return nil, err
	}
	res, err := eng.RunSQL(ctx, query)
	if err != nil {
		return nil, err
	}
	if res.Len() != 1 {
		return nil, fmt.Errorf("expected one aggregate row, got %d", res.Len())
	}
	out := make(map[string]any, len(reqs))
	for _, r := range reqs {
		v, _ := res.Value(0, r.Alias)
		out[r.Alias] = v
	}
	return out, nil
}

// scalarsAgree applies the reconciliation comparison rules: numeric equality
// (within tolerance) when both sides are numeric, canonical string equality
// otherwise. NaN never equals NaN; two NULLs agree.
func scalarsAgree(a, b any, tolerance float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	fa, okA := asFloat(a)
	fb, okB := asFloat(b)
	if okA && okB {
		if math.IsNaN(fa) || math.IsNaN(fb) {
			return false
		}
		return math.Abs(fa-fb) <= tolerance
	}
	return strings.TrimSpace(fmt.Sprintf("%v", a)) == strings.TrimSpace(fmt.Sprintf("%v", b))
}
