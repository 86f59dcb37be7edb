package validator

import (
	"fmt"

	"github.com/veridata-io/veridata/internal/metric"
)

// base carries the envelope shared by every validator implementation.
type base struct {
	opts Options
}

func (b base) Options() Options { return b.opts }

// request builds one metric request inheriting the validator's where clause.
func (b base) request(key string, cols ...string) metric.Request {
	return metric.Request{Key: key, Columns: cols, Filter: b.opts.Where}
}

// ColumnNotNull expects zero NULLs in a column.
type ColumnNotNull struct {
	base
	Column string
}

func NewColumnNotNull(column string, opts Options) *ColumnNotNull {
	return &ColumnNotNull{base: base{opts: opts.Normalize()}, Column: column}
}

func (v *ColumnNotNull) Type() string { return "ColumnNotNull" }

func (v *ColumnNotNull) MetricRequests() []metric.Request {
	return []metric.Request{v.request(metric.NullCnt, v.Column)}
}

func (v *ColumnNotNull) Interpret(values map[string]any) Outcome {
	n, ok := asInt(values[metric.NullCnt])
	if !ok {
		return fail(values, "null_cnt for column %s is not numeric: %v", v.Column, values[metric.NullCnt])
	}
	if n == 0 {
		return pass(values)
	}
	return fail(values, "column %s has %d NULL value(s)", v.Column, n)
}

// ColumnNullPct expects the NULL fraction of a column to stay at or under a
// maximum.
type ColumnNullPct struct {
	base
	Column string
	Max    float64
}

func NewColumnNullPct(column string, max float64, opts Options) *ColumnNullPct {
	return &ColumnNullPct{base: base{opts: opts.Normalize()}, Column: column, Max: max}
}

func (v *ColumnNullPct) Type() string { return "ColumnNullPct" }

func (v *ColumnNullPct) MetricRequests() []metric.Request {
	return []metric.Request{v.request(metric.NullPct, v.Column)}
}

func (v *ColumnNullPct) Interpret(values map[string]any) Outcome {
	// NULL scalar means the table had no rows; an empty table holds.
	if values[metric.NullPct] == nil {
		return pass(values)
	}
	pct, ok := asFloat(values[metric.NullPct])
	if !ok {
		return fail(values, "null_pct for column %s is not numeric: %v", v.Column, values[metric.NullPct])
	}
	if pct <= v.Max {
		return pass(values)
	}
	return fail(values, "column %s null fraction %.4f exceeds %.4f", v.Column, pct, v.Max)
}

// CompareOp is the comparison a ColumnDistinctCount applies.
type CompareOp string

const (
	OpEq CompareOp = "=="
	OpGE CompareOp = ">="
	OpLE CompareOp = "<="
)

// ColumnDistinctCount compares the distinct count of a column against an
// expected value.
type ColumnDistinctCount struct {
	base
	Column   string
	Expected int64
	Op       CompareOp
}

func NewColumnDistinctCount(column string, expected int64, op CompareOp, opts Options) (*ColumnDistinctCount, error) {
	switch op {
	case OpEq, OpGE, OpLE:
	case "":
		op = OpEq
	default:
		return nil, fmt.Errorf("unsupported comparison %q", op)
	}
	return &ColumnDistinctCount{base: base{opts: opts.Normalize()}, Column: column, Expected: expected, Op: op}, nil
}

func (v *ColumnDistinctCount) Type() string { return "ColumnDistinctCount" }

func (v *ColumnDistinctCount) MetricRequests() []metric.Request {
	return []metric.Request{v.request(metric.DistinctCnt, v.Column)}
}

func (v *ColumnDistinctCount) Interpret(values map[string]any) Outcome {
	n, ok := asInt(values[metric.DistinctCnt])
	if !ok {
		return fail(values, "distinct_cnt for column %s is not numeric: %v", v.Column, values[metric.DistinctCnt])
	}
	holds := false
	switch v.Op {
	case OpEq:
		holds = n == v.Expected
	case OpGE:
		holds = n >= v.Expected
	case OpLE:
		holds = n <= v.Expected
	}
	if holds {
		return pass(values)
	}
	return fail(values, "column %s distinct count %d violates %s %d", v.Column, n, v.Op, v.Expected)
}

// ColumnMin expects the column minimum to sit at or above a bound.
type ColumnMin struct {
	base
	Column string
	Bound  float64
	Strict bool
}

func NewColumnMin(column string, bound float64, strict bool, opts Options) *ColumnMin {
	return &ColumnMin{base: base{opts: opts.Normalize()}, Column: column, Bound: bound, Strict: strict}
}

func (v *ColumnMin) Type() string { return "ColumnMin" }

func (v *ColumnMin) MetricRequests() []metric.Request {
	return []metric.Request{v.request(metric.Min, v.Column)}
}

func (v *ColumnMin) Interpret(values map[string]any) Outcome {
	if values[metric.Min] == nil {
		return pass(values)
	}
	got, ok := asFloat(values[metric.Min])
	if !ok {
		return fail(values, "min of column %s is not numeric: %v", v.Column, values[metric.Min])
	}
	if got > v.Bound || (!v.Strict && got == v.Bound) {
		return pass(values)
	}
	return fail(values, "column %s minimum %v is below bound %v", v.Column, got, v.Bound)
}

// ColumnMax expects the column maximum to sit at or below a bound.
type ColumnMax struct {
	base
	Column string
	Bound  float64
	Strict bool
}

func NewColumnMax(column string, bound float64, strict bool, opts Options) *ColumnMax {
	return &ColumnMax{base: base{opts: opts.Normalize()}, Column: column, Bound: bound, Strict: strict}
}

func (v *ColumnMax) Type() string { return "ColumnMax" }

func (v *ColumnMax) MetricRequests() []metric.Request {
	return []metric.Request{v.request(metric.Max, v.Column)}
}

func (v *ColumnMax) Interpret(values map[string]any) Outcome {
	if values[metric.Max] == nil {
		return pass(values)
	}
	got, ok := asFloat(values[metric.Max])
	if !ok {
		return fail(values, "max of column %s is not numeric: %v", v.Column, values[metric.Max])
	}
	if got < v.Bound || (!v.Strict && got == v.Bound) {
		return pass(values)
	}
	return fail(values, "column %s maximum %v is above bound %v", v.Column, got, v.Bound)
}

// ColumnRange expects every value of a column inside [Lo, Hi].
type ColumnRange struct {
	base
	Column string
	Lo     float64
	Hi     float64
}

func NewColumnRange(column string, lo, hi float64, opts Options) *ColumnRange {
	return &ColumnRange{base: base{opts: opts.Normalize()}, Column: column, Lo: lo, Hi: hi}
}

func (v *ColumnRange) Type() string { return "ColumnRange" }

func (v *ColumnRange) MetricRequests() []metric.Request {
	return []metric.Request{
		v.request(metric.Min, v.Column),
		v.request(metric.Max, v.Column),
	}
}

func (v *ColumnRange) Interpret(values map[string]any) Outcome {
	if values[metric.Min] == nil && values[metric.Max] == nil {
		return pass(values)
	}
	lo, okLo := asFloat(values[metric.Min])
	hi, okHi := asFloat(values[metric.Max])
	if !okLo || !okHi {
		return fail(values, "min/max of column %s are not numeric: %v, %v", v.Column, values[metric.Min], values[metric.Max])
	}
	if lo >= v.Lo && hi <= v.Hi {
		return pass(values)
	}
	return fail(values, "column %s spans [%v, %v], expected within [%v, %v]", v.Column, lo, hi, v.Lo, v.Hi)
}
