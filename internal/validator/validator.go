// Package validator implements the declarative expectations the runner
// evaluates. Metric-backed validators compile to metric requests batched into
// one statement per table; custom validators own their SQL.
package validator

import (
	"context"
	"fmt"
	"strconv"

	"github.com/veridata-io/veridata/internal/engine"
	"github.com/veridata-io/veridata/internal/metric"
	"github.com/veridata-io/veridata/internal/result"
)

// Options is the envelope every validator carries. Where restricts the rows
// the expectation is evaluated over; for metric-backed validators it feeds
// each request's filter.
type Options struct {
	Where    string
	Severity result.Severity
	Tags     []string
}

// Normalize fills envelope defaults.
func (o Options) Normalize() Options {
	if o.Severity == "" {
		o.Severity = result.SeverityFail
	}
	return o
}

// Validator is a single declarative expectation.
type Validator interface {
	// Type is the expectation's registered name, e.g. "ColumnNotNull".
	Type() string

	// Options returns the shared envelope.
	Options() Options
}

// MetricValidator is an expectation expressible as pure aggregate metrics.
// Its requests are fused with other validators' into one scan.
type MetricValidator interface {
	Validator

	// MetricRequests lists the metrics the validator needs. Aliases are
	// assigned by the runner; the Key and Columns fields matter here.
	MetricRequests() []metric.Request

	// Interpret receives the batched scalars keyed by the metric keys that
	// MetricRequests declared.
	Interpret(values map[string]any) Outcome
}

// ExecContext hands a custom validator everything it may touch. Engines maps
// every configured engine by name for cross-engine expectations; History is
// the read-only result history and may be nil when no store is configured.
type ExecContext struct {
	EngineName string

	Engine  engine.Engine
	Engines map[string]engine.Engine
	Table   string
	Metrics *metric.Set
	History result.History
}

// CustomValidator owns its SQL: it issues one or two statements of its own
// choosing and interprets the rows itself.
type CustomValidator interface {
	Validator

	Execute(ctx context.Context, ec ExecContext) (Outcome, error)
}

// Outcome is a validator's verdict before the runner wraps it into a
// ValidationResult.
type Outcome struct {
	Passed       bool
	Message      string
	MetricValues map[string]any
	ErrorRows    []map[string]any
	Truncated    bool
}

func pass(values map[string]any) Outcome {
	return Outcome{Passed: true, MetricValues: values}
}

func fail(values map[string]any, format string, args ...any) Outcome {
	return Outcome{Passed: false, MetricValues: values, Message: fmt.Sprintf(format, args...)}
}

// asFloat coerces the scalar types SQL drivers hand back.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// asInt coerces integer-valued scalars; floats only convert when integral.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
		return 0, false
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// rowsToMaps converts materialized rows into name-keyed samples.
func rowsToMaps(rows *engine.Rows, limit int) ([]map[string]any, bool) {
	truncated := rows.Len() > limit
	n := rows.Len()
	if n > limit {
		n = limit
	}
	out := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		m := make(map[string]any, len(rows.Columns))
		for j, c := range rows.Columns {
			m[c] = rows.Data[i][j]
		}
		out = append(out, m)
	}
	return out, truncated
}

// DefaultMaxErrorRows caps offending-row samples unless configured otherwise.
const DefaultMaxErrorRows = 20
