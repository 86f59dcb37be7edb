package validator

import (
	"context"
	"fmt"
	"math"

	"github.com/veridata-io/veridata/internal/batch"
	"github.com/veridata-io/veridata/internal/metric"
)

// MetricDrift compares the current value of a metric against its recent
// history from the result store and fails when the new value drifts beyond
// ZThresh standard deviations of the window. With fewer than MinHistory
// prior observations the expectation passes vacuously, so fresh deployments
// do not alarm.
type MetricDrift struct {
	base
	MetricKey string
	Column    string
	Window    int
	ZThresh   float64
}

// MinHistory is the smallest window that supports a drift verdict.
const MinHistory = 3

func NewMetricDrift(metricKey, column string, window int, zThresh float64, opts Options) (*MetricDrift, error) {
	if metricKey == "" {
		return nil, fmt.Errorf("drift expectation needs a metric key")
	}
	if window <= 0 {
		window = 20
	}
	if zThresh <= 0 {
		zThresh = 3.0
	}
	return &MetricDrift{
		base:      base{opts: opts.Normalize()},
		MetricKey: metricKey,
		Column:    column,
		Window:    window,
		ZThresh:   zThresh,
	}, nil
}

func (v *MetricDrift) Type() string { return "MetricDrift" }

func (v *MetricDrift) Execute(ctx context.Context, ec ExecContext) (Outcome, error) {
	var cols []string
	if v.Column != "" {
		cols = []string{v.Column}
	}
	reqs := []metric.Request{{Key: v.MetricKey, Columns: cols, Alias: "current", Filter: v.opts.Where}}
	query, err := batch.Build(ec.Metrics, ec.Engine.Dialect(), ec.Table, reqs)
	if err != nil {
		return Outcome{}, err
	}
	res, err := ec.Engine.RunSQL(ctx, query)
	if err != nil {
		return Outcome{}, err
	}
	scalar, err := res.Scalar()
	if err != nil {
		return Outcome{}, err
	}
	current, ok := asFloat(scalar)
	if !ok {
		return Outcome{}, fmt.Errorf("metric %s is not numeric: %v", v.MetricKey, scalar)
	}

	values := map[string]any{v.MetricKey: current}
	if ec.History == nil {
		return pass(values), nil
	}
	history, err := ec.History.RecentMetricValues(ctx, ec.EngineName, ec.Table, v.MetricKey, v.Window)
	if err != nil {
		return Outcome{}, err
	}
	values["history_n"] = int64(len(history))
	if len(history) < MinHistory {
		return pass(values), nil
	}

	mean, sd := moments(history)
	values["history_mean"] = mean
	values["history_stddev"] = sd
	if sd == 0 {
		if current == mean {
			return pass(values), nil
		}
		return fail(values, "metric %s moved to %v from a constant history of %v", v.MetricKey, current, mean), nil
	}
	z := math.Abs(current-mean) / sd
	values["zscore"] = z
	if z <= v.ZThresh {
		return pass(values), nil
	}
	return fail(values, "metric %s drifted: value %v is %.2f standard deviations from the %d-run mean %v",
		v.MetricKey, current, z, len(history), mean), nil
}

func moments(xs []float64) (mean, sd float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var varsum float64
	for _, x := range xs {
		varsum += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(varsum / float64(len(xs)))
}
