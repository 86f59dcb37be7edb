// Package runner groups bindings into the minimum number of SQL statements
// per (engine, table), dispatches them, and assembles uniform results.
package runner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/veridata-io/veridata/internal/batch"
	"github.com/veridata-io/veridata/internal/engine"
	"github.com/veridata-io/veridata/internal/metric"
	"github.com/veridata-io/veridata/internal/result"
	"github.com/veridata-io/veridata/internal/validator"
	"github.com/veridata-io/veridata/pkg/logger"
)

// Binding pairs a validator with its (engine, table) target. Bindings are
// the unit of scheduling; result order follows binding order.
type Binding struct {
	EngineName string
	Table      string
	Validator  validator.Validator
}

// Recorder receives execution observations. Implemented by pkg/metrics; a
// nil recorder disables instrumentation.
type Recorder interface {
	ObserveValidation(status result.Status, severity result.Severity, d time.Duration)
	ObserveRun(status result.RunStatus, d time.Duration)
}

// Options tunes a runner.
type Options struct {
	// Metrics is the metric set batches resolve against. Defaults to the
	// process-wide set.
	Metrics *metric.Set

	// History is handed to history-aware validators. May be nil.
	History result.History

	// BindingTimeout bounds each dispatched statement group. Zero means no
	// limit beyond the caller's context.
	BindingTimeout time.Duration

	Logger   *logger.Logger
	Recorder Recorder
}

// Runner executes bindings against a named set of engines.
type Runner struct {
	engines  map[string]engine.Engine
	metrics  *metric.Set
	history  result.History
	timeout  time.Duration
	log      *logger.Logger
	recorder Recorder
}

// New builds a runner over the given engine map.
func New(engines map[string]engine.Engine, opts Options) *Runner {
	m := opts.Metrics
	if m == nil {
		m = metric.Default
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{
		engines:  engines,
		metrics:  m,
		history:  opts.History,
		timeout:  opts.BindingTimeout,
		log:      log,
		recorder: opts.Recorder,
	}
}

// partition is the work for one (engine, table) pair, split by kind.
type partition struct {
	engineName string
	table      string
	metricIxs  []int
	customIxs  []int
}

// Run executes the bindings sequentially, one (engine, table) partition at a
// time in order of first appearance (the partition's metric batch before its
// custom validators), and returns one result per binding, sorted back into
// binding order. An empty runID gets a fresh UUID.
// Cancellation between bindings returns the results produced so far with the
// run marked ABORTED. Programmer errors (unknown metric, duplicate alias,
// invalid metric expression) abort the call; engine failures become ERROR
// results and the run continues.
func (r *Runner) Run(ctx context.Context, suiteName, slaName, runID string, bindings []Binding) (result.RunMetadata, []result.ValidationResult, error) {
	run := result.NewRun(suiteName, slaName, runID)
	r.log.WithField("run_id", run.RunID).
		WithField("suite", suiteName).
		Infof("starting run with %d binding(s)", len(bindings))

	results := make([]result.ValidationResult, 0, len(bindings))
	aborted := false

	for _, part := range partitionBindings(bindings) {
		if ctx.Err() != nil {
			aborted = true
			break
		}

		if len(part.metricIxs) > 0 {
			batchResults, err := r.runMetricPartition(ctx, run.RunID, part, bindings)
			if err != nil {
				run.Finish(result.RunAborted)
				return run, results, err
			}
			results = append(results, batchResults...)
		}

		for _, ix := range part.customIxs {
			if ctx.Err() != nil {
				aborted = true
				break
			}
			results = append(results, r.runCustom(ctx, run.RunID, ix, bindings[ix]))
		}
		if aborted {
			break
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].BindingIx < results[j].BindingIx })

	status := result.RunComplete
	if aborted {
		status = result.RunAborted
	}
	run.Finish(status)
	if r.recorder != nil {
		r.recorder.ObserveRun(status, run.FinishedAt.Sub(run.StartedAt))
	}
	r.log.WithField("run_id", run.RunID).
		WithField("status", string(status)).
		Infof("run finished with %d result(s)", len(results))
	return run, results, nil
}

// partitionBindings groups bindings by (engine, table) in first-appearance
// order, splitting each group by validator kind.
func partitionBindings(bindings []Binding) []*partition {
	var order []*partition
	index := make(map[[2]string]*partition)
	for i, b := range bindings {
		key := [2]string{b.EngineName, b.Table}
		p, ok := index[key]
		if !ok {
			p = &partition{engineName: b.EngineName, table: b.Table}
			index[key] = p
			order = append(order, p)
		}
		if _, isMetric := b.Validator.(validator.MetricValidator); isMetric {
			p.metricIxs = append(p.metricIxs, i)
		} else {
			p.customIxs = append(p.customIxs, i)
		}
	}
	return order
}

// runMetricPartition fuses every metric-backed validator of one partition
// into a single statement and distributes the scalars back. The returned
// error is reserved for programmer errors; engine failures come back as
// ERROR results.
func (r *Runner) runMetricPartition(ctx context.Context, runID string, part *partition, bindings []Binding) ([]result.ValidationResult, error) {
	started := time.Now().UTC()

	type slot struct {
		ix       int
		v        validator.MetricValidator
		requests []metric.Request
	}
	slots := make([]slot, 0, len(part.metricIxs))
	var requests []metric.Request
	for _, ix := range part.metricIxs {
		v := bindings[ix].Validator.(validator.MetricValidator)
		reqs := v.MetricRequests()
		for i := range reqs {
			reqs[i].Alias = fmt.Sprintf("v%d", len(requests)+i)
		}
		requests = append(requests, reqs...)
		slots = append(slots, slot{ix: ix, v: v, requests: reqs})
	}

	eng, ok := r.engines[part.engineName]
	if !ok {
		return r.errorResults(runID, part, bindings, started, 0,
			fmt.Errorf("unknown engine %q", part.engineName)), nil
	}

	query, err := batch.Build(r.metrics, eng.Dialect(), part.table, requests)
	if err != nil {
		return nil, err
	}

	execCtx, cancel := r.bindingContext(ctx)
	defer cancel()
	rows, err := eng.RunSQL(execCtx, query)
	elapsed := time.Since(started)
	if err != nil {
		return r.errorResults(runID, part, bindings, started, elapsed, err), nil
	}
	if rows.Len() != 1 {
		return r.errorResults(runID, part, bindings, started, elapsed,
			fmt.Errorf("batch statement returned %d row(s), expected 1", rows.Len())), nil
	}

	out := make([]result.ValidationResult, 0, len(slots))
	for _, s := range slots {
		values := make(map[string]any, len(s.requests))
		for _, req := range s.requests {
			v, _ := rows.Value(0, req.Alias)
			values[req.Key] = v
		}
		outcome := s.v.Interpret(values)
		out = append(out, r.buildResult(runID, s.ix, bindings[s.ix], outcome, nil, started, elapsed))
	}
	return out, nil
}

func (r *Runner) runCustom(ctx context.Context, runID string, ix int, b Binding) result.ValidationResult {
	started := time.Now().UTC()

	cv, ok := b.Validator.(validator.CustomValidator)
	if !ok {
		return r.buildResult(runID, ix, b, validator.Outcome{}, fmt.Errorf(
			"validator %s is neither metric-backed nor custom", b.Validator.Type()), started, 0)
	}
	eng, ok := r.engines[b.EngineName]
	if !ok {
		return r.buildResult(runID, ix, b, validator.Outcome{},
			fmt.Errorf("unknown engine %q", b.EngineName), started, 0)
	}

	execCtx, cancel := r.bindingContext(ctx)
	defer cancel()
	outcome, err := cv.Execute(execCtx, validator.ExecContext{
		EngineName: b.EngineName,
		Engine:     eng,
		Engines:    r.engines,
		Table:      b.Table,
		Metrics:    r.metrics,
		History:    r.history,
	})
	return r.buildResult(runID, ix, b, outcome, err, started, time.Since(started))
}

func (r *Runner) bindingContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Runner) buildResult(runID string, ix int, b Binding, outcome validator.Outcome, execErr error, started time.Time, elapsed time.Duration) result.ValidationResult {
	opts := b.Validator.Options()
	res := result.ValidationResult{
		RunID:         runID,
		BindingIx:     ix,
		ValidatorType: b.Validator.Type(),
		EngineName:    b.EngineName,
		Table:         b.Table,
		Severity:      opts.Severity,
		Tags:          opts.Tags,
		StartedAt:     started,
		Duration:      elapsed,
	}
	switch {
	case execErr != nil:
		res.Status = result.StatusError
		res.ErrorMessage = execErr.Error()
		r.log.WithField("binding", ix).
			WithField("validator", res.ValidatorType).
			Warnf("binding errored: %v", execErr)
	case outcome.Passed:
		res.Status = result.StatusPass
		res.MetricValues = outcome.MetricValues
	default:
		res.Status = result.StatusFail
		res.MetricValues = outcome.MetricValues
		res.ErrorRows = outcome.ErrorRows
		res.ErrorRowsTruncated = outcome.Truncated
		res.ErrorMessage = outcome.Message
	}
	if r.recorder != nil {
		r.recorder.ObserveValidation(res.Status, res.Severity, elapsed)
	}
	return res
}

// errorResults emits one ERROR result per metric binding of a partition,
// used when the fused statement itself failed.
func (r *Runner) errorResults(runID string, part *partition, bindings []Binding, started time.Time, elapsed time.Duration, err error) []result.ValidationResult {
	out := make([]result.ValidationResult, 0, len(part.metricIxs))
	for _, ix := range part.metricIxs {
		out = append(out, r.buildResult(runID, ix, bindings[ix], validator.Outcome{}, err, started, elapsed))
	}
	return out
}
