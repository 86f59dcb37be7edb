// Package metrics exposes Prometheus instrumentation for validation runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veridata-io/veridata/internal/result"
)

// Registry holds the application-specific Prometheus collectors.
var Registry = prometheus.NewRegistry()

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veridata",
			Subsystem: "runner",
			Name:      "runs_total",
			Help:      "Total number of validation runs by terminal status.",
		},
		[]string{"status"},
	)

	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "veridata",
			Subsystem: "runner",
			Name:      "run_duration_seconds",
			Help:      "Duration of whole validation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
	)

	validationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veridata",
			Subsystem: "runner",
			Name:      "validations_total",
			Help:      "Total number of evaluated validators by status and severity.",
		},
		[]string{"status", "severity"},
	)

	validationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "veridata",
			Subsystem: "runner",
			Name:      "validation_duration_seconds",
			Help:      "Duration of individual validator evaluations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		},
		[]string{"status"},
	)
)

func init() {
	Registry.MustRegister(
		runsTotal,
		runDuration,
		validationsTotal,
		validationDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Recorder feeds the runner's observations into the collectors. The zero
// value is ready to use.
type Recorder struct{}

// ObserveValidation records one validator evaluation.
func (Recorder) ObserveValidation(status result.Status, severity result.Severity, d time.Duration) {
	validationsTotal.WithLabelValues(string(status), string(severity)).Inc()
	validationDuration.WithLabelValues(string(status)).Observe(d.Seconds())
}

// ObserveRun records one finished run.
func (Recorder) ObserveRun(status result.RunStatus, d time.Duration) {
	runsTotal.WithLabelValues(string(status)).Inc()
	runDuration.Observe(d.Seconds())
}

// Handler serves the registry in the standard exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
