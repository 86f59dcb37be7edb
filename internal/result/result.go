// Package result defines the immutable outcome records a validation run
// produces and the persistence contract stores implement.
package result

import (
	"time"

	"github.com/google/uuid"
)

// Status is the outcome of one validator.
type Status string

const (
	// StatusPass means the expectation held.
	StatusPass Status = "PASS"
	// StatusFail means the data violated the expectation.
	StatusFail Status = "FAIL"
	// StatusError means infrastructure prevented evaluation.
	StatusError Status = "ERROR"
)

// Severity is the declared weight of a validator's failure.
type Severity string

const (
	SeverityFail Severity = "FAIL"
	SeverityWarn Severity = "WARN"
	SeverityInfo Severity = "INFO"
)

// ValidationResult records the outcome of one binding. Immutable after the
// runner constructs it.
type ValidationResult struct {
	RunID         string         `json:"run_id"`
	BindingIx     int            `json:"binding_ix"`
	ValidatorType string         `json:"validator_type"`
	EngineName    string         `json:"engine"`
	Table         string         `json:"table"`
	Status        Status         `json:"status"`
	Severity      Severity       `json:"severity"`
	Tags          []string       `json:"tags,omitempty"`
	MetricValues  map[string]any `json:"metric_values,omitempty"`
	ErrorRows     []map[string]any `json:"error_sample,omitempty"`
	// ErrorRowsTruncated is set when more offending rows existed than the
	// validator's sample cap.
	ErrorRowsTruncated bool          `json:"error_sample_truncated,omitempty"`
	ErrorMessage       string        `json:"error_message,omitempty"`
	StartedAt          time.Time     `json:"started_at"`
	Duration           time.Duration `json:"duration"`
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning  RunStatus = "RUNNING"
	RunComplete RunStatus = "COMPLETE"
	RunAborted  RunStatus = "ABORTED"
)

// RunMetadata identifies one execution of a suite. The RunID flows into
// every result.
type RunMetadata struct {
	RunID      string     `json:"run_id"`
	SuiteName  string     `json:"suite_name"`
	SLAName    string     `json:"sla_name,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     RunStatus  `json:"status"`
}

// NewRun opens run metadata in the RUNNING state. An empty runID gets a
// fresh UUID.
func NewRun(suiteName, slaName, runID string) RunMetadata {
	if runID == "" {
		runID = uuid.NewString()
	}
	return RunMetadata{
		RunID:     runID,
		SuiteName: suiteName,
		SLAName:   slaName,
		StartedAt: time.Now().UTC(),
		Status:    RunRunning,
	}
}

// Finish transitions the run to its terminal state.
func (m *RunMetadata) Finish(status RunStatus) {
	now := time.Now().UTC()
	m.FinishedAt = &now
	m.Status = status
}

// ColumnStat is one collected column statistic, persisted alongside a run.
type ColumnStat struct {
	EngineName string `json:"engine"`
	Schema     string `json:"schema,omitempty"`
	Table      string `json:"table"`
	Column     string `json:"column"`
	MetricKey  string `json:"metric_key"`
	Value      any    `json:"value"`
}

// SLARecord names a bundle of suites with its serialized configuration.
type SLARecord struct {
	Name   string `json:"sla_name"`
	Config any    `json:"config"`
}
