// Package suite loads YAML suite and SLA documents into validator bindings,
// rejecting configuration problems before anything executes.
package suite

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/veridata-io/veridata/internal/engine"
	"github.com/veridata-io/veridata/internal/runner"
	"github.com/veridata-io/veridata/internal/validator"
)

// ErrConfig is the sentinel every load-time rejection wraps.
var ErrConfig = errors.New("invalid configuration")

// ConfigError carries the suite and expectation that failed to load.
type ConfigError struct {
	Suite  string
	Detail string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("suite %q: %s: %v", e.Suite, e.Detail, e.Err)
	}
	return fmt.Sprintf("suite %q: %v", e.Suite, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErr(suite, detail string, err error) error {
	if err == nil {
		err = ErrConfig
	} else if !errors.Is(err, ErrConfig) {
		err = fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return &ConfigError{Suite: suite, Detail: detail, Err: err}
}

// Suite is one named collection of expectations targeting a single
// (engine, table).
type Suite struct {
	SuiteName    string             `yaml:"suite_name" json:"suite_name"`
	Engine       string             `yaml:"engine" json:"engine"`
	Table        string             `yaml:"table" json:"table"`
	Expectations []validator.Config `yaml:"expectations" json:"expectations"`
}

// SLA groups suites evaluated as a unit.
type SLA struct {
	SLAName string  `yaml:"sla_name" json:"sla_name"`
	Suites  []Suite `yaml:"suites" json:"suites"`
}

// Loader resolves suite documents against a validator registry and the
// configured engines.
type Loader struct {
	registry *validator.Registry
	engines  map[string]engine.Engine
}

// NewLoader builds a loader; a nil registry uses the process default.
func NewLoader(registry *validator.Registry, engines map[string]engine.Engine) *Loader {
	if registry == nil {
		registry = validator.DefaultRegistry
	}
	return &Loader{registry: registry, engines: engines}
}

// ParseSuite decodes one YAML suite document.
func ParseSuite(data []byte) (*Suite, error) {
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, configErr("", "parse yaml", err)
	}
	return &s, nil
}

// ParseSLA decodes one YAML SLA document.
func ParseSLA(data []byte) (*SLA, error) {
	var s SLA
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, configErr("", "parse yaml", err)
	}
	return &s, nil
}

// LoadSuiteFile reads, parses and binds one suite document.
func (l *Loader) LoadSuiteFile(ctx context.Context, path string) (*Suite, []runner.Binding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	s, err := ParseSuite(data)
	if err != nil {
		return nil, nil, err
	}
	bindings, err := l.Bind(ctx, s)
	if err != nil {
		return nil, nil, err
	}
	return s, bindings, nil
}

// Bind validates a suite against the registry and the live engine and turns
// every expectation into a runner binding. All problems are reported at load
// time so nothing reaches the runner.
func (l *Loader) Bind(ctx context.Context, s *Suite) ([]runner.Binding, error) {
	if s.SuiteName == "" {
		return nil, configErr(s.SuiteName, "", errors.New("suite_name is required"))
	}
	if s.Table == "" {
		return nil, configErr(s.SuiteName, "", errors.New("table is required"))
	}
	eng, ok := l.engines[s.Engine]
	if !ok {
		return nil, configErr(s.SuiteName, "", fmt.Errorf("unknown engine %q", s.Engine))
	}

	columns, err := eng.ListColumns(ctx, s.Table)
	if err != nil {
		return nil, configErr(s.SuiteName, fmt.Sprintf("inspect table %q", s.Table), err)
	}
	known := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		known[c] = struct{}{}
	}

	bindings := make([]runner.Binding, 0, len(s.Expectations))
	for i, cfg := range s.Expectations {
		v, err := l.registry.Build(cfg)
		if err != nil {
			return nil, configErr(s.SuiteName, fmt.Sprintf("expectation %d", i), err)
		}
		for _, col := range referencedColumns(cfg) {
			if _, ok := known[col]; !ok {
				return nil, configErr(s.SuiteName, fmt.Sprintf("expectation %d (%s)", i, cfg.Type),
					fmt.Errorf("table %q has no column %q", s.Table, col))
			}
		}
		bindings = append(bindings, runner.Binding{
			EngineName: s.Engine,
			Table:      s.Table,
			Validator:  v,
		})
	}
	return bindings, nil
}

// BindSLA binds every suite of an SLA and returns the bindings keyed by suite
// name.
func (l *Loader) BindSLA(ctx context.Context, sla *SLA) (map[string][]runner.Binding, error) {
	out := make(map[string][]runner.Binding, len(sla.Suites))
	for i := range sla.Suites {
		s := &sla.Suites[i]
		bindings, err := l.Bind(ctx, s)
		if err != nil {
			return nil, err
		}
		out[s.SuiteName] = bindings
	}
	return out, nil
}

// referencedColumns lists the plain column names an expectation mentions.
// Raw SQL fields (where, sql) and cast expressions are left to the backend.
func referencedColumns(cfg validator.Config) []string {
	var cols []string
	if cfg.Column != "" {
		cols = append(cols, cfg.Column)
	}
	cols = append(cols, cfg.Columns...)
	cols = append(cols, cfg.Keys...)
	if cfg.GreaterEqualTo != "" {
		cols = append(cols, cfg.GreaterEqualTo)
	}
	return cols
}
