package validator

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/veridata-io/veridata/internal/result"
)

// Config is the tagged-variant configuration one expectation deserializes
// into. Type selects the constructor; the envelope fields (where, severity,
// tags) apply to every kind, the rest are interpreted per kind.
type Config struct {
	Type string `yaml:"expectation_type" json:"expectation_type"`

	Column  string   `yaml:"column,omitempty" json:"column,omitempty"`
	Columns []string `yaml:"columns,omitempty" json:"columns,omitempty"`
	Keys    []string `yaml:"keys,omitempty" json:"keys,omitempty"`

	Min      *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max      *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Strict   bool     `yaml:"strict,omitempty" json:"strict,omitempty"`
	Expected *int64   `yaml:"expected,omitempty" json:"expected,omitempty"`
	Op       string   `yaml:"op,omitempty" json:"op,omitempty"`

	Values    []any  `yaml:"values,omitempty" json:"values,omitempty"`
	AllowNull bool   `yaml:"allow_null,omitempty" json:"allow_null,omitempty"`
	Pattern   string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	// GreaterEqualTo names the column the target column must dominate.
	GreaterEqualTo string `yaml:"greater_equal_to,omitempty" json:"greater_equal_to,omitempty"`

	SQL          string  `yaml:"sql,omitempty" json:"sql,omitempty"`
	MaxErrorRows int     `yaml:"max_error_rows,omitempty" json:"max_error_rows,omitempty"`
	ZThresh      float64 `yaml:"z_thresh,omitempty" json:"z_thresh,omitempty"`

	MetricKey string `yaml:"metric_key,omitempty" json:"metric_key,omitempty"`
	Window    int    `yaml:"window,omitempty" json:"window,omitempty"`

	CompareEngine string          `yaml:"compare_engine,omitempty" json:"compare_engine,omitempty"`
	CompareTable  string          `yaml:"compare_table,omitempty" json:"compare_table,omitempty"`
	Mapping       []MappingConfig `yaml:"mapping,omitempty" json:"mapping,omitempty"`

	Where    string   `yaml:"where,omitempty" json:"where,omitempty"`
	Severity string   `yaml:"severity,omitempty" json:"severity,omitempty"`
	Tags     []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// MappingConfig is the serialized form of a ColumnMapping.
type MappingConfig struct {
	Column        string   `yaml:"column" json:"column"`
	CompareColumn string   `yaml:"compare_column,omitempty" json:"compare_column,omitempty"`
	CastType      string   `yaml:"cast_type,omitempty" json:"cast_type,omitempty"`
	Tolerance     *float64 `yaml:"tolerance,omitempty" json:"tolerance,omitempty"`
}

func (c Config) options() (Options, error) {
	sev := result.SeverityFail
	switch strings.ToUpper(c.Severity) {
	case "", "FAIL":
	case "WARN":
		sev = result.SeverityWarn
	case "INFO":
		sev = result.SeverityInfo
	default:
		return Options{}, fmt.Errorf("unknown severity %q", c.Severity)
	}
	return Options{Where: c.Where, Severity: sev, Tags: c.Tags}, nil
}

func (c Config) requireColumn() (string, error) {
	if c.Column == "" {
		return "", fmt.Errorf("%s requires a column", c.Type)
	}
	return c.Column, nil
}

// keyColumns accepts either keys: or columns: for multi-column expectations.
func (c Config) keyColumns() []string {
	if len(c.Keys) > 0 {
		return c.Keys
	}
	return c.Columns
}

// Constructor builds a validator from its configuration.
type Constructor func(cfg Config) (Validator, error)

// Registry maps expectation type names to constructors. Safe for concurrent
// use; the built-in types register at package init.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry returns a registry preloaded with the built-in expectations.
func NewRegistry() *Registry {
	r := &Registry{constructors: make(map[string]Constructor)}
	registerBuiltinTypes(r)
	return r
}

// DefaultRegistry is the process-wide constructor registry.
var DefaultRegistry = NewRegistry()

// Register binds an expectation type name to its constructor.
func (r *Registry) Register(name string, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.constructors[name]; exists {
		panic("validator type already registered: " + name)
	}
	r.constructors[name] = c
}

// Build instantiates the validator described by cfg. Unknown types and
// invalid configurations return an error; suites are rejected at load time.
func (r *Registry) Build(cfg Config) (Validator, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[cfg.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown expectation type %q", cfg.Type)
	}
	v, err := ctor(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Type, err)
	}
	return v, nil
}

// Types returns the registered expectation type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.constructors))
	for n := range r.constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func registerBuiltinTypes(r *Registry) {
	r.Register("ColumnNotNull", func(cfg Config) (Validator, error) {
		col, err := cfg.requireColumn()
		if err != nil {
			return nil, err
		}
		opts, err := cfg.options()
		if err != nil {
			return nil, err
		}
		return NewColumnNotNull(col, opts), nil
	})

	r.Register("ColumnNullPct", func(cfg Config) (Validator, error) {
		col, err := cfg.requireColumn()
		if err != nil {
			return nil, err
		}
		opts, err := cfg.options()
		if err != nil {
			return nil, err
		}
		if cfg.Max == nil {
			return nil, fmt.Errorf("requires max")
		}
		return NewColumnNullPct(col, *cfg.Max, opts), nil
	})

	r.Register("ColumnDistinctCount", func(cfg Config) (Validator, error) {
		col, err := cfg.requireColumn()
		if err != nil {
			return nil, err
		}
		opts, err := cfg.options()
		if err != nil {
			return nil, err
		}
		if cfg.Expected == nil {
			return nil, fmt.Errorf("requires expected")
		}
		return NewColumnDistinctCount(col, *cfg.Expected, CompareOp(cfg.Op), opts)
	})

	r.Register("ColumnMin", func(cfg Config) (Validator, error) {
		col, err := cfg.requireColumn()
		if err != nil {
			return nil, err
		}
		opts, err := cfg.options()
		if err != nil {
			return nil, err
		}
		if cfg.Min == nil {
			return nil, fmt.Errorf("requires min")
		}
		return NewColumnMin(col, *cfg.Min, cfg.Strict, opts), nil
	})

	r.Register("ColumnMax", func(cfg Config) (Validator, error) {
		col, err := cfg.requireColumn()
		if err != nil {
			return nil, err
		}
		opts, err := cfg.options()
		if err != nil {
			return nil, err
		}
		if cfg.Max == nil {
			return nil, fmt.Errorf("requires max")
		}
		return NewColumnMax(col, *cfg.Max, cfg.Strict, opts), nil
	})

	r.Register("ColumnRange", func(cfg Config) (Validator, error) {
		col, err := cfg.requireColumn()
		if err != nil {
			return nil, err
		}
		opts, err := cfg.options()
		if err != nil {
			return nil, err
		}
		if cfg.Min == nil || cfg.Max == nil {
			return nil, fmt.Errorf("requires min and max")
		}
		if *cfg.Min > *cfg.Max {
			return nil, fmt.Errorf("bounds inverted: min %v > max %v", *cfg.Min, *cfg.Max)
		}
		return NewColumnRange(col, *cfg.Min, *cfg.Max, opts), nil
	})

	r.Register("ColumnValueInSet", func(cfg Config) (Validator, error) {
		col, err := cfg.requireColumn()
		if err != nil {
			return nil, err
		}
		opts, err := cfg.options()
		if err != nil {
			return nil, err
		}
		return NewColumnValueInSet(col, cfg.Values, cfg.AllowNull, cfg.MaxErrorRows, opts)
	})

	r.Register("ColumnMatchesRegex", func(cfg Config) (Validator, error) {
		col, err := cfg.requireColumn()
		if err != nil {
			return nil, err
		}
		opts, err := cfg.options()
		if err != nil {
			return nil, err
		}
		return NewColumnMatchesRegex(col, cfg.Pattern, cfg.MaxErrorRows, opts)
	})

	r.Register("ColumnGreaterEqual", func(cfg Config) (Validator, error) {
		col, err := cfg.requireColumn()
		if err != nil {
			return nil, err
		}
		opts, err := cfg.options()
		if err != nil {
			return nil, err
		}
		return NewColumnGreaterEqual(col, cfg.GreaterEqualTo, cfg.MaxErrorRows, opts)
	})

	r.Register("ColumnZScoreOutlierRows", func(cfg Config) (Validator, error) {
		col, err := cfg.requireColumn()
		if err != nil {
			return nil, err
		}
		opts, err := cfg.options()
		if err != nil {
			return nil, err
		}
		return NewColumnZScoreOutlierRows(col, cfg.ZThresh, cfg.MaxErrorRows, opts)
	})

	r.Register("RowCountValidator", func(cfg Config) (Validator, error) {
		opts, err := cfg.options()
		if err != nil {
			return nil, err
		}
		var min, max *int64
		if cfg.Min != nil {
			n := int64(*cfg.Min)
			min = &n
		}
		if cfg.Max != nil {
			n := int64(*cfg.Max)
			max = &n
		}
		return NewRowCount(min, max, opts)
	})

	r.Register("PrimaryKeyUniqueness", func(cfg Config) (Validator, error) {
		opts, err := cfg.options()
		if err != nil {
			return nil, err
		}
		return NewPrimaryKeyUniqueness(cfg.keyColumns(), opts)
	})

	r.Register("DuplicateRowValidator", func(cfg Config) (Validator, error) {
		opts, err := cfg.options()
		if err != nil {
			return nil, err
		}
		return NewDuplicateRow(cfg.keyColumns(), cfg.MaxErrorRows, opts)
	})

	r.Register("SqlErrorRowsValidator", func(cfg Config) (Validator, error) {
		opts, err := cfg.options()
		if err != nil {
			return nil, err
		}
		return NewSqlErrorRows(cfg.SQL, cfg.MaxErrorRows, opts)
	})

	r.Register("TableReconciliation", func(cfg Config) (Validator, error) {
		opts, err := cfg.options()
		if err != nil {
			return nil, err
		}
		return NewTableReconciliation(cfg.CompareEngine, cfg.CompareTable, opts)
	})

	r.Register("ColumnReconciliation", func(cfg Config) (Validator, error) {
		opts, err := cfg.options()
		if err != nil {
			return nil, err
		}
		mappings := make([]ColumnMapping, len(cfg.Mapping))
		for i, m := range cfg.Mapping {
			if m.Column == "" {
				return nil, fmt.Errorf("mapping %d requires a column", i)
			}
			mappings[i] = ColumnMapping{
				Column:        m.Column,
				CompareColumn: m.CompareColumn,
				CastType:      m.CastType,
				Tolerance:     m.Tolerance,
			}
		}
		return NewColumnReconciliation(cfg.CompareEngine, cfg.CompareTable, mappings, opts)
	})

	r.Register("MetricDrift", func(cfg Config) (Validator, error) {
		opts, err := cfg.options()
		if err != nil {
			return nil, err
		}
		return NewMetricDrift(cfg.MetricKey, cfg.Column, cfg.Window, cfg.ZThresh, opts)
	})
}
