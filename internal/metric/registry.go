package metric

import (
	"reflect"
	"sort"
	"sync"

	"github.com/veridata-io/veridata/internal/sqlexpr"
)

// Set is a mapping from metric key to builder. The zero value is not usable;
// construct with NewSet. All methods are safe for concurrent use, and a
// builder handed out by Get is never replaced underneath the caller.
type Set struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewSet returns an empty metric set.
func NewSet() *Set {
	return &Set{builders: make(map[string]Builder)}
}

// Default is the process-wide set carrying the built-in metrics. Tests and
// embedders that want isolation construct their own Set instead.
var Default = NewSet()

func init() {
	registerBuiltins(Default)
}

// Register binds key to builder. Registering the same builder under the same
// key again is a no-op; a different builder under an existing key fails with
// ErrDuplicateMetric.
func (s *Set) Register(key string, b Builder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.builders[key]; ok {
		if reflect.ValueOf(existing).Pointer() == reflect.ValueOf(b).Pointer() {
			return nil
		}
		return &KeyError{Key: key, Err: ErrDuplicateMetric}
	}
	s.builders[key] = b
	return nil
}

// MustRegister is Register that panics, for package-init wiring.
func (s *Set) MustRegister(key string, b Builder) {
	if err := s.Register(key, b); err != nil {
		panic(err)
	}
}

// RegisterPctWhere registers a ratio metric counting rows matching the given
// predicate over all rows: SUM(CASE WHEN pred THEN 1 ELSE 0 END) /
// NULLIF(COUNT(*), 0). Each call synthesizes a new builder, so an existing
// key fails with ErrDuplicateMetric.
func (s *Set) RegisterPctWhere(key, predicateSQL string) error {
	pred := sqlexpr.Raw{SQL: "(" + predicateSQL + ")"}
	b := func(cols ...string) (sqlexpr.Expr, error) {
		matched := sqlexpr.Agg{Fn: sqlexpr.AggSum, Arg: sqlexpr.Case{
			When: pred,
			Then: sqlexpr.Literal{Value: 1},
			Else: sqlexpr.Literal{Value: 0},
		}}
		return sqlexpr.Div{Num: matched, Den: sqlexpr.NullIf(sqlexpr.CountStar(), 0)}, nil
	}
	// Closures from this literal share one code pointer, which Register's
	// identity check would take for the same builder; check the key here.
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.builders[key]; ok {
		return &KeyError{Key: key, Err: ErrDuplicateMetric}
	}
	s.builders[key] = b
	return nil
}

// Get returns the builder for key, or ErrUnknownMetric.
func (s *Set) Get(key string) (Builder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.builders[key]
	if !ok {
		return nil, &KeyError{Key: key, Err: ErrUnknownMetric}
	}
	return b, nil
}

// Keys returns the registered metric keys, sorted.
func (s *Set) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.builders))
	for k := range s.builders {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
