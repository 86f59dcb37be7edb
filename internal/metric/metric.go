// Package metric maps short metric keys to reusable aggregate-expression
// builders and models one metric application (a request) against a table.
package metric

import (
	"errors"
	"fmt"

	"github.com/veridata-io/veridata/internal/sqlexpr"
)

var (
	// ErrDuplicateMetric indicates a key is already bound to a different builder.
	ErrDuplicateMetric = errors.New("duplicate metric")

	// ErrUnknownMetric indicates a lookup for an unregistered key.
	ErrUnknownMetric = errors.New("unknown metric")
)

// KeyError attaches the offending metric key to a sentinel.
type KeyError struct {
	Key string
	Err error
}

func (e *KeyError) Error() string { return fmt.Sprintf("metric %q: %v", e.Key, e.Err) }

func (e *KeyError) Unwrap() error { return e.Err }

// Builder produces the aggregate expression for a metric over the given
// columns. Builders are pure; the same inputs always yield an equal tree.
type Builder func(cols ...string) (sqlexpr.Expr, error)

// Request is one metric application inside a batch: which metric, over which
// columns, projected under which alias, optionally restricted to rows
// matching Filter (a boolean SQL predicate applied per-request).
type Request struct {
	Key     string
	Columns []string
	Alias   string
	Filter  string
}

// Star is the column placeholder for table-level metrics such as row_cnt.
const Star = "*"

func arity(key string, cols []string, want int) error {
	if len(cols) != want {
		return &KeyError{Key: key, Err: fmt.Errorf("expects %d column(s), got %d", want, len(cols))}
	}
	return nil
}

func atLeast(key string, cols []string, want int) error {
	if len(cols) < want {
		return &KeyError{Key: key, Err: fmt.Errorf("expects at least %d column(s), got %d", want, len(cols))}
	}
	return nil
}
