// Package batch fuses independent metric requests, each with an optional row
// filter, into a single SELECT so one table scan serves them all.
package batch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/veridata-io/veridata/internal/metric"
	"github.com/veridata-io/veridata/internal/sqlexpr"
)

var (
	// ErrDuplicateAlias indicates two requests in one batch share an alias.
	ErrDuplicateAlias = errors.New("duplicate alias")

	// ErrInvalidMetric indicates a metric expression whose top level is not
	// an aggregate (or a ratio/arithmetic combination of aggregates).
	ErrInvalidMetric = errors.New("invalid metric expression")
)

// Build renders the requests against one table into a single SELECT whose
// projection order matches the request order. Requests carrying a filter have
// the predicate pushed into their aggregates; when every request carries the
// identical filter, a global WHERE is emitted instead and the per-aggregate
// rewrite is skipped.
func Build(set *metric.Set, d sqlexpr.Dialect, table string, reqs []metric.Request) (string, error) {
	if len(reqs) == 0 {
		return "", fmt.Errorf("batch for table %q has no requests", table)
	}

	seen := make(map[string]struct{}, len(reqs))
	for _, r := range reqs {
		if r.Alias == "" {
			return "", fmt.Errorf("request for metric %q: alias must not be empty", r.Key)
		}
		if _, dup := seen[r.Alias]; dup {
			return "", fmt.Errorf("alias %q: %w", r.Alias, ErrDuplicateAlias)
		}
		seen[r.Alias] = struct{}{}
	}

	shared := sharedFilter(reqs)

	projections := make([]string, 0, len(reqs))
	for _, r := range reqs {
		b, err := set.Get(r.Key)
		if err != nil {
			return "", err
		}
		expr, err := b(r.Columns...)
		if err != nil {
			return "", err
		}
		if err := validateAggregate(expr); err != nil {
			return "", fmt.Errorf("metric %q (alias %q): %w", r.Key, r.Alias, err)
		}
		if r.Filter != "" && shared == "" {
			pred := sqlexpr.Raw{SQL: "(" + r.Filter + ")"}
			expr = sqlexpr.ApplyFilter(expr, pred)
		}
		projections = append(projections, expr.Render(d)+" AS "+r.Alias)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(projections, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(table)
	if shared != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(shared)
	}
	return sb.String(), nil
}

// sharedFilter returns the filter common to every request, or "" when any
// request differs (including the unfiltered case).
func sharedFilter(reqs []metric.Request) string {
	first := reqs[0].Filter
	if first == "" {
		return ""
	}
	for _, r := range reqs[1:] {
		if r.Filter != first {
			return ""
		}
	}
	return first
}

// validateAggregate rejects expressions with bare column or * references
// outside any aggregate. Descent stops at aggregate nodes; whatever is inside
// them is the builder's business.
func validateAggregate(e sqlexpr.Expr) error {
	if !sqlexpr.HasAggregate(e) {
		return ErrInvalidMetric
	}
	return checkOutsideAgg(e)
}

func checkOutsideAgg(e sqlexpr.Expr) error {
	switch n := e.(type) {
	case sqlexpr.Agg:
		return nil
	case sqlexpr.Column, sqlexpr.Star:
		return ErrInvalidMetric
	case sqlexpr.Func:
		for _, a := range n.Args {
			if err := checkOutsideAgg(a); err != nil {
				return err
			}
		}
		return nil
	case sqlexpr.Binary:
		if err := checkOutsideAgg(n.Left); err != nil {
			return err
		}
		return checkOutsideAgg(n.Right)
	case sqlexpr.Case:
		if err := checkOutsideAgg(n.When); err != nil {
			return err
		}
		if err := checkOutsideAgg(n.Then); err != nil {
			return err
		}
		if n.Else != nil {
			return checkOutsideAgg(n.Else)
		}
		return nil
	case sqlexpr.Cast:
		return checkOutsideAgg(n.Expr)
	case sqlexpr.Div:
		if err := checkOutsideAgg(n.Num); err != nil {
			return err
		}
		return checkOutsideAgg(n.Den)
	default:
		return nil
	}
}
