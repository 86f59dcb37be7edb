package metric

import (
	"github.com/veridata-io/veridata/internal/sqlexpr"
)

// Built-in metric keys.
const (
	RowCnt          = "row_cnt"
	NullCnt         = "null_cnt"
	NullPct         = "null_pct"
	DistinctCnt     = "distinct_cnt"
	DuplicateRowCnt = "duplicate_row_cnt"
	Min             = "min"
	Max             = "max"
	NonNullCnt      = "non_null_cnt"
)

func registerBuiltins(s *Set) {
	s.MustRegister(RowCnt, buildRowCnt)
	s.MustRegister(NullCnt, buildNullCnt)
	s.MustRegister(NullPct, buildNullPct)
	s.MustRegister(DistinctCnt, buildDistinctCnt)
	s.MustRegister(DuplicateRowCnt, buildDuplicateRowCnt)
	s.MustRegister(Min, buildMin)
	s.MustRegister(Max, buildMax)
	s.MustRegister(NonNullCnt, buildNonNullCnt)
}

func buildRowCnt(cols ...string) (sqlexpr.Expr, error) {
	return sqlexpr.CountStar(), nil
}

func nullCntExpr(col string) sqlexpr.Expr {
	isNull := sqlexpr.Binary{Op: "IS", Left: sqlexpr.Column{Name: col}, Right: sqlexpr.Raw{SQL: "NULL"}}
	return sqlexpr.Agg{Fn: sqlexpr.AggSum, Arg: sqlexpr.Case{
		When: isNull,
		Then: sqlexpr.Literal{Value: 1},
		Else: sqlexpr.Literal{Value: 0},
	}}
}

func buildNullCnt(cols ...string) (sqlexpr.Expr, error) {
	if err := arity(NullCnt, cols, 1); err != nil {
		return nil, err
	}
	return nullCntExpr(cols[0]), nil
}

func buildNullPct(cols ...string) (sqlexpr.Expr, error) {
	if err := arity(NullPct, cols, 1); err != nil {
		return nil, err
	}
	return sqlexpr.Div{
		Num: nullCntExpr(cols[0]),
		Den: sqlexpr.NullIf(sqlexpr.CountStar(), 0),
	}, nil
}

// distinctArg renders one or many columns into a single DISTINCT operand.
// Multi-column tuples are concatenated as text with a separator, which is
// portable where row-value DISTINCT is not.
func distinctArg(cols []string) sqlexpr.Expr {
	if len(cols) == 1 {
		return sqlexpr.Column{Name: cols[0]}
	}
	var e sqlexpr.Expr = sqlexpr.Cast{Expr: sqlexpr.Column{Name: cols[0]}, Type: "TEXT"}
	for _, c := range cols[1:] {
		e = sqlexpr.Binary{Op: "||", Left: e, Right: sqlexpr.Literal{Value: "|"}}
		e = sqlexpr.Binary{Op: "||", Left: e, Right: sqlexpr.Cast{Expr: sqlexpr.Column{Name: c}, Type: "TEXT"}}
	}
	return e
}

func buildDistinctCnt(cols ...string) (sqlexpr.Expr, error) {
	if err := atLeast(DistinctCnt, cols, 1); err != nil {
		return nil, err
	}
	return sqlexpr.Agg{Fn: sqlexpr.AggCount, Arg: distinctArg(cols), Distinct: true}, nil
}

func buildDuplicateRowCnt(cols ...string) (sqlexpr.Expr, error) {
	if err := atLeast(DuplicateRowCnt, cols, 1); err != nil {
		return nil, err
	}
	distinct := sqlexpr.Agg{Fn: sqlexpr.AggCount, Arg: distinctArg(cols), Distinct: true}
	return sqlexpr.Binary{Op: "-", Left: sqlexpr.CountStar(), Right: distinct}, nil
}

func buildMin(cols ...string) (sqlexpr.Expr, error) {
	if err := arity(Min, cols, 1); err != nil {
		return nil, err
	}
	return sqlexpr.Agg{Fn: sqlexpr.AggMin, Arg: sqlexpr.Column{Name: cols[0]}}, nil
}

func buildMax(cols ...string) (sqlexpr.Expr, error) {
	if err := arity(Max, cols, 1); err != nil {
		return nil, err
	}
	return sqlexpr.Agg{Fn: sqlexpr.AggMax, Arg: sqlexpr.Column{Name: cols[0]}}, nil
}

func buildNonNullCnt(cols ...string) (sqlexpr.Expr, error) {
	if err := arity(NonNullCnt, cols, 1); err != nil {
		return nil, err
	}
	return sqlexpr.Agg{Fn: sqlexpr.AggCount, Arg: sqlexpr.Column{Name: cols[0]}}, nil
}
