package sqlexpr

import (
	"testing"
)

func TestRenderLiterals(t *testing.T) {
	cases := []struct {
		in   Expr
		want string
	}{
		{Literal{Value: nil}, "NULL"},
		{Literal{Value: 42}, "42"},
		{Literal{Value: "active"}, "'active'"},
		{Literal{Value: "it's"}, "'it''s'"},
		{Literal{Value: true}, "TRUE"},
		{Literal{Value: 1.5}, "1.5"},
	}
	for _, c := range cases {
		if got := c.in.Render(DialectSQLite); got != c.want {
			t.Errorf("Render(%#v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRenderAggregates(t *testing.T) {
	cases := []struct {
		in   Expr
		want string
	}{
		{CountStar(), "COUNT(*)"},
		{Agg{Fn: AggCount, Arg: Column{Name: "id"}}, "COUNT(id)"},
		{Agg{Fn: AggCount, Arg: Column{Name: "id"}, Distinct: true}, "COUNT(DISTINCT id)"},
		{Agg{Fn: AggSum, Arg: Column{Name: "amount"}}, "SUM(amount)"},
		{Agg{Fn: AggMin, Arg: Column{Name: "ts"}}, "MIN(ts)"},
	}
	for _, c := range cases {
		if got := c.in.Render(DialectSQLite); got != c.want {
			t.Errorf("Render = %q, want %q", got, c.want)
		}
	}
}

func TestRenderComposite(t *testing.T) {
	e := Div{
		Num: Agg{Fn: AggSum, Arg: Case{
			When: Binary{Op: "IS", Left: Column{Name: "c"}, Right: Raw{SQL: "NULL"}},
			Then: Literal{Value: 1},
			Else: Literal{Value: 0},
		}},
		Den: NullIf(CountStar(), 0),
	}
	want := "(1.0 * SUM(CASE WHEN (c IS NULL) THEN 1 ELSE 0 END) / NULLIF(COUNT(*), 0))"
	if got := e.Render(DialectSQLite); got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestRenderCast(t *testing.T) {
	e := Cast{Expr: Column{Name: "id"}, Type: "TEXT"}
	if got := e.Render(DialectPostgres); got != "CAST(id AS TEXT)" {
		t.Errorf("Render = %q", got)
	}
}

func TestApplyFilterCountStar(t *testing.T) {
	pred := Raw{SQL: "(status = 'active')"}
	got := ApplyFilter(CountStar(), pred).Render(DialectSQLite)
	want := "SUM(CASE WHEN (status = 'active') THEN 1 ELSE 0 END)"
	if got != want {
		t.Errorf("ApplyFilter = %q, want %q", got, want)
	}
}

func TestApplyFilterCountColumn(t *testing.T) {
	pred := Raw{SQL: "(status = 'active')"}
	e := Agg{Fn: AggCount, Arg: Column{Name: "email"}}
	got := ApplyFilter(e, pred).Render(DialectSQLite)
	want := "SUM(CASE WHEN ((status = 'active') AND (email IS NOT NULL)) THEN 1 ELSE 0 END)"
	if got != want {
		t.Errorf("ApplyFilter = %q, want %q", got, want)
	}
}

func TestApplyFilterDistinct(t *testing.T) {
	pred := Raw{SQL: "(region = 'eu')"}
	e := Agg{Fn: AggCount, Arg: Column{Name: "user_id"}, Distinct: true}
	got := ApplyFilter(e, pred).Render(DialectSQLite)
	want := "COUNT(DISTINCT CASE WHEN (region = 'eu') THEN user_id END)"
	if got != want {
		t.Errorf("ApplyFilter = %q, want %q", got, want)
	}
}

func TestApplyFilterWrapsValueAggregates(t *testing.T) {
	pred := Raw{SQL: "(x > 0)"}
	e := Agg{Fn: AggAvg, Arg: Column{Name: "x"}}
	got := ApplyFilter(e, pred).Render(DialectSQLite)
	want := "AVG(CASE WHEN (x > 0) THEN x END)"
	if got != want {
		t.Errorf("ApplyFilter = %q, want %q", got, want)
	}
}

func TestApplyFilterRecursesIntoRatios(t *testing.T) {
	pred := Raw{SQL: "(kind = 'a')"}
	e := Div{Num: CountStar(), Den: NullIf(CountStar(), 0)}
	got := ApplyFilter(e, pred).Render(DialectSQLite)
	want := "(1.0 * SUM(CASE WHEN (kind = 'a') THEN 1 ELSE 0 END) / NULLIF(SUM(CASE WHEN (kind = 'a') THEN 1 ELSE 0 END), 0))"
	if got != want {
		t.Errorf("ApplyFilter = %q, want %q", got, want)
	}
}

func TestRewriteDoesNotMutateInput(t *testing.T) {
	e := Agg{Fn: AggCount, Arg: Star{}}
	_ = ApplyFilter(e, Raw{SQL: "(x = 1)"})
	if got := e.Render(DialectSQLite); got != "COUNT(*)" {
		t.Errorf("input mutated: %q", got)
	}
}

func TestHasAggregate(t *testing.T) {
	if !HasAggregate(Div{Num: CountStar(), Den: Literal{Value: 2}}) {
		t.Error("expected aggregate in ratio")
	}
	if HasAggregate(Column{Name: "c"}) {
		t.Error("bare column is not an aggregate")
	}
}
