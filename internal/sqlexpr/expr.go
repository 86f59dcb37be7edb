// Package sqlexpr models the small SQL expression tree the metric layer
// builds aggregates from, plus rendering to dialect strings.
package sqlexpr

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect names the SQL variant a rendered expression targets. Only
// SQL-standard constructs are emitted, so most dialects render identically;
// the name is kept on the render path so backends can diverge later.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectGeneric  Dialect = "generic"
)

// Expr is a node in the expression tree.
type Expr interface {
	Render(d Dialect) string
}

// AggFunc enumerates the supported aggregate functions.
type AggFunc string

const (
	AggCount AggFunc = "COUNT"
	AggSum   AggFunc = "SUM"
	AggAvg   AggFunc = "AVG"
	AggMin   AggFunc = "MIN"
	AggMax   AggFunc = "MAX"
)

// Ident is a raw identifier (table or alias reference).
type Ident struct {
	Name string
}

func (e Ident) Render(Dialect) string { return e.Name }

// Column references a column by name.
type Column struct {
	Name string
}

func (e Column) Render(Dialect) string { return e.Name }

// Star is the * projection, valid only inside COUNT.
type Star struct{}

func (Star) Render(Dialect) string { return "*" }

// Literal is a constant value. Strings are single-quoted with embedded
// quotes doubled; nil renders as NULL.
type Literal struct {
	Value any
}

func (e Literal) Render(Dialect) string {
	switch v := e.Value.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Raw embeds caller-supplied SQL verbatim; Render adds no parentheses, so
// callers wrap the SQL themselves where precedence matters. Used for user
// filter predicates, which the engine does not parse.
type Raw struct {
	SQL string
}

func (e Raw) Render(Dialect) string { return e.SQL }

// Func is a scalar function call.
type Func struct {
	Name string
	Args []Expr
}

func (e Func) Render(d Dialect) string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.Render(d)
	}
	return e.Name + "(" + strings.Join(args, ", ") + ")"
}

// Binary is an infix operation. Output is parenthesized so callers never
// need to reason about precedence.
type Binary struct {
	Op    string
	Left  Expr
	Right Expr
}

func (e Binary) Render(d Dialect) string {
	return "(" + e.Left.Render(d) + " " + e.Op + " " + e.Right.Render(d) + ")"
}

// Case is a single-branch CASE WHEN expression. Else may be nil, in which
// case the SQL ELSE arm is omitted and non-matching rows yield NULL.
type Case struct {
	When Expr
	Then Expr
	Else Expr
}

func (e Case) Render(d Dialect) string {
	var b strings.Builder
	b.WriteString("CASE WHEN ")
	b.WriteString(e.When.Render(d))
	b.WriteString(" THEN ")
	b.WriteString(e.Then.Render(d))
	if e.Else != nil {
		b.WriteString(" ELSE ")
		b.WriteString(e.Else.Render(d))
	}
	b.WriteString(" END")
	return b.String()
}

// Cast converts an expression to a named SQL type.
type Cast struct {
	Expr Expr
	Type string
}

func (e Cast) Render(d Dialect) string {
	return "CAST(" + e.Expr.Render(d) + " AS " + e.Type + ")"
}

// Agg is an aggregate call. Distinct is only meaningful for COUNT.
type Agg struct {
	Fn       AggFunc
	Arg      Expr
	Distinct bool
}

func (e Agg) Render(d Dialect) string {
	if e.Distinct {
		return string(e.Fn) + "(DISTINCT " + e.Arg.Render(d) + ")"
	}
	return string(e.Fn) + "(" + e.Arg.Render(d) + ")"
}

// Div is a ratio of two expressions. The numerator is scaled by 1.0 so
// integer-typed operands divide fractionally on every supported backend.
type Div struct {
	Num Expr
	Den Expr
}

func (e Div) Render(d Dialect) string {
	return "(1.0 * " + e.Num.Render(d) + " / " + e.Den.Render(d) + ")"
}

// CountStar is shorthand for COUNT(*).
func CountStar() Expr { return Agg{Fn: AggCount, Arg: Star{}} }

// NullIf wraps an expression in NULLIF against a literal, the standard
// guard for zero denominators.
func NullIf(e Expr, v any) Expr {
	return Func{Name: "NULLIF", Args: []Expr{e, Literal{Value: v}}}
}
