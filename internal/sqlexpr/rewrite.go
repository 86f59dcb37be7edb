package sqlexpr

// RewriteFunc maps one node to its replacement. Returning the input node
// unchanged is the identity.
type RewriteFunc func(Expr) Expr

// Rewrite walks the tree bottom-up, rebuilding every composite node from its
// rewritten children and then applying fn to the result. The input tree is
// never mutated.
func Rewrite(e Expr, fn RewriteFunc) Expr {
	switch n := e.(type) {
	case Func:
		args := make([]Expr, len(n.Args))
		for i, a := range n.Args {
			args[i] = Rewrite(a, fn)
		}
		return fn(Func{Name: n.Name, Args: args})
	case Binary:
		return fn(Binary{Op: n.Op, Left: Rewrite(n.Left, fn), Right: Rewrite(n.Right, fn)})
	case Case:
		c := Case{When: Rewrite(n.When, fn), Then: Rewrite(n.Then, fn)}
		if n.Else != nil {
			c.Else = Rewrite(n.Else, fn)
		}
		return fn(c)
	case Cast:
		return fn(Cast{Expr: Rewrite(n.Expr, fn), Type: n.Type})
	case Agg:
		return fn(Agg{Fn: n.Fn, Arg: Rewrite(n.Arg, fn), Distinct: n.Distinct})
	case Div:
		return fn(Div{Num: Rewrite(n.Num, fn), Den: Rewrite(n.Den, fn)})
	default:
		return fn(e)
	}
}

// HasAggregate reports whether any aggregate node occurs in the tree.
func HasAggregate(e Expr) bool {
	found := false
	Rewrite(e, func(n Expr) Expr {
		if _, ok := n.(Agg); ok {
			found = true
		}
		return n
	})
	return found
}

// ApplyFilter pushes a boolean predicate into every aggregate of the tree so
// the filtered and unfiltered forms can share one scan:
//
//	COUNT(*)          -> SUM(CASE WHEN p THEN 1 ELSE 0 END)
//	COUNT(x)          -> SUM(CASE WHEN p AND x IS NOT NULL THEN 1 ELSE 0 END)
//	COUNT(DISTINCT x) -> COUNT(DISTINCT CASE WHEN p THEN x END)
//	SUM/AVG/MIN/MAX(x)-> same aggregate over CASE WHEN p THEN x END
//
// Ratios, differences and scalar wrappers of aggregates are recursed into.
// The predicate should already be parenthesized if it contains OR.
func ApplyFilter(e Expr, pred Expr) Expr {
	one := Literal{Value: 1}
	zero := Literal{Value: 0}
	return Rewrite(e, func(n Expr) Expr {
		agg, ok := n.(Agg)
		if !ok {
			return n
		}
		switch {
		case agg.Fn == AggCount && agg.Distinct:
			return Agg{Fn: AggCount, Arg: Case{When: pred, Then: agg.Arg}, Distinct: true}
		case agg.Fn == AggCount:
			if _, star := agg.Arg.(Star); star {
				return Agg{Fn: AggSum, Arg: Case{When: pred, Then: one, Else: zero}}
			}
			notNull := Binary{Op: "IS NOT", Left: agg.Arg, Right: Raw{SQL: "NULL"}}
			return Agg{Fn: AggSum, Arg: Case{
				When: Binary{Op: "AND", Left: pred, Right: notNull},
				Then: one,
				Else: zero,
			}}
		default:
			return Agg{Fn: agg.Fn, Arg: Case{When: pred, Then: agg.Arg}}
		}
	})
}
