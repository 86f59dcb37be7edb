package validator

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/veridata-io/veridata/internal/sqlexpr"
)

// ColumnValueInSet expects every value of a column to come from an allowed
// set. NULLs are offenders unless AllowNull is set.
type ColumnValueInSet struct {
	base
	Column       string
	Values       []any
	AllowNull    bool
	MaxErrorRows int
}

func NewColumnValueInSet(column string, values []any, allowNull bool, maxErrorRows int, opts Options) (*ColumnValueInSet, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("value set expectation needs at least one allowed value")
	}
	if maxErrorRows <= 0 {
		maxErrorRows = DefaultMaxErrorRows
	}
	return &ColumnValueInSet{
		base:         base{opts: opts.Normalize()},
		Column:       column,
		Values:       values,
		AllowNull:    allowNull,
		MaxErrorRows: maxErrorRows,
	}, nil
}

func (v *ColumnValueInSet) Type() string { return "ColumnValueInSet" }

func (v *ColumnValueInSet) Execute(ctx context.Context, ec ExecContext) (Outcome, error) {
	lits := make([]string, len(v.Values))
	for i, val := range v.Values {
		lits[i] = sqlexpr.Literal{Value: val}.Render(ec.Engine.Dialect())
	}
	offending := fmt.Sprintf("%s NOT IN (%s)", v.Column, strings.Join(lits, ", "))
	if !v.AllowNull {
		offending = "(" + offending + " OR " + v.Column + " IS NULL)"
	}
	pred := offending
	if v.opts.Where != "" {
		pred = "(" + v.opts.Where + ") AND " + offending
	}
	query := fmt.Sprintf(
		"SELECT %s AS value, COUNT(*) AS cnt FROM %s WHERE %s GROUP BY %s LIMIT %d",
		v.Column, ec.Table, pred, v.Column, v.MaxErrorRows+1,
	)
	rows, err := ec.Engine.RunSQL(ctx, query)
	if err != nil {
		return Outcome{}, err
	}
	if rows.Len() == 0 {
		return pass(map[string]any{"offending_value_cnt": int64(0)}), nil
	}
	sample, truncated := rowsToMaps(rows, v.MaxErrorRows)
	out := fail(map[string]any{"offending_value_cnt": int64(rows.Len())},
		"column %s has values outside the allowed set", v.Column)
	out.ErrorRows = sample
	out.Truncated = truncated
	return out, nil
}

// ColumnMatchesRegex expects every non-NULL value of a column to match a
// pattern. Matching happens client-side over the distinct values so it works
// identically on backends without a regex operator.
type ColumnMatchesRegex struct {
	base
	Column       string
	Pattern      *regexp.Regexp
	MaxErrorRows int
}

func NewColumnMatchesRegex(column, pattern string, maxErrorRows int, opts Options) (*ColumnMatchesRegex, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	if maxErrorRows <= 0 {
		maxErrorRows = DefaultMaxErrorRows
	}
	return &ColumnMatchesRegex{
		base:         base{opts: opts.Normalize()},
		Column:       column,
		Pattern:      re,
		MaxErrorRows: maxErrorRows,
	}, nil
}

func (v *ColumnMatchesRegex) Type() string { return "ColumnMatchesRegex" }

func (v *ColumnMatchesRegex) Execute(ctx context.Context, ec ExecContext) (Outcome, error) {
	pred := v.Column + " IS NOT NULL"
	if v.opts.Where != "" {
		pred = "(" + v.opts.Where + ") AND " + pred
	}
	query := fmt.Sprintf("SELECT DISTINCT %s AS value FROM %s WHERE %s", v.Column, ec.Table, pred)
	rows, err := ec.Engine.RunSQL(ctx, query)
	if err != nil {
		return Outcome{}, err
	}

	var offenders []map[string]any
	total := int64(0)
	for i := 0; i < rows.Len(); i++ {
		val := rows.Data[i][0]
		text := fmt.Sprintf("%v", val)
		if v.Pattern.MatchString(text) {
			continue
		}
		total++
		if len(offenders) < v.MaxErrorRows {
			offenders = append(offenders, map[string]any{"value": val})
		}
	}
	if total == 0 {
		return pass(map[string]any{"non_matching_value_cnt": int64(0)}), nil
	}
	out := fail(map[string]any{"non_matching_value_cnt": total},
		"column %s has %d distinct value(s) not matching %s", v.Column, total, v.Pattern.String())
	out.ErrorRows = offenders
	out.Truncated = total > int64(v.MaxErrorRows)
	return out, nil
}

// ColumnGreaterEqual expects column >= other column on every row.
type ColumnGreaterEqual struct {
	base
	Column       string
	Other        string
	MaxErrorRows int
}

func NewColumnGreaterEqual(column, other string, maxErrorRows int, opts Options) (*ColumnGreaterEqual, error) {
	if column == "" || other == "" {
		return nil, fmt.Errorf("column comparison expectation needs both columns")
	}
	if maxErrorRows <= 0 {
		maxErrorRows = DefaultMaxErrorRows
	}
	return &ColumnGreaterEqual{
		base:         base{opts: opts.Normalize()},
		Column:       column,
		Other:        other,
		MaxErrorRows: maxErrorRows,
	}, nil
}

func (v *ColumnGreaterEqual) Type() string { return "ColumnGreaterEqual" }

func (v *ColumnGreaterEqual) Execute(ctx context.Context, ec ExecContext) (Outcome, error) {
	violation := v.Column + " < " + v.Other
	countQuery := fmt.Sprintf(
		"SELECT SUM(CASE WHEN %s THEN 1 ELSE 0 END) AS violation_cnt FROM %s%s",
		violation, ec.Table, whereClause(v.opts.Where),
	)
	res, err := ec.Engine.RunSQL(ctx, countQuery)
	if err != nil {
		return Outcome{}, err
	}
	scalar, err := res.Scalar()
	if err != nil {
		return Outcome{}, err
	}
	n, _ := asInt(scalar)
	if n == 0 {
		return pass(map[string]any{"violation_cnt": int64(0)}), nil
	}

	pred := violation
	if v.opts.Where != "" {
		pred = "(" + v.opts.Where + ") AND " + violation
	}
	sampleQuery := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s LIMIT %d",
		v.Column, v.Other, ec.Table, pred, v.MaxErrorRows)
	sampleRows, err := ec.Engine.RunSQL(ctx, sampleQuery)
	if err != nil {
		return Outcome{}, err
	}
	sample, _ := rowsToMaps(sampleRows, v.MaxErrorRows)
	out := fail(map[string]any{"violation_cnt": n},
		"%d row(s) where %s < %s", n, v.Column, v.Other)
	out.ErrorRows = sample
	out.Truncated = n > int64(v.MaxErrorRows)
	return out, nil
}

// ColumnZScoreOutlierRows samples rows whose value deviates from the column
// mean by more than ZThresh standard deviations. Variance is derived from
// AVG(x) and AVG(x*x) so no backend stddev function is needed.
type ColumnZScoreOutlierRows struct {
	base
	Column       string
	ZThresh      float64
	MaxErrorRows int
}

func NewColumnZScoreOutlierRows(column string, zThresh float64, maxErrorRows int, opts Options) (*ColumnZScoreOutlierRows, error) {
	if zThresh <= 0 {
		zThresh = 3.0
	}
	if maxErrorRows <= 0 {
		maxErrorRows = DefaultMaxErrorRows
	}
	return &ColumnZScoreOutlierRows{
		base:         base{opts: opts.Normalize()},
		Column:       column,
		ZThresh:      zThresh,
		MaxErrorRows: maxErrorRows,
	}, nil
}

func (v *ColumnZScoreOutlierRows) Type() string { return "ColumnZScoreOutlierRows" }

func (v *ColumnZScoreOutlierRows) Execute(ctx context.Context, ec ExecContext) (Outcome, error) {
	pred := v.Column + " IS NOT NULL"
	if v.opts.Where != "" {
		pred = "(" + v.opts.Where + ") AND " + pred
	}
	momentsQuery := fmt.Sprintf(
		"SELECT AVG(1.0 * %[1]s) AS mean, AVG(1.0 * %[1]s * %[1]s) AS mean_sq, COUNT(%[1]s) AS n FROM %[2]s WHERE %[3]s",
		v.Column, ec.Table, pred,
	)
	res, err := ec.Engine.RunSQL(ctx, momentsQuery)
	if err != nil {
		return Outcome{}, err
	}
	mean, _ := asFloat(res.Data[0][0])
	meanSq, _ := asFloat(res.Data[0][1])
	n, _ := asInt(res.Data[0][2])

	values := map[string]any{"mean": mean, "n": n}
	if n < 2 {
		return pass(values), nil
	}
	sd := math.Sqrt(math.Max(meanSq-mean*mean, 0))
	values["stddev"] = sd
	if sd == 0 {
		return pass(values), nil
	}

	cutoff := v.ZThresh * sd
	outlierPred := fmt.Sprintf("%s AND ABS(%s - %s) > %s",
		pred, v.Column, formatFloat(mean), formatFloat(cutoff))
	sampleQuery := fmt.Sprintf("SELECT * FROM %s WHERE %s LIMIT %d",
		ec.Table, outlierPred, v.MaxErrorRows+1)
	sampleRows, err := ec.Engine.RunSQL(ctx, sampleQuery)
	if err != nil {
		return Outcome{}, err
	}
	if sampleRows.Len() == 0 {
		values["outlier_cnt"] = int64(0)
		return pass(values), nil
	}
	sample, truncated := rowsToMaps(sampleRows, v.MaxErrorRows)
	values["outlier_cnt"] = int64(sampleRows.Len())
	out := fail(values, "column %s has value(s) beyond %.1f standard deviations", v.Column, v.ZThresh)
	out.ErrorRows = sample
	out.Truncated = truncated
	return out, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
