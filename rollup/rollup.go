package rollup

import (
	"context"
	"fmt"
	"strings"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect/sql"
	"github.com/syssam/tabula/dialect/sql/sqlgraph"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
)

// Func is an aggregate function.
type Func string

// Functions aggregating related rows.
const (
	Count         Func = "count"
	CountDistinct Func = "countDistinct"
	Sum           Func = "sum"
	SumDistinct   Func = "sumDistinct"
	Avg           Func = "avg"
	AvgDistinct   Func = "avgDistinct"
	Min           Func = "min"
	Max           Func = "max"
	ArrayAgg      Func = "arrayAgg"
	Concat        Func = "concat"
)

// Functions only available over the rows of a view.
const (
	CountEmpty    Func = "countEmpty"
	CountFilled   Func = "countFilled"
	CountUnique   Func = "countUnique"
	PercentEmpty  Func = "percentEmpty"
	PercentFilled Func = "percentFilled"
	PercentUnique Func = "percentUnique"
)

var funcs = map[string]Func{}

func init() {
	for _, f := range []Func{
		Count, CountDistinct, Sum, SumDistinct, Avg, AvgDistinct, Min, Max, ArrayAgg, Concat,
		CountEmpty, CountFilled, CountUnique, PercentEmpty, PercentFilled, PercentUnique,
	} {
		funcs[strings.ToLower(string(f))] = f
	}
	funcs["average"] = Avg
}

// ParseFunc returns the function of the given name. Names are matched
// case-insensitively.
func ParseFunc(name string) (Func, error) {
	if f, ok := funcs[strings.ToLower(strings.TrimSpace(name))]; ok {
		return f, nil
	}
	return "", fmt.Errorf("unknown aggregate function %q", name)
}

// ViewOnly reports if the function can only aggregate the rows of a view.
func (f Func) ViewOnly() bool {
	switch f {
	case CountEmpty, CountFilled, CountUnique, PercentEmpty, PercentFilled, PercentUnique:
		return true
	}
	return false
}

// needsTarget reports if the function aggregates the values of a column.
func (f Func) needsTarget() bool { return f != Count }

// Generator renders rollup columns and bulk aggregations.
type Generator struct{}

// New returns a generator.
func New() *Generator { return &Generator{} }

// Column renders a rollup column of the table as a correlated scalar subquery.
func (g *Generator) Column(ctx context.Context, s *sqlgraph.Scope, t *sqlgraph.Table, col *schema.Column) (*sql.Selector, error) {
	o, ok := col.Rollup()
	if !ok {
		return nil, tabula.NewValidationError(col.ID, fmt.Errorf("column of type %s is not a rollup", col.Type))
	}
	fn, err := ParseFunc(o.Function)
	if err != nil {
		return nil, tabula.NewValidationError(col.ID, err)
	}
	rel, err := s.Registry.Column(o.RelationColumnID)
	if err != nil {
		return nil, err
	}
	var target *schema.Column
	if o.TargetColumnID != "" {
		if target, err = s.Registry.Column(o.TargetColumnID); err != nil {
			return nil, err
		}
	}
	return g.Build(ctx, s, t, rel, target, fn)
}

// Build returns the subquery aggregating the target column over the rows
// related to the driving table through relation. Count needs no target.
//
//	(SELECT SUM("t1"."total") FROM "orders" AS "t1" WHERE "t1"."customer_id" = "t0"."id")
func (g *Generator) Build(ctx context.Context, s *sqlgraph.Scope, t *sqlgraph.Table, relation, target *schema.Column, fn Func) (*sql.Selector, error) {
	fn, err := ParseFunc(string(fn))
	if err != nil {
		return nil, tabula.NewValidationError(relation.ID, err)
	}
	if fn.ViewOnly() {
		return nil, tabula.NewValidationError(relation.ID, fmt.Errorf("function %s cannot aggregate related rows", fn))
	}
	if fn.needsTarget() && target == nil {
		return nil, tabula.NewValidationError(relation.ID, fmt.Errorf("function %s needs a target column", fn))
	}
	j, err := sqlgraph.Resolve(ctx, s, t, relation)
	if err != nil {
		return nil, err
	}
	if fn == Count {
		return j.Subquery(sql.Raw("COUNT(*)")), nil
	}
	if target.ModelID != j.Target.Model.ID {
		return nil, tabula.NewValidationError(target.ID, fmt.Errorf("column does not belong to related model %q", j.Target.Model.ID))
	}
	if err := check(fn, target); err != nil {
		return nil, err
	}
	expr, err := s.Expr(ctx, j.Target, target)
	if err != nil {
		return nil, err
	}
	agg, err := aggregate(s.Client, fn, expr, target)
	if err != nil {
		return nil, err
	}
	return j.Subquery(agg), nil
}

// check rejects aggregations of columns that hold no comparable values.
func check(fn Func, c *schema.Column) error {
	if c.Type.Relation() || c.Type == field.Attachment || c.Type == field.Button {
		switch fn {
		case Count, CountEmpty, CountFilled, PercentEmpty, PercentFilled:
		default:
			return tabula.NewValidationError(c.ID, fmt.Errorf("function %s cannot aggregate a %s column", fn, c.Type))
		}
	}
	return nil
}

// aggregate wraps expr, the expression of column c, in fn.
func aggregate(cl sql.Client, fn Func, expr sql.Querier, c *schema.Column) (sql.Querier, error) {
	switch fn {
	case Count:
		return sql.Raw("COUNT(*)"), nil
	case CountDistinct, CountUnique:
		return sql.Expr("COUNT(DISTINCT ?)", expr), nil
	case Min:
		return sql.Func("MIN", expr), nil
	case Max:
		return sql.Func("MAX", expr), nil
	case Sum:
		return sql.Func("SUM", numeric(cl, fn, expr, c)), nil
	case SumDistinct:
		return sql.Expr("SUM(DISTINCT ?)", numeric(cl, fn, expr, c)), nil
	case Avg:
		return sql.Func("AVG", numeric(cl, fn, expr, c)), nil
	case AvgDistinct:
		return sql.Expr("AVG(DISTINCT ?)", numeric(cl, fn, expr, c)), nil
	case ArrayAgg:
		return cl.ArrayAgg(expr)
	case Concat:
		sep := c.Meta.Delimiter
		if sep == "" {
			sep = sqlgraph.DefaultDelimiter
		}
		return cl.StringAgg(expr, sep)
	case CountFilled:
		return sql.Func("COUNT", filled(c, expr)), nil
	case CountEmpty:
		return sql.Expr("(COUNT(*) - COUNT(?))", filled(c, expr)), nil
	case PercentEmpty:
		return percent(cl, sql.Expr("COUNT(*) - COUNT(?)", filled(c, expr))), nil
	case PercentFilled:
		return percent(cl, sql.Func("COUNT", filled(c, expr))), nil
	case PercentUnique:
		return percent(cl, sql.Expr("COUNT(DISTINCT ?)", expr)), nil
	default:
		return nil, tabula.NewValidationError(c.ID, fmt.Errorf("unknown aggregate function %q", fn))
	}
}

// numeric casts values of non-numeric columns to floats. Integer averages
// are cast too, as some dialects truncate them.
func numeric(cl sql.Client, fn Func, expr sql.Querier, c *schema.Column) sql.Querier {
	if c.Type.Numeric() && !(c.Type.Integral() && (fn == Avg || fn == AvgDistinct)) {
		return expr
	}
	return cl.SimpleCast(expr, sql.TypeFloat)
}

// filled maps empty strings of text columns to NULL.
func filled(c *schema.Column, expr sql.Querier) sql.Querier {
	if c.Type.Text() {
		return sql.Func("NULLIF", expr, sql.Raw("''"))
	}
	return expr
}

func percent(cl sql.Client, n sql.Querier) sql.Querier {
	return sql.Expr("(? * 100 / NULLIF(COUNT(*), 0))", cl.SimpleCast(n, sql.TypeFloat))
}
