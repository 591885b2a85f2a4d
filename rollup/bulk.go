package rollup

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect/sql"
	"github.com/syssam/tabula/dialect/sql/sqlgraph"
	"github.com/syssam/tabula/querylanguage"
	"github.com/syssam/tabula/schema"
)

// valueColumn is the column selected by the row set of a metric.
const valueColumn = "v"

// Request is one metric of a bulk aggregation.
type Request struct {
	// Alias keys the metric in the result. It defaults to the column id
	// and the function joined by an underscore.
	Alias string
	// Column is the aggregated column. Count may leave it unset to count rows.
	// Rollup and lookup columns aggregate their per-row values.
	Column *schema.Column
	Func   Func
	// Filter narrows the rows of this metric only.
	Filter querylanguage.Node
}

// Name returns the result key of the request.
func (r Request) Name() string {
	switch {
	case r.Alias != "":
		return r.Alias
	case r.Column == nil:
		return string(r.Func)
	default:
		return r.Column.ID + "_" + string(r.Func)
	}
}

// Bulk returns one statement computing every requested metric over the rows
// of the model matching where. Each metric is a scalar subquery over its own
// row set, so metrics with different filters share the statement.
//
//	SELECT (SELECT SUM("m0"."v") FROM (SELECT "t1"."total" AS "v" FROM "orders" AS "t1") AS "m0") AS "ord_total_sum"
func (g *Generator) Bulk(ctx context.Context, s *sqlgraph.Scope, m *schema.Model, where querylanguage.Node, reqs []Request) (*sql.Selector, error) {
	if len(reqs) == 0 {
		return nil, tabula.NewValidationError("", errors.New("no aggregation requested"))
	}
	var (
		seen = make(map[string]bool, len(reqs))
		sel  = s.Select()
	)
	for i, r := range reqs {
		name := r.Name()
		if seen[name] {
			return nil, tabula.NewValidationError(name, fmt.Errorf("duplicate aggregation %q", name))
		}
		seen[name] = true
		sub, err := g.metric(ctx, s, m, querylanguage.Merge(where, r.Filter), r, "m"+strconv.Itoa(i))
		if err != nil {
			return nil, err
		}
		sel.AppendSelectAs(sub, name)
	}
	return sel, nil
}

func (g *Generator) metric(ctx context.Context, s *sqlgraph.Scope, m *schema.Model, where querylanguage.Node, r Request, alias string) (*sql.Selector, error) {
	fn, err := ParseFunc(string(r.Func))
	if err != nil {
		return nil, tabula.NewValidationError(r.Name(), err)
	}
	if r.Column == nil && fn != Count {
		return nil, tabula.NewValidationError(r.Name(), fmt.Errorf("function %s needs a column", fn))
	}
	if r.Column != nil {
		if r.Column.ModelID != m.ID {
			return nil, tabula.NewValidationError(r.Column.ID, fmt.Errorf("column does not belong to model %q", m.ID))
		}
		if err := check(fn, r.Column); err != nil {
			return nil, err
		}
	}
	t := s.NewTable(m)
	rows := s.Select().From(t.View())
	if where != nil {
		if s.Conds == nil {
			return nil, tabula.NewValidationError(r.Name(), errors.New("filtered aggregation without a condition compiler"))
		}
		p, err := s.Conds.Condition(ctx, s, t, where)
		if err != nil {
			return nil, err
		}
		rows.Where(p)
	}
	if fn == Count {
		return rows.Select(sql.Raw("COUNT(*)")), nil
	}
	expr, err := s.Expr(ctx, t, r.Column)
	if err != nil {
		return nil, err
	}
	rows.AppendSelectAs(expr, valueColumn)
	agg, err := aggregate(s.Client, fn, sql.Col(alias, valueColumn), r.Column)
	if err != nil {
		return nil, err
	}
	return s.Select(agg).From(rows.As(alias)), nil
}
