package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect/sql"
	"github.com/syssam/tabula/querylanguage"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
)

// groupAlias is the alias of the grouped selection.
const groupAlias = "g"

// GroupByOptions groups the rows of a view by the values of columns.
type GroupByOptions struct {
	// Columns are the ids or titles of the grouping columns.
	Columns []string
	// Filter is ANDed with the filter of the view.
	Filter querylanguage.Node
	// Sorts on grouping columns order the groups. They default to the sorts
	// of the view; sorts on other columns are ignored.
	Sorts  []schema.Sort
	Limit  int
	Offset int
}

// Group is a distinct combination of values of the grouping columns and
// the number of rows sharing it.
type Group struct {
	// Values are keyed by column title.
	Values Row
	Count  int64
}

// GroupBy returns a page of the groups of the rows of a view.
func (e *Engine) GroupBy(ctx context.Context, viewID string, opts GroupByOptions) ([]Group, error) {
	q, cols, err := e.compileGroup(ctx, viewID, opts, true)
	if err != nil {
		return nil, err
	}
	columns, rows, err := e.exec(ctx, q.src, q.model, "group", q.stmt)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*schema.Column, len(cols))
	for _, c := range cols {
		byID[c.ID] = c
	}
	groups := make([]Group, len(rows))
	for i, r := range rows {
		g := Group{Values: make(Row, len(cols))}
		for j, name := range columns {
			if j >= len(r) {
				break
			}
			if name == "count" {
				n, ok := toInt64(r[j])
				if !ok {
					return nil, tabula.NewQueryError(q.model.Title, "group", fmt.Errorf("unexpected count value %T", r[j]))
				}
				g.Count = n
				continue
			}
			if c, ok := byID[name]; ok {
				g.Values[c.Title] = normalize(c, r[j])
			}
		}
		groups[i] = g
	}
	return groups, nil
}

// GroupByCount returns the number of groups GroupBy pages through.
func (e *Engine) GroupByCount(ctx context.Context, viewID string, opts GroupByOptions) (int64, error) {
	q, _, err := e.compileGroup(ctx, viewID, opts, false)
	if err != nil {
		return 0, err
	}
	return e.count(ctx, q)
}

// CompileGroupBy returns the statement GroupBy runs.
func (e *Engine) CompileGroupBy(ctx context.Context, viewID string, opts GroupByOptions) (*Statement, error) {
	q, _, err := e.compileGroup(ctx, viewID, opts, true)
	if err != nil {
		return nil, err
	}
	return q.stmt, nil
}

// compileGroup compiles the groups of a view. The grouping expressions are
// selected in a derived table and grouped by alias, so expressions with
// arguments group the same way on every dialect. Without paged the
// statement counts the groups.
func (e *Engine) compileGroup(ctx context.Context, viewID string, opts GroupByOptions, paged bool) (*query, []*schema.Column, error) {
	if len(opts.Columns) == 0 {
		return nil, nil, tabula.NewValidationError("", errors.New("group by needs at least one column"))
	}
	limit, offset, err := e.page(opts.Limit, opts.Offset)
	if err != nil {
		return nil, nil, err
	}
	reg := e.Registry()
	v, m, src, err := e.target(reg, viewID)
	if err != nil {
		return nil, nil, err
	}
	cols := make([]*schema.Column, 0, len(opts.Columns))
	grouped := make(map[string]bool, len(opts.Columns))
	for _, name := range opts.Columns {
		c, err := column(m, name)
		if err != nil {
			return nil, nil, err
		}
		if c.Type == field.Attachment {
			return nil, nil, tabula.NewValidationError(c.ID, errors.New("cannot group by an attachment column"))
		}
		if !grouped[c.ID] {
			grouped[c.ID] = true
			cols = append(cols, c)
		}
	}
	s, err := e.scope(reg, src, e.clock())
	if err != nil {
		return nil, nil, err
	}
	t := s.Root(m)
	pred, err := e.filters.Build(ctx, s, t, querylanguage.Merge(v.Filter, opts.Filter))
	if err != nil {
		return nil, nil, err
	}
	inner := s.Select().From(t.View()).Where(pred)
	sel := s.Select()
	keys := make([]any, len(cols))
	for i, c := range cols {
		expr, err := s.Expr(ctx, t, c)
		if err != nil {
			return nil, nil, err
		}
		inner.AppendSelectAs(expr, c.ID)
		keys[i] = sql.Col(groupAlias, c.ID)
		sel.AppendSelectAs(keys[i], c.ID)
	}
	sel.AppendSelectAs(sql.Raw("COUNT(*)"), "count").
		From(inner.As(groupAlias)).
		GroupBy(keys...)
	q := &query{view: v, model: m, src: src, scope: s, root: t}
	if !paged {
		if err := e.prepare(ctx, q, sel.CountSelector(), nil, nil); err != nil {
			return nil, nil, err
		}
		return q, cols, nil
	}
	sorts := v.Sorts
	if len(opts.Sorts) > 0 {
		sorts = opts.Sorts
	}
	ordered := make(map[string]bool, len(cols))
	for _, o := range sorts {
		c, err := column(m, o.ColumnID)
		if err != nil {
			return nil, nil, err
		}
		if grouped[c.ID] && !ordered[c.ID] {
			ordered[c.ID] = true
			sel.OrderExpr(sql.Col(groupAlias, c.ID), o.Desc)
		}
	}
	for i, c := range cols {
		if !ordered[c.ID] {
			sel.OrderExpr(keys[i], false)
		}
	}
	sel.Limit(limit)
	if offset > 0 {
		sel.Offset(offset)
	}
	if err := e.prepare(ctx, q, sel, nil, nil); err != nil {
		return nil, nil, err
	}
	return q, cols, nil
}
