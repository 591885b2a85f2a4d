package engine

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/contrib/dataloader"
	"github.com/syssam/tabula/dialect/sql"
	"github.com/syssam/tabula/dialect/sql/sqlgraph"
	"github.com/syssam/tabula/formula"
	"github.com/syssam/tabula/querylanguage"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
)

// ListOptions narrows the rows of a view.
type ListOptions struct {
	// Filter is ANDed with the filter of the view.
	Filter querylanguage.Node
	// Sorts replace the sorts of the view when set.
	Sorts []schema.Sort
	// Limit defaults to config.Pagination.DefaultLimit and is capped by
	// config.Pagination.MaxLimit.
	Limit  int
	Offset int
	// Fields lists the column ids or titles to return. Empty means the
	// columns of the view.
	Fields []string
}

// ListResult is a page of rows with the number of rows matching the filter.
type ListResult struct {
	Rows      []Row
	TotalRows int64
	// FormulaErrors are the soft errors of formula columns compiled to NULL.
	FormulaErrors []error
}

// query is a compiled statement with what is needed to decode its rows.
type query struct {
	view  *schema.View
	model *schema.Model
	src   *schema.Source
	stmt  *Statement
	proj  *projection
	scope *sqlgraph.Scope
	// root is the driving table of the statement.
	root *sqlgraph.Table
}

// target returns the view, its model and its source.
func (e *Engine) target(reg *schema.Registry, viewID string) (*schema.View, *schema.Model, *schema.Source, error) {
	v, err := reg.View(viewID)
	if err != nil {
		return nil, nil, nil, err
	}
	m, err := reg.Model(v.ModelID)
	if err != nil {
		return nil, nil, nil, err
	}
	src, err := reg.Source(m.SourceID)
	if err != nil {
		return nil, nil, nil, err
	}
	return v, m, src, nil
}

// page returns the effective limit and offset.
func (e *Engine) page(limit, offset int) (int, int, error) {
	switch {
	case limit < 0:
		return 0, 0, tabula.NewValidationError("", fmt.Errorf("negative limit %d", limit))
	case offset < 0:
		return 0, 0, tabula.NewValidationError("", fmt.Errorf("negative offset %d", offset))
	case limit == 0:
		limit = e.cfg.Pagination.DefaultLimit
	}
	if limit > e.cfg.Pagination.MaxLimit {
		limit = e.cfg.Pagination.MaxLimit
	}
	return limit, offset, nil
}

// List returns a page of the rows of a view.
func (e *Engine) List(ctx context.Context, viewID string, opts ListOptions) (*ListResult, error) {
	reg, now := e.Registry(), e.clock()
	q, err := e.compileList(ctx, reg, viewID, opts, now)
	if err != nil {
		return nil, err
	}
	count, err := e.compileCount(ctx, reg, viewID, opts.Filter, now)
	if err != nil {
		return nil, err
	}
	var (
		rows  []Row
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := e.run(gctx, q, "list")
		if err != nil {
			return err
		}
		rows = make([]Row, len(recs))
		for i := range recs {
			rows[i] = recs[i].row
		}
		return nil
	})
	g.Go(func() error {
		var err error
		total, err = e.count(gctx, count)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &ListResult{Rows: rows, TotalRows: total, FormulaErrors: q.scope.FormulaErrors()}, nil
}

// CompileList returns the statement List runs for the rows. Remote
// relations of the selected columns are fetched for the keys of the page,
// which are read from the source first.
func (e *Engine) CompileList(ctx context.Context, viewID string, opts ListOptions) (*Statement, error) {
	q, err := e.compileList(ctx, e.Registry(), viewID, opts, e.clock())
	if err != nil {
		return nil, err
	}
	return q.stmt, nil
}

// CompileCount returns the statement List runs for the total.
func (e *Engine) CompileCount(ctx context.Context, viewID string, opts ListOptions) (*Statement, error) {
	q, err := e.compileCount(ctx, e.Registry(), viewID, opts.Filter, e.clock())
	if err != nil {
		return nil, err
	}
	return q.stmt, nil
}

func (e *Engine) compileList(ctx context.Context, reg *schema.Registry, viewID string, opts ListOptions, now time.Time) (*query, error) {
	limit, offset, err := e.page(opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	v, m, src, err := e.target(reg, viewID)
	if err != nil {
		return nil, err
	}
	s, err := e.scope(reg, src, now)
	if err != nil {
		return nil, err
	}
	t := s.Root(m)
	cols, err := fields(m, v, opts.Fields)
	if err != nil {
		return nil, err
	}
	sel := s.Select().From(t.View())
	s.Narrow = true
	proj, err := e.project(ctx, s, t, sel, cols)
	s.Narrow = false
	if err != nil {
		return nil, err
	}
	pred, err := e.filters.Build(ctx, s, t, querylanguage.Merge(v.Filter, opts.Filter))
	if err != nil {
		return nil, err
	}
	sel.Where(pred)
	sorts := v.Sorts
	if len(opts.Sorts) > 0 {
		sorts = opts.Sorts
	}
	if err := e.order(ctx, s, t, sel, sorts); err != nil {
		return nil, err
	}
	sel.Limit(limit)
	if offset > 0 {
		sel.Offset(offset)
	}
	q := &query{view: v, model: m, src: src, proj: proj, scope: s, root: t}
	if err := e.prepare(ctx, q, sel, sel, nil); err != nil {
		return nil, err
	}
	return q, nil
}

// compileCount compiles the count of the rows matching the effective
// filter in a scope of its own, sharing the reference time of the list.
func (e *Engine) compileCount(ctx context.Context, reg *schema.Registry, viewID string, filter querylanguage.Node, now time.Time) (*query, error) {
	v, m, src, err := e.target(reg, viewID)
	if err != nil {
		return nil, err
	}
	s, err := e.scope(reg, src, now)
	if err != nil {
		return nil, err
	}
	t := s.Root(m)
	pred, err := e.filters.Build(ctx, s, t, querylanguage.Merge(v.Filter, filter))
	if err != nil {
		return nil, err
	}
	sel := s.Select(sql.Raw("COUNT(*)")).From(t.View()).Where(pred)
	q := &query{view: v, model: m, src: src, scope: s, root: t}
	if err := e.prepare(ctx, q, sel, nil, nil); err != nil {
		return nil, err
	}
	return q, nil
}

// count runs a count statement.
func (e *Engine) count(ctx context.Context, q *query) (int64, error) {
	_, rows, err := e.exec(ctx, q.src, q.model, "count", q.stmt)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	n, ok := toInt64(rows[0][0])
	if !ok {
		return 0, tabula.NewQueryError(q.model.Title, "count", fmt.Errorf("unexpected count value %T", rows[0][0]))
	}
	return n, nil
}

// order appends the sorts to the selector, followed by the primary key so
// pages are stable.
func (e *Engine) order(ctx context.Context, s *sqlgraph.Scope, t *sqlgraph.Table, sel *sql.Selector, sorts []schema.Sort) error {
	seen := make(map[string]bool, len(sorts))
	for _, o := range sorts {
		c, err := column(t.Model, o.ColumnID)
		if err != nil {
			return err
		}
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		expr, err := s.Expr(ctx, t, c)
		if err != nil {
			return err
		}
		sel.OrderExpr(expr, o.Desc)
	}
	for _, pk := range t.Model.PrimaryKeys() {
		if !seen[pk.ID] {
			sel.OrderExpr(t.C(pk), false)
		}
	}
	return nil
}

// Read returns the row of a view with the given primary key. Models with a
// composite primary key take a []any with one value per key column.
func (e *Engine) Read(ctx context.Context, viewID string, pk any) (Row, error) {
	q, err := e.compileRead(ctx, e.Registry(), viewID, pk, e.clock())
	if err != nil {
		return nil, err
	}
	recs, err := e.run(ctx, q, "read")
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, tabula.NewNotFoundErrorWithID(q.model.Title, pk)
	}
	return recs[0].row, nil
}

// CompileRead returns the statement Read runs.
func (e *Engine) CompileRead(ctx context.Context, viewID string, pk any) (*Statement, error) {
	q, err := e.compileRead(ctx, e.Registry(), viewID, pk, e.clock())
	if err != nil {
		return nil, err
	}
	return q.stmt, nil
}

func (e *Engine) compileRead(ctx context.Context, reg *schema.Registry, viewID string, pk any, now time.Time) (*query, error) {
	v, m, src, err := e.target(reg, viewID)
	if err != nil {
		return nil, err
	}
	pks := m.PrimaryKeys()
	if len(pks) == 0 {
		return nil, tabula.NewValidationError("", fmt.Errorf("model %q has no primary key", m.ID))
	}
	values := []any{pk}
	if len(pks) > 1 {
		vs, ok := pk.([]any)
		if !ok || len(vs) != len(pks) {
			return nil, tabula.NewValidationError(pks[0].ID, fmt.Errorf("model %q has a composite key of %d columns", m.ID, len(pks)))
		}
		values = vs
	}
	s, err := e.scope(reg, src, now)
	if err != nil {
		return nil, err
	}
	t := s.Root(m)
	cols, err := fields(m, v, nil)
	if err != nil {
		return nil, err
	}
	sel := s.Select().From(t.View())
	s.Narrow = true
	proj, err := e.project(ctx, s, t, sel, cols)
	s.Narrow = false
	if err != nil {
		return nil, err
	}
	pred, err := e.filters.Build(ctx, s, t, v.Filter)
	if err != nil {
		return nil, err
	}
	known := make(map[string][]any, len(pks))
	for i, c := range pks {
		pred = sql.And(pred, sql.EQ(t.C(c), values[i]))
		known[c.ID] = []any{values[i]}
	}
	sel.Where(pred).Limit(1)
	q := &query{view: v, model: m, src: src, proj: proj, scope: s, root: t}
	if err := e.prepare(ctx, q, sel, sel, known); err != nil {
		return nil, err
	}
	return q, nil
}

// ReadMany returns the rows of a view with the given primary keys, in the
// order of the keys. Missing rows have a nil row and a NotFoundError.
func (e *Engine) ReadMany(ctx context.Context, viewID string, pks []any) ([]Row, []error, error) {
	reg, now := e.Registry(), e.clock()
	v, m, src, err := e.target(reg, viewID)
	if err != nil {
		return nil, nil, err
	}
	pk := m.PrimaryKey()
	if pk == nil || len(m.PrimaryKeys()) > 1 {
		return nil, nil, tabula.NewUnsupportedError(fmt.Sprintf("batched read of model %q", m.ID), src.Dialect())
	}
	if len(pks) == 0 {
		return nil, nil, nil
	}
	s, err := e.scope(reg, src, now)
	if err != nil {
		return nil, nil, err
	}
	t := s.Root(m)
	cols, err := fields(m, v, nil)
	if err != nil {
		return nil, nil, err
	}
	sel := s.Select().From(t.View())
	s.Narrow = true
	proj, err := e.project(ctx, s, t, sel, cols, pk)
	s.Narrow = false
	if err != nil {
		return nil, nil, err
	}
	pred, err := e.filters.Build(ctx, s, t, v.Filter)
	if err != nil {
		return nil, nil, err
	}
	keys := make([]string, len(pks))
	byKey := make(map[string]any, len(pks))
	for i, k := range pks {
		keys[i] = keyString(k)
		if _, ok := byKey[keys[i]]; !ok {
			byKey[keys[i]] = k
		}
	}
	var runErr error
	rows, errs := dataloader.Load(ctx, keys, func(ctx context.Context, uniq []string) ([]Row, []error) {
		args := make([]any, len(uniq))
		for i, k := range uniq {
			args[i] = byKey[k]
		}
		sel.Where(sql.And(pred, sql.In(t.C(pk), args...)))
		q := &query{view: v, model: m, src: src, proj: proj, scope: s, root: t}
		if err := e.prepare(ctx, q, sel, sel, map[string][]any{pk.ID: args}); err != nil {
			runErr = err
			return nil, nil
		}
		recs, err := e.run(ctx, q, "read")
		if err != nil {
			runErr = err
			return nil, nil
		}
		ordered, errs := dataloader.OrderByKeys(uniq, recs, func(r record) string {
			return keyString(r.values[pk.ID])
		})
		rows := make([]Row, len(ordered))
		for i := range ordered {
			rows[i] = ordered[i].row
			if errs[i] != nil {
				errs[i] = tabula.NewNotFoundErrorWithID(m.Title, byKey[uniq[i]])
			}
		}
		return rows, errs
	})
	if runErr != nil {
		return nil, nil, runErr
	}
	return rows, errs, nil
}

// prepare fetches the remote relations of the query and builds sel as
// its statement. Relations narrowed to the driving rows are fetched for
// the anchor values listed in known, or else read with the driving
// selector. A nil driving selector fetches every relation whole.
func (e *Engine) prepare(ctx context.Context, q *query, sel, driving *sql.Selector, known map[string][]any) error {
	if s := q.scope; s.Pending() > 0 {
		var keys sqlgraph.KeyFunc
		if driving != nil {
			keys = func(ctx context.Context, anchors []*schema.Column) (map[string][]any, error) {
				return e.anchorValues(ctx, q, driving, known, anchors)
			}
		}
		if err := s.Materialize(ctx, keys); err != nil {
			return err
		}
	}
	stmt, err := build(q.scope.Dialect(), sel)
	if err != nil {
		return err
	}
	q.stmt = stmt
	return nil
}

// anchorValues returns the distinct non-null values of the anchor columns
// of the root table over the driving rows.
func (e *Engine) anchorValues(ctx context.Context, q *query, driving *sql.Selector, known map[string][]any, anchors []*schema.Column) (map[string][]any, error) {
	values := make(map[string][]any, len(anchors))
	sel := driving.Clone().Select()
	read := 0
	for _, a := range anchors {
		if vs, ok := known[a.ID]; ok {
			values[a.ID] = vs
			continue
		}
		sel.AppendSelectAs(q.root.C(a), a.ID)
		read++
	}
	if read == 0 {
		return values, nil
	}
	stmt, err := build(q.scope.Dialect(), sel)
	if err != nil {
		return nil, err
	}
	columns, rows, err := e.exec(ctx, q.src, q.root.Model, "keys", stmt)
	if err != nil {
		return nil, err
	}
	for i, name := range columns {
		seen := make(map[string]bool, len(rows))
		for _, r := range rows {
			if i >= len(r) || r[i] == nil {
				continue
			}
			if k := keyString(r[i]); !seen[k] {
				seen[k] = true
				values[name] = append(values[name], r[i])
			}
		}
	}
	return values, nil
}

// fields returns the columns to project: the requested ones, else the
// columns of the view, else all the columns of the model.
func fields(m *schema.Model, v *schema.View, names []string) ([]*schema.Column, error) {
	if len(names) == 0 {
		names = v.Columns
	}
	if len(names) == 0 {
		return m.Columns, nil
	}
	cols := make([]*schema.Column, 0, len(names))
	for _, n := range names {
		c, err := column(m, n)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, nil
}

// column returns the column of m by id, then by title.
func column(m *schema.Model, name string) (*schema.Column, error) {
	if c, ok := m.Column(name); ok {
		return c, nil
	}
	if c, ok := m.ColumnByTitle(name); ok {
		return c, nil
	}
	return nil, tabula.NewValidationError(name, fmt.Errorf("column not found in model %q", m.ID))
}

// projection is the selection of a statement: the output columns, aliased
// by id, followed by the hidden columns read by host formulas and callers.
type projection struct {
	cols   []*schema.Column
	host   map[string]*formula.Compiled
	hidden []*schema.Column
}

// project selects the columns on sel. Extra columns are selected but not
// returned in rows.
func (e *Engine) project(ctx context.Context, s *sqlgraph.Scope, t *sqlgraph.Table, sel *sql.Selector, cols []*schema.Column, extra ...*schema.Column) (*projection, error) {
	p := &projection{cols: cols, host: make(map[string]*formula.Compiled)}
	selected := make(map[string]bool, len(cols))
	var deps []*schema.Column
	for _, c := range cols {
		if selected[c.ID] {
			continue
		}
		if c.Type == field.Formula || c.Type == field.Button {
			compiled, err := e.formula(ctx, s, t, c)
			if err != nil {
				return nil, err
			}
			if compiled.Host != nil {
				p.host[c.ID] = compiled
				deps = append(deps, compiled.Deps...)
				continue
			}
			selected[c.ID] = true
			sel.AppendSelectAs(compiled.SQL, c.ID)
			continue
		}
		expr, err := s.Expr(ctx, t, c)
		if err != nil {
			return nil, err
		}
		selected[c.ID] = true
		sel.AppendSelectAs(expr, c.ID)
	}
	for _, c := range append(deps, extra...) {
		if selected[c.ID] || p.host[c.ID] != nil {
			continue
		}
		expr, err := s.Expr(ctx, t, c)
		if err != nil {
			return nil, err
		}
		selected[c.ID] = true
		sel.AppendSelectAs(expr, c.ID)
		p.hidden = append(p.hidden, c)
	}
	if len(selected) == 0 {
		// Rows made of host formulas only still need a selection.
		sel.AppendSelect(sql.Raw("1"))
	}
	return p, nil
}

// record is a decoded row: the output row and the selected values by
// column id, hidden ones included.
type record struct {
	row    Row
	values map[string]any
}

// run executes a compiled query and decodes its rows.
func (e *Engine) run(ctx context.Context, q *query, op string) ([]record, error) {
	columns, rows, err := e.exec(ctx, q.src, q.model, op, q.stmt)
	if err != nil {
		return nil, err
	}
	return q.proj.decode(columns, rows), nil
}

// decode maps the rows to column titles and evaluates host formulas.
func (p *projection) decode(columns []string, rows [][]any) []record {
	recs := make([]record, len(rows))
	for i, r := range rows {
		values := make(map[string]any, len(columns)+len(p.host))
		for j, name := range columns {
			if j < len(r) {
				values[name] = r[j]
			}
		}
		for id, compiled := range p.host {
			values[id] = compiled.Host.Eval(values)
		}
		row := make(Row, len(p.cols))
		for _, c := range p.cols {
			row[c.Title] = normalize(c, values[c.ID])
		}
		recs[i] = record{row: row, values: values}
	}
	return recs
}

// normalize converts driver values to the Go type of the column.
func normalize(c *schema.Column, v any) any {
	if v == nil || !c.Type.Boolean() {
		return v
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if p, err := strconv.ParseBool(b); err == nil {
			return p
		}
	}
	if n, ok := toInt64(v); ok {
		return n != 0
	}
	return v
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), n == math.Trunc(n)
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

// keyString is the form used to match keys of callers with keys read from
// the database, whose integer types may differ.
func keyString(v any) string {
	if n, ok := toInt64(v); ok {
		return strconv.FormatInt(n, 10)
	}
	return fmt.Sprint(v)
}
