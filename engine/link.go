package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/contrib/dataloader"
	"github.com/syssam/tabula/dialect/sql"
	"github.com/syssam/tabula/dialect/sql/sqlgraph"
	"github.com/syssam/tabula/querylanguage"
	"github.com/syssam/tabula/schema"
)

// LinkListOptions paginates the related rows of a link.
type LinkListOptions struct {
	// Filter narrows the related rows, on top of the filter of the link.
	Filter querylanguage.Node
	Limit  int
	Offset int
}

// LinkList returns the rows related to a parent row through a link column.
func (e *Engine) LinkList(ctx context.Context, linkColumnID string, parentID any, opts LinkListOptions) ([]Row, error) {
	limit, offset, err := e.page(opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	q, err := e.compileLink(ctx, e.Registry(), linkColumnID, []any{parentID}, opts.Filter, limit, offset, e.clock())
	if err != nil {
		return nil, err
	}
	return e.rows(ctx, q, "links")
}

// CompileLinkList returns the statement LinkList runs.
func (e *Engine) CompileLinkList(ctx context.Context, linkColumnID string, parentID any, opts LinkListOptions) (*Statement, error) {
	limit, offset, err := e.page(opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	q, err := e.compileLink(ctx, e.Registry(), linkColumnID, []any{parentID}, opts.Filter, limit, offset, e.clock())
	if err != nil {
		return nil, err
	}
	return q.stmt, nil
}

// LinkListBatch returns the related rows of several parents with one
// statement, in the order of the parent ids. Pagination applies to each
// parent.
func (e *Engine) LinkListBatch(ctx context.Context, linkColumnID string, parentIDs []any, opts LinkListOptions) ([][]Row, error) {
	limit, offset, err := e.page(opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	if len(parentIDs) == 0 {
		return nil, nil
	}
	q, err := e.compileLink(ctx, e.Registry(), linkColumnID, parentIDs, opts.Filter, 0, 0, e.clock())
	if err != nil {
		return nil, err
	}
	recs, err := e.run(ctx, q, "links")
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(parentIDs))
	for i, id := range parentIDs {
		keys[i] = keyString(id)
	}
	groups := dataloader.OrderGroupsByKeys(keys, dataloader.GroupByKey(recs, func(r record) string {
		return keyString(r.values[sqlgraph.KeyColumn])
	}))
	res := make([][]Row, len(groups))
	for i, g := range groups {
		if offset >= len(g) {
			res[i] = []Row{}
			continue
		}
		g = g[offset:min(len(g), offset+limit)]
		res[i] = make([]Row, len(g))
		for j := range g {
			res[i][j] = g[j].row
		}
	}
	return res, nil
}

// LinkCount returns the number of rows related to a parent row through a
// link column, narrowed by filter.
func (e *Engine) LinkCount(ctx context.Context, linkColumnID string, parentID any, filter querylanguage.Node) (int64, error) {
	counts, err := e.LinkCountBatch(ctx, linkColumnID, []any{parentID}, filter)
	if err != nil {
		return 0, err
	}
	return counts[0], nil
}

// LinkCountBatch returns the number of related rows of several parents
// with one statement, in the order of the parent ids.
func (e *Engine) LinkCountBatch(ctx context.Context, linkColumnID string, parentIDs []any, filter querylanguage.Node) ([]int64, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	q, err := e.compileLinkCount(ctx, e.Registry(), linkColumnID, parentIDs, filter, e.clock())
	if err != nil {
		return nil, err
	}
	_, rows, err := e.exec(ctx, q.src, q.model, "links", q.stmt)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]int64, len(rows))
	for _, r := range rows {
		if len(r) < 2 {
			continue
		}
		n, ok := toInt64(r[1])
		if !ok {
			return nil, tabula.NewQueryError(q.model.Title, "links", fmt.Errorf("unexpected count value %T", r[1]))
		}
		byKey[keyString(r[0])] = n
	}
	counts := make([]int64, len(parentIDs))
	for i, id := range parentIDs {
		counts[i] = byKey[keyString(id)]
	}
	return counts, nil
}

// CompileLinkCount returns the statement LinkCount runs.
func (e *Engine) CompileLinkCount(ctx context.Context, linkColumnID string, parentID any, filter querylanguage.Node) (*Statement, error) {
	q, err := e.compileLinkCount(ctx, e.Registry(), linkColumnID, []any{parentID}, filter, e.clock())
	if err != nil {
		return nil, err
	}
	return q.stmt, nil
}

// LinkExcluded returns the rows of the related model that are not related
// to the parent row: the candidates for a new link.
func (e *Engine) LinkExcluded(ctx context.Context, linkColumnID string, parentID any, opts LinkListOptions) ([]Row, error) {
	limit, offset, err := e.page(opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	q, _, err := e.compileExcluded(ctx, e.Registry(), linkColumnID, parentID, opts.Filter, limit, offset, e.clock())
	if err != nil {
		return nil, err
	}
	return e.rows(ctx, q, "excluded")
}

// LinkExcludedCount returns the number of rows LinkExcluded pages through.
func (e *Engine) LinkExcludedCount(ctx context.Context, linkColumnID string, parentID any, filter querylanguage.Node) (int64, error) {
	_, q, err := e.compileExcluded(ctx, e.Registry(), linkColumnID, parentID, filter, 0, 0, e.clock())
	if err != nil {
		return 0, err
	}
	return e.count(ctx, q)
}

// CompileLinkExcluded returns the statement LinkExcluded runs.
func (e *Engine) CompileLinkExcluded(ctx context.Context, linkColumnID string, parentID any, opts LinkListOptions) (*Statement, error) {
	limit, offset, err := e.page(opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	q, _, err := e.compileExcluded(ctx, e.Registry(), linkColumnID, parentID, opts.Filter, limit, offset, e.clock())
	if err != nil {
		return nil, err
	}
	return q.stmt, nil
}

// rows runs a query and returns its output rows.
func (e *Engine) rows(ctx context.Context, q *query, op string) ([]Row, error) {
	recs, err := e.run(ctx, q, op)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, len(recs))
	for i := range recs {
		rows[i] = recs[i].row
	}
	return rows, nil
}

// resolveLink resolves a link column in a fresh scope over the model
// owning it. Remote related rows are narrowed to the parents.
func (e *Engine) resolveLink(ctx context.Context, reg *schema.Registry, linkColumnID string, now time.Time) (*sqlgraph.JoinFragment, *schema.Source, error) {
	link, err := reg.Column(linkColumnID)
	if err != nil {
		return nil, nil, err
	}
	if _, ok := link.Link(); !ok {
		return nil, nil, tabula.NewValidationError(link.ID, fmt.Errorf("column of type %s is not a link", link.Type))
	}
	owner, err := reg.ModelOf(link.ID)
	if err != nil {
		return nil, nil, err
	}
	src, err := reg.Source(owner.SourceID)
	if err != nil {
		return nil, nil, err
	}
	s, err := e.scope(reg, src, now)
	if err != nil {
		return nil, nil, err
	}
	s.Narrow = true
	j, err := sqlgraph.Resolve(ctx, s, s.Root(owner), link)
	s.Narrow = false
	if err != nil {
		return nil, nil, err
	}
	return j, src, nil
}

// linkQuery prepares a statement over the relation of j, fetching remote
// related rows for the parents with the given keys.
func (e *Engine) linkQuery(ctx context.Context, j *sqlgraph.JoinFragment, src *schema.Source, sel *sql.Selector, proj *projection, keys []any) (*query, error) {
	s, root := j.Scope(), j.From
	q := &query{model: j.Target.Model, src: src, proj: proj, scope: s, root: root}
	var (
		driving *sql.Selector
		known   map[string][]any
	)
	if pk := root.Model.PrimaryKey(); pk != nil {
		driving = s.Select().From(root.View()).Where(sql.In(root.C(pk), keys...))
		known = map[string][]any{pk.ID: keys}
	}
	if err := e.prepare(ctx, q, sel, driving, known); err != nil {
		return nil, err
	}
	return q, nil
}

// compileLink compiles the rows related to the given parents, ordered by
// the primary key of the related model. A zero limit leaves the
// statement unpaginated.
func (e *Engine) compileLink(ctx context.Context, reg *schema.Registry, linkColumnID string, keys []any, filter querylanguage.Node, limit, offset int, now time.Time) (*query, error) {
	j, src, err := e.resolveLink(ctx, reg, linkColumnID, now)
	if err != nil {
		return nil, err
	}
	s := j.Scope()
	sel, err := j.ForKeys(keys)
	if err != nil {
		return nil, err
	}
	related := j.Target.Model
	proj, err := e.project(ctx, s, j.Target, sel, related.Columns)
	if err != nil {
		return nil, err
	}
	pred, err := e.filters.Build(ctx, s, j.Target, filter)
	if err != nil {
		return nil, err
	}
	sel.Where(pred)
	for _, pk := range related.PrimaryKeys() {
		sel.OrderExpr(j.Target.C(pk), false)
	}
	if limit > 0 {
		sel.Limit(limit)
	}
	if offset > 0 {
		sel.Offset(offset)
	}
	return e.linkQuery(ctx, j, src, sel, proj, keys)
}

// compileLinkCount compiles the number of related rows of each parent.
func (e *Engine) compileLinkCount(ctx context.Context, reg *schema.Registry, linkColumnID string, keys []any, filter querylanguage.Node, now time.Time) (*query, error) {
	j, src, err := e.resolveLink(ctx, reg, linkColumnID, now)
	if err != nil {
		return nil, err
	}
	sel, err := j.CountForKeys(keys)
	if err != nil {
		return nil, err
	}
	pred, err := e.filters.Build(ctx, j.Scope(), j.Target, filter)
	if err != nil {
		return nil, err
	}
	sel.Where(pred)
	return e.linkQuery(ctx, j, src, sel, nil, keys)
}

// compileExcluded compiles the rows of the related model not related to
// the parent, and their count.
func (e *Engine) compileExcluded(ctx context.Context, reg *schema.Registry, linkColumnID string, parentID any, filter querylanguage.Node, limit, offset int, now time.Time) (*query, *query, error) {
	j, src, err := e.resolveLink(ctx, reg, linkColumnID, now)
	if err != nil {
		return nil, nil, err
	}
	s, related := j.Scope(), j.Target.Model
	if j.Target.Remote() {
		return nil, nil, tabula.NewUnsupportedError(fmt.Sprintf("excluded rows of link %q to another source", j.Link.Title), s.Dialect())
	}
	pk := related.PrimaryKey()
	if pk == nil || len(related.PrimaryKeys()) > 1 {
		return nil, nil, tabula.NewUnsupportedError(fmt.Sprintf("excluded rows of model %q", related.ID), s.Dialect())
	}
	linked, err := j.Related([]any{parentID}, j.Target.C(pk))
	if err != nil {
		return nil, nil, err
	}
	t := s.NewTable(related)
	pred, err := e.filters.Build(ctx, s, t, filter)
	if err != nil {
		return nil, nil, err
	}
	pred = sql.And(sql.NotIn(t.C(pk), linked), pred)
	sel := s.Select().From(t.View())
	proj, err := e.project(ctx, s, t, sel, related.Columns)
	if err != nil {
		return nil, nil, err
	}
	sel.Where(pred).OrderExpr(t.C(pk), false)
	if limit > 0 {
		sel.Limit(limit)
	}
	if offset > 0 {
		sel.Offset(offset)
	}
	q := &query{model: related, src: src, proj: proj, scope: s, root: j.From}
	if err := e.prepare(ctx, q, sel, nil, nil); err != nil {
		return nil, nil, err
	}
	count := s.Select(sql.Raw("COUNT(*)")).From(t.View()).Where(pred)
	cq := &query{model: related, src: src, scope: s, root: j.From}
	if err := e.prepare(ctx, cq, count, nil, nil); err != nil {
		return nil, nil, err
	}
	return q, cq, nil
}
