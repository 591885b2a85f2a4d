package sqlgraph

import (
	"context"
	"fmt"
	"strings"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect/sql"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/edge"
)

// KeyColumn is the alias of the driving key selected by JoinFragment.ForKeys.
const KeyColumn = "__tabula_key"

// Hop is an equality between two columns along a relation path.
type Hop struct {
	From, To ColumnRef
}

func (h Hop) String() string { return h.From.String() + "=" + h.To.String() }

// JoinFragment is a resolved relation: the path from a driving table to the
// related table, optionally through a junction, and the link filter
// restricting the related rows.
type JoinFragment struct {
	Rel  edge.Rel
	Link *schema.Column
	// From is the driving table and Target the related one.
	From, Target *Table
	// Junction is set for many-to-many relations.
	Junction *Table
	// Hops lists the join conditions from the driving table to the target.
	Hops []Hop
	// Filter restricts the related rows, if the link has a condition.
	Filter *sql.Predicate

	scope *Scope
}

// Resolve resolves the link column of the driving table into a join fragment.
//
//	HAS_MANY:     parent.pk = child.fk
//	BELONGS_TO:   child.fk = parent.pk
//	MANY_TO_MANY: source.pk = junction.fk_source, junction.fk_target = target.pk
//
// Related models living in another source are bound to literal rows,
// fetched through the scope's remote proxy by Scope.Materialize.
func Resolve(ctx context.Context, s *Scope, from *Table, link *schema.Column) (*JoinFragment, error) {
	o, ok := link.Link()
	if !ok {
		return nil, tabula.NewValidationError(link.ID, fmt.Errorf("column of type %s is not a link", link.Type))
	}
	leave, err := s.Enter()
	if err != nil {
		return nil, err
	}
	defer leave()
	if owner := o.OwnerModelID(); owner != from.Model.ID {
		return nil, tabula.NewValidationError(link.ID, fmt.Errorf("link belongs to model %q, not %q", owner, from.Model.ID))
	}
	related, err := s.Registry.Model(o.RelatedModelID())
	if err != nil {
		return nil, err
	}
	j := &JoinFragment{Rel: o.Rel, Link: link, From: from, scope: s}
	switch o.Rel {
	case edge.HasMany:
		parentKey, err := column(from.Model, o.ParentColumnID, link)
		if err != nil {
			return nil, err
		}
		childKey, err := column(related, o.ChildColumnID, link)
		if err != nil {
			return nil, err
		}
		j.Target = s.NewTable(related)
		j.Hops = []Hop{{From: ColumnRef{from, parentKey}, To: ColumnRef{j.Target, childKey}}}
	case edge.BelongsTo:
		childKey, err := column(from.Model, o.ChildColumnID, link)
		if err != nil {
			return nil, err
		}
		parentKey, err := column(related, o.ParentColumnID, link)
		if err != nil {
			return nil, err
		}
		j.Target = s.NewTable(related)
		j.Hops = []Hop{{From: ColumnRef{from, childKey}, To: ColumnRef{j.Target, parentKey}}}
	case edge.ManyToMany:
		junction, err := s.Registry.Model(o.JunctionModelID)
		if err != nil {
			return nil, err
		}
		sourceKey, err := column(from.Model, o.ChildColumnID, link)
		if err != nil {
			return nil, err
		}
		targetKey, err := column(related, o.ParentColumnID, link)
		if err != nil {
			return nil, err
		}
		toSource, err := column(junction, o.JunctionChildColumnID, link)
		if err != nil {
			return nil, err
		}
		toTarget, err := column(junction, o.JunctionParentColumnID, link)
		if err != nil {
			return nil, err
		}
		if s.Source != nil && junction.SourceID != s.Source.ID {
			return nil, tabula.NewUnsupportedError("many-to-many relation through a junction in another source", s.Dialect())
		}
		j.Target = s.NewTable(related)
		j.Junction = s.NewTable(junction)
		j.Hops = []Hop{
			{From: ColumnRef{from, sourceKey}, To: ColumnRef{j.Junction, toSource}},
			{From: ColumnRef{j.Junction, toTarget}, To: ColumnRef{j.Target, targetKey}},
		}
	default:
		return nil, tabula.NewValidationError(link.ID, fmt.Errorf("unknown relation kind %s", o.Rel))
	}
	if s.Source != nil && related.SourceID != s.Source.ID {
		if err := s.deferFetch(j); err != nil {
			return nil, err
		}
	}
	if o.Filter != nil && s.Conds != nil && !s.inLinkFilter {
		s.inLinkFilter = true
		j.Filter, err = s.Conds.Condition(ctx, s, j.Target, o.Filter)
		s.inLinkFilter = false
		if err != nil {
			return nil, err
		}
	}
	return j, nil
}

func column(m *schema.Model, id string, link *schema.Column) (*schema.Column, error) {
	c, ok := m.Column(id)
	if !ok {
		return nil, tabula.NewValidationError(link.ID, fmt.Errorf("column %q not found in model %q", id, m.ID))
	}
	return c, nil
}

// Scope returns the scope the fragment was resolved in.
func (j *JoinFragment) Scope() *Scope { return j.scope }

// correlation returns the predicate tying the related rows to the driving row.
func (j *JoinFragment) correlation() *sql.Predicate {
	return sql.ColumnsEQ(j.Hops[0].To.Expr(), j.Hops[0].From.Expr())
}

// from returns a selector over the related table, joined with the junction
// for many-to-many relations.
func (j *JoinFragment) from(columns ...any) *sql.Selector {
	sel := j.scope.Select(columns...).From(j.Target.View())
	if j.Junction != nil {
		h := j.Hops[1]
		sel.Join(j.Junction.View()).On(h.From.Expr(), h.To.Expr())
	}
	return sel
}

// Subquery returns a selector over the related rows correlated to the
// driving table, for use as a scalar subquery or in EXISTS.
func (j *JoinFragment) Subquery(columns ...any) *sql.Selector {
	return j.from(columns...).Where(sql.And(j.correlation(), j.Filter))
}

// Exists returns a predicate matching driving rows with at least one related row.
func (j *JoinFragment) Exists() *sql.Predicate {
	return sql.Exists(j.Subquery(sql.Raw("1")))
}

// NotExists returns a predicate matching driving rows without related rows.
func (j *JoinFragment) NotExists() *sql.Predicate {
	return sql.NotExists(j.Subquery(sql.Raw("1")))
}

// JoinTo attaches the related table to the selector with a LEFT JOIN.
// Only relations yielding at most one row can be joined.
func (j *JoinFragment) JoinTo(sel *sql.Selector) error {
	if j.Rel.Many() {
		return tabula.NewValidationError(j.Link.ID, fmt.Errorf("%s relation cannot be joined without multiplying rows", j.Rel))
	}
	h := j.Hops[0]
	sel.LeftJoin(j.Target.View()).OnP(sql.And(sql.ColumnsEQ(h.From.Expr(), h.To.Expr()), j.Filter))
	return nil
}

// ForKeys returns a standalone selector over the rows related to the driving
// rows with the given primary keys. The driving key of each row is selected
// as KeyColumn so results of several parents can be told apart.
func (j *JoinFragment) ForKeys(keys []any, columns ...any) (*sql.Selector, error) {
	sel, key, err := j.forKeys(keys, columns...)
	if err != nil {
		return nil, err
	}
	return sel.AppendSelectAs(key, KeyColumn), nil
}

// Related returns a standalone selector over the rows related to the
// driving rows with the given primary keys.
func (j *JoinFragment) Related(keys []any, columns ...any) (*sql.Selector, error) {
	sel, _, err := j.forKeys(keys, columns...)
	return sel, err
}

// CountForKeys returns a standalone selector counting the related rows of
// each driving row with the given primary keys. Rows are keyed by
// KeyColumn; driving rows without related rows are left out.
func (j *JoinFragment) CountForKeys(keys []any) (*sql.Selector, error) {
	sel, key, err := j.forKeys(keys)
	if err != nil {
		return nil, err
	}
	sel.AppendSelectAs(key, KeyColumn).
		AppendSelectAs(sql.Raw("COUNT(*)"), "count").
		GroupBy(key)
	return sel, nil
}

// forKeys returns the selector over the rows related to the given keys
// and the expression of the driving key.
func (j *JoinFragment) forKeys(keys []any, columns ...any) (*sql.Selector, sql.Fragment, error) {
	anchor := j.Hops[0].From
	if anchor.Column.PrimaryKey {
		key := j.Hops[0].To.Expr()
		sel := j.from(columns...)
		return sel.Where(sql.And(sql.In(key, keys...), j.Filter)), key, nil
	}
	pk := j.From.Model.PrimaryKey()
	if pk == nil {
		return nil, nil, tabula.NewValidationError(j.Link.ID, fmt.Errorf("model %q has no primary key", j.From.Model.ID))
	}
	key := j.From.C(pk)
	sel := j.from(columns...)
	sel.Join(j.From.View()).On(anchor.Expr(), j.Hops[0].To.Expr())
	return sel.Where(sql.And(sql.In(key, keys...), j.Filter)), key, nil
}

// Inverse returns the fragment seen from the related table: driving and
// related tables are swapped and the hops reversed.
func (j *JoinFragment) Inverse() *JoinFragment {
	inv := &JoinFragment{
		Rel:      j.Rel.Inverse(),
		From:     j.Target,
		Target:   j.From,
		Junction: j.Junction,
		Hops:     make([]Hop, len(j.Hops)),
		scope:    j.scope,
	}
	for i, h := range j.Hops {
		inv.Hops[len(j.Hops)-1-i] = Hop{From: h.To, To: h.From}
	}
	return inv
}

// Signature returns the hops of the fragment by model and column ids,
// independent of table aliases.
func (j *JoinFragment) Signature() string {
	parts := make([]string, len(j.Hops))
	for i, h := range j.Hops {
		parts[i] = h.String()
	}
	return strings.Join(parts, ";")
}

// LinkValue returns the value displayed for a link column: the number of
// related rows for has-many and many-to-many relations, and the display
// value of the parent row for belongs-to relations.
func LinkValue(ctx context.Context, s *Scope, t *Table, link *schema.Column) (sql.Querier, error) {
	j, err := Resolve(ctx, s, t, link)
	if err != nil {
		return nil, err
	}
	if j.Rel.Many() {
		return j.Subquery(sql.Raw("COUNT(*)")), nil
	}
	dv := j.Target.Model.DisplayValue()
	if dv == nil {
		return nil, tabula.NewValidationError(link.ID, fmt.Errorf("model %q has no display value", j.Target.Model.ID))
	}
	expr, err := s.Expr(ctx, j.Target, dv)
	if err != nil {
		return nil, err
	}
	return j.Subquery(expr), nil
}
