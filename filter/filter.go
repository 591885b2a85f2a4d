package filter

import (
	"context"
	"fmt"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect/sql"
	"github.com/syssam/tabula/dialect/sql/sqlgraph"
	"github.com/syssam/tabula/querylanguage"
	"github.com/syssam/tabula/schema"
)

// Builder compiles filter trees into SQL predicates. The zero value is
// ready to use and a Builder is safe for concurrent use.
type Builder struct{}

var _ sqlgraph.Conditioner = (*Builder)(nil)

// New returns a filter builder.
func New() *Builder { return &Builder{} }

// Build validates the whole tree and compiles it against the table.
// An empty tree yields a nil predicate.
func (b *Builder) Build(ctx context.Context, s *sqlgraph.Scope, t *sqlgraph.Table, n querylanguage.Node) (*sql.Predicate, error) {
	if err := Validate(s.Registry, n); err != nil {
		return nil, err
	}
	return b.Condition(ctx, s, t, n)
}

// Condition compiles the tree against the table. Leaves are checked for
// operator legality as they are compiled.
func (b *Builder) Condition(ctx context.Context, s *sqlgraph.Scope, t *sqlgraph.Table, n querylanguage.Node) (*sql.Predicate, error) {
	switch n := n.(type) {
	case nil:
		return nil, nil
	case *querylanguage.Group:
		return b.group(ctx, s, t, n)
	case *querylanguage.Leaf:
		return b.leaf(ctx, s, t, n)
	default:
		return nil, tabula.NewValidationError("", fmt.Errorf("unexpected filter node %T", n))
	}
}

func (b *Builder) group(ctx context.Context, s *sqlgraph.Scope, t *sqlgraph.Table, g *querylanguage.Group) (*sql.Predicate, error) {
	preds := make([]*sql.Predicate, 0, len(g.Children))
	for _, c := range g.Children {
		p, err := b.Condition(ctx, s, t, c)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	switch g.Logic {
	case querylanguage.LogicAnd, "":
		return sql.And(preds...), nil
	case querylanguage.LogicOr:
		return sql.Or(preds...), nil
	case querylanguage.LogicNot:
		// NOT over several children negates their conjunction.
		return sql.Not(sql.And(preds...)), nil
	}
	return nil, tabula.NewValidationError("", fmt.Errorf("unknown logical operator %q", g.Logic))
}

func (b *Builder) leaf(ctx context.Context, s *sqlgraph.Scope, t *sqlgraph.Table, n *querylanguage.Leaf) (*sql.Predicate, error) {
	col, err := s.Registry.Column(n.ColumnID)
	if err != nil {
		return nil, err
	}
	if col.ModelID != t.Model.ID {
		return nil, tabula.NewValidationError(col.ID, fmt.Errorf("column belongs to model %q, not %q", col.ModelID, t.Model.ID))
	}
	h, eff, err := handlerFor(s.Registry, col)
	if err != nil {
		return nil, err
	}
	l := &leafCtx{ctx: ctx, s: s, t: t, col: col, eff: eff, node: n}
	l.normalize()
	if !h.ops.has(l.op) {
		return nil, illegal(col, n.Op, eff)
	}
	if err := validateSubOp(col, eff, l.op, n.SubOp); err != nil {
		return nil, err
	}
	return h.build(l)
}

// Validate checks every leaf of the tree against the operators legal for
// its column type, without compiling anything.
func Validate(reg *schema.Registry, n querylanguage.Node) error {
	switch n := n.(type) {
	case nil:
		return nil
	case *querylanguage.Group:
		switch n.Logic {
		case querylanguage.LogicAnd, querylanguage.LogicOr, querylanguage.LogicNot, "":
		default:
			return tabula.NewValidationError("", fmt.Errorf("unknown logical operator %q", n.Logic))
		}
		for _, c := range n.Children {
			if err := Validate(reg, c); err != nil {
				return err
			}
		}
		return nil
	case *querylanguage.Leaf:
		col, err := reg.Column(n.ColumnID)
		if err != nil {
			return err
		}
		h, eff, err := handlerFor(reg, col)
		if err != nil {
			return err
		}
		op, _ := aliasOp(n.Op, n.Value)
		if !h.ops.has(op) {
			return illegal(col, n.Op, eff)
		}
		return validateSubOp(col, eff, op, n.SubOp)
	}
	return tabula.NewValidationError("", fmt.Errorf("unexpected filter node %T", n))
}

func illegal(col *schema.Column, op querylanguage.Op, eff *schema.Column) error {
	return tabula.NewOperatorError(col.ID, string(op), fmt.Errorf("not allowed for %s columns", eff.Type))
}
