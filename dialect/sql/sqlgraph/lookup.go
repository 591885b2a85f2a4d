package sqlgraph

import (
	"context"
	"fmt"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect/sql"
	"github.com/syssam/tabula/schema"
)

// DefaultDelimiter joins lookup values over many related rows.
const DefaultDelimiter = ","

// Lookup returns the expression of a lookup column: the target column of
// the related row, or the delimited list of the target values when the
// relation yields many rows.
func Lookup(ctx context.Context, s *Scope, t *Table, col *schema.Column) (sql.Querier, error) {
	o, ok := col.Lookup()
	if !ok {
		return nil, tabula.NewValidationError(col.ID, fmt.Errorf("column of type %s is not a lookup", col.Type))
	}
	rel, err := s.Registry.Column(o.RelationColumnID)
	if err != nil {
		return nil, err
	}
	target, err := s.Registry.Column(o.TargetColumnID)
	if err != nil {
		return nil, err
	}
	j, err := Resolve(ctx, s, t, rel)
	if err != nil {
		return nil, err
	}
	expr, err := s.Expr(ctx, j.Target, target)
	if err != nil {
		return nil, err
	}
	if !j.Rel.Many() {
		return j.Subquery(expr), nil
	}
	sep := col.Meta.Delimiter
	if sep == "" {
		sep = DefaultDelimiter
	}
	agg, err := s.Client.StringAgg(expr, sep)
	if err != nil {
		return nil, err
	}
	return j.Subquery(agg), nil
}
