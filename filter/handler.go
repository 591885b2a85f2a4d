package filter

import (
	"context"
	"fmt"
	"strings"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect/sql"
	"github.com/syssam/tabula/dialect/sql/sqlgraph"
	ql "github.com/syssam/tabula/querylanguage"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
)

type opSet map[ql.Op]struct{}

func ops(list ...ql.Op) opSet {
	s := make(opSet, len(list))
	for _, op := range list {
		s[op] = struct{}{}
	}
	return s
}

func (s opSet) has(op ql.Op) bool {
	_, ok := s[op]
	return ok
}

// allOps lists the operators in the order Ops reports them.
var allOps = []ql.Op{
	ql.OpEq, ql.OpNeq, ql.OpLike, ql.OpNotLike, ql.OpGt, ql.OpLt, ql.OpGte, ql.OpLte,
	ql.OpIn, ql.OpIsWithin, ql.OpAnyOf, ql.OpNotAnyOf, ql.OpAllOf, ql.OpNotAllOf,
	ql.OpBlank, ql.OpNotBlank, ql.OpNull, ql.OpNotNull, ql.OpEmpty, ql.OpNotEmpty,
	ql.OpChecked, ql.OpNotChecked,
}

// handler compiles the leaves of one family of column types.
type handler struct {
	ops   opSet
	build func(*leafCtx) (*sql.Predicate, error)
}

var (
	textOps = ops(ql.OpEq, ql.OpNeq, ql.OpLike, ql.OpNotLike, ql.OpBlank, ql.OpNotBlank,
		ql.OpNull, ql.OpNotNull, ql.OpEmpty, ql.OpNotEmpty, ql.OpGt, ql.OpLt, ql.OpGte, ql.OpLte, ql.OpIn)
	numericOps = ops(ql.OpEq, ql.OpNeq, ql.OpGt, ql.OpLt, ql.OpGte, ql.OpLte, ql.OpIn,
		ql.OpBlank, ql.OpNotBlank, ql.OpNull, ql.OpNotNull)
	dateOps = ops(ql.OpEq, ql.OpNeq, ql.OpGt, ql.OpLt, ql.OpGte, ql.OpLte, ql.OpIsWithin,
		ql.OpBlank, ql.OpNotBlank, ql.OpNull, ql.OpNotNull)
	timeOps = ops(ql.OpEq, ql.OpNeq, ql.OpGt, ql.OpLt, ql.OpGte, ql.OpLte,
		ql.OpBlank, ql.OpNotBlank, ql.OpNull, ql.OpNotNull)
	jsonOps = ops(ql.OpEq, ql.OpNeq, ql.OpLike, ql.OpNotLike, ql.OpBlank, ql.OpNotBlank,
		ql.OpNull, ql.OpNotNull, ql.OpEmpty, ql.OpNotEmpty)
	formulaOps = ops(ql.OpEq, ql.OpNeq, ql.OpGt, ql.OpLt, ql.OpGte, ql.OpLte, ql.OpLike, ql.OpNotLike,
		ql.OpIn, ql.OpBlank, ql.OpNotBlank, ql.OpNull, ql.OpNotNull)
)

var (
	textHandler = &handler{ops: textOps, build: func(l *leafCtx) (*sql.Predicate, error) {
		return l.compare(valueText)
	}}
	numericHandler = &handler{ops: numericOps, build: func(l *leafCtx) (*sql.Predicate, error) {
		return l.compare(valueNumber)
	}}
	keyHandler = &handler{ops: numericOps, build: func(l *leafCtx) (*sql.Predicate, error) {
		return l.compare(valueRaw)
	}}
	dateHandler     = &handler{ops: dateOps, build: (*leafCtx).date}
	timeHandler     = &handler{ops: timeOps, build: func(l *leafCtx) (*sql.Predicate, error) { return l.compare(valueRaw) }}
	jsonHandler     = &handler{ops: jsonOps, build: func(l *leafCtx) (*sql.Predicate, error) { return l.compare(valueText) }}
	checkboxHandler = &handler{ops: ops(ql.OpChecked, ql.OpNotChecked), build: (*leafCtx).checkbox}
	selectHandler   = &handler{
		ops:   ops(ql.OpEq, ql.OpNeq, ql.OpIn, ql.OpAnyOf, ql.OpNotAnyOf, ql.OpBlank, ql.OpNotBlank),
		build: (*leafCtx).singleSelect,
	}
	multiSelectHandler = &handler{
		ops:   ops(ql.OpAnyOf, ql.OpNotAnyOf, ql.OpAllOf, ql.OpNotAllOf, ql.OpBlank, ql.OpNotBlank),
		build: (*leafCtx).multiSelect,
	}
	attachmentHandler = &handler{ops: ops(ql.OpLike, ql.OpNotLike, ql.OpBlank, ql.OpNotBlank), build: (*leafCtx).attachment}
	formulaHandler    = &handler{ops: formulaOps, build: func(l *leafCtx) (*sql.Predicate, error) { return l.compare(valueRaw) }}
	rollupHandler     = &handler{
		ops:   ops(ql.OpEq, ql.OpNeq, ql.OpGt, ql.OpLt, ql.OpGte, ql.OpLte, ql.OpIn, ql.OpNull, ql.OpNotNull),
		build: func(l *leafCtx) (*sql.Predicate, error) { return l.compare(valueNumber) },
	}
	linksHandler = &handler{
		ops:   ops(ql.OpEq, ql.OpNeq, ql.OpGt, ql.OpLt, ql.OpGte, ql.OpLte),
		build: func(l *leafCtx) (*sql.Predicate, error) { return l.compare(valueNumber) },
	}
	relationHandler = &handler{
		ops:   ops(ql.OpEq, ql.OpNeq, ql.OpLike, ql.OpNotLike, ql.OpBlank, ql.OpNotBlank),
		build: (*leafCtx).relation,
	}
	noopHandler = &handler{ops: ops()}
)

// handlers maps every UI type to its handler.
var handlers = map[field.Type]*handler{
	field.ID:                  keyHandler,
	field.ForeignKey:          keyHandler,
	field.SingleLineText:      textHandler,
	field.LongText:            textHandler,
	field.Email:               textHandler,
	field.URL:                 textHandler,
	field.PhoneNumber:         textHandler,
	field.Number:              numericHandler,
	field.Decimal:             numericHandler,
	field.Currency:            numericHandler,
	field.Percent:             numericHandler,
	field.Rating:              numericHandler,
	field.Duration:            numericHandler,
	field.AutoNumber:          numericHandler,
	field.Year:                numericHandler,
	field.Checkbox:            checkboxHandler,
	field.Date:                dateHandler,
	field.DateTime:            dateHandler,
	field.Time:                timeHandler,
	field.CreatedTime:         dateHandler,
	field.LastModifiedTime:    dateHandler,
	field.SingleSelect:        selectHandler,
	field.MultiSelect:         multiSelectHandler,
	field.JSON:                jsonHandler,
	field.Attachment:          attachmentHandler,
	field.Formula:             formulaHandler,
	field.Rollup:              rollupHandler,
	field.Links:               linksHandler,
	field.LinkToAnotherRecord: relationHandler,
	field.Button:              noopHandler,
}

// handlerFor returns the handler of a column and the column whose type
// drives it. Lookups are filtered with the handler of their target column,
// or as text when they aggregate many rows.
func handlerFor(reg *schema.Registry, c *schema.Column) (*handler, *schema.Column, error) {
	eff := c
	for range sqlgraph.MaxDepth {
		o, ok := eff.Lookup()
		if !ok {
			h, ok := handlers[eff.Type]
			if !ok {
				return nil, nil, tabula.NewValidationError(c.ID, fmt.Errorf("no filter handler for %s", eff.Type))
			}
			return h, eff, nil
		}
		rel, err := reg.Column(o.RelationColumnID)
		if err != nil {
			return nil, nil, err
		}
		target, err := reg.Column(o.TargetColumnID)
		if err != nil {
			return nil, nil, err
		}
		if lo, ok := rel.Link(); ok && lo.Rel.Many() || target.Type.Relation() {
			return textHandler, &schema.Column{ID: c.ID, Type: field.LongText}, nil
		}
		eff = target
	}
	return nil, nil, tabula.NewValidationError(c.ID, fmt.Errorf("lookup chain deeper than %d levels", sqlgraph.MaxDepth))
}

// Ops returns the operators legal for the given UI type.
func Ops(t field.Type) []ql.Op {
	h, ok := handlers[t]
	if !ok {
		return nil
	}
	var list []ql.Op
	for _, op := range allOps {
		if h.ops.has(op) {
			list = append(list, op)
		}
	}
	return list
}

// Legal reports if op can filter columns of the given UI type.
func Legal(t field.Type, op ql.Op) bool {
	h, ok := handlers[t]
	return ok && h.ops.has(op)
}

// leafCtx is the state of one leaf compilation.
type leafCtx struct {
	ctx context.Context
	s   *sqlgraph.Scope
	t   *sqlgraph.Table
	// col is the filtered column, eff the column whose type drives the
	// comparison (the target of a lookup).
	col, eff *schema.Column
	node     *ql.Leaf
	op       ql.Op
	value    any
}

// normalize resolves the is / isnot aliases.
func (l *leafCtx) normalize() {
	op, consumed := aliasOp(l.node.Op, l.node.Value)
	l.op = op
	if !consumed {
		l.value = l.node.Value
	}
}

// aliasOp maps is / isnot to the operator they stand for. The value is
// consumed when it names a unary operator, as in "is blank".
func aliasOp(op ql.Op, v any) (ql.Op, bool) {
	if op != ql.OpIs && op != ql.OpIsNot {
		return op, false
	}
	if s, ok := v.(string); ok {
		if u := ql.Op(strings.ToLower(s)); u.Unary() {
			if op == ql.OpIsNot {
				return negate(u), true
			}
			return u, true
		}
	}
	if op == ql.OpIsNot {
		return ql.OpNeq, false
	}
	return ql.OpEq, false
}

func negate(op ql.Op) ql.Op {
	switch op {
	case ql.OpBlank:
		return ql.OpNotBlank
	case ql.OpNotBlank:
		return ql.OpBlank
	case ql.OpNull:
		return ql.OpNotNull
	case ql.OpNotNull:
		return ql.OpNull
	case ql.OpEmpty:
		return ql.OpNotEmpty
	case ql.OpNotEmpty:
		return ql.OpEmpty
	case ql.OpChecked:
		return ql.OpNotChecked
	case ql.OpNotChecked:
		return ql.OpChecked
	}
	return op
}

// expr returns the expression of the filtered column.
func (l *leafCtx) expr() (sql.Querier, error) {
	return l.s.Expr(l.ctx, l.t, l.col)
}

func (l *leafCtx) errorf(format string, args ...any) error {
	return tabula.NewOperatorError(l.col.ID, string(l.node.Op), fmt.Errorf(format, args...))
}

// paren parenthesizes a predicate, so that it reads as one term when
// combined by a parent group.
func paren(p *sql.Predicate) *sql.Predicate {
	return sql.ExprP("(?)", p)
}

var emptyString = sql.Raw("''")

// compare compiles the scalar operators shared by most types.
func (l *leafCtx) compare(kind valueKind) (*sql.Predicate, error) {
	x, err := l.expr()
	if err != nil {
		return nil, err
	}
	textual := kind == valueText
	switch l.op {
	case ql.OpBlank:
		if textual {
			return paren(sql.Or(sql.IsNull(x), sql.EQ(x, emptyString))), nil
		}
		return sql.IsNull(x), nil
	case ql.OpNotBlank:
		if textual {
			return paren(sql.And(sql.NotNull(x), sql.NEQ(x, emptyString))), nil
		}
		return sql.NotNull(x), nil
	case ql.OpNull:
		return sql.IsNull(x), nil
	case ql.OpNotNull:
		return sql.NotNull(x), nil
	case ql.OpEmpty:
		return sql.EQ(x, emptyString), nil
	case ql.OpNotEmpty:
		return sql.NEQ(x, emptyString), nil
	case ql.OpLike, ql.OpNotLike:
		pattern := "%" + toString(l.value) + "%"
		if l.op == ql.OpLike {
			return sql.Like(x, pattern), nil
		}
		return paren(sql.Or(sql.NotLike(x, pattern), sql.IsNull(x))), nil
	case ql.OpIn:
		items := toList(l.value)
		args := make([]any, 0, len(items))
		for _, it := range items {
			v, err := l.coerce(it, kind)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
		return sql.In(x, args...), nil
	}
	if l.value == nil {
		switch l.op {
		case ql.OpEq:
			return sql.IsNull(x), nil
		case ql.OpNeq:
			return sql.NotNull(x), nil
		}
		return nil, l.errorf("a value is required")
	}
	v, err := l.coerce(l.value, kind)
	if err != nil {
		return nil, err
	}
	return binary(l.op, x, v)
}

func binary(op ql.Op, x, v any) (*sql.Predicate, error) {
	switch op {
	case ql.OpEq:
		return sql.EQ(x, v), nil
	case ql.OpNeq:
		// Rows without a value differ from any value.
		return paren(sql.Or(sql.NEQ(x, v), sql.IsNull(x))), nil
	case ql.OpGt:
		return sql.GT(x, v), nil
	case ql.OpLt:
		return sql.LT(x, v), nil
	case ql.OpGte:
		return sql.GTE(x, v), nil
	case ql.OpLte:
		return sql.LTE(x, v), nil
	}
	return nil, fmt.Errorf("filter: unexpected operator %q", op)
}

func (l *leafCtx) coerce(v any, kind valueKind) (any, error) {
	switch kind {
	case valueNumber:
		n, err := toNumber(v, l.eff.Type.Integral() || l.eff.Type == field.Links)
		if err != nil {
			return nil, l.errorf("%v", err)
		}
		return n, nil
	case valueText:
		return toString(v), nil
	}
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return int64(f), nil
	}
	return v, nil
}

func (l *leafCtx) checkbox() (*sql.Predicate, error) {
	x, err := l.expr()
	if err != nil {
		return nil, err
	}
	if l.op == ql.OpChecked {
		return sql.EQ(x, true), nil
	}
	return paren(sql.Or(sql.IsNull(x), sql.EQ(x, false))), nil
}

func (l *leafCtx) singleSelect() (*sql.Predicate, error) {
	switch l.op {
	case ql.OpAnyOf, ql.OpNotAnyOf:
	default:
		return l.compare(valueText)
	}
	x, err := l.expr()
	if err != nil {
		return nil, err
	}
	items := toList(l.value)
	if len(items) == 0 {
		return nil, nil
	}
	args := make([]any, len(items))
	for i, it := range items {
		args[i] = toString(it)
	}
	if l.op == ql.OpAnyOf {
		return sql.In(x, args...), nil
	}
	return paren(sql.Or(sql.NotIn(x, args...), sql.IsNull(x))), nil
}

// multiSelect matches the options of a comma separated cell by wrapping
// the cell in commas and looking for ",option,".
func (l *leafCtx) multiSelect() (*sql.Predicate, error) {
	switch l.op {
	case ql.OpBlank, ql.OpNotBlank:
		return l.compare(valueText)
	}
	x, err := l.expr()
	if err != nil {
		return nil, err
	}
	items := toList(l.value)
	if len(items) == 0 {
		return nil, nil
	}
	cell := l.s.Client.Concat(sql.Raw("','"), x, sql.Raw("','"))
	preds := make([]*sql.Predicate, len(items))
	for i, it := range items {
		preds[i] = sql.Like(cell, "%,"+strings.TrimSpace(toString(it))+",%")
	}
	switch l.op {
	case ql.OpAnyOf:
		return paren(sql.Or(preds...)), nil
	case ql.OpAllOf:
		return paren(sql.And(preds...)), nil
	case ql.OpNotAnyOf:
		return paren(sql.Or(sql.Not(sql.Or(preds...)), sql.IsNull(x))), nil
	default:
		return paren(sql.Or(sql.Not(sql.And(preds...)), sql.IsNull(x))), nil
	}
}

func (l *leafCtx) attachment() (*sql.Predicate, error) {
	x, err := l.expr()
	if err != nil {
		return nil, err
	}
	emptyList := sql.Raw("'[]'")
	switch l.op {
	case ql.OpBlank:
		return paren(sql.Or(sql.IsNull(x), sql.EQ(x, emptyString), sql.EQ(x, emptyList))), nil
	case ql.OpNotBlank:
		return paren(sql.And(sql.NotNull(x), sql.NEQ(x, emptyString), sql.NEQ(x, emptyList))), nil
	}
	return l.compare(valueText)
}

// relation filters a link to another record by the display value of the
// related rows: a row matches when one of its related rows does.
func (l *leafCtx) relation() (*sql.Predicate, error) {
	j, err := sqlgraph.Resolve(l.ctx, l.s, l.t, l.col)
	if err != nil {
		return nil, err
	}
	switch l.op {
	case ql.OpBlank:
		return j.NotExists(), nil
	case ql.OpNotBlank:
		return j.Exists(), nil
	}
	dv := j.Target.Model.DisplayValue()
	if dv == nil {
		return nil, l.errorf("model %q has no display value", j.Target.Model.ID)
	}
	x, err := l.s.Expr(l.ctx, j.Target, dv)
	if err != nil {
		return nil, err
	}
	var match *sql.Predicate
	switch l.op {
	case ql.OpEq, ql.OpNeq:
		if l.value == nil {
			return nil, l.errorf("a value is required")
		}
		match = sql.EQ(x, l.value)
	default:
		match = sql.Like(x, "%"+toString(l.value)+"%")
	}
	sub := j.Subquery(sql.Raw("1")).Where(match)
	if l.op == ql.OpEq || l.op == ql.OpLike {
		return sql.Exists(sub), nil
	}
	return sql.NotExists(sub), nil
}
