package sql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/syssam/tabula/dialect"
)

// Querier wraps the basic Query method that is implemented
// by the different builders in this file.
type Querier interface {
	// Query returns the query representation of the element
	// and its arguments (if any).
	Query() (string, []any)
}

// writer is implemented by elements that render straight into a parent
// builder, sharing its dialect and placeholder numbering.
type writer interface {
	writeTo(*Builder)
}

// Builder is the base query builder for the sql dsl. Elements are rendered
// into a single Builder so that positional placeholders are numbered once,
// in statement order.
type Builder struct {
	sb      *strings.Builder
	args    []any
	dialect string
	errs    []error
}

// NewBuilder returns a builder for the given dialect.
func NewBuilder(dialect string) *Builder {
	return &Builder{sb: &strings.Builder{}, dialect: dialect}
}

func (b *Builder) init() {
	if b.sb == nil {
		b.sb = &strings.Builder{}
	}
}

// Dialect returns the dialect of the builder.
func (b *Builder) Dialect() string { return b.dialect }

// String returns the accumulated string.
func (b *Builder) String() string {
	b.init()
	return b.sb.String()
}

// Query implements the Querier interface.
func (b *Builder) Query() (string, []any) {
	return b.String(), b.args
}

// Err returns a concatenated error of all errors encountered during
// the query-building, or were added manually by calling AddError.
func (b *Builder) Err() error {
	return errors.Join(b.errs...)
}

// AddError appends an error to the builder errors.
func (b *Builder) AddError(err error) *Builder {
	if err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// WriteString writes a raw string to the builder.
func (b *Builder) WriteString(s string) *Builder {
	b.init()
	b.sb.WriteString(s)
	return b
}

// WriteByte writes a single byte to the builder.
func (b *Builder) WriteByte(c byte) *Builder {
	b.init()
	b.sb.WriteByte(c)
	return b
}

// Pad adds a space to the builder.
func (b *Builder) Pad() *Builder {
	return b.WriteByte(' ')
}

// Comma adds a comma to the builder.
func (b *Builder) Comma() *Builder {
	return b.WriteString(", ")
}

// Quote quotes the identifier for the builder dialect.
func (b *Builder) Quote(ident string) string {
	return Quote(b.dialect, ident)
}

// Quote quotes an identifier for the given dialect. Embedded quote
// characters are escaped by doubling.
func Quote(d, ident string) string {
	switch d {
	case dialect.Postgres:
		return pq.QuoteIdentifier(ident)
	case dialect.MySQL:
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	case dialect.MSSQL:
		return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	}
}

// isQuoted reports if the given string is already a quoted identifier.
func (b *Builder) isQuoted(s string) bool {
	if len(s) < 2 {
		return false
	}
	switch s[0] {
	case '"', '`', '[':
		return true
	}
	return false
}

// Ident writes the given string quoted as an SQL identifier.
// The star and already quoted identifiers are written as is.
func (b *Builder) Ident(s string) *Builder {
	if s == "*" || b.isQuoted(s) {
		return b.WriteString(s)
	}
	return b.WriteString(b.Quote(s))
}

// Arg appends an input argument to the builder and writes its placeholder.
func (b *Builder) Arg(a any) *Builder {
	b.args = append(b.args, a)
	switch b.dialect {
	case dialect.Postgres:
		b.WriteString("$" + strconv.Itoa(len(b.args)))
	case dialect.MSSQL:
		b.WriteString("@p" + strconv.Itoa(len(b.args)))
	default:
		b.WriteByte('?')
	}
	return b
}

// Args appends a list of arguments to the builder, separated by commas.
func (b *Builder) Args(a ...any) *Builder {
	for i := range a {
		if i > 0 {
			b.Comma()
		}
		b.Arg(a[i])
	}
	return b
}

// Join joins a querier into the builder. Builders of this package are
// rendered in place; foreign queriers are expected to use '?' placeholders.
func (b *Builder) Join(q Querier) *Builder {
	if w, ok := q.(writer); ok {
		w.writeTo(b)
		return b
	}
	query, args := q.Query()
	return b.writeExpr(query, args)
}

// JoinComma joins a list of Queriers and adds comma between them.
func (b *Builder) JoinComma(qs ...Querier) *Builder {
	for i := range qs {
		if i > 0 {
			b.Comma()
		}
		b.Join(qs[i])
	}
	return b
}

// Wrap gets a callback, and wraps its result with parentheses.
func (b *Builder) Wrap(f func(*Builder)) *Builder {
	b.WriteByte('(')
	f(b)
	return b.WriteByte(')')
}

// Operand writes the left-hand side of an expression: strings are
// identifiers, sub-selects are parenthesized and other values are bound.
func (b *Builder) Operand(v any) *Builder {
	switch v := v.(type) {
	case string:
		return b.Ident(v)
	case *Selector:
		return b.Wrap(func(b *Builder) { b.Join(v) })
	case Querier:
		return b.Join(v)
	default:
		return b.Arg(v)
	}
}

// Value writes the right-hand side of an expression: sub-selects are
// parenthesized, queriers are joined and everything else is bound.
func (b *Builder) Value(v any) *Builder {
	switch v := v.(type) {
	case *Selector:
		return b.Wrap(func(b *Builder) { b.Join(v) })
	case Querier:
		return b.Join(v)
	default:
		return b.Arg(v)
	}
}

// writeExpr writes a raw expression replacing each '?' outside of string
// literals with a dialect placeholder for the matching argument.
func (b *Builder) writeExpr(expr string, args []any) *Builder {
	var (
		n       int
		inQuote bool
		start   int
	)
	for i := 0; i < len(expr); i++ {
		switch c := expr[i]; {
		case c == '\'':
			inQuote = !inQuote
		case c == '?' && !inQuote:
			b.WriteString(expr[start:i])
			if n < len(args) {
				b.Value(args[n])
			} else {
				b.AddError(fmt.Errorf("sql: missing argument %d for expression %q", n+1, expr))
			}
			n++
			start = i + 1
		}
	}
	b.WriteString(expr[start:])
	if n < len(args) {
		b.AddError(fmt.Errorf("sql: %d arguments for %d placeholders in %q", len(args), n, expr))
	}
	return b
}

// Build renders a querier for the given dialect.
func Build(d string, q Querier) (string, []any, error) {
	b := NewBuilder(d)
	b.Join(q)
	query, args := b.Query()
	return query, args, b.Err()
}

// Fragment is an SQL expression rendered into the builder it is joined to.
type Fragment func(*Builder)

func (f Fragment) writeTo(b *Builder) { f(b) }

// Query implements the Querier interface using generic placeholders.
func (f Fragment) Query() (string, []any) {
	b := NewBuilder("")
	f(b)
	return b.Query()
}

// Expr returns an SQL expression with '?' placeholders for its arguments.
//
//	sql.Expr("COALESCE(?, 0)", sel.C("price"))
func Expr(expr string, args ...any) Fragment {
	return func(b *Builder) { b.writeExpr(expr, args) }
}

// Raw returns a raw SQL expression.
func Raw(s string) Fragment {
	return func(b *Builder) { b.WriteString(s) }
}

// Param returns a bound parameter.
func Param(v any) Fragment {
	return func(b *Builder) { b.Arg(v) }
}

// Null is the NULL literal.
var Null = Raw("NULL")

// Col returns a quoted, dot-separated column reference.
//
//	sql.Col("t1", "price") // "t1"."price"
func Col(parts ...string) Fragment {
	return func(b *Builder) {
		for i, p := range parts {
			if i > 0 {
				b.WriteByte('.')
			}
			b.Ident(p)
		}
	}
}

// Func returns a function call expression. Arguments follow the Operand rules.
//
//	sql.Func("COALESCE", t.C("name"), sql.Param(""))
func Func(name string, args ...any) Fragment {
	return func(b *Builder) {
		b.WriteString(name).WriteByte('(')
		for i, a := range args {
			if i > 0 {
				b.Comma()
			}
			b.Operand(a)
		}
		b.WriteByte(')')
	}
}

// Paren wraps an expression with parentheses.
func Paren(q Querier) Fragment {
	return func(b *Builder) { b.Wrap(func(b *Builder) { b.Join(q) }) }
}

// Predicate is a where predicate.
type Predicate struct {
	op  string // AND, OR for compound predicates
	fns []func(*Builder)
}

// P creates a new predicate.
//
//	P(func(b *Builder) { b.Ident("name").WriteString(" = ").Arg("a8m") })
func P(fns ...func(*Builder)) *Predicate {
	return &Predicate{fns: fns}
}

// Append appends a new function to the predicate callbacks.
func (p *Predicate) Append(f func(*Builder)) *Predicate {
	p.fns = append(p.fns, f)
	return p
}

func (p *Predicate) writeTo(b *Builder) {
	for _, f := range p.fns {
		f(b)
	}
}

// Query returns the query representation of the predicate using generic placeholders.
func (p *Predicate) Query() (string, []any) {
	b := NewBuilder("")
	p.writeTo(b)
	return b.Query()
}

func binary(col any, op string, v any) *Predicate {
	return P(func(b *Builder) {
		b.Operand(col).WriteString(" " + op + " ").Value(v)
	})
}

// EQ returns a "=" predicate.
func EQ(col, v any) *Predicate { return binary(col, "=", v) }

// NEQ returns a "<>" predicate.
func NEQ(col, v any) *Predicate { return binary(col, "<>", v) }

// GT returns a ">" predicate.
func GT(col, v any) *Predicate { return binary(col, ">", v) }

// GTE returns a ">=" predicate.
func GTE(col, v any) *Predicate { return binary(col, ">=", v) }

// LT returns a "<" predicate.
func LT(col, v any) *Predicate { return binary(col, "<", v) }

// LTE returns a "<=" predicate.
func LTE(col, v any) *Predicate { return binary(col, "<=", v) }

// ColumnsEQ returns a "=" predicate between two operands.
func ColumnsEQ(c1, c2 any) *Predicate {
	return P(func(b *Builder) {
		b.Operand(c1).WriteString(" = ").Operand(c2)
	})
}

// IsNull returns an "IS NULL" predicate.
func IsNull(col any) *Predicate {
	return P(func(b *Builder) { b.Operand(col).WriteString(" IS NULL") })
}

// NotNull returns an "IS NOT NULL" predicate.
func NotNull(col any) *Predicate {
	return P(func(b *Builder) { b.Operand(col).WriteString(" IS NOT NULL") })
}

// Like returns a case-insensitive pattern match predicate. Postgres and
// Snowflake use ILIKE; the other dialects match case-insensitively by default.
func Like(col any, pattern string) *Predicate {
	return P(func(b *Builder) {
		b.Operand(col).WriteString(" " + likeOp(b.dialect) + " ").Arg(pattern)
	})
}

// NotLike returns the negation of Like.
func NotLike(col any, pattern string) *Predicate {
	return P(func(b *Builder) {
		b.Operand(col).WriteString(" NOT " + likeOp(b.dialect) + " ").Arg(pattern)
	})
}

func likeOp(d string) string {
	if d == dialect.Postgres || d == dialect.Snowflake {
		return "ILIKE"
	}
	return "LIKE"
}

// In returns an "IN" predicate. An empty list never matches.
func In(col any, args ...any) *Predicate {
	if len(args) == 0 {
		return False()
	}
	return P(func(b *Builder) {
		b.Operand(col).WriteString(" IN ")
		inList(b, args)
	})
}

// NotIn returns a "NOT IN" predicate. An empty list always matches.
func NotIn(col any, args ...any) *Predicate {
	if len(args) == 0 {
		return True()
	}
	return P(func(b *Builder) {
		b.Operand(col).WriteString(" NOT IN ")
		inList(b, args)
	})
}

func inList(b *Builder, args []any) {
	if len(args) == 1 {
		if s, ok := args[0].(*Selector); ok {
			b.Value(s)
			return
		}
	}
	b.Wrap(func(b *Builder) {
		for i, a := range args {
			if i > 0 {
				b.Comma()
			}
			b.Value(a)
		}
	})
}

// Between returns a "BETWEEN" predicate.
func Between(col, lo, hi any) *Predicate {
	return P(func(b *Builder) {
		b.Operand(col).WriteString(" BETWEEN ").Value(lo).WriteString(" AND ").Value(hi)
	})
}

// Exists returns an "EXISTS" predicate.
func Exists(q Querier) *Predicate {
	return P(func(b *Builder) {
		b.WriteString("EXISTS ").Wrap(func(b *Builder) { b.Join(q) })
	})
}

// NotExists returns a "NOT EXISTS" predicate.
func NotExists(q Querier) *Predicate {
	return P(func(b *Builder) {
		b.WriteString("NOT EXISTS ").Wrap(func(b *Builder) { b.Join(q) })
	})
}

// ExprP creates a new predicate from the given expression.
//
//	ExprP("A = ? AND B > ?", args...)
func ExprP(expr string, args ...any) *Predicate {
	return P(func(b *Builder) { b.writeExpr(expr, args) })
}

// BoolP returns a predicate that holds when the boolean expression is true.
func BoolP(q Querier) *Predicate {
	return P(func(b *Builder) {
		switch b.dialect {
		case dialect.MSSQL:
			b.Join(q).WriteString(" = 1")
		default:
			b.Join(q)
		}
	})
}

// True returns a predicate that always holds.
func True() *Predicate { return ExprP("1 = 1") }

// False returns a predicate that never holds.
func False() *Predicate { return ExprP("1 = 0") }

// And combines all given predicates with AND between them.
// Nil predicates are skipped; nil is returned when none remain.
func And(preds ...*Predicate) *Predicate { return compound("AND", preds) }

// Or combines all given predicates with OR between them.
func Or(preds ...*Predicate) *Predicate { return compound("OR", preds) }

func compound(op string, preds []*Predicate) *Predicate {
	ps := make([]*Predicate, 0, len(preds))
	for _, p := range preds {
		if p != nil {
			ps = append(ps, p)
		}
	}
	switch len(ps) {
	case 0:
		return nil
	case 1:
		return ps[0]
	}
	return &Predicate{op: op, fns: []func(*Builder){func(b *Builder) {
		for i, p := range ps {
			if i > 0 {
				b.WriteString(" " + op + " ")
			}
			if p.op != "" && p.op != op {
				b.Wrap(p.writeTo)
			} else {
				p.writeTo(b)
			}
		}
	}}}
}

// Not wraps the given predicate with the not predicate.
func Not(p *Predicate) *Predicate {
	if p == nil {
		return nil
	}
	return P(func(b *Builder) {
		b.WriteString("NOT ").Wrap(p.writeTo)
	})
}

// TableView is a view that can be used as a table in a FROM or JOIN clause.
type TableView interface {
	writer
	view()
}

// SelectTable is a table reference with an optional alias.
type SelectTable struct {
	name   string
	schema string
	as     string
}

// Table returns a new table selector.
//
//	t1 := Table("users").As("u")
//	return Dialect(dialect.Postgres).Select(t1.C("name")).From(t1)
func Table(name string) *SelectTable {
	return &SelectTable{name: name}
}

// Schema sets the schema name of the table.
func (s *SelectTable) Schema(name string) *SelectTable {
	s.schema = name
	return s
}

// As adds the AS clause to the table selector.
func (s *SelectTable) As(alias string) *SelectTable {
	s.as = alias
	return s
}

// Name returns the table name.
func (s *SelectTable) Name() string { return s.name }

// Alias returns the alias of the table, or its name if it has none.
func (s *SelectTable) Alias() string {
	if s.as != "" {
		return s.as
	}
	return s.name
}

// C returns a reference to the column qualified by the table alias.
func (s *SelectTable) C(column string) Fragment {
	return Col(s.Alias(), column)
}

func (s *SelectTable) view() {}

func (s *SelectTable) writeTo(b *Builder) {
	if s.schema != "" {
		b.Ident(s.schema).WriteByte('.')
	}
	b.Ident(s.name)
	if s.as != "" {
		b.WriteString(" AS ").Ident(s.as)
	}
}

// ValuesTable is an inline table of literal rows. Its rendering is
// provided by the dialect client that created it.
type ValuesTable struct {
	Rows    [][]any
	Columns []string
	as      string
	render  func(*Builder, *ValuesTable)
}

// As sets the alias of the values table.
func (v *ValuesTable) As(alias string) *ValuesTable {
	v.as = alias
	return v
}

// Alias returns the alias of the values table.
func (v *ValuesTable) Alias() string { return v.as }

// C returns a reference to a column of the values table.
func (v *ValuesTable) C(column string) Fragment {
	return Col(v.as, column)
}

// Query renders the values table using generic placeholders.
func (v *ValuesTable) Query() (string, []any) {
	b := NewBuilder("")
	v.writeTo(b)
	return b.Query()
}

func (v *ValuesTable) view() {}

func (v *ValuesTable) writeTo(b *Builder) {
	if v.render != nil {
		v.render(b, v)
		return
	}
	writeValues(b, v, false)
}

type (
	selection struct {
		expr any
		as   string
	}
	join struct {
		kind  string
		table TableView
		on    *Predicate
	}
	order struct {
		expr any
		desc bool
	}
)

// Selector is a builder for the `SELECT` statement.
type Selector struct {
	dialect  string
	as       string
	distinct bool
	columns  []selection
	from     TableView
	joins    []join
	where    *Predicate
	group    []any
	having   *Predicate
	order    []order
	limit    *int
	offset   *int
	errs     []error
}

// DialectBuilder prefixes all root builders with the Dialect method.
type DialectBuilder struct {
	dialect string
}

// Dialect creates a new DialectBuilder with the given dialect name.
func Dialect(name string) *DialectBuilder {
	return &DialectBuilder{dialect: name}
}

// Select creates a Selector for the configured dialect.
//
//	Dialect(dialect.Postgres).
//		Select().From(Table("users"))
func (d *DialectBuilder) Select(columns ...any) *Selector {
	return (&Selector{dialect: d.dialect}).Select(columns...)
}

// Dialect returns the dialect of the selector.
func (s *Selector) Dialect() string { return s.dialect }

// Select changes the columns selection of the SELECT statement.
// Columns are strings (identifiers) or queriers.
func (s *Selector) Select(columns ...any) *Selector {
	s.columns = s.columns[:0]
	return s.AppendSelect(columns...)
}

// AppendSelect appends additional columns to the SELECT statement.
func (s *Selector) AppendSelect(columns ...any) *Selector {
	for _, c := range columns {
		s.columns = append(s.columns, selection{expr: c})
	}
	return s
}

// AppendSelectAs appends an expression with an alias to the SELECT statement.
func (s *Selector) AppendSelectAs(expr any, as string) *Selector {
	s.columns = append(s.columns, selection{expr: expr, as: as})
	return s
}

// SelectedColumns returns the aliases (or the identifiers) of the selected columns.
func (s *Selector) SelectedColumns() []string {
	names := make([]string, 0, len(s.columns))
	for _, c := range s.columns {
		switch {
		case c.as != "":
			names = append(names, c.as)
		default:
			if n, ok := c.expr.(string); ok {
				names = append(names, n)
			}
		}
	}
	return names
}

// Distinct adds the DISTINCT keyword to the SELECT statement.
func (s *Selector) Distinct() *Selector {
	s.distinct = true
	return s
}

// From sets the source of `FROM` clause.
func (s *Selector) From(t TableView) *Selector {
	s.from = t
	return s
}

// Table returns the table of the FROM clause, if it is a plain table.
func (s *Selector) Table() *SelectTable {
	t, _ := s.from.(*SelectTable)
	return t
}

// Join appends an `INNER JOIN` clause to the statement.
func (s *Selector) Join(t TableView) *Selector { return s.join("JOIN", t) }

// LeftJoin appends a `LEFT JOIN` clause to the statement.
func (s *Selector) LeftJoin(t TableView) *Selector { return s.join("LEFT JOIN", t) }

func (s *Selector) join(kind string, t TableView) *Selector {
	s.joins = append(s.joins, join{kind: kind, table: t})
	return s
}

// On sets the `ON` clause of the last `JOIN` operation.
func (s *Selector) On(c1, c2 any) *Selector {
	return s.OnP(ColumnsEQ(c1, c2))
}

// OnP sets or extends the `ON` predicate of the last `JOIN` operation.
func (s *Selector) OnP(p *Predicate) *Selector {
	if len(s.joins) == 0 {
		s.AddError(errors.New("sql: ON clause without a JOIN"))
		return s
	}
	j := &s.joins[len(s.joins)-1]
	j.on = And(j.on, p)
	return s
}

// Where sets or appends the given predicate to the statement.
func (s *Selector) Where(p *Predicate) *Selector {
	s.where = And(s.where, p)
	return s
}

// P returns the predicate of the statement.
func (s *Selector) P() *Predicate { return s.where }

// GroupBy sets the `GROUP BY` clause of the `SELECT` statement.
func (s *Selector) GroupBy(columns ...any) *Selector {
	s.group = append(s.group, columns...)
	return s
}

// Having sets the HAVING clause of the statement.
func (s *Selector) Having(p *Predicate) *Selector {
	s.having = And(s.having, p)
	return s
}

// OrderBy appends ascending terms to the `ORDER BY` clause.
func (s *Selector) OrderBy(columns ...any) *Selector {
	for _, c := range columns {
		s.order = append(s.order, order{expr: c})
	}
	return s
}

// OrderExpr appends a single term to the `ORDER BY` clause.
func (s *Selector) OrderExpr(expr any, desc bool) *Selector {
	s.order = append(s.order, order{expr: expr, desc: desc})
	return s
}

// Limit adds the `LIMIT` clause to the `SELECT` statement.
func (s *Selector) Limit(limit int) *Selector {
	s.limit = &limit
	return s
}

// Offset adds the `OFFSET` clause to the `SELECT` statement.
func (s *Selector) Offset(offset int) *Selector {
	s.offset = &offset
	return s
}

// As gives this selection an alias, used when it appears in a FROM clause.
func (s *Selector) As(alias string) *Selector {
	s.as = alias
	return s
}

// Alias returns the alias of the selector.
func (s *Selector) Alias() string { return s.as }

// C returns a reference to a column of this selection, qualified by its
// alias or by the table of its FROM clause.
func (s *Selector) C(column string) Fragment {
	if s.as != "" {
		return Col(s.as, column)
	}
	switch t := s.from.(type) {
	case *SelectTable:
		return t.C(column)
	case *ValuesTable:
		return t.C(column)
	}
	return Col(column)
}

// AddError appends an error to the selector errors.
func (s *Selector) AddError(err error) *Selector {
	if err != nil {
		s.errs = append(s.errs, err)
	}
	return s
}

// Err returns the errors collected by the selector.
func (s *Selector) Err() error {
	return errors.Join(s.errs...)
}

// Clone returns a shallow copy of the selector with independent clauses.
func (s *Selector) Clone() *Selector {
	c := *s
	c.columns = append([]selection(nil), s.columns...)
	c.joins = append([]join(nil), s.joins...)
	c.group = append([]any(nil), s.group...)
	c.order = append([]order(nil), s.order...)
	c.errs = append([]error(nil), s.errs...)
	return &c
}

// CountSelector returns a selector counting the rows of this selection,
// ignoring its ordering and pagination.
func (s *Selector) CountSelector() *Selector {
	c := s.Clone()
	c.order, c.limit, c.offset = nil, nil, nil
	if c.distinct || len(c.group) > 0 {
		return (&Selector{dialect: s.dialect}).
			Select(Raw("COUNT(*)")).
			From(c.As("count_rows"))
	}
	return c.Select(Raw("COUNT(*)"))
}

func (s *Selector) view() {}

// Query returns query representation of a `SELECT` statement.
func (s *Selector) Query() (string, []any) {
	b := NewBuilder(s.dialect)
	s.writeTo(b)
	return b.Query()
}

func (s *Selector) writeTo(b *Builder) {
	b.AddError(s.Err())
	b.WriteString("SELECT ")
	if s.distinct {
		b.WriteString("DISTINCT ")
	}
	if len(s.columns) == 0 {
		b.WriteByte('*')
	}
	for i, c := range s.columns {
		if i > 0 {
			b.Comma()
		}
		b.Operand(c.expr)
		if c.as != "" {
			b.WriteString(" AS ").Ident(c.as)
		}
	}
	if s.from != nil {
		b.WriteString(" FROM ")
		writeView(b, s.from)
	}
	for _, j := range s.joins {
		b.WriteString(" " + j.kind + " ")
		writeView(b, j.table)
		if j.on != nil {
			b.WriteString(" ON ")
			j.on.writeTo(b)
		}
	}
	if s.where != nil {
		b.WriteString(" WHERE ")
		s.where.writeTo(b)
	}
	if len(s.group) > 0 {
		b.WriteString(" GROUP BY ")
		for i, g := range s.group {
			if i > 0 {
				b.Comma()
			}
			b.Operand(g)
		}
	}
	if s.having != nil {
		b.WriteString(" HAVING ")
		s.having.writeTo(b)
	}
	s.writeOrder(b)
	s.writePage(b)
}

func writeView(b *Builder, t TableView) {
	if sel, ok := t.(*Selector); ok {
		b.Wrap(sel.writeTo)
		if sel.as != "" {
			b.WriteString(" AS ").Ident(sel.as)
		}
		return
	}
	t.writeTo(b)
}

func (s *Selector) writeOrder(b *Builder) {
	if len(s.order) == 0 {
		// OFFSET ... FETCH requires an ORDER BY clause.
		if b.dialect == dialect.MSSQL && (s.limit != nil || s.offset != nil) {
			b.WriteString(" ORDER BY (SELECT NULL)")
		}
		return
	}
	b.WriteString(" ORDER BY ")
	for i, o := range s.order {
		if i > 0 {
			b.Comma()
		}
		b.Operand(o.expr)
		if o.desc {
			b.WriteString(" DESC")
		}
	}
}

func (s *Selector) writePage(b *Builder) {
	if s.limit == nil && s.offset == nil {
		return
	}
	if b.dialect == dialect.MSSQL {
		b.WriteString(" OFFSET ")
		if s.offset != nil {
			b.Arg(*s.offset)
		} else {
			b.Arg(0)
		}
		b.WriteString(" ROWS")
		if s.limit != nil {
			b.WriteString(" FETCH NEXT ").Arg(*s.limit).WriteString(" ROWS ONLY")
		}
		return
	}
	switch {
	case s.limit != nil:
		b.WriteString(" LIMIT ").Arg(*s.limit)
	case b.dialect == dialect.MySQL:
		b.WriteString(" LIMIT 18446744073709551615")
	case b.dialect == dialect.SQLite:
		b.WriteString(" LIMIT -1")
	}
	if s.offset != nil {
		b.WriteString(" OFFSET ").Arg(*s.offset)
	}
}
