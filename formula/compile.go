package formula

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect"
	"github.com/syssam/tabula/dialect/sql"
	"github.com/syssam/tabula/dialect/sql/sqlgraph"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
)

// Compiled is a compiled formula.
type Compiled struct {
	// SQL is the expression computing the formula, or nil when the formula
	// is evaluated on the host.
	SQL sql.Querier
	// Host evaluates the formula over a row read from the database. It is
	// set when some function of the formula has no SQL form in the dialect.
	Host *Program
	// Type is the result type of the formula.
	Type Type
	// Deps are the columns Host reads, keyed by column id in its row.
	Deps []*schema.Column
	// Errors holds the soft errors of the formula, such as references to
	// deleted columns. The formula still compiles, with NULL in their place.
	Errors []error
}

// Compiler compiles formulas into SQL expressions. A Compiler is safe for
// concurrent use.
type Compiler struct {
	cache *Cache
}

// NewCompiler returns a compiler parsing through the given cache. A nil
// cache parses every formula.
func NewCompiler(cache *Cache) *Compiler {
	return &Compiler{cache: cache}
}

func (c *Compiler) parse(text string) (Node, error) {
	if c.cache == nil {
		return Parse(text)
	}
	return c.cache.Parse(text)
}

// Expression returns the formula text of a formula or formula button column.
func Expression(col *schema.Column) (string, bool) {
	switch o := col.Options.(type) {
	case *schema.FormulaOptions:
		return o.Expression, o != nil
	case *schema.ButtonOptions:
		return o.Formula, o != nil && o.Formula != ""
	}
	return "", false
}

// Compile compiles the formula of a column of t. Soft errors are returned
// in Compiled.Errors and recorded on the scope.
func (c *Compiler) Compile(ctx context.Context, s *sqlgraph.Scope, t *sqlgraph.Table, col *schema.Column) (*Compiled, error) {
	text, ok := Expression(col)
	if !ok {
		return nil, tabula.NewValidationError(col.ID, fmt.Errorf("column is not a formula"))
	}
	return c.compile(ctx, s, t, col, text)
}

// CompileText compiles a formula over the columns of t that is not stored
// on any column.
func (c *Compiler) CompileText(ctx context.Context, s *sqlgraph.Scope, t *sqlgraph.Table, text string) (*Compiled, error) {
	return c.compile(ctx, s, t, nil, text)
}

func (c *Compiler) compile(ctx context.Context, s *sqlgraph.Scope, t *sqlgraph.Table, col *schema.Column, text string) (*Compiled, error) {
	leave, err := s.Enter()
	if err != nil {
		return nil, err
	}
	defer leave()
	root, err := c.parse(text)
	if err != nil {
		return nil, withColumn(err, col)
	}
	e := &emitter{
		ctx:   ctx,
		c:     c,
		s:     s,
		t:     t,
		col:   col,
		d:     s.Dialect(),
		cl:    s.Client,
		index: make(map[string]bool),
	}
	host, err := c.hostOnly(t.Model, root, e.d, 0)
	if err != nil {
		return nil, withColumn(err, col)
	}
	compiled := &Compiled{Type: c.TypeOf(t.Model, root)}
	if host {
		prog, err := e.program(root, t.Model, 0)
		if err != nil {
			return nil, withColumn(err, col)
		}
		compiled.Host, compiled.Deps = prog, e.deps
	} else {
		v, err := e.emit(root)
		if err != nil {
			return nil, withColumn(err, col)
		}
		compiled.SQL = e.scalar(v)
	}
	compiled.Errors = e.errs
	for _, err := range e.errs {
		s.AddFormulaError(err)
	}
	return compiled, nil
}

// withColumn attaches the formula column to validation errors raised
// while compiling it.
func withColumn(err error, col *schema.Column) error {
	if ve, ok := err.(*tabula.ValidationError); ok && ve.Column == "" && col != nil {
		cp := *ve
		cp.Column = col.ID
		return &cp
	}
	return err
}

// TypeOf returns the result type of a formula over the columns of m.
func (c *Compiler) TypeOf(m *schema.Model, n Node) Type {
	return c.typeOf(m, n, 0)
}

func (c *Compiler) typeOf(m *schema.Model, n Node, depth int) Type {
	return inferType(n, func(name string) Type {
		ref := resolveColumn(m, name)
		if ref == nil {
			return TypeUnknown
		}
		if text, ok := Expression(ref); ok && depth < sqlgraph.MaxDepth {
			if sub, err := c.parse(text); err == nil {
				return c.typeOf(m, sub, depth+1)
			}
		}
		return ColumnType(ref)
	})
}

// hostOnly reports if the formula uses a function without an SQL form in
// the dialect, directly or through a referenced formula column. Functions
// with neither an SQL form nor a host implementation fail the compile.
func (c *Compiler) hostOnly(m *schema.Model, root Node, d string, depth int) (bool, error) {
	var (
		host bool
		err  error
	)
	Walk(root, func(n Node) bool {
		if err != nil {
			return false
		}
		switch n := n.(type) {
		case *Call:
			fn, ok := functions[strings.ToUpper(n.Callee)]
			switch {
			case !ok:
				err = &SyntaxError{Pos: n.Pos(), Msg: fmt.Sprintf("unknown function %s", n.Callee)}
				err = tabula.NewValidationError("", err)
			case !fn.nativeIn(d) && fn.host == nil:
				err = tabula.NewUnsupportedError(strings.ToUpper(n.Callee), d)
			case !fn.nativeIn(d):
				host = true
			}
		case *Identifier:
			ref := resolveColumn(m, n.Name)
			if ref == nil || depth >= sqlgraph.MaxDepth {
				return true
			}
			if text, ok := Expression(ref); ok {
				sub, perr := c.parse(text)
				if perr != nil {
					return true
				}
				h, herr := c.hostOnly(m, sub, d, depth+1)
				if herr != nil {
					err = herr
				}
				host = host || h
			}
		case *Member, *Array, *Compound:
			err = tabula.NewValidationError("", &SyntaxError{Pos: n.Pos(), Msg: "unsupported expression"})
		}
		return true
	})
	return host, err
}

// resolveColumn resolves an identifier by column id, then by title.
func resolveColumn(m *schema.Model, name string) *schema.Column {
	if c, ok := m.Column(name); ok {
		return c
	}
	if c, ok := m.ColumnByTitle(name); ok {
		return c
	}
	return nil
}

// value is a compiled sub-expression: an SQL scalar, or a condition for
// booleans computed by comparisons and logical operators.
type value struct {
	q    sql.Querier
	cond *sql.Predicate
	typ  Type
	// col is set for column references, lit for literals.
	col *schema.Column
	lit *Literal
}

// emitter compiles one formula.
type emitter struct {
	ctx  context.Context
	c    *Compiler
	s    *sqlgraph.Scope
	t    *sqlgraph.Table
	col  *schema.Column
	d    string
	cl   sql.Client
	errs []error
	// deps collects the columns read by host programs.
	deps  []*schema.Column
	index map[string]bool
}

func (e *emitter) ownerID() string {
	if e.col == nil {
		return ""
	}
	return e.col.ID
}

func (e *emitter) soft(err error) {
	e.errs = append(e.errs, err)
}

func (e *emitter) errorf(n Node, format string, args ...any) error {
	return tabula.NewValidationError(e.ownerID(), &SyntaxError{Pos: n.Pos(), Msg: fmt.Sprintf(format, args...)})
}

func (e *emitter) emit(n Node) (*value, error) {
	switch n := n.(type) {
	case *Literal:
		return e.literal(n), nil
	case *Identifier:
		return e.ident(n)
	case *Unary:
		return e.unary(n)
	case *Binary:
		return e.binary(n)
	case *Conditional:
		test, err := e.emit(n.Test)
		if err != nil {
			return nil, err
		}
		then, err := e.emit(n.Then)
		if err != nil {
			return nil, err
		}
		els, err := e.emit(n.Else)
		if err != nil {
			return nil, err
		}
		return e.caseWhen(test, then, els), nil
	case *Call:
		return e.call(n)
	}
	return nil, e.errorf(n, "unsupported expression")
}

func (e *emitter) literal(l *Literal) *value {
	switch v := l.Value.(type) {
	case int64:
		return &value{q: sql.Raw(strconv.FormatInt(v, 10)), typ: TypeInteger, lit: l}
	case float64:
		return &value{q: sql.Raw(strconv.FormatFloat(v, 'f', -1, 64)), typ: TypeNumber, lit: l}
	case string:
		return &value{q: sql.Param(v), typ: TypeString, lit: l}
	case bool:
		return &value{q: e.boolLit(v), typ: TypeBoolean, lit: l}
	}
	return &value{q: sql.Null, lit: l}
}

func (e *emitter) boolLit(v bool) sql.Querier {
	switch {
	case e.d == dialect.MSSQL && v:
		return sql.Raw("1")
	case e.d == dialect.MSSQL:
		return sql.Raw("0")
	case v:
		return sql.Raw("TRUE")
	}
	return sql.Raw("FALSE")
}

func (e *emitter) null() *value { return &value{q: sql.Null} }

// ident compiles a column reference. References to deleted columns are
// soft errors and compile to NULL.
func (e *emitter) ident(n *Identifier) (*value, error) {
	ref := resolveColumn(e.t.Model, n.Name)
	if ref == nil {
		e.soft(tabula.NewDeletedColumnError(e.ownerID(), n.Name))
		return e.null(), nil
	}
	if e.col != nil && ref.ID == e.col.ID {
		e.soft(tabula.NewFormulaError(e.ownerID(), "formula references itself"))
		return e.null(), nil
	}
	q, err := e.s.Expr(e.ctx, e.t, ref)
	switch {
	case tabula.IsFormulaError(err):
		e.soft(err)
		return e.null(), nil
	case err != nil:
		return nil, err
	}
	typ := ColumnType(ref)
	if text, ok := Expression(ref); ok {
		if sub, err := e.c.parse(text); err == nil {
			typ = e.c.typeOf(e.t.Model, sub, 1)
		}
	}
	return &value{q: q, typ: typ, col: ref}, nil
}

func (e *emitter) unary(n *Unary) (*value, error) {
	x, err := e.emit(n.X)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "!":
		return &value{cond: sql.Not(e.condition(x)), typ: TypeBoolean}, nil
	case "-":
		typ := TypeNumber
		if x.typ == TypeInteger {
			typ = TypeInteger
		}
		return &value{q: sql.Expr("(-?)", e.num(x)), typ: typ}, nil
	}
	return &value{q: e.num(x), typ: x.typ}, nil
}

var comparisons = map[string]string{
	"==": "=", "=": "=", "!=": "<>", "<": "<", ">": ">", "<=": "<=", ">=": ">=",
}

func (e *emitter) binary(n *Binary) (*value, error) {
	if n.Op == "&" {
		return e.concat(flattenConcat(n, nil))
	}
	l, err := e.emit(n.Left)
	if err != nil {
		return nil, err
	}
	r, err := e.emit(n.Right)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "&&":
		return &value{cond: sql.And(e.condition(l), e.condition(r)), typ: TypeBoolean}, nil
	case "||":
		return &value{cond: sql.Or(e.condition(l), e.condition(r)), typ: TypeBoolean}, nil
	case "+", "-", "*":
		return &value{q: sql.Expr("(? "+n.Op+" ?)", e.num(l), e.num(r)), typ: arith(l.typ, r.typ)}, nil
	case "/":
		return e.divide(l, r), nil
	case "%":
		return e.mod(l, r), nil
	}
	op, ok := comparisons[n.Op]
	if !ok {
		return nil, e.errorf(n, "unknown operator %q", n.Op)
	}
	// Comparing with an empty string tests for blank.
	switch {
	case isEmptyString(r) && (op == "=" || op == "<>"):
		return e.blank(l, op == "<>"), nil
	case isEmptyString(l) && (op == "=" || op == "<>"):
		return e.blank(r, op == "<>"), nil
	}
	lq, rq := e.scalar(l), e.scalar(r)
	p := sql.P(func(b *sql.Builder) {
		b.Operand(lq).WriteString(" " + op + " ").Value(rq)
	})
	return &value{cond: p, typ: TypeBoolean}, nil
}

func flattenConcat(n Node, list []Node) []Node {
	if b, ok := n.(*Binary); ok && b.Op == "&" {
		list = flattenConcat(b.Left, list)
		return flattenConcat(b.Right, list)
	}
	return append(list, n)
}

func isEmptyString(v *value) bool {
	if v.lit == nil {
		return false
	}
	s, ok := v.lit.Value.(string)
	return ok && s == ""
}

// divide casts the dividend to a float and divides by NULLIF(divisor, 0),
// so a zero divisor yields NULL instead of failing the statement.
func (e *emitter) divide(l, r *value) *value {
	q := sql.Expr("(? / NULLIF(?, 0))", e.cl.SimpleCast(e.num(l), sql.TypeFloat), e.num(r))
	return &value{q: q, typ: TypeNumber}
}

func (e *emitter) mod(l, r *value) *value {
	var q sql.Querier
	switch e.d {
	case dialect.SQLite, dialect.MSSQL:
		q = sql.Expr("(? % NULLIF(?, 0))", e.num(l), e.num(r))
	default:
		q = sql.Func("MOD", e.num(l), sql.Func("NULLIF", e.num(r), sql.Raw("0")))
	}
	return &value{q: q, typ: arith(l.typ, r.typ)}
}

// blank tests for NULL, and for the empty string on text values.
func (e *emitter) blank(v *value, negate bool) *value {
	x := e.scalar(v)
	var p *sql.Predicate
	switch v.typ {
	case TypeString:
		p = sql.ExprP("(? IS NULL OR ? = '')", x, x)
	case TypeUnknown:
		p = sql.ExprP("(? IS NULL OR ? = '')", x, e.cl.SimpleCast(x, sql.TypeText))
	default:
		p = sql.IsNull(x)
	}
	if negate {
		p = sql.Not(p)
	}
	return &value{cond: p, typ: TypeBoolean}
}

func (e *emitter) concat(nodes []Node) (*value, error) {
	args, err := e.emitAll(nodes)
	if err != nil {
		return nil, err
	}
	return e.concatValues(args), nil
}

// concatValues joins values as text. Date columns are rendered in their
// display format first.
func (e *emitter) concatValues(args []*value) *value {
	fields := make([]sql.Querier, len(args))
	for i, a := range args {
		fields[i] = e.concatArg(a)
	}
	return &value{q: e.cl.Concat(fields...), typ: TypeString}
}

func (e *emitter) concatArg(v *value) sql.Querier {
	if v.col != nil && v.col.Type.Temporal() {
		return e.dateFormat(e.scalar(v), displayFormat(v.col))
	}
	return e.str(v)
}

func (e *emitter) emitAll(nodes []Node) ([]*value, error) {
	vs := make([]*value, len(nodes))
	for i, n := range nodes {
		v, err := e.emit(n)
		if err != nil {
			return nil, err
		}
		vs[i] = v
	}
	return vs, nil
}

func (e *emitter) call(n *Call) (*value, error) {
	name := strings.ToUpper(n.Callee)
	fn, ok := functions[name]
	if !ok {
		return nil, e.errorf(n, "unknown function %s", n.Callee)
	}
	if err := fn.checkArity(len(n.Args)); err != nil {
		return nil, e.errorf(n, "%s: %v", name, err)
	}
	if !fn.nativeIn(e.d) {
		return nil, tabula.NewUnsupportedError(name, e.d)
	}
	args, err := e.emitAll(n.Args)
	if err != nil {
		return nil, err
	}
	v, err := fn.sql(e, args)
	if err != nil {
		return nil, withColumn(err, e.col)
	}
	if v.typ == TypeUnknown {
		types := make([]Type, len(args))
		for i, a := range args {
			types[i] = a.typ
		}
		v.typ = fn.result(types)
	}
	return v, nil
}

// scalar returns the value as an SQL expression. Conditions are
// parenthesized, or turned into 1/0 on dialects without boolean values.
func (e *emitter) scalar(v *value) sql.Querier {
	if v.cond == nil {
		return v.q
	}
	if e.d == dialect.MSSQL {
		return sql.Expr("CASE WHEN ? THEN 1 ELSE 0 END", v.cond)
	}
	return sql.ExprP("(?)", v.cond)
}

// condition returns the value as a predicate, testing other values for
// truthiness.
func (e *emitter) condition(v *value) *sql.Predicate {
	if v.cond != nil {
		return v.cond
	}
	switch v.typ {
	case TypeBoolean:
		return sql.BoolP(v.q)
	case TypeInteger, TypeNumber:
		return sql.NEQ(v.q, sql.Raw("0"))
	case TypeString:
		return sql.ExprP("(? IS NOT NULL AND ? <> '')", v.q, v.q)
	}
	return sql.NotNull(v.q)
}

// num returns the value as a number, casting other types to a float.
func (e *emitter) num(v *value) sql.Querier {
	switch {
	case v.typ.Numeric():
		return e.scalar(v)
	case v.lit != nil && v.lit.Value == nil:
		return v.q
	}
	return e.cl.SimpleCast(e.scalar(v), sql.TypeFloat)
}

// str returns the value as text. Postgres cannot infer the type of bound
// strings in variadic functions, so they are cast explicitly there.
func (e *emitter) str(v *value) sql.Querier {
	if v.lit != nil && v.typ == TypeString && e.d == dialect.Postgres {
		return e.cl.SimpleCast(v.q, sql.TypeText)
	}
	return e.scalar(v)
}

func (e *emitter) caseWhen(test, then, els *value) *value {
	typ := then.typ
	if typ == TypeUnknown {
		typ = els.typ
	}
	q := sql.Expr("CASE WHEN ? THEN ? ELSE ? END", e.condition(test), e.scalar(then), e.scalar(els))
	return &value{q: q, typ: typ}
}

// dateFormat renders a date in a display format such as YYYY-MM-DD.
func (e *emitter) dateFormat(x sql.Querier, format string) sql.Querier {
	f := convertDateFormat(format, e.d)
	switch e.d {
	case dialect.MySQL:
		return sql.Func("DATE_FORMAT", x, sql.Param(f))
	case dialect.SQLite:
		return sqliteDateFormat(x, format)
	case dialect.MSSQL:
		return sql.Func("FORMAT", x, sql.Param(f))
	}
	return sql.Func("TO_CHAR", x, sql.Param(f))
}

// sqliteDateFormat renders a display format with STRFTIME, which has no
// two-digit year: YY is cut from the four-digit year.
func sqliteDateFormat(x sql.Querier, format string) sql.Querier {
	var parts []any
	for rest := format; ; {
		i := twoDigitYear(rest)
		if i < 0 {
			if rest != "" || len(parts) == 0 {
				parts = append(parts, sql.Func("STRFTIME", sql.Param(convertDateFormat(rest, dialect.SQLite)), x))
			}
			break
		}
		if i > 0 {
			parts = append(parts, sql.Func("STRFTIME", sql.Param(convertDateFormat(rest[:i], dialect.SQLite)), x))
		}
		parts = append(parts, sql.Func("SUBSTR", sql.Func("STRFTIME", sql.Raw("'%Y'"), x), sql.Raw("3")))
		rest = rest[i+2:]
	}
	if len(parts) == 1 {
		return parts[0].(sql.Querier)
	}
	return sql.Expr("("+strings.TrimSuffix(strings.Repeat("? || ", len(parts)), " || ")+")", parts...)
}

// twoDigitYear returns the index of the first YY token of format that is
// not part of YYYY, or -1.
func twoDigitYear(format string) int {
	for i := 0; i < len(format); {
		switch {
		case strings.HasPrefix(format[i:], "YYYY"):
			i += 4
		case strings.HasPrefix(format[i:], "YY"):
			return i
		default:
			i++
		}
	}
	return -1
}

// displayFormat returns the display format of a date column.
func displayFormat(c *schema.Column) string {
	df := c.Meta.DateFormat
	if df == "" {
		df = "YYYY-MM-DD"
	}
	if c.Type == field.Date {
		return df
	}
	tf := c.Meta.TimeFormat
	if tf == "" {
		tf = "HH:mm"
	}
	return df + " " + tf
}

// dateTokens maps display format tokens to their dialect forms, in the
// order Postgres, MySQL, SQLite, MSSQL.
var dateTokens = []struct {
	token string
	forms [4]string
}{
	{"YYYY", [4]string{"YYYY", "%Y", "%Y", "yyyy"}},
	// SQLite formats are split on YY by sqliteDateFormat.
	{"YY", [4]string{"YY", "%y", "", "yy"}},
	{"MM", [4]string{"MM", "%m", "%m", "MM"}},
	{"DD", [4]string{"DD", "%d", "%d", "dd"}},
	{"HH", [4]string{"HH24", "%H", "%H", "HH"}},
	{"mm", [4]string{"MI", "%i", "%M", "mm"}},
	{"ss", [4]string{"SS", "%s", "%S", "ss"}},
}

func convertDateFormat(format, d string) string {
	var idx int
	switch d {
	case dialect.MySQL:
		idx = 1
	case dialect.SQLite:
		idx = 2
	case dialect.MSSQL:
		idx = 3
	}
	var sb strings.Builder
	for i := 0; i < len(format); {
		matched := false
		for _, t := range dateTokens {
			if strings.HasPrefix(format[i:], t.token) {
				sb.WriteString(t.forms[idx])
				i += len(t.token)
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		if format[i] == '%' && (idx == 1 || idx == 2) {
			sb.WriteByte('%')
		}
		sb.WriteByte(format[i])
		i++
	}
	return sb.String()
}
