package sqlgraph

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect/sql"
	"github.com/syssam/tabula/querylanguage"
	"github.com/syssam/tabula/schema"
)

// MaxDepth bounds the nesting of virtual columns resolved through relations,
// e.g. a lookup of a rollup of a formula.
const MaxDepth = 8

// Default remote fetch limits.
const (
	DefaultRemoteTimeout = 5 * time.Second
	DefaultRemoteMaxRows = 10000
)

// ColumnResolver renders the expression of a column of a table. It is
// implemented by the engine, which dispatches virtual columns to the
// formula compiler and the rollup generator.
type ColumnResolver interface {
	ColumnExpr(ctx context.Context, s *Scope, t *Table, c *schema.Column) (sql.Querier, error)
}

// Conditioner compiles a filter tree against a table.
type Conditioner interface {
	Condition(ctx context.Context, s *Scope, t *Table, n querylanguage.Node) (*sql.Predicate, error)
}

// RemoteProxy runs queries on sources that cannot be joined in the
// statement being compiled. Rows are returned in selection order.
type RemoteProxy interface {
	Fetch(ctx context.Context, src *schema.Source, query string, args []any) ([]string, [][]any, error)
}

// Scope holds the state of one statement compilation. A scope is not safe
// for concurrent use and is discarded once the statement is built.
type Scope struct {
	Registry *schema.Registry
	// Source is the source the statement runs on.
	Source *schema.Source
	Client sql.Client
	// Columns renders virtual columns. Without it only physical
	// columns can be referenced.
	Columns ColumnResolver
	// Conds compiles link filters. Without it link filters are ignored.
	Conds Conditioner
	Proxy RemoteProxy
	// RemoteTimeout bounds each remote fetch.
	RemoteTimeout time.Duration
	// RemoteMaxRows caps the rows materialized from a remote fetch.
	RemoteMaxRows int
	// Now is the reference time of relative date filters.
	Now time.Time
	// Narrow marks remote relations resolved from the root table as
	// narrowable to the driving rows of the statement. Engines set it
	// while compiling the selected columns.
	Narrow bool
	Logger *slog.Logger

	root          *Table
	pending       []*remoteFetch
	aliases       int
	depth         int
	inLinkFilter  bool
	formulaErrors []error
}

// NewScope returns a scope compiling statements for the given source.
func NewScope(reg *schema.Registry, src *schema.Source) (*Scope, error) {
	c, err := sql.NewClient(src.Dialect())
	if err != nil {
		return nil, err
	}
	return &Scope{
		Registry:      reg,
		Source:        src,
		Client:        c,
		RemoteTimeout: DefaultRemoteTimeout,
		RemoteMaxRows: DefaultRemoteMaxRows,
		Now:           time.Now(),
		Logger:        slog.New(slog.DiscardHandler),
	}, nil
}

// Dialect returns the dialect of the statement.
func (s *Scope) Dialect() string { return s.Client.Dialect() }

// Select returns a selector in the dialect of the statement.
func (s *Scope) Select(columns ...any) *sql.Selector {
	return sql.Dialect(s.Dialect()).Select(columns...)
}

// Root returns the driving table of the statement, aliased t0.
func (s *Scope) Root(m *schema.Model) *Table {
	s.root = &Table{Model: m, Alias: "t0"}
	return s.root
}

// NewTable returns a table with a fresh alias. Aliases are allocated in
// order, so compiling the same input twice yields the same aliases.
func (s *Scope) NewTable(m *schema.Model) *Table {
	s.aliases++
	return &Table{Model: m, Alias: "t" + strconv.Itoa(s.aliases)}
}

// Enter increments the nesting depth and returns the function restoring it.
func (s *Scope) Enter() (func(), error) {
	if s.depth >= MaxDepth {
		return nil, tabula.NewValidationError("", fmt.Errorf("relation chain deeper than %d levels", MaxDepth))
	}
	s.depth++
	return func() { s.depth-- }, nil
}

// Expr returns the expression of a column of the table.
func (s *Scope) Expr(ctx context.Context, t *Table, c *schema.Column) (sql.Querier, error) {
	if s.Columns != nil {
		return s.Columns.ColumnExpr(ctx, s, t, c)
	}
	if c.Virtual() {
		return nil, tabula.NewValidationError(c.ID, fmt.Errorf("virtual column %s cannot be resolved", c.Type))
	}
	return t.C(c), nil
}

// AddFormulaError records a soft formula error raised while compiling.
func (s *Scope) AddFormulaError(err error) {
	s.formulaErrors = append(s.formulaErrors, err)
}

// FormulaErrors returns the soft errors recorded by the scope.
func (s *Scope) FormulaErrors() []error { return s.formulaErrors }

func (s *Scope) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

// Table is a model bound to an alias in a statement. Tables of remote
// models are materialized as literal rows.
type Table struct {
	Model  *schema.Model
	Alias  string
	values *sql.ValuesTable
	remote *remoteFetch
}

// View returns the table reference used in FROM and JOIN clauses.
func (t *Table) View() sql.TableView {
	if t.values != nil {
		return t.values
	}
	st := sql.Table(t.Model.Table).As(t.Alias)
	if t.Model.Schema != "" {
		st.Schema(t.Model.Schema)
	}
	return st
}

// C returns the qualified reference of a physical column.
func (t *Table) C(c *schema.Column) sql.Fragment {
	if t.remote != nil {
		t.remote.use(c)
	}
	return sql.Col(t.Alias, c.ColumnName())
}

// Remote reports if the table was materialized from another source.
func (t *Table) Remote() bool { return t.values != nil }

// ColumnRef is a column of a bound table.
type ColumnRef struct {
	Table  *Table
	Column *schema.Column
}

// Expr returns the qualified reference of the column.
func (r ColumnRef) Expr() sql.Fragment { return r.Table.C(r.Column) }

// String returns the model and column ids of the reference.
func (r ColumnRef) String() string { return r.Table.Model.ID + "." + r.Column.ID }
