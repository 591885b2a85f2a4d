package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Register the database/sql drivers of the built-in dialects.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/syssam/tabula/dialect"
)

// DriverName returns the database/sql driver name registered for a dialect.
func DriverName(d string) string {
	switch d {
	case dialect.SQLite:
		return "sqlite"
	case dialect.MSSQL:
		return "sqlserver"
	default:
		return d
	}
}

// Driver is a dialect.Driver running statements on a database/sql pool.
type Driver struct {
	db      *sql.DB
	dialect string
}

// Open opens a database of the given dialect using its registered driver.
func Open(dialect, source string) (*Driver, error) {
	db, err := sql.Open(DriverName(dialect), source)
	if err != nil {
		return nil, err
	}
	return OpenDB(dialect, db), nil
}

// OpenDB wraps the given database/sql.DB with a Driver.
func OpenDB(dialect string, db *sql.DB) *Driver {
	return &Driver{db: db, dialect: dialect}
}

// DB returns the underlying *sql.DB instance.
func (d *Driver) DB() *sql.DB { return d.db }

// Dialect implements the dialect.Driver method.
func (d *Driver) Dialect() string { return d.dialect }

// Close closes the underlying pool.
func (d *Driver) Close() error { return d.db.Close() }

// Query implements the dialect.Querier method. v must be a *Rows.
func (d *Driver) Query(ctx context.Context, query string, args, v any) error {
	vr, ok := v.(*Rows)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Rows", v)
	}
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	timeout, _ := ctx.Value(timeoutKey{}).(time.Duration)
	set, reset, ok := timeoutSetting(d.dialect, timeout)
	if !ok {
		rows, err := d.db.QueryContext(ctx, query, argv...)
		if err != nil {
			return fmt.Errorf("dialect/sql: query: %w", err)
		}
		*vr = Rows{rows}
		return nil
	}
	// The setting is scoped to a dedicated connection and reset before the
	// connection returns to the pool.
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("dialect/sql: query: %w", err)
	}
	if _, err := conn.ExecContext(ctx, set); err != nil {
		return fmt.Errorf("dialect/sql: query: set statement timeout: %w", errors.Join(err, conn.Close()))
	}
	rows, err := conn.QueryContext(ctx, query, argv...)
	if err != nil {
		return fmt.Errorf("dialect/sql: query: %w", errors.Join(err, release(conn, reset)))
	}
	*vr = Rows{rowsWithCloser{rows, func() error { return release(conn, reset) }}}
	return nil
}

// release resets the session setting and returns conn to the pool. The reset
// runs on a fresh context so that it completes after cancellation.
func release(conn *sql.Conn, reset string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := conn.ExecContext(ctx, reset)
	return errors.Join(err, conn.Close())
}

type timeoutKey struct{}

// WithStatementTimeout returns a context that bounds the statements run with
// it on the server, for dialects with a session setting for it. The context
// deadline still applies on the client side.
func WithStatementTimeout(ctx context.Context, timeout time.Duration) context.Context {
	if timeout <= 0 {
		return ctx
	}
	return context.WithValue(ctx, timeoutKey{}, timeout)
}

// timeoutSetting returns the statements setting and resetting the server side
// statement timeout of a dialect.
func timeoutSetting(d string, timeout time.Duration) (set, reset string, ok bool) {
	if timeout <= 0 {
		return "", "", false
	}
	ms := timeout.Milliseconds()
	switch d {
	case dialect.Postgres:
		return fmt.Sprintf("SET statement_timeout = %d", ms), "RESET statement_timeout", true
	case dialect.MySQL:
		return fmt.Sprintf("SET SESSION max_execution_time = %d", ms), "SET SESSION max_execution_time = DEFAULT", true
	}
	return "", "", false
}

var _ dialect.Driver = (*Driver)(nil)

// Rows wraps the sql.Rows to avoid locks copy.
type Rows struct{ ColumnScanner }

// ColumnScanner is the interface that wraps the standard
// sql.Rows methods used for scanning database rows.
type ColumnScanner interface {
	Close() error
	ColumnTypes() ([]*sql.ColumnType, error)
	Columns() ([]string, error)
	Err() error
	Next() bool
	NextResultSet() bool
	Scan(dest ...any) error
}

// rowsWithCloser wraps the ColumnScanner interface with a custom Close hook.
type rowsWithCloser struct {
	ColumnScanner
	closer func() error
}

// Close closes the underlying ColumnScanner and calls the custom closer.
func (r rowsWithCloser) Close() error {
	err := r.ColumnScanner.Close()
	return errors.Join(err, r.closer())
}

// ScanValues scans all rows into slices of values ordered like the
// selected columns. Byte slices are converted to strings.
func ScanValues(rows ColumnScanner) ([]string, [][]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	var out [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out = append(out, values)
	}
	return columns, out, rows.Err()
}

// QueryValues runs a query on the driver and scans all of its rows.
func QueryValues(ctx context.Context, drv dialect.Querier, query string, args []any) ([]string, [][]any, error) {
	rows := &Rows{}
	if err := drv.Query(ctx, query, args, rows); err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	return ScanValues(rows)
}
