package dialect

import (
	"context"
	"strings"
)

// Dialect names for external usage.
const (
	MySQL     = "mysql"
	SQLite    = "sqlite3"
	Postgres  = "postgres"
	MSSQL     = "mssql"
	Snowflake = "snowflake"
)

// Dialects lists every dialect the compiler can target.
var Dialects = []string{Postgres, MySQL, SQLite, MSSQL, Snowflake}

// Querier wraps the read operation of a driver.
type Querier interface {
	// Query executes a query that returns rows, typically a SELECT in SQL.
	// It scans the result into the pointer v. For SQL drivers, it is *dialect/sql.Rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface that wraps all necessary operations for source clients.
type Driver interface {
	Querier
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Valid reports whether name is a known dialect.
func Valid(name string) bool {
	for _, d := range Dialects {
		if d == name {
			return true
		}
	}
	return false
}

// Normalize maps common aliases to a dialect name.
func Normalize(name string) string {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "pg", "postgresql", "pgx":
		return Postgres
	case "sqlite", "sqlite3":
		return SQLite
	case "mysql2", "mariadb":
		return MySQL
	case "sqlserver", "mssql":
		return MSSQL
	default:
		return n
	}
}
