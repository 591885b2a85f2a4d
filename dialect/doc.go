// Package dialect defines the source dialects tabula compiles statements for
// and the driver interfaces used to run them.
//
// # Supported Dialects
//
//	dialect.Postgres  = "postgres"
//	dialect.MySQL     = "mysql"
//	dialect.SQLite    = "sqlite3"
//	dialect.MSSQL     = "mssql"
//	dialect.Snowflake = "snowflake"
//
// Postgres, MySQL and SQLite drivers are registered by dialect/sql. MSSQL and
// Snowflake statements can always be compiled; executing them requires the
// caller to register a database/sql driver under "sqlserver" or "snowflake".
//
// # Driver Interface
//
//	type Driver interface {
//	    Query(ctx context.Context, query string, args, v any) error
//	    Close() error
//	    Dialect() string
//	}
//
// # Sub-packages
//
//   - dialect/sql: SQL builder, dialect client adapters, drivers and the connection pool
//   - dialect/sql/sqlgraph: relation resolution and join fragments
package dialect
