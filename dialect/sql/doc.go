// Package sql provides the SQL building primitives and the database/sql
// plumbing the compilers of tabula emit statements with.
//
// # Builder Types
//
//   - Builder: low-level SQL string builder with identifier quoting and
//     positional arguments
//   - Fragment: a reusable piece of SQL, such as a column, a cast or a
//     function call
//   - Predicate: a boolean condition, composed with And, Or and Not
//   - Selector: SELECT builder with joins, grouping, ordering and pagination
//   - ValuesTable: literal rows usable as a table
//
// # Dialect Support
//
// Quoting, placeholders and pagination follow the dialect of the builder:
//
//	t := sql.Table("users").As("t0")
//	s := sql.Dialect(dialect.Postgres).Select(t.C("id"), t.C("name")).
//		From(t).
//		Where(sql.And(sql.EQ(t.C("status"), "active"), sql.GT(t.C("age"), 18))).
//		OrderExpr(t.C("name"), false).
//		Limit(10)
//	query, args, err := sql.Build(dialect.Postgres, s)
//	// SELECT "t0"."id", "t0"."name" FROM "users" AS "t0"
//	// WHERE "t0"."status" = $1 AND "t0"."age" > $2 ORDER BY "t0"."name" LIMIT $3
//
// MySQL and SQLite use ? placeholders with LIMIT/OFFSET; SQL Server uses
// @pN placeholders with OFFSET ... FETCH NEXT.
//
// # Dialect Clients
//
// A Client emits the expressions whose syntax differs between dialects:
// concatenation, casts, string aggregation and literal rows as a table.
//
//	c := sql.MustClient(dialect.MySQL)
//	c.Concat(t.C("first"), sql.Raw("' '"), t.C("last"))
//
// # Connections
//
// A Pool opens one driver per source configuration and shares it between
// the callers using the same configuration:
//
//	pool := sql.NewPool()
//	drv, err := pool.Get(ctx, sql.ConnConfig{Dialect: "pg", Host: "db", Database: "app"})
//	columns, rows, err := sql.QueryValues(ctx, drv, query, args)
package sql
