package sql

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/tabula/dialect"
)

func TestBuilder(t *testing.T) {
	users := Table("users").As("t0")
	tests := []struct {
		input     Querier
		wantQuery string
		wantArgs  []any
	}{
		{
			input: Dialect(dialect.Postgres).
				Select(users.C("id"), users.C("name")).
				From(users).
				Where(And(
					EQ(users.C("age"), 30),
					Or(Like(users.C("name"), "%a%"), IsNull(users.C("email"))),
				)).
				OrderExpr(users.C("name"), true).
				Limit(10).
				Offset(20),
			wantQuery: `SELECT "t0"."id", "t0"."name" FROM "users" AS "t0" WHERE "t0"."age" = $1 AND ("t0"."name" ILIKE $2 OR "t0"."email" IS NULL) ORDER BY "t0"."name" DESC LIMIT $3 OFFSET $4`,
			wantArgs:  []any{30, "%a%", 10, 20},
		},
		{
			input: Dialect(dialect.MySQL).
				Select(users.C("id")).
				From(users).
				Where(And(EQ(users.C("age"), 30), Like(users.C("name"), "%a%"))).
				OrderBy(users.C("id")).
				Limit(10),
			wantQuery: "SELECT `t0`.`id` FROM `users` AS `t0` WHERE `t0`.`age` = ? AND `t0`.`name` LIKE ? ORDER BY `t0`.`id` LIMIT ?",
			wantArgs:  []any{30, "%a%", 10},
		},
		{
			input: Dialect(dialect.MSSQL).
				Select(users.C("id")).
				From(users).
				Where(NEQ(users.C("name"), "x")).
				Limit(5),
			wantQuery: `SELECT [t0].[id] FROM [users] AS [t0] WHERE [t0].[name] <> @p1 ORDER BY (SELECT NULL) OFFSET @p2 ROWS FETCH NEXT @p3 ROWS ONLY`,
			wantArgs:  []any{"x", 0, 5},
		},
		{
			input: Dialect(dialect.SQLite).
				Select("id").
				From(Table("users")).
				Offset(5),
			wantQuery: `SELECT "id" FROM "users" LIMIT -1 OFFSET ?`,
			wantArgs:  []any{5},
		},
		{
			input: func() Querier {
				c := Table("customers").As("t0")
				o := Table("orders").As("t1")
				sub := Dialect(dialect.Postgres).
					Select(Func("COUNT", Raw("*"))).
					From(o).
					Where(And(ColumnsEQ(o.C("customer_id"), c.C("id")), GT(o.C("total"), 100)))
				return Dialect(dialect.Postgres).
					Select(c.C("id")).
					AppendSelectAs(sub, "orders_count").
					From(c).
					Where(GT(c.C("id"), 5))
			}(),
			wantQuery: `SELECT "t0"."id", (SELECT COUNT(*) FROM "orders" AS "t1" WHERE "t1"."customer_id" = "t0"."id" AND "t1"."total" > $1) AS "orders_count" FROM "customers" AS "t0" WHERE "t0"."id" > $2`,
			wantArgs:  []any{100, 5},
		},
		{
			input: func() Querier {
				p := Table("pets").As("t1")
				u := Table("users").As("t0")
				return Dialect(dialect.Postgres).
					Select(u.C("id")).
					From(u).
					Where(Or(
						Exists(Dialect(dialect.Postgres).Select(p.C("owner_id")).From(p).Where(ColumnsEQ(p.C("owner_id"), u.C("id")))),
						Not(And(EQ(u.C("a"), 1), EQ(u.C("b"), 2))),
					))
			}(),
			wantQuery: `SELECT "t0"."id" FROM "users" AS "t0" WHERE EXISTS (SELECT "t1"."owner_id" FROM "pets" AS "t1" WHERE "t1"."owner_id" = "t0"."id") OR NOT ("t0"."a" = $1 AND "t0"."b" = $2)`,
			wantArgs:  []any{1, 2},
		},
		{
			input:     Dialect(dialect.Postgres).Select(Expr("COALESCE(?, ?)", Col("t0", "a"), 0)).From(Table("t").As("t0")),
			wantQuery: `SELECT COALESCE("t0"."a", $1) FROM "t" AS "t0"`,
			wantArgs:  []any{0},
		},
		{
			input:     Dialect(dialect.Postgres).Select("*").From(Table("t")).Where(ExprP("x = '?' AND y = ?", 1)),
			wantQuery: `SELECT * FROM "t" WHERE x = '?' AND y = $1`,
			wantArgs:  []any{1},
		},
		{
			input:     Dialect(dialect.Postgres).Select("id").From(Table("t")).Where(And(In("id", 1, 2, 3), NotIn("name"))),
			wantQuery: `SELECT "id" FROM "t" WHERE "id" IN ($1, $2, $3) AND 1 = 1`,
			wantArgs:  []any{1, 2, 3},
		},
		{
			input:     Dialect(dialect.Postgres).Select("id").From(Table("t")).Where(In("id")),
			wantQuery: `SELECT "id" FROM "t" WHERE 1 = 0`,
		},
		{
			input:     Dialect(dialect.Postgres).Select("id").From(Table("t")).Where(Between("d", "2024-01-01", "2024-01-31")),
			wantQuery: `SELECT "id" FROM "t" WHERE "d" BETWEEN $1 AND $2`,
			wantArgs:  []any{"2024-01-01", "2024-01-31"},
		},
		{
			input: Dialect(dialect.Postgres).
				Select("name").
				From(Table("users").Schema("public")).
				Where(And(NotNull("name"), NotLike("name", "x%"))).
				GroupBy("name").
				Having(GT(Raw("COUNT(*)"), 1)),
			wantQuery: `SELECT "name" FROM "public"."users" WHERE "name" IS NOT NULL AND "name" NOT ILIKE $1 GROUP BY "name" HAVING COUNT(*) > $2`,
			wantArgs:  []any{"x%", 1},
		},
		{
			input: func() Querier {
				u := Table("users").As("t0")
				g := Table("groups").As("t1")
				return Dialect(dialect.Postgres).
					Select(u.C("id"), g.C("name")).
					From(u).
					LeftJoin(g).
					On(u.C("group_id"), g.C("id"))
			}(),
			wantQuery: `SELECT "t0"."id", "t1"."name" FROM "users" AS "t0" LEFT JOIN "groups" AS "t1" ON "t0"."group_id" = "t1"."id"`,
		},
		{
			input: func() Querier {
				inner := Dialect(dialect.Postgres).Select("id").From(Table("t")).Where(EQ("x", 1)).As("sub")
				return Dialect(dialect.Postgres).Select(inner.C("id")).From(inner).Where(EQ(inner.C("id"), 2))
			}(),
			wantQuery: `SELECT "sub"."id" FROM (SELECT "id" FROM "t" WHERE "x" = $1) AS "sub" WHERE "sub"."id" = $2`,
			wantArgs:  []any{1, 2},
		},
	}
	for i, tt := range tests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			query, args := tt.input.Query()
			assert.Equal(t, tt.wantQuery, query)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"a""b"`, Quote(dialect.Postgres, `a"b`))
	assert.Equal(t, "`a``b`", Quote(dialect.MySQL, "a`b"))
	assert.Equal(t, "[a]]b]", Quote(dialect.MSSQL, "a]b"))
	assert.Equal(t, `"Unit Price"`, Quote(dialect.SQLite, "Unit Price"))
	assert.Equal(t, `"x"`, Quote(dialect.Snowflake, "x"))
}

func TestCountSelector(t *testing.T) {
	s := Dialect(dialect.Postgres).
		Select("id", "name").
		From(Table("users")).
		Where(EQ("active", true)).
		OrderBy("name").
		Limit(10).
		Offset(10)
	query, args := s.CountSelector().Query()
	assert.Equal(t, `SELECT COUNT(*) FROM "users" WHERE "active" = $1`, query)
	assert.Equal(t, []any{true}, args)

	// The original selector is left intact.
	query, _ = s.Query()
	assert.Equal(t, `SELECT "id", "name" FROM "users" WHERE "active" = $1 ORDER BY "name" LIMIT $2 OFFSET $3`, query)

	query, _ = Dialect(dialect.Postgres).Select("name").Distinct().From(Table("users")).CountSelector().Query()
	assert.Equal(t, `SELECT COUNT(*) FROM (SELECT DISTINCT "name" FROM "users") AS "count_rows"`, query)
}

func TestBuilderErrors(t *testing.T) {
	_, _, err := Build(dialect.Postgres, Expr("COALESCE(?, ?)", 1))
	require.Error(t, err)

	_, _, err = Build(dialect.Postgres, Expr("ABS(?)", 1, 2))
	require.Error(t, err)

	s := Dialect(dialect.Postgres).Select("id").From(Table("t")).OnP(EQ("a", 1))
	_, _, err = Build(dialect.Postgres, s)
	require.Error(t, err)

	query, args, err := Build(dialect.MySQL, Func("ROUND", Col("t0", "price"), Param(2)))
	require.NoError(t, err)
	assert.Equal(t, "ROUND(`t0`.`price`, ?)", query)
	assert.Equal(t, []any{2}, args)
}

func TestBoolP(t *testing.T) {
	query, _, err := Build(dialect.MSSQL, BoolP(Raw("x")))
	require.NoError(t, err)
	assert.Equal(t, "x = 1", query)
	query, _, err = Build(dialect.Postgres, BoolP(Raw("x")))
	require.NoError(t, err)
	assert.Equal(t, "x", query)
}

func TestSelectedColumns(t *testing.T) {
	s := Dialect(dialect.Postgres).Select("id").AppendSelectAs(Raw("1"), "one").AppendSelect(Raw("2"))
	assert.Equal(t, []string{"id", "one"}, s.SelectedColumns())
}
