package rollup_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect"
	"github.com/syssam/tabula/dialect/sql"
	"github.com/syssam/tabula/dialect/sql/sqlgraph"
	"github.com/syssam/tabula/filter"
	ql "github.com/syssam/tabula/querylanguage"
	"github.com/syssam/tabula/rollup"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
	"github.com/syssam/tabula/schema/schematest"
)

// resolver renders rollups, lookups and links the way the engine does.
type resolver struct{ g *rollup.Generator }

func (r resolver) ColumnExpr(ctx context.Context, s *sqlgraph.Scope, t *sqlgraph.Table, c *schema.Column) (sql.Querier, error) {
	switch {
	case c.Type == field.Rollup:
		return r.g.Column(ctx, s, t, c)
	case c.Type == field.Lookup:
		return sqlgraph.Lookup(ctx, s, t, c)
	case c.Type.Relation():
		return sqlgraph.LinkValue(ctx, s, t, c)
	case c.Virtual():
		return nil, tabula.NewUnsupportedError(c.Type.String(), s.Dialect())
	}
	return t.C(c), nil
}

func newScope(t *testing.T, d string) *sqlgraph.Scope {
	t.Helper()
	reg := schematest.Registry(d)
	src, err := reg.Source(schematest.MainSource)
	require.NoError(t, err)
	s, err := sqlgraph.NewScope(reg, src)
	require.NoError(t, err)
	s.Columns = resolver{g: rollup.New()}
	s.Conds = filter.New()
	return s
}

func col(t *testing.T, s *sqlgraph.Scope, id string) *schema.Column {
	t.Helper()
	c, err := s.Registry.Column(id)
	require.NoError(t, err)
	return c
}

func root(t *testing.T, s *sqlgraph.Scope, id string) *sqlgraph.Table {
	t.Helper()
	m, err := s.Registry.Model(id)
	require.NoError(t, err)
	return s.Root(m)
}

func TestColumn(t *testing.T) {
	tests := []struct {
		dialect string
		model   string
		column  string
		want    string
	}{
		{
			dialect: dialect.Postgres, model: "customers", column: "cus_order_count",
			want: `SELECT COUNT(*) FROM "orders" AS "t1" WHERE "t1"."customer_id" = "t0"."id"`,
		},
		{
			dialect: dialect.MySQL, model: "customers", column: "cus_order_count",
			want: "SELECT COUNT(*) FROM `orders` AS `t1` WHERE `t1`.`customer_id` = `t0`.`id`",
		},
		{
			dialect: dialect.Postgres, model: "customers", column: "cus_total_spent",
			want: `SELECT SUM("t1"."total") FROM "orders" AS "t1" WHERE "t1"."customer_id" = "t0"."id"`,
		},
		{
			dialect: dialect.MSSQL, model: "customers", column: "cus_total_spent",
			want: "SELECT SUM([t1].[total]) FROM [orders] AS [t1] WHERE [t1].[customer_id] = [t0].[id]",
		},
		{
			dialect: dialect.Postgres, model: "students", column: "stu_course_count",
			want: `SELECT COUNT(*) FROM "courses" AS "t1" JOIN "enrollments" AS "t2" ON "t2"."course_id" = "t1"."id" WHERE "t2"."student_id" = "t0"."id"`,
		},
	}
	for i, tt := range tests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			s := newScope(t, tt.dialect)
			sel, err := rollup.New().Column(context.Background(), s, root(t, s, tt.model), col(t, s, tt.column))
			require.NoError(t, err)
			query, args, err := sql.Build(tt.dialect, sel)
			require.NoError(t, err)
			assert.Equal(t, tt.want, query)
			assert.Empty(t, args)
		})
	}
}

func TestBuild(t *testing.T) {
	tests := []struct {
		dialect  string
		model    string
		relation string
		target   string
		fn       rollup.Func
		want     string
	}{
		{
			dialect: dialect.Postgres, model: "customers", relation: "cus_orders", target: "ord_total", fn: rollup.Avg,
			want: `SELECT AVG("t1"."total") FROM "orders" AS "t1" WHERE "t1"."customer_id" = "t0"."id"`,
		},
		{
			dialect: dialect.Postgres, model: "customers", relation: "cus_orders", target: "ord_total", fn: rollup.Max,
			want: `SELECT MAX("t1"."total") FROM "orders" AS "t1" WHERE "t1"."customer_id" = "t0"."id"`,
		},
		{
			dialect: dialect.Postgres, model: "customers", relation: "cus_orders", target: "ord_placed", fn: rollup.Min,
			want: `SELECT MIN("t1"."placed") FROM "orders" AS "t1" WHERE "t1"."customer_id" = "t0"."id"`,
		},
		{
			dialect: dialect.Postgres, model: "customers", relation: "cus_orders", target: "ord_total", fn: rollup.SumDistinct,
			want: `SELECT SUM(DISTINCT "t1"."total") FROM "orders" AS "t1" WHERE "t1"."customer_id" = "t0"."id"`,
		},
		{
			dialect: dialect.Postgres, model: "customers", relation: "cus_orders", target: "ord_number", fn: rollup.CountDistinct,
			want: `SELECT COUNT(DISTINCT "t1"."number") FROM "orders" AS "t1" WHERE "t1"."customer_id" = "t0"."id"`,
		},
		{
			// Integer averages are computed on floats.
			dialect: dialect.Postgres, model: "orders", relation: "ord_customer", target: "cus_age", fn: rollup.Avg,
			want: `SELECT AVG(CAST("t1"."age" AS DOUBLE PRECISION)) FROM "customers" AS "t1" WHERE "t1"."id" = "t0"."customer_id"`,
		},
		{
			dialect: dialect.MySQL, model: "orders", relation: "ord_customer", target: "cus_age", fn: rollup.AvgDistinct,
			want: "SELECT AVG(DISTINCT CAST(`t1`.`age` AS DOUBLE)) FROM `customers` AS `t1` WHERE `t1`.`id` = `t0`.`customer_id`",
		},
		{
			// Text values are summed as floats.
			dialect: dialect.Postgres, model: "customers", relation: "cus_orders", target: "ord_number", fn: rollup.Sum,
			want: `SELECT SUM(CAST("t1"."number" AS DOUBLE PRECISION)) FROM "orders" AS "t1" WHERE "t1"."customer_id" = "t0"."id"`,
		},
		{
			dialect: dialect.Postgres, model: "customers", relation: "cus_orders", target: "ord_number", fn: rollup.Concat,
			want: `SELECT STRING_AGG(CAST("t1"."number" AS TEXT), ',') FROM "orders" AS "t1" WHERE "t1"."customer_id" = "t0"."id"`,
		},
		{
			dialect: dialect.Postgres, model: "customers", relation: "cus_orders", target: "ord_number", fn: rollup.ArrayAgg,
			want: `SELECT ARRAY_AGG("t1"."number") FROM "orders" AS "t1" WHERE "t1"."customer_id" = "t0"."id"`,
		},
		{
			// Target is ignored by count.
			dialect: dialect.SQLite, model: "customers", relation: "cus_orders", target: "ord_total", fn: rollup.Count,
			want: `SELECT COUNT(*) FROM "orders" AS "t1" WHERE "t1"."customer_id" = "t0"."id"`,
		},
	}
	for i, tt := range tests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			s := newScope(t, tt.dialect)
			sel, err := rollup.New().Build(context.Background(), s, root(t, s, tt.model), col(t, s, tt.relation), col(t, s, tt.target), tt.fn)
			require.NoError(t, err)
			query, _, err := sql.Build(tt.dialect, sel)
			require.NoError(t, err)
			assert.Equal(t, tt.want, query)
		})
	}
}

func TestBuildLinkFilter(t *testing.T) {
	s := newScope(t, dialect.Postgres)
	sel, err := rollup.New().Build(context.Background(), s, root(t, s, "students"), col(t, s, "stu_open_courses"), nil, rollup.Count)
	require.NoError(t, err)
	query, args, err := sql.Build(dialect.Postgres, sel)
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "courses" AS "t1" JOIN "enrollments" AS "t2" ON "t2"."course_id" = "t1"."id" WHERE "t2"."student_id" = "t0"."id" AND "t1"."open" = $1`, query)
	assert.Equal(t, []any{true}, args)
}

func TestBuildErrors(t *testing.T) {
	ctx := context.Background()
	g := rollup.New()

	s := newScope(t, dialect.MySQL)
	_, err := g.Build(ctx, s, root(t, s, "customers"), col(t, s, "cus_orders"), col(t, s, "ord_number"), rollup.ArrayAgg)
	assert.True(t, tabula.IsUnsupported(err))

	s = newScope(t, dialect.Postgres)
	_, err = g.Build(ctx, s, root(t, s, "customers"), col(t, s, "cus_orders"), nil, rollup.Sum)
	assert.True(t, tabula.IsValidationError(err), "sum without target")

	s = newScope(t, dialect.Postgres)
	_, err = g.Build(ctx, s, root(t, s, "customers"), col(t, s, "cus_orders"), col(t, s, "cus_age"), rollup.Sum)
	assert.True(t, tabula.IsValidationError(err), "target of another model")

	s = newScope(t, dialect.Postgres)
	_, err = g.Build(ctx, s, root(t, s, "customers"), col(t, s, "cus_orders"), col(t, s, "ord_total"), rollup.PercentEmpty)
	assert.True(t, tabula.IsValidationError(err), "view-only function")

	s = newScope(t, dialect.Postgres)
	_, err = g.Build(ctx, s, root(t, s, "customers"), col(t, s, "cus_orders"), col(t, s, "ord_customer"), rollup.Max)
	assert.True(t, tabula.IsValidationError(err), "relation target")

	s = newScope(t, dialect.Postgres)
	_, err = g.Build(ctx, s, root(t, s, "customers"), col(t, s, "cus_orders"), col(t, s, "ord_total"), rollup.Func("median"))
	assert.True(t, tabula.IsValidationError(err))

	s = newScope(t, dialect.Postgres)
	_, err = g.Column(ctx, s, root(t, s, "customers"), col(t, s, "cus_name"))
	assert.True(t, tabula.IsValidationError(err), "not a rollup")
}

func TestIdempotent(t *testing.T) {
	compile := func() (string, []any) {
		s := newScope(t, dialect.Postgres)
		sel, err := rollup.New().Column(context.Background(), s, root(t, s, "customers"), col(t, s, "cus_total_spent"))
		require.NoError(t, err)
		query, args, err := sql.Build(dialect.Postgres, sel)
		require.NoError(t, err)
		return query, args
	}
	q1, a1 := compile()
	q2, a2 := compile()
	assert.Equal(t, q1, q2)
	assert.Equal(t, a1, a2)
}

func TestParseFunc(t *testing.T) {
	for name, want := range map[string]rollup.Func{
		"count":         rollup.Count,
		"SUM":           rollup.Sum,
		"average":       rollup.Avg,
		"avgDistinct":   rollup.AvgDistinct,
		" countEmpty ":  rollup.CountEmpty,
		"percentunique": rollup.PercentUnique,
	} {
		got, err := rollup.ParseFunc(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got)
	}
	_, err := rollup.ParseFunc("median")
	assert.Error(t, err)
	assert.True(t, rollup.CountEmpty.ViewOnly())
	assert.False(t, rollup.Sum.ViewOnly())
}

func TestBulk(t *testing.T) {
	ctx := context.Background()
	s := newScope(t, dialect.Postgres)
	m, err := s.Registry.Model("customers")
	require.NoError(t, err)

	sel, err := rollup.New().Bulk(ctx, s, m, ql.Where("cus_age", ql.OpGt, 18), []rollup.Request{
		{Func: rollup.Count},
		{Column: col(t, s, "cus_age"), Func: rollup.Sum},
		{Alias: "blank_names", Column: col(t, s, "cus_name"), Func: rollup.CountEmpty},
		{Column: col(t, s, "cus_score"), Func: rollup.Avg, Filter: ql.Where("cus_active", ql.OpChecked, nil)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"count", "cus_age_sum", "blank_names", "cus_score_avg"}, sel.SelectedColumns())

	query, args, err := sql.Build(dialect.Postgres, sel)
	require.NoError(t, err)
	assert.Equal(t, `SELECT `+
		`(SELECT COUNT(*) FROM "customers" AS "t1" WHERE "t1"."age" > $1) AS "count", `+
		`(SELECT SUM("m1"."v") FROM (SELECT "t2"."age" AS "v" FROM "customers" AS "t2" WHERE "t2"."age" > $2) AS "m1") AS "cus_age_sum", `+
		`(SELECT (COUNT(*) - COUNT(NULLIF("m2"."v", ''))) FROM (SELECT "t3"."name" AS "v" FROM "customers" AS "t3" WHERE "t3"."age" > $3) AS "m2") AS "blank_names", `+
		`(SELECT AVG("m3"."v") FROM (SELECT "t4"."score" AS "v" FROM "customers" AS "t4" WHERE "t4"."age" > $4 AND "t4"."active" = $5) AS "m3") AS "cus_score_avg"`,
		query)
	assert.Equal(t, []any{int64(18), int64(18), int64(18), int64(18), true}, args)
}

func TestBulkRollupColumn(t *testing.T) {
	s := newScope(t, dialect.Postgres)
	m, err := s.Registry.Model("customers")
	require.NoError(t, err)
	sel, err := rollup.New().Bulk(context.Background(), s, m, nil, []rollup.Request{
		{Column: col(t, s, "cus_total_spent"), Func: rollup.Max},
		{Column: col(t, s, "cus_email"), Func: rollup.PercentFilled},
	})
	require.NoError(t, err)
	query, args, err := sql.Build(dialect.Postgres, sel)
	require.NoError(t, err)
	assert.Equal(t, `SELECT `+
		`(SELECT MAX("m0"."v") FROM (SELECT (SELECT SUM("t2"."total") FROM "orders" AS "t2" WHERE "t2"."customer_id" = "t1"."id") AS "v" FROM "customers" AS "t1") AS "m0") AS "cus_total_spent_max", `+
		`(SELECT (CAST(COUNT(NULLIF("m1"."v", '')) AS DOUBLE PRECISION) * 100 / NULLIF(COUNT(*), 0)) FROM (SELECT "t3"."email" AS "v" FROM "customers" AS "t3") AS "m1") AS "cus_email_percentFilled"`,
		query)
	assert.Empty(t, args)
}

func TestBulkErrors(t *testing.T) {
	ctx := context.Background()
	s := newScope(t, dialect.Postgres)
	m, err := s.Registry.Model("customers")
	require.NoError(t, err)
	g := rollup.New()

	_, err = g.Bulk(ctx, s, m, nil, nil)
	assert.True(t, tabula.IsValidationError(err), "empty request")

	_, err = g.Bulk(ctx, s, m, nil, []rollup.Request{{Func: rollup.Count}, {Func: rollup.Count}})
	assert.True(t, tabula.IsValidationError(err), "duplicate alias")

	_, err = g.Bulk(ctx, s, m, nil, []rollup.Request{{Func: rollup.Sum}})
	assert.True(t, tabula.IsValidationError(err), "sum without column")

	_, err = g.Bulk(ctx, s, m, nil, []rollup.Request{{Column: col(t, s, "ord_total"), Func: rollup.Sum}})
	assert.True(t, tabula.IsValidationError(err), "column of another model")

	_, err = g.Bulk(ctx, s, m, nil, []rollup.Request{{Column: col(t, s, "cus_age"), Func: "median"}})
	assert.True(t, tabula.IsValidationError(err), "unknown function")
}
