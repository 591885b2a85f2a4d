package filter_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect"
	"github.com/syssam/tabula/dialect/sql"
	"github.com/syssam/tabula/dialect/sql/sqlgraph"
	"github.com/syssam/tabula/filter"
	ql "github.com/syssam/tabula/querylanguage"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
	"github.com/syssam/tabula/schema/schematest"
)

var now = time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)

// resolver renders lookups and links the way the engine does.
type resolver struct{}

func (resolver) ColumnExpr(ctx context.Context, s *sqlgraph.Scope, t *sqlgraph.Table, c *schema.Column) (sql.Querier, error) {
	switch {
	case c.Type == field.Lookup:
		return sqlgraph.Lookup(ctx, s, t, c)
	case c.Type.Relation():
		return sqlgraph.LinkValue(ctx, s, t, c)
	case c.Virtual():
		return nil, tabula.NewUnsupportedError(c.Type.String(), s.Dialect())
	}
	return t.C(c), nil
}

func newScope(t *testing.T) *sqlgraph.Scope {
	t.Helper()
	reg := schematest.Registry(dialect.Postgres)
	src, err := reg.Source(schematest.MainSource)
	require.NoError(t, err)
	s, err := sqlgraph.NewScope(reg, src)
	require.NoError(t, err)
	s.Now = now
	s.Columns = resolver{}
	return s
}

func compile(t *testing.T, modelID string, n ql.Node) (string, []any, error) {
	t.Helper()
	s := newScope(t)
	m, err := s.Registry.Model(modelID)
	require.NoError(t, err)
	p, err := filter.New().Build(context.Background(), s, s.Root(m), n)
	if err != nil {
		return "", nil, err
	}
	if p == nil {
		return "", nil, nil
	}
	query, args, err := sql.Build(dialect.Postgres, p)
	require.NoError(t, err)
	return query, args, nil
}

func TestLeaves(t *testing.T) {
	tests := []struct {
		node     ql.Node
		wantSQL  string
		wantArgs []any
	}{
		{ql.Where("cus_age", ql.OpGt, 25.0), `"t0"."age" > $1`, []any{int64(25)}},
		{ql.Where("cus_age", ql.OpGt, "25"), `"t0"."age" > $1`, []any{int64(25)}},
		{ql.Where("cus_name", ql.OpBlank, nil), `("t0"."name" IS NULL OR "t0"."name" = '')`, nil},
		{ql.Where("cus_name", ql.OpNotBlank, nil), `("t0"."name" IS NOT NULL AND "t0"."name" <> '')`, nil},
		{ql.Where("cus_name", ql.OpNull, nil), `"t0"."name" IS NULL`, nil},
		{ql.Where("cus_name", ql.OpNotNull, nil), `"t0"."name" IS NOT NULL`, nil},
		{ql.Where("cus_name", ql.OpEmpty, nil), `"t0"."name" = ''`, nil},
		{ql.Where("cus_name", ql.OpEq, "bob"), `"t0"."name" = $1`, []any{"bob"}},
		{ql.Where("cus_name", ql.OpEq, nil), `"t0"."name" IS NULL`, nil},
		{ql.Where("cus_name", ql.OpNeq, "bob"), `("t0"."name" <> $1 OR "t0"."name" IS NULL)`, []any{"bob"}},
		{ql.Where("cus_name", ql.OpLike, "bo"), `"t0"."name" ILIKE $1`, []any{"%bo%"}},
		{ql.Where("cus_name", ql.OpNotLike, "bo"), `("t0"."name" NOT ILIKE $1 OR "t0"."name" IS NULL)`, []any{"%bo%"}},
		{ql.Where("cus_name", ql.OpIs, "blank"), `("t0"."name" IS NULL OR "t0"."name" = '')`, nil},
		{ql.Where("cus_name", ql.OpIsNot, "bob"), `("t0"."name" <> $1 OR "t0"."name" IS NULL)`, []any{"bob"}},
		{ql.Where("cus_email", ql.OpIn, "a@x.io, b@x.io"), `"t0"."email" IN ($1, $2)`, []any{"a@x.io", "b@x.io"}},
		{ql.Where("cus_age", ql.OpIn, []any{1.0, "2"}), `"t0"."age" IN ($1, $2)`, []any{int64(1), int64(2)}},
		{ql.Where("cus_age", ql.OpBlank, nil), `"t0"."age" IS NULL`, nil},
		{ql.Where("cus_score", ql.OpEq, "2.5"), `"t0"."score" = $1`, []any{2.5}},
		{ql.Where("cus_score", ql.OpLte, 3.0), `"t0"."score" <= $1`, []any{3.0}},
		{ql.Where("cus_active", ql.OpChecked, nil), `"t0"."active" = $1`, []any{true}},
		{ql.Where("cus_active", ql.OpNotChecked, nil), `("t0"."active" IS NULL OR "t0"."active" = $1)`, []any{false}},
		{ql.Where("cus_status", ql.OpAnyOf, "new,vip"), `"t0"."status" IN ($1, $2)`, []any{"new", "vip"}},
		{ql.Where("cus_status", ql.OpNotAnyOf, "vip"), `("t0"."status" NOT IN ($1) OR "t0"."status" IS NULL)`, []any{"vip"}},
		{
			ql.Where("cus_tags", ql.OpAnyOf, "a,b"),
			`(CONCAT(',', "t0"."tags", ',') ILIKE $1 OR CONCAT(',', "t0"."tags", ',') ILIKE $2)`,
			[]any{"%,a,%", "%,b,%"},
		},
		{
			ql.Where("cus_tags", ql.OpAllOf, []any{"a", "b"}),
			`(CONCAT(',', "t0"."tags", ',') ILIKE $1 AND CONCAT(',', "t0"."tags", ',') ILIKE $2)`,
			[]any{"%,a,%", "%,b,%"},
		},
		{
			ql.Where("cus_tags", ql.OpNotAllOf, "a"),
			`(NOT (CONCAT(',', "t0"."tags", ',') ILIKE $1) OR "t0"."tags" IS NULL)`,
			[]any{"%,a,%"},
		},
		{
			ql.Where("cus_orders", ql.OpGt, 2.0),
			`(SELECT COUNT(*) FROM "orders" AS "t1" WHERE "t1"."customer_id" = "t0"."id") > $1`,
			[]any{int64(2)},
		},
		{
			ql.Where("cus_order_numbers", ql.OpEq, "A1"),
			`(SELECT STRING_AGG(CAST("t1"."number" AS TEXT), ',') FROM "orders" AS "t1" WHERE "t1"."customer_id" = "t0"."id") = $1`,
			[]any{"A1"},
		},
	}
	for i, tt := range tests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			query, args, err := compile(t, "customers", tt.node)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, query)
			assert.Equal(t, tt.wantArgs, nilIfEmpty(args))
		})
	}
}

func nilIfEmpty(args []any) []any {
	if len(args) == 0 {
		return nil
	}
	return args
}

func TestRelations(t *testing.T) {
	tests := []struct {
		model    string
		node     ql.Node
		wantSQL  string
		wantArgs []any
	}{
		{
			"orders", ql.Where("ord_customer_name", ql.OpLike, "ann"),
			`(SELECT "t1"."name" FROM "customers" AS "t1" WHERE "t1"."id" = "t0"."customer_id") ILIKE $1`,
			[]any{"%ann%"},
		},
		{
			"orders", ql.Where("ord_customer", ql.OpEq, "Ann"),
			`EXISTS (SELECT 1 FROM "customers" AS "t1" WHERE "t1"."id" = "t0"."customer_id" AND "t1"."name" = $1)`,
			[]any{"Ann"},
		},
		{
			"orders", ql.Where("ord_customer", ql.OpNeq, "Ann"),
			`NOT EXISTS (SELECT 1 FROM "customers" AS "t1" WHERE "t1"."id" = "t0"."customer_id" AND "t1"."name" = $1)`,
			[]any{"Ann"},
		},
		{
			"orders", ql.Where("ord_customer", ql.OpBlank, nil),
			`NOT EXISTS (SELECT 1 FROM "customers" AS "t1" WHERE "t1"."id" = "t0"."customer_id")`,
			nil,
		},
		{
			"students", ql.Where("stu_courses", ql.OpLike, "math"),
			`EXISTS (SELECT 1 FROM "courses" AS "t1" JOIN "enrollments" AS "t2" ON "t2"."course_id" = "t1"."id" WHERE "t2"."student_id" = "t0"."id" AND "t1"."title" ILIKE $1)`,
			[]any{"%math%"},
		},
	}
	for i, tt := range tests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			query, args, err := compile(t, tt.model, tt.node)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, query)
			assert.Equal(t, tt.wantArgs, nilIfEmpty(args))
		})
	}
}

func TestLinkFilter(t *testing.T) {
	s := newScope(t)
	b := filter.New()
	s.Conds = b
	m, err := s.Registry.Model("students")
	require.NoError(t, err)
	p, err := b.Build(context.Background(), s, s.Root(m), ql.Where("stu_open_courses", ql.OpNotBlank, nil))
	require.NoError(t, err)
	query, args, err := sql.Build(dialect.Postgres, p)
	require.NoError(t, err)
	assert.Equal(t, `EXISTS (SELECT 1 FROM "courses" AS "t1" JOIN "enrollments" AS "t2" ON "t2"."course_id" = "t1"."id" WHERE "t2"."student_id" = "t0"."id" AND "t1"."open" = $1)`, query)
	assert.Equal(t, []any{true}, args)
}

func TestGroups(t *testing.T) {
	tests := []struct {
		node     ql.Node
		wantSQL  string
		wantArgs []any
	}{
		{
			ql.And(ql.Where("cus_age", ql.OpGt, 25.0), ql.Or(ql.Where("cus_name", ql.OpEq, "a"), ql.Where("cus_name", ql.OpEq, "b"))),
			`"t0"."age" > $1 AND ("t0"."name" = $2 OR "t0"."name" = $3)`,
			[]any{int64(25), "a", "b"},
		},
		{
			ql.Not(ql.Where("cus_age", ql.OpGt, 1.0), ql.Where("cus_active", ql.OpChecked, nil)),
			`NOT ("t0"."age" > $1 AND "t0"."active" = $2)`,
			[]any{int64(1), true},
		},
		{
			ql.And(ql.Where("cus_name", ql.OpBlank, nil), ql.Where("cus_age", ql.OpLt, 3.0)),
			`("t0"."name" IS NULL OR "t0"."name" = '') AND "t0"."age" < $1`,
			[]any{int64(3)},
		},
		{ql.And(), "", nil},
		{ql.Or(ql.And()), "", nil},
		{nil, "", nil},
	}
	for i, tt := range tests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			query, args, err := compile(t, "customers", tt.node)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, query)
			assert.Equal(t, tt.wantArgs, nilIfEmpty(args))
		})
	}
}

func TestDates(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC) }
	tests := []struct {
		node     ql.Node
		wantSQL  string
		wantArgs []any
	}{
		{ql.WhereDate("cus_joined", ql.OpEq, ql.SubToday, nil), `"t0"."joined" = $1`, []any{"2024-03-15"}},
		{ql.WhereDate("cus_joined", ql.OpEq, ql.SubTomorrow, nil), `"t0"."joined" = $1`, []any{"2024-03-16"}},
		{ql.WhereDate("cus_joined", ql.OpGt, ql.SubDaysAgo, 3.0), `"t0"."joined" > $1`, []any{"2024-03-12"}},
		{ql.WhereDate("cus_joined", ql.OpLt, ql.SubOneMonthAgo, nil), `"t0"."joined" < $1`, []any{"2024-02-15"}},
		{ql.Where("cus_joined", ql.OpEq, "2024-01-05"), `"t0"."joined" = $1`, []any{"2024-01-05"}},
		{ql.WhereDate("cus_joined", ql.OpEq, ql.SubExactDate, "2024-01-05"), `"t0"."joined" = $1`, []any{"2024-01-05"}},
		{
			ql.WhereDate("cus_joined", ql.OpIsWithin, ql.SubPastWeek, nil),
			`"t0"."joined" BETWEEN $1 AND $2`, []any{"2024-03-08", "2024-03-15"},
		},
		{
			ql.WhereDate("cus_joined", ql.OpIsWithin, ql.SubNextNumberOfDays, "10"),
			`"t0"."joined" BETWEEN $1 AND $2`, []any{"2024-03-15", "2024-03-25"},
		},
		{
			ql.WhereDate("cus_seen", ql.OpEq, ql.SubYesterday, nil),
			`("t0"."last_seen" >= $1 AND "t0"."last_seen" < $2)`, []any{day(14), day(15)},
		},
		{
			ql.WhereDate("cus_seen", ql.OpGt, ql.SubToday, nil),
			`"t0"."last_seen" >= $1`, []any{day(16)},
		},
		{
			ql.Where("cus_seen", ql.OpGt, "2024-03-01T12:00:00Z"),
			`"t0"."last_seen" > $1`, []any{time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)},
		},
		{
			ql.WhereDate("cus_seen", ql.OpIsWithin, ql.SubPastMonth, nil),
			`"t0"."last_seen" BETWEEN $1 AND $2`, []any{time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC), day(16).Add(-time.Microsecond)},
		},
		{ql.Where("cus_joined", ql.OpBlank, nil), `"t0"."joined" IS NULL`, nil},
		{ql.WhereDate("cus_joined", ql.OpEq, ql.SubDaysAgo, nil), "", nil},
	}
	for i, tt := range tests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			query, args, err := compile(t, "customers", tt.node)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, query)
			assert.Equal(t, tt.wantArgs, nilIfEmpty(args))
		})
	}
}

func TestValidation(t *testing.T) {
	tests := []ql.Node{
		ql.Where("cus_age", ql.OpLike, "1"),
		ql.Where("cus_active", ql.OpEq, true),
		ql.Where("cus_tags", ql.OpEq, "a"),
		ql.Where("cus_name", ql.OpChecked, nil),
		ql.Where("cus_joined", ql.OpIsWithin, nil),
		ql.WhereDate("cus_joined", ql.OpEq, ql.SubPastWeek, nil),
		ql.WhereDate("cus_name", ql.OpEq, ql.SubToday, nil),
		ql.Where("cus_age", ql.OpGt, "many"),
		ql.Where("cus_age", ql.OpGt, nil),
		ql.Where("cus_order_count", ql.OpLike, "1"),
		ql.And(ql.Where("cus_name", ql.OpEq, "a"), ql.Not(ql.Where("cus_orders", ql.OpLike, "x"))),
		&ql.Group{Logic: "xor", Children: []ql.Node{ql.Where("cus_name", ql.OpEq, "a")}},
	}
	for i, n := range tests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			_, _, err := compile(t, "customers", n)
			require.Error(t, err)
			assert.True(t, tabula.IsValidationError(err), "%v", err)
		})
	}
}

func TestUnknownColumn(t *testing.T) {
	_, _, err := compile(t, "customers", ql.Where("cus_missing", ql.OpEq, "a"))
	assert.True(t, tabula.IsNotFound(err))

	_, _, err = compile(t, "customers", ql.Where("ord_number", ql.OpEq, "a"))
	assert.True(t, tabula.IsValidationError(err))
}

// Every operator outside the legal set of a column type is rejected
// before any SQL is produced.
func TestOperatorLegality(t *testing.T) {
	reg := schematest.Registry(dialect.Postgres)
	ops := []ql.Op{
		ql.OpEq, ql.OpNeq, ql.OpLike, ql.OpNotLike, ql.OpGt, ql.OpLt, ql.OpGte, ql.OpLte,
		ql.OpIn, ql.OpIsWithin, ql.OpAnyOf, ql.OpNotAnyOf, ql.OpAllOf, ql.OpNotAllOf,
		ql.OpBlank, ql.OpNotBlank, ql.OpNull, ql.OpNotNull, ql.OpEmpty, ql.OpNotEmpty,
		ql.OpChecked, ql.OpNotChecked,
	}
	for _, m := range reg.Models() {
		for _, c := range m.Columns {
			if c.Type == field.Lookup {
				continue
			}
			for _, op := range ops {
				err := filter.Validate(reg, ql.Where(c.ID, op, "1"))
				if filter.Legal(c.Type, op) {
					continue
				}
				assert.True(t, tabula.IsValidationError(err), "%s %s", c.ID, op)
			}
		}
	}
}

func TestOps(t *testing.T) {
	assert.Equal(t, []ql.Op{ql.OpChecked, ql.OpNotChecked}, filter.Ops(field.Checkbox))
	assert.Contains(t, filter.Ops(field.Date), ql.OpIsWithin)
	assert.NotContains(t, filter.Ops(field.Number), ql.OpLike)
	assert.Empty(t, filter.Ops(field.Button))
	assert.True(t, filter.Legal(field.SingleLineText, ql.OpLike))
	assert.False(t, filter.Legal(field.Rollup, ql.OpBlank))
}

func TestDeterministic(t *testing.T) {
	n := ql.And(
		ql.WhereDate("cus_joined", ql.OpIsWithin, ql.SubPastYear, nil),
		ql.Where("cus_orders", ql.OpGte, 1.0),
		ql.Where("cus_tags", ql.OpAnyOf, "a,c"),
	)
	q1, a1, err := compile(t, "customers", n)
	require.NoError(t, err)
	q2, a2, err := compile(t, "customers", n)
	require.NoError(t, err)
	assert.Equal(t, q1, q2)
	assert.Equal(t, a1, a2)
}
