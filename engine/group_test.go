package engine

import (
	"context"
	"strconv"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect"
	ql "github.com/syssam/tabula/querylanguage"
	"github.com/syssam/tabula/schema"
)

func TestGroupBy(t *testing.T) {
	e, mock := newEngine(t, dialect.Postgres)
	ctx := context.Background()
	opts := GroupByOptions{
		Columns: []string{"Status", "cus_active"},
		Sorts:   []schema.Sort{{ColumnID: "cus_name"}, {ColumnID: "cus_status", Desc: true}},
		Limit:   10,
	}
	st, err := e.CompileGroupBy(ctx, "customers_grid", opts)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "g"."cus_status" AS "cus_status", "g"."cus_active" AS "cus_active", COUNT(*) AS "count" `+
		`FROM (SELECT "t0"."status" AS "cus_status", "t0"."active" AS "cus_active" FROM "customers" AS "t0") AS "g" `+
		`GROUP BY "g"."cus_status", "g"."cus_active" ORDER BY "g"."cus_status" DESC, "g"."cus_active" LIMIT $1`, st.SQL)
	assert.Equal(t, []any{10}, st.Args)

	mock.ExpectQuery(st.SQL).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"cus_status", "cus_active", "count"}).
			AddRow("vip", int64(1), int64(3)).
			AddRow(nil, int64(0), int64(5)))
	groups, err := e.GroupBy(ctx, "customers_grid", opts)
	require.NoError(t, err)
	assert.Equal(t, []Group{
		{Values: Row{"Status": "vip", "Active": true}, Count: 3},
		{Values: Row{"Status": nil, "Active": false}, Count: 5},
	}, groups)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupByCount(t *testing.T) {
	e, mock := newEngine(t, dialect.Postgres)
	mock.ExpectQuery(`SELECT COUNT(*) FROM (SELECT "g"."cus_status" AS "cus_status", COUNT(*) AS "count" ` +
		`FROM (SELECT "t0"."status" AS "cus_status" FROM "customers" AS "t0" WHERE "t0"."active" = $1) AS "g" ` +
		`GROUP BY "g"."cus_status") AS "count_rows"`).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))
	n, err := e.GroupByCount(context.Background(), "customers_active", GroupByOptions{Columns: []string{"cus_status"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupByDialects(t *testing.T) {
	e, _ := newEngine(t, dialect.MSSQL)
	st, err := e.CompileGroupBy(context.Background(), "customers_grid", GroupByOptions{
		Columns: []string{"cus_double_age"},
		Limit:   5,
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT [g].[cus_double_age] AS [cus_double_age], COUNT(*) AS [count] `+
		`FROM (SELECT ([t0].[age] * 2) AS [cus_double_age] FROM [customers] AS [t0]) AS [g] `+
		`GROUP BY [g].[cus_double_age] ORDER BY [g].[cus_double_age] OFFSET @p1 ROWS FETCH NEXT @p2 ROWS ONLY`, st.SQL)
}

func TestGroupByErrors(t *testing.T) {
	e, _ := newEngine(t, dialect.Postgres)
	ctx := context.Background()
	tests := []struct {
		view  string
		opts  GroupByOptions
		check func(error) bool
	}{
		{view: "customers_grid", check: tabula.IsValidationError},
		{view: "customers_grid", opts: GroupByOptions{Columns: []string{"nope"}}, check: tabula.IsValidationError},
		{view: "customers_grid", opts: GroupByOptions{Columns: []string{"cus_status"}, Limit: -1}, check: tabula.IsValidationError},
		{view: "customers_grid", opts: GroupByOptions{Columns: []string{"cus_status"}, Filter: ql.Where("cus_age", ql.OpLike, "x")}, check: tabula.IsValidationError},
		{view: "customers_grid", opts: GroupByOptions{Columns: []string{"cus_slug"}}, check: tabula.IsUnsupported},
		{view: "missing", opts: GroupByOptions{Columns: []string{"cus_status"}}, check: tabula.IsNotFound},
	}
	for i, tt := range tests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			_, err := e.GroupBy(ctx, tt.view, tt.opts)
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}
}
