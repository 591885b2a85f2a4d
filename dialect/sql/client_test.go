package sql

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect"
)

func TestClientConcat(t *testing.T) {
	a, b := Col("t0", "a"), Col("t0", "b")
	tests := []struct {
		dialect   string
		fields    []Querier
		wantQuery string
	}{
		{dialect.Postgres, []Querier{a, Param("-"), b}, `CONCAT("t0"."a", $1, "t0"."b")`},
		{dialect.Postgres, []Querier{a}, `CONCAT("t0"."a", '')`},
		{dialect.Postgres, nil, `''`},
		{dialect.MSSQL, []Querier{a, b}, `CONCAT([t0].[a], [t0].[b])`},
		{dialect.MySQL, []Querier{a, Param("-")}, "CONCAT(COALESCE(`t0`.`a`, ''), COALESCE(?, ''))"},
		{dialect.SQLite, []Querier{a, Param("-")}, `(COALESCE("t0"."a", '') || COALESCE(?, ''))`},
		{dialect.Snowflake, []Querier{a}, `CONCAT(COALESCE(TO_VARCHAR("t0"."a"), ''), '')`},
	}
	for i, tt := range tests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			c := MustClient(tt.dialect)
			query, _, err := Build(tt.dialect, c.Concat(tt.fields...))
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuery, query)
		})
	}
}

func TestClientSimpleCast(t *testing.T) {
	f := Col("t0", "a")
	tests := []struct {
		dialect   string
		typ       string
		wantQuery string
	}{
		{dialect.Postgres, TypeText, `CAST("t0"."a" AS TEXT)`},
		{dialect.Postgres, TypeFloat, `CAST("t0"."a" AS DOUBLE PRECISION)`},
		{dialect.MySQL, TypeText, "CAST(`t0`.`a` AS CHAR)"},
		{dialect.MySQL, TypeInteger, "CAST(`t0`.`a` AS SIGNED)"},
		{dialect.MSSQL, TypeText, `CAST([t0].[a] AS NVARCHAR(MAX))`},
		{dialect.Snowflake, TypeText, `CAST("t0"."a" AS VARCHAR)`},
		{dialect.SQLite, TypeFloat, `CAST("t0"."a" AS REAL)`},
		{dialect.SQLite, TypeDate, `DATE("t0"."a")`},
		{dialect.Postgres, "numeric", `CAST("t0"."a" AS NUMERIC)`},
	}
	for i, tt := range tests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			query, _, err := Build(tt.dialect, MustClient(tt.dialect).SimpleCast(f, tt.typ))
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuery, query)
		})
	}

	_, _, err := Build(dialect.Postgres, MustClient(dialect.Postgres).SimpleCast(f, "text); DROP TABLE x; --"))
	require.Error(t, err)
}

func TestClientLiteralRowsAsTable(t *testing.T) {
	rows := [][]any{{1, "a"}, {2, "b"}}
	fields := []string{"id", "name"}
	tests := []struct {
		dialect   string
		rows      [][]any
		wantQuery string
		wantArgs  []any
	}{
		{
			dialect:   dialect.Postgres,
			rows:      rows,
			wantQuery: `SELECT "t9"."id" FROM (VALUES (CAST($1 AS BIGINT), CAST($2 AS TEXT)), ($3, $4)) AS "t9"("id", "name")`,
			wantArgs:  []any{1, "a", 2, "b"},
		},
		{
			dialect:   dialect.MySQL,
			rows:      rows,
			wantQuery: "SELECT `t9`.`id` FROM (VALUES ROW(?, ?), ROW(?, ?)) AS `t9`(`id`, `name`)",
			wantArgs:  []any{1, "a", 2, "b"},
		},
		{
			dialect:   dialect.SQLite,
			rows:      rows,
			wantQuery: `SELECT "t9"."id" FROM (SELECT ? AS "id", ? AS "name" UNION ALL SELECT ?, ?) AS "t9"`,
			wantArgs:  []any{1, "a", 2, "b"},
		},
		{
			dialect:   dialect.MSSQL,
			rows:      rows[:1],
			wantQuery: `SELECT [t9].[id] FROM (VALUES (@p1, @p2)) AS [t9]([id], [name])`,
			wantArgs:  []any{1, "a"},
		},
		{
			dialect:   dialect.Postgres,
			rows:      nil,
			wantQuery: `SELECT "t9"."id" FROM (SELECT NULL AS "id", NULL AS "name" WHERE 1 = 0) AS "t9"`,
		},
		{
			dialect:   dialect.Snowflake,
			rows:      [][]any{{1}},
			wantQuery: `SELECT "t9"."id" FROM (VALUES (?, ?)) AS "t9"("id", "name")`,
			wantArgs:  []any{1, nil},
		},
	}
	for i, tt := range tests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			v := MustClient(tt.dialect).LiteralRowsAsTable(tt.rows, fields, "t9")
			query, args, err := Build(tt.dialect, Dialect(tt.dialect).Select(v.C("id")).From(v))
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuery, query)
			assert.Equal(t, tt.wantArgs, args)
		})
	}

	v := MustClient(dialect.Postgres).LiteralRowsAsTable([][]any{{1, 2, 3}}, fields, "t9")
	_, _, err := Build(dialect.Postgres, Dialect(dialect.Postgres).Select().From(v))
	require.Error(t, err)
}

func TestClientAggregates(t *testing.T) {
	f := Col("t1", "name")
	tests := []struct {
		dialect   string
		wantQuery string
	}{
		{dialect.Postgres, `STRING_AGG(CAST("t1"."name" AS TEXT), ',')`},
		{dialect.MySQL, "GROUP_CONCAT(`t1`.`name` SEPARATOR ',')"},
		{dialect.SQLite, `GROUP_CONCAT("t1"."name", ',')`},
		{dialect.MSSQL, `STRING_AGG(CAST([t1].[name] AS NVARCHAR(MAX)), ',')`},
		{dialect.Snowflake, `LISTAGG("t1"."name", ',')`},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			agg, err := MustClient(tt.dialect).StringAgg(f, ",")
			require.NoError(t, err)
			query, _, err := Build(tt.dialect, agg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuery, query)
		})
	}

	for _, d := range []string{dialect.Postgres, dialect.Snowflake} {
		agg, err := MustClient(d).ArrayAgg(f)
		require.NoError(t, err)
		query, _, err := Build(d, agg)
		require.NoError(t, err)
		assert.Equal(t, `ARRAY_AGG("t1"."name")`, query)
	}
	for _, d := range []string{dialect.MySQL, dialect.SQLite, dialect.MSSQL} {
		_, err := MustClient(d).ArrayAgg(f)
		require.Error(t, err)
		assert.True(t, tabula.IsUnsupported(err))
	}
}

func TestNewClient(t *testing.T) {
	for _, d := range dialect.Dialects {
		c, err := NewClient(d)
		require.NoError(t, err)
		assert.Equal(t, d, c.Dialect())
	}
	c, err := NewClient("pg")
	require.NoError(t, err)
	assert.Equal(t, dialect.Postgres, c.Dialect())
	_, err = NewClient("oracle")
	require.Error(t, err)
	assert.Panics(t, func() { MustClient("oracle") })
}
