package sqlgraph_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect"
	"github.com/syssam/tabula/dialect/sql/sqlgraph"
)

func TestLookup(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		dialect string
		model   string
		column  string
		want    string
	}{
		{
			name: "BelongsTo", dialect: dialect.Postgres, model: "orders", column: "ord_customer_name",
			want: `SELECT "t1"."name" FROM "customers" AS "t1" WHERE "t1"."id" = "t0"."customer_id"`,
		},
		{
			name: "HasManyPostgres", dialect: dialect.Postgres, model: "customers", column: "cus_order_numbers",
			want: `SELECT STRING_AGG(CAST("t1"."number" AS TEXT), ',') FROM "orders" AS "t1" WHERE "t1"."customer_id" = "t0"."id"`,
		},
		{
			name: "HasManySQLite", dialect: dialect.SQLite, model: "customers", column: "cus_order_numbers",
			want: `SELECT GROUP_CONCAT("t1"."number", ',') FROM "orders" AS "t1" WHERE "t1"."customer_id" = "t0"."id"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newScope(t, tt.dialect)
			q, err := sqlgraph.Lookup(ctx, s, s.Root(model(t, s, tt.model)), col(t, s, tt.column))
			require.NoError(t, err)
			query, _ := build(t, tt.dialect, q)
			assert.Equal(t, tt.want, query)
		})
	}
}

func TestLookupNotLookup(t *testing.T) {
	s := newScope(t, dialect.Postgres)
	_, err := sqlgraph.Lookup(context.Background(), s, s.Root(model(t, s, "customers")), col(t, s, "cus_name"))
	assert.True(t, tabula.IsValidationError(err))
}
