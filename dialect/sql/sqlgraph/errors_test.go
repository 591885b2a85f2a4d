package sqlgraph

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

type pgxError struct{ code string }

func (e pgxError) Error() string    { return "pgx: " + e.code }
func (e pgxError) SQLState() string { return e.code }

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindUnknown},
		{errors.New("boom"), KindUnknown},
		{context.Canceled, KindCanceled},
		{fmt.Errorf("query: %w", context.DeadlineExceeded), KindCanceled},
		{driver.ErrBadConn, KindConnection},
		{&pq.Error{Code: "23505"}, KindUniqueConstraint},
		{&pq.Error{Code: "23503"}, KindForeignKeyConstraint},
		{&pq.Error{Code: "23514"}, KindCheckConstraint},
		{&pq.Error{Code: "23502"}, KindNotNullConstraint},
		{fmt.Errorf("wrap: %w", &pq.Error{Code: "42P01"}), KindUndefinedObject},
		{&pq.Error{Code: "42601"}, KindSyntax},
		{&pq.Error{Code: "08006"}, KindConnection},
		{&pq.Error{Code: "57014"}, KindCanceled},
		{pgxError{"23505"}, KindUniqueConstraint},
		{&mysql.MySQLError{Number: 1062}, KindUniqueConstraint},
		{&mysql.MySQLError{Number: 1452}, KindForeignKeyConstraint},
		{&mysql.MySQLError{Number: 1054}, KindUndefinedObject},
		{&mysql.MySQLError{Number: 3024}, KindCanceled},
		{errors.New("UNIQUE constraint failed: orders.number"), KindUniqueConstraint},
		{errors.New("SQL logic error: no such column: t0.missing (1)"), KindUndefinedObject},
		{errors.New("Incorrect syntax near 'FROM'."), KindSyntax},
		{errors.New("Cannot insert the value NULL into column 'name'"), KindNotNullConstraint},
	}
	for i, tt := range tests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestConstraintHelpers(t *testing.T) {
	unique := &pq.Error{Code: "23505"}
	assert.True(t, IsConstraintError(unique))
	assert.True(t, IsUniqueConstraintError(unique))
	assert.False(t, IsForeignKeyConstraintError(unique))
	assert.True(t, IsForeignKeyConstraintError(&mysql.MySQLError{Number: 1451}))
	assert.True(t, IsCheckConstraintError(errors.New("CHECK constraint failed: total")))
	assert.False(t, IsConstraintError(&pq.Error{Code: "42601"}))
	assert.Equal(t, "unique_constraint", KindUniqueConstraint.String())
	assert.Equal(t, "unknown", ErrorKind(200).String())
}
