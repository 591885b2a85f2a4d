package sql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/syssam/tabula/dialect"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithStatementTimeout(t *testing.T) {
	t.Run("Postgres", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		require.NoError(t, err)
		db.SetMaxOpenConns(1)
		drv := OpenDB(dialect.Postgres, db)
		mock.ExpectExec("SET statement_timeout = 1500").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
		mock.ExpectExec("RESET statement_timeout").WillReturnResult(sqlmock.NewResult(0, 0))

		ctx := WithStatementTimeout(context.Background(), 1500*time.Millisecond)
		_, values, err := QueryValues(ctx, drv, "SELECT 1", []any{})
		require.NoError(t, err)
		assert.Len(t, values, 1)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("MySQL", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		require.NoError(t, err)
		db.SetMaxOpenConns(1)
		drv := OpenDB(dialect.MySQL, db)
		mock.ExpectExec("SET SESSION max_execution_time = 1000").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("interrupted"))
		mock.ExpectExec("SET SESSION max_execution_time = DEFAULT").WillReturnResult(sqlmock.NewResult(0, 0))

		ctx := WithStatementTimeout(context.Background(), time.Second)
		_, _, err = QueryValues(ctx, drv, "SELECT 1", []any{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "interrupted")
		require.NoError(t, mock.ExpectationsWereMet(), "the session is reset when the statement fails")
	})

	t.Run("SetFails", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		require.NoError(t, err)
		db.SetMaxOpenConns(1)
		drv := OpenDB(dialect.Postgres, db)
		mock.ExpectExec("SET statement_timeout = 1000").WillReturnError(errors.New("permission denied"))

		ctx := WithStatementTimeout(context.Background(), time.Second)
		_, _, err = QueryValues(ctx, drv, "SELECT 1", []any{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "set statement timeout")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unsupported", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		require.NoError(t, err)
		drv := OpenDB(dialect.SQLite, db)
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

		ctx := WithStatementTimeout(context.Background(), time.Second)
		_, values, err := QueryValues(ctx, drv, "SELECT 1", []any{})
		require.NoError(t, err)
		assert.Len(t, values, 1)
		require.NoError(t, mock.ExpectationsWereMet())

		ctx = context.Background()
		assert.Equal(t, ctx, WithStatementTimeout(ctx, 0))
	})
}

func TestQueryInvalidArgs(t *testing.T) {
	drv := OpenDB(dialect.Postgres, nil)
	err := drv.Query(context.Background(), "SELECT 1", []any{}, new([]any))
	assert.ErrorContains(t, err, "expect *sql.Rows")
	err = drv.Query(context.Background(), "SELECT 1", "arg", &Rows{})
	assert.ErrorContains(t, err, "expect []any for args")
}

func TestQueryValues(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.Postgres, db)

	t.Run("Scan", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, name FROM users WHERE id > \\$1").
			WithArgs(0).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
				AddRow(1, []byte("Alice")).
				AddRow(2, nil))
		columns, values, err := QueryValues(context.Background(), drv, "SELECT id, name FROM users WHERE id > $1", []any{0})
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "name"}, columns)
		require.Len(t, values, 2)
		assert.Equal(t, "Alice", values[0][1])
		assert.Nil(t, values[1][1])
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error", func(t *testing.T) {
		mock.ExpectQuery("SELECT").WillReturnError(errors.New("database error"))
		_, _, err := QueryValues(context.Background(), drv, "SELECT", []any{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dialect/sql: query: database error")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDriverName(t *testing.T) {
	assert.Equal(t, "postgres", DriverName(dialect.Postgres))
	assert.Equal(t, "mysql", DriverName(dialect.MySQL))
	assert.Equal(t, "sqlite", DriverName(dialect.SQLite))
	assert.Equal(t, "sqlserver", DriverName(dialect.MSSQL))
	assert.Equal(t, "snowflake", DriverName(dialect.Snowflake))
	assert.Equal(t, "postgres", ConnConfig{Dialect: "pg"}.DriverName())
	assert.Equal(t, "pgx", ConnConfig{Dialect: "pg", Driver: "pgx"}.DriverName())
}

func TestDialectMethod(t *testing.T) {
	for _, d := range dialect.Dialects {
		t.Run(d, func(t *testing.T) {
			db, _, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			drv := OpenDB(d, db)
			assert.Equal(t, d, drv.Dialect())
		})
	}
}
