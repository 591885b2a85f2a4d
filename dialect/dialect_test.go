package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"pg":         Postgres,
		"PostgreSQL": Postgres,
		"sqlite":     SQLite,
		"mysql2":     MySQL,
		"sqlserver":  MSSQL,
		"snowflake":  Snowflake,
		" mysql ":    MySQL,
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestValid(t *testing.T) {
	for _, d := range Dialects {
		assert.True(t, Valid(d))
	}
	assert.False(t, Valid("oracle"))
	assert.False(t, Valid(""))
}
