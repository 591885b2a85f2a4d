package sql

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect"
)

// Logical cast targets understood by every Client.
const (
	TypeText     = "TEXT"
	TypeFloat    = "FLOAT"
	TypeInteger  = "INTEGER"
	TypeDate     = "DATE"
	TypeDateTime = "DATETIME"
	TypeBoolean  = "BOOLEAN"
)

// Client renders the constructs whose syntax differs between dialects.
// Supporting a new dialect means implementing this interface.
type Client interface {
	// Dialect returns the dialect name of the client.
	Dialect() string
	// Concat joins the string forms of the fields. NULL fields concatenate as empty strings.
	Concat(fields ...Querier) Fragment
	// SimpleCast casts a field to one of the logical Type* targets.
	SimpleCast(field Querier, typ string) Fragment
	// LiteralRowsAsTable renders rows as an aliased inline table with
	// one bound parameter per value.
	LiteralRowsAsTable(rows [][]any, fields []string, alias string) *ValuesTable
	// StringAgg aggregates the string forms of expr separated by sep.
	StringAgg(expr Querier, sep string) (Fragment, error)
	// ArrayAgg aggregates expr into an array.
	ArrayAgg(expr Querier) (Fragment, error)
}

// NewClient returns the Client of the given dialect.
func NewClient(d string) (Client, error) {
	switch dialect.Normalize(d) {
	case dialect.Postgres:
		return postgresClient{}, nil
	case dialect.MySQL:
		return mysqlClient{}, nil
	case dialect.SQLite:
		return sqliteClient{}, nil
	case dialect.MSSQL:
		return mssqlClient{}, nil
	case dialect.Snowflake:
		return snowflakeClient{}, nil
	}
	return nil, fmt.Errorf("sql: unknown dialect %q", d)
}

// MustClient is like NewClient but panics on unknown dialects.
func MustClient(d string) Client {
	c, err := NewClient(d)
	if err != nil {
		panic(err)
	}
	return c
}

var castTypeRe = regexp.MustCompile(`^[A-Z][A-Z0-9_ ()]*$`)

// cast writes CAST(field AS typ) with typ looked up in types.
func cast(types map[string]string, field Querier, typ string) Fragment {
	return func(b *Builder) {
		t, ok := types[strings.ToUpper(typ)]
		if !ok {
			t = strings.ToUpper(typ)
			if !castTypeRe.MatchString(t) {
				b.AddError(fmt.Errorf("sql: invalid cast type %q", typ))
				return
			}
		}
		b.WriteString("CAST(").Join(field).WriteString(" AS " + t + ")")
	}
}

// concatFunc writes CONCAT(f1, f2, ...). A single field is concatenated
// with an empty string to keep the NULL-as-empty behavior.
func concatFunc(fields []Querier) Fragment {
	return func(b *Builder) {
		if len(fields) == 0 {
			b.WriteString("''")
			return
		}
		b.WriteString("CONCAT(")
		for i, f := range fields {
			if i > 0 {
				b.Comma()
			}
			b.Join(f)
		}
		if len(fields) == 1 {
			b.WriteString(", ''")
		}
		b.WriteByte(')')
	}
}

// stringLit returns sep as an SQL string literal.
func stringLit(d, s string) string {
	s = strings.ReplaceAll(s, "'", "''")
	if d == dialect.MySQL {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}
	return "'" + s + "'"
}

func newValues(rows [][]any, fields []string, alias string, render func(*Builder, *ValuesTable)) *ValuesTable {
	return &ValuesTable{Rows: rows, Columns: fields, as: alias, render: render}
}

// writeValues writes the standard `(VALUES (..), (..)) AS alias(c1, ..)` form.
func writeValues(b *Builder, v *ValuesTable, rowKeyword bool) {
	if len(v.Rows) == 0 {
		writeEmptyValues(b, v)
		return
	}
	b.WriteString("(VALUES ")
	for i, row := range v.Rows {
		if i > 0 {
			b.Comma()
		}
		if rowKeyword {
			b.WriteString("ROW")
		}
		writeRow(b, v, row, nil)
	}
	b.WriteString(") AS ").Ident(v.as)
	writeFieldList(b, v.Columns)
}

func writeRow(b *Builder, v *ValuesTable, row []any, typeOf func(any) string) {
	if len(row) > len(v.Columns) {
		b.AddError(fmt.Errorf("sql: row has %d values for %d fields", len(row), len(v.Columns)))
	}
	b.Wrap(func(b *Builder) {
		for j := range v.Columns {
			if j > 0 {
				b.Comma()
			}
			var val any
			if j < len(row) {
				val = row[j]
			}
			if typeOf != nil {
				if t := typeOf(val); t != "" {
					b.WriteString("CAST(").Arg(val).WriteString(" AS " + t + ")")
					continue
				}
			}
			b.Arg(val)
		}
	})
}

func writeFieldList(b *Builder, fields []string) {
	b.Wrap(func(b *Builder) {
		for i, f := range fields {
			if i > 0 {
				b.Comma()
			}
			b.Ident(f)
		}
	})
}

// writeEmptyValues writes a zero-row table with the given fields.
func writeEmptyValues(b *Builder, v *ValuesTable) {
	b.WriteString("(SELECT ")
	for i, f := range v.Columns {
		if i > 0 {
			b.Comma()
		}
		b.WriteString("NULL AS ").Ident(f)
	}
	b.WriteString(" WHERE 1 = 0) AS ").Ident(v.as)
}

type postgresClient struct{}

var postgresTypes = map[string]string{
	TypeText:     "TEXT",
	TypeFloat:    "DOUBLE PRECISION",
	TypeInteger:  "BIGINT",
	TypeDate:     "DATE",
	TypeDateTime: "TIMESTAMP",
	TypeBoolean:  "BOOLEAN",
}

func (postgresClient) Dialect() string { return dialect.Postgres }

func (postgresClient) Concat(fields ...Querier) Fragment { return concatFunc(fields) }

func (postgresClient) SimpleCast(field Querier, typ string) Fragment {
	return cast(postgresTypes, field, typ)
}

// LiteralRowsAsTable types the first row explicitly, since Postgres
// resolves untyped parameters in VALUES lists as text.
func (postgresClient) LiteralRowsAsTable(rows [][]any, fields []string, alias string) *ValuesTable {
	return newValues(rows, fields, alias, func(b *Builder, v *ValuesTable) {
		if len(v.Rows) == 0 {
			writeEmptyValues(b, v)
			return
		}
		b.WriteString("(VALUES ")
		for i, row := range v.Rows {
			if i > 0 {
				b.Comma()
				writeRow(b, v, row, nil)
				continue
			}
			writeRow(b, v, row, postgresTypeOf)
		}
		b.WriteString(") AS ").Ident(v.as)
		writeFieldList(b, v.Columns)
	})
}

func postgresTypeOf(v any) string {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return "BIGINT"
	case float32, float64:
		return "DOUBLE PRECISION"
	case bool:
		return "BOOLEAN"
	case time.Time:
		return "TIMESTAMPTZ"
	case string:
		return "TEXT"
	}
	return ""
}

func (postgresClient) StringAgg(expr Querier, sep string) (Fragment, error) {
	return func(b *Builder) {
		b.WriteString("STRING_AGG(CAST(").Join(expr).WriteString(" AS TEXT), " + stringLit(dialect.Postgres, sep) + ")")
	}, nil
}

func (postgresClient) ArrayAgg(expr Querier) (Fragment, error) {
	return Func("ARRAY_AGG", expr), nil
}

type mysqlClient struct{}

var mysqlTypes = map[string]string{
	TypeText:     "CHAR",
	TypeFloat:    "DOUBLE",
	TypeInteger:  "SIGNED",
	TypeDate:     "DATE",
	TypeDateTime: "DATETIME",
	TypeBoolean:  "UNSIGNED",
}

func (mysqlClient) Dialect() string { return dialect.MySQL }

func (mysqlClient) Concat(fields ...Querier) Fragment {
	// MySQL CONCAT yields NULL if any argument is NULL.
	wrapped := make([]Querier, len(fields))
	for i, f := range fields {
		wrapped[i] = Func("COALESCE", f, Raw("''"))
	}
	return concatFunc(wrapped)
}

func (mysqlClient) SimpleCast(field Querier, typ string) Fragment {
	return cast(mysqlTypes, field, typ)
}

func (mysqlClient) LiteralRowsAsTable(rows [][]any, fields []string, alias string) *ValuesTable {
	return newValues(rows, fields, alias, func(b *Builder, v *ValuesTable) {
		writeValues(b, v, true)
	})
}

func (mysqlClient) StringAgg(expr Querier, sep string) (Fragment, error) {
	return func(b *Builder) {
		b.WriteString("GROUP_CONCAT(").Join(expr).WriteString(" SEPARATOR " + stringLit(dialect.MySQL, sep) + ")")
	}, nil
}

func (mysqlClient) ArrayAgg(Querier) (Fragment, error) {
	return nil, tabula.NewUnsupportedError("ARRAY_AGG", dialect.MySQL)
}

type sqliteClient struct{}

var sqliteTypes = map[string]string{
	TypeText:    "TEXT",
	TypeFloat:   "REAL",
	TypeInteger: "INTEGER",
	TypeBoolean: "INTEGER",
}

func (sqliteClient) Dialect() string { return dialect.SQLite }

// Concat uses the || operator, guarding every field against NULL.
func (sqliteClient) Concat(fields ...Querier) Fragment {
	return func(b *Builder) {
		if len(fields) == 0 {
			b.WriteString("''")
			return
		}
		b.Wrap(func(b *Builder) {
			for i, f := range fields {
				if i > 0 {
					b.WriteString(" || ")
				}
				b.WriteString("COALESCE(").Join(f).WriteString(", '')")
			}
		})
	}
}

// SimpleCast uses the DATE and DATETIME functions for temporal targets,
// as SQLite has no temporal storage classes.
func (sqliteClient) SimpleCast(field Querier, typ string) Fragment {
	switch strings.ToUpper(typ) {
	case TypeDate:
		return Func("DATE", field)
	case TypeDateTime:
		return Func("DATETIME", field)
	}
	return cast(sqliteTypes, field, typ)
}

// LiteralRowsAsTable uses a UNION ALL of selects, since SQLite does not
// accept column aliases on VALUES tables.
func (sqliteClient) LiteralRowsAsTable(rows [][]any, fields []string, alias string) *ValuesTable {
	return newValues(rows, fields, alias, func(b *Builder, v *ValuesTable) {
		if len(v.Rows) == 0 {
			writeEmptyValues(b, v)
			return
		}
		b.WriteByte('(')
		for i, row := range v.Rows {
			if i > 0 {
				b.WriteString(" UNION ALL ")
			}
			if len(row) > len(v.Columns) {
				b.AddError(fmt.Errorf("sql: row has %d values for %d fields", len(row), len(v.Columns)))
			}
			b.WriteString("SELECT ")
			for j, f := range v.Columns {
				if j > 0 {
					b.Comma()
				}
				var val any
				if j < len(row) {
					val = row[j]
				}
				b.Arg(val)
				if i == 0 {
					b.WriteString(" AS ").Ident(f)
				}
			}
		}
		b.WriteString(") AS ").Ident(v.as)
	})
}

func (sqliteClient) StringAgg(expr Querier, sep string) (Fragment, error) {
	return func(b *Builder) {
		b.WriteString("GROUP_CONCAT(").Join(expr).WriteString(", " + stringLit(dialect.SQLite, sep) + ")")
	}, nil
}

func (sqliteClient) ArrayAgg(Querier) (Fragment, error) {
	return nil, tabula.NewUnsupportedError("ARRAY_AGG", dialect.SQLite)
}

type mssqlClient struct{}

var mssqlTypes = map[string]string{
	TypeText:     "NVARCHAR(MAX)",
	TypeFloat:    "FLOAT",
	TypeInteger:  "BIGINT",
	TypeDate:     "DATE",
	TypeDateTime: "DATETIME2",
	TypeBoolean:  "BIT",
}

func (mssqlClient) Dialect() string { return dialect.MSSQL }

func (mssqlClient) Concat(fields ...Querier) Fragment { return concatFunc(fields) }

func (mssqlClient) SimpleCast(field Querier, typ string) Fragment {
	return cast(mssqlTypes, field, typ)
}

func (mssqlClient) LiteralRowsAsTable(rows [][]any, fields []string, alias string) *ValuesTable {
	return newValues(rows, fields, alias, func(b *Builder, v *ValuesTable) {
		writeValues(b, v, false)
	})
}

func (mssqlClient) StringAgg(expr Querier, sep string) (Fragment, error) {
	return func(b *Builder) {
		b.WriteString("STRING_AGG(CAST(").Join(expr).WriteString(" AS NVARCHAR(MAX)), " + stringLit(dialect.MSSQL, sep) + ")")
	}, nil
}

func (mssqlClient) ArrayAgg(Querier) (Fragment, error) {
	return nil, tabula.NewUnsupportedError("ARRAY_AGG", dialect.MSSQL)
}

type snowflakeClient struct{}

var snowflakeTypes = map[string]string{
	TypeText:     "VARCHAR",
	TypeFloat:    "FLOAT",
	TypeInteger:  "INTEGER",
	TypeDate:     "DATE",
	TypeDateTime: "TIMESTAMP_NTZ",
	TypeBoolean:  "BOOLEAN",
}

func (snowflakeClient) Dialect() string { return dialect.Snowflake }

func (snowflakeClient) Concat(fields ...Querier) Fragment {
	wrapped := make([]Querier, len(fields))
	for i, f := range fields {
		wrapped[i] = Func("COALESCE", Func("TO_VARCHAR", f), Raw("''"))
	}
	return concatFunc(wrapped)
}

func (snowflakeClient) SimpleCast(field Querier, typ string) Fragment {
	return cast(snowflakeTypes, field, typ)
}

func (snowflakeClient) LiteralRowsAsTable(rows [][]any, fields []string, alias string) *ValuesTable {
	return newValues(rows, fields, alias, func(b *Builder, v *ValuesTable) {
		writeValues(b, v, false)
	})
}

func (snowflakeClient) StringAgg(expr Querier, sep string) (Fragment, error) {
	return func(b *Builder) {
		b.WriteString("LISTAGG(").Join(expr).WriteString(", " + stringLit(dialect.Snowflake, sep) + ")")
	}, nil
}

func (snowflakeClient) ArrayAgg(expr Querier) (Fragment, error) {
	return Func("ARRAY_AGG", expr), nil
}

var (
	_ Client = postgresClient{}
	_ Client = mysqlClient{}
	_ Client = sqliteClient{}
	_ Client = mssqlClient{}
	_ Client = snowflakeClient{}
)
