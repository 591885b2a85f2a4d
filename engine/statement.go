package engine

import (
	"fmt"

	"github.com/syssam/tabula/dialect/sql"
)

// Statement is a compiled statement: dialect SQL and its positional
// arguments. Compiling the same request twice yields equal statements.
type Statement struct {
	SQL  string
	Args []any
	// Columns are the aliases of the selected columns.
	Columns []string
}

// String returns the SQL of the statement.
func (st *Statement) String() string { return st.SQL }

func build(d string, sel *sql.Selector) (*Statement, error) {
	query, args, err := sql.Build(d, sel)
	if err != nil {
		return nil, fmt.Errorf("engine: build statement: %w", err)
	}
	return &Statement{SQL: query, Args: args, Columns: sel.SelectedColumns()}, nil
}

// Row is a record keyed by column title.
type Row map[string]any
