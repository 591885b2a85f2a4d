// Package formula parses spreadsheet style formulas and compiles them into
// SQL expressions over the columns of a model.
//
//	c := formula.NewCompiler(cache)
//	compiled, err := c.CompileText(ctx, scope, scope.Root(m), `IF({Age} > 18, "adult", "minor")`)
//
// Formulas using a function without an SQL form in the dialect compile to
// a host Program instead, evaluated over the rows read from the database.
// Functions with neither form fail the compile with an unsupported error.
package formula
