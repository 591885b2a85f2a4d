// Package field defines the closed set of UI column types and their
// capabilities.
//
// Each type carries a fixed set of traits that the compilers dispatch on:
//
//	field.Number.Numeric()       // true
//	field.Number.Integral()      // true
//	field.DateTime.Temporal()    // true
//	field.Rollup.Virtual()       // true
//	field.Links.Relation()       // true
//
// Types marshal to and from their names, so metadata documents can use
// `type: SingleLineText`.
package field
