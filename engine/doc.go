// Package engine composes the compilers of tabula into the statements run
// for a view: lists, reads, bulk aggregations and link expansions.
//
// An Engine holds a metadata snapshot and a pool of connections keyed by
// source configuration. Each request compiles its statement in a scope of
// its own, so requests run in parallel:
//
//	reg, err := schema.LoadFile("schema.yaml")
//	if err != nil {
//		return err
//	}
//	e, err := engine.New(reg, engine.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer e.Close()
//	res, err := e.List(ctx, "customers_grid", engine.ListOptions{
//		Filter: querylanguage.Where("cus_age", querylanguage.OpGt, 25),
//		Limit:  50,
//	})
//
// The Compile variants return the statements without running them.
package engine
