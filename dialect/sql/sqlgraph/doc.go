// Package sqlgraph resolves relations between models into SQL fragments.
//
// A Scope holds the state of one statement: the aliases allocated so far,
// the nesting depth of virtual columns and the soft formula errors. The
// driving table is always aliased t0 and every related table takes the
// next free alias, so the same input compiles to the same statement.
//
//	s, _ := sqlgraph.NewScope(reg, src)
//	root := s.Root(customers)
//	j, err := sqlgraph.Resolve(ctx, s, root, ordersLink)
//	if err != nil {
//		return err
//	}
//	count := j.Subquery(sql.Raw("COUNT(*)"))
//
// Relations to models of another source are inlined as literal rows,
// fetched through the scope's RemoteProxy by Scope.Materialize before the
// statement is built.
package sqlgraph
