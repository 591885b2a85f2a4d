// Package rollup renders aggregations of related rows and of the rows of
// a view.
//
// A rollup column aggregates one column of the rows reached through a link
// column. It renders as a correlated scalar subquery, so it can be selected,
// filtered and sorted like any other column:
//
//	g := rollup.New()
//	sel, err := g.Build(ctx, scope, table, ordersLink, totalColumn, rollup.Sum)
//
// Bulk aggregations compute many metrics of a view in one statement, each
// metric a subquery over its own filtered row set.
package rollup
