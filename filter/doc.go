// Package filter compiles filter trees into SQL predicates.
//
// Every UI type has a handler listing the operators legal for it. A leaf
// with an illegal operator is rejected with a validation error before any
// SQL is produced:
//
//	p, err := filter.New().Build(ctx, scope, scope.Root(m),
//		querylanguage.Where("cus_age", querylanguage.OpGt, 25))
//
// Lookups are filtered with the handler of the column they look up, links
// by the display value of the related rows.
package filter
