// Package edge defines the relation kinds between models.
//
//	edge.HasMany    // customers -> orders, orders.customer_id references customers.id
//	edge.BelongsTo  // orders -> customers, the inverse of HasMany
//	edge.ManyToMany // products <-> tags through a junction model
//
// A HasMany relation and the BelongsTo relation over the same foreign key
// are inverses of each other.
package edge
