// Package schema holds the read-only metadata snapshot the query engine
// compiles against: sources, models, columns and views.
//
// Objects live in a [Registry] addressed by stable ids. Relations between
// models are stored as id pairs in [LinkOptions], so the graph of models
// referencing each other never forms pointer cycles:
//
//	reg := schema.NewRegistry()
//	reg.AddSource(&schema.Source{ID: "main", Conn: sql.ConnConfig{Dialect: dialect.Postgres}})
//	reg.AddModel(&schema.Model{
//	    ID: "customers", Table: "customers", SourceID: "main",
//	    Columns: []*schema.Column{
//	        {ID: "c_id", Title: "Id", Type: field.ID, PrimaryKey: true},
//	        {ID: "c_name", Title: "Name", Type: field.SingleLineText, DisplayValue: true},
//	        {ID: "c_orders", Title: "Orders", Type: field.Links, Options: &schema.LinkOptions{
//	            Rel: edge.HasMany, ParentModelID: "customers", ChildModelID: "orders",
//	            ParentColumnID: "c_id", ChildColumnID: "o_customer_id",
//	        }},
//	    },
//	})
//	if err := reg.Validate().Err(); err != nil {
//	    return err
//	}
//
// Snapshots can also be loaded from YAML with [Load] and [LoadFile].
//
// The UI types of columns are defined in [field] and the relation kinds in [edge].
package schema
