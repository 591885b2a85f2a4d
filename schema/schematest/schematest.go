// Package schematest provides a metadata fixture for tests of the packages
// compiling against a schema.Registry.
//
// The fixture holds a customers/orders has-many pair with its mirrored
// belongs-to column, a students/courses many-to-many pair through an
// enrollments junction, and an invoices model living in a second source.
package schematest

import (
	"github.com/syssam/tabula/dialect"
	"github.com/syssam/tabula/dialect/sql"
	"github.com/syssam/tabula/querylanguage"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/edge"
	"github.com/syssam/tabula/schema/field"
)

// Source ids.
const (
	MainSource      = "main"
	WarehouseSource = "warehouse"
)

// Models returns the fixture models.
func Models() []*schema.Model {
	return []*schema.Model{
		{
			ID: "customers", Title: "Customers", Table: "customers", SourceID: MainSource,
			Columns: []*schema.Column{
				{ID: "cus_id", Title: "Id", Name: "id", Type: field.ID, PrimaryKey: true, System: true},
				{ID: "cus_name", Title: "Name", Type: field.SingleLineText, DisplayValue: true},
				{ID: "cus_email", Title: "Email", Type: field.Email},
				{ID: "cus_age", Title: "Age", Type: field.Number},
				{ID: "cus_score", Title: "Score", Type: field.Decimal},
				{ID: "cus_joined", Title: "Joined", Type: field.Date, Meta: schema.Meta{DateFormat: "YYYY-MM-DD"}},
				{ID: "cus_seen", Title: "Last Seen", Type: field.DateTime},
				{ID: "cus_active", Title: "Active", Type: field.Checkbox},
				{ID: "cus_status", Title: "Status", Type: field.SingleSelect, Options: &schema.SelectOptions{Choices: []string{"new", "vip"}}},
				{ID: "cus_tags", Title: "Tags", Type: field.MultiSelect, Options: &schema.SelectOptions{Choices: []string{"a", "b", "c"}}},
				{ID: "cus_orders", Title: "Orders", Type: field.Links, Options: &schema.LinkOptions{
					Rel:            edge.HasMany,
					ParentModelID:  "customers",
					ChildModelID:   "orders",
					ParentColumnID: "cus_id",
					ChildColumnID:  "ord_customer_id",
				}},
				{ID: "cus_order_count", Title: "Order Count", Type: field.Rollup, Options: &schema.RollupOptions{
					RelationColumnID: "cus_orders", TargetColumnID: "ord_id", Function: "count",
				}},
				{ID: "cus_total_spent", Title: "Total Spent", Type: field.Rollup, Options: &schema.RollupOptions{
					RelationColumnID: "cus_orders", TargetColumnID: "ord_total", Function: "sum",
				}},
				{ID: "cus_order_numbers", Title: "Order Numbers", Type: field.Lookup, Options: &schema.LookupOptions{
					RelationColumnID: "cus_orders", TargetColumnID: "ord_number",
				}},
				{ID: "cus_label", Title: "Label", Type: field.Formula, Options: &schema.FormulaOptions{
					Expression: `CONCAT({cus_joined}, "-", {cus_name})`,
				}},
				{ID: "cus_double_age", Title: "Double Age", Type: field.Formula, Options: &schema.FormulaOptions{
					Expression: "{Age} * 2",
				}},
				{ID: "cus_broken", Title: "Broken", Type: field.Formula, Options: &schema.FormulaOptions{
					Expression: "{cus_removed} + 1",
				}},
				{ID: "cus_invoices", Title: "Invoices", Type: field.Links, Options: &schema.LinkOptions{
					Rel:            edge.HasMany,
					ParentModelID:  "customers",
					ChildModelID:   "invoices",
					ParentColumnID: "cus_id",
					ChildColumnID:  "inv_customer_id",
				}},
			},
		},
		{
			ID: "orders", Title: "Orders", Table: "orders", SourceID: MainSource,
			Columns: []*schema.Column{
				{ID: "ord_id", Title: "Id", Name: "id", Type: field.ID, PrimaryKey: true, System: true},
				{ID: "ord_number", Title: "Number", Type: field.SingleLineText, DisplayValue: true},
				{ID: "ord_total", Title: "Total", Type: field.Decimal},
				{ID: "ord_placed", Title: "Placed", Type: field.DateTime},
				{ID: "ord_customer_id", Title: "Customer Id", Name: "customer_id", Type: field.ForeignKey, System: true},
				{ID: "ord_customer", Title: "Customer", Type: field.LinkToAnotherRecord, Options: &schema.LinkOptions{
					Rel:            edge.BelongsTo,
					ChildModelID:   "orders",
					ParentModelID:  "customers",
					ChildColumnID:  "ord_customer_id",
					ParentColumnID: "cus_id",
				}},
				{ID: "ord_customer_name", Title: "Customer Name", Type: field.Lookup, Options: &schema.LookupOptions{
					RelationColumnID: "ord_customer", TargetColumnID: "cus_name",
				}},
			},
		},
		{
			ID: "students", Title: "Students", Table: "students", SourceID: MainSource,
			Columns: []*schema.Column{
				{ID: "stu_id", Title: "Id", Name: "id", Type: field.ID, PrimaryKey: true, System: true},
				{ID: "stu_name", Title: "Name", Type: field.SingleLineText, DisplayValue: true},
				{ID: "stu_courses", Title: "Courses", Type: field.LinkToAnotherRecord, Options: &schema.LinkOptions{
					Rel:                    edge.ManyToMany,
					ChildModelID:           "students",
					ParentModelID:          "courses",
					ChildColumnID:          "stu_id",
					ParentColumnID:         "crs_id",
					JunctionModelID:        "enrollments",
					JunctionChildColumnID:  "enr_student_id",
					JunctionParentColumnID: "enr_course_id",
				}},
				{ID: "stu_open_courses", Title: "Open Courses", Type: field.LinkToAnotherRecord, Options: &schema.LinkOptions{
					Rel:                    edge.ManyToMany,
					ChildModelID:           "students",
					ParentModelID:          "courses",
					ChildColumnID:          "stu_id",
					ParentColumnID:         "crs_id",
					JunctionModelID:        "enrollments",
					JunctionChildColumnID:  "enr_student_id",
					JunctionParentColumnID: "enr_course_id",
					Filter:                 querylanguage.Where("crs_open", querylanguage.OpChecked, nil),
				}},
				{ID: "stu_course_count", Title: "Course Count", Type: field.Rollup, Options: &schema.RollupOptions{
					RelationColumnID: "stu_courses", Function: "count",
				}},
			},
		},
		{
			ID: "courses", Title: "Courses", Table: "courses", SourceID: MainSource,
			Columns: []*schema.Column{
				{ID: "crs_id", Title: "Id", Name: "id", Type: field.ID, PrimaryKey: true, System: true},
				{ID: "crs_title", Title: "Title", Type: field.SingleLineText, DisplayValue: true},
				{ID: "crs_open", Title: "Open", Type: field.Checkbox},
				{ID: "crs_students", Title: "Students", Type: field.LinkToAnotherRecord, Options: &schema.LinkOptions{
					Rel:                    edge.ManyToMany,
					ChildModelID:           "courses",
					ParentModelID:          "students",
					ChildColumnID:          "crs_id",
					ParentColumnID:         "stu_id",
					JunctionModelID:        "enrollments",
					JunctionChildColumnID:  "enr_course_id",
					JunctionParentColumnID: "enr_student_id",
				}},
			},
		},
		{
			ID: "enrollments", Title: "Enrollments", Table: "enrollments", SourceID: MainSource,
			Columns: []*schema.Column{
				{ID: "enr_student_id", Title: "Student Id", Name: "student_id", Type: field.ForeignKey, PrimaryKey: true},
				{ID: "enr_course_id", Title: "Course Id", Name: "course_id", Type: field.ForeignKey, PrimaryKey: true},
			},
		},
		{
			ID: "invoices", Title: "Invoices", Table: "invoices", SourceID: WarehouseSource,
			Columns: []*schema.Column{
				{ID: "inv_id", Title: "Id", Name: "id", Type: field.ID, PrimaryKey: true, System: true},
				{ID: "inv_customer_id", Title: "Customer Id", Name: "customer_id", Type: field.ForeignKey, System: true},
				{ID: "inv_amount", Title: "Amount", Type: field.Currency, DisplayValue: true},
			},
		},
	}
}

// Views returns the fixture views.
func Views() []*schema.View {
	return []*schema.View{
		{ID: "customers_grid", ModelID: "customers", Sorts: []schema.Sort{{ColumnID: "cus_name"}}},
		{ID: "customers_active", ModelID: "customers", Filter: querylanguage.Where("cus_active", querylanguage.OpChecked, nil)},
		{ID: "orders_grid", ModelID: "orders", Sorts: []schema.Sort{{ColumnID: "ord_placed", Desc: true}}},
		{ID: "students_grid", ModelID: "students"},
		{ID: "courses_grid", ModelID: "courses"},
		{ID: "invoices_grid", ModelID: "invoices"},
	}
}

// Registry returns the fixture registry with its main source on the given
// dialect. The warehouse source is always MySQL.
func Registry(d string) *schema.Registry {
	r := schema.NewRegistry()
	must(r.AddSource(&schema.Source{ID: MainSource, Conn: sql.ConnConfig{Dialect: d, Host: "main"}}))
	must(r.AddSource(&schema.Source{ID: WarehouseSource, Conn: sql.ConnConfig{Dialect: dialect.MySQL, Host: "warehouse"}}))
	for _, m := range Models() {
		must(r.AddModel(m))
	}
	for _, v := range Views() {
		must(r.AddView(v))
	}
	if err := r.Validate().Err(); err != nil {
		panic(err)
	}
	return r
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
