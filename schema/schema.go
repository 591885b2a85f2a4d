package schema

import (
	"github.com/go-openapi/inflect"

	"github.com/syssam/tabula/dialect"
	"github.com/syssam/tabula/dialect/sql"
	"github.com/syssam/tabula/querylanguage"
	"github.com/syssam/tabula/schema/edge"
	"github.com/syssam/tabula/schema/field"
)

// Column describes a single field of a model.
type Column struct {
	ID      string     `yaml:"id"`
	ModelID string     `yaml:"-"`
	Title   string     `yaml:"title"`
	Name    string     `yaml:"name,omitempty"`
	Type    field.Type `yaml:"type"`
	// DataType is the database type of physical columns.
	DataType     string  `yaml:"data_type,omitempty"`
	PrimaryKey   bool    `yaml:"pk,omitempty"`
	DisplayValue bool    `yaml:"pv,omitempty"`
	System       bool    `yaml:"system,omitempty"`
	ReadOnly     bool    `yaml:"readonly,omitempty"`
	Meta         Meta    `yaml:"meta,omitempty"`
	Options      Options `yaml:"-"`
}

// Meta holds display settings of a column.
type Meta struct {
	DateFormat string `yaml:"date_format,omitempty"`
	TimeFormat string `yaml:"time_format,omitempty"`
	Precision  int    `yaml:"precision,omitempty"`
	// Delimiter joins the values of lookups over many related rows.
	Delimiter string `yaml:"delimiter,omitempty"`
}

// ColumnName returns the physical column name.
func (c *Column) ColumnName() string {
	if c.Name != "" {
		return c.Name
	}
	return inflect.Underscore(c.Title)
}

// Virtual reports if the column has no physical storage.
func (c *Column) Virtual() bool { return c.Type.Virtual() }

// Link returns the link options of a relation column.
func (c *Column) Link() (*LinkOptions, bool) {
	o, ok := c.Options.(*LinkOptions)
	return o, ok && o != nil
}

// Formula returns the formula options of a formula column.
func (c *Column) Formula() (*FormulaOptions, bool) {
	o, ok := c.Options.(*FormulaOptions)
	return o, ok && o != nil
}

// Rollup returns the rollup options of a rollup column.
func (c *Column) Rollup() (*RollupOptions, bool) {
	o, ok := c.Options.(*RollupOptions)
	return o, ok && o != nil
}

// Lookup returns the lookup options of a lookup column.
func (c *Column) Lookup() (*LookupOptions, bool) {
	o, ok := c.Options.(*LookupOptions)
	return o, ok && o != nil
}

// Options is the type-specific configuration of a column.
type Options interface {
	options()
}

// LinkOptions configures a relation column.
//
// For has-many and belongs-to relations the child column is the foreign key
// on the child model and the parent column the key it references on the
// parent model. For many-to-many relations the child model is the model
// owning the column, the parent model the target, and the junction model
// holds one foreign key to each of them.
type LinkOptions struct {
	Rel                    edge.Rel           `yaml:"type"`
	ChildModelID           string             `yaml:"child_model"`
	ParentModelID          string             `yaml:"parent_model"`
	ChildColumnID          string             `yaml:"child_column"`
	ParentColumnID         string             `yaml:"parent_column"`
	JunctionModelID        string             `yaml:"junction_model,omitempty"`
	JunctionChildColumnID  string             `yaml:"junction_child_column,omitempty"`
	JunctionParentColumnID string             `yaml:"junction_parent_column,omitempty"`
	Filter                 querylanguage.Node `yaml:"-"`
}

// RelatedModelID returns the model on the far side of the relation.
func (o *LinkOptions) RelatedModelID() string {
	if o.Rel == edge.HasMany {
		return o.ChildModelID
	}
	return o.ParentModelID
}

// OwnerModelID returns the model the relation column belongs to.
func (o *LinkOptions) OwnerModelID() string {
	if o.Rel == edge.HasMany {
		return o.ParentModelID
	}
	return o.ChildModelID
}

// FormulaOptions configures a formula column.
type FormulaOptions struct {
	Expression string `yaml:"formula"`
	// Error is the last soft error recorded for the formula.
	Error string `yaml:"error,omitempty"`
}

// RollupOptions configures a rollup column.
type RollupOptions struct {
	RelationColumnID string `yaml:"relation_column"`
	TargetColumnID   string `yaml:"target_column"`
	Function         string `yaml:"function"`
}

// LookupOptions configures a lookup column.
type LookupOptions struct {
	RelationColumnID string `yaml:"relation_column"`
	TargetColumnID   string `yaml:"target_column"`
}

// ButtonOptions configures a button column. Formula buttons carry an
// expression compiled like a formula column.
type ButtonOptions struct {
	Kind    string `yaml:"kind"`
	Label   string `yaml:"label,omitempty"`
	Formula string `yaml:"formula,omitempty"`
}

// SelectOptions lists the choices of a select column.
type SelectOptions struct {
	Choices []string `yaml:"choices"`
}

func (*LinkOptions) options()    {}
func (*FormulaOptions) options() {}
func (*RollupOptions) options()  {}
func (*LookupOptions) options()  {}
func (*ButtonOptions) options()  {}
func (*SelectOptions) options()  {}

// Model is a table of a source.
type Model struct {
	ID       string    `yaml:"id"`
	Title    string    `yaml:"title"`
	Table    string    `yaml:"table"`
	Schema   string    `yaml:"schema,omitempty"`
	SourceID string    `yaml:"source"`
	Columns  []*Column `yaml:"columns"`
}

// Column returns the column with the given id.
func (m *Model) Column(id string) (*Column, bool) {
	for _, c := range m.Columns {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// ColumnByTitle returns the column with the given title.
func (m *Model) ColumnByTitle(title string) (*Column, bool) {
	for _, c := range m.Columns {
		if c.Title == title {
			return c, true
		}
	}
	return nil, false
}

// PrimaryKeys returns the primary key columns in declaration order.
func (m *Model) PrimaryKeys() []*Column {
	var pks []*Column
	for _, c := range m.Columns {
		if c.PrimaryKey {
			pks = append(pks, c)
		}
	}
	return pks
}

// PrimaryKey returns the first primary key column, or nil.
func (m *Model) PrimaryKey() *Column {
	if pks := m.PrimaryKeys(); len(pks) > 0 {
		return pks[0]
	}
	return nil
}

// DisplayValue returns the display value column. Models without an explicit
// one fall back to the first non-system physical column, then to the primary key.
func (m *Model) DisplayValue() *Column {
	for _, c := range m.Columns {
		if c.DisplayValue {
			return c
		}
	}
	for _, c := range m.Columns {
		if !c.System && !c.PrimaryKey && !c.Virtual() && !c.Type.Key() {
			return c
		}
	}
	return m.PrimaryKey()
}

// Source is a database holding models.
type Source struct {
	ID   string         `yaml:"id"`
	Conn sql.ConnConfig `yaml:"connection"`
}

// Dialect returns the normalized dialect of the source.
func (s *Source) Dialect() string {
	return dialect.Normalize(s.Conn.Dialect)
}

// Sort orders rows by a column.
type Sort struct {
	ColumnID string `yaml:"column"`
	Desc     bool   `yaml:"desc,omitempty"`
}

// View is a saved projection of a model with its own filter and sort.
type View struct {
	ID      string             `yaml:"id"`
	ModelID string             `yaml:"model"`
	Title   string             `yaml:"title,omitempty"`
	Filter  querylanguage.Node `yaml:"-"`
	Sorts   []Sort             `yaml:"sorts,omitempty"`
	// Columns lists the visible column ids. Empty means all columns.
	Columns []string `yaml:"columns,omitempty"`
}
