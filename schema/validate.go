package schema

import (
	"fmt"
	"strings"

	"github.com/syssam/tabula/schema/edge"
	"github.com/syssam/tabula/schema/field"
)

// ValidationError represents a metadata validation error.
type ValidationError struct {
	Model   string
	Column  string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Model, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Model, e.Message)
}

// ValidationResult holds the results of metadata validation.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Err returns the result as an error, or nil if there are no errors.
func (r *ValidationResult) Err() error {
	if !r.HasErrors() {
		return nil
	}
	return fmt.Errorf("schema: invalid metadata:\n%s", r)
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	if len(r.Errors) > 0 {
		sb.WriteString("Errors:\n")
		for _, e := range r.Errors {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			sb.WriteString("\n")
		}
	}
	if len(r.Warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, w := range r.Warnings {
			sb.WriteString("  - ")
			sb.WriteString(w.Error())
			sb.WriteString("\n")
		}
	}
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

func (r *ValidationResult) errorf(model, column, format string, args ...any) {
	r.Errors = append(r.Errors, &ValidationError{Model: model, Column: column, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) warnf(model, column, format string, args ...any) {
	r.Warnings = append(r.Warnings, &ValidationError{Model: model, Column: column, Message: fmt.Sprintf(format, args...)})
}

// ValidateModel validates a single model definition.
func ValidateModel(m *Model) *ValidationResult {
	result := &ValidationResult{}
	validateModel(m, result)
	return result
}

func validateModel(m *Model, result *ValidationResult) {
	if m.Table == "" {
		result.errorf(m.ID, "", "model has no table name")
	}
	if len(m.PrimaryKeys()) == 0 {
		result.warnf(m.ID, "", "model has no primary key")
	}
	ids := make(map[string]bool, len(m.Columns))
	display := 0
	for _, c := range m.Columns {
		if ids[c.ID] {
			result.errorf(m.ID, c.ID, "duplicate column id")
		}
		ids[c.ID] = true
		if !c.Type.Valid() {
			result.errorf(m.ID, c.ID, "invalid column type")
		}
		if c.DisplayValue {
			if c.System {
				result.errorf(m.ID, c.ID, "system column cannot be the display value")
			}
			display++
		}
		if c.PrimaryKey && c.Virtual() {
			result.errorf(m.ID, c.ID, "virtual column cannot be part of the primary key")
		}
		validateOptions(m, c, result)
	}
	if display > 1 {
		result.errorf(m.ID, "", "model has %d display value columns, expected at most one", display)
	}
}

func validateOptions(m *Model, c *Column, result *ValidationResult) {
	switch {
	case c.Type.Relation():
		o, ok := c.Link()
		if !ok {
			result.errorf(m.ID, c.ID, "link column without link options")
			return
		}
		switch o.Rel {
		case edge.HasMany, edge.BelongsTo:
			if o.JunctionModelID != "" {
				result.errorf(m.ID, c.ID, "%s relation cannot have a junction model", o.Rel)
			}
		case edge.ManyToMany:
			if o.JunctionModelID == "" || o.JunctionChildColumnID == "" || o.JunctionParentColumnID == "" {
				result.errorf(m.ID, c.ID, "many-to-many relation requires a junction model and two junction columns")
			}
		default:
			result.errorf(m.ID, c.ID, "unknown relation kind")
		}
		if o.OwnerModelID() != m.ID {
			result.errorf(m.ID, c.ID, "%s relation is owned by model %q", o.Rel, o.OwnerModelID())
		}
	case c.Type == field.Formula:
		if o, ok := c.Formula(); !ok || o.Expression == "" {
			result.errorf(m.ID, c.ID, "formula column without expression")
		}
	case c.Type == field.Rollup:
		if o, ok := c.Rollup(); !ok || o.RelationColumnID == "" || o.Function == "" {
			result.errorf(m.ID, c.ID, "rollup column without relation or function")
		}
	case c.Type == field.Lookup:
		if o, ok := c.Lookup(); !ok || o.RelationColumnID == "" || o.TargetColumnID == "" {
			result.errorf(m.ID, c.ID, "lookup column without relation or target")
		}
	case c.Options != nil && !c.Type.Choice() && c.Type != field.Button:
		result.errorf(m.ID, c.ID, "options of type %T do not match column type %s", c.Options, c.Type)
	}
}

// Validate validates every model of the registry and the references
// between them.
func (r *Registry) Validate() *ValidationResult {
	result := &ValidationResult{}
	for _, m := range r.Models() {
		validateModel(m, result)
		if _, err := r.Source(m.SourceID); err != nil {
			result.errorf(m.ID, "", "unknown source %q", m.SourceID)
		}
		for _, c := range m.Columns {
			r.validateRefs(m, c, result)
		}
	}
	r.mu.RLock()
	views := make([]*View, 0, len(r.views))
	for _, v := range r.views {
		views = append(views, v)
	}
	r.mu.RUnlock()
	for _, v := range views {
		m, err := r.Model(v.ModelID)
		if err != nil {
			result.errorf(v.ModelID, "", "view %q references unknown model", v.ID)
			continue
		}
		for _, s := range v.Sorts {
			if _, ok := m.Column(s.ColumnID); !ok {
				result.errorf(m.ID, s.ColumnID, "view %q sorts by unknown column", v.ID)
			}
		}
	}
	return result
}

func (r *Registry) validateRefs(m *Model, c *Column, result *ValidationResult) {
	switch {
	case c.Type.Relation():
		o, ok := c.Link()
		if !ok {
			return
		}
		child, cerr := r.Model(o.ChildModelID)
		parent, perr := r.Model(o.ParentModelID)
		if cerr != nil || perr != nil {
			result.errorf(m.ID, c.ID, "relation references unknown models %q and %q", o.ChildModelID, o.ParentModelID)
			return
		}
		if _, ok := child.Column(o.ChildColumnID); !ok {
			result.errorf(m.ID, c.ID, "child column %q not found in model %q", o.ChildColumnID, child.ID)
		}
		if _, ok := parent.Column(o.ParentColumnID); !ok {
			result.errorf(m.ID, c.ID, "parent column %q not found in model %q", o.ParentColumnID, parent.ID)
		}
		if o.Rel != edge.ManyToMany {
			return
		}
		junction, err := r.Model(o.JunctionModelID)
		if err != nil {
			result.errorf(m.ID, c.ID, "junction model %q not found", o.JunctionModelID)
			return
		}
		if _, ok := junction.Column(o.JunctionChildColumnID); !ok {
			result.errorf(m.ID, c.ID, "junction column %q not found in model %q", o.JunctionChildColumnID, junction.ID)
		}
		if _, ok := junction.Column(o.JunctionParentColumnID); !ok {
			result.errorf(m.ID, c.ID, "junction column %q not found in model %q", o.JunctionParentColumnID, junction.ID)
		}
		if o.JunctionChildColumnID == o.JunctionParentColumnID {
			result.errorf(m.ID, c.ID, "junction columns must reference both related models")
		}
	case c.Type == field.Rollup || c.Type == field.Lookup:
		var relID, targetID string
		if o, ok := c.Rollup(); ok {
			relID, targetID = o.RelationColumnID, o.TargetColumnID
		} else if o, ok := c.Lookup(); ok {
			relID, targetID = o.RelationColumnID, o.TargetColumnID
		} else {
			return
		}
		rel, ok := m.Column(relID)
		if !ok {
			result.errorf(m.ID, c.ID, "relation column %q not found", relID)
			return
		}
		link, ok := rel.Link()
		if !ok {
			result.errorf(m.ID, c.ID, "column %q is not a link", relID)
			return
		}
		if targetID == "" {
			return
		}
		related, err := r.Model(link.RelatedModelID())
		if err != nil {
			return
		}
		if _, ok := related.Column(targetID); !ok {
			result.errorf(m.ID, c.ID, "target column %q not found in model %q", targetID, related.ID)
		}
	}
}
