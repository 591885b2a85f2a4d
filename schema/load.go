package schema

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/syssam/tabula/querylanguage"
	"github.com/syssam/tabula/schema/field"
)

// Snapshot is the serialized form of a registry.
type Snapshot struct {
	Sources []*Source `yaml:"sources"`
	Models  []*Model  `yaml:"models"`
	Views   []*View   `yaml:"views"`
}

// Load reads a YAML snapshot and returns a validated registry.
func Load(r io.Reader) (*Registry, error) {
	var s Snapshot
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return nil, fmt.Errorf("schema: decode snapshot: %w", err)
	}
	return s.Registry()
}

// LoadFile reads a YAML snapshot from a file.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schema: open snapshot %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Registry builds and validates a registry from the snapshot.
func (s *Snapshot) Registry() (*Registry, error) {
	r := NewRegistry()
	for _, src := range s.Sources {
		if err := r.AddSource(src); err != nil {
			return nil, err
		}
	}
	for _, m := range s.Models {
		if err := r.AddModel(m); err != nil {
			return nil, err
		}
	}
	for _, v := range s.Views {
		if err := r.AddView(v); err != nil {
			return nil, err
		}
	}
	if err := r.Validate().Err(); err != nil {
		return nil, err
	}
	return r, nil
}

// UnmarshalYAML decodes a column and its type-specific options.
func (c *Column) UnmarshalYAML(value *yaml.Node) error {
	type plain Column
	var raw struct {
		plain   `yaml:",inline"`
		Options yaml.Node `yaml:"options"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*c = Column(raw.plain)
	if raw.Options.Kind == 0 {
		return nil
	}
	var (
		opts Options
		err  error
	)
	switch {
	case c.Type.Relation():
		o := &LinkOptions{}
		err = decodeLink(&raw.Options, o)
		opts = o
	case c.Type == field.Formula:
		o := &FormulaOptions{}
		err = raw.Options.Decode(o)
		opts = o
	case c.Type == field.Rollup:
		o := &RollupOptions{}
		err = raw.Options.Decode(o)
		opts = o
	case c.Type == field.Lookup:
		o := &LookupOptions{}
		err = raw.Options.Decode(o)
		opts = o
	case c.Type == field.Button:
		o := &ButtonOptions{}
		err = raw.Options.Decode(o)
		opts = o
	case c.Type.Choice():
		o := &SelectOptions{}
		err = raw.Options.Decode(o)
		opts = o
	default:
		return fmt.Errorf("schema: column %q of type %s does not take options", c.ID, c.Type)
	}
	if err != nil {
		return fmt.Errorf("schema: column %q options: %w", c.ID, err)
	}
	c.Options = opts
	return nil
}

func decodeLink(node *yaml.Node, o *LinkOptions) error {
	type plain LinkOptions
	var raw struct {
		plain  `yaml:",inline"`
		Filter any `yaml:"filter"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*o = LinkOptions(raw.plain)
	f, err := querylanguage.FromValue(raw.Filter)
	if err != nil {
		return err
	}
	o.Filter = f
	return nil
}

// UnmarshalYAML decodes a view and its filter tree.
func (v *View) UnmarshalYAML(value *yaml.Node) error {
	type plain View
	var raw struct {
		plain  `yaml:",inline"`
		Filter any `yaml:"filter"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*v = View(raw.plain)
	f, err := querylanguage.FromValue(raw.Filter)
	if err != nil {
		return fmt.Errorf("schema: view %q filter: %w", v.ID, err)
	}
	v.Filter = f
	return nil
}
