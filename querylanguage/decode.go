package querylanguage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSON decodes a filter tree from its JSON form. The input is either a
// single node object or an array of nodes. Arrays are combined with AND,
// unless one of their items carries "logical_op": "or".
func ParseJSON(data []byte) (Node, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("querylanguage: decode filter: %w", err)
	}
	if v == nil {
		return nil, nil
	}
	return FromValue(v)
}

// FromValue converts a decoded JSON or YAML value into a filter tree.
func FromValue(v any) (Node, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return fromList(v)
	case map[string]any:
		return FromMap(v)
	default:
		return nil, fmt.Errorf("querylanguage: unexpected filter value %T", v)
	}
}

func fromList(items []any) (Node, error) {
	g := &Group{Logic: LogicAnd}
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("querylanguage: unexpected filter item %T", it)
		}
		if logic, _ := lookup(m, "logical_op", "logic").(string); strings.EqualFold(logic, string(LogicOr)) {
			g.Logic = LogicOr
		}
		n, err := FromMap(m)
		if err != nil {
			return nil, err
		}
		if n != nil {
			g.Children = append(g.Children, n)
		}
	}
	if len(g.Children) == 0 {
		return nil, nil
	}
	return g, nil
}

// FromMap converts a single node object. Both the long keys (fk_column_id,
// comparison_op, comparison_sub_op, logical_op, is_group, children) and the
// short keys (column, op, sub_op, logic, children) are accepted.
func FromMap(m map[string]any) (Node, error) {
	children, hasChildren := lookup(m, "children", "filters").([]any)
	group, _ := lookup(m, "is_group", "group").(bool)
	if group || hasChildren {
		logic := LogicAnd
		if s, _ := lookup(m, "logical_op", "logic").(string); s != "" {
			logic = Logic(strings.ToLower(s))
		}
		switch logic {
		case LogicAnd, LogicOr, LogicNot:
		default:
			return nil, fmt.Errorf("querylanguage: unknown logical operator %q", logic)
		}
		g := &Group{Logic: logic}
		for _, c := range children {
			cm, ok := c.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("querylanguage: unexpected filter child %T", c)
			}
			n, err := FromMap(cm)
			if err != nil {
				return nil, err
			}
			if n != nil {
				g.Children = append(g.Children, n)
			}
		}
		return g, nil
	}
	column, _ := lookup(m, "fk_column_id", "column").(string)
	if column == "" {
		return nil, fmt.Errorf("querylanguage: filter leaf without column")
	}
	op, _ := lookup(m, "comparison_op", "op").(string)
	if op == "" {
		return nil, fmt.Errorf("querylanguage: filter leaf on %q without operator", column)
	}
	sub, _ := lookup(m, "comparison_sub_op", "sub_op").(string)
	return &Leaf{
		ColumnID: column,
		Op:       Op(op),
		SubOp:    SubOp(sub),
		Value:    lookup(m, "value"),
	}, nil
}

func lookup(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

// MarshalJSON encodes the group with the long key form.
func (g *Group) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"is_group":   true,
		"logical_op": g.Logic,
		"children":   g.Children,
	})
}

// MarshalJSON encodes the leaf with the long key form.
func (l *Leaf) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"fk_column_id":  l.ColumnID,
		"comparison_op": l.Op,
		"value":         l.Value,
	}
	if l.SubOp != "" {
		m["comparison_sub_op"] = l.SubOp
	}
	return json.Marshal(m)
}
