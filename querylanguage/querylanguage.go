// Package querylanguage defines the filter tree shared by views, link
// conditions and request overrides, together with its textual form.
package querylanguage

import (
	"fmt"
	"strconv"
	"strings"
)

// Op is a comparison operator of a filter leaf.
type Op string

// Comparison operators.
const (
	OpEq         Op = "eq"
	OpNeq        Op = "neq"
	OpLike       Op = "like"
	OpNotLike    Op = "nlike"
	OpBlank      Op = "blank"
	OpNotBlank   Op = "notblank"
	OpNull       Op = "null"
	OpNotNull    Op = "notnull"
	OpEmpty      Op = "empty"
	OpNotEmpty   Op = "notempty"
	OpGt         Op = "gt"
	OpLt         Op = "lt"
	OpGte        Op = "gte"
	OpLte        Op = "lte"
	OpIn         Op = "in"
	OpIs         Op = "is"
	OpIsNot      Op = "isnot"
	OpIsWithin   Op = "isWithin"
	OpAnyOf      Op = "anyof"
	OpNotAnyOf   Op = "nanyof"
	OpAllOf      Op = "allof"
	OpNotAllOf   Op = "nallof"
	OpChecked    Op = "checked"
	OpNotChecked Op = "notchecked"
)

// Unary reports if the operator takes no value.
func (o Op) Unary() bool {
	switch o {
	case OpBlank, OpNotBlank, OpNull, OpNotNull, OpEmpty, OpNotEmpty, OpChecked, OpNotChecked:
		return true
	}
	return false
}

var symbols = map[Op]string{
	OpEq:  "==",
	OpNeq: "!=",
	OpGt:  ">",
	OpLt:  "<",
	OpGte: ">=",
	OpLte: "<=",
}

// SubOp qualifies a date comparison with a value relative to now.
type SubOp string

// Date sub-operators.
const (
	SubToday            SubOp = "today"
	SubTomorrow         SubOp = "tomorrow"
	SubYesterday        SubOp = "yesterday"
	SubOneWeekAgo       SubOp = "oneWeekAgo"
	SubOneWeekFromNow   SubOp = "oneWeekFromNow"
	SubOneMonthAgo      SubOp = "oneMonthAgo"
	SubOneMonthFromNow  SubOp = "oneMonthFromNow"
	SubDaysAgo          SubOp = "daysAgo"
	SubDaysFromNow      SubOp = "daysFromNow"
	SubExactDate        SubOp = "exactDate"
	SubPastWeek         SubOp = "pastWeek"
	SubPastMonth        SubOp = "pastMonth"
	SubPastYear         SubOp = "pastYear"
	SubNextWeek         SubOp = "nextWeek"
	SubNextMonth        SubOp = "nextMonth"
	SubNextYear         SubOp = "nextYear"
	SubPastNumberOfDays SubOp = "pastNumberOfDays"
	SubNextNumberOfDays SubOp = "nextNumberOfDays"
)

// Logic is the combinator of a group.
type Logic string

// Group combinators.
const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
	LogicNot Logic = "not"
)

// Node is a node of the filter tree: a *Group or a *Leaf.
type Node interface {
	fmt.Stringer
	node()
}

// Group combines its children with a logical operator. A NOT group over
// several children negates their conjunction.
type Group struct {
	Logic    Logic
	Children []Node
}

// Leaf compares a column with a value.
type Leaf struct {
	ColumnID string
	Op       Op
	SubOp    SubOp
	Value    any
}

func (*Group) node() {}
func (*Leaf) node()  {}

// And returns a group matching rows that match all nodes.
func And(nodes ...Node) *Group { return &Group{Logic: LogicAnd, Children: nodes} }

// Or returns a group matching rows that match any node.
func Or(nodes ...Node) *Group { return &Group{Logic: LogicOr, Children: nodes} }

// Not returns a group matching rows that do not match all nodes.
func Not(nodes ...Node) *Group { return &Group{Logic: LogicNot, Children: nodes} }

// Where returns a leaf comparing the column with the value.
func Where(column string, op Op, value any) *Leaf {
	return &Leaf{ColumnID: column, Op: op, Value: value}
}

// WhereDate returns a leaf comparing a date column with a relative value.
func WhereDate(column string, op Op, sub SubOp, value any) *Leaf {
	return &Leaf{ColumnID: column, Op: op, SubOp: sub, Value: value}
}

// Merge returns the conjunction of the non-nil nodes, or nil.
func Merge(nodes ...Node) Node {
	var children []Node
	for _, n := range nodes {
		if n != nil && !isEmpty(n) {
			children = append(children, n)
		}
	}
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}
	return And(children...)
}

func isEmpty(n Node) bool {
	g, ok := n.(*Group)
	return ok && g == nil || ok && len(g.Children) == 0
}

// Columns returns the column ids referenced by the tree, in order of appearance.
func Columns(n Node) []string {
	var (
		ids  []string
		seen = make(map[string]bool)
		walk func(Node)
	)
	walk = func(n Node) {
		switch n := n.(type) {
		case *Group:
			if n == nil {
				return
			}
			for _, c := range n.Children {
				walk(c)
			}
		case *Leaf:
			if n != nil && !seen[n.ColumnID] {
				seen[n.ColumnID] = true
				ids = append(ids, n.ColumnID)
			}
		}
	}
	walk(n)
	return ids
}

// String returns the textual form of the group.
func (g *Group) String() string {
	if g == nil || len(g.Children) == 0 {
		return ""
	}
	if g.Logic == LogicNot {
		return "!(" + join(g.Children, LogicAnd) + ")"
	}
	return join(g.Children, g.Logic)
}

func join(children []Node, logic Logic) string {
	sep := " && "
	if logic == LogicOr {
		sep = " || "
	}
	parts := make([]string, 0, len(children))
	for _, c := range children {
		s := c.String()
		if g, ok := c.(*Group); ok && g.Logic != logic && g.Logic != LogicNot && len(g.Children) > 1 {
			s = "(" + s + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, sep)
}

// String returns the textual form of the leaf.
func (l *Leaf) String() string {
	var sb strings.Builder
	sb.WriteString(l.ColumnID)
	sb.WriteByte(' ')
	if s, ok := symbols[l.Op]; ok {
		sb.WriteString(s)
	} else {
		sb.WriteString(string(l.Op))
	}
	if l.SubOp != "" {
		sb.WriteByte(' ')
		sb.WriteString(string(l.SubOp))
	}
	if !l.Op.Unary() && (l.Value != nil || l.SubOp == "") {
		sb.WriteByte(' ')
		sb.WriteString(formatValue(l.Value))
	}
	return sb.String()
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case []any:
		parts := make([]string, len(v))
		for i := range v {
			parts[i] = formatValue(v[i])
		}
		return "[" + strings.Join(parts, ",") + "]"
	case []string:
		parts := make([]string, len(v))
		for i := range v {
			parts[i] = strconv.Quote(v[i])
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return fmt.Sprint(v)
	}
}
