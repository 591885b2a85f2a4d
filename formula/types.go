package formula

import (
	"strings"

	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
)

// Type is the result type of a formula expression.
type Type uint8

// Result types.
const (
	TypeUnknown Type = iota
	TypeInteger
	TypeNumber
	TypeString
	TypeDate
	TypeBoolean
)

var typeNames = [...]string{
	TypeUnknown: "unknown",
	TypeInteger: "integer",
	TypeNumber:  "number",
	TypeString:  "string",
	TypeDate:    "date",
	TypeBoolean: "boolean",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// Numeric reports if the type is a number.
func (t Type) Numeric() bool { return t == TypeInteger || t == TypeNumber }

// ColumnType returns the formula type of the values of a column. Formula
// columns are reported as unknown; see Compiler.TypeOf.
func ColumnType(c *schema.Column) Type {
	switch t := c.Type; {
	case t == field.Links, t.Integral():
		return TypeInteger
	case t.Numeric(), t == field.Rollup:
		return TypeNumber
	case t.Temporal():
		return TypeDate
	case t.Boolean():
		return TypeBoolean
	case t == field.Formula, t == field.Lookup, t == field.Button:
		return TypeUnknown
	}
	return TypeString
}

// arith returns the type of an arithmetic operation: integral only when
// both operands are.
func arith(a, b Type) Type {
	if a == TypeInteger && b == TypeInteger {
		return TypeInteger
	}
	return TypeNumber
}

// inferType computes the type of a node without compiling it. lookup
// resolves identifiers.
func inferType(n Node, lookup func(name string) Type) Type {
	switch n := n.(type) {
	case *Literal:
		switch n.Value.(type) {
		case int64:
			return TypeInteger
		case float64:
			return TypeNumber
		case string:
			return TypeString
		case bool:
			return TypeBoolean
		}
	case *Identifier:
		return lookup(n.Name)
	case *Unary:
		if n.Op == "!" {
			return TypeBoolean
		}
		if t := inferType(n.X, lookup); t == TypeInteger {
			return t
		}
		return TypeNumber
	case *Binary:
		switch n.Op {
		case "&":
			return TypeString
		case "/":
			return TypeNumber
		case "+", "-", "*", "%":
			return arith(inferType(n.Left, lookup), inferType(n.Right, lookup))
		}
		return TypeBoolean
	case *Conditional:
		if t := inferType(n.Then, lookup); t != TypeUnknown {
			return t
		}
		return inferType(n.Else, lookup)
	case *Call:
		fn, ok := functions[strings.ToUpper(n.Callee)]
		if !ok {
			return TypeUnknown
		}
		args := make([]Type, len(n.Args))
		for i, a := range n.Args {
			args[i] = inferType(a, lookup)
		}
		return fn.result(args)
	}
	return TypeUnknown
}
