package formula

import (
	"strconv"
	"strings"
)

// Serialize returns the text of a formula. Parentheses are written only
// where precedence or associativity requires them, so parsing the result
// yields an equivalent tree.
func Serialize(n Node) string {
	return SerializeFunc(n, nil)
}

// SerializeFunc is like Serialize but renders identifiers with ident,
// e.g. to replace column ids with their current titles.
func SerializeFunc(n Node, ident func(name string) string) string {
	s := &serializer{ident: ident}
	s.node(n)
	return s.sb.String()
}

type serializer struct {
	sb    strings.Builder
	ident func(string) string
}

// Precedence levels of the non-binary forms.
const (
	precConditional = 0
	precUnary       = 8
	precPostfix     = 9
)

func precedence(n Node) int {
	switch n := n.(type) {
	case *Conditional:
		return precConditional
	case *Binary:
		return binaryPrec[n.Op]
	case *Unary:
		return precUnary
	}
	return precPostfix
}

func (s *serializer) child(n Node, min int) {
	if precedence(n) < min {
		s.sb.WriteByte('(')
		s.node(n)
		s.sb.WriteByte(')')
		return
	}
	s.node(n)
}

func (s *serializer) node(n Node) {
	switch n := n.(type) {
	case nil:
	case *Literal:
		s.literal(n)
	case *Identifier:
		name := n.Name
		if s.ident != nil {
			name = s.ident(name)
		}
		if n.Braced || s.ident != nil || !plainIdent(name) {
			s.sb.WriteString("{" + name + "}")
		} else {
			s.sb.WriteString(name)
		}
	case *Unary:
		s.sb.WriteString(n.Op)
		// Keep "- -x" from reading as a different token.
		if u, ok := n.X.(*Unary); ok && u.Op == n.Op {
			s.sb.WriteByte(' ')
		}
		s.child(n.X, precUnary)
	case *Binary:
		prec := binaryPrec[n.Op]
		s.child(n.Left, prec)
		s.sb.WriteString(" " + n.Op + " ")
		// Left associative: an equal precedence right operand needs parentheses.
		s.child(n.Right, prec+1)
	case *Call:
		s.sb.WriteString(n.Callee)
		s.list("(", n.Args, ")")
	case *Conditional:
		s.child(n.Test, precConditional+1)
		s.sb.WriteString(" ? ")
		s.node(n.Then)
		s.sb.WriteString(" : ")
		s.node(n.Else)
	case *Member:
		s.child(n.Object, precPostfix)
		if n.Computed {
			s.sb.WriteByte('[')
			s.node(n.Property)
			s.sb.WriteByte(']')
		} else {
			s.sb.WriteByte('.')
			if id, ok := n.Property.(*Identifier); ok {
				s.sb.WriteString(id.Name)
			} else {
				s.node(n.Property)
			}
		}
	case *Array:
		s.list("[", n.Elements, "]")
	case *Compound:
		for i, e := range n.Body {
			if i > 0 {
				s.sb.WriteString(", ")
			}
			s.node(e)
		}
	}
}

func (s *serializer) list(open string, nodes []Node, closing string) {
	s.sb.WriteString(open)
	for i, a := range nodes {
		if i > 0 {
			s.sb.WriteString(", ")
		}
		s.node(a)
	}
	s.sb.WriteString(closing)
}

func (s *serializer) literal(l *Literal) {
	switch v := l.Value.(type) {
	case nil:
		s.sb.WriteString("null")
	case bool:
		s.sb.WriteString(strconv.FormatBool(v))
	case int64:
		s.sb.WriteString(strconv.FormatInt(v, 10))
	case float64:
		if l.Raw != "" {
			s.sb.WriteString(l.Raw)
		} else {
			s.sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
	case string:
		s.sb.WriteString(quote(v))
	}
}

var quoteReplacer = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\t", `\t`, "\r", `\r`)

func quote(s string) string {
	return `"` + quoteReplacer.Replace(s) + `"`
}

func plainIdent(s string) bool {
	if s == "" {
		return false
	}
	switch strings.ToLower(s) {
	case "true", "false", "null":
		return false
	}
	for i, r := range s {
		if i == 0 && !isIdentStart(r) || !isIdentChar(r) {
			return false
		}
	}
	return true
}
