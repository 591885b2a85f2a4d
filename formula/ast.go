package formula

// Node is a node of a parsed formula. Nodes are immutable once parsed and
// may be shared between compilations.
type Node interface {
	// Pos returns the byte offset of the node in the formula text.
	Pos() int
	node()
}

// pos is embedded by every node.
type pos int

func (p pos) Pos() int { return int(p) }

type (
	// Literal is a number, string, boolean or null constant. Numbers are
	// int64 when written without a fraction or exponent, float64 otherwise.
	Literal struct {
		pos
		Value any
		Raw   string
	}

	// Identifier references a column by id or title. Braced reports if it
	// was written as {Name}.
	Identifier struct {
		pos
		Name   string
		Braced bool
	}

	// Unary is a prefix operation: -x, +x or !x.
	Unary struct {
		pos
		Op string
		X  Node
	}

	// Binary is an infix operation.
	Binary struct {
		pos
		Op          string
		Left, Right Node
	}

	// Call is a function call. Callee is the function name as written.
	Call struct {
		pos
		Callee string
		Args   []Node
	}

	// Conditional is the ternary test ? then : else.
	Conditional struct {
		pos
		Test, Then, Else Node
	}

	// Member is a property access: x.y or x[y].
	Member struct {
		pos
		Object, Property Node
		Computed         bool
	}

	// Array is an array literal.
	Array struct {
		pos
		Elements []Node
	}

	// Compound is a top-level comma separated list of expressions.
	Compound struct {
		pos
		Body []Node
	}
)

func (*Literal) node()     {}
func (*Identifier) node()  {}
func (*Unary) node()       {}
func (*Binary) node()      {}
func (*Call) node()        {}
func (*Conditional) node() {}
func (*Member) node()      {}
func (*Array) node()       {}
func (*Compound) node()    {}

// Walk calls fn for every node of the tree in depth-first order. Children
// are skipped when fn returns false.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch n := n.(type) {
	case *Unary:
		Walk(n.X, fn)
	case *Binary:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *Call:
		for _, a := range n.Args {
			Walk(a, fn)
		}
	case *Conditional:
		Walk(n.Test, fn)
		Walk(n.Then, fn)
		Walk(n.Else, fn)
	case *Member:
		Walk(n.Object, fn)
		Walk(n.Property, fn)
	case *Array:
		for _, e := range n.Elements {
			Walk(e, fn)
		}
	case *Compound:
		for _, e := range n.Body {
			Walk(e, fn)
		}
	}
}

// Identifiers returns the distinct identifier names of the tree in order
// of appearance. Function names are not included.
func Identifiers(n Node) []string {
	var (
		names []string
		seen  = make(map[string]bool)
	)
	Walk(n, func(n Node) bool {
		if id, ok := n.(*Identifier); ok && !seen[id.Name] {
			seen[id.Name] = true
			names = append(names, id.Name)
		}
		return true
	})
	return names
}
