package formula

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/syssam/tabula"
)

// SyntaxError reports a malformed formula.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("formula: %s at position %d", e.Msg, e.Pos)
}

// binaryPrec holds the precedence of the binary operators. Higher binds
// tighter; all binary operators are left associative.
var binaryPrec = map[string]int{
	"||": 1,
	"&&": 2,
	"==": 3, "=": 3, "!=": 3,
	"<": 4, ">": 4, "<=": 4, ">=": 4,
	"&": 5,
	"+": 6, "-": 6,
	"*": 7, "/": 7, "%": 7,
}

// parser is a recursive descent parser with one token of lookahead.
type parser struct {
	lexer *lexer
	curr  token
}

// Parse parses a formula. Syntax errors are returned as a
// *tabula.ValidationError wrapping a *SyntaxError.
func Parse(text string) (Node, error) {
	p := &parser{lexer: newLexer(text)}
	p.advance()
	n, err := p.parseCompound()
	if err != nil {
		return nil, tabula.NewValidationError("", err)
	}
	return n, nil
}

func (p *parser) advance() {
	p.curr = p.lexer.next()
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Pos: p.curr.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) unexpected() error {
	switch p.curr.typ {
	case tokenEOF:
		return p.errorf("unexpected end of formula")
	case tokenError:
		return p.errorf("%s", p.curr.value)
	}
	return p.errorf("unexpected %s %q", p.curr.typ, p.curr.value)
}

func (p *parser) expect(t tokenType) error {
	if p.curr.typ != t {
		if p.curr.typ == tokenEOF || p.curr.typ == tokenError {
			return p.unexpected()
		}
		return p.errorf("expected %s, got %q", t, p.curr.value)
	}
	p.advance()
	return nil
}

func (p *parser) parseCompound() (Node, error) {
	if p.curr.typ == tokenEOF {
		return nil, p.errorf("empty formula")
	}
	start := p.curr.pos
	var body []Node
	for {
		n, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		body = append(body, n)
		if p.curr.typ != tokenComma {
			break
		}
		p.advance()
	}
	if p.curr.typ != tokenEOF {
		return nil, p.unexpected()
	}
	if len(body) == 1 {
		return body[0], nil
	}
	return &Compound{pos: pos(start), Body: body}, nil
}

// parseExpression parses a conditional, the lowest precedence form.
func (p *parser) parseExpression() (Node, error) {
	test, err := p.parseBinary(1)
	if err != nil {
		return nil, err
	}
	if p.curr.typ != tokenQuestion {
		return test, nil
	}
	p.advance()
	then, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokenColon); err != nil {
		return nil, err
	}
	els, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &Conditional{pos: pos(test.Pos()), Test: test, Then: then, Else: els}, nil
}

// parseBinary parses binary operations of at least the given precedence
// by precedence climbing.
func (p *parser) parseBinary(minPrec int) (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.curr.typ == tokenOperator {
		op := p.curr.value
		prec, ok := binaryPrec[op]
		if !ok || prec < minPrec {
			break
		}
		opPos := p.curr.pos
		p.advance()
		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &Binary{pos: pos(opPos), Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.curr.typ == tokenOperator {
		switch op := p.curr.value; op {
		case "-", "+", "!":
			start := p.curr.pos
			p.advance()
			x, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return &Unary{pos: pos(start), Op: op, X: x}, nil
		}
		return nil, p.unexpected()
	}
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return p.parsePostfix(n)
}

func (p *parser) parsePostfix(n Node) (Node, error) {
	for {
		switch p.curr.typ {
		case tokenLParen:
			id, ok := n.(*Identifier)
			if !ok || id.Braced {
				return nil, p.errorf("only functions can be called")
			}
			p.advance()
			args, err := p.parseList(tokenRParen)
			if err != nil {
				return nil, err
			}
			n = &Call{pos: id.pos, Callee: id.Name, Args: args}
		case tokenDot:
			p.advance()
			if p.curr.typ != tokenIdent {
				return nil, p.errorf("expected property name after '.'")
			}
			prop := &Identifier{pos: pos(p.curr.pos), Name: p.curr.value}
			p.advance()
			n = &Member{pos: pos(n.Pos()), Object: n, Property: prop}
		case tokenLBracket:
			p.advance()
			prop, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if err := p.expect(tokenRBracket); err != nil {
				return nil, err
			}
			n = &Member{pos: pos(n.Pos()), Object: n, Property: prop, Computed: true}
		default:
			return n, nil
		}
	}
}

// parseList parses comma separated expressions up to the closing token.
func (p *parser) parseList(closing tokenType) ([]Node, error) {
	var list []Node
	if p.curr.typ == closing {
		p.advance()
		return list, nil
	}
	for {
		n, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		list = append(list, n)
		if p.curr.typ == tokenComma {
			p.advance()
			continue
		}
		if err := p.expect(closing); err != nil {
			return nil, err
		}
		return list, nil
	}
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.curr
	switch t.typ {
	case tokenNumber:
		p.advance()
		return parseNumber(t)
	case tokenString:
		p.advance()
		return &Literal{pos: pos(t.pos), Value: t.value, Raw: t.value}, nil
	case tokenColumn:
		p.advance()
		return &Identifier{pos: pos(t.pos), Name: t.value, Braced: true}, nil
	case tokenIdent:
		p.advance()
		if p.curr.typ == tokenLParen {
			// TRUE() and FALSE() are functions.
			return &Identifier{pos: pos(t.pos), Name: t.value}, nil
		}
		switch strings.ToLower(t.value) {
		case "true":
			return &Literal{pos: pos(t.pos), Value: true, Raw: t.value}, nil
		case "false":
			return &Literal{pos: pos(t.pos), Value: false, Raw: t.value}, nil
		case "null":
			return &Literal{pos: pos(t.pos), Value: nil, Raw: t.value}, nil
		}
		return &Identifier{pos: pos(t.pos), Name: t.value}, nil
	case tokenLParen:
		p.advance()
		n, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokenRParen); err != nil {
			return nil, err
		}
		return n, nil
	case tokenLBracket:
		p.advance()
		elems, err := p.parseList(tokenRBracket)
		if err != nil {
			return nil, err
		}
		return &Array{pos: pos(t.pos), Elements: elems}, nil
	}
	return nil, p.unexpected()
}

func parseNumber(t token) (Node, error) {
	if !strings.ContainsAny(t.value, ".eE") {
		if i, err := strconv.ParseInt(t.value, 10, 64); err == nil {
			return &Literal{pos: pos(t.pos), Value: i, Raw: t.value}, nil
		}
	}
	f, err := strconv.ParseFloat(t.value, 64)
	if err != nil {
		return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("invalid number %q", t.value)}
	}
	return &Literal{pos: pos(t.pos), Value: f, Raw: t.value}, nil
}
