package formula

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// tokenType is the type of a lexer token.
type tokenType int

const (
	tokenEOF      tokenType = iota
	tokenNumber             // 1, 2.5, 1e3
	tokenString             // "text" or 'text'
	tokenIdent              // bare identifiers and function names
	tokenColumn             // {Column Name}
	tokenOperator           // + - * / % & == = != < > <= >= && || !
	tokenLParen             // (
	tokenRParen             // )
	tokenLBracket           // [
	tokenRBracket           // ]
	tokenComma              // ,
	tokenDot                // .
	tokenQuestion           // ?
	tokenColon              // :
	tokenError
)

var tokenNames = [...]string{
	tokenEOF:      "end of formula",
	tokenNumber:   "number",
	tokenString:   "string",
	tokenIdent:    "identifier",
	tokenColumn:   "column",
	tokenOperator: "operator",
	tokenLParen:   "'('",
	tokenRParen:   "')'",
	tokenLBracket: "'['",
	tokenRBracket: "']'",
	tokenComma:    "','",
	tokenDot:      "'.'",
	tokenQuestion: "'?'",
	tokenColon:    "':'",
	tokenError:    "invalid token",
}

func (t tokenType) String() string { return tokenNames[t] }

// token is a lexer token. Value holds the unquoted text of strings and
// columns.
type token struct {
	typ   tokenType
	value string
	pos   int
}

// lexer tokenizes a formula.
type lexer struct {
	input string
	pos   int
}

func newLexer(input string) *lexer {
	return &lexer{input: input}
}

// twoCharOps are checked before their one character prefixes.
var twoCharOps = []string{"==", "!=", "<=", ">=", "&&", "||"}

func (l *lexer) next() token {
	l.skipWhitespace()
	if l.pos >= len(l.input) {
		return token{typ: tokenEOF, pos: l.pos}
	}
	start := l.pos
	ch := l.input[l.pos]
	switch ch {
	case '(':
		l.pos++
		return token{typ: tokenLParen, value: "(", pos: start}
	case ')':
		l.pos++
		return token{typ: tokenRParen, value: ")", pos: start}
	case '[':
		l.pos++
		return token{typ: tokenLBracket, value: "[", pos: start}
	case ']':
		l.pos++
		return token{typ: tokenRBracket, value: "]", pos: start}
	case ',':
		l.pos++
		return token{typ: tokenComma, value: ",", pos: start}
	case '?':
		l.pos++
		return token{typ: tokenQuestion, value: "?", pos: start}
	case ':':
		l.pos++
		return token{typ: tokenColon, value: ":", pos: start}
	case '{':
		return l.scanColumn()
	case '"', '\'':
		return l.scanString(ch)
	case '.':
		if l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1]) {
			return l.scanNumber()
		}
		l.pos++
		return token{typ: tokenDot, value: ".", pos: start}
	}
	for _, op := range twoCharOps {
		if strings.HasPrefix(l.input[l.pos:], op) {
			l.pos += 2
			return token{typ: tokenOperator, value: op, pos: start}
		}
	}
	switch {
	case strings.IndexByte("+-*/%&=<>!", ch) >= 0:
		l.pos++
		return token{typ: tokenOperator, value: string(ch), pos: start}
	case isDigit(ch):
		return l.scanNumber()
	}
	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	if isIdentStart(r) {
		return l.scanIdent()
	}
	l.pos += size
	return token{typ: tokenError, value: string(r), pos: start}
}

func (l *lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		l.pos += size
	}
}

func (l *lexer) scanIdent() token {
	start := l.pos
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !isIdentChar(r) {
			break
		}
		l.pos += size
	}
	return token{typ: tokenIdent, value: l.input[start:l.pos], pos: start}
}

func (l *lexer) scanNumber() token {
	start := l.pos
	for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.input) && l.input[l.pos] == '.' {
		l.pos++
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.input) && (l.input[l.pos] == 'e' || l.input[l.pos] == 'E') {
		save := l.pos
		l.pos++
		if l.pos < len(l.input) && (l.input[l.pos] == '+' || l.input[l.pos] == '-') {
			l.pos++
		}
		if l.pos >= len(l.input) || !isDigit(l.input[l.pos]) {
			l.pos = save
		}
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.pos++
		}
	}
	return token{typ: tokenNumber, value: l.input[start:l.pos], pos: start}
}

// scanString scans a quoted string, resolving backslash escapes.
func (l *lexer) scanString(quote byte) token {
	start := l.pos
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == quote:
			l.pos++
			return token{typ: tokenString, value: sb.String(), pos: start}
		case ch == '\\' && l.pos+1 < len(l.input):
			l.pos++
			switch esc := l.input[l.pos]; esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			default:
				sb.WriteByte(esc)
			}
			l.pos++
		default:
			sb.WriteByte(ch)
			l.pos++
		}
	}
	return token{typ: tokenError, value: "unterminated string", pos: start}
}

// scanColumn scans {Column Name}. Column names may contain spaces.
func (l *lexer) scanColumn() token {
	start := l.pos
	end := strings.IndexByte(l.input[l.pos+1:], '}')
	if end < 0 {
		l.pos = len(l.input)
		return token{typ: tokenError, value: "unterminated column reference", pos: start}
	}
	name := strings.TrimSpace(l.input[l.pos+1 : l.pos+1+end])
	l.pos += end + 2
	if name == "" {
		return token{typ: tokenError, value: "empty column reference", pos: start}
	}
	return token{typ: tokenColumn, value: name, pos: start}
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentChar(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}
