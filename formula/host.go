package formula

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect/sql/sqlgraph"
	"github.com/syssam/tabula/schema"
)

// ErrorValue is the result of a host evaluation that failed for a row,
// such as a division by zero. It propagates through most functions.
type ErrorValue struct {
	Code string
}

func (e ErrorValue) Error() string { return e.Code }

// Error values.
var (
	ErrDivZero = ErrorValue{Code: "#DIV/0!"}
	ErrValue   = ErrorValue{Code: "#VALUE!"}
	ErrNum     = ErrorValue{Code: "#NUM!"}
)

// Program evaluates a formula over rows read from the database.
type Program struct {
	root Node
	now  time.Time
	// cols maps identifiers to the columns they read. Deleted columns map to nil.
	cols map[string]*schema.Column
	// subs holds the programs of referenced formula columns that are
	// themselves evaluated on the host.
	subs map[string]*Program
}

// Eval evaluates the program over a row keyed by column id. Failures are
// returned as ErrorValue.
func (p *Program) Eval(row map[string]any) any {
	h := &hostCtx{now: p.now, row: row, p: p}
	v := h.eval(p.root)
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return ErrNum
	}
	return v
}

func (e *emitter) now() time.Time {
	if e.s.Now.IsZero() {
		return time.Now().UTC()
	}
	return e.s.Now.UTC()
}

// program builds the host program of a formula of m and collects the
// columns it reads into e.deps.
func (e *emitter) program(root Node, m *schema.Model, depth int) (*Program, error) {
	if depth >= sqlgraph.MaxDepth {
		return nil, tabula.NewFormulaError(e.ownerID(), fmt.Sprintf("formula nesting exceeds %d levels", sqlgraph.MaxDepth))
	}
	p := &Program{
		root: root,
		now:  e.now(),
		cols: make(map[string]*schema.Column),
		subs: make(map[string]*Program),
	}
	var err error
	Walk(root, func(n Node) bool {
		if err != nil {
			return false
		}
		switch n := n.(type) {
		case *Call:
			name := strings.ToUpper(n.Callee)
			fn := functions[name]
			switch {
			case fn == nil:
				err = e.errorf(n, "unknown function %s", n.Callee)
			case fn.host == nil:
				err = tabula.NewUnsupportedError(name+" in a host evaluated formula", e.d)
			default:
				if aerr := fn.checkArity(len(n.Args)); aerr != nil {
					err = e.errorf(n, "%s: %v", name, aerr)
				}
			}
		case *Identifier:
			err = e.hostIdent(p, n, m, depth)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (e *emitter) hostIdent(p *Program, n *Identifier, m *schema.Model, depth int) error {
	if _, ok := p.cols[n.Name]; ok {
		return nil
	}
	ref := resolveColumn(m, n.Name)
	switch {
	case ref == nil:
		e.soft(tabula.NewDeletedColumnError(e.ownerID(), n.Name))
		p.cols[n.Name] = nil
		return nil
	case e.col != nil && ref.ID == e.col.ID:
		e.soft(tabula.NewFormulaError(e.ownerID(), "formula references itself"))
		p.cols[n.Name] = nil
		return nil
	}
	if text, ok := Expression(ref); ok {
		sub, err := e.c.parse(text)
		if err != nil {
			e.soft(tabula.NewFormulaError(ref.ID, err.Error()))
			p.cols[n.Name] = nil
			return nil
		}
		host, err := e.c.hostOnly(m, sub, e.d, depth+1)
		if err != nil {
			return err
		}
		if host {
			sp, err := e.program(sub, m, depth+1)
			if err != nil {
				return err
			}
			p.subs[n.Name] = sp
			return nil
		}
	}
	p.cols[n.Name] = ref
	if !e.index[ref.ID] {
		e.index[ref.ID] = true
		e.deps = append(e.deps, ref)
	}
	return nil
}

type hostCtx struct {
	now time.Time
	row map[string]any
	p   *Program
}

func (h *hostCtx) eval(n Node) any {
	switch n := n.(type) {
	case *Literal:
		return n.Value
	case *Identifier:
		if sub, ok := h.p.subs[n.Name]; ok {
			return sub.Eval(h.row)
		}
		if c := h.p.cols[n.Name]; c != nil {
			return normalize(h.row[c.ID])
		}
		return nil
	case *Unary:
		x := h.eval(n.X)
		if _, ok := x.(ErrorValue); ok {
			return x
		}
		switch n.Op {
		case "!":
			return !truthy(x)
		case "-":
			return negate(x)
		}
		if x == nil {
			return nil
		}
		if f, ok := toNumber(x); ok {
			return f
		}
		return ErrValue
	case *Binary:
		return h.binary(n)
	case *Conditional:
		test := h.eval(n.Test)
		if _, ok := test.(ErrorValue); ok {
			return test
		}
		if truthy(test) {
			return h.eval(n.Then)
		}
		return h.eval(n.Else)
	case *Call:
		fn := functions[strings.ToUpper(n.Callee)]
		args := make([]any, len(n.Args))
		for i, a := range n.Args {
			args[i] = h.eval(a)
			if _, ok := args[i].(ErrorValue); ok && !fn.raw {
				return args[i]
			}
		}
		return fn.host(h, args)
	}
	return ErrValue
}

func (h *hostCtx) binary(n *Binary) any {
	if n.Op == "&" {
		var sb strings.Builder
		for _, x := range flattenConcat(n, nil) {
			v := h.eval(x)
			if _, ok := v.(ErrorValue); ok {
				return v
			}
			sb.WriteString(toString(v))
		}
		return sb.String()
	}
	l, r := h.eval(n.Left), h.eval(n.Right)
	for _, v := range []any{l, r} {
		if _, ok := v.(ErrorValue); ok {
			return v
		}
	}
	switch n.Op {
	case "&&":
		return truthy(l) && truthy(r)
	case "||":
		return truthy(l) || truthy(r)
	case "+", "-", "*", "/", "%":
		return arithmetic(n.Op, l, r)
	}
	op := comparisons[n.Op]
	if op == "=" || op == "<>" {
		if s, ok := r.(string); ok && s == "" {
			return isBlank(l) == (op == "=")
		}
		if s, ok := l.(string); ok && s == "" {
			return isBlank(r) == (op == "=")
		}
	}
	if l == nil || r == nil {
		return nil
	}
	c, ok := compare(l, r)
	if !ok {
		return ErrValue
	}
	switch op {
	case "=":
		return c == 0
	case "<>":
		return c != 0
	case "<":
		return c < 0
	case ">":
		return c > 0
	case "<=":
		return c <= 0
	case ">=":
		return c >= 0
	}
	return ErrValue
}

func arithmetic(op string, l, r any) any {
	if l == nil || r == nil {
		return nil
	}
	li, lint := l.(int64)
	ri, rint := r.(int64)
	if lint && rint && op != "/" {
		switch op {
		case "+":
			return li + ri
		case "-":
			return li - ri
		case "*":
			return li * ri
		case "%":
			if ri == 0 {
				return ErrDivZero
			}
			return li % ri
		}
	}
	a, aok := toNumber(l)
	b, bok := toNumber(r)
	if !aok || !bok {
		return ErrValue
	}
	switch op {
	case "+":
		return a + b
	case "-":
		return a - b
	case "*":
		return a * b
	case "/":
		if b == 0 {
			return ErrDivZero
		}
		return a / b
	}
	if b == 0 {
		return ErrDivZero
	}
	return math.Mod(a, b)
}

func negate(x any) any {
	switch x := x.(type) {
	case nil:
		return nil
	case int64:
		return -x
	}
	if f, ok := toNumber(x); ok {
		return -f
	}
	return ErrValue
}

// normalize converts driver values to the host value set: nil, int64,
// float64, string, bool and time.Time.
func normalize(v any) any {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float32:
		return float64(v)
	case decimal.Decimal:
		f, _ := v.Float64()
		return f
	}
	return v
}

func truthy(v any) bool {
	switch v := v.(type) {
	case nil, ErrorValue:
		return false
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v != ""
	}
	return true
}

func isBlank(v any) bool {
	s, ok := v.(string)
	return v == nil || ok && s == ""
}

func toNumber(v any) (float64, bool) {
	switch v := v.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

func toString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 {
			return v.Format("2006-01-02")
		}
		return v.Format("2006-01-02 15:04")
	}
	return fmt.Sprint(v)
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02"}

func toTime(v any) (time.Time, bool) {
	switch v := v.(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// compare orders two non-nil values: numerically when either is a number,
// chronologically when either is a time, and as text otherwise.
func compare(a, b any) (int, bool) {
	_, an := a.(int64)
	_, af := a.(float64)
	_, bn := b.(int64)
	_, bf := b.(float64)
	if an || af || bn || bf {
		x, xok := toNumber(a)
		y, yok := toNumber(b)
		if !xok || !yok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	_, at := a.(time.Time)
	_, bt := b.(time.Time)
	if at || bt {
		x, xok := toTime(a)
		y, yok := toTime(b)
		if !xok || !yok {
			return 0, false
		}
		return x.Compare(y), true
	}
	return strings.Compare(toString(a), toString(b)), true
}

func hostConst(v any) func(*hostCtx, []any) any {
	return func(*hostCtx, []any) any { return v }
}

func hostMath(f func(float64) float64) func(*hostCtx, []any) any {
	return func(_ *hostCtx, args []any) any {
		if args[0] == nil {
			return nil
		}
		x, ok := toNumber(args[0])
		if !ok {
			return ErrValue
		}
		if _, ok := args[0].(int64); ok {
			if r := f(x); r == math.Trunc(r) {
				return int64(r)
			}
		}
		return f(x)
	}
}

func hostInteger(f func(float64) float64) func(*hostCtx, []any) any {
	return func(_ *hostCtx, args []any) any {
		fs, res := numbers(args)
		if fs == nil {
			return res
		}
		return int64(f(fs[0]))
	}
}

// numbers converts the arguments to floats. nil reports a NULL argument.
func numbers(args []any) ([]float64, any) {
	fs := make([]float64, len(args))
	for i, a := range args {
		if a == nil {
			return nil, nil
		}
		f, ok := toNumber(a)
		if !ok {
			return nil, ErrValue
		}
		fs[i] = f
	}
	return fs, true
}

func hostRound(_ *hostCtx, args []any) any {
	fs, res := numbers(args)
	if fs == nil {
		return res
	}
	var places int32
	if len(fs) > 1 {
		places = int32(fs[1])
	}
	r, _ := decimal.NewFromFloat(fs[0]).Round(places).Float64()
	return r
}

func hostMod(_ *hostCtx, args []any) any {
	return arithmetic("%", args[0], args[1])
}

func hostPower(_ *hostCtx, args []any) any {
	fs, res := numbers(args)
	if fs == nil {
		return res
	}
	return math.Pow(fs[0], fs[1])
}

func hostSqrt(_ *hostCtx, args []any) any {
	fs, res := numbers(args)
	if fs == nil {
		return res
	}
	if fs[0] < 0 {
		return ErrNum
	}
	return math.Sqrt(fs[0])
}

func hostLog(_ *hostCtx, args []any) any {
	fs, res := numbers(args)
	if fs == nil {
		return res
	}
	if fs[0] <= 0 {
		return ErrNum
	}
	if len(fs) == 1 {
		return math.Log(fs[0])
	}
	if fs[1] <= 0 || fs[1] == 1 {
		return ErrNum
	}
	return math.Log(fs[0]) / math.Log(fs[1])
}

func hostInt(_ *hostCtx, args []any) any {
	fs, res := numbers(args)
	if fs == nil {
		return res
	}
	return int64(math.Trunc(fs[0]))
}

var nonNumeric = regexp.MustCompile(`[^0-9.\-]`)

// hostValue extracts the number of a text, ignoring other characters.
func hostValue(_ *hostCtx, args []any) any {
	switch v := args[0].(type) {
	case nil:
		return nil
	case int64, float64:
		return v
	}
	d, err := decimal.NewFromString(nonNumeric.ReplaceAllString(toString(args[0]), ""))
	if err != nil {
		return ErrValue
	}
	f, _ := d.Float64()
	return f
}

func hostExtreme(sign int) func(*hostCtx, []any) any {
	return func(_ *hostCtx, args []any) any {
		var best any
		for _, a := range args {
			if a == nil {
				continue
			}
			if best == nil {
				best = a
				continue
			}
			c, ok := compare(a, best)
			if !ok {
				return ErrValue
			}
			if c*sign > 0 {
				best = a
			}
		}
		return best
	}
}

func hostAvg(_ *hostCtx, args []any) any {
	fs, res := numbers(args)
	if fs == nil {
		return res
	}
	var sum float64
	for _, f := range fs {
		sum += f
	}
	return sum / float64(len(fs))
}

func hostConcat(_ *hostCtx, args []any) any {
	var sb strings.Builder
	for _, a := range args {
		sb.WriteString(toString(a))
	}
	return sb.String()
}

func hostString(f func(string) string) func(*hostCtx, []any) any {
	return func(_ *hostCtx, args []any) any {
		if args[0] == nil {
			return nil
		}
		return f(toString(args[0]))
	}
}

func hostLen(_ *hostCtx, args []any) any {
	if args[0] == nil {
		return nil
	}
	return int64(utf8.RuneCountInString(toString(args[0])))
}

// runeArgs returns the text and the integer arguments of a text function.
func runeArgs(args []any) ([]rune, []int, any) {
	if args[0] == nil {
		return nil, nil, nil
	}
	ns := make([]int, len(args)-1)
	for i, a := range args[1:] {
		if a == nil {
			return nil, nil, nil
		}
		f, ok := toNumber(a)
		if !ok {
			return nil, nil, ErrValue
		}
		ns[i] = int(f)
	}
	return []rune(toString(args[0])), ns, true
}

func hostLeft(_ *hostCtx, args []any) any {
	rs, ns, res := runeArgs(args)
	if res != true {
		return res
	}
	n := max(0, min(ns[0], len(rs)))
	return string(rs[:n])
}

func hostRight(_ *hostCtx, args []any) any {
	rs, ns, res := runeArgs(args)
	if res != true {
		return res
	}
	n := max(0, min(ns[0], len(rs)))
	return string(rs[len(rs)-n:])
}

// hostSubstr takes a 1-based start and an optional length.
func hostSubstr(_ *hostCtx, args []any) any {
	rs, ns, res := runeArgs(args)
	if res != true {
		return res
	}
	start := max(ns[0]-1, 0)
	if start >= len(rs) {
		return ""
	}
	end := len(rs)
	if len(ns) > 1 {
		end = min(start+max(ns[1], 0), len(rs))
	}
	return string(rs[start:end])
}

func hostReplace(_ *hostCtx, args []any) any {
	if args[0] == nil {
		return nil
	}
	return strings.ReplaceAll(toString(args[0]), toString(args[1]), toString(args[2]))
}

func hostSearch(_ *hostCtx, args []any) any {
	if args[0] == nil || args[1] == nil {
		return nil
	}
	s := toString(args[0])
	i := strings.Index(s, toString(args[1]))
	if i < 0 {
		return int64(0)
	}
	return int64(utf8.RuneCountInString(s[:i]) + 1)
}

const maxRepeat = 1 << 16

func hostRepeat(_ *hostCtx, args []any) any {
	rs, ns, res := runeArgs(args)
	if res != true {
		return res
	}
	if ns[0] < 0 || ns[0]*len(rs) > maxRepeat {
		return ErrNum
	}
	return strings.Repeat(string(rs), ns[0])
}

func hostProper(_ *hostCtx, args []any) any {
	if args[0] == nil {
		return nil
	}
	return cases.Title(language.Und).String(strings.ToLower(toString(args[0])))
}

func hostURLEncode(_ *hostCtx, args []any) any {
	if args[0] == nil {
		return nil
	}
	return url.QueryEscape(toString(args[0]))
}

func hostIf(_ *hostCtx, args []any) any {
	if _, ok := args[0].(ErrorValue); ok {
		return args[0]
	}
	if truthy(args[0]) {
		return args[1]
	}
	if len(args) > 2 {
		return args[2]
	}
	return nil
}

func hostSwitch(_ *hostCtx, args []any) any {
	if _, ok := args[0].(ErrorValue); ok {
		return args[0]
	}
	rest := args[1:]
	for ; len(rest) >= 2; rest = rest[2:] {
		if args[0] == nil || rest[0] == nil {
			continue
		}
		if c, ok := compare(args[0], rest[0]); ok && c == 0 {
			return rest[1]
		}
	}
	if len(rest) == 1 {
		return rest[0]
	}
	return nil
}

func hostAnd(_ *hostCtx, args []any) any {
	for _, a := range args {
		if !truthy(a) {
			return false
		}
	}
	return true
}

func hostOr(_ *hostCtx, args []any) any {
	for _, a := range args {
		if truthy(a) {
			return true
		}
	}
	return false
}

func hostNot(_ *hostCtx, args []any) any { return !truthy(args[0]) }

func hostBlank(negate bool) func(*hostCtx, []any) any {
	return func(_ *hostCtx, args []any) any {
		return isBlank(args[0]) != negate
	}
}

func hostNow(h *hostCtx, _ []any) any { return h.now }

func hostToday(h *hostCtx, _ []any) any {
	y, m, d := h.now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func hostUnit(v any) (string, bool) {
	u := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(toString(v))), "s")
	return u, dateUnits[u]
}

func hostDateAdd(_ *hostCtx, args []any) any {
	if args[0] == nil || args[1] == nil {
		return nil
	}
	t, ok := toTime(args[0])
	f, nok := toNumber(args[1])
	u, uok := hostUnit(args[2])
	if !ok || !nok || !uok {
		return ErrValue
	}
	n := int(f)
	switch u {
	case "year":
		return t.AddDate(n, 0, 0)
	case "month":
		return t.AddDate(0, n, 0)
	case "week":
		return t.AddDate(0, 0, 7*n)
	case "day":
		return t.AddDate(0, 0, n)
	}
	return t.Add(time.Duration(f * float64(unitSeconds[u]) * float64(time.Second)))
}

// hostDateDiff returns a - b in whole units, truncated toward zero.
func hostDateDiff(_ *hostCtx, args []any) any {
	if args[0] == nil || args[1] == nil {
		return nil
	}
	a, aok := toTime(args[0])
	b, bok := toTime(args[1])
	u := "second"
	uok := true
	if len(args) > 2 {
		u, uok = hostUnit(args[2])
	}
	if !aok || !bok || !uok {
		return ErrValue
	}
	if secs, ok := unitSeconds[u]; ok {
		return int64(a.Sub(b).Seconds()) / int64(secs)
	}
	months := monthsBetween(a, b)
	if u == "year" {
		return months / 12
	}
	return months
}

func monthsBetween(a, b time.Time) int64 {
	if a.Before(b) {
		return -monthsBetween(b, a)
	}
	months := int64(a.Year()-b.Year())*12 + int64(a.Month()-b.Month())
	for months > 0 && b.AddDate(0, int(months), 0).After(a) {
		months--
	}
	return months
}

func hostDatePart(part string) func(*hostCtx, []any) any {
	return func(_ *hostCtx, args []any) any {
		if args[0] == nil {
			return nil
		}
		t, ok := toTime(args[0])
		if !ok {
			return ErrValue
		}
		switch part {
		case "day":
			return int64(t.Day())
		case "month":
			return int64(t.Month())
		case "year":
			return int64(t.Year())
		}
		return int64(t.Hour())
	}
}

func hostWeekday(_ *hostCtx, args []any) any {
	if args[0] == nil {
		return nil
	}
	t, ok := toTime(args[0])
	if !ok {
		return ErrValue
	}
	return int64((t.Weekday() + 6) % 7)
}

func hostDateStr(_ *hostCtx, args []any) any {
	if args[0] == nil {
		return nil
	}
	t, ok := toTime(args[0])
	if !ok {
		return ErrValue
	}
	return t.Format("2006-01-02")
}

var regexps, _ = lru.New[string, *regexp.Regexp](256)

func hostRegexMatch(_ *hostCtx, args []any) any {
	if args[0] == nil || args[1] == nil {
		return nil
	}
	pattern := toString(args[1])
	re, ok := regexps.Get(pattern)
	if !ok {
		var err error
		if re, err = regexp.Compile(pattern); err != nil {
			return ErrValue
		}
		regexps.Add(pattern, re)
	}
	return re.MatchString(toString(args[0]))
}
