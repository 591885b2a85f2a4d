package formula

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect"
	"github.com/syssam/tabula/dialect/sql"
)

// function is an entry of the function table.
type function struct {
	min, max int // max is -1 for variadic functions
	result   func([]Type) Type
	sql      func(*emitter, []*value) (*value, error)
	// native reports the dialects with an SQL form. Nil means every dialect.
	native func(d string) bool
	// host evaluates the function after the rows are read. Arguments that
	// are error values short-circuit the call unless raw is set.
	host func(*hostCtx, []any) any
	raw  bool
}

func (f *function) nativeIn(d string) bool {
	return f.native == nil || f.native(d)
}

func (f *function) checkArity(n int) error {
	switch {
	case n < f.min && f.min == f.max:
		return fmt.Errorf("expects %d arguments, got %d", f.min, n)
	case n < f.min:
		return fmt.Errorf("expects at least %d arguments, got %d", f.min, n)
	case f.max >= 0 && n > f.max:
		return fmt.Errorf("expects at most %d arguments, got %d", f.max, n)
	}
	return nil
}

// Functions returns the names of the supported functions.
func Functions() []string {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	return names
}

// Native reports if the function has an SQL form in the dialect.
func Native(name, d string) bool {
	fn, ok := functions[strings.ToUpper(name)]
	return ok && fn.nativeIn(d)
}

var functions map[string]*function

func init() {
	functions = map[string]*function{
		// Numeric.
		"ABS":     {min: 1, max: 1, result: numericOf, sql: numFunc("ABS"), host: hostMath(math.Abs)},
		"CEILING": {min: 1, max: 1, result: fixed(TypeInteger), sql: numFunc("CEILING"), host: hostInteger(math.Ceil)},
		"FLOOR":   {min: 1, max: 1, result: fixed(TypeInteger), sql: numFunc("FLOOR"), host: hostInteger(math.Floor)},
		"ROUND":   {min: 1, max: 2, result: fixed(TypeNumber), sql: sqlRound, host: hostRound},
		"MOD": {min: 2, max: 2, result: arithOf, host: hostMod, sql: func(e *emitter, a []*value) (*value, error) {
			return e.mod(a[0], a[1]), nil
		}},
		"POWER": {min: 2, max: 2, result: fixed(TypeNumber), sql: numFunc("POWER"), host: hostPower},
		"SQRT":  {min: 1, max: 1, result: fixed(TypeNumber), sql: numFunc("SQRT"), host: hostSqrt},
		"EXP":   {min: 1, max: 1, result: fixed(TypeNumber), sql: numFunc("EXP"), host: hostMath(math.Exp)},
		"LOG":   {min: 1, max: 2, result: fixed(TypeNumber), sql: sqlLog, host: hostLog},
		"INT":   {min: 1, max: 1, result: fixed(TypeInteger), sql: sqlInt, host: hostInt},
		"VALUE": {min: 1, max: 1, result: fixed(TypeNumber), sql: sqlValue, host: hostValue},
		"MIN":   {min: 1, max: -1, result: extremeOf, sql: sqlExtreme("LEAST", "MIN"), host: hostExtreme(-1)},
		"MAX":   {min: 1, max: -1, result: extremeOf, sql: sqlExtreme("GREATEST", "MAX"), host: hostExtreme(1)},
		"AVG":   {min: 1, max: -1, result: fixed(TypeNumber), sql: sqlAvg, host: hostAvg},

		// Text.
		"CONCAT": {min: 1, max: -1, result: fixed(TypeString), host: hostConcat, sql: func(e *emitter, a []*value) (*value, error) {
			return e.concatValues(a), nil
		}},
		"UPPER":     {min: 1, max: 1, result: fixed(TypeString), sql: strFunc("UPPER"), host: hostString(strings.ToUpper)},
		"LOWER":     {min: 1, max: 1, result: fixed(TypeString), sql: strFunc("LOWER"), host: hostString(strings.ToLower)},
		"TRIM":      {min: 1, max: 1, result: fixed(TypeString), sql: strFunc("TRIM"), host: hostString(strings.TrimSpace)},
		"LEN":       {min: 1, max: 1, result: fixed(TypeInteger), sql: sqlLen, host: hostLen},
		"LEFT":      {min: 2, max: 2, result: fixed(TypeString), sql: sqlLeft, host: hostLeft},
		"RIGHT":     {min: 2, max: 2, result: fixed(TypeString), sql: sqlRight, host: hostRight},
		"MID":       {min: 3, max: 3, result: fixed(TypeString), sql: sqlSubstr, host: hostSubstr},
		"SUBSTR":    {min: 2, max: 3, result: fixed(TypeString), sql: sqlSubstr, host: hostSubstr},
		"REPLACE":   {min: 3, max: 3, result: fixed(TypeString), sql: sqlReplace, host: hostReplace},
		"SEARCH":    {min: 2, max: 2, result: fixed(TypeInteger), sql: sqlSearch, host: hostSearch},
		"REPEAT":    {min: 2, max: 2, result: fixed(TypeString), sql: sqlRepeat, native: except(dialect.SQLite), host: hostRepeat},
		"PROPER":    {min: 1, max: 1, result: fixed(TypeString), sql: strFunc("INITCAP"), native: only(dialect.Postgres, dialect.Snowflake), host: hostProper},
		"URLENCODE": {min: 1, max: 1, result: fixed(TypeString), native: only(), host: hostURLEncode},

		// Logical.
		"IF":     {min: 2, max: 3, result: branchOf(1), sql: sqlIf, host: hostIf, raw: true},
		"SWITCH": {min: 3, max: -1, result: branchOf(2), sql: sqlSwitch, host: hostSwitch, raw: true},
		"AND":    {min: 1, max: -1, result: fixed(TypeBoolean), sql: sqlLogic(sql.And), host: hostAnd},
		"OR":     {min: 1, max: -1, result: fixed(TypeBoolean), sql: sqlLogic(sql.Or), host: hostOr},
		"NOT": {min: 1, max: 1, result: fixed(TypeBoolean), host: hostNot, sql: func(e *emitter, a []*value) (*value, error) {
			return &value{cond: sql.Not(e.condition(a[0])), typ: TypeBoolean}, nil
		}},
		"ISBLANK": {min: 1, max: 1, result: fixed(TypeBoolean), host: hostBlank(false), raw: true, sql: func(e *emitter, a []*value) (*value, error) {
			return e.blank(a[0], false), nil
		}},
		"ISNOTBLANK": {min: 1, max: 1, result: fixed(TypeBoolean), host: hostBlank(true), raw: true, sql: func(e *emitter, a []*value) (*value, error) {
			return e.blank(a[0], true), nil
		}},
		"BLANK": {min: 0, max: 0, result: fixed(TypeUnknown), host: hostConst(nil), sql: func(e *emitter, _ []*value) (*value, error) {
			return e.null(), nil
		}},
		"TRUE": {min: 0, max: 0, result: fixed(TypeBoolean), host: hostConst(true), sql: func(e *emitter, _ []*value) (*value, error) {
			return &value{q: e.boolLit(true), typ: TypeBoolean}, nil
		}},
		"FALSE": {min: 0, max: 0, result: fixed(TypeBoolean), host: hostConst(false), sql: func(e *emitter, _ []*value) (*value, error) {
			return &value{q: e.boolLit(false), typ: TypeBoolean}, nil
		}},

		// Dates.
		"NOW":           {min: 0, max: 0, result: fixed(TypeDate), sql: sqlNow, host: hostNow},
		"TODAY":         {min: 0, max: 0, result: fixed(TypeDate), sql: sqlToday, host: hostToday},
		"DATEADD":       {min: 3, max: 3, result: fixed(TypeDate), sql: sqlDateAdd, host: hostDateAdd},
		"DATETIME_DIFF": {min: 2, max: 3, result: fixed(TypeInteger), sql: sqlDateDiff, host: hostDateDiff},
		"DAY":           {min: 1, max: 1, result: fixed(TypeInteger), sql: sqlDatePart("day"), host: hostDatePart("day")},
		"MONTH":         {min: 1, max: 1, result: fixed(TypeInteger), sql: sqlDatePart("month"), host: hostDatePart("month")},
		"YEAR":          {min: 1, max: 1, result: fixed(TypeInteger), sql: sqlDatePart("year"), host: hostDatePart("year")},
		"HOUR":          {min: 1, max: 1, result: fixed(TypeInteger), sql: sqlDatePart("hour"), host: hostDatePart("hour")},
		"WEEKDAY":       {min: 1, max: 1, result: fixed(TypeInteger), sql: sqlWeekday, host: hostWeekday},
		"DATESTR": {min: 1, max: 1, result: fixed(TypeString), host: hostDateStr, sql: func(e *emitter, a []*value) (*value, error) {
			return &value{q: e.dateFormat(e.scalar(a[0]), "YYYY-MM-DD"), typ: TypeString}, nil
		}},

		// Checksums have no host form: dialects without a builtin fail closed.
		"MD5":    {min: 1, max: 1, result: fixed(TypeString), sql: sqlChecksum("MD5"), native: except(dialect.SQLite)},
		"SHA1":   {min: 1, max: 1, result: fixed(TypeString), sql: sqlChecksum("SHA1"), native: except(dialect.SQLite, dialect.Postgres)},
		"SHA256": {min: 1, max: 1, result: fixed(TypeString), sql: sqlChecksum("SHA256"), native: except(dialect.SQLite)},

		"REGEX_MATCH": {min: 2, max: 2, result: fixed(TypeBoolean), sql: sqlRegexMatch, native: except(dialect.SQLite, dialect.MSSQL), host: hostRegexMatch},
	}
}

func fixed(t Type) func([]Type) Type {
	return func([]Type) Type { return t }
}

func numericOf(args []Type) Type {
	if len(args) > 0 && args[0] == TypeInteger {
		return TypeInteger
	}
	return TypeNumber
}

func arithOf(args []Type) Type {
	if len(args) < 2 {
		return TypeNumber
	}
	return arith(args[0], args[1])
}

func extremeOf(args []Type) Type {
	t := TypeInteger
	for _, a := range args {
		switch {
		case a == TypeNumber:
			t = TypeNumber
		case !a.Numeric():
			return args[0]
		}
	}
	return t
}

func branchOf(i int) func([]Type) Type {
	return func(args []Type) Type {
		if i < len(args) && args[i] != TypeUnknown {
			return args[i]
		}
		if i+1 < len(args) {
			return args[i+1]
		}
		return TypeUnknown
	}
}

func only(ds ...string) func(string) bool {
	return func(d string) bool {
		for _, x := range ds {
			if x == d {
				return true
			}
		}
		return false
	}
}

func except(ds ...string) func(string) bool {
	in := only(ds...)
	return func(d string) bool { return !in(d) }
}

func numFunc(name string) func(*emitter, []*value) (*value, error) {
	return func(e *emitter, a []*value) (*value, error) {
		args := make([]any, len(a))
		for i := range a {
			args[i] = e.num(a[i])
		}
		return &value{q: sql.Func(name, args...)}, nil
	}
}

func strFunc(name string) func(*emitter, []*value) (*value, error) {
	return func(e *emitter, a []*value) (*value, error) {
		return &value{q: sql.Func(name, e.str(a[0])), typ: TypeString}, nil
	}
}

func sqlRound(e *emitter, a []*value) (*value, error) {
	var p sql.Querier = sql.Raw("0")
	if len(a) > 1 {
		p = e.num(a[1])
		if a[1].typ != TypeInteger {
			p = e.cl.SimpleCast(p, sql.TypeInteger)
		}
	}
	x := e.num(a[0])
	if e.d == dialect.Postgres {
		// ROUND with a precision is only defined for NUMERIC.
		return &value{q: e.cl.SimpleCast(sql.Func("ROUND", e.cl.SimpleCast(x, "NUMERIC"), p), sql.TypeFloat)}, nil
	}
	return &value{q: sql.Func("ROUND", x, p)}, nil
}

func sqlLog(e *emitter, a []*value) (*value, error) {
	x := e.num(a[0])
	switch {
	case e.d == dialect.MSSQL && len(a) == 1:
		return &value{q: sql.Func("LOG", x)}, nil
	case e.d == dialect.MSSQL:
		return &value{q: sql.Func("LOG", x, e.num(a[1]))}, nil
	case len(a) == 1:
		return &value{q: sql.Func("LN", x)}, nil
	}
	return &value{q: sql.Expr("(LN(?) / LN(?))", x, e.num(a[1]))}, nil
}

func sqlInt(e *emitter, a []*value) (*value, error) {
	x := e.num(a[0])
	switch e.d {
	case dialect.Postgres, dialect.Snowflake:
		x = sql.Func("TRUNC", x)
	case dialect.MySQL:
		x = sql.Func("TRUNCATE", x, sql.Raw("0"))
	}
	return &value{q: e.cl.SimpleCast(x, sql.TypeInteger), typ: TypeInteger}, nil
}

func sqlValue(e *emitter, a []*value) (*value, error) {
	if a[0].typ.Numeric() {
		return &value{q: e.scalar(a[0]), typ: a[0].typ}, nil
	}
	return &value{q: e.cl.SimpleCast(e.scalar(a[0]), sql.TypeFloat), typ: TypeNumber}, nil
}

func sqlExtreme(name, sqliteName string) func(*emitter, []*value) (*value, error) {
	return func(e *emitter, a []*value) (*value, error) {
		if len(a) == 1 {
			return &value{q: e.scalar(a[0]), typ: a[0].typ}, nil
		}
		fn := name
		if e.d == dialect.SQLite {
			fn = sqliteName
		}
		args := make([]any, len(a))
		for i := range a {
			args[i] = e.scalar(a[i])
		}
		return &value{q: sql.Func(fn, args...)}, nil
	}
}

func sqlAvg(e *emitter, a []*value) (*value, error) {
	var sb strings.Builder
	args := make([]any, len(a))
	sb.WriteString("((")
	for i := range a {
		if i > 0 {
			sb.WriteString(" + ")
		}
		sb.WriteByte('?')
		args[i] = e.num(a[i])
	}
	// The first operand is cast so neither the sum nor the division is integral.
	args[0] = e.cl.SimpleCast(e.num(a[0]), sql.TypeFloat)
	sb.WriteString(") / " + strconv.Itoa(len(a)) + ")")
	return &value{q: sql.Expr(sb.String(), args...), typ: TypeNumber}, nil
}

func sqlLen(e *emitter, a []*value) (*value, error) {
	name := "LENGTH"
	switch e.d {
	case dialect.MySQL:
		name = "CHAR_LENGTH"
	case dialect.MSSQL:
		name = "LEN"
	}
	return &value{q: sql.Func(name, e.str(a[0])), typ: TypeInteger}, nil
}

func sqlLeft(e *emitter, a []*value) (*value, error) {
	if e.d == dialect.SQLite {
		return &value{q: sql.Func("SUBSTR", e.str(a[0]), sql.Raw("1"), e.num(a[1]))}, nil
	}
	return &value{q: sql.Func("LEFT", e.str(a[0]), e.num(a[1]))}, nil
}

func sqlRight(e *emitter, a []*value) (*value, error) {
	if e.d == dialect.SQLite {
		return &value{q: sql.Expr("SUBSTR(?, -(?))", e.str(a[0]), e.num(a[1]))}, nil
	}
	return &value{q: sql.Func("RIGHT", e.str(a[0]), e.num(a[1]))}, nil
}

func sqlSubstr(e *emitter, a []*value) (*value, error) {
	name := "SUBSTR"
	if e.d == dialect.MySQL || e.d == dialect.MSSQL {
		name = "SUBSTRING"
	}
	s := e.str(a[0])
	args := []any{s, e.num(a[1])}
	switch {
	case len(a) > 2:
		args = append(args, e.num(a[2]))
	case e.d == dialect.MSSQL:
		// SUBSTRING requires a length on MSSQL.
		args = append(args, sql.Func("LEN", s))
	}
	return &value{q: sql.Func(name, args...)}, nil
}

func sqlReplace(e *emitter, a []*value) (*value, error) {
	return &value{q: sql.Func("REPLACE", e.str(a[0]), e.str(a[1]), e.str(a[2]))}, nil
}

// sqlSearch returns the 1-based position of a[1] in a[0], or 0.
func sqlSearch(e *emitter, a []*value) (*value, error) {
	s, needle := e.str(a[0]), e.str(a[1])
	var q sql.Querier
	switch e.d {
	case dialect.Postgres:
		q = sql.Func("STRPOS", s, needle)
	case dialect.MySQL:
		q = sql.Func("LOCATE", needle, s)
	case dialect.SQLite:
		q = sql.Func("INSTR", s, needle)
	case dialect.MSSQL:
		q = sql.Func("CHARINDEX", needle, s)
	default:
		q = sql.Func("POSITION", needle, s)
	}
	return &value{q: q, typ: TypeInteger}, nil
}

func sqlRepeat(e *emitter, a []*value) (*value, error) {
	name := "REPEAT"
	if e.d == dialect.MSSQL {
		name = "REPLICATE"
	}
	return &value{q: sql.Func(name, e.str(a[0]), e.num(a[1]))}, nil
}

func sqlIf(e *emitter, a []*value) (*value, error) {
	els := e.null()
	if len(a) > 2 {
		els = a[2]
	}
	return e.caseWhen(a[0], a[1], els), nil
}

// sqlSwitch compiles SWITCH(expr, pattern, result, ..., default).
func sqlSwitch(e *emitter, a []*value) (*value, error) {
	var sb strings.Builder
	args := []any{e.scalar(a[0])}
	sb.WriteString("CASE ?")
	rest := a[1:]
	for len(rest) >= 2 {
		sb.WriteString(" WHEN ? THEN ?")
		args = append(args, e.scalar(rest[0]), e.scalar(rest[1]))
		rest = rest[2:]
	}
	if len(rest) == 1 {
		sb.WriteString(" ELSE ?")
		args = append(args, e.scalar(rest[0]))
	}
	sb.WriteString(" END")
	return &value{q: sql.Expr(sb.String(), args...)}, nil
}

func sqlLogic(combine func(...*sql.Predicate) *sql.Predicate) func(*emitter, []*value) (*value, error) {
	return func(e *emitter, a []*value) (*value, error) {
		preds := make([]*sql.Predicate, len(a))
		for i := range a {
			preds[i] = e.condition(a[i])
		}
		return &value{cond: combine(preds...), typ: TypeBoolean}, nil
	}
}

func sqlNow(e *emitter, _ []*value) (*value, error) {
	return &value{q: e.cl.SimpleCast(sql.Param(e.now()), sql.TypeDateTime), typ: TypeDate}, nil
}

func sqlToday(e *emitter, _ []*value) (*value, error) {
	today := e.now().Format("2006-01-02")
	return &value{q: e.cl.SimpleCast(sql.Param(today), sql.TypeDate), typ: TypeDate}, nil
}

var dateUnits = map[string]bool{
	"second": true, "minute": true, "hour": true, "day": true, "week": true, "month": true, "year": true,
}

// unit returns the normalized date unit of a literal argument.
func (e *emitter) unit(v *value) (string, error) {
	if v.lit == nil {
		return "", tabula.NewValidationError(e.ownerID(), fmt.Errorf("date unit must be a string literal"))
	}
	s, _ := v.lit.Value.(string)
	u := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s")
	if !dateUnits[u] {
		return "", tabula.NewValidationError(e.ownerID(), fmt.Errorf("unknown date unit %q", s))
	}
	return u, nil
}

func sqlDateAdd(e *emitter, a []*value) (*value, error) {
	u, err := e.unit(a[2])
	if err != nil {
		return nil, err
	}
	date, n := e.scalar(a[0]), e.num(a[1])
	var q sql.Querier
	switch e.d {
	case dialect.Postgres:
		q = sql.Expr("(? + ? * INTERVAL '1 "+u+"')", e.cl.SimpleCast(date, sql.TypeDateTime), n)
	case dialect.MySQL:
		q = sql.Expr("DATE_ADD(?, INTERVAL ? "+strings.ToUpper(u)+")", date, n)
	case dialect.SQLite:
		if u == "week" {
			u, n = "day", sql.Expr("(? * 7)", n)
		}
		q = sql.Expr("DATETIME(?, CAST(? AS TEXT) || ' "+u+"s')", date, n)
	default:
		q = sql.Expr("DATEADD("+u+", ?, ?)", n, date)
	}
	return &value{q: q, typ: TypeDate}, nil
}

var unitSeconds = map[string]int{
	"second": 1, "minute": 60, "hour": 3600, "day": 86400, "week": 604800,
}

// sqlDateDiff compiles DATETIME_DIFF(a, b, unit): a - b in whole units.
func sqlDateDiff(e *emitter, a []*value) (*value, error) {
	u := "second"
	if len(a) > 2 {
		var err error
		if u, err = e.unit(a[2]); err != nil {
			return nil, err
		}
	}
	x, y := e.scalar(a[0]), e.scalar(a[1])
	var q sql.Querier
	switch e.d {
	case dialect.Postgres:
		x, y = e.cl.SimpleCast(x, sql.TypeDateTime), e.cl.SimpleCast(y, sql.TypeDateTime)
		switch u {
		case "month":
			q = sql.Expr("CAST(EXTRACT(YEAR FROM AGE(?, ?)) * 12 + EXTRACT(MONTH FROM AGE(?, ?)) AS BIGINT)", x, y, x, y)
		case "year":
			q = sql.Expr("CAST(EXTRACT(YEAR FROM AGE(?, ?)) AS BIGINT)", x, y)
		default:
			q = sql.Expr("CAST(TRUNC(EXTRACT(EPOCH FROM (? - ?)) / "+strconv.Itoa(unitSeconds[u])+") AS BIGINT)", x, y)
		}
	case dialect.SQLite:
		secs, ok := unitSeconds[u]
		if !ok {
			return nil, tabula.NewUnsupportedError("DATETIME_DIFF in "+u+"s", e.d)
		}
		q = sql.Expr("CAST((JULIANDAY(?) - JULIANDAY(?)) * 86400 / "+strconv.Itoa(secs)+" AS INTEGER)", x, y)
	case dialect.MySQL:
		q = sql.Expr("TIMESTAMPDIFF("+strings.ToUpper(u)+", ?, ?)", y, x)
	default:
		q = sql.Expr("DATEDIFF("+u+", ?, ?)", y, x)
	}
	return &value{q: q, typ: TypeInteger}, nil
}

var sqliteParts = map[string]string{"day": "%d", "month": "%m", "year": "%Y", "hour": "%H"}

func sqlDatePart(part string) func(*emitter, []*value) (*value, error) {
	return func(e *emitter, a []*value) (*value, error) {
		x := e.scalar(a[0])
		var q sql.Querier
		switch e.d {
		case dialect.MySQL:
			q = sql.Func(strings.ToUpper(part), x)
		case dialect.SQLite:
			q = sql.Expr("CAST(STRFTIME('"+sqliteParts[part]+"', ?) AS INTEGER)", x)
		case dialect.MSSQL:
			q = sql.Expr("DATEPART("+part+", ?)", x)
		default:
			q = e.cl.SimpleCast(sql.Expr("EXTRACT("+strings.ToUpper(part)+" FROM ?)", x), sql.TypeInteger)
		}
		return &value{q: q, typ: TypeInteger}, nil
	}
}

// sqlWeekday numbers days from Monday = 0.
func sqlWeekday(e *emitter, a []*value) (*value, error) {
	x := e.scalar(a[0])
	var q sql.Querier
	switch e.d {
	case dialect.MySQL:
		q = sql.Func("WEEKDAY", x)
	case dialect.SQLite:
		q = sql.Expr("((CAST(STRFTIME('%w', ?) AS INTEGER) + 6) % 7)", x)
	case dialect.MSSQL:
		q = sql.Expr("((DATEPART(weekday, ?) + @@DATEFIRST + 5) % 7)", x)
	case dialect.Snowflake:
		q = sql.Expr("(DAYOFWEEKISO(?) - 1)", x)
	default:
		q = e.cl.SimpleCast(sql.Expr("EXTRACT(ISODOW FROM ?) - 1", x), sql.TypeInteger)
	}
	return &value{q: q, typ: TypeInteger}, nil
}

func sqlChecksum(name string) func(*emitter, []*value) (*value, error) {
	return func(e *emitter, a []*value) (*value, error) {
		s := e.str(a[0])
		var q sql.Querier
		switch e.d {
		case dialect.Postgres:
			if name == "MD5" {
				q = sql.Func("MD5", s)
			} else {
				q = sql.Expr("ENCODE(SHA256(CONVERT_TO(?, 'UTF8')), 'hex')", s)
			}
		case dialect.MSSQL:
			algo := map[string]string{"MD5": "MD5", "SHA1": "SHA1", "SHA256": "SHA2_256"}[name]
			q = sql.Expr("LOWER(CONVERT(VARCHAR(64), HASHBYTES('"+algo+"', ?), 2))", s)
		default:
			if name == "SHA256" {
				q = sql.Func("SHA2", s, sql.Raw("256"))
			} else {
				q = sql.Func(name, s)
			}
		}
		return &value{q: q, typ: TypeString}, nil
	}
}

func sqlRegexMatch(e *emitter, a []*value) (*value, error) {
	s, pattern := e.str(a[0]), e.str(a[1])
	if e.d == dialect.Postgres {
		return &value{cond: sql.ExprP("? ~ ?", s, pattern), typ: TypeBoolean}, nil
	}
	return &value{cond: sql.ExprP("REGEXP_LIKE(?, ?)", s, pattern), typ: TypeBoolean}, nil
}
