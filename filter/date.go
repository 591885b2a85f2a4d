package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect/sql"
	ql "github.com/syssam/tabula/querylanguage"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
)

const dateLayout = "2006-01-02"

var (
	compareSubOps = map[ql.SubOp]bool{
		ql.SubToday: true, ql.SubTomorrow: true, ql.SubYesterday: true,
		ql.SubOneWeekAgo: true, ql.SubOneWeekFromNow: true,
		ql.SubOneMonthAgo: true, ql.SubOneMonthFromNow: true,
		ql.SubDaysAgo: true, ql.SubDaysFromNow: true, ql.SubExactDate: true,
	}
	withinSubOps = map[ql.SubOp]bool{
		ql.SubPastWeek: true, ql.SubPastMonth: true, ql.SubPastYear: true,
		ql.SubNextWeek: true, ql.SubNextMonth: true, ql.SubNextYear: true,
		ql.SubPastNumberOfDays: true, ql.SubNextNumberOfDays: true,
	}
)

func validateSubOp(col, eff *schema.Column, op ql.Op, sub ql.SubOp) error {
	var ok bool
	switch {
	case op == ql.OpIsWithin:
		ok = withinSubOps[sub]
	case sub == "":
		ok = true
	case eff.Type.Temporal():
		switch op {
		case ql.OpEq, ql.OpNeq, ql.OpGt, ql.OpLt, ql.OpGte, ql.OpLte:
			ok = compareSubOps[sub]
		}
	}
	if !ok {
		return tabula.NewOperatorError(col.ID, string(op), fmt.Errorf("sub-operator %q is not allowed", sub))
	}
	return nil
}

// date compiles comparisons of date and timestamp columns. Reference days
// are computed from the scope clock, so every page of a listing sees the
// same bounds.
func (l *leafCtx) date() (*sql.Predicate, error) {
	switch l.op {
	case ql.OpBlank, ql.OpNotBlank, ql.OpNull, ql.OpNotNull:
		return l.compare(valueRaw)
	}
	x, err := l.expr()
	if err != nil {
		return nil, err
	}
	if l.op == ql.OpIsWithin {
		return l.within(x)
	}
	day, exact, ok, err := l.reference()
	if err != nil || !ok {
		return nil, err
	}
	if !exact.IsZero() {
		return binary(l.op, x, exact)
	}
	if !l.timestamp() {
		return binary(l.op, x, day.Format(dateLayout))
	}
	// Timestamps match a day when they fall in [start, end).
	start, end := day, day.AddDate(0, 0, 1)
	switch l.op {
	case ql.OpEq:
		return paren(sql.And(sql.GTE(x, start), sql.LT(x, end))), nil
	case ql.OpNeq:
		return paren(sql.Or(sql.LT(x, start), sql.GTE(x, end), sql.IsNull(x))), nil
	case ql.OpGt:
		return sql.GTE(x, end), nil
	case ql.OpGte:
		return sql.GTE(x, start), nil
	case ql.OpLt:
		return sql.LT(x, start), nil
	default:
		return sql.LT(x, end), nil
	}
}

func (l *leafCtx) timestamp() bool {
	return l.eff.Type.Temporal() && l.eff.Type != field.Date
}

func (l *leafCtx) today() time.Time {
	now := l.s.Now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if monthFormat(l.eff.Meta.DateFormat) {
		day = day.AddDate(0, 0, 1-day.Day())
	}
	return day
}

// reference returns the day a comparison refers to, or the exact instant
// when an explicit timestamp is compared to a timestamp column. ok is
// false when the leaf has no value to compare to.
func (l *leafCtx) reference() (day, exact time.Time, ok bool, err error) {
	today := l.today()
	switch l.node.SubOp {
	case ql.SubToday:
		return today, exact, true, nil
	case ql.SubTomorrow:
		return today.AddDate(0, 0, 1), exact, true, nil
	case ql.SubYesterday:
		return today.AddDate(0, 0, -1), exact, true, nil
	case ql.SubOneWeekAgo:
		return today.AddDate(0, 0, -7), exact, true, nil
	case ql.SubOneWeekFromNow:
		return today.AddDate(0, 0, 7), exact, true, nil
	case ql.SubOneMonthAgo:
		return today.AddDate(0, -1, 0), exact, true, nil
	case ql.SubOneMonthFromNow:
		return today.AddDate(0, 1, 0), exact, true, nil
	case ql.SubDaysAgo, ql.SubDaysFromNow:
		n, ok, err := l.days()
		if !ok || err != nil {
			return day, exact, false, err
		}
		if l.node.SubOp == ql.SubDaysAgo {
			n = -n
		}
		return today.AddDate(0, 0, n), exact, true, nil
	}
	// exactDate, or no sub-operator at all.
	if l.value == nil || l.value == "" {
		return day, exact, false, nil
	}
	t, clock, err := parseTime(l.value)
	if err != nil {
		return day, exact, false, l.errorf("%v", err)
	}
	if clock && l.timestamp() {
		return day, t, true, nil
	}
	day = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	if monthFormat(l.eff.Meta.DateFormat) {
		day = day.AddDate(0, 0, 1-day.Day())
	}
	return day, exact, true, nil
}

func (l *leafCtx) days() (int, bool, error) {
	if l.value == nil || l.value == "" {
		return 0, false, nil
	}
	n, err := toNumber(l.value, true)
	if err != nil {
		return 0, false, l.errorf("%v", err)
	}
	i, ok := n.(int64)
	if !ok {
		return 0, false, l.errorf("number of days must be a whole number")
	}
	return int(i), true, nil
}

// within compiles isWithin into a BETWEEN over whole days.
func (l *leafCtx) within(x sql.Querier) (*sql.Predicate, error) {
	today := l.today()
	var lo, hi time.Time
	switch l.node.SubOp {
	case ql.SubPastWeek:
		lo, hi = today.AddDate(0, 0, -7), today
	case ql.SubPastMonth:
		lo, hi = today.AddDate(0, -1, 0), today
	case ql.SubPastYear:
		lo, hi = today.AddDate(-1, 0, 0), today
	case ql.SubNextWeek:
		lo, hi = today, today.AddDate(0, 0, 7)
	case ql.SubNextMonth:
		lo, hi = today, today.AddDate(0, 1, 0)
	case ql.SubNextYear:
		lo, hi = today, today.AddDate(1, 0, 0)
	case ql.SubPastNumberOfDays, ql.SubNextNumberOfDays:
		n, ok, err := l.days()
		if !ok || err != nil {
			return nil, err
		}
		if l.node.SubOp == ql.SubPastNumberOfDays {
			lo, hi = today.AddDate(0, 0, -n), today
		} else {
			lo, hi = today, today.AddDate(0, 0, n)
		}
	default:
		return nil, l.errorf("sub-operator %q is not allowed", l.node.SubOp)
	}
	if !l.timestamp() {
		return sql.Between(x, lo.Format(dateLayout), hi.Format(dateLayout)), nil
	}
	return sql.Between(x, lo, hi.AddDate(0, 0, 1).Add(-time.Microsecond)), nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// parseTime parses a date or a timestamp. clock reports if the value
// carries a time of day.
func parseTime(v any) (t time.Time, clock bool, err error) {
	switch v := v.(type) {
	case time.Time:
		return v.UTC(), true, nil
	case string:
		s := strings.TrimSpace(v)
		if t, err := time.Parse(dateLayout, s); err == nil {
			return t, false, nil
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true, nil
			}
		}
		return t, false, fmt.Errorf("value %q is not a date", v)
	}
	return t, false, fmt.Errorf("value %v (%T) is not a date", v, v)
}

// monthFormat reports if a display format has no day, e.g. YYYY-MM.
// Such columns compare by month: reference days snap to the first.
func monthFormat(f string) bool {
	f = strings.ToUpper(f)
	return f != "" && strings.Contains(f, "MM") && !strings.Contains(f, "D")
}
