package filter

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// valueKind selects how leaf values are coerced before binding.
type valueKind uint8

const (
	valueRaw valueKind = iota
	valueText
	valueNumber
)

func toString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// toList accepts a list or a comma separated string.
func toList(v any) []any {
	switch v := v.(type) {
	case nil:
		return nil
	case []any:
		return v
	case []string:
		items := make([]any, len(v))
		for i := range v {
			items[i] = v[i]
		}
		return items
	case string:
		var items []any
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		return items
	}
	return []any{v}
}

// toNumber coerces v to an int64 or a float64. Whole numbers become int64
// when the column is integral.
func toNumber(v any, integral bool) (any, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint32:
		return int64(n), nil
	case float32:
		return toNumber(float64(n), integral)
	case float64:
		if integral && n == math.Trunc(n) {
			return int64(n), nil
		}
		return n, nil
	case json.Number:
		return toNumber(n.String(), integral)
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not a number", n)
		}
		return toNumber(f, integral)
	}
	return nil, fmt.Errorf("value %v (%T) is not a number", v, v)
}
