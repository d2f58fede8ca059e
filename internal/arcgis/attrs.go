package arcgis

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// String returns a trimmed string attribute, formatting numbers without a
// trailing ".0".
func String(attrs map[string]any, key string) string {
	switch v := attrs[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Float returns a numeric attribute. Numeric strings are accepted; NaN and
// infinities are rejected.
func Float(attrs map[string]any, key string) (float64, bool) {
	var f float64
	switch v := attrs[key].(type) {
	case float64:
		f = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(v, ",", "")), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FloatPtr is Float returning nil when absent.
func FloatPtr(attrs map[string]any, key string) *float64 {
	if f, ok := Float(attrs, key); ok {
		return &f
	}
	return nil
}

// PositivePtr is FloatPtr that also treats zero and negatives as absent; the
// county layers use 0 for "unknown".
func PositivePtr(attrs map[string]any, key string) *float64 {
	if f, ok := Float(attrs, key); ok && f > 0 {
		return &f
	}
	return nil
}

// IntPtr returns a positive integer attribute or nil.
func IntPtr(attrs map[string]any, key string) *int {
	if f, ok := Float(attrs, key); ok && f > 0 {
		n := int(math.Round(f))
		return &n
	}
	return nil
}

// Int64 returns an integral attribute such as OBJECTID.
func Int64(attrs map[string]any, key string) (int64, bool) {
	f, ok := Float(attrs, key)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// Date formats an epoch-milliseconds date attribute as YYYY-MM-DD. String
// dates are returned as-is.
func Date(attrs map[string]any, key string) string {
	switch v := attrs[key].(type) {
	case float64:
		if v <= 0 {
			return ""
		}
		return time.UnixMilli(int64(v)).UTC().Format("2006-01-02")
	case string:
		return strings.TrimSpace(v)
	}
	return ""
}

// Quote renders a SQL string literal.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// InList renders "field IN ('a','b')".
func InList(field string, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = Quote(v)
	}
	return fmt.Sprintf("%s IN (%s)", field, strings.Join(quoted, ","))
}

// LikePrefix renders "UPPER(field) LIKE 'PREFIX%'".
func LikePrefix(field, prefix string) string {
	p := strings.ToUpper(strings.ReplaceAll(prefix, "'", "''"))
	return fmt.Sprintf("UPPER(%s) LIKE '%s%%'", field, p)
}

// And joins non-empty clauses.
func And(clauses ...string) string {
	var parts []string
	for _, c := range clauses {
		if strings.TrimSpace(c) != "" {
			parts = append(parts, "("+c+")")
		}
	}
	if len(parts) == 0 {
		return "1=1"
	}
	return strings.Join(parts, " AND ")
}
