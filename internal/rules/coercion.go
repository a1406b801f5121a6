// internal/rules/coercion.go
package rules

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/solatis/formguard/internal/types"
)

/*
 * Value coercion for rule evaluation.
 *
 * Form values arrive loosely typed: strings from text inputs, float64 from
 * JSON decoding, time.Time from date pickers. Rules read them through the
 * helpers here instead of asserting types directly.
 *
 * Key distinction: emptiness vs coercion failure. IsEmpty decides whether a
 * value counts as "not provided" (only required rules may reject it). A
 * non-empty value that cannot be read as the expected type returns
 * ErrCoercionFailed, which format rules report as a violation.
 *
 * Type modes:
 *   - Number: strict - numeric kinds and numeric strings, rejects booleans
 *   - Text: lenient - every value renders to a string
 *   - Date: time.Time, "2006-01-02" or RFC3339 strings, truncated to the day
 *   - Clock: "HH:MM" 24h strings, returned as minutes after midnight
 */

// DateLayout is the canonical whole-day date format.
const DateLayout = "2006-01-02"

// ClockLayout is the canonical time-of-day format.
const ClockLayout = "15:04"

// IsEmpty reports whether value counts as not provided.
// nil, whitespace-only strings, zero times and empty slices/maps are empty.
// Numbers and booleans are never empty: 0 and false are answers.
func IsEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case time.Time:
		return v.IsZero()
	case *time.Time:
		return v == nil || v.IsZero()
	case float64, float32, int, int32, int64, uint, uint32, uint64, bool:
		return false
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// ToNumber converts value to float64.
// Accepts numeric kinds and trimmed numeric strings. Rejects booleans.
func ToNumber(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, types.ErrCoercionFailed
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, types.ErrCoercionFailed
		}
		return f, nil
	default:
		return 0, types.ErrCoercionFailed
	}
}

// ToText renders value as a string for length and pattern checks.
func ToText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(DateLayout)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ToDate converts value to a UTC day (time truncated to midnight).
func ToDate(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, types.ErrCoercionFailed
		}
		return truncateDay(v), nil
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, types.ErrCoercionFailed
		}
		return truncateDay(*v), nil
	case string:
		s := strings.TrimSpace(v)
		if t, err := time.Parse(DateLayout, s); err == nil {
			return t, nil
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return truncateDay(t), nil
		}
		return time.Time{}, types.ErrCoercionFailed
	default:
		return time.Time{}, types.ErrCoercionFailed
	}
}

// ToClock converts an "HH:MM" value to minutes after midnight.
func ToClock(value any) (int, error) {
	s, ok := value.(string)
	if !ok {
		return 0, types.ErrCoercionFailed
	}
	t, err := time.Parse(ClockLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, types.ErrCoercionFailed
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ToBool reads checkbox-style values. Only real booleans and "true"/"false"
// strings are accepted.
func ToBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, types.ErrCoercionFailed
		}
		return b, nil
	default:
		return false, types.ErrCoercionFailed
	}
}

// DaysInclusive counts whole days in [start, end], both ends included.
func DaysInclusive(start, end time.Time) int {
	return int(truncateDay(end).Sub(truncateDay(start)).Hours()/24) + 1
}

// truncateDay drops the time of day, keeping the calendar date in UTC.
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
