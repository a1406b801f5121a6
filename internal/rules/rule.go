// internal/rules/rule.go
package rules

import (
	"fmt"
	"math"
	"net/mail"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/solatis/formguard/internal/types"
)

// TestFunc reports whether value passes. fctx holds sibling field values.
// An error is an engine fault, not a validation failure.
type TestFunc func(value any, fctx types.Record) (bool, error)

// Rule is an atomic, pure, single-field validation rule.
type Rule struct {
	ID        types.RuleID
	Field     types.FieldName
	Kind      types.RuleKind
	Message   string
	Test      TestFunc
	DependsOn []types.FieldName // sibling fields Test reads
	// ReadsContext marks rules that read arbitrary sibling fields.
	// Cache keys then fingerprint the whole context.
	ReadsContext bool
	Class        *types.Class       // nil: classify from message text
	Params       map[string]float64 // limits referenced by suggestions
}

// WithClass returns a copy of r classified as (sev, cat).
func (r Rule) WithClass(sev types.Severity, cat types.Category) Rule {
	r.Class = &types.Class{Severity: sev, Category: cat}
	return r
}

// WithMessage returns a copy of r reporting msg.
func (r Rule) WithMessage(msg string) Rule {
	r.Message = msg
	return r
}

// DefaultClass returns the classification attached to rules of kind k when
// built through the constructors in this file.
func DefaultClass(k types.RuleKind) types.Class {
	switch k {
	case types.KindRequired:
		return types.Class{Severity: types.SeverityCritical, Category: types.CategoryRequired}
	case types.KindFormat:
		return types.Class{Severity: types.SeverityHigh, Category: types.CategoryFormat}
	case types.KindLength:
		return types.Class{Severity: types.SeverityMedium, Category: types.CategoryLength}
	case types.KindRange:
		return types.Class{Severity: types.SeverityMedium, Category: types.CategoryBusinessRule}
	default:
		return types.Class{Severity: types.SeverityMedium, Category: types.CategoryBusinessRule}
	}
}

func newRule(id types.RuleID, field types.FieldName, kind types.RuleKind, msg string, test TestFunc) Rule {
	class := DefaultClass(kind)
	return Rule{
		ID:      id,
		Field:   field,
		Kind:    kind,
		Message: msg,
		Test:    test,
		Class:   &class,
	}
}

// Required rejects empty values.
func Required(id types.RuleID, field types.FieldName) Rule {
	return newRule(id, field, types.KindRequired, fmt.Sprintf("%s is required", field),
		func(value any, _ types.Record) (bool, error) {
			return !IsEmpty(value), nil
		})
}

// textLength counts the runes of value's text form without leading and
// trailing whitespace. Every length rule measures text this way, matching
// emptiness, which also ignores surrounding whitespace.
func textLength(value any) int {
	return utf8.RuneCountInString(strings.TrimSpace(ToText(value)))
}

// MaxLength rejects text longer than n characters (runes).
func MaxLength(id types.RuleID, field types.FieldName, n int) Rule {
	r := newRule(id, field, types.KindLength,
		fmt.Sprintf("%s must be %d characters or fewer", field, n),
		func(value any, _ types.Record) (bool, error) {
			return textLength(value) <= n, nil
		})
	r.Params = map[string]float64{"max": float64(n)}
	return r
}

// MinLength rejects text shorter than n characters (runes).
func MinLength(id types.RuleID, field types.FieldName, n int) Rule {
	r := newRule(id, field, types.KindLength,
		fmt.Sprintf("%s must be at least %d characters", field, n),
		func(value any, _ types.Record) (bool, error) {
			return textLength(value) >= n, nil
		})
	r.Params = map[string]float64{"min": float64(n)}
	return r
}

// Pattern rejects text not matching re.
func Pattern(id types.RuleID, field types.FieldName, re *regexp.Regexp) Rule {
	return newRule(id, field, types.KindFormat,
		fmt.Sprintf("%s has an invalid format", field),
		func(value any, _ types.Record) (bool, error) {
			return re.MatchString(strings.TrimSpace(ToText(value))), nil
		})
}

// DateFormat rejects values that are not whole-day dates.
func DateFormat(id types.RuleID, field types.FieldName) Rule {
	return newRule(id, field, types.KindFormat,
		fmt.Sprintf("%s must be a valid date (YYYY-MM-DD)", field),
		func(value any, _ types.Record) (bool, error) {
			_, err := ToDate(value)
			return err == nil, nil
		})
}

// ClockFormat rejects values that are not HH:MM times of day.
func ClockFormat(id types.RuleID, field types.FieldName) Rule {
	return newRule(id, field, types.KindFormat,
		fmt.Sprintf("%s must be a valid time (HH:MM)", field),
		func(value any, _ types.Record) (bool, error) {
			_, err := ToClock(value)
			return err == nil, nil
		})
}

// Email rejects values that are not a bare email address.
func Email(id types.RuleID, field types.FieldName) Rule {
	return newRule(id, field, types.KindFormat,
		fmt.Sprintf("%s must be a valid email address", field),
		func(value any, _ types.Record) (bool, error) {
			s := strings.TrimSpace(ToText(value))
			addr, err := mail.ParseAddress(s)
			return err == nil && addr.Address == s, nil
		})
}

// OneOf rejects values outside allowed (exact match after trimming).
func OneOf(id types.RuleID, field types.FieldName, allowed ...string) Rule {
	set := slices.Clone(allowed)
	return newRule(id, field, types.KindFormat,
		fmt.Sprintf("%s must be one of: %s", field, strings.Join(set, ", ")),
		func(value any, _ types.Record) (bool, error) {
			return slices.Contains(set, strings.TrimSpace(ToText(value))), nil
		})
}

// Range rejects numbers outside [lo, hi]. Use math.Inf for open bounds.
// Non-numeric values fail the rule.
func Range(id types.RuleID, field types.FieldName, lo, hi float64) Rule {
	r := newRule(id, field, types.KindRange, rangeMessage(field, lo, hi),
		func(value any, _ types.Record) (bool, error) {
			n, err := ToNumber(value)
			if err != nil {
				return false, nil
			}
			return n >= lo && n <= hi, nil
		})
	r.Params = map[string]float64{}
	if !math.IsInf(lo, -1) {
		r.Params["min"] = lo
	}
	if !math.IsInf(hi, 1) {
		r.Params["max"] = hi
	}
	return r
}

func rangeMessage(field types.FieldName, lo, hi float64) string {
	switch {
	case math.IsInf(lo, -1) && math.IsInf(hi, 1):
		return fmt.Sprintf("%s must be a number", field)
	case math.IsInf(lo, -1):
		return fmt.Sprintf("%s must be at most %g", field, hi)
	case math.IsInf(hi, 1):
		return fmt.Sprintf("%s must be at least %g", field, lo)
	default:
		return fmt.Sprintf("%s must be between %g and %g", field, lo, hi)
	}
}

// Predicate wraps a custom test. deps names the sibling fields test reads;
// pass none for tests that only look at the value.
func Predicate(id types.RuleID, field types.FieldName, msg string, test TestFunc, deps ...types.FieldName) Rule {
	r := newRule(id, field, types.KindPredicate, msg, test)
	r.DependsOn = slices.Clone(deps)
	return r
}

// NotBefore rejects dates earlier than the date in sibling field other.
// Passes when other is empty or malformed; its own rules report that.
func NotBefore(id types.RuleID, field, other types.FieldName) Rule {
	r := Predicate(id, field, fmt.Sprintf("%s cannot be before %s", field, other),
		func(value any, fctx types.Record) (bool, error) {
			before, ok := Compare(OpLt, ModeDate, value, fctx.Get(other))
			return !ok || !before, nil
		}, other)
	return r.WithClass(types.SeverityHigh, types.CategoryDateLogic)
}

// Unique rejects values already present in taken. Comparison is
// case-insensitive on trimmed text. taken is a caller-supplied snapshot.
func Unique(id types.RuleID, field types.FieldName, taken []string) Rule {
	set := make(map[string]struct{}, len(taken))
	for _, t := range taken {
		set[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	r := Predicate(id, field, fmt.Sprintf("%s is already in use", field),
		func(value any, _ types.Record) (bool, error) {
			_, exists := set[strings.ToLower(strings.TrimSpace(ToText(value)))]
			return !exists, nil
		})
	return r.WithClass(types.SeverityHigh, types.CategoryUniqueness)
}
