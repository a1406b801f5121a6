// internal/rules/operators.go
package rules

import (
	"strings"
)

/*
 * Ordered comparison for cross-field rules.
 *
 * Cross-field rules compare two field values of the same logical type: two
 * dates, two times of day, two numbers. Compare coerces both sides with the
 * same mode before comparing, so "2024-07-15" and a time.Time compare as
 * dates.
 *
 * Incomparable operands (coercion fails on either side) make Compare report
 * ok=false. Callers treat that as "rule does not apply": the field rules
 * already report malformed values, and repeating the failure here would only
 * duplicate it.
 */

// Operator is an ordered comparison operator.
type Operator int

const (
	OpUnspecified Operator = iota
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
)

// String returns the operator's symbol.
func (op Operator) String() string {
	switch op {
	case OpEq:
		return "=="
	case OpNeq:
		return "!="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	default:
		return "?"
	}
}

// ValueMode selects how Compare coerces operands.
type ValueMode int

const (
	ModeNumber ValueMode = iota
	ModeDate
	ModeClock
	ModeText
)

// Compare applies op to a and b after coercing both with mode.
// ok is false when either side cannot be coerced.
func Compare(op Operator, mode ValueMode, a, b any) (matched bool, ok bool) {
	c, ok := threeWay(mode, a, b)
	if !ok {
		return false, false
	}
	switch op {
	case OpEq:
		return c == 0, true
	case OpNeq:
		return c != 0, true
	case OpLt:
		return c < 0, true
	case OpLte:
		return c <= 0, true
	case OpGt:
		return c > 0, true
	case OpGte:
		return c >= 0, true
	default:
		return false, false
	}
}

// threeWay returns -1/0/1 for a relative to b under mode.
func threeWay(mode ValueMode, a, b any) (int, bool) {
	switch mode {
	case ModeNumber:
		na, err := ToNumber(a)
		if err != nil {
			return 0, false
		}
		nb, err := ToNumber(b)
		if err != nil {
			return 0, false
		}
		return sign(na - nb), true
	case ModeDate:
		da, err := ToDate(a)
		if err != nil {
			return 0, false
		}
		db, err := ToDate(b)
		if err != nil {
			return 0, false
		}
		return da.Compare(db), true
	case ModeClock:
		ca, err := ToClock(a)
		if err != nil {
			return 0, false
		}
		cb, err := ToClock(b)
		if err != nil {
			return 0, false
		}
		return sign(float64(ca - cb)), true
	case ModeText:
		return strings.Compare(ToText(a), ToText(b)), true
	default:
		return 0, false
	}
}

func sign(f float64) int {
	switch {
	case f < 0:
		return -1
	case f > 0:
		return 1
	default:
		return 0
	}
}
