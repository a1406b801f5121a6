// internal/classify/classify.go
package classify

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/solatis/formguard/internal/rules"
	"github.com/solatis/formguard/internal/types"
)

/*
 * Violation classification and remediation suggestions.
 *
 * Classification is a table lookup: every rule carries its (severity,
 * category) from definition time, exposed through the rule set's RuleInfo.
 * Message-text matching is the fallback for rules defined without a class,
 * which only happens for rules imported from untyped configuration.
 *
 * Suggestions are rendered from per-category templates using the field name
 * and the limits recorded on the rule (max, min, maxDurationDays). Rendering
 * never panics; anything unexpected degrades to "Review the <field> field".
 */

// Lookup resolves rule metadata by ID. *rules.RuleSet implements it.
type Lookup interface {
	RuleInfo(id types.RuleID) (rules.RuleInfo, bool)
}

// Classifier classifies violations against one rule set snapshot.
type Classifier struct {
	lookup Lookup
	logger *zap.Logger
}

// New returns a classifier over lookup. lookup may be nil, in which case
// every violation is classified from its message.
func New(lookup Lookup, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{lookup: lookup, logger: logger}
}

// Classify returns v's severity and category.
func (c *Classifier) Classify(v types.RuleViolation) types.Class {
	if v.RuleID == rules.FaultRuleID {
		return rules.FaultClass
	}
	if info, ok := c.info(v.RuleID); ok && info.Class != nil {
		return *info.Class
	}
	return ClassifyMessage(v.Message)
}

func (c *Classifier) info(id types.RuleID) (rules.RuleInfo, bool) {
	if c.lookup == nil || id == "" {
		return rules.RuleInfo{}, false
	}
	return c.lookup.RuleInfo(id)
}

// messageClasses is checked in order; the first matching keyword wins.
var messageClasses = []struct {
	keywords []string
	class    types.Class
}{
	{[]string{"required"}, types.Class{Severity: types.SeverityCritical, Category: types.CategoryRequired}},
	{[]string{"safety", "approval"}, types.Class{Severity: types.SeverityCritical, Category: types.CategorySafety}},
	{[]string{"overlap", "conflict"}, types.Class{Severity: types.SeverityHigh, Category: types.CategoryConflict}},
	{[]string{"unique", "already", "exists"}, types.Class{Severity: types.SeverityHigh, Category: types.CategoryUniqueness}},
	{[]string{"format", "valid"}, types.Class{Severity: types.SeverityMedium, Category: types.CategoryFormat}},
	{[]string{"date", "before", "after", "duration", "exceed"}, types.Class{Severity: types.SeverityHigh, Category: types.CategoryDateLogic}},
	{[]string{"characters", "length", "long", "short"}, types.Class{Severity: types.SeverityMedium, Category: types.CategoryLength}},
}

// ClassifyMessage infers a class from message text. Unknown messages are
// medium businessRule.
func ClassifyMessage(msg string) types.Class {
	lower := strings.ToLower(msg)
	for _, mc := range messageClasses {
		for _, kw := range mc.keywords {
			if strings.Contains(lower, kw) {
				return mc.class
			}
		}
	}
	return types.Class{Severity: types.SeverityMedium, Category: types.CategoryBusinessRule}
}

// Suggest returns remediation hints for v on field. Always at least one.
func (c *Classifier) Suggest(field types.FieldName, v types.RuleViolation) (out []string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("suggestion rendering failed",
				zap.String("field", string(field)),
				zap.String("rule_id", string(v.RuleID)),
				zap.Any("panic", r))
			out = []string{fallback(field)}
		}
	}()

	if v.RuleID == rules.FaultRuleID {
		return []string{fallback(field), "Try again; if the problem persists, contact support"}
	}

	info, _ := c.info(v.RuleID)
	out = render(field, c.Classify(v).Category, info, v.Message)
	if len(out) == 0 {
		out = []string{fallback(field)}
	}
	return out
}

func fallback(field types.FieldName) string {
	if field == "" {
		return "Review the form"
	}
	return fmt.Sprintf("Review the %s field", field)
}

func render(field types.FieldName, cat types.Category, info rules.RuleInfo, msg string) []string {
	p := info.Params
	lower := strings.ToLower(msg)

	switch cat {
	case types.CategoryRequired:
		return []string{fmt.Sprintf("Enter a value for %s", field)}

	case types.CategoryLength:
		lo, hasLo := param(p, "min")
		hi, hasHi := param(p, "max")
		switch {
		case hasLo && hasHi:
			return []string{fmt.Sprintf("Use between %d and %d characters for %s", lo, hi, field)}
		case hasHi:
			return []string{fmt.Sprintf("Shorten %s to %d characters or fewer", field, hi)}
		case hasLo:
			return []string{fmt.Sprintf("Use at least %d characters for %s", lo, field)}
		}
		return []string{fmt.Sprintf("Adjust the length of %s", field)}

	case types.CategoryFormat:
		switch {
		case strings.Contains(lower, "yyyy-mm-dd") || strings.Contains(lower, "date"):
			return []string{"Use the YYYY-MM-DD date format"}
		case strings.Contains(lower, "hh:mm") || strings.Contains(lower, "time"):
			return []string{"Use the 24-hour HH:MM time format"}
		case strings.Contains(lower, "email"):
			return []string{"Enter an address like name@example.com"}
		case strings.Contains(lower, "one of"):
			return []string{fmt.Sprintf("Pick one of the listed options for %s", field)}
		}
		return []string{fmt.Sprintf("Check the format of %s", field)}

	case types.CategoryDateLogic:
		if days, ok := param(p, "maxDurationDays"); ok {
			return []string{
				fmt.Sprintf("Shorten the date range to %d days or fewer", days),
				"Split longer periods into separate entries",
			}
		}
		if hours, ok := param(p, "maxShiftHours"); ok {
			return []string{fmt.Sprintf("Keep the shift to %d hours or fewer", hours)}
		}
		return []string{"Make sure the end comes after the start"}

	case types.CategoryConflict:
		return []string{
			"Choose dates that do not overlap existing entries",
			"Or update the conflicting entry first",
		}

	case types.CategoryUniqueness:
		return []string{fmt.Sprintf("Use a different %s; this one is already in use", field)}

	case types.CategorySafety:
		return []string{
			"Assign a safety officer before submitting",
			"Obtain the required approval for this work",
		}

	case types.CategoryBusinessRule:
		lo, hasLo := param(p, "min")
		hi, hasHi := param(p, "max")
		switch {
		case hasLo && hasHi:
			return []string{fmt.Sprintf("Enter a value between %d and %d", lo, hi)}
		case hasHi:
			return []string{fmt.Sprintf("Enter a value of at most %d", hi)}
		case hasLo:
			return []string{fmt.Sprintf("Enter a value of at least %d", lo)}
		}
		if limit, ok := param(p, "maxPerMonth"); ok {
			return []string{fmt.Sprintf("Move this entry to a month with fewer than %d entries", limit)}
		}
	}
	return nil
}

// param reads an integral limit. Non-finite values are treated as absent.
func param(p map[string]float64, name string) (int, bool) {
	v, ok := p[name]
	if !ok || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return int(v), true
}
