// internal/rules/evaluate.go
package rules

import (
	"fmt"

	"github.com/solatis/formguard/internal/types"
)

/*
 * Field rule evaluation.
 *
 * Runs one field's rule list against a candidate value with first-failure
 * semantics: rules execute in registration order and the first rule whose
 * test returns false produces the violation. Remaining rules are skipped, so
 * required rules come first, format second, semantic checks last.
 *
 * Empty policy: an empty value (see IsEmpty) is only ever judged by required
 * rules. Every other kind passes it without running its test, so optional
 * fields never fail format checks while blank.
 *
 * Fault containment: a test that returns an error or panics does not abort
 * the pass. It yields a synthetic violation under FaultRuleID and evaluation
 * stops there, since later rules may assume earlier ones held.
 */

// FaultRuleID is the rule ID carried by synthetic engine-fault violations.
const FaultRuleID types.RuleID = "formguard.fault"

// FaultMessage is the generic message reported for engine faults.
const FaultMessage = "This value could not be validated; please review it"

// FaultClass is the classification of engine faults.
var FaultClass = types.Class{Severity: types.SeverityHigh, Category: types.CategoryBusinessRule}

// Outcome is the result of evaluating one field.
type Outcome struct {
	Violation *types.RuleViolation // nil when valid
	Rule      *Rule                // failing rule, nil when valid or on fault
	Fault     error                // wrapped ErrRuleFault when a test misbehaved
	Evaluated int                  // number of tests actually executed
}

// Valid reports whether no rule failed.
func (o Outcome) Valid() bool {
	return o.Violation == nil
}

// ValidateField evaluates rules for field against value.
// A field with no rules is trivially valid.
func ValidateField(rules []Rule, field types.FieldName, value any, fctx types.Record) Outcome {
	var out Outcome
	empty := IsEmpty(value)

	for i := range rules {
		rule := &rules[i]
		if empty && rule.Kind != types.KindRequired {
			continue
		}

		out.Evaluated++
		ok, err := runTest(rule, value, fctx)
		if err != nil {
			out.Fault = err
			out.Violation = FaultViolation(field, err)
			return out
		}
		if !ok {
			out.Rule = rule
			out.Violation = &types.RuleViolation{
				RuleID:  rule.ID,
				Field:   field,
				Message: rule.Message,
			}
			return out
		}
	}

	return out
}

// FaultViolation builds the synthetic violation for a misbehaving rule.
func FaultViolation(field types.FieldName, _ error) *types.RuleViolation {
	return &types.RuleViolation{
		RuleID:  FaultRuleID,
		Field:   field,
		Message: FaultMessage,
	}
}

// runTest executes a rule test, converting errors and panics to ErrRuleFault.
func runTest(rule *Rule, value any, fctx types.Record) (ok bool, err error) {
	if rule.Test == nil {
		return false, fmt.Errorf("%w: rule %s has no test", types.ErrRuleFault, rule.ID)
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("%w: rule %s panicked: %v", types.ErrRuleFault, rule.ID, r)
		}
	}()

	ok, err = rule.Test(value, fctx)
	if err != nil {
		return false, fmt.Errorf("%w: rule %s: %v", types.ErrRuleFault, rule.ID, err)
	}
	return ok, nil
}
