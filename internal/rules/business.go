// internal/rules/business.go
package rules

import (
	"context"
	"fmt"

	"github.com/solatis/formguard/internal/types"
)

// BusinessTest evaluates a whole record against a caller-supplied snapshot of
// comparable existing records. It may emit any number of violations.
// A returned error is an engine fault (e.g. the snapshot lookup failed).
type BusinessTest func(ctx context.Context, rec types.Record, existing []types.Record) ([]types.RuleViolation, error)

// BusinessRule validates a record of one entity type as a whole.
type BusinessRule struct {
	ID     types.RuleID
	Entity types.EntityType
	Test   BusinessTest
	Class  *types.Class
	Params map[string]float64
}

// WithClass returns a copy of r classified as (sev, cat).
func (r BusinessRule) WithClass(sev types.Severity, cat types.Category) BusinessRule {
	r.Class = &types.Class{Severity: sev, Category: cat}
	return r
}

// BusinessFault records a business rule that failed to run.
type BusinessFault struct {
	RuleID types.RuleID
	Err    error
}

// RunBusinessRules evaluates rules in order. Violations without a RuleID are
// attributed to the emitting rule. A failing rule contributes exactly one
// whole-record fault violation and evaluation continues with the next rule.
// The only returned error is ctx's, checked between rules.
func RunBusinessRules(ctx context.Context, rules []BusinessRule, rec types.Record, existing []types.Record) ([]types.RuleViolation, []BusinessFault, error) {
	var (
		violations []types.RuleViolation
		faults     []BusinessFault
	)

	for i := range rules {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		rule := &rules[i]
		found, err := runBusiness(ctx, rule, rec, existing)
		if err != nil {
			faults = append(faults, BusinessFault{RuleID: rule.ID, Err: err})
			violations = append(violations, *FaultViolation("", err))
			continue
		}
		for _, v := range found {
			if v.RuleID == "" {
				v.RuleID = rule.ID
			}
			violations = append(violations, v)
		}
	}

	return violations, faults, nil
}

func runBusiness(ctx context.Context, rule *BusinessRule, rec types.Record, existing []types.Record) (found []types.RuleViolation, err error) {
	if rule.Test == nil {
		return nil, fmt.Errorf("%w: business rule %s has no test", types.ErrRuleFault, rule.ID)
	}
	defer func() {
		if r := recover(); r != nil {
			found = nil
			err = fmt.Errorf("%w: business rule %s panicked: %v", types.ErrRuleFault, rule.ID, r)
		}
	}()
	found, err = rule.Test(ctx, rec, existing)
	if err != nil {
		return nil, fmt.Errorf("%w: business rule %s: %v", types.ErrRuleFault, rule.ID, err)
	}
	return found, nil
}
