// internal/rules/crossfield.go
package rules

import (
	"fmt"
	"slices"

	"github.com/solatis/formguard/internal/types"
)

// CrossFieldTest inspects a whole record. ok=false is a finding; msg, when
// non-empty, replaces the rule's default message. err is an engine fault.
type CrossFieldTest func(rec types.Record) (ok bool, msg string, err error)

// CrossFieldRule evaluates two or more fields together.
// Soft rules produce warnings that never block submission; hard rules
// produce errors on Field. The split is part of the definition.
type CrossFieldRule struct {
	ID      types.RuleID
	Entity  types.EntityType
	Field   types.FieldName   // field the finding is reported on
	Fields  []types.FieldName // fields Test reads
	Soft    bool
	Message string
	Test    CrossFieldTest
	Class   *types.Class
	Params  map[string]float64
}

// AsSoft returns a copy of r with its hard/soft flag set to soft.
func (r CrossFieldRule) AsSoft(soft bool) CrossFieldRule {
	r.Soft = soft
	return r
}

// WithClass returns a copy of r classified as (sev, cat).
func (r CrossFieldRule) WithClass(sev types.Severity, cat types.Category) CrossFieldRule {
	r.Class = &types.Class{Severity: sev, Category: cat}
	return r
}

// WithMessage returns a copy of r reporting msg.
func (r CrossFieldRule) WithMessage(msg string) CrossFieldRule {
	r.Message = msg
	return r
}

// Ordered requires left <op> right under mode. Reported on field.
// Records where either side is empty or malformed pass.
func Ordered(id types.RuleID, entity types.EntityType, field, left types.FieldName, op Operator, right types.FieldName, mode ValueMode) CrossFieldRule {
	return CrossFieldRule{
		ID:      id,
		Entity:  entity,
		Field:   field,
		Fields:  []types.FieldName{left, right},
		Message: fmt.Sprintf("%s must be %s %s", left, op, right),
		Class:   &types.Class{Severity: types.SeverityHigh, Category: types.CategoryDateLogic},
		Test: func(rec types.Record) (bool, string, error) {
			matched, ok := Compare(op, mode, rec.Get(left), rec.Get(right))
			return !ok || matched, "", nil
		},
	}
}

// MaxSpanDays limits the inclusive day count of [start, end] to maxDays.
// Reported on the end field.
func MaxSpanDays(id types.RuleID, entity types.EntityType, start, end types.FieldName, maxDays int) CrossFieldRule {
	return CrossFieldRule{
		ID:      id,
		Entity:  entity,
		Field:   end,
		Fields:  []types.FieldName{start, end},
		Message: fmt.Sprintf("Date range cannot exceed %d days", maxDays),
		Class:   &types.Class{Severity: types.SeverityHigh, Category: types.CategoryDateLogic},
		Params:  map[string]float64{"maxDurationDays": float64(maxDays)},
		Test: func(rec types.Record) (bool, string, error) {
			s, err := ToDate(rec.Get(start))
			if err != nil {
				return true, "", nil
			}
			e, err := ToDate(rec.Get(end))
			if err != nil || e.Before(s) {
				return true, "", nil
			}
			return DaysInclusive(s, e) <= maxDays, "", nil
		},
	}
}

// CrossFieldFault records a misbehaving cross-field rule.
type CrossFieldFault struct {
	RuleID types.RuleID
	Err    error
}

// ValidateCrossField evaluates rules against rec.
// Hard findings and faults land in hard; soft findings in soft.
func ValidateCrossField(rules []CrossFieldRule, rec types.Record) (hard, soft []types.RuleViolation, faults []CrossFieldFault) {
	for i := range rules {
		rule := &rules[i]
		ok, msg, err := runCrossField(rule, rec)
		if err != nil {
			faults = append(faults, CrossFieldFault{RuleID: rule.ID, Err: err})
			hard = append(hard, *FaultViolation(rule.Field, err))
			continue
		}
		if ok {
			continue
		}
		if msg == "" {
			msg = rule.Message
		}
		v := types.RuleViolation{
			RuleID:  rule.ID,
			Field:   rule.Field,
			Message: msg,
			Warning: rule.Soft,
		}
		if rule.Soft {
			soft = append(soft, v)
		} else {
			hard = append(hard, v)
		}
	}
	return hard, soft, faults
}

// ReadsField reports whether rule reads field.
func (r CrossFieldRule) ReadsField(field types.FieldName) bool {
	return r.Field == field || slices.Contains(r.Fields, field)
}

func runCrossField(rule *CrossFieldRule, rec types.Record) (ok bool, msg string, err error) {
	if rule.Test == nil {
		return false, "", fmt.Errorf("%w: cross-field rule %s has no test", types.ErrRuleFault, rule.ID)
	}
	defer func() {
		if r := recover(); r != nil {
			ok, msg = false, ""
			err = fmt.Errorf("%w: cross-field rule %s panicked: %v", types.ErrRuleFault, rule.ID, r)
		}
	}()
	ok, msg, err = rule.Test(rec)
	if err != nil {
		return false, "", fmt.Errorf("%w: cross-field rule %s: %v", types.ErrRuleFault, rule.ID, err)
	}
	return ok, msg, nil
}
