// internal/engine/form.go
package engine

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/solatis/formguard/internal/rules"
	"github.com/solatis/formguard/internal/types"
)

// ValidateForm validates every field of record, then the entity's
// cross-field and business rules, and publishes all results in one step.
// existing is the caller's snapshot of comparable records for business rules.
//
// Debouncing is bypassed and every scheduled request is superseded. A field
// whose value changes again while ValidateForm runs keeps the newer result.
//
// Hard cross-field and business findings attach to their field when that
// field passed its own rules. A field keeps its first failure, so a
// cross-field finding on an already failing field is dropped, while extra
// business findings and faults are kept as record errors. Whole-record
// findings are record errors. Soft findings become warnings.
func (e *Engine) ValidateForm(ctx context.Context, record types.Record, existing []types.Record) (types.ValidationSummary, error) {
	set := e.registry.Snapshot()
	if set == nil {
		return types.ValidationSummary{}, types.ErrNoRegistry
	}
	if err := checkEntity(set, e.entity); err != nil {
		return types.ValidationSummary{}, err
	}

	fields := set.Fields()
	for f := range record {
		if !slices.Contains(fields, f) {
			fields = append(fields, f)
		}
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return types.ValidationSummary{}, types.ErrClosed
	}
	tokens := make(map[types.FieldName]uint64, len(fields))
	for _, f := range fields {
		tokens[f] = e.supersedeLocked(f, types.ErrSuperseded)
		e.stateLocked(f).state = StateRunning
	}
	set = e.snapshotLocked()
	e.mu.Unlock()

	results := make(map[types.FieldName]types.ValidationResult, len(fields))
	for _, f := range fields {
		if err := ctx.Err(); err != nil {
			e.abandon(tokens)
			return types.ValidationSummary{}, err
		}
		if len(set.FieldRules(f)) == 0 {
			continue
		}
		results[f] = e.evaluate(set, f, record.Get(f), record)
	}

	var (
		recordErrors []types.ValidationResult
		warnings     []string
	)
	attach := func(v types.RuleViolation, keepExtra bool) {
		if v.Warning {
			warnings = append(warnings, v.Message)
			return
		}
		r := e.resultFor(set, v.Field, &v)
		if cur, ok := results[v.Field]; v.Field != "" && (!ok || cur.IsValid) {
			results[v.Field] = r
			return
		}
		if v.Field == "" || keepExtra || v.RuleID == rules.FaultRuleID {
			recordErrors = append(recordErrors, r)
		}
	}

	hard, soft, crossFaults := rules.ValidateCrossField(set.CrossFieldRules(e.entity), record)
	for _, f := range crossFaults {
		e.logger.Warn("cross-field rule fault", zap.String("rule_id", string(f.RuleID)), zap.Error(f.Err))
	}
	for _, v := range hard {
		attach(v, false)
	}
	for _, v := range soft {
		attach(v, false)
	}

	found, bizFaults, err := rules.RunBusinessRules(ctx, set.BusinessRules(e.entity), record, existing)
	if err != nil {
		e.abandon(tokens)
		return types.ValidationSummary{}, err
	}
	for _, f := range bizFaults {
		e.logger.Warn("business rule fault", zap.String("rule_id", string(f.RuleID)), zap.Error(f.Err))
	}
	for _, v := range found {
		attach(v, true)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return types.ValidationSummary{}, types.ErrClosed
	}

	for _, f := range fields {
		st := e.stateLocked(f)
		if st.token != tokens[f] {
			continue
		}
		st.state = StateResolved
		e.values[f] = record.Get(f)
		if r, ok := results[f]; ok {
			e.results[f] = r
		} else {
			delete(e.results, f)
		}
	}
	// Findings on fields that have no rules and no value in record, such as
	// a missing safety officer, were not part of the pass above.
	for f, r := range results {
		if _, ok := tokens[f]; ok {
			continue
		}
		e.supersedeLocked(f, types.ErrSuperseded)
		e.stateLocked(f).state = StateResolved
		e.results[f] = r
	}
	// A finding of an earlier submit on such a field is gone once no rule
	// reports it.
	for f, r := range e.results {
		if _, ok := tokens[f]; ok {
			continue
		}
		if _, ok := results[f]; !ok && !r.IsValid && len(set.FieldRules(f)) == 0 {
			delete(e.results, f)
		}
	}
	e.recordErrors = recordErrors
	e.warnings = warnings
	e.lastValidatedAt = e.clock.Now()

	e.logger.Debug("form validated",
		zap.Int("fields", len(results)),
		zap.Int("record_errors", len(recordErrors)),
		zap.Int("warnings", len(warnings)))
	return e.summaryLocked(set), nil
}

// abandon returns fields still owned by an aborted submit to idle.
func (e *Engine) abandon(tokens map[types.FieldName]uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for f, tok := range tokens {
		if st := e.stateLocked(f); st.token == tok {
			st.state = StateIdle
		}
	}
}
