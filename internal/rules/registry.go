// internal/rules/registry.go
package rules

import (
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/solatis/formguard/internal/types"
)

/*
 * Rule registry.
 *
 * A RuleSet is an immutable snapshot of every rule known to a form: ordered
 * field rule lists, per-entity cross-field and business rules, and the
 * ruleID -> classification table derived from them. It is built once through
 * RuleSetBuilder and never mutated afterwards.
 *
 * Registry holds the current RuleSet behind an atomic pointer. Replace swaps
 * the whole snapshot in one store, so a validator that loaded a snapshot
 * keeps seeing a consistent rule set for its entire pass even while a hot
 * reload happens. Readers take one Snapshot per pass.
 */

// RuleInfo is the classification metadata attached to a rule at definition time.
type RuleInfo struct {
	ID      types.RuleID
	Kind    types.RuleKind // empty for cross-field and business rules
	Field   types.FieldName
	Message string
	Class   *types.Class
	Params  map[string]float64
}

// RuleSet is an immutable rule snapshot.
type RuleSet struct {
	fields   map[types.FieldName][]Rule
	order    []types.FieldName
	cross    map[types.EntityType][]CrossFieldRule
	business map[types.EntityType][]BusinessRule
	info     map[types.RuleID]RuleInfo
}

// FieldRules returns field's rules in registration order.
// The returned slice must not be modified.
func (s *RuleSet) FieldRules(field types.FieldName) []Rule {
	return slices.Clip(s.fields[field])
}

// Fields returns every field with at least one rule, in registration order.
func (s *RuleSet) Fields() []types.FieldName {
	return slices.Clone(s.order)
}

// RequiredFields returns fields that carry a required rule.
func (s *RuleSet) RequiredFields() []types.FieldName {
	var out []types.FieldName
	for _, f := range s.order {
		for _, r := range s.fields[f] {
			if r.Kind == types.KindRequired {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// CrossFieldRules returns entity's cross-field rules.
func (s *RuleSet) CrossFieldRules(entity types.EntityType) []CrossFieldRule {
	return slices.Clip(s.cross[entity])
}

// BusinessRules returns entity's business rules.
func (s *RuleSet) BusinessRules(entity types.EntityType) []BusinessRule {
	return slices.Clip(s.business[entity])
}

// HasEntity reports whether any cross-field or business rule targets entity.
func (s *RuleSet) HasEntity(entity types.EntityType) bool {
	return len(s.cross[entity]) > 0 || len(s.business[entity]) > 0
}

// Entities returns every entity with cross-field or business rules, sorted.
func (s *RuleSet) Entities() []types.EntityType {
	var out []types.EntityType
	for e := range s.cross {
		out = append(out, e)
	}
	for e := range s.business {
		if !slices.Contains(out, e) {
			out = append(out, e)
		}
	}
	slices.Sort(out)
	return out
}

// Dependencies returns the sibling fields field's rules read. all is true
// when some rule reads arbitrary context, in which case deps is incomplete.
func (s *RuleSet) Dependencies(field types.FieldName) (deps []types.FieldName, all bool) {
	for _, r := range s.fields[field] {
		if r.ReadsContext {
			all = true
		}
		for _, d := range r.DependsOn {
			if !slices.Contains(deps, d) {
				deps = append(deps, d)
			}
		}
	}
	slices.Sort(deps)
	return deps, all
}

// Dependents returns fields whose rules read field.
func (s *RuleSet) Dependents(field types.FieldName) []types.FieldName {
	var out []types.FieldName
	for _, f := range s.order {
		deps, all := s.Dependencies(f)
		if all || slices.Contains(deps, field) {
			if f != field {
				out = append(out, f)
			}
		}
	}
	return out
}

// RuleInfo looks up classification metadata by rule ID.
func (s *RuleSet) RuleInfo(id types.RuleID) (RuleInfo, bool) {
	info, ok := s.info[id]
	return info, ok
}

// RuleSetBuilder accumulates rules and validates them on Build.
type RuleSetBuilder struct {
	set  *RuleSet
	errs []error
}

// NewRuleSetBuilder returns an empty builder.
func NewRuleSetBuilder() *RuleSetBuilder {
	return &RuleSetBuilder{set: &RuleSet{
		fields:   make(map[types.FieldName][]Rule),
		cross:    make(map[types.EntityType][]CrossFieldRule),
		business: make(map[types.EntityType][]BusinessRule),
		info:     make(map[types.RuleID]RuleInfo),
	}}
}

// Field appends rules to their fields' lists in the given order.
func (b *RuleSetBuilder) Field(rules ...Rule) *RuleSetBuilder {
	for _, r := range rules {
		if r.Field == "" {
			b.errs = append(b.errs, fmt.Errorf("%w: rule %s has no field", types.ErrInvalidRule, r.ID))
			continue
		}
		if !r.Kind.Valid() {
			b.errs = append(b.errs, fmt.Errorf("%w: rule %s kind %q", types.ErrUnknownKind, r.ID, r.Kind))
			continue
		}
		if !b.claim(RuleInfo{ID: r.ID, Kind: r.Kind, Field: r.Field, Message: r.Message, Class: r.Class, Params: r.Params}) {
			continue
		}
		if _, seen := b.set.fields[r.Field]; !seen {
			b.set.order = append(b.set.order, r.Field)
		}
		b.set.fields[r.Field] = append(b.set.fields[r.Field], r)
	}
	return b
}

// CrossField adds cross-field rules.
func (b *RuleSetBuilder) CrossField(rules ...CrossFieldRule) *RuleSetBuilder {
	for _, r := range rules {
		if r.Entity == "" {
			b.errs = append(b.errs, fmt.Errorf("%w: cross-field rule %s has no entity", types.ErrInvalidRule, r.ID))
			continue
		}
		if !b.claim(RuleInfo{ID: r.ID, Field: r.Field, Message: r.Message, Class: r.Class, Params: r.Params}) {
			continue
		}
		b.set.cross[r.Entity] = append(b.set.cross[r.Entity], r)
	}
	return b
}

// Business adds business rules.
func (b *RuleSetBuilder) Business(rules ...BusinessRule) *RuleSetBuilder {
	for _, r := range rules {
		if r.Entity == "" {
			b.errs = append(b.errs, fmt.Errorf("%w: business rule %s has no entity", types.ErrInvalidRule, r.ID))
			continue
		}
		if !b.claim(RuleInfo{ID: r.ID, Class: r.Class, Params: r.Params}) {
			continue
		}
		b.set.business[r.Entity] = append(b.set.business[r.Entity], r)
	}
	return b
}

// claim registers info under its ID, recording an error on empty or
// duplicate IDs.
func (b *RuleSetBuilder) claim(info RuleInfo) bool {
	if info.ID == "" {
		b.errs = append(b.errs, fmt.Errorf("%w: rule without id", types.ErrInvalidRule))
		return false
	}
	if info.ID == FaultRuleID {
		b.errs = append(b.errs, fmt.Errorf("%w: %s is reserved", types.ErrInvalidRule, info.ID))
		return false
	}
	if _, dup := b.set.info[info.ID]; dup {
		b.errs = append(b.errs, fmt.Errorf("%w: %s", types.ErrDuplicateRule, info.ID))
		return false
	}
	b.set.info[info.ID] = info
	return true
}

// Build returns the snapshot, or the first recorded error.
// The builder must not be used afterwards.
func (b *RuleSetBuilder) Build() (*RuleSet, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	set := b.set
	b.set = nil
	return set, nil
}

// Registry publishes the current RuleSet.
type Registry struct {
	current atomic.Pointer[RuleSet]
}

// NewRegistry returns a registry serving set.
func NewRegistry(set *RuleSet) *Registry {
	r := &Registry{}
	r.current.Store(set)
	return r
}

// Snapshot returns the current rule set. Never nil for registries built with
// a non-nil set.
func (r *Registry) Snapshot() *RuleSet {
	return r.current.Load()
}

// Replace atomically swaps in set. nil is ignored.
func (r *Registry) Replace(set *RuleSet) {
	if set == nil {
		return
	}
	r.current.Store(set)
}
