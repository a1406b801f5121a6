// internal/rules/compile.go
package rules

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/solatis/formguard/internal/types"
)

/*
 * Declarative rule compilation.
 *
 * Compiles types.RuleSpec / CrossFieldSpec / RuleSetSpec, as decoded from
 * configuration files, into executable rules and feeds them to a
 * RuleSetBuilder. All validation happens here so a bad rule file is rejected
 * at load time and never reaches evaluation.
 *
 * Kind parameters:
 *   - required: none
 *   - length: min and/or max (characters)
 *   - range: min and/or max (numeric, inclusive)
 *   - format: exactly one of pattern, format (date|time|email) or values
 *   - predicate: expr (CEL over value and record)
 *
 * Classification: a spec that names neither severity nor category compiles
 * to a rule with no class, so the classifier falls back to message text.
 * Naming only one fills the other from the kind default.
 *
 * CEL rules that mention record without declaring depends_on are marked as
 * reading the whole context, which widens their cache keys accordingly.
 * Cross-field CEL rules pass while any of their declared fields is empty;
 * field rules report emptiness.
 */

// Named formats accepted by format rules.
const (
	FormatDate  = "date"
	FormatTime  = "time"
	FormatEmail = "email"
)

// Compiler turns declarative specs into rules.
type Compiler struct {
	exprs *Expressions
}

// NewCompiler creates a compiler with a fresh CEL environment.
func NewCompiler() (*Compiler, error) {
	exprs, err := NewExpressions()
	if err != nil {
		return nil, err
	}
	return &Compiler{exprs: exprs}, nil
}

// CompileRule compiles one field rule.
func (c *Compiler) CompileRule(field types.FieldName, spec types.RuleSpec) (Rule, error) {
	if field == "" {
		return Rule{}, fmt.Errorf("%w: rule %s has no field", types.ErrInvalidRule, spec.ID)
	}
	if !spec.Kind.Valid() {
		return Rule{}, fmt.Errorf("%w: %q on field %s", types.ErrUnknownKind, spec.Kind, field)
	}
	id := spec.ID
	if id == "" {
		id = types.NewRuleID()
	}

	var (
		rule Rule
		err  error
	)
	switch spec.Kind {
	case types.KindRequired:
		rule = Required(id, field)
	case types.KindLength:
		rule, err = compileLength(id, field, spec)
	case types.KindRange:
		rule, err = compileRange(id, field, spec)
	case types.KindFormat:
		rule, err = compileFormat(id, field, spec)
	case types.KindPredicate:
		rule, err = c.compilePredicate(id, field, spec)
	}
	if err != nil {
		return Rule{}, err
	}

	if spec.Message != "" {
		rule.Message = spec.Message
	}
	if len(spec.DependsOn) > 0 {
		rule.DependsOn = slices.Clone(spec.DependsOn)
	}
	rule.Class, err = specClass(spec.Kind, spec.Severity, spec.Category)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", id, err)
	}
	return rule, nil
}

func compileLength(id types.RuleID, field types.FieldName, spec types.RuleSpec) (Rule, error) {
	lo, hi, err := bounds(spec)
	if err != nil {
		return Rule{}, fmt.Errorf("length rule %s: %w", id, err)
	}
	for _, b := range []*float64{spec.Min, spec.Max} {
		if b != nil && (*b < 0 || *b != math.Trunc(*b)) {
			return Rule{}, fmt.Errorf("%w: length rule %s needs whole non-negative bounds", types.ErrInvalidRule, id)
		}
	}

	switch {
	case spec.Min == nil:
		return MaxLength(id, field, int(hi)), nil
	case spec.Max == nil:
		return MinLength(id, field, int(lo)), nil
	}

	minN, maxN := int(lo), int(hi)
	r := newRule(id, field, types.KindLength,
		fmt.Sprintf("%s must be between %d and %d characters", field, minN, maxN),
		func(value any, _ types.Record) (bool, error) {
			n := textLength(value)
			return n >= minN && n <= maxN, nil
		})
	r.Params = map[string]float64{"min": lo, "max": hi}
	return r, nil
}

func compileRange(id types.RuleID, field types.FieldName, spec types.RuleSpec) (Rule, error) {
	lo, hi, err := bounds(spec)
	if err != nil {
		return Rule{}, fmt.Errorf("range rule %s: %w", id, err)
	}
	return Range(id, field, lo, hi), nil
}

// bounds reads min/max, requiring at least one and min <= max.
func bounds(spec types.RuleSpec) (lo, hi float64, err error) {
	if spec.Min == nil && spec.Max == nil {
		return 0, 0, fmt.Errorf("%w: min or max required", types.ErrInvalidRule)
	}
	lo, hi = math.Inf(-1), math.Inf(1)
	if spec.Min != nil {
		lo = *spec.Min
	}
	if spec.Max != nil {
		hi = *spec.Max
	}
	if lo > hi {
		return 0, 0, fmt.Errorf("%w: min %g exceeds max %g", types.ErrInvalidRule, lo, hi)
	}
	return lo, hi, nil
}

func compileFormat(id types.RuleID, field types.FieldName, spec types.RuleSpec) (Rule, error) {
	set := 0
	for _, present := range []bool{spec.Pattern != "", spec.Format != "", len(spec.Values) > 0} {
		if present {
			set++
		}
	}
	if set != 1 {
		return Rule{}, fmt.Errorf("%w: format rule %s needs exactly one of pattern, format, values", types.ErrInvalidRule, id)
	}

	switch {
	case spec.Pattern != "":
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return Rule{}, fmt.Errorf("%w: format rule %s pattern: %v", types.ErrInvalidRule, id, err)
		}
		return Pattern(id, field, re), nil
	case len(spec.Values) > 0:
		return OneOf(id, field, spec.Values...), nil
	}

	switch strings.ToLower(spec.Format) {
	case FormatDate:
		return DateFormat(id, field), nil
	case FormatTime:
		return ClockFormat(id, field), nil
	case FormatEmail:
		return Email(id, field), nil
	default:
		return Rule{}, fmt.Errorf("%w: format rule %s: unknown format %q", types.ErrInvalidRule, id, spec.Format)
	}
}

func (c *Compiler) compilePredicate(id types.RuleID, field types.FieldName, spec types.RuleSpec) (Rule, error) {
	if strings.TrimSpace(spec.Expr) == "" {
		return Rule{}, fmt.Errorf("%w: predicate rule %s has no expr", types.ErrInvalidRule, id)
	}
	prog, err := c.exprs.Compile(spec.Expr)
	if err != nil {
		return Rule{}, fmt.Errorf("predicate rule %s: %w", id, err)
	}

	msg := spec.Message
	if msg == "" {
		msg = fmt.Sprintf("%s is invalid", field)
	}
	deps := slices.Clone(spec.DependsOn)
	r := Predicate(id, field, msg, func(value any, fctx types.Record) (bool, error) {
		return prog.Eval(value, fctx, deps)
	}, deps...)
	r.ReadsContext = len(deps) == 0 && strings.Contains(spec.Expr, "record")
	return r, nil
}

// specClass resolves the declared classification. Both empty yields nil.
func specClass(kind types.RuleKind, sev types.Severity, cat types.Category) (*types.Class, error) {
	if sev == "" && cat == "" {
		return nil, nil
	}
	class := DefaultClass(kind)
	if sev != "" {
		if !slices.Contains(types.Severities, sev) {
			return nil, fmt.Errorf("%w: unknown severity %q", types.ErrInvalidRule, sev)
		}
		class.Severity = sev
	}
	if cat != "" {
		if !slices.Contains(types.Categories, cat) {
			return nil, fmt.Errorf("%w: unknown category %q", types.ErrInvalidRule, cat)
		}
		class.Category = cat
	}
	return &class, nil
}

// CompileCrossField compiles one cross-field CEL rule for entity.
func (c *Compiler) CompileCrossField(entity types.EntityType, spec types.CrossFieldSpec) (CrossFieldRule, error) {
	id := spec.ID
	if id == "" {
		id = types.NewRuleID()
	}
	if spec.Field == "" {
		return CrossFieldRule{}, fmt.Errorf("%w: cross-field rule %s has no field", types.ErrInvalidRule, id)
	}
	if strings.TrimSpace(spec.Expr) == "" {
		return CrossFieldRule{}, fmt.Errorf("%w: cross-field rule %s has no expr", types.ErrInvalidRule, id)
	}
	prog, err := c.exprs.Compile(spec.Expr)
	if err != nil {
		return CrossFieldRule{}, fmt.Errorf("cross-field rule %s: %w", id, err)
	}

	fields := slices.Clone(spec.Fields)
	if !slices.Contains(fields, spec.Field) {
		fields = append(fields, spec.Field)
	}
	msg := spec.Message
	if msg == "" {
		msg = fmt.Sprintf("%s is inconsistent with related fields", spec.Field)
	}
	// Cross-field rules have no kind; predicate carries the medium/businessRule default.
	class, err := specClass(types.KindPredicate, spec.Severity, spec.Category)
	if err != nil {
		return CrossFieldRule{}, fmt.Errorf("cross-field rule %s: %w", id, err)
	}

	return CrossFieldRule{
		ID:      id,
		Entity:  entity,
		Field:   spec.Field,
		Fields:  fields,
		Soft:    spec.Soft,
		Message: msg,
		Class:   class,
		Test: func(rec types.Record) (bool, string, error) {
			for _, f := range fields {
				if IsEmpty(rec.Get(f)) {
					return true, "", nil
				}
			}
			ok, err := prog.Eval(rec.Get(spec.Field), rec, fields)
			return ok, "", err
		},
	}, nil
}

// CompileRuleSet compiles spec and adds every rule to b.
// The first compile error aborts and is returned.
func (c *Compiler) CompileRuleSet(spec types.RuleSetSpec, b *RuleSetBuilder) error {
	if spec.Entity == "" && len(spec.CrossField) > 0 {
		return fmt.Errorf("%w: rule set with cross-field rules has no entity", types.ErrInvalidRule)
	}
	for _, fs := range spec.Fields {
		for _, rs := range fs.Rules {
			rule, err := c.CompileRule(fs.Name, rs)
			if err != nil {
				return err
			}
			b.Field(rule)
		}
	}
	for _, cs := range spec.CrossField {
		rule, err := c.CompileCrossField(spec.Entity, cs)
		if err != nil {
			return err
		}
		b.CrossField(rule)
	}
	return nil
}
