// internal/rules/cel.go
package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/solatis/formguard/internal/types"
)

// celCostLimit bounds a single expression evaluation.
const celCostLimit = 1000000

// Expressions compiles CEL predicates used by declarative rules.
// Expressions see two variables: value (the field value, dyn) and record
// (the form's field map, map(string, dyn)).
type Expressions struct {
	env *cel.Env
}

// NewExpressions creates the CEL environment for rule predicates.
func NewExpressions() (*Expressions, error) {
	env, err := cel.NewEnv(
		cel.Variable("value", cel.DynType),
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Expressions{env: env}, nil
}

// Program is a compiled predicate.
type Program struct {
	expr string
	prog cel.Program
}

// Compile parses and type-checks expr.
func (x *Expressions) Compile(expr string) (*Program, error) {
	ast, issues := x.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: compile error in %q: %v", types.ErrInvalidRule, expr, issues.Err())
	}

	prog, err := x.env.Program(ast, cel.CostLimit(celCostLimit))
	if err != nil {
		return nil, fmt.Errorf("%w: program creation error in %q: %v", types.ErrInvalidRule, expr, err)
	}
	return &Program{expr: expr, prog: prog}, nil
}

// Eval runs the predicate. Non-boolean results count as false.
// keys lists record fields guaranteed to exist (as null when absent), so
// expressions may compare them without has() guards.
func (p *Program) Eval(value any, rec types.Record, keys []types.FieldName) (bool, error) {
	vars := map[string]any{
		"value":  celValue(value),
		"record": celRecord(rec, keys),
	}
	out, _, err := p.prog.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("evaluating %q: %w", p.expr, err)
	}
	matched, ok := out.Value().(bool)
	return ok && matched, nil
}

func celRecord(rec types.Record, keys []types.FieldName) map[string]any {
	out := make(map[string]any, len(rec)+len(keys))
	for _, k := range keys {
		out[string(k)] = nil
	}
	for k, v := range rec {
		out[string(k)] = celValue(v)
	}
	return out
}

// celValue normalises values the CEL adapter does not handle natively.
func celValue(v any) any {
	switch t := v.(type) {
	case types.Record:
		return celRecord(t, nil)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}
