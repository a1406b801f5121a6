// internal/types/rules.go
package types

/*
 * Declarative rule definitions.
 *
 * Provides RuleSpec, CrossFieldSpec and RuleSetSpec, the wire-format agnostic
 * shape of rules declared in configuration files. internal/rules compiles
 * these into executable rules; internal/ruleset decodes them from YAML/TOML.
 *
 * Key types:
 *   - RuleKind: atomic field rule kind (required, format, length, range, predicate)
 *   - RuleSpec: one field rule with its parameters
 *   - CrossFieldSpec: one multi-field rule expressed in CEL
 *   - RuleSetSpec: complete rule set for one entity type
 *
 * Classification: Severity and Category are optional. Rules declared without
 * them are classified from message text at runtime.
 */

// RuleKind enumerates atomic field rule kinds.
type RuleKind string

const (
	KindRequired  RuleKind = "required"
	KindFormat    RuleKind = "format"
	KindLength    RuleKind = "length"
	KindRange     RuleKind = "range"
	KindPredicate RuleKind = "predicate"
)

// Valid reports whether k is a supported kind.
func (k RuleKind) Valid() bool {
	switch k {
	case KindRequired, KindFormat, KindLength, KindRange, KindPredicate:
		return true
	default:
		return false
	}
}

// RuleSpec declares a single field rule.
type RuleSpec struct {
	ID        RuleID      `yaml:"id" toml:"id"`
	Kind      RuleKind    `yaml:"kind" toml:"kind"`
	Message   string      `yaml:"message" toml:"message"`
	Min       *float64    `yaml:"min" toml:"min"`             // length/range lower bound
	Max       *float64    `yaml:"max" toml:"max"`             // length/range upper bound
	Pattern   string      `yaml:"pattern" toml:"pattern"`     // format: regular expression
	Format    string      `yaml:"format" toml:"format"`       // format: named format (date, time, email)
	Values    []string    `yaml:"values" toml:"values"`       // format: allowed values
	Expr      string      `yaml:"expr" toml:"expr"`           // predicate: CEL over value and record
	DependsOn []FieldName `yaml:"depends_on" toml:"depends_on"` // context fields read by the rule
	Severity  Severity    `yaml:"severity" toml:"severity"`
	Category  Category    `yaml:"category" toml:"category"`
}

// FieldSpec is the ordered rule list for one field.
type FieldSpec struct {
	Name  FieldName  `yaml:"name" toml:"name"`
	Rules []RuleSpec `yaml:"rules" toml:"rules"`
}

// CrossFieldSpec declares a rule over two or more fields.
// Soft rules produce warnings; hard rules produce field errors.
type CrossFieldSpec struct {
	ID       RuleID      `yaml:"id" toml:"id"`
	Field    FieldName   `yaml:"field" toml:"field"`   // field the violation is reported on
	Fields   []FieldName `yaml:"fields" toml:"fields"` // fields the rule reads
	Expr     string      `yaml:"expr" toml:"expr"`     // CEL over record, true = pass
	Message  string      `yaml:"message" toml:"message"`
	Soft     bool        `yaml:"soft" toml:"soft"`
	Severity Severity    `yaml:"severity" toml:"severity"`
	Category Category    `yaml:"category" toml:"category"`
}

// RuleSetSpec is the complete declarative rule set for one entity.
type RuleSetSpec struct {
	Entity     EntityType       `yaml:"entity" toml:"entity"`
	Fields     []FieldSpec      `yaml:"fields" toml:"fields"`
	CrossField []CrossFieldSpec `yaml:"cross_field" toml:"cross_field"`
}
