// Package types provides the domain model shared across formguard components.
//
// Zero-logic design: this package holds value types, enums and sentinel errors
// only. Rule evaluation lives in internal/rules, classification in
// internal/classify and orchestration in internal/engine. ID utilities in
// ids.go import uuid but are isolated from the rest of the model.
package types

import (
	"strings"
	"time"
)

// FieldName identifies a form field. Unique within a rule set.
type FieldName string

// RuleID identifies a field, cross-field or business rule.
// Classification tables are keyed by RuleID.
type RuleID string

// EntityType names the logical record a form edits ("holiday", "workOrder").
type EntityType string

// Record is a flat field-value map as supplied by the form layer.
// Nested schemas are intentionally unsupported.
type Record map[FieldName]any

// Get returns the value for field, or nil when absent or the record is nil.
func (r Record) Get(field FieldName) any {
	if r == nil {
		return nil
	}
	return r[field]
}

// String returns the value for field as a trimmed string.
// Non-string values yield "".
func (r Record) String(field FieldName) string {
	s, _ := r.Get(field).(string)
	return strings.TrimSpace(s)
}

// Clone returns a shallow copy. Values are treated as immutable.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Severity is the blocking classification of a violation.
// String-backed so summaries serialize readably.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists all severities from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// Rank orders severities; higher is more severe. Unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Blocking reports whether the severity alone blocks submission.
func (s Severity) Blocking() bool {
	return s == SeverityCritical
}

// Category is the taxonomy bucket of a violation.
type Category string

const (
	CategoryRequired     Category = "required"
	CategoryFormat       Category = "format"
	CategoryBusinessRule Category = "businessRule"
	CategoryDateLogic    Category = "dateLogic"
	CategoryConflict     Category = "conflict"
	CategoryLength       Category = "length"
	CategoryUniqueness   Category = "uniqueness"
	CategorySafety       Category = "safety"
)

// Categories lists every category in a stable order.
var Categories = []Category{
	CategoryRequired,
	CategoryFormat,
	CategoryBusinessRule,
	CategoryDateLogic,
	CategoryConflict,
	CategoryLength,
	CategoryUniqueness,
	CategorySafety,
}

// Class pairs a severity with a category.
type Class struct {
	Severity Severity `json:"severity"`
	Category Category `json:"category"`
}

// RuleViolation is a single data-driven validation failure.
// Field is empty for whole-record violations. Warning marks soft findings
// that never block submission.
type RuleViolation struct {
	RuleID  RuleID    `json:"ruleId,omitempty"`
	Field   FieldName `json:"field,omitempty"`
	Message string    `json:"message"`
	Warning bool      `json:"warning,omitempty"`
}

// ValidationResult is the immutable outcome of validating one field.
// A newer result for the same field supersedes it; results are never patched.
type ValidationResult struct {
	Field       FieldName      `json:"field"`
	IsValid     bool           `json:"isValid"`
	Violation   *RuleViolation `json:"violation,omitempty"`
	Severity    Severity       `json:"severity,omitempty"`
	Category    Category       `json:"category,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
	ComputedAt  time.Time      `json:"computedAt"`
	Duration    time.Duration  `json:"duration"`
}

// DurationMs reports Duration in fractional milliseconds.
func (r ValidationResult) DurationMs() float64 {
	return float64(r.Duration) / float64(time.Millisecond)
}

// ValidationSummary is the derived whole-form view. It has no lifecycle of
// its own and is recomputed from the current results on every change.
type ValidationSummary struct {
	ErrorsByField    map[FieldName]ValidationResult  `json:"errorsByField"`
	RecordErrors     []ValidationResult              `json:"recordErrors,omitempty"`
	Warnings         []string                        `json:"warnings,omitempty"`
	IsValid          bool                            `json:"isValid"`
	CanSubmit        bool                            `json:"canSubmit"`
	ErrorCount       int                             `json:"errorCount"`
	ErrorsBySeverity map[Severity][]ValidationResult `json:"errorsBySeverity,omitempty"`
	ErrorsByCategory map[Category][]ValidationResult `json:"errorsByCategory,omitempty"`
	LastValidatedAt  time.Time                       `json:"lastValidatedAt"`
}
