// internal/summary/summary.go
package summary

import (
	"slices"
	"time"

	"github.com/solatis/formguard/internal/rules"
	"github.com/solatis/formguard/internal/types"
)

// Input is everything the summary is derived from.
type Input struct {
	// Results holds the latest result per validated field, valid or not.
	Results map[types.FieldName]types.ValidationResult
	// RecordErrors are whole-record violations from business rules.
	RecordErrors []types.ValidationResult
	// Warnings are soft findings, in emission order.
	Warnings []string
	// Required lists fields that must hold a value before submission.
	Required []types.FieldName
	// Values are the latest known field values, validated or not.
	Values types.Record
	// ValidatedAt stamps the summary.
	ValidatedAt time.Time
}

// Aggregate reduces in to a summary. Pure; the input is not retained.
//
// IsValid holds when no field result and no whole-record result is invalid.
// CanSubmit additionally requires every required field to hold a non-empty
// latest value, whether or not that field has been validated yet.
func Aggregate(in Input) types.ValidationSummary {
	s := types.ValidationSummary{
		ErrorsByField:    make(map[types.FieldName]types.ValidationResult),
		ErrorsBySeverity: make(map[types.Severity][]types.ValidationResult),
		ErrorsByCategory: make(map[types.Category][]types.ValidationResult),
		Warnings:         slices.Clone(in.Warnings),
		LastValidatedAt:  in.ValidatedAt,
	}

	fields := make([]types.FieldName, 0, len(in.Results))
	for f, r := range in.Results {
		if !r.IsValid {
			fields = append(fields, f)
		}
	}
	slices.Sort(fields)

	group := func(r types.ValidationResult) {
		s.ErrorsBySeverity[r.Severity] = append(s.ErrorsBySeverity[r.Severity], r)
		s.ErrorsByCategory[r.Category] = append(s.ErrorsByCategory[r.Category], r)
		s.ErrorCount++
	}

	for _, f := range fields {
		r := in.Results[f]
		s.ErrorsByField[f] = r
		group(r)
	}
	for _, r := range in.RecordErrors {
		if r.IsValid {
			continue
		}
		s.RecordErrors = append(s.RecordErrors, r)
		group(r)
	}

	s.IsValid = s.ErrorCount == 0
	s.CanSubmit = s.IsValid && complete(in.Required, in.Values)
	return s
}

func complete(required []types.FieldName, values types.Record) bool {
	for _, f := range required {
		if rules.IsEmpty(values.Get(f)) {
			return false
		}
	}
	return true
}
