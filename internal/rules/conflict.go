// internal/rules/conflict.go
package rules

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/solatis/formguard/internal/types"
)

/*
 * Interval conflict detection.
 *
 * Holidays and work days are whole-day intervals, so overlap is inclusive on
 * both ends: [a.Start, a.End] and [b.Start, b.End] conflict iff
 * a.Start <= b.End && a.End >= b.Start. The relation is symmetric.
 *
 * Self exclusion: when editing, the candidate already exists in the snapshot.
 * Existing intervals with the candidate's ID are skipped so a record never
 * conflicts with itself.
 *
 * Resolved intervals (e.g. cancelled holidays) are still reported by
 * FindConflicts with Resolved=true, but ConflictRule only raises violations
 * for unresolved ones.
 *
 * Near-duplicates compare titles under Unicode case folding: one title
 * containing the other marks a soft conflict (warning only).
 */

// Interval is a whole-day date range with identity and title.
type Interval struct {
	ID       string
	Start    time.Time
	End      time.Time
	Title    string
	Resolved bool
}

// Conflict pairs an overlapping existing interval with its resolution state.
type Conflict struct {
	With     Interval
	Resolved bool
}

// Overlaps reports whether a and b share at least one day.
func Overlaps(a, b Interval) bool {
	as, ae := truncateDay(a.Start), truncateDay(a.End)
	bs, be := truncateDay(b.Start), truncateDay(b.End)
	return !as.After(be) && !ae.Before(bs)
}

// FindConflicts returns every existing interval overlapping candidate,
// excluding intervals that share the candidate's non-empty ID.
func FindConflicts(candidate Interval, existing []Interval) []Conflict {
	var out []Conflict
	for _, iv := range existing {
		if isSelf(candidate, iv) {
			continue
		}
		if Overlaps(candidate, iv) {
			out = append(out, Conflict{With: iv, Resolved: iv.Resolved})
		}
	}
	return out
}

// NearDuplicates returns existing intervals whose folded title contains, or
// is contained in, the candidate's folded title. Empty titles never match.
func NearDuplicates(candidate Interval, existing []Interval) []Interval {
	fold := cases.Fold()
	want := strings.TrimSpace(fold.String(candidate.Title))
	if want == "" {
		return nil
	}

	var out []Interval
	for _, iv := range existing {
		if isSelf(candidate, iv) {
			continue
		}
		got := strings.TrimSpace(fold.String(iv.Title))
		if got == "" {
			continue
		}
		if strings.Contains(got, want) || strings.Contains(want, got) {
			out = append(out, iv)
		}
	}
	return out
}

func isSelf(candidate, iv Interval) bool {
	return candidate.ID != "" && candidate.ID == iv.ID
}

// IntervalFields maps record fields onto an Interval.
type IntervalFields struct {
	ID    types.FieldName
	Start types.FieldName
	End   types.FieldName
	Title types.FieldName
	// Status and ResolvedStatuses mark existing records that no longer block.
	Status           types.FieldName
	ResolvedStatuses []string
}

// FromRecord extracts an interval. ok is false when either date is missing
// or malformed. A missing end date means a single-day interval.
func (f IntervalFields) FromRecord(rec types.Record) (Interval, bool) {
	start, err := ToDate(rec.Get(f.Start))
	if err != nil {
		return Interval{}, false
	}
	end := start
	if f.End != "" && !IsEmpty(rec.Get(f.End)) {
		end, err = ToDate(rec.Get(f.End))
		if err != nil {
			return Interval{}, false
		}
	}

	iv := Interval{
		ID:    ToText(rec.Get(f.ID)),
		Start: start,
		End:   end,
		Title: ToText(rec.Get(f.Title)),
	}
	if f.Status != "" {
		iv.Resolved = slices.Contains(f.ResolvedStatuses, strings.ToLower(rec.String(f.Status)))
	}
	return iv, true
}

// Intervals extracts intervals from records, skipping unreadable ones.
func (f IntervalFields) Intervals(recs []types.Record) []Interval {
	out := make([]Interval, 0, len(recs))
	for _, rec := range recs {
		if iv, ok := f.FromRecord(rec); ok {
			out = append(out, iv)
		}
	}
	return out
}

// ConflictOptions tunes ConflictRule.
type ConflictOptions struct {
	// Noun names the entity in messages ("holiday", "work order").
	Noun string
	// NearDuplicates enables soft title checks.
	NearDuplicates bool
}

// ConflictRule reports one violation per unresolved overlapping record on the
// start field, plus one warning per near-duplicate title when enabled.
func ConflictRule(id types.RuleID, entity types.EntityType, fields IntervalFields, opts ConflictOptions) BusinessRule {
	noun := opts.Noun
	if noun == "" {
		noun = "record"
	}

	return BusinessRule{
		ID:     id,
		Entity: entity,
		Class:  &types.Class{Severity: types.SeverityHigh, Category: types.CategoryConflict},
		Test: func(_ context.Context, rec types.Record, existing []types.Record) ([]types.RuleViolation, error) {
			candidate, ok := fields.FromRecord(rec)
			if !ok {
				return nil, nil
			}
			others := fields.Intervals(existing)

			var out []types.RuleViolation
			for _, c := range FindConflicts(candidate, others) {
				if c.Resolved {
					continue
				}
				out = append(out, types.RuleViolation{
					Field: fields.Start,
					Message: fmt.Sprintf("Overlaps with existing %s %q (%s to %s)",
						noun, c.With.Title, c.With.Start.Format(DateLayout), c.With.End.Format(DateLayout)),
				})
			}

			if opts.NearDuplicates && fields.Title != "" {
				for _, d := range NearDuplicates(candidate, others) {
					out = append(out, types.RuleViolation{
						Field:   fields.Title,
						Message: fmt.Sprintf("Title is similar to existing %s %q", noun, d.Title),
						Warning: true,
					})
				}
			}
			return out, nil
		},
	}
}
