package classify

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/formguard/internal/rules"
	"github.com/solatis/formguard/internal/types"
)

// staticLookup is a map-backed Lookup.
type staticLookup map[types.RuleID]rules.RuleInfo

func (s staticLookup) RuleInfo(id types.RuleID) (rules.RuleInfo, bool) {
	info, ok := s[id]
	return info, ok
}

// panicLookup simulates a broken lookup implementation.
type panicLookup struct{}

func (panicLookup) RuleInfo(types.RuleID) (rules.RuleInfo, bool) { panic("lookup exploded") }

func class(sev types.Severity, cat types.Category) *types.Class {
	return &types.Class{Severity: sev, Category: cat}
}

func TestClassify_TableBeatsMessage(t *testing.T) {
	lookup := staticLookup{
		// Message mentions "required" but the rule says safety.
		"wo.safety": {ID: "wo.safety", Class: class(types.SeverityCritical, types.CategorySafety)},
	}
	c := New(lookup, nil)

	got := c.Classify(types.RuleViolation{RuleID: "wo.safety", Message: "Safety officer is required"})
	want := types.Class{Severity: types.SeverityCritical, Category: types.CategorySafety}
	if got != want {
		t.Errorf("Classify() = %+v, want %+v", got, want)
	}
}

func TestClassify_FallbackOnlyForUnclassified(t *testing.T) {
	lookup := staticLookup{
		"cfg.rule": {ID: "cfg.rule", Class: nil},
	}
	c := New(lookup, nil)

	got := c.Classify(types.RuleViolation{RuleID: "cfg.rule", Message: "Overlaps with an existing booking"})
	if got.Category != types.CategoryConflict || got.Severity != types.SeverityHigh {
		t.Errorf("Classify() = %+v, want high/conflict from message", got)
	}
}

func TestClassify_Fault(t *testing.T) {
	c := New(nil, nil)
	got := c.Classify(types.RuleViolation{RuleID: rules.FaultRuleID, Message: "Title is required"})
	if got != rules.FaultClass {
		t.Errorf("Classify(fault) = %+v, want %+v", got, rules.FaultClass)
	}
}

func TestClassifyMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want types.Class
	}{
		{"Title is required", types.Class{Severity: types.SeverityCritical, Category: types.CategoryRequired}},
		{"Structural work on a highway requires approval", types.Class{Severity: types.SeverityCritical, Category: types.CategorySafety}},
		{"Overlaps with existing holiday", types.Class{Severity: types.SeverityHigh, Category: types.CategoryConflict}},
		{"RFI number already in use", types.Class{Severity: types.SeverityHigh, Category: types.CategoryUniqueness}},
		{"startDate must be a valid date (YYYY-MM-DD)", types.Class{Severity: types.SeverityMedium, Category: types.CategoryFormat}},
		{"Holiday cannot exceed 30 days", types.Class{Severity: types.SeverityHigh, Category: types.CategoryDateLogic}},
		{"End date cannot be before start", types.Class{Severity: types.SeverityHigh, Category: types.CategoryDateLogic}},
		{"Title must be 100 characters or fewer", types.Class{Severity: types.SeverityMedium, Category: types.CategoryLength}},
		{"Something odd happened", types.Class{Severity: types.SeverityMedium, Category: types.CategoryBusinessRule}},
		{"", types.Class{Severity: types.SeverityMedium, Category: types.CategoryBusinessRule}},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := ClassifyMessage(tt.msg); got != tt.want {
				t.Errorf("ClassifyMessage(%q) = %+v, want %+v", tt.msg, got, tt.want)
			}
		})
	}
}

func TestSuggest_Templates(t *testing.T) {
	lookup := staticLookup{
		"title.max": {Class: class(types.SeverityMedium, types.CategoryLength), Params: map[string]float64{"max": 100}},
		"span":      {Class: class(types.SeverityHigh, types.CategoryDateLogic), Params: map[string]float64{"maxDurationDays": 30}},
		"crew":      {Class: class(types.SeverityMedium, types.CategoryBusinessRule), Params: map[string]float64{"min": 1, "max": 50}},
		"rfi":       {Class: class(types.SeverityHigh, types.CategoryUniqueness)},
		"required":  {Class: class(types.SeverityCritical, types.CategoryRequired)},
		"date":      {Class: class(types.SeverityHigh, types.CategoryFormat)},
	}
	c := New(lookup, nil)

	tests := []struct {
		field   types.FieldName
		v       types.RuleViolation
		contain string
	}{
		{"title", types.RuleViolation{RuleID: "title.max"}, "100 characters"},
		{"endDate", types.RuleViolation{RuleID: "span"}, "30 days"},
		{"crewSize", types.RuleViolation{RuleID: "crew"}, "between 1 and 50"},
		{"rfiNumber", types.RuleViolation{RuleID: "rfi"}, "different rfiNumber"},
		{"title", types.RuleViolation{RuleID: "required"}, "Enter a value for title"},
		{"startDate", types.RuleViolation{RuleID: "date", Message: "must be a valid date (YYYY-MM-DD)"}, "YYYY-MM-DD"},
		{"notes", types.RuleViolation{RuleID: "unknown", Message: "hmm"}, "Review the notes field"},
		{"", types.RuleViolation{RuleID: rules.FaultRuleID}, "Review the form"},
	}

	for _, tt := range tests {
		t.Run(string(tt.v.RuleID), func(t *testing.T) {
			got := c.Suggest(tt.field, tt.v)
			if len(got) == 0 {
				t.Fatalf("Suggest() returned nothing")
			}
			if !strings.Contains(strings.Join(got, "\n"), tt.contain) {
				t.Errorf("Suggest() = %v, want something containing %q", got, tt.contain)
			}
		})
	}
}

func TestSuggest_RecoversFromPanics(t *testing.T) {
	c := New(panicLookup{}, nil)
	got := c.Suggest("title", types.RuleViolation{RuleID: "any", Message: "x"})
	if len(got) != 1 || got[0] != "Review the title field" {
		t.Errorf("Suggest() = %v, want fallback", got)
	}
}

// Property-based test: suggestions never panic and are never empty
func TestSuggest_PropertyNeverEmpty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	cats := types.Categories
	properties.Property("any category and params yield a suggestion", prop.ForAll(
		func(catIdx int, field, msg string, lo, hi float64, hasParams bool) bool {
			info := rules.RuleInfo{Class: class(types.SeverityLow, cats[catIdx])}
			if hasParams {
				info.Params = map[string]float64{"min": lo, "max": hi, "maxDurationDays": hi}
			}
			c := New(staticLookup{"r": info}, nil)
			got := c.Suggest(types.FieldName(field), types.RuleViolation{RuleID: "r", Message: msg})
			return len(got) > 0 && got[0] != ""
		},
		gen.IntRange(0, len(cats)-1),
		gen.AlphaString(),
		gen.AnyString(),
		gen.Float64(),
		gen.Float64(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
