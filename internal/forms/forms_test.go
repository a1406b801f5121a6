package forms_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/solatis/formguard/internal/engine"
	"github.com/solatis/formguard/internal/forms"
	"github.com/solatis/formguard/internal/rules"
	"github.com/solatis/formguard/internal/types"
)

func submit(t *testing.T, entity types.EntityType, cfg forms.Config, rec types.Record, existing ...types.Record) types.ValidationSummary {
	t.Helper()
	set, err := forms.Builtin(entity, cfg)
	if err != nil {
		t.Fatalf("Builtin(%s) error = %v, want nil", entity, err)
	}
	e, err := engine.New(rules.NewRegistry(set), engine.WithEntity(entity))
	if err != nil {
		t.Fatalf("engine.New() error = %v, want nil", err)
	}
	t.Cleanup(e.Close)

	s, err := e.ValidateForm(context.Background(), rec, existing)
	if err != nil {
		t.Fatalf("ValidateForm() error = %v, want nil", err)
	}
	return s
}

func TestBuiltin_UnknownEntity(t *testing.T) {
	if _, err := forms.Builtin("invoice", forms.DefaultConfig()); !errors.Is(err, types.ErrUnknownEntity) {
		t.Fatalf("Builtin(invoice) error = %v, want ErrUnknownEntity", err)
	}
}

func TestBuiltin_EveryEntityBuilds(t *testing.T) {
	for _, entity := range forms.Entities() {
		set, err := forms.Builtin(entity, forms.DefaultConfig())
		if err != nil {
			t.Fatalf("Builtin(%s) error = %v, want nil", entity, err)
		}
		if !set.HasEntity(entity) {
			t.Errorf("Builtin(%s) has no entity rules", entity)
		}
		if len(set.RequiredFields()) == 0 {
			t.Errorf("Builtin(%s) has no required fields", entity)
		}
	}
}

func TestBuiltin_SharedBuilder(t *testing.T) {
	b := rules.NewRuleSetBuilder()
	for _, entity := range forms.Entities() {
		if err := forms.Register(b, entity, forms.DefaultConfig()); err != nil {
			t.Fatalf("Register(%s) error = %v, want nil", entity, err)
		}
	}
	if _, err := b.Build(); err != nil {
		t.Fatalf("Build() error = %v, rule IDs must not collide across forms", err)
	}
}

func validHoliday() types.Record {
	return types.Record{
		"id":        "new",
		"title":     "Summer Vacation",
		"startDate": "2024-07-15",
		"endDate":   "2024-07-19",
		"type":      "company",
	}
}

func TestHoliday_Valid(t *testing.T) {
	s := submit(t, forms.Holiday, forms.DefaultConfig(), validHoliday())
	if !s.IsValid || !s.CanSubmit || len(s.Warnings) != 0 {
		t.Errorf("summary = %+v, want valid without warnings", s)
	}
}

func TestHoliday_FieldRules(t *testing.T) {
	tests := []struct {
		name     string
		field    types.FieldName
		value    any
		category types.Category
	}{
		{name: "missing title", field: "title", value: "  ", category: types.CategoryRequired},
		{name: "long title", field: "title", value: strings.Repeat("x", 101), category: types.CategoryLength},
		{name: "bad start date", field: "startDate", value: "15/07/2024", category: types.CategoryFormat},
		{name: "unknown type", field: "type", value: "sabbatical", category: types.CategoryFormat},
		{name: "long description", field: "description", value: strings.Repeat("d", 501), category: types.CategoryLength},
		{name: "end before start", field: "endDate", value: "2024-07-10", category: types.CategoryDateLogic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validHoliday()
			rec[tt.field] = tt.value
			s := submit(t, forms.Holiday, forms.DefaultConfig(), rec)

			got, ok := s.ErrorsByField[tt.field]
			if !ok {
				t.Fatalf("no %s error, ErrorsByField = %v", tt.field, s.ErrorsByField)
			}
			if got.Category != tt.category {
				t.Errorf("Category = %v, want %v (%q)", got.Category, tt.category, got.Violation.Message)
			}
			if s.ErrorCount != 1 {
				t.Errorf("ErrorCount = %d, want 1", s.ErrorCount)
			}
		})
	}
}

func TestHoliday_MaxDuration(t *testing.T) {
	cfg := forms.DefaultConfig()
	cfg.Holiday.MaxDurationDays = 14

	rec := validHoliday()
	rec["endDate"] = "2024-07-29" // 15 days inclusive
	s := submit(t, forms.Holiday, cfg, rec)

	got := s.ErrorsByField["endDate"]
	if got.Violation == nil || got.Violation.Message != "Holiday cannot exceed 14 days" {
		t.Fatalf("endDate error = %+v, want the 14 day limit", got)
	}
	if len(got.Suggestions) == 0 || !strings.Contains(got.Suggestions[0], "14 days") {
		t.Errorf("Suggestions = %v, want the configured limit", got.Suggestions)
	}

	rec["endDate"] = "2024-07-28" // exactly 14 days
	if s := submit(t, forms.Holiday, cfg, rec); !s.IsValid {
		t.Errorf("14 day holiday rejected: %v", s.ErrorsByField)
	}
}

func TestHoliday_MonthlyLimit(t *testing.T) {
	cfg := forms.DefaultConfig()
	cfg.Holiday.MaxPerMonth = 2

	july := []types.Record{
		{"id": "h1", "title": "Long weekend", "startDate": "2024-07-01", "endDate": "2024-07-02"},
		{"id": "h2", "title": "Team day", "startDate": "2024-07-08", "endDate": "2024-07-08"},
		{"id": "h3", "title": "Dropped", "startDate": "2024-07-09", "endDate": "2024-07-09", "status": "cancelled"},
		{"id": "h4", "title": "June trip", "startDate": "2024-06-28", "endDate": "2024-07-03"},
	}

	tests := []struct {
		name     string
		existing []types.Record
		wantErr  bool
	}{
		{name: "limit reached", existing: july, wantErr: true},
		{name: "cancelled and other months ignored", existing: july[1:], wantErr: false},
		{name: "editing an existing holiday counts it once", existing: append(july[:1:1], types.Record{"id": "new", "title": "Summer Vacation", "startDate": "2024-07-15", "endDate": "2024-07-19"}), wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := submit(t, forms.Holiday, cfg, validHoliday(), tt.existing...)
			if !tt.wantErr {
				if len(s.RecordErrors) != 0 {
					t.Errorf("RecordErrors = %+v, want none", s.RecordErrors)
				}
				return
			}
			if len(s.RecordErrors) != 1 {
				t.Fatalf("RecordErrors = %+v, want the monthly limit", s.RecordErrors)
			}
			got := s.RecordErrors[0]
			if got.Severity != types.SeverityMedium || got.Category != types.CategoryBusinessRule {
				t.Errorf("class = %s/%s, want medium/businessRule", got.Severity, got.Category)
			}
			if s.IsValid {
				t.Errorf("IsValid = true with the monthly limit exceeded")
			}
		})
	}
}

func TestHoliday_ConflictAndResolvedStatus(t *testing.T) {
	existing := []types.Record{
		{"id": "h1", "title": "Existing", "startDate": "2024-07-16", "endDate": "2024-07-18"},
		{"id": "h2", "title": "Old plan", "startDate": "2024-07-15", "endDate": "2024-07-15", "status": "Rejected"},
	}
	s := submit(t, forms.Holiday, forms.DefaultConfig(), validHoliday(), existing...)

	got, ok := s.ErrorsByField["startDate"]
	if !ok || got.Category != types.CategoryConflict {
		t.Fatalf("startDate error = %+v, want one conflict", got)
	}
	if len(s.RecordErrors) != 0 {
		t.Errorf("RecordErrors = %+v, rejected holiday must not conflict", s.RecordErrors)
	}
}

func TestHoliday_NearDuplicateToggle(t *testing.T) {
	existing := []types.Record{{"id": "h9", "title": "summer vacation", "startDate": "2023-07-15", "endDate": "2023-07-16"}}

	if s := submit(t, forms.Holiday, forms.DefaultConfig(), validHoliday(), existing...); len(s.Warnings) != 1 {
		t.Errorf("Warnings = %v, want one near-duplicate warning", s.Warnings)
	}

	cfg := forms.DefaultConfig()
	cfg.Holiday.NearDuplicateWarnings = false
	if s := submit(t, forms.Holiday, cfg, validHoliday(), existing...); len(s.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none when disabled", s.Warnings)
	}
}

func TestHoliday_WeekendStartWarns(t *testing.T) {
	rec := validHoliday()
	rec["startDate"] = "2024-07-14" // Sunday
	s := submit(t, forms.Holiday, forms.DefaultConfig(), rec)
	if !s.IsValid {
		t.Errorf("weekend start blocked submission: %v", s.ErrorsByField)
	}
	if len(s.Warnings) != 1 || !strings.Contains(s.Warnings[0], "weekend") {
		t.Errorf("Warnings = %v, want the weekend warning", s.Warnings)
	}
}

func validWorkOrder() types.Record {
	return types.Record{
		"id":        "w2",
		"workDate":  "2024-07-15",
		"workType":  "drainage",
		"roadType":  "local",
		"startTime": "07:00",
		"endTime":   "15:00",
		"crewSize":  float64(4),
		"rfiNumber": "RFI-2024-001",
	}
}

func TestWorkOrder_Valid(t *testing.T) {
	s := submit(t, forms.WorkOrder, forms.DefaultConfig(), validWorkOrder())
	if !s.IsValid || !s.CanSubmit || len(s.Warnings) != 0 {
		t.Errorf("summary = %+v, want valid without warnings", s)
	}
}

func TestWorkOrder_FieldAndCrossFieldRules(t *testing.T) {
	tests := []struct {
		name     string
		changes  types.Record
		field    types.FieldName
		category types.Category
		severity types.Severity
	}{
		{name: "missing road type", changes: types.Record{"roadType": ""}, field: "roadType", category: types.CategoryRequired, severity: types.SeverityCritical},
		{name: "crew too large", changes: types.Record{"crewSize": float64(51)}, field: "crewSize", category: types.CategoryBusinessRule},
		{name: "bad rfi", changes: types.Record{"rfiNumber": "RFI-24-1"}, field: "rfiNumber", category: types.CategoryFormat},
		{name: "bad time", changes: types.Record{"startTime": "7am"}, field: "startTime", category: types.CategoryFormat},
		{name: "end before start", changes: types.Record{"endTime": "06:30"}, field: "endTime", category: types.CategoryDateLogic, severity: types.SeverityHigh},
		{name: "long shift", changes: types.Record{"startTime": "05:00", "endTime": "19:00"}, field: "endTime", category: types.CategoryDateLogic, severity: types.SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validWorkOrder()
			for k, v := range tt.changes {
				rec[k] = v
			}
			s := submit(t, forms.WorkOrder, forms.DefaultConfig(), rec)

			got, ok := s.ErrorsByField[tt.field]
			if !ok {
				t.Fatalf("no %s error, ErrorsByField = %v", tt.field, s.ErrorsByField)
			}
			if got.Category != tt.category {
				t.Errorf("Category = %v, want %v (%q)", got.Category, tt.category, got.Violation.Message)
			}
			if tt.severity != "" && got.Severity != tt.severity {
				t.Errorf("Severity = %v, want %v", got.Severity, tt.severity)
			}
		})
	}
}

func TestWorkOrder_ShiftLimitConfigured(t *testing.T) {
	cfg := forms.DefaultConfig()
	cfg.WorkOrder.MaxShiftHours = 6

	s := submit(t, forms.WorkOrder, cfg, validWorkOrder())
	got, ok := s.ErrorsByField["endTime"]
	if !ok {
		t.Fatalf("8 hour shift passed a 6 hour limit")
	}
	if len(got.Suggestions) == 0 || !strings.Contains(got.Suggestions[0], "6 hours") {
		t.Errorf("Suggestions = %v, want the 6 hour limit", got.Suggestions)
	}
}

func TestWorkOrder_StructuralOnHighway(t *testing.T) {
	rec := validWorkOrder()
	rec["workType"] = "structural"
	rec["roadType"] = "highway"

	s := submit(t, forms.WorkOrder, forms.DefaultConfig(), rec)
	officer, ok := s.ErrorsByField["safetyOfficer"]
	if !ok || officer.Severity != types.SeverityCritical || officer.Category != types.CategorySafety {
		t.Fatalf("safetyOfficer error = %+v, want critical/safety", officer)
	}
	if s.IsValid || s.CanSubmit {
		t.Errorf("IsValid = %v, CanSubmit = %v without a safety officer, want both false", s.IsValid, s.CanSubmit)
	}
	if len(s.Warnings) != 1 || !strings.Contains(s.Warnings[0], "approval") {
		t.Errorf("Warnings = %v, want the approval reminder", s.Warnings)
	}

	rec["safetyOfficer"] = "J. Doe"
	if s := submit(t, forms.WorkOrder, forms.DefaultConfig(), rec); !s.IsValid {
		t.Errorf("ErrorsByField = %v, want valid with a safety officer", s.ErrorsByField)
	}

	cfg := forms.DefaultConfig()
	cfg.WorkOrder.ThroughRoadApprovalBlocking = true
	s = submit(t, forms.WorkOrder, cfg, rec)
	got, ok := s.ErrorsByField["workType"]
	if !ok || got.Severity != types.SeverityCritical || got.Category != types.CategorySafety {
		t.Errorf("workType error = %+v, want blocking critical/safety", got)
	}
}

func TestWorkOrder_ServiceRoadPavement(t *testing.T) {
	rec := validWorkOrder()
	rec["workType"] = "pavement"
	rec["roadType"] = "service"

	s := submit(t, forms.WorkOrder, forms.DefaultConfig(), rec)
	if !s.IsValid || len(s.Warnings) != 1 {
		t.Errorf("summary = %+v, want valid with one warning", s)
	}

	cfg := forms.DefaultConfig()
	cfg.WorkOrder.ServiceRoadPavementBlocking = true
	s = submit(t, forms.WorkOrder, cfg, rec)
	if got := s.ErrorsByField["workType"]; got.Category != types.CategoryBusinessRule {
		t.Errorf("workType error = %+v, want businessRule", got)
	}
}

func TestWorkOrder_NightMarking(t *testing.T) {
	rec := validWorkOrder()
	rec["workType"] = "marking"
	rec["startTime"] = "21:00"
	rec["endTime"] = "23:30"

	s := submit(t, forms.WorkOrder, forms.DefaultConfig(), rec)
	if !s.IsValid {
		t.Errorf("night marking blocked submission: %v", s.ErrorsByField)
	}
	if len(s.Warnings) != 1 || !strings.Contains(s.Warnings[0], "night") {
		t.Errorf("Warnings = %v, want the night marking warning", s.Warnings)
	}
}

func TestWorkOrder_RFIUniqueness(t *testing.T) {
	tests := []struct {
		name     string
		existing []types.Record
		want     bool
	}{
		{name: "taken case-insensitively", existing: []types.Record{{"id": "w1", "rfiNumber": "rfi-2024-001"}}, want: true},
		{name: "own record", existing: []types.Record{{"id": "w2", "rfiNumber": "RFI-2024-001"}}, want: false},
		{name: "different number", existing: []types.Record{{"id": "w1", "rfiNumber": "RFI-2024-002"}}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := submit(t, forms.WorkOrder, forms.DefaultConfig(), validWorkOrder(), tt.existing...)
			got, ok := s.ErrorsByField["rfiNumber"]
			if ok != tt.want {
				t.Fatalf("rfiNumber error present = %v, want %v (%+v)", ok, tt.want, got)
			}
			if ok && got.Category != types.CategoryUniqueness {
				t.Errorf("Category = %v, want uniqueness", got.Category)
			}
		})
	}
}
