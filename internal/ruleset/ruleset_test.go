package ruleset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/solatis/formguard/internal/forms"
	"github.com/solatis/formguard/internal/rules"
	"github.com/solatis/formguard/internal/types"
)

const yamlRules = `entity: holiday
fields:
  - name: approver
    rules:
      - id: approver.required
        kind: required
        message: An approver is required
      - id: approver.email
        kind: format
        format: email
  - name: days
    rules:
      - id: days.range
        kind: range
        min: 1
        max: 30
        severity: high
        category: dateLogic
cross_field:
  - id: approver.notSelf
    field: approver
    fields: [approver, requester]
    expr: record.approver != record.requester
    message: You cannot approve your own holiday
`

const tomlRules = `entity = "holiday"

[[fields]]
name = "approver"

  [[fields.rules]]
  id = "approver.required"
  kind = "required"
  message = "An approver is required"

  [[fields.rules]]
  id = "approver.email"
  kind = "format"
  format = "email"

[[fields]]
name = "days"

  [[fields.rules]]
  id = "days.range"
  kind = "range"
  min = 1
  max = 30
  severity = "high"
  category = "dateLogic"

[[cross_field]]
id = "approver.notSelf"
field = "approver"
fields = ["approver", "requester"]
expr = "record.approver != record.requester"
message = "You cannot approve your own holiday"
`

func ptr(f float64) *float64 { return &f }

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDecode_YAMLAndTOMLAgree(t *testing.T) {
	want := types.RuleSetSpec{
		Entity: "holiday",
		Fields: []types.FieldSpec{
			{Name: "approver", Rules: []types.RuleSpec{
				{ID: "approver.required", Kind: types.KindRequired, Message: "An approver is required"},
				{ID: "approver.email", Kind: types.KindFormat, Format: "email"},
			}},
			{Name: "days", Rules: []types.RuleSpec{
				{ID: "days.range", Kind: types.KindRange, Min: ptr(1), Max: ptr(30),
					Severity: types.SeverityHigh, Category: types.CategoryDateLogic},
			}},
		},
		CrossField: []types.CrossFieldSpec{{
			ID: "approver.notSelf", Field: "approver", Fields: []types.FieldName{"approver", "requester"},
			Expr: "record.approver != record.requester", Message: "You cannot approve your own holiday",
		}},
	}

	for _, tt := range []struct {
		format Format
		data   string
	}{
		{FormatYAML, yamlRules},
		{FormatTOML, tomlRules},
	} {
		t.Run(string(tt.format), func(t *testing.T) {
			got, err := Decode([]byte(tt.data), tt.format)
			if err != nil {
				t.Fatalf("Decode() error = %v, want nil", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		data   string
		want   error
	}{
		{name: "unknown yaml key", format: FormatYAML, data: "entity: holiday\nfeilds: []\n", want: types.ErrInvalidRule},
		{name: "unknown toml key", format: FormatTOML, data: "entity = \"holiday\"\nfeilds = []\n", want: types.ErrInvalidRule},
		{name: "malformed yaml", format: FormatYAML, data: "entity: [", want: types.ErrInvalidRule},
		{name: "malformed toml", format: FormatTOML, data: "entity = ", want: types.ErrInvalidRule},
		{name: "unknown format", format: "json", data: "{}", want: types.ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.data), tt.format); !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDetectFormat(t *testing.T) {
	tests := map[string]Format{
		"rules.yaml":     FormatYAML,
		"rules.YML":      FormatYAML,
		"dir/rules.toml": FormatTOML,
		"rules.json":     "",
		"rules":          "",
	}
	for path, want := range tests {
		got, err := DetectFormat(path)
		if want == "" {
			if !errors.Is(err, types.ErrUnsupportedFormat) {
				t.Errorf("DetectFormat(%q) error = %v, want ErrUnsupportedFormat", path, err)
			}
			continue
		}
		if err != nil || got != want {
			t.Errorf("DetectFormat(%q) = %q, %v, want %q", path, got, err, want)
		}
	}
}

func TestLoad_BuiltinPlusFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "holiday.yaml", yamlRules)

	set, err := Load(Source{Builtin: []types.EntityType{forms.Holiday}, Forms: forms.DefaultConfig(), Paths: []string{path}})
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if len(set.FieldRules("title")) == 0 {
		t.Errorf("built-in title rules missing")
	}
	if got := len(set.FieldRules("approver")); got != 2 {
		t.Errorf("len(FieldRules(approver)) = %d, want 2", got)
	}
	info, ok := set.RuleInfo("days.range")
	if !ok || info.Class == nil || info.Class.Category != types.CategoryDateLogic {
		t.Errorf("RuleInfo(days.range) = %+v, want the declared class", info)
	}

	out := rules.ValidateField(set.FieldRules("approver"), "approver", "not-an-address", nil)
	if out.Valid() || out.Violation.RuleID != "approver.email" {
		t.Errorf("approver outcome = %+v, want the email rule", out)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	dup := writeFile(t, dir, "dup.yaml", "entity: holiday\nfields:\n  - name: title\n    rules:\n      - id: holiday.title.required\n        kind: required\n")
	badExpr := writeFile(t, dir, "bad.toml", "entity = \"holiday\"\n[[cross_field]]\nid = \"x\"\nfield = \"a\"\nexpr = \"record.a >\"\n")

	tests := []struct {
		name string
		src  Source
		want error
	}{
		{name: "missing file", src: Source{Paths: []string{filepath.Join(dir, "absent.yaml")}}, want: os.ErrNotExist},
		{name: "clashes with built-in id", src: Source{Builtin: []types.EntityType{forms.Holiday}, Forms: forms.DefaultConfig(), Paths: []string{dup}}, want: types.ErrDuplicateRule},
		{name: "bad expression", src: Source{Paths: []string{badExpr}}, want: types.ErrInvalidRule},
		{name: "unknown built-in", src: Source{Builtin: []types.EntityType{"invoice"}}, want: types.ErrUnknownEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.src); !errors.Is(err, tt.want) {
				t.Errorf("Load() error = %v, want %v", err, tt.want)
			}
		})
	}
}
