// Package ruleset loads declarative rule files and publishes the compiled
// rule set to a rules.Registry, optionally reloading on file changes.
package ruleset

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/solatis/formguard/internal/forms"
	"github.com/solatis/formguard/internal/rules"
	"github.com/solatis/formguard/internal/types"
)

// Format is a rule file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// DetectFormat picks the format from path's extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %s", types.ErrUnsupportedFormat, path)
	}
}

// Decode parses one rule set. Unknown keys are rejected so that a misspelt
// option does not silently disable a rule.
func Decode(data []byte, format Format) (types.RuleSetSpec, error) {
	var spec types.RuleSetSpec
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&spec); err != nil {
			return types.RuleSetSpec{}, fmt.Errorf("%w: yaml: %v", types.ErrInvalidRule, err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &spec)
		if err != nil {
			return types.RuleSetSpec{}, fmt.Errorf("%w: toml: %v", types.ErrInvalidRule, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return types.RuleSetSpec{}, fmt.Errorf("%w: toml: unknown key %s", types.ErrInvalidRule, undecoded[0])
		}
	default:
		return types.RuleSetSpec{}, fmt.Errorf("%w: %q", types.ErrUnsupportedFormat, format)
	}
	return spec, nil
}

// LoadFile reads and decodes the rule file at path.
func LoadFile(path string) (types.RuleSetSpec, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return types.RuleSetSpec{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return types.RuleSetSpec{}, fmt.Errorf("failed to read rule file: %w", err)
	}
	spec, err := Decode(data, format)
	if err != nil {
		return types.RuleSetSpec{}, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}

// Source describes where a rule set comes from.
type Source struct {
	// Builtin lists entities whose built-in form rules are included.
	Builtin []types.EntityType
	// Forms configures the built-in rules.
	Forms forms.Config
	// Paths are rule files compiled after the built-in rules, in order.
	Paths []string
}

// Load builds the rule set described by src. Any error leaves nothing built.
func Load(src Source) (*rules.RuleSet, error) {
	compiler, err := rules.NewCompiler()
	if err != nil {
		return nil, err
	}

	b := rules.NewRuleSetBuilder()
	for _, entity := range src.Builtin {
		if err := forms.Register(b, entity, src.Forms); err != nil {
			return nil, err
		}
	}
	for _, path := range src.Paths {
		spec, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if err := compiler.CompileRuleSet(spec, b); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return b.Build()
}
