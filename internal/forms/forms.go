// Package forms defines the built-in rule sets for the holiday and daily work
// order forms.
package forms

import (
	"fmt"

	"github.com/solatis/formguard/internal/rules"
	"github.com/solatis/formguard/internal/types"
)

// Entity types with built-in rules.
const (
	Holiday   types.EntityType = "holiday"
	WorkOrder types.EntityType = "workOrder"
)

// Config holds the limits the built-in rules enforce.
type Config struct {
	Holiday   HolidayConfig
	WorkOrder WorkOrderConfig
}

// DefaultConfig returns the limits used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Holiday: HolidayConfig{
			MaxDurationDays:       30,
			NearDuplicateWarnings: true,
		},
		WorkOrder: WorkOrderConfig{
			MaxShiftHours: 12,
		},
	}
}

// Entities lists the entity types Register knows.
func Entities() []types.EntityType {
	return []types.EntityType{Holiday, WorkOrder}
}

// Register adds entity's built-in rules to b.
func Register(b *rules.RuleSetBuilder, entity types.EntityType, cfg Config) error {
	switch entity {
	case Holiday:
		registerHoliday(b, cfg.Holiday)
	case WorkOrder:
		registerWorkOrder(b, cfg.WorkOrder)
	default:
		return fmt.Errorf("%w: no built-in rules for %q", types.ErrUnknownEntity, entity)
	}
	return nil
}

// Builtin returns a rule set holding entity's built-in rules.
func Builtin(entity types.EntityType, cfg Config) (*rules.RuleSet, error) {
	b := rules.NewRuleSetBuilder()
	if err := Register(b, entity, cfg); err != nil {
		return nil, err
	}
	return b.Build()
}
