package forms

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/solatis/formguard/internal/rules"
	"github.com/solatis/formguard/internal/types"
)

// WorkOrderConfig holds the daily work order limits.
type WorkOrderConfig struct {
	// MaxShiftHours bounds endTime - startTime.
	MaxShiftHours float64
	// ThroughRoadApprovalBlocking turns the structural-on-through-road
	// approval reminder into a hard error.
	ThroughRoadApprovalBlocking bool
	// ServiceRoadPavementBlocking turns the pavement-on-service-road notice
	// into a hard error.
	ServiceRoadPavementBlocking bool
}

// Work order field names.
const (
	WorkOrderID            types.FieldName = "id"
	WorkOrderDate          types.FieldName = "workDate"
	WorkOrderType          types.FieldName = "workType"
	WorkOrderRoadType      types.FieldName = "roadType"
	WorkOrderStartTime     types.FieldName = "startTime"
	WorkOrderEndTime       types.FieldName = "endTime"
	WorkOrderCrewSize      types.FieldName = "crewSize"
	WorkOrderDescription   types.FieldName = "description"
	WorkOrderRFINumber     types.FieldName = "rfiNumber"
	WorkOrderSafetyOfficer types.FieldName = "safetyOfficer"
)

// Accepted values of the workType and roadType fields.
var (
	WorkTypes = []string{"pavement", "structural", "drainage", "marking", "inspection", "maintenance"}
	RoadTypes = []string{"highway", "arterial", "collector", "local", "service"}
)

var rfiPattern = regexp.MustCompile(`^RFI-\d{4}-\d{3}$`)

// Night marking window, minutes after midnight.
const (
	nightStarts = 20 * 60
	nightEnds   = 6 * 60
)

func registerWorkOrder(b *rules.RuleSetBuilder, cfg WorkOrderConfig) {
	b.Field(
		rules.Required("workOrder.workDate.required", WorkOrderDate).WithMessage("Work date is required"),
		rules.DateFormat("workOrder.workDate.format", WorkOrderDate).
			WithMessage("Work date must be a valid date (YYYY-MM-DD)"),

		rules.Required("workOrder.workType.required", WorkOrderType).WithMessage("Work type is required"),
		rules.OneOf("workOrder.workType.oneOf", WorkOrderType, WorkTypes...).
			WithMessage("Work type must be one of: "+strings.Join(WorkTypes, ", ")),

		rules.Required("workOrder.roadType.required", WorkOrderRoadType).WithMessage("Road type is required"),
		rules.OneOf("workOrder.roadType.oneOf", WorkOrderRoadType, RoadTypes...).
			WithMessage("Road type must be one of: "+strings.Join(RoadTypes, ", ")),

		rules.ClockFormat("workOrder.startTime.format", WorkOrderStartTime).
			WithMessage("Start time must be a valid time (HH:MM)"),
		rules.ClockFormat("workOrder.endTime.format", WorkOrderEndTime).
			WithMessage("End time must be a valid time (HH:MM)"),

		rules.Range("workOrder.crewSize.range", WorkOrderCrewSize, 1, 50).
			WithMessage("Crew size must be between 1 and 50"),

		rules.MaxLength("workOrder.description.maxLength", WorkOrderDescription, 1000).
			WithMessage("Description must be 1000 characters or fewer"),

		rules.Pattern("workOrder.rfiNumber.format", WorkOrderRFINumber, rfiPattern).
			WithMessage("RFI number must use the format RFI-YYYY-NNN"),
	)

	b.CrossField(
		rules.Ordered("workOrder.timeOrder", WorkOrder, WorkOrderEndTime,
			WorkOrderEndTime, rules.OpGt, WorkOrderStartTime, rules.ModeClock).
			WithMessage("End time must be after start time"),
		maxShift(cfg.MaxShiftHours),
		servicePavement().AsSoft(!cfg.ServiceRoadPavementBlocking),
		throughRoadApproval().AsSoft(!cfg.ThroughRoadApprovalBlocking),
		nightMarking(),
	)

	b.Business(rfiUnique(), safetyOfficer())
}

func maxShift(hours float64) rules.CrossFieldRule {
	limit := int(hours * 60)
	return rules.CrossFieldRule{
		ID:      "workOrder.maxShift",
		Entity:  WorkOrder,
		Field:   WorkOrderEndTime,
		Fields:  []types.FieldName{WorkOrderStartTime, WorkOrderEndTime},
		Message: fmt.Sprintf("Shift cannot exceed %g hours", hours),
		Class:   &types.Class{Severity: types.SeverityHigh, Category: types.CategoryDateLogic},
		Params:  map[string]float64{"maxShiftHours": hours},
		Test: func(rec types.Record) (bool, string, error) {
			start, err := rules.ToClock(rec.Get(WorkOrderStartTime))
			if err != nil {
				return true, "", nil
			}
			end, err := rules.ToClock(rec.Get(WorkOrderEndTime))
			if err != nil || end <= start {
				return true, "", nil
			}
			return end-start <= limit, "", nil
		},
	}
}

func servicePavement() rules.CrossFieldRule {
	return rules.CrossFieldRule{
		ID:      "workOrder.servicePavement",
		Entity:  WorkOrder,
		Field:   WorkOrderType,
		Fields:  []types.FieldName{WorkOrderType, WorkOrderRoadType},
		Message: "Pavement work on a service road is usually scheduled as maintenance",
		Class:   &types.Class{Severity: types.SeverityMedium, Category: types.CategoryBusinessRule},
		Test: func(rec types.Record) (bool, string, error) {
			return !(is(rec, WorkOrderType, "pavement") && is(rec, WorkOrderRoadType, "service")), "", nil
		},
	}
}

func throughRoadApproval() rules.CrossFieldRule {
	return rules.CrossFieldRule{
		ID:      "workOrder.throughRoadApproval",
		Entity:  WorkOrder,
		Field:   WorkOrderType,
		Fields:  []types.FieldName{WorkOrderType, WorkOrderRoadType},
		Message: "Structural work on highway or arterial roads requires traffic management approval",
		Class:   &types.Class{Severity: types.SeverityCritical, Category: types.CategorySafety},
		Test: func(rec types.Record) (bool, string, error) {
			through := throughRoad(rec.String(WorkOrderRoadType))
			return !(through && is(rec, WorkOrderType, "structural")), "", nil
		},
	}
}

func nightMarking() rules.CrossFieldRule {
	return rules.CrossFieldRule{
		ID:      "workOrder.nightMarking",
		Entity:  WorkOrder,
		Field:   WorkOrderStartTime,
		Fields:  []types.FieldName{WorkOrderType, WorkOrderStartTime},
		Soft:    true,
		Message: "Marking work at night needs lighting and reflective paint",
		Test: func(rec types.Record) (bool, string, error) {
			if !is(rec, WorkOrderType, "marking") {
				return true, "", nil
			}
			start, err := rules.ToClock(rec.Get(WorkOrderStartTime))
			if err != nil {
				return true, "", nil
			}
			return start >= nightEnds && start < nightStarts, "", nil
		},
	}
}

// rfiUnique rejects an RFI number already used by another work order.
// Comparison is case-insensitive; the record's own ID is excluded.
func rfiUnique() rules.BusinessRule {
	r := rules.BusinessRule{
		ID:     "workOrder.rfiUnique",
		Entity: WorkOrder,
		Test: func(_ context.Context, rec types.Record, existing []types.Record) ([]types.RuleViolation, error) {
			rfi := normRFI(rec)
			if rfi == "" {
				return nil, nil
			}
			self := rules.ToText(rec.Get(WorkOrderID))
			for _, other := range existing {
				if self != "" && rules.ToText(other.Get(WorkOrderID)) == self {
					continue
				}
				if normRFI(other) == rfi {
					return []types.RuleViolation{{
						Field:   WorkOrderRFINumber,
						Message: fmt.Sprintf("RFI number %s already exists on another work order", rec.String(WorkOrderRFINumber)),
					}}, nil
				}
			}
			return nil, nil
		},
	}
	return r.WithClass(types.SeverityHigh, types.CategoryUniqueness)
}

func safetyOfficer() rules.BusinessRule {
	r := rules.BusinessRule{
		ID:     "workOrder.safetyOfficer",
		Entity: WorkOrder,
		Test: func(_ context.Context, rec types.Record, _ []types.Record) ([]types.RuleViolation, error) {
			if !is(rec, WorkOrderType, "structural") && !is(rec, WorkOrderRoadType, "highway") {
				return nil, nil
			}
			if !rules.IsEmpty(rec.Get(WorkOrderSafetyOfficer)) {
				return nil, nil
			}
			return []types.RuleViolation{{
				Field:   WorkOrderSafetyOfficer,
				Message: "A safety officer is required for structural or highway work",
			}}, nil
		},
	}
	return r.WithClass(types.SeverityCritical, types.CategorySafety)
}

func is(rec types.Record, field types.FieldName, want string) bool {
	return strings.EqualFold(rec.String(field), want)
}

func normRFI(rec types.Record) string {
	return strings.ToUpper(rec.String(WorkOrderRFINumber))
}

// throughRoad reports whether roadType carries through traffic.
func throughRoad(roadType string) bool {
	return slices.Contains([]string{"highway", "arterial"}, strings.ToLower(roadType))
}
