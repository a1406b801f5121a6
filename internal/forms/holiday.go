package forms

import (
	"context"
	"fmt"
	"time"

	"github.com/solatis/formguard/internal/rules"
	"github.com/solatis/formguard/internal/types"
)

// HolidayConfig holds the holiday form limits.
type HolidayConfig struct {
	// MaxDurationDays bounds the inclusive length of one holiday.
	MaxDurationDays int
	// MaxPerMonth bounds holidays starting in one calendar month. Zero disables the check.
	MaxPerMonth int
	// NearDuplicateWarnings warns about titles similar to existing holidays.
	NearDuplicateWarnings bool
}

// Holiday field names.
const (
	HolidayID          types.FieldName = "id"
	HolidayTitle       types.FieldName = "title"
	HolidayStartDate   types.FieldName = "startDate"
	HolidayEndDate     types.FieldName = "endDate"
	HolidayType        types.FieldName = "type"
	HolidayDescription types.FieldName = "description"
	HolidayStatus      types.FieldName = "status"
)

// HolidayTypes are the accepted values of the type field.
var HolidayTypes = []string{"public", "company", "personal", "regional"}

// HolidayInterval maps holiday records onto date intervals. Cancelled and
// rejected holidays no longer block new ones.
var HolidayInterval = rules.IntervalFields{
	ID:               HolidayID,
	Start:            HolidayStartDate,
	End:              HolidayEndDate,
	Title:            HolidayTitle,
	Status:           HolidayStatus,
	ResolvedStatuses: []string{"cancelled", "rejected"},
}

func registerHoliday(b *rules.RuleSetBuilder, cfg HolidayConfig) {
	b.Field(
		rules.Required("holiday.title.required", HolidayTitle).WithMessage("Title is required"),
		rules.MaxLength("holiday.title.maxLength", HolidayTitle, 100).
			WithMessage("Title must be 100 characters or fewer"),

		rules.Required("holiday.startDate.required", HolidayStartDate).WithMessage("Start date is required"),
		rules.DateFormat("holiday.startDate.format", HolidayStartDate).
			WithMessage("Start date must be a valid date (YYYY-MM-DD)"),

		rules.Required("holiday.endDate.required", HolidayEndDate).WithMessage("End date is required"),
		rules.DateFormat("holiday.endDate.format", HolidayEndDate).
			WithMessage("End date must be a valid date (YYYY-MM-DD)"),
		rules.NotBefore("holiday.endDate.notBeforeStart", HolidayEndDate, HolidayStartDate).
			WithMessage("End date cannot be before start date"),

		rules.OneOf("holiday.type.oneOf", HolidayType, HolidayTypes...).
			WithMessage("Type must be one of: public, company, personal, regional"),

		rules.MaxLength("holiday.description.maxLength", HolidayDescription, 500).
			WithMessage("Description must be 500 characters or fewer"),
	)

	b.CrossField(
		rules.Ordered("holiday.dateOrder", Holiday, HolidayEndDate,
			HolidayEndDate, rules.OpGte, HolidayStartDate, rules.ModeDate).
			WithMessage("End date cannot be before start date"),
		rules.MaxSpanDays("holiday.maxDuration", Holiday, HolidayStartDate, HolidayEndDate, cfg.MaxDurationDays).
			WithMessage(fmt.Sprintf("Holiday cannot exceed %d days", cfg.MaxDurationDays)),
		weekendStart(),
	)

	b.Business(rules.ConflictRule("holiday.conflict", Holiday, HolidayInterval,
		rules.ConflictOptions{Noun: "holiday", NearDuplicates: cfg.NearDuplicateWarnings}))
	if cfg.MaxPerMonth > 0 {
		b.Business(monthlyLimit(cfg.MaxPerMonth))
	}
}

func weekendStart() rules.CrossFieldRule {
	return rules.CrossFieldRule{
		ID:      "holiday.weekendStart",
		Entity:  Holiday,
		Field:   HolidayStartDate,
		Fields:  []types.FieldName{HolidayStartDate},
		Soft:    true,
		Message: "Holiday starts on a weekend",
		Test: func(rec types.Record) (bool, string, error) {
			d, err := rules.ToDate(rec.Get(HolidayStartDate))
			if err != nil {
				return true, "", nil
			}
			wd := d.Weekday()
			return wd != time.Saturday && wd != time.Sunday, "", nil
		},
	}
}

// monthlyLimit counts unresolved existing holidays starting in the same
// calendar month as the candidate. The candidate itself counts once.
func monthlyLimit(limit int) rules.BusinessRule {
	r := rules.BusinessRule{
		ID:     "holiday.monthlyLimit",
		Entity: Holiday,
		Params: map[string]float64{"maxPerMonth": float64(limit)},
		Test: func(_ context.Context, rec types.Record, existing []types.Record) ([]types.RuleViolation, error) {
			candidate, ok := HolidayInterval.FromRecord(rec)
			if !ok {
				return nil, nil
			}
			y, m, _ := candidate.Start.Date()

			count := 1
			for _, iv := range HolidayInterval.Intervals(existing) {
				if iv.Resolved || (candidate.ID != "" && iv.ID == candidate.ID) {
					continue
				}
				if ey, em, _ := iv.Start.Date(); ey == y && em == m {
					count++
				}
			}
			if count <= limit {
				return nil, nil
			}
			return []types.RuleViolation{{
				Message: fmt.Sprintf("Maximum of %d holidays per month exceeded for %s %d", limit, m, y),
			}}, nil
		},
	}
	return r.WithClass(types.SeverityMedium, types.CategoryBusinessRule)
}
