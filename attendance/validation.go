package attendance

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// =============================================================================
// WRITE-TIME VALIDATION - Catalog and assignment checks
// =============================================================================
//
// Field rules live in struct tags; cross-field rules are struct-level
// validations registered once. Invalid combinations are rejected when written,
// so the calculator can trust the catalog it reads.

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Decimals validate as float64; an unset NullDecimal is treated as empty.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		switch d := field.Interface().(type) {
		case decimal.Decimal:
			f, _ := d.Float64()
			return f
		case decimal.NullDecimal:
			if !d.Valid {
				return nil
			}
			f, _ := d.Decimal.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{}, decimal.NullDecimal{})

	v.RegisterStructValidation(timePeriodRules, TimePeriod{})
	v.RegisterStructValidation(shiftRules, Shift{})
	v.RegisterStructValidation(assignmentRules, Assignment{})
	return v
}

// ValidateTimePeriod checks a time period before it is stored.
func ValidateTimePeriod(tp TimePeriod) error {
	return Validate("time_period", tp)
}

// ValidateShift checks a shift and its positions before it is stored.
// Whether referenced time periods exist is checked by the store, which owns
// the catalog.
func ValidateShift(s Shift) error {
	return Validate("shift", s)
}

// ValidateAssignment checks an assignment's own fields. Overlap with other
// assignments is checked by CheckOverlap.
func ValidateAssignment(a Assignment) error {
	return Validate("assignment", a)
}

// Validate runs the shared validator over v and reports failures as a
// *ValidationError for object.
func Validate(object string, v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	out := &ValidationError{Object: object}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fieldPath(fe.Namespace()),
			Rule:    fe.Tag(),
			Message: message(fe),
		})
	}
	return out
}

// fieldPath drops the root struct name: "TimePeriod.Rules.AbsentTime" -> "Rules.AbsentTime".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lt":
		return "must be less than " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min_le_max":
		return "minWorkHours must not exceed maxWorkHours"
	case "fixed_bounds":
		return "fixed periods need both a start and an end time"
	case "bounds_pair":
		return "start and end time must be given together"
	case "nonzero_span":
		return "end time must differ from start time"
	case "rest_pair":
		return "rest start and end must be given together"
	case "rest_bounded":
		return "a rest interval needs a bounded period"
	case "rest_within":
		return "rest interval must lie within the period"
	case "day_in_cycle":
		return "day of cycle must be within 1.." + fe.Param()
	case "unique_position":
		return "duplicate sort order " + fe.Param() + " on the same cycle day"
	case "max_per_day":
		return fmt.Sprintf("at most %d periods per cycle day", MaxPeriodsPerDay)
	case "end_after_start":
		return "end date must not be before start date"
	case "gtfield":
		return "must be after " + fe.Param()
	}
	return "failed " + fe.Tag() + " check"
}

// =============================================================================
// STRUCT-LEVEL RULES
// =============================================================================

func timePeriodRules(sl validator.StructLevel) {
	tp := sl.Current().Interface().(TimePeriod)
	r := tp.Rules

	if r.MinWorkHours.Valid && r.MaxWorkHours.Valid &&
		r.MinWorkHours.Decimal.GreaterThan(r.MaxWorkHours.Decimal) {
		sl.ReportError(r.MinWorkHours, "Rules.MinWorkHours", "MinWorkHours", "min_le_max", "")
	}

	switch {
	case tp.Type == PeriodFixed && !tp.Bounded():
		sl.ReportError(tp.StartTime, "StartTime", "StartTime", "fixed_bounds", "")
	case (tp.StartTime == nil) != (tp.EndTime == nil):
		sl.ReportError(tp.StartTime, "StartTime", "StartTime", "bounds_pair", "")
	case tp.Bounded() && *tp.StartTime == *tp.EndTime:
		sl.ReportError(tp.EndTime, "EndTime", "EndTime", "nonzero_span", "")
	}

	if (tp.RestStartTime == nil) != (tp.RestEndTime == nil) {
		sl.ReportError(tp.RestStartTime, "RestStartTime", "RestStartTime", "rest_pair", "")
		return
	}
	if !tp.HasRest() {
		return
	}
	if !tp.Bounded() {
		sl.ReportError(tp.RestStartTime, "RestStartTime", "RestStartTime", "rest_bounded", "")
		return
	}
	if *tp.StartTime == *tp.EndTime {
		return
	}

	// Anchor on an arbitrary date and compare instants.
	rp := anchor(ShiftPeriod{}, tp, NewDate(2000, 1, 3), time.UTC)
	full := wholeMinutes(rp.Rest.Duration())
	rest := int(*tp.RestEndTime) - int(*tp.RestStartTime)
	if rest <= 0 {
		rest += minutesPerDay
	}
	if full != rest {
		sl.ReportError(tp.RestStartTime, "RestStartTime", "RestStartTime", "rest_within", "")
	}
}

func shiftRules(sl validator.StructLevel) {
	s := sl.Current().Interface().(Shift)

	type slot struct{ day, order int }
	seen := make(map[slot]bool)
	perDay := make(map[int]int)
	for i, sp := range s.Periods {
		field := fmt.Sprintf("Periods[%d]", i)
		if s.CycleDays >= 1 && sp.DayOfCycle > s.CycleDays {
			sl.ReportError(sp.DayOfCycle, field+".DayOfCycle", "DayOfCycle", "day_in_cycle", fmt.Sprint(s.CycleDays))
		}
		k := slot{sp.DayOfCycle, sp.SortOrder}
		if seen[k] {
			sl.ReportError(sp.SortOrder, field+".SortOrder", "SortOrder", "unique_position", fmt.Sprint(sp.SortOrder))
		}
		seen[k] = true

		perDay[sp.DayOfCycle]++
		if perDay[sp.DayOfCycle] == MaxPeriodsPerDay+1 {
			sl.ReportError(sp.DayOfCycle, field+".DayOfCycle", "DayOfCycle", "max_per_day", "")
		}
	}
}

func assignmentRules(sl validator.StructLevel) {
	a := sl.Current().Interface().(Assignment)
	if a.StartDate.IsZero() {
		sl.ReportError(a.StartDate, "StartDate", "StartDate", "required", "")
	}
	if a.EndDate != nil && a.EndDate.Before(a.StartDate) {
		sl.ReportError(a.EndDate, "EndDate", "EndDate", "end_after_start", "")
	}
}
