package attendance

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// TIME PERIOD - Reusable work-time template
// =============================================================================

type TimePeriodID int64

type PeriodType string

const (
	// PeriodFixed has a nominal start and end; lateness and early leave apply.
	PeriodFixed PeriodType = "fixed"

	// PeriodFlexible only requires presence. Bounds are optional; without them
	// the punch windows span the whole work date.
	PeriodFlexible PeriodType = "flexible"
)

// TimePeriod is an immutable catalog entry. EndTime may be at or before
// StartTime on the clock, in which case the period ends on the next day.
type TimePeriod struct {
	ID            TimePeriodID `validate:"gt=0"`
	Name          string       `validate:"required,max=64"`
	Type          PeriodType   `validate:"oneof=fixed flexible"`
	StartTime     *ClockTime   `validate:"omitempty,gte=0,lt=1440"`
	EndTime       *ClockTime   `validate:"omitempty,gte=0,lt=1440"`
	RestStartTime *ClockTime   `validate:"omitempty,gte=0,lt=1440"`
	RestEndTime   *ClockTime   `validate:"omitempty,gte=0,lt=1440"`
	Rules         Rules
}

// Bounded reports whether the period has both a start and an end time.
func (tp TimePeriod) Bounded() bool { return tp.StartTime != nil && tp.EndTime != nil }

// HasRest reports whether a rest interval is configured.
func (tp TimePeriod) HasRest() bool { return tp.RestStartTime != nil && tp.RestEndTime != nil }

// Overnight reports whether the period crosses midnight.
func (tp TimePeriod) Overnight() bool {
	return tp.Bounded() && *tp.EndTime <= *tp.StartTime
}

// =============================================================================
// RULES - Punch windows, grace periods and hour bounds
// =============================================================================

// Rules configures how punches are judged against a TimePeriod.
//
// Offsets are minutes and always non-negative:
//
//	check-in window:  [start - CheckInStartOffset,  start + CheckInEndOffset]
//	check-out window: [end   - CheckOutStartOffset, end   + CheckOutEndOffset]
//
// MinWorkHours and MaxWorkHours are optional; when MinWorkHours is unset the
// required hours of the period are its scheduled duration minus rest.
// AbsentTime is in hours: a period with both punches missing becomes absent
// only when its required duration exceeds it. The zero value (0) promotes
// every fully missed period.
type Rules struct {
	MinWorkHours           decimal.NullDecimal `validate:"omitempty,gte=0,lte=24"`
	MaxWorkHours           decimal.NullDecimal `validate:"omitempty,gt=0,lte=24"`
	LateGraceMinutes       int                 `validate:"gte=0,lte=720"`
	EarlyLeaveGraceMinutes int                 `validate:"gte=0,lte=720"`
	CheckInStartOffset     int                 `validate:"gte=0,lte=1440"`
	CheckInEndOffset       int                 `validate:"gte=0,lte=1440"`
	CheckOutStartOffset    int                 `validate:"gte=0,lte=1440"`
	CheckOutEndOffset      int                 `validate:"gte=0,lte=1440"`
	AbsentTime             decimal.Decimal     `validate:"gte=0,lte=24"`
}

// Documented defaults applied by the factory when a field is omitted.
const (
	DefaultCheckInStartOffset  = 60
	DefaultCheckInEndOffset    = 120
	DefaultCheckOutStartOffset = 120
	DefaultCheckOutEndOffset   = 240
)

// DefaultRules returns the rules used for omitted fields.
func DefaultRules() Rules {
	return Rules{
		CheckInStartOffset:  DefaultCheckInStartOffset,
		CheckInEndOffset:    DefaultCheckInEndOffset,
		CheckOutStartOffset: DefaultCheckOutStartOffset,
		CheckOutEndOffset:   DefaultCheckOutEndOffset,
		AbsentTime:          decimal.Zero,
	}
}

// Hours is a convenience for building optional hour bounds.
func Hours(h float64) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.NewFromFloat(h), Valid: true}
}

func hoursToMinutes(h decimal.Decimal) int {
	return int(h.Mul(decimal.NewFromInt(60)).Round(0).IntPart())
}

func minutesToHours(m int) decimal.Decimal {
	return decimal.NewFromInt(int64(m)).Div(decimal.NewFromInt(60)).Round(2)
}
