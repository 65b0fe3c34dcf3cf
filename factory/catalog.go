/*
Package factory provides JSON to Go catalog conversion.

PURPOSE:
  Converts JSON time period and shift definitions into attendance types.
  Omitted rule fields take their documented defaults, unknown fields are
  rejected, and every result passes write-time validation before it is
  returned, so invalid combinations never reach a store.

JSON SCHEMA (time period):
  {
    "id": 1,
    "name": "Office",
    "type": "fixed",
    "start_time": "09:00",
    "end_time": "18:00",
    "rest_start_time": "12:00",
    "rest_end_time": "13:00",
    "rules": {
      "min_work_hours": 8,
      "max_work_hours": 10,
      "late_grace_minutes": 10,
      "early_leave_grace_minutes": 0,
      "check_in_start_offset": 60,
      "check_in_end_offset": 120,
      "check_out_start_offset": 120,
      "check_out_end_offset": 240,
      "absent_time": 4
    }
  }

JSON SCHEMA (shift):
  {
    "id": 1,
    "name": "Four on four off",
    "cycle_days": 8,
    "periods": [
      {"period_id": 1, "day_of_cycle": 1, "sort_order": 0},
      {"period_id": 2, "day_of_cycle": 5, "must_check_out": false}
    ]
  }

DEFAULTS:
  type                   fixed
  check_in_start_offset  60      check_in_end_offset   120
  check_out_start_offset 120     check_out_end_offset  240
  grace minutes          0       absent_time           0
  must_check_in/out      true

SEE ALSO:
  - attendance/period.go: TimePeriod and Rules
  - attendance/validation.go: Write-time validation
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type TimePeriodJSON struct {
	ID            int64                 `json:"id"`
	Name          string                `json:"name"`
	Type          string                `json:"type,omitempty"`
	StartTime     *attendance.ClockTime `json:"start_time,omitempty"`
	EndTime       *attendance.ClockTime `json:"end_time,omitempty"`
	RestStartTime *attendance.ClockTime `json:"rest_start_time,omitempty"`
	RestEndTime   *attendance.ClockTime `json:"rest_end_time,omitempty"`
	Rules         *RulesJSON            `json:"rules,omitempty"`
}

// RulesJSON uses pointers so omitted fields can be told apart from zero.
type RulesJSON struct {
	MinWorkHours           *float64 `json:"min_work_hours,omitempty"`
	MaxWorkHours           *float64 `json:"max_work_hours,omitempty"`
	LateGraceMinutes       *int     `json:"late_grace_minutes,omitempty"`
	EarlyLeaveGraceMinutes *int     `json:"early_leave_grace_minutes,omitempty"`
	CheckInStartOffset     *int     `json:"check_in_start_offset,omitempty"`
	CheckInEndOffset       *int     `json:"check_in_end_offset,omitempty"`
	CheckOutStartOffset    *int     `json:"check_out_start_offset,omitempty"`
	CheckOutEndOffset      *int     `json:"check_out_end_offset,omitempty"`
	AbsentTime             *float64 `json:"absent_time,omitempty"`
}

type ShiftJSON struct {
	ID        int64             `json:"id"`
	Name      string            `json:"name"`
	CycleDays int               `json:"cycle_days"`
	Periods   []ShiftPeriodJSON `json:"periods"`
}

type ShiftPeriodJSON struct {
	PeriodID     int64 `json:"period_id"`
	DayOfCycle   int   `json:"day_of_cycle"`
	SortOrder    int   `json:"sort_order"`
	MustCheckIn  *bool `json:"must_check_in,omitempty"`
	MustCheckOut *bool `json:"must_check_out,omitempty"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseTimePeriod parses and validates a JSON time period.
func ParseTimePeriod(data []byte) (attendance.TimePeriod, error) {
	var tj TimePeriodJSON
	if err := decodeStrict(data, &tj); err != nil {
		return attendance.TimePeriod{}, fmt.Errorf("%w: parse time period: %v", attendance.ErrInvalidConfig, err)
	}
	return TimePeriodFromJSON(tj)
}

// TimePeriodFromJSON applies defaults and validates.
func TimePeriodFromJSON(tj TimePeriodJSON) (attendance.TimePeriod, error) {
	tp := attendance.TimePeriod{
		ID:            attendance.TimePeriodID(tj.ID),
		Name:          tj.Name,
		Type:          attendance.PeriodType(tj.Type),
		StartTime:     tj.StartTime,
		EndTime:       tj.EndTime,
		RestStartTime: tj.RestStartTime,
		RestEndTime:   tj.RestEndTime,
		Rules:         attendance.DefaultRules(),
	}
	if tp.Type == "" {
		tp.Type = attendance.PeriodFixed
	}
	if tj.Rules != nil {
		applyRules(&tp.Rules, *tj.Rules)
	}
	if err := attendance.ValidateTimePeriod(tp); err != nil {
		return attendance.TimePeriod{}, err
	}
	return tp, nil
}

func applyRules(r *attendance.Rules, rj RulesJSON) {
	if rj.MinWorkHours != nil {
		r.MinWorkHours = attendance.Hours(*rj.MinWorkHours)
	}
	if rj.MaxWorkHours != nil {
		r.MaxWorkHours = attendance.Hours(*rj.MaxWorkHours)
	}
	setInt(&r.LateGraceMinutes, rj.LateGraceMinutes)
	setInt(&r.EarlyLeaveGraceMinutes, rj.EarlyLeaveGraceMinutes)
	setInt(&r.CheckInStartOffset, rj.CheckInStartOffset)
	setInt(&r.CheckInEndOffset, rj.CheckInEndOffset)
	setInt(&r.CheckOutStartOffset, rj.CheckOutStartOffset)
	setInt(&r.CheckOutEndOffset, rj.CheckOutEndOffset)
	if rj.AbsentTime != nil {
		r.AbsentTime = decimal.NewFromFloat(*rj.AbsentTime)
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// ParseShift parses and validates a JSON shift. Whether the referenced time
// periods exist is checked when the shift is stored.
func ParseShift(data []byte) (attendance.Shift, error) {
	var sj ShiftJSON
	if err := decodeStrict(data, &sj); err != nil {
		return attendance.Shift{}, fmt.Errorf("%w: parse shift: %v", attendance.ErrInvalidConfig, err)
	}
	return ShiftFromJSON(sj)
}

func ShiftFromJSON(sj ShiftJSON) (attendance.Shift, error) {
	s := attendance.Shift{
		ID:        attendance.ShiftID(sj.ID),
		Name:      sj.Name,
		CycleDays: sj.CycleDays,
	}
	for _, pj := range sj.Periods {
		s.Periods = append(s.Periods, attendance.ShiftPeriod{
			ShiftID:      s.ID,
			PeriodID:     attendance.TimePeriodID(pj.PeriodID),
			DayOfCycle:   pj.DayOfCycle,
			SortOrder:    pj.SortOrder,
			MustCheckIn:  boolOr(pj.MustCheckIn, true),
			MustCheckOut: boolOr(pj.MustCheckOut, true),
		})
	}
	if err := attendance.ValidateShift(s); err != nil {
		return attendance.Shift{}, err
	}
	return s, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func decodeStrict(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// =============================================================================
// SERIALIZATION
// =============================================================================

// TimePeriodToJSON is the inverse of TimePeriodFromJSON. All rule fields are
// written explicitly.
func TimePeriodToJSON(tp attendance.TimePeriod) TimePeriodJSON {
	r := tp.Rules
	rj := &RulesJSON{
		LateGraceMinutes:       intPtr(r.LateGraceMinutes),
		EarlyLeaveGraceMinutes: intPtr(r.EarlyLeaveGraceMinutes),
		CheckInStartOffset:     intPtr(r.CheckInStartOffset),
		CheckInEndOffset:       intPtr(r.CheckInEndOffset),
		CheckOutStartOffset:    intPtr(r.CheckOutStartOffset),
		CheckOutEndOffset:      intPtr(r.CheckOutEndOffset),
		AbsentTime:             floatPtr(r.AbsentTime),
	}
	if r.MinWorkHours.Valid {
		rj.MinWorkHours = floatPtr(r.MinWorkHours.Decimal)
	}
	if r.MaxWorkHours.Valid {
		rj.MaxWorkHours = floatPtr(r.MaxWorkHours.Decimal)
	}
	return TimePeriodJSON{
		ID:            int64(tp.ID),
		Name:          tp.Name,
		Type:          string(tp.Type),
		StartTime:     tp.StartTime,
		EndTime:       tp.EndTime,
		RestStartTime: tp.RestStartTime,
		RestEndTime:   tp.RestEndTime,
		Rules:         rj,
	}
}

func ShiftToJSON(s attendance.Shift) ShiftJSON {
	sj := ShiftJSON{ID: int64(s.ID), Name: s.Name, CycleDays: s.CycleDays, Periods: []ShiftPeriodJSON{}}
	for _, sp := range s.Periods {
		in, out := sp.MustCheckIn, sp.MustCheckOut
		sj.Periods = append(sj.Periods, ShiftPeriodJSON{
			PeriodID:     int64(sp.PeriodID),
			DayOfCycle:   sp.DayOfCycle,
			SortOrder:    sp.SortOrder,
			MustCheckIn:  &in,
			MustCheckOut: &out,
		})
	}
	return sj
}

func intPtr(v int) *int { return &v }

func floatPtr(d decimal.Decimal) *float64 {
	f, _ := d.Float64()
	return &f
}
