package attendance_test

import (
	"time"

	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const emp = attendance.EmployeeID("emp-1")

// March 2025: the 3rd is a Monday.
func day(d int) attendance.Date { return attendance.NewDate(2025, time.March, d) }

func at(d, h, m int) time.Time { return time.Date(2025, time.March, d, h, m, 0, 0, time.UTC) }

// officePeriod is 09:00-18:00 with documented default windows and no grace.
func officePeriod(mods ...func(*attendance.TimePeriod)) attendance.TimePeriod {
	tp := attendance.TimePeriod{
		ID:        1,
		Name:      "Office",
		Type:      attendance.PeriodFixed,
		StartTime: attendance.Clock(9, 0),
		EndTime:   attendance.Clock(18, 0),
		Rules:     attendance.DefaultRules(),
	}
	for _, m := range mods {
		m(&tp)
	}
	return tp
}

func withLunch(tp *attendance.TimePeriod) {
	tp.RestStartTime = attendance.Clock(12, 0)
	tp.RestEndTime = attendance.Clock(13, 0)
}

func dailyShift(periodIDs ...attendance.TimePeriodID) attendance.Shift {
	s := attendance.Shift{ID: 1, Name: "Daily", CycleDays: 1}
	for i, id := range periodIDs {
		s.Periods = append(s.Periods, attendance.ShiftPeriod{
			PeriodID:     id,
			DayOfCycle:   1,
			SortOrder:    i,
			MustCheckIn:  true,
			MustCheckOut: true,
		})
	}
	return s
}

func assignment(id string, shift attendance.ShiftID, start attendance.Date) attendance.Assignment {
	return attendance.Assignment{ID: id, EmployeeID: emp, ShiftID: shift, StartDate: start}
}

func signIn(id string, t time.Time) attendance.ClockEvent {
	return attendance.ClockEvent{ID: id, EmployeeID: emp, ClockTime: t, Type: attendance.PunchSignIn, Source: attendance.SourceDevice}
}

func signOut(id string, t time.Time) attendance.ClockEvent {
	return attendance.ClockEvent{ID: id, EmployeeID: emp, ClockTime: t, Type: attendance.PunchSignOut, Source: attendance.SourceDevice}
}

func approvedLeave(id string, from, to time.Time) attendance.LeaveRecord {
	return attendance.LeaveRecord{ID: id, EmployeeID: emp, Type: "annual", StartTime: from, EndTime: to, Status: attendance.LeaveApproved}
}

// scenario bundles everything one calculation needs.
type scenario struct {
	periods     []attendance.TimePeriod
	shifts      []attendance.Shift
	assignments []attendance.Assignment
	events      []attendance.ClockEvent
	corrections []attendance.Correction
	leaves      []attendance.LeaveRecord
}

// office returns the single-period office scenario with the given period.
func office(tp attendance.TimePeriod) *scenario {
	return &scenario{
		periods:     []attendance.TimePeriod{tp},
		shifts:      []attendance.Shift{dailyShift(tp.ID)},
		assignments: []attendance.Assignment{assignment("a-1", 1, day(1))},
	}
}

func (s *scenario) punches(events ...attendance.ClockEvent) *scenario {
	s.events = append(s.events, events...)
	return s
}

func (s *scenario) compute(date attendance.Date) attendance.DailyRecord {
	catalog := attendance.NewCatalog(s.periods, s.shifts)
	res := attendance.Resolve(emp, date, s.assignments, catalog, time.UTC)
	return attendance.Calculator{}.Compute(attendance.Input{
		EmployeeID:  emp,
		WorkDate:    date,
		Resolution:  res,
		Events:      s.events,
		Corrections: s.corrections,
		Leaves:      s.leaves,
	})
}
