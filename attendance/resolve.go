/*
resolve.go - Shift resolution for one employee and work date

PURPOSE:
  Determines which periods an employee is expected to work on a date and
  turns their day-local clock times into concrete instants.

RESOLUTION OUTCOMES:
  unscheduled  No active assignment. The day is not required.
  conflict     More than one active assignment. Nothing is calculated.
  broken       The assigned shift does not exist (data integrity error).
  rest         The shift has no periods on this cycle day.
  scheduled    One or more periods, ordered by sort order.

OVERNIGHT PERIODS:
  A period whose end clock time is at or before its start clock time ends on
  the following calendar day. All windows are computed from these instants,
  never from clock-of-day comparisons.

SEE ALSO:
  - shift.go: Catalog and cycle arithmetic
  - calculator.go: Consumes the Resolution
*/
package attendance

import (
	"fmt"
	"time"
)

type ResolutionKind string

const (
	ResolvedUnscheduled ResolutionKind = "unscheduled"
	ResolvedConflict    ResolutionKind = "conflict"
	ResolvedBroken      ResolutionKind = "broken"
	ResolvedRestDay     ResolutionKind = "rest"
	ResolvedScheduled   ResolutionKind = "scheduled"
)

// Resolution is the expected schedule of one employee on one work date.
type Resolution struct {
	Kind         ResolutionKind
	EmployeeID   EmployeeID
	WorkDate     Date
	Location     *time.Location
	AssignmentID string
	ShiftID      ShiftID
	DayOfCycle   int
	Periods      []ResolvedPeriod

	Conflict  *ScheduleConflictError
	Integrity *DanglingReferenceError
}

// ResolvedPeriod is a shift position with its period anchored to instants.
// When Integrity is set the period could not be loaded and only Position is
// meaningful.
type ResolvedPeriod struct {
	Position  ShiftPeriod
	Period    TimePeriod
	Scheduled Interval
	Rest      Interval
	Integrity *DanglingReferenceError
}

// CheckInWindow is the closed interval in which a sign-in is accepted.
func (rp ResolvedPeriod) CheckInWindow() Interval {
	if !rp.Period.Bounded() {
		return rp.Scheduled
	}
	r := rp.Period.Rules
	return Interval{
		Start: rp.Scheduled.Start.Add(-minutesDuration(r.CheckInStartOffset)),
		End:   rp.Scheduled.Start.Add(minutesDuration(r.CheckInEndOffset)),
	}
}

// CheckOutWindow is the closed interval in which a sign-out is accepted.
func (rp ResolvedPeriod) CheckOutWindow() Interval {
	if !rp.Period.Bounded() {
		return rp.Scheduled
	}
	r := rp.Period.Rules
	return Interval{
		Start: rp.Scheduled.End.Add(-minutesDuration(r.CheckOutStartOffset)),
		End:   rp.Scheduled.End.Add(minutesDuration(r.CheckOutEndOffset)),
	}
}

// Window returns the span of instants whose punches and leave can affect the
// record. The driver loads inputs for exactly this span. Days without
// periods fall back to the calendar day.
func (r Resolution) Window() Interval {
	loc := r.location()
	day := Interval{Start: r.WorkDate.Midnight(loc), End: r.WorkDate.AddDays(1).Midnight(loc)}

	var w Interval
	for _, rp := range r.Periods {
		if rp.Integrity != nil {
			continue
		}
		w = w.Union(rp.Scheduled).Union(rp.CheckInWindow()).Union(rp.CheckOutWindow())
	}
	if w.IsZero() {
		return day
	}
	return w
}

func (r Resolution) location() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// =============================================================================
// RESOLVE
// =============================================================================

// Resolve computes the expected schedule of employeeID on date from the
// employee's assignments and a catalog snapshot. It never guesses: more than
// one active assignment yields a conflict resolution.
func Resolve(employeeID EmployeeID, date Date, assignments []Assignment, catalog *Catalog, loc *time.Location) Resolution {
	if loc == nil {
		loc = time.UTC
	}
	res := Resolution{EmployeeID: employeeID, WorkDate: date, Location: loc}

	active := ActiveOn(assignments, employeeID, date)
	switch len(active) {
	case 0:
		res.Kind = ResolvedUnscheduled
		return res
	case 1:
	default:
		ids := make([]string, len(active))
		for i, a := range active {
			ids[i] = a.ID
		}
		res.Kind = ResolvedConflict
		res.Conflict = &ScheduleConflictError{EmployeeID: employeeID, Date: date, AssignmentIDs: ids}
		return res
	}

	assignment := active[0]
	res.AssignmentID = assignment.ID
	res.ShiftID = assignment.ShiftID

	shift, ok := catalog.Shift(assignment.ShiftID)
	if !ok {
		res.Kind = ResolvedBroken
		res.Integrity = &DanglingReferenceError{
			Kind:     "shift",
			ID:       int64(assignment.ShiftID),
			Referrer: "assignment " + assignment.ID,
		}
		return res
	}

	res.DayOfCycle = shift.DayOfCycle(assignment.StartDate, date)
	positions := shift.PeriodsOn(res.DayOfCycle)
	if len(positions) == 0 {
		res.Kind = ResolvedRestDay
		return res
	}

	res.Kind = ResolvedScheduled
	for _, sp := range positions {
		period, ok := catalog.TimePeriod(sp.PeriodID)
		if !ok {
			res.Periods = append(res.Periods, ResolvedPeriod{
				Position: sp,
				Integrity: &DanglingReferenceError{
					Kind:     "time_period",
					ID:       int64(sp.PeriodID),
					Referrer: positionRef(sp),
				},
			})
			continue
		}
		res.Periods = append(res.Periods, anchor(sp, period, date, loc))
	}
	return res
}

// anchor turns a period's clock times into instants on date.
func anchor(sp ShiftPeriod, period TimePeriod, date Date, loc *time.Location) ResolvedPeriod {
	rp := ResolvedPeriod{Position: sp, Period: period}

	base := date.Midnight(loc)
	if period.Bounded() {
		start := date.At(*period.StartTime, loc)
		end := date.At(*period.EndTime, loc)
		if !end.After(start) {
			end = date.AddDays(1).At(*period.EndTime, loc)
		}
		rp.Scheduled = Interval{Start: start, End: end}
		base = start
	} else {
		rp.Scheduled = Interval{Start: base, End: date.AddDays(1).Midnight(loc)}
	}

	if period.HasRest() {
		restDay := date
		restStart := restDay.At(*period.RestStartTime, loc)
		if restStart.Before(base) {
			restDay = restDay.AddDays(1)
			restStart = restDay.At(*period.RestStartTime, loc)
		}
		restEnd := restDay.At(*period.RestEndTime, loc)
		if !restEnd.After(restStart) {
			restEnd = restDay.AddDays(1).At(*period.RestEndTime, loc)
		}
		rp.Rest = Interval{Start: restStart, End: restEnd}.Intersect(rp.Scheduled)
	}
	return rp
}

func positionRef(sp ShiftPeriod) string {
	return fmt.Sprintf("shift %d day %d order %d", sp.ShiftID, sp.DayOfCycle, sp.SortOrder)
}
