package attendance_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// SHIFT RESOLUTION
// =============================================================================

func TestResolve_NoAssignment_NotRequired(t *testing.T) {
	s := office(officePeriod())
	s.assignments = nil

	rec := s.punches(signIn("in", at(3, 9, 0))).compute(day(3))

	assert.Equal(t, attendance.StatusNotRequired, rec.Status)
	assert.Nil(t, rec.ShiftID)
	assert.Nil(t, rec.PeriodID)
	assert.True(t, rec.RequiredHours.IsZero())
}

func TestResolve_DateBeforeAssignment_NotRequired(t *testing.T) {
	s := office(officePeriod())
	s.assignments = []attendance.Assignment{assignment("a-1", 1, day(10))}

	assert.Equal(t, attendance.StatusNotRequired, s.compute(day(3)).Status)
}

func TestResolve_OverlappingAssignments_ScheduleConflict(t *testing.T) {
	// GIVEN: Two assignments active on the same date
	// WHEN: Calculating that date
	// THEN: schedule_conflict, nothing calculated, no arbitrary pick

	s := office(officePeriod())
	s.assignments = append(s.assignments, assignment("a-2", 1, day(2)))
	s.punches(signIn("in", at(3, 9, 0)), signOut("out", at(3, 18, 0)))

	rec := s.compute(day(3))

	assert.Equal(t, attendance.StatusScheduleConflict, rec.Status)
	assert.Nil(t, rec.ShiftID)
	assert.Empty(t, rec.Periods)
	require.True(t, rec.HasViolation(attendance.ViolationScheduleConflict))
	assert.Contains(t, rec.Violations[0].Message, "a-1")
	assert.Contains(t, rec.Violations[0].Message, "a-2")
}

func TestResolve_ConflictCarriesTypedError(t *testing.T) {
	assignments := []attendance.Assignment{
		assignment("a-1", 1, day(1)),
		assignment("a-2", 1, day(2)),
	}
	catalog := attendance.NewCatalog([]attendance.TimePeriod{officePeriod()}, []attendance.Shift{dailyShift(1)})

	res := attendance.Resolve(emp, day(3), assignments, catalog, time.UTC)

	require.Equal(t, attendance.ResolvedConflict, res.Kind)
	assert.True(t, errors.Is(res.Conflict, attendance.ErrScheduleConflict))
	assert.Equal(t, []string{"a-1", "a-2"}, res.Conflict.AssignmentIDs)
}

func TestResolve_MissingShift_DataIntegrityError(t *testing.T) {
	s := office(officePeriod())
	s.assignments = []attendance.Assignment{assignment("a-1", 99, day(1))}

	rec := s.compute(day(3))

	assert.Equal(t, attendance.StatusDataIntegrity, rec.Status)
	require.NotNil(t, rec.ShiftID)
	assert.Equal(t, attendance.ShiftID(99), *rec.ShiftID)
	assert.True(t, rec.HasViolation(attendance.ViolationDataIntegrity))
}

func TestResolve_MissingPeriod_OtherPeriodsStillComputed(t *testing.T) {
	// GIVEN: A day with two periods, the second of which was deleted
	// WHEN: Calculating
	// THEN: The first period is classified; the second reports data_integrity_error

	morning := attendance.TimePeriod{
		ID: 1, Name: "Morning", Type: attendance.PeriodFixed,
		StartTime: attendance.Clock(8, 0), EndTime: attendance.Clock(12, 0),
		Rules: attendance.DefaultRules(),
	}
	s := &scenario{
		periods:     []attendance.TimePeriod{morning},
		shifts:      []attendance.Shift{dailyShift(1, 2)},
		assignments: []attendance.Assignment{assignment("a-1", 1, day(1))},
	}
	s.punches(signIn("in", at(3, 8, 0)), signOut("out", at(3, 12, 0)))

	rec := s.compute(day(3))

	require.Len(t, rec.Periods, 2)
	assert.Equal(t, attendance.StatusNormal, rec.Periods[0].Status)
	assert.Equal(t, attendance.StatusDataIntegrity, rec.Periods[1].Status)
	assert.Equal(t, attendance.StatusNormal, rec.Status)
	require.True(t, rec.HasViolation(attendance.ViolationDataIntegrity))
	assert.Equal(t, attendance.TimePeriodID(2), rec.Violations[0].PeriodID)
}

func TestResolve_AllPeriodsMissing_DayIsDataIntegrityError(t *testing.T) {
	s := &scenario{
		shifts:      []attendance.Shift{dailyShift(5)},
		assignments: []attendance.Assignment{assignment("a-1", 1, day(1))},
	}

	rec := s.compute(day(3))

	assert.Equal(t, attendance.StatusDataIntegrity, rec.Status)
	assert.Len(t, rec.Violations, 1)
}

func TestResolve_RestDayInCycle(t *testing.T) {
	// GIVEN: Two-day cycle working on day 1 only, assigned from the 1st
	// THEN: Odd dates are worked, even dates are rest

	shift := dailyShift(1)
	shift.CycleDays = 2
	s := office(officePeriod())
	s.shifts = []attendance.Shift{shift}

	assert.Equal(t, attendance.StatusAbsent, s.compute(day(3)).Status)

	rest := s.compute(day(4))
	assert.Equal(t, attendance.StatusRest, rest.Status)
	assert.True(t, rest.RequiredHours.IsZero())
	require.NotNil(t, rest.ShiftID)
}

func TestShift_DayOfCycle(t *testing.T) {
	shift := attendance.Shift{CycleDays: 7}

	assert.Equal(t, 1, shift.DayOfCycle(day(1), day(1)))
	assert.Equal(t, 7, shift.DayOfCycle(day(1), day(7)))
	assert.Equal(t, 1, shift.DayOfCycle(day(1), day(8)))
	assert.Equal(t, 3, shift.DayOfCycle(day(1), day(10)))
	assert.Equal(t, 7, shift.DayOfCycle(day(8), day(7)))
}

func TestResolve_PeriodsOrderedBySortOrder(t *testing.T) {
	shift := attendance.Shift{ID: 1, Name: "Split", CycleDays: 1, Periods: []attendance.ShiftPeriod{
		{PeriodID: 2, DayOfCycle: 1, SortOrder: 2, MustCheckIn: true, MustCheckOut: true},
		{PeriodID: 1, DayOfCycle: 1, SortOrder: 1, MustCheckIn: true, MustCheckOut: true},
	}}
	morning := attendance.TimePeriod{ID: 1, Name: "Morning", Type: attendance.PeriodFixed,
		StartTime: attendance.Clock(8, 0), EndTime: attendance.Clock(12, 0), Rules: attendance.DefaultRules()}
	afternoon := attendance.TimePeriod{ID: 2, Name: "Afternoon", Type: attendance.PeriodFixed,
		StartTime: attendance.Clock(13, 0), EndTime: attendance.Clock(17, 0), Rules: attendance.DefaultRules()}
	catalog := attendance.NewCatalog([]attendance.TimePeriod{afternoon, morning}, []attendance.Shift{shift})

	res := attendance.Resolve(emp, day(3), []attendance.Assignment{assignment("a-1", 1, day(1))}, catalog, time.UTC)

	require.Len(t, res.Periods, 2)
	assert.Equal(t, attendance.TimePeriodID(1), res.Periods[0].Period.ID)
	assert.Equal(t, attendance.TimePeriodID(2), res.Periods[1].Period.ID)
}

func TestResolve_OvernightWindowSpansNextDay(t *testing.T) {
	night := attendance.TimePeriod{ID: 1, Name: "Night", Type: attendance.PeriodFixed,
		StartTime: attendance.Clock(22, 0), EndTime: attendance.Clock(6, 0), Rules: attendance.DefaultRules()}
	night.RestStartTime = attendance.Clock(2, 0)
	night.RestEndTime = attendance.Clock(2, 30)
	catalog := attendance.NewCatalog([]attendance.TimePeriod{night}, []attendance.Shift{dailyShift(1)})

	res := attendance.Resolve(emp, day(3), []attendance.Assignment{assignment("a-1", 1, day(1))}, catalog, time.UTC)

	require.Len(t, res.Periods, 1)
	rp := res.Periods[0]
	assert.Equal(t, at(3, 22, 0), rp.Scheduled.Start)
	assert.Equal(t, at(4, 6, 0), rp.Scheduled.End)
	assert.Equal(t, at(4, 2, 0), rp.Rest.Start)
	assert.Equal(t, at(4, 2, 30), rp.Rest.End)
	assert.Equal(t, attendance.Interval{Start: at(3, 21, 0), End: at(4, 10, 0)}, res.Window())
}

func TestCatalog_DanglingReferences(t *testing.T) {
	catalog := attendance.NewCatalog([]attendance.TimePeriod{officePeriod()}, []attendance.Shift{dailyShift(1, 4)})

	dangling := catalog.DanglingReferences()

	require.Len(t, dangling, 1)
	assert.Equal(t, int64(4), dangling[0].ID)
	assert.True(t, errors.Is(dangling[0], attendance.ErrDataIntegrity))
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func TestCheckOverlap(t *testing.T) {
	end := day(9)
	closed := attendance.Assignment{ID: "a-1", EmployeeID: emp, ShiftID: 1, StartDate: day(1), EndDate: &end}

	after := assignment("a-2", 1, day(10))
	assert.NoError(t, attendance.CheckOverlap([]attendance.Assignment{closed}, after))

	touching := assignment("a-3", 1, day(9))
	err := attendance.CheckOverlap([]attendance.Assignment{closed}, touching)
	require.Error(t, err)
	assert.True(t, errors.Is(err, attendance.ErrAssignmentOverlap))

	other := assignment("a-4", 1, day(5))
	other.EmployeeID = "emp-2"
	assert.NoError(t, attendance.CheckOverlap([]attendance.Assignment{closed}, other))

	// Replacing an assignment does not conflict with its previous version.
	assert.NoError(t, attendance.CheckOverlap([]attendance.Assignment{closed}, closed))
}
