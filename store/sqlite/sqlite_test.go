package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/recalc"
	"github.com/warp/attendance-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func at(d, h, m int) time.Time { return time.Date(2025, time.March, d, h, m, 0, 0, time.UTC) }

func day(d int) attendance.Date { return attendance.NewDate(2025, time.March, d) }

func nightPeriod() attendance.TimePeriod {
	rules := attendance.DefaultRules()
	rules.MinWorkHours = attendance.Hours(7.5)
	rules.LateGraceMinutes = 5
	return attendance.TimePeriod{
		ID:            2,
		Name:          "Night",
		Type:          attendance.PeriodFixed,
		StartTime:     attendance.Clock(22, 0),
		EndTime:       attendance.Clock(6, 0),
		RestStartTime: attendance.Clock(2, 0),
		RestEndTime:   attendance.Clock(2, 30),
		Rules:         rules,
	}
}

func rotation() attendance.Shift {
	return attendance.Shift{
		ID: 7, Name: "Two on two off", CycleDays: 4,
		Periods: []attendance.ShiftPeriod{
			{PeriodID: 2, DayOfCycle: 1, MustCheckIn: true, MustCheckOut: true},
			{PeriodID: 2, DayOfCycle: 2, MustCheckIn: true, MustCheckOut: true},
		},
	}
}

// =============================================================================
// MIGRATIONS
// =============================================================================

func TestNew_MigratesOnceAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attendance.db")

	first, err := sqlite.New(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, first.SaveEmployee(context.Background(), attendance.Employee{ID: "emp-1", Name: "Ada"}))
	require.NoError(t, first.Close())

	second, err := sqlite.New(path, zap.NewNop())
	require.NoError(t, err, "running migrations again is a no-op")
	defer second.Close()

	employees, err := second.ListEmployees(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, employees, 1)
	assert.Equal(t, "Ada", employees[0].Name)
}

// =============================================================================
// CATALOG
// =============================================================================

func TestCatalog_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.SaveTimePeriod(ctx, nightPeriod()))
	require.NoError(t, s.SaveShift(ctx, rotation()))

	tp, err := s.GetTimePeriod(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Night", tp.Name)
	assert.True(t, tp.Overnight())
	assert.Equal(t, 5, tp.Rules.LateGraceMinutes)
	assert.True(t, tp.Rules.MinWorkHours.Decimal.Equal(decimal.RequireFromString("7.5")))

	sh, err := s.GetShift(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 4, sh.CycleDays)
	require.Len(t, sh.Periods, 2)
	assert.Equal(t, attendance.ShiftID(7), sh.Periods[1].ShiftID)

	catalog, err := s.Catalog(ctx)
	require.NoError(t, err)
	_, ok := catalog.Shift(7)
	assert.True(t, ok)
	assert.Empty(t, catalog.DanglingReferences())
}

func TestSaveShift_DanglingPeriodRejected(t *testing.T) {
	err := newStore(t).SaveShift(context.Background(), rotation())

	var dangling *attendance.DanglingReferenceError
	require.True(t, errors.As(err, &dangling))
	assert.Equal(t, int64(2), dangling.ID)
	assert.True(t, errors.Is(err, attendance.ErrDataIntegrity))
}

func TestDeleteTimePeriod_DoesNotCascade(t *testing.T) {
	// GIVEN: A shift referring to period 2
	// WHEN: Period 2 is deleted
	// THEN: The shift stays and the catalog reports the dangling reference

	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveTimePeriod(ctx, nightPeriod()))
	require.NoError(t, s.SaveShift(ctx, rotation()))

	require.NoError(t, s.DeleteTimePeriod(ctx, 2))

	catalog, err := s.Catalog(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, catalog.DanglingReferences())
	assert.True(t, attendance.IsNotFound(s.DeleteTimePeriod(ctx, 2)))
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func TestSaveAssignment_OverlapRejected(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	end := day(10)

	require.NoError(t, s.SaveAssignment(ctx, attendance.Assignment{ID: "a1", EmployeeID: "emp-1", ShiftID: 7, StartDate: day(1), EndDate: &end}))
	err := s.SaveAssignment(ctx, attendance.Assignment{ID: "a2", EmployeeID: "emp-1", ShiftID: 7, StartDate: day(10)})

	assert.True(t, errors.Is(err, attendance.ErrAssignmentOverlap))

	require.NoError(t, s.SaveAssignment(ctx, attendance.Assignment{ID: "a2", EmployeeID: "emp-1", ShiftID: 7, StartDate: day(11)}))
	require.NoError(t, s.SaveAssignment(ctx, attendance.Assignment{ID: "b1", EmployeeID: "emp-2", ShiftID: 7, StartDate: day(5)}))

	mine, err := s.ListAssignments(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "a1", mine[0].ID)
	require.NotNil(t, mine[0].EndDate)
	assert.Equal(t, end, *mine[0].EndDate)
	assert.Nil(t, mine[1].EndDate)

	all, err := s.ListAssignments(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// =============================================================================
// PUNCHES, LEAVE, CORRECTIONS
// =============================================================================

func TestClockEvents_WindowAndOrder(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	add := func(id string, when time.Time) {
		require.NoError(t, s.AppendClockEvent(ctx, attendance.ClockEvent{
			ID: id, EmployeeID: "emp-1", ClockTime: when, Type: attendance.PunchSignIn,
			Source: attendance.SourceDevice, Metadata: map[string]string{"device": "lobby"},
		}))
	}
	add("e3", at(3, 9, 0))
	add("e1", at(3, 8, 0))
	add("e2", at(3, 9, 0))
	add("e4", at(3, 10, 0).Add(time.Nanosecond))

	events, err := s.LoadClockEvents(ctx, "emp-1", at(3, 8, 0), at(3, 10, 0))

	require.NoError(t, err)
	require.Len(t, events, 3, "both bounds are inclusive; e4 is past the end")
	assert.Equal(t, []string{"e1", "e2", "e3"}, []string{events[0].ID, events[1].ID, events[2].ID})
	assert.Equal(t, "lobby", events[0].Metadata["device"])
	assert.True(t, events[0].ClockTime.Equal(at(3, 8, 0)))

	err = s.AppendClockEvent(ctx, attendance.ClockEvent{ID: "e1", EmployeeID: "emp-1", ClockTime: at(4, 8, 0), Type: attendance.PunchSignIn})
	assert.True(t, errors.Is(err, attendance.ErrDuplicateEvent))
}

func TestClockEvents_NonUTCInput(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	shanghai := time.FixedZone("CST", 8*3600)
	require.NoError(t, s.AppendClockEvent(ctx, attendance.ClockEvent{
		ID: "e1", EmployeeID: "emp-1", ClockTime: time.Date(2025, time.March, 3, 9, 0, 0, 0, shanghai), Type: attendance.PunchSignIn,
	}))

	events, err := s.LoadClockEvents(ctx, "emp-1", at(3, 0, 59), at(3, 1, 1))

	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestLoadLeave_Overlapping(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	save := func(id string, from, to time.Time, status attendance.LeaveStatus) {
		require.NoError(t, s.SaveLeave(ctx, attendance.LeaveRecord{
			ID: id, EmployeeID: "emp-1", Type: "annual", StartTime: from, EndTime: to,
			Status: status, CreatedAt: at(1, 0, 0), UpdatedAt: at(1, 0, 0),
		}))
	}
	save("before", at(2, 9, 0), at(3, 9, 0), attendance.LeaveApproved)
	save("inside", at(3, 12, 0), at(3, 13, 0), attendance.LeavePending)
	save("after", at(3, 18, 0), at(4, 18, 0), attendance.LeaveApproved)

	leaves, err := s.LoadLeave(ctx, "emp-1", at(3, 9, 0), at(3, 18, 0))

	require.NoError(t, err)
	require.Len(t, leaves, 1, "touching intervals do not overlap")
	assert.Equal(t, "inside", leaves[0].ID)
	assert.Equal(t, attendance.LeavePending, leaves[0].Status)

	l, err := s.GetLeave(ctx, "after")
	require.NoError(t, err)
	l.Status = attendance.LeaveCancelled
	require.NoError(t, s.SaveLeave(ctx, l))
	l, err = s.GetLeave(ctx, "after")
	require.NoError(t, err)
	assert.Equal(t, attendance.LeaveCancelled, l.Status)
}

func TestUpdateLeaveStatus_CompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveLeave(ctx, attendance.LeaveRecord{
		ID: "l1", EmployeeID: "emp-1", Type: "annual", StartTime: at(3, 9, 0), EndTime: at(3, 18, 0),
		Status: attendance.LeavePending, CreatedAt: at(1, 0, 0), UpdatedAt: at(1, 0, 0),
	}))

	require.NoError(t, s.UpdateLeaveStatus(ctx, "l1", attendance.LeavePending, attendance.LeaveRejected, at(2, 0, 0)))

	err := s.UpdateLeaveStatus(ctx, "l1", attendance.LeavePending, attendance.LeaveApproved, at(2, 0, 1))
	assert.True(t, errors.Is(err, attendance.ErrInvalidTransition), "got %v", err)
	l, err := s.GetLeave(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, attendance.LeaveRejected, l.Status)
	assert.Equal(t, at(2, 0, 0), l.UpdatedAt)

	err = s.UpdateLeaveStatus(ctx, "missing", attendance.LeavePending, attendance.LeaveApproved, at(2, 0, 0))
	assert.True(t, attendance.IsNotFound(err))
}

func TestCorrections_ByWorkDate(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	c := attendance.Correction{
		ID: "c1", EmployeeID: "emp-1", DailyRecordID: attendance.RecordID("emp-1", day(3)),
		WorkDate: day(3), CorrectionTime: at(4, 6, 0), Type: attendance.CorrectionCheckOut,
		Operator: "hr-1", Reason: "badge reader offline", CreatedAt: at(5, 10, 0),
	}
	require.NoError(t, s.AppendCorrection(ctx, c))

	got, err := s.LoadCorrections(ctx, "emp-1", day(3))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, c, got[0])

	none, err := s.LoadCorrections(ctx, "emp-1", day(4))
	require.NoError(t, err)
	assert.Empty(t, none, "corrections belong to their work date, not the punch date")

	assert.True(t, errors.Is(s.AppendCorrection(ctx, c), attendance.ErrDuplicateEvent))
}

// =============================================================================
// DAILY RECORDS AND SWEEPS
// =============================================================================

func TestReplaceDailyRecord_ReplacesWhole(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	rec := attendance.DailyRecord{
		ID: attendance.RecordID("emp-1", day(3)), EmployeeID: "emp-1", WorkDate: day(3),
		Status: attendance.StatusLate, LateMinutes: 15,
		Violations: []attendance.Violation{{Code: attendance.ViolationRule, Detail: attendance.DetailBelowMinHours, Message: "short"}},
	}
	require.NoError(t, s.ReplaceDailyRecord(ctx, rec))

	rec.Status = attendance.StatusNormal
	rec.LateMinutes = 0
	rec.Violations = nil
	require.NoError(t, s.ReplaceDailyRecord(ctx, rec))

	got, err := s.GetDailyRecord(ctx, "emp-1", day(3))
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusNormal, got.Status)
	assert.Zero(t, got.LateMinutes)
	assert.Empty(t, got.Violations, "nothing from the previous record survives")

	list, err := s.ListDailyRecords(ctx, attendance.RecordFilter{Status: attendance.StatusNormal, From: day(1), To: day(31)})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.GetDailyRecord(ctx, "emp-1", day(4))
	assert.True(t, attendance.IsNotFound(err))
}

func TestSweepRuns_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	r := attendance.DateRange{From: day(1), To: day(2)}
	require.NoError(t, s.SaveSweepRun(ctx, attendance.SweepRun{ID: "old", Trigger: attendance.TriggerScheduled, Range: r, StartedAt: at(3, 1, 0)}))
	require.NoError(t, s.SaveSweepRun(ctx, attendance.SweepRun{
		ID: "new", Trigger: attendance.TriggerManual, Range: r, StartedAt: at(4, 1, 0), FinishedAt: at(4, 1, 5),
		Units: 2, Failed: 1, Succeeded: 1,
		Failures: []attendance.SweepFailure{{EmployeeID: "emp-2", WorkDate: day(2), Error: "boom"}},
	}))

	runs, err := s.ListSweepRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, r, runs[0].Range)
	require.Len(t, runs[0].Failures, 1)
	assert.Equal(t, day(2), runs[0].Failures[0].WorkDate)
	assert.True(t, runs[1].FinishedAt.IsZero())

	limited, err := s.ListSweepRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// =============================================================================
// END TO END - Driver on SQLite
// =============================================================================

func TestDriver_OvernightOnSQLite(t *testing.T) {
	// GIVEN: A 22:00-06:00 rotation starting on the 3rd
	// WHEN: The employee signs in at 22:07 and out at 06:05 the next morning
	// THEN: The record for the 3rd is late by 2 minutes (grace 5) with the
	//       next-day sign-out matched

	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveTimePeriod(ctx, nightPeriod()))
	require.NoError(t, s.SaveShift(ctx, rotation()))
	require.NoError(t, s.SaveAssignment(ctx, attendance.Assignment{ID: "a1", EmployeeID: "emp-1", ShiftID: 7, StartDate: day(3)}))
	require.NoError(t, s.AppendClockEvent(ctx, attendance.ClockEvent{ID: "in", EmployeeID: "emp-1", ClockTime: at(3, 22, 7), Type: attendance.PunchSignIn}))
	require.NoError(t, s.AppendClockEvent(ctx, attendance.ClockEvent{ID: "out", EmployeeID: "emp-1", ClockTime: at(4, 6, 5), Type: attendance.PunchSignOut}))

	driver := recalc.NewDriver(s, recalc.DefaultConfig(), zap.NewNop())
	rec, err := driver.Recalculate(ctx, "emp-1", day(3))
	require.NoError(t, err)

	assert.Equal(t, attendance.StatusLate, rec.Status)
	assert.Equal(t, 2, rec.LateMinutes)
	require.NotNil(t, rec.CheckOutTime)
	assert.True(t, rec.CheckOutTime.Equal(at(4, 6, 5)))

	stored, err := s.GetDailyRecord(ctx, "emp-1", day(3))
	require.NoError(t, err)
	assert.Equal(t, rec.ID, stored.ID)
	assert.Equal(t, rec.Status, stored.Status)
	assert.True(t, rec.ActualHours.Equal(stored.ActualHours))

	rest, err := driver.Recalculate(ctx, "emp-1", day(5))
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusRest, rest.Status, "day 3 of the cycle has no periods")
}
