package recalc_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/attendance/store"
	"github.com/warp/attendance-engine/recalc"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func day(d int) attendance.Date { return attendance.NewDate(2025, time.March, d) }

func at(d, h, m int) time.Time { return time.Date(2025, time.March, d, h, m, 0, 0, time.UTC) }

// flakyStore fails record writes for selected employees.
type flakyStore struct {
	*store.Memory

	mu        sync.Mutex
	failures  map[attendance.EmployeeID]int // remaining failures, -1 forever
	failWith  error
	callCount map[attendance.EmployeeID]int
}

func (f *flakyStore) ReplaceDailyRecord(ctx context.Context, rec attendance.DailyRecord) error {
	f.mu.Lock()
	f.callCount[rec.EmployeeID]++
	n := f.failures[rec.EmployeeID]
	if n != 0 {
		if n > 0 {
			f.failures[rec.EmployeeID] = n - 1
		}
		f.mu.Unlock()
		return f.failWith
	}
	f.mu.Unlock()
	return f.Memory.ReplaceDailyRecord(ctx, rec)
}

func (f *flakyStore) calls(id attendance.EmployeeID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCount[id]
}

// officeStore holds a 09:00-18:00 daily shift for the given employees.
func officeStore(t *testing.T, employees ...attendance.EmployeeID) *store.Memory {
	t.Helper()
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.SaveTimePeriod(ctx, attendance.TimePeriod{
		ID:        1,
		Name:      "Office",
		Type:      attendance.PeriodFixed,
		StartTime: attendance.Clock(9, 0),
		EndTime:   attendance.Clock(18, 0),
		Rules:     attendance.DefaultRules(),
	}))
	require.NoError(t, m.SaveShift(ctx, attendance.Shift{
		ID: 1, Name: "Daily", CycleDays: 1,
		Periods: []attendance.ShiftPeriod{{ShiftID: 1, PeriodID: 1, DayOfCycle: 1, MustCheckIn: true, MustCheckOut: true}},
	}))
	for _, id := range employees {
		require.NoError(t, m.SaveEmployee(ctx, attendance.Employee{ID: id, DepartmentID: "ops"}))
		require.NoError(t, m.SaveAssignment(ctx, attendance.Assignment{
			ID: "a-" + string(id), EmployeeID: id, ShiftID: 1, StartDate: day(1),
		}))
	}
	return m
}

func punch(t *testing.T, s attendance.Store, id string, emp attendance.EmployeeID, typ attendance.PunchType, when time.Time) {
	t.Helper()
	require.NoError(t, s.AppendClockEvent(context.Background(), attendance.ClockEvent{
		ID: id, EmployeeID: emp, ClockTime: when, Type: typ, Source: attendance.SourceDevice,
	}))
}

func newDriver(s attendance.Store) *recalc.Driver {
	cfg := recalc.DefaultConfig()
	cfg.RetryBackoff = time.Millisecond
	d := recalc.NewDriver(s, cfg, zap.NewNop())
	d.Now = func() time.Time { return at(10, 3, 0) }
	return d
}

// =============================================================================
// RECALCULATE
// =============================================================================

func TestRecalculate_StoresRecord(t *testing.T) {
	ctx := context.Background()
	s := officeStore(t, "emp-1")
	punch(t, s, "e1", "emp-1", attendance.PunchSignIn, at(3, 8, 55))
	punch(t, s, "e2", "emp-1", attendance.PunchSignOut, at(3, 18, 2))

	rec, err := newDriver(s).Recalculate(ctx, "emp-1", day(3))

	require.NoError(t, err)
	assert.Equal(t, attendance.StatusNormal, rec.Status)
	stored, err := s.GetDailyRecord(ctx, "emp-1", day(3))
	require.NoError(t, err)
	assert.Equal(t, rec, stored)
}

func TestRecalculate_ReplacesWholeRecord(t *testing.T) {
	// GIVEN: A day calculated with only a sign-in
	// WHEN: The sign-out arrives and the day is recalculated
	// THEN: The new record replaces the old one entirely

	ctx := context.Background()
	s := officeStore(t, "emp-1")
	d := newDriver(s)
	punch(t, s, "e1", "emp-1", attendance.PunchSignIn, at(3, 9, 0))

	first, err := d.Recalculate(ctx, "emp-1", day(3))
	require.NoError(t, err)
	require.Equal(t, attendance.StatusMissingCard, first.Status)

	punch(t, s, "e2", "emp-1", attendance.PunchSignOut, at(3, 18, 0))
	second, err := d.Recalculate(ctx, "emp-1", day(3))
	require.NoError(t, err)

	assert.Equal(t, attendance.StatusNormal, second.Status)
	assert.Equal(t, first.ID, second.ID)
	records, err := s.ListDailyRecords(ctx, attendance.RecordFilter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRecalculate_CorrectionNeedsExplicitRecalculate(t *testing.T) {
	ctx := context.Background()
	s := officeStore(t, "emp-1")
	d := newDriver(s)
	punch(t, s, "e1", "emp-1", attendance.PunchSignIn, at(3, 9, 0))
	_, err := d.Recalculate(ctx, "emp-1", day(3))
	require.NoError(t, err)

	require.NoError(t, s.AppendCorrection(ctx, attendance.Correction{
		ID: "c1", EmployeeID: "emp-1", WorkDate: day(3), CorrectionTime: at(3, 18, 0),
		Type: attendance.CorrectionCheckOut, Operator: "hr-1", Reason: "forgot to punch",
	}))

	unchanged, err := s.GetDailyRecord(ctx, "emp-1", day(3))
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusMissingCard, unchanged.Status, "storing a correction never recalculates")

	rec, err := d.Recalculate(ctx, "emp-1", day(3))
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusNormal, rec.Status)
	assert.True(t, rec.CheckOutCorrected)
}

func TestRecalculate_Unscheduled(t *testing.T) {
	s := officeStore(t)

	rec, err := newDriver(s).Recalculate(context.Background(), "nobody", day(3))

	require.NoError(t, err)
	assert.Equal(t, attendance.StatusNotRequired, rec.Status)
}

func TestPreview_DoesNotStore(t *testing.T) {
	ctx := context.Background()
	s := officeStore(t, "emp-1")

	rec, err := newDriver(s).Preview(ctx, "emp-1", day(3))

	require.NoError(t, err)
	assert.Equal(t, attendance.StatusAbsent, rec.Status)
	_, err = s.GetDailyRecord(ctx, "emp-1", day(3))
	assert.True(t, attendance.IsNotFound(err))
}

func TestRecalculate_RetriesTransientFailures(t *testing.T) {
	// GIVEN: A store that is unavailable for the first two writes
	// WHEN: Recalculating with three attempts
	// THEN: The third attempt succeeds

	fs := &flakyStore{
		Memory:    officeStore(t, "emp-1"),
		failures:  map[attendance.EmployeeID]int{"emp-1": 2},
		failWith:  fmt.Errorf("write: %w", attendance.ErrStoreUnavailable),
		callCount: map[attendance.EmployeeID]int{},
	}

	_, err := newDriver(fs).Recalculate(context.Background(), "emp-1", day(3))

	require.NoError(t, err)
	assert.Equal(t, 3, fs.calls("emp-1"))
}

func TestRecalculate_GivesUpAfterAttempts(t *testing.T) {
	fs := &flakyStore{
		Memory:    officeStore(t, "emp-1"),
		failures:  map[attendance.EmployeeID]int{"emp-1": -1},
		failWith:  attendance.ErrStoreUnavailable,
		callCount: map[attendance.EmployeeID]int{},
	}

	_, err := newDriver(fs).Recalculate(context.Background(), "emp-1", day(3))

	require.Error(t, err)
	assert.True(t, attendance.IsRetryable(err))
	assert.Equal(t, 3, fs.calls("emp-1"))
}

func TestRecalculate_PermanentFailureNotRetried(t *testing.T) {
	fs := &flakyStore{
		Memory:    officeStore(t, "emp-1"),
		failures:  map[attendance.EmployeeID]int{"emp-1": -1},
		failWith:  errors.New("disk full"),
		callCount: map[attendance.EmployeeID]int{},
	}

	_, err := newDriver(fs).Recalculate(context.Background(), "emp-1", day(3))

	require.Error(t, err)
	assert.Equal(t, 1, fs.calls("emp-1"))
}

// =============================================================================
// SWEEP
// =============================================================================

func TestSweep_RecalculatesEveryEmployeeDay(t *testing.T) {
	ctx := context.Background()
	s := officeStore(t, "emp-1", "emp-2")
	punch(t, s, "e1", "emp-1", attendance.PunchSignIn, at(4, 9, 0))
	punch(t, s, "e2", "emp-1", attendance.PunchSignOut, at(4, 18, 0))

	run, err := newDriver(s).Sweep(ctx, recalc.SweepRequest{
		Range: attendance.DateRange{From: day(3), To: day(5)},
	})

	require.NoError(t, err)
	assert.Equal(t, 6, run.Units)
	assert.Equal(t, 6, run.Succeeded)
	assert.Equal(t, attendance.TriggerManual, run.Trigger)
	assert.False(t, run.Cancelled)

	records, err := s.ListDailyRecords(ctx, attendance.RecordFilter{})
	require.NoError(t, err)
	assert.Len(t, records, 6)

	rec, err := s.GetDailyRecord(ctx, "emp-1", day(4))
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusNormal, rec.Status)

	runs, err := s.ListSweepRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestSweep_FailuresDoNotStopOtherUnits(t *testing.T) {
	// GIVEN: Writes for emp-2 always fail
	// WHEN: Sweeping two days for two employees
	// THEN: emp-1 is recalculated and emp-2's days are reported in order

	fs := &flakyStore{
		Memory:    officeStore(t, "emp-1", "emp-2"),
		failures:  map[attendance.EmployeeID]int{"emp-2": -1},
		failWith:  errors.New("constraint failed"),
		callCount: map[attendance.EmployeeID]int{},
	}

	run, err := newDriver(fs).Sweep(context.Background(), recalc.SweepRequest{
		Range: attendance.DateRange{From: day(3), To: day(4)},
	})

	require.NoError(t, err)
	assert.Equal(t, 4, run.Units)
	assert.Equal(t, 2, run.Succeeded)
	assert.Equal(t, 2, run.Failed)
	require.Len(t, run.Failures, 2)
	assert.Equal(t, day(3), run.Failures[0].WorkDate)
	assert.Equal(t, day(4), run.Failures[1].WorkDate)
	assert.Equal(t, attendance.EmployeeID("emp-2"), run.Failures[0].EmployeeID)
}

func TestSweep_ExplicitEmployees(t *testing.T) {
	ctx := context.Background()
	s := officeStore(t, "emp-1", "emp-2")

	run, err := newDriver(s).Sweep(ctx, recalc.SweepRequest{
		Range:       attendance.DateRange{From: day(3), To: day(3)},
		EmployeeIDs: []attendance.EmployeeID{"emp-2"},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, run.Units)
	_, err = s.GetDailyRecord(ctx, "emp-1", day(3))
	assert.True(t, attendance.IsNotFound(err))
}

func TestSweep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := officeStore(t, "emp-1")

	run, err := newDriver(s).Sweep(ctx, recalc.SweepRequest{
		Range: attendance.DateRange{From: day(3), To: day(9)},
	})

	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, run.Cancelled)
	assert.Zero(t, run.Failed)

	runs, err := s.ListSweepRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1, "a cancelled sweep is still recorded")
	assert.True(t, runs[0].Cancelled)
}

func TestSweep_InvalidRange(t *testing.T) {
	_, err := newDriver(officeStore(t)).Sweep(context.Background(), recalc.SweepRequest{
		Range: attendance.DateRange{From: day(5), To: day(3)},
	})

	assert.True(t, errors.Is(err, attendance.ErrInvalidConfig))
}

// =============================================================================
// SCHEDULER
// =============================================================================

type fakeLocker struct {
	granted  bool
	released int
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	if !l.granted {
		return nil, false, nil
	}
	return func() { l.released++ }, true, nil
}

func TestScheduler_LookbackRangeExcludesToday(t *testing.T) {
	sched := recalc.NewScheduler(newDriver(officeStore(t)), zap.NewNop())
	sched.LookbackDays = 3

	r := sched.LookbackRange(at(10, 0, 30))

	assert.Equal(t, day(7), r.From)
	assert.Equal(t, day(9), r.To)
}

func TestScheduler_RunNowSweepsLookback(t *testing.T) {
	ctx := context.Background()
	s := officeStore(t, "emp-1")
	locker := &fakeLocker{granted: true}
	sched := recalc.NewScheduler(newDriver(s), zap.NewNop())
	sched.Locker = locker

	run, ran, err := sched.RunNow(ctx)

	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, attendance.TriggerScheduled, run.Trigger)
	assert.Equal(t, attendance.DateRange{From: day(8), To: day(9)}, run.Range)
	assert.Equal(t, 2, run.Succeeded)
	assert.Equal(t, 1, locker.released)
}

func TestScheduler_SkipsWhenLockHeldElsewhere(t *testing.T) {
	s := officeStore(t, "emp-1")
	sched := recalc.NewScheduler(newDriver(s), zap.NewNop())
	sched.Locker = &fakeLocker{granted: false}

	_, ran, err := sched.RunNow(context.Background())

	require.NoError(t, err)
	assert.False(t, ran)
	runs, _ := s.ListSweepRuns(context.Background(), 10)
	assert.Empty(t, runs)
}

func TestScheduler_StartStop(t *testing.T) {
	s := officeStore(t, "emp-1")
	sched := recalc.NewScheduler(newDriver(s), zap.NewNop())
	sched.Interval = time.Hour

	sched.Start()
	require.Eventually(t, func() bool {
		runs, _ := s.ListSweepRuns(context.Background(), 10)
		return len(runs) == 1
	}, time.Second, 10*time.Millisecond, "the first sweep runs on start")
	sched.Stop()
	sched.Stop()
}
