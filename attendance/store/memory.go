// Package store provides in-memory attendance.Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	periods     map[attendance.TimePeriodID]attendance.TimePeriod
	shifts      map[attendance.ShiftID]attendance.Shift
	assignments map[string]attendance.Assignment
	events      map[attendance.EmployeeID][]attendance.ClockEvent
	eventIDs    map[string]bool
	leaves      map[string]attendance.LeaveRecord
	corrections map[string]attendance.Correction
	records     map[recordKey]attendance.DailyRecord
	employees   map[attendance.EmployeeID]attendance.Employee
	sweeps      []attendance.SweepRun
}

type recordKey struct {
	EmployeeID attendance.EmployeeID
	WorkDate   attendance.Date
}

var _ attendance.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		periods:     make(map[attendance.TimePeriodID]attendance.TimePeriod),
		shifts:      make(map[attendance.ShiftID]attendance.Shift),
		assignments: make(map[string]attendance.Assignment),
		events:      make(map[attendance.EmployeeID][]attendance.ClockEvent),
		eventIDs:    make(map[string]bool),
		leaves:      make(map[string]attendance.LeaveRecord),
		corrections: make(map[string]attendance.Correction),
		records:     make(map[recordKey]attendance.DailyRecord),
		employees:   make(map[attendance.EmployeeID]attendance.Employee),
	}
}

// Reset clears all data.
func (m *Memory) Reset(_ context.Context) error {
	fresh := NewMemory()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.periods, m.shifts, m.assignments = fresh.periods, fresh.shifts, fresh.assignments
	m.events, m.eventIDs, m.leaves = fresh.events, fresh.eventIDs, fresh.leaves
	m.corrections, m.records, m.employees = fresh.corrections, fresh.records, fresh.employees
	m.sweeps = nil
	return nil
}

// =============================================================================
// CATALOG
// =============================================================================

func (m *Memory) SaveTimePeriod(_ context.Context, tp attendance.TimePeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.periods[tp.ID] = tp
	return nil
}

func (m *Memory) GetTimePeriod(_ context.Context, id attendance.TimePeriodID) (attendance.TimePeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tp, ok := m.periods[id]
	if !ok {
		return attendance.TimePeriod{}, attendance.ErrNotFound
	}
	return tp, nil
}

func (m *Memory) ListTimePeriods(_ context.Context) ([]attendance.TimePeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]attendance.TimePeriod, 0, len(m.periods))
	for _, tp := range m.periods {
		out = append(out, tp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DeleteTimePeriod(_ context.Context, id attendance.TimePeriodID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.periods[id]; !ok {
		return attendance.ErrNotFound
	}
	delete(m.periods, id)
	return nil
}

func (m *Memory) SaveShift(_ context.Context, s attendance.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check all references first, then write.
	for _, sp := range s.Periods {
		if _, ok := m.periods[sp.PeriodID]; !ok {
			return &attendance.DanglingReferenceError{
				Kind:     "time_period",
				ID:       int64(sp.PeriodID),
				Referrer: "shift " + s.Name,
			}
		}
	}
	s.Periods = append([]attendance.ShiftPeriod(nil), s.Periods...)
	for i := range s.Periods {
		s.Periods[i].ShiftID = s.ID
	}
	m.shifts[s.ID] = s
	return nil
}

func (m *Memory) GetShift(_ context.Context, id attendance.ShiftID) (attendance.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.shifts[id]
	if !ok {
		return attendance.Shift{}, attendance.ErrNotFound
	}
	s.Periods = append([]attendance.ShiftPeriod(nil), s.Periods...)
	return s, nil
}

func (m *Memory) ListShifts(_ context.Context) ([]attendance.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]attendance.Shift, 0, len(m.shifts))
	for _, s := range m.shifts {
		s.Periods = append([]attendance.ShiftPeriod(nil), s.Periods...)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DeleteShift(_ context.Context, id attendance.ShiftID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shifts[id]; !ok {
		return attendance.ErrNotFound
	}
	delete(m.shifts, id)
	return nil
}

func (m *Memory) Catalog(ctx context.Context) (*attendance.Catalog, error) {
	periods, _ := m.ListTimePeriods(ctx)
	shifts, _ := m.ListShifts(ctx)
	return attendance.NewCatalog(periods, shifts), nil
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func (m *Memory) SaveAssignment(_ context.Context, a attendance.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := make([]attendance.Assignment, 0)
	for _, other := range m.assignments {
		if other.EmployeeID == a.EmployeeID {
			existing = append(existing, other)
		}
	}
	if err := attendance.CheckOverlap(existing, a); err != nil {
		return err
	}
	m.assignments[a.ID] = a
	return nil
}

func (m *Memory) GetAssignment(_ context.Context, id string) (attendance.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assignments[id]
	if !ok {
		return attendance.Assignment{}, attendance.ErrNotFound
	}
	return a, nil
}

func (m *Memory) DeleteAssignment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assignments[id]; !ok {
		return attendance.ErrNotFound
	}
	delete(m.assignments, id)
	return nil
}

func (m *Memory) ListAssignments(_ context.Context, employeeID attendance.EmployeeID) ([]attendance.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []attendance.Assignment
	for _, a := range m.assignments {
		if employeeID == "" || a.EmployeeID == employeeID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Seed inserts an assignment without the overlap check. Tests use it to
// reproduce conflicting data written by systems that bypass the store.
func (m *Memory) Seed(a attendance.Assignment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[a.ID] = a
}

// =============================================================================
// CLOCK EVENTS - Append-only, kept sorted per employee
// =============================================================================

func (m *Memory) AppendClockEvent(_ context.Context, e attendance.ClockEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.eventIDs[e.ID] {
		return attendance.ErrDuplicateEvent
	}
	events := m.events[e.EmployeeID]

	// Binary search for insertion point.
	i := sort.Search(len(events), func(i int) bool {
		if events[i].ClockTime.Equal(e.ClockTime) {
			return events[i].ID > e.ID
		}
		return events[i].ClockTime.After(e.ClockTime)
	})
	events = append(events, attendance.ClockEvent{})
	copy(events[i+1:], events[i:])
	events[i] = e
	m.events[e.EmployeeID] = events
	m.eventIDs[e.ID] = true
	return nil
}

func (m *Memory) LoadClockEvents(_ context.Context, employeeID attendance.EmployeeID, from, to time.Time) ([]attendance.ClockEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []attendance.ClockEvent
	for _, e := range m.events[employeeID] {
		if !e.ClockTime.Before(from) && !e.ClockTime.After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

// =============================================================================
// LEAVE
// =============================================================================

func (m *Memory) SaveLeave(_ context.Context, l attendance.LeaveRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaves[l.ID] = l
	return nil
}

func (m *Memory) UpdateLeaveStatus(_ context.Context, id string, from, to attendance.LeaveStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leaves[id]
	if !ok {
		return attendance.ErrNotFound
	}
	if l.Status != from {
		return fmt.Errorf("%w: leave %s is %s, not %s", attendance.ErrInvalidTransition, id, l.Status, from)
	}
	l.Status = to
	l.UpdatedAt = at
	m.leaves[id] = l
	return nil
}

func (m *Memory) GetLeave(_ context.Context, id string) (attendance.LeaveRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.leaves[id]
	if !ok {
		return attendance.LeaveRecord{}, attendance.ErrNotFound
	}
	return l, nil
}

func (m *Memory) ListLeave(_ context.Context, employeeID attendance.EmployeeID) ([]attendance.LeaveRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []attendance.LeaveRecord
	for _, l := range m.leaves {
		if employeeID == "" || l.EmployeeID == employeeID {
			out = append(out, l)
		}
	}
	sortLeave(out)
	return out, nil
}

func (m *Memory) LoadLeave(_ context.Context, employeeID attendance.EmployeeID, from, to time.Time) ([]attendance.LeaveRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []attendance.LeaveRecord
	for _, l := range m.leaves {
		if l.EmployeeID == employeeID && l.StartTime.Before(to) && l.EndTime.After(from) {
			out = append(out, l)
		}
	}
	sortLeave(out)
	return out, nil
}

func sortLeave(ls []attendance.LeaveRecord) {
	sort.Slice(ls, func(i, j int) bool {
		if !ls[i].StartTime.Equal(ls[j].StartTime) {
			return ls[i].StartTime.Before(ls[j].StartTime)
		}
		return ls[i].ID < ls[j].ID
	})
}

// =============================================================================
// CORRECTIONS - Append-only
// =============================================================================

func (m *Memory) AppendCorrection(_ context.Context, c attendance.Correction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.corrections[c.ID]; ok {
		return attendance.ErrDuplicateEvent
	}
	m.corrections[c.ID] = c
	return nil
}

func (m *Memory) LoadCorrections(_ context.Context, employeeID attendance.EmployeeID, date attendance.Date) ([]attendance.Correction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []attendance.Correction
	for _, c := range m.corrections {
		if c.EmployeeID == employeeID && c.WorkDate.Equal(date) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CorrectionTime.Equal(out[j].CorrectionTime) {
			return out[i].CorrectionTime.Before(out[j].CorrectionTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// DAILY RECORDS - Replace whole
// =============================================================================

func (m *Memory) ReplaceDailyRecord(_ context.Context, rec attendance.DailyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordKey{rec.EmployeeID, rec.WorkDate}] = rec
	return nil
}

func (m *Memory) GetDailyRecord(_ context.Context, employeeID attendance.EmployeeID, date attendance.Date) (attendance.DailyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[recordKey{employeeID, date}]
	if !ok {
		return attendance.DailyRecord{}, attendance.ErrNotFound
	}
	return rec, nil
}

func (m *Memory) ListDailyRecords(_ context.Context, filter attendance.RecordFilter) ([]attendance.DailyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []attendance.DailyRecord
	for _, rec := range m.records {
		if filter.Match(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].WorkDate.Equal(out[j].WorkDate) {
			return out[i].WorkDate.Before(out[j].WorkDate)
		}
		return out[i].EmployeeID < out[j].EmployeeID
	})
	return out, nil
}

// =============================================================================
// EMPLOYEES AND SWEEPS
// =============================================================================

func (m *Memory) SaveEmployee(_ context.Context, e attendance.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[e.ID] = e
	return nil
}

func (m *Memory) ListEmployees(_ context.Context, departmentID string) ([]attendance.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []attendance.Employee
	for _, e := range m.employees {
		if departmentID == "" || e.DepartmentID == departmentID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveSweepRun(_ context.Context, run attendance.SweepRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sweeps {
		if m.sweeps[i].ID == run.ID {
			m.sweeps[i] = run
			return nil
		}
	}
	m.sweeps = append(m.sweeps, run)
	return nil
}

func (m *Memory) ListSweepRuns(_ context.Context, limit int) ([]attendance.SweepRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]attendance.SweepRun, 0, len(m.sweeps))
	for i := len(m.sweeps) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.sweeps[i])
	}
	return out, nil
}
