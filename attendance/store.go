/*
store.go - Persistence interfaces for the attendance engine

PURPOSE:
  Defines the boundary between the engine and its storage. The engine only
  reads catalog, assignments, punches, leave and corrections; the one write it
  performs is replacing a DailyRecord as a whole.

KEY INTERFACES:
  CatalogStore:    Time periods and shifts (catalog snapshot for resolution)
  AssignmentStore: Employee to shift bindings; rejects overlapping writes
  ClockStore:      Raw punches. Append-only
  LeaveStore:      Leave records and their lifecycle status
  CorrectionStore: Operator-supplied substitute punches. Append-only
  RecordStore:     Daily records. Replace-whole semantics, never merged
  EmployeeStore:   Minimal employee directory for batch sweeps
  SweepStore:      History of batch recalculation runs

REPLACE-WHOLE CONTRACT:
  ReplaceDailyRecord either stores the complete new record or leaves the old
  one untouched. Two concurrent recalculations of the same employee-day
  write identical records, so no locking is needed between them.

IMPLEMENTATIONS:
  - attendance/store/memory.go: In-memory for testing and the demo server
  - store/sqlite/sqlite.go: SQLite with embedded migrations

SEE ALSO:
  - recalc/driver.go: The only writer of daily records
*/
package attendance

import (
	"context"
	"time"
)

type CatalogStore interface {
	SaveTimePeriod(ctx context.Context, tp TimePeriod) error
	GetTimePeriod(ctx context.Context, id TimePeriodID) (TimePeriod, error)
	ListTimePeriods(ctx context.Context) ([]TimePeriod, error)

	// DeleteTimePeriod does not cascade. Shifts still referring to the period
	// surface as data integrity errors when calculated.
	DeleteTimePeriod(ctx context.Context, id TimePeriodID) error

	// SaveShift returns a *DanglingReferenceError when a position refers to a
	// time period that does not exist.
	SaveShift(ctx context.Context, s Shift) error
	GetShift(ctx context.Context, id ShiftID) (Shift, error)
	ListShifts(ctx context.Context) ([]Shift, error)
	DeleteShift(ctx context.Context, id ShiftID) error

	// Catalog returns a consistent snapshot of all periods and shifts.
	Catalog(ctx context.Context) (*Catalog, error)
}

type AssignmentStore interface {
	// SaveAssignment inserts or replaces an assignment. It returns an
	// *AssignmentOverlapError when the employee would have two active
	// assignments on the same date.
	SaveAssignment(ctx context.Context, a Assignment) error
	GetAssignment(ctx context.Context, id string) (Assignment, error)
	DeleteAssignment(ctx context.Context, id string) error
	ListAssignments(ctx context.Context, employeeID EmployeeID) ([]Assignment, error)
}

type ClockStore interface {
	// AppendClockEvent returns ErrDuplicateEvent when the id already exists.
	AppendClockEvent(ctx context.Context, e ClockEvent) error

	// LoadClockEvents returns punches with ClockTime in [from, to], ordered by
	// ClockTime then ID.
	LoadClockEvents(ctx context.Context, employeeID EmployeeID, from, to time.Time) ([]ClockEvent, error)
}

type LeaveStore interface {
	SaveLeave(ctx context.Context, l LeaveRecord) error
	GetLeave(ctx context.Context, id string) (LeaveRecord, error)
	ListLeave(ctx context.Context, employeeID EmployeeID) ([]LeaveRecord, error)

	// UpdateLeaveStatus moves leave id to status to only if it is still in
	// status from. Otherwise it returns ErrInvalidTransition.
	UpdateLeaveStatus(ctx context.Context, id string, from, to LeaveStatus, at time.Time) error

	// LoadLeave returns leave of any status overlapping [from, to).
	LoadLeave(ctx context.Context, employeeID EmployeeID, from, to time.Time) ([]LeaveRecord, error)
}

type CorrectionStore interface {
	// AppendCorrection stores evidence only. It never triggers calculation.
	AppendCorrection(ctx context.Context, c Correction) error
	LoadCorrections(ctx context.Context, employeeID EmployeeID, date Date) ([]Correction, error)
}

// RecordFilter selects daily records. Zero fields match everything.
type RecordFilter struct {
	EmployeeID EmployeeID
	From       Date
	To         Date
	Status     Status
}

func (f RecordFilter) Match(r DailyRecord) bool {
	if f.EmployeeID != "" && r.EmployeeID != f.EmployeeID {
		return false
	}
	if !f.From.IsZero() && r.WorkDate.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.WorkDate.After(f.To) {
		return false
	}
	return f.Status == "" || r.Status == f.Status
}

type RecordStore interface {
	// ReplaceDailyRecord stores rec as a whole, replacing any previous record
	// for the same employee and work date.
	ReplaceDailyRecord(ctx context.Context, rec DailyRecord) error
	GetDailyRecord(ctx context.Context, employeeID EmployeeID, date Date) (DailyRecord, error)

	// ListDailyRecords returns matching records ordered by work date then employee.
	ListDailyRecords(ctx context.Context, filter RecordFilter) ([]DailyRecord, error)
}

type EmployeeStore interface {
	SaveEmployee(ctx context.Context, e Employee) error

	// ListEmployees returns employees ordered by id. An empty departmentID
	// returns everyone.
	ListEmployees(ctx context.Context, departmentID string) ([]Employee, error)
}

// =============================================================================
// SWEEP RUNS - Batch recalculation history
// =============================================================================

type SweepTrigger string

const (
	TriggerScheduled SweepTrigger = "scheduled"
	TriggerManual    SweepTrigger = "manual"
)

// SweepFailure is one employee-day that could not be recalculated.
type SweepFailure struct {
	EmployeeID EmployeeID `json:"employee_id"`
	WorkDate   Date       `json:"work_date"`
	Error      string     `json:"error"`
}

type SweepRun struct {
	ID           string         `json:"id"`
	Trigger      SweepTrigger   `json:"trigger"`
	Range        DateRange      `json:"range"`
	DepartmentID string         `json:"department_id,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	Units        int            `json:"units"`
	Succeeded    int            `json:"succeeded"`
	Failed       int            `json:"failed"`
	Cancelled    bool           `json:"cancelled"`
	Failures     []SweepFailure `json:"failures,omitempty"`
}

type SweepStore interface {
	SaveSweepRun(ctx context.Context, run SweepRun) error

	// ListSweepRuns returns the most recent runs first.
	ListSweepRuns(ctx context.Context, limit int) ([]SweepRun, error)
}

// Store is everything the engine, its services and the API need.
type Store interface {
	CatalogStore
	AssignmentStore
	ClockStore
	LeaveStore
	CorrectionStore
	RecordStore
	EmployeeStore
	SweepStore
}
