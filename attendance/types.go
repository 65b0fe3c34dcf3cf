/*
Package attendance provides the daily attendance calculation engine.

PURPOSE:
  Turns an employee's schedule (shift, time periods, assignment), raw clock
  punches, approved leave and operator corrections into one authoritative
  DailyRecord per employee and work date. Everything downstream (payroll
  exports, reports) reads those records.

KEY CONCEPTS IN THIS FILE (types.go):
  - EmployeeID: Type-safe employee identifier
  - ClockEvent: An immutable raw punch (sign_in / sign_out)
  - LeaveRecord: An absence interval with an approval status
  - Correction: An operator-supplied substitute punch

DESIGN PRINCIPLES:
  1. Purity: Calculator.Compute performs no I/O and holds no state
  2. Determinism: identical inputs produce byte-identical records
  3. Append-only inputs: punches and corrections are never mutated
  4. Whole-record output: a record is replaced, never patched

USAGE:
  res := attendance.Resolve("emp-1", day, assignments, catalog, loc)
  rec := attendance.Calculator{}.Compute(attendance.Input{
      EmployeeID:  "emp-1",
      WorkDate:    day,
      Resolution:  res,
      Events:      events,
      Leaves:      leaves,
      Corrections: corrections,
  })

SEE ALSO:
  - period.go: TimePeriod and its punch rules
  - shift.go: Shift cycles and the Catalog arena
  - resolve.go: Shift resolution for a work date
  - calculator.go: The engine
  - store.go: Persistence interfaces used by the recalculation driver
*/
package attendance

import (
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string

// Employee is the minimal view of an employee the sweep needs.
// Employee management itself lives outside this system.
type Employee struct {
	ID           EmployeeID
	Name         string
	DepartmentID string
	CreatedAt    time.Time
}

// =============================================================================
// CLOCK EVENT - Raw punch (append-only)
// =============================================================================

type PunchType string

const (
	PunchSignIn  PunchType = "sign_in"
	PunchSignOut PunchType = "sign_out"
)

func (p PunchType) Valid() bool { return p == PunchSignIn || p == PunchSignOut }

// Punch sources. Anything else is accepted and stored verbatim.
const (
	SourceDevice     = "device"
	SourceApp        = "app"
	SourceWeb        = "web"
	SourceCorrection = "correction"
)

type ClockEvent struct {
	ID         string
	EmployeeID EmployeeID
	ClockTime  time.Time
	Type       PunchType
	Source     string
	Metadata   map[string]string
}

// =============================================================================
// LEAVE RECORD - Absence interval
// =============================================================================

type LeaveStatus string

const (
	LeavePending   LeaveStatus = "pending"
	LeaveApproved  LeaveStatus = "approved"
	LeaveRejected  LeaveStatus = "rejected"
	LeaveCancelled LeaveStatus = "cancelled"
)

type LeaveRecord struct {
	ID         string
	EmployeeID EmployeeID
	Type       string
	StartTime  time.Time
	EndTime    time.Time
	Status     LeaveStatus
	Reason     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (l LeaveRecord) Interval() Interval { return Interval{Start: l.StartTime, End: l.EndTime} }

// Overlaps reports whether two leave intervals share any instant.
func (l LeaveRecord) Overlaps(o LeaveRecord) bool {
	return l.StartTime.Before(o.EndTime) && o.StartTime.Before(l.EndTime)
}

// =============================================================================
// CORRECTION - Operator-supplied substitute punch
// =============================================================================

type CorrectionType string

const (
	CorrectionCheckIn  CorrectionType = "check_in"
	CorrectionCheckOut CorrectionType = "check_out"
)

func (c CorrectionType) Valid() bool { return c == CorrectionCheckIn || c == CorrectionCheckOut }

// Correction is evidence for a later, explicitly requested recalculation.
// Storing one never recalculates anything.
type Correction struct {
	ID             string
	EmployeeID     EmployeeID
	DailyRecordID  string
	WorkDate       Date
	CorrectionTime time.Time
	Type           CorrectionType
	Operator       string
	Reason         string
	CreatedAt      time.Time
}

// punchType maps a correction onto the clock event type it stands in for.
func (c Correction) punchType() PunchType {
	if c.Type == CorrectionCheckOut {
		return PunchSignOut
	}
	return PunchSignIn
}
