package attendance

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS - Period and day classification
// =============================================================================

type Status string

const (
	StatusAbsent      Status = "absent"
	StatusMissingCard Status = "missing_card"
	StatusLate        Status = "late"
	StatusEarlyLeave  Status = "early_leave"
	StatusOnLeave     Status = "on_leave"
	StatusNormal      Status = "normal"
	StatusRest        Status = "rest"
	StatusNotRequired Status = "not_required"

	// Structural outcomes: nothing was calculated.
	StatusScheduleConflict Status = "schedule_conflict"
	StatusDataIntegrity    Status = "data_integrity_error"
)

// rank orders statuses for the day-level verdict. Late and early leave share
// a severity; late is listed first when both occur.
func (s Status) rank() int {
	switch s {
	case StatusAbsent:
		return 12
	case StatusMissingCard:
		return 10
	case StatusLate:
		return 9
	case StatusEarlyLeave:
		return 8
	case StatusOnLeave:
		return 6
	case StatusNormal:
		return 4
	case StatusRest, StatusNotRequired:
		return 2
	default:
		return 0
	}
}

// Severity returns the business severity of a status:
// absent > missing_card > late = early_leave > on_leave > normal > rest = not_required.
func (s Status) Severity() int { return s.rank() / 2 }

// Structural reports whether the status means the record could not be calculated.
func (s Status) Structural() bool {
	return s == StatusScheduleConflict || s == StatusDataIntegrity
}

// PunchStatus classifies one side (check-in or check-out) of a period.
type PunchStatus string

const (
	PunchOnTime          PunchStatus = "on_time"
	PunchLate            PunchStatus = "late"
	PunchEarlyLeave      PunchStatus = "early_leave"
	PunchMissingCheckIn  PunchStatus = "missing_checkin"
	PunchMissingCheckOut PunchStatus = "missing_checkout"
	PunchNotRequired     PunchStatus = "not_required"
	PunchOnLeave         PunchStatus = "on_leave"
)

func (p PunchStatus) Missing() bool {
	return p == PunchMissingCheckIn || p == PunchMissingCheckOut
}

// =============================================================================
// VIOLATIONS
// =============================================================================

type ViolationCode string

const (
	ViolationScheduleConflict ViolationCode = "schedule_conflict"
	ViolationDataIntegrity    ViolationCode = "data_integrity_error"
	ViolationRule             ViolationCode = "rule_violation"
)

// Rule violation details.
const (
	DetailBelowMinHours = "below_min_hours"
	DetailAboveMaxHours = "above_max_hours"
)

type Violation struct {
	Code     ViolationCode `json:"code"`
	PeriodID TimePeriodID  `json:"period_id,omitempty"`
	Detail   string        `json:"detail,omitempty"`
	Message  string        `json:"message"`
}

// =============================================================================
// DAILY RECORD - Authoritative verdict for one employee-day
// =============================================================================

// Punch is an accepted check-in or check-out with its provenance.
type Punch struct {
	At        time.Time `json:"at"`
	Source    string    `json:"source"`
	EventID   string    `json:"event_id"`
	Corrected bool      `json:"corrected"`
}

// PeriodResult is the classification of one resolved period.
type PeriodResult struct {
	PeriodID          TimePeriodID `json:"period_id"`
	PeriodName        string       `json:"period_name,omitempty"`
	DayOfCycle        int          `json:"day_of_cycle"`
	SortOrder         int          `json:"sort_order"`
	ScheduledStart    time.Time    `json:"scheduled_start"`
	ScheduledEnd      time.Time    `json:"scheduled_end"`
	CheckIn           *Punch       `json:"check_in,omitempty"`
	CheckOut          *Punch       `json:"check_out,omitempty"`
	CheckInStatus     PunchStatus  `json:"check_in_status"`
	CheckOutStatus    PunchStatus  `json:"check_out_status"`
	Status            Status       `json:"status"`
	LateMinutes       int          `json:"late_minutes"`
	EarlyLeaveMinutes int          `json:"early_leave_minutes"`
	AbsentMinutes     int          `json:"absent_minutes"`
	RequiredMinutes   int          `json:"required_minutes"`
	WorkedMinutes     int          `json:"worked_minutes"`
	LeaveMinutes      int          `json:"leave_minutes"`
}

// DailyRecord is created or replaced as a whole by one calculation.
type DailyRecord struct {
	ID                string          `json:"id"`
	EmployeeID        EmployeeID      `json:"employee_id"`
	WorkDate          Date            `json:"work_date"`
	ShiftID           *ShiftID        `json:"shift_id"`
	PeriodID          *TimePeriodID   `json:"period_id"`
	CheckInTime       *time.Time      `json:"check_in_time"`
	CheckOutTime      *time.Time      `json:"check_out_time"`
	CheckInCorrected  bool            `json:"check_in_corrected"`
	CheckOutCorrected bool            `json:"check_out_corrected"`
	Status            Status          `json:"status"`
	Outcomes          []Status        `json:"outcomes,omitempty"`
	LateMinutes       int             `json:"late_minutes"`
	EarlyLeaveMinutes int             `json:"early_leave_minutes"`
	AbsentMinutes     int             `json:"absent_minutes"`
	RequiredHours     decimal.Decimal `json:"required_hours"`
	ActualHours       decimal.Decimal `json:"actual_hours"`
	Periods           []PeriodResult  `json:"periods,omitempty"`
	Violations        []Violation     `json:"violations,omitempty"`
}

// HasViolation reports whether the record carries a violation with code.
func (r DailyRecord) HasViolation(code ViolationCode) bool {
	for _, v := range r.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:attendance:daily-record"))

// RecordID is the stable identifier of the record for (employee, date).
// Recalculating never changes it, so corrections can reference it before
// the first calculation runs.
func RecordID(employeeID EmployeeID, date Date) string {
	return uuid.NewSHA1(recordNamespace, []byte(string(employeeID)+"/"+date.String())).String()
}
