/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Catalog:
    Time periods and shifts use factory.TimePeriodJSON / factory.ShiftJSON
    directly, so the API accepts exactly what the catalog loader accepts.

  Employees and assignments:
    EmployeeDTO, CreateEmployeeRequest, AssignmentDTO, CreateAssignmentRequest

  Evidence:
    ClockEventDTO, ClockEventRequest, CorrectionDTO, CorrectionRequest

  Leave:
    LeaveDTO, SubmitLeaveRequest, LeaveActionRequest, LeaveActionResponse

  Calculation:
    RecalculateRequest, RecalculateAcceptedResponse, ResolutionDTO, SweepRequest

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request types carry validator tags and are checked with
  attendance.Validate, so a bad request yields the same field-level error
  shape as a bad catalog write. Dates travel as YYYY-MM-DD strings.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/catalog.go: TimePeriodJSON and ShiftJSON
*/
package api

import (
	"time"

	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// EMPLOYEES AND ASSIGNMENTS
// =============================================================================

type EmployeeDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DepartmentID string `json:"department_id,omitempty"`
	CreatedAt    string `json:"created_at"`
}

type CreateEmployeeRequest struct {
	ID           string `json:"id" validate:"required,max=64"`
	Name         string `json:"name" validate:"required,max=128"`
	DepartmentID string `json:"department_id" validate:"max=64"`
}

type AssignmentDTO struct {
	ID         string  `json:"id"`
	EmployeeID string  `json:"employee_id"`
	ShiftID    int64   `json:"shift_id"`
	StartDate  string  `json:"start_date"`
	EndDate    *string `json:"end_date"`
}

// CreateAssignmentRequest replaces the assignment when ID already exists.
// An empty ID creates a new assignment.
type CreateAssignmentRequest struct {
	ID         string  `json:"id"`
	EmployeeID string  `json:"employee_id" validate:"required"`
	ShiftID    int64   `json:"shift_id" validate:"gt=0"`
	StartDate  string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate    *string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

// =============================================================================
// EVIDENCE - Punches and corrections
// =============================================================================

type ClockEventDTO struct {
	ID         string            `json:"id"`
	EmployeeID string            `json:"employee_id"`
	ClockTime  time.Time         `json:"clock_time"`
	Type       string            `json:"type"`
	Source     string            `json:"source"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type ClockEventRequest struct {
	ID         string            `json:"id"`
	EmployeeID string            `json:"employee_id" validate:"required"`
	ClockTime  time.Time         `json:"clock_time" validate:"required"`
	Type       string            `json:"type" validate:"oneof=sign_in sign_out"`
	Source     string            `json:"source" validate:"max=32"`
	Metadata   map[string]string `json:"metadata"`
}

type CorrectionDTO struct {
	ID             string    `json:"id"`
	EmployeeID     string    `json:"employee_id"`
	DailyRecordID  string    `json:"daily_record_id"`
	WorkDate       string    `json:"work_date"`
	CorrectionTime time.Time `json:"correction_time"`
	Type           string    `json:"type"`
	Operator       string    `json:"operator"`
	Reason         string    `json:"reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type CorrectionRequest struct {
	EmployeeID     string    `json:"employee_id" validate:"required"`
	WorkDate       string    `json:"work_date" validate:"required,datetime=2006-01-02"`
	CorrectionTime time.Time `json:"correction_time" validate:"required"`
	Type           string    `json:"type" validate:"oneof=check_in check_out"`
	Operator       string    `json:"operator" validate:"required,max=64"`
	Reason         string    `json:"reason" validate:"max=500"`
}

// =============================================================================
// LEAVE
// =============================================================================

type LeaveDTO struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employee_id"`
	Type       string    `json:"type"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type SubmitLeaveRequest struct {
	EmployeeID string    `json:"employee_id"`
	Type       string    `json:"type"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Reason     string    `json:"reason"`
}

type LeaveActionRequest struct {
	Actor  string `json:"actor" validate:"required,max=64"`
	Reason string `json:"reason" validate:"max=500"`
}

// LeaveActionResponse tells the caller which work dates to recalculate.
// Leave changes never recalculate on their own.
type LeaveActionResponse struct {
	Leave         LeaveDTO              `json:"leave"`
	AffectedDates *attendance.DateRange `json:"affected_dates,omitempty"`
}

// =============================================================================
// CALCULATION
// =============================================================================

type RecalculateRequest struct {
	EmployeeID string `json:"employee_id" validate:"required"`
	WorkDate   string `json:"work_date" validate:"required,datetime=2006-01-02"`
}

type RecalculateAcceptedResponse struct {
	EmployeeID string `json:"employee_id"`
	WorkDate   string `json:"work_date"`
	Status     string `json:"status"`
}

type WindowDTO struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type ResolvedPeriodDTO struct {
	PeriodID       int64      `json:"period_id"`
	PeriodName     string     `json:"period_name,omitempty"`
	SortOrder      int        `json:"sort_order"`
	MustCheckIn    bool       `json:"must_check_in"`
	MustCheckOut   bool       `json:"must_check_out"`
	Scheduled      *WindowDTO `json:"scheduled,omitempty"`
	CheckInWindow  *WindowDTO `json:"check_in_window,omitempty"`
	CheckOutWindow *WindowDTO `json:"check_out_window,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// ResolutionDTO is the expected schedule of one employee-day.
type ResolutionDTO struct {
	Kind         string              `json:"kind"`
	EmployeeID   string              `json:"employee_id"`
	WorkDate     string              `json:"work_date"`
	AssignmentID string              `json:"assignment_id,omitempty"`
	ShiftID      int64               `json:"shift_id,omitempty"`
	DayOfCycle   int                 `json:"day_of_cycle,omitempty"`
	Periods      []ResolvedPeriodDTO `json:"periods"`
	Error        string              `json:"error,omitempty"`
}

type SweepRequest struct {
	From         string   `json:"from" validate:"required,datetime=2006-01-02"`
	To           string   `json:"to" validate:"required,datetime=2006-01-02"`
	DepartmentID string   `json:"department_id"`
	EmployeeIDs  []string `json:"employee_ids"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

type FieldErrorDTO struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}
