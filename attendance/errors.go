/*
errors.go - Centralized error types for the attendance engine

PURPOSE:
  All error types in one place. Structural errors (schedule conflicts,
  dangling references) are both returned by writers and recorded as
  violations on DailyRecords; business outcomes such as "late" or "absent"
  are never errors.

ERROR CATEGORIES:
  1. Structural errors - schedule_conflict, data_integrity_error
  2. Validation errors - invalid catalog configuration at write time
  3. Store errors - missing rows, overlaps, unavailable backends

USAGE:
  if errors.Is(err, attendance.ErrAssignmentOverlap) {
      // reject the assignment write
  }
*/
package attendance

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrScheduleConflict is returned when more than one assignment is active
	// for the same employee and date.
	ErrScheduleConflict = errors.New("schedule conflict")

	// ErrDataIntegrity is returned when a shift or time period referenced by
	// another record does not exist.
	ErrDataIntegrity = errors.New("data integrity error")

	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig is returned when a time period, shift or assignment
	// fails write-time validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrAssignmentOverlap is returned when an assignment write would make two
	// assignments active on the same date.
	ErrAssignmentOverlap = errors.New("assignment overlaps an existing assignment")

	// ErrLeaveOverlap is returned when approving a leave that overlaps another
	// approved leave of the same employee.
	ErrLeaveOverlap = errors.New("leave overlaps an approved leave")

	// ErrInvalidTransition is returned for a leave status change that the
	// lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDuplicateEvent is returned when a clock event or correction id
	// already exists.
	ErrDuplicateEvent = errors.New("duplicate event id")

	// ErrStoreUnavailable is returned when the backing store is temporarily
	// unable to serve a request (locked database, connection loss).
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ScheduleConflictError lists the assignments that are simultaneously active.
type ScheduleConflictError struct {
	EmployeeID    EmployeeID
	Date          Date
	AssignmentIDs []string
}

func (e *ScheduleConflictError) Error() string {
	return fmt.Sprintf("schedule conflict: employee %s has %d active assignments on %s (%s)",
		e.EmployeeID, len(e.AssignmentIDs), e.Date, strings.Join(e.AssignmentIDs, ", "))
}

func (e *ScheduleConflictError) Unwrap() error { return ErrScheduleConflict }

// DanglingReferenceError names a referenced record that does not exist.
type DanglingReferenceError struct {
	Kind     string // "shift" or "time_period"
	ID       int64
	Referrer string // e.g. "assignment a-1", "shift 3 day 2 order 1"
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("%s %d referenced by %s does not exist", e.Kind, e.ID, e.Referrer)
}

func (e *DanglingReferenceError) Unwrap() error { return ErrDataIntegrity }

// AssignmentOverlapError describes a rejected assignment write.
type AssignmentOverlapError struct {
	EmployeeID EmployeeID
	Candidate  string
	Existing   string
}

func (e *AssignmentOverlapError) Error() string {
	return fmt.Sprintf("assignment %s for employee %s overlaps assignment %s",
		e.Candidate, e.EmployeeID, e.Existing)
}

func (e *AssignmentOverlapError) Unwrap() error { return ErrAssignmentOverlap }

// FieldError is one failed validation rule.
type FieldError struct {
	Field   string
	Rule    string
	Message string
}

// ValidationError aggregates every failed rule of one write.
type ValidationError struct {
	Object string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Object, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidConfig }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrAssignmentOverlap) ||
		errors.Is(err, ErrLeaveOverlap) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDuplicateEvent)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
