package attendance

import (
	"sort"
)

// =============================================================================
// SCHEDULE ASSIGNMENT - Employee to shift binding
// =============================================================================

// Assignment binds an employee to a shift from StartDate (cycle day 1)
// through EndDate inclusive. A nil EndDate is open-ended.
type Assignment struct {
	ID         string     `validate:"required"`
	EmployeeID EmployeeID `validate:"required"`
	ShiftID    ShiftID    `validate:"gt=0"`
	StartDate  Date
	EndDate    *Date
}

// Active reports whether the assignment covers date.
func (a Assignment) Active(date Date) bool {
	if date.Before(a.StartDate) {
		return false
	}
	return a.EndDate == nil || date.BeforeOrEqual(*a.EndDate)
}

// Overlaps reports whether both assignments are active on at least one date.
func (a Assignment) Overlaps(b Assignment) bool {
	if a.EmployeeID != b.EmployeeID {
		return false
	}
	if a.EndDate != nil && a.EndDate.Before(b.StartDate) {
		return false
	}
	if b.EndDate != nil && b.EndDate.Before(a.StartDate) {
		return false
	}
	return true
}

// CheckOverlap returns an *AssignmentOverlapError when candidate overlaps any
// existing assignment other than itself.
func CheckOverlap(existing []Assignment, candidate Assignment) error {
	sorted := append([]Assignment(nil), existing...)
	sortAssignments(sorted)
	for _, a := range sorted {
		if a.ID == candidate.ID {
			continue
		}
		if a.Overlaps(candidate) {
			return &AssignmentOverlapError{
				EmployeeID: candidate.EmployeeID,
				Candidate:  candidate.ID,
				Existing:   a.ID,
			}
		}
	}
	return nil
}

// ActiveOn filters assignments of one employee active on date, ordered by
// start date then id.
func ActiveOn(assignments []Assignment, employeeID EmployeeID, date Date) []Assignment {
	var out []Assignment
	for _, a := range assignments {
		if a.EmployeeID == employeeID && a.Active(date) {
			out = append(out, a)
		}
	}
	sortAssignments(out)
	return out
}

func sortAssignments(as []Assignment) {
	sort.Slice(as, func(i, j int) bool {
		if !as[i].StartDate.Equal(as[j].StartDate) {
			return as[i].StartDate.Before(as[j].StartDate)
		}
		return as[i].ID < as[j].ID
	})
}
