package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// SCHEDULE ASSIGNMENTS
// =============================================================================

// SaveAssignment inserts or replaces an assignment after checking it against
// the employee's other assignments in the same transaction.
func (s *Store) SaveAssignment(ctx context.Context, a attendance.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin transaction", err)
	}
	defer tx.Rollback()

	existing, err := queryAssignments(ctx, tx, `
		SELECT id, employee_id, shift_id, start_date, end_date
		FROM schedule_assignments WHERE employee_id = ?
	`, string(a.EmployeeID))
	if err != nil {
		return err
	}
	if err := attendance.CheckOverlap(existing, a); err != nil {
		return err
	}

	var endDate sql.NullString
	if a.EndDate != nil {
		endDate = nullString(a.EndDate.String())
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO schedule_assignments (id, employee_id, shift_id, start_date, end_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			employee_id = excluded.employee_id,
			shift_id = excluded.shift_id,
			start_date = excluded.start_date,
			end_date = excluded.end_date
	`, a.ID, string(a.EmployeeID), int64(a.ShiftID), a.StartDate.String(), endDate, formatTime(s.now()))
	if err != nil {
		return wrapErr("save assignment", err)
	}
	return wrapErr("commit assignment", tx.Commit())
}

func (s *Store) GetAssignment(ctx context.Context, id string) (attendance.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	as, err := queryAssignments(ctx, s.db, `
		SELECT id, employee_id, shift_id, start_date, end_date
		FROM schedule_assignments WHERE id = ?
	`, id)
	if err != nil {
		return attendance.Assignment{}, err
	}
	if len(as) == 0 {
		return attendance.Assignment{}, fmt.Errorf("get assignment %s: %w", id, attendance.ErrNotFound)
	}
	return as[0], nil
}

func (s *Store) DeleteAssignment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM schedule_assignments WHERE id = ?", id)
	if err != nil {
		return wrapErr("delete assignment", err)
	}
	return requireAffected(res, "delete assignment "+id)
}

// ListAssignments returns an employee's assignments, or everyone's when
// employeeID is empty, ordered by start date then id.
func (s *Store) ListAssignments(ctx context.Context, employeeID attendance.EmployeeID) ([]attendance.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryAssignments(ctx, s.db, `
		SELECT id, employee_id, shift_id, start_date, end_date
		FROM schedule_assignments
		WHERE ? = '' OR employee_id = ?
		ORDER BY start_date, id
	`, string(employeeID), string(employeeID))
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryAssignments(ctx context.Context, q querier, query string, args ...any) ([]attendance.Assignment, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("query assignments", err)
	}
	defer rows.Close()

	var out []attendance.Assignment
	for rows.Next() {
		var (
			a          attendance.Assignment
			employeeID string
			shiftID    int64
			startDate  string
			endDate    sql.NullString
		)
		if err := rows.Scan(&a.ID, &employeeID, &shiftID, &startDate, &endDate); err != nil {
			return nil, wrapErr("scan assignment", err)
		}
		a.EmployeeID = attendance.EmployeeID(employeeID)
		a.ShiftID = attendance.ShiftID(shiftID)
		if a.StartDate, err = attendance.ParseDate(startDate); err != nil {
			return nil, err
		}
		if endDate.Valid {
			d, err := attendance.ParseDate(endDate.String)
			if err != nil {
				return nil, err
			}
			a.EndDate = &d
		}
		out = append(out, a)
	}
	return out, wrapErr("query assignments", rows.Err())
}

// =============================================================================
// CLOCK EVENTS - Append-only
// =============================================================================

func (s *Store) AppendClockEvent(ctx context.Context, e attendance.ClockEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metadata sql.NullString
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		metadata = nullString(string(b))
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clock_events (id, employee_id, clock_time, punch_type, source, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, string(e.EmployeeID), formatTime(e.ClockTime), string(e.Type), e.Source, metadata, formatTime(s.now()))
	if isUniqueConstraintError(err) {
		return fmt.Errorf("clock event %s: %w", e.ID, attendance.ErrDuplicateEvent)
	}
	return wrapErr("append clock event", err)
}

func (s *Store) LoadClockEvents(ctx context.Context, employeeID attendance.EmployeeID, from, to time.Time) ([]attendance.ClockEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, employee_id, clock_time, punch_type, source, metadata_json
		FROM clock_events
		WHERE employee_id = ? AND clock_time >= ? AND clock_time <= ?
		ORDER BY clock_time, id
	`, string(employeeID), formatTime(from), formatTime(to))
	if err != nil {
		return nil, wrapErr("load clock events", err)
	}
	defer rows.Close()

	var out []attendance.ClockEvent
	for rows.Next() {
		var (
			e          attendance.ClockEvent
			employee   string
			clockTime  string
			punchType  string
			metadataJS sql.NullString
		)
		if err := rows.Scan(&e.ID, &employee, &clockTime, &punchType, &e.Source, &metadataJS); err != nil {
			return nil, wrapErr("scan clock event", err)
		}
		e.EmployeeID = attendance.EmployeeID(employee)
		e.Type = attendance.PunchType(punchType)
		if e.ClockTime, err = parseTime(clockTime); err != nil {
			return nil, err
		}
		if metadataJS.Valid {
			if err := json.Unmarshal([]byte(metadataJS.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, wrapErr("load clock events", rows.Err())
}

// =============================================================================
// LEAVE
// =============================================================================

func (s *Store) SaveLeave(ctx context.Context, l attendance.LeaveRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_records (id, employee_id, leave_type, start_time, end_time, status, reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			leave_type = excluded.leave_type,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			status = excluded.status,
			reason = excluded.reason,
			updated_at = excluded.updated_at
	`, l.ID, string(l.EmployeeID), l.Type, formatTime(l.StartTime), formatTime(l.EndTime),
		string(l.Status), l.Reason, formatTime(l.CreatedAt), formatTime(l.UpdatedAt))
	return wrapErr("save leave", err)
}

// UpdateLeaveStatus is a compare-and-set on the stored status.
func (s *Store) UpdateLeaveStatus(ctx context.Context, id string, from, to attendance.LeaveStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE leave_records SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), formatTime(at), id, string(from))
	if err != nil {
		return wrapErr("update leave status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("update leave status", err)
	}
	if n > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM leave_records WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update leave status %s: %w", id, attendance.ErrNotFound)
	}
	if err != nil {
		return wrapErr("update leave status", err)
	}
	return fmt.Errorf("%w: leave %s is %s, not %s", attendance.ErrInvalidTransition, id, current, from)
}

const leaveColumns = `id, employee_id, leave_type, start_time, end_time, status, reason, created_at, updated_at`

func (s *Store) GetLeave(ctx context.Context, id string) (attendance.LeaveRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ls, err := s.queryLeave(ctx, "SELECT "+leaveColumns+" FROM leave_records WHERE id = ?", id)
	if err != nil {
		return attendance.LeaveRecord{}, err
	}
	if len(ls) == 0 {
		return attendance.LeaveRecord{}, fmt.Errorf("get leave %s: %w", id, attendance.ErrNotFound)
	}
	return ls[0], nil
}

func (s *Store) ListLeave(ctx context.Context, employeeID attendance.EmployeeID) ([]attendance.LeaveRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryLeave(ctx, "SELECT "+leaveColumns+`
		FROM leave_records
		WHERE ? = '' OR employee_id = ?
		ORDER BY start_time, id
	`, string(employeeID), string(employeeID))
}

func (s *Store) LoadLeave(ctx context.Context, employeeID attendance.EmployeeID, from, to time.Time) ([]attendance.LeaveRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryLeave(ctx, "SELECT "+leaveColumns+`
		FROM leave_records
		WHERE employee_id = ? AND start_time < ? AND end_time > ?
		ORDER BY start_time, id
	`, string(employeeID), formatTime(to), formatTime(from))
}

func (s *Store) queryLeave(ctx context.Context, query string, args ...any) ([]attendance.LeaveRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("query leave", err)
	}
	defer rows.Close()

	var out []attendance.LeaveRecord
	for rows.Next() {
		var (
			l                                attendance.LeaveRecord
			employeeID, status               string
			start, end, createdAt, updatedAt string
		)
		if err := rows.Scan(&l.ID, &employeeID, &l.Type, &start, &end, &status, &l.Reason, &createdAt, &updatedAt); err != nil {
			return nil, wrapErr("scan leave", err)
		}
		l.EmployeeID = attendance.EmployeeID(employeeID)
		l.Status = attendance.LeaveStatus(status)
		for _, f := range []struct {
			dst *time.Time
			src string
		}{{&l.StartTime, start}, {&l.EndTime, end}, {&l.CreatedAt, createdAt}, {&l.UpdatedAt, updatedAt}} {
			if *f.dst, err = parseTime(f.src); err != nil {
				return nil, err
			}
		}
		out = append(out, l)
	}
	return out, wrapErr("query leave", rows.Err())
}

// =============================================================================
// CORRECTIONS - Append-only
// =============================================================================

func (s *Store) AppendCorrection(ctx context.Context, c attendance.Correction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO corrections
		(id, employee_id, daily_record_id, work_date, correction_time, correction_type, operator, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, string(c.EmployeeID), c.DailyRecordID, c.WorkDate.String(), formatTime(c.CorrectionTime),
		string(c.Type), c.Operator, c.Reason, formatTime(c.CreatedAt))
	if isUniqueConstraintError(err) {
		return fmt.Errorf("correction %s: %w", c.ID, attendance.ErrDuplicateEvent)
	}
	return wrapErr("append correction", err)
}

func (s *Store) LoadCorrections(ctx context.Context, employeeID attendance.EmployeeID, date attendance.Date) ([]attendance.Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, employee_id, daily_record_id, work_date, correction_time, correction_type, operator, reason, created_at
		FROM corrections
		WHERE employee_id = ? AND work_date = ?
		ORDER BY correction_time, id
	`, string(employeeID), date.String())
	if err != nil {
		return nil, wrapErr("load corrections", err)
	}
	defer rows.Close()

	var out []attendance.Correction
	for rows.Next() {
		var (
			c                         attendance.Correction
			employee, workDate, typ   string
			correctionTime, createdAt string
		)
		if err := rows.Scan(&c.ID, &employee, &c.DailyRecordID, &workDate, &correctionTime, &typ, &c.Operator, &c.Reason, &createdAt); err != nil {
			return nil, wrapErr("scan correction", err)
		}
		c.EmployeeID = attendance.EmployeeID(employee)
		c.Type = attendance.CorrectionType(typ)
		if c.WorkDate, err = attendance.ParseDate(workDate); err != nil {
			return nil, err
		}
		if c.CorrectionTime, err = parseTime(correctionTime); err != nil {
			return nil, err
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, wrapErr("load corrections", rows.Err())
}
