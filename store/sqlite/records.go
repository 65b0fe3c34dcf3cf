package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// DAILY RECORDS - Replace whole
// =============================================================================

// ReplaceDailyRecord writes the record in a single statement; readers see
// either the previous record or the new one.
func (s *Store) ReplaceDailyRecord(ctx context.Context, rec attendance.DailyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode daily record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO daily_records (employee_id, work_date, id, status, record_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(rec.EmployeeID), rec.WorkDate.String(), rec.ID, string(rec.Status), string(recordJSON), formatTime(s.now()))
	return wrapErr("replace daily record", err)
}

func (s *Store) GetDailyRecord(ctx context.Context, employeeID attendance.EmployeeID, date attendance.Date) (attendance.DailyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var recordJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT record_json FROM daily_records WHERE employee_id = ? AND work_date = ?",
		string(employeeID), date.String(),
	).Scan(&recordJSON)
	if err != nil {
		return attendance.DailyRecord{}, notFound(fmt.Sprintf("get daily record %s/%s", employeeID, date), err)
	}
	return decodeRecord(recordJSON)
}

func (s *Store) ListDailyRecords(ctx context.Context, filter attendance.RecordFilter) ([]attendance.DailyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT record_json FROM daily_records WHERE 1 = 1"
	var args []any
	if filter.EmployeeID != "" {
		query += " AND employee_id = ?"
		args = append(args, string(filter.EmployeeID))
	}
	if !filter.From.IsZero() {
		query += " AND work_date >= ?"
		args = append(args, filter.From.String())
	}
	if !filter.To.IsZero() {
		query += " AND work_date <= ?"
		args = append(args, filter.To.String())
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY work_date, employee_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list daily records", err)
	}
	defer rows.Close()

	var out []attendance.DailyRecord
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, wrapErr("scan daily record", err)
		}
		rec, err := decodeRecord(recordJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, wrapErr("list daily records", rows.Err())
}

func decodeRecord(recordJSON string) (attendance.DailyRecord, error) {
	var rec attendance.DailyRecord
	if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
		return attendance.DailyRecord{}, fmt.Errorf("decode daily record: %w", err)
	}
	return rec, nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, e attendance.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, name, department_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			department_id = excluded.department_id
	`, string(e.ID), e.Name, e.DepartmentID, formatTime(createdAt))
	return wrapErr("save employee", err)
}

func (s *Store) ListEmployees(ctx context.Context, departmentID string) ([]attendance.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, department_id, created_at
		FROM employees
		WHERE ? = '' OR department_id = ?
		ORDER BY id
	`, departmentID, departmentID)
	if err != nil {
		return nil, wrapErr("list employees", err)
	}
	defer rows.Close()

	var out []attendance.Employee
	for rows.Next() {
		var (
			e         attendance.Employee
			id        string
			createdAt string
		)
		if err := rows.Scan(&id, &e.Name, &e.DepartmentID, &createdAt); err != nil {
			return nil, wrapErr("scan employee", err)
		}
		e.ID = attendance.EmployeeID(id)
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, wrapErr("list employees", rows.Err())
}

// =============================================================================
// SWEEP RUNS
// =============================================================================

func (s *Store) SaveSweepRun(ctx context.Context, run attendance.SweepRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var failures sql.NullString
	if len(run.Failures) > 0 {
		b, err := json.Marshal(run.Failures)
		if err != nil {
			return fmt.Errorf("encode sweep failures: %w", err)
		}
		failures = nullString(string(b))
	}
	var finishedAt sql.NullString
	if !run.FinishedAt.IsZero() {
		finishedAt = nullString(formatTime(run.FinishedAt))
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sweep_runs
		(id, trigger_kind, range_from, range_to, department_id, started_at, finished_at,
		 units, succeeded, failed, cancelled, failures_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			units = excluded.units,
			succeeded = excluded.succeeded,
			failed = excluded.failed,
			cancelled = excluded.cancelled,
			failures_json = excluded.failures_json
	`, run.ID, string(run.Trigger), run.Range.From.String(), run.Range.To.String(), run.DepartmentID,
		formatTime(run.StartedAt), finishedAt, run.Units, run.Succeeded, run.Failed, run.Cancelled, failures)
	return wrapErr("save sweep run", err)
}

func (s *Store) ListSweepRuns(ctx context.Context, limit int) ([]attendance.SweepRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_kind, range_from, range_to, department_id, started_at, finished_at,
		       units, succeeded, failed, cancelled, failures_json
		FROM sweep_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, wrapErr("list sweep runs", err)
	}
	defer rows.Close()

	var out []attendance.SweepRun
	for rows.Next() {
		run, err := scanSweepRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, wrapErr("list sweep runs", rows.Err())
}

func scanSweepRun(rows *sql.Rows) (attendance.SweepRun, error) {
	var (
		run               attendance.SweepRun
		trigger, from, to string
		startedAt         string
		finishedAt        sql.NullString
		failures          sql.NullString
	)
	err := rows.Scan(&run.ID, &trigger, &from, &to, &run.DepartmentID, &startedAt, &finishedAt,
		&run.Units, &run.Succeeded, &run.Failed, &run.Cancelled, &failures)
	if err != nil {
		return run, wrapErr("scan sweep run", err)
	}

	run.Trigger = attendance.SweepTrigger(trigger)
	if run.Range.From, err = attendance.ParseDate(from); err != nil {
		return run, err
	}
	if run.Range.To, err = attendance.ParseDate(to); err != nil {
		return run, err
	}
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return run, err
	}
	if finishedAt.Valid {
		if run.FinishedAt, err = parseTime(finishedAt.String); err != nil {
			return run, err
		}
	}
	if failures.Valid {
		if err := json.Unmarshal([]byte(failures.String), &run.Failures); err != nil {
			return run, fmt.Errorf("decode sweep failures: %w", err)
		}
	}
	return run, nil
}
