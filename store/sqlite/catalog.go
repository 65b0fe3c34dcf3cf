package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/factory"
)

// =============================================================================
// TIME PERIODS
// =============================================================================

func (s *Store) SaveTimePeriod(ctx context.Context, tp attendance.TimePeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	configJSON, err := json.Marshal(factory.TimePeriodToJSON(tp))
	if err != nil {
		return fmt.Errorf("encode time period: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO time_periods (id, name, period_type, config_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			period_type = excluded.period_type,
			config_json = excluded.config_json,
			updated_at = excluded.updated_at
	`, int64(tp.ID), tp.Name, string(tp.Type), string(configJSON), formatTime(s.now()))
	return wrapErr("save time period", err)
}

func (s *Store) GetTimePeriod(ctx context.Context, id attendance.TimePeriodID) (attendance.TimePeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var configJSON string
	err := s.db.QueryRowContext(ctx, "SELECT config_json FROM time_periods WHERE id = ?", int64(id)).Scan(&configJSON)
	if err != nil {
		return attendance.TimePeriod{}, notFound(fmt.Sprintf("get time period %d", id), err)
	}
	return decodeTimePeriod(configJSON)
}

func (s *Store) ListTimePeriods(ctx context.Context) ([]attendance.TimePeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listTimePeriods(ctx)
}

func (s *Store) listTimePeriods(ctx context.Context) ([]attendance.TimePeriod, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT config_json FROM time_periods ORDER BY id")
	if err != nil {
		return nil, wrapErr("list time periods", err)
	}
	defer rows.Close()

	var periods []attendance.TimePeriod
	for rows.Next() {
		var configJSON string
		if err := rows.Scan(&configJSON); err != nil {
			return nil, wrapErr("scan time period", err)
		}
		tp, err := decodeTimePeriod(configJSON)
		if err != nil {
			return nil, err
		}
		periods = append(periods, tp)
	}
	return periods, wrapErr("list time periods", rows.Err())
}

func (s *Store) DeleteTimePeriod(ctx context.Context, id attendance.TimePeriodID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM time_periods WHERE id = ?", int64(id))
	if err != nil {
		return wrapErr("delete time period", err)
	}
	return requireAffected(res, fmt.Sprintf("delete time period %d", id))
}

func decodeTimePeriod(configJSON string) (attendance.TimePeriod, error) {
	var tj factory.TimePeriodJSON
	if err := json.Unmarshal([]byte(configJSON), &tj); err != nil {
		return attendance.TimePeriod{}, fmt.Errorf("decode stored time period: %w", err)
	}
	return factory.TimePeriodFromJSON(tj)
}

// =============================================================================
// SHIFTS
// =============================================================================

// SaveShift checks every referenced time period inside the write
// transaction, so a concurrent delete cannot slip in between.
func (s *Store) SaveShift(ctx context.Context, sh attendance.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin transaction", err)
	}
	defer tx.Rollback()

	for _, sp := range sh.Periods {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM time_periods WHERE id = ?", int64(sp.PeriodID)).Scan(&exists)
		if err == sql.ErrNoRows {
			return &attendance.DanglingReferenceError{
				Kind:     "time_period",
				ID:       int64(sp.PeriodID),
				Referrer: "shift " + sh.Name,
			}
		}
		if err != nil {
			return wrapErr("check time period", err)
		}
	}

	configJSON, err := json.Marshal(factory.ShiftToJSON(sh))
	if err != nil {
		return fmt.Errorf("encode shift: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO shifts (id, name, cycle_days, config_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			cycle_days = excluded.cycle_days,
			config_json = excluded.config_json,
			updated_at = excluded.updated_at
	`, int64(sh.ID), sh.Name, sh.CycleDays, string(configJSON), formatTime(s.now()))
	if err != nil {
		return wrapErr("save shift", err)
	}
	return wrapErr("commit shift", tx.Commit())
}

func (s *Store) GetShift(ctx context.Context, id attendance.ShiftID) (attendance.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var configJSON string
	err := s.db.QueryRowContext(ctx, "SELECT config_json FROM shifts WHERE id = ?", int64(id)).Scan(&configJSON)
	if err != nil {
		return attendance.Shift{}, notFound(fmt.Sprintf("get shift %d", id), err)
	}
	return decodeShift(configJSON)
}

func (s *Store) ListShifts(ctx context.Context) ([]attendance.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listShifts(ctx)
}

func (s *Store) listShifts(ctx context.Context) ([]attendance.Shift, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT config_json FROM shifts ORDER BY id")
	if err != nil {
		return nil, wrapErr("list shifts", err)
	}
	defer rows.Close()

	var shifts []attendance.Shift
	for rows.Next() {
		var configJSON string
		if err := rows.Scan(&configJSON); err != nil {
			return nil, wrapErr("scan shift", err)
		}
		sh, err := decodeShift(configJSON)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, sh)
	}
	return shifts, wrapErr("list shifts", rows.Err())
}

func (s *Store) DeleteShift(ctx context.Context, id attendance.ShiftID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM shifts WHERE id = ?", int64(id))
	if err != nil {
		return wrapErr("delete shift", err)
	}
	return requireAffected(res, fmt.Sprintf("delete shift %d", id))
}

func decodeShift(configJSON string) (attendance.Shift, error) {
	var sj factory.ShiftJSON
	if err := json.Unmarshal([]byte(configJSON), &sj); err != nil {
		return attendance.Shift{}, fmt.Errorf("decode stored shift: %w", err)
	}
	return factory.ShiftFromJSON(sj)
}

// Catalog reads periods and shifts under one read lock.
func (s *Store) Catalog(ctx context.Context) (*attendance.Catalog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	periods, err := s.listTimePeriods(ctx)
	if err != nil {
		return nil, err
	}
	shifts, err := s.listShifts(ctx)
	if err != nil {
		return nil, err
	}
	return attendance.NewCatalog(periods, shifts), nil
}
