/*
driver.go - Recalculation driver

PURPOSE:
  The only writer of daily records. Loads a snapshot of everything one
  employee-day depends on, runs the pure calculator and replaces the stored
  record as a whole.

RECALCULATE FLOW:
  1. Catalog snapshot + the employee's assignments
  2. Resolve the work date
  3. Load punches and leave for the resolution window, corrections for the date
  4. Compute
  5. ReplaceDailyRecord

RETRIES:
  Loading and writing may fail transiently (locked database, lost
  connection). Such errors are retried with backoff; anything else is
  returned immediately. Retrying is always safe because a unit either
  replaces the record completely or not at all.

SEE ALSO:
  - sweep.go: Batch recalculation over many employee-days
  - scheduler.go: Unattended nightly sweeps
*/
package recalc

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/warp/attendance-engine/attendance"
)

type Config struct {
	Location      *time.Location
	Workers       int
	RetryAttempts int
	RetryBackoff  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Location:      time.UTC,
		Workers:       4,
		RetryAttempts: 3,
		RetryBackoff:  200 * time.Millisecond,
	}
}

type Driver struct {
	Store      attendance.Store
	Calculator attendance.Calculator
	Config     Config
	Logger     *zap.Logger
	Now        func() time.Time
}

func NewDriver(store attendance.Store, cfg Config, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	return &Driver{Store: store, Config: cfg, Logger: logger, Now: time.Now}
}

// Recalculate computes and stores the record for one employee-day.
func (d *Driver) Recalculate(ctx context.Context, employeeID attendance.EmployeeID, date attendance.Date) (attendance.DailyRecord, error) {
	var rec attendance.DailyRecord
	err := d.withRetry(ctx, func() error {
		r, err := d.compute(ctx, employeeID, date)
		if err != nil {
			return err
		}
		if err := d.Store.ReplaceDailyRecord(ctx, r); err != nil {
			return fmt.Errorf("replace daily record: %w", err)
		}
		rec = r
		return nil
	})
	if err != nil {
		d.Logger.Warn("recalculation failed",
			zap.String("employee_id", string(employeeID)),
			zap.Stringer("work_date", date),
			zap.Error(err),
		)
		return attendance.DailyRecord{}, err
	}

	fields := []zap.Field{
		zap.String("employee_id", string(employeeID)),
		zap.Stringer("work_date", date),
		zap.String("status", string(rec.Status)),
	}
	if rec.Status.Structural() {
		d.Logger.Warn("record needs remediation", append(fields, zap.Int("violations", len(rec.Violations)))...)
	} else {
		d.Logger.Debug("record recalculated", fields...)
	}
	return rec, nil
}

// Preview computes the record without storing it.
func (d *Driver) Preview(ctx context.Context, employeeID attendance.EmployeeID, date attendance.Date) (attendance.DailyRecord, error) {
	var rec attendance.DailyRecord
	err := d.withRetry(ctx, func() error {
		r, err := d.compute(ctx, employeeID, date)
		rec = r
		return err
	})
	return rec, err
}

// Resolve returns the expected schedule of one employee-day.
func (d *Driver) Resolve(ctx context.Context, employeeID attendance.EmployeeID, date attendance.Date) (attendance.Resolution, error) {
	catalog, err := d.Store.Catalog(ctx)
	if err != nil {
		return attendance.Resolution{}, fmt.Errorf("load catalog: %w", err)
	}
	assignments, err := d.Store.ListAssignments(ctx, employeeID)
	if err != nil {
		return attendance.Resolution{}, fmt.Errorf("load assignments: %w", err)
	}
	return attendance.Resolve(employeeID, date, assignments, catalog, d.Config.Location), nil
}

func (d *Driver) compute(ctx context.Context, employeeID attendance.EmployeeID, date attendance.Date) (attendance.DailyRecord, error) {
	res, err := d.Resolve(ctx, employeeID, date)
	if err != nil {
		return attendance.DailyRecord{}, err
	}

	in := attendance.Input{EmployeeID: employeeID, WorkDate: date, Resolution: res}
	if res.Kind == attendance.ResolvedScheduled {
		w := res.Window()
		if in.Events, err = d.Store.LoadClockEvents(ctx, employeeID, w.Start, w.End); err != nil {
			return attendance.DailyRecord{}, fmt.Errorf("load clock events: %w", err)
		}
		if in.Leaves, err = d.Store.LoadLeave(ctx, employeeID, w.Start, w.End); err != nil {
			return attendance.DailyRecord{}, fmt.Errorf("load leave: %w", err)
		}
		if in.Corrections, err = d.Store.LoadCorrections(ctx, employeeID, date); err != nil {
			return attendance.DailyRecord{}, fmt.Errorf("load corrections: %w", err)
		}
	}
	return d.Calculator.Compute(in), nil
}

// withRetry runs fn until it succeeds, fails permanently or runs out of
// attempts. Backoff doubles after every attempt.
func (d *Driver) withRetry(ctx context.Context, fn func() error) error {
	backoff := d.Config.RetryBackoff
	var err error
	for attempt := 1; ; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = fn(); err == nil || !attendance.IsRetryable(err) || attempt >= d.Config.RetryAttempts {
			return err
		}
		d.Logger.Debug("retrying after transient error", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
