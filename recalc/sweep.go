package recalc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// SWEEP - Batch recalculation over a date range
// =============================================================================

// SweepRequest selects the employee-days to recalculate. EmployeeIDs, when
// set, takes precedence over DepartmentID.
type SweepRequest struct {
	Range        attendance.DateRange
	DepartmentID string
	EmployeeIDs  []attendance.EmployeeID
	Trigger      attendance.SweepTrigger
}

// Sweep recalculates every selected employee-day with bounded concurrency.
// A failing unit is recorded and does not stop the others. Cancelling ctx
// stops the sweep between units; a unit already writing either replaces its
// record completely or leaves it untouched. The run is stored even when
// cancelled, in which case ctx's error is returned alongside it.
func (d *Driver) Sweep(ctx context.Context, req SweepRequest) (attendance.SweepRun, error) {
	if !req.Range.Valid() {
		return attendance.SweepRun{}, fmt.Errorf("%w: invalid date range %s", attendance.ErrInvalidConfig, req.Range)
	}
	if req.Trigger == "" {
		req.Trigger = attendance.TriggerManual
	}

	employees := req.EmployeeIDs
	if len(employees) == 0 {
		list, err := d.Store.ListEmployees(ctx, req.DepartmentID)
		if err != nil {
			return attendance.SweepRun{}, fmt.Errorf("list employees: %w", err)
		}
		for _, e := range list {
			employees = append(employees, e.ID)
		}
	}

	run := attendance.SweepRun{
		ID:           uuid.NewString(),
		Trigger:      req.Trigger,
		Range:        req.Range,
		DepartmentID: req.DepartmentID,
		StartedAt:    d.Now(),
	}
	log := d.Logger.With(zap.String("sweep_id", run.ID), zap.Stringer("range", req.Range))
	log.Info("sweep started", zap.Int("employees", len(employees)), zap.String("trigger", string(req.Trigger)))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(d.Config.Workers)

	days := req.Range.Days()
dispatch:
	for _, date := range days {
		for _, emp := range employees {
			if ctx.Err() != nil {
				break dispatch
			}
			emp, date := emp, date
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				_, err := d.Recalculate(ctx, emp, date)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					run.Units++
					run.Succeeded++
				case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
					// Not attempted to completion; the sweep reports itself cancelled.
				default:
					run.Units++
					run.Failed++
					run.Failures = append(run.Failures, attendance.SweepFailure{
						EmployeeID: emp,
						WorkDate:   date,
						Error:      err.Error(),
					})
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	sort.Slice(run.Failures, func(i, j int) bool {
		a, b := run.Failures[i], run.Failures[j]
		if !a.WorkDate.Equal(b.WorkDate) {
			return a.WorkDate.Before(b.WorkDate)
		}
		return a.EmployeeID < b.EmployeeID
	})
	run.Cancelled = ctx.Err() != nil
	run.FinishedAt = d.Now()

	if err := d.Store.SaveSweepRun(context.WithoutCancel(ctx), run); err != nil {
		log.Error("failed to save sweep run", zap.Error(err))
	}
	log.Info("sweep finished",
		zap.Int("succeeded", run.Succeeded),
		zap.Int("failed", run.Failed),
		zap.Bool("cancelled", run.Cancelled),
		zap.Duration("took", run.FinishedAt.Sub(run.StartedAt)),
	)
	if run.Cancelled {
		return run, ctx.Err()
	}
	return run, nil
}
