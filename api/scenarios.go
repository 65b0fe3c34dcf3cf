/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	data for testing and demos. Each scenario creates a catalog, employees,
	assignments, punches and leave, then runs a sweep so daily records
	exist for the past days.

AVAILABLE SCENARIOS:

	office:          Monday to Friday 09:00-18:00, one late arrival, one
	                 missing check-out, one approved day of leave
	night-rotation:  22:00-06:00 period on a 4-day cycle (2 on, 2 off)
	broken-catalog:  A shift whose period was deleted afterwards; every
	                 scheduled day becomes a data integrity record

HOW SCENARIOS WORK:
 1. Reset store (clear all data)
 2. Create time periods and shifts via the catalog factory
 3. Create employees and assignments
 4. Append punches and leave relative to today
 5. Sweep the past week

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "office"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, today)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Sweep and record handlers
  - factory/catalog.go: Catalog JSON definitions
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/factory"
	"github.com/warp/attendance-engine/leave"
	"github.com/warp/attendance-engine/recalc"
)

// =============================================================================
// SCENARIO CATALOG
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "office",
		Name:        "Office Week",
		Description: "Three office workers on a Monday to Friday 09:00-18:00 shift: on time, late and missing a check-out, and on approved leave",
		Category:    "basic",
	},
	{
		ID:          "night-rotation",
		Name:        "Night Rotation",
		Description: "22:00-06:00 night period on a 4-day rotation; check-outs land on the next calendar day",
		Category:    "cross-midnight",
	},
	{
		ID:          "broken-catalog",
		Name:        "Broken Catalog",
		Description: "A shift refers to a deleted time period; scheduled days are recorded as data integrity errors",
		Category:    "structural",
	},
}

const (
	officePeriodJSON = `{
		"id": 1, "name": "Office", "start_time": "09:00", "end_time": "18:00",
		"rest_start_time": "12:00", "rest_end_time": "13:00",
		"rules": {"min_work_hours": 8, "late_grace_minutes": 10, "early_leave_grace_minutes": 10}
	}`
	officeShiftJSON = `{
		"id": 1, "name": "Office Week", "cycle_days": 7,
		"periods": [
			{"period_id": 1, "day_of_cycle": 1},
			{"period_id": 1, "day_of_cycle": 2},
			{"period_id": 1, "day_of_cycle": 3},
			{"period_id": 1, "day_of_cycle": 4},
			{"period_id": 1, "day_of_cycle": 5}
		]
	}`
	nightPeriodJSON = `{
		"id": 2, "name": "Night", "start_time": "22:00", "end_time": "06:00",
		"rest_start_time": "02:00", "rest_end_time": "02:30",
		"rules": {"min_work_hours": 7.5, "late_grace_minutes": 5}
	}`
	nightShiftJSON = `{
		"id": 2, "name": "Night 2-on 2-off", "cycle_days": 4,
		"periods": [
			{"period_id": 2, "day_of_cycle": 1},
			{"period_id": 2, "day_of_cycle": 2}
		]
	}`
	dayPeriodJSON = `{"id": 3, "name": "Day", "start_time": "08:00", "end_time": "16:00"}`
	dayShiftJSON  = `{"id": 3, "name": "Daily", "cycle_days": 1, "periods": [{"period_id": 3, "day_of_cycle": 1}]}`
)

// ErrUnknownScenario is returned by LoadDemo for an unlisted scenario id.
var ErrUnknownScenario = errors.New("unknown scenario")

// resetter is implemented by stores that can clear all data.
type resetter interface {
	Reset(ctx context.Context) error
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, map[string]any{"scenario": nil})
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, map[string]any{"scenario": s})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenario": nil})
}

// LoadScenario resets the store, loads a scenario and sweeps the past week.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeAndValidate(w, r, "scenario", &req) {
		return
	}

	run, err := h.LoadDemo(r.Context(), req.ScenarioID)
	if errors.Is(err, ErrUnknownScenario) {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}
	if err != nil {
		h.writeDomainError(w, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "loaded",
		"scenario": req.ScenarioID,
		"sweep":    run,
	})
}

// LoadDemo resets the store and loads scenario id. The server calls it at
// startup when demo data is requested.
func (h *Handler) LoadDemo(ctx context.Context, id string) (attendance.SweepRun, error) {
	var loader func(context.Context, attendance.Date) error
	switch id {
	case "office":
		loader = h.loadOfficeScenario
	case "night-rotation":
		loader = h.loadNightRotationScenario
	case "broken-catalog":
		loader = h.loadBrokenCatalogScenario
	default:
		return attendance.SweepRun{}, fmt.Errorf("%w: %q", ErrUnknownScenario, id)
	}

	if err := h.reset(ctx); err != nil {
		return attendance.SweepRun{}, fmt.Errorf("reset store: %w", err)
	}
	today := attendance.DateIn(h.Now(), h.location())
	if err := loader(ctx, today); err != nil {
		return attendance.SweepRun{}, err
	}

	run, err := h.Driver.Sweep(ctx, recalc.SweepRequest{
		Range:   attendance.DateRange{From: today.AddDays(-7), To: today.AddDays(-1)},
		Trigger: attendance.TriggerManual,
	})
	if err != nil {
		return run, fmt.Errorf("calculate scenario records: %w", err)
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()

	h.Logger.Info("scenario loaded",
		zap.String("scenario", id),
		zap.Int("units", run.Units),
		zap.Int("failed", run.Failed),
	)
	return run, nil
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		h.writeDomainError(w, "Failed to reset store", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) reset(ctx context.Context) error {
	rs, ok := h.Store.(resetter)
	if !ok {
		return fmt.Errorf("store does not support reset")
	}
	if err := rs.Reset(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadOfficeScenario(ctx context.Context, today attendance.Date) error {
	if err := h.loadCatalog(ctx, officePeriodJSON, officeShiftJSON); err != nil {
		return err
	}

	// Cycle day 1 must be a Monday.
	start := today.AddDays(-14)
	for start.Weekday() != time.Monday {
		start = start.AddDays(-1)
	}
	for _, emp := range []attendance.Employee{
		{ID: "alice", Name: "Alice Martin", DepartmentID: "hq"},
		{ID: "bob", Name: "Bob Chen", DepartmentID: "hq"},
		{ID: "carol", Name: "Carol Diaz", DepartmentID: "hq"},
	} {
		if err := h.hire(ctx, emp, 1, start); err != nil {
			return err
		}
	}

	var workdays []attendance.Date
	for d := today.AddDays(-7); d.Before(today); d = d.AddDays(1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			workdays = append(workdays, d)
		}
	}
	last := len(workdays) - 1

	for i, d := range workdays {
		if err := h.punchDay(ctx, "alice", d, attendance.NewClockTime(8, 55), d, attendance.NewClockTime(18, 5)); err != nil {
			return err
		}

		switch i {
		case last:
			// Late beyond the grace period.
			err := h.punchDay(ctx, "bob", d, attendance.NewClockTime(9, 25), d, attendance.NewClockTime(18, 0))
			if err != nil {
				return err
			}
		case last - 1:
			// Forgot to check out.
			if err := h.punch(ctx, "bob", attendance.PunchSignIn, d.At(attendance.NewClockTime(8, 58), h.location())); err != nil {
				return err
			}
		default:
			if err := h.punchDay(ctx, "bob", d, attendance.NewClockTime(9, 0), d, attendance.NewClockTime(18, 1)); err != nil {
				return err
			}
		}

		if i == last {
			continue // carol is on leave
		}
		if err := h.punchDay(ctx, "carol", d, attendance.NewClockTime(8, 50), d, attendance.NewClockTime(18, 10)); err != nil {
			return err
		}
	}

	if last < 0 {
		return nil
	}
	d := workdays[last]
	l, err := h.Leave.Submit(ctx, leave.SubmitRequest{
		EmployeeID: "carol",
		Type:       "annual",
		StartTime:  d.At(attendance.NewClockTime(9, 0), h.location()),
		EndTime:    d.At(attendance.NewClockTime(18, 0), h.location()),
		Reason:     "Family visit",
	})
	if err != nil {
		return err
	}
	_, _, err = h.Leave.Approve(ctx, l.ID, "manager")
	return err
}

func (h *Handler) loadNightRotationScenario(ctx context.Context, today attendance.Date) error {
	if err := h.loadCatalog(ctx, nightPeriodJSON, nightShiftJSON); err != nil {
		return err
	}
	start := today.AddDays(-8)
	if err := h.hire(ctx, attendance.Employee{ID: "dave", Name: "Dave Okafor", DepartmentID: "plant"}, 2, start); err != nil {
		return err
	}

	for d := start; d.Before(today); d = d.AddDays(1) {
		if attendance.DaysBetween(start, d)%4 >= 2 {
			continue // rest days
		}
		in := attendance.NewClockTime(21, 57)
		if attendance.DaysBetween(start, d) == 4 {
			in = attendance.NewClockTime(22, 12) // late on the second rotation
		}
		if err := h.punchDay(ctx, "dave", d, in, d.AddDays(1), attendance.NewClockTime(6, 3)); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadBrokenCatalogScenario(ctx context.Context, today attendance.Date) error {
	if err := h.loadCatalog(ctx, dayPeriodJSON, dayShiftJSON); err != nil {
		return err
	}
	if err := h.hire(ctx, attendance.Employee{ID: "erin", Name: "Erin Walsh", DepartmentID: "ops"}, 3, today.AddDays(-7)); err != nil {
		return err
	}
	for d := today.AddDays(-7); d.Before(today); d = d.AddDays(1) {
		if err := h.punchDay(ctx, "erin", d, attendance.NewClockTime(8, 0), d, attendance.NewClockTime(16, 0)); err != nil {
			return err
		}
	}
	// Deleting a period does not cascade to shifts referring to it.
	return h.Store.DeleteTimePeriod(ctx, 3)
}

// =============================================================================
// LOADER HELPERS
// =============================================================================

func (h *Handler) loadCatalog(ctx context.Context, periodJSON, shiftJSON string) error {
	tp, err := factory.ParseTimePeriod([]byte(periodJSON))
	if err != nil {
		return err
	}
	if err := h.Store.SaveTimePeriod(ctx, tp); err != nil {
		return err
	}
	s, err := factory.ParseShift([]byte(shiftJSON))
	if err != nil {
		return err
	}
	return h.Store.SaveShift(ctx, s)
}

func (h *Handler) hire(ctx context.Context, emp attendance.Employee, shift attendance.ShiftID, start attendance.Date) error {
	emp.CreatedAt = h.Now().UTC()
	if err := h.Store.SaveEmployee(ctx, emp); err != nil {
		return err
	}
	return h.Store.SaveAssignment(ctx, attendance.Assignment{
		ID:         "asg-" + string(emp.ID),
		EmployeeID: emp.ID,
		ShiftID:    shift,
		StartDate:  start,
	})
}

func (h *Handler) punchDay(ctx context.Context, emp attendance.EmployeeID, inDate attendance.Date, in attendance.ClockTime, outDate attendance.Date, out attendance.ClockTime) error {
	if err := h.punch(ctx, emp, attendance.PunchSignIn, inDate.At(in, h.location())); err != nil {
		return err
	}
	return h.punch(ctx, emp, attendance.PunchSignOut, outDate.At(out, h.location()))
}

func (h *Handler) punch(ctx context.Context, emp attendance.EmployeeID, typ attendance.PunchType, at time.Time) error {
	return h.Store.AppendClockEvent(ctx, attendance.ClockEvent{
		ID:         fmt.Sprintf("%s-%s-%s", emp, typ, at.UTC().Format("20060102T1504")),
		EmployeeID: emp,
		ClockTime:  at,
		Type:       typ,
		Source:     attendance.SourceDevice,
		Metadata:   map[string]string{"scenario": "demo"},
	})
}
