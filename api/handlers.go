/*
handlers.go - HTTP API handlers for the attendance engine

PURPOSE:
  Exposes the attendance engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the store, the leave service and the
  recalculation driver.

ENDPOINTS:
  Catalog:
    GET    /api/time-periods           List time periods
    POST   /api/time-periods           Create or replace a time period
    GET    /api/time-periods/{id}      Get a time period
    DELETE /api/time-periods/{id}      Delete (does not cascade)
    GET    /api/shifts                 List shifts
    POST   /api/shifts                 Create or replace a shift
    GET    /api/shifts/{id}            Get a shift
    DELETE /api/shifts/{id}            Delete a shift

  Employees and assignments:
    GET    /api/employees                              List (?department_id=)
    POST   /api/employees                              Create or rename
    GET    /api/employees/{id}/schedule/{date}         Resolved schedule
    GET    /api/employees/{id}/records/{date}          Stored daily record
    GET    /api/employees/{id}/records/{date}/preview  Calculate without storing
    GET    /api/assignments                            List (?employee_id=)
    POST   /api/assignments                            Create or replace
    DELETE /api/assignments/{id}                       Delete

  Evidence:
    POST   /api/clock-events           Append a punch
    GET    /api/clock-events           Punches (?employee_id=&from=&to=)
    POST   /api/corrections            Append a correction (no recalculation)
    GET    /api/corrections            Corrections (?employee_id=&date=)

  Leave:
    GET    /api/leaves                 List (?employee_id=)
    POST   /api/leaves                 Submit (pending)
    POST   /api/leaves/{id}/approve    Approve, returns affected dates
    POST   /api/leaves/{id}/reject     Reject
    POST   /api/leaves/{id}/cancel     Cancel, returns affected dates

  Calculation:
    GET    /api/records                Daily records (?employee_id=&from=&to=&status=)
    POST   /api/recalculate            Recalculate one employee-day (?async=true)

  Admin:
    POST   /api/admin/sweeps           Manual batch recalculation
    GET    /api/admin/sweeps           Sweep history (?limit=)
    POST   /api/admin/sweeps/scheduled Run the scheduled lookback sweep now
    GET    /api/admin/scheduler        Scheduler status

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access
  - Driver: The only writer of daily records
  - Leave: Leave lifecycle (submit, approve, reject, cancel)
  - Publisher: Optional queue for asynchronous recalculation

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (overlap, duplicate id, invalid transition)
  - 422: Data integrity (dangling catalog references)
  - 503: Store temporarily unavailable
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/factory"
	"github.com/warp/attendance-engine/leave"
	"github.com/warp/attendance-engine/queue"
	"github.com/warp/attendance-engine/recalc"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// RecalculatePublisher queues a recalculation for a worker process.
type RecalculatePublisher interface {
	PublishRecalculate(ctx context.Context, cmd queue.RecalculateCommand) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     attendance.Store
	Driver    *recalc.Driver
	Leave     *leave.Service
	Scheduler *recalc.Scheduler    // optional
	Publisher RecalculatePublisher // optional
	Logger    *zap.Logger
	Now       func() time.Time

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler around the driver. The driver's location is
// used for leave and scenario dates.
func NewHandler(store attendance.Store, driver *recalc.Driver, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:  store,
		Driver: driver,
		Leave:  leave.NewService(store, driver.Config.Location, logger.Named("leave")),
		Logger: logger,
		Now:    time.Now,
	}
}

func (h *Handler) location() *time.Location { return h.Driver.Config.Location }

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

func (h *Handler) ListTimePeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.Store.ListTimePeriods(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list time periods", err)
		return
	}
	out := make([]factory.TimePeriodJSON, len(periods))
	for i, tp := range periods {
		out[i] = factory.TimePeriodToJSON(tp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetTimePeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	tp, err := h.Store.GetTimePeriod(r.Context(), attendance.TimePeriodID(id))
	if err != nil {
		h.writeDomainError(w, "Time period not available", err)
		return
	}
	writeJSON(w, http.StatusOK, factory.TimePeriodToJSON(tp))
}

// CreateTimePeriod parses the body with the catalog factory, so defaults and
// validation match catalog files exactly.
func (h *Handler) CreateTimePeriod(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	tp, err := factory.ParseTimePeriod(body)
	if err != nil {
		h.writeDomainError(w, "Invalid time period", err)
		return
	}
	if err := h.Store.SaveTimePeriod(r.Context(), tp); err != nil {
		h.writeDomainError(w, "Failed to save time period", err)
		return
	}
	h.Logger.Info("time period saved", zap.Int64("period_id", int64(tp.ID)), zap.String("name", tp.Name))
	writeJSON(w, http.StatusCreated, factory.TimePeriodToJSON(tp))
}

func (h *Handler) DeleteTimePeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	if err := h.Store.DeleteTimePeriod(r.Context(), attendance.TimePeriodID(id)); err != nil {
		h.writeDomainError(w, "Failed to delete time period", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListShifts(w http.ResponseWriter, r *http.Request) {
	shifts, err := h.Store.ListShifts(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list shifts", err)
		return
	}
	out := make([]factory.ShiftJSON, len(shifts))
	for i, s := range shifts {
		out[i] = factory.ShiftToJSON(s)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetShift(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	s, err := h.Store.GetShift(r.Context(), attendance.ShiftID(id))
	if err != nil {
		h.writeDomainError(w, "Shift not available", err)
		return
	}
	writeJSON(w, http.StatusOK, factory.ShiftToJSON(s))
}

func (h *Handler) CreateShift(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	s, err := factory.ParseShift(body)
	if err != nil {
		h.writeDomainError(w, "Invalid shift", err)
		return
	}
	if err := h.Store.SaveShift(r.Context(), s); err != nil {
		h.writeDomainError(w, "Failed to save shift", err)
		return
	}
	h.Logger.Info("shift saved", zap.Int64("shift_id", int64(s.ID)), zap.Int("cycle_days", s.CycleDays))
	writeJSON(w, http.StatusCreated, factory.ShiftToJSON(s))
}

func (h *Handler) DeleteShift(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	if err := h.Store.DeleteShift(r.Context(), attendance.ShiftID(id)); err != nil {
		h.writeDomainError(w, "Failed to delete shift", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees, optionally filtered by department.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context(), r.URL.Query().Get("department_id"))
	if err != nil {
		h.writeDomainError(w, "Failed to list employees", err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEmployee creates a new employee.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !decodeAndValidate(w, r, "employee", &req) {
		return
	}
	emp := attendance.Employee{
		ID:           attendance.EmployeeID(req.ID),
		Name:         req.Name,
		DepartmentID: req.DepartmentID,
		CreatedAt:    h.Now().UTC(),
	}
	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		h.writeDomainError(w, "Failed to create employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// GetSchedule returns what the employee is expected to work on a date.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	emp, date, ok := employeeDateParams(w, r)
	if !ok {
		return
	}
	res, err := h.Driver.Resolve(r.Context(), emp, date)
	if err != nil {
		h.writeDomainError(w, "Failed to resolve schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toResolutionDTO(res))
}

// GetRecord returns the stored daily record. A missing record is 404; it is
// never calculated on read.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	emp, date, ok := employeeDateParams(w, r)
	if !ok {
		return
	}
	rec, err := h.Store.GetDailyRecord(r.Context(), emp, date)
	if err != nil {
		h.writeDomainError(w, "Daily record not available", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// PreviewRecord calculates the record the next recalculation would store.
func (h *Handler) PreviewRecord(w http.ResponseWriter, r *http.Request) {
	emp, date, ok := employeeDateParams(w, r)
	if !ok {
		return
	}
	rec, err := h.Driver.Preview(r.Context(), emp, date)
	if err != nil {
		h.writeDomainError(w, "Failed to calculate daily record", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// =============================================================================
// ASSIGNMENT HANDLERS
// =============================================================================

func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	as, err := h.Store.ListAssignments(r.Context(), attendance.EmployeeID(r.URL.Query().Get("employee_id")))
	if err != nil {
		h.writeDomainError(w, "Failed to list assignments", err)
		return
	}
	dtos := make([]AssignmentDTO, len(as))
	for i, a := range as {
		dtos[i] = toAssignmentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAssignment validates the assignment and its reference to an
// existing shift. The store rejects overlaps.
func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req CreateAssignmentRequest
	if !decodeAndValidate(w, r, "assignment", &req) {
		return
	}
	a := attendance.Assignment{
		ID:         req.ID,
		EmployeeID: attendance.EmployeeID(req.EmployeeID),
		ShiftID:    attendance.ShiftID(req.ShiftID),
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.StartDate, _ = attendance.ParseDate(req.StartDate)
	if req.EndDate != nil {
		end, _ := attendance.ParseDate(*req.EndDate)
		a.EndDate = &end
	}
	if err := attendance.ValidateAssignment(a); err != nil {
		h.writeDomainError(w, "Invalid assignment", err)
		return
	}

	ctx := r.Context()
	if _, err := h.Store.GetShift(ctx, a.ShiftID); err != nil {
		if attendance.IsNotFound(err) {
			err = &attendance.DanglingReferenceError{Kind: "shift", ID: req.ShiftID, Referrer: "assignment " + a.ID}
		}
		h.writeDomainError(w, "Assignment refers to an unknown shift", err)
		return
	}
	if err := h.Store.SaveAssignment(ctx, a); err != nil {
		h.writeDomainError(w, "Failed to save assignment", err)
		return
	}
	h.Logger.Info("assignment saved",
		zap.String("assignment_id", a.ID),
		zap.String("employee_id", string(a.EmployeeID)),
		zap.Int64("shift_id", int64(a.ShiftID)),
		zap.Stringer("start_date", a.StartDate),
	)
	writeJSON(w, http.StatusCreated, toAssignmentDTO(a))
}

func (h *Handler) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteAssignment(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, "Failed to delete assignment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// EVIDENCE HANDLERS - Punches and corrections
// =============================================================================

// CreateClockEvent appends a punch. It never recalculates.
func (h *Handler) CreateClockEvent(w http.ResponseWriter, r *http.Request) {
	var req ClockEventRequest
	if !decodeAndValidate(w, r, "clock event", &req) {
		return
	}
	e := attendance.ClockEvent{
		ID:         req.ID,
		EmployeeID: attendance.EmployeeID(req.EmployeeID),
		ClockTime:  req.ClockTime,
		Type:       attendance.PunchType(req.Type),
		Source:     req.Source,
		Metadata:   req.Metadata,
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Source == "" {
		e.Source = attendance.SourceWeb
	}
	if err := h.Store.AppendClockEvent(r.Context(), e); err != nil {
		h.writeDomainError(w, "Failed to record clock event", err)
		return
	}
	writeJSON(w, http.StatusCreated, toClockEventDTO(e))
}

// ListClockEvents returns punches in [from, to]. Bounds are RFC 3339
// instants; they default to the last seven days.
func (h *Handler) ListClockEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	emp := q.Get("employee_id")
	if emp == "" {
		writeError(w, http.StatusBadRequest, "employee_id is required", nil)
		return
	}
	to := h.Now()
	from := to.AddDate(0, 0, -7)
	var err error
	if s := q.Get("from"); s != "" {
		if from, err = time.Parse(time.RFC3339, s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from (use RFC 3339)", err)
			return
		}
	}
	if s := q.Get("to"); s != "" {
		if to, err = time.Parse(time.RFC3339, s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to (use RFC 3339)", err)
			return
		}
	}
	events, err := h.Store.LoadClockEvents(r.Context(), attendance.EmployeeID(emp), from, to)
	if err != nil {
		h.writeDomainError(w, "Failed to list clock events", err)
		return
	}
	dtos := make([]ClockEventDTO, len(events))
	for i, e := range events {
		dtos[i] = toClockEventDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCorrection stores evidence for a later recalculation. The record is
// unchanged until POST /api/recalculate runs for the same employee-day.
func (h *Handler) CreateCorrection(w http.ResponseWriter, r *http.Request) {
	var req CorrectionRequest
	if !decodeAndValidate(w, r, "correction", &req) {
		return
	}
	date, _ := attendance.ParseDate(req.WorkDate)
	emp := attendance.EmployeeID(req.EmployeeID)
	c := attendance.Correction{
		ID:             uuid.NewString(),
		EmployeeID:     emp,
		DailyRecordID:  attendance.RecordID(emp, date),
		WorkDate:       date,
		CorrectionTime: req.CorrectionTime,
		Type:           attendance.CorrectionType(req.Type),
		Operator:       req.Operator,
		Reason:         req.Reason,
		CreatedAt:      h.Now().UTC(),
	}
	if err := h.Store.AppendCorrection(r.Context(), c); err != nil {
		h.writeDomainError(w, "Failed to record correction", err)
		return
	}
	h.Logger.Info("correction recorded",
		zap.String("employee_id", req.EmployeeID),
		zap.String("work_date", req.WorkDate),
		zap.String("type", req.Type),
		zap.String("operator", req.Operator),
	)
	writeJSON(w, http.StatusCreated, toCorrectionDTO(c))
}

func (h *Handler) ListCorrections(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := attendance.ParseDate(q.Get("date"))
	if err != nil || q.Get("employee_id") == "" {
		writeError(w, http.StatusBadRequest, "employee_id and date (YYYY-MM-DD) are required", err)
		return
	}
	cs, err := h.Store.LoadCorrections(r.Context(), attendance.EmployeeID(q.Get("employee_id")), date)
	if err != nil {
		h.writeDomainError(w, "Failed to list corrections", err)
		return
	}
	dtos := make([]CorrectionDTO, len(cs))
	for i, c := range cs {
		dtos[i] = toCorrectionDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

func (h *Handler) ListLeaves(w http.ResponseWriter, r *http.Request) {
	ls, err := h.Store.ListLeave(r.Context(), attendance.EmployeeID(r.URL.Query().Get("employee_id")))
	if err != nil {
		h.writeDomainError(w, "Failed to list leave", err)
		return
	}
	dtos := make([]LeaveDTO, len(ls))
	for i, l := range ls {
		dtos[i] = toLeaveDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SubmitLeave(w http.ResponseWriter, r *http.Request) {
	var req SubmitLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	l, err := h.Leave.Submit(r.Context(), leave.SubmitRequest{
		EmployeeID: attendance.EmployeeID(req.EmployeeID),
		Type:       req.Type,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Reason:     req.Reason,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to submit leave", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveDTO(l))
}

// ApproveLeave approves and reports the work dates whose records the caller
// should recalculate.
func (h *Handler) ApproveLeave(w http.ResponseWriter, r *http.Request) {
	var req LeaveActionRequest
	if !decodeAndValidate(w, r, "leave action", &req) {
		return
	}
	l, affected, err := h.Leave.Approve(r.Context(), chi.URLParam(r, "id"), req.Actor)
	if err != nil {
		h.writeDomainError(w, "Failed to approve leave", err)
		return
	}
	writeJSON(w, http.StatusOK, LeaveActionResponse{Leave: toLeaveDTO(l), AffectedDates: &affected})
}

func (h *Handler) RejectLeave(w http.ResponseWriter, r *http.Request) {
	var req LeaveActionRequest
	if !decodeAndValidate(w, r, "leave action", &req) {
		return
	}
	l, err := h.Leave.Reject(r.Context(), chi.URLParam(r, "id"), req.Actor, req.Reason)
	if err != nil {
		h.writeDomainError(w, "Failed to reject leave", err)
		return
	}
	writeJSON(w, http.StatusOK, LeaveActionResponse{Leave: toLeaveDTO(l)})
}

func (h *Handler) CancelLeave(w http.ResponseWriter, r *http.Request) {
	var req LeaveActionRequest
	if !decodeAndValidate(w, r, "leave action", &req) {
		return
	}
	l, affected, err := h.Leave.Cancel(r.Context(), chi.URLParam(r, "id"), req.Actor, req.Reason)
	if err != nil {
		h.writeDomainError(w, "Failed to cancel leave", err)
		return
	}
	resp := LeaveActionResponse{Leave: toLeaveDTO(l)}
	if affected.Valid() {
		resp.AffectedDates = &affected
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// CALCULATION HANDLERS
// =============================================================================

func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := attendance.RecordFilter{
		EmployeeID: attendance.EmployeeID(q.Get("employee_id")),
		Status:     attendance.Status(q.Get("status")),
	}
	var err error
	if s := q.Get("from"); s != "" {
		if filter.From, err = attendance.ParseDate(s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from (use YYYY-MM-DD)", err)
			return
		}
	}
	if s := q.Get("to"); s != "" {
		if filter.To, err = attendance.ParseDate(s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to (use YYYY-MM-DD)", err)
			return
		}
	}
	recs, err := h.Store.ListDailyRecords(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, "Failed to list daily records", err)
		return
	}
	if recs == nil {
		recs = []attendance.DailyRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// Recalculate runs the engine for one employee-day and returns the stored
// record. With ?async=true the request is queued instead and 202 returned.
func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	var req RecalculateRequest
	if !decodeAndValidate(w, r, "recalculation", &req) {
		return
	}
	date, _ := attendance.ParseDate(req.WorkDate)
	emp := attendance.EmployeeID(req.EmployeeID)

	if r.URL.Query().Get("async") == "true" {
		if h.Publisher == nil {
			writeError(w, http.StatusServiceUnavailable, "Asynchronous recalculation is not configured", nil)
			return
		}
		cmd := queue.RecalculateCommand{EmployeeID: emp, WorkDate: date, RequestedBy: "api", RequestedAt: h.Now().UTC()}
		if err := h.Publisher.PublishRecalculate(r.Context(), cmd); err != nil {
			h.writeDomainError(w, "Failed to queue recalculation", err)
			return
		}
		writeJSON(w, http.StatusAccepted, RecalculateAcceptedResponse{
			EmployeeID: req.EmployeeID,
			WorkDate:   req.WorkDate,
			Status:     "queued",
		})
		return
	}

	rec, err := h.Driver.Recalculate(r.Context(), emp, date)
	if err != nil {
		h.writeDomainError(w, "Recalculation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RunSweep recalculates a date range for a department or an explicit list of
// employees. It runs synchronously and returns the run summary.
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if !decodeAndValidate(w, r, "sweep", &req) {
		return
	}
	from, _ := attendance.ParseDate(req.From)
	to, _ := attendance.ParseDate(req.To)
	sr := recalc.SweepRequest{
		Range:        attendance.DateRange{From: from, To: to},
		DepartmentID: req.DepartmentID,
		Trigger:      attendance.TriggerManual,
	}
	for _, id := range req.EmployeeIDs {
		sr.EmployeeIDs = append(sr.EmployeeIDs, attendance.EmployeeID(id))
	}

	run, err := h.Driver.Sweep(r.Context(), sr)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			writeJSON(w, http.StatusOK, run)
			return
		}
		h.writeDomainError(w, "Sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) ListSweeps(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}
	runs, err := h.Store.ListSweepRuns(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, "Failed to list sweeps", err)
		return
	}
	if runs == nil {
		runs = []attendance.SweepRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// RunScheduledSweep triggers the scheduler's lookback sweep immediately,
// honoring its distributed lock.
func (h *Handler) RunScheduledSweep(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Scheduler is not configured", nil)
		return
	}
	run, ran, err := h.Scheduler.RunNow(r.Context())
	if err != nil {
		h.writeDomainError(w, "Scheduled sweep failed", err)
		return
	}
	if !ran {
		writeError(w, http.StatusConflict, "Another instance is running the scheduled sweep", nil)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) GetSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":       h.Scheduler.Enabled,
		"interval":      h.Scheduler.Interval.String(),
		"lookback_days": h.Scheduler.LookbackDays,
		"next_run":      h.Scheduler.NextRunTime(),
		"range":         h.Scheduler.LookbackRange(h.Now()),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine and store errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	status, resp := errorResponse(message, err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error(message, zap.Error(err), zap.Int("status", status))
	}
	writeJSON(w, status, resp)
}

// errorResponse expands validation failures into per-field details.
func errorResponse(message string, err error) (int, ErrorResponse) {
	status, code := statusFor(err)
	resp := ErrorResponse{Error: message, Code: code, Details: err.Error()}

	var verr *attendance.ValidationError
	if errors.As(err, &verr) {
		fields := make([]FieldErrorDTO, len(verr.Fields))
		for i, f := range verr.Fields {
			fields[i] = FieldErrorDTO{Field: f.Field, Rule: f.Rule, Message: f.Message}
		}
		resp.Details = fields
	}
	return status, resp
}

func statusFor(err error) (int, string) {
	switch {
	case attendance.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, attendance.ErrAssignmentOverlap):
		return http.StatusConflict, "assignment_overlap"
	case errors.Is(err, attendance.ErrLeaveOverlap):
		return http.StatusConflict, "leave_overlap"
	case errors.Is(err, attendance.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, attendance.ErrDuplicateEvent):
		return http.StatusConflict, "duplicate_event"
	case errors.Is(err, attendance.ErrDataIntegrity):
		return http.StatusUnprocessableEntity, "data_integrity_error"
	case errors.Is(err, attendance.ErrInvalidConfig):
		return http.StatusBadRequest, "invalid_configuration"
	case attendance.IsRetryable(err):
		return http.StatusServiceUnavailable, "store_unavailable"
	default:
		return http.StatusInternalServerError, ""
	}
}

// decodeAndValidate decodes the body into dst and runs its validator tags.
// It writes the error response and returns false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, object string, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := attendance.Validate(object, dst); err != nil {
		status, resp := errorResponse(fmt.Sprintf("Invalid %s", object), err)
		writeJSON(w, status, resp)
		return false
	}
	return true
}

func int64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+name, err)
		return 0, false
	}
	return v, true
}

func employeeDateParams(w http.ResponseWriter, r *http.Request) (attendance.EmployeeID, attendance.Date, bool) {
	date, err := attendance.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return "", attendance.Date{}, false
	}
	return attendance.EmployeeID(chi.URLParam(r, "id")), date, true
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toEmployeeDTO(e attendance.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:           string(e.ID),
		Name:         e.Name,
		DepartmentID: e.DepartmentID,
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
	}
}

func toAssignmentDTO(a attendance.Assignment) AssignmentDTO {
	dto := AssignmentDTO{
		ID:         a.ID,
		EmployeeID: string(a.EmployeeID),
		ShiftID:    int64(a.ShiftID),
		StartDate:  a.StartDate.String(),
	}
	if a.EndDate != nil {
		end := a.EndDate.String()
		dto.EndDate = &end
	}
	return dto
}

func toClockEventDTO(e attendance.ClockEvent) ClockEventDTO {
	return ClockEventDTO{
		ID:         e.ID,
		EmployeeID: string(e.EmployeeID),
		ClockTime:  e.ClockTime,
		Type:       string(e.Type),
		Source:     e.Source,
		Metadata:   e.Metadata,
	}
}

func toCorrectionDTO(c attendance.Correction) CorrectionDTO {
	return CorrectionDTO{
		ID:             c.ID,
		EmployeeID:     string(c.EmployeeID),
		DailyRecordID:  c.DailyRecordID,
		WorkDate:       c.WorkDate.String(),
		CorrectionTime: c.CorrectionTime,
		Type:           string(c.Type),
		Operator:       c.Operator,
		Reason:         c.Reason,
		CreatedAt:      c.CreatedAt,
	}
}

func toLeaveDTO(l attendance.LeaveRecord) LeaveDTO {
	return LeaveDTO{
		ID:         l.ID,
		EmployeeID: string(l.EmployeeID),
		Type:       l.Type,
		StartTime:  l.StartTime,
		EndTime:    l.EndTime,
		Status:     string(l.Status),
		Reason:     l.Reason,
		CreatedAt:  l.CreatedAt,
		UpdatedAt:  l.UpdatedAt,
	}
}

func toResolutionDTO(res attendance.Resolution) ResolutionDTO {
	dto := ResolutionDTO{
		Kind:         string(res.Kind),
		EmployeeID:   string(res.EmployeeID),
		WorkDate:     res.WorkDate.String(),
		AssignmentID: res.AssignmentID,
		ShiftID:      int64(res.ShiftID),
		DayOfCycle:   res.DayOfCycle,
		Periods:      []ResolvedPeriodDTO{},
	}
	switch {
	case res.Conflict != nil:
		dto.Error = res.Conflict.Error()
	case res.Integrity != nil:
		dto.Error = res.Integrity.Error()
	}
	for _, rp := range res.Periods {
		p := ResolvedPeriodDTO{
			PeriodID:     int64(rp.Position.PeriodID),
			SortOrder:    rp.Position.SortOrder,
			MustCheckIn:  rp.Position.MustCheckIn,
			MustCheckOut: rp.Position.MustCheckOut,
		}
		if rp.Integrity != nil {
			p.Error = rp.Integrity.Error()
			dto.Periods = append(dto.Periods, p)
			continue
		}
		p.PeriodName = rp.Period.Name
		p.Scheduled = toWindowDTO(rp.Scheduled)
		p.CheckInWindow = toWindowDTO(rp.CheckInWindow())
		p.CheckOutWindow = toWindowDTO(rp.CheckOutWindow())
		dto.Periods = append(dto.Periods, p)
	}
	return dto
}

func toWindowDTO(i attendance.Interval) *WindowDTO {
	if i.IsZero() {
		return nil
	}
	return &WindowDTO{Start: i.Start, End: i.End}
}
