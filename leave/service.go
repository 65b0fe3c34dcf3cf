/*
service.go - Leave record lifecycle

PURPOSE:
  Manages leave from submission to a final status. Only approved leave
  exempts scheduled periods from punch requirements, so approval is the one
  transition that checks for overlapping approved leave.

STATUS FLOW:
  pending ──▶ approved ──▶ cancelled
     │
     ├──────▶ rejected
     └──────▶ cancelled

RECALCULATION:
  Changing leave never recalculates daily records. Approve and Cancel return
  the range of work dates the change can affect; the operator (or a sweep)
  triggers the recalculation explicitly.

SEE ALSO:
  - attendance/calculator.go: How approved leave is applied
*/
package leave

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/attendance-engine/attendance"
)

// transitions lists the statuses reachable from each status.
var transitions = map[attendance.LeaveStatus][]attendance.LeaveStatus{
	attendance.LeavePending:  {attendance.LeaveApproved, attendance.LeaveRejected, attendance.LeaveCancelled},
	attendance.LeaveApproved: {attendance.LeaveCancelled},
}

// CanTransition reports whether a leave may move from one status to another.
func CanTransition(from, to attendance.LeaveStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store    attendance.LeaveStore
	Location *time.Location
	Logger   *zap.Logger
	Now      func() time.Time

	// Serializes approvals so two overlapping leaves cannot both pass the
	// overlap check.
	mu sync.Mutex
}

func NewService(store attendance.LeaveStore, loc *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{Store: store, Location: loc, Logger: logger, Now: time.Now}
}

// SubmitRequest is a new leave application.
type SubmitRequest struct {
	EmployeeID attendance.EmployeeID `validate:"required"`
	Type       string                `validate:"required,max=32"`
	StartTime  time.Time             `validate:"required"`
	EndTime    time.Time             `validate:"required,gtfield=StartTime"`
	Reason     string                `validate:"max=500"`
}

// Submit stores a pending leave record.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (attendance.LeaveRecord, error) {
	if err := attendance.Validate("leave", req); err != nil {
		return attendance.LeaveRecord{}, err
	}
	now := s.Now()
	l := attendance.LeaveRecord{
		ID:         uuid.NewString(),
		EmployeeID: req.EmployeeID,
		Type:       req.Type,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Status:     attendance.LeavePending,
		Reason:     req.Reason,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Store.SaveLeave(ctx, l); err != nil {
		return attendance.LeaveRecord{}, fmt.Errorf("save leave: %w", err)
	}
	s.Logger.Info("leave submitted",
		zap.String("leave_id", l.ID),
		zap.String("employee_id", string(l.EmployeeID)),
		zap.Time("start", l.StartTime),
		zap.Time("end", l.EndTime),
	)
	return l, nil
}

// Approve moves a pending leave to approved. It returns ErrLeaveOverlap when
// the employee already has approved leave sharing any instant with it.
func (s *Service) Approve(ctx context.Context, id, approver string) (attendance.LeaveRecord, attendance.DateRange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.Store.GetLeave(ctx, id)
	if err != nil {
		return attendance.LeaveRecord{}, attendance.DateRange{}, err
	}
	if !CanTransition(l.Status, attendance.LeaveApproved) {
		return l, attendance.DateRange{}, transitionError(l.Status, attendance.LeaveApproved)
	}

	existing, err := s.Store.LoadLeave(ctx, l.EmployeeID, l.StartTime, l.EndTime)
	if err != nil {
		return l, attendance.DateRange{}, fmt.Errorf("load leave: %w", err)
	}
	for _, other := range existing {
		if other.ID != l.ID && other.Status == attendance.LeaveApproved && other.Overlaps(l) {
			return l, attendance.DateRange{}, fmt.Errorf("%w: %s", attendance.ErrLeaveOverlap, other.ID)
		}
	}

	l, err = s.move(ctx, l, attendance.LeaveApproved, approver, "")
	if err != nil {
		return l, attendance.DateRange{}, err
	}
	return l, AffectedDates(l, s.Location), nil
}

// Reject moves a pending leave to rejected. Rejected leave never affected any
// record, so no dates are returned.
func (s *Service) Reject(ctx context.Context, id, approver, reason string) (attendance.LeaveRecord, error) {
	l, err := s.Store.GetLeave(ctx, id)
	if err != nil {
		return attendance.LeaveRecord{}, err
	}
	if !CanTransition(l.Status, attendance.LeaveRejected) {
		return l, transitionError(l.Status, attendance.LeaveRejected)
	}
	return s.move(ctx, l, attendance.LeaveRejected, approver, reason)
}

// Cancel withdraws pending or approved leave. The returned range is empty
// unless the leave was approved.
func (s *Service) Cancel(ctx context.Context, id, actor, reason string) (attendance.LeaveRecord, attendance.DateRange, error) {
	l, err := s.Store.GetLeave(ctx, id)
	if err != nil {
		return attendance.LeaveRecord{}, attendance.DateRange{}, err
	}
	if !CanTransition(l.Status, attendance.LeaveCancelled) {
		return l, attendance.DateRange{}, transitionError(l.Status, attendance.LeaveCancelled)
	}
	wasApproved := l.Status == attendance.LeaveApproved

	l, err = s.move(ctx, l, attendance.LeaveCancelled, actor, reason)
	if err != nil || !wasApproved {
		return l, attendance.DateRange{}, err
	}
	return l, AffectedDates(l, s.Location), nil
}

func (s *Service) move(ctx context.Context, l attendance.LeaveRecord, to attendance.LeaveStatus, actor, reason string) (attendance.LeaveRecord, error) {
	from := l.Status
	now := s.Now()
	// The stored status may have moved since l was read.
	if err := s.Store.UpdateLeaveStatus(ctx, l.ID, from, to, now); err != nil {
		return l, fmt.Errorf("update leave: %w", err)
	}
	l.Status = to
	l.UpdatedAt = now
	s.Logger.Info("leave status changed",
		zap.String("leave_id", l.ID),
		zap.String("employee_id", string(l.EmployeeID)),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", actor),
		zap.String("reason", reason),
	)
	return l, nil
}

func transitionError(from, to attendance.LeaveStatus) error {
	return fmt.Errorf("%w: %s -> %s", attendance.ErrInvalidTransition, from, to)
}

// AffectedDates returns the work dates whose records may change with l. The
// day before the leave starts is included because an overnight period
// starting that evening can overlap it.
func AffectedDates(l attendance.LeaveRecord, loc *time.Location) attendance.DateRange {
	if loc == nil {
		loc = time.UTC
	}
	last := l.EndTime
	if last.After(l.StartTime) {
		last = last.Add(-time.Nanosecond)
	}
	return attendance.DateRange{
		From: attendance.DateIn(l.StartTime, loc).AddDays(-1),
		To:   attendance.DateIn(last, loc),
	}
}
