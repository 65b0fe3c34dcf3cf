package leave_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/attendance/store"
	"github.com/warp/attendance-engine/leave"
)

func newService() *leave.Service {
	svc := leave.NewService(store.NewMemory(), time.UTC, zap.NewNop())
	svc.Now = func() time.Time { return time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC) }
	return svc
}

func request(fromDay, toDay int) leave.SubmitRequest {
	return leave.SubmitRequest{
		EmployeeID: "emp-1",
		Type:       "annual",
		StartTime:  time.Date(2025, time.March, fromDay, 9, 0, 0, 0, time.UTC),
		EndTime:    time.Date(2025, time.March, toDay, 18, 0, 0, 0, time.UTC),
		Reason:     "holiday",
	}
}

func TestSubmit_CreatesPendingLeave(t *testing.T) {
	svc := newService()

	l, err := svc.Submit(context.Background(), request(3, 4))

	require.NoError(t, err)
	assert.Equal(t, attendance.LeavePending, l.Status)
	assert.NotEmpty(t, l.ID)
}

func TestSubmit_EndBeforeStart_Rejected(t *testing.T) {
	svc := newService()
	req := request(4, 3)

	_, err := svc.Submit(context.Background(), req)

	require.Error(t, err)
	assert.True(t, errors.Is(err, attendance.ErrInvalidConfig))
	assert.True(t, attendance.IsClientError(err))
}

func TestApprove_ReturnsAffectedDates(t *testing.T) {
	// GIVEN: Pending leave from the 3rd 09:00 to the 4th 18:00
	// WHEN: Approving
	// THEN: Dates 2..4 may change (the 2nd for overnight periods)

	ctx := context.Background()
	svc := newService()
	l, err := svc.Submit(ctx, request(3, 4))
	require.NoError(t, err)

	approved, dates, err := svc.Approve(ctx, l.ID, "mgr-1")

	require.NoError(t, err)
	assert.Equal(t, attendance.LeaveApproved, approved.Status)
	assert.Equal(t, attendance.NewDate(2025, time.March, 2), dates.From)
	assert.Equal(t, attendance.NewDate(2025, time.March, 4), dates.To)
}

func TestApprove_OverlappingApprovedLeave_Rejected(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	first, _ := svc.Submit(ctx, request(3, 5))
	second, _ := svc.Submit(ctx, request(5, 6))
	_, _, err := svc.Approve(ctx, first.ID, "mgr-1")
	require.NoError(t, err)

	_, _, err = svc.Approve(ctx, second.ID, "mgr-1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, attendance.ErrLeaveOverlap))
}

func TestApprove_OverlapWithPendingLeave_Allowed(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	_, _ = svc.Submit(ctx, request(3, 5))
	second, _ := svc.Submit(ctx, request(5, 6))

	_, _, err := svc.Approve(ctx, second.ID, "mgr-1")

	assert.NoError(t, err)
}

func TestTransitions(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	rejected, _ := svc.Submit(ctx, request(3, 3))
	_, err := svc.Reject(ctx, rejected.ID, "mgr-1", "busy week")
	require.NoError(t, err)

	_, _, err = svc.Approve(ctx, rejected.ID, "mgr-1")
	assert.True(t, errors.Is(err, attendance.ErrInvalidTransition), "rejected leave cannot be approved")

	_, _, err = svc.Cancel(ctx, rejected.ID, "emp-1", "")
	assert.True(t, errors.Is(err, attendance.ErrInvalidTransition), "rejected leave cannot be cancelled")

	pending, _ := svc.Submit(ctx, request(10, 10))
	_, dates, err := svc.Cancel(ctx, pending.ID, "emp-1", "plans changed")
	require.NoError(t, err)
	assert.True(t, dates.From.IsZero(), "pending leave never affected records")

	approved, _ := svc.Submit(ctx, request(12, 12))
	_, _, err = svc.Approve(ctx, approved.ID, "mgr-1")
	require.NoError(t, err)
	cancelled, dates, err := svc.Cancel(ctx, approved.ID, "mgr-1", "recalled")
	require.NoError(t, err)
	assert.Equal(t, attendance.LeaveCancelled, cancelled.Status)
	assert.Equal(t, attendance.NewDate(2025, time.March, 12), dates.To)
}

// interleavingStore runs during once inside Approve, between its read of the
// leave and its status write.
type interleavingStore struct {
	*store.Memory
	during func()
}

func (s *interleavingStore) LoadLeave(ctx context.Context, employeeID attendance.EmployeeID, from, to time.Time) ([]attendance.LeaveRecord, error) {
	if f := s.during; f != nil {
		s.during = nil
		f()
	}
	return s.Memory.LoadLeave(ctx, employeeID, from, to)
}

func TestApprove_LosesToConcurrentReject(t *testing.T) {
	// GIVEN: A pending leave
	// WHEN: A manager rejects it while another approval is in flight
	// THEN: The approval fails and the leave stays rejected

	ctx := context.Background()
	s := &interleavingStore{Memory: store.NewMemory()}
	svc := leave.NewService(s, time.UTC, zap.NewNop())
	l, err := svc.Submit(ctx, request(3, 4))
	require.NoError(t, err)

	var rejectErr error
	s.during = func() { _, rejectErr = svc.Reject(ctx, l.ID, "mgr-2", "team offsite") }

	_, _, err = svc.Approve(ctx, l.ID, "mgr-1")

	require.NoError(t, rejectErr)
	assert.True(t, errors.Is(err, attendance.ErrInvalidTransition), "got %v", err)
	stored, err := s.GetLeave(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, attendance.LeaveRejected, stored.Status)
}

func TestApprove_UnknownLeave_NotFound(t *testing.T) {
	_, _, err := newService().Approve(context.Background(), "missing", "mgr-1")

	assert.True(t, attendance.IsNotFound(err))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, leave.CanTransition(attendance.LeavePending, attendance.LeaveApproved))
	assert.True(t, leave.CanTransition(attendance.LeaveApproved, attendance.LeaveCancelled))
	assert.False(t, leave.CanTransition(attendance.LeaveApproved, attendance.LeaveRejected))
	assert.False(t, leave.CanTransition(attendance.LeaveCancelled, attendance.LeavePending))
}
