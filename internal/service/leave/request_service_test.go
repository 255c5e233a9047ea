package leave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-go/internal/pkg/validator"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_HourRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateLeaveRequest(ctx, leave.CreateLeaveRequestRequest{
		EmployeeID:  employeeA.String(),
		LeaveTypeID: personalID.String(),
		Subtype:     "hour",
		StartDate:   "2024-07-01",
		EndDate:     "2024-07-01",
		StartTime:   strPtr("09:00"),
		EndTime:     strPtr("12:00"),
		Reason:      "bank appointment",
		CreatedBy:   employeeA.String(),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	id, err := uuid.Parse(created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.Equal(t, leave.LeaveRequestStatusPending, created.Status)
	assert.Equal(t, leave.TimingAdvance, created.Timing)
	assert.Equal(t, personalID, created.LeaveTypeID)
	assert.Equal(t, f.clock.Now(), created.CreatedAt)
	require.NotNil(t, created.StartTime)
	assert.Equal(t, "09:00", *created.StartTime)

	require.Len(t, f.sink.events, 1)
	ev := f.sink.events[0]
	assert.Equal(t, leave.EventRequestCreated, ev.Name)
	assert.Equal(t, "hours", ev.Unit)
	assert.Equal(t, "3", ev.Amount)
	assert.Equal(t, "advance", ev.Timing)
}

func TestCreate_ClassifiesTiming(t *testing.T) {
	f := newFixture(t)

	past := f.createDayRequest(t, employeeA, vacationID, "2024-06-05", "2024-06-06")
	today := f.createDayRequest(t, employeeA, vacationID, "2024-06-10", "2024-06-10")

	assert.Equal(t, leave.TimingBackdated, past.Timing)
	assert.Equal(t, leave.TimingCurrent, today.Timing)
}

func TestCreate_TimingFollowsLocalCalendarDay(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(time.Date(2024, 6, 10, 3, 0, 0, 0, time.FixedZone("WIB", 7*3600)))

	today := f.createDayRequest(t, employeeA, vacationID, "2024-06-10", "2024-06-10")
	yesterday := f.createDayRequest(t, employeeA, vacationID, "2024-06-09", "2024-06-09")

	assert.Equal(t, leave.TimingCurrent, today.Timing)
	assert.Equal(t, leave.TimingBackdated, yesterday.Timing)
}

func TestCreate_NormalisesLegacyLeaveTypeName(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.CreateLeaveRequest(context.Background(), leave.CreateLeaveRequestRequest{
		EmployeeID:  employeeA.String(),
		LeaveTypeID: "cuti tahunan",
		StartDate:   "2024-07-01",
		EndDate:     "2024-07-02",
		CreatedBy:   employeeA.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, vacationID, created.LeaveTypeID)
}

func TestCreate_ValidationErrors(t *testing.T) {
	cases := []struct {
		name  string
		req   leave.CreateLeaveRequestRequest
		field string
	}{
		{
			name:  "missing employee",
			req:   leave.CreateLeaveRequestRequest{LeaveTypeID: vacationID.String(), StartDate: "2024-07-01", EndDate: "2024-07-01"},
			field: "employee_id",
		},
		{
			name:  "malformed date",
			req:   leave.CreateLeaveRequestRequest{EmployeeID: "e", LeaveTypeID: vacationID.String(), StartDate: "01/07/2024", EndDate: "2024-07-01"},
			field: "start_date",
		},
		{
			name:  "end before start",
			req:   leave.CreateLeaveRequestRequest{EmployeeID: "e", LeaveTypeID: vacationID.String(), StartDate: "2024-07-03", EndDate: "2024-07-01"},
			field: "end_date",
		},
		{
			name: "hour subtype without times",
			req: leave.CreateLeaveRequestRequest{
				EmployeeID: "e", LeaveTypeID: personalID.String(), Subtype: "hour",
				StartDate: "2024-07-01", EndDate: "2024-07-01",
			},
			field: "start_time",
		},
		{
			name: "hour subtype across days",
			req: leave.CreateLeaveRequestRequest{
				EmployeeID: "e", LeaveTypeID: personalID.String(), Subtype: "hour",
				StartDate: "2024-07-01", EndDate: "2024-07-02",
				StartTime: strPtr("09:00"), EndTime: strPtr("12:00"),
			},
			field: "end_date",
		},
		{
			name: "times without hour subtype",
			req: leave.CreateLeaveRequestRequest{
				EmployeeID: "e", LeaveTypeID: personalID.String(), Subtype: "day",
				StartDate: "2024-07-01", EndDate: "2024-07-01",
				StartTime: strPtr("09:00"),
			},
			field: "start_time",
		},
		{
			name: "end time before start time",
			req: leave.CreateLeaveRequestRequest{
				EmployeeID: "e", LeaveTypeID: personalID.String(), Subtype: "hour",
				StartDate: "2024-07-01", EndDate: "2024-07-01",
				StartTime: strPtr("17:00"), EndTime: strPtr("09:00"),
			},
			field: "end_time",
		},
		{
			name: "invalid clock",
			req: leave.CreateLeaveRequestRequest{
				EmployeeID: "e", LeaveTypeID: personalID.String(), Subtype: "hour",
				StartDate: "2024-07-01", EndDate: "2024-07-01",
				StartTime: strPtr("9am"), EndTime: strPtr("12:00"),
			},
			field: "start_time",
		},
		{
			name: "attachment required",
			req: leave.CreateLeaveRequestRequest{
				EmployeeID: "e", LeaveTypeID: sickID.String(),
				StartDate: "2024-07-01", EndDate: "2024-07-03",
			},
			field: "attachments",
		},
		{
			name: "hourly not allowed",
			req: leave.CreateLeaveRequestRequest{
				EmployeeID: "e", LeaveTypeID: vacationID.String(), Subtype: "hour",
				StartDate: "2024-07-01", EndDate: "2024-07-01",
				StartTime: strPtr("09:00"), EndTime: strPtr("12:00"),
			},
			field: "subtype",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.CreateLeaveRequest(context.Background(), c.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, leave.ErrValidation)

			var errs validator.ValidationErrors
			require.True(t, errors.As(err, &errs))
			assert.True(t, errs.HasField(c.field), "want error on %s, got %v", c.field, errs)
			assert.Empty(t, f.sink.events)
		})
	}
}

func TestCreate_UnknownLeaveType(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateLeaveRequest(context.Background(), leave.CreateLeaveRequestRequest{
		EmployeeID:  employeeA.String(),
		LeaveTypeID: "Sabbatical",
		StartDate:   "2024-07-01",
		EndDate:     "2024-07-01",
	})
	assert.ErrorIs(t, err, leave.ErrLeaveTypeNotFound)
}

func TestApprove_HourRequestEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateLeaveRequest(ctx, leave.CreateLeaveRequestRequest{
		EmployeeID:  employeeA.String(),
		LeaveTypeID: personalID.String(),
		Subtype:     "hour",
		StartDate:   "2024-07-01",
		EndDate:     "2024-07-01",
		StartTime:   strPtr("09:00"),
		EndTime:     strPtr("12:00"),
		CreatedBy:   employeeA.String(),
	})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	approved, err := f.svc.ApproveLeaveRequest(ctx, created.ID, admin)
	require.NoError(t, err)

	assert.Equal(t, leave.LeaveRequestStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, f.clock.Now(), *approved.ApprovedAt)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, admin, *approved.ApprovedBy)

	stored, err := f.svc.GetLeaveRequest(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.LeaveRequestStatusApproved, stored.Status)
	assert.NotNil(t, stored.ApprovedAt)

	entry, err := f.svc.GetLedgerEntry(ctx, employeeA, personalID)
	require.NoError(t, err)
	assert.True(t, entry.HoursUsed.Equal(decimal.NewFromInt(3)), "hours used %s", entry.HoursUsed)
	assert.True(t, entry.DaysUsed.IsZero())

	assert.Equal(t, []leave.EventName{leave.EventRequestCreated, leave.EventRequestApproved}, f.sink.names())
}

func TestApprove_TwiceDoesNotDoubleCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.createDayRequest(t, employeeA, vacationID, "2024-07-01", "2024-07-03")

	_, err := f.svc.ApproveLeaveRequest(ctx, created.ID, admin)
	require.NoError(t, err)
	first, err := f.svc.GetLedgerEntry(ctx, employeeA, vacationID)
	require.NoError(t, err)
	assert.True(t, first.DaysUsed.Equal(decimal.NewFromInt(3)))

	_, err = f.svc.ApproveLeaveRequest(ctx, created.ID, admin)
	require.Error(t, err)
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)

	var transitionErr *leave.TransitionError
	require.True(t, errors.As(err, &transitionErr))
	assert.Equal(t, created.ID, transitionErr.RequestID)
	assert.Equal(t, leave.LeaveRequestStatusApproved, transitionErr.From)

	second, err := f.svc.GetLedgerEntry(ctx, employeeA, vacationID)
	require.NoError(t, err)
	assert.True(t, second.DaysUsed.Equal(first.DaysUsed))
	assert.Equal(t, first.Version, second.Version)
}

func TestApprove_RetryCompletesLedgerAfterFailure(t *testing.T) {
	var ledger *failingLedger
	f := newFixture(t, withLedger(func(repo leave.LedgerRepository) leave.LedgerRepository {
		ledger = &failingLedger{LedgerRepository: repo, failures: 1}
		return ledger
	}))
	ctx := context.Background()

	created := f.createDayRequest(t, employeeA, vacationID, "2024-07-01", "2024-07-02")

	_, err := f.svc.ApproveLeaveRequest(ctx, created.ID, admin)
	require.Error(t, err)
	assert.True(t, leave.IsRetryable(err))
	assert.ErrorIs(t, err, leave.ErrStorageUnavailable)

	// The transition is stored even though the ledger write failed.
	stored, err := f.svc.GetLeaveRequest(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.LeaveRequestStatusApproved, stored.Status)
	_, err = f.svc.GetLedgerEntry(ctx, employeeA, vacationID)
	assert.ErrorIs(t, err, leave.ErrLedgerEntryNotFound)

	_, err = f.svc.ApproveLeaveRequest(ctx, created.ID, admin)
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)

	entry, err := f.svc.GetLedgerEntry(ctx, employeeA, vacationID)
	require.NoError(t, err)
	assert.True(t, entry.DaysUsed.Equal(decimal.NewFromInt(2)))

	// A third attempt changes nothing.
	_, err = f.svc.ApproveLeaveRequest(ctx, created.ID, admin)
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
	again, err := f.svc.GetLedgerEntry(ctx, employeeA, vacationID)
	require.NoError(t, err)
	assert.Equal(t, entry.Version, again.Version)
}

func TestApprove_ConcurrentCallsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.createDayRequest(t, employeeA, vacationID, "2024-07-01", "2024-07-01")

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.ApproveLeaveRequest(ctx, created.ID, admin)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, leave.ErrInvalidTransition)
	}
	assert.Equal(t, 1, wins)

	entry, err := f.svc.GetLedgerEntry(ctx, employeeA, vacationID)
	require.NoError(t, err)
	assert.True(t, entry.DaysUsed.Equal(decimal.NewFromInt(1)))
}

func TestApprove_UsesTransactorWhenAvailable(t *testing.T) {
	tx := &countingTransactor{}
	f := newFixture(t, withTransactor(tx))
	created := f.createDayRequest(t, employeeA, vacationID, "2024-07-01", "2024-07-01")

	_, err := f.svc.ApproveLeaveRequest(context.Background(), created.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, 1, tx.calls)
}

func TestApprove_RequiresApprover(t *testing.T) {
	f := newFixture(t)
	created := f.createDayRequest(t, employeeA, vacationID, "2024-07-01", "2024-07-01")

	_, err := f.svc.ApproveLeaveRequest(context.Background(), created.ID, "")
	assert.ErrorIs(t, err, leave.ErrValidation)
}

func TestApprove_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ApproveLeaveRequest(context.Background(), "missing", admin)
	assert.ErrorIs(t, err, leave.ErrLeaveRequestNotFound)
}

func TestApprove_EventFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	created := f.createDayRequest(t, employeeA, vacationID, "2024-07-01", "2024-07-01")
	f.sink.err = errors.New("push transport down")

	approved, err := f.svc.ApproveLeaveRequest(context.Background(), created.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, leave.LeaveRequestStatusApproved, approved.Status)

	_, err = f.svc.GetLedgerEntry(context.Background(), employeeA, vacationID)
	assert.NoError(t, err)
}

func TestReject_DayRequestEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.createDayRequest(t, employeeB, sickID, "2024-07-01", "2024-07-03")

	rejected, err := f.svc.RejectLeaveRequest(ctx, leave.RejectLeaveRequestRequest{
		ID:         created.ID.String(),
		RejectedBy: admin.String(),
		Reason:     "insufficient documentation",
	})
	require.NoError(t, err)

	assert.Equal(t, leave.LeaveRequestStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectedReason)
	assert.Equal(t, "insufficient documentation", *rejected.RejectedReason)
	assert.NotNil(t, rejected.RejectedAt)

	stored, err := f.svc.GetLeaveRequest(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.RejectedReason)
	assert.Equal(t, "insufficient documentation", *stored.RejectedReason)

	_, err = f.svc.GetLedgerEntry(ctx, employeeB, sickID)
	assert.ErrorIs(t, err, leave.ErrLedgerEntryNotFound)

	names := f.sink.names()
	require.Len(t, names, 2)
	assert.Equal(t, leave.EventRequestRejected, names[1])
	assert.Equal(t, "insufficient documentation", f.sink.events[1].Reason)
}

func TestReject_RequiresReason(t *testing.T) {
	f := newFixture(t)
	created := f.createDayRequest(t, employeeA, vacationID, "2024-07-01", "2024-07-01")

	for _, reason := range []string{"", "   "} {
		_, err := f.svc.RejectLeaveRequest(context.Background(), leave.RejectLeaveRequestRequest{
			ID:         created.ID.String(),
			RejectedBy: admin.String(),
			Reason:     reason,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, leave.ErrValidation)

		var errs validator.ValidationErrors
		require.True(t, errors.As(err, &errs))
		assert.True(t, errs.HasField("reason"))
	}

	stored, err := f.svc.GetLeaveRequest(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.LeaveRequestStatusPending, stored.Status)
}

func TestReject_AlreadyTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rejected := f.createDayRequest(t, employeeA, vacationID, "2024-07-01", "2024-07-01")
	req := leave.RejectLeaveRequestRequest{ID: rejected.ID.String(), RejectedBy: admin.String(), Reason: "team offsite"}
	_, err := f.svc.RejectLeaveRequest(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.RejectLeaveRequest(ctx, req)
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)

	approved := f.createDayRequest(t, employeeA, vacationID, "2024-07-05", "2024-07-05")
	_, err = f.svc.ApproveLeaveRequest(ctx, approved.ID, admin)
	require.NoError(t, err)

	_, err = f.svc.RejectLeaveRequest(ctx, leave.RejectLeaveRequestRequest{ID: approved.ID.String(), RejectedBy: admin.String(), Reason: "changed my mind"})
	var transitionErr *leave.TransitionError
	require.True(t, errors.As(err, &transitionErr))
	assert.Equal(t, leave.LeaveRequestStatusApproved, transitionErr.From)
	assert.Equal(t, leave.LeaveRequestStatusRejected, transitionErr.To)

	// Approving a rejected request is refused as well.
	_, err = f.svc.ApproveLeaveRequest(ctx, rejected.ID, admin)
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
}

func TestEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateLeaveRequest(ctx, leave.CreateLeaveRequestRequest{
		EmployeeID:  employeeA.String(),
		LeaveTypeID: personalID.String(),
		Subtype:     "hour",
		StartDate:   "2024-07-01",
		EndDate:     "2024-07-01",
		StartTime:   strPtr("09:00"),
		EndTime:     strPtr("11:00"),
		CreatedBy:   employeeA.String(),
	})
	require.NoError(t, err)

	t.Run("switching to day subtype clears times", func(t *testing.T) {
		edited, err := f.svc.EditLeaveRequest(ctx, leave.EditLeaveRequestRequest{
			ID:      created.ID.String(),
			Subtype: strPtr("day"),
			EndDate: strPtr("2024-07-02"),
		})
		require.NoError(t, err)
		assert.Equal(t, leave.LeaveSubtypeDay, edited.Subtype)
		assert.Nil(t, edited.StartTime)
		assert.Nil(t, edited.EndTime)
		assert.Equal(t, date("2024-07-02"), edited.EndDate)
		assert.Equal(t, created.CreatedAt, edited.CreatedAt)
	})

	t.Run("merged result is validated", func(t *testing.T) {
		_, err := f.svc.EditLeaveRequest(ctx, leave.EditLeaveRequestRequest{
			ID:        created.ID.String(),
			StartDate: strPtr("2024-07-05"),
		})
		assert.ErrorIs(t, err, leave.ErrValidation)
	})

	t.Run("empty edit is rejected", func(t *testing.T) {
		_, err := f.svc.EditLeaveRequest(ctx, leave.EditLeaveRequestRequest{ID: created.ID.String()})
		assert.ErrorIs(t, err, leave.ErrValidation)
	})

	t.Run("approved requests cannot be edited", func(t *testing.T) {
		_, err := f.svc.ApproveLeaveRequest(ctx, created.ID, admin)
		require.NoError(t, err)

		_, err = f.svc.EditLeaveRequest(ctx, leave.EditLeaveRequestRequest{ID: created.ID.String(), Reason: strPtr("late edit")})
		assert.ErrorIs(t, err, leave.ErrInvalidTransition)
	})
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := f.createDayRequest(t, employeeA, vacationID, "2024-07-01", "2024-07-01")
	require.NoError(t, f.svc.DeleteLeaveRequest(ctx, pending.ID, leave.DeleteOptions{}))
	_, err := f.svc.GetLeaveRequest(ctx, pending.ID)
	assert.ErrorIs(t, err, leave.ErrLeaveRequestNotFound)

	rejected := f.createDayRequest(t, employeeA, vacationID, "2024-07-02", "2024-07-02")
	_, err = f.svc.RejectLeaveRequest(ctx, leave.RejectLeaveRequestRequest{ID: rejected.ID.String(), RejectedBy: admin.String(), Reason: "no cover"})
	require.NoError(t, err)

	err = f.svc.DeleteLeaveRequest(ctx, rejected.ID, leave.DeleteOptions{})
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
	require.NoError(t, f.svc.DeleteLeaveRequest(ctx, rejected.ID, leave.DeleteOptions{Administrative: true, ActorID: admin}))

	approved := f.createDayRequest(t, employeeA, vacationID, "2024-07-03", "2024-07-03")
	_, err = f.svc.ApproveLeaveRequest(ctx, approved.ID, admin)
	require.NoError(t, err)

	for _, opts := range []leave.DeleteOptions{{}, {Administrative: true, ActorID: admin}} {
		err = f.svc.DeleteLeaveRequest(ctx, approved.ID, opts)
		var transitionErr *leave.TransitionError
		require.True(t, errors.As(err, &transitionErr))
		assert.Equal(t, "delete", transitionErr.Op)
	}

	_, err = f.svc.GetLeaveRequest(ctx, approved.ID)
	assert.NoError(t, err)
}

func TestStorageTimeoutIsRetryable(t *testing.T) {
	f := newFixture(t,
		withRequests(func(repo leave.RequestRepository) leave.RequestRepository {
			return blockingRequests{RequestRepository: repo}
		}),
		withConfig(Config{StorageTimeout: 20 * time.Millisecond, ReconcileConcurrency: 1}),
	)

	start := time.Now()
	_, err := f.svc.GetLeaveRequest(context.Background(), "any")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.ErrorIs(t, err, leave.ErrStorageUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, leave.IsRetryable(err))
	assert.Equal(t, "storage_unavailable", leave.Kind(err))

	var storageErr *leave.StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "get leave request", storageErr.Op)
}

func TestCallerDeadlineIsKept(t *testing.T) {
	f := newFixture(t,
		withRequests(func(repo leave.RequestRepository) leave.RequestRepository {
			return blockingRequests{RequestRepository: repo}
		}),
		withConfig(Config{StorageTimeout: time.Hour, ReconcileConcurrency: 1}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.svc.GetLeaveRequest(ctx, "any")
	assert.ErrorIs(t, err, leave.ErrStorageUnavailable)
}
