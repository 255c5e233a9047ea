package postgresqltest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-go/internal/pkg/clock"
	"github.com/cmlabs-hris/hris-leave-go/internal/repository/postgresql"
	leavesvc "github.com/cmlabs-hris/hris-leave-go/internal/service/leave"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sickID     leave.LeaveTypeID = "01900000-0000-7000-8000-000000000001"
	personalID leave.LeaveTypeID = "01900000-0000-7000-8000-000000000002"
)

var testSetup *TestDatabaseSetup

func TestMain(m *testing.M) {
	setup, err := NewTestDatabase(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "test database: %v\n", err)
		os.Exit(1)
	}
	testSetup = setup

	code := m.Run()
	if testSetup != nil {
		testSetup.Close()
	}
	os.Exit(code)
}

func setupTestData(t *testing.T) {
	t.Helper()
	if testSetup == nil {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	require.NoError(t, testSetup.TruncateAllTables(ctx))

	types := postgresql.NewLeaveTypeRepository(testSetup.DB)
	code := "SICK"
	require.NoError(t, types.Save(ctx, leave.LeaveTypeDefinition{
		ID: sickID, Name: "Sick Leave", Code: &code, LegacyNames: []string{"Sakit"}, RequiresAttachment: true,
	}))
	require.NoError(t, types.Save(ctx, leave.LeaveTypeDefinition{
		ID: personalID, Name: "Personal Leave", LegacyNames: []string{"Izin"}, AllowHourly: true,
	}))
}

func approvedRequest(id leave.RequestID, employee leave.EmployeeID, leaveType string, start, end string, createdAt time.Time) leave.LeaveRequest {
	s, _ := time.Parse("2006-01-02", start)
	e, _ := time.Parse("2006-01-02", end)
	approver := leave.UserID("admin-1")
	approvedAt := createdAt.Add(time.Hour)
	return leave.LeaveRequest{
		ID:          id,
		EmployeeID:  employee,
		LeaveTypeID: leave.LeaveTypeID(leaveType),
		StartDate:   s,
		EndDate:     e,
		Timing:      leave.TimingAdvance,
		Status:      leave.LeaveRequestStatusApproved,
		ApprovedBy:  &approver,
		ApprovedAt:  &approvedAt,
		CreatedBy:   "admin-1",
		CreatedAt:   createdAt,
		UpdatedAt:   approvedAt,
	}
}

func TestLeaveRequestRepository_TransitionIsConditional(t *testing.T) {
	setupTestData(t)
	ctx := context.Background()
	repo := postgresql.NewLeaveRequestRepository(testSetup.DB)
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	r := approvedRequest("req-1", "emp-a", sickID.String(), "2024-06-12", "2024-06-14", now)
	r.Status = leave.LeaveRequestStatusPending
	r.ApprovedBy, r.ApprovedAt = nil, nil
	_, err := repo.Create(ctx, r)
	require.NoError(t, err)

	reason := "team offsite"
	rejectedAt := now.Add(time.Hour)
	rejecter := leave.UserID("admin-1")
	r.Status = leave.LeaveRequestStatusRejected
	r.RejectedBy, r.RejectedAt, r.RejectedReason = &rejecter, &rejectedAt, &reason
	require.NoError(t, repo.Transition(ctx, r, leave.LeaveRequestStatusPending))
	assert.ErrorIs(t, repo.Transition(ctx, r, leave.LeaveRequestStatusPending), leave.ErrInvalidTransition)

	got, err := repo.GetByID(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, leave.LeaveRequestStatusRejected, got.Status)
	assert.Equal(t, reason, *got.RejectedReason)
	assert.True(t, got.StartDate.Equal(r.StartDate))

	assert.ErrorIs(t, repo.Delete(ctx, "req-1", []leave.LeaveRequestStatus{leave.LeaveRequestStatusPending}), leave.ErrInvalidTransition)
	require.NoError(t, repo.Delete(ctx, "req-1", []leave.LeaveRequestStatus{leave.LeaveRequestStatusPending, leave.LeaveRequestStatusRejected}))
	_, err = repo.GetByID(ctx, "req-1")
	assert.ErrorIs(t, err, leave.ErrLeaveRequestNotFound)
}

func TestLeaveLedgerRepository_ApplyAndReplace(t *testing.T) {
	setupTestData(t)
	ctx := context.Background()
	repo := postgresql.NewLeaveLedgerRepository(testSetup.DB)
	key := leave.LedgerKey{EmployeeID: "emp-a", LeaveTypeID: personalID}

	app := leave.LedgerApplication{RequestID: "req-1", EmployeeID: "emp-a", LeaveTypeID: personalID, Duration: leave.Hours(decimal.RequireFromString("1.5"))}
	applied, err := repo.ApplyConsumption(ctx, app)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = repo.ApplyConsumption(ctx, app)
	require.NoError(t, err)
	assert.False(t, applied)

	entry, err := repo.GetEntry(ctx, key)
	require.NoError(t, err)
	assert.True(t, entry.HoursUsed.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, int64(1), entry.Version)

	entry.HoursUsed = decimal.NewFromInt(4)
	_, err = repo.ReplaceEntry(ctx, entry, 0, nil)
	assert.ErrorIs(t, err, leave.ErrVersionConflict)
	_, err = repo.ReplaceEntry(ctx, entry, 9, nil)
	assert.ErrorIs(t, err, leave.ErrVersionConflict)

	created, err := repo.ReplaceEntry(ctx, entry, 1, []leave.LedgerApplication{
		{RequestID: "req-2", EmployeeID: "emp-a", LeaveTypeID: personalID, Duration: leave.Hours(decimal.RequireFromString("2.5"))},
	})
	require.NoError(t, err)
	assert.False(t, created)

	applied, err = repo.ApplyConsumption(ctx, leave.LedgerApplication{RequestID: "req-2", EmployeeID: "emp-a", LeaveTypeID: personalID, Duration: leave.Hours(decimal.RequireFromString("2.5"))})
	require.NoError(t, err)
	assert.False(t, applied)

	entry, err = repo.GetEntry(ctx, key)
	require.NoError(t, err)
	assert.True(t, entry.HoursUsed.Equal(decimal.NewFromInt(4)))
	assert.Equal(t, int64(2), entry.Version)
}

func TestLeaveTypeRepository_ResolvesLegacyNames(t *testing.T) {
	setupTestData(t)
	ctx := context.Background()
	types := postgresql.NewLeaveTypeRepository(testSetup.DB)

	def, err := types.ResolveLeaveType(ctx, " SAKIT ")
	require.NoError(t, err)
	assert.Equal(t, sickID, def.ID)
	assert.True(t, def.RequiresAttachment)

	def, err = types.ResolveLeaveType(ctx, "sick")
	require.NoError(t, err)
	assert.Equal(t, sickID, def.ID)

	_, err = types.ResolveLeaveType(ctx, "01900000-0000-7000-8000-0000000000ff")
	assert.ErrorIs(t, err, leave.ErrLeaveTypeNotFound)
	_, err = types.ResolveLeaveType(ctx, "Cuti Melahirkan")
	assert.ErrorIs(t, err, leave.ErrLeaveTypeNotFound)
}

func TestLeaveService_OnPostgreSQL(t *testing.T) {
	setupTestData(t)
	ctx := context.Background()
	db := testSetup.DB
	requests := postgresql.NewLeaveRequestRepository(db)
	ledger := postgresql.NewLeaveLedgerRepository(db)
	clk := clock.NewFixed(time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC))
	svc := leavesvc.NewLeaveService(requests, ledger, postgresql.NewLeaveTypeRepository(db), postgresql.NewTransactor(db),
		clk, nil, slog.New(slog.DiscardHandler), leavesvc.DefaultConfig())

	// Legacy row filed under a leave type name.
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	_, err := requests.Create(ctx, approvedRequest("legacy-1", "emp-a", "Sakit", "2024-05-02", "2024-05-03", base))
	require.NoError(t, err)

	created, err := svc.CreateLeaveRequest(ctx, leave.CreateLeaveRequestRequest{
		EmployeeID:  "emp-a",
		LeaveTypeID: sickID.String(),
		StartDate:   "2024-06-12",
		EndDate:     "2024-06-14",
		Attachments: []string{"uploads/note.pdf"},
		CreatedBy:   "emp-a",
	})
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ApproveLeaveRequest(ctx, created.ID, "admin-1"); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)

	report, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.False(t, report.Failed())

	entry, err := svc.GetLedgerEntry(ctx, "emp-a", sickID)
	require.NoError(t, err)
	assert.True(t, entry.DaysUsed.Equal(decimal.NewFromInt(5)), "days used %s", entry.DaysUsed)
}
