package app

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/cmlabs-hris/hris-leave-go/internal/config"
	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-go/internal/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, driver string) *config.Config {
	cfg := &config.Config{}
	cfg.Database.Driver = driver
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "leave.db")
	cfg.Leave.ReconcileConcurrency = 2
	cfg.Leave.ReconcileMaxRetries = 1
	return cfg
}

func TestOpenStorage_SeedsDefaultLeaveTypes(t *testing.T) {
	for _, driver := range []string{config.DriverMemory, config.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			st, err := OpenStorage(ctx, testConfig(t, driver))
			require.NoError(t, err)
			t.Cleanup(func() { assert.NoError(t, st.Close()) })

			def, err := st.Types.ResolveLeaveType(ctx, "cuti sakit")
			require.NoError(t, err)
			assert.Equal(t, fixtures.SickLeaveID, def.ID)
			assert.True(t, def.RequiresAttachment)

			if driver == config.DriverMemory {
				assert.Nil(t, st.Tx)
			} else {
				assert.NotNil(t, st.Tx)
			}
		})
	}
}

func TestOpenStorage_UnknownDriver(t *testing.T) {
	_, err := OpenStorage(context.Background(), testConfig(t, "mysql"))
	assert.Error(t, err)
}

func TestNewLeaveService_ApprovesOnSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, config.DriverSQLite)
	st, err := OpenStorage(ctx, cfg)
	require.NoError(t, err)
	defer st.Close()

	svc := NewLeaveService(cfg, st, nil, slog.New(slog.DiscardHandler))
	created, err := svc.CreateLeaveRequest(ctx, leave.CreateLeaveRequestRequest{
		EmployeeID:  "emp-1",
		LeaveTypeID: "Cuti Tahunan",
		StartDate:   "2024-07-01",
		EndDate:     "2024-07-02",
		Reason:      "trip",
		CreatedBy:   "emp-1",
	})
	require.NoError(t, err)

	_, err = svc.ApproveLeaveRequest(ctx, created.ID, "admin-1")
	require.NoError(t, err)

	entry, err := svc.GetLedgerEntry(ctx, "emp-1", fixtures.AnnualLeaveID)
	require.NoError(t, err)
	assert.Equal(t, "2", entry.DaysUsed.String())
}
