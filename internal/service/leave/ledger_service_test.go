package leave

import (
	"context"
	"testing"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordConsumption_IsIdempotentPerRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	applied, err := f.svc.RecordConsumption(ctx, "req-1", employeeA, vacationID, leave.Days(2))
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = f.svc.RecordConsumption(ctx, "req-1", employeeA, vacationID, leave.Days(2))
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = f.svc.RecordConsumption(ctx, "req-2", employeeA, vacationID, leave.Days(1))
	require.NoError(t, err)
	assert.True(t, applied)

	entry, err := f.svc.GetLedgerEntry(ctx, employeeA, vacationID)
	require.NoError(t, err)
	assert.True(t, entry.DaysUsed.Equal(decimal.NewFromInt(3)), "days used %s", entry.DaysUsed)
	assert.True(t, entry.HoursUsed.IsZero())
	assert.Equal(t, int64(2), entry.Version)
	assert.Equal(t, f.clock.Now(), entry.UpdatedAt)
}

func TestRecordConsumption_KeepsUnitsApart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RecordConsumption(ctx, "req-1", employeeA, personalID, leave.Hours(decimal.RequireFromString("1.5")))
	require.NoError(t, err)
	_, err = f.svc.RecordConsumption(ctx, "req-2", employeeA, personalID, leave.Days(1))
	require.NoError(t, err)

	entry, err := f.svc.GetLedgerEntry(ctx, employeeA, personalID)
	require.NoError(t, err)
	assert.True(t, entry.HoursUsed.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, entry.DaysUsed.Equal(decimal.NewFromInt(1)))
}

func TestRecordConsumption_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RecordConsumption(ctx, "", employeeA, vacationID, leave.Days(1))
	assert.ErrorIs(t, err, leave.ErrValidation)

	_, err = f.svc.RecordConsumption(ctx, "req-1", employeeA, vacationID, leave.Duration{Unit: "weeks", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, leave.ErrValidation)

	_, err = f.svc.RecordConsumption(ctx, "req-1", employeeA, vacationID, leave.Days(-1))
	assert.ErrorIs(t, err, leave.ErrValidation)

	_, err = f.svc.GetLedgerEntry(ctx, employeeA, vacationID)
	assert.ErrorIs(t, err, leave.ErrLedgerEntryNotFound)
}

func TestGetLedgerEntry_Missing(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetLedgerEntry(context.Background(), employeeA, sickID)
	assert.ErrorIs(t, err, leave.ErrLedgerEntryNotFound)
	assert.Equal(t, "not_found", leave.Kind(err))
}

func TestListLedgerEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RecordConsumption(ctx, "req-1", employeeA, vacationID, leave.Days(1))
	require.NoError(t, err)
	_, err = f.svc.RecordConsumption(ctx, "req-2", employeeA, sickID, leave.Days(2))
	require.NoError(t, err)
	_, err = f.svc.RecordConsumption(ctx, "req-3", employeeB, sickID, leave.Days(4))
	require.NoError(t, err)

	entries, err := f.svc.ListLedgerEntries(ctx, employeeA)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, employeeA, e.EmployeeID)
	}
}

func TestRemainingQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	remaining, err := f.svc.RemainingQuota(ctx, employeeA, leave.Days(12), vacationID)
	require.NoError(t, err)
	assert.True(t, remaining.Equal(decimal.NewFromInt(12)), "nothing used yet")

	_, err = f.svc.RecordConsumption(ctx, "req-1", employeeA, vacationID, leave.Days(5))
	require.NoError(t, err)

	remaining, err = f.svc.RemainingQuota(ctx, employeeA, leave.Days(12), vacationID)
	require.NoError(t, err)
	assert.True(t, remaining.Equal(decimal.NewFromInt(7)))

	remaining, err = f.svc.RemainingQuota(ctx, employeeA, leave.Days(3), vacationID)
	require.NoError(t, err)
	assert.True(t, remaining.IsZero(), "clamped at zero, got %s", remaining)

	_, err = f.svc.RecordConsumption(ctx, "req-2", employeeA, personalID, leave.Hours(decimal.NewFromInt(3)))
	require.NoError(t, err)
	remaining, err = f.svc.RemainingQuota(ctx, employeeA, leave.Hours(decimal.NewFromInt(8)), personalID)
	require.NoError(t, err)
	assert.True(t, remaining.Equal(decimal.NewFromInt(5)))

	_, err = f.svc.RemainingQuota(ctx, employeeA, leave.Days(-1), vacationID)
	assert.ErrorIs(t, err, leave.ErrValidation)
}
