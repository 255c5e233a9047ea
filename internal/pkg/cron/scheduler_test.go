package cron

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReconciler struct {
	calls  atomic.Int32
	report leave.ReconcileReport
	err    error
}

func (s *stubReconciler) Reconcile(context.Context) (leave.ReconcileReport, error) {
	s.calls.Add(1)
	return s.report, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestScheduler_RunsJobsOnInterval(t *testing.T) {
	s := NewScheduler(discardLogger())
	var runs atomic.Int32
	s.AddJob(Job{Name: "tick", Interval: 5 * time.Millisecond, Immediate: true, Fn: func(context.Context) error {
		runs.Add(1)
		return nil
	}})
	s.AddJob(Job{Name: "disabled", Interval: 0, Fn: func(context.Context) error {
		t.Error("disabled job ran")
		return nil
	}})

	s.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	s.Stop()

	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no runs after Stop")
}

func TestLeaveJobs_ReconcileLedger(t *testing.T) {
	rec := &stubReconciler{report: leave.ReconcileReport{Failures: []leave.GroupFailure{{EmployeeID: "emp-a", Err: errors.New("boom")}}}}
	jobs := NewLeaveJobs(rec, discardLogger())

	s := NewScheduler(discardLogger())
	jobs.RegisterJobs(s, time.Hour)
	s.RunOnce(context.Background())
	assert.Equal(t, int32(1), rec.calls.Load())

	assert.NoError(t, jobs.ReconcileLedger(context.Background()), "group failures do not fail the job")

	rec.err = &leave.StorageError{Op: "list ledger entries", Err: errors.New("down")}
	assert.ErrorIs(t, jobs.ReconcileLedger(context.Background()), leave.ErrStorageUnavailable)
}
