package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
)

// Reconciler rebuilds the quota ledger from approved requests.
type Reconciler interface {
	Reconcile(ctx context.Context) (leave.ReconcileReport, error)
}

// LeaveJobs contains leave-related cron jobs
type LeaveJobs struct {
	reconciler Reconciler
	logger     *slog.Logger
}

// NewLeaveJobs creates leave cron jobs
func NewLeaveJobs(reconciler Reconciler, logger *slog.Logger) *LeaveJobs {
	return &LeaveJobs{reconciler: reconciler, logger: logger}
}

// RegisterJobs registers the ledger reconciliation on interval.
func (j *LeaveJobs) RegisterJobs(scheduler *Scheduler, interval time.Duration) {
	scheduler.AddJob(Job{
		Name:     "reconcile_leave_ledger",
		Interval: interval,
		Fn:       j.ReconcileLedger,
	})
}

// ReconcileLedger runs one reconciliation. Group failures are reported by
// the reconciliation itself and do not fail the job.
func (j *LeaveJobs) ReconcileLedger(ctx context.Context) error {
	report, err := j.reconciler.Reconcile(ctx)
	if err != nil {
		return err
	}
	if report.Failed() {
		j.logger.Warn("leave ledger reconciliation incomplete", slog.Int("failed_groups", len(report.Failures)))
	}
	return nil
}
