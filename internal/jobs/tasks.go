// Package jobs runs leave maintenance work on an asynq queue.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the queue leave tasks are enqueued on.
	QueueDefault = "default"
	// TaskReconcileLedger rebuilds the quota ledger from approved requests.
	TaskReconcileLedger = "leave:reconcile_ledger"
)

// ReconcilePayload describes who asked for a reconciliation. It is part of
// the task's uniqueness key, so it carries no timestamps.
type ReconcilePayload struct {
	Trigger string `json:"trigger"`
}

// NewReconcileTask constructs a reconcile task.
func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileLedger, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// Reconciler rebuilds the quota ledger.
type Reconciler interface {
	Reconcile(ctx context.Context) (leave.ReconcileReport, error)
}

// ReconcileJob handles TaskReconcileLedger tasks.
type ReconcileJob struct {
	reconciler Reconciler
	logger     *slog.Logger
}

func NewReconcileJob(reconciler Reconciler, logger *slog.Logger) *ReconcileJob {
	return &ReconcileJob{reconciler: reconciler, logger: logger}
}

// Handle runs the reconciliation. Retryable storage errors are returned so
// asynq retries the task; anything else skips retry.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode reconcile payload: %w", asynq.SkipRetry)
	}

	logger := j.logger.With(slog.String("trigger", payload.Trigger))
	logger.InfoContext(ctx, "starting leave ledger reconciliation")

	report, err := j.reconciler.Reconcile(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "leave ledger reconciliation failed", slog.Any("error", err))
		if leave.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if report.Failed() {
		logger.WarnContext(ctx, "leave ledger reconciliation incomplete", slog.Int("failed_groups", len(report.Failures)))
	}
	return nil
}
