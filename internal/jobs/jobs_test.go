package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReconciler struct {
	calls  int
	report leave.ReconcileReport
	err    error
}

func (s *stubReconciler) Reconcile(context.Context) (leave.ReconcileReport, error) {
	s.calls++
	return s.report, s.err
}

func newJob(rec Reconciler) *ReconcileJob {
	return NewReconcileJob(rec, slog.New(slog.DiscardHandler))
}

func TestReconcileJob_Handle(t *testing.T) {
	task, err := NewReconcileTask(ReconcilePayload{Trigger: "cli"})
	require.NoError(t, err)
	assert.Equal(t, TaskReconcileLedger, task.Type())

	rec := &stubReconciler{report: leave.ReconcileReport{Groups: 2}}
	require.NoError(t, newJob(rec).Handle(context.Background(), task))
	assert.Equal(t, 1, rec.calls)
}

func TestReconcileJob_RetryPolicy(t *testing.T) {
	task, err := NewReconcileTask(ReconcilePayload{Trigger: "cron"})
	require.NoError(t, err)

	storageDown := &stubReconciler{err: &leave.StorageError{Op: "list approved leave requests", Err: errors.New("conn reset")}}
	err = newJob(storageDown).Handle(context.Background(), task)
	assert.ErrorIs(t, err, leave.ErrStorageUnavailable)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	broken := &stubReconciler{err: errors.New("unexpected")}
	err = newJob(broken).Handle(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = newJob(&stubReconciler{}).Handle(context.Background(), asynq.NewTask(TaskReconcileLedger, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestReconcileJob_PartialFailureIsNotRetried(t *testing.T) {
	task, err := NewReconcileTask(ReconcilePayload{Trigger: "http"})
	require.NoError(t, err)

	rec := &stubReconciler{report: leave.ReconcileReport{Failures: []leave.GroupFailure{{EmployeeID: "emp-a", Err: leave.ErrLeaveTypeNotFound}}}}
	assert.NoError(t, newJob(rec).Handle(context.Background(), task))
}

func TestClient_EnqueueReconcileIsUnique(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer client.Close()

	info, err := client.EnqueueReconcile(context.Background(), "cli")
	require.NoError(t, err)
	assert.Equal(t, TaskReconcileLedger, info.Type)
	assert.Equal(t, QueueDefault, info.Queue)

	_, err = client.EnqueueReconcile(context.Background(), "cli")
	assert.ErrorIs(t, err, asynq.ErrDuplicateTask)
}

func TestNewWorker_RequiresReconcileJob(t *testing.T) {
	_, err := NewWorker(WorkerConfig{Logger: slog.New(slog.DiscardHandler)})
	assert.Error(t, err)

	w, err := NewWorker(WorkerConfig{
		RedisOpts:     asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Logger:        slog.New(slog.DiscardHandler),
		ReconcileCron: "@every 1h",
		Reconcile:     newJob(&stubReconciler{}),
	})
	require.NoError(t, err)
	assert.NotNil(t, w.scheduler)
}
