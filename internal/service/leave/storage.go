package leave

import (
	"context"
	"errors"
	"time"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
)

// withStorageDeadline bounds a storage call by timeout unless the caller
// already set a deadline.
func withStorageDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// classifyStorageErr turns an expired deadline into a retryable StorageError.
// Errors already classified by a repository pass through.
func classifyStorageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var storageErr *leave.StorageError
	if errors.As(err, &storageErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &leave.StorageError{Op: op, Err: err}
	}
	return err
}

func guard[T any](ctx context.Context, timeout time.Duration, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := withStorageDeadline(ctx, timeout)
	defer cancel()
	v, err := fn(ctx)
	return v, classifyStorageErr(op, err)
}

func guardErr(ctx context.Context, timeout time.Duration, op string, fn func(ctx context.Context) error) error {
	_, err := guard(ctx, timeout, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// guardedRequests applies the storage deadline to every request repository call.
type guardedRequests struct {
	repo    leave.RequestRepository
	timeout time.Duration
}

func (g guardedRequests) GetByID(ctx context.Context, id leave.RequestID) (leave.LeaveRequest, error) {
	return guard(ctx, g.timeout, "get leave request", func(ctx context.Context) (leave.LeaveRequest, error) {
		return g.repo.GetByID(ctx, id)
	})
}

func (g guardedRequests) Create(ctx context.Context, request leave.LeaveRequest) (leave.LeaveRequest, error) {
	return guard(ctx, g.timeout, "create leave request", func(ctx context.Context) (leave.LeaveRequest, error) {
		return g.repo.Create(ctx, request)
	})
}

func (g guardedRequests) Update(ctx context.Context, request leave.LeaveRequest) error {
	return guardErr(ctx, g.timeout, "update leave request", func(ctx context.Context) error {
		return g.repo.Update(ctx, request)
	})
}

func (g guardedRequests) Transition(ctx context.Context, request leave.LeaveRequest, from leave.LeaveRequestStatus) error {
	return guardErr(ctx, g.timeout, "transition leave request", func(ctx context.Context) error {
		return g.repo.Transition(ctx, request, from)
	})
}

func (g guardedRequests) Delete(ctx context.Context, id leave.RequestID, allowed []leave.LeaveRequestStatus) error {
	return guardErr(ctx, g.timeout, "delete leave request", func(ctx context.Context) error {
		return g.repo.Delete(ctx, id, allowed)
	})
}

func (g guardedRequests) ListApproved(ctx context.Context) ([]leave.LeaveRequest, error) {
	return guard(ctx, g.timeout, "list approved leave requests", g.repo.ListApproved)
}

func (g guardedRequests) ListApprovedByEmployee(ctx context.Context, employeeID leave.EmployeeID) ([]leave.LeaveRequest, error) {
	return guard(ctx, g.timeout, "list approved leave requests by employee", func(ctx context.Context) ([]leave.LeaveRequest, error) {
		return g.repo.ListApprovedByEmployee(ctx, employeeID)
	})
}

// guardedLedger applies the storage deadline to every ledger repository call.
type guardedLedger struct {
	repo    leave.LedgerRepository
	timeout time.Duration
}

func (g guardedLedger) GetEntry(ctx context.Context, key leave.LedgerKey) (leave.QuotaLedgerEntry, error) {
	return guard(ctx, g.timeout, "get ledger entry", func(ctx context.Context) (leave.QuotaLedgerEntry, error) {
		return g.repo.GetEntry(ctx, key)
	})
}

func (g guardedLedger) ListEntries(ctx context.Context) ([]leave.QuotaLedgerEntry, error) {
	return guard(ctx, g.timeout, "list ledger entries", g.repo.ListEntries)
}

func (g guardedLedger) ListByEmployee(ctx context.Context, employeeID leave.EmployeeID) ([]leave.QuotaLedgerEntry, error) {
	return guard(ctx, g.timeout, "list ledger entries by employee", func(ctx context.Context) ([]leave.QuotaLedgerEntry, error) {
		return g.repo.ListByEmployee(ctx, employeeID)
	})
}

func (g guardedLedger) ApplyConsumption(ctx context.Context, app leave.LedgerApplication) (bool, error) {
	return guard(ctx, g.timeout, "apply ledger consumption", func(ctx context.Context) (bool, error) {
		return g.repo.ApplyConsumption(ctx, app)
	})
}

func (g guardedLedger) ReplaceEntry(ctx context.Context, entry leave.QuotaLedgerEntry, expectedVersion int64, apps []leave.LedgerApplication) (bool, error) {
	return guard(ctx, g.timeout, "replace ledger entry", func(ctx context.Context) (bool, error) {
		return g.repo.ReplaceEntry(ctx, entry, expectedVersion, apps)
	})
}

type guardedResolver struct {
	resolver leave.LeaveTypeResolver
	timeout  time.Duration
}

func (g guardedResolver) ResolveLeaveType(ctx context.Context, idOrLegacyName string) (leave.LeaveTypeDefinition, error) {
	return guard(ctx, g.timeout, "resolve leave type", func(ctx context.Context) (leave.LeaveTypeDefinition, error) {
		return g.resolver.ResolveLeaveType(ctx, idOrLegacyName)
	})
}

// guardedTransactor bounds the whole transaction, so statements inside it
// share one deadline.
type guardedTransactor struct {
	tx      leave.Transactor
	timeout time.Duration
}

func (g guardedTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return guardErr(ctx, g.timeout, "transaction", func(ctx context.Context) error {
		return g.tx.WithinTransaction(ctx, fn)
	})
}
