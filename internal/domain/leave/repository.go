package leave

import (
	"context"
	"time"
)

// RequestRepository - interface for leave_requests table
type RequestRepository interface {
	GetByID(ctx context.Context, id RequestID) (LeaveRequest, error)
	Create(ctx context.Context, request LeaveRequest) (LeaveRequest, error)
	// Update rewrites the editable fields of a pending request. It fails with
	// ErrInvalidTransition when the stored row is no longer pending.
	Update(ctx context.Context, request LeaveRequest) error
	// Transition stores request with its new status only if the stored status
	// still equals from. A lost race yields ErrInvalidTransition.
	Transition(ctx context.Context, request LeaveRequest, from LeaveRequestStatus) error
	// Delete removes the request only if its stored status is one of allowed.
	Delete(ctx context.Context, id RequestID, allowed []LeaveRequestStatus) error
	// ListApproved returns approved requests ordered by created_at, then id.
	ListApproved(ctx context.Context) ([]LeaveRequest, error)
	ListApprovedByEmployee(ctx context.Context, employeeID EmployeeID) ([]LeaveRequest, error)
}

// LedgerRepository - interface for leave_ledger_entries and leave_ledger_applications tables
type LedgerRepository interface {
	GetEntry(ctx context.Context, key LedgerKey) (QuotaLedgerEntry, error)
	ListEntries(ctx context.Context) ([]QuotaLedgerEntry, error)
	ListByEmployee(ctx context.Context, employeeID EmployeeID) ([]QuotaLedgerEntry, error)
	// ApplyConsumption adds app.Duration to its entry unless app.RequestID was
	// already applied. The entry is created on first use.
	ApplyConsumption(ctx context.Context, app LedgerApplication) (applied bool, err error)
	// ReplaceEntry overwrites the entry totals if its stored version equals
	// expectedVersion (0 means the entry must not exist yet) and records apps
	// as applied. A mismatch yields ErrVersionConflict.
	ReplaceEntry(ctx context.Context, entry QuotaLedgerEntry, expectedVersion int64, apps []LedgerApplication) (created bool, err error)
}

// Transactor runs fn inside one storage transaction. Repositories called
// with the ctx passed to fn join that transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// LeaveTypeResolver finds a leave type by id or by a legacy display name.
type LeaveTypeResolver interface {
	ResolveLeaveType(ctx context.Context, idOrLegacyName string) (LeaveTypeDefinition, error)
}

type Clock interface {
	Now() time.Time
}

// EventSink receives lifecycle events after the state change is stored.
type EventSink interface {
	Emit(ctx context.Context, event Event) error
}
