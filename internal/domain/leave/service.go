package leave

import (
	"context"

	"github.com/shopspring/decimal"
)

type LeaveService interface {
	// Request
	CreateLeaveRequest(ctx context.Context, req CreateLeaveRequestRequest) (LeaveRequest, error)
	GetLeaveRequest(ctx context.Context, id RequestID) (LeaveRequest, error)
	EditLeaveRequest(ctx context.Context, req EditLeaveRequestRequest) (LeaveRequest, error)
	ApproveLeaveRequest(ctx context.Context, id RequestID, approverID UserID) (LeaveRequest, error)
	RejectLeaveRequest(ctx context.Context, req RejectLeaveRequestRequest) (LeaveRequest, error)
	DeleteLeaveRequest(ctx context.Context, id RequestID, opts DeleteOptions) error
	// Ledger
	RecordConsumption(ctx context.Context, requestID RequestID, employeeID EmployeeID, leaveTypeID LeaveTypeID, d Duration) (bool, error)
	GetLedgerEntry(ctx context.Context, employeeID EmployeeID, leaveTypeID LeaveTypeID) (QuotaLedgerEntry, error)
	ListLedgerEntries(ctx context.Context, employeeID EmployeeID) ([]QuotaLedgerEntry, error)
	RemainingQuota(ctx context.Context, employeeID EmployeeID, positionQuota Duration, leaveTypeID LeaveTypeID) (decimal.Decimal, error)
	// Reconciliation
	Reconcile(ctx context.Context) (ReconcileReport, error)
}
