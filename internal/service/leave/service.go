package leave

import (
	"context"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/shopspring/decimal"
)

type Config struct {
	// StorageTimeout bounds each storage call whose context has no deadline.
	StorageTimeout time.Duration
	// ReconcileConcurrency is how many ledger groups are written in parallel.
	ReconcileConcurrency int
	// ReconcileMaxRetries bounds version-conflict retries per group.
	ReconcileMaxRetries int
}

func DefaultConfig() Config {
	return Config{
		StorageTimeout:       5 * time.Second,
		ReconcileConcurrency: 4,
		ReconcileMaxRetries:  3,
	}
}

type LeaveServiceImpl struct {
	requestService   *RequestService
	ledgerService    *LedgerService
	reconcileService *ReconcileService
}

var _ leave.LeaveService = (*LeaveServiceImpl)(nil)

// NewLeaveService wires the leave core. tx may be nil; events may be nil.
func NewLeaveService(
	requestRepository leave.RequestRepository,
	ledgerRepository leave.LedgerRepository,
	resolver leave.LeaveTypeResolver,
	tx leave.Transactor,
	clock leave.Clock,
	events leave.EventSink,
	logger *slog.Logger,
	cfg Config,
) *LeaveServiceImpl {
	requests := guardedRequests{repo: requestRepository, timeout: cfg.StorageTimeout}
	ledgerRepo := guardedLedger{repo: ledgerRepository, timeout: cfg.StorageTimeout}
	types := guardedResolver{resolver: resolver, timeout: cfg.StorageTimeout}
	if tx != nil {
		tx = guardedTransactor{tx: tx, timeout: cfg.StorageTimeout}
	}

	ledgerService := NewLedgerService(ledgerRepo, clock, logger)
	return &LeaveServiceImpl{
		requestService:   NewRequestService(requests, types, ledgerService, tx, clock, events, logger),
		ledgerService:    ledgerService,
		reconcileService: NewReconcileService(requests, ledgerRepo, types, clock, logger, cfg.ReconcileConcurrency, cfg.ReconcileMaxRetries),
	}
}

// CreateLeaveRequest implements leave.LeaveService.
func (l *LeaveServiceImpl) CreateLeaveRequest(ctx context.Context, req leave.CreateLeaveRequestRequest) (leave.LeaveRequest, error) {
	return l.requestService.Create(ctx, req)
}

// GetLeaveRequest implements leave.LeaveService.
func (l *LeaveServiceImpl) GetLeaveRequest(ctx context.Context, id leave.RequestID) (leave.LeaveRequest, error) {
	return l.requestService.Get(ctx, id)
}

// EditLeaveRequest implements leave.LeaveService.
func (l *LeaveServiceImpl) EditLeaveRequest(ctx context.Context, req leave.EditLeaveRequestRequest) (leave.LeaveRequest, error) {
	return l.requestService.Edit(ctx, req)
}

// ApproveLeaveRequest implements leave.LeaveService.
func (l *LeaveServiceImpl) ApproveLeaveRequest(ctx context.Context, id leave.RequestID, approverID leave.UserID) (leave.LeaveRequest, error) {
	return l.requestService.Approve(ctx, id, approverID)
}

// RejectLeaveRequest implements leave.LeaveService.
func (l *LeaveServiceImpl) RejectLeaveRequest(ctx context.Context, req leave.RejectLeaveRequestRequest) (leave.LeaveRequest, error) {
	return l.requestService.Reject(ctx, req)
}

// DeleteLeaveRequest implements leave.LeaveService.
func (l *LeaveServiceImpl) DeleteLeaveRequest(ctx context.Context, id leave.RequestID, opts leave.DeleteOptions) error {
	return l.requestService.Delete(ctx, id, opts)
}

// RecordConsumption implements leave.LeaveService.
func (l *LeaveServiceImpl) RecordConsumption(ctx context.Context, requestID leave.RequestID, employeeID leave.EmployeeID, leaveTypeID leave.LeaveTypeID, d leave.Duration) (bool, error) {
	return l.ledgerService.RecordConsumption(ctx, requestID, employeeID, leaveTypeID, d)
}

// GetLedgerEntry implements leave.LeaveService.
func (l *LeaveServiceImpl) GetLedgerEntry(ctx context.Context, employeeID leave.EmployeeID, leaveTypeID leave.LeaveTypeID) (leave.QuotaLedgerEntry, error) {
	return l.ledgerService.Get(ctx, employeeID, leaveTypeID)
}

// ListLedgerEntries implements leave.LeaveService.
func (l *LeaveServiceImpl) ListLedgerEntries(ctx context.Context, employeeID leave.EmployeeID) ([]leave.QuotaLedgerEntry, error) {
	return l.ledgerService.List(ctx, employeeID)
}

// RemainingQuota implements leave.LeaveService.
func (l *LeaveServiceImpl) RemainingQuota(ctx context.Context, employeeID leave.EmployeeID, positionQuota leave.Duration, leaveTypeID leave.LeaveTypeID) (decimal.Decimal, error) {
	return l.ledgerService.RemainingQuota(ctx, employeeID, positionQuota, leaveTypeID)
}

// Reconcile implements leave.LeaveService.
func (l *LeaveServiceImpl) Reconcile(ctx context.Context) (leave.ReconcileReport, error) {
	return l.reconcileService.Run(ctx)
}
