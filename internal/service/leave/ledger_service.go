package leave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-go/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

// LedgerService owns the quota ledger. Every write goes through it.
type LedgerService struct {
	leave.LedgerRepository
	clock  leave.Clock
	logger *slog.Logger
}

func NewLedgerService(ledgerRepository leave.LedgerRepository, clock leave.Clock, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		LedgerRepository: ledgerRepository,
		clock:            clock,
		logger:           logger,
	}
}

// RecordConsumption adds d to the employee's entry for the leave type. The
// request id is the idempotency key: a second call for the same request is a
// no-op and reports applied == false.
func (s *LedgerService) RecordConsumption(ctx context.Context, requestID leave.RequestID, employeeID leave.EmployeeID, leaveTypeID leave.LeaveTypeID, d leave.Duration) (bool, error) {
	var errs validator.ValidationErrors
	if validator.IsEmpty(requestID.String()) {
		errs = append(errs, validator.ValidationError{Field: "request_id", Message: "request_id is required"})
	}
	if validator.IsEmpty(employeeID.String()) {
		errs = append(errs, validator.ValidationError{Field: "employee_id", Message: "employee_id is required"})
	}
	if validator.IsEmpty(leaveTypeID.String()) {
		errs = append(errs, validator.ValidationError{Field: "leave_type_id", Message: "leave_type_id is required"})
	}
	if !d.Unit.Valid() {
		errs = append(errs, validator.ValidationError{Field: "unit", Message: "unit must be one of: days hours"})
	}
	if d.Amount.IsNegative() {
		errs = append(errs, validator.ValidationError{Field: "amount", Message: "amount must not be negative"})
	}
	if len(errs) > 0 {
		return false, errs
	}

	applied, err := s.LedgerRepository.ApplyConsumption(ctx, leave.LedgerApplication{
		RequestID:   requestID,
		EmployeeID:  employeeID,
		LeaveTypeID: leaveTypeID,
		Duration:    d,
		AppliedAt:   s.clock.Now(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to record ledger consumption: %w", err)
	}

	if !applied {
		s.logger.DebugContext(ctx, "ledger consumption already applied",
			slog.String("request_id", requestID.String()),
		)
		return false, nil
	}

	s.logger.InfoContext(ctx, "ledger consumption recorded",
		slog.String("request_id", requestID.String()),
		slog.String("employee_id", employeeID.String()),
		slog.String("leave_type_id", leaveTypeID.String()),
		slog.String("unit", string(d.Unit)),
		slog.String("amount", d.Amount.String()),
	)
	return true, nil
}

func (s *LedgerService) Get(ctx context.Context, employeeID leave.EmployeeID, leaveTypeID leave.LeaveTypeID) (leave.QuotaLedgerEntry, error) {
	entry, err := s.LedgerRepository.GetEntry(ctx, leave.LedgerKey{EmployeeID: employeeID, LeaveTypeID: leaveTypeID})
	if err != nil {
		return leave.QuotaLedgerEntry{}, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return entry, nil
}

func (s *LedgerService) List(ctx context.Context, employeeID leave.EmployeeID) ([]leave.QuotaLedgerEntry, error) {
	entries, err := s.LedgerRepository.ListByEmployee(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}

// RemainingQuota returns positionQuota minus what the ledger records as used
// in the quota's unit, never below zero. A missing entry counts as nothing used.
func (s *LedgerService) RemainingQuota(ctx context.Context, employeeID leave.EmployeeID, positionQuota leave.Duration, leaveTypeID leave.LeaveTypeID) (decimal.Decimal, error) {
	var errs validator.ValidationErrors
	if !positionQuota.Unit.Valid() {
		errs = append(errs, validator.ValidationError{Field: "unit", Message: "unit must be one of: days hours"})
	}
	if positionQuota.Amount.IsNegative() {
		errs = append(errs, validator.ValidationError{Field: "quota", Message: "quota must not be negative"})
	}
	if len(errs) > 0 {
		return decimal.Zero, errs
	}

	used := decimal.Zero
	entry, err := s.LedgerRepository.GetEntry(ctx, leave.LedgerKey{EmployeeID: employeeID, LeaveTypeID: leaveTypeID})
	switch {
	case err == nil:
		used = entry.Used(positionQuota.Unit)
	case errors.Is(err, leave.ErrLedgerEntryNotFound):
	default:
		return decimal.Zero, fmt.Errorf("failed to get ledger entry: %w", err)
	}

	remaining := positionQuota.Amount.Sub(used)
	if remaining.IsNegative() {
		return decimal.Zero, nil
	}
	return remaining, nil
}
