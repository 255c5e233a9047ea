package leave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-go/internal/pkg/validator"
	"github.com/google/uuid"
)

// RequestService drives the leave request state machine:
// pending -> approved | rejected. Guards run before any write; the ledger
// update and events follow the stored transition.
type RequestService struct {
	leave.RequestRepository
	leave.LeaveTypeResolver
	ledger *LedgerService
	tx     leave.Transactor
	clock  leave.Clock
	events leave.EventSink
	logger *slog.Logger
}

// NewRequestService wires the state machine. tx may be nil when the store
// cannot span the request and ledger tables in one transaction.
func NewRequestService(
	requestRepository leave.RequestRepository,
	resolver leave.LeaveTypeResolver,
	ledger *LedgerService,
	tx leave.Transactor,
	clock leave.Clock,
	events leave.EventSink,
	logger *slog.Logger,
) *RequestService {
	return &RequestService{
		RequestRepository: requestRepository,
		LeaveTypeResolver: resolver,
		ledger:            ledger,
		tx:                tx,
		clock:             clock,
		events:            events,
		logger:            logger,
	}
}

func (r *RequestService) Create(ctx context.Context, req leave.CreateLeaveRequestRequest) (leave.LeaveRequest, error) {
	if err := req.Validate(); err != nil {
		return leave.LeaveRequest{}, err
	}

	def, err := r.LeaveTypeResolver.ResolveLeaveType(ctx, req.LeaveTypeID)
	if err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("failed to resolve leave type: %w", err)
	}

	if err := checkLeaveTypeRules(def, leave.LeaveSubtype(req.Subtype), req.Attachments); err != nil {
		return leave.LeaveRequest{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("failed to generate leave request id: %w", err)
	}

	now := r.clock.Now()
	request := buildRequest(req, def)
	request.ID = leave.RequestID(id.String())
	request.Timing = ClassifyTiming(now, request.StartDate)
	request.Status = leave.LeaveRequestStatusPending
	request.CreatedBy = leave.UserID(req.CreatedBy)
	request.CreatedAt = now
	request.UpdatedAt = now

	duration, err := ClassifyDuration(request, def)
	if err != nil {
		return leave.LeaveRequest{}, err
	}

	created, err := r.RequestRepository.Create(ctx, request)
	if err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("failed to create leave request: %w", err)
	}

	r.emit(ctx, leave.NewEvent(leave.EventRequestCreated, created, created.CreatedBy, now).WithDuration(duration))
	return created, nil
}

func (r *RequestService) Get(ctx context.Context, id leave.RequestID) (leave.LeaveRequest, error) {
	request, err := r.RequestRepository.GetByID(ctx, id)
	if err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("failed to get leave request by ID: %w", err)
	}
	return request, nil
}

// Approve moves a pending request to approved and records its consumption.
// Calling it again for an approved request re-drives the idempotent ledger
// write, so a retry after a failure between the two steps completes the
// ledger, and then reports the transition error.
func (r *RequestService) Approve(ctx context.Context, requestID leave.RequestID, approverID leave.UserID) (leave.LeaveRequest, error) {
	if validator.IsEmpty(approverID.String()) {
		return leave.LeaveRequest{}, validator.ValidationErrors{{Field: "approved_by", Message: "approved_by is required"}}
	}

	request, err := r.RequestRepository.GetByID(ctx, requestID)
	if err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("failed to get leave request by ID: %w", err)
	}

	if request.Status.IsTerminal() {
		if request.Status == leave.LeaveRequestStatusApproved {
			r.redriveConsumption(ctx, request)
		}
		return leave.LeaveRequest{}, &leave.TransitionError{
			RequestID: request.ID,
			Op:        "approve",
			From:      request.Status,
			To:        leave.LeaveRequestStatusApproved,
		}
	}

	def, err := r.LeaveTypeResolver.ResolveLeaveType(ctx, request.LeaveTypeID.String())
	if err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("failed to resolve leave type: %w", err)
	}
	duration, err := ClassifyDuration(request, def)
	if err != nil {
		return leave.LeaveRequest{}, err
	}

	now := r.clock.Now()
	approved := request
	approved.Status = leave.LeaveRequestStatusApproved
	approved.ApprovedBy = &approverID
	approved.ApprovedAt = &now
	approved.UpdatedAt = now

	apply := func(ctx context.Context) error {
		if err := r.RequestRepository.Transition(ctx, approved, leave.LeaveRequestStatusPending); err != nil {
			return err
		}
		if _, err := r.ledger.RecordConsumption(ctx, approved.ID, approved.EmployeeID, def.ID, duration); err != nil {
			return err
		}
		return nil
	}

	if r.tx != nil {
		err = r.tx.WithinTransaction(ctx, apply)
	} else {
		err = apply(ctx)
	}
	if err != nil {
		if errors.Is(err, leave.ErrInvalidTransition) {
			return leave.LeaveRequest{}, r.lostRace(ctx, requestID, "approve", leave.LeaveRequestStatusApproved)
		}
		return leave.LeaveRequest{}, fmt.Errorf("failed to approve leave request: %w", err)
	}

	r.logger.InfoContext(ctx, "leave request approved",
		slog.String("request_id", approved.ID.String()),
		slog.String("employee_id", approved.EmployeeID.String()),
		slog.String("approved_by", approverID.String()),
	)
	r.emit(ctx, leave.NewEvent(leave.EventRequestApproved, approved, approverID, now).WithDuration(duration))
	return approved, nil
}

// redriveConsumption repeats the ledger write for an approved request. The
// ledger ignores it when the request was already counted.
func (r *RequestService) redriveConsumption(ctx context.Context, request leave.LeaveRequest) {
	def, err := r.LeaveTypeResolver.ResolveLeaveType(ctx, request.LeaveTypeID.String())
	if err == nil {
		var duration leave.Duration
		duration, err = ClassifyDuration(request, def)
		if err == nil {
			var applied bool
			applied, err = r.ledger.RecordConsumption(ctx, request.ID, request.EmployeeID, def.ID, duration)
			if applied {
				r.logger.WarnContext(ctx, "recovered missing ledger consumption for approved leave request",
					slog.String("request_id", request.ID.String()),
				)
			}
		}
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to re-drive ledger consumption",
			slog.String("request_id", request.ID.String()),
			slog.Any("error", err),
		)
	}
}

func (r *RequestService) Reject(ctx context.Context, req leave.RejectLeaveRequestRequest) (leave.LeaveRequest, error) {
	if err := req.Validate(); err != nil {
		return leave.LeaveRequest{}, err
	}

	request, err := r.RequestRepository.GetByID(ctx, leave.RequestID(req.ID))
	if err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("failed to get leave request by ID: %w", err)
	}

	if request.Status.IsTerminal() {
		return leave.LeaveRequest{}, &leave.TransitionError{
			RequestID: request.ID,
			Op:        "reject",
			From:      request.Status,
			To:        leave.LeaveRequestStatusRejected,
		}
	}

	now := r.clock.Now()
	rejectedBy := leave.UserID(req.RejectedBy)
	reason := req.Reason
	rejected := request
	rejected.Status = leave.LeaveRequestStatusRejected
	rejected.RejectedBy = &rejectedBy
	rejected.RejectedAt = &now
	rejected.RejectedReason = &reason
	rejected.UpdatedAt = now

	if err := r.RequestRepository.Transition(ctx, rejected, leave.LeaveRequestStatusPending); err != nil {
		if errors.Is(err, leave.ErrInvalidTransition) {
			return leave.LeaveRequest{}, r.lostRace(ctx, request.ID, "reject", leave.LeaveRequestStatusRejected)
		}
		return leave.LeaveRequest{}, fmt.Errorf("failed to reject leave request: %w", err)
	}

	r.logger.InfoContext(ctx, "leave request rejected",
		slog.String("request_id", rejected.ID.String()),
		slog.String("rejected_by", rejectedBy.String()),
	)
	r.emit(ctx, leave.NewEvent(leave.EventRequestRejected, rejected, rejectedBy, now))
	return rejected, nil
}

// Edit changes a pending request. The merged result must pass the same
// checks as Create.
func (r *RequestService) Edit(ctx context.Context, req leave.EditLeaveRequestRequest) (leave.LeaveRequest, error) {
	if err := req.Validate(); err != nil {
		return leave.LeaveRequest{}, err
	}

	current, err := r.RequestRepository.GetByID(ctx, leave.RequestID(req.ID))
	if err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("failed to get leave request by ID: %w", err)
	}

	if current.Status.IsTerminal() {
		return leave.LeaveRequest{}, &leave.TransitionError{RequestID: current.ID, Op: "edit", From: current.Status}
	}

	merged := req.Apply(current)
	if err := merged.Validate(); err != nil {
		return leave.LeaveRequest{}, err
	}

	def, err := r.LeaveTypeResolver.ResolveLeaveType(ctx, merged.LeaveTypeID)
	if err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("failed to resolve leave type: %w", err)
	}
	if err := checkLeaveTypeRules(def, leave.LeaveSubtype(merged.Subtype), merged.Attachments); err != nil {
		return leave.LeaveRequest{}, err
	}

	now := r.clock.Now()
	updated := buildRequest(merged, def)
	updated.ID = current.ID
	updated.Status = current.Status
	updated.Timing = ClassifyTiming(now, updated.StartDate)
	updated.CreatedBy = current.CreatedBy
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = now

	if _, err := ClassifyDuration(updated, def); err != nil {
		return leave.LeaveRequest{}, err
	}

	if err := r.RequestRepository.Update(ctx, updated); err != nil {
		if errors.Is(err, leave.ErrInvalidTransition) {
			return leave.LeaveRequest{}, r.lostRace(ctx, current.ID, "edit", "")
		}
		return leave.LeaveRequest{}, fmt.Errorf("failed to update leave request: %w", err)
	}

	return updated, nil
}

// Delete removes a pending request, or a rejected one when opts is
// administrative. Approved requests are never deleted.
func (r *RequestService) Delete(ctx context.Context, requestID leave.RequestID, opts leave.DeleteOptions) error {
	request, err := r.RequestRepository.GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to get leave request by ID: %w", err)
	}

	allowed := deletableStatuses(opts)
	if !statusIn(request.Status, allowed) {
		return &leave.TransitionError{RequestID: request.ID, Op: "delete", From: request.Status}
	}

	if err := r.RequestRepository.Delete(ctx, requestID, allowed); err != nil {
		if errors.Is(err, leave.ErrInvalidTransition) {
			return r.lostRace(ctx, requestID, "delete", "")
		}
		return fmt.Errorf("failed to delete leave request: %w", err)
	}

	r.logger.InfoContext(ctx, "leave request deleted",
		slog.String("request_id", requestID.String()),
		slog.String("status", string(request.Status)),
		slog.Bool("administrative", opts.Administrative),
		slog.String("actor_id", opts.ActorID.String()),
	)
	return nil
}

func deletableStatuses(opts leave.DeleteOptions) []leave.LeaveRequestStatus {
	if opts.Administrative {
		return []leave.LeaveRequestStatus{leave.LeaveRequestStatusPending, leave.LeaveRequestStatusRejected}
	}
	return []leave.LeaveRequestStatus{leave.LeaveRequestStatusPending}
}

func statusIn(status leave.LeaveRequestStatus, statuses []leave.LeaveRequestStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// lostRace builds the transition error for a compare-and-swap that found the
// request no longer pending.
func (r *RequestService) lostRace(ctx context.Context, requestID leave.RequestID, op string, to leave.LeaveRequestStatus) error {
	current, err := r.RequestRepository.GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to get leave request by ID: %w", err)
	}
	return &leave.TransitionError{RequestID: requestID, Op: op, From: current.Status, To: to}
}

// emit hands event to the sink. Failures are logged; the stored transition stands.
func (r *RequestService) emit(ctx context.Context, event leave.Event) {
	if r.events == nil {
		return
	}
	if err := r.events.Emit(ctx, event); err != nil {
		r.logger.WarnContext(ctx, "failed to emit leave event",
			slog.String("event", string(event.Name)),
			slog.String("request_id", event.RequestID),
			slog.Any("error", err),
		)
	}
}

// checkLeaveTypeRules applies the rules that depend on the leave type.
func checkLeaveTypeRules(def leave.LeaveTypeDefinition, subtype leave.LeaveSubtype, attachments []string) error {
	var errs validator.ValidationErrors

	if def.RequiresAttachment && len(attachments) == 0 {
		errs = append(errs, validator.ValidationError{
			Field:   "attachments",
			Message: leave.ErrAttachmentRequired.Error(),
		})
	}
	if subtype == leave.LeaveSubtypeHour && !def.AllowHourly {
		errs = append(errs, validator.ValidationError{
			Field:   "subtype",
			Message: leave.ErrHourlyNotAllowed.Error(),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// buildRequest maps a validated create request onto an entity. The leave
// type id is normalised to the resolved definition's id.
func buildRequest(req leave.CreateLeaveRequestRequest, def leave.LeaveTypeDefinition) leave.LeaveRequest {
	start, end := req.Dates()
	request := leave.LeaveRequest{
		EmployeeID:  leave.EmployeeID(req.EmployeeID),
		LeaveTypeID: def.ID,
		Subtype:     leave.LeaveSubtype(req.Subtype),
		StartDate:   DateOf(start),
		EndDate:     DateOf(end),
		Reason:      req.Reason,
		Attachments: req.Attachments,
	}
	if request.Subtype == leave.LeaveSubtypeHour {
		request.StartTime = req.StartTime
		request.EndTime = req.EndTime
	}
	return request
}
