package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-go/internal/handler/http/middleware"
	"github.com/cmlabs-hris/hris-leave-go/internal/handler/http/response"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type LeaveHandler interface {
	CreateRequest(w http.ResponseWriter, r *http.Request)
	GetRequest(w http.ResponseWriter, r *http.Request)
	EditRequest(w http.ResponseWriter, r *http.Request)
	DeleteRequest(w http.ResponseWriter, r *http.Request)
	ApproveRequest(w http.ResponseWriter, r *http.Request)
	RejectRequest(w http.ResponseWriter, r *http.Request)

	ListLedger(w http.ResponseWriter, r *http.Request)
	GetLedgerEntry(w http.ResponseWriter, r *http.Request)
	GetRemainingQuota(w http.ResponseWriter, r *http.Request)
	Reconcile(w http.ResponseWriter, r *http.Request)
}

type LeaveHandlerImpl struct {
	leaveService leave.LeaveService
	logger       *slog.Logger
}

func NewLeaveHandler(leaveService leave.LeaveService, logger *slog.Logger) LeaveHandler {
	return &LeaveHandlerImpl{leaveService: leaveService, logger: logger}
}

// CreateRequest implements LeaveHandler.
func (l *LeaveHandlerImpl) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var req leave.CreateLeaveRequestRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		l.logger.DebugContext(r.Context(), "CreateRequest decode error", slog.Any("error", err))
		response.BadRequest(w, "Invalid request format", nil)
		return
	}
	req.CreatedBy = middleware.ActorID(r.Context())

	created, err := l.leaveService.CreateLeaveRequest(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Leave request created successfully", leave.NewLeaveRequestResponse(created))
}

// GetRequest implements LeaveHandler.
func (l *LeaveHandlerImpl) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	request, err := l.leaveService.GetLeaveRequest(r.Context(), leave.RequestID(id))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, leave.NewLeaveRequestResponse(request))
}

// EditRequest implements LeaveHandler.
func (l *LeaveHandlerImpl) EditRequest(w http.ResponseWriter, r *http.Request) {
	var req leave.EditLeaveRequestRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		l.logger.DebugContext(r.Context(), "EditRequest decode error", slog.Any("error", err))
		response.BadRequest(w, "Invalid request format", nil)
		return
	}
	req.ID = chi.URLParam(r, "id")

	updated, err := l.leaveService.EditLeaveRequest(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Leave request updated successfully", leave.NewLeaveRequestResponse(updated))
}

// DeleteRequest implements LeaveHandler. ?admin=true widens deletion to
// rejected requests and requires the admin role.
func (l *LeaveHandlerImpl) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	administrative, _ := strconv.ParseBool(r.URL.Query().Get("admin"))
	if administrative && !middleware.IsAdmin(ctx) {
		response.Forbidden(w, "Admin privilege required")
		return
	}

	opts := leave.DeleteOptions{
		Administrative: administrative,
		ActorID:        leave.UserID(middleware.ActorID(ctx)),
	}
	if err := l.leaveService.DeleteLeaveRequest(ctx, leave.RequestID(chi.URLParam(r, "id")), opts); err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Leave request deleted successfully", nil)
}

// ApproveRequest implements LeaveHandler.
func (l *LeaveHandlerImpl) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	approved, err := l.leaveService.ApproveLeaveRequest(ctx, leave.RequestID(chi.URLParam(r, "id")), leave.UserID(middleware.ActorID(ctx)))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Leave request approved successfully", leave.NewLeaveRequestResponse(approved))
}

// RejectRequest implements LeaveHandler.
func (l *LeaveHandlerImpl) RejectRequest(w http.ResponseWriter, r *http.Request) {
	var req leave.RejectLeaveRequestRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		l.logger.DebugContext(r.Context(), "RejectRequest decode error", slog.Any("error", err))
		response.BadRequest(w, "Invalid request format", nil)
		return
	}
	req.ID = chi.URLParam(r, "id")
	req.RejectedBy = middleware.ActorID(r.Context())

	rejected, err := l.leaveService.RejectLeaveRequest(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Leave request rejected successfully", leave.NewLeaveRequestResponse(rejected))
}

// ListLedger implements LeaveHandler.
func (l *LeaveHandlerImpl) ListLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := l.leaveService.ListLedgerEntries(r.Context(), leave.EmployeeID(chi.URLParam(r, "employeeID")))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	resp := make([]leave.LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, leave.NewLedgerEntryResponse(e))
	}
	response.SuccessWithMeta(w, resp, &response.Meta{TotalItems: int64(len(resp))})
}

// GetLedgerEntry implements LeaveHandler.
func (l *LeaveHandlerImpl) GetLedgerEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := l.leaveService.GetLedgerEntry(r.Context(),
		leave.EmployeeID(chi.URLParam(r, "employeeID")),
		leave.LeaveTypeID(chi.URLParam(r, "leaveTypeID")),
	)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, leave.NewLedgerEntryResponse(entry))
}

// GetRemainingQuota implements LeaveHandler. The position quota comes from
// the caller as ?quota=<amount>&unit=days|hours.
func (l *LeaveHandlerImpl) GetRemainingQuota(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	amount, err := decimal.NewFromString(query.Get("quota"))
	if err != nil {
		response.ValidationError(w, map[string]string{"quota": "quota must be a decimal number"})
		return
	}
	unit := leave.Unit(query.Get("unit"))
	if unit == "" {
		unit = leave.UnitDays
	}

	employeeID := leave.EmployeeID(chi.URLParam(r, "employeeID"))
	leaveTypeID := leave.LeaveTypeID(chi.URLParam(r, "leaveTypeID"))
	remaining, err := l.leaveService.RemainingQuota(r.Context(), employeeID, leave.Duration{Unit: unit, Amount: amount}, leaveTypeID)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, map[string]string{
		"employee_id":   employeeID.String(),
		"leave_type_id": leaveTypeID.String(),
		"unit":          string(unit),
		"remaining":     remaining.String(),
	})
}

// Reconcile implements LeaveHandler.
func (l *LeaveHandlerImpl) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := l.leaveService.Reconcile(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	message := "Leave ledger reconciled"
	if report.Failed() {
		message = "Leave ledger reconciled with failures"
	}
	response.SuccessWithMessage(w, message, leave.NewReconcileReportResponse(report))
}
