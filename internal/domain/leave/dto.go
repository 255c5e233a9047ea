package leave

import (
	"time"

	"github.com/cmlabs-hris/hris-leave-go/internal/pkg/validator"
)

const dateLayout = "2006-01-02"

type CreateLeaveRequestRequest struct {
	EmployeeID  string   `json:"employee_id" validate:"required"`
	LeaveTypeID string   `json:"leave_type_id" validate:"required"`
	Subtype     string   `json:"subtype,omitempty" validate:"omitempty,oneof=day hour"`
	StartDate   string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string   `json:"end_date" validate:"required,datetime=2006-01-02"`
	StartTime   *string  `json:"start_time,omitempty" validate:"omitempty,clock"`
	EndTime     *string  `json:"end_time,omitempty" validate:"omitempty,clock"`
	Reason      string   `json:"reason" validate:"max=1000"`
	Attachments []string `json:"attachments,omitempty" validate:"omitempty,dive,required"`

	// Set by the caller from the authenticated actor, never from the body.
	CreatedBy string `json:"-"`
}

func (r *CreateLeaveRequestRequest) Validate() error {
	errs := validator.Struct(r)

	// Date ordering, only once both dates parse
	start, startOK := validator.IsValidDate(r.StartDate)
	end, endOK := validator.IsValidDate(r.EndDate)
	if startOK && endOK && end.Before(start) {
		errs = append(errs, validator.ValidationError{
			Field:   "end_date",
			Message: "end_date must not be before start_date",
		})
	}

	errs = append(errs, validateTimeRange(LeaveSubtype(r.Subtype), r.StartTime, r.EndTime, startOK && endOK && !start.Equal(end))...)

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// Dates returns the parsed start and end dates. Call only after Validate.
func (r *CreateLeaveRequestRequest) Dates() (time.Time, time.Time) {
	start, _ := time.Parse(dateLayout, r.StartDate)
	end, _ := time.Parse(dateLayout, r.EndDate)
	return start, end
}

// validateTimeRange enforces that hour-mode requests carry both times on a
// single day and that other requests carry none.
func validateTimeRange(subtype LeaveSubtype, startTime, endTime *string, multiDay bool) validator.ValidationErrors {
	var errs validator.ValidationErrors

	if subtype != LeaveSubtypeHour {
		if startTime != nil {
			errs = append(errs, validator.ValidationError{
				Field:   "start_time",
				Message: "start_time is only allowed for hour subtype",
			})
		}
		if endTime != nil {
			errs = append(errs, validator.ValidationError{
				Field:   "end_time",
				Message: "end_time is only allowed for hour subtype",
			})
		}
		return errs
	}

	if startTime == nil {
		errs = append(errs, validator.ValidationError{
			Field:   "start_time",
			Message: "start_time is required for hour subtype",
		})
	}
	if endTime == nil {
		errs = append(errs, validator.ValidationError{
			Field:   "end_time",
			Message: "end_time is required for hour subtype",
		})
	}
	if multiDay {
		errs = append(errs, validator.ValidationError{
			Field:   "end_date",
			Message: "end_date must equal start_date for hour subtype",
		})
	}
	if startTime != nil && endTime != nil &&
		validator.IsValidClock(*startTime) && validator.IsValidClock(*endTime) &&
		*endTime <= *startTime {
		errs = append(errs, validator.ValidationError{
			Field:   "end_time",
			Message: "end_time must be after start_time",
		})
	}

	return errs
}

// EditLeaveRequestRequest carries the fields to change on a pending request.
// Nil fields keep their current value. Switching away from the hour subtype
// clears both times.
type EditLeaveRequestRequest struct {
	ID          string    `json:"-"`
	LeaveTypeID *string   `json:"leave_type_id,omitempty"`
	Subtype     *string   `json:"subtype,omitempty"`
	StartDate   *string   `json:"start_date,omitempty"`
	EndDate     *string   `json:"end_date,omitempty"`
	StartTime   *string   `json:"start_time,omitempty"`
	EndTime     *string   `json:"end_time,omitempty"`
	Reason      *string   `json:"reason,omitempty"`
	Attachments *[]string `json:"attachments,omitempty"`
}

func (r *EditLeaveRequestRequest) Validate() error {
	var errs validator.ValidationErrors

	// ID
	if validator.IsEmpty(r.ID) {
		errs = append(errs, validator.ValidationError{
			Field:   "id",
			Message: "id is required",
		})
	}

	// LeaveTypeID
	if r.LeaveTypeID != nil && validator.IsEmpty(*r.LeaveTypeID) {
		errs = append(errs, validator.ValidationError{
			Field:   "leave_type_id",
			Message: "leave_type_id must not be empty",
		})
	}

	if r.LeaveTypeID == nil && r.Subtype == nil && r.StartDate == nil && r.EndDate == nil &&
		r.StartTime == nil && r.EndTime == nil && r.Reason == nil && r.Attachments == nil {
		errs = append(errs, validator.ValidationError{
			Field:   "_",
			Message: "at least one field must be provided",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// Apply merges the changes into current and returns the create request the
// merged result must satisfy.
func (r *EditLeaveRequestRequest) Apply(current LeaveRequest) CreateLeaveRequestRequest {
	merged := CreateLeaveRequestRequest{
		EmployeeID:  current.EmployeeID.String(),
		LeaveTypeID: current.LeaveTypeID.String(),
		Subtype:     string(current.Subtype),
		StartDate:   current.StartDate.Format(dateLayout),
		EndDate:     current.EndDate.Format(dateLayout),
		StartTime:   current.StartTime,
		EndTime:     current.EndTime,
		Reason:      current.Reason,
		Attachments: current.Attachments,
		CreatedBy:   current.CreatedBy.String(),
	}

	if r.LeaveTypeID != nil {
		merged.LeaveTypeID = *r.LeaveTypeID
	}
	if r.Subtype != nil {
		merged.Subtype = *r.Subtype
		if LeaveSubtype(*r.Subtype) != LeaveSubtypeHour {
			merged.StartTime, merged.EndTime = nil, nil
		}
	}
	if r.StartDate != nil {
		merged.StartDate = *r.StartDate
	}
	if r.EndDate != nil {
		merged.EndDate = *r.EndDate
	}
	if r.StartTime != nil {
		merged.StartTime = r.StartTime
	}
	if r.EndTime != nil {
		merged.EndTime = r.EndTime
	}
	if r.Reason != nil {
		merged.Reason = *r.Reason
	}
	if r.Attachments != nil {
		merged.Attachments = *r.Attachments
	}

	return merged
}

type RejectLeaveRequestRequest struct {
	ID         string `json:"-"`
	RejectedBy string `json:"-"`
	Reason     string `json:"reason"`
}

func (r *RejectLeaveRequestRequest) Validate() error {
	var errs validator.ValidationErrors

	// ID
	if validator.IsEmpty(r.ID) {
		errs = append(errs, validator.ValidationError{
			Field:   "id",
			Message: "id is required",
		})
	}

	// Rejected by
	if validator.IsEmpty(r.RejectedBy) {
		errs = append(errs, validator.ValidationError{
			Field:   "rejected_by",
			Message: "rejected_by is required",
		})
	}

	// Reason
	if validator.IsEmpty(r.Reason) {
		errs = append(errs, validator.ValidationError{
			Field:   "reason",
			Message: "reason is required",
		})
	}
	if len(r.Reason) > 1000 {
		errs = append(errs, validator.ValidationError{
			Field:   "reason",
			Message: "reason must not exceed 1000 characters",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// DeleteOptions widens which requests Delete may remove. Pending requests are
// always deletable; rejected ones only administratively; approved ones never.
type DeleteOptions struct {
	Administrative bool
	ActorID        UserID
}

// LedgerEntryResponse is the JSON view of a ledger entry.
type LedgerEntryResponse struct {
	EmployeeID  string    `json:"employee_id"`
	LeaveTypeID string    `json:"leave_type_id"`
	DaysUsed    string    `json:"days_used"`
	HoursUsed   string    `json:"hours_used"`
	Version     int64     `json:"version"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewLedgerEntryResponse(e QuotaLedgerEntry) LedgerEntryResponse {
	return LedgerEntryResponse{
		EmployeeID:  e.EmployeeID.String(),
		LeaveTypeID: e.LeaveTypeID.String(),
		DaysUsed:    e.DaysUsed.String(),
		HoursUsed:   e.HoursUsed.String(),
		Version:     e.Version,
		UpdatedAt:   e.UpdatedAt,
	}
}

// LeaveRequestResponse is the JSON view of a leave request.
type LeaveRequestResponse struct {
	ID             string     `json:"id"`
	EmployeeID     string     `json:"employee_id"`
	LeaveTypeID    string     `json:"leave_type_id"`
	Subtype        string     `json:"subtype,omitempty"`
	StartDate      string     `json:"start_date"`
	EndDate        string     `json:"end_date"`
	StartTime      *string    `json:"start_time,omitempty"`
	EndTime        *string    `json:"end_time,omitempty"`
	Reason         string     `json:"reason"`
	Attachments    []string   `json:"attachments"`
	Timing         string     `json:"timing"`
	Status         string     `json:"status"`
	ApprovedBy     *string    `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
	RejectedBy     *string    `json:"rejected_by,omitempty"`
	RejectedAt     *time.Time `json:"rejected_at,omitempty"`
	RejectedReason *string    `json:"rejected_reason,omitempty"`
	CreatedBy      string     `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func NewLeaveRequestResponse(r LeaveRequest) LeaveRequestResponse {
	attachments := r.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	resp := LeaveRequestResponse{
		ID:             r.ID.String(),
		EmployeeID:     r.EmployeeID.String(),
		LeaveTypeID:    r.LeaveTypeID.String(),
		Subtype:        string(r.Subtype),
		StartDate:      r.StartDate.Format(dateLayout),
		EndDate:        r.EndDate.Format(dateLayout),
		StartTime:      r.StartTime,
		EndTime:        r.EndTime,
		Reason:         r.Reason,
		Attachments:    attachments,
		Timing:         string(r.Timing),
		Status:         string(r.Status),
		ApprovedAt:     r.ApprovedAt,
		RejectedAt:     r.RejectedAt,
		RejectedReason: r.RejectedReason,
		CreatedBy:      r.CreatedBy.String(),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.ApprovedBy != nil {
		s := r.ApprovedBy.String()
		resp.ApprovedBy = &s
	}
	if r.RejectedBy != nil {
		s := r.RejectedBy.String()
		resp.RejectedBy = &s
	}
	return resp
}

// ReconcileReportResponse is the JSON view of a reconciliation run.
type ReconcileReportResponse struct {
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	Requests   int                    `json:"requests"`
	Groups     int                    `json:"groups"`
	Inserted   int                    `json:"inserted"`
	Updated    int                    `json:"updated"`
	Unchanged  int                    `json:"unchanged"`
	Zeroed     int                    `json:"zeroed"`
	Retried    int                    `json:"retried"`
	Failures   []GroupFailureResponse `json:"failures"`
}

type GroupFailureResponse struct {
	EmployeeID  string `json:"employee_id"`
	LeaveTypeID string `json:"leave_type_id"`
	RequestID   string `json:"request_id,omitempty"`
	Error       string `json:"error"`
}

func NewReconcileReportResponse(r ReconcileReport) ReconcileReportResponse {
	failures := make([]GroupFailureResponse, 0, len(r.Failures))
	for _, f := range r.Failures {
		failures = append(failures, GroupFailureResponse{
			EmployeeID:  f.EmployeeID.String(),
			LeaveTypeID: f.LeaveTypeID.String(),
			RequestID:   f.RequestID.String(),
			Error:       f.Err.Error(),
		})
	}
	return ReconcileReportResponse{
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Requests:   r.Requests,
		Groups:     r.Groups,
		Inserted:   r.Inserted,
		Updated:    r.Updated,
		Unchanged:  r.Unchanged,
		Zeroed:     r.Zeroed,
		Retried:    r.Retried,
		Failures:   failures,
	}
}
