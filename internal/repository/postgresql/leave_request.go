package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-go/internal/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const leaveRequestColumns = `
	id, employee_id, leave_type_id, subtype, start_date, end_date, start_time, end_time,
	reason, attachments, timing, status, approved_by, approved_at, rejected_by, rejected_at, rejected_reason,
	created_by, created_at, updated_at`

type leaveRequestRepositoryImpl struct {
	db *database.DB
}

func NewLeaveRequestRepository(db *database.DB) leave.RequestRepository {
	return &leaveRequestRepositoryImpl{db: db}
}

// GetByID implements leave.RequestRepository.
func (r *leaveRequestRepositoryImpl) GetByID(ctx context.Context, id leave.RequestID) (leave.LeaveRequest, error) {
	q := GetQuerier(ctx, r.db)
	query := `SELECT ` + leaveRequestColumns + ` FROM leave_requests WHERE id = $1`

	lr, err := scanLeaveRequest(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return leave.LeaveRequest{}, leave.ErrLeaveRequestNotFound
		}
		return leave.LeaveRequest{}, classify("get leave request", err)
	}
	return lr, nil
}

// Create implements leave.RequestRepository.
func (r *leaveRequestRepositoryImpl) Create(ctx context.Context, request leave.LeaveRequest) (leave.LeaveRequest, error) {
	q := GetQuerier(ctx, r.db)

	if request.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return leave.LeaveRequest{}, fmt.Errorf("failed to generate leave request id: %w", err)
		}
		request.ID = leave.RequestID(id.String())
	}

	query := `
		INSERT INTO leave_requests (` + leaveRequestColumns + `)
		VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20
		)
	`
	_, err := q.Exec(ctx, query,
		request.ID, request.EmployeeID, request.LeaveTypeID, request.Subtype,
		request.StartDate, request.EndDate, request.StartTime, request.EndTime,
		request.Reason, nonNil(request.Attachments), request.Timing, request.Status,
		request.ApprovedBy, request.ApprovedAt, request.RejectedBy, request.RejectedAt, request.RejectedReason,
		request.CreatedBy, request.CreatedAt, request.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return leave.LeaveRequest{}, fmt.Errorf("leave request %s already exists", request.ID)
		}
		return leave.LeaveRequest{}, classify("create leave request", err)
	}
	return request, nil
}

// Update implements leave.RequestRepository. Only pending requests are updated.
func (r *leaveRequestRepositoryImpl) Update(ctx context.Context, request leave.LeaveRequest) error {
	q := GetQuerier(ctx, r.db)
	query := `
		UPDATE leave_requests
		SET leave_type_id = $1, subtype = $2, start_date = $3, end_date = $4,
			start_time = $5, end_time = $6, reason = $7, attachments = $8, timing = $9, updated_at = $10
		WHERE id = $11 AND status = 'pending'
	`
	commandTag, err := q.Exec(ctx, query,
		request.LeaveTypeID, request.Subtype, request.StartDate, request.EndDate,
		request.StartTime, request.EndTime, request.Reason, nonNil(request.Attachments), request.Timing, request.UpdatedAt,
		request.ID,
	)
	if err != nil {
		return classify("update leave request", err)
	}
	return r.checkAffected(ctx, commandTag.RowsAffected(), request.ID)
}

// Transition implements leave.RequestRepository. The write only lands while
// the stored status still equals from.
func (r *leaveRequestRepositoryImpl) Transition(ctx context.Context, request leave.LeaveRequest, from leave.LeaveRequestStatus) error {
	q := GetQuerier(ctx, r.db)
	query := `
		UPDATE leave_requests
		SET status = $1, approved_by = $2, approved_at = $3, rejected_by = $4, rejected_at = $5,
			rejected_reason = $6, updated_at = $7
		WHERE id = $8 AND status = $9
	`
	commandTag, err := q.Exec(ctx, query,
		request.Status, request.ApprovedBy, request.ApprovedAt, request.RejectedBy, request.RejectedAt,
		request.RejectedReason, request.UpdatedAt,
		request.ID, from,
	)
	if err != nil {
		return classify("transition leave request", err)
	}
	return r.checkAffected(ctx, commandTag.RowsAffected(), request.ID)
}

// Delete implements leave.RequestRepository.
func (r *leaveRequestRepositoryImpl) Delete(ctx context.Context, id leave.RequestID, allowed []leave.LeaveRequestStatus) error {
	q := GetQuerier(ctx, r.db)

	statuses := make([]string, len(allowed))
	for i, s := range allowed {
		statuses[i] = string(s)
	}
	query := `
		DELETE FROM leave_requests
		WHERE id = $1 AND status = ANY($2)
	`
	commandTag, err := q.Exec(ctx, query, id, statuses)
	if err != nil {
		return classify("delete leave request", err)
	}
	return r.checkAffected(ctx, commandTag.RowsAffected(), id)
}

// checkAffected tells a missing row apart from a status guard miss.
func (r *leaveRequestRepositoryImpl) checkAffected(ctx context.Context, affected int64, id leave.RequestID) error {
	if affected > 0 {
		return nil
	}
	q := GetQuerier(ctx, r.db)
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM leave_requests WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return classify("get leave request", err)
	}
	if !exists {
		return leave.ErrLeaveRequestNotFound
	}
	return leave.ErrInvalidTransition
}

// ListApproved implements leave.RequestRepository.
func (r *leaveRequestRepositoryImpl) ListApproved(ctx context.Context) ([]leave.LeaveRequest, error) {
	query := `
		SELECT ` + leaveRequestColumns + `
		FROM leave_requests
		WHERE status = 'approved'
		ORDER BY created_at, id
	`
	return r.list(ctx, query)
}

// ListApprovedByEmployee implements leave.RequestRepository.
func (r *leaveRequestRepositoryImpl) ListApprovedByEmployee(ctx context.Context, employeeID leave.EmployeeID) ([]leave.LeaveRequest, error) {
	query := `
		SELECT ` + leaveRequestColumns + `
		FROM leave_requests
		WHERE status = 'approved' AND employee_id = $1
		ORDER BY created_at, id
	`
	return r.list(ctx, query, employeeID)
}

func (r *leaveRequestRepositoryImpl) list(ctx context.Context, query string, args ...any) ([]leave.LeaveRequest, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("list approved leave requests", err)
	}
	defer rows.Close()

	var requests []leave.LeaveRequest
	for rows.Next() {
		lr, err := scanLeaveRequest(rows)
		if err != nil {
			return nil, classify("list approved leave requests", err)
		}
		requests = append(requests, lr)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list approved leave requests", err)
	}
	return requests, nil
}

func scanLeaveRequest(row pgx.Row) (leave.LeaveRequest, error) {
	var (
		lr                     leave.LeaveRequest
		approvedAt, rejectedAt *time.Time
	)
	err := row.Scan(
		&lr.ID,
		&lr.EmployeeID,
		&lr.LeaveTypeID,
		&lr.Subtype,
		&lr.StartDate,
		&lr.EndDate,
		&lr.StartTime,
		&lr.EndTime,
		&lr.Reason,
		&lr.Attachments,
		&lr.Timing,
		&lr.Status,
		&lr.ApprovedBy,
		&approvedAt,
		&lr.RejectedBy,
		&rejectedAt,
		&lr.RejectedReason,
		&lr.CreatedBy,
		&lr.CreatedAt,
		&lr.UpdatedAt,
	)
	if err != nil {
		return leave.LeaveRequest{}, err
	}

	lr.ApprovedAt = utcPtr(approvedAt)
	lr.RejectedAt = utcPtr(rejectedAt)
	lr.CreatedAt = lr.CreatedAt.UTC()
	lr.UpdatedAt = lr.UpdatedAt.UTC()
	if len(lr.Attachments) == 0 {
		lr.Attachments = nil
	}
	return lr, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
