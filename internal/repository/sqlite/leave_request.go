package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/google/uuid"
)

const requestColumns = `id, employee_id, leave_type_id, subtype, start_date, end_date, start_time, end_time,
	reason, attachments, timing, status, approved_by, approved_at, rejected_by, rejected_at, rejected_reason,
	created_by, created_at, updated_at`

// GetByID implements leave.RequestRepository.
func (s *Store) GetByID(ctx context.Context, id leave.RequestID) (leave.LeaveRequest, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `SELECT `+requestColumns+` FROM leave_requests WHERE id = ?`, id.String())
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.LeaveRequest{}, leave.ErrLeaveRequestNotFound
	}
	if err != nil {
		return leave.LeaveRequest{}, classify("get leave request", err)
	}
	return r, nil
}

// Create implements leave.RequestRepository.
func (s *Store) Create(ctx context.Context, request leave.LeaveRequest) (leave.LeaveRequest, error) {
	if request.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return leave.LeaveRequest{}, fmt.Errorf("failed to generate leave request id: %w", err)
		}
		request.ID = leave.RequestID(id.String())
	}
	attachments, err := json.Marshal(nonNil(request.Attachments))
	if err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("failed to encode attachments: %w", err)
	}

	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO leave_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		request.ID.String(),
		request.EmployeeID.String(),
		request.LeaveTypeID.String(),
		string(request.Subtype),
		request.StartDate.Format(dateLayout),
		request.EndDate.Format(dateLayout),
		nullString(request.StartTime),
		nullString(request.EndTime),
		request.Reason,
		string(attachments),
		string(request.Timing),
		string(request.Status),
		nullUser(request.ApprovedBy),
		nullTime(request.ApprovedAt),
		nullUser(request.RejectedBy),
		nullTime(request.RejectedAt),
		nullString(request.RejectedReason),
		request.CreatedBy.String(),
		formatTime(request.CreatedAt),
		formatTime(request.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return leave.LeaveRequest{}, fmt.Errorf("leave request %s already exists", request.ID)
		}
		return leave.LeaveRequest{}, classify("create leave request", err)
	}
	return request, nil
}

// Update implements leave.RequestRepository. Only pending requests are updated.
func (s *Store) Update(ctx context.Context, request leave.LeaveRequest) error {
	attachments, err := json.Marshal(nonNil(request.Attachments))
	if err != nil {
		return fmt.Errorf("failed to encode attachments: %w", err)
	}

	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE leave_requests
		SET leave_type_id = ?, subtype = ?, start_date = ?, end_date = ?, start_time = ?, end_time = ?,
			reason = ?, attachments = ?, timing = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		request.LeaveTypeID.String(),
		string(request.Subtype),
		request.StartDate.Format(dateLayout),
		request.EndDate.Format(dateLayout),
		nullString(request.StartTime),
		nullString(request.EndTime),
		request.Reason,
		string(attachments),
		string(request.Timing),
		formatTime(request.UpdatedAt),
		request.ID.String(),
		string(leave.LeaveRequestStatusPending),
	)
	if err != nil {
		return classify("update leave request", err)
	}
	return s.checkAffected(ctx, res, request.ID)
}

// Transition implements leave.RequestRepository. The write only lands while
// the stored status still equals from.
func (s *Store) Transition(ctx context.Context, request leave.LeaveRequest, from leave.LeaveRequestStatus) error {
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE leave_requests
		SET status = ?, approved_by = ?, approved_at = ?, rejected_by = ?, rejected_at = ?,
			rejected_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(request.Status),
		nullUser(request.ApprovedBy),
		nullTime(request.ApprovedAt),
		nullUser(request.RejectedBy),
		nullTime(request.RejectedAt),
		nullString(request.RejectedReason),
		formatTime(request.UpdatedAt),
		request.ID.String(),
		string(from),
	)
	if err != nil {
		return classify("transition leave request", err)
	}
	return s.checkAffected(ctx, res, request.ID)
}

// Delete implements leave.RequestRepository.
func (s *Store) Delete(ctx context.Context, id leave.RequestID, allowed []leave.LeaveRequestStatus) error {
	if len(allowed) == 0 {
		return leave.ErrInvalidTransition
	}
	placeholders := make([]string, len(allowed))
	args := []any{id.String()}
	for i, status := range allowed {
		placeholders[i] = "?"
		args = append(args, string(status))
	}

	res, err := s.conn(ctx).ExecContext(ctx,
		`DELETE FROM leave_requests WHERE id = ? AND status IN (`+strings.Join(placeholders, ", ")+`)`, args...)
	if err != nil {
		return classify("delete leave request", err)
	}
	return s.checkAffected(ctx, res, id)
}

// checkAffected tells a missing row apart from a status guard miss.
func (s *Store) checkAffected(ctx context.Context, res sql.Result, id leave.RequestID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify("read affected rows", err)
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = s.conn(ctx).QueryRowContext(ctx, `SELECT 1 FROM leave_requests WHERE id = ?`, id.String()).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.ErrLeaveRequestNotFound
	}
	if err != nil {
		return classify("get leave request", err)
	}
	return leave.ErrInvalidTransition
}

// ListApproved implements leave.RequestRepository.
func (s *Store) ListApproved(ctx context.Context) ([]leave.LeaveRequest, error) {
	return s.listRequests(ctx, "list approved leave requests", `
		SELECT `+requestColumns+` FROM leave_requests
		WHERE status = ?
		ORDER BY created_at, id`, string(leave.LeaveRequestStatusApproved))
}

// ListApprovedByEmployee implements leave.RequestRepository.
func (s *Store) ListApprovedByEmployee(ctx context.Context, employeeID leave.EmployeeID) ([]leave.LeaveRequest, error) {
	return s.listRequests(ctx, "list approved leave requests", `
		SELECT `+requestColumns+` FROM leave_requests
		WHERE status = ? AND employee_id = ?
		ORDER BY created_at, id`, string(leave.LeaveRequestStatusApproved), employeeID.String())
}

func (s *Store) listRequests(ctx context.Context, op, query string, args ...any) ([]leave.LeaveRequest, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []leave.LeaveRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (leave.LeaveRequest, error) {
	var (
		r                                  leave.LeaveRequest
		id, employeeID, leaveTypeID        string
		subtype, timing, status, createdBy string
		startDate, endDate                 string
		attachments                        string
		createdAt, updatedAt               string
		startTime, endTime                 sql.NullString
		approvedBy, approvedAt             sql.NullString
		rejectedBy, rejectedAt             sql.NullString
		rejectedReason                     sql.NullString
	)
	err := row.Scan(
		&id, &employeeID, &leaveTypeID, &subtype, &startDate, &endDate, &startTime, &endTime,
		&r.Reason, &attachments, &timing, &status, &approvedBy, &approvedAt, &rejectedBy, &rejectedAt, &rejectedReason,
		&createdBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return leave.LeaveRequest{}, err
	}

	r.ID = leave.RequestID(id)
	r.EmployeeID = leave.EmployeeID(employeeID)
	r.LeaveTypeID = leave.LeaveTypeID(leaveTypeID)
	r.Subtype = leave.LeaveSubtype(subtype)
	r.StartDate, _ = time.Parse(dateLayout, startDate)
	r.EndDate, _ = time.Parse(dateLayout, endDate)
	r.StartTime = stringPtr(startTime)
	r.EndTime = stringPtr(endTime)
	r.Timing = leave.Timing(timing)
	r.Status = leave.LeaveRequestStatus(status)
	r.ApprovedBy = userPtr(approvedBy)
	r.ApprovedAt = timePtr(approvedAt)
	r.RejectedBy = userPtr(rejectedBy)
	r.RejectedAt = timePtr(rejectedAt)
	r.RejectedReason = stringPtr(rejectedReason)
	r.CreatedBy = leave.UserID(createdBy)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)

	if err := json.Unmarshal([]byte(attachments), &r.Attachments); err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("failed to decode attachments: %w", err)
	}
	if len(r.Attachments) == 0 {
		r.Attachments = nil
	}
	return r, nil
}

func nullUser(u *leave.UserID) sql.NullString {
	if u == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: u.String(), Valid: true}
}

func userPtr(ns sql.NullString) *leave.UserID {
	if !ns.Valid {
		return nil
	}
	u := leave.UserID(ns.String)
	return &u
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
