package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/shopspring/decimal"
)

const entryColumns = `employee_id, leave_type_id, days_used, hours_used, version, updated_at`

// GetEntry implements leave.LedgerRepository.
func (s *Store) GetEntry(ctx context.Context, key leave.LedgerKey) (leave.QuotaLedgerEntry, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM leave_ledger_entries
		WHERE employee_id = ? AND leave_type_id = ?`,
		key.EmployeeID.String(), key.LeaveTypeID.String())
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.QuotaLedgerEntry{}, leave.ErrLedgerEntryNotFound
	}
	if err != nil {
		return leave.QuotaLedgerEntry{}, classify("get ledger entry", err)
	}
	return e, nil
}

// ListEntries implements leave.LedgerRepository.
func (s *Store) ListEntries(ctx context.Context) ([]leave.QuotaLedgerEntry, error) {
	return s.listEntries(ctx, `SELECT `+entryColumns+` FROM leave_ledger_entries ORDER BY employee_id, leave_type_id`)
}

// ListByEmployee implements leave.LedgerRepository.
func (s *Store) ListByEmployee(ctx context.Context, employeeID leave.EmployeeID) ([]leave.QuotaLedgerEntry, error) {
	return s.listEntries(ctx, `
		SELECT `+entryColumns+` FROM leave_ledger_entries
		WHERE employee_id = ?
		ORDER BY leave_type_id`, employeeID.String())
}

func (s *Store) listEntries(ctx context.Context, query string, args ...any) ([]leave.QuotaLedgerEntry, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list ledger entries", err)
	}
	defer rows.Close()

	var out []leave.QuotaLedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, classify("list ledger entries", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list ledger entries", err)
	}
	return out, nil
}

// ApplyConsumption implements leave.LedgerRepository. The application marker
// and the counter update commit together.
func (s *Store) ApplyConsumption(ctx context.Context, app leave.LedgerApplication) (bool, error) {
	if app.AppliedAt.IsZero() {
		app.AppliedAt = time.Now()
	}
	var applied bool
	err := s.WithinTransaction(ctx, func(ctx context.Context) error {
		q := s.conn(ctx)

		inserted, err := insertApplication(ctx, q, app)
		if err != nil || !inserted {
			return err
		}

		key := leave.LedgerKey{EmployeeID: app.EmployeeID, LeaveTypeID: app.LeaveTypeID}
		entry, err := s.GetEntry(ctx, key)
		switch {
		case errors.Is(err, leave.ErrLedgerEntryNotFound):
			entry = leave.QuotaLedgerEntry{EmployeeID: app.EmployeeID, LeaveTypeID: app.LeaveTypeID}
			entry = entry.Add(app.Duration)
			_, err = q.ExecContext(ctx, `
				INSERT INTO leave_ledger_entries (`+entryColumns+`)
				VALUES (?, ?, ?, ?, 1, ?)`,
				key.EmployeeID.String(), key.LeaveTypeID.String(),
				entry.DaysUsed.String(), entry.HoursUsed.String(), formatTime(app.AppliedAt))
		case err != nil:
			return err
		default:
			entry = entry.Add(app.Duration)
			_, err = q.ExecContext(ctx, `
				UPDATE leave_ledger_entries
				SET days_used = ?, hours_used = ?, version = version + 1, updated_at = ?
				WHERE employee_id = ? AND leave_type_id = ?`,
				entry.DaysUsed.String(), entry.HoursUsed.String(), formatTime(app.AppliedAt),
				key.EmployeeID.String(), key.LeaveTypeID.String())
		}
		if err != nil {
			return classify("apply ledger consumption", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// ReplaceEntry implements leave.LedgerRepository. expectedVersion 0 means
// the entry must not exist yet.
func (s *Store) ReplaceEntry(ctx context.Context, entry leave.QuotaLedgerEntry, expectedVersion int64, apps []leave.LedgerApplication) (bool, error) {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now()
	}
	err := s.WithinTransaction(ctx, func(ctx context.Context) error {
		q := s.conn(ctx)

		if expectedVersion == 0 {
			_, err := q.ExecContext(ctx, `
				INSERT INTO leave_ledger_entries (`+entryColumns+`)
				VALUES (?, ?, ?, ?, 1, ?)`,
				entry.EmployeeID.String(), entry.LeaveTypeID.String(),
				entry.DaysUsed.String(), entry.HoursUsed.String(), formatTime(entry.UpdatedAt))
			if isUniqueConstraintError(err) {
				return leave.ErrVersionConflict
			}
			if err != nil {
				return classify("insert ledger entry", err)
			}
		} else {
			res, err := q.ExecContext(ctx, `
				UPDATE leave_ledger_entries
				SET days_used = ?, hours_used = ?, version = ?, updated_at = ?
				WHERE employee_id = ? AND leave_type_id = ? AND version = ?`,
				entry.DaysUsed.String(), entry.HoursUsed.String(), expectedVersion+1, formatTime(entry.UpdatedAt),
				entry.EmployeeID.String(), entry.LeaveTypeID.String(), expectedVersion)
			if err != nil {
				return classify("replace ledger entry", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return classify("replace ledger entry", err)
			}
			if n == 0 {
				return leave.ErrVersionConflict
			}
		}

		for _, app := range apps {
			if app.AppliedAt.IsZero() {
				app.AppliedAt = entry.UpdatedAt
			}
			if _, err := insertApplication(ctx, q, app); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return expectedVersion == 0, nil
}

// IsApplied reports whether requestID has been counted in the ledger.
func (s *Store) IsApplied(ctx context.Context, requestID leave.RequestID) (bool, error) {
	var one int
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT 1 FROM leave_ledger_applications WHERE request_id = ?`, requestID.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify("get ledger application", err)
	}
	return true, nil
}

func insertApplication(ctx context.Context, q querier, app leave.LedgerApplication) (bool, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO leave_ledger_applications (request_id, employee_id, leave_type_id, unit, amount, applied_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO NOTHING`,
		app.RequestID.String(), app.EmployeeID.String(), app.LeaveTypeID.String(),
		string(app.Duration.Unit), app.Duration.Amount.String(), formatTime(app.AppliedAt))
	if err != nil {
		return false, classify("record ledger application", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify("record ledger application", err)
	}
	return n > 0, nil
}

func scanEntry(row scanner) (leave.QuotaLedgerEntry, error) {
	var (
		e                   leave.QuotaLedgerEntry
		employeeID, typeID  string
		daysUsed, hoursUsed string
		updatedAt           string
	)
	if err := row.Scan(&employeeID, &typeID, &daysUsed, &hoursUsed, &e.Version, &updatedAt); err != nil {
		return leave.QuotaLedgerEntry{}, err
	}

	var err error
	if e.DaysUsed, err = decimal.NewFromString(daysUsed); err != nil {
		return leave.QuotaLedgerEntry{}, err
	}
	if e.HoursUsed, err = decimal.NewFromString(hoursUsed); err != nil {
		return leave.QuotaLedgerEntry{}, err
	}
	e.EmployeeID = leave.EmployeeID(employeeID)
	e.LeaveTypeID = leave.LeaveTypeID(typeID)
	e.UpdatedAt = parseTime(updatedAt)
	return e, nil
}
