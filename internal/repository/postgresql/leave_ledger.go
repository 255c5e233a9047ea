package postgresql

import (
	"context"
	"errors"
	"time"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// NUMERIC columns are read back as text to keep full decimal precision.
const ledgerEntryColumns = `employee_id, leave_type_id, days_used::text, hours_used::text, version, updated_at`

type leaveLedgerRepositoryImpl struct {
	db *database.DB
}

func NewLeaveLedgerRepository(db *database.DB) leave.LedgerRepository {
	return &leaveLedgerRepositoryImpl{db: db}
}

// GetEntry implements leave.LedgerRepository.
func (l *leaveLedgerRepositoryImpl) GetEntry(ctx context.Context, key leave.LedgerKey) (leave.QuotaLedgerEntry, error) {
	q := GetQuerier(ctx, l.db)
	query := `
		SELECT ` + ledgerEntryColumns + `
		FROM leave_ledger_entries
		WHERE employee_id = $1 AND leave_type_id = $2
	`
	entry, err := scanLedgerEntry(q.QueryRow(ctx, query, key.EmployeeID, key.LeaveTypeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return leave.QuotaLedgerEntry{}, leave.ErrLedgerEntryNotFound
		}
		return leave.QuotaLedgerEntry{}, classify("get ledger entry", err)
	}
	return entry, nil
}

// ListEntries implements leave.LedgerRepository.
func (l *leaveLedgerRepositoryImpl) ListEntries(ctx context.Context) ([]leave.QuotaLedgerEntry, error) {
	query := `
		SELECT ` + ledgerEntryColumns + `
		FROM leave_ledger_entries
		ORDER BY employee_id, leave_type_id
	`
	return l.list(ctx, query)
}

// ListByEmployee implements leave.LedgerRepository.
func (l *leaveLedgerRepositoryImpl) ListByEmployee(ctx context.Context, employeeID leave.EmployeeID) ([]leave.QuotaLedgerEntry, error) {
	query := `
		SELECT ` + ledgerEntryColumns + `
		FROM leave_ledger_entries
		WHERE employee_id = $1
		ORDER BY leave_type_id
	`
	return l.list(ctx, query, employeeID)
}

func (l *leaveLedgerRepositoryImpl) list(ctx context.Context, query string, args ...any) ([]leave.QuotaLedgerEntry, error) {
	q := GetQuerier(ctx, l.db)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("list ledger entries", err)
	}
	defer rows.Close()

	var entries []leave.QuotaLedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, classify("list ledger entries", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list ledger entries", err)
	}
	return entries, nil
}

// ApplyConsumption implements leave.LedgerRepository. The application marker
// insert and the counter upsert run in one statement, so a replayed request
// touches nothing.
func (l *leaveLedgerRepositoryImpl) ApplyConsumption(ctx context.Context, app leave.LedgerApplication) (bool, error) {
	q := GetQuerier(ctx, l.db)

	if app.AppliedAt.IsZero() {
		app.AppliedAt = time.Now()
	}
	days, hours := decimal.Zero, decimal.Zero
	if app.Duration.Unit == leave.UnitHours {
		hours = app.Duration.Amount
	} else {
		days = app.Duration.Amount
	}

	query := `
		WITH marker AS (
			INSERT INTO leave_ledger_applications (request_id, employee_id, leave_type_id, unit, amount, applied_at)
			VALUES ($1, $2, $3, $4, $5::numeric, $6)
			ON CONFLICT (request_id) DO NOTHING
			RETURNING request_id
		)
		INSERT INTO leave_ledger_entries (employee_id, leave_type_id, days_used, hours_used, version, updated_at)
		SELECT $2, $3, $7::numeric, $8::numeric, 1, $6
		FROM marker
		ON CONFLICT (employee_id, leave_type_id) DO UPDATE SET
			days_used = leave_ledger_entries.days_used + EXCLUDED.days_used,
			hours_used = leave_ledger_entries.hours_used + EXCLUDED.hours_used,
			version = leave_ledger_entries.version + 1,
			updated_at = EXCLUDED.updated_at
	`
	commandTag, err := q.Exec(ctx, query,
		app.RequestID, app.EmployeeID, app.LeaveTypeID, app.Duration.Unit, app.Duration.Amount.String(), app.AppliedAt,
		days.String(), hours.String(),
	)
	if err != nil {
		return false, classify("apply ledger consumption", err)
	}
	return commandTag.RowsAffected() > 0, nil
}

// ReplaceEntry implements leave.LedgerRepository. expectedVersion 0 means
// the entry must not exist yet.
func (l *leaveLedgerRepositoryImpl) ReplaceEntry(ctx context.Context, entry leave.QuotaLedgerEntry, expectedVersion int64, apps []leave.LedgerApplication) (bool, error) {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now()
	}

	err := NewTransactor(l.db).WithinTransaction(ctx, func(ctx context.Context) error {
		q := GetQuerier(ctx, l.db)

		if expectedVersion == 0 {
			query := `
				INSERT INTO leave_ledger_entries (employee_id, leave_type_id, days_used, hours_used, version, updated_at)
				VALUES ($1, $2, $3::numeric, $4::numeric, 1, $5)
			`
			_, err := q.Exec(ctx, query,
				entry.EmployeeID, entry.LeaveTypeID, entry.DaysUsed.String(), entry.HoursUsed.String(), entry.UpdatedAt)
			if isUniqueViolation(err) {
				return leave.ErrVersionConflict
			}
			if err != nil {
				return classify("insert ledger entry", err)
			}
		} else {
			query := `
				UPDATE leave_ledger_entries
				SET days_used = $1::numeric, hours_used = $2::numeric, version = version + 1, updated_at = $3
				WHERE employee_id = $4 AND leave_type_id = $5 AND version = $6
			`
			commandTag, err := q.Exec(ctx, query,
				entry.DaysUsed.String(), entry.HoursUsed.String(), entry.UpdatedAt,
				entry.EmployeeID, entry.LeaveTypeID, expectedVersion)
			if err != nil {
				return classify("replace ledger entry", err)
			}
			if commandTag.RowsAffected() == 0 {
				return leave.ErrVersionConflict
			}
		}

		if len(apps) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, app := range apps {
			appliedAt := app.AppliedAt
			if appliedAt.IsZero() {
				appliedAt = entry.UpdatedAt
			}
			batch.Queue(`
				INSERT INTO leave_ledger_applications (request_id, employee_id, leave_type_id, unit, amount, applied_at)
				VALUES ($1, $2, $3, $4, $5::numeric, $6)
				ON CONFLICT (request_id) DO NOTHING
			`, app.RequestID, app.EmployeeID, app.LeaveTypeID, app.Duration.Unit, app.Duration.Amount.String(), appliedAt)
		}
		tx := ctx.Value(txKey{}).(pgx.Tx)
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return classify("record ledger applications", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return expectedVersion == 0, nil
}

// IsApplied reports whether requestID has been counted in the ledger.
func (l *leaveLedgerRepositoryImpl) IsApplied(ctx context.Context, requestID leave.RequestID) (bool, error) {
	q := GetQuerier(ctx, l.db)
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM leave_ledger_applications WHERE request_id = $1)`, requestID).Scan(&exists)
	if err != nil {
		return false, classify("get ledger application", err)
	}
	return exists, nil
}

func scanLedgerEntry(row pgx.Row) (leave.QuotaLedgerEntry, error) {
	var (
		entry               leave.QuotaLedgerEntry
		daysUsed, hoursUsed string
	)
	err := row.Scan(&entry.EmployeeID, &entry.LeaveTypeID, &daysUsed, &hoursUsed, &entry.Version, &entry.UpdatedAt)
	if err != nil {
		return leave.QuotaLedgerEntry{}, err
	}
	if entry.DaysUsed, err = decimal.NewFromString(daysUsed); err != nil {
		return leave.QuotaLedgerEntry{}, err
	}
	if entry.HoursUsed, err = decimal.NewFromString(hoursUsed); err != nil {
		return leave.QuotaLedgerEntry{}, err
	}
	entry.UpdatedAt = entry.UpdatedAt.UTC()
	return entry, nil
}
