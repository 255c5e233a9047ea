package postgresql

import (
	"context"
	"errors"
	"strings"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-go/internal/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const leaveTypeColumns = `id, name, code, legacy_names, requires_attachment, allow_hourly`

type leaveTypeRepositoryImpl struct {
	db *database.DB
}

// LeaveTypeRepository resolves leave types and lets operators seed them.
type LeaveTypeRepository interface {
	leave.LeaveTypeResolver
	Save(ctx context.Context, def leave.LeaveTypeDefinition) error
}

func NewLeaveTypeRepository(db *database.DB) LeaveTypeRepository {
	return &leaveTypeRepositoryImpl{db: db}
}

// Save inserts or replaces a leave type definition.
func (l *leaveTypeRepositoryImpl) Save(ctx context.Context, def leave.LeaveTypeDefinition) error {
	q := GetQuerier(ctx, l.db)
	query := `
		INSERT INTO leave_types (` + leaveTypeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			code = EXCLUDED.code,
			legacy_names = EXCLUDED.legacy_names,
			requires_attachment = EXCLUDED.requires_attachment,
			allow_hourly = EXCLUDED.allow_hourly
	`
	_, err := q.Exec(ctx, query, def.ID, def.Name, def.Code, nonNil(def.LegacyNames), def.RequiresAttachment, def.AllowHourly)
	if err != nil {
		return classify("save leave type", err)
	}
	return nil
}

// ResolveLeaveType implements leave.LeaveTypeResolver. An exact id match wins.
// A uuid with no matching id is not found; any other value falls back to a
// case-insensitive match on name, code and legacy names.
func (l *leaveTypeRepositoryImpl) ResolveLeaveType(ctx context.Context, idOrLegacyName string) (leave.LeaveTypeDefinition, error) {
	q := GetQuerier(ctx, l.db)

	value := strings.TrimSpace(idOrLegacyName)
	if value == "" {
		return leave.LeaveTypeDefinition{}, leave.ErrLeaveTypeNotFound
	}

	byID := `SELECT ` + leaveTypeColumns + ` FROM leave_types WHERE id = $1`
	def, err := scanLeaveType(q.QueryRow(ctx, byID, value))
	if err == nil {
		return def, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return leave.LeaveTypeDefinition{}, classify("resolve leave type", err)
	}
	if _, parseErr := uuid.Parse(value); parseErr == nil {
		return leave.LeaveTypeDefinition{}, leave.ErrLeaveTypeNotFound
	}

	byName := `
		SELECT ` + leaveTypeColumns + `
		FROM leave_types lt
		WHERE lower(btrim(lt.name)) = lower($1::text)
			OR lower(btrim(lt.code)) = lower($1::text)
			OR EXISTS (
				SELECT 1 FROM unnest(lt.legacy_names) AS legacy(name)
				WHERE lower(btrim(legacy.name)) = lower($1::text)
			)
		ORDER BY lt.id
		LIMIT 1
	`
	def, err = scanLeaveType(q.QueryRow(ctx, byName, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return leave.LeaveTypeDefinition{}, leave.ErrLeaveTypeNotFound
		}
		return leave.LeaveTypeDefinition{}, classify("resolve leave type", err)
	}
	return def, nil
}

func scanLeaveType(row pgx.Row) (leave.LeaveTypeDefinition, error) {
	var def leave.LeaveTypeDefinition
	err := row.Scan(&def.ID, &def.Name, &def.Code, &def.LegacyNames, &def.RequiresAttachment, &def.AllowHourly)
	if err != nil {
		return leave.LeaveTypeDefinition{}, err
	}
	return def, nil
}
