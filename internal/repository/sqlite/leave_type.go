package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/google/uuid"
)

const leaveTypeColumns = `id, name, code, legacy_names, requires_attachment, allow_hourly`

// SaveLeaveType inserts or replaces a leave type definition.
func (s *Store) SaveLeaveType(ctx context.Context, def leave.LeaveTypeDefinition) error {
	legacy, err := json.Marshal(nonNil(def.LegacyNames))
	if err != nil {
		return fmt.Errorf("failed to encode legacy names: %w", err)
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO leave_types (`+leaveTypeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			code = excluded.code,
			legacy_names = excluded.legacy_names,
			requires_attachment = excluded.requires_attachment,
			allow_hourly = excluded.allow_hourly`,
		def.ID.String(), def.Name, nullString(def.Code), string(legacy), def.RequiresAttachment, def.AllowHourly)
	if err != nil {
		return classify("save leave type", err)
	}
	return nil
}

// ResolveLeaveType implements leave.LeaveTypeResolver. An exact id match wins.
// A uuid with no matching id is not found; any other value falls back to a
// case-insensitive match on name, code and legacy names.
func (s *Store) ResolveLeaveType(ctx context.Context, idOrLegacyName string) (leave.LeaveTypeDefinition, error) {
	value := strings.TrimSpace(idOrLegacyName)
	if value == "" {
		return leave.LeaveTypeDefinition{}, leave.ErrLeaveTypeNotFound
	}

	def, err := scanLeaveType(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+leaveTypeColumns+` FROM leave_types WHERE id = ?`, value))
	if err == nil {
		return def, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return leave.LeaveTypeDefinition{}, classify("resolve leave type", err)
	}
	if _, parseErr := uuid.Parse(value); parseErr == nil {
		return leave.LeaveTypeDefinition{}, leave.ErrLeaveTypeNotFound
	}

	def, err = scanLeaveType(s.conn(ctx).QueryRowContext(ctx, `
		SELECT `+leaveTypeColumns+` FROM leave_types lt
		WHERE lower(trim(lt.name)) = lower(?1)
			OR lower(trim(lt.code)) = lower(?1)
			OR EXISTS (
				SELECT 1 FROM json_each(lt.legacy_names) j
				WHERE lower(trim(j.value)) = lower(?1)
			)
		ORDER BY lt.id
		LIMIT 1`, value))
	if errors.Is(err, sql.ErrNoRows) {
		return leave.LeaveTypeDefinition{}, leave.ErrLeaveTypeNotFound
	}
	if err != nil {
		return leave.LeaveTypeDefinition{}, classify("resolve leave type", err)
	}
	return def, nil
}

func scanLeaveType(row scanner) (leave.LeaveTypeDefinition, error) {
	var (
		def    leave.LeaveTypeDefinition
		id     string
		code   sql.NullString
		legacy string
	)
	if err := row.Scan(&id, &def.Name, &code, &legacy, &def.RequiresAttachment, &def.AllowHourly); err != nil {
		return leave.LeaveTypeDefinition{}, err
	}
	def.ID = leave.LeaveTypeID(id)
	def.Code = stringPtr(code)
	if err := json.Unmarshal([]byte(legacy), &def.LegacyNames); err != nil {
		return leave.LeaveTypeDefinition{}, fmt.Errorf("failed to decode legacy names: %w", err)
	}
	return def, nil
}
