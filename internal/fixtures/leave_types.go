package fixtures

import (
	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
)

func strPtr(s string) *string { return &s }

// Default leave type ids. Fixed so every store seeds the same rows.
const (
	AnnualLeaveID    leave.LeaveTypeID = "0190a000-0000-7000-8000-000000000001"
	SickLeaveID      leave.LeaveTypeID = "0190a000-0000-7000-8000-000000000002"
	PersonalLeaveID  leave.LeaveTypeID = "0190a000-0000-7000-8000-000000000003"
	MarriageLeaveID  leave.LeaveTypeID = "0190a000-0000-7000-8000-000000000004"
	MaternityLeaveID leave.LeaveTypeID = "0190a000-0000-7000-8000-000000000005"
	UnpaidLeaveID    leave.LeaveTypeID = "0190a000-0000-7000-8000-000000000006"
)

// DefaultLeaveTypes returns the standard leave types based on Indonesian labor
// law. LegacyNames carries the display names older rows stored in place of ids.
func DefaultLeaveTypes() []leave.LeaveTypeDefinition {
	return []leave.LeaveTypeDefinition{
		{
			ID:          AnnualLeaveID,
			Name:        "Annual Leave",
			Code:        strPtr("ANNUAL"),
			LegacyNames: []string{"Cuti Tahunan", "Annual"},
		},
		{
			ID:                 SickLeaveID,
			Name:               "Sick Leave",
			Code:               strPtr("SICK"),
			LegacyNames:        []string{"Cuti Sakit", "Sakit"},
			RequiresAttachment: true,
		},
		// Hourly permits for errands inside a working day.
		{
			ID:          PersonalLeaveID,
			Name:        "Personal Leave",
			Code:        strPtr("PERSONAL"),
			LegacyNames: []string{"Izin"},
			AllowHourly: true,
		},
		{
			ID:                 MarriageLeaveID,
			Name:               "Marriage Leave",
			Code:               strPtr("MARRIAGE"),
			LegacyNames:        []string{"Cuti Menikah"},
			RequiresAttachment: true,
		},
		{
			ID:                 MaternityLeaveID,
			Name:               "Maternity Leave",
			Code:               strPtr("MATERNITY"),
			LegacyNames:        []string{"Cuti Melahirkan"},
			RequiresAttachment: true,
		},
		{
			ID:          UnpaidLeaveID,
			Name:        "Unpaid Leave",
			Code:        strPtr("UNPAID"),
			LegacyNames: []string{"Cuti Tanpa Gaji"},
		},
	}
}
