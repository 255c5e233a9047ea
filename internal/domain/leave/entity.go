package leave

import (
	"time"

	"github.com/shopspring/decimal"
)

// Typed identifiers. They share a string representation but are not
// assignable to one another.
type (
	RequestID   string
	EmployeeID  string
	LeaveTypeID string
	UserID      string
)

func (id RequestID) String() string   { return string(id) }
func (id EmployeeID) String() string  { return string(id) }
func (id LeaveTypeID) String() string { return string(id) }
func (id UserID) String() string      { return string(id) }

type LeaveRequestStatus string

const (
	LeaveRequestStatusPending  LeaveRequestStatus = "pending"
	LeaveRequestStatusApproved LeaveRequestStatus = "approved"
	LeaveRequestStatusRejected LeaveRequestStatus = "rejected"
)

// IsTerminal reports whether no transition may leave the status.
func (s LeaveRequestStatus) IsTerminal() bool {
	return s == LeaveRequestStatusApproved || s == LeaveRequestStatusRejected
}

// LeaveSubtype refines leave types that support partial-day leave.
type LeaveSubtype string

const (
	LeaveSubtypeNone LeaveSubtype = ""
	LeaveSubtypeDay  LeaveSubtype = "day"
	LeaveSubtypeHour LeaveSubtype = "hour"
)

// Timing classifies a request's start date relative to the evaluation day.
type Timing string

const (
	TimingBackdated Timing = "backdated"
	TimingAdvance   Timing = "advance"
	TimingCurrent   Timing = "current"
)

// Unit is the measure a duration or quota is expressed in.
type Unit string

const (
	UnitDays  Unit = "days"
	UnitHours Unit = "hours"
)

func (u Unit) Valid() bool {
	return u == UnitDays || u == UnitHours
}

// Duration is an amount of leave in a single unit.
type Duration struct {
	Unit   Unit
	Amount decimal.Decimal
}

func Days(n int64) Duration {
	return Duration{Unit: UnitDays, Amount: decimal.NewFromInt(n)}
}

func Hours(h decimal.Decimal) Duration {
	return Duration{Unit: UnitHours, Amount: h}
}

// LeaveTypeDefinition is owned by the leave-type catalogue; the core only reads it.
type LeaveTypeDefinition struct {
	ID                 LeaveTypeID
	Name               string
	Code               *string
	LegacyNames        []string
	RequiresAttachment bool
	AllowHourly        bool
}

// LeaveRequest entity
type LeaveRequest struct {
	ID          RequestID
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	Subtype     LeaveSubtype

	// Date-only, normalised to 00:00 UTC.
	StartDate time.Time
	EndDate   time.Time

	// HH:MM, present only for hour-mode requests.
	StartTime *string
	EndTime   *string

	Reason      string
	Attachments []string
	Timing      Timing

	Status         LeaveRequestStatus
	ApprovedBy     *UserID
	ApprovedAt     *time.Time
	RejectedBy     *UserID
	RejectedAt     *time.Time
	RejectedReason *string

	CreatedBy UserID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsHourly reports whether the request carries an hour-mode time range.
func (r LeaveRequest) IsHourly() bool {
	return r.Subtype == LeaveSubtypeHour && r.StartTime != nil && r.EndTime != nil
}

// LedgerKey identifies one quota ledger entry.
type LedgerKey struct {
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
}

// QuotaLedgerEntry is the running consumption total for one employee and leave type.
type QuotaLedgerEntry struct {
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	DaysUsed    decimal.Decimal
	HoursUsed   decimal.Decimal
	Version     int64
	UpdatedAt   time.Time
}

func (e QuotaLedgerEntry) Key() LedgerKey {
	return LedgerKey{EmployeeID: e.EmployeeID, LeaveTypeID: e.LeaveTypeID}
}

// Used returns the consumed amount in unit.
func (e QuotaLedgerEntry) Used(unit Unit) decimal.Decimal {
	if unit == UnitHours {
		return e.HoursUsed
	}
	return e.DaysUsed
}

// Add returns the entry with d accumulated into the matching counter.
func (e QuotaLedgerEntry) Add(d Duration) QuotaLedgerEntry {
	switch d.Unit {
	case UnitHours:
		e.HoursUsed = e.HoursUsed.Add(d.Amount)
	default:
		e.DaysUsed = e.DaysUsed.Add(d.Amount)
	}
	return e
}

// SameTotals compares the counters, ignoring version and timestamps.
func (e QuotaLedgerEntry) SameTotals(o QuotaLedgerEntry) bool {
	return e.DaysUsed.Equal(o.DaysUsed) && e.HoursUsed.Equal(o.HoursUsed)
}

// LedgerApplication records that an approved request has been counted in the ledger.
type LedgerApplication struct {
	RequestID   RequestID
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	Duration    Duration
	AppliedAt   time.Time
}

// ReconcileReport summarises one reconciliation run.
type ReconcileReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Requests   int
	Groups     int
	Inserted   int
	Updated    int
	Unchanged  int
	Zeroed     int
	Retried    int
	Failures   []GroupFailure
}

// GroupFailure describes a ledger group the reconciliation could not rebuild.
type GroupFailure struct {
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	RequestID   RequestID
	Err         error
}

func (f GroupFailure) Error() string {
	msg := "employee " + f.EmployeeID.String() + " leave type " + f.LeaveTypeID.String()
	if f.RequestID != "" {
		msg += " request " + f.RequestID.String()
	}
	return msg + ": " + f.Err.Error()
}

// Failed reports whether any group could not be rebuilt.
func (r ReconcileReport) Failed() bool {
	return len(r.Failures) > 0
}
