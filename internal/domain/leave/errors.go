package leave

import (
	"errors"
	"fmt"

	"github.com/cmlabs-hris/hris-leave-go/internal/pkg/validator"
)

var (
	ErrLeaveRequestNotFound = errors.New("leave request not found")
	ErrLeaveTypeNotFound    = errors.New("leave type not found")
	ErrLedgerEntryNotFound  = errors.New("leave ledger entry not found")

	ErrInvalidTransition  = errors.New("invalid leave request transition")
	ErrInvalidRange       = errors.New("invalid date range")
	ErrInvalidTimeRange   = errors.New("invalid time range")
	ErrStorageUnavailable = errors.New("storage unavailable")

	ErrAttachmentRequired = errors.New("attachments are required for this leave type")
	ErrHourlyNotAllowed   = errors.New("hour subtype is not allowed for this leave type")

	// ErrVersionConflict is returned by LedgerRepository.ReplaceEntry when the
	// entry changed since it was read.
	ErrVersionConflict = errors.New("leave ledger entry modified concurrently")

	// ErrValidation matches every validator.ValidationErrors.
	ErrValidation = validator.ErrValidation
)

// TransitionError reports a state machine guard violation. Op is the
// attempted action (approve, reject, edit, delete); To is empty for actions
// that do not change the status.
type TransitionError struct {
	RequestID RequestID
	Op        string
	From      LeaveRequestStatus
	To        LeaveRequestStatus
}

func (e *TransitionError) Error() string {
	if e.To == "" {
		return fmt.Sprintf("leave request %s: cannot %s a %s request", e.RequestID, e.Op, e.From)
	}
	return fmt.Sprintf("leave request %s: cannot %s, status %s cannot move to %s", e.RequestID, e.Op, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// RangeError reports a calculator input that does not form a valid range.
type RangeError struct {
	Field string
	Start string
	End   string
	Err   error // ErrInvalidRange or ErrInvalidTimeRange
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: %s (start %q, end %q)", e.Field, e.Err, e.Start, e.End)
}

func (e *RangeError) Unwrap() error {
	return e.Err
}

// StorageError wraps a transient persistence failure. Callers may retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageUnavailable, e.Err}
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrVersionConflict)
}

// Kind names the error category for outer layers.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrInvalidRange):
		return "invalid_range"
	case errors.Is(err, ErrInvalidTimeRange):
		return "invalid_time_range"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, ErrLeaveRequestNotFound),
		errors.Is(err, ErrLeaveTypeNotFound),
		errors.Is(err, ErrLedgerEntryNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
