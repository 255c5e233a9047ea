package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-go/internal/pkg/validator"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	var transitionErr *leave.TransitionError
	var rangeErr *leave.RangeError

	switch {
	case errors.As(err, &transitionErr):
		Conflict(w, transitionErr.Error())
	case errors.As(err, &rangeErr):
		ValidationError(w, map[string]string{rangeErr.Field: rangeErr.Err.Error()})

	case errors.Is(err, leave.ErrLeaveRequestNotFound):
		NotFound(w, "Leave request not found")
	case errors.Is(err, leave.ErrLeaveTypeNotFound):
		ValidationError(w, map[string]string{"leave_type_id": "leave type not found"})
	case errors.Is(err, leave.ErrLedgerEntryNotFound):
		NotFound(w, "Ledger entry not found")
	case errors.Is(err, leave.ErrInvalidTransition):
		Conflict(w, "Leave request already processed")

	case leave.IsRetryable(err):
		ServiceUnavailable(w, "Storage temporarily unavailable, retry later")

	// Default
	default:
		slog.Error("unhandled error", slog.String("kind", leave.Kind(err)), slog.Any("error", err))
		InternalServerError(w, "An unexpected error occurred")
	}
}
