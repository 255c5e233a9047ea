package leave

import "time"

type EventName string

const (
	EventRequestCreated  EventName = "leave.request.created"
	EventRequestApproved EventName = "leave.request.approved"
	EventRequestRejected EventName = "leave.request.rejected"
)

// Event is the payload handed to the EventSink.
type Event struct {
	Name        EventName `json:"event"`
	RequestID   string    `json:"request_id"`
	EmployeeID  string    `json:"employee_id"`
	LeaveTypeID string    `json:"leave_type_id"`
	Status      string    `json:"status"`
	Timing      string    `json:"timing,omitempty"`
	ActorID     string    `json:"actor_id,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	Amount      string    `json:"amount,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewEvent builds an event describing request as it is now.
func NewEvent(name EventName, request LeaveRequest, actor UserID, at time.Time) Event {
	e := Event{
		Name:        name,
		RequestID:   request.ID.String(),
		EmployeeID:  request.EmployeeID.String(),
		LeaveTypeID: request.LeaveTypeID.String(),
		Status:      string(request.Status),
		Timing:      string(request.Timing),
		ActorID:     actor.String(),
		OccurredAt:  at,
	}
	if request.RejectedReason != nil {
		e.Reason = *request.RejectedReason
	}
	return e
}

// WithDuration attaches the consumed quantity.
func (e Event) WithDuration(d Duration) Event {
	e.Unit = string(d.Unit)
	e.Amount = d.Amount.String()
	return e
}
