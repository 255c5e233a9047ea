package notification

import (
	"context"

	"github.com/cmlabs-hris/hris-leave-go/internal/domain/leave"
	"github.com/cmlabs-hris/hris-leave-go/internal/pkg/sse"
)

// HubPublisher pushes events to in-process SSE subscribers, using the
// employee id as topic.
type HubPublisher struct {
	hub *sse.Hub
}

func NewHubPublisher(hub *sse.Hub) *HubPublisher {
	return &HubPublisher{hub: hub}
}

func (p *HubPublisher) Name() string { return "sse" }

// Publish implements Publisher.
func (p *HubPublisher) Publish(_ context.Context, event leave.Event) error {
	p.hub.Publish(event.EmployeeID, sse.Event{Event: string(event.Name), Data: event})
	return nil
}
