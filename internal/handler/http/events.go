package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cmlabs-hris/hris-leave-go/internal/pkg/sse"
	"github.com/go-chi/chi/v5"
)

type EventsHandler interface {
	Stream(w http.ResponseWriter, r *http.Request)
}

type eventsHandlerImpl struct {
	hub       *sse.Hub
	keepalive time.Duration
	logger    *slog.Logger
}

func NewEventsHandler(hub *sse.Hub, keepalive time.Duration, logger *slog.Logger) EventsHandler {
	if keepalive <= 0 {
		keepalive = 30 * time.Second
	}
	return &eventsHandlerImpl{hub: hub, keepalive: keepalive, logger: logger}
}

// Stream handles an SSE connection carrying one employee's leave events.
func (h *eventsHandlerImpl) Stream(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeID")

	// Check if streaming is supported
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	events, cleanup := h.hub.Subscribe(employeeID)
	h.logSubscribers(r, "sse subscriber connected", employeeID)
	defer func() {
		cleanup()
		h.logSubscribers(r, "sse subscriber disconnected", employeeID)
	}()

	// Send initial connection event
	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"employee_id\":%q}\n\n", employeeID)
	flusher.Flush()

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event.Data)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Event, data)
			flusher.Flush()

		case <-keepalive.C:
			fmt.Fprintf(w, "event: ping\ndata: {\"timestamp\":%d}\n\n", time.Now().Unix())
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func (h *eventsHandlerImpl) logSubscribers(r *http.Request, msg, employeeID string) {
	h.logger.DebugContext(r.Context(), msg,
		slog.String("employee_id", employeeID),
		slog.Int("topic_subscribers", h.hub.SubscriberCount(employeeID)),
		slog.Int("total_subscribers", h.hub.TotalSubscribers()),
		slog.Int64("dropped_events", h.hub.Dropped()),
	)
}
