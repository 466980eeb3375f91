package procurement

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fleetdesk/fleetdesk/internal/events"
)

const ssePingInterval = 30 * time.Second

// StreamEvents holds the connection open and relays change notifications as
// server-sent events. A connected event is written immediately so clients can
// confirm the stream before anything changes; pings keep intermediaries from
// timing out the idle connection. Mounted outside the request-timeout and
// compression middleware, which would cut or buffer the stream.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub, err := h.bus.Subscribe()
	if err != nil {
		h.logger.Error("subscribe events", slog.Any("error", err))
		http.Error(w, "subscription failed", http.StatusInternalServerError)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, events.Event{
		ID:   uuid.NewString(),
		Type: events.TypeConnected,
		At:   time.Now().UTC(),
	})
	flusher.Flush()

	ticker := time.NewTicker(ssePingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			writeSSE(w, events.Event{
				ID:   uuid.NewString(),
				Type: events.TypePing,
				At:   time.Now().UTC(),
			})
			flusher.Flush()
		case evt, open := <-sub.C:
			if !open {
				// Bus dropped us, most likely as a slow consumer.
				return
			}
			writeSSE(w, evt)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, evt events.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, payload)
}
