package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"github.com/snarg/whisper-dictation/internal/events"
)

// EventSource is the subset of the event bus the SSE handler needs.
type EventSource interface {
	Subscribe(filter events.Filter) (<-chan events.Event, func())
	ReplaySince(lastEventID string, filter events.Filter) []events.Event
}

type EventsHandler struct {
	source    EventSource
	keepalive time.Duration
}

func NewEventsHandler(source EventSource) *EventsHandler {
	return &EventsHandler{source: source, keepalive: 15 * time.Second}
}

// StreamEvents opens an SSE connection and pushes filtered events.
func (h *EventsHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		WriteError(w, http.StatusServiceUnavailable, "event streaming not available")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	filter := events.Filter{Types: QueryStringList(r, "types")}

	// The stream outlives any server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Subscribe before replaying so nothing published in between is lost.
	ch, cancel := h.source.Subscribe(filter)
	defer cancel()

	// Replay missed events if Last-Event-ID is provided. Anything published
	// after Subscribe can show up in both the replay and the channel.
	var replayed map[string]struct{}
	if lastEventID := r.Header.Get("Last-Event-ID"); lastEventID != "" {
		missed := h.source.ReplaySince(lastEventID, filter)
		replayed = make(map[string]struct{}, len(missed))
		for _, e := range missed {
			writeEvent(w, e)
			replayed[e.ID] = struct{}{}
		}
	}
	flusher.Flush()

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	log := hlog.FromRequest(r)
	log.Info().Strs("types", filter.Types).Msg("SSE client connected")

	for {
		select {
		case <-r.Context().Done():
			log.Info().Msg("SSE client disconnected")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if _, dup := replayed[event.ID]; dup {
				delete(replayed, event.ID)
				continue
			}
			writeEvent(w, event)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, e events.Event) {
	fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Type, e.Data)
}

// Routes registers event routes on the given router.
func (h *EventsHandler) Routes(r chi.Router) {
	r.Get("/events", h.StreamEvents)
}
