package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/snarg/whisper-dictation/internal/events"
)

// scriptedSource replays a fixed backlog and delivers live events from a
// pre-filled, closed channel.
type scriptedSource struct {
	backlog []events.Event
	live    []events.Event
	since   string
}

func (s *scriptedSource) Subscribe(events.Filter) (<-chan events.Event, func()) {
	ch := make(chan events.Event, len(s.live))
	for _, e := range s.live {
		ch <- e
	}
	close(ch)
	return ch, func() {}
}

func (s *scriptedSource) ReplaySince(lastEventID string, _ events.Filter) []events.Event {
	s.since = lastEventID
	return s.backlog
}

func ev(id, typ string) events.Event {
	return events.Event{ID: id, Type: typ, Data: []byte(`{}`)}
}

func streamedIDs(body string) []string {
	var ids []string
	for _, line := range strings.Split(body, "\n") {
		if id, ok := strings.CutPrefix(line, "id: "); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func TestStreamEventsReplayOverlapSentOnce(t *testing.T) {
	src := &scriptedSource{
		backlog: []events.Event{ev("100-1", events.RecordingStarted), ev("100-2", events.RecordingStopped)},
		// 100-2 was published between Subscribe and ReplaySince.
		live: []events.Event{ev("100-2", events.RecordingStopped), ev("100-3", events.TranscriptionCompleted)},
	}
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("Last-Event-ID", "100-0")
	rec := httptest.NewRecorder()

	NewEventsHandler(src).StreamEvents(rec, req)

	if src.since != "100-0" {
		t.Errorf("replayed since %q, want 100-0", src.since)
	}
	got := streamedIDs(rec.Body.String())
	want := []string{"100-1", "100-2", "100-3"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ids = %v, want %v", got, want)
	}
}

func TestStreamEventsWithoutLastEventID(t *testing.T) {
	src := &scriptedSource{
		backlog: []events.Event{ev("1-1", events.RecordingStarted)},
		live:    []events.Event{ev("1-2", events.RecordingStopped)},
	}
	rec := httptest.NewRecorder()
	NewEventsHandler(src).StreamEvents(rec, httptest.NewRequest(http.MethodGet, "/events", nil))

	if got := streamedIDs(rec.Body.String()); len(got) != 1 || got[0] != "1-2" {
		t.Errorf("ids = %v, want only the live event", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
}
