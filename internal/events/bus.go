// Package events distributes recording and transcription lifecycle events to
// in-process subscribers (SSE clients, the MQTT publisher).
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/snarg/whisper-dictation/internal/metrics"
)

// Event types.
const (
	RecordingStarted       = "recording.started"
	RecordingStopped       = "recording.stopped"
	RecordingFailed        = "recording.failed"
	TranscriptionCompleted = "transcription.completed"
	TranscriptionFailed    = "transcription.failed"
)

// Event is a published event as delivered to subscribers.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Filter selects events by type. An empty filter matches everything.
// A trailing ".*" matches a whole family, e.g. "recording.*".
type Filter struct {
	Types []string
}

// Bus provides pub-sub event distribution.
// It maintains a ring buffer for replay on reconnect.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]subscriber
	nextID      uint64
	seq         atomic.Uint64

	ring     []Event
	ringSize int
	ringHead int
	ringMu   sync.RWMutex
}

type subscriber struct {
	ch     chan Event
	filter Filter
}

// NewBus creates an event bus with the given ring buffer size.
func NewBus(ringSize int) *Bus {
	if ringSize <= 0 {
		ringSize = 1
	}
	return &Bus{
		subscribers: make(map[uint64]subscriber),
		ring:        make([]Event, ringSize),
		ringSize:    ringSize,
	}
}

// Subscribe registers a new subscriber and returns a channel and cancel
// function. cancel closes the channel.
func (b *Bus) Subscribe(filter Filter) (<-chan Event, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, 64)
	b.subscribers[id] = subscriber{ch: ch, filter: filter}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// SubscriberCount returns the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// ReplaySince returns buffered events published after lastEventID. An
// unknown ID (evicted from the ring) replays nothing.
func (b *Bus) ReplaySince(lastEventID string, filter Filter) []Event {
	b.ringMu.RLock()
	defer b.ringMu.RUnlock()

	var events []Event
	found := lastEventID == ""

	for i := 0; i < b.ringSize; i++ {
		idx := (b.ringHead + i) % b.ringSize
		e := b.ring[idx]
		if e.ID == "" {
			continue
		}
		if !found {
			if e.ID == lastEventID {
				found = true
			}
			continue
		}
		if matchesFilter(e, filter) {
			events = append(events, e)
		}
	}
	return events
}

// Publish sends an event to all matching subscribers and adds it to the
// ring buffer. Slow subscribers miss events rather than block publishers.
func (b *Bus) Publish(eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	now := time.Now()
	seq := b.seq.Add(1)
	event := Event{
		ID:        fmt.Sprintf("%d-%d", now.UnixMilli(), seq),
		Type:      eventType,
		Timestamp: now.UTC().Format(time.RFC3339),
		Data:      data,
	}

	b.ringMu.Lock()
	b.ring[b.ringHead] = event
	b.ringHead = (b.ringHead + 1) % b.ringSize
	b.ringMu.Unlock()

	metrics.EventsPublishedTotal.Inc()

	b.mu.RLock()
	for _, sub := range b.subscribers {
		if matchesFilter(event, sub.filter) {
			select {
			case sub.ch <- event:
			default:
				// Drop if subscriber is slow
			}
		}
	}
	b.mu.RUnlock()
}

func matchesFilter(e Event, f Filter) bool {
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if family, ok := strings.CutSuffix(t, ".*"); ok {
			if strings.HasPrefix(e.Type, family+".") {
				return true
			}
			continue
		}
		if t == e.Type {
			return true
		}
	}
	return false
}
