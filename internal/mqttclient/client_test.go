package mqttclient

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/snarg/whisper-dictation/internal/events"
)

type doneToken struct{ done chan struct{} }

func newDoneToken() *doneToken {
	t := &doneToken{done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return nil }

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu  sync.Mutex
	got []published
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	f.got = append(f.got, published{topic: topic, payload: payload.([]byte)})
	f.mu.Unlock()
	return newDoneToken()
}

func (f *fakePublisher) messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.got...)
}

func TestNormalizePrefix(t *testing.T) {
	tests := map[string]string{
		"":                   "whisper-dictation",
		"  ":                 "whisper-dictation",
		"home/dictation/":    "home/dictation",
		"/whisper-dictation": "whisper-dictation",
	}
	for in, want := range tests {
		if got := normalizePrefix(in); got != want {
			t.Errorf("normalizePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestForward(t *testing.T) {
	fake := &fakePublisher{}
	c := &Client{pub: fake, prefix: "desk", log: zerolog.Nop(), stop: make(chan struct{})}
	bus := events.NewBus(8)
	c.Forward(bus)

	bus.Publish(events.RecordingStopped, map[string]any{"audio_file": "/tmp/r.wav"})

	deadline := time.Now().Add(2 * time.Second)
	for len(fake.messages()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Close()

	msgs := fake.messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].topic != "desk/recording.stopped" {
		t.Errorf("topic = %q", msgs[0].topic)
	}
	var e events.Event
	if err := json.Unmarshal(msgs[0].payload, &e); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if e.Type != events.RecordingStopped || e.ID == "" {
		t.Errorf("event = %+v", e)
	}
	if bus.SubscriberCount() != 0 {
		t.Error("subscription not released on Close")
	}
}
