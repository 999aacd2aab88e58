package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestBusPublishSubscribe(t *testing.T) {
	t.Run("subscriber_receives_published_event", func(t *testing.T) {
		b := NewBus(16)
		ch, cancel := b.Subscribe(Filter{})
		defer cancel()

		b.Publish(RecordingStarted, map[string]any{"audio_file": "/tmp/a.wav"})

		select {
		case evt := <-ch:
			if evt.Type != RecordingStarted {
				t.Errorf("Type = %q, want %s", evt.Type, RecordingStarted)
			}
			if evt.ID == "" {
				t.Error("expected non-empty event ID")
			}
			var payload map[string]string
			if err := json.Unmarshal(evt.Data, &payload); err != nil {
				t.Fatalf("Data is not valid JSON: %v", err)
			}
			if payload["audio_file"] != "/tmp/a.wav" {
				t.Errorf("audio_file = %q", payload["audio_file"])
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	})

	t.Run("filtered_subscriber_misses_non_matching", func(t *testing.T) {
		b := NewBus(16)
		ch, cancel := b.Subscribe(Filter{Types: []string{TranscriptionCompleted}})
		defer cancel()

		b.Publish(RecordingStarted, nil)

		select {
		case evt := <-ch:
			t.Fatalf("should not receive event, got %+v", evt)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("cancel_closes_channel", func(t *testing.T) {
		b := NewBus(16)
		ch, cancel := b.Subscribe(Filter{})
		cancel()
		cancel()

		b.Publish(RecordingStarted, nil)

		if _, ok := <-ch; ok {
			t.Fatal("should not receive event after cancel")
		}
		if n := b.SubscriberCount(); n != 0 {
			t.Errorf("SubscriberCount = %d, want 0", n)
		}
	})

	t.Run("slow_subscriber_does_not_block", func(t *testing.T) {
		b := NewBus(16)
		_, cancel := b.Subscribe(Filter{})
		defer cancel()

		done := make(chan struct{})
		go func() {
			for i := 0; i < 200; i++ {
				b.Publish(RecordingStarted, nil)
			}
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Publish blocked on a full subscriber")
		}
	})
}

func TestBusReplaySince(t *testing.T) {
	b := NewBus(4)
	var ids []string
	ch, cancel := b.Subscribe(Filter{})
	defer cancel()
	for _, typ := range []string{RecordingStarted, RecordingStopped, TranscriptionCompleted} {
		b.Publish(typ, nil)
		ids = append(ids, (<-ch).ID)
	}

	t.Run("after_first", func(t *testing.T) {
		got := b.ReplaySince(ids[0], Filter{})
		if len(got) != 2 || got[0].ID != ids[1] || got[1].ID != ids[2] {
			t.Errorf("replay = %+v", got)
		}
	})

	t.Run("filtered", func(t *testing.T) {
		got := b.ReplaySince(ids[0], Filter{Types: []string{"transcription.*"}})
		if len(got) != 1 || got[0].Type != TranscriptionCompleted {
			t.Errorf("replay = %+v", got)
		}
	})

	t.Run("unknown_id", func(t *testing.T) {
		if got := b.ReplaySince("0-0", Filter{}); len(got) != 0 {
			t.Errorf("replay = %+v, want none", got)
		}
	})

	t.Run("ring_wraps", func(t *testing.T) {
		for i := 0; i < 4; i++ {
			b.Publish(RecordingStarted, nil)
			<-ch
		}
		if got := b.ReplaySince(ids[0], Filter{}); len(got) != 0 {
			t.Errorf("evicted id replayed %d events", len(got))
		}
	})
}

func TestMatchesFilter(t *testing.T) {
	e := Event{Type: RecordingStopped}
	tests := []struct {
		name  string
		types []string
		want  bool
	}{
		{"empty", nil, true},
		{"exact", []string{RecordingStopped}, true},
		{"family", []string{"recording.*"}, true},
		{"other_family", []string{"transcription.*"}, false},
		{"other_type", []string{RecordingStarted}, false},
		{"padded_list", []string{" recording.stopped "}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesFilter(e, Filter{Types: tt.types}); got != tt.want {
				t.Errorf("matchesFilter(%v) = %v, want %v", tt.types, got, tt.want)
			}
		})
	}
}
