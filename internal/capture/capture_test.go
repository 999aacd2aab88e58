package capture

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type stubBackend struct {
	name      string
	available bool
}

func (b *stubBackend) Name() string { return b.name }
func (b *stubBackend) Available() bool { return b.available }
func (b *stubBackend) Open(Config, Sink) (Stream, error) { return nil, nil }

func TestSelect(t *testing.T) {
	cb := &stubBackend{name: "callback", available: true}
	poll := &stubBackend{name: "poll", available: true}
	off := &stubBackend{name: "off", available: false}

	t.Run("first_available_wins", func(t *testing.T) {
		b, err := Select([]Backend{cb, poll})
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if b.Name() != "callback" {
			t.Errorf("selected %q, want callback", b.Name())
		}
	})

	t.Run("skips_unavailable", func(t *testing.T) {
		b, err := Select([]Backend{off, poll})
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if b.Name() != "poll" {
			t.Errorf("selected %q, want poll", b.Name())
		}
	})

	t.Run("none_available", func(t *testing.T) {
		_, err := Select([]Backend{off})
		if !errors.Is(err, ErrNoBackendAvailable) {
			t.Errorf("err = %v, want ErrNoBackendAvailable", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		_, err := Select(nil)
		if !errors.Is(err, ErrNoBackendAvailable) {
			t.Errorf("err = %v, want ErrNoBackendAvailable", err)
		}
	})
}

func TestRegistryOrdered(t *testing.T) {
	reg := Registry{
		"portaudio": &stubBackend{name: "portaudio"},
		"arecord":   &stubBackend{name: "arecord"},
	}
	ordered, unknown := reg.Ordered([]string{"arecord", " PortAudio ", "pulse", ""})
	if len(ordered) != 2 || ordered[0].Name() != "arecord" || ordered[1].Name() != "portaudio" {
		t.Errorf("ordered = %v, want [arecord portaudio]", ordered)
	}
	if len(unknown) != 1 || unknown[0] != "pulse" {
		t.Errorf("unknown = %v, want [pulse]", unknown)
	}
}

func TestInitErrorWraps(t *testing.T) {
	cause := errors.New("device busy")
	err := InitError("portaudio", cause)
	if !errors.Is(err, ErrBackendInit) {
		t.Error("expected ErrBackendInit")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be preserved")
	}
}

// countingReader yields sequential one-sample chunks.
type countingReader struct {
	next     atomic.Int32
	closed   atomic.Int32
	failAt   int32
	overflow int32
}

func (r *countingReader) ReadFrames() (Chunk, error) {
	n := r.next.Add(1)
	time.Sleep(time.Millisecond)
	if r.failAt > 0 && n == r.failAt {
		return nil, errors.New("device unplugged")
	}
	if r.overflow > 0 && n == r.overflow {
		return Chunk{int16(n)}, ErrOverflow
	}
	return Chunk{int16(n)}, nil
}

func (r *countingReader) Close() error {
	r.closed.Add(1)
	return nil
}

func TestPollBackend(t *testing.T) {
	t.Run("delivers_in_order_and_closes_once", func(t *testing.T) {
		reader := &countingReader{overflow: 3}
		pb := NewPollBackend("poll", nil, func(Config) (FrameReader, error) { return reader, nil }, zerolog.Nop())

		var mu sync.Mutex
		var got []int16
		stream, err := pb.Open(Config{SampleRate: 16000, Channels: 1, FramesPerBuffer: 1}, func(c Chunk) {
			mu.Lock()
			got = append(got, c...)
			mu.Unlock()
		})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
		if err := stream.Stop(); err != nil {
			t.Fatalf("Stop: %v", err)
		}
		if err := stream.Stop(); err != nil {
			t.Fatalf("second Stop: %v", err)
		}

		mu.Lock()
		n := len(got)
		for i, v := range got {
			if v != int16(i+1) {
				t.Fatalf("got[%d] = %d, want %d", i, v, i+1)
			}
		}
		mu.Unlock()
		if n == 0 {
			t.Error("expected at least one chunk")
		}
		if reader.closed.Load() != 1 {
			t.Errorf("reader closed %d times, want 1", reader.closed.Load())
		}

		// No delivery after Stop.
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		if len(got) != n {
			t.Errorf("sink called after Stop: %d → %d", n, len(got))
		}
	})

	t.Run("read_error_ends_loop", func(t *testing.T) {
		reader := &countingReader{failAt: 2}
		pb := NewPollBackend("poll", nil, func(Config) (FrameReader, error) { return reader, nil }, zerolog.Nop())
		stream, err := pb.Open(Config{}, func(Chunk) {})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		done := make(chan struct{})
		go func() {
			stream.Stop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Stop did not return")
		}
		if reader.closed.Load() != 1 {
			t.Errorf("reader closed %d times, want 1", reader.closed.Load())
		}
	})

	t.Run("open_error_is_init_failure", func(t *testing.T) {
		pb := NewPollBackend("poll", nil, func(Config) (FrameReader, error) {
			return nil, errors.New("permission denied")
		}, zerolog.Nop())
		_, err := pb.Open(Config{}, func(Chunk) {})
		if !errors.Is(err, ErrBackendInit) {
			t.Errorf("err = %v, want ErrBackendInit", err)
		}
	})

	t.Run("availability_func", func(t *testing.T) {
		pb := NewPollBackend("poll", func() bool { return false }, nil, zerolog.Nop())
		if pb.Available() {
			t.Error("Available = true, want false")
		}
	})
}
