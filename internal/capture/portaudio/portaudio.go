// Package portaudio provides capture backends on top of the PortAudio C
// library: a callback-driven one and a blocking-read one.
package portaudio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
	"github.com/snarg/whisper-dictation/internal/capture"
)

const (
	CallbackName = "portaudio"
	BlockingName = "portaudio-blocking"
)

// available initializes the library once to probe for a default input device.
func available() bool {
	if err := portaudio.Initialize(); err != nil {
		return false
	}
	defer portaudio.Terminate()
	dev, err := portaudio.DefaultInputDevice()
	return err == nil && dev != nil && dev.MaxInputChannels > 0
}

// CallbackBackend delivers chunks from PortAudio's audio thread.
type CallbackBackend struct {
	log zerolog.Logger
}

func NewCallbackBackend(log zerolog.Logger) *CallbackBackend {
	return &CallbackBackend{log: log.With().Str("backend", CallbackName).Logger()}
}

func (b *CallbackBackend) Name() string    { return CallbackName }
func (b *CallbackBackend) Available() bool { return available() }

func (b *CallbackBackend) Open(cfg capture.Config, sink capture.Sink) (capture.Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, capture.InitError(CallbackName, err)
	}

	s := &stream{}
	callback := func(in []int16) {
		// The driver reuses in between callbacks.
		chunk := make(capture.Chunk, len(in))
		copy(chunk, in)
		sink(chunk)
	}

	pa, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), cfg.FramesPerBuffer, callback)
	if err != nil {
		portaudio.Terminate()
		return nil, capture.InitError(CallbackName, err)
	}
	if err := pa.Start(); err != nil {
		pa.Close()
		portaudio.Terminate()
		return nil, capture.InitError(CallbackName, err)
	}
	s.pa = pa

	b.log.Debug().
		Int("sample_rate", cfg.SampleRate).
		Int("channels", cfg.Channels).
		Int("frames_per_buffer", cfg.FramesPerBuffer).
		Msg("callback stream started")
	return s, nil
}

// stream releases a PortAudio stream and the library reference exactly once.
type stream struct {
	pa   *portaudio.Stream
	once sync.Once
	err  error
}

func (s *stream) Stop() error {
	s.once.Do(func() {
		// Stop waits for pending callbacks to finish.
		stopErr := s.pa.Stop()
		closeErr := s.pa.Close()
		termErr := portaudio.Terminate()
		s.err = errors.Join(stopErr, closeErr, termErr)
	})
	return s.err
}

// BlockingBackend reads fixed-size buffers in a poll loop.
type BlockingBackend struct {
	*capture.PollBackend
}

func NewBlockingBackend(log zerolog.Logger) *BlockingBackend {
	return &BlockingBackend{
		PollBackend: capture.NewPollBackend(BlockingName, available, openReader, log),
	}
}

type reader struct {
	stream *stream
	buf    []int16
}

func openReader(cfg capture.Config) (capture.FrameReader, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	buf := make([]int16, cfg.FramesPerBuffer*cfg.Channels)
	pa, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), cfg.FramesPerBuffer, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if err := pa.Start(); err != nil {
		pa.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start stream: %w", err)
	}
	return &reader{stream: &stream{pa: pa}, buf: buf}, nil
}

func (r *reader) ReadFrames() (capture.Chunk, error) {
	err := r.stream.pa.Read()
	if err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return nil, err
	}
	chunk := make(capture.Chunk, len(r.buf))
	copy(chunk, r.buf)
	if err != nil {
		return chunk, capture.ErrOverflow
	}
	return chunk, nil
}

func (r *reader) Close() error { return r.stream.Stop() }
