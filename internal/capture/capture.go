// Package capture abstracts over the mechanisms that deliver microphone
// audio. A Backend opens a Stream that feeds Chunks to a Sink until the
// stream is stopped.
//
// Two variants exist. Callback-driven backends hand chunks to the sink from
// a context owned by the audio driver. Poll-driven backends are built with
// NewPollBackend from a FrameReader; a dedicated goroutine performs blocking
// reads and feeds the sink.
package capture

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoBackendAvailable means no configured backend can be used on this host.
	ErrNoBackendAvailable = errors.New("no audio backend available")
	// ErrBackendInit means a backend was available but failed to open its stream.
	ErrBackendInit = errors.New("audio backend init failed")
)

// Chunk is interleaved signed 16-bit PCM in arrival order.
type Chunk []int16

// Sink receives captured chunks. Implementations must not retain the slice
// beyond the call unless they own it; backends always pass a fresh copy.
type Sink func(Chunk)

// Config is the capture configuration of one session.
type Config struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int
}

// Backend opens audio input streams.
type Backend interface {
	// Name identifies the backend in configuration and logs.
	Name() string
	// Available reports whether the backend can be used on this host.
	Available() bool
	// Open starts producing chunks into sink. Errors wrap ErrBackendInit.
	Open(cfg Config, sink Sink) (Stream, error)
}

// Stream is an open input stream.
type Stream interface {
	// Stop halts production and releases the device. After Stop returns the
	// sink is not called again. Stop is safe to call more than once; only the
	// first call releases the device.
	Stop() error
}

// Select returns the first available backend in preference order.
func Select(backends []Backend) (Backend, error) {
	var tried []string
	for _, b := range backends {
		if b == nil {
			continue
		}
		if b.Available() {
			return b, nil
		}
		tried = append(tried, b.Name())
	}
	if len(tried) == 0 {
		return nil, fmt.Errorf("%w: none configured", ErrNoBackendAvailable)
	}
	return nil, fmt.Errorf("%w: tried %s", ErrNoBackendAvailable, strings.Join(tried, ", "))
}

// InitError wraps a backend-specific open failure as ErrBackendInit.
func InitError(backend string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrBackendInit, backend, err)
}

// Registry resolves backend names from configuration into backends.
type Registry map[string]Backend

// Ordered returns the registered backends named in prefs, in that order.
// Unknown names are returned separately so the caller can log them.
func (r Registry) Ordered(prefs []string) (ordered []Backend, unknown []string) {
	for _, name := range prefs {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		b, ok := r[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		ordered = append(ordered, b)
	}
	return ordered, unknown
}
