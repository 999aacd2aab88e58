// Package recorder owns the single recording session: it binds a capture
// backend (producer) and a StreamWriter (consumer) to a fresh ChunkQueue on
// start and tears them down on stop.
package recorder

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/whisper-dictation/internal/capture"
	"github.com/snarg/whisper-dictation/internal/metrics"
)

var (
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not recording")
	// ErrInputWriteFailure means the session file could not be written; the
	// file on disk is partial and should be discarded.
	ErrInputWriteFailure = errors.New("recording write failed")
)

// State is the session lifecycle state.
type State int32

const (
	Idle State = iota
	Recording
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// PathAllocator hands out the file path for a new session.
type PathAllocator interface {
	Allocate() (string, error)
}

// EventPublishFunc is a callback for publishing lifecycle events.
type EventPublishFunc func(eventType string, payload map[string]any)

// Options configures a Controller.
type Options struct {
	// Backends in preference order; callback-driven first.
	Backends        []capture.Backend
	SampleRate      int
	Channels        int
	FramesPerBuffer int
	Paths           PathAllocator
	StopTimeout     time.Duration
	WriterPoll      time.Duration
	PublishEvent    EventPublishFunc
	Log             zerolog.Logger
}

// Session describes the active or most recent recording.
type Session struct {
	State      State     `json:"state"`
	Path       string    `json:"audio_file,omitempty"`
	Backend    string    `json:"backend,omitempty"`
	SampleRate int       `json:"sample_rate,omitempty"`
	Channels   int       `json:"channels,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

type activeSession struct {
	info   Session
	stream capture.Stream
	writer *StreamWriter
	queue  *ChunkQueue
}

// StopResult reports how a stop completed.
type StopResult struct {
	Path     string
	Duration time.Duration
	Samples  int64
	// TimedOut means the writer had not finished when the stop timeout
	// elapsed; the file may be incomplete and the writer keeps running in
	// the background until it drains.
	TimedOut bool
}

// Controller is the recording state machine: Idle → Recording → Stopping → Idle.
// All methods are safe for concurrent use.
type Controller struct {
	opts Options
	log  zerolog.Logger

	mu      sync.Mutex // serializes transitions
	state   atomic.Int32
	active  *activeSession
	current atomic.Pointer[ChunkQueue]
	// draining holds writers abandoned by a timed-out Stop, by path, until
	// they finish. A fixed recording name must not be reopened before then.
	draining map[string]*StreamWriter
}

// NewController creates an idle controller.
func NewController(opts Options) *Controller {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}
	if opts.WriterPoll <= 0 {
		opts.WriterPoll = 100 * time.Millisecond
	}
	if opts.FramesPerBuffer <= 0 {
		opts.FramesPerBuffer = 1024
	}
	return &Controller{opts: opts, log: opts.Log, draining: make(map[string]*StreamWriter)}
}

// State returns the current state without blocking.
func (c *Controller) State() State { return State(c.state.Load()) }

// IsRecording reports whether a session is in the Recording state.
func (c *Controller) IsRecording() bool { return c.State() == Recording }

// QueueDepth returns the number of chunks waiting for the writer.
func (c *Controller) QueueDepth() int {
	if q := c.current.Load(); q != nil {
		return q.Len()
	}
	return 0
}

// Current returns a snapshot of the active session, or an Idle session.
func (c *Controller) Current() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Session{State: c.State()}
	}
	s := c.active.info
	s.State = c.State()
	return s
}

// Start begins a new session and returns its (not yet complete) file path.
func (c *Controller) Start() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st := c.State(); st != Idle {
		return "", fmt.Errorf("%w (state=%s)", ErrAlreadyRecording, st)
	}

	backend, err := capture.Select(c.opts.Backends)
	if err != nil {
		c.fail("select", err)
		return "", err
	}

	path, err := c.opts.Paths.Allocate()
	if err != nil {
		err = fmt.Errorf("%w: allocate path: %w", ErrInputWriteFailure, err)
		c.fail("allocate", err)
		return "", err
	}
	if c.stillDraining(path) {
		return "", fmt.Errorf("%w: previous recording %s is still being finalized", ErrAlreadyRecording, path)
	}

	log := c.log.With().Str("backend", backend.Name()).Str("path", path).Logger()
	writer, err := NewStreamWriter(path, c.opts.SampleRate, c.opts.Channels, c.opts.WriterPoll, log)
	if err != nil {
		c.fail("writer", err)
		return "", err
	}

	q := NewChunkQueue()
	stream, err := backend.Open(capture.Config{
		SampleRate:      c.opts.SampleRate,
		Channels:        c.opts.Channels,
		FramesPerBuffer: c.opts.FramesPerBuffer,
	}, func(chunk capture.Chunk) {
		q.Push(chunk)
		metrics.ChunksCapturedTotal.Inc()
	})
	if err != nil {
		// Nothing was started; remove the header-only file.
		writer.Stop()
		writer.Start(q)
		<-writer.Done()
		discard(path)
		c.fail("open", err)
		return "", err
	}

	writer.Start(q)
	c.active = &activeSession{
		info: Session{
			Path:       path,
			Backend:    backend.Name(),
			SampleRate: c.opts.SampleRate,
			Channels:   c.opts.Channels,
			StartedAt:  time.Now(),
		},
		stream: stream,
		writer: writer,
		queue:  q,
	}
	c.current.Store(q)
	c.state.Store(int32(Recording))

	metrics.RecordingsStartedTotal.WithLabelValues(backend.Name()).Inc()
	log.Info().Int("sample_rate", c.opts.SampleRate).Int("channels", c.opts.Channels).Msg("recording started")
	c.publish("recording.started", map[string]any{
		"audio_file": path,
		"backend":    backend.Name(),
	})
	return path, nil
}

// Stop halts capture, waits up to the stop timeout for the writer to drain,
// and returns the file path. The controller is Idle when Stop returns,
// whatever the outcome. A write failure is returned wrapped in
// ErrInputWriteFailure together with the (partial) path.
func (c *Controller) Stop() (StopResult, error) {
	c.mu.Lock()
	if st := c.State(); st != Recording {
		c.mu.Unlock()
		return StopResult{}, fmt.Errorf("%w (state=%s)", ErrNotRecording, st)
	}
	c.state.Store(int32(Stopping))
	sess := c.active
	c.mu.Unlock()

	log := c.log.With().Str("backend", sess.info.Backend).Str("path", sess.info.Path).Logger()

	// Producer first: once Stop returns no further chunks are pushed.
	if err := sess.stream.Stop(); err != nil {
		log.Warn().Err(err).Msg("capture stream stop reported an error")
	}
	sess.writer.Stop()

	res := StopResult{Path: sess.info.Path, Duration: time.Since(sess.info.StartedAt)}
	var err error
	timer := time.NewTimer(c.opts.StopTimeout)
	select {
	case <-sess.writer.Done():
		timer.Stop()
		res.Samples = sess.writer.Samples()
		err = sess.writer.Err()
	case <-timer.C:
		res.TimedOut = true
		metrics.WriterDrainTimeoutsTotal.Inc()
		log.Warn().
			Dur("timeout", c.opts.StopTimeout).
			Int("queued_chunks", sess.queue.Len()).
			Msg("writer did not finish draining in time; file may be incomplete")
	}

	c.mu.Lock()
	if res.TimedOut {
		c.draining[res.Path] = sess.writer
	}
	c.active = nil
	c.current.Store(nil)
	c.state.Store(int32(Idle))
	c.mu.Unlock()

	if err != nil {
		metrics.RecordingsFailedTotal.WithLabelValues("write").Inc()
		c.publish("recording.failed", map[string]any{
			"audio_file": res.Path,
			"error":      err.Error(),
		})
		return res, err
	}

	metrics.RecordingsStoppedTotal.Inc()
	log.Info().
		Dur("duration", res.Duration).
		Int64("samples", res.Samples).
		Bool("timed_out", res.TimedOut).
		Msg("recording stopped")
	c.publish("recording.stopped", map[string]any{
		"audio_file":  res.Path,
		"duration_ms": res.Duration.Milliseconds(),
		"samples":     res.Samples,
		"timed_out":   res.TimedOut,
	})
	return res, nil
}

// Shutdown stops an active session, if any. Used on process exit.
func (c *Controller) Shutdown() {
	if !c.IsRecording() {
		return
	}
	if _, err := c.Stop(); err != nil && !errors.Is(err, ErrNotRecording) {
		c.log.Warn().Err(err).Msg("stop on shutdown failed")
	}
}

// ActivePath returns the path of the session being written, or "".
func (c *Controller) ActivePath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ""
	}
	return c.active.info.Path
}

// stillDraining forgets finished abandoned writers and reports whether one
// is still writing path. Callers hold c.mu.
func (c *Controller) stillDraining(path string) bool {
	for p, w := range c.draining {
		select {
		case <-w.Done():
			delete(c.draining, p)
		default:
		}
	}
	_, ok := c.draining[path]
	return ok
}

func discard(path string) {
	_ = os.Remove(path)
}

func (c *Controller) fail(stage string, err error) {
	reason := stage
	switch {
	case errors.Is(err, capture.ErrNoBackendAvailable):
		reason = "no_backend"
	case errors.Is(err, capture.ErrBackendInit):
		reason = "backend_init"
	}
	metrics.RecordingsFailedTotal.WithLabelValues(reason).Inc()
	c.log.Error().Err(err).Str("stage", stage).Msg("recording start failed")
	c.publish("recording.failed", map[string]any{"error": err.Error()})
}

func (c *Controller) publish(eventType string, payload map[string]any) {
	if c.opts.PublishEvent != nil {
		c.opts.PublishEvent(eventType, payload)
	}
}
