package capture

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrOverflow is returned by a FrameReader when input overflowed. It is not
// fatal; the poll loop logs it and keeps reading.
var ErrOverflow = errors.New("input overflowed")

// FrameReader performs blocking reads of a fixed frame count.
type FrameReader interface {
	// ReadFrames blocks until one buffer of frames is available.
	ReadFrames() (Chunk, error)
	// Close releases the device.
	Close() error
}

// OpenReaderFunc opens a FrameReader for cfg.
type OpenReaderFunc func(cfg Config) (FrameReader, error)

// PollBackend adapts a FrameReader into a Backend by running the read loop
// on its own goroutine.
type PollBackend struct {
	name      string
	available func() bool
	open      OpenReaderFunc
	log       zerolog.Logger
}

// NewPollBackend creates a poll-driven backend. available may be nil, in
// which case the backend always reports itself available.
func NewPollBackend(name string, available func() bool, open OpenReaderFunc, log zerolog.Logger) *PollBackend {
	return &PollBackend{
		name:      name,
		available: available,
		open:      open,
		log:       log.With().Str("backend", name).Logger(),
	}
}

func (p *PollBackend) Name() string { return p.name }

func (p *PollBackend) Available() bool {
	if p.available == nil {
		return true
	}
	return p.available()
}

// Open opens the reader and starts the poll loop.
func (p *PollBackend) Open(cfg Config, sink Sink) (Stream, error) {
	r, err := p.open(cfg)
	if err != nil {
		return nil, InitError(p.name, err)
	}
	s := &pollStream{
		reader: r,
		sink:   sink,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		log:    p.log,
	}
	go s.loop()
	return s, nil
}

type pollStream struct {
	reader FrameReader
	sink   Sink
	log    zerolog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	closeErr error
}

func (s *pollStream) loop() {
	defer close(s.done)
	defer func() {
		s.closeErr = s.reader.Close()
	}()

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		chunk, err := s.reader.ReadFrames()
		if errors.Is(err, ErrOverflow) {
			s.log.Debug().Msg("input overflow, continuing")
		} else if err != nil {
			s.log.Error().Err(err).Msg("capture read failed, stopping poll loop")
			return
		}
		if len(chunk) > 0 {
			s.sink(chunk)
		}
	}
}

// Stop signals the loop and waits for it to exit and close the reader.
func (s *pollStream) Stop() error {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	return s.closeErr
}
