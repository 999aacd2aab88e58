// Package arecord captures audio by running ALSA's arecord and reading raw
// PCM from its stdout.
package arecord

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/whisper-dictation/internal/capture"
)

const Name = "arecord"

// Backend is a poll-driven backend reading from an arecord subprocess.
type Backend struct {
	*capture.PollBackend
}

// New creates an arecord backend. device may be empty for the ALSA default.
func New(bin, device string, log zerolog.Logger) *Backend {
	if bin == "" {
		bin = "arecord"
	}
	available := func() bool {
		_, err := exec.LookPath(bin)
		return err == nil
	}
	open := func(cfg capture.Config) (capture.FrameReader, error) {
		return start(bin, device, cfg)
	}
	return &Backend{PollBackend: capture.NewPollBackend(Name, available, open, log)}
}

// Args returns the arecord command line for cfg.
func Args(device string, cfg capture.Config) []string {
	args := []string{
		"-q",
		"-t", "raw",
		"-f", "S16_LE",
		"-r", strconv.Itoa(cfg.SampleRate),
		"-c", strconv.Itoa(cfg.Channels),
	}
	if device != "" {
		args = append(args, "-D", device)
	}
	return args
}

// startupTimeout bounds how long start waits for arecord's first buffer.
// A device that is busy or missing makes arecord exit well within it.
const startupTimeout = 2 * time.Second

func start(bin, device string, cfg capture.Config) (capture.FrameReader, error) {
	cmd := exec.Command(bin, Args(device, cfg)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}
	stop := func() error {
		// SIGINT lets arecord exit cleanly; fall back to kill.
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			_ = cmd.Process.Kill()
		}
		err := cmd.Wait()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Exit status after a signal is expected.
			return nil
		}
		return err
	}
	r := newReader(stdout, stop, cfg)
	if err := r.prime(startupTimeout); err != nil {
		_ = cmd.Process.Kill()
		waitErr := cmd.Wait()
		if msg := stderr.String(); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", bin, err, msg)
		}
		if waitErr != nil {
			return nil, fmt.Errorf("%s: %w (%v)", bin, err, waitErr)
		}
		return nil, fmt.Errorf("%s: %w", bin, err)
	}
	return r, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}

// reader decodes little-endian S16 frames from a byte stream.
type reader struct {
	src  io.Reader
	stop func() error
	buf  []byte
	once sync.Once
	err  error

	// pending holds the buffer read by prime, returned by the next ReadFrames.
	pending capture.Chunk
}

func newReader(src io.Reader, stop func() error, cfg capture.Config) *reader {
	return &reader{
		src:  src,
		stop: stop,
		buf:  make([]byte, cfg.FramesPerBuffer*cfg.Channels*2),
	}
}

// prime reads the first buffer so a recorder that dies on open is reported
// as an open failure instead of an empty recording. On timeout the read is
// left running; the caller must kill the source to release it.
func (r *reader) prime(timeout time.Duration) error {
	type result struct {
		chunk capture.Chunk
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := r.read()
		ch <- result{c, err}
	}()
	select {
	case res := <-ch:
		if res.err != nil {
			if errors.Is(res.err, io.EOF) {
				return errors.New("exited before producing audio")
			}
			return res.err
		}
		if len(res.chunk) == 0 {
			return errors.New("exited before producing audio")
		}
		r.pending = res.chunk
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("no audio within %s", timeout)
	}
}

func (r *reader) ReadFrames() (capture.Chunk, error) {
	if c := r.pending; c != nil {
		r.pending = nil
		return c, nil
	}
	return r.read()
}

func (r *reader) read() (capture.Chunk, error) {
	n, err := io.ReadFull(r.src, r.buf)
	if n == 0 && err != nil {
		return nil, err
	}
	// A short final read still carries whole samples.
	n -= n % 2
	chunk := make(capture.Chunk, n/2)
	for i := range chunk {
		chunk[i] = int16(binary.LittleEndian.Uint16(r.buf[2*i:]))
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	return chunk, err
}

func (r *reader) Close() error {
	r.once.Do(func() {
		if r.stop != nil {
			r.err = r.stop()
		}
	})
	return r.err
}
