package recorder

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
	"github.com/snarg/whisper-dictation/internal/capture"
	"github.com/snarg/whisper-dictation/internal/metrics"
)

const (
	bitDepth  = 16
	pcmFormat = 1
)

// StreamWriter drains a ChunkQueue into a 16-bit PCM WAV file.
type StreamWriter struct {
	path   string
	file   *os.File
	enc    *wav.Encoder
	format *audio.Format
	poll   time.Duration
	log    zerolog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error

	samples int64
}

// NewStreamWriter creates the file and writes the WAV header, so even a
// recording that receives no audio is a valid container.
func NewStreamWriter(path string, sampleRate, channels int, poll time.Duration, log zerolog.Logger) (*StreamWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrInputWriteFailure, path, err)
	}
	w := &StreamWriter{
		path:   path,
		file:   f,
		enc:    wav.NewEncoder(f, sampleRate, bitDepth, channels, pcmFormat),
		format: &audio.Format{SampleRate: sampleRate, NumChannels: channels},
		poll:   poll,
		log:    log,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if err := w.write(nil); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: write header: %w", ErrInputWriteFailure, err)
	}
	return w, nil
}

// Path returns the file being written.
func (w *StreamWriter) Path() string { return w.path }

// Start runs the drain loop on its own goroutine.
func (w *StreamWriter) Start(q *ChunkQueue) {
	go w.run(q)
}

// Stop asks the loop to exit once the queue is empty. It does not wait.
func (w *StreamWriter) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// Done is closed after the file has been finalized.
func (w *StreamWriter) Done() <-chan struct{} { return w.done }

// Err returns the loop's terminal error. Only valid after Done is closed.
func (w *StreamWriter) Err() error { return w.err }

// Samples returns the number of samples written. Only valid after Done is closed.
func (w *StreamWriter) Samples() int64 { return w.samples }

func (w *StreamWriter) run(q *ChunkQueue) {
	defer close(w.done)

	var loopErr error
	for {
		chunk, ok := q.Pop(w.poll)
		if ok {
			if err := w.write(chunk); err != nil {
				loopErr = err
				break
			}
			continue
		}
		if w.stopped() && q.Len() == 0 {
			break
		}
	}

	closeErr := w.close()
	if err := errors.Join(loopErr, closeErr); err != nil {
		w.err = fmt.Errorf("%w: %s: %w", ErrInputWriteFailure, w.path, err)
		w.log.Error().Err(err).Str("path", w.path).Msg("writer stopped with partial file")
		return
	}
	w.log.Debug().Str("path", w.path).Int64("samples", w.samples).Msg("writer drained and closed")
}

func (w *StreamWriter) stopped() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

func (w *StreamWriter) write(chunk capture.Chunk) error {
	data := make([]int, len(chunk))
	for i, s := range chunk {
		data[i] = int(s)
	}
	buf := &audio.IntBuffer{Format: w.format, Data: data, SourceBitDepth: bitDepth}
	if err := w.enc.Write(buf); err != nil {
		return err
	}
	w.samples += int64(len(chunk))
	metrics.SamplesWrittenTotal.Add(float64(len(chunk)))
	return nil
}

// close finalizes the header sizes and releases the file handle.
func (w *StreamWriter) close() error {
	encErr := w.enc.Close()
	fileErr := w.file.Close()
	return errors.Join(encErr, fileErr)
}
