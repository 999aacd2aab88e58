package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/whisper-dictation/internal/metrics"
)

var (
	ErrFileNotFound = errors.New("audio file not found")
	// ErrCollaborator wraps failures to load or call the speech-to-text provider.
	ErrCollaborator = errors.New("transcription backend failed")
)

// LoadFunc constructs the provider. It is called lazily on first use.
type LoadFunc func(ctx context.Context) (Provider, error)

// EventPublishFunc is a callback for publishing lifecycle events.
type EventPublishFunc func(eventType string, payload map[string]any)

// Options configures an Orchestrator.
type Options struct {
	Load LoadFunc
	// Defaults applied when a request leaves the preference empty.
	Language       string
	OutputLanguage string
	MaxNewTokens   int
	PublishEvent   EventPublishFunc
	Log            zerolog.Logger
}

// Request is a single transcription request.
type Request struct {
	AudioPath      string `json:"audio_file"`
	Language       string `json:"language,omitempty"`
	OutputLanguage string `json:"output_language,omitempty"`
}

// Result is returned to API clients.
type Result struct {
	Text string `json:"text"`
	// Language is the preference that was sent to the provider, or "auto".
	Language         string  `json:"language"`
	DetectedLanguage string  `json:"detected_language,omitempty"`
	Duration         float64 `json:"duration,omitempty"`
	Provider         string  `json:"provider"`
	Model            string  `json:"model"`
}

// Orchestrator normalizes language preferences and delegates to a lazily
// loaded provider. Safe for concurrent use.
type Orchestrator struct {
	opts Options
	log  zerolog.Logger

	mu       sync.Mutex // serializes provider initialization
	provider atomic.Pointer[loaded]
}

type loaded struct{ Provider }

// NewOrchestrator creates an orchestrator. The provider is not loaded until
// the first Transcribe or Warm call.
func NewOrchestrator(opts Options) *Orchestrator {
	return &Orchestrator{opts: opts, log: opts.Log}
}

// Ready reports whether the provider has been loaded. It does not wait
// for a load in progress.
func (o *Orchestrator) Ready() bool {
	return o.provider.Load() != nil
}

// Warm loads the provider ahead of the first request.
func (o *Orchestrator) Warm(ctx context.Context) error {
	_, err := o.load(ctx)
	return err
}

// load returns the provider, initializing it on first use. Concurrent
// callers wait on the mutex and reuse the result. A failed load is not
// remembered, so the next call tries again.
func (o *Orchestrator) load(ctx context.Context) (Provider, error) {
	if l := o.provider.Load(); l != nil {
		return l.Provider, nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if l := o.provider.Load(); l != nil {
		return l.Provider, nil
	}
	if o.opts.Load == nil {
		return nil, fmt.Errorf("%w: no provider configured", ErrCollaborator)
	}
	start := time.Now()
	p, err := o.opts.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load provider: %w", ErrCollaborator, err)
	}
	o.provider.Store(&loaded{p})
	o.log.Info().
		Str("provider", p.Name()).
		Str("model", p.Model()).
		Dur("took", time.Since(start)).
		Msg("transcription provider loaded")
	return p, nil
}

// Transcribe runs the provider on an existing audio file. The output
// language preference wins over the input language when both are set.
func (o *Orchestrator) Transcribe(ctx context.Context, req Request) (*Result, error) {
	fi, err := os.Stat(req.AudioPath)
	if err != nil || !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, req.AudioPath)
	}

	lang := req.Language
	if lang == "" {
		lang = o.opts.Language
	}
	outLang := req.OutputLanguage
	if outLang == "" {
		outLang = o.opts.OutputLanguage
	}
	used := SanitizeLanguage(lang)
	if out := SanitizeLanguage(outLang); out != "" {
		used = out
	}

	log := o.log.With().Str("audio_file", req.AudioPath).Str("language", used).Logger()

	p, err := o.load(ctx)
	if err != nil {
		o.fail(log, req, "unavailable", err)
		return nil, err
	}

	start := time.Now()
	resp, err := p.Transcribe(ctx, req.AudioPath, TranscribeOpts{
		Language:     used,
		Task:         "transcribe",
		MaxNewTokens: o.opts.MaxNewTokens,
	})
	elapsed := time.Since(start)
	metrics.TranscriptionDuration.WithLabelValues(p.Name()).Observe(elapsed.Seconds())
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrCollaborator, p.Name(), err)
		o.fail(log, req, p.Name(), err)
		return nil, err
	}

	resolved := used
	if resolved == "" {
		resolved = "auto"
	}
	res := &Result{
		Text:             strings.TrimSpace(resp.Text),
		Language:         resolved,
		DetectedLanguage: resp.Language,
		Duration:         resp.Duration,
		Provider:         p.Name(),
		Model:            p.Model(),
	}

	metrics.TranscriptionsTotal.WithLabelValues(p.Name(), "ok").Inc()
	log.Info().
		Dur("took", elapsed).
		Int("text_len", len(res.Text)).
		Str("detected_language", resp.Language).
		Msg("transcription complete")
	o.publish("transcription.completed", map[string]any{
		"audio_file": req.AudioPath,
		"text":       res.Text,
		"language":   res.Language,
		"provider":   res.Provider,
		"took_ms":    elapsed.Milliseconds(),
	})
	return res, nil
}

func (o *Orchestrator) fail(log zerolog.Logger, req Request, provider string, err error) {
	metrics.TranscriptionsTotal.WithLabelValues(provider, "error").Inc()
	log.Warn().Err(err).Msg("transcription failed")
	o.publish("transcription.failed", map[string]any{
		"audio_file": req.AudioPath,
		"error":      err.Error(),
	})
}

func (o *Orchestrator) publish(eventType string, payload map[string]any) {
	if o.opts.PublishEvent != nil {
		o.opts.PublishEvent(eventType, payload)
	}
}
