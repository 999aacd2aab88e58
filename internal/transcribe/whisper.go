package transcribe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// WhisperClient calls an OpenAI-compatible /v1/audio/transcriptions endpoint.
type WhisperClient struct {
	url     string
	model   string
	device  string
	timeout time.Duration
	client  *http.Client
}

// whisperResponse is the parsed response from the Whisper API (verbose_json format).
type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// NewWhisperClient creates a new Whisper HTTP client.
func NewWhisperClient(url, model, device string, timeout time.Duration) *WhisperClient {
	return &WhisperClient{
		url:     url,
		model:   model,
		device:  device,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (wc *WhisperClient) Name() string { return "whisper" }

// Model returns the configured model identifier.
func (wc *WhisperClient) Model() string { return wc.model }

// Transcribe posts the file to the OpenAI-compatible endpoint. Language is
// omitted when empty so the server detects it.
func (wc *WhisperClient) Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error) {
	task := opts.Task
	if task == "" {
		task = "transcribe"
	}
	fields := []formField{
		{"model", wc.model},
		{"device", wc.device},
		{"language", opts.Language},
		{"task", task},
		{"temperature", fmt.Sprintf("%.2f", opts.Temperature)},
		{"response_format", "verbose_json"},
		{"prompt", opts.Prompt},
	}
	if opts.MaxNewTokens > 0 {
		fields = append(fields, formField{"max_new_tokens", strconv.Itoa(opts.MaxNewTokens)})
	}

	var result whisperResponse
	if err := postAudio(ctx, wc.client, wc.url, nil, audioPath, fields, &result); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	return &Response{
		Text:     result.Text,
		Language: result.Language,
		Duration: result.Duration,
	}, nil
}

// Ping checks a health URL of the Whisper server. Any 2xx counts as ready.
func (wc *WhisperClient) Ping(ctx context.Context, healthURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := wc.client.Do(req)
	if err != nil {
		return fmt.Errorf("whisper health: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("whisper health: status %d", resp.StatusCode)
	}
	return nil
}
