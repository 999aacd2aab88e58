package transcribe

import "context"

// Provider is the interface for speech-to-text backends.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error)
	Name() string  // "whisper", "elevenlabs"
	Model() string // model identifier for logs and results
}

// TranscribeOpts are per-request decoding options.
// Zero-value fields are omitted from the request.
type TranscribeOpts struct {
	Language     string // "" = let the model detect it
	Task         string // "transcribe" or "translate"
	MaxNewTokens int    // 0 = omit/unlimited
	Temperature  float64
	Prompt       string
}

// Response is the common transcription result from any provider.
type Response struct {
	Text     string
	Language string  // language reported by the provider, if any
	Duration float64 // audio duration in seconds
}
