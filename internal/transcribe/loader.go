package transcribe

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/snarg/whisper-dictation/internal/config"
)

// NewLoader returns a LoadFunc that builds the provider selected by
// STT_PROVIDER. For Whisper it probes WHISPER_HEALTH_URL when set, so a
// server that is not up yet fails the load instead of the first request.
func NewLoader(cfg *config.Config, log zerolog.Logger) LoadFunc {
	return func(ctx context.Context) (Provider, error) {
		switch strings.ToLower(cfg.STTProvider) {
		case "", "whisper":
			wc := NewWhisperClient(cfg.WhisperURL, cfg.Model, cfg.Device, cfg.WhisperTimeout)
			if cfg.WhisperHealthURL != "" {
				if err := wc.Ping(ctx, cfg.WhisperHealthURL); err != nil {
					return nil, err
				}
			}
			log.Debug().Str("url", cfg.WhisperURL).Str("model", cfg.Model).Str("device", cfg.Device).Msg("whisper provider configured")
			return wc, nil
		case "elevenlabs":
			if cfg.ElevenLabsAPIKey == "" {
				return nil, fmt.Errorf("elevenlabs: ELEVENLABS_API_KEY not set")
			}
			return NewElevenLabsClient(cfg.ElevenLabsAPIKey, cfg.ElevenLabsModel, cfg.ElevenLabsTerms, cfg.WhisperTimeout), nil
		default:
			return nil, fmt.Errorf("unknown STT_PROVIDER %q", cfg.STTProvider)
		}
	}
}
