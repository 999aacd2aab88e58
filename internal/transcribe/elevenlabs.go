package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const elevenLabsSTTEndpoint = "https://api.elevenlabs.io/v1/speech-to-text"

// ElevenLabsClient is the hosted provider. Dictation only needs the text,
// so word timestamps are not requested.
type ElevenLabsClient struct {
	endpoint string
	apiKey   string
	model    string
	keyterms string // JSON array sent as-is, "" when none
	client   *http.Client
}

type elevenLabsReply struct {
	Text         string `json:"text"`
	LanguageCode string `json:"language_code"`
}

// NewElevenLabsClient creates a client. keyterms is a comma-separated list of
// words the model should favour, such as names the user dictates often.
func NewElevenLabsClient(apiKey, model, keyterms string, timeout time.Duration) *ElevenLabsClient {
	return &ElevenLabsClient{
		endpoint: elevenLabsSTTEndpoint,
		apiKey:   apiKey,
		model:    model,
		keyterms: keytermsJSON(keyterms),
		client:   &http.Client{Timeout: timeout},
	}
}

func (el *ElevenLabsClient) Name() string  { return "elevenlabs" }
func (el *ElevenLabsClient) Model() string { return el.model }

// Transcribe uploads the recording. language_code is left out for
// auto-detection; Task and MaxNewTokens have no ElevenLabs equivalent.
func (el *ElevenLabsClient) Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error) {
	fields := []formField{
		{"model_id", el.model},
		{"language_code", opts.Language},
		{"timestamps_granularity", "none"},
		{"keyterms", el.keyterms},
	}
	header := http.Header{"Xi-Api-Key": []string{el.apiKey}}

	var reply elevenLabsReply
	if err := postAudio(ctx, el.client, el.endpoint, header, audioPath, fields, &reply); err != nil {
		return nil, fmt.Errorf("elevenlabs: %w", err)
	}
	return &Response{Text: reply.Text, Language: reply.LanguageCode}, nil
}

// keytermsJSON turns "a, b" into [{"text":"a"},{"text":"b"}].
func keytermsJSON(csv string) string {
	type term struct {
		Text string `json:"text"`
	}
	var terms []term
	for _, t := range strings.Split(csv, ",") {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, term{Text: t})
		}
	}
	if len(terms) == 0 {
		return ""
	}
	b, _ := json.Marshal(terms)
	return string(b)
}
