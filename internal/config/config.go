package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Host string `env:"WHISPER_HOST" envDefault:"127.0.0.1"`
	Port int    `env:"WHISPER_PORT" envDefault:"8610"`

	// HTTPAddr, when set, replaces Host:Port.
	HTTPAddr       string        `env:"HTTP_ADDR"`
	ReadTimeout    time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout   time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"0s"`
	IdleTimeout    time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	AuthToken      string        `env:"AUTH_TOKEN"`
	CORSOrigins    []string      `env:"CORS_ORIGINS" envSeparator:","`
	RateLimitRPS   float64       `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int           `env:"RATE_LIMIT_BURST" envDefault:"40"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`

	// Capture
	TempDir            string        `env:"TEMP_DIR,expand" envDefault:"${HOME}/.whisper-dictation/temp"`
	SampleRate         int           `env:"SAMPLE_RATE" envDefault:"16000"`
	Channels           int           `env:"CHANNELS" envDefault:"1"`
	FramesPerBuffer    int           `env:"FRAMES_PER_BUFFER" envDefault:"1024"`
	CaptureBackends    []string      `env:"CAPTURE_BACKENDS" envSeparator:"," envDefault:"portaudio,portaudio-blocking,arecord"`
	ArecordPath        string        `env:"ARECORD_PATH" envDefault:"arecord"`
	ArecordDevice      string        `env:"ARECORD_DEVICE"`
	StopTimeout        time.Duration `env:"STOP_TIMEOUT" envDefault:"5s"`
	WriterPoll         time.Duration `env:"WRITER_POLL_INTERVAL" envDefault:"100ms"`
	RecordingFilename  string        `env:"RECORDING_FILENAME"`
	RecordingRetention time.Duration `env:"RECORDING_RETENTION" envDefault:"24h"`
	RecordingMaxFiles  int           `env:"RECORDING_MAX_FILES" envDefault:"50"`

	// Transcription
	STTProvider      string        `env:"STT_PROVIDER" envDefault:"whisper"`
	Model            string        `env:"WHISPER_MODEL" envDefault:"openai/whisper-base"`
	Language         string        `env:"WHISPER_LANG" envDefault:"auto"`
	OutputLanguage   string        `env:"WHISPER_OUTPUT_LANG" envDefault:"auto"`
	Device           string        `env:"WHISPER_DEVICE" envDefault:"cpu"`
	WhisperURL       string        `env:"WHISPER_URL" envDefault:"http://127.0.0.1:8000/v1/audio/transcriptions"`
	WhisperHealthURL string        `env:"WHISPER_HEALTH_URL"`
	WhisperTimeout   time.Duration `env:"WHISPER_TIMEOUT" envDefault:"120s"`
	MaxNewTokens     int           `env:"WHISPER_MAX_NEW_TOKENS" envDefault:"444"`
	ElevenLabsAPIKey string        `env:"ELEVENLABS_API_KEY"`
	ElevenLabsModel  string        `env:"ELEVENLABS_MODEL" envDefault:"scribe_v1"`
	ElevenLabsTerms  string        `env:"ELEVENLABS_KEYTERMS"`

	// Events
	EventReplaySize int    `env:"EVENT_REPLAY_SIZE" envDefault:"256"`
	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"whisper-dictation"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"whisper-dictation"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile  string
	HTTPAddr string
	LogLevel string
	TempDir  string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.TempDir != "" {
		cfg.TempDir = overrides.TempDir
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("SAMPLE_RATE must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("CHANNELS must be positive, got %d", c.Channels)
	}
	if c.FramesPerBuffer <= 0 {
		return fmt.Errorf("FRAMES_PER_BUFFER must be positive, got %d", c.FramesPerBuffer)
	}
	if c.TempDir == "" {
		return fmt.Errorf("TEMP_DIR must not be empty")
	}
	switch strings.ToLower(c.STTProvider) {
	case "whisper":
	case "elevenlabs":
		if c.ElevenLabsAPIKey == "" {
			return fmt.Errorf("STT_PROVIDER=elevenlabs requires ELEVENLABS_API_KEY")
		}
	default:
		return fmt.Errorf("unknown STT_PROVIDER %q", c.STTProvider)
	}
	return nil
}

// ListenAddr returns the address the HTTP server binds to.
func (c *Config) ListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}
