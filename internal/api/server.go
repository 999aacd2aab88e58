package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/whisper-dictation/internal/config"
	"github.com/snarg/whisper-dictation/internal/metrics"
)

// TranscriptionService is the orchestrator as seen by the API.
type TranscriptionService interface {
	Transcriber
	ReadyChecker
}

// Deps are the components the HTTP surface is built on. MQTT may be nil.
type Deps struct {
	Session     SessionController
	Transcriber TranscriptionService
	Store       UploadStore
	Events      EventSource
	MQTT        ConnChecker
	Backends    []string
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(cfg *config.Config, deps Deps, version string, startTime time.Time, log zerolog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:         cfg.ListenAddr(),
			Handler:      NewRouter(cfg, deps, version, startTime, log),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

// NewRouter builds the full route tree. Split out so tests can drive it
// with httptest.
func NewRouter(cfg *config.Config, deps Deps, version string, startTime time.Time, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(CORSWithOrigins(cfg.CORSOrigins))
	r.Use(metrics.InstrumentHandler)

	// Health and metrics: no auth
	health := NewHealthHandler(deps.Session, deps.Transcriber, deps.MQTT, deps.Backends, version, startTime)
	r.Get("/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))
		r.Use(RateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))

		NewRecordHandler(deps.Session).Routes(r)
		NewTranscribeHandler(deps.Transcriber, deps.Store, log).Routes(r)
		NewEventsHandler(deps.Events).Routes(r)
	})

	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
