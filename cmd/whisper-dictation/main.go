package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/snarg/whisper-dictation/internal/api"
	"github.com/snarg/whisper-dictation/internal/capture"
	"github.com/snarg/whisper-dictation/internal/capture/arecord"
	"github.com/snarg/whisper-dictation/internal/capture/portaudio"
	"github.com/snarg/whisper-dictation/internal/config"
	"github.com/snarg/whisper-dictation/internal/events"
	"github.com/snarg/whisper-dictation/internal/metrics"
	"github.com/snarg/whisper-dictation/internal/mqttclient"
	"github.com/snarg/whisper-dictation/internal/recorder"
	"github.com/snarg/whisper-dictation/internal/storage"
	"github.com/snarg/whisper-dictation/internal/transcribe"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	showVersion := flag.Bool("version", false, "print version and exit")
	warm := flag.Bool("warm", false, "load the transcription provider at startup")
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides WHISPER_HOST/WHISPER_PORT)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flag.StringVar(&overrides.TempDir, "temp-dir", "", "directory for recordings")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Str("temp_dir", cfg.TempDir).Msg("whisper-dictation starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Events
	bus := events.NewBus(cfg.EventReplaySize)

	// MQTT (optional)
	var mqttConn api.ConnChecker
	if cfg.MQTTBrokerURL != "" {
		mqttLog := log.With().Str("component", "mqtt").Logger()
		mc, err := mqttclient.Connect(mqttclient.Options{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			Log:         mqttLog,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer mc.Close()
		mc.Forward(bus)
		mqttConn = mc
	}

	// Recording storage
	store, err := storage.New(cfg.TempDir, cfg.RecordingFilename)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare temp dir")
	}

	// Capture backends in preference order
	captureLog := log.With().Str("component", "capture").Logger()
	registry := capture.Registry{
		portaudio.CallbackName: portaudio.NewCallbackBackend(captureLog),
		portaudio.BlockingName: portaudio.NewBlockingBackend(captureLog),
		arecord.Name:           arecord.New(cfg.ArecordPath, cfg.ArecordDevice, captureLog),
	}
	backends, unknown := registry.Ordered(cfg.CaptureBackends)
	if len(unknown) > 0 {
		log.Warn().Strs("unknown", unknown).Msg("ignoring unknown capture backends")
	}
	var availableNames []string
	for _, b := range backends {
		if b.Available() {
			availableNames = append(availableNames, b.Name())
		}
	}
	if len(availableNames) == 0 {
		log.Warn().Strs("configured", cfg.CaptureBackends).Msg("no capture backend available; recording will fail until one is")
	} else {
		log.Info().Strs("available", availableNames).Msg("capture backends detected")
	}

	// Session controller
	session := recorder.NewController(recorder.Options{
		Backends:        backends,
		SampleRate:      cfg.SampleRate,
		Channels:        cfg.Channels,
		FramesPerBuffer: cfg.FramesPerBuffer,
		Paths:           store,
		StopTimeout:     cfg.StopTimeout,
		WriterPoll:      cfg.WriterPoll,
		PublishEvent:    bus.Publish,
		Log:             log.With().Str("component", "recorder").Logger(),
	})

	// Transcription
	transcribeLog := log.With().Str("component", "transcribe").Logger()
	orch := transcribe.NewOrchestrator(transcribe.Options{
		Load:           transcribe.NewLoader(cfg, transcribeLog),
		Language:       cfg.Language,
		OutputLanguage: cfg.OutputLanguage,
		MaxNewTokens:   cfg.MaxNewTokens,
		PublishEvent:   bus.Publish,
		Log:            transcribeLog,
	})
	if *warm {
		go func() {
			if err := orch.Warm(ctx); err != nil {
				transcribeLog.Warn().Err(err).Msg("provider warm-up failed; will retry on first request")
			}
		}()
	}

	// Live gauges
	prometheus.MustRegister(metrics.NewCollector(session, bus))

	// Temp dir pruner
	pruner := storage.NewPruner(cfg.TempDir, cfg.RecordingRetention, cfg.RecordingMaxFiles, session.ActivePath, log)
	pruner.Start()
	defer pruner.Stop()

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, api.Deps{
		Session:     session,
		Transcriber: orch,
		Store:       store,
		Events:      bus,
		MQTT:        mqttConn,
		Backends:    availableNames,
	}, version, startTime, httpLog)

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	// Finalize an in-progress recording so the file is playable.
	session.Shutdown()

	log.Info().Msg("whisper-dictation stopped")
}
