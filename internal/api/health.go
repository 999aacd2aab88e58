package api

import (
	"encoding/json"
	"net/http"
	"time"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	IsRecording   bool              `json:"is_recording"`
	Checks        map[string]string `json:"checks"`
}

// RecordingState reports whether a session is active.
type RecordingState interface {
	IsRecording() bool
}

// ReadyChecker reports whether the transcription provider is loaded.
type ReadyChecker interface {
	Ready() bool
}

// ConnChecker reports broker connectivity.
type ConnChecker interface {
	IsConnected() bool
}

type HealthHandler struct {
	recording   RecordingState
	transcriber ReadyChecker
	mqtt        ConnChecker
	backends    []string
	version     string
	startTime   time.Time
}

// NewHealthHandler creates the health handler. mqtt may be nil when no
// broker is configured.
func NewHealthHandler(recording RecordingState, transcriber ReadyChecker, mqtt ConnChecker, backends []string, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		recording:   recording,
		transcriber: transcriber,
		mqtt:        mqtt,
		backends:    backends,
		version:     version,
		startTime:   startTime,
	}
}

// ServeHTTP handles GET /health. The service is "ok" as long as it can
// serve requests; a lazily loaded provider or a lost broker only degrade it.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "ok"

	// Capture check
	if len(h.backends) == 0 {
		checks["capture"] = "no_backend_available"
		status = "degraded"
	} else {
		checks["capture"] = "ok"
	}

	// Transcription check
	if h.transcriber != nil && h.transcriber.Ready() {
		checks["transcription"] = "loaded"
	} else {
		checks["transcription"] = "not_loaded"
	}

	// MQTT check
	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			status = "degraded"
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		IsRecording:   h.recording != nil && h.recording.IsRecording(),
		Checks:        checks,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
