package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"github.com/snarg/whisper-dictation/internal/audio"
	"github.com/snarg/whisper-dictation/internal/recorder"
)

// SessionController is the recording lifecycle the API drives.
type SessionController interface {
	Start() (string, error)
	Stop() (recorder.StopResult, error)
	Current() recorder.Session
	IsRecording() bool
}

type RecordHandler struct {
	session SessionController
}

func NewRecordHandler(session SessionController) *RecordHandler {
	return &RecordHandler{session: session}
}

type startResponse struct {
	Status    string `json:"status"`
	AudioFile string `json:"audio_file"`
	Backend   string `json:"backend,omitempty"`
}

type stopResponse struct {
	Status     string      `json:"status"`
	AudioFile  string      `json:"audio_file"`
	DurationMs int64       `json:"duration_ms"`
	Samples    int64       `json:"samples"`
	TimedOut   bool        `json:"timed_out"`
	Format     *audio.Info `json:"format,omitempty"`
}

type statusResponse struct {
	IsRecording bool `json:"is_recording"`
	recorder.Session
	ElapsedMs int64 `json:"elapsed_ms,omitempty"`
}

// Start handles POST /record/start.
func (h *RecordHandler) Start(w http.ResponseWriter, r *http.Request) {
	path, err := h.session.Start()
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("start recording failed")
		writeDomainError(w, err, "")
		return
	}
	WriteJSON(w, http.StatusOK, startResponse{
		Status:    "recording",
		AudioFile: path,
		Backend:   h.session.Current().Backend,
	})
}

// Stop handles POST /record/stop. The file is complete when this returns,
// unless timed_out is set.
func (h *RecordHandler) Stop(w http.ResponseWriter, r *http.Request) {
	res, err := h.session.Stop()
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("audio_file", res.Path).Msg("stop recording failed")
		writeDomainError(w, err, res.Path)
		return
	}
	resp := stopResponse{
		Status:     "stopped",
		AudioFile:  res.Path,
		DurationMs: res.Duration.Milliseconds(),
		Samples:    res.Samples,
		TimedOut:   res.TimedOut,
	}
	if !res.TimedOut {
		if info, err := audio.ReadInfo(res.Path); err == nil {
			resp.Format = &info
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Status handles GET /record/status. It never blocks on a transition.
func (h *RecordHandler) Status(w http.ResponseWriter, r *http.Request) {
	s := h.session.Current()
	resp := statusResponse{IsRecording: h.session.IsRecording(), Session: s}
	if resp.IsRecording && !s.StartedAt.IsZero() {
		resp.ElapsedMs = time.Since(s.StartedAt).Milliseconds()
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Routes registers recording routes on the given router.
func (h *RecordHandler) Routes(r chi.Router) {
	r.Post("/record/start", h.Start)
	r.Post("/record/stop", h.Stop)
	r.Get("/record/status", h.Status)
}
