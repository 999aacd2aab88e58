package api

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/whisper-dictation/internal/audio"
	"github.com/snarg/whisper-dictation/internal/transcribe"
)

const maxUploadBytes = 64 << 20

// Transcriber runs speech-to-text on a file.
type Transcriber interface {
	Transcribe(ctx context.Context, req transcribe.Request) (*transcribe.Result, error)
}

// UploadStore persists uploaded audio to a temporary file.
type UploadStore interface {
	SaveUpload(data []byte, ext string) (string, error)
	Dir() string
}

type TranscribeHandler struct {
	transcriber Transcriber
	store       UploadStore
	log         zerolog.Logger
}

func NewTranscribeHandler(t Transcriber, store UploadStore, log zerolog.Logger) *TranscribeHandler {
	return &TranscribeHandler{
		transcriber: t,
		store:       store,
		log:         log.With().Str("handler", "transcribe").Logger(),
	}
}

type transcribeResponse struct {
	AudioFile string `json:"audio_file"`
	*transcribe.Result
}

// Transcribe handles POST /transcribe. The body is JSON or a form with
// audio_file, language and output_language. Relative paths resolve against
// the temp directory.
func (h *TranscribeHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	var req transcribe.Request
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := DecodeJSON(r, &req); err != nil {
			WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid JSON body: "+err.Error())
			return
		}
	} else {
		if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid form: "+err.Error())
			return
		}
		req.AudioPath = r.FormValue("audio_file")
		req.Language = r.FormValue("language")
		req.OutputLanguage = r.FormValue("output_language")
	}

	if strings.TrimSpace(req.AudioPath) == "" {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "audio_file is required")
		return
	}
	if resolved := audio.ResolveFile(h.store.Dir(), req.AudioPath); resolved != "" {
		req.AudioPath = resolved
	}

	h.run(w, r, req)
}

// Upload handles POST /transcribe/upload. The body is the raw audio; the
// language and output_language query parameters carry the preferences. The
// uploaded file is removed once transcription finishes.
func (h *TranscribeHandler) Upload(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteErrorWithCode(w, http.StatusRequestEntityTooLarge, ErrInvalidBody, "upload too large")
			return
		}
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "failed to read body")
		return
	}
	if len(data) == 0 {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "empty audio body")
		return
	}

	path, err := h.store.SaveUpload(data, uploadExt(r))
	if err != nil {
		h.log.Error().Err(err).Msg("save upload failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrWriteFailure, "failed to store upload")
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			h.log.Warn().Err(err).Str("audio_file", path).Msg("remove upload failed")
		}
	}()

	lang, _ := QueryString(r, "language")
	outLang, _ := QueryString(r, "output_language")
	h.run(w, r, transcribe.Request{AudioPath: path, Language: lang, OutputLanguage: outLang})
}

func (h *TranscribeHandler) run(w http.ResponseWriter, r *http.Request, req transcribe.Request) {
	res, err := h.transcriber.Transcribe(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	WriteJSON(w, http.StatusOK, transcribeResponse{AudioFile: req.AudioPath, Result: res})
}

// uploadExt picks the temp file extension from ?ext= or the Content-Type.
func uploadExt(r *http.Request) string {
	if ext, ok := QueryString(r, "ext"); ok {
		return "." + strings.TrimPrefix(strings.ToLower(ext), ".")
	}
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "audio/webm":
		return ".webm"
	case "audio/ogg":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	case "audio/flac", "audio/x-flac":
		return ".flac"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	}
	return ".wav"
}

// Routes registers transcription routes on the given router.
func (h *TranscribeHandler) Routes(r chi.Router) {
	r.Post("/transcribe", h.Transcribe)
	r.Post("/transcribe/upload", h.Upload)
}
