package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/snarg/whisper-dictation/internal/capture"
	"github.com/snarg/whisper-dictation/internal/recorder"
	"github.com/snarg/whisper-dictation/internal/transcribe"
)

// Machine-readable error codes returned in ErrorResponse.Code.
const (
	ErrBadRequest       = "bad_request"
	ErrInvalidBody      = "invalid_body"
	ErrAlreadyRecording = "already_recording"
	ErrNotRecording     = "not_recording"
	ErrNoBackend        = "no_backend_available"
	ErrBackendInit      = "backend_init_failed"
	ErrWriteFailure     = "write_failed"
	ErrFileNotFound     = "file_not_found"
	ErrCollaborator     = "transcription_failed"
	ErrRateLimited      = "rate_limited"
	ErrInternal         = "internal"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Detail    string `json:"detail,omitempty"`
	AudioFile string `json:"audio_file,omitempty"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// WriteErrorWithCode writes a JSON error response with a machine-readable code.
func WriteErrorWithCode(w http.ResponseWriter, status int, code, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// WriteErrorDetail writes a JSON error response with detail.
func WriteErrorDetail(w http.ResponseWriter, status int, msg, detail string) {
	WriteJSON(w, status, ErrorResponse{Error: msg, Detail: detail})
}

// statusForError maps the recorder and transcription error taxonomy to an
// HTTP status and error code.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, recorder.ErrAlreadyRecording):
		return http.StatusConflict, ErrAlreadyRecording
	case errors.Is(err, recorder.ErrNotRecording):
		return http.StatusConflict, ErrNotRecording
	case errors.Is(err, capture.ErrNoBackendAvailable):
		return http.StatusServiceUnavailable, ErrNoBackend
	case errors.Is(err, capture.ErrBackendInit):
		return http.StatusServiceUnavailable, ErrBackendInit
	case errors.Is(err, recorder.ErrInputWriteFailure):
		return http.StatusInternalServerError, ErrWriteFailure
	case errors.Is(err, transcribe.ErrFileNotFound):
		return http.StatusNotFound, ErrFileNotFound
	case errors.Is(err, transcribe.ErrCollaborator):
		return http.StatusBadGateway, ErrCollaborator
	}
	return http.StatusInternalServerError, ErrInternal
}

// writeDomainError writes err with the mapped status. audioFile, when set,
// is echoed so clients can still locate a partial recording.
func writeDomainError(w http.ResponseWriter, err error, audioFile string) {
	status, code := statusForError(err)
	WriteJSON(w, status, ErrorResponse{Error: err.Error(), Code: code, AudioFile: audioFile})
}

// QueryString extracts a non-empty string query parameter.
func QueryString(r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return "", false
	}
	return v, true
}

// QueryStringList extracts a comma-separated list of strings from a query param.
func QueryStringList(r *http.Request, name string) []string {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// DecodeJSON reads and decodes a JSON request body into v.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	return json.NewDecoder(r.Body).Decode(v)
}
