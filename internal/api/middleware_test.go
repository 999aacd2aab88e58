package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// reached records that the wrapped handler ran.
type reached struct{ n int }

func (h *reached) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.n++
	w.WriteHeader(http.StatusOK)
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	rec := httptest.NewRecorder()
	RequestID(&reached{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/record/start", nil))
	if id := rec.Header().Get("X-Request-ID"); len(id) != 16 {
		t.Errorf("generated id = %q, want 16 hex chars", id)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/record/stop", nil)
	req.Header.Set("X-Request-ID", "hotkey-42")
	RequestID(&reached{}).ServeHTTP(rec, req)
	if id := rec.Header().Get("X-Request-ID"); id != "hotkey-42" {
		t.Errorf("echoed id = %q, want hotkey-42", id)
	}
}

func TestCORSWithOrigins(t *testing.T) {
	const desktop = "tauri://localhost"

	tests := []struct {
		name       string
		origins    []string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
		wantNext   bool
	}{
		{"open_policy_get", nil, http.MethodGet, "http://anything", http.StatusOK, "*", true},
		{"listed_origin_get", []string{desktop}, http.MethodGet, desktop, http.StatusOK, desktop, true},
		{"listed_origin_preflight", []string{desktop}, http.MethodOptions, desktop, http.StatusNoContent, desktop, false},
		{"unlisted_origin_preflight", []string{desktop}, http.MethodOptions, "http://evil.test", http.StatusForbidden, "", false},
		{"unlisted_origin_get_passes_without_header", []string{desktop}, http.MethodGet, "http://evil.test", http.StatusOK, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &reached{}
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, "/record/status", nil)
			req.Header.Set("Origin", tt.origin)
			CORSWithOrigins(tt.origins)(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
			if (next.n == 1) != tt.wantNext {
				t.Errorf("handler reached %d times, wantNext=%v", next.n, tt.wantNext)
			}
		})
	}
}

func TestCORSAllowsLastEventID(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/events", nil)
	CORSWithOrigins(nil)(&reached{}).ServeHTTP(rec, req)
	if h := rec.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(h, "Last-Event-ID") {
		t.Errorf("Allow-Headers = %q, want Last-Event-ID for SSE resume", h)
	}
}

func fromIP(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/transcribe", nil)
	req.RemoteAddr = ip + ":50000"
	return req
}

func TestRateLimiterRejectsWithEnvelope(t *testing.T) {
	mw := RateLimiter(0.5, 1)(&reached{})

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, fromIP("10.0.0.7"))
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, fromIP("10.0.0.7"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if ra := rec.Header().Get("Retry-After"); ra != "1" {
		t.Errorf("Retry-After = %q, want 1", ra)
	}
	var body ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != ErrRateLimited {
		t.Errorf("code = %q, want %q", body.Code, ErrRateLimited)
	}

	// Another client has its own bucket.
	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, fromIP("10.0.0.8"))
	if rec.Code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", rec.Code)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	for _, rps := range []float64{0, -1} {
		next := &reached{}
		mw := RateLimiter(rps, 1)(next)
		for i := 0; i < 50; i++ {
			rec := httptest.NewRecorder()
			mw.ServeHTTP(rec, fromIP("10.0.0.9"))
			if rec.Code != http.StatusOK {
				t.Fatalf("rps=%v request %d status = %d, want 200", rps, i, rec.Code)
			}
		}
		if next.n != 50 {
			t.Errorf("rps=%v handler reached %d times, want 50", rps, next.n)
		}
	}
}

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		header     string
		target     string
		wantStatus int
	}{
		{"no_token_configured", "", "", "/record/start", http.StatusOK},
		{"header_token", "s3cret", "Bearer s3cret", "/record/start", http.StatusOK},
		{"query_token_for_event_source", "s3cret", "", "/events?token=s3cret", http.StatusOK},
		{"wrong_header", "s3cret", "Bearer nope", "/record/start", http.StatusUnauthorized},
		{"wrong_query", "s3cret", "", "/events?token=nope", http.StatusUnauthorized},
		{"missing", "s3cret", "", "/record/stop", http.StatusUnauthorized},
		{"basic_scheme_ignored", "s3cret", "Basic s3cret", "/record/start", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &reached{}
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			BearerAuth(tt.token)(next).ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusUnauthorized && next.n != 0 {
				t.Error("handler ran for an unauthorized request")
			}
		})
	}
}

func TestRecovererTurnsPanicInto500(t *testing.T) {
	boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("writer exploded") })
	h := Logger(zerolog.Nop())(Recoverer(boom))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/record/stop", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}
