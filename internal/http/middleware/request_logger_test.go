package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wolfman30/therapy-scheduler/internal/events"
	"github.com/wolfman30/therapy-scheduler/pkg/logging"
)

func TestRequestLoggerPropagatesRequestID(t *testing.T) {
	var seen string
	h := RequestLogger(logging.New("error"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = events.CorrelationIDFromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/appointments", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "req-123" {
		t.Fatalf("expected correlation id req-123, got %q", seen)
	}
	if rec.Header().Get("X-Request-ID") != "req-123" {
		t.Fatalf("expected request id echoed in response")
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status to pass through, got %d", rec.Code)
	}
}

func TestRequestLoggerGeneratesRequestID(t *testing.T) {
	h := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected generated request id")
	}
}
