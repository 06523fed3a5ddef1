package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/wolfman30/legal-triage/pkg/logging"
)

func TestRequestLoggerAssignsRequestID(t *testing.T) {
	var seen string
	handler := RequestLogger(logging.New("error"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRequestLoggerKeepsIncomingID(t *testing.T) {
	var seen string
	handler := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestRequestLoggerReplacesOversizedID(t *testing.T) {
	handler := RequestLogger(logging.New("error"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", maxRequestIDLen+1))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
}

func TestRequestLoggerLogsRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithOptions(logging.Options{Level: "debug", Format: "text", Output: &buf})

	r := chi.NewRouter()
	r.Use(RequestLogger(logger))
	r.Get("/api/sessions/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/sessions/secret-id", nil))

	out := buf.String()
	assert.Contains(t, out, "route=/api/sessions/{id}")
	assert.Contains(t, out, "status=204")
	assert.NotContains(t, out, "secret-id")
}

func TestAccessLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, accessLevel(http.StatusOK))
	assert.Equal(t, slog.LevelDebug, accessLevel(http.StatusNotFound))
	assert.Equal(t, slog.LevelWarn, accessLevel(http.StatusBadGateway))
}
