package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/wolfman30/legal-triage/pkg/logging"
)

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 128
)

type requestIDKey struct{}

// RequestIDFromContext returns the ID assigned by RequestLogger.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestLogger tags each request with an ID (reusing a sane inbound
// X-Request-ID), echoes it back and writes one access record per request.
func RequestLogger(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	access := logger.Component("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			id := inboundRequestID(r)
			w.Header().Set(requestIDHeader, id)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			access.Log(r.Context(), accessLevel(status), "request served",
				"request_id", id,
				"method", r.Method,
				"route", routeLabel(r),
				"status", status,
				"bytes", ww.BytesWritten(),
				"remote_ip", r.RemoteAddr,
				"duration_ms", time.Since(began).Milliseconds(),
			)
		})
	}
}

func inboundRequestID(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if id == "" || len(id) > maxRequestIDLen {
		return uuid.NewString()
	}
	return id
}

// routeLabel prefers the matched chi pattern so session IDs stay out of logs.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func accessLevel(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelWarn
	case status == http.StatusNotFound, status == http.StatusMethodNotAllowed:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
