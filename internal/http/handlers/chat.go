package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/wolfman30/legal-triage/internal/http/middleware"
	"github.com/wolfman30/legal-triage/internal/routing"
	"github.com/wolfman30/legal-triage/internal/session"
	"github.com/wolfman30/legal-triage/pkg/logging"
)

const maxSessionIDLen = 128

// ChatHandler runs chat turns over JSON, server-sent events and websockets.
type ChatHandler struct {
	orch     *routing.Orchestrator
	sessions *session.Manager
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

func NewChatHandler(orch *routing.Orchestrator, sessions *session.Manager, allowedOrigins []string, logger *logging.Logger) *ChatHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatHandler{
		orch:     orch,
		sessions: sessions,
		logger:   logger,
		upgrader: newUpgrader(allowedOrigins),
	}
}

// ChatRequest is the body of POST /api/chat. With SessionID set the server
// holds the transcript and History is ignored.
type ChatRequest struct {
	Message   string            `json:"message"`
	History   []session.Message `json:"history,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
}

type ChatResponse struct {
	Message   session.Message   `json:"message"`
	History   []session.Message `json:"history"`
	SessionID string            `json:"session_id,omitempty"`
}

// Chat runs one turn. Streaming is selected by Accept: text/event-stream or
// ?stream=true.
// POST /api/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		decodeError(w, err)
		return
	}
	sess, err := h.resolveSession(r.Context(), req)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if wantsStream(r) {
		h.streamTurn(w, r, sess, req)
		return
	}

	reply, err := h.orch.HandleTurn(r.Context(), sess, req.Message)
	if err != nil {
		status, msg := turnErrorStatus(err)
		jsonError(w, msg, status)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Message: reply, History: sess.Messages(), SessionID: req.SessionID})
}

func (h *ChatHandler) streamTurn(w http.ResponseWriter, r *http.Request, sess *session.Session, req ChatRequest) {
	sse := newSSEWriter(w)
	reply, err := h.orch.HandleTurn(r.Context(), sess, req.Message, routing.WithStream(func(chunk string) error {
		return sse.event("chunk", map[string]string{"text": chunk})
	}))
	if err != nil {
		status, msg := turnErrorStatus(err)
		if !sse.started {
			jsonError(w, msg, status)
			return
		}
		if werr := sse.event("error", map[string]string{"error": msg}); werr != nil {
			h.logger.Debug("sse client gone before error event", "error", werr)
		}
		return
	}
	if err := sse.event("done", ChatResponse{Message: reply, History: sess.Messages(), SessionID: req.SessionID}); err != nil {
		h.logger.Debug("sse client gone before done event", "error", err)
	}
}

// DeleteSession clears a server-held transcript.
// DELETE /api/chat/sessions/{id}
func (h *ChatHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if err := validateSessionID(id); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	err := h.sessions.Delete(r.Context(), id)
	if errors.Is(err, session.ErrTurnInProgress) {
		jsonError(w, "a turn is already in progress for this session", http.StatusConflict)
		return
	}
	if err != nil {
		h.logger.Error("failed to clear session", "session_id", id, "request_id", middleware.RequestIDFromContext(r.Context()), "error", err)
		jsonError(w, "failed to clear session", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) resolveSession(ctx context.Context, req ChatRequest) (*session.Session, error) {
	if id := strings.TrimSpace(req.SessionID); id != "" {
		if err := validateSessionID(id); err != nil {
			return nil, err
		}
		return h.sessions.Get(ctx, id), nil
	}
	return session.FromHistory(req.History), nil
}

func validateSessionID(id string) error {
	if id == "" {
		return errors.New("session id is required")
	}
	if len(id) > maxSessionIDLen {
		return errors.New("session id is too long")
	}
	return nil
}

func wantsStream(r *http.Request) bool {
	if v := r.URL.Query().Get("stream"); v == "true" || v == "1" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func turnErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, routing.ErrEmptyInput):
		return http.StatusBadRequest, "message is required"
	case errors.Is(err, session.ErrTurnInProgress):
		return http.StatusConflict, "a turn is already in progress for this session"
	case errors.Is(err, routing.ErrInference):
		return http.StatusBadGateway, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// sseWriter defers the event-stream headers until the first event so errors
// raised before any output can still use a plain status code.
type sseWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	return &sseWriter{w: w, rc: http.NewResponseController(w)}
}

func (s *sseWriter) event(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
