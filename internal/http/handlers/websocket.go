package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wolfman30/legal-triage/internal/routing"
	"github.com/wolfman30/legal-triage/internal/session"
)

const (
	wsWriteWait   = 10 * time.Second
	wsMaxFrameLen = 64 << 10
)

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAny := len(allowedOrigins) == 0
	allow := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			allowAny = true
		}
		allow[o] = struct{}{}
	}
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAny {
				return true
			}
			if _, ok := allow[origin]; ok {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		},
	}
}

// WSInbound is a frame sent by the chat client.
type WSInbound struct {
	Type    string `json:"type"` // "message", "clear", "ping"
	Message string `json:"message,omitempty"`
}

// WSOutbound is a frame sent to the chat client.
type WSOutbound struct {
	Type      string            `json:"type"` // "session", "history", "chunk", "done", "cleared", "pong", "error"
	SessionID string            `json:"session_id,omitempty"`
	Text      string            `json:"text,omitempty"`
	Message   *session.Message  `json:"message,omitempty"`
	History   []session.Message `json:"history,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// WebSocket serves a server-held chat session over one connection. Turns on
// a connection run one at a time.
// GET /api/chat/ws?session_id=...
func (h *ChatHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if id == "" {
		id = uuid.NewString()
	}
	if err := validateSessionID(id); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxFrameLen)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := h.sessions.Get(ctx, id)
	send := func(out WSOutbound) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(out)
	}
	if err := send(WSOutbound{Type: "session", SessionID: id}); err != nil {
		return
	}
	if history := sess.Messages(); len(history) > 0 {
		if err := send(WSOutbound{Type: "history", History: history}); err != nil {
			return
		}
	}
	h.logger.Info("chat websocket opened", "session_id", id)

	for {
		var in WSInbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("chat websocket read failed", "session_id", id, "error", err)
			}
			return
		}

		switch in.Type {
		case "ping":
			err = send(WSOutbound{Type: "pong"})
		case "clear":
			err = h.wsClear(ctx, id, sess, send)
		case "message":
			err = h.wsTurn(ctx, sess, in.Message, send)
		default:
			err = send(WSOutbound{Type: "error", Error: "unknown frame type"})
		}
		if err != nil {
			h.logger.Debug("chat websocket write failed", "session_id", id, "error", err)
			return
		}
	}
}

// wsClear empties the transcript unless a turn from another connection holds it.
func (h *ChatHandler) wsClear(ctx context.Context, id string, sess *session.Session, send func(WSOutbound) error) error {
	release, err := sess.BeginTurn()
	if err != nil {
		return send(WSOutbound{Type: "error", Error: "a turn is already in progress for this session"})
	}
	defer release()

	if cerr := sess.Clear(ctx); cerr != nil {
		h.logger.Warn("failed to clear session", "session_id", id, "error", cerr)
	}
	return send(WSOutbound{Type: "cleared"})
}

func (h *ChatHandler) wsTurn(ctx context.Context, sess *session.Session, text string, send func(WSOutbound) error) error {
	reply, err := h.orch.HandleTurn(ctx, sess, text, routing.WithStream(func(chunk string) error {
		return send(WSOutbound{Type: "chunk", Text: chunk})
	}))
	if err != nil {
		_, msg := turnErrorStatus(err)
		return send(WSOutbound{Type: "error", Error: msg})
	}
	return send(WSOutbound{Type: "done", Message: &reply})
}
