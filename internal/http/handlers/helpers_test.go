package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/legal-triage/internal/admin"
	"github.com/wolfman30/legal-triage/internal/inference"
	"github.com/wolfman30/legal-triage/internal/prompt"
	"github.com/wolfman30/legal-triage/internal/routing"
	"github.com/wolfman30/legal-triage/internal/rules"
	"github.com/wolfman30/legal-triage/internal/session"
	"github.com/wolfman30/legal-triage/pkg/logging"
)

// stubModel answers every request with reply, or streams chunks and then
// fails with streamErr when set.
type stubModel struct {
	mu        sync.Mutex
	reply     string
	err       error
	chunks    []string
	streamErr error
	requests  []inference.Request
}

func (s *stubModel) Complete(_ context.Context, req inference.Request) (inference.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.err != nil {
		return inference.Response{}, s.err
	}
	return inference.Response{Text: s.reply}, nil
}

func (s *stubModel) CompleteStream(ctx context.Context, req inference.Request) (<-chan inference.StreamChunk, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	chunks := s.chunks
	if len(chunks) == 0 {
		chunks = []string{s.reply}
	}
	ch := make(chan inference.StreamChunk, len(chunks)+1)
	go func() {
		defer close(ch)
		for _, c := range chunks {
			ch <- inference.StreamChunk{Text: c}
		}
		if s.streamErr != nil {
			ch <- inference.StreamChunk{Done: true, Error: s.streamErr}
			return
		}
		ch <- inference.StreamChunk{Done: true}
	}()
	return ch, nil
}

func (s *stubModel) lastRequest() inference.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

type brokenBackend struct{ *rules.MemoryBackend }

func (brokenBackend) Write(context.Context, rules.RuleSet) error { return errors.New("disk full") }

type fixture struct {
	store    *rules.Store
	model    *stubModel
	sessions *session.Manager
	kv       *session.MemoryKV
	router   http.Handler
}

func newFixture(t *testing.T, backend rules.Backend) *fixture {
	t.Helper()
	logger := logging.New("error")
	if backend == nil {
		backend = rules.NewMemoryBackend(nil)
	}
	store := rules.NewStore(backend, logger)
	model := &stubModel{reply: "For this request, please email: ip@acme.corp"}
	builder := prompt.NewBuilder("Acme Corp", "legal@acme.corp", "", nil)
	kv := session.NewMemoryKV()
	sessions := session.NewManager(kv, "", logger)

	orch := routing.New(store, builder, model, logger)
	chat := NewChatHandler(orch, sessions, []string{"*"}, logger)
	configure := NewConfigureHandler(admin.NewService(store, logger), builder, logger)

	r := chi.NewRouter()
	r.Get("/health", Health)
	r.Get("/api/configure", configure.GetRules)
	r.Post("/api/configure", configure.ReplaceRules)
	r.Post("/api/match", configure.Match)
	r.Post("/api/chat", chat.Chat)
	r.Get("/api/chat/ws", chat.WebSocket)
	r.Delete("/api/chat/sessions/{id}", chat.DeleteSession)

	return &fixture{store: store, model: model, sessions: sessions, kv: kv, router: r}
}

func ndaRules() rules.RuleSet {
	return rules.RuleSet{
		{Conditions: rules.Conditions{"type": "NDA"}, Assignee: "ip@acme.corp"},
		{Conditions: rules.Conditions{"type": "Employment", "location": "Australia"}, Assignee: "au-hr@acme.corp"},
	}
}
