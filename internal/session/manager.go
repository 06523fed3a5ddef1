package session

import (
	"context"
	"strings"
	"sync"

	"github.com/wolfman30/legal-triage/pkg/logging"
)

const (
	defaultKeyPrefix = "triage:session:"
	// maxCachedSessions bounds the in-process cache. Idle sessions beyond it
	// are dropped and restored from the KV on next use.
	maxCachedSessions = 1024
)

// Manager hands out server-held sessions by ID so concurrent requests for the
// same conversation share one turn guard.
type Manager struct {
	kv     KV
	prefix string
	logger *logging.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(kv KV, prefix string, logger *logging.Logger) *Manager {
	if kv == nil {
		panic("session: kv cannot be nil")
	}
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{kv: kv, prefix: prefix, logger: logger, sessions: make(map[string]*Session)}
}

// Get returns the session for id, restoring it on first use.
func (m *Manager) Get(ctx context.Context, id string) *Session {
	id = strings.TrimSpace(id)
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s
	}
	if len(m.sessions) >= maxCachedSessions {
		m.evictIdleLocked()
	}
	s := Restore(ctx, m.kv, m.prefix+id, m.logger)
	m.sessions[id] = s
	return s
}

func (m *Manager) evictIdleLocked() {
	for id, s := range m.sessions {
		if !s.busy() {
			delete(m.sessions, id)
		}
	}
}

// Delete clears the persisted log for id and forgets the cached session. It
// returns ErrTurnInProgress, leaving the session intact, while a turn holds it.
func (m *Manager) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return m.kv.Remove(ctx, m.prefix+id)
	}
	release, err := s.BeginTurn()
	if err != nil {
		return err
	}
	defer release()

	if err := s.Clear(ctx); err != nil {
		return err
	}
	delete(m.sessions, id)
	return nil
}
