package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/wolfman30/legal-triage/pkg/logging"
)

// Session is an append-only conversation log persisted under a single key.
// It has one logical writer; BeginTurn enforces that at most one turn runs at
// a time.
type Session struct {
	kv     KV
	key    string
	logger *logging.Logger

	mu       sync.Mutex
	messages []Message
	inTurn   bool
}

// Restore hydrates a session from kv. Missing or malformed data yields an
// empty session; the problem is logged and never returned.
func Restore(ctx context.Context, kv KV, key string, logger *logging.Logger) *Session {
	if kv == nil {
		kv = NewMemoryKV()
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Session{kv: kv, key: key, logger: logger, messages: []Message{}}

	data, ok, err := kv.Get(ctx, key)
	if err != nil {
		logger.Warn("session restore failed, starting empty", "key", key, "error", fmt.Errorf("%w: %v", ErrHydration, err))
		return s
	}
	if !ok {
		return s
	}
	msgs, err := Decode(data)
	if err != nil {
		logger.Warn("session data malformed, starting empty", "key", key, "error", err)
		return s
	}
	s.messages = msgs
	return s
}

// FromHistory builds an in-memory session seeded with a client-supplied log.
func FromHistory(history []Message) *Session {
	msgs := make([]Message, len(history))
	copy(msgs, history)
	return &Session{kv: NewMemoryKV(), key: "history", logger: logging.Default(), messages: msgs}
}

// Key returns the persistence key.
func (s *Session) Key() string { return s.key }

// Append adds msg to the end of the log and persists the whole log. When
// persisting fails the in-memory append still stands and the error is
// returned.
func (s *Session) Append(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
	return s.persistLocked(ctx)
}

// Clear empties the log and removes the persisted copy.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = []Message{}
	if err := s.kv.Remove(ctx, s.key); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}

// Messages returns a copy of the log.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// BeginTurn claims the session for one turn. The returned release func must
// be called when the turn ends.
func (s *Session) BeginTurn() (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inTurn {
		return nil, ErrTurnInProgress
	}
	s.inTurn = true

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.inTurn = false
			s.mu.Unlock()
		})
	}, nil
}

func (s *Session) busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTurn
}

func (s *Session) persistLocked(ctx context.Context) error {
	data, err := Encode(s.messages)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("session: persist: %w", err)
	}
	return nil
}
