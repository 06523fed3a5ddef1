package rules

import (
	"context"
	"sync"
)

// MemoryBackend keeps the rule set in process. Used by tests and the CLI.
type MemoryBackend struct {
	mu    sync.RWMutex
	rules RuleSet
	saved bool
}

// NewMemoryBackend creates a backend, optionally seeded.
func NewMemoryBackend(seed RuleSet) *MemoryBackend {
	b := &MemoryBackend{}
	if seed != nil {
		b.rules = seed.Clone()
		b.saved = true
	}
	return b
}

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) Read(_ context.Context) (RuleSet, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.saved {
		return nil, ErrNotFound
	}
	return b.rules.Clone(), nil
}

func (b *MemoryBackend) Write(_ context.Context, rs RuleSet) error {
	snapshot := rs.Clone()
	b.mu.Lock()
	b.rules = snapshot
	b.saved = true
	b.mu.Unlock()
	return nil
}
