package rules

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/legal-triage/pkg/logging"
)

type flakyBackend struct {
	*MemoryBackend
	readErr  error
	writeErr error
}

func (f *flakyBackend) Read(ctx context.Context) (RuleSet, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.MemoryBackend.Read(ctx)
}

func (f *flakyBackend) Write(ctx context.Context, rs RuleSet) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	return f.MemoryBackend.Write(ctx, rs)
}

func TestStoreLoadMissingReturnsEmpty(t *testing.T) {
	store := NewStore(NewMemoryBackend(nil), logging.New("error"))
	got := store.Load(context.Background())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend(nil), logging.New("error"))
	want := sampleRules()

	require.NoError(t, store.Save(ctx, want))
	assert.Equal(t, want, store.Load(ctx))
}

func TestStoreSaveFailureKeepsPreviousSet(t *testing.T) {
	ctx := context.Background()
	backend := &flakyBackend{MemoryBackend: NewMemoryBackend(nil)}
	store := NewStore(backend, logging.New("error"))

	before := RuleSet{{Conditions: Conditions{"type": "NDA"}, Assignee: "ip@acme.corp"}}
	require.NoError(t, store.Save(ctx, before))

	backend.writeErr = errors.New("disk full")
	err := store.Save(ctx, sampleRules())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.Contains(t, err.Error(), "disk full")

	assert.Equal(t, before, store.Load(ctx))
}

func TestStoreLoadFailureReturnsEmpty(t *testing.T) {
	backend := &flakyBackend{MemoryBackend: NewMemoryBackend(sampleRules()), readErr: ErrCorrupt}
	store := NewStore(backend, logging.New("error"))
	got := store.Load(context.Background())
	assert.Empty(t, got)
}

func TestStoreSnapshotsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend(nil), logging.New("error"))
	input := sampleRules()
	require.NoError(t, store.Save(ctx, input))

	input[0].Assignee = "mutated@acme.corp"
	loaded := store.Load(ctx)
	loaded[1].Conditions["type"] = "mutated"

	again := store.Load(ctx)
	assert.Equal(t, "ip@acme.corp", again[0].Assignee)
	assert.Equal(t, "Employment", again[1].Conditions["type"])
}

func TestStoreConcurrentLoadNeverTorn(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend(nil), logging.New("error"))

	small := RuleSet{{Conditions: Conditions{"type": "A"}, Assignee: "a@acme.corp"}}
	large := sampleRules()
	require.NoError(t, store.Save(ctx, small))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				_ = store.Save(ctx, large)
			} else {
				_ = store.Save(ctx, small)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			got := store.Load(ctx)
			if len(got) != len(small) && len(got) != len(large) {
				t.Errorf("torn read: %d rules", len(got))
				return
			}
			if len(got) == len(small) {
				assert.Equal(t, small, got)
			} else {
				assert.Equal(t, large, got)
			}
		}
	}()
	wg.Wait()
}

func TestNewStoreRequiresBackend(t *testing.T) {
	assert.Panics(t, func() { NewStore(nil, nil) })
}
