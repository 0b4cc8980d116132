package offline

import (
	"context"
	"sync"
)

// MemoryBackend keeps updates in memory. It does not survive restarts and
// is meant for tests and short-lived tools.
type MemoryBackend struct {
	mu      sync.RWMutex
	updates map[string]Update
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{updates: make(map[string]Update)}
}

// Put stores u, replacing any update for the same session.
func (b *MemoryBackend) Put(_ context.Context, u Update) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.updates[u.SessionID] = u
	return nil
}

// Get returns the update for sessionID.
func (b *MemoryBackend) Get(_ context.Context, sessionID string) (Update, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	u, ok := b.updates[sessionID]
	return u, ok, nil
}

// All returns every stored update.
func (b *MemoryBackend) All(_ context.Context) ([]Update, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Update, 0, len(b.updates))
	for _, u := range b.updates {
		out = append(out, u)
	}
	return out, nil
}

// Delete removes the update for sessionID.
func (b *MemoryBackend) Delete(_ context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.updates, sessionID)
	return nil
}

// Verify interface compliance.
var _ Backend = (*MemoryBackend)(nil)
