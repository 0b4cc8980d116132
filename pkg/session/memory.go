package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store using an in-memory map. Sessions are copied
// on the way in and out, so callers never share memory with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
	newID    func() string

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// GetCurrent returns the active or completed session for key.
func (s *MemoryStore) GetCurrent(_ context.Context, key Key) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.current(key).Clone(), nil
}

func (s *MemoryStore) current(key Key) *Session {
	for _, sess := range s.sessions {
		if sess.Key() == key && sess.Status.IsCurrent() {
			return sess
		}
	}
	return nil
}

// Get retrieves a session by ID. Returns nil, nil if not found.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	return sess.Clone(), nil
}

// Create starts a session, superseding the current one when p.ForceNew.
func (s *MemoryStore) Create(_ context.Context, p CreateParams) (CreateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	var result CreateResult
	if cur := s.current(p.Key); cur != nil {
		if !p.ForceNew {
			return CreateResult{Session: cur.Clone()}, nil
		}
		cur.Status = StatusSuperseded
		cur.UpdatedAt = now
		result.Superseded = cur.Clone()
	}

	sess := &Session{
		ID:            s.newID(),
		UserID:        p.UserID,
		GameID:        p.GameID,
		ChapterID:     p.ChapterID,
		Status:        StatusActive,
		Inventory:     []string{},
		Variables:     map[string]any{},
		CurrentPageID: p.FirstPageID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.sessions[sess.ID] = sess

	result.Session = sess.Clone()
	result.Created = true
	return result, nil
}

// UpdateProgress replaces the session's progress.
func (s *MemoryStore) UpdateProgress(_ context.Context, id, userID string, p Progress) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[id]
	if err := CheckWritable(sess, userID); err != nil {
		return nil, err
	}
	ApplyProgress(sess, p, s.now().UTC())
	return sess.Clone(), nil
}

// PurgeSuperseded deletes superseded sessions last updated before the cutoff.
func (s *MemoryStore) PurgeSuperseded(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sess := range s.sessions {
		if sess.Status == StatusSuperseded && sess.UpdatedAt.Before(before) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// StartCleanupRoutine starts a background goroutine that periodically purges
// superseded sessions older than retention. The goroutine is stopped when
// Close is called.
func (s *MemoryStore) StartCleanupRoutine(interval, retention time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, _ := s.PurgeSuperseded(ctx, s.now().Add(-retention)); n > 0 {
					slog.Debug("purged superseded sessions", "count", n)
				}
			}
		}
	}()
}

// Close stops the cleanup goroutine and waits for it to exit.
// It is safe to call Close even if StartCleanupRoutine was never called.
func (s *MemoryStore) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
