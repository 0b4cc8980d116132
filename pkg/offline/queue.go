package offline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/waypointgames/waypoint/pkg/session"
)

// Queue is the sole mutator of pending-update storage.
type Queue struct {
	backend Backend
	now     func() time.Time

	// mu guards read-compare-write sequences against the backend.
	mu   sync.Mutex
	last time.Time

	// drainMu keeps drains from overlapping.
	drainMu sync.Mutex
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock sets the clock used to stamp queued updates.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// NewQueue creates a queue over backend.
func NewQueue(backend Backend, opts ...Option) *Queue {
	q := &Queue{backend: backend, now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue stores u, replacing any pending update for the same session.
// A zero Timestamp is stamped with the queue's clock.
func (q *Queue) Enqueue(ctx context.Context, u Update) error {
	if u.SessionID == "" {
		return errors.New("enqueueing update: session id is required")
	}
	u.ID = u.SessionID

	q.mu.Lock()
	defer q.mu.Unlock()

	if u.Timestamp.IsZero() {
		u.Timestamp = q.stamp()
	}
	if err := q.backend.Put(ctx, u); err != nil {
		return fmt.Errorf("enqueueing update for session %s: %w", u.SessionID, err)
	}
	return nil
}

// stamp returns the current time, nudged forward so successive stamps are
// strictly increasing. Callers hold q.mu.
func (q *Queue) stamp() time.Time {
	ts := q.now().UTC()
	if !ts.After(q.last) {
		ts = q.last.Add(time.Nanosecond)
	}
	q.last = ts
	return ts
}

// QueueProgressUpdate queues p for sessionID, stamped now. It is the entry
// point for any caller that cannot reach the server.
func (q *Queue) QueueProgressUpdate(ctx context.Context, sessionID string, p session.Progress) error {
	return q.Enqueue(ctx, NewUpdate(sessionID, p, time.Time{}))
}

// PeekAll returns the pending updates in ascending timestamp order without
// removing them.
func (q *Queue) PeekAll(ctx context.Context) ([]Update, error) {
	updates, err := q.backend.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading pending updates: %w", err)
	}
	sortUpdates(updates)
	return updates, nil
}

// Pending reports whether an update is queued for sessionID.
func (q *Queue) Pending(ctx context.Context, sessionID string) (bool, error) {
	_, ok, err := q.backend.Get(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("reading update for session %s: %w", sessionID, err)
	}
	return ok, nil
}

// Len returns the number of pending updates.
func (q *Queue) Len(ctx context.Context) (int, error) {
	updates, err := q.backend.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading pending updates: %w", err)
	}
	return len(updates), nil
}

// Drain applies pending updates oldest first and returns how many were
// applied. Each applied update is removed on its own. Drain stops at the
// first failure and leaves that update and everything after it queued;
// updates the server rejects for good (ErrRejected) are discarded instead.
//
// An update replaced by a newer Enqueue while it was being applied stays
// queued, so the newer state is sent on the next drain.
func (q *Queue) Drain(ctx context.Context, a Applier) (int, error) {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	updates, err := q.PeekAll(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, u := range updates {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		err := a.ApplyUpdate(ctx, u)
		switch {
		case err == nil:
			applied++
		case errors.Is(err, ErrRejected):
			slog.Warn("discarding rejected progress update", "session_id", u.SessionID, "error", err)
		default:
			return applied, fmt.Errorf("applying update for session %s: %w", u.SessionID, err)
		}
		if err := q.removeIfUnchanged(ctx, u); err != nil {
			return applied, err
		}
	}
	return applied, nil
}

func (q *Queue) removeIfUnchanged(ctx context.Context, u Update) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cur, ok, err := q.backend.Get(ctx, u.SessionID)
	if err != nil {
		return fmt.Errorf("reading update for session %s: %w", u.SessionID, err)
	}
	if !ok || !cur.Timestamp.Equal(u.Timestamp) {
		return nil
	}
	if err := q.backend.Delete(ctx, u.SessionID); err != nil {
		return fmt.Errorf("removing update for session %s: %w", u.SessionID, err)
	}
	return nil
}
