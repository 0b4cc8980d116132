package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/waypointgames/waypoint/pkg/connectivity"
	"github.com/waypointgames/waypoint/pkg/offline"
	"github.com/waypointgames/waypoint/pkg/session"
)

// ProgressWriter sends progress to the server while online and queues it
// offline otherwise. A write that fails for a transient reason is queued
// and marks the observer offline; nothing is dropped.
//
// While a session has an update queued, newer writes for it are queued too
// so the server never sees an older state after a newer one.
type ProgressWriter struct {
	api       SessionAPI
	queue     *offline.Queue
	observer  *connectivity.Observer
	transient func(error) bool
	kick      func()

	mu sync.Mutex
}

// WriterOption configures a ProgressWriter.
type WriterOption func(*ProgressWriter)

// WithTransient sets the function that decides whether a failed write is
// retried later through the queue. The default treats every error except
// the session store's permanent errors and cancellation as transient.
func WithTransient(fn func(error) bool) WriterOption {
	return func(w *ProgressWriter) { w.transient = fn }
}

// WithDrainRequest sets a function called after a write is queued while
// online, typically connectivity.Trigger.Request.
func WithDrainRequest(fn func()) WriterOption {
	return func(w *ProgressWriter) { w.kick = fn }
}

// NewProgressWriter creates a writer.
func NewProgressWriter(api SessionAPI, q *offline.Queue, o *connectivity.Observer, opts ...WriterOption) *ProgressWriter {
	w := &ProgressWriter{
		api:       api,
		queue:     q,
		observer:  o,
		transient: defaultTransient,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func defaultTransient(err error) bool {
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrCompleted),
		errors.Is(err, session.ErrSuperseded),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// WriteProgress implements Writer.
func (w *ProgressWriter) WriteProgress(ctx context.Context, sessionID string, p session.Progress) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.observer.Online() {
		return true, w.enqueue(ctx, sessionID, p)
	}

	pending, err := w.queue.Pending(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if pending {
		if err := w.enqueue(ctx, sessionID, p); err != nil {
			return true, err
		}
		if w.kick != nil {
			w.kick()
		}
		return true, nil
	}

	if _, err := w.api.UpdateProgress(ctx, sessionID, p); err != nil {
		if !w.transient(err) {
			return false, err
		}
		slog.Warn("progress write failed, queued for later", "session_id", sessionID, "error", err)
		if qerr := w.enqueue(ctx, sessionID, p); qerr != nil {
			return true, qerr
		}
		w.observer.Set(false)
		return true, nil
	}
	return false, nil
}

func (w *ProgressWriter) enqueue(ctx context.Context, sessionID string, p session.Progress) error {
	if err := w.queue.QueueProgressUpdate(ctx, sessionID, p); err != nil {
		return fmt.Errorf("queueing progress: %w", err)
	}
	return nil
}

// Applier replays queued updates through api. Updates the session store
// refuses for good are reported as offline.ErrRejected so a drain discards
// them instead of stalling behind them.
func Applier(api SessionAPI) offline.Applier {
	return offline.ApplierFunc(func(ctx context.Context, u offline.Update) error {
		_, err := api.UpdateProgress(ctx, u.SessionID, u.Progress())
		if err != nil && !errors.Is(err, context.Canceled) && !defaultTransient(err) {
			return fmt.Errorf("%w: %w", offline.ErrRejected, err)
		}
		return err
	})
}

var _ Writer = (*ProgressWriter)(nil)
