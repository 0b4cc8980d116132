package audit

import (
	"context"
	"log/slog"

	"github.com/waypointgames/waypoint/pkg/session"
)

// SessionStore wraps a session.Store and records an event for every
// successful create and progress write. Recorder failures are logged and
// never fail the write.
type SessionStore struct {
	session.Store
	recorder Recorder
}

// NewSessionStore wraps store so its writes are recorded to r.
func NewSessionStore(store session.Store, r Recorder) *SessionStore {
	return &SessionStore{Store: store, recorder: r}
}

// Create implements session.Store.
func (s *SessionStore) Create(ctx context.Context, p session.CreateParams) (session.CreateResult, error) {
	res, err := s.Store.Create(ctx, p)
	if err != nil || !res.Created {
		return res, err
	}
	if res.Superseded != nil {
		s.record(ctx, NewEvent(EventTypeSuperseded).
			WithSession(res.Superseded).
			WithDetails(map[string]any{"replaced_by": res.Session.ID}))
	}
	s.record(ctx, NewEvent(EventTypeCreated).WithSession(res.Session))
	return res, nil
}

// UpdateProgress implements session.Store.
func (s *SessionStore) UpdateProgress(ctx context.Context, id, userID string, p session.Progress) (*session.Session, error) {
	sess, err := s.Store.UpdateProgress(ctx, id, userID, p)
	if err != nil {
		return nil, err
	}
	t := EventTypeProgress
	if sess.Status == session.StatusCompleted {
		t = EventTypeCompleted
	}
	e := NewEvent(t).WithSession(sess)
	if sess.CompletedAt != nil {
		e.WithDetails(map[string]any{"duration_seconds": sess.CompletedAt.Sub(sess.CreatedAt).Seconds()})
	}
	s.record(ctx, e)
	return sess, nil
}

func (s *SessionStore) record(ctx context.Context, e *Event) {
	if err := s.recorder.Log(ctx, *e); err != nil {
		slog.Warn("failed to record session event",
			"type", string(e.Type),
			"session_id", e.SessionID,
			"error", err,
		)
	}
}

var _ session.Store = (*SessionStore)(nil)
