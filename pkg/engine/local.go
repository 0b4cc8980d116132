package engine

import (
	"context"

	"github.com/waypointgames/waypoint/pkg/session"
)

// LocalSessions serves SessionAPI from a session.Store in the same process,
// for one user. The headless player uses it to run a game without a server.
type LocalSessions struct {
	store  session.Store
	userID string
}

// NewLocalSessions creates a SessionAPI for userID backed by store.
func NewLocalSessions(store session.Store, userID string) *LocalSessions {
	return &LocalSessions{store: store, userID: userID}
}

// CurrentSession implements SessionAPI.
func (l *LocalSessions) CurrentSession(ctx context.Context, key session.Key) (*session.Session, error) {
	key.UserID = l.userID
	return l.store.GetCurrent(ctx, key)
}

// CreateSession implements SessionAPI.
func (l *LocalSessions) CreateSession(ctx context.Context, p session.CreateParams) (*session.Session, error) {
	p.UserID = l.userID
	res, err := l.store.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	return res.Session, nil
}

// UpdateProgress implements SessionAPI.
func (l *LocalSessions) UpdateProgress(ctx context.Context, sessionID string, p session.Progress) (*session.Session, error) {
	return l.store.UpdateProgress(ctx, sessionID, l.userID, p)
}

var _ SessionAPI = (*LocalSessions)(nil)
