// Package offline holds progress writes that could not reach the server
// and replays them when connectivity returns.
//
// The queue keeps at most one update per session: only the latest state
// matters, so a newer update replaces an older one instead of being
// appended after it.
package offline

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/waypointgames/waypoint/pkg/session"
)

// ErrRejected marks an update the server refused for good (the session is
// gone, completed or superseded). Drain discards such updates instead of
// stopping on them.
var ErrRejected = errors.New("update rejected by server")

// Update is a pending progress write. ID equals SessionID.
type Update struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	PageID    string         `json:"pageId"`
	Score     int            `json:"score"`
	Inventory []string       `json:"inventory"`
	Variables map[string]any `json:"variables"`
	Completed bool           `json:"completed,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Progress returns the session progress the update carries.
func (u Update) Progress() session.Progress {
	return session.Progress{
		PageID:    u.PageID,
		Score:     u.Score,
		Inventory: slices.Clone(u.Inventory),
		Variables: maps.Clone(u.Variables),
		Completed: u.Completed,
	}
}

// NewUpdate builds an update for sessionID from p.
func NewUpdate(sessionID string, p session.Progress, ts time.Time) Update {
	return Update{
		ID:        sessionID,
		SessionID: sessionID,
		PageID:    p.PageID,
		Score:     p.Score,
		Inventory: slices.Clone(p.Inventory),
		Variables: maps.Clone(p.Variables),
		Completed: p.Completed,
		Timestamp: ts,
	}
}

// Backend is durable storage for pending updates, keyed by session id.
type Backend interface {
	// Put stores u, replacing any update for the same session.
	Put(ctx context.Context, u Update) error

	// Get returns the update for sessionID, or false if there is none.
	Get(ctx context.Context, sessionID string) (Update, bool, error)

	// All returns every stored update in no particular order.
	All(ctx context.Context) ([]Update, error)

	// Delete removes the update for sessionID. Deleting a missing update
	// is not an error.
	Delete(ctx context.Context, sessionID string) error
}

// Applier sends one update to the server.
type Applier interface {
	ApplyUpdate(ctx context.Context, u Update) error
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(ctx context.Context, u Update) error

// ApplyUpdate calls f.
func (f ApplierFunc) ApplyUpdate(ctx context.Context, u Update) error { return f(ctx, u) }

// sortUpdates orders updates by timestamp, breaking ties by session id.
func sortUpdates(updates []Update) {
	slices.SortFunc(updates, func(a, b Update) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		switch {
		case a.SessionID < b.SessionID:
			return -1
		case a.SessionID > b.SessionID:
			return 1
		}
		return 0
	})
}
