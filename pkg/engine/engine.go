// Package engine drives a player through a game: it resolves or creates the
// player's session, applies page outcomes in order, and persists progress
// online or through the offline queue.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/waypointgames/waypoint/pkg/page"
	"github.com/waypointgames/waypoint/pkg/session"
)

// State is a Machine lifecycle state.
type State string

// Machine states.
const (
	StateUninitialized State = "uninitialized"
	StateResolving     State = "resolving"
	StateCreating      State = "creating"
	StateRestoring     State = "restoring"
	StateActive        State = "active"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
)

// Machine errors.
var (
	// ErrNotActive is returned when an outcome arrives while the session
	// is not active (not started yet, or already completed).
	ErrNotActive = errors.New("session is not active")

	// ErrClosed is returned once the machine has been closed. Responses
	// arriving after Close are dropped.
	ErrClosed = errors.New("session machine closed")

	// ErrNoPages is returned when the game has no pages to play.
	ErrNoPages = errors.New("game has no pages")

	// ErrRouterLoop is returned when flow routers keep redirecting to
	// each other for longer than the game has pages.
	ErrRouterLoop = errors.New("flow routers do not reach a playable page")
)

// CreateError reports that a new session could not be created. It is meant
// to be shown to the player; Start may be called again to retry.
type CreateError struct {
	Err error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("could not start a new session: %v", e.Err)
}

func (e *CreateError) Unwrap() error { return e.Err }

// Message returns the text to show the player.
func (e *CreateError) Message() string {
	return "We could not start your game. Check your connection and try again."
}

// SessionAPI is the server's session storage as seen by a player.
type SessionAPI interface {
	// CurrentSession returns the player's active or completed session for
	// the key. It returns nil, nil only when the server conclusively has
	// none; any error is ambiguous.
	CurrentSession(ctx context.Context, key session.Key) (*session.Session, error)

	// CreateSession starts a session. With ForceNew the current session is
	// superseded.
	CreateSession(ctx context.Context, p session.CreateParams) (*session.Session, error)

	// UpdateProgress writes the full progress state of a session.
	UpdateProgress(ctx context.Context, sessionID string, p session.Progress) (*session.Session, error)
}

// Catalog returns the pages of a game.
type Catalog interface {
	Pages(ctx context.Context, gameID, chapterID string) ([]page.Page, error)
}

// Writer persists progress. queued is true when the write was deferred to
// the offline queue rather than sent.
type Writer interface {
	WriteProgress(ctx context.Context, sessionID string, p session.Progress) (queued bool, err error)
}
