package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/waypointgames/waypoint/pkg/engine"
	"github.com/waypointgames/waypoint/pkg/offline"
	"github.com/waypointgames/waypoint/pkg/session"
)

type createSessionRequest struct {
	ChapterID   string `json:"chapterId,omitempty"`
	ForceNew    bool   `json:"forceNew,omitempty"`
	FirstPageID string `json:"firstPageId,omitempty"`
}

// CurrentSession returns the caller's active or completed session for the
// game. A 404 means the server has none and returns nil, nil; every other
// failure is returned as an error. key.UserID is ignored: the server takes
// the user from the token.
func (c *Client) CurrentSession(ctx context.Context, key session.Key) (*session.Session, error) {
	path, err := expand(currentTemplate, map[string]string{"gameID": key.GameID, "chapterId": key.ChapterID})
	if err != nil {
		return nil, err
	}
	var s session.Session
	if err := c.do(ctx, http.MethodGet, path, nil, &s); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, nil //nolint:nilnil // no current session
		}
		return nil, fmt.Errorf("getting current session: %w", err)
	}
	return &s, nil
}

// CreateSession starts a session. The server returns the current session
// instead when one exists and p.ForceNew is false.
func (c *Client) CreateSession(ctx context.Context, p session.CreateParams) (*session.Session, error) {
	path, err := expand(createTemplate, map[string]string{"gameID": p.GameID})
	if err != nil {
		return nil, err
	}
	body := createSessionRequest{ChapterID: p.ChapterID, ForceNew: p.ForceNew, FirstPageID: p.FirstPageID}
	var s session.Session
	if err := c.do(ctx, http.MethodPost, path, body, &s); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return &s, nil
}

// UpdateProgress writes the full progress state of a session.
func (c *Client) UpdateProgress(ctx context.Context, sessionID string, p session.Progress) (*session.Session, error) {
	path, err := expand(progressTemplate, map[string]string{"sessionID": sessionID})
	if err != nil {
		return nil, err
	}
	var s session.Session
	if err := c.do(ctx, http.MethodPatch, path, p, &s); err != nil {
		return nil, fmt.Errorf("updating progress: %w", err)
	}
	return &s, nil
}

// ApplyUpdate sends a queued update. An API answer that retrying cannot
// change is reported as offline.ErrRejected, except authentication
// failures, which a new token can fix.
func (c *Client) ApplyUpdate(ctx context.Context, u offline.Update) error {
	_, err := c.UpdateProgress(ctx, u.SessionID, u.Progress())
	var se *StatusError
	if errors.As(err, &se) && !IsTransient(err) &&
		se.StatusCode != http.StatusUnauthorized && se.StatusCode != http.StatusForbidden {
		return fmt.Errorf("%w: %w", offline.ErrRejected, err)
	}
	return err
}

var (
	_ engine.SessionAPI = (*Client)(nil)
	_ offline.Applier   = (*Client)(nil)
)
