// Package session stores players' play-throughs of a game. It defines the
// Store interface and the Session type shared by the memory and PostgreSQL
// backends.
//
// A (user, game, chapter) key has at most one current session: either
// active or completed. Starting a replay supersedes the current session
// instead of deleting it, so history is kept until it is purged.
package session

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"
)

// Status is the lifecycle state of a session.
type Status string

// Session statuses.
const (
	StatusActive     Status = "active"
	StatusCompleted  Status = "completed"
	StatusSuperseded Status = "superseded"
)

// IsCurrent reports whether a session with this status is the current one
// for its key.
func (s Status) IsCurrent() bool {
	return s == StatusActive || s == StatusCompleted
}

var (
	// ErrNotFound is returned when a session does not exist or belongs to
	// another user.
	ErrNotFound = errors.New("session not found")

	// ErrCompleted is returned when writing progress to a completed session.
	ErrCompleted = errors.New("session is completed")

	// ErrSuperseded is returned when writing progress to a session that a
	// replay has replaced.
	ErrSuperseded = errors.New("session was superseded")
)

// Key identifies whose play-through of what a session is. ChapterID is
// empty for sessions covering the whole game.
type Key struct {
	UserID    string
	GameID    string
	ChapterID string
}

// Session is one player's attempt at a game or chapter.
type Session struct {
	ID            string         `json:"id"`
	UserID        string         `json:"userId"`
	GameID        string         `json:"gameId"`
	ChapterID     string         `json:"chapterId,omitempty"`
	Status        Status         `json:"status"`
	Score         int            `json:"score"`
	Inventory     []string       `json:"inventory"`
	Variables     map[string]any `json:"variables"`
	CurrentPageID string         `json:"currentPageId,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
}

// Key returns the session's key.
func (s *Session) Key() Key {
	return Key{UserID: s.UserID, GameID: s.GameID, ChapterID: s.ChapterID}
}

// Clone returns a copy of s with its own inventory, variables map and
// completion time.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Inventory = slices.Clone(s.Inventory)
	c.Variables = maps.Clone(s.Variables)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Progress is a full-state progress write: the latest score, inventory,
// variables and page pointer, not a delta.
type Progress struct {
	PageID    string         `json:"pageId"`
	Score     int            `json:"score"`
	Inventory []string       `json:"inventory"`
	Variables map[string]any `json:"variables"`
	Completed bool           `json:"completed,omitempty"`
}

// CreateParams describes a session to start.
type CreateParams struct {
	Key
	// ForceNew supersedes the current session instead of returning it.
	ForceNew bool
	// FirstPageID seeds CurrentPageID.
	FirstPageID string
}

// CreateResult is the outcome of Store.Create.
type CreateResult struct {
	Session *Session
	// Created is false when the current session was returned unchanged.
	Created bool
	// Superseded is the session a forced create replaced, if any.
	Superseded *Session
}

// Store defines the interface for session persistence.
type Store interface {
	// GetCurrent returns the active or completed session for key.
	// Returns nil, nil if there is none.
	GetCurrent(ctx context.Context, key Key) (*Session, error)

	// Get retrieves a session by ID. Returns nil, nil if not found.
	Get(ctx context.Context, id string) (*Session, error)

	// Create starts a session for the key. Without ForceNew an existing
	// current session is returned instead, so repeated creates are
	// idempotent. With ForceNew the current session is superseded in the
	// same transaction.
	Create(ctx context.Context, p CreateParams) (CreateResult, error)

	// UpdateProgress replaces the session's progress. userID must own the
	// session. Completed sessions reject writes with ErrCompleted.
	UpdateProgress(ctx context.Context, id, userID string, p Progress) (*Session, error)

	// PurgeSuperseded deletes superseded sessions last updated before the
	// cutoff and returns how many were removed.
	PurgeSuperseded(ctx context.Context, before time.Time) (int, error)

	// Close stops background routines and releases resources.
	Close() error
}

// ApplyProgress copies p onto s, stamping now as the update time. It is
// shared by the backends so they agree on completion semantics.
func ApplyProgress(s *Session, p Progress, now time.Time) {
	s.Score = p.Score
	s.Inventory = slices.Clone(p.Inventory)
	if s.Inventory == nil {
		s.Inventory = []string{}
	}
	s.Variables = maps.Clone(p.Variables)
	if s.Variables == nil {
		s.Variables = map[string]any{}
	}
	s.CurrentPageID = p.PageID
	s.UpdatedAt = now
	if p.Completed {
		s.Status = StatusCompleted
		s.CompletedAt = &now
	}
}

// CheckWritable returns the error for writing progress to s by userID, or
// nil if the write is allowed.
func CheckWritable(s *Session, userID string) error {
	switch {
	case s == nil || s.UserID != userID:
		return ErrNotFound
	case s.Status == StatusCompleted:
		return ErrCompleted
	case s.Status == StatusSuperseded:
		return ErrSuperseded
	}
	return nil
}
