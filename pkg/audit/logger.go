// Package audit records what happens to player sessions: creation,
// replays, progress and completion. Events feed the venue dashboards and
// the live watch stream.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Recorder receives events.
type Recorder interface {
	Log(ctx context.Context, event Event) error
}

// Logger is a Recorder that can also be queried.
type Logger interface {
	Recorder

	// Query retrieves events matching the filter, newest first.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	// Close releases resources.
	Close() error
}

// Event is a recorded session event.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	SessionID string         `json:"sessionId"`
	UserID    string         `json:"userId"`
	GameID    string         `json:"gameId"`
	ChapterID string         `json:"chapterId,omitempty"`
	PageID    string         `json:"pageId,omitempty"`
	Score     int            `json:"score"`
	Details   map[string]any `json:"details,omitempty"`
}

// QueryFilter defines criteria for querying events.
type QueryFilter struct {
	GameID    string
	SessionID string
	UserID    string
	Type      EventType
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// Config configures the event log.
type Config struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays int  `yaml:"retention_days"`
}

// SlogLogger writes events to slog. Query returns nothing.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a logger writing to l, or slog.Default if l is nil.
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{logger: l}
}

// Log implements Recorder.
func (s *SlogLogger) Log(ctx context.Context, e Event) error {
	s.logger.InfoContext(ctx, "session event",
		"event_id", e.ID,
		"type", string(e.Type),
		"session_id", e.SessionID,
		"user_id", e.UserID,
		"game_id", e.GameID,
		"page_id", e.PageID,
		"score", e.Score,
	)
	return nil
}

// Query implements Logger.
func (*SlogLogger) Query(context.Context, QueryFilter) ([]Event, error) { return []Event{}, nil }

// Close implements Logger.
func (*SlogLogger) Close() error { return nil }

// Fanout sends every event to each recorder and joins their errors.
type Fanout []Recorder

// Log implements Recorder.
func (f Fanout) Log(ctx context.Context, e Event) error {
	var errs []error
	for _, r := range f {
		if err := r.Log(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Logger   = (*SlogLogger)(nil)
	_ Recorder = Fanout(nil)
)
