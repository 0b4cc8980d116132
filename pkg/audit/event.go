package audit

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/waypointgames/waypoint/pkg/session"
)

// EventType categorizes session events.
type EventType string

const (
	// EventTypeCreated is a new session.
	EventTypeCreated EventType = "session_created"

	// EventTypeSuperseded is a session replaced by a replay.
	EventTypeSuperseded EventType = "session_superseded"

	// EventTypeProgress is a progress write that did not complete the session.
	EventTypeProgress EventType = "progress"

	// EventTypeCompleted is the progress write that completed the session.
	EventTypeCompleted EventType = "session_completed"
)

// NewEvent creates a new event of the given type.
func NewEvent(t EventType) *Event {
	return &Event{
		ID:        generateEventID(),
		Timestamp: time.Now().UTC(),
		Type:      t,
	}
}

// WithSession copies the session's identity and progress onto the event.
func (e *Event) WithSession(s *session.Session) *Event {
	e.SessionID = s.ID
	e.UserID = s.UserID
	e.GameID = s.GameID
	e.ChapterID = s.ChapterID
	e.PageID = s.CurrentPageID
	e.Score = s.Score
	return e
}

// WithDetails adds free-form details to the event.
func (e *Event) WithDetails(details map[string]any) *Event {
	e.Details = details
	return e
}

// generateEventID generates a unique event ID.
func generateEventID() string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	return base64.RawURLEncoding.EncodeToString(bytes)
}
