package audit

import (
	"context"
	"slices"
	"sync"
)

// MemoryLogger keeps events in memory. It is used by tests and by
// single-node deployments without a database.
type MemoryLogger struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryLogger creates an empty in-memory logger.
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

// Log implements Recorder.
func (m *MemoryLogger) Log(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// Query implements Logger.
func (m *MemoryLogger) Query(_ context.Context, f QueryFilter) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Event, 0, len(m.events))
	for i := len(m.events) - 1; i >= 0; i-- {
		if f.matches(m.events[i]) {
			out = append(out, m.events[i])
		}
	}
	slices.SortStableFunc(out, func(a, b Event) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []Event{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Close implements Logger.
func (*MemoryLogger) Close() error { return nil }

func (f QueryFilter) matches(e Event) bool {
	switch {
	case f.GameID != "" && e.GameID != f.GameID:
		return false
	case f.SessionID != "" && e.SessionID != f.SessionID:
		return false
	case f.UserID != "" && e.UserID != f.UserID:
		return false
	case f.Type != "" && e.Type != f.Type:
		return false
	case f.StartTime != nil && e.Timestamp.Before(*f.StartTime):
		return false
	case f.EndTime != nil && e.Timestamp.After(*f.EndTime):
		return false
	}
	return true
}

var _ Logger = (*MemoryLogger)(nil)
