package audit

import (
	"context"
	"slices"
	"time"
)

// MetricsFilter scopes an aggregate query to one game and an optional
// time window.
type MetricsFilter struct {
	GameID    string
	StartTime *time.Time
	EndTime   *time.Time
}

// Summary holds aggregate play statistics for a game.
type Summary struct {
	Started        int     `json:"started"`
	Completed      int     `json:"completed"`
	Replays        int     `json:"replays"`
	UniquePlayers  int     `json:"unique_players"`
	AvgFinalScore  float64 `json:"avg_final_score"`
	CompletionRate float64 `json:"completion_rate"`
}

// FunnelStep is the number of distinct sessions that reached a page.
type FunnelStep struct {
	PageID   string `json:"page_id"`
	Sessions int    `json:"sessions"`
}

// MetricsQuerier aggregates the event log.
type MetricsQuerier interface {
	Summary(ctx context.Context, filter MetricsFilter) (*Summary, error)
	Funnel(ctx context.Context, filter MetricsFilter) ([]FunnelStep, error)
}

// Summary implements MetricsQuerier.
func (m *MemoryLogger) Summary(_ context.Context, f MetricsFilter) (*Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sum Summary
	players := map[string]struct{}{}
	totalScore := 0
	for _, e := range m.events {
		if !f.queryFilter().matches(e) {
			continue
		}
		switch e.Type {
		case EventTypeCreated:
			sum.Started++
			players[e.UserID] = struct{}{}
		case EventTypeCompleted:
			sum.Completed++
			totalScore += e.Score
		case EventTypeSuperseded:
			sum.Replays++
		}
	}
	sum.UniquePlayers = len(players)
	sum.finish(totalScore)
	return &sum, nil
}

// Funnel implements MetricsQuerier. Steps are ordered by session count,
// most reached first.
func (m *MemoryLogger) Funnel(_ context.Context, f MetricsFilter) ([]FunnelStep, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reached := map[string]map[string]struct{}{}
	for _, e := range m.events {
		if e.PageID == "" || !f.queryFilter().matches(e) {
			continue
		}
		if reached[e.PageID] == nil {
			reached[e.PageID] = map[string]struct{}{}
		}
		reached[e.PageID][e.SessionID] = struct{}{}
	}

	steps := make([]FunnelStep, 0, len(reached))
	for pageID, sessions := range reached {
		steps = append(steps, FunnelStep{PageID: pageID, Sessions: len(sessions)})
	}
	slices.SortFunc(steps, func(a, b FunnelStep) int {
		if a.Sessions != b.Sessions {
			return b.Sessions - a.Sessions
		}
		switch {
		case a.PageID < b.PageID:
			return -1
		case a.PageID > b.PageID:
			return 1
		}
		return 0
	})
	return steps, nil
}

func (f MetricsFilter) queryFilter() QueryFilter {
	return QueryFilter{GameID: f.GameID, StartTime: f.StartTime, EndTime: f.EndTime}
}

// finish derives the average and rate fields from the counts.
func (s *Summary) finish(totalScore int) {
	if s.Completed > 0 {
		s.AvgFinalScore = float64(totalScore) / float64(s.Completed)
	}
	if s.Started > 0 {
		s.CompletionRate = float64(s.Completed) / float64(s.Started)
	}
}

var _ MetricsQuerier = (*MemoryLogger)(nil)
