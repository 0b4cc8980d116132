package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/waypointgames/waypoint/pkg/audit"
)

// metricsWhere scopes an aggregate query to the filter's game and window.
func metricsWhere(qb sq.SelectBuilder, f audit.MetricsFilter) sq.SelectBuilder {
	return applyEventFilter(qb, audit.QueryFilter{
		GameID:    f.GameID,
		StartTime: f.StartTime,
		EndTime:   f.EndTime,
	})
}

// Summary returns aggregate play statistics for a game.
func (s *Store) Summary(ctx context.Context, filter audit.MetricsFilter) (*audit.Summary, error) {
	qb := metricsWhere(psq.Select(
		"COUNT(*) FILTER (WHERE event_type = 'session_created') AS started",
		"COUNT(*) FILTER (WHERE event_type = 'session_completed') AS completed",
		"COUNT(*) FILTER (WHERE event_type = 'session_superseded') AS replays",
		"COUNT(DISTINCT user_id) FILTER (WHERE event_type = 'session_created') AS unique_players",
		"COALESCE(AVG(score) FILTER (WHERE event_type = 'session_completed'), 0) AS avg_final_score",
	).From("session_events"), filter)

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building summary query: %w", err)
	}

	var sum audit.Summary
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&sum.Started,
		&sum.Completed,
		&sum.Replays,
		&sum.UniquePlayers,
		&sum.AvgFinalScore,
	); err != nil {
		return nil, fmt.Errorf("querying summary: %w", err)
	}
	if sum.Started > 0 {
		sum.CompletionRate = float64(sum.Completed) / float64(sum.Started)
	}
	return &sum, nil
}

// Funnel returns how many distinct sessions reached each page, most
// reached first.
func (s *Store) Funnel(ctx context.Context, filter audit.MetricsFilter) ([]audit.FunnelStep, error) {
	qb := metricsWhere(psq.Select(
		"page_id",
		"COUNT(DISTINCT session_id) AS sessions",
	).From("session_events"), filter).
		Where(sq.NotEq{"page_id": ""}).
		GroupBy("page_id").
		OrderBy("sessions DESC", "page_id ASC")

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building funnel query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying funnel: %w", err)
	}
	defer func() { _ = rows.Close() }()

	steps := []audit.FunnelStep{}
	for rows.Next() {
		var step audit.FunnelStep
		if err := rows.Scan(&step.PageID, &step.Sessions); err != nil {
			return nil, fmt.Errorf("scanning funnel row: %w", err)
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating funnel rows: %w", err)
	}
	return steps, nil
}

var _ audit.MetricsQuerier = (*Store)(nil)
