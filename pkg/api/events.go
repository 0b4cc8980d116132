package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/waypointgames/waypoint/pkg/audit"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

type eventListResponse struct {
	Data    []audit.Event `json:"data"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
}

type statsResponse struct {
	Summary *audit.Summary     `json:"summary"`
	Funnel  []audit.FunnelStep `json:"funnel"`
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.QueryFilter{
		GameID:    r.PathValue("gameID"),
		SessionID: q.Get("session_id"),
		UserID:    q.Get("user_id"),
		Type:      audit.EventType(q.Get("type")),
		StartTime: parseTimeParam(q, "start_time"),
		EndTime:   parseTimeParam(q, "end_time"),
	}

	filter.Limit = parseLimit(q)
	if filter.Limit <= 0 {
		filter.Limit = defaultEventLimit
	}
	filter.Limit = min(filter.Limit, maxEventLimit)
	filter.Offset = parsePageOffset(q, filter.Limit)

	events, err := s.deps.Events.Query(r.Context(), filter)
	if err != nil {
		slog.Error("querying session events", "game_id", filter.GameID, "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to query events")
		return
	}
	if events == nil {
		events = []audit.Event{}
	}

	writeJSON(w, http.StatusOK, eventListResponse{
		Data:    events,
		Page:    filter.Offset/filter.Limit + 1,
		PerPage: filter.Limit,
	})
}

func getStats(querier audit.MetricsQuerier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStats(w, r, querier)
	}
}

func writeStats(w http.ResponseWriter, r *http.Request, querier audit.MetricsQuerier) {
	q := r.URL.Query()
	filter := audit.MetricsFilter{
		GameID:    r.PathValue("gameID"),
		StartTime: parseTimeParam(q, "start_time"),
		EndTime:   parseTimeParam(q, "end_time"),
	}

	summary, err := querier.Summary(r.Context(), filter)
	if err != nil {
		slog.Error("summarizing session events", "game_id", filter.GameID, "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to compute stats")
		return
	}
	funnel, err := querier.Funnel(r.Context(), filter)
	if err != nil {
		slog.Error("computing page funnel", "game_id", filter.GameID, "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to compute stats")
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{Summary: summary, Funnel: funnel})
}

func (s *Server) watch(w http.ResponseWriter, r *http.Request) {
	s.deps.Hub.ServeWatch(w, r, r.PathValue("gameID"))
}

// parseTimeParam parses an RFC 3339 query parameter. Missing or malformed
// values leave the bound open.
func parseTimeParam(q url.Values, key string) *time.Time {
	v := q.Get(key)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}

// parsePageOffset parses the page query parameter and computes offset using the given effective limit.
func parsePageOffset(q url.Values, effectiveLimit int) int {
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return (n - 1) * effectiveLimit
		}
	}
	return 0
}

// parseLimit parses the per_page query parameter into a limit value.
func parseLimit(q url.Values) int {
	if v := q.Get("per_page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
