package api

import (
	"log/slog"
	"net/http"

	"github.com/waypointgames/waypoint/pkg/session"
)

type createSessionRequest struct {
	ChapterID   string `json:"chapterId" validate:"max=128"`
	ForceNew    bool   `json:"forceNew"`
	FirstPageID string `json:"firstPageId" validate:"max=128"`
}

type progressRequest struct {
	PageID    string         `json:"pageId" validate:"required,max=128,page_ref"`
	Score     int            `json:"score"`
	Inventory []string       `json:"inventory" validate:"dive,required,max=128"`
	Variables map[string]any `json:"variables"`
	Completed bool           `json:"completed"`
}

func (s *Server) getCurrentSession(w http.ResponseWriter, r *http.Request) {
	key := session.Key{
		UserID:    userID(r),
		GameID:    r.PathValue("gameID"),
		ChapterID: r.URL.Query().Get("chapterId"),
	}
	sess, err := s.deps.Sessions.GetCurrent(r.Context(), key)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "no current session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// createSession starts a session, or returns the current one when it
// exists and forceNew is false. A missing firstPageId starts at the first
// page of the game or chapter.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	gameID := r.PathValue("gameID")
	firstPageID := req.FirstPageID
	if firstPageID == "" {
		pages, err := s.deps.Catalog.Pages(r.Context(), gameID, req.ChapterID)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		if len(pages) > 0 {
			firstPageID = pages[0].ID
		}
	}

	res, err := s.deps.Sessions.Create(r.Context(), session.CreateParams{
		Key:         session.Key{UserID: userID(r), GameID: gameID, ChapterID: req.ChapterID},
		ForceNew:    req.ForceNew,
		FirstPageID: firstPageID,
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	s.deps.Metrics.sessionCreated(res)
	if !res.Created {
		writeJSON(w, http.StatusOK, res.Session)
		return
	}
	if res.Superseded != nil {
		slog.Info("session replay started",
			"session_id", res.Session.ID, "superseded_id", res.Superseded.ID, "game_id", gameID)
	}
	writeJSON(w, http.StatusCreated, res.Session)
}

func (s *Server) updateProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sess, err := s.deps.Sessions.UpdateProgress(r.Context(), r.PathValue("sessionID"), userID(r), session.Progress{
		PageID:    req.PageID,
		Score:     req.Score,
		Inventory: req.Inventory,
		Variables: req.Variables,
		Completed: req.Completed,
	})
	s.deps.Metrics.progressWritten(err, req.Completed)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
