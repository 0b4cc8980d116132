package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypointgames/waypoint/pkg/offline"
	"github.com/waypointgames/waypoint/pkg/page"
	"github.com/waypointgames/waypoint/pkg/session"
)

const (
	testToken = "tok-123"
	testGame  = "game-1"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", WithToken(testToken), WithHTTPClient(srv.Client()))
}

func TestClient_CurrentSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/games/{gameID}/session", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		if r.URL.Query().Get("chapterId") == "missing" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no current session", "code": CodeNotFound})
			return
		}
		writeJSON(w, http.StatusOK, session.Session{
			ID: "s-1", GameID: r.PathValue("gameID"), ChapterID: r.URL.Query().Get("chapterId"),
			Status: session.StatusActive, CurrentPageID: "p2",
		})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	s, err := c.CurrentSession(ctx, session.Key{GameID: testGame, ChapterID: "ch 1"})
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "s-1", s.ID)
	assert.Equal(t, testGame, s.GameID)
	assert.Equal(t, "ch 1", s.ChapterID, "query values are escaped")

	s, err = c.CurrentSession(ctx, session.Key{GameID: testGame, ChapterID: "missing"})
	require.NoError(t, err)
	assert.Nil(t, s, "404 is a conclusive none")
}

func TestClient_CurrentSessionServerErrorIsAmbiguous(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/games/{gameID}/session", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream"})
	})
	c := newTestClient(t, mux)

	s, err := c.CurrentSession(context.Background(), session.Key{GameID: testGame})
	require.Error(t, err)
	assert.Nil(t, s)
	assert.True(t, IsTransient(err))
}

func TestClient_CreateSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/games/{gameID}/sessions", func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.ForceNew)
		assert.Equal(t, "p1", req.FirstPageID)
		writeJSON(w, http.StatusCreated, session.Session{ID: "s-2", Status: session.StatusActive, CurrentPageID: req.FirstPageID})
	})
	c := newTestClient(t, mux)

	s, err := c.CreateSession(context.Background(), session.CreateParams{
		Key: session.Key{GameID: testGame}, ForceNew: true, FirstPageID: "p1",
	})
	require.NoError(t, err)
	assert.Equal(t, "s-2", s.ID)
	assert.Equal(t, "p1", s.CurrentPageID)
}

func TestClient_UpdateProgressErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /api/v1/sessions/{sessionID}/progress", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("sessionID") {
		case "done":
			writeJSON(w, http.StatusConflict, map[string]string{"error": "session is completed", "code": CodeSessionCompleted})
		case "old":
			writeJSON(w, http.StatusConflict, map[string]string{"error": "session was superseded", "code": CodeSessionSuperseded})
		case "gone":
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found", "code": CodeNotFound})
		case "bad":
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pageId is required", "code": CodeInvalidRequest})
		default:
			var p session.Progress
			require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
			writeJSON(w, http.StatusOK, session.Session{ID: r.PathValue("sessionID"), Score: p.Score, CurrentPageID: p.PageID})
		}
	})
	c := newTestClient(t, mux)
	ctx := context.Background()
	p := session.Progress{PageID: "p2", Score: 9}

	s, err := c.UpdateProgress(ctx, "s-1", p)
	require.NoError(t, err)
	assert.Equal(t, 9, s.Score)

	_, err = c.UpdateProgress(ctx, "done", p)
	assert.ErrorIs(t, err, session.ErrCompleted)
	assert.False(t, IsTransient(err))

	_, err = c.UpdateProgress(ctx, "old", p)
	assert.ErrorIs(t, err, session.ErrSuperseded)

	_, err = c.UpdateProgress(ctx, "gone", p)
	assert.ErrorIs(t, err, session.ErrNotFound)

	_, err = c.UpdateProgress(ctx, "bad", p)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, "pageId is required", se.Message)
	assert.False(t, IsTransient(err))
}

func TestClient_ApplyUpdate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /api/v1/sessions/{sessionID}/progress", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("sessionID") {
		case "done":
			writeJSON(w, http.StatusConflict, map[string]string{"code": CodeSessionCompleted})
		case "down":
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "maintenance"})
		case "invalid":
			writeJSON(w, http.StatusBadRequest, map[string]string{"code": CodeInvalidRequest})
		case "unprocessable":
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "bad state"})
		case "expired":
			writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "unauthorized"})
		default:
			writeJSON(w, http.StatusOK, session.Session{ID: r.PathValue("sessionID")})
		}
	})
	c := newTestClient(t, mux)
	ctx := context.Background()
	u := func(id string) offline.Update {
		return offline.NewUpdate(id, session.Progress{PageID: "p1"}, time.Now())
	}

	require.NoError(t, c.ApplyUpdate(ctx, u("s-1")))
	assert.ErrorIs(t, c.ApplyUpdate(ctx, u("done")), offline.ErrRejected)
	assert.ErrorIs(t, c.ApplyUpdate(ctx, u("invalid")), offline.ErrRejected)
	assert.ErrorIs(t, c.ApplyUpdate(ctx, u("unprocessable")), offline.ErrRejected)

	err := c.ApplyUpdate(ctx, u("down"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, offline.ErrRejected, "outages keep the update queued")

	err = c.ApplyUpdate(ctx, u("expired"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, offline.ErrRejected, "a new token can send it")
}

func TestClient_DrainPastInvalidUpdate(t *testing.T) {
	var sent []string
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /api/v1/sessions/{sessionID}/progress", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("sessionID")
		sent = append(sent, id)
		if id == "s-bad" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"code": CodeInvalidRequest, "error": "validation failed"})
			return
		}
		writeJSON(w, http.StatusOK, session.Session{ID: id})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	q := offline.NewQueue(offline.NewMemoryBackend())
	require.NoError(t, q.Enqueue(ctx, offline.NewUpdate("s-bad", session.Progress{PageID: "p1"}, time.Unix(100, 0))))
	require.NoError(t, q.Enqueue(ctx, offline.NewUpdate("s-good", session.Progress{PageID: "p2"}, time.Unix(101, 0))))

	applied, err := q.Drain(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, []string{"s-bad", "s-good"}, sent)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClient_Pages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/games/{gameID}/pages", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery, "empty chapter is omitted")
		writeJSON(w, http.StatusOK, pagesResponse{Pages: []page.Page{
			{ID: "p1", GameID: r.PathValue("gameID"), Type: page.TypeTextCard, SortOrder: 1},
		}})
	})
	mux.HandleFunc("POST /api/v1/games/{gameID}/pages/batch", func(w http.ResponseWriter, r *http.Request) {
		var req batchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Pages, 1)
		writeJSON(w, http.StatusCreated, batchResponse{
			Pages: []page.Page{{ID: "real-1", GameID: testGame, Type: req.Pages[0].Type}},
			IDMap: map[string]string{req.Pages[0].ID: "real-1"},
		})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	pages, err := c.Pages(ctx, testGame, "")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, testGame, pages[0].GameID)

	created, idMap, err := c.CreatePages(ctx, testGame, []page.Page{{ID: "temp-1", Type: page.TypeLock}})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"temp-1": "real-1"}, idMap)
	assert.Equal(t, "real-1", created[0].ID)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(context.Canceled))
	assert.True(t, IsTransient(errors.New("dial tcp: connection refused")))
	assert.True(t, IsTransient(&StatusError{StatusCode: http.StatusInternalServerError}))
	assert.True(t, IsTransient(&StatusError{StatusCode: http.StatusTooManyRequests}))
	assert.False(t, IsTransient(&StatusError{StatusCode: http.StatusUnauthorized}))
}

func TestClient_Unreachable(t *testing.T) {
	c := New("http://127.0.0.1:1")
	_, err := c.CurrentSession(context.Background(), session.Key{GameID: testGame})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}
