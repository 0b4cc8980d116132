package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypointgames/waypoint/pkg/session"
)

const (
	pgTestSessID = "sess-123"
	pgTestNewID  = "sess-456"
	pgTestUser   = "user-abc"
	pgTestGame   = "game-1"
)

var (
	pgTestNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	pgTestKey = session.Key{UserID: pgTestUser, GameID: pgTestGame}
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := New(db)
	store.now = func() time.Time { return pgTestNow }
	store.newID = func() string { return pgTestNewID }
	return store, mock
}

func sessionRow(id string, status session.Status) *sqlmock.Rows {
	return sqlmock.NewRows(sessionColumns).AddRow(
		id, pgTestUser, pgTestGame, "", string(status), 15,
		[]byte(`["map","key"]`), []byte(`{"door":"open"}`), "page-3",
		pgTestNow.Add(-time.Hour), pgTestNow.Add(-time.Minute), nil,
	)
}

func TestGetCurrent_Found(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT .+ FROM game_sessions WHERE .+ status IN").
		WithArgs("", pgTestGame, pgTestUser, "active", "completed").
		WillReturnRows(sessionRow(pgTestSessID, session.StatusActive))

	got, err := store.GetCurrent(context.Background(), pgTestKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, pgTestSessID, got.ID)
	assert.Equal(t, session.StatusActive, got.Status)
	assert.Equal(t, 15, got.Score)
	assert.Equal(t, []string{"map", "key"}, got.Inventory)
	assert.Equal(t, "open", got.Variables["door"])
	assert.Equal(t, "page-3", got.CurrentPageID)
	assert.Nil(t, got.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCurrent_None(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT .+ FROM game_sessions").
		WillReturnRows(sqlmock.NewRows(sessionColumns))

	got, err := store.GetCurrent(context.Background(), pgTestKey)
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCurrent_DBError(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT .+ FROM game_sessions").
		WillReturnError(errors.New("db unavailable"))

	got, err := store.GetCurrent(context.Background(), pgTestKey)
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Contains(t, err.Error(), "scanning session")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_CompletedSession(t *testing.T) {
	store, mock := newTestStore(t)

	completedAt := pgTestNow.Add(-time.Minute)
	rows := sqlmock.NewRows(sessionColumns).AddRow(
		pgTestSessID, pgTestUser, pgTestGame, "ch-1", "completed", 90,
		[]byte(`[]`), []byte(`{}`), "page-9",
		pgTestNow.Add(-time.Hour), completedAt, completedAt,
	)
	mock.ExpectQuery("SELECT .+ FROM game_sessions WHERE id = ").
		WithArgs(pgTestSessID).
		WillReturnRows(rows)

	got, err := store.Get(context.Background(), pgTestSessID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, session.StatusCompleted, got.Status)
	assert.Equal(t, "ch-1", got.ChapterID)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, completedAt.Equal(*got.CompletedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func expectInsert(mock sqlmock.Sqlmock) *sqlmock.ExpectedExec {
	return mock.ExpectExec("INSERT INTO game_sessions").WithArgs(
		pgTestNewID, pgTestUser, pgTestGame, "", "active", 0,
		[]byte("[]"), []byte("{}"), "page-1", pgTestNow, pgTestNow,
	)
}

func TestCreate_New(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM game_sessions .+ FOR UPDATE").
		WithArgs("", pgTestGame, pgTestUser, "active", "completed").
		WillReturnRows(sqlmock.NewRows(sessionColumns))
	expectInsert(mock).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := store.Create(context.Background(), session.CreateParams{Key: pgTestKey, FirstPageID: "page-1"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Nil(t, res.Superseded)
	assert.Equal(t, pgTestNewID, res.Session.ID)
	assert.Equal(t, session.StatusActive, res.Session.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_ReturnsCurrentWithoutForce(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM game_sessions .+ FOR UPDATE").
		WillReturnRows(sessionRow(pgTestSessID, session.StatusActive))
	mock.ExpectRollback()

	res, err := store.Create(context.Background(), session.CreateParams{Key: pgTestKey, FirstPageID: "page-1"})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, pgTestSessID, res.Session.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_ForceNewSupersedes(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM game_sessions .+ FOR UPDATE").
		WillReturnRows(sessionRow(pgTestSessID, session.StatusCompleted))
	mock.ExpectExec("UPDATE game_sessions SET status").
		WithArgs(pgTestSessID, "superseded", pgTestNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectInsert(mock).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := store.Create(context.Background(), session.CreateParams{
		Key: pgTestKey, ForceNew: true, FirstPageID: "page-1",
	})
	require.NoError(t, err)
	assert.True(t, res.Created)
	require.NotNil(t, res.Superseded)
	assert.Equal(t, pgTestSessID, res.Superseded.ID)
	assert.Equal(t, session.StatusSuperseded, res.Superseded.Status)
	assert.Equal(t, pgTestNewID, res.Session.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_RetriesAfterLosingRace(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM game_sessions .+ FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(sessionColumns))
	expectInsert(mock).WillReturnError(&pq.Error{Code: uniqueViolation})
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM game_sessions .+ FOR UPDATE").
		WillReturnRows(sessionRow(pgTestSessID, session.StatusActive))
	mock.ExpectRollback()

	res, err := store.Create(context.Background(), session.CreateParams{Key: pgTestKey, FirstPageID: "page-1"})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, pgTestSessID, res.Session.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_InsertError(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM game_sessions .+ FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(sessionColumns))
	expectInsert(mock).WillReturnError(errors.New("connection refused"))
	mock.ExpectRollback()

	_, err := store.Create(context.Background(), session.CreateParams{Key: pgTestKey, FirstPageID: "page-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inserting session")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProgress_Success(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM game_sessions WHERE id = .+ FOR UPDATE").
		WithArgs(pgTestSessID).
		WillReturnRows(sessionRow(pgTestSessID, session.StatusActive))
	mock.ExpectExec("UPDATE game_sessions SET status = \\$2, score = \\$3").
		WithArgs(pgTestSessID, "completed", 40, []byte(`["map","key","gem"]`), []byte(`{"door":"closed"}`),
			"page-9", pgTestNow, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := store.UpdateProgress(context.Background(), pgTestSessID, pgTestUser, session.Progress{
		PageID:    "page-9",
		Score:     40,
		Inventory: []string{"map", "key", "gem"},
		Variables: map[string]any{"door": "closed"},
		Completed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, got.Status)
	assert.Equal(t, 40, got.Score)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, pgTestNow, *got.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProgress_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		rows   *sqlmock.Rows
		userID string
		want   error
	}{
		{"missing", sqlmock.NewRows(sessionColumns), pgTestUser, session.ErrNotFound},
		{"other user", sessionRow(pgTestSessID, session.StatusActive), "intruder", session.ErrNotFound},
		{"completed", sessionRow(pgTestSessID, session.StatusCompleted), pgTestUser, session.ErrCompleted},
		{"superseded", sessionRow(pgTestSessID, session.StatusSuperseded), pgTestUser, session.ErrSuperseded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newTestStore(t)
			mock.ExpectBegin()
			mock.ExpectQuery("SELECT .+ FROM game_sessions").WillReturnRows(tt.rows)
			mock.ExpectRollback()

			_, err := store.UpdateProgress(context.Background(), pgTestSessID, tt.userID, session.Progress{PageID: "p"})
			assert.ErrorIs(t, err, tt.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPurgeSuperseded(t *testing.T) {
	store, mock := newTestStore(t)
	cutoff := pgTestNow.Add(-24 * time.Hour)

	mock.ExpectExec("DELETE FROM game_sessions WHERE status").
		WithArgs("superseded", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.PurgeSuperseded(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeSuperseded_DBError(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("DELETE FROM game_sessions").WillReturnError(errors.New("disk full"))

	_, err := store.PurgeSuperseded(context.Background(), pgTestNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "purging superseded sessions")
}

func TestCloseWithoutCleanup(t *testing.T) {
	store, _ := newTestStore(t)
	assert.NoError(t, store.Close())
}
