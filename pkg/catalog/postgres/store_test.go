package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypointgames/waypoint/pkg/catalog"
	"github.com/waypointgames/waypoint/pkg/page"
)

const pgTestGame = "game-1"

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := New(db)
	ids := []string{"real-1", "real-2"}
	store.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	return store, mock
}

func TestPages(t *testing.T) {
	store, mock := newTestStore(t)

	rows := sqlmock.NewRows(pageColumns).
		AddRow("p1", pgTestGame, "", "text_card", 1, []byte(`{"body":"hi"}`)).
		AddRow("p2", pgTestGame, "", "flow_router", 2, []byte(`{"routes":[]}`))
	mock.ExpectQuery("SELECT .+ FROM pages WHERE game_id = \\$1 ORDER BY sort_order, id").
		WithArgs(pgTestGame).
		WillReturnRows(rows)

	pages, err := store.Pages(context.Background(), pgTestGame, "")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, page.TypeTextCard, pages[0].Type)
	assert.True(t, pages[1].IsRouter())
	assert.JSONEq(t, `{"body":"hi"}`, string(pages[0].Config))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPages_ChapterFilter(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT .+ FROM pages WHERE game_id = \\$1 AND chapter_id = \\$2").
		WithArgs(pgTestGame, "ch-1").
		WillReturnRows(sqlmock.NewRows(pageColumns))

	pages, err := store.Pages(context.Background(), pgTestGame, "ch-1")
	require.NoError(t, err)
	assert.Empty(t, pages)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPages_DBError(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT .+ FROM pages").WillReturnError(errors.New("db unavailable"))

	_, err := store.Pages(context.Background(), pgTestGame, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "querying pages")
}

func TestCreatePages(t *testing.T) {
	store, mock := newTestStore(t)

	in := []page.Page{
		{ID: "temp-1", Type: page.TypeButton, SortOrder: 1, Config: json.RawMessage(`{"buttons":[{"text":"Go","nextPageId":"temp-2"}]}`)},
		{ID: "temp-2", Type: page.TypeLock, SortOrder: 2},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM pages WHERE game_id").
		WithArgs(pgTestGame).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("page-old"))
	mock.ExpectExec("INSERT INTO pages \\(id,game_id,chapter_id,page_type,sort_order,config\\) VALUES").
		WithArgs(
			"real-1", pgTestGame, "", "button", 1, []byte(`{"buttons":[{"nextPageId":"real-2","text":"Go"}]}`),
			"real-2", pgTestGame, "", "lock", 2, []byte("{}"),
		).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	created, idMap, err := store.CreatePages(context.Background(), pgTestGame, in)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"temp-1": "real-1", "temp-2": "real-2"}, idMap)
	require.Len(t, created, 2)
	assert.Equal(t, "real-1", created[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePages_DanglingReferenceRollsBack(t *testing.T) {
	store, mock := newTestStore(t)

	in := []page.Page{
		{ID: "temp-1", Type: page.TypeButton, Config: json.RawMessage(`{"buttons":[{"text":"Go","nextPageId":"nowhere"}]}`)},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM pages").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, _, err := store.CreatePages(context.Background(), pgTestGame, in)
	assert.ErrorIs(t, err, catalog.ErrDanglingReference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePages_InsertError(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM pages").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO pages").WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	_, _, err := store.CreatePages(context.Background(), pgTestGame, []page.Page{{ID: "t", Type: page.TypeTextCard}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inserting pages")
	assert.NoError(t, mock.ExpectationsWereMet())
}
