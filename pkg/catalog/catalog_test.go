package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypointgames/waypoint/pkg/page"
)

const catTestGame = "game-1"

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("real-%d", n)
	}
}

func batch() []page.Page {
	return []page.Page{
		{ID: "temp-1", Type: page.TypeButton, SortOrder: 1, Config: json.RawMessage(
			`{"buttons":[{"text":"Vault","nextPageId":"temp-2"},{"text":"Back","nextPageId":"page-old"}]}`)},
		{ID: "temp-2", Type: page.TypeTextCard, SortOrder: 2, Config: json.RawMessage(`{"body":"Inside"}`)},
	}
}

func TestPrepareBatch(t *testing.T) {
	in := batch()
	out, idMap, err := PrepareBatch(catTestGame, in, []string{"page-old"}, sequentialIDs())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"temp-1": "real-1", "temp-2": "real-2"}, idMap)
	require.Len(t, out, 2)
	assert.Equal(t, "real-1", out[0].ID)
	assert.Equal(t, catTestGame, out[0].GameID)
	assert.JSONEq(t,
		`{"buttons":[{"text":"Vault","nextPageId":"real-2"},{"text":"Back","nextPageId":"page-old"}]}`,
		string(out[0].Config))

	assert.Equal(t, "temp-1", in[0].ID, "input not modified")
	assert.Empty(t, in[0].GameID)
}

func TestPrepareBatch_Errors(t *testing.T) {
	tests := []struct {
		name  string
		pages []page.Page
		want  string
	}{
		{"missing id", []page.Page{{Type: page.TypeTextCard}}, "client id is required"},
		{"duplicate id", []page.Page{{ID: "a", Type: page.TypeTextCard}, {ID: "a", Type: page.TypeTextCard}}, "duplicate client id"},
		{"other game", []page.Page{{ID: "a", GameID: "game-2", Type: page.TypeTextCard}}, "belongs to game"},
		{"bad config", []page.Page{{ID: "a", Type: page.TypeButton, Config: json.RawMessage(`{"buttons":[]}`)}}, "no buttons"},
		{"unknown type", []page.Page{{ID: "a", Type: "minigame"}}, "unknown page type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := PrepareBatch(catTestGame, tt.pages, nil, sequentialIDs())
			require.ErrorIs(t, err, ErrInvalidBatch)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPrepareBatch_DanglingReference(t *testing.T) {
	_, _, err := PrepareBatch(catTestGame, batch(), nil, sequentialIDs())
	assert.ErrorIs(t, err, ErrDanglingReference)
}

func TestMemoryStore_CreateAndList(t *testing.T) {
	store := NewMemoryStore()
	store.newID = sequentialIDs()
	store.Put(page.Page{ID: "page-old", GameID: catTestGame, Type: page.TypeTextCard, SortOrder: 0})
	ctx := context.Background()

	created, idMap, err := store.CreatePages(ctx, catTestGame, batch())
	require.NoError(t, err)
	assert.Len(t, created, 2)
	assert.Equal(t, "real-2", idMap["temp-2"])

	pages, err := store.Pages(ctx, catTestGame, "")
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, []string{"page-old", "real-1", "real-2"}, []string{pages[0].ID, pages[1].ID, pages[2].ID})

	pages[0].Config = json.RawMessage(`{"body":"changed"}`)
	again, err := store.Pages(ctx, catTestGame, "")
	require.NoError(t, err)
	assert.Empty(t, again[0].Config)
}

func TestMemoryStore_ChapterFilterAndEmptyGame(t *testing.T) {
	store := NewMemoryStore()
	store.Put(
		page.Page{ID: "a", GameID: catTestGame, ChapterID: "ch-1", Type: page.TypeTextCard, SortOrder: 2},
		page.Page{ID: "b", GameID: catTestGame, ChapterID: "ch-2", Type: page.TypeTextCard, SortOrder: 1},
	)
	ctx := context.Background()

	pages, err := store.Pages(ctx, catTestGame, "ch-1")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "a", pages[0].ID)

	none, err := store.Pages(ctx, "game-unknown", "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore_FailedBatchWritesNothing(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, _, err := store.CreatePages(ctx, catTestGame, batch())
	require.ErrorIs(t, err, ErrDanglingReference)

	pages, err := store.Pages(ctx, catTestGame, "")
	require.NoError(t, err)
	assert.Empty(t, pages)
}
