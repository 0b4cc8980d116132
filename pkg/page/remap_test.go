package page

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemapReferences_ButtonScenario(t *testing.T) {
	original := `{"buttons":[{"text":"A","nextPageId":"temp-100"}]}`
	pages := []Page{{ID: "temp-1", GameID: testGameID, Type: TypeButton, Config: json.RawMessage(original)}}
	idMap := map[string]string{"temp-100": "real-100", "temp-1": "real-1"}

	out, err := RemapReferences(pages, idMap)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, "real-1", out[0].ID)
	assert.JSONEq(t, `{"buttons":[{"text":"A","nextPageId":"real-100"}]}`, string(out[0].Config))

	assert.Equal(t, "temp-1", pages[0].ID, "input page untouched")
	assert.Equal(t, original, string(pages[0].Config), "input config untouched")
}

func TestRemapReferences_Router(t *testing.T) {
	raw := `{
		"routes":[
			{"condition":{"type":"variable","key":"targetPageId","op":"eq","value":"temp-2"},"targetPageId":"temp-2"},
			{"condition":{"type":"score","op":"gte","value":10},"targetPageId":"existing"}
		],
		"defaultTargetPageId":"temp-3"
	}`
	pages := []Page{{ID: "r", Type: TypeFlowRouter, Config: json.RawMessage(raw)}}

	out, err := RemapReferences(pages, map[string]string{"temp-2": "real-2", "temp-3": "real-3"})
	require.NoError(t, err)

	rc, err := out[0].Router()
	require.NoError(t, err)
	assert.Equal(t, []string{"real-2", "existing", "real-3"}, rc.PageRefs())
	assert.Equal(t, "temp-2", rc.Routes[0].Condition.Value, "condition values are not page refs")
	assert.Equal(t, "targetPageId", rc.Routes[0].Condition.Key)
}

func TestRemapReferences_PreservesUnknownKeysAndNumbers(t *testing.T) {
	raw := `{"prompt":"Pick","theme":{"color":"red"},"buttons":[{"text":"A","nextPageId":"temp-9","reward":{"points":12345678901234}}]}`
	pages := []Page{{ID: "b", Type: TypeButton, Config: json.RawMessage(raw)}}

	out, err := RemapReferences(pages, map[string]string{"temp-9": "real-9"})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"prompt":"Pick","theme":{"color":"red"},"buttons":[{"text":"A","nextPageId":"real-9","reward":{"points":12345678901234}}]}`,
		string(out[0].Config))
}

func TestRemapReferences_OtherTypesCopied(t *testing.T) {
	raw := json.RawMessage(`{"body":"nextPageId temp-1"}`)
	pages := []Page{{ID: "t", Type: TypeTextCard, Config: raw}}

	out, err := RemapReferences(pages, map[string]string{"temp-1": "real-1"})
	require.NoError(t, err)
	assert.Equal(t, string(raw), string(out[0].Config))

	out[0].Config[0] = ' '
	assert.Equal(t, byte('{'), raw[0], "output does not alias input")
}

func TestRemapReferences_CorruptConfig(t *testing.T) {
	pages := []Page{{ID: "b", Type: TypeButton, Config: json.RawMessage(`{"buttons":`)}}
	_, err := RemapReferences(pages, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remapping page b")
}

func TestReferences(t *testing.T) {
	btn := Page{ID: "b", Type: TypeButton, Config: json.RawMessage(
		`{"buttons":[{"text":"A","nextPageId":"p2"},{"text":"B"},{"text":"C","nextPageId":"_end"}]}`)}
	refs, err := References(btn)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, refs)

	router := Page{ID: "r", Type: TypeFlowRouter, Config: json.RawMessage(
		`{"routes":[{"condition":{"type":"score","op":"gt","value":1},"targetPageId":"p3"}],"defaultTargetPageId":"_end"}`)}
	refs, err = References(router)
	require.NoError(t, err)
	assert.Equal(t, []string{"p3"}, refs)

	refs, err = References(Page{ID: "t", Type: TypeTextCard})
	require.NoError(t, err)
	assert.Nil(t, refs)
}
