package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchBody = `{
  "loadType": "search",
  "data": [
    {"encoded": "QAAA1", "info": {"identifier": "a1", "title": "First", "author": "Band", "length": 61000, "sourceName": "youtube"}, "pluginInfo": {}},
    {"encoded": "QAAA2", "info": {"identifier": "a2", "title": "Second", "author": "Band", "length": 3725000, "sourceName": "youtube"}, "pluginInfo": {}}
  ]
}`

const playlistBody = `{
  "loadType": "playlist",
  "data": {
    "info": {"name": "Mix", "selectedTrack": 1},
    "pluginInfo": {"author": "someone", "totalTracks": 2},
    "tracks": [
      {"encoded": "QAAA1", "info": {"identifier": "a1", "title": "First", "length": 1000}},
      {"encoded": "QAAA2", "info": {"identifier": "a2", "title": "Second", "length": 2000}}
    ]
  }
}`

func TestParseLoadResult_Search(t *testing.T) {
	res, err := ParseLoadResult([]byte(searchBody))
	require.NoError(t, err)

	assert.Equal(t, LoadSearch, res.Type)
	require.Len(t, res.Tracks, 2)
	rep, ok := res.Representative()
	require.True(t, ok)
	assert.Equal(t, "a1", rep.Identifier())
	assert.Equal(t, "First", res.Name())
	assert.Equal(t, int64(61000), res.Duration())
	assert.NoError(t, res.Err())
}

func TestParseLoadResult_PlaylistSelected(t *testing.T) {
	res, err := ParseLoadResult([]byte(playlistBody))
	require.NoError(t, err)

	sel, ok := res.Selected()
	require.True(t, ok)
	assert.Equal(t, "a2", sel.Identifier())
	assert.Equal(t, "Second", res.Name())
	assert.Equal(t, int64(2000), res.Duration())
	assert.Equal(t, "someone", res.PluginInfo.Author)
}

func TestParseLoadResult_PlaylistWhole(t *testing.T) {
	body := `{"loadType":"playlist","data":{"info":{"name":"Mix","selectedTrack":-1},"pluginInfo":{},"tracks":[
	  {"encoded":"x","info":{"identifier":"a","length":1000}},
	  {"encoded":"y","info":{"identifier":"b","length":2500}}]}}`
	res, err := ParseLoadResult([]byte(body))
	require.NoError(t, err)

	_, ok := res.Selected()
	assert.False(t, ok)
	assert.Equal(t, "Mix", res.Name())
	assert.Equal(t, int64(3500), res.Duration())
}

func TestParseLoadResult_ErrorAndEmpty(t *testing.T) {
	res, err := ParseLoadResult([]byte(`{"loadType":"error","data":{"message":"boom","severity":"common","cause":"x"}}`))
	require.NoError(t, err)
	assert.EqualError(t, res.Err(), "load failed (common): boom")

	res, err = ParseLoadResult([]byte(`{"loadType":"empty","data":{}}`))
	require.NoError(t, err)
	assert.True(t, res.Empty())
	_, ok := res.Representative()
	assert.False(t, ok)

	_, err = ParseLoadResult([]byte(`{"loadType":"weird"}`))
	assert.Error(t, err)
}

func TestTrackEqualityAndFormatting(t *testing.T) {
	a := Track{Encoded: "one", Info: Info{Identifier: "same", Length: 61000}}
	b := Track{Encoded: "two", Info: Info{Identifier: "same"}}
	c := Track{Encoded: "one", Info: Info{Identifier: "other"}}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Equal(t, 1, IndexOf([]Track{c, b}, a))
	assert.Equal(t, -1, IndexOf([]Track{c}, a))
	assert.Equal(t, "1:01", a.Timestamp())
	assert.Equal(t, "1:02:05", FormatMillis(3725000))
	assert.Equal(t, []string{"one", "two"}, Encoded([]Track{a, b}))
}

func TestDecode(t *testing.T) {
	tr, err := Decode([]byte(`{"encoded":"abc","info":{"identifier":"id1","title":"T","isStream":true}}`))
	require.NoError(t, err)
	assert.Equal(t, "id1", tr.Identifier())
	assert.True(t, tr.IsStream())

	_, err = Decode([]byte(`{"info":{}}`))
	assert.Error(t, err)
}
