package autocomplete

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/calliope/internal/rest"
	"github.com/sonroyaalmerol/calliope/internal/spotify"
	"github.com/sonroyaalmerol/calliope/internal/track"
)

type fakeSearcher struct {
	tracks []track.Track
	err    error
	got    string
}

func (f *fakeSearcher) Search(_ context.Context, provider rest.Provider, query string) (*track.LoadResult, error) {
	f.got = string(provider) + ":" + query
	if f.err != nil {
		return nil, f.err
	}
	return &track.LoadResult{Type: track.LoadSearch, Tracks: f.tracks}, nil
}

type fakeSpotify struct{ hits []spotify.Suggestion }

func (f fakeSpotify) Suggest(_ context.Context, _ string, limit int) ([]spotify.Suggestion, error) {
	if len(f.hits) > limit {
		return f.hits[:limit], nil
	}
	return f.hits, nil
}

func hit(title, uri string) track.Track {
	return track.Track{Encoded: title, Info: track.Info{Identifier: title, Title: title, Author: "Artist", URI: uri}}
}

func TestSuggest_NodeOnly(t *testing.T) {
	node := &fakeSearcher{tracks: []track.Track{
		hit("One", "https://youtu.be/1"),
		hit("Two", ""),
	}}
	got := Suggest(context.Background(), node, nil, rest.YouTube, "  lofi ", 10)
	assert.Equal(t, "ytsearch:lofi", node.got)
	require.Len(t, got, 2)
	assert.Equal(t, "One - Artist", got[0].Name)
	assert.Equal(t, "https://youtu.be/1", got[0].Value)
	assert.Equal(t, "ytsearch:Two", got[1].Value)
}

func TestSuggest_EmptyQuery(t *testing.T) {
	assert.Nil(t, Suggest(context.Background(), &fakeSearcher{}, nil, rest.YouTube, "   ", 10))
}

func TestSuggest_MixesSpotifyAndSurvivesNodeFailure(t *testing.T) {
	sp := fakeSpotify{hits: []spotify.Suggestion{
		{Label: "🎵 A", Value: "spotify:track:a"},
		{Label: "🎵 B", Value: "spotify:track:b"},
		{Label: "🎵 C", Value: "spotify:track:c"},
	}}
	got := Suggest(context.Background(), &fakeSearcher{err: errors.New("down")}, sp, rest.YouTube, "q", 8)
	require.Len(t, got, 2)
	assert.Equal(t, "Spotify: 🎵 A", got[0].Name)
	assert.Equal(t, "spotify:track:b", got[1].Value)
}

func TestSuggest_TruncatesNames(t *testing.T) {
	long := strings.Repeat("x", 300)
	got := Suggest(context.Background(), &fakeSearcher{tracks: []track.Track{hit(long, "")}}, nil, rest.SoundCloud, "q", 5)
	require.Len(t, got, 1)
	assert.LessOrEqual(t, len([]rune(got[0].Name)), maxChoiceLen)
	assert.LessOrEqual(t, len([]rune(got[0].Value.(string))), maxChoiceLen)
}
