package ui

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/calliope/internal/player"
	"github.com/sonroyaalmerol/calliope/internal/track"
)

func tr(id string, ms int64) track.Track {
	return track.Track{Encoded: id, Info: track.Info{
		Identifier: id, Title: "Song " + id, Author: "Artist", Length: ms,
		URI: "https://example.com/" + id, SourceName: "youtube",
	}}
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "", ProgressBar(0, 0.5))
	assert.Equal(t, "🔘▬▬▬▬", ProgressBar(5, -1))
	assert.Equal(t, "▬▬🔘▬▬", ProgressBar(5, 0.5))
	assert.Equal(t, "▬▬▬▬🔘", ProgressBar(5, 2))
	assert.Equal(t, 10, utf8.RuneCountInString(ProgressBar(10, 0.3)))
}

func TestBuildPlayingEmbed(t *testing.T) {
	e := BuildPlayingEmbed(player.State{})
	assert.Equal(t, "Nothing Playing", e.Title)

	cur := tr("a", 200_000)
	e = BuildPlayingEmbed(player.State{Track: &cur, Playing: true, Position: 62_000, Volume: 80, Loop: player.LoopQueue})
	assert.Equal(t, "Now Playing", e.Title)
	assert.Contains(t, e.Description, "[Song a](https://example.com/a)")
	assert.Contains(t, e.Description, "`[ 1:02/3:20 ]`")
	assert.Contains(t, e.Description, "🔁")
	assert.Contains(t, e.Footer.Text, "volume 80%")

	e = BuildPlayingEmbed(player.State{Track: &cur, Paused: true})
	assert.Equal(t, "Paused", e.Title)
}

func TestBuildQueueEmbed(t *testing.T) {
	_, err := BuildQueueEmbed(player.State{}, nil, 1, 10)
	assert.ErrorIs(t, err, ErrQueueEmpty)

	cur := tr("cur", 1000)
	var pending []track.Track
	for i := 0; i < 12; i++ {
		pending = append(pending, tr(fmt.Sprint(i), 60_000))
	}
	st := player.State{Track: &cur, Playing: true}

	e, err := BuildQueueEmbed(st, pending, 2, 5)
	require.NoError(t, err)
	assert.Contains(t, e.Description, "`6.` [Song 5]")
	assert.Contains(t, e.Description, "`10.` [Song 9]")
	assert.NotContains(t, e.Description, "`11.`")
	assert.Equal(t, "12 songs", e.Fields[0].Value)
	assert.Equal(t, "12:00", e.Fields[1].Value)
	assert.Equal(t, "2 out of 3", e.Fields[2].Value)

	_, err = BuildQueueEmbed(st, pending, 4, 5)
	assert.ErrorIs(t, err, ErrPageRange)

	e, err = BuildQueueEmbed(st, nil, 1, 5)
	require.NoError(t, err)
	assert.False(t, strings.Contains(e.Description, "Up next"))
	assert.Equal(t, "-", e.Fields[0].Value)
}

func TestBuildTrackAddedEmbed(t *testing.T) {
	one := &track.LoadResult{Type: track.LoadTrack, Tracks: []track.Track{tr("a", 61_000)}}
	e := BuildTrackAddedEmbed(one, 1, true)
	assert.Equal(t, "Playing", e.Title)
	assert.Contains(t, e.Description, "`[ 1:01 ]`")

	pl := &track.LoadResult{
		Type:     track.LoadPlaylist,
		Tracks:   []track.Track{tr("a", 60_000), tr("b", 60_000)},
		Playlist: &track.PlaylistInfo{Name: "Mix", SelectedTrack: -1},
	}
	e = BuildTrackAddedEmbed(pl, 2, false)
	assert.Equal(t, "Queued", e.Title)
	assert.Contains(t, e.Description, "**Mix**")
	assert.Contains(t, e.Description, "2 tracks, 2:00")
}
