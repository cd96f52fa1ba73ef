package player

import (
	"context"
	"fmt"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sonroyaalmerol/calliope/internal/rest"
	"github.com/sonroyaalmerol/calliope/internal/track"
)

const testGuild = snowflake.ID(81384788765712384)

// fakeNode stands in for the node's REST API. It keeps one player per guild
// and echoes the merged state back like the real node does.
type fakeNode struct {
	mu        sync.Mutex
	players   map[snowflake.ID]*rest.Player
	updates   []rest.PlayerUpdate
	destroyed []snowflake.ID
	failNext  error
}

func newFakeNode() *fakeNode {
	return &fakeNode{players: make(map[snowflake.ID]*rest.Player)}
}

func (n *fakeNode) ModifyPlayer(_ context.Context, guild snowflake.ID, u rest.PlayerUpdate, _ bool) (*rest.Player, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, u)
	if err := n.failNext; err != nil {
		n.failNext = nil
		return nil, err
	}
	p, ok := n.players[guild]
	if !ok {
		p = &rest.Player{GuildID: guild, Volume: DefaultVolume}
		n.players[guild] = p
	}
	if u.Track != nil {
		if u.Track.Encoded == "" {
			p.Track = nil
		} else {
			t := trackFromToken(u.Track.Encoded)
			p.Track = &t
		}
	}
	if u.Paused != nil {
		p.Paused = *u.Paused
	}
	if u.Volume != nil {
		p.Volume = *u.Volume
	}
	if u.Position != nil {
		p.State.Position = *u.Position
	}
	if u.Filters != nil {
		p.Filters = *u.Filters
	}
	if u.Voice != nil {
		p.Voice = *u.Voice
		p.State.Connected = true
	}
	out := *p
	return &out, nil
}

func (n *fakeNode) GetPlayer(_ context.Context, guild snowflake.ID) (*rest.Player, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, ok := n.players[guild]
	if !ok {
		return nil, fmt.Errorf("%w: GET player", rest.ErrNotFound)
	}
	out := *p
	return &out, nil
}

func (n *fakeNode) DestroyPlayer(_ context.Context, guild snowflake.ID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.destroyed = append(n.destroyed, guild)
	delete(n.players, guild)
	return nil
}

func (n *fakeNode) DecodeTracks(_ context.Context, encoded []string) ([]track.Track, error) {
	out := make([]track.Track, len(encoded))
	for i, e := range encoded {
		out[i] = trackFromToken(e)
	}
	return out, nil
}

func (n *fakeNode) fail(err error) {
	n.mu.Lock()
	n.failNext = err
	n.mu.Unlock()
}

func (n *fakeNode) calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.updates)
}

func (n *fakeNode) lastTrack() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.updates) - 1; i >= 0; i-- {
		if n.updates[i].Track != nil {
			return n.updates[i].Track.Encoded
		}
	}
	return ""
}

// tokens are "enc-<id>" so decoding is reversible without a node
func trackFromToken(enc string) track.Track {
	id := enc
	if len(enc) > 4 && enc[:4] == "enc-" {
		id = enc[4:]
	}
	return track.Track{Encoded: enc, Info: track.Info{Identifier: id, Title: "Title " + id}}
}

func tr(id string) track.Track {
	return trackFromToken("enc-" + id)
}

func trs(ids ...string) []track.Track {
	out := make([]track.Track, len(ids))
	for i, id := range ids {
		out[i] = tr(id)
	}
	return out
}

func ids(tracks []track.Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.Identifier()
	}
	return out
}

// newTestPlayer returns a registered player with an empty node-side state.
func newTestPlayer() (*Player, *fakeNode) {
	node := newFakeNode()
	pm := NewPlayerManager(node)
	st, _ := node.ModifyPlayer(context.Background(), testGuild, rest.PlayerUpdate{}, false)
	node.updates = nil
	return pm.Insert(testGuild, st), node
}

// seed puts p in a state where cur is the current track, with pending
// and history seeded directly.
func seed(p *Player, cur *track.Track, pending, history []track.Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.track = cur
	p.playing = cur != nil && !p.paused
	p.queue.pending = pending
	p.queue.history = history
}
