package gateway

import (
	"context"
	"sync"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/calliope/internal/player"
	"github.com/sonroyaalmerol/calliope/internal/rest"
	"github.com/sonroyaalmerol/calliope/internal/track"
)

const guild = snowflake.ID(817327181659111454)

type fakeGateway struct {
	mu      sync.Mutex
	updates []rest.PlayerUpdate
}

func (g *fakeGateway) ModifyPlayer(_ context.Context, id snowflake.ID, u rest.PlayerUpdate, _ bool) (*rest.Player, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updates = append(g.updates, u)
	st := &rest.Player{GuildID: id, Volume: player.DefaultVolume}
	if u.Track != nil && u.Track.Encoded != "" {
		st.Track = &track.Track{Encoded: u.Track.Encoded, Info: track.Info{Identifier: u.Track.Encoded}}
	}
	return st, nil
}

func (g *fakeGateway) GetPlayer(context.Context, snowflake.ID) (*rest.Player, error) {
	return nil, rest.ErrNotFound
}

func (g *fakeGateway) DestroyPlayer(context.Context, snowflake.ID) error { return nil }

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.updates)
}

func mustFrame(t *testing.T, raw string) Frame {
	t.Helper()
	f, err := ParseFrame([]byte(raw))
	require.NoError(t, err)
	return f
}

func TestRouter_TrackEndAdvancesQueue(t *testing.T) {
	gw := &fakeGateway{}
	pm := player.NewPlayerManager(gw)
	p := pm.Insert(guild, &rest.Player{GuildID: guild, Volume: 100})

	var events []EventKind
	r := NewRouter(context.Background(), pm, InlineExecutor{}, Listeners{
		Event: func(_ *player.Player, ev Event) { events = append(events, ev.Kind) },
	})

	_, err := p.Queue().Add(context.Background(),
		track.Track{Encoded: "a", Info: track.Info{Identifier: "a"}},
		track.Track{Encoded: "b", Info: track.Info{Identifier: "b"}},
	)
	require.NoError(t, err)
	require.Equal(t, 1, gw.count())

	r.Route(mustFrame(t, `{"op":"event","type":"TrackStartEvent","guildId":"817327181659111454","track":{"encoded":"a","info":{"identifier":"a"}}}`))
	assert.True(t, p.Playing())

	r.Route(mustFrame(t, `{"op":"event","type":"TrackEndEvent","guildId":"817327181659111454","track":{"encoded":"a","info":{"identifier":"a"}},"reason":"finished"}`))
	assert.Equal(t, 2, gw.count())
	assert.Equal(t, "b", p.Track().Identifier())
	assert.Empty(t, p.Queue().Pending())
	assert.Equal(t, []EventKind{EventTrackStart, EventTrackEnd}, events)
}

func TestRouter_StoppedDoesNotAdvance(t *testing.T) {
	gw := &fakeGateway{}
	pm := player.NewPlayerManager(gw)
	p := pm.Insert(guild, nil)
	r := NewRouter(context.Background(), pm, InlineExecutor{}, Listeners{})

	_, err := p.Queue().Add(context.Background(),
		track.Track{Encoded: "a", Info: track.Info{Identifier: "a"}},
		track.Track{Encoded: "b", Info: track.Info{Identifier: "b"}},
	)
	require.NoError(t, err)
	require.NoError(t, p.Stop(context.Background()))
	before := gw.count()

	r.Route(mustFrame(t, `{"op":"event","type":"TrackEndEvent","guildId":"817327181659111454","track":{"encoded":"a","info":{"identifier":"a"}},"reason":"stopped"}`))
	assert.Equal(t, before, gw.count())
	assert.Len(t, p.Queue().Pending(), 1)
}

func TestRouter_PlayerUpdate(t *testing.T) {
	pm := player.NewPlayerManager(&fakeGateway{})
	p := pm.Insert(guild, nil)
	var seen int
	r := NewRouter(context.Background(), pm, InlineExecutor{}, Listeners{
		PlayerUpdate: func(*player.Player, PlayerUpdate) { seen++ },
	})

	r.Route(mustFrame(t, `{"op":"playerUpdate","guildId":"817327181659111454","state":{"time":1,"position":4200,"connected":true,"ping":9}}`))
	assert.EqualValues(t, 4200, p.Position())
	assert.Equal(t, 1, seen)

	// unknown guilds are dropped
	r.Route(mustFrame(t, `{"op":"playerUpdate","guildId":"1","state":{"position":1}}`))
	assert.Equal(t, 1, seen)
}

func TestRouter_ReadyWithoutResumeClearsPlayers(t *testing.T) {
	pm := player.NewPlayerManager(&fakeGateway{})
	pm.Insert(guild, nil)
	var ready []Ready
	r := NewRouter(context.Background(), pm, InlineExecutor{}, Listeners{
		Ready: func(rd Ready) { ready = append(ready, rd) },
	})

	r.Route(mustFrame(t, `{"op":"ready","resumed":true,"sessionId":"a"}`))
	assert.Equal(t, 1, pm.Len())

	r.Route(mustFrame(t, `{"op":"ready","resumed":false,"sessionId":"b"}`))
	assert.Zero(t, pm.Len())
	assert.Len(t, ready, 2)
}

func TestRouter_Stats(t *testing.T) {
	r := NewRouter(context.Background(), player.NewPlayerManager(&fakeGateway{}), InlineExecutor{}, Listeners{})
	assert.Nil(t, r.Stats())
	r.Route(mustFrame(t, `{"op":"stats","players":3,"playingPlayers":2,"uptime":1}`))
	require.NotNil(t, r.Stats())
	assert.Equal(t, 3, r.Stats().Players)
}

func TestRouter_WebsocketClosed(t *testing.T) {
	pm := player.NewPlayerManager(&fakeGateway{})
	p := pm.Insert(guild, &rest.Player{State: rest.PlayerState{Connected: true}})
	r := NewRouter(context.Background(), pm, InlineExecutor{}, Listeners{})

	r.Route(mustFrame(t, `{"op":"event","type":"WebSocketClosedEvent","guildId":"817327181659111454","code":4014,"reason":"Disconnected","byRemote":true}`))
	assert.False(t, p.State().Connected)
}
