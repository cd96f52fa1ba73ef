package voice

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/calliope/internal/player"
	"github.com/sonroyaalmerol/calliope/internal/rest"
)

const guild = snowflake.ID(41771983423143937)

type fakeGateway struct {
	mu     sync.Mutex
	voices []rest.VoiceState
	delay  time.Duration
	err    error
}

func (g *fakeGateway) ModifyPlayer(_ context.Context, id snowflake.ID, u rest.PlayerUpdate, _ bool) (*rest.Player, error) {
	time.Sleep(g.delay)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	st := &rest.Player{GuildID: id, Volume: player.DefaultVolume}
	if u.Voice != nil {
		g.voices = append(g.voices, *u.Voice)
		st.Voice = *u.Voice
		st.State.Connected = true
	}
	return st, nil
}

func (g *fakeGateway) GetPlayer(context.Context, snowflake.ID) (*rest.Player, error) {
	return nil, rest.ErrNotFound
}

func (g *fakeGateway) DestroyPlayer(context.Context, snowflake.ID) error { return nil }

func (g *fakeGateway) calls() []rest.VoiceState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]rest.VoiceState(nil), g.voices...)
}

func newAssembler() (*Assembler, *fakeGateway, *player.PlayerManager) {
	gw := &fakeGateway{}
	pm := player.NewPlayerManager(gw)
	return NewAssembler(gw, pm), gw, pm
}

func TestSubmit_CreatesOnceWhenComplete(t *testing.T) {
	a, gw, pm := newAssembler()
	ctx := context.Background()

	p, err := a.Submit(ctx, guild, Token("tok"))
	require.NoError(t, err)
	assert.Nil(t, p)
	_, err = a.Submit(ctx, guild, Endpoint("us-east1.discord.media"))
	require.NoError(t, err)
	assert.Empty(t, gw.calls())
	assert.False(t, pm.Has(guild))

	p, err = a.Submit(ctx, guild, SessionID("sess"))
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Len(t, gw.calls(), 1)
	assert.Equal(t, rest.VoiceState{Token: "tok", Endpoint: "us-east1.discord.media", SessionID: "sess"}, gw.calls()[0])
	assert.Same(t, p, pm.Peek(guild))
	assert.True(t, p.State().Connected)
}

func TestSubmit_LaterEndpointRefreshes(t *testing.T) {
	a, gw, pm := newAssembler()
	ctx := context.Background()
	_, _ = a.Submit(ctx, guild, Token("tok"))
	_, _ = a.Submit(ctx, guild, Endpoint("old"))
	first, err := a.Submit(ctx, guild, SessionID("sess"))
	require.NoError(t, err)

	p, err := a.Submit(ctx, guild, Endpoint("new"))
	require.NoError(t, err)
	assert.Same(t, first, p)
	assert.Same(t, first, pm.Peek(guild))
	require.Len(t, gw.calls(), 2)
	assert.Equal(t, "new", gw.calls()[1].Endpoint)
	assert.Equal(t, "new", p.Voice().Endpoint)
}

func TestSubmit_RepeatIsIgnored(t *testing.T) {
	a, gw, _ := newAssembler()
	ctx := context.Background()
	_, _ = a.Submit(ctx, guild, Fragment{Token: ptr("tok"), Endpoint: ptr("ep"), SessionID: ptr("s")})
	_, _ = a.Submit(ctx, guild, SessionID("s"))
	assert.Len(t, gw.calls(), 1)
}

func TestSubmit_ConcurrentFragmentsTriggerOnce(t *testing.T) {
	for i := 0; i < 20; i++ {
		a, gw, pm := newAssembler()
		gw.delay = time.Millisecond
		ctx := context.Background()
		_, _ = a.Submit(ctx, guild, Token("tok"))

		var wg sync.WaitGroup
		for _, f := range []Fragment{Endpoint("ep"), SessionID("s")} {
			f := f
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = a.Submit(ctx, guild, f)
			}()
		}
		wg.Wait()
		assert.Len(t, gw.calls(), 1)
		assert.Equal(t, 1, pm.Len())
	}
}

func TestSubmit_FailedCreateCanRetry(t *testing.T) {
	a, gw, pm := newAssembler()
	ctx := context.Background()
	gw.err = rest.ErrUnauthorized
	_, err := a.Submit(ctx, guild, Fragment{Token: ptr("tok"), Endpoint: ptr("ep"), SessionID: ptr("s")})
	assert.ErrorIs(t, err, rest.ErrUnauthorized)
	assert.False(t, pm.Has(guild))

	gw.err = nil
	p, err := a.Submit(ctx, guild, Endpoint("ep"))
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestRemovalForgetsCredentials(t *testing.T) {
	a, _, pm := newAssembler()
	ctx := context.Background()
	_, err := a.Submit(ctx, guild, Fragment{Token: ptr("tok"), Endpoint: ptr("ep"), SessionID: ptr("s")})
	require.NoError(t, err)

	pm.Remove(guild)
	assert.Equal(t, rest.VoiceState{}, a.Pending(guild))
}

func TestForget_WaitsForSubmitInFlight(t *testing.T) {
	a, gw, pm := newAssembler()
	gw.delay = 150 * time.Millisecond
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = a.Submit(ctx, guild, Fragment{Token: ptr("tok"), Endpoint: ptr("ep"), SessionID: ptr("s")})
	}()
	time.Sleep(30 * time.Millisecond)

	a.Forget(guild)
	assert.Len(t, gw.calls(), 1, "forget returned before the player was created")
	<-done
	assert.True(t, pm.Has(guild))
	assert.Equal(t, rest.VoiceState{}, a.Pending(guild))

	// credentials start over on the same entry
	p, err := a.Submit(ctx, guild, SessionID("s2"))
	require.NoError(t, err)
	assert.NotNil(t, p)
	assert.Len(t, gw.calls(), 1)
	assert.Equal(t, "s2", a.Pending(guild).SessionID)
}

func ptr(s string) *string { return &s }
