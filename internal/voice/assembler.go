// Package voice collects the voice credentials Discord hands out in pieces
// and turns a complete set into a node player.
package voice

import (
	"context"
	"log/slog"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sonroyaalmerol/calliope/internal/player"
	"github.com/sonroyaalmerol/calliope/internal/rest"
)

type Gateway interface {
	ModifyPlayer(ctx context.Context, guild snowflake.ID, update rest.PlayerUpdate, noReplace bool) (*rest.Player, error)
}

// Fragment carries whichever credentials one Discord event delivered. Nil
// fields are left as they were.
type Fragment struct {
	Token     *string
	Endpoint  *string
	SessionID *string
}

func Token(v string) Fragment     { return Fragment{Token: &v} }
func Endpoint(v string) Fragment  { return Fragment{Endpoint: &v} }
func SessionID(v string) Fragment { return Fragment{SessionID: &v} }

type entry struct {
	mu   sync.Mutex
	cur  rest.VoiceState
	sent rest.VoiceState
}

// Assembler merges credential fragments per guild. The merge, the
// completeness check and the resulting REST call run under one per-guild
// lock, so concurrent fragments cannot both miss the moment the set becomes
// complete.
type Assembler struct {
	gw      Gateway
	players *player.PlayerManager

	mu      sync.Mutex
	entries map[snowflake.ID]*entry
}

func NewAssembler(gw Gateway, players *player.PlayerManager) *Assembler {
	a := &Assembler{
		gw:      gw,
		players: players,
		entries: make(map[snowflake.ID]*entry),
	}
	players.OnRemove(a.Forget)
	return a
}

func (a *Assembler) entry(guild snowflake.ID) *entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[guild]
	if !ok {
		e = &entry{}
		a.entries[guild] = e
	}
	return e
}

// Submit merges frag into the guild's credentials. Once all three are known
// the first complete set creates the player; later changes refresh its
// voice state. Repeats of the last sent set are ignored. The player is
// returned once it exists.
func (a *Assembler) Submit(ctx context.Context, guild snowflake.ID, frag Fragment) (*player.Player, error) {
	e := a.entry(guild)
	e.mu.Lock()
	defer e.mu.Unlock()

	if frag.Token != nil {
		e.cur.Token = *frag.Token
	}
	if frag.Endpoint != nil {
		e.cur.Endpoint = *frag.Endpoint
	}
	if frag.SessionID != nil {
		e.cur.SessionID = *frag.SessionID
	}
	if !e.cur.Complete() {
		return a.players.Peek(guild), nil
	}
	vs := e.cur

	p := a.players.Peek(guild)
	if p == nil {
		st, err := a.gw.ModifyPlayer(ctx, guild, rest.PlayerUpdate{Voice: &vs}, false)
		if err != nil {
			slog.Error("create player failed", "guildID", guild, "err", err)
			return nil, err
		}
		e.sent = vs
		slog.Info("player created", "guildID", guild, "endpoint", vs.Endpoint)
		return a.players.Insert(guild, st), nil
	}

	if vs == e.sent {
		return p, nil
	}
	if err := p.UpdateVoice(ctx, vs); err != nil {
		slog.Warn("voice refresh failed", "guildID", guild, "err", err)
		return p, err
	}
	e.sent = vs
	slog.Debug("voice refreshed", "guildID", guild, "endpoint", vs.Endpoint)
	return p, nil
}

// Forget drops everything known about guild's voice credentials. It waits
// for a Submit in flight for the same guild.
func (a *Assembler) Forget(guild snowflake.ID) {
	a.mu.Lock()
	e, ok := a.entries[guild]
	a.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.cur = rest.VoiceState{}
	e.sent = rest.VoiceState{}
	e.mu.Unlock()
}

// Pending reports the credentials gathered so far for guild.
func (a *Assembler) Pending(guild snowflake.ID) rest.VoiceState {
	a.mu.Lock()
	e, ok := a.entries[guild]
	a.mu.Unlock()
	if !ok {
		return rest.VoiceState{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur
}
