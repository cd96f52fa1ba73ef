package player

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sonroyaalmerol/calliope/internal/filters"
	"github.com/sonroyaalmerol/calliope/internal/rest"
	"github.com/sonroyaalmerol/calliope/internal/track"
)

// Gateway is the part of the REST client a player talks to.
type Gateway interface {
	ModifyPlayer(ctx context.Context, guild snowflake.ID, update rest.PlayerUpdate, noReplace bool) (*rest.Player, error)
	GetPlayer(ctx context.Context, guild snowflake.ID) (*rest.Player, error)
	DestroyPlayer(ctx context.Context, guild snowflake.ID) error
}

// Player mirrors one guild's player on the node. Fields only change from
// node-confirmed data: REST responses and websocket frames. The mutex is held
// across REST calls so commands on one guild are applied in order.
type Player struct {
	guildID snowflake.ID
	gw      Gateway
	gone    func(*Player)

	mu        sync.Mutex
	track     *track.Track
	paused    bool
	playing   bool
	volume    int
	state     rest.PlayerState
	voice     rest.VoiceState
	filters   filters.Filters
	destroyed bool

	queue *Queue
}

// NewPlayer builds a player from the state the node returned when it was
// created.
func NewPlayer(gw Gateway, guildID snowflake.ID, st *rest.Player) *Player {
	p := &Player{
		guildID: guildID,
		gw:      gw,
		volume:  DefaultVolume,
	}
	p.queue = newQueue(p)
	if st != nil {
		p.applyLocked(st)
	}
	return p
}

func (p *Player) GuildID() snowflake.ID { return p.guildID }

func (p *Player) Queue() *Queue { return p.queue }

// Track returns the current track, or nil.
func (p *Player) Track() *track.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.track == nil {
		return nil
	}
	t := *p.track
	return &t
}

func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *Player) Position() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Position
}

func (p *Player) Voice() rest.VoiceState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voice
}

func (p *Player) Filters() filters.Filters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filters
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := State{
		GuildID:   p.guildID.String(),
		Paused:    p.paused,
		Playing:   p.playing,
		Volume:    p.volume,
		Ping:      p.state.Ping,
		Time:      p.state.Time,
		Position:  p.state.Position,
		Connected: p.state.Connected,
		Voice:     p.voice,
		Filters:   p.filters,
		Loop:      p.queue.loop,
		Pending:   len(p.queue.pending),
	}
	if p.track != nil {
		t := *p.track
		st.Track = &t
	}
	return st
}

func (p *Player) applyLocked(st *rest.Player) {
	if st.Track != nil {
		t := *st.Track
		p.track = &t
	} else {
		p.track = nil
	}
	p.paused = st.Paused
	p.volume = st.Volume
	p.state = st.State
	p.voice = st.Voice
	p.filters = st.Filters
	p.playing = p.track != nil && !p.paused
}

// modifyLocked sends update and applies whatever the node echoes back. On
// failure nothing changes. A 404 means the node no longer knows this player.
func (p *Player) modifyLocked(ctx context.Context, update rest.PlayerUpdate, noReplace bool) error {
	st, err := p.gw.ModifyPlayer(ctx, p.guildID, update, noReplace)
	if err != nil {
		if errors.Is(err, rest.ErrNotFound) {
			p.markGoneLocked()
			return errors.Join(ErrPlayerNotFound, err)
		}
		slog.Warn("player update failed", "guildID", p.guildID, "err", err)
		return err
	}
	if st != nil {
		p.applyLocked(st)
	}
	return nil
}

func (p *Player) markGoneLocked() {
	if p.destroyed {
		return
	}
	p.destroyed = true
	if p.gone != nil {
		go p.gone(p)
	}
}

func (p *Player) playLocked(ctx context.Context, t track.Track) error {
	return p.modifyLocked(ctx, rest.PlayerUpdate{Track: rest.PlayTrack(t)}, false)
}

// Play replaces the current track without touching the queue.
func (p *Player) Play(ctx context.Context, t track.Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playLocked(ctx, t)
}

func (p *Player) SetPaused(ctx context.Context, paused bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modifyLocked(ctx, rest.PlayerUpdate{Paused: &paused}, false)
}

func (p *Player) SetVolume(ctx context.Context, volume int) error {
	if volume < 0 || volume > MaxVolume {
		return ErrInvalidVolume
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modifyLocked(ctx, rest.PlayerUpdate{Volume: &volume}, false)
}

// Seek moves to position milliseconds into the current track.
func (p *Player) Seek(ctx context.Context, position int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.track == nil {
		return ErrNothingPlaying
	}
	if position < 0 {
		position = 0
	}
	return p.modifyLocked(ctx, rest.PlayerUpdate{Position: &position}, false)
}

func (p *Player) SetFilters(ctx context.Context, f filters.Filters) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modifyLocked(ctx, rest.PlayerUpdate{Filters: &f}, false)
}

// Stop clears the current track. The queue is left as is.
func (p *Player) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modifyLocked(ctx, rest.PlayerUpdate{Track: rest.StopTrack()}, false)
}

// UpdateVoice hands new voice credentials to the node.
func (p *Player) UpdateVoice(ctx context.Context, v rest.VoiceState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modifyLocked(ctx, rest.PlayerUpdate{Voice: &v}, false)
}

// Refresh re-reads the player from the node.
func (p *Player) Refresh(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, err := p.gw.GetPlayer(ctx, p.guildID)
	if err != nil {
		if errors.Is(err, rest.ErrNotFound) {
			p.markGoneLocked()
			return errors.Join(ErrPlayerNotFound, err)
		}
		return err
	}
	p.applyLocked(st)
	return nil
}

func (p *Player) destroy(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.gw.DestroyPlayer(ctx, p.guildID); err != nil && !errors.Is(err, rest.ErrNotFound) {
		return err
	}
	p.destroyed = true
	p.track = nil
	p.playing = false
	return nil
}

func (p *Player) Destroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}

// ApplyState records a playerUpdate frame.
func (p *Player) ApplyState(st rest.PlayerState) {
	p.mu.Lock()
	p.state = st
	p.mu.Unlock()
}

func (p *Player) HandleTrackStart(t track.Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.track = &t
	p.playing = !p.paused
	if p.queue.loop == LoopTrack && p.queue.anchor == nil {
		p.queue.anchor = &t
	}
}

// HandleTrackEnd clears the ended track and, when the end was natural,
// advances the queue. It returns the track that was started, if any.
func (p *Player) HandleTrackEnd(ctx context.Context, ended track.Track, reason EndReason) (*track.Track, error) {
	return p.queue.AdvanceOnTrackEnd(ctx, reason, ended)
}

// HandleTrackException marks the player idle; the node follows up with a
// trackEnd carrying loadFailed.
func (p *Player) HandleTrackException() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
}

// HandleVoiceClosed records that the node lost its voice connection.
func (p *Player) HandleVoiceClosed() {
	p.mu.Lock()
	p.state.Connected = false
	p.playing = false
	p.mu.Unlock()
}
