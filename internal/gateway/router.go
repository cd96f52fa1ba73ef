package gateway

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sonroyaalmerol/calliope/internal/player"
	"github.com/sonroyaalmerol/calliope/internal/rest"
)

// Listeners are optional callbacks fired after a frame has been applied to
// the player registry. Guild-scoped callbacks run on that guild's executor.
type Listeners struct {
	Ready        func(Ready)
	PlayerUpdate func(*player.Player, PlayerUpdate)
	Stats        func(rest.Stats)
	Event        func(*player.Player, Event)
}

// Router applies decoded frames to players.
type Router struct {
	ctx       context.Context
	players   *player.PlayerManager
	exec      Executor
	listeners Listeners

	mu    sync.RWMutex
	stats *rest.Stats
}

// NewRouter builds a router. ctx bounds the REST calls made while reacting
// to events, such as starting the next queued track.
func NewRouter(ctx context.Context, players *player.PlayerManager, exec Executor, l Listeners) *Router {
	if exec == nil {
		exec = NewSerialExecutor()
	}
	return &Router{ctx: ctx, players: players, exec: exec, listeners: l}
}

// Stats returns the last stats frame, or nil.
func (r *Router) Stats() *rest.Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// Route dispatches f. Ready and stats frames are handled inline; guild
// frames go through the executor so one guild never blocks another.
func (r *Router) Route(f Frame) {
	switch f.Kind {
	case FrameReady:
		r.routeReady(*f.Ready)
	case FrameStats:
		r.mu.Lock()
		r.stats = f.Stats
		r.mu.Unlock()
		if r.listeners.Stats != nil {
			r.listeners.Stats(*f.Stats)
		}
	case FramePlayerUpdate:
		pu := *f.PlayerUpdate
		r.exec.Submit(pu.GuildID, func() { r.routePlayerUpdate(pu) })
	case FrameEvent:
		ev := *f.Event
		r.exec.Submit(ev.GuildID, func() { r.routeEvent(ev) })
	case FrameUnknown:
		slog.Debug("dropping frame with unknown op", "op", f.Op)
	}
}

func (r *Router) routeReady(rd Ready) {
	if !rd.Resumed && r.players.Len() > 0 {
		slog.Warn("session was not resumed, dropping players", "count", r.players.Len())
		r.players.Clear()
	}
	if r.listeners.Ready != nil {
		r.listeners.Ready(rd)
	}
}

func (r *Router) routePlayerUpdate(pu PlayerUpdate) {
	p := r.players.Peek(pu.GuildID)
	if p == nil {
		slog.Debug("playerUpdate for unknown player", "guildID", pu.GuildID)
		return
	}
	p.ApplyState(pu.State)
	if r.listeners.PlayerUpdate != nil {
		r.listeners.PlayerUpdate(p, pu)
	}
}

func (r *Router) routeEvent(ev Event) {
	p := r.players.Peek(ev.GuildID)
	if p == nil {
		slog.Debug("event for unknown player", "guildID", ev.GuildID, "type", ev.Type)
		return
	}

	switch ev.Kind {
	case EventTrackStart:
		if ev.Track != nil {
			p.HandleTrackStart(*ev.Track)
		}
	case EventTrackEnd:
		if ev.Track == nil {
			slog.Warn("trackEndEvent without track", "guildID", ev.GuildID)
			break
		}
		next, err := p.HandleTrackEnd(r.ctx, *ev.Track, ev.EndReason())
		if err != nil {
			slog.Error("failed to start next track", "guildID", ev.GuildID, "reason", ev.Reason, "err", err)
		} else if next != nil {
			slog.Debug("advanced queue", "guildID", ev.GuildID, "track", next.Title())
		}
	case EventTrackException:
		p.HandleTrackException()
		if ev.Exception != nil {
			slog.Warn("track exception", "guildID", ev.GuildID, "err", ev.Exception.Error())
		}
	case EventTrackStuck:
		slog.Warn("track stuck", "guildID", ev.GuildID, "thresholdMs", ev.ThresholdMs)
	case EventWebsocketClosed:
		p.HandleVoiceClosed()
		slog.Warn("node voice connection closed", "guildID", ev.GuildID, "code", ev.Code, "reason", ev.Reason, "byRemote", ev.ByRemote)
	case EventSegmentsLoaded, EventSegmentSkipped, EventChaptersLoaded, EventChapterStarted:
	case EventUnknown:
		slog.Debug("dropping unknown event", "guildID", ev.GuildID, "type", ev.Type)
		return
	}

	if r.listeners.Event != nil {
		r.listeners.Event(p, ev)
	}
}
