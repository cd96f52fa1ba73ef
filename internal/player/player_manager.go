package player

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sonroyaalmerol/calliope/internal/rest"
)

// PlayerManager is the guild to player registry. Its lock only guards the
// map and is never held across a REST call or a player's lock.
type PlayerManager struct {
	gw Gateway

	mu       sync.Mutex
	players  map[snowflake.ID]*Player
	onRemove []func(snowflake.ID)
}

func NewPlayerManager(gw Gateway) *PlayerManager {
	return &PlayerManager{gw: gw, players: make(map[snowflake.ID]*Player)}
}

// OnRemove registers fn to run after a player leaves the registry.
func (pm *PlayerManager) OnRemove(fn func(snowflake.ID)) {
	pm.mu.Lock()
	pm.onRemove = append(pm.onRemove, fn)
	pm.mu.Unlock()
}

// Insert builds a player from node state and registers it, replacing any
// previous player for the guild.
func (pm *PlayerManager) Insert(guildID snowflake.ID, st *rest.Player) *Player {
	p := NewPlayer(pm.gw, guildID, st)
	p.gone = pm.removeIf
	pm.mu.Lock()
	pm.players[guildID] = p
	pm.mu.Unlock()
	slog.Debug("player registered", "guildID", guildID)
	return p
}

// Peek returns the player for guildID, or nil.
func (pm *PlayerManager) Peek(guildID snowflake.ID) *Player {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.players[guildID]
}

func (pm *PlayerManager) Has(guildID snowflake.ID) bool {
	return pm.Peek(guildID) != nil
}

func (pm *PlayerManager) Len() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.players)
}

func (pm *PlayerManager) All() []*Player {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make([]*Player, 0, len(pm.players))
	for _, p := range pm.players {
		out = append(out, p)
	}
	return out
}

// Remove drops guildID from the registry without talking to the node.
func (pm *PlayerManager) Remove(guildID snowflake.ID) *Player {
	return pm.remove(guildID, nil)
}

// removeIf drops p only if it is still the registered player for its guild.
func (pm *PlayerManager) removeIf(p *Player) {
	if pm.remove(p.guildID, p) != nil {
		slog.Info("player gone from node", "guildID", p.guildID)
	}
}

func (pm *PlayerManager) remove(guildID snowflake.ID, want *Player) *Player {
	pm.mu.Lock()
	p, ok := pm.players[guildID]
	if !ok || (want != nil && p != want) {
		pm.mu.Unlock()
		return nil
	}
	delete(pm.players, guildID)
	hooks := pm.onRemove
	pm.mu.Unlock()
	for _, fn := range hooks {
		fn(guildID)
	}
	return p
}

// Destroy deletes the player on the node and then drops it locally. A player
// the node no longer knows is still dropped.
func (pm *PlayerManager) Destroy(ctx context.Context, guildID snowflake.ID) error {
	p := pm.Peek(guildID)
	if p == nil {
		if err := pm.gw.DestroyPlayer(ctx, guildID); err != nil && !errors.Is(err, rest.ErrNotFound) {
			return err
		}
		return nil
	}
	if err := p.destroy(ctx); err != nil {
		return err
	}
	pm.Remove(guildID)
	return nil
}

// Clear drops every player. Used when the node starts a fresh session and
// has forgotten them all.
func (pm *PlayerManager) Clear() {
	pm.mu.Lock()
	ids := make([]snowflake.ID, 0, len(pm.players))
	for id := range pm.players {
		ids = append(ids, id)
	}
	pm.mu.Unlock()
	for _, id := range ids {
		pm.Remove(id)
	}
}
