package rest

import (
	"encoding/json"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sonroyaalmerol/calliope/internal/filters"
	"github.com/sonroyaalmerol/calliope/internal/track"
)

// VoiceState is the voice link descriptor the node needs to join a guild's
// voice server.
type VoiceState struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
}

func (v VoiceState) Complete() bool {
	return v.Token != "" && v.Endpoint != "" && v.SessionID != ""
}

type PlayerState struct {
	Time      int64 `json:"time"`
	Position  int64 `json:"position"`
	Connected bool  `json:"connected"`
	Ping      int64 `json:"ping"`
}

// Player is the full player state the node echoes back on every mutation.
type Player struct {
	GuildID snowflake.ID    `json:"guildId"`
	Track   *track.Track    `json:"track"`
	Volume  int             `json:"volume"`
	Paused  bool            `json:"paused"`
	State   PlayerState     `json:"state"`
	Voice   VoiceState      `json:"voice"`
	Filters filters.Filters `json:"filters"`
}

// TrackUpdate selects what the player should play. The zero value stops
// playback.
type TrackUpdate struct {
	Encoded    string
	Identifier string
	UserData   json.RawMessage
}

func PlayTrack(t track.Track) *TrackUpdate {
	return &TrackUpdate{Encoded: t.Encoded, UserData: t.UserData}
}

func StopTrack() *TrackUpdate {
	return &TrackUpdate{}
}

func (u TrackUpdate) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	switch {
	case u.Identifier != "":
		out["identifier"] = u.Identifier
	case u.Encoded != "":
		out["encoded"] = u.Encoded
	default:
		out["encoded"] = nil
	}
	if len(u.UserData) > 0 {
		out["userData"] = u.UserData
	}
	return json.Marshal(out)
}

// PlayerUpdate is the PATCH body for a player. Nil fields are left unchanged
// on the node.
type PlayerUpdate struct {
	Track    *TrackUpdate     `json:"track,omitempty"`
	Position *int64           `json:"position,omitempty"`
	EndTime  *int64           `json:"endTime,omitempty"`
	Volume   *int             `json:"volume,omitempty"`
	Paused   *bool            `json:"paused,omitempty"`
	Filters  *filters.Filters `json:"filters,omitempty"`
	Voice    *VoiceState      `json:"voice,omitempty"`
}

type SessionUpdate struct {
	Resuming *bool `json:"resuming,omitempty"`
	Timeout  *int  `json:"timeout,omitempty"`
}

type SessionInfo struct {
	Resuming bool `json:"resuming"`
	Timeout  int  `json:"timeout"`
}

type Memory struct {
	Free       int64 `json:"free"`
	Used       int64 `json:"used"`
	Allocated  int64 `json:"allocated"`
	Reservable int64 `json:"reservable"`
}

type CPU struct {
	Cores        int     `json:"cores"`
	SystemLoad   float64 `json:"systemLoad"`
	LavalinkLoad float64 `json:"lavalinkLoad"`
}

type FrameStats struct {
	Sent    int64 `json:"sent"`
	Nulled  int64 `json:"nulled"`
	Deficit int64 `json:"deficit"`
}

// Stats is the node metrics snapshot, shared by the stats route and the stats
// frame. FrameStats is only present on frames.
type Stats struct {
	Players        int         `json:"players"`
	PlayingPlayers int         `json:"playingPlayers"`
	Uptime         int64       `json:"uptime"`
	Memory         Memory      `json:"memory"`
	CPU            CPU         `json:"cpu"`
	FrameStats     *FrameStats `json:"frameStats,omitempty"`
}

type Version struct {
	Semver     string `json:"semver"`
	Major      int    `json:"major"`
	Minor      int    `json:"minor"`
	Patch      int    `json:"patch"`
	PreRelease string `json:"preRelease"`
	Build      string `json:"build"`
}

type Git struct {
	Branch     string `json:"branch"`
	Commit     string `json:"commit"`
	CommitTime int64  `json:"commitTime"`
}

type Plugin struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Info struct {
	Version        Version  `json:"version"`
	BuildTime      int64    `json:"buildTime"`
	Git            Git      `json:"git"`
	JVM            string   `json:"jvm"`
	Lavaplayer     string   `json:"lavaplayer"`
	SourceManagers []string `json:"sourceManagers"`
	Filters        []string `json:"filters"`
	Plugins        []Plugin `json:"plugins"`
}

// PluginVersions maps plugin name to version.
func (i Info) PluginVersions() map[string]string {
	out := make(map[string]string, len(i.Plugins))
	for _, p := range i.Plugins {
		out[p.Name] = p.Version
	}
	return out
}

type LavaSearchText struct {
	Text       string          `json:"text"`
	PluginInfo json.RawMessage `json:"plugin,omitempty"`
}

// LavaSearchResult is the answer of the lavasearch plugin. Albums, artists
// and playlists are kept raw since their shape is plugin defined.
type LavaSearchResult struct {
	Tracks    []track.Track     `json:"tracks"`
	Albums    []json.RawMessage `json:"albums"`
	Artists   []json.RawMessage `json:"artists"`
	Playlists []json.RawMessage `json:"playlists"`
	Texts     []LavaSearchText  `json:"texts"`
}

// NodeQueue is the queue kept on the node by the queue plugin.
type NodeQueue struct {
	Type   string        `json:"type"`
	Tracks []track.Track `json:"tracks"`
}

type NodeQueueUpdate struct {
	Type   string        `json:"type,omitempty"`
	Tracks []TrackUpdate `json:"tracks"`
}
