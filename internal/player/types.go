package player

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sonroyaalmerol/calliope/internal/filters"
	"github.com/sonroyaalmerol/calliope/internal/rest"
	"github.com/sonroyaalmerol/calliope/internal/track"
)

const (
	DefaultVolume = 100
	MaxVolume     = 1000
)

var (
	ErrIndexOutOfRange = errors.New("index is outside the range of the queue")
	ErrInvalidVolume   = errors.New("volume must be within 0-1000")
	ErrNothingPlaying  = errors.New("nothing is playing")
	ErrPlayerNotFound  = errors.New("no player for guild")
)

type LoopMode int

const (
	LoopNone LoopMode = iota
	LoopTrack
	LoopQueue
)

func (m LoopMode) String() string {
	switch m {
	case LoopTrack:
		return "TRACK"
	case LoopQueue:
		return "QUEUE"
	default:
		return "NONE"
	}
}

func ParseLoopMode(s string) (LoopMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NONE", "NORMAL", "OFF":
		return LoopNone, nil
	case "TRACK", "SONG":
		return LoopTrack, nil
	case "QUEUE":
		return LoopQueue, nil
	}
	return LoopNone, fmt.Errorf("unknown loop mode %q", s)
}

func (m LoopMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *LoopMode) UnmarshalText(b []byte) error {
	v, err := ParseLoopMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// EndReason is why the node stopped a track.
type EndReason string

const (
	EndFinished   EndReason = "finished"
	EndLoadFailed EndReason = "loadFailed"
	EndStopped    EndReason = "stopped"
	EndReplaced   EndReason = "replaced"
	EndCleanup    EndReason = "cleanup"
)

// MayStartNext reports whether the track ended on its own. Stops, replacements
// and cleanups were forced by someone else and must not advance the queue.
func (r EndReason) MayStartNext() bool {
	return r == EndFinished || r == EndLoadFailed
}

// Export is the serialized form of a queue: encoded tokens, history most
// recent first.
type Export struct {
	History []string `json:"history"`
	Pending []string `json:"pending"`
	Loop    LoopMode `json:"loop"`
}

// State is a point-in-time copy of a player's fields.
type State struct {
	GuildID   string
	Track     *track.Track
	Paused    bool
	Playing   bool
	Volume    int
	Ping      int64
	Time      int64
	Position  int64
	Connected bool
	Voice     rest.VoiceState
	Filters   filters.Filters
	Loop      LoopMode
	Pending   int
}
