package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sonroyaalmerol/calliope/internal/player"
	"github.com/sonroyaalmerol/calliope/internal/rest"
	"github.com/sonroyaalmerol/calliope/internal/track"
)

type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameReady
	FramePlayerUpdate
	FrameStats
	FrameEvent
)

func (k FrameKind) String() string {
	switch k {
	case FrameReady:
		return "ready"
	case FramePlayerUpdate:
		return "playerUpdate"
	case FrameStats:
		return "stats"
	case FrameEvent:
		return "event"
	default:
		return "unknown"
	}
}

type EventKind int

const (
	EventUnknown EventKind = iota
	EventTrackStart
	EventTrackEnd
	EventTrackException
	EventTrackStuck
	EventWebsocketClosed
	EventSegmentsLoaded
	EventSegmentSkipped
	EventChaptersLoaded
	EventChapterStarted
)

var eventKinds = map[string]EventKind{
	"TrackStartEvent":      EventTrackStart,
	"TrackEndEvent":        EventTrackEnd,
	"TrackExceptionEvent":  EventTrackException,
	"TrackStuckEvent":      EventTrackStuck,
	"WebSocketClosedEvent": EventWebsocketClosed,
	"SegmentsLoaded":       EventSegmentsLoaded,
	"SegmentSkipped":       EventSegmentSkipped,
	"ChaptersLoaded":       EventChaptersLoaded,
	"ChapterStarted":       EventChapterStarted,
}

func (k EventKind) String() string {
	for name, v := range eventKinds {
		if v == k {
			return name
		}
	}
	return "UnknownEvent"
}

type Ready struct {
	Resumed   bool   `json:"resumed"`
	SessionID string `json:"sessionId"`
}

type PlayerUpdate struct {
	GuildID snowflake.ID     `json:"guildId"`
	State   rest.PlayerState `json:"state"`
}

type Exception struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause"`
}

func (e Exception) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Message, e.Severity, e.Cause)
}

// Segment is a sponsorblock segment, times in milliseconds.
type Segment struct {
	Category string `json:"category"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
}

type Chapter struct {
	Name     string `json:"name"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	Duration int64  `json:"duration"`
}

// Event is any "event" frame. Only the fields of its Kind are set.
type Event struct {
	Kind    EventKind    `json:"-"`
	Type    string       `json:"type"`
	GuildID snowflake.ID `json:"guildId"`

	Track *track.Track `json:"track,omitempty"`
	// Reason is the end reason of a TrackEndEvent or the close reason of a
	// WebSocketClosedEvent.
	Reason      string     `json:"reason,omitempty"`
	Exception   *Exception `json:"exception,omitempty"`
	ThresholdMs int64      `json:"thresholdMs,omitempty"`

	Code     int  `json:"code,omitempty"`
	ByRemote bool `json:"byRemote,omitempty"`

	Segments []Segment `json:"segments,omitempty"`
	Segment  *Segment  `json:"segment,omitempty"`
	Chapters []Chapter `json:"chapters,omitempty"`
	Chapter  *Chapter  `json:"chapter,omitempty"`
}

func (e Event) EndReason() player.EndReason {
	return player.EndReason(e.Reason)
}

// Frame is one decoded inbound message. Exactly one payload matches Kind.
type Frame struct {
	Kind         FrameKind
	Op           string
	Ready        *Ready
	PlayerUpdate *PlayerUpdate
	Stats        *rest.Stats
	Event        *Event
}

// GuildID returns the guild a frame is scoped to, if any.
func (f Frame) GuildID() (snowflake.ID, bool) {
	switch f.Kind {
	case FramePlayerUpdate:
		return f.PlayerUpdate.GuildID, true
	case FrameEvent:
		return f.Event.GuildID, true
	}
	return 0, false
}

type envelope struct {
	Op      string          `json:"op"`
	GuildID json.RawMessage `json:"guildId"`
}

// ParseFrame decodes a raw frame. Unknown ops come back as FrameUnknown
// without error; malformed frames and guild frames lacking a guild id wrap
// ErrProtocolViolation.
func ParseFrame(raw []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrProtocolViolation, err)
	}
	f := Frame{Op: env.Op}

	switch env.Op {
	case "ready":
		var r Ready
		if err := json.Unmarshal(raw, &r); err != nil {
			return Frame{}, fmt.Errorf("%w: ready: %w", ErrProtocolViolation, err)
		}
		if r.SessionID == "" {
			return Frame{}, fmt.Errorf("%w: ready without sessionId", ErrProtocolViolation)
		}
		f.Kind, f.Ready = FrameReady, &r

	case "playerUpdate":
		if err := requireGuild(env); err != nil {
			return Frame{}, err
		}
		var pu PlayerUpdate
		if err := json.Unmarshal(raw, &pu); err != nil {
			return Frame{}, fmt.Errorf("%w: playerUpdate: %w", ErrProtocolViolation, err)
		}
		f.Kind, f.PlayerUpdate = FramePlayerUpdate, &pu

	case "stats":
		var st rest.Stats
		if err := json.Unmarshal(raw, &st); err != nil {
			return Frame{}, fmt.Errorf("%w: stats: %w", ErrProtocolViolation, err)
		}
		f.Kind, f.Stats = FrameStats, &st

	case "event":
		if err := requireGuild(env); err != nil {
			return Frame{}, err
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return Frame{}, fmt.Errorf("%w: event: %w", ErrProtocolViolation, err)
		}
		ev.Kind = eventKinds[ev.Type]
		f.Kind, f.Event = FrameEvent, &ev

	default:
		f.Kind = FrameUnknown
	}
	return f, nil
}

func requireGuild(env envelope) error {
	if len(env.GuildID) == 0 || string(env.GuildID) == "null" || string(env.GuildID) == `""` {
		return fmt.Errorf("%w: %s frame without guildId", ErrProtocolViolation, env.Op)
	}
	return nil
}
