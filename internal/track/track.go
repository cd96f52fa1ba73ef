package track

import (
	"encoding/json"
	"fmt"
)

// Info is the decoded metadata the node attaches to every track.
type Info struct {
	Identifier string `json:"identifier"`
	IsSeekable bool   `json:"isSeekable"`
	Author     string `json:"author"`
	Length     int64  `json:"length"` // milliseconds
	IsStream   bool   `json:"isStream"`
	Position   int64  `json:"position"`
	Title      string `json:"title"`
	URI        string `json:"uri,omitempty"`
	ArtworkURL string `json:"artworkUrl,omitempty"`
	ISRC       string `json:"isrc,omitempty"`
	SourceName string `json:"sourceName"`
}

// Track is a playable item as returned by the node. Values are never mutated
// after decoding; pass them by value.
type Track struct {
	Encoded    string          `json:"encoded"`
	Info       Info            `json:"info"`
	PluginInfo json.RawMessage `json:"pluginInfo,omitempty"`
	UserData   json.RawMessage `json:"userData,omitempty"`
}

func (t Track) Identifier() string { return t.Info.Identifier }
func (t Track) Title() string      { return t.Info.Title }
func (t Track) Artist() string     { return t.Info.Author }
func (t Track) ArtworkURL() string { return t.Info.ArtworkURL }
func (t Track) URI() string        { return t.Info.URI }
func (t Track) ISRC() string       { return t.Info.ISRC }
func (t Track) Duration() int64    { return t.Info.Length }
func (t Track) IsStream() bool     { return t.Info.IsStream }
func (t Track) SourceName() string { return t.Info.SourceName }

// Equal compares tracks by identifier.
func (t Track) Equal(other Track) bool {
	return t.Info.Identifier == other.Info.Identifier
}

// Timestamp renders the track length as M:SS, or H:MM:SS for long tracks.
func (t Track) Timestamp() string {
	return FormatMillis(t.Info.Length)
}

func FormatMillis(ms int64) string {
	sec := ms / 1000
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// Decode parses a single track payload.
func Decode(data []byte) (Track, error) {
	var t Track
	if err := json.Unmarshal(data, &t); err != nil {
		return Track{}, fmt.Errorf("decode track: %w", err)
	}
	if t.Encoded == "" {
		return Track{}, fmt.Errorf("decode track: missing encoded field")
	}
	return t, nil
}

// Encoded returns the wire tokens for tracks, in order.
func Encoded(tracks []Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.Encoded
	}
	return out
}

// IndexOf returns the position of the first track equal to t, or -1.
func IndexOf(tracks []Track, t Track) int {
	for i := range tracks {
		if tracks[i].Equal(t) {
			return i
		}
	}
	return -1
}
