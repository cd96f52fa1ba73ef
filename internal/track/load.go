package track

import (
	"encoding/json"
	"fmt"
)

type LoadType string

const (
	LoadTrack    LoadType = "track"
	LoadPlaylist LoadType = "playlist"
	LoadSearch   LoadType = "search"
	LoadEmpty    LoadType = "empty"
	LoadError    LoadType = "error"
)

// PlaylistInfo describes a loaded playlist. SelectedTrack is -1 when the
// playlist link did not point at a specific entry.
type PlaylistInfo struct {
	Name          string `json:"name"`
	SelectedTrack int    `json:"selectedTrack"`
}

// PluginInfo carries the optional metadata source plugins attach to tracks and
// playlists. Unknown keys are ignored.
type PluginInfo struct {
	Type             string `json:"type,omitempty"`
	URL              string `json:"url,omitempty"`
	ArtworkURL       string `json:"artworkUrl,omitempty"`
	Author           string `json:"author,omitempty"`
	TotalTracks      int    `json:"totalTracks,omitempty"`
	AlbumName        string `json:"albumName,omitempty"`
	AlbumArtURL      string `json:"albumArtUrl,omitempty"`
	ArtistURL        string `json:"artistUrl,omitempty"`
	ArtistArtworkURL string `json:"artistArtworkUrl,omitempty"`
	PreviewURL       string `json:"previewUrl,omitempty"`
	IsPreview        bool   `json:"isPreview,omitempty"`
}

// LoadException is the payload of a failed load.
type LoadException struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause"`
}

func (e *LoadException) Error() string {
	return fmt.Sprintf("load failed (%s): %s", e.Severity, e.Message)
}

// LoadResult is the answer to a load or search request.
type LoadResult struct {
	Type       LoadType
	Tracks     []Track
	Playlist   *PlaylistInfo
	PluginInfo PluginInfo
	Exception  *LoadException
}

type rawLoadResult struct {
	LoadType LoadType        `json:"loadType"`
	Data     json.RawMessage `json:"data"`
}

type rawPlaylist struct {
	Info       PlaylistInfo `json:"info"`
	PluginInfo PluginInfo   `json:"pluginInfo"`
	Tracks     []Track      `json:"tracks"`
}

// ParseLoadResult decodes a loadtracks response body.
func ParseLoadResult(body []byte) (*LoadResult, error) {
	var raw rawLoadResult
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse load result: %w", err)
	}
	res := &LoadResult{Type: raw.LoadType}
	switch raw.LoadType {
	case LoadTrack:
		var t Track
		if err := json.Unmarshal(raw.Data, &t); err != nil {
			return nil, fmt.Errorf("parse load result track: %w", err)
		}
		res.Tracks = []Track{t}
		if len(t.PluginInfo) > 0 {
			_ = json.Unmarshal(t.PluginInfo, &res.PluginInfo)
		}
	case LoadPlaylist:
		var pl rawPlaylist
		if err := json.Unmarshal(raw.Data, &pl); err != nil {
			return nil, fmt.Errorf("parse load result playlist: %w", err)
		}
		res.Tracks = pl.Tracks
		res.Playlist = &pl.Info
		res.PluginInfo = pl.PluginInfo
	case LoadSearch:
		if err := json.Unmarshal(raw.Data, &res.Tracks); err != nil {
			return nil, fmt.Errorf("parse load result search: %w", err)
		}
	case LoadEmpty:
	case LoadError:
		var ex LoadException
		if err := json.Unmarshal(raw.Data, &ex); err != nil {
			return nil, fmt.Errorf("parse load result exception: %w", err)
		}
		res.Exception = &ex
	default:
		return nil, fmt.Errorf("parse load result: unknown load type %q", raw.LoadType)
	}
	return res, nil
}

// Selected returns the playlist entry the loaded link pointed at, if any.
func (r *LoadResult) Selected() (Track, bool) {
	if r.Playlist == nil {
		return Track{}, false
	}
	i := r.Playlist.SelectedTrack
	if i < 0 || i >= len(r.Tracks) {
		return Track{}, false
	}
	return r.Tracks[i], true
}

// Representative returns the single track that stands for this result: the
// selected playlist entry when present, otherwise the first track.
func (r *LoadResult) Representative() (Track, bool) {
	if t, ok := r.Selected(); ok {
		return t, true
	}
	if len(r.Tracks) == 0 {
		return Track{}, false
	}
	return r.Tracks[0], true
}

// Name is the playlist name for whole playlists and the representative track
// title otherwise.
func (r *LoadResult) Name() string {
	if r.Type == LoadPlaylist {
		if _, ok := r.Selected(); !ok {
			return r.Playlist.Name
		}
	}
	if t, ok := r.Representative(); ok {
		return t.Title()
	}
	return ""
}

// Duration is the summed length of all tracks in milliseconds, or the
// representative track length for single/search/selected results.
func (r *LoadResult) Duration() int64 {
	if r.Type == LoadPlaylist {
		if t, ok := r.Selected(); ok {
			return t.Duration()
		}
		var total int64
		for _, t := range r.Tracks {
			total += t.Duration()
		}
		return total
	}
	if t, ok := r.Representative(); ok {
		return t.Duration()
	}
	return 0
}

func (r *LoadResult) Empty() bool {
	return len(r.Tracks) == 0
}

// Err converts an error result into an error value.
func (r *LoadResult) Err() error {
	if r.Type == LoadError && r.Exception != nil {
		return r.Exception
	}
	return nil
}
