package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"github.com/sonroyaalmerol/calliope/internal/rest"
	"github.com/sonroyaalmerol/calliope/internal/spotify"
	"github.com/sonroyaalmerol/calliope/internal/track"
)

// Loader is the part of the REST client used to look tracks up.
type Loader interface {
	LoadTracks(ctx context.Context, identifier string) (*track.LoadResult, error)
}

// SpotifyResolver expands Spotify links into plain track descriptions.
type SpotifyResolver interface {
	Resolve(ctx context.Context, link string, limit int) ([]spotify.Track, spotify.PlaylistMeta, error)
}

// sourcePrefixes are identifier schemes other than "<x>search" that source
// plugins resolve directly.
var sourcePrefixes = []string{"spotify", "dzisrc", "dzrec", "sprec", "ytrec"}

// Identifier turns user input into something the node can load: links and
// already prefixed searches pass through, anything else becomes a search
// with provider.
func Identifier(query string, provider rest.Provider) string {
	q := strings.TrimSpace(query)
	if u, err := url.Parse(q); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return q
	}
	if i := strings.Index(q, ":"); i > 0 {
		prefix := strings.ToLower(q[:i])
		if strings.HasSuffix(prefix, "search") || slices.Contains(sourcePrefixes, prefix) {
			return q
		}
	}
	return string(provider) + ":" + q
}

// Load resolves query into tracks. Spotify links are expanded locally when a
// Spotify client is configured, each entry matched with a search; limit caps
// how many entries are matched.
func (c *Client) Load(ctx context.Context, query string, limit int) (*track.LoadResult, error) {
	return c.LoadWith(ctx, query, c.provider, limit)
}

// LoadWith is Load with a search provider other than the client default.
// An empty provider means the default.
func (c *Client) LoadWith(ctx context.Context, query string, provider rest.Provider, limit int) (*track.LoadResult, error) {
	if provider == "" {
		provider = c.provider
	}
	var sp SpotifyResolver
	if c.spotify != nil {
		sp = c.spotify
	}
	return load(ctx, c.rest, sp, provider, query, limit)
}

func load(ctx context.Context, node Loader, sp SpotifyResolver, provider rest.Provider, query string, limit int) (*track.LoadResult, error) {
	if sp != nil && spotify.IsLink(query) {
		return loadSpotify(ctx, node, sp, provider, query, limit)
	}
	res, err := node.LoadTracks(ctx, Identifier(query, provider))
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func loadSpotify(ctx context.Context, node Loader, sp SpotifyResolver, provider rest.Provider, link string, limit int) (*track.LoadResult, error) {
	entries, meta, err := sp.Resolve(ctx, link, limit)
	if err != nil {
		return nil, fmt.Errorf("resolve spotify link: %w", err)
	}

	found := make([]track.Track, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := node.LoadTracks(ctx, e.Query(provider))
		if err != nil {
			slog.Warn("spotify entry lookup failed", "name", e.Name, "artist", e.Artist, "err", err)
			continue
		}
		if t, ok := res.Representative(); ok {
			found = append(found, t)
		}
	}

	switch {
	case len(found) == 0:
		return &track.LoadResult{Type: track.LoadEmpty}, nil
	case len(entries) == 1 && meta.Title == "":
		return &track.LoadResult{Type: track.LoadTrack, Tracks: found}, nil
	}
	name := meta.Title
	if name == "" {
		name = "Spotify top tracks"
	}
	return &track.LoadResult{
		Type:       track.LoadPlaylist,
		Tracks:     found,
		Playlist:   &track.PlaylistInfo{Name: name, SelectedTrack: -1},
		PluginInfo: track.PluginInfo{Type: "playlist", URL: meta.Source},
	}, nil
}
