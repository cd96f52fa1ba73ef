package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/sonroyaalmerol/calliope/internal/rest"
)

var (
	ErrNotSpotify  = errors.New("not a spotify link")
	ErrUnsupported = errors.New("unsupported spotify type")
)

// Track is the part of a Spotify track needed to find it on the node.
type Track struct {
	Name     string
	Artist   string
	ISRC     string
	Duration int64 // ms
}

// Query builds the node identifier for t. Deezer matches by ISRC when one is
// known; every other provider gets a free text "artist - name" search.
func (t Track) Query(provider rest.Provider) string {
	if provider == rest.Deezer && t.ISRC != "" {
		return "dzisrc:" + t.ISRC
	}
	q := t.Name
	if t.Artist != "" {
		q = t.Artist + " - " + t.Name
	}
	return string(provider) + ":" + q
}

type PlaylistMeta struct {
	Title  string
	Source string
}

type Client struct {
	raw    *spotify.Client
	market string
}

func NewClientCredentials(clientID, clientSecret string) (*Client, error) {
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("spotify: client id and secret are required")
	}
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	httpClient := cfg.Client(context.Background())
	cl := spotify.New(httpClient, spotify.WithRetry(true))
	return &Client{raw: cl, market: "US"}, nil
}

// IsLink reports whether raw looks like something ParseID understands.
func IsLink(raw string) bool {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "spotify:") {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Host == "open.spotify.com" || u.Host == "www.open.spotify.com"
}

// ParseID accepts spotify:<type>:<id> URIs and open.spotify.com links,
// including the localized /intl-xx/ prefix.
func ParseID(raw string) (typ string, id spotify.ID, err error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "spotify:") {
		parts := strings.Split(raw, ":")
		if len(parts) != 3 || parts[2] == "" {
			return "", "", fmt.Errorf("invalid spotify URI %q", raw)
		}
		typ, id = parts[1], spotify.ID(parts[2])
	} else {
		u, err := url.Parse(raw)
		if err != nil {
			return "", "", err
		}
		if u.Host != "open.spotify.com" && u.Host != "www.open.spotify.com" {
			return "", "", ErrNotSpotify
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) > 0 && strings.HasPrefix(parts[0], "intl-") {
			parts = parts[1:]
		}
		if len(parts) < 2 || parts[1] == "" {
			return "", "", fmt.Errorf("invalid spotify URL path %q", u.Path)
		}
		typ, id = parts[0], spotify.ID(parts[1])
	}
	switch typ {
	case "album", "playlist", "track", "artist":
		return typ, id, nil
	}
	return "", "", fmt.Errorf("%w: %s", ErrUnsupported, typ)
}

// Resolve expands a Spotify link into tracks. limit caps album, playlist and
// artist expansions; 0 means no cap.
func (c *Client) Resolve(ctx context.Context, link string, limit int) ([]Track, PlaylistMeta, error) {
	typ, id, err := ParseID(link)
	if err != nil {
		return nil, PlaylistMeta{}, err
	}
	switch typ {
	case "album":
		return c.GetAlbum(ctx, id, limit)
	case "playlist":
		return c.GetPlaylist(ctx, id, limit)
	case "artist":
		tracks, err := c.GetArtistTop(ctx, id, limit)
		return tracks, PlaylistMeta{}, err
	default:
		t, err := c.GetTrack(ctx, id)
		if err != nil {
			return nil, PlaylistMeta{}, err
		}
		return []Track{t}, PlaylistMeta{}, nil
	}
}

func fromSimple(t spotify.SimpleTrack) Track {
	out := Track{Name: t.Name, Duration: int64(t.Duration)}
	if len(t.Artists) > 0 {
		out.Artist = t.Artists[0].Name
	}
	return out
}

func fromFull(t *spotify.FullTrack) Track {
	out := fromSimple(t.SimpleTrack)
	out.ISRC = t.ExternalIDs["isrc"]
	return out
}

func (c *Client) GetAlbum(ctx context.Context, id spotify.ID, limit int) ([]Track, PlaylistMeta, error) {
	alb, err := c.raw.GetAlbum(ctx, id)
	if err != nil {
		return nil, PlaylistMeta{}, fmt.Errorf("spotify album %s: %w", id, err)
	}
	page, err := c.raw.GetAlbumTracks(ctx, id)
	if err != nil {
		return nil, PlaylistMeta{}, fmt.Errorf("spotify album tracks %s: %w", id, err)
	}
	out := make([]Track, 0, page.Total)
	full := func() bool { return limit > 0 && len(out) >= limit }
	add := func(items []spotify.SimpleTrack) {
		for _, t := range items {
			if full() {
				return
			}
			out = append(out, fromSimple(t))
		}
	}
	add(page.Tracks)
	for page.Next != "" && !full() {
		if err := c.raw.NextPage(ctx, page); err != nil {
			break
		}
		add(page.Tracks)
	}
	return out, PlaylistMeta{Title: alb.Name, Source: alb.ExternalURLs["spotify"]}, nil
}

func (c *Client) GetPlaylist(ctx context.Context, id spotify.ID, limit int) ([]Track, PlaylistMeta, error) {
	pl, err := c.raw.GetPlaylist(ctx, id)
	if err != nil {
		return nil, PlaylistMeta{}, fmt.Errorf("spotify playlist %s: %w", id, err)
	}
	page, err := c.raw.GetPlaylistItems(ctx, id)
	if err != nil {
		return nil, PlaylistMeta{}, fmt.Errorf("spotify playlist items %s: %w", id, err)
	}
	out := make([]Track, 0, page.Total)
	full := func() bool { return limit > 0 && len(out) >= limit }
	add := func(items []spotify.PlaylistItem) {
		for _, it := range items {
			if full() {
				return
			}
			// episodes and removed tracks have no Track
			if it.Track.Track != nil {
				out = append(out, fromFull(it.Track.Track))
			}
		}
	}
	add(page.Items)
	for page.Next != "" && !full() {
		if err := c.raw.NextPage(ctx, page); err != nil {
			break
		}
		add(page.Items)
	}
	return out, PlaylistMeta{Title: pl.Name, Source: pl.ExternalURLs["spotify"]}, nil
}

func (c *Client) GetTrack(ctx context.Context, id spotify.ID) (Track, error) {
	t, err := c.raw.GetTrack(ctx, id)
	if err != nil {
		return Track{}, fmt.Errorf("spotify track %s: %w", id, err)
	}
	return fromFull(t), nil
}

func (c *Client) GetArtistTop(ctx context.Context, id spotify.ID, limit int) ([]Track, error) {
	top, err := c.raw.GetArtistsTopTracks(ctx, id, c.market)
	if err != nil {
		return nil, fmt.Errorf("spotify artist %s: %w", id, err)
	}
	out := make([]Track, 0, len(top))
	for i := range top {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, fromFull(&top[i]))
	}
	return out, nil
}

// Suggestion is a search hit offered for autocompletion. Value is a
// spotify: URI that Resolve accepts.
type Suggestion struct {
	Label string
	Value string
}

func label(kind, name string, artists []spotify.SimpleArtist) string {
	s := kind + " " + name
	if len(artists) > 0 {
		s += " - " + artists[0].Name
	}
	return s
}

// Suggest searches albums and tracks and returns at most limit of each.
func (c *Client) Suggest(ctx context.Context, query string, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = 5
	}
	res, err := c.raw.Search(ctx, query, spotify.SearchTypeAlbum|spotify.SearchTypeTrack, spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("spotify search: %w", err)
	}
	var out []Suggestion
	if res.Albums != nil {
		for i, a := range res.Albums.Albums {
			if i >= limit {
				break
			}
			out = append(out, Suggestion{Label: label("💿", a.Name, a.Artists), Value: "spotify:album:" + a.ID.String()})
		}
	}
	if res.Tracks != nil {
		for i, t := range res.Tracks.Tracks {
			if i >= limit {
				break
			}
			out = append(out, Suggestion{Label: label("🎵", t.Name, t.Artists), Value: "spotify:track:" + t.ID.String()})
		}
	}
	return out, nil
}
