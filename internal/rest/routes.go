package rest

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sonroyaalmerol/calliope/internal/track"
)

// Provider is a search prefix understood by the node's source managers.
type Provider string

const (
	YouTube      Provider = "ytsearch"
	YouTubeMusic Provider = "ytmsearch"
	SoundCloud   Provider = "scsearch"
	Spotify      Provider = "spsearch"
	AppleMusic   Provider = "amsearch"
	Deezer       Provider = "dzsearch"
	VKMusic      Provider = "vksearch"
)

// ModifyPlayer creates or updates the player for guild and returns the state
// the node settled on. With noReplace set, a track update is ignored when
// something is already playing.
func (c *Client) ModifyPlayer(ctx context.Context, guild snowflake.ID, update PlayerUpdate, noReplace bool) (*Player, error) {
	path, err := c.sessionPath("players", guild.String())
	if err != nil {
		return nil, err
	}
	q := url.Values{"noReplace": {strconv.FormatBool(noReplace)}}
	var out Player
	if err := c.do(ctx, http.MethodPatch, path, q, update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetPlayer(ctx context.Context, guild snowflake.ID) (*Player, error) {
	path, err := c.sessionPath("players", guild.String())
	if err != nil {
		return nil, err
	}
	var out Player
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetPlayers(ctx context.Context) ([]Player, error) {
	path, err := c.sessionPath("players")
	if err != nil {
		return nil, err
	}
	var out []Player
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DestroyPlayer(ctx context.Context, guild snowflake.ID) error {
	path, err := c.sessionPath("players", guild.String())
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

func (c *Client) UpdateSession(ctx context.Context, update SessionUpdate) (*SessionInfo, error) {
	path, err := c.sessionPath()
	if err != nil {
		return nil, err
	}
	var out SessionInfo
	if err := c.do(ctx, http.MethodPatch, path, nil, update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoadTracks resolves an identifier: a URL or a "<provider>:<query>" search.
func (c *Client) LoadTracks(ctx context.Context, identifier string) (*track.LoadResult, error) {
	raw, err := c.doRaw(ctx, http.MethodGet, "loadtracks", url.Values{"identifier": {identifier}}, nil)
	if err != nil {
		return nil, err
	}
	return track.ParseLoadResult(raw)
}

func (c *Client) Search(ctx context.Context, provider Provider, query string) (*track.LoadResult, error) {
	return c.LoadTracks(ctx, string(provider)+":"+query)
}

// LavaSearch queries the lavasearch plugin. types is any of track, album,
// artist, playlist, text.
func (c *Client) LavaSearch(ctx context.Context, query string, types ...string) (*LavaSearchResult, error) {
	q := url.Values{"query": {query}}
	if len(types) > 0 {
		q.Set("types", strings.Join(types, ","))
	}
	var out LavaSearchResult
	if err := c.do(ctx, http.MethodGet, "loadsearch", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DecodeTrack(ctx context.Context, encoded string) (track.Track, error) {
	var out track.Track
	if err := c.do(ctx, http.MethodGet, "decodetrack", url.Values{"encodedTrack": {encoded}}, nil, &out); err != nil {
		return track.Track{}, err
	}
	return out, nil
}

// DecodeTracks decodes many tokens in one round trip, preserving order.
func (c *Client) DecodeTracks(ctx context.Context, encoded []string) ([]track.Track, error) {
	if len(encoded) == 0 {
		return nil, nil
	}
	var out []track.Track
	if err := c.do(ctx, http.MethodPost, "decodetracks", nil, encoded, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Info(ctx context.Context) (*Info, error) {
	var out Info
	if err := c.do(ctx, http.MethodGet, "info", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var out Stats
	if err := c.do(ctx, http.MethodGet, "stats", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Version is served as plain text outside the /v4 prefix.
func (c *Client) Version(ctx context.Context) (string, error) {
	v := &Client{base: strings.TrimSuffix(c.base, "/v4"), password: c.password, http: c.http}
	raw, err := v.doRaw(ctx, http.MethodGet, "version", nil, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func (c *Client) GetCategories(ctx context.Context, guild snowflake.ID) ([]string, error) {
	path, err := c.sessionPath("players", guild.String(), "sponsorblock", "categories")
	if err != nil {
		return nil, err
	}
	var out []string
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateCategories(ctx context.Context, guild snowflake.ID, categories []string) error {
	path, err := c.sessionPath("players", guild.String(), "sponsorblock", "categories")
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, path, nil, categories, nil)
}

func (c *Client) DeleteCategories(ctx context.Context, guild snowflake.ID) error {
	path, err := c.sessionPath("players", guild.String(), "sponsorblock", "categories")
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// The routes below talk to the queue plugin, which keeps a queue on the node
// itself. They are independent of the local queue engine.

func (c *Client) GetQueue(ctx context.Context, guild snowflake.ID) (*NodeQueue, error) {
	path, err := c.sessionPath("players", guild.String(), "queue")
	if err != nil {
		return nil, err
	}
	var out NodeQueue
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateQueue(ctx context.Context, guild snowflake.ID, update NodeQueueUpdate) (*NodeQueue, error) {
	path, err := c.sessionPath("players", guild.String(), "queue")
	if err != nil {
		return nil, err
	}
	var out NodeQueue
	if err := c.do(ctx, http.MethodPatch, path, nil, update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AddQueueTracks(ctx context.Context, guild snowflake.ID, tracks []TrackUpdate) error {
	path, err := c.sessionPath("players", guild.String(), "queue", "tracks")
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, nil, tracks, nil)
}

func (c *Client) DeleteQueue(ctx context.Context, guild snowflake.ID) error {
	path, err := c.sessionPath("players", guild.String(), "queue")
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

func (c *Client) MoveQueueTrack(ctx context.Context, guild snowflake.ID, from, to int) error {
	path, err := c.sessionPath("players", guild.String(), "queue", "tracks", strconv.Itoa(from), "move")
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, url.Values{"position": {strconv.Itoa(to)}}, nil, nil)
}

func (c *Client) DeleteQueueTrack(ctx context.Context, guild snowflake.ID, index int) error {
	path, err := c.sessionPath("players", guild.String(), "queue", "tracks", strconv.Itoa(index))
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// PreviousQueueTrack asks the node queue to replay its previous entry.
func (c *Client) PreviousQueueTrack(ctx context.Context, guild snowflake.ID) (*track.Track, error) {
	path, err := c.sessionPath("players", guild.String(), "queue", "previous")
	if err != nil {
		return nil, err
	}
	var out track.Track
	if err := c.do(ctx, http.MethodPost, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
