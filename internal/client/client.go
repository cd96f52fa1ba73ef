// Package client ties the node connection together: one REST gateway, one
// player registry, one voice assembler and one websocket session per Client.
package client

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/sonroyaalmerol/calliope/internal/cache"
	"github.com/sonroyaalmerol/calliope/internal/config"
	"github.com/sonroyaalmerol/calliope/internal/gateway"
	"github.com/sonroyaalmerol/calliope/internal/player"
	"github.com/sonroyaalmerol/calliope/internal/repository"
	"github.com/sonroyaalmerol/calliope/internal/rest"
	"github.com/sonroyaalmerol/calliope/internal/spotify"
	"github.com/sonroyaalmerol/calliope/internal/voice"
)

var ErrNoRepository = errors.New("client: no repository configured")

type Options struct {
	UserID snowflake.ID
	// Repo is optional. Without it session ids, queue snapshots and the
	// decode cache are not persisted.
	Repo *repository.Repo
	// Spotify is optional; Spotify links are then passed to the node as is.
	Spotify *spotify.Client
	// Listeners run after the client's own handling of each frame.
	Listeners gateway.Listeners
	Executor  gateway.Executor
}

type Client struct {
	cfg      *config.Config
	provider rest.Provider

	rest    *rest.Client
	players *player.PlayerManager
	voice   *voice.Assembler
	router  *gateway.Router
	session *gateway.Session
	repo    *repository.Repo
	decoder player.Decoder
	spotify *spotify.Client

	extra gateway.Listeners
	// bg bounds work started from frame callbacks.
	bg     context.Context
	cancel context.CancelFunc
}

// New builds a client from cfg. Nothing touches the network until Run.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Client, error) {
	if opts.UserID == 0 {
		return nil, config.ErrConfig("client: user id required")
	}
	bg, cancel := context.WithCancel(ctx)
	c := &Client{
		cfg:      cfg,
		provider: rest.Provider(cfg.DefaultSearchProvider),
		rest:     rest.New(cfg.LavalinkAddress, cfg.LavalinkPassword, cfg.RESTTimeout),
		repo:     opts.Repo,
		spotify:  opts.Spotify,
		extra:    opts.Listeners,
		bg:       bg,
		cancel:   cancel,
	}
	if c.provider == "" {
		c.provider = rest.YouTube
	}

	c.players = player.NewPlayerManager(c.rest)
	c.voice = voice.NewAssembler(c.rest, c.players)
	c.decoder = c.rest
	if c.repo != nil {
		c.decoder = cache.NewTrackCache(c.rest, c.repo, cfg.DecodeCacheLimit)
	}

	c.router = gateway.NewRouter(bg, c.players, opts.Executor, gateway.Listeners{
		Ready:        c.onReady,
		PlayerUpdate: opts.Listeners.PlayerUpdate,
		Stats:        opts.Listeners.Stats,
		Event:        opts.Listeners.Event,
	})

	resume := cfg.LavalinkSessionID
	if c.repo != nil {
		id, err := c.repo.SessionID(ctx, cfg.LavalinkAddress)
		if err != nil {
			slog.Warn("could not read stored session id", "err", err)
		} else if id != "" {
			resume = id
		}
	}
	c.session = gateway.NewSession(gateway.Config{
		Address:           cfg.LavalinkAddress,
		Password:          cfg.LavalinkPassword,
		UserID:            opts.UserID,
		SessionID:         resume,
		ReconnectInterval: cfg.ReconnectInterval,
		HandshakeTimeout:  cfg.RESTTimeout,
	}, c.router)
	return c, nil
}

func (c *Client) Rest() *rest.Client                   { return c.rest }
func (c *Client) Players() *player.PlayerManager       { return c.players }
func (c *Client) Voice() *voice.Assembler              { return c.voice }
func (c *Client) Session() *gateway.Session            { return c.session }
func (c *Client) Router() *gateway.Router              { return c.router }
func (c *Client) Decoder() player.Decoder              { return c.decoder }
func (c *Client) SearchProvider() rest.Provider        { return c.provider }
func (c *Client) Player(g snowflake.ID) *player.Player { return c.players.Peek(g) }
func (c *Client) Spotify() *spotify.Client             { return c.spotify }

// onReady runs on the session's read goroutine. The REST session id has to
// be in place before the next frame is handled; the rest can wait.
func (c *Client) onReady(rd gateway.Ready) {
	c.rest.SetSessionID(rd.SessionID)
	go c.afterReady(rd)
	if c.extra.Ready != nil {
		c.extra.Ready(rd)
	}
}

func (c *Client) afterReady(rd gateway.Ready) {
	ctx, cancel := context.WithTimeout(c.bg, c.cfg.RESTTimeout+time.Second)
	defer cancel()

	if c.repo != nil {
		if err := c.repo.SaveSessionID(ctx, c.cfg.LavalinkAddress, rd.SessionID); err != nil {
			slog.Warn("could not store session id", "err", err)
		}
	}
	if c.cfg.ResumeTimeout <= 0 {
		return
	}
	resuming := true
	timeout := int(c.cfg.ResumeTimeout / time.Second)
	if _, err := c.rest.UpdateSession(ctx, rest.SessionUpdate{Resuming: &resuming, Timeout: &timeout}); err != nil {
		slog.Warn("could not enable session resuming", "sessionID", rd.SessionID, "err", err)
		return
	}
	slog.Debug("session resuming enabled", "sessionID", rd.SessionID, "timeout", timeout)
}

// Run keeps the node session alive until ctx ends or Close is called.
func (c *Client) Run(ctx context.Context) error {
	return c.session.Run(ctx)
}

func (c *Client) Close() error {
	c.cancel()
	return c.session.Close()
}

// SubmitVoice forwards one Discord voice fragment to the assembler.
func (c *Client) SubmitVoice(ctx context.Context, guild snowflake.ID, frag voice.Fragment) (*player.Player, error) {
	return c.voice.Submit(ctx, guild, frag)
}

func (c *Client) Destroy(ctx context.Context, guild snowflake.ID) error {
	c.voice.Forget(guild)
	return c.players.Destroy(ctx, guild)
}

// Stats returns the last stats frame, falling back to the stats route.
func (c *Client) Stats(ctx context.Context) (*rest.Stats, error) {
	if st := c.router.Stats(); st != nil {
		return st, nil
	}
	return c.rest.Stats(ctx)
}

// SaveQueue stores guild's queue so RestoreQueue can rebuild it later.
func (c *Client) SaveQueue(ctx context.Context, guild snowflake.ID) (player.Export, error) {
	if c.repo == nil {
		return player.Export{}, ErrNoRepository
	}
	p := c.players.Peek(guild)
	if p == nil {
		return player.Export{}, player.ErrPlayerNotFound
	}
	exp := p.Queue().Export()
	payload, err := json.Marshal(exp)
	if err != nil {
		return player.Export{}, fmt.Errorf("encode queue: %w", err)
	}
	if err := c.repo.SaveQueue(ctx, guild.String(), payload); err != nil {
		return player.Export{}, err
	}
	slog.Info("queue saved", "guildID", guild, "pending", len(exp.Pending), "history", len(exp.History))
	return exp, nil
}

// RestoreQueue replaces guild's queue with the stored snapshot and starts it
// when nothing is playing. It returns the number of pending tracks restored;
// zero with a nil error means there was no snapshot.
func (c *Client) RestoreQueue(ctx context.Context, guild snowflake.ID) (int, error) {
	if c.repo == nil {
		return 0, ErrNoRepository
	}
	p := c.players.Peek(guild)
	if p == nil {
		return 0, player.ErrPlayerNotFound
	}
	snap, err := c.repo.LoadQueue(ctx, guild.String())
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var exp player.Export
	if err := json.Unmarshal(snap.Payload, &exp); err != nil {
		return 0, fmt.Errorf("decode queue snapshot: %w", err)
	}
	if err := p.Queue().Import(ctx, exp, c.decoder); err != nil {
		return 0, err
	}
	if p.Track() == nil && len(exp.Pending) > 0 {
		if _, err := p.Queue().Advance(ctx); err != nil {
			return len(exp.Pending), fmt.Errorf("start restored queue: %w", err)
		}
	}
	return len(exp.Pending), nil
}
