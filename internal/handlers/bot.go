package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"

	"github.com/sonroyaalmerol/calliope/internal/client"
	"github.com/sonroyaalmerol/calliope/internal/config"
	"github.com/sonroyaalmerol/calliope/internal/gateway"
	plib "github.com/sonroyaalmerol/calliope/internal/player"
	"github.com/sonroyaalmerol/calliope/internal/repository"
	"github.com/sonroyaalmerol/calliope/internal/spotify"
	"github.com/sonroyaalmerol/calliope/internal/sponsorblock"
	"github.com/sonroyaalmerol/calliope/internal/ui"
	"github.com/sonroyaalmerol/calliope/internal/utils"
	"github.com/sonroyaalmerol/calliope/internal/voice"
)

type Bot struct {
	cfg  *config.Config
	repo *repository.Repo
	sp   *spotify.Client

	client *client.Client
	cmd    *CommandHandler
	dg     *discordgo.Session
	userID string
}

func NewBot(cfg *config.Config, repo *repository.Repo) *Bot {
	b := &Bot{cfg: cfg, repo: repo}
	if cfg.SpotifyClientID != "" && cfg.SpotifyClientSecret != "" {
		sp, err := spotify.NewClientCredentials(cfg.SpotifyClientID, cfg.SpotifyClientSecret)
		if err != nil {
			slog.Warn("spotify client init failed", "err", err)
		} else {
			b.sp = sp
		}
	}
	return b
}

func (b *Bot) Run(ctx context.Context) error {
	if err := b.cfg.RequireDiscord(); err != nil {
		return err
	}
	dg, err := discordgo.New("Bot " + b.cfg.DiscordToken)
	if err != nil {
		return err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	b.dg = dg

	// the node needs our user id before the gateway is up
	me, err := dg.User("@me")
	if err != nil {
		return fmt.Errorf("fetch bot user: %w", err)
	}
	b.userID = me.ID
	uid, err := snowflake.Parse(me.ID)
	if err != nil {
		return fmt.Errorf("parse bot user id: %w", err)
	}

	b.client, err = client.New(ctx, b.cfg, client.Options{
		UserID:  uid,
		Repo:    b.repo,
		Spotify: b.sp,
		Listeners: gateway.Listeners{
			Ready: func(rd gateway.Ready) {
				slog.Info("node session ready", "sessionID", rd.SessionID, "resumed", rd.Resumed)
			},
			Event: b.onEvent,
		},
	})
	if err != nil {
		return err
	}
	b.cmd = NewCommandHandler(b.cfg, b.repo, b.client, repository.NewFavoritesService(b.repo))

	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onGuildCreate)
	dg.AddHandler(b.cmd.HandleInteraction)
	dg.AddHandler(b.onVoiceServerUpdate)
	dg.AddHandler(b.onVoiceStateUpdate)

	nodeErr := make(chan error, 1)
	go func() {
		nodeErr <- b.client.Run(ctx)
	}()

	if err := dg.Open(); err != nil {
		b.client.Close()
		return err
	}
	defer dg.Close()
	defer b.client.Close()

	select {
	case <-ctx.Done():
		return nil
	case err := <-nodeErr:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("node session: %w", err)
	}
}

func (b *Bot) appID(s *discordgo.Session) string {
	if b.cfg.ApplicationID != "" {
		return b.cfg.ApplicationID
	}
	return s.State.User.ID
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	slog.Info("connected", "user", s.State.User.Username)
	if err := s.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: b.cfg.BotStatus,
		Activities: []*discordgo.Activity{{
			Name: b.cfg.BotActivity,
			Type: discordgo.ActivityTypeListening,
		}},
	}); err != nil {
		slog.Warn("update status failed", "err", err)
	}

	appID := b.appID(s)
	if b.cfg.RegisterCommandsOnBot {
		if err := b.cmd.RegisterCommands(s, appID, ""); err != nil {
			slog.Error("register global commands", "err", err)
		} else {
			slog.Info("registered global application commands")
		}
		return
	}

	var wg sync.WaitGroup
	for _, g := range r.Guilds {
		wg.Add(1)
		go func(guildID string) {
			defer wg.Done()
			if err := b.cmd.RegisterCommands(s, appID, guildID); err != nil {
				slog.Error("register guild commands", "guild", guildID, "err", err)
			}
		}(g.ID)
	}
	wg.Wait()

	if _, err := s.ApplicationCommandBulkOverwrite(appID, "", []*discordgo.ApplicationCommand{}); err != nil {
		slog.Error("clear global commands", "err", err)
	} else {
		slog.Info("cleared global application commands")
	}
	slog.Info("registered commands on all guilds")
}

// If registering per-guild, register on new guilds too
func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if b.cfg.RegisterCommandsOnBot {
		return
	}
	if err := b.cmd.RegisterCommands(s, b.appID(s), g.ID); err != nil {
		slog.Error("register guild commands on join", "guild", g.ID, "err", err)
	} else {
		slog.Debug("registered commands on guild", "guild", g.ID)
	}
}

func (b *Bot) onVoiceServerUpdate(s *discordgo.Session, vs *discordgo.VoiceServerUpdate) {
	guild, err := snowflake.Parse(vs.GuildID)
	if err != nil {
		return
	}
	// a null endpoint means the voice server went away; a new update follows
	if vs.Endpoint == "" {
		slog.Debug("voice server gone, waiting for reallocation", "guildID", vs.GuildID)
		return
	}
	frag := voice.Fragment{Token: &vs.Token, Endpoint: &vs.Endpoint}
	if _, err := b.client.SubmitVoice(context.Background(), guild, frag); err != nil {
		slog.Warn("submit voice server failed", "guildID", vs.GuildID, "err", err)
	}
}

func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.UserID != b.userID {
		return
	}
	guild, err := snowflake.Parse(vs.GuildID)
	if err != nil {
		return
	}
	ctx := context.Background()
	if vs.ChannelID == "" {
		if !b.client.Players().Has(guild) {
			b.client.Voice().Forget(guild)
			return
		}
		slog.Info("left voice, destroying player", "guildID", vs.GuildID)
		if err := b.client.Destroy(ctx, guild); err != nil {
			slog.Warn("destroy player failed", "guildID", vs.GuildID, "err", err)
		}
		return
	}
	if _, err := b.client.SubmitVoice(ctx, guild, voice.SessionID(vs.SessionID)); err != nil {
		slog.Warn("submit voice state failed", "guildID", vs.GuildID, "err", err)
	}
}

// onEvent runs on the guild's executor after the client has applied ev.
func (b *Bot) onEvent(p *plib.Player, ev gateway.Event) {
	guild := p.GuildID()
	switch ev.Kind {
	case gateway.EventTrackStart:
		set, err := b.repo.GetSettings(context.Background(), guild.String())
		if err != nil || !set.AutoAnnounceNext {
			return
		}
		b.announce(guild, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{ui.BuildPlayingEmbed(p.State())}})
	case gateway.EventTrackException:
		title := ""
		if ev.Track != nil {
			title = ev.Track.Title()
		}
		slog.Warn("track exception", "guildID", guild, "title", title, "err", ev.Exception)
		if ev.Exception != nil {
			b.announce(guild, &discordgo.MessageSend{Content: fmt.Sprintf("couldn't play %s: %s", utils.EscapeMd(title), ev.Exception.Message)})
		}
	case gateway.EventTrackStuck:
		slog.Warn("track stuck", "guildID", guild, "thresholdMs", ev.ThresholdMs)
	case gateway.EventWebsocketClosed:
		slog.Warn("node voice connection closed", "guildID", guild, "code", ev.Code, "reason", ev.Reason, "byRemote", ev.ByRemote)
	case gateway.EventSegmentsLoaded:
		if sum := sponsorblock.Summarize(ev.Segments); sum != "" {
			slog.Debug("sponsorblock segments loaded", "guildID", guild, "summary", sum)
		}
	case gateway.EventSegmentSkipped:
		if ev.Segment != nil {
			b.announce(guild, &discordgo.MessageSend{Content: "⏩ " + sponsorblock.Describe(*ev.Segment)})
		}
	case gateway.EventChapterStarted:
		if ev.Chapter != nil {
			slog.Debug("chapter started", "guildID", guild, "chapter", ev.Chapter.Name)
		}
	}
}

func (b *Bot) announce(guild snowflake.ID, msg *discordgo.MessageSend) {
	ch := b.cmd.announceChannel(guild)
	if ch == "" || b.dg == nil {
		return
	}
	if _, err := b.dg.ChannelMessageSendComplex(ch, msg); err != nil {
		slog.Debug("announce failed", "guildID", guild, "channelID", ch, "err", err)
	}
}
