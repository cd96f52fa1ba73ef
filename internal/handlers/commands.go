package handlers

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"

	"github.com/sonroyaalmerol/calliope/internal/autocomplete"
	"github.com/sonroyaalmerol/calliope/internal/client"
	"github.com/sonroyaalmerol/calliope/internal/config"
	plib "github.com/sonroyaalmerol/calliope/internal/player"
	"github.com/sonroyaalmerol/calliope/internal/repository"
	"github.com/sonroyaalmerol/calliope/internal/rest"
	"github.com/sonroyaalmerol/calliope/internal/sponsorblock"
)

type CommandHandler struct {
	cfg    *config.Config
	repo   *repository.Repo
	favs   *repository.FavoritesService
	client *client.Client
	sb     *sponsorblock.Service

	mu sync.Mutex
	// last text channel a command was used in, per guild
	channels map[snowflake.ID]string
}

func NewCommandHandler(cfg *config.Config, repo *repository.Repo, c *client.Client, favs *repository.FavoritesService) *CommandHandler {
	return &CommandHandler{
		cfg:      cfg,
		repo:     repo,
		favs:     favs,
		client:   c,
		sb:       sponsorblock.NewService(c.Rest()),
		channels: make(map[snowflake.ID]string),
	}
}

func boolOpt(name, desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Name: name, Description: desc, Type: discordgo.ApplicationCommandOptionBoolean}
}

func intOpt(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Name: name, Description: desc, Type: discordgo.ApplicationCommandOptionInteger, Required: required}
}

func stringOpt(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Name: name, Description: desc, Type: discordgo.ApplicationCommandOptionString, Required: required}
}

func subCmd(name, desc string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionSubCommand, Name: name, Description: desc, Options: opts}
}

func presetChoices() []*discordgo.ApplicationCommandOptionChoice {
	var out []*discordgo.ApplicationCommandOptionChoice
	for _, n := range presetNames() {
		out = append(out, &discordgo.ApplicationCommandOptionChoice{Name: n, Value: n})
	}
	return out
}

func loopChoices() []*discordgo.ApplicationCommandOptionChoice {
	return []*discordgo.ApplicationCommandOptionChoice{
		{Name: "off", Value: "NONE"},
		{Name: "track", Value: "TRACK"},
		{Name: "queue", Value: "QUEUE"},
	}
}

func providerChoices() []*discordgo.ApplicationCommandOptionChoice {
	var out []*discordgo.ApplicationCommandOptionChoice
	for _, p := range []rest.Provider{rest.YouTube, rest.YouTubeMusic, rest.SoundCloud, rest.Spotify, rest.AppleMusic, rest.Deezer, rest.VKMusic} {
		out = append(out, &discordgo.ApplicationCommandOptionChoice{Name: string(p), Value: string(p)})
	}
	return out
}

func commandList() []*discordgo.ApplicationCommand {
	queryOpt := stringOpt("query", "search query, link or source:identifier", true)
	queryOpt.Autocomplete = true

	filterOpt := stringOpt("preset", "filter preset", true)
	filterOpt.Choices = presetChoices()

	loopOpt := stringOpt("mode", "loop mode", true)
	loopOpt.Choices = loopChoices()

	providerOpt := stringOpt("provider", "search provider", true)
	providerOpt.Choices = providerChoices()

	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Play a song (link, search, or source:identifier)",
			Options: []*discordgo.ApplicationCommandOption{
				queryOpt,
				boolOpt("immediate", "add to front of queue"),
				boolOpt("shuffle", "shuffle additions"),
				boolOpt("skip", "skip current track"),
			},
		},
		{Name: "stop", Description: "Stop playback and clear queue"},
		{Name: "disconnect", Description: "Leave the voice channel and destroy the player"},
		{Name: "clear", Description: "Clear queue except current"},
		{Name: "now-playing", Description: "Show currently playing"},
		{
			Name:        "seek",
			Description: "Seek to a position in the current song",
			Options:     []*discordgo.ApplicationCommandOption{stringOpt("time", "seconds or 1m30s", true)},
		},
		{
			Name:        "fseek",
			Description: "Seek forward in current song",
			Options:     []*discordgo.ApplicationCommandOption{stringOpt("time", "seconds or 1m30s", true)},
		},
		{
			Name:        "favorites",
			Description: "Manage favorites",
			Options: []*discordgo.ApplicationCommandOption{
				subCmd("use", "use a favorite",
					stringOpt("name", "favorite name", true),
					boolOpt("immediate", "front of queue"),
					boolOpt("shuffle", "shuffle"),
					boolOpt("skip", "skip current"),
				),
				subCmd("list", "list favorites"),
				subCmd("create", "create favorite",
					stringOpt("name", "name", true),
					stringOpt("query", "query", true),
				),
				subCmd("remove", "remove favorite", stringOpt("name", "name", true)),
			},
		},
		{
			Name:        "config",
			Description: "Configure bot settings",
			Options: []*discordgo.ApplicationCommandOption{
				subCmd("get", "show settings"),
				subCmd("set-default-volume", "default volume", intOpt("level", "0-1000", true)),
				subCmd("set-default-loop", "default loop mode", loopOpt),
				subCmd("set-auto-announce-next-song", "auto announce next", boolOpt("value", "true/false")),
				subCmd("set-default-queue-page-size", "queue page size", intOpt("page_size", "1-30", true)),
				subCmd("set-search-provider", "provider for plain searches", providerOpt),
				subCmd("set-sponsorblock", "segment categories to skip", stringOpt("categories", "comma separated, empty to disable", false)),
			},
		},
		{Name: "loop", Description: "toggle looping the current song"},
		{Name: "loop-queue", Description: "toggle looping the entire queue"},
		{
			Name:        "move",
			Description: "move songs within the queue",
			Options: []*discordgo.ApplicationCommandOption{
				intOpt("from", "position of the song to move", true),
				intOpt("to", "position to move the song to", true),
			},
		},
		{Name: "next", Description: "skip to the next song"},
		{
			Name:        "skip",
			Description: "skip to a position in the queue",
			Options: []*discordgo.ApplicationCommandOption{
				intOpt("position", "queue position to play", true),
				boolOpt("drop", "drop the songs in between"),
			},
		},
		{Name: "pause", Description: "pause the current song"},
		{
			Name:        "queue",
			Description: "show the current queue",
			Options: []*discordgo.ApplicationCommandOption{
				intOpt("page", "page of queue to show [default: 1]", false),
				intOpt("page-size", "how many items per page [default: 10, max: 30]", false),
			},
		},
		{
			Name:        "remove",
			Description: "remove songs from the queue",
			Options: []*discordgo.ApplicationCommandOption{
				intOpt("position", "position of the song to remove [default: 1]", false),
				intOpt("range", "number of songs to remove [default: 1]", false),
			},
		},
		{Name: "replay", Description: "replay the current song"},
		{Name: "resume", Description: "resume playback"},
		{Name: "unskip", Description: "go back in the queue by one song"},
		{Name: "shuffle", Description: "shuffle the queue"},
		{Name: "random", Description: "play a random song from the queue"},
		{
			Name:        "volume",
			Description: "set the player volume",
			Options:     []*discordgo.ApplicationCommandOption{intOpt("level", "0-1000", true)},
		},
		{
			Name:        "filter",
			Description: "apply an audio filter preset",
			Options:     []*discordgo.ApplicationCommandOption{filterOpt},
		},
		{Name: "save-queue", Description: "save the queue for later"},
		{Name: "restore-queue", Description: "restore the saved queue"},
		{Name: "node", Description: "show audio node stats"},
	}
}

func (h *CommandHandler) RegisterCommands(s *discordgo.Session, appID string, guildID string) error {
	start := time.Now()
	slog.Info("registering application commands", "appID", appID, "guildID", guildID)

	cmds := commandList()
	if _, err := s.ApplicationCommandBulkOverwrite(appID, guildID, cmds); err != nil {
		slog.Error("failed to register application commands", "guildID", guildID, "err", err)
		return err
	}

	slog.Info("finished registering commands", "guildID", guildID, "count", len(cmds), "took", time.Since(start))
	return nil
}

func (h *CommandHandler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		return
	}
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		slog.Debug("interaction: application command", "guildID", i.GuildID, "userID", userIDOf(i), "command", i.ApplicationCommandData().Name)
		h.rememberChannel(i)
		h.handleChatCommand(s, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		slog.Debug("interaction: autocomplete", "guildID", i.GuildID, "userID", userIDOf(i))
		h.handleAutocomplete(s, i)
	default:
		slog.Debug("interaction: ignored type", "type", i.Type, "guildID", i.GuildID)
	}
}

func (h *CommandHandler) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if data.Name != "play" {
		return
	}

	var query string
	for _, opt := range data.Options {
		if opt.Focused {
			query = opt.StringValue()
			break
		}
		if opt.Name == "query" {
			query = opt.StringValue()
		}
	}

	var sp autocomplete.SpotifySuggester
	if c := h.client.Spotify(); c != nil {
		sp = c
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	provider := h.searchProvider(ctx, i.GuildID)

	slog.Debug("autocomplete: fetching suggestions", "guildID", i.GuildID, "userID", userIDOf(i), "query", query)
	choices := autocomplete.Suggest(ctx, h.client.Rest(), sp, provider, query, 10)
	if choices == nil {
		choices = []*discordgo.ApplicationCommandOptionChoice{}
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	}); err != nil {
		slog.Debug("autocomplete respond failed", "guildID", i.GuildID, "err", err)
	}
}

func (h *CommandHandler) handleChatCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	switch data.Name {
	case "play":
		h.cmdPlay(s, i)
	case "stop":
		h.cmdStop(s, i)
	case "disconnect":
		h.cmdDisconnect(s, i)
	case "clear":
		h.cmdClear(s, i)
	case "now-playing":
		h.cmdNowPlaying(s, i)
	case "seek":
		h.cmdSeek(s, i, false)
	case "fseek":
		h.cmdSeek(s, i, true)
	case "favorites":
		h.cmdFavorites(s, i)
	case "config":
		h.cmdConfig(s, i)
	case "loop":
		h.cmdToggleLoop(s, i, plib.LoopTrack)
	case "loop-queue":
		h.cmdToggleLoop(s, i, plib.LoopQueue)
	case "move":
		h.cmdMove(s, i)
	case "next":
		h.cmdNext(s, i)
	case "skip":
		h.cmdSkip(s, i)
	case "pause":
		h.cmdPause(s, i)
	case "queue":
		h.cmdQueue(s, i)
	case "remove":
		h.cmdRemove(s, i)
	case "replay":
		h.cmdReplay(s, i)
	case "resume":
		h.cmdResume(s, i)
	case "unskip":
		h.cmdUnskip(s, i)
	case "shuffle":
		h.cmdShuffle(s, i)
	case "random":
		h.cmdRandom(s, i)
	case "volume":
		h.cmdVolume(s, i)
	case "filter":
		h.cmdFilter(s, i)
	case "save-queue":
		h.cmdSaveQueue(s, i)
	case "restore-queue":
		h.cmdRestoreQueue(s, i)
	case "node":
		h.cmdNode(s, i)
	default:
		slog.Debug("unknown command", "name", data.Name, "guildID", i.GuildID, "userID", userIDOf(i))
	}
}

func (h *CommandHandler) rememberChannel(i *discordgo.InteractionCreate) {
	g, err := snowflake.Parse(i.GuildID)
	if err != nil || i.ChannelID == "" {
		return
	}
	h.mu.Lock()
	h.channels[g] = i.ChannelID
	h.mu.Unlock()
}

// announceChannel is where unsolicited messages for guild go.
func (h *CommandHandler) announceChannel(guild snowflake.ID) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.channels[guild]
}

func (h *CommandHandler) settings(ctx context.Context, guildID string) (*repository.Settings, error) {
	return h.repo.UpsertSettings(ctx, guildID)
}

func (h *CommandHandler) searchProvider(ctx context.Context, guildID string) rest.Provider {
	set, err := h.settings(ctx, guildID)
	if err != nil || set.SearchProvider == "" {
		return h.client.SearchProvider()
	}
	return rest.Provider(set.SearchProvider)
}

func (h *CommandHandler) reply(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := uint64(0)
	if ephemeral {
		flags = 1 << 6
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlags(flags),
		},
	}); err != nil {
		slog.Warn("reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) replyEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	flags := uint64(0)
	if ephemeral {
		flags = 1 << 6
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlags(flags),
		},
	}); err != nil {
		slog.Warn("embed reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) deferReply(s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool) {
	flags := uint64(0)
	if ephemeral {
		flags = 1 << 6
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlags(flags),
		},
	}); err != nil {
		slog.Warn("defer reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) editReply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	}); err != nil {
		slog.Warn("edit reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) editReplyEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	embeds := []*discordgo.MessageEmbed{embed}
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Embeds: &embeds,
	}); err != nil {
		slog.Warn("edit reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func userInVoice(s *discordgo.Session, guildID, userID string) (channelID string, ok bool) {
	g, _ := s.State.Guild(guildID)
	if g == nil {
		g, _ = s.Guild(guildID)
	}
	if g == nil {
		return "", false
	}
	for _, vs := range g.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID, true
		}
	}
	return "", false
}

func userIDOf(i *discordgo.InteractionCreate) string {
	if i == nil || i.Member == nil || i.Member.User == nil {
		return ""
	}
	return i.Member.User.ID
}

func guildOf(i *discordgo.InteractionCreate) snowflake.ID {
	g, _ := snowflake.Parse(i.GuildID)
	return g
}

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		m[strings.ToLower(o.Name)] = o
	}
	return m
}
