package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"

	plib "github.com/sonroyaalmerol/calliope/internal/player"
	"github.com/sonroyaalmerol/calliope/internal/repository"
	"github.com/sonroyaalmerol/calliope/internal/rest"
	"github.com/sonroyaalmerol/calliope/internal/ui"
	"github.com/sonroyaalmerol/calliope/internal/utils"
)

const (
	playlistLimit  = 200
	joinTimeout    = 10 * time.Second
	commandTimeout = 15 * time.Second
)

func botChannel(s *discordgo.Session, guildID string) string {
	if s.State == nil || s.State.User == nil {
		return ""
	}
	vs, err := s.State.VoiceState(guildID, s.State.User.ID)
	if err != nil || vs == nil {
		return ""
	}
	return vs.ChannelID
}

// connect makes sure the bot sits in channelID and the node holds a player
// for the guild. New players get the guild's defaults applied.
func (h *CommandHandler) connect(ctx context.Context, s *discordgo.Session, guild snowflake.ID, channelID string, set *repository.Settings) (*plib.Player, error) {
	guildID := guild.String()
	if p := h.client.Player(guild); p != nil && botChannel(s, guildID) == channelID {
		return p, nil
	}
	existed := h.client.Players().Has(guild)

	if err := s.ChannelVoiceJoinManual(guildID, channelID, false, true); err != nil {
		return nil, fmt.Errorf("join voice: %w", err)
	}
	p, err := h.waitPlayer(ctx, guild)
	if err != nil {
		return nil, err
	}
	if !existed {
		h.applySettings(ctx, p, set)
	}
	return p, nil
}

// waitPlayer polls until the voice assembler has created guild's player.
func (h *CommandHandler) waitPlayer(ctx context.Context, guild snowflake.ID) (*plib.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, joinTimeout)
	defer cancel()
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for {
		if p := h.client.Player(guild); p != nil {
			return p, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for voice connection: %w", ctx.Err())
		case <-t.C:
		}
	}
}

func (h *CommandHandler) applySettings(ctx context.Context, p *plib.Player, set *repository.Settings) {
	if set == nil {
		return
	}
	if set.DefaultVolume != plib.DefaultVolume {
		if err := p.SetVolume(ctx, set.DefaultVolume); err != nil {
			slog.Warn("apply default volume failed", "guildID", p.GuildID(), "volume", set.DefaultVolume, "err", err)
		}
	}
	if mode, err := plib.ParseLoopMode(set.DefaultLoop); err == nil {
		p.Queue().SetLoop(mode)
	} else {
		slog.Warn("invalid default loop", "guildID", p.GuildID(), "loop", set.DefaultLoop)
	}
	if err := h.sb.Apply(ctx, p.GuildID(), set.SponsorBlockCategories); err != nil {
		slog.Warn("apply sponsorblock categories failed", "guildID", p.GuildID(), "err", err)
	}
}

// playerOf replies with an ephemeral message and returns nil when the guild
// has no player.
func (h *CommandHandler) playerOf(s *discordgo.Session, i *discordgo.InteractionCreate) *plib.Player {
	p := h.client.Player(guildOf(i))
	if p == nil {
		h.reply(s, i, "not connected", true)
	}
	return p
}

func (h *CommandHandler) enqueueAndMaybeStart(s *discordgo.Session, i *discordgo.InteractionCreate, query string, o enqueueOpts) {
	guildID := i.GuildID
	memberID := userIDOf(i)

	chID, ok := userInVoice(s, guildID, memberID)
	if !ok {
		slog.Debug("user not in voice", "guildID", guildID, "userID", memberID)
		h.reply(s, i, "gotta be in a voice channel", true)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	set, err := h.settings(ctx, guildID)
	if err != nil {
		slog.Error("get settings failed", "guildID", guildID, "err", err)
		h.reply(s, i, "internal error", true)
		return
	}

	h.deferReply(s, i, false)

	res, err := h.client.LoadWith(ctx, query, rest.Provider(set.SearchProvider), playlistLimit)
	if err != nil {
		slog.Debug("load failed", "guildID", guildID, "query", query, "err", err)
		h.editReply(s, i, "couldn't load that: "+err.Error())
		return
	}
	tracks := pickTracks(res, playlistLimit)
	if len(tracks) == 0 {
		h.editReply(s, i, "no songs found")
		return
	}

	player, err := h.connect(ctx, s, guildOf(i), chID, set)
	if err != nil {
		slog.Warn("voice connect failed", "guildID", guildID, "channelID", chID, "err", err)
		h.editReply(s, i, "couldn't connect to channel")
		return
	}

	started, err := enqueue(ctx, player, tracks, o)
	if err != nil {
		slog.Warn("enqueue failed", "guildID", guildID, "err", err)
		h.editReply(s, i, "couldn't start playback: "+err.Error())
		return
	}
	slog.Info("enqueued", "guildID", guildID, "userID", memberID, "count", len(tracks),
		"immediate", o.immediate, "shuffle", o.shuffle, "skip", o.skip, "started", started != nil)
	h.editReplyEmbed(s, i, ui.BuildTrackAddedEmbed(res, len(tracks), started != nil))
}

func (h *CommandHandler) cmdPlay(s *discordgo.Session, i *discordgo.InteractionCreate) {
	var query string
	var o enqueueOpts
	for _, opt := range i.ApplicationCommandData().Options {
		switch opt.Name {
		case "query":
			query = opt.StringValue()
		case "immediate":
			o.immediate = opt.BoolValue()
		case "shuffle":
			o.shuffle = opt.BoolValue()
		case "skip":
			o.skip = opt.BoolValue()
		}
	}
	slog.Info("cmd play", "guildID", i.GuildID, "userID", userIDOf(i), "query", query, "immediate", o.immediate, "shuffle", o.shuffle, "skip", o.skip)
	h.enqueueAndMaybeStart(s, i, query, o)
}

func (h *CommandHandler) cmdStop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := h.playerOf(s, i)
	if player == nil {
		return
	}
	if player.Track() == nil {
		h.reply(s, i, "not currently playing", true)
		return
	}
	player.Queue().Clear()
	if err := player.Stop(context.Background()); err != nil {
		slog.Warn("stop failed", "guildID", i.GuildID, "err", err)
		h.reply(s, i, "stop failed", true)
		return
	}
	slog.Info("cmd stop", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "u betcha, stopped", false)
}

func (h *CommandHandler) cmdDisconnect(s *discordgo.Session, i *discordgo.InteractionCreate) {
	g := guildOf(i)
	if !h.client.Players().Has(g) {
		h.reply(s, i, "not connected", true)
		return
	}
	if err := s.ChannelVoiceJoinManual(i.GuildID, "", false, true); err != nil {
		slog.Warn("leave voice failed", "guildID", i.GuildID, "err", err)
	}
	if err := h.client.Destroy(context.Background(), g); err != nil {
		slog.Warn("destroy player failed", "guildID", i.GuildID, "err", err)
	}
	slog.Info("cmd disconnect", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "u betcha, disconnected", false)
}

func (h *CommandHandler) cmdClear(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := h.playerOf(s, i)
	if player == nil {
		return
	}
	player.Queue().Clear()
	slog.Info("cmd clear queue", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "clearer than a field after a fresh harvest", false)
}

func (h *CommandHandler) cmdNowPlaying(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := h.client.Player(guildOf(i))
	if player == nil || player.Track() == nil {
		h.reply(s, i, "nothing is currently playing", true)
		return
	}
	st := player.State()
	slog.Debug("cmd now-playing", "guildID", i.GuildID, "userID", userIDOf(i), "title", st.Track.Title())
	h.replyEmbed(s, i, ui.BuildPlayingEmbed(st), false)
}

func (h *CommandHandler) cmdSeek(s *discordgo.Session, i *discordgo.InteractionCreate, relative bool) {
	player := h.playerOf(s, i)
	if player == nil {
		return
	}
	cur := player.Track()
	if cur == nil {
		h.reply(s, i, "nothing is playing", true)
		return
	}
	if cur.IsStream() {
		h.reply(s, i, "can't seek in a livestream", true)
		return
	}
	var tstr string
	for _, o := range i.ApplicationCommandData().Options {
		if o.Name == "time" {
			tstr = o.StringValue()
		}
	}
	sec := utils.ParseDurationString(tstr)
	if sec < 0 || (relative && sec == 0) {
		h.reply(s, i, "invalid time", true)
		return
	}
	target := int64(sec) * 1000
	if relative {
		target += player.Position()
	}
	if target > cur.Duration() {
		h.reply(s, i, "can't seek past the end of the song", true)
		return
	}
	if err := player.Seek(context.Background(), target); err != nil {
		slog.Debug("seek failed", "guildID", i.GuildID, "err", err)
		h.reply(s, i, "seek failed", true)
		return
	}
	slog.Info("cmd seek", "guildID", i.GuildID, "userID", userIDOf(i), "positionMs", target, "relative", relative)
	h.reply(s, i, "👍 seeked to "+utils.PrettyMillis(target), false)
}

func (h *CommandHandler) cmdToggleLoop(s *discordgo.Session, i *discordgo.InteractionCreate, mode plib.LoopMode) {
	player := h.playerOf(s, i)
	if player == nil {
		return
	}
	if mode == plib.LoopTrack && player.Track() == nil {
		h.reply(s, i, "no song to loop!", true)
		return
	}
	q := player.Queue()
	on := q.Loop() != mode
	if on {
		q.SetLoop(mode)
	} else {
		q.SetLoop(plib.LoopNone)
	}
	slog.Info("cmd loop", "guildID", i.GuildID, "userID", userIDOf(i), "mode", mode, "on", on)
	switch {
	case on && mode == plib.LoopQueue:
		h.reply(s, i, "looped queue :)", false)
	case on:
		h.reply(s, i, "looped :)", false)
	case mode == plib.LoopQueue:
		h.reply(s, i, "stopped looping queue :(", false)
	default:
		h.reply(s, i, "stopped looping :(", false)
	}
}

func (h *CommandHandler) cmdMove(s *discordgo.Session, i *discordgo.InteractionCreate) {
	var from, to int
	for _, o := range i.ApplicationCommandData().Options {
		if o.Name == "from" {
			from = int(o.IntValue())
		}
		if o.Name == "to" {
			to = int(o.IntValue())
		}
	}
	if from < 1 || to < 1 {
		h.reply(s, i, "position must be at least 1", true)
		return
	}
	player := h.playerOf(s, i)
	if player == nil {
		return
	}
	item, err := player.Queue().Move(from-1, to-1)
	if err != nil {
		slog.Debug("move failed", "guildID", i.GuildID, "from", from, "to", to, "err", err)
		h.reply(s, i, "position is outside the queue", true)
		return
	}
	slog.Info("cmd move", "guildID", i.GuildID, "userID", userIDOf(i), "from", from, "to", to, "title", item.Title())
	h.reply(s, i, fmt.Sprintf("moved %s to position %d", utils.EscapeMd(item.Title()), to), false)
}

func (h *CommandHandler) cmdNext(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := h.playerOf(s, i)
	if player == nil {
		return
	}
	next, err := player.Queue().Advance(context.Background())
	if err != nil {
		slog.Debug("next failed", "guildID", i.GuildID, "err", err)
		h.reply(s, i, "couldn't skip: "+err.Error(), true)
		return
	}
	if next == nil {
		h.reply(s, i, "no song to skip to", true)
		return
	}
	slog.Info("cmd next", "guildID", i.GuildID, "userID", userIDOf(i), "title", next.Title())
	h.reply(s, i, "skipped to "+utils.EscapeMd(next.Title()), false)
}

func (h *CommandHandler) cmdSkip(s *discordgo.Session, i *discordgo.InteractionCreate) {
	pos, drop := 1, false
	for _, o := range i.ApplicationCommandData().Options {
		switch o.Name {
		case "position":
			pos = int(o.IntValue())
		case "drop":
			drop = o.BoolValue()
		}
	}
	player := h.playerOf(s, i)
	if player == nil {
		return
	}
	next, err := player.Queue().Skip(context.Background(), pos-1, drop)
	if errors.Is(err, plib.ErrIndexOutOfRange) {
		h.reply(s, i, "position is outside the queue", true)
		return
	}
	if err != nil {
		slog.Debug("skip failed", "guildID", i.GuildID, "pos", pos, "err", err)
		h.reply(s, i, "couldn't skip: "+err.Error(), true)
		return
	}
	slog.Info("cmd skip", "guildID", i.GuildID, "userID", userIDOf(i), "pos", pos, "drop", drop)
	h.reply(s, i, "skipped to "+utils.EscapeMd(next.Title()), false)
}

func (h *CommandHandler) cmdPause(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := h.playerOf(s, i)
	if player == nil {
		return
	}
	if player.Track() == nil || player.Paused() {
		h.reply(s, i, "not currently playing", true)
		return
	}
	if err := player.SetPaused(context.Background(), true); err != nil {
		slog.Debug("pause failed", "guildID", i.GuildID, "err", err)
		h.reply(s, i, err.Error(), true)
		return
	}
	slog.Info("cmd pause", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "the stop-and-go light is now red", false)
}

func (h *CommandHandler) cmdResume(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := h.playerOf(s, i)
	if player == nil {
		return
	}
	ctx := context.Background()
	if !player.Paused() && player.Track() != nil {
		h.reply(s, i, "already playing, give me a song name", true)
		return
	}
	if err := player.SetPaused(ctx, false); err != nil {
		slog.Debug("resume failed", "guildID", i.GuildID, "err", err)
		h.reply(s, i, err.Error(), true)
		return
	}
	if player.Track() == nil {
		next, err := player.Queue().Advance(ctx)
		if err != nil || next == nil {
			h.reply(s, i, "nothing to play", true)
			return
		}
	}
	slog.Info("cmd resume", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "the stop-and-go light is now green", false)
}

func (h *CommandHandler) cmdQueue(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	set, err := h.settings(ctx, i.GuildID)
	if err != nil {
		slog.Error("get settings failed", "guildID", i.GuildID, "err", err)
		h.reply(s, i, "failed to fetch settings", true)
		return
	}

	page := 1
	pageSize := set.DefaultQueuePageSize
	for _, o := range i.ApplicationCommandData().Options {
		if o.Name == "page" {
			page = int(o.IntValue())
		} else if o.Name == "page-size" {
			pageSize = min(max(int(o.IntValue()), 1), 30)
		}
	}
	player := h.client.Player(guildOf(i))
	if player == nil {
		h.reply(s, i, ui.ErrQueueEmpty.Error(), true)
		return
	}

	embed, err := ui.BuildQueueEmbed(player.State(), player.Queue().Pending(), page, pageSize)
	if err != nil {
		slog.Debug("build queue embed failed", "guildID", i.GuildID, "page", page, "pageSize", pageSize, "err", err)
		h.reply(s, i, err.Error(), true)
		return
	}
	h.replyEmbed(s, i, embed, true)
	slog.Debug("cmd queue", "guildID", i.GuildID, "userID", userIDOf(i), "page", page, "pageSize", pageSize)
}

func (h *CommandHandler) cmdRemove(s *discordgo.Session, i *discordgo.InteractionCreate) {
	pos := 1
	cnt := 1
	for _, o := range i.ApplicationCommandData().Options {
		if o.Name == "position" {
			pos = int(o.IntValue())
		} else if o.Name == "range" {
			cnt = int(o.IntValue())
		}
	}
	player := h.playerOf(s, i)
	if player == nil {
		return
	}
	removed, err := player.Queue().Remove(pos-1, cnt)
	if err != nil {
		slog.Debug("remove from queue failed", "guildID", i.GuildID, "pos", pos, "cnt", cnt, "err", err)
		h.reply(s, i, "position is outside the queue", true)
		return
	}
	slog.Info("cmd remove", "guildID", i.GuildID, "userID", userIDOf(i), "pos", pos, "cnt", len(removed))
	h.reply(s, i, ":wastebasket: removed", false)
}

func (h *CommandHandler) cmdReplay(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := h.playerOf(s, i)
	if player == nil {
		return
	}
	if player.Track() == nil {
		h.reply(s, i, "nothing is playing", true)
		return
	}
	if err := player.Seek(context.Background(), 0); err != nil {
		slog.Debug("replay failed", "guildID", i.GuildID, "err", err)
		h.reply(s, i, err.Error(), true)
		return
	}
	slog.Info("cmd replay", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "👍 replayed the current song", false)
}

func (h *CommandHandler) cmdUnskip(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := h.playerOf(s, i)
	if player == nil {
		return
	}
	prev, err := player.Queue().Previous(context.Background())
	if err != nil {
		slog.Debug("unskip failed", "guildID", i.GuildID, "err", err)
		h.reply(s, i, "couldn't go back: "+err.Error(), true)
		return
	}
	if prev == nil {
		h.reply(s, i, "no song to go back to", true)
		return
	}
	slog.Info("cmd unskip", "guildID", i.GuildID, "userID", userIDOf(i), "title", prev.Title())
	h.reply(s, i, fmt.Sprintf("back 'er up', now playing %s", utils.EscapeMd(prev.Title())), false)
}

func (h *CommandHandler) cmdShuffle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := h.playerOf(s, i)
	if player == nil {
		return
	}
	if player.Queue().Len() < 2 {
		h.reply(s, i, "not enough songs to shuffle", true)
		return
	}
	player.Queue().Shuffle()
	slog.Info("cmd shuffle", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "🔀 shuffled", false)
}

func (h *CommandHandler) cmdRandom(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := h.playerOf(s, i)
	if player == nil {
		return
	}
	next, err := player.Queue().Random(context.Background())
	if err != nil {
		slog.Debug("random failed", "guildID", i.GuildID, "err", err)
		h.reply(s, i, "couldn't skip: "+err.Error(), true)
		return
	}
	if next == nil {
		h.reply(s, i, "the queue is empty", true)
		return
	}
	slog.Info("cmd random", "guildID", i.GuildID, "userID", userIDOf(i), "title", next.Title())
	h.reply(s, i, "🎲 now playing "+utils.EscapeMd(next.Title()), false)
}

func (h *CommandHandler) cmdVolume(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := h.playerOf(s, i)
	if player == nil {
		return
	}
	level := int(i.ApplicationCommandData().Options[0].IntValue())
	if err := player.SetVolume(context.Background(), level); err != nil {
		slog.Debug("volume failed", "guildID", i.GuildID, "level", level, "err", err)
		h.reply(s, i, err.Error(), true)
		return
	}
	slog.Info("cmd volume", "guildID", i.GuildID, "userID", userIDOf(i), "level", level)
	h.reply(s, i, fmt.Sprintf("🔊 volume set to %d%%", player.Volume()), false)
}

func (h *CommandHandler) cmdFilter(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := h.playerOf(s, i)
	if player == nil {
		return
	}
	name := i.ApplicationCommandData().Options[0].StringValue()
	f, err := presetFilters(name)
	if err != nil {
		h.reply(s, i, err.Error(), true)
		return
	}
	if err := player.SetFilters(context.Background(), f); err != nil {
		slog.Debug("set filters failed", "guildID", i.GuildID, "preset", name, "err", err)
		h.reply(s, i, "couldn't apply filter: "+err.Error(), true)
		return
	}
	slog.Info("cmd filter", "guildID", i.GuildID, "userID", userIDOf(i), "preset", name)
	if f.IsZero() {
		h.reply(s, i, "🎛️ filters cleared", false)
		return
	}
	h.reply(s, i, "🎛️ applied "+name, false)
}

func (h *CommandHandler) cmdSaveQueue(s *discordgo.Session, i *discordgo.InteractionCreate) {
	exp, err := h.client.SaveQueue(context.Background(), guildOf(i))
	if errors.Is(err, plib.ErrPlayerNotFound) {
		h.reply(s, i, "not connected", true)
		return
	}
	if err != nil {
		slog.Warn("save queue failed", "guildID", i.GuildID, "err", err)
		h.reply(s, i, "failed to save the queue", true)
		return
	}
	slog.Info("cmd save-queue", "guildID", i.GuildID, "userID", userIDOf(i), "pending", len(exp.Pending))
	h.reply(s, i, fmt.Sprintf("💾 saved %d queued songs", len(exp.Pending)), false)
}

func (h *CommandHandler) cmdRestoreQueue(s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.deferReply(s, i, false)
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	n, err := h.client.RestoreQueue(ctx, guildOf(i))
	switch {
	case errors.Is(err, plib.ErrPlayerNotFound):
		h.editReply(s, i, "not connected, play something first")
		return
	case err != nil:
		slog.Warn("restore queue failed", "guildID", i.GuildID, "err", err)
		h.editReply(s, i, "failed to restore the queue")
		return
	case n == 0:
		h.editReply(s, i, "there's no saved queue")
		return
	}
	slog.Info("cmd restore-queue", "guildID", i.GuildID, "userID", userIDOf(i), "pending", n)
	h.editReply(s, i, fmt.Sprintf("📂 restored %d songs", n))
}
