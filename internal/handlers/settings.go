package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	plib "github.com/sonroyaalmerol/calliope/internal/player"
	"github.com/sonroyaalmerol/calliope/internal/repository"
	"github.com/sonroyaalmerol/calliope/internal/rest"
	"github.com/sonroyaalmerol/calliope/internal/sponsorblock"
	"github.com/sonroyaalmerol/calliope/internal/utils"
)

func (h *CommandHandler) cmdFavorites(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sub := i.ApplicationCommandData().Options[0]
	opts := optionMap(sub.Options)
	ctx := context.Background()
	switch sub.Name {
	case "create":
		name, query := opts["name"].StringValue(), opts["query"].StringValue()
		if err := h.favs.Create(ctx, i.GuildID, userIDOf(i), name, query); err != nil {
			if strings.Contains(err.Error(), "UNIQUE") {
				h.reply(s, i, "a favorite with that name already exists", true)
				return
			}
			slog.Warn("favorite create failed", "guildID", i.GuildID, "userID", userIDOf(i), "name", name, "err", err)
			h.reply(s, i, "failed to create favorite", true)
			return
		}
		slog.Info("favorite created", "guildID", i.GuildID, "userID", userIDOf(i), "name", name)
		h.reply(s, i, "👍 favorite created", false)
	case "remove":
		name := opts["name"].StringValue()
		f, err := h.favs.Use(ctx, i.GuildID, name)
		if err != nil {
			h.reply(s, i, "no favorite with that name exists", true)
			return
		}
		if userIDOf(i) != f.Author {
			h.reply(s, i, "you can only remove your own favorites", true)
			return
		}
		if _, err := h.favs.Remove(ctx, i.GuildID, name); err != nil {
			slog.Warn("favorite remove failed", "guildID", i.GuildID, "userID", userIDOf(i), "name", name, "err", err)
			h.reply(s, i, "failed to remove favorite", true)
			return
		}
		slog.Info("favorite removed", "guildID", i.GuildID, "userID", userIDOf(i), "name", name)
		h.reply(s, i, "👍 favorite removed", false)
	case "list":
		items, err := h.favs.List(ctx, i.GuildID)
		if err != nil {
			slog.Warn("favorite list failed", "guildID", i.GuildID, "err", err)
		}
		if len(items) == 0 {
			h.reply(s, i, "there aren't any favorites yet", false)
			return
		}
		var b strings.Builder
		for _, f := range items {
			fmt.Fprintf(&b, "• %s: %s (<@%s>)\n", utils.EscapeMd(f.Name), f.Query, f.Author)
		}
		slog.Debug("favorite list", "guildID", i.GuildID, "count", len(items))
		h.reply(s, i, b.String(), true)
	case "use":
		var o enqueueOpts
		if v, ok := opts["immediate"]; ok {
			o.immediate = v.BoolValue()
		}
		if v, ok := opts["shuffle"]; ok {
			o.shuffle = v.BoolValue()
		}
		if v, ok := opts["skip"]; ok {
			o.skip = v.BoolValue()
		}
		name := opts["name"].StringValue()
		f, err := h.favs.Use(ctx, i.GuildID, name)
		if err != nil {
			h.reply(s, i, "no favorite with that name exists", true)
			return
		}
		slog.Info("favorite used", "guildID", i.GuildID, "userID", userIDOf(i), "name", name)
		h.enqueueAndMaybeStart(s, i, f.Query, o)
	}
}

func formatSettings(set *repository.Settings, fallback rest.Provider) string {
	provider := set.SearchProvider
	if provider == "" {
		provider = string(fallback) + " (default)"
	}
	categories := set.SponsorBlockCategories
	if categories == "" {
		categories = "off"
	}
	return fmt.Sprintf(
		"Config\n- Default volume: %d\n- Default loop: %s\n- Auto announce next song: %t\n- Default queue page size: %d\n- Search provider: %s\n- SponsorBlock: %s",
		set.DefaultVolume,
		set.DefaultLoop,
		set.AutoAnnounceNext,
		set.DefaultQueuePageSize,
		provider,
		categories,
	)
}

// updateSetting validates and applies one config subcommand to set. It
// returns the reply text.
func updateSetting(set *repository.Settings, sub *discordgo.ApplicationCommandInteractionDataOption) (string, error) {
	opts := optionMap(sub.Options)
	switch sub.Name {
	case "set-default-volume":
		v := int(opts["level"].IntValue())
		if v < 0 || v > plib.MaxVolume {
			return "", plib.ErrInvalidVolume
		}
		set.DefaultVolume = v
		return "👍 volume setting updated", nil
	case "set-default-loop":
		mode, err := plib.ParseLoopMode(opts["mode"].StringValue())
		if err != nil {
			return "", err
		}
		set.DefaultLoop = mode.String()
		return "👍 default loop updated", nil
	case "set-auto-announce-next-song":
		v := false
		if o, ok := opts["value"]; ok {
			v = o.BoolValue()
		}
		set.AutoAnnounceNext = v
		return "👍 auto announce setting updated", nil
	case "set-default-queue-page-size":
		v := int(opts["page_size"].IntValue())
		if v < 1 || v > 30 {
			return "", errors.New("page size must be within 1-30")
		}
		set.DefaultQueuePageSize = v
		return "👍 default queue page size updated", nil
	case "set-search-provider":
		set.SearchProvider = opts["provider"].StringValue()
		return "👍 search provider updated", nil
	case "set-sponsorblock":
		var csv string
		if o, ok := opts["categories"]; ok {
			csv = o.StringValue()
		}
		cats, err := sponsorblock.ParseCategories(csv)
		if err != nil {
			return "", fmt.Errorf("%w (known: %s)", err, strings.Join(sponsorblock.Categories, ", "))
		}
		set.SponsorBlockCategories = strings.Join(cats, ",")
		if len(cats) == 0 {
			return "👍 sponsorblock disabled", nil
		}
		return "👍 sponsorblock categories updated", nil
	}
	return "", fmt.Errorf("unknown setting %q", sub.Name)
}

func (h *CommandHandler) cmdConfig(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	set, err := h.settings(ctx, i.GuildID)
	if err != nil {
		slog.Error("get settings failed", "guildID", i.GuildID, "err", err)
		h.reply(s, i, "failed to fetch config", true)
		return
	}
	sub := i.ApplicationCommandData().Options[0]
	if sub.Name == "get" {
		slog.Debug("config get", "guildID", i.GuildID)
		h.reply(s, i, formatSettings(set, h.client.SearchProvider()), false)
		return
	}

	msg, err := updateSetting(set, sub)
	if err != nil {
		h.reply(s, i, err.Error(), true)
		return
	}
	if err := h.repo.UpdateSettings(ctx, set); err != nil {
		slog.Error("update settings failed", "guildID", i.GuildID, "err", err)
		h.reply(s, i, "failed to save config", true)
		return
	}
	slog.Info("config updated", "guildID", i.GuildID, "key", sub.Name)

	// the live player follows sponsorblock changes right away
	if sub.Name == "set-sponsorblock" && h.client.Player(guildOf(i)) != nil {
		cats, _ := sponsorblock.ParseCategories(set.SponsorBlockCategories)
		if err := h.sb.Set(ctx, guildOf(i), cats); err != nil {
			slog.Warn("sponsorblock update failed", "guildID", i.GuildID, "err", err)
		}
	}
	h.reply(s, i, msg, false)
}

func formatStats(st *rest.Stats, info *rest.Info, players int) string {
	var b strings.Builder
	b.WriteString("**Node**\n")
	if info != nil {
		fmt.Fprintf(&b, "- Version: %s (lavaplayer %s)\n", info.Version.Semver, info.Lavaplayer)
		if len(info.Plugins) > 0 {
			var names []string
			for _, p := range info.Plugins {
				names = append(names, p.Name+" "+p.Version)
			}
			fmt.Fprintf(&b, "- Plugins: %s\n", strings.Join(names, ", "))
		}
	}
	if st != nil {
		fmt.Fprintf(&b, "- Players: %d (%d playing)\n", st.Players, st.PlayingPlayers)
		fmt.Fprintf(&b, "- Uptime: %s\n", utils.PrettyMillis(st.Uptime))
		fmt.Fprintf(&b, "- Memory: %d MiB used of %d MiB\n", st.Memory.Used>>20, st.Memory.Allocated>>20)
		fmt.Fprintf(&b, "- CPU: %d cores, %.1f%% node load\n", st.CPU.Cores, st.CPU.LavalinkLoad*100)
		if fs := st.FrameStats; fs != nil {
			fmt.Fprintf(&b, "- Frames: %d sent, %d nulled, %d deficit\n", fs.Sent, fs.Nulled, fs.Deficit)
		}
	}
	fmt.Fprintf(&b, "- Players on this bot: %d", players)
	return b.String()
}

func (h *CommandHandler) cmdNode(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	st, err := h.client.Stats(ctx)
	if err != nil {
		slog.Warn("node stats failed", "err", err)
		h.reply(s, i, "couldn't reach the audio node", true)
		return
	}
	info, err := h.client.Rest().Info(ctx)
	if err != nil {
		slog.Debug("node info failed", "err", err)
	}
	h.reply(s, i, formatStats(st, info, h.client.Players().Len()), true)
}
