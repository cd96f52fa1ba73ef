package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/calliope/internal/player"
	"github.com/sonroyaalmerol/calliope/internal/track"
	"github.com/sonroyaalmerol/calliope/internal/utils"
)

var (
	ErrQueueEmpty = errors.New("queue is empty")
	ErrPageRange  = errors.New("the queue isn't that big")
)

const (
	colorPlaying = 0x006400
	colorPaused  = 0x8B0000
	colorIdle    = 0x992222
)

func trackLink(t track.Track) string {
	title := utils.EscapeMd(utils.Truncate(t.Title(), 80))
	if t.URI() == "" {
		return title
	}
	return fmt.Sprintf("[%s](%s)", title, t.URI())
}

func trackLength(t track.Track) string {
	if t.IsStream() {
		return "live"
	}
	return t.Timestamp()
}

func loopIcon(m player.LoopMode) string {
	switch m {
	case player.LoopTrack:
		return "🔂"
	case player.LoopQueue:
		return "🔁"
	}
	return ""
}

// progressLine renders "⏹️ ▬▬🔘▬ `[ 1:02/3:45 ]` 🔁" for the current track.
func progressLine(st player.State) string {
	cur := st.Track
	button := "▶️"
	if st.Playing {
		button = "⏹️"
	}
	progress := 0.0
	if cur.Duration() > 0 {
		progress = float64(st.Position) / float64(cur.Duration())
	}
	elapsed := "live"
	if !cur.IsStream() {
		elapsed = fmt.Sprintf("%s/%s", utils.PrettyMillis(st.Position), cur.Timestamp())
	}
	return strings.TrimSpace(fmt.Sprintf("%s %s `[ %s ]` %s", button, ProgressBar(10, progress), elapsed, loopIcon(st.Loop)))
}

func thumbnail(t *track.Track) *discordgo.MessageEmbedThumbnail {
	if t.ArtworkURL() == "" {
		return nil
	}
	return &discordgo.MessageEmbedThumbnail{URL: t.ArtworkURL()}
}

func BuildPlayingEmbed(st player.State) *discordgo.MessageEmbed {
	cur := st.Track
	if cur == nil {
		return &discordgo.MessageEmbed{
			Title:       "Nothing Playing",
			Description: "No playing song found",
			Color:       colorIdle,
		}
	}

	title, color := "Now Playing", colorPlaying
	if st.Paused {
		title, color = "Paused", colorPaused
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: fmt.Sprintf("**%s**\n\n%s", trackLink(*cur), progressLine(st)),
		Color:       color,
		Thumbnail:   thumbnail(cur),
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("%s · %s · volume %d%%", cur.Artist(), cur.SourceName(), st.Volume),
		},
	}
}

// BuildQueueEmbed shows page (1-based) of pending with the current track on
// top.
func BuildQueueEmbed(st player.State, pending []track.Track, page, pageSize int) (*discordgo.MessageEmbed, error) {
	cur := st.Track
	if cur == nil && len(pending) == 0 {
		return nil, ErrQueueEmpty
	}
	if pageSize < 1 {
		pageSize = 10
	}
	maxPage := max((len(pending)+pageSize-1)/pageSize, 1)
	if page < 1 || page > maxPage {
		return nil, ErrPageRange
	}

	var b strings.Builder
	if cur != nil {
		fmt.Fprintf(&b, "**%s**\n%s\n\n", trackLink(*cur), progressLine(st))
	}

	begin := (page - 1) * pageSize
	end := min(begin+pageSize, len(pending))
	if begin < end {
		b.WriteString("**Up next:**\n")
		for idx, t := range pending[begin:end] {
			fmt.Fprintf(&b, "`%d.` %s `[ %s ]`\n", begin+idx+1, trackLink(t), trackLength(t))
		}
	}

	var total int64
	for _, t := range pending {
		if !t.IsStream() {
			total += t.Duration()
		}
	}

	embed := &discordgo.MessageEmbed{
		Title:       strings.TrimSpace("Queue " + loopIcon(st.Loop)),
		Description: b.String(),
		Color:       colorPlaying,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "In queue", Value: songCount(len(pending)), Inline: true},
			{Name: "Total length", Value: totalLen(total), Inline: true},
			{Name: "Page", Value: fmt.Sprintf("%d out of %d", page, maxPage), Inline: true},
		},
	}
	if cur != nil {
		embed.Thumbnail = thumbnail(cur)
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "Source: " + cur.Artist()}
	}
	return embed, nil
}

// BuildTrackAddedEmbed announces what a load added to the queue.
func BuildTrackAddedEmbed(res *track.LoadResult, added int, startedNow bool) *discordgo.MessageEmbed {
	verb := "Queued"
	if startedNow {
		verb = "Playing"
	}
	desc := fmt.Sprintf("**%s**", utils.EscapeMd(res.Name()))
	if t, ok := res.Representative(); ok && res.Type != track.LoadPlaylist {
		desc = fmt.Sprintf("**%s** `[ %s ]`", trackLink(t), trackLength(t))
	}
	if added > 1 {
		desc += fmt.Sprintf("\n%d tracks, %s", added, totalLen(res.Duration()))
	}
	embed := &discordgo.MessageEmbed{Title: verb, Description: desc, Color: colorPlaying}
	if t, ok := res.Representative(); ok {
		embed.Thumbnail = thumbnail(&t)
	}
	return embed
}

func songCount(n int) string {
	switch n {
	case 0:
		return "-"
	case 1:
		return "1 song"
	}
	return fmt.Sprintf("%d songs", n)
}

func totalLen(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return utils.PrettyMillis(ms)
}
