package autocomplete

import (
	"context"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/calliope/internal/rest"
	"github.com/sonroyaalmerol/calliope/internal/spotify"
	"github.com/sonroyaalmerol/calliope/internal/track"
	"github.com/sonroyaalmerol/calliope/internal/utils"
)

// Discord rejects choice names and values longer than this.
const maxChoiceLen = 100

type Searcher interface {
	Search(ctx context.Context, provider rest.Provider, query string) (*track.LoadResult, error)
}

type SpotifySuggester interface {
	Suggest(ctx context.Context, query string, limit int) ([]spotify.Suggestion, error)
}

func choice(name, value string) *discordgo.ApplicationCommandOptionChoice {
	return &discordgo.ApplicationCommandOptionChoice{
		Name:  utils.Truncate(name, maxChoiceLen),
		Value: utils.Truncate(value, maxChoiceLen),
	}
}

// Suggest builds /play autocompletion choices: node search hits first, then
// Spotify albums and tracks when sp is set. Failures of either source only
// shrink the list.
func Suggest(ctx context.Context, node Searcher, sp SpotifySuggester, provider rest.Provider, query string, limit int) []*discordgo.ApplicationCommandOptionChoice {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if limit <= 0 || limit > 25 {
		limit = 25
	}

	spLimit := 0
	if sp != nil {
		spLimit = limit / 4
	}
	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, limit)

	res, err := node.Search(ctx, provider, query)
	if err != nil {
		slog.Debug("autocomplete search failed", "provider", provider, "err", err)
	} else {
		for _, t := range res.Tracks {
			if len(out) >= limit-2*spLimit {
				break
			}
			name := t.Title()
			if t.Info.Author != "" {
				name += " - " + t.Info.Author
			}
			value := t.Info.URI
			if value == "" || len(value) > maxChoiceLen {
				value = string(provider) + ":" + t.Title()
			}
			out = append(out, choice(name, value))
		}
	}

	if sp != nil && spLimit > 0 {
		hits, err := sp.Suggest(ctx, query, spLimit)
		if err != nil {
			slog.Debug("spotify autocomplete failed", "err", err)
		}
		for _, h := range hits {
			if len(out) >= limit {
				break
			}
			out = append(out, choice("Spotify: "+h.Label, h.Value))
		}
	}
	return out
}
