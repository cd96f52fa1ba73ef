// Package sponsorblock drives the node's SponsorBlock plugin: which segment
// categories each guild skips, and how skipped segments are reported.
package sponsorblock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/sonroyaalmerol/calliope/internal/rest"
)

// Categories are the segment categories the plugin accepts.
var Categories = []string{
	"sponsor", "selfpromo", "interaction", "intro", "outro",
	"preview", "music_offtopic", "filler",
}

var ErrUnknownCategory = errors.New("unknown sponsorblock category")

// ParseCategories splits a comma separated list, dropping blanks and
// duplicates. Unknown names are an error.
func ParseCategories(s string) ([]string, error) {
	var out []string
	for _, c := range strings.Split(s, ",") {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || slices.Contains(out, c) {
			continue
		}
		if !slices.Contains(Categories, c) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, c)
		}
		out = append(out, c)
	}
	return out, nil
}

// Store is the node side of the category routes.
type Store interface {
	GetCategories(ctx context.Context, guild snowflake.ID) ([]string, error)
	UpdateCategories(ctx context.Context, guild snowflake.ID, categories []string) error
	DeleteCategories(ctx context.Context, guild snowflake.ID) error
}

type Service struct {
	store Store
	cache *Cache[[]string]
}

func NewService(store Store) *Service {
	return &Service{store: store, cache: NewCache[[]string](10 * time.Minute)}
}

// Get returns the categories the node skips for guild.
func (s *Service) Get(ctx context.Context, guild snowflake.ID) ([]string, error) {
	if cats, ok := s.cache.Get(guild.String()); ok {
		return cats, nil
	}
	cats, err := s.store.GetCategories(ctx, guild)
	if errors.Is(err, rest.ErrNotFound) {
		cats, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.cache.Set(guild.String(), cats)
	return cats, nil
}

// Set replaces guild's categories; an empty list turns skipping off.
func (s *Service) Set(ctx context.Context, guild snowflake.ID, cats []string) error {
	var err error
	if len(cats) == 0 {
		err = s.store.DeleteCategories(ctx, guild)
		if errors.Is(err, rest.ErrNotFound) {
			err = nil
		}
	} else {
		err = s.store.UpdateCategories(ctx, guild, cats)
	}
	if err != nil {
		s.cache.Delete(guild.String())
		return err
	}
	s.cache.Set(guild.String(), cats)
	slog.Debug("sponsorBlock categories set", "guildID", guild, "categories", cats)
	return nil
}

// Apply pushes a stored comma separated list to a freshly created player.
// Empty lists are not sent.
func (s *Service) Apply(ctx context.Context, guild snowflake.ID, csv string) error {
	cats, err := ParseCategories(csv)
	if err != nil {
		return err
	}
	if len(cats) == 0 {
		return nil
	}
	return s.Set(ctx, guild, cats)
}
