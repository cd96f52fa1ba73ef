package handlers

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/sonroyaalmerol/calliope/internal/filters"
	"github.com/sonroyaalmerol/calliope/internal/player"
	"github.com/sonroyaalmerol/calliope/internal/track"
	"github.com/sonroyaalmerol/calliope/internal/utils"
)

type enqueueOpts struct {
	immediate bool
	shuffle   bool
	skip      bool
}

// pickTracks selects what a load result adds: a whole playlist (capped at
// limit), or just the representative track of single and search results.
func pickTracks(res *track.LoadResult, limit int) []track.Track {
	if res.Type != track.LoadPlaylist {
		if t, ok := res.Representative(); ok {
			return []track.Track{t}
		}
		return nil
	}
	if t, ok := res.Selected(); ok {
		return []track.Track{t}
	}
	out := slices.Clone(res.Tracks)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// enqueue adds tracks to p's queue. With immediate they go to the front of
// the pending list; with skip the current track is replaced by the first of
// them. It returns the track that started playing, if any.
func enqueue(ctx context.Context, p *player.Player, tracks []track.Track, o enqueueOpts) (*track.Track, error) {
	if len(tracks) == 0 {
		return nil, nil
	}
	tracks = slices.Clone(tracks)
	if o.shuffle {
		utils.ShuffleSlice(tracks)
	}

	q := p.Queue()
	before := q.Len()
	started, err := q.Add(ctx, tracks...)
	if err != nil {
		return nil, err
	}
	if started != nil {
		return started, nil
	}

	if o.immediate {
		for j := range tracks {
			if _, err := q.Move(before+j, j); err != nil {
				return nil, err
			}
		}
	}
	if o.skip {
		idx := 0
		if !o.immediate {
			idx = before
		}
		return q.Skip(ctx, idx, false)
	}
	return nil, nil
}

var presets = map[string]func() (filters.Filters, error){
	"reset": func() (filters.Filters, error) { return filters.Filters{}, nil },
	"nightcore": func() (filters.Filters, error) {
		return filters.NewBuilder().Timescale(filters.Timescale{Speed: 1.2, Pitch: 1.2, Rate: 1}).Build()
	},
	"vaporwave": func() (filters.Filters, error) {
		return filters.NewBuilder().
			Timescale(filters.Timescale{Speed: 0.85, Pitch: 0.8, Rate: 1}).
			Equalizer(0, 0.3).Equalizer(1, 0.3).
			Build()
	},
	"bassboost": func() (filters.Filters, error) {
		b := filters.NewBuilder()
		for band, gain := range []float64{0.2, 0.15, 0.1, 0.05} {
			b.Equalizer(band, gain)
		}
		return b.Build()
	},
	"karaoke": func() (filters.Filters, error) {
		return filters.NewBuilder().Karaoke(filters.Karaoke{Level: 1, MonoLevel: 1, FilterBand: 220, FilterWidth: 100}).Build()
	},
	"8d": func() (filters.Filters, error) {
		return filters.NewBuilder().Rotation(0.2).Build()
	},
	"tremolo": func() (filters.Filters, error) {
		return filters.NewBuilder().Tremolo(filters.Oscillation{Frequency: 4, Depth: 0.6}).Build()
	},
	"soft": func() (filters.Filters, error) {
		return filters.NewBuilder().LowPass(20).Build()
	},
}

func presetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func presetFilters(name string) (filters.Filters, error) {
	fn, ok := presets[strings.ToLower(name)]
	if !ok {
		return filters.Filters{}, fmt.Errorf("unknown filter preset %q", name)
	}
	return fn()
}
