package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sonroyaalmerol/calliope/internal/repository"
	"github.com/sonroyaalmerol/calliope/internal/track"
)

// Decoder is the upstream that turns tokens into tracks, normally the node.
type Decoder interface {
	DecodeTracks(ctx context.Context, encoded []string) ([]track.Track, error)
}

// TrackCache sits in front of a Decoder and remembers decoded tracks in
// SQLite, keyed by the sha256 of the token. The least recently read rows are
// evicted past limit.
type TrackCache struct {
	next  Decoder
	repo  *repository.Repo
	limit int
	mu    sync.Mutex
}

func NewTrackCache(next Decoder, repo *repository.Repo, limit int) *TrackCache {
	return &TrackCache{next: next, repo: repo, limit: limit}
}

func (c *TrackCache) HashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (c *TrackCache) Get(ctx context.Context, encoded string) (track.Track, bool) {
	raw, err := c.repo.CacheGet(ctx, c.HashKey(encoded))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Warn("track cache read failed", "err", err)
		}
		return track.Track{}, false
	}
	t, err := track.Decode(raw)
	if err != nil {
		_ = c.repo.CacheRemove(ctx, c.HashKey(encoded))
		return track.Track{}, false
	}
	return t, true
}

// Put remembers tracks under their own tokens.
func (c *TrackCache) Put(ctx context.Context, tracks ...track.Track) error {
	for _, t := range tracks {
		if t.Encoded == "" {
			continue
		}
		raw, err := json.Marshal(t)
		if err != nil {
			return err
		}
		if err := c.repo.CachePut(ctx, c.HashKey(t.Encoded), raw); err != nil {
			return err
		}
	}
	return c.evictIfNeeded(ctx)
}

// DecodeTracks answers from the cache where it can and sends the misses
// upstream in one call. Order is preserved.
func (c *TrackCache) DecodeTracks(ctx context.Context, encoded []string) ([]track.Track, error) {
	out := make([]track.Track, len(encoded))
	var missIdx []int
	var missTok []string
	for i, e := range encoded {
		if t, ok := c.Get(ctx, e); ok {
			out[i] = t
			continue
		}
		missIdx = append(missIdx, i)
		missTok = append(missTok, e)
	}
	if len(missTok) == 0 {
		return out, nil
	}

	decoded, err := c.next.DecodeTracks(ctx, missTok)
	if err != nil {
		return nil, err
	}
	if len(decoded) != len(missTok) {
		return nil, fmt.Errorf("decode: got %d tracks for %d tokens", len(decoded), len(missTok))
	}
	for j, i := range missIdx {
		// keep the token the caller holds even if the node re-encoded it
		decoded[j].Encoded = missTok[j]
		out[i] = decoded[j]
	}
	if err := c.Put(ctx, decoded...); err != nil {
		slog.Warn("track cache write failed", "err", err)
	}
	slog.Debug("decoded tracks", "hits", len(encoded)-len(missTok), "misses", len(missTok))
	return out, nil
}

func (c *TrackCache) evictIfNeeded(ctx context.Context) error {
	if c.limit <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.repo.CacheTrim(ctx, c.limit)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Debug("evicted cached tracks", "count", n)
	}
	return nil
}
