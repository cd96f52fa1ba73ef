package player

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/sonroyaalmerol/calliope/internal/track"
	"github.com/sonroyaalmerol/calliope/internal/utils"
)

// Decoder turns encoded tokens back into tracks, in order.
type Decoder interface {
	DecodeTracks(ctx context.Context, encoded []string) ([]track.Track, error)
}

// Queue is the client-side playlist of a player: tracks waiting to be played
// and, most recent first, tracks that have been played.
//
// Every operation that starts a track builds the next pending and history
// lists first, asks the node to play, and only commits them once the node
// accepted. A failed call leaves the queue as it was. The queue shares its
// player's lock.
type Queue struct {
	p *Player

	pending []track.Track
	history []track.Track
	loop    LoopMode
	// anchor is the track replayed in TRACK loop mode.
	anchor *track.Track

	shuffle func([]track.Track)
	randn   func(n int) int
}

func newQueue(p *Player) *Queue {
	return &Queue{
		p:       p,
		shuffle: utils.ShuffleSlice[track.Track],
		randn:   utils.RandIndex,
	}
}

func (q *Queue) Pending() []track.Track {
	q.p.mu.Lock()
	defer q.p.mu.Unlock()
	return slices.Clone(q.pending)
}

// History returns played tracks, most recent first.
func (q *Queue) History() []track.Track {
	q.p.mu.Lock()
	defer q.p.mu.Unlock()
	return slices.Clone(q.history)
}

func (q *Queue) Len() int {
	q.p.mu.Lock()
	defer q.p.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) Loop() LoopMode {
	q.p.mu.Lock()
	defer q.p.mu.Unlock()
	return q.loop
}

// SetLoop changes the loop mode. Switching to TRACK anchors on whatever is
// playing now; if nothing is, the next track started becomes the anchor.
func (q *Queue) SetLoop(mode LoopMode) {
	q.p.mu.Lock()
	defer q.p.mu.Unlock()
	q.loop = mode
	q.anchor = nil
	if mode == LoopTrack && q.p.track != nil {
		t := *q.p.track
		q.anchor = &t
	}
}

// Add appends tracks to the pending list. If the player is idle and not
// paused the first pending track is started; if that fails the tracks are
// taken back out and the error is returned. The returned track is the one
// started, if any.
func (q *Queue) Add(ctx context.Context, tracks ...track.Track) (*track.Track, error) {
	if len(tracks) == 0 {
		return nil, nil
	}
	q.p.mu.Lock()
	defer q.p.mu.Unlock()

	before := q.pending
	q.pending = append(slices.Clone(q.pending), tracks...)
	if q.p.track != nil || q.p.paused {
		return nil, nil
	}
	started, err := q.advanceLocked(ctx, nil, false)
	if err != nil {
		q.pending = before
		return nil, err
	}
	return started, nil
}

// Advance moves on to the next track as if the current one had finished.
func (q *Queue) Advance(ctx context.Context) (*track.Track, error) {
	q.p.mu.Lock()
	defer q.p.mu.Unlock()
	return q.advanceLocked(ctx, q.currentLocked(), false)
}

// AdvanceOnTrackEnd reacts to the node ending ended. Only natural ends move
// the queue; stop, replace and cleanup ends never call the node.
func (q *Queue) AdvanceOnTrackEnd(ctx context.Context, reason EndReason, ended track.Track) (*track.Track, error) {
	q.p.mu.Lock()
	defer q.p.mu.Unlock()

	// after a replace the player already carries the new track
	if reason == EndReplaced {
		return nil, nil
	}
	departing := ended
	if cur := q.p.track; cur != nil && cur.Equal(ended) {
		departing = *cur
		q.p.track = nil
	}
	q.p.playing = false

	if !reason.MayStartNext() {
		return nil, nil
	}
	// a track that failed to load would fail again
	if reason == EndLoadFailed && q.loop == LoopTrack {
		q.anchor = nil
	}
	next, err := q.advanceLocked(ctx, &departing, true)
	if err != nil {
		q.retireLocked(departing)
		return nil, err
	}
	return next, nil
}

// retireLocked files a track that stopped playing without a successor.
func (q *Queue) retireLocked(t track.Track) {
	if q.loop == LoopQueue {
		q.pending = append(slices.Clone(q.pending), t)
		return
	}
	q.history = prepend(q.history, t)
}

// advanceLocked picks the next track according to the loop mode. departing
// is the track being left, if any. ended tells whether playback already
// stopped; only then does an empty queue still retire the departing track.
func (q *Queue) advanceLocked(ctx context.Context, departing *track.Track, ended bool) (*track.Track, error) {
	switch {
	case q.loop == LoopTrack && q.anchor != nil && departing != nil:
		next := *q.anchor
		if err := q.p.playLocked(ctx, next); err != nil {
			return nil, err
		}
		return &next, nil

	case q.loop == LoopQueue:
		pending := slices.Clone(q.pending)
		if departing != nil {
			pending = append(pending, *departing)
		}
		if len(pending) == 0 || (!ended && len(q.pending) == 0) {
			return nil, nil
		}
		next := pending[0]
		if err := q.p.playLocked(ctx, next); err != nil {
			return nil, err
		}
		q.pending = pending[1:]
		return &next, nil
	}

	history := q.history
	if departing != nil {
		history = prepend(history, *departing)
	}
	if len(q.pending) == 0 {
		if ended {
			q.history = history
		}
		return nil, nil
	}
	next := q.pending[0]
	if err := q.p.playLocked(ctx, next); err != nil {
		return nil, err
	}
	q.pending = slices.Clone(q.pending[1:])
	q.history = history
	q.commitPlayedLocked(next)
	return &next, nil
}

// Skip plays pending[index]. A destructive skip also discards every track
// before it, pushing them to history in play order; otherwise only the
// chosen track leaves the pending list.
func (q *Queue) Skip(ctx context.Context, index int, destructive bool) (*track.Track, error) {
	q.p.mu.Lock()
	defer q.p.mu.Unlock()

	if index < 0 || index >= len(q.pending) {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(q.pending))
	}
	next := q.pending[index]
	history := q.history
	if cur := q.currentLocked(); cur != nil {
		history = prepend(history, *cur)
	}

	var pending []track.Track
	if destructive {
		for _, t := range q.pending[:index] {
			history = prepend(history, t)
		}
		history = prepend(history, next)
		pending = slices.Clone(q.pending[index+1:])
	} else {
		pending = slices.Delete(slices.Clone(q.pending), index, index+1)
	}

	if err := q.p.playLocked(ctx, next); err != nil {
		return nil, err
	}
	q.pending = pending
	q.history = history
	q.commitPlayedLocked(next)
	return &next, nil
}

// Previous replays history[1], the track played before the current one. It
// does nothing with fewer than two history entries.
func (q *Queue) Previous(ctx context.Context) (*track.Track, error) {
	q.p.mu.Lock()
	defer q.p.mu.Unlock()

	if len(q.history) < 2 {
		return nil, nil
	}
	next := q.history[1]
	if err := q.p.playLocked(ctx, next); err != nil {
		return nil, err
	}
	q.history = prepend(q.history, next)
	q.commitPlayedLocked(next)
	return &next, nil
}

// Random plays a uniformly chosen pending track.
func (q *Queue) Random(ctx context.Context) (*track.Track, error) {
	q.p.mu.Lock()
	defer q.p.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, nil
	}
	i := q.randn(len(q.pending))
	next := q.pending[i]
	pending := slices.Delete(slices.Clone(q.pending), i, i+1)
	history := q.history
	if cur := q.currentLocked(); cur != nil {
		if q.loop == LoopQueue {
			pending = append(pending, *cur)
		} else {
			history = prepend(history, *cur)
		}
	}

	if err := q.p.playLocked(ctx, next); err != nil {
		return nil, err
	}
	q.pending = pending
	q.history = history
	q.commitPlayedLocked(next)
	return &next, nil
}

// Shuffle reorders the pending tracks in place.
func (q *Queue) Shuffle() {
	q.p.mu.Lock()
	defer q.p.mu.Unlock()
	pending := slices.Clone(q.pending)
	q.shuffle(pending)
	q.pending = pending
}

// Move relocates the pending track at from to position to.
func (q *Queue) Move(from, to int) (track.Track, error) {
	q.p.mu.Lock()
	defer q.p.mu.Unlock()

	n := len(q.pending)
	if from < 0 || from >= n || to < 0 || to >= n {
		return track.Track{}, fmt.Errorf("%w: move %d to %d of %d", ErrIndexOutOfRange, from, to, n)
	}
	t := q.pending[from]
	pending := slices.Delete(slices.Clone(q.pending), from, from+1)
	q.pending = slices.Insert(pending, to, t)
	return t, nil
}

// Remove drops count pending tracks starting at index and returns them.
func (q *Queue) Remove(index, count int) ([]track.Track, error) {
	q.p.mu.Lock()
	defer q.p.mu.Unlock()

	n := len(q.pending)
	if index < 0 || index >= n || count < 1 {
		return nil, fmt.Errorf("%w: remove %d at %d of %d", ErrIndexOutOfRange, count, index, n)
	}
	end := min(index+count, n)
	removed := slices.Clone(q.pending[index:end])
	q.pending = slices.Delete(slices.Clone(q.pending), index, end)
	return removed, nil
}

// Clear empties the pending list. History is kept.
func (q *Queue) Clear() {
	q.p.mu.Lock()
	q.pending = nil
	q.p.mu.Unlock()
}

// Export captures history, pending tracks and loop mode as encoded tokens.
func (q *Queue) Export() Export {
	q.p.mu.Lock()
	defer q.p.mu.Unlock()
	return Export{
		History: track.Encoded(q.history),
		Pending: track.Encoded(q.pending),
		Loop:    q.loop,
	}
}

// Import replaces history, pending tracks and loop mode from an export. The
// tokens are decoded in a single call before the queue is touched; the
// current track is left alone.
func (q *Queue) Import(ctx context.Context, exp Export, dec Decoder) error {
	all := make([]string, 0, len(exp.History)+len(exp.Pending))
	all = append(all, exp.History...)
	all = append(all, exp.Pending...)

	var decoded []track.Track
	if len(all) > 0 {
		var err error
		decoded, err = dec.DecodeTracks(ctx, all)
		if err != nil {
			return fmt.Errorf("decode queue: %w", err)
		}
		if len(decoded) != len(all) {
			return fmt.Errorf("decode queue: got %d tracks for %d tokens", len(decoded), len(all))
		}
	}

	q.p.mu.Lock()
	defer q.p.mu.Unlock()
	q.history = slices.Clone(decoded[:len(exp.History)])
	q.pending = slices.Clone(decoded[len(exp.History):])
	q.loop = exp.Loop
	q.anchor = nil
	if q.loop == LoopTrack && q.p.track != nil {
		t := *q.p.track
		q.anchor = &t
	}
	slog.Debug("queue imported", "guildID", q.p.guildID, "history", len(q.history), "pending", len(q.pending), "loop", q.loop)
	return nil
}

func (q *Queue) currentLocked() *track.Track {
	if q.p.track == nil {
		return nil
	}
	t := *q.p.track
	return &t
}

func (q *Queue) commitPlayedLocked(t track.Track) {
	if q.loop == LoopTrack {
		q.anchor = &t
	}
}

func prepend(list []track.Track, t track.Track) []track.Track {
	out := make([]track.Track, 0, len(list)+1)
	out = append(out, t)
	return append(out, list...)
}
