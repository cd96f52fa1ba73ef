package player

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/calliope/internal/rest"
	"github.com/sonroyaalmerol/calliope/internal/track"
)

func TestTrackEnd_ForcedReasonsDoNothing(t *testing.T) {
	for _, reason := range []EndReason{EndStopped, EndReplaced, EndCleanup} {
		t.Run(string(reason), func(t *testing.T) {
			p, node := newTestPlayer()
			cur := tr("X")
			seed(p, &cur, trs("A", "B"), trs("H"))

			started, err := p.HandleTrackEnd(context.Background(), cur, reason)
			require.NoError(t, err)
			assert.Nil(t, started)
			assert.Zero(t, node.calls())
			assert.Equal(t, []string{"A", "B"}, ids(p.Queue().Pending()))
			assert.Equal(t, []string{"H"}, ids(p.Queue().History()))
		})
	}
}

func TestTrackEnd_NaturalEndAdvances(t *testing.T) {
	for _, reason := range []EndReason{EndFinished, EndLoadFailed} {
		t.Run(string(reason), func(t *testing.T) {
			p, node := newTestPlayer()
			cur := tr("X")
			seed(p, &cur, trs("A", "B"), trs("H"))

			started, err := p.HandleTrackEnd(context.Background(), cur, reason)
			require.NoError(t, err)
			require.NotNil(t, started)
			assert.Equal(t, "A", started.Identifier())
			assert.Equal(t, 1, node.calls())
			assert.Equal(t, "enc-A", node.lastTrack())
			assert.Equal(t, []string{"B"}, ids(p.Queue().Pending()))
			assert.Equal(t, []string{"X", "H"}, ids(p.Queue().History()))
			require.NotNil(t, p.Track())
			assert.Equal(t, "A", p.Track().Identifier())
		})
	}
}

func TestTrackEnd_EmptyQueueRetiresTrack(t *testing.T) {
	p, node := newTestPlayer()
	cur := tr("X")
	seed(p, &cur, nil, nil)

	started, err := p.HandleTrackEnd(context.Background(), cur, EndFinished)
	require.NoError(t, err)
	assert.Nil(t, started)
	assert.Zero(t, node.calls())
	assert.Nil(t, p.Track())
	assert.False(t, p.Playing())
	assert.Equal(t, []string{"X"}, ids(p.Queue().History()))
}

func TestTrackEnd_FailedAdvanceRetiresTrack(t *testing.T) {
	for _, mode := range []LoopMode{LoopNone, LoopQueue} {
		t.Run(mode.String(), func(t *testing.T) {
			p, node := newTestPlayer()
			cur := tr("X")
			seed(p, &cur, trs("A", "B"), nil)
			p.Queue().SetLoop(mode)
			node.fail(rest.ErrTimeout)

			started, err := p.HandleTrackEnd(context.Background(), cur, EndFinished)
			require.ErrorIs(t, err, rest.ErrTimeout)
			assert.Nil(t, started)
			assert.Nil(t, p.Track())
			if mode == LoopQueue {
				assert.Equal(t, []string{"A", "B", "X"}, ids(p.Queue().Pending()))
				assert.Empty(t, p.Queue().History())
			} else {
				assert.Equal(t, []string{"A", "B"}, ids(p.Queue().Pending()))
				assert.Equal(t, []string{"X"}, ids(p.Queue().History()))
			}

			// the next advance carries on from A without losing X
			started, err = p.Queue().Advance(context.Background())
			require.NoError(t, err)
			require.NotNil(t, started)
			assert.Equal(t, "A", started.Identifier())
			if mode == LoopQueue {
				assert.Equal(t, []string{"B", "X"}, ids(p.Queue().Pending()))
			} else {
				assert.Equal(t, []string{"X"}, ids(p.Queue().History()))
			}
		})
	}
}

func TestAdd_StartsFirstTrackWhenIdle(t *testing.T) {
	p, node := newTestPlayer()

	started, err := p.Queue().Add(context.Background(), trs("T1", "T2")...)
	require.NoError(t, err)
	require.NotNil(t, started)
	assert.Equal(t, "T1", started.Identifier())
	assert.Equal(t, 1, node.calls())
	assert.Equal(t, "enc-T1", node.lastTrack())
	assert.Equal(t, []string{"T2"}, ids(p.Queue().Pending()))
	assert.Empty(t, p.Queue().History())
	assert.True(t, p.Playing())
}

func TestAdd_OnlyAppendsWhilePlaying(t *testing.T) {
	p, node := newTestPlayer()
	cur := tr("X")
	seed(p, &cur, trs("A"), nil)

	started, err := p.Queue().Add(context.Background(), tr("B"))
	require.NoError(t, err)
	assert.Nil(t, started)
	assert.Zero(t, node.calls())
	assert.Equal(t, []string{"A", "B"}, ids(p.Queue().Pending()))
}

func TestAdd_RollsBackOnFailure(t *testing.T) {
	p, node := newTestPlayer()
	node.fail(rest.ErrUnauthorized)

	_, err := p.Queue().Add(context.Background(), trs("T1", "T2")...)
	assert.ErrorIs(t, err, rest.ErrUnauthorized)
	assert.Empty(t, p.Queue().Pending())
	assert.Nil(t, p.Track())
}

func TestSkip_Destructive(t *testing.T) {
	p, _ := newTestPlayer()
	cur := tr("X")
	seed(p, &cur, trs("A", "B", "C", "D"), nil)

	started, err := p.Queue().Skip(context.Background(), 2, true)
	require.NoError(t, err)
	assert.Equal(t, "C", started.Identifier())
	assert.Equal(t, []string{"D"}, ids(p.Queue().Pending()))
	assert.Equal(t, []string{"C", "B", "A"}, ids(p.Queue().History())[:3])
	assert.Equal(t, "C", p.Track().Identifier())
}

func TestSkip_NonDestructive(t *testing.T) {
	p, _ := newTestPlayer()
	cur := tr("X")
	seed(p, &cur, trs("A", "B", "C", "D"), nil)

	started, err := p.Queue().Skip(context.Background(), 2, false)
	require.NoError(t, err)
	assert.Equal(t, "C", started.Identifier())
	assert.Equal(t, []string{"A", "B", "D"}, ids(p.Queue().Pending()))
	assert.Equal(t, []string{"X"}, ids(p.Queue().History()))
}

func TestSkip_OutOfRange(t *testing.T) {
	p, node := newTestPlayer()
	seed(p, nil, trs("A"), nil)

	_, err := p.Queue().Skip(context.Background(), 3, false)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.Zero(t, node.calls())
}

func TestSkip_FailureLeavesQueue(t *testing.T) {
	p, node := newTestPlayer()
	cur := tr("X")
	seed(p, &cur, trs("A", "B", "C"), trs("H"))
	node.fail(rest.ErrUnauthorized)

	_, err := p.Queue().Skip(context.Background(), 1, true)
	assert.ErrorIs(t, err, rest.ErrUnauthorized)
	assert.Equal(t, []string{"A", "B", "C"}, ids(p.Queue().Pending()))
	assert.Equal(t, []string{"H"}, ids(p.Queue().History()))
	assert.Equal(t, "X", p.Track().Identifier())
}

func TestPrevious(t *testing.T) {
	p, node := newTestPlayer()
	seed(p, nil, nil, trs("X", "Y", "Z"))

	started, err := p.Queue().Previous(context.Background())
	require.NoError(t, err)
	require.NotNil(t, started)
	assert.Equal(t, "Y", started.Identifier())
	assert.Equal(t, "enc-Y", node.lastTrack())
	assert.Equal(t, []string{"Y", "X", "Y", "Z"}, ids(p.Queue().History()))
}

func TestPrevious_NeedsTwoEntries(t *testing.T) {
	p, node := newTestPlayer()
	seed(p, nil, nil, trs("X"))

	started, err := p.Queue().Previous(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, started)
	assert.Zero(t, node.calls())
	assert.Equal(t, []string{"X"}, ids(p.Queue().History()))
}

func TestLoopTrack_ReplaysAnchor(t *testing.T) {
	p, node := newTestPlayer()
	cur := tr("X")
	seed(p, &cur, trs("A"), nil)
	p.Queue().SetLoop(LoopTrack)

	started, err := p.HandleTrackEnd(context.Background(), cur, EndFinished)
	require.NoError(t, err)
	assert.Equal(t, "X", started.Identifier())
	assert.Equal(t, "enc-X", node.lastTrack())
	assert.Equal(t, []string{"A"}, ids(p.Queue().Pending()))
	assert.Empty(t, p.Queue().History())
}

func TestLoopTrack_LoadFailedMovesOn(t *testing.T) {
	p, node := newTestPlayer()
	cur := tr("X")
	seed(p, &cur, trs("A"), nil)
	p.Queue().SetLoop(LoopTrack)

	started, err := p.HandleTrackEnd(context.Background(), cur, EndLoadFailed)
	require.NoError(t, err)
	require.NotNil(t, started)
	assert.Equal(t, "A", started.Identifier())
	assert.Equal(t, "enc-A", node.lastTrack())
	assert.Empty(t, p.Queue().Pending())
	assert.Equal(t, []string{"X"}, ids(p.Queue().History()))

	// A is the new anchor
	started, err = p.HandleTrackEnd(context.Background(), *started, EndFinished)
	require.NoError(t, err)
	assert.Equal(t, "A", started.Identifier())
}

func TestLoopTrack_AnchorsOnNextStart(t *testing.T) {
	p, node := newTestPlayer()
	p.Queue().SetLoop(LoopTrack)

	_, err := p.Queue().Add(context.Background(), trs("A", "B")...)
	require.NoError(t, err)
	a := tr("A")
	started, err := p.HandleTrackEnd(context.Background(), a, EndFinished)
	require.NoError(t, err)
	assert.Equal(t, "A", started.Identifier())
	assert.Equal(t, 2, node.calls())
	assert.Equal(t, []string{"B"}, ids(p.Queue().Pending()))
}

func TestLoopQueue_RecyclesToTail(t *testing.T) {
	p, _ := newTestPlayer()
	cur := tr("X")
	seed(p, &cur, trs("A", "B"), nil)
	p.Queue().SetLoop(LoopQueue)

	started, err := p.HandleTrackEnd(context.Background(), cur, EndFinished)
	require.NoError(t, err)
	assert.Equal(t, "A", started.Identifier())
	assert.Equal(t, []string{"B", "X"}, ids(p.Queue().Pending()))
	assert.Empty(t, p.Queue().History())

	// a single recycled track keeps looping
	seed(p, &cur, nil, nil)
	started, err = p.HandleTrackEnd(context.Background(), cur, EndFinished)
	require.NoError(t, err)
	assert.Equal(t, "X", started.Identifier())
	assert.Empty(t, p.Queue().Pending())
}

func TestRandom(t *testing.T) {
	p, node := newTestPlayer()
	cur := tr("X")
	seed(p, &cur, trs("A", "B", "C"), nil)
	p.queue.randn = func(n int) int { return n - 1 }

	started, err := p.Queue().Random(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "C", started.Identifier())
	assert.Equal(t, "enc-C", node.lastTrack())
	assert.Equal(t, []string{"A", "B"}, ids(p.Queue().Pending()))
	assert.Equal(t, []string{"X"}, ids(p.Queue().History()))

	seed(p, nil, nil, nil)
	started, err = p.Queue().Random(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, started)
}

func TestShuffle_TouchesOnlyPending(t *testing.T) {
	p, node := newTestPlayer()
	cur := tr("X")
	seed(p, &cur, trs("A", "B", "C", "D"), trs("H"))
	p.queue.shuffle = func(ts []track.Track) {
		for i, j := 0, len(ts)-1; i < j; i, j = i+1, j-1 {
			ts[i], ts[j] = ts[j], ts[i]
		}
	}

	p.Queue().Shuffle()
	assert.Equal(t, []string{"D", "C", "B", "A"}, ids(p.Queue().Pending()))
	assert.Equal(t, []string{"H"}, ids(p.Queue().History()))
	assert.Equal(t, "X", p.Track().Identifier())
	assert.Zero(t, node.calls())
}

func TestMoveAndRemove(t *testing.T) {
	p, _ := newTestPlayer()
	seed(p, nil, trs("A", "B", "C", "D"), nil)

	moved, err := p.Queue().Move(0, 2)
	require.NoError(t, err)
	assert.Equal(t, "A", moved.Identifier())
	assert.Equal(t, []string{"B", "C", "A", "D"}, ids(p.Queue().Pending()))

	removed, err := p.Queue().Remove(1, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "D"}, ids(removed))
	assert.Equal(t, []string{"B"}, ids(p.Queue().Pending()))

	_, err = p.Queue().Move(0, 4)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = p.Queue().Remove(0, 0)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestExportImportRoundTrip(t *testing.T) {
	src, _ := newTestPlayer()
	seed(src, nil, trs("p1", "p2"), trs("h1", "h2"))
	src.Queue().SetLoop(LoopQueue)
	exp := src.Queue().Export()
	assert.Equal(t, []string{"enc-h1", "enc-h2"}, exp.History)
	assert.Equal(t, []string{"enc-p1", "enc-p2"}, exp.Pending)

	dst, node := newTestPlayer()
	require.NoError(t, dst.Queue().Import(context.Background(), exp, node))
	assert.Equal(t, []string{"p1", "p2"}, ids(dst.Queue().Pending()))
	assert.Equal(t, []string{"h1", "h2"}, ids(dst.Queue().History()))
	assert.Equal(t, LoopQueue, dst.Queue().Loop())
	assert.Zero(t, node.calls())
}

type failingDecoder struct{}

func (failingDecoder) DecodeTracks(context.Context, []string) ([]track.Track, error) {
	return nil, errors.New("boom")
}

func TestImport_DecodeFailureKeepsQueue(t *testing.T) {
	p, _ := newTestPlayer()
	seed(p, nil, trs("A"), nil)

	err := p.Queue().Import(context.Background(), Export{Pending: []string{"enc-B"}}, failingDecoder{})
	assert.Error(t, err)
	assert.Equal(t, []string{"A"}, ids(p.Queue().Pending()))
}

func TestLoopModeText(t *testing.T) {
	m, err := ParseLoopMode("queue")
	require.NoError(t, err)
	assert.Equal(t, LoopQueue, m)
	_, err = ParseLoopMode("sideways")
	assert.Error(t, err)
	assert.Equal(t, "TRACK", LoopTrack.String())
}
