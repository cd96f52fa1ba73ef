package sponsorblock

import (
	"context"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/calliope/internal/gateway"
	"github.com/sonroyaalmerol/calliope/internal/rest"
)

const guild = snowflake.ID(42)

type fakeStore struct {
	cats    map[snowflake.ID][]string
	gets    int
	deletes int
}

func (f *fakeStore) GetCategories(_ context.Context, g snowflake.ID) ([]string, error) {
	f.gets++
	cats, ok := f.cats[g]
	if !ok {
		return nil, rest.ErrNotFound
	}
	return cats, nil
}

func (f *fakeStore) UpdateCategories(_ context.Context, g snowflake.ID, cats []string) error {
	f.cats[g] = cats
	return nil
}

func (f *fakeStore) DeleteCategories(_ context.Context, g snowflake.ID) error {
	f.deletes++
	if _, ok := f.cats[g]; !ok {
		return rest.ErrNotFound
	}
	delete(f.cats, g)
	return nil
}

func TestParseCategories(t *testing.T) {
	cats, err := ParseCategories(" Sponsor, selfpromo,,sponsor ")
	require.NoError(t, err)
	assert.Equal(t, []string{"sponsor", "selfpromo"}, cats)

	cats, err = ParseCategories("")
	require.NoError(t, err)
	assert.Empty(t, cats)

	_, err = ParseCategories("sponsor,ads")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestService(t *testing.T) {
	store := &fakeStore{cats: map[snowflake.ID][]string{}}
	s := NewService(store)
	ctx := context.Background()

	cats, err := s.Get(ctx, guild)
	require.NoError(t, err)
	assert.Empty(t, cats)
	_, _ = s.Get(ctx, guild)
	assert.Equal(t, 1, store.gets)

	require.NoError(t, s.Apply(ctx, guild, "intro,outro"))
	assert.Equal(t, []string{"intro", "outro"}, store.cats[guild])
	cats, err = s.Get(ctx, guild)
	require.NoError(t, err)
	assert.Equal(t, []string{"intro", "outro"}, cats)
	assert.Equal(t, 1, store.gets)

	require.NoError(t, s.Set(ctx, guild, nil))
	require.NoError(t, s.Set(ctx, guild, nil))
	assert.Equal(t, 2, store.deletes)
	assert.NotContains(t, store.cats, guild)

	require.NoError(t, s.Apply(ctx, guild, ""))
	assert.Equal(t, 2, store.deletes)
	assert.Error(t, s.Apply(ctx, guild, "nope"))
}

func TestCacheExpires(t *testing.T) {
	c := NewCache[int](time.Minute)
	now := time.Unix(0, 0)
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestMergeAndDescribe(t *testing.T) {
	segs := []gateway.Segment{
		{Category: "outro", Start: 200_000, End: 230_000},
		{Category: "sponsor", Start: 10_000, End: 40_000},
		{Category: "selfpromo", Start: 30_000, End: 50_000},
	}
	merged := MergeSegments(segs)
	require.Len(t, merged, 2)
	assert.Equal(t, gateway.Segment{Category: "sponsor", Start: 10_000, End: 50_000}, merged[0])
	assert.Equal(t, "outro", segs[0].Category)

	assert.Equal(t, "3 segments, 1:10 skippable", Summarize(segs))
	assert.Equal(t, "", Summarize(nil))
	assert.Equal(t, "skipped music offtopic (0:12-1:05)", Describe(gateway.Segment{Category: "music_offtopic", Start: 12_000, End: 65_000}))
}
