package isccidx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coblo/isccidx/internal/bitcodec"
)

// seedThirteen inserts 13 distinct codes whose Meta component body byte
// is 1..13 (content/data/instance fixed at zero), small enough that
// expected distances and ranks can be computed by hand.
func seedThirteen(t *testing.T, idx *Index) {
	t.Helper()
	ctx := context.Background()
	for i := byte(1); i <= 13; i++ {
		_, err := idx.Add(ctx, FromText(isccText(t, i, 0, 0, 0)), nil)
		require.NoError(t, err)
	}
}

func TestQuery_SelfMatchKThree(t *testing.T) {
	idx := openTestIndex(t, Options{})
	ctx := context.Background()
	seedThirteen(t, idx)

	queryCode := isccText(t, 0, 0, 0, 0)
	key, err := idx.Add(ctx, FromText(queryCode), nil)
	require.NoError(t, err)
	require.True(t, key.IsInt())
	assert.Equal(t, int64(13), key.Int64())

	result, err := idx.Query(ctx, FromText(queryCode), 3, 8, 0)
	require.NoError(t, err)
	require.Len(t, result.IsccMatches, 3)

	first := result.IsccMatches[0]
	assert.Equal(t, 0, first.Distance)
	assert.Equal(t, int64(13), first.Key.Int64())
	require.NotNil(t, first.MDist)
	assert.Equal(t, 0, *first.MDist)
	require.NotNil(t, first.IMatch)
	assert.True(t, *first.IMatch)

	assert.LessOrEqual(t, result.IsccMatches[1].Distance, result.IsccMatches[2].Distance)
	assert.LessOrEqual(t, first.Distance, result.IsccMatches[1].Distance)
}

func TestQuery_ComponentMatchEnumeration(t *testing.T) {
	idx := openTestIndex(t, Options{})
	ctx := context.Background()
	seedThirteen(t, idx)

	lastISCC := isccCode(t, 13, 0, 0, 0)
	components, err := bitcodec.Decompose(lastISCC)
	require.NoError(t, err)

	keys, err := idx.MatchComponent(ctx, components[0], 2)
	require.NoError(t, err)

	ints := make([]int64, len(keys))
	for i, k := range keys {
		require.True(t, k.IsInt())
		ints[i] = k.Int64()
	}

	// metaB values with popcount(13 ^ metaB) <= 2; metaB ranges 1..13,
	// fkeys are metaB-1 since insertion order tracks metaB ascending.
	var want []int64
	for metaB := byte(1); metaB <= 13; metaB++ {
		d, err := bitcodec.Distance([]byte{13}, []byte{metaB})
		require.NoError(t, err)
		if d <= 2 {
			want = append(want, int64(metaB-1))
		}
	}

	assert.ElementsMatch(t, want, ints)
}

func TestQuery_RankingIsAscendingAndBounded(t *testing.T) {
	idx := openTestIndex(t, Options{})
	ctx := context.Background()
	seedThirteen(t, idx)

	result, err := idx.Query(ctx, FromText(isccText(t, 0, 0, 0, 0)), 5, 8, 0)
	require.NoError(t, err)
	require.LessOrEqual(t, len(result.IsccMatches), 5)

	for i := 1; i < len(result.IsccMatches); i++ {
		assert.LessOrEqual(t, result.IsccMatches[i-1].Distance, result.IsccMatches[i].Distance)
	}
}

func TestMatchComponent_DistanceExactness(t *testing.T) {
	idx := openTestIndex(t, Options{})
	ctx := context.Background()
	seedThirteen(t, idx)

	probe := component(t, bitcodec.MainTypeMeta, 5)
	keys, err := idx.MatchComponent(ctx, probe, 1)
	require.NoError(t, err)
	require.NotEmpty(t, keys)

	for _, k := range keys {
		got, ok, err := idx.GetISCC(ctx, k)
		require.NoError(t, err)
		require.True(t, ok)

		components, err := bitcodec.Decompose(got)
		require.NoError(t, err)

		best := 9999
		for _, c := range components {
			if c.MainType() != bitcodec.MainTypeMeta {
				continue
			}
			d, err := bitcodec.Distance(probe.Bytes(), c.Bytes())
			require.NoError(t, err)
			if d < best {
				best = d
			}
		}
		assert.LessOrEqual(t, best, 1)
	}
}

func TestMatchComponent_InstanceIsExactOnly(t *testing.T) {
	idx := openTestIndex(t, Options{})
	ctx := context.Background()
	seedThirteen(t, idx)

	probe := component(t, bitcodec.MainTypeInstance, 0xaa)
	keys, err := idx.MatchComponent(ctx, probe, 8)
	require.NoError(t, err)
	assert.Empty(t, keys) // none of the seeded codes carry an Instance body of 0xaa
}
