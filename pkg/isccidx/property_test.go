package isccidx

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/silverisntgold/randshiro"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coblo/isccidx/internal/bitcodec"
)

// randomBody draws a random 8-byte similarity body from rng.
func randomBody(rng *randshiro.Gen) []byte {
	b := make([]byte, bitcodec.BodyLen)
	binary.BigEndian.PutUint64(b, rng.Uint64())
	return b
}

// TestProperty_RoundTripAndDistinctKeysAcrossRandomCodes runs
// over a corpus of randomly generated component bodies: every added code
// round-trips through GetISCC, every add of a distinct code yields a
// distinct key, and every added code is reported as contained.
func TestProperty_RoundTripAndDistinctKeysAcrossRandomCodes(t *testing.T) {
	idx := openTestIndex(t, Options{})
	ctx := context.Background()
	rng := randshiro.New128pp()

	seenKeys := make(map[int64]struct{})
	var codes [][]byte

	for i := 0; i < 50; i++ {
		components := []bitcodec.Component{
			must(bitcodec.NewComponent(bitcodec.MainTypeMeta, bitcodec.SubTypeNone, randomBody(rng))),
			must(bitcodec.NewComponent(bitcodec.MainTypeContent, bitcodec.SubTypeNone, randomBody(rng))),
			must(bitcodec.NewComponent(bitcodec.MainTypeData, bitcodec.SubTypeNone, randomBody(rng))),
			must(bitcodec.NewComponent(bitcodec.MainTypeInstance, bitcodec.SubTypeNone, randomBody(rng))),
		}
		canonical, err := bitcodec.Compose(components)
		require.NoError(t, err)
		codes = append(codes, canonical)

		key, err := idx.Add(ctx, FromBytes(canonical), nil)
		require.NoError(t, err)
		require.True(t, key.IsInt())

		_, dup := seenKeys[key.Int64()]
		assert.False(t, dup, "random 256-bit bodies should not collide across 50 draws")
		seenKeys[key.Int64()] = struct{}{}

		got, ok, err := idx.GetISCC(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, canonical, got)

		ok, err = idx.Contains(ctx, FromBytes(canonical))
		require.NoError(t, err)
		assert.True(t, ok)
	}

	n, err := idx.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(codes)), n)
}

func must(c bitcodec.Component, err error) bitcodec.Component {
	if err != nil {
		panic(err)
	}
	return c
}
