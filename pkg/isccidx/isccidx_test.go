package isccidx

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coblo/isccidx/internal/bitcodec"
)

// openTestIndex opens a fresh index rooted at a per-test temp directory.
func openTestIndex(t *testing.T, overrides Options) *Index {
	t.Helper()
	overrides.IndexRoot = t.TempDir()
	idx, err := Open("test", overrides)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

// component builds a single component with the given main type and a
// body whose first byte is b (remaining bytes zero).
func component(t *testing.T, mt bitcodec.MainType, b byte) bitcodec.Component {
	t.Helper()
	body := make([]byte, bitcodec.BodyLen)
	body[0] = b
	c, err := bitcodec.NewComponent(mt, bitcodec.SubTypeNone, body)
	require.NoError(t, err)
	return c
}

// isccCode builds canonical ISCC bytes out of Meta/Content/Data bodies
// plus a fixed Instance component distinguishing otherwise-identical
// codes (Instance is exact-match only, never consulted for distance).
func isccCode(t *testing.T, metaB, contentB, dataB, instanceB byte) []byte {
	t.Helper()
	components := []bitcodec.Component{
		component(t, bitcodec.MainTypeMeta, metaB),
		component(t, bitcodec.MainTypeContent, contentB),
		component(t, bitcodec.MainTypeData, dataB),
		component(t, bitcodec.MainTypeInstance, instanceB),
	}
	out, err := bitcodec.Compose(components)
	require.NoError(t, err)
	return out
}

func isccText(t *testing.T, metaB, contentB, dataB, instanceB byte) string {
	t.Helper()
	return bitcodec.Encode(isccCode(t, metaB, contentB, dataB, instanceB))
}
