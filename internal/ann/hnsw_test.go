package ann

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHNSWScanner_IngestAndMatch(t *testing.T) {
	h := NewHNSWScanner()
	c := component(t, 0x00)

	bodies := map[string]byte{
		"k0":   0x00,
		"k1":   0x01,
		"kfar": 0xff,
	}
	for key, b := range bodies {
		body := make([]byte, 8)
		body[0] = b
		h.Ingest(c.HeaderByte(), []byte(key), body)
	}

	got, err := h.MatchComponent(nil, "components", c, 2)
	require.NoError(t, err)

	keys := make([]string, len(got))
	for i, k := range got {
		keys[i] = string(k)
	}
	assert.Contains(t, keys, "k0")
	assert.Contains(t, keys, "k1")
	assert.NotContains(t, keys, "kfar")
}

func TestHNSWScanner_EmptyGraphReturnsNil(t *testing.T) {
	h := NewHNSWScanner()
	c := component(t, 0x00)
	got, err := h.MatchComponent(nil, "components", c, 2)
	require.NoError(t, err)
	assert.Nil(t, got)
}
