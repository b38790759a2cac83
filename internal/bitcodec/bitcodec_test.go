package bitcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coblo/isccidx/internal/errors"
)

func body(b byte) []byte {
	out := make([]byte, BodyLen)
	out[0] = b
	return out
}

func TestEncodeDecode_RoundTrips(t *testing.T) {
	c, err := NewComponent(MainTypeContent, SubTypeImage, body(0x5a))
	require.NoError(t, err)

	text := Encode(c.Bytes())
	decoded, err := Decode(text)
	require.NoError(t, err)
	assert.Equal(t, c.Bytes(), decoded)
}

func TestDecode_AcceptsIsccPrefixCaseInsensitive(t *testing.T) {
	c, err := NewComponent(MainTypeMeta, SubTypeNone, body(0x01))
	require.NoError(t, err)
	text := "iscc:" + Encode(c.Bytes())

	decoded, err := Decode(text)
	require.NoError(t, err)
	assert.Equal(t, c.Bytes(), decoded)
}

func TestDecompose_SplitsMultipleComponents(t *testing.T) {
	meta, err := NewComponent(MainTypeMeta, SubTypeNone, body(0x01))
	require.NoError(t, err)
	content, err := NewComponent(MainTypeContent, SubTypeText, body(0x02))
	require.NoError(t, err)

	data := append(meta.Bytes(), content.Bytes()...)
	components, err := Decompose(data)
	require.NoError(t, err)
	require.Len(t, components, 2)
	assert.Equal(t, MainTypeMeta, components[0].MainType())
	assert.Equal(t, MainTypeContent, components[1].MainType())
}

func TestDecompose_MalformedOnShortTrailingBytes(t *testing.T) {
	_, err := Decompose([]byte{0x00, 0x01, 0x02})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeMalformedCode, errors.GetCode(err))
}

func TestDecompose_MalformedOnReservedMainType(t *testing.T) {
	raw := make([]byte, ComponentLen)
	raw[0] = 0xf0 // main type 15, reserved
	_, err := Decompose(raw)
	require.Error(t, err)
}

func TestCompose_OrdersCanonically(t *testing.T) {
	instance, err := NewComponent(MainTypeInstance, SubTypeNone, body(0x04))
	require.NoError(t, err)
	meta, err := NewComponent(MainTypeMeta, SubTypeNone, body(0x01))
	require.NoError(t, err)

	out, err := Compose([]Component{instance, meta})
	require.NoError(t, err)

	components, err := Decompose(out)
	require.NoError(t, err)
	require.Len(t, components, 2)
	assert.Equal(t, MainTypeMeta, components[0].MainType())
	assert.Equal(t, MainTypeInstance, components[1].MainType())
}

func TestCompose_DuplicateKindErrors(t *testing.T) {
	a, err := NewComponent(MainTypeContent, SubTypeText, body(0x01))
	require.NoError(t, err)
	b, err := NewComponent(MainTypeContent, SubTypeText, body(0x02))
	require.NoError(t, err)

	_, err = Compose([]Component{a, b})
	require.Error(t, err)
}

func TestDistance_CountsDifferingBits(t *testing.T) {
	d, err := Distance([]byte{0x00}, []byte{0x03})
	require.NoError(t, err)
	assert.Equal(t, 2, d)
}

func TestDistance_MismatchedLengthErrors(t *testing.T) {
	_, err := Distance([]byte{0x00}, []byte{0x00, 0x01})
	require.Error(t, err)
}

func TestCompareCodes_MissingKindLeavesFieldNil(t *testing.T) {
	meta, err := NewComponent(MainTypeMeta, SubTypeNone, body(0x00))
	require.NoError(t, err)
	content, err := NewComponent(MainTypeContent, SubTypeNone, body(0x00))
	require.NoError(t, err)

	cmp := CompareCodes([]Component{meta}, []Component{content})
	assert.Nil(t, cmp.MDist)
	assert.Nil(t, cmp.CDist)
}

func TestCompareCodes_InstanceUsesByteEquality(t *testing.T) {
	a, err := NewComponent(MainTypeInstance, SubTypeNone, body(0x01))
	require.NoError(t, err)
	b, err := NewComponent(MainTypeInstance, SubTypeNone, body(0x01))
	require.NoError(t, err)

	cmp := CompareCodes([]Component{a}, []Component{b})
	require.NotNil(t, cmp.IMatch)
	assert.True(t, *cmp.IMatch)
}
