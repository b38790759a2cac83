// Package bitcodec implements the ISCC component codec: text/byte
// conversion, decomposition of a composite ISCC into typed components,
// canonical recomposition, and Hamming-distance comparison.
//
// A composite ISCC is the concatenation of up to four single-unit
// components (Meta, Content, Data, Instance), each framed by a one-byte
// header packing a 4-bit main-type nibble and a 4-bit sub-type nibble,
// followed by an 8-byte (64-bit) similarity body. One header byte is
// enough to key every component and feature bucket the index uses while
// keeping each type's codes in one contiguous byte range.
package bitcodec

import (
	"encoding/base32"
	"strings"

	"github.com/coblo/isccidx/internal/errors"
)

// MainType identifies which facet of content a component describes.
// Order is also canonical compose order: Meta < Content < Data < Instance.
type MainType byte

const (
	MainTypeMeta MainType = iota
	MainTypeContent
	MainTypeData
	MainTypeInstance
)

// SubType refines MainTypeContent into the media modality a granular
// feature kind applies to. Meta/Data/Instance components carry SubTypeNone.
type SubType byte

const (
	SubTypeNone SubType = iota
	SubTypeText
	SubTypeImage
	SubTypeAudio
	SubTypeVideo
)

// HeaderLen is the fixed width, in bytes, of a component's type header.
const HeaderLen = 1

// BodyLen is the fixed width, in bytes, of a component's similarity body
// (64 bits).
const BodyLen = 8

// ComponentLen is the total on-wire width of a single component.
const ComponentLen = HeaderLen + BodyLen

var textEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Component is a single fixed-width, header-framed ISCC unit.
type Component struct {
	raw []byte // HeaderLen+BodyLen bytes, header first
}

// NewComponent builds a Component from a main-type, sub-type and body.
// Returns MismatchedLength if body is not exactly BodyLen bytes.
func NewComponent(mt MainType, st SubType, body []byte) (Component, error) {
	if len(body) != BodyLen {
		return Component{}, errors.MismatchedLength("component body must be 8 bytes")
	}
	raw := make([]byte, 0, ComponentLen)
	raw = append(raw, byte(mt)<<4|byte(st&0x0f))
	raw = append(raw, body...)
	return Component{raw: raw}, nil
}

// Bytes returns the full header+body encoding of the component.
func (c Component) Bytes() []byte {
	out := make([]byte, len(c.raw))
	copy(out, c.raw)
	return out
}

// HeaderByte returns the single type-framing byte.
func (c Component) HeaderByte() byte {
	return c.raw[0]
}

// Body returns the 64-bit similarity body (excludes the header byte).
func (c Component) Body() []byte {
	return c.raw[HeaderLen:]
}

// MainType returns the component's main type.
func (c Component) MainType() MainType {
	return MainType(c.raw[0] >> 4)
}

// SubType returns the component's sub type.
func (c Component) SubType() SubType {
	return SubType(c.raw[0] & 0x0f)
}

// Equal reports whether two components have identical bytes.
func (c Component) Equal(other Component) bool {
	if len(c.raw) != len(other.raw) {
		return false
	}
	for i := range c.raw {
		if c.raw[i] != other.raw[i] {
			return false
		}
	}
	return true
}

// parseComponent reads one component from the front of raw.
func parseComponent(raw []byte) (Component, error) {
	if len(raw) < ComponentLen {
		return Component{}, errors.MalformedCode("declared component length exceeds remaining bytes", nil).
			WithDetail("remaining_bytes", itoa(len(raw)))
	}
	mt := MainType(raw[0] >> 4)
	if mt > MainTypeInstance {
		return Component{}, errors.MalformedCode("reserved main type in component header", nil).
			WithDetail("main_type", itoa(int(mt)))
	}
	buf := make([]byte, ComponentLen)
	copy(buf, raw[:ComponentLen])
	return Component{raw: buf}, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		b[i] = '-'
	}
	return string(b[i:])
}

// Decode parses an ISCC text representation into its canonical bytes.
func Decode(text string) ([]byte, error) {
	clean := strings.TrimPrefix(strings.ToUpper(text), "ISCC:")
	data, err := textEncoding.DecodeString(clean)
	if err != nil {
		return nil, errors.MalformedCode("invalid base32 ISCC text", err)
	}
	return data, nil
}

// Encode renders canonical ISCC bytes as self-synchronizing base32 text.
func Encode(data []byte) string {
	return textEncoding.EncodeToString(data)
}

// Decompose splits canonical ISCC bytes into its ordered components.
// Raises MalformedCode if a declared component length exceeds the
// remaining bytes or a reserved main type appears.
func Decompose(data []byte) ([]Component, error) {
	var components []Component
	for len(data) > 0 {
		c, err := parseComponent(data)
		if err != nil {
			return nil, err
		}
		components = append(components, c)
		data = data[ComponentLen:]
	}
	return components, nil
}

// Compose concatenates components into canonical ISCC bytes, ordered
// Meta < Content < Data < Instance. Raises DuplicateKind if two
// components share the same (main-type, sub-type).
func Compose(components []Component) ([]byte, error) {
	ordered := make([]Component, len(components))
	copy(ordered, components)

	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j].MainType() < ordered[i].MainType() {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}

	seen := make(map[[2]byte]bool, len(ordered))
	out := make([]byte, 0, len(ordered)*ComponentLen)
	for _, c := range ordered {
		key := [2]byte{byte(c.MainType()), byte(c.SubType())}
		if seen[key] {
			return nil, errors.DuplicateKind("two components share the same main-type and sub-type").
				WithDetail("main_type", itoa(int(c.MainType()))).
				WithDetail("sub_type", itoa(int(c.SubType())))
		}
		seen[key] = true
		out = append(out, c.Bytes()...)
	}
	return out, nil
}

// Distance computes the Hamming distance, in bits, between two
// equal-length byte strings. Raises MismatchedLength otherwise.
func Distance(a, b []byte) (int, error) {
	if len(a) != len(b) {
		return 0, errors.MismatchedLength("distance requires equal-length byte strings").
			WithDetail("len_a", itoa(len(a))).
			WithDetail("len_b", itoa(len(b)))
	}
	dist := 0
	for i := range a {
		dist += popcount(a[i] ^ b[i])
	}
	return dist, nil
}

func popcount(b byte) int {
	n := 0
	for b != 0 {
		n += int(b & 1)
		b >>= 1
	}
	return n
}

// Compare reports per-kind distances between two ISCCs that may have
// differing component membership. A kind absent from either side leaves
// the corresponding field absent (nil).
type Compare struct {
	MDist  *int
	CDist  *int
	DDist  *int
	IMatch *bool
}

// CompareCodes computes per-kind distances for Meta/Content/Data and a
// byte-equality flag for Instance, using only kinds present on both sides.
func CompareCodes(a, b []Component) Compare {
	byType := func(cs []Component) map[MainType]Component {
		m := make(map[MainType]Component, len(cs))
		for _, c := range cs {
			m[c.MainType()] = c
		}
		return m
	}

	am := byType(a)
	bm := byType(b)

	var cmp Compare

	if ca, ok := am[MainTypeMeta]; ok {
		if cb, ok := bm[MainTypeMeta]; ok {
			if d, err := Distance(ca.Body(), cb.Body()); err == nil {
				cmp.MDist = &d
			}
		}
	}
	if ca, ok := am[MainTypeContent]; ok {
		if cb, ok := bm[MainTypeContent]; ok {
			if d, err := Distance(ca.Body(), cb.Body()); err == nil {
				cmp.CDist = &d
			}
		}
	}
	if ca, ok := am[MainTypeData]; ok {
		if cb, ok := bm[MainTypeData]; ok {
			if d, err := Distance(ca.Body(), cb.Body()); err == nil {
				cmp.DDist = &d
			}
		}
	}
	if ca, ok := am[MainTypeInstance]; ok {
		if cb, ok := bm[MainTypeInstance]; ok {
			eq := ca.Equal(cb)
			cmp.IMatch = &eq
		}
	}

	return cmp
}
