// Package keycodec converts the user-facing Key variant (a signed integer
// or arbitrary text) to and from the canonical byte encoding used as the
// fkey in every sub-store, and derives the next autoincrement integer from
// a cursor over already-encoded keys.
package keycodec

import (
	"encoding/binary"

	"github.com/coblo/isccidx/internal/errors"
)

// Kind tags which variant a Key holds.
type Kind byte

const (
	// KindInt marks an integer key. Ints sort before all text keys and,
	// among themselves, in numeric order (Int is a signed 64-bit value
	// stored sign-flipped big-endian so byte order tracks numeric order).
	KindInt Kind = 0x00
	// KindText marks a text key. Text keys are not ordered relative to
	// one another beyond plain byte order; autoincrement ignores them.
	KindText Kind = 0x01
)

// intWidth is the encoded width of an integer key's body (excluding tag).
const intWidth = 8

// Key is the tagged user-supplied identifier for an index entry.
type Key struct {
	kind Kind
	i    int64
	s    string
}

// Int builds an integer Key.
func Int(n int64) Key { return Key{kind: KindInt, i: n} }

// Text builds a text Key.
func Text(s string) Key { return Key{kind: KindText, s: s} }

// IsInt reports whether k holds an integer.
func (k Key) IsInt() bool { return k.kind == KindInt }

// Int64 returns the integer value; valid only when IsInt is true.
func (k Key) Int64() int64 { return k.i }

// String returns the key's display form: the decimal integer or the raw text.
func (k Key) String() string {
	if k.kind == KindInt {
		return itoa(k.i)
	}
	return k.s
}

// Encode renders a Key as its canonical, order-preserving-for-integers byte
// encoding: a one-byte kind tag followed by the body.
func Encode(k Key) []byte {
	if k.kind == KindInt {
		out := make([]byte, 1+intWidth)
		out[0] = byte(KindInt)
		binary.BigEndian.PutUint64(out[1:], flip(k.i))
		return out
	}
	out := make([]byte, 1+len(k.s))
	out[0] = byte(KindText)
	copy(out[1:], k.s)
	return out
}

// Decode parses bytes produced by Encode back into a Key.
func Decode(b []byte) (Key, error) {
	if len(b) < 1 {
		return Key{}, errors.MalformedCode("empty key encoding", nil)
	}
	switch Kind(b[0]) {
	case KindInt:
		if len(b) != 1+intWidth {
			return Key{}, errors.MalformedCode("integer key has wrong width", nil).
				WithDetail("width", itoa(int64(len(b))))
		}
		return Int(unflip(binary.BigEndian.Uint64(b[1:]))), nil
	case KindText:
		return Text(string(b[1:])), nil
	default:
		return Key{}, errors.MalformedCode("unknown key kind tag", nil).
			WithDetail("tag", itoa(int64(b[0])))
	}
}

// flip maps a signed int64 to a uint64 that preserves numeric ordering
// under unsigned big-endian byte comparison: flipping the sign bit puts
// the most negative value at 0 and the most positive at max uint64.
func flip(n int64) uint64 {
	return uint64(n) ^ 0x8000000000000000
}

func unflip(u uint64) int64 {
	return int64(u ^ 0x8000000000000000)
}

// NextKey returns the smallest non-negative integer strictly greater than
// maxInt, the maximum integer key present, or 0 if hasAny reports that no
// integer key exists. Callers locate the maximum themselves by walking the
// KindInt range of encoded fkeys; this helper isolates the arithmetic.
func NextKey(maxInt int64, hasAny bool) int64 {
	if !hasAny || maxInt < 0 {
		return 0
	}
	return maxInt + 1
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	u := uint64(n)
	if neg {
		u = uint64(-(n + 1)) + 1
	}
	var b [20]byte
	i := len(b)
	for u > 0 {
		i--
		b[i] = byte('0' + u%10)
		u /= 10
	}
	if neg {
		i--
		b[i] = '-'
	}
	return string(b[i:])
}
