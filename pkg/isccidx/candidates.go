package isccidx

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/coblo/isccidx/internal/keycodec"
)

// candidateSet is the de-duplicated union of fkeys gathered across
// match_component calls. Non-negative
// integer fkeys that fit a uint32 are tracked in a roaring bitmap,
// which is compact and cheap to union across many component scans;
// everything else (text keys, or integer keys outside the uint32
// range the bitmap can address) falls back to a plain byte-keyed map.
type candidateSet struct {
	bitmap *roaring.Bitmap
	other  map[string][]byte
}

func newCandidateSet() *candidateSet {
	return &candidateSet{bitmap: roaring.New(), other: make(map[string][]byte)}
}

// add inserts one fkey encoding into the set, returning true if it was
// not already present.
func (s *candidateSet) add(fkeyBytes []byte) bool {
	key, err := keycodec.Decode(fkeyBytes)
	if err != nil {
		return false
	}
	if key.IsInt() {
		n := key.Int64()
		if n >= 0 && n <= math.MaxUint32 {
			return s.bitmap.CheckedAdd(uint32(n))
		}
	}
	k := string(fkeyBytes)
	if _, ok := s.other[k]; ok {
		return false
	}
	cp := make([]byte, len(fkeyBytes))
	copy(cp, fkeyBytes)
	s.other[k] = cp
	return true
}

// fkeys returns every distinct fkey encoding in the set, in no
// particular order; callers re-sort by whatever key they need.
func (s *candidateSet) fkeys() [][]byte {
	out := make([][]byte, 0, int(s.bitmap.GetCardinality())+len(s.other))
	it := s.bitmap.Iterator()
	for it.HasNext() {
		n := it.Next()
		out = append(out, keycodec.Encode(keycodec.Int(int64(n))))
	}
	for _, v := range s.other {
		out = append(out, v)
	}
	return out
}
