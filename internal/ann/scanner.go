// Package ann implements the near-neighbor scanner capability the index's
// match_component operation is built against: an interface any
// backend can satisfy, a default exact cursor scan, and an optional
// approximate backend built on github.com/coder/hnsw.
package ann

import (
	"github.com/coblo/isccidx/internal/bitcodec"
	"github.com/coblo/isccidx/internal/store"
)

// Scanner returns the set of fkey values attached to stored components of
// the same (main-type, sub-type) as code, within Hamming distance ct.
//
// Implementations MAY return a superset of the exact answer: the caller
// re-derives full-ISCC distance from each candidate's dereferenced ISCC
// bytes and ranks by it, so any extra candidate is ordered by that
// distance alongside the rest rather than filtered out.
type Scanner interface {
	MatchComponent(tx *store.Tx, subStore string, code bitcodec.Component, ct int) ([][]byte, error)
}

// CursorScanner is the default, exact implementation: a single forward
// cursor scan over the header range, collecting every distinct key within
// ct bits of code and all of its duplicate fkeys.
type CursorScanner struct{}

// MatchComponent implements Scanner.
func (CursorScanner) MatchComponent(tx *store.Tx, subStore string, code bitcodec.Component, ct int) ([][]byte, error) {
	if code.MainType() == bitcodec.MainTypeInstance {
		// Instance is cryptographic: no near matches, only exact duplicates.
		return tx.GetAllDup(subStore, code.Bytes())
	}

	header := []byte{code.HeaderByte()}
	cur, err := tx.SeekPrefix(subStore, header)
	if err != nil {
		return nil, err
	}

	var out [][]byte
	for cur.Valid() && cur.HasPrefix(header) {
		dist, err := bitcodec.Distance(code.Bytes(), cur.Key())
		if err != nil {
			return nil, err
		}
		if dist <= ct {
			out = append(out, cur.Value())
			for cur.NextDup() {
				out = append(out, cur.Value())
			}
		}
		if !cur.NextNoDup() {
			break
		}
	}
	return out, nil
}
