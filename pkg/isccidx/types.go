// Package isccidx implements the public Index surface: a persistent
// inverted index over composite content identifiers (ISCCs) answering
// nearest-neighbor queries by Hamming distance on their fixed-width
// components, with optional per-kind granular feature matching.
package isccidx

import (
	"github.com/coblo/isccidx/internal/bitcodec"
	"github.com/coblo/isccidx/internal/errors"
	"github.com/coblo/isccidx/internal/keycodec"
)

// Key is the tagged user-supplied identifier for an index entry: a
// signed integer or arbitrary text.
type Key = keycodec.Key

// KeyInt builds an integer Key.
func KeyInt(n int64) Key { return keycodec.Int(n) }

// KeyText builds a text Key.
func KeyText(s string) Key { return keycodec.Text(s) }

// Error is the structured error type surfaced by every Index operation.
type Error = errors.IndexError

// Metadata is an opaque structured payload (string keys, scalar/list
// values) serialized through the envelope when index_metadata is on.
type Metadata = map[string]any

// FeatureGroup is one kind of granular per-segment similarity hash
// attached to an ISCC being added: fixed-width Features, each occupying
// Sizes[i] units of content starting at the running sum of prior sizes,
// unless Positions supplies explicit offsets (int64 or float64) instead.
type FeatureGroup struct {
	Kind      string
	Features  [][]byte
	Sizes     []int
	Positions []any
}

// Rich is the structured add() input: an ISCC plus optional feature
// groups and metadata siblings.
type Rich struct {
	ISCC     any
	Features []FeatureGroup
	Metadata Metadata
}

type isccObjKind byte

const (
	kindText isccObjKind = iota
	kindBytes
	kindCode
	kindRich
)

// IsccObj is the tagged input variant add()/query()/get_key() accept:
// text ISCC, raw canonical bytes, a decomposed component list, or a
// Rich structured object. Construct one with FromText, FromBytes,
// FromComponents, or FromRich.
type IsccObj struct {
	kind isccObjKind
	text string
	raw  []byte
	code []bitcodec.Component
	rich Rich
}

// FromText builds an IsccObj from ISCC text form ("ISCC:KADT..." or
// bare base32).
func FromText(s string) IsccObj { return IsccObj{kind: kindText, text: s} }

// FromBytes builds an IsccObj from raw canonical ISCC bytes.
func FromBytes(b []byte) IsccObj {
	cp := make([]byte, len(b))
	copy(cp, b)
	return IsccObj{kind: kindBytes, raw: cp}
}

// FromComponents builds an IsccObj from an already-decomposed component
// list (order need not be canonical; add/query canonicalize it).
func FromComponents(cs []bitcodec.Component) IsccObj {
	cp := make([]bitcodec.Component, len(cs))
	copy(cp, cs)
	return IsccObj{kind: kindCode, code: cp}
}

// FromRich builds an IsccObj carrying features and/or metadata
// alongside the ISCC itself. r.ISCC must be a string, []byte, or
// []bitcodec.Component.
func FromRich(r Rich) IsccObj { return IsccObj{kind: kindRich, rich: r} }

// parsed is the normalized result of resolving an IsccObj: the ISCC's
// (not-yet-canonicalized) byte form plus any attached features and
// metadata.
type parsed struct {
	isccBytes []byte
	features  []FeatureGroup
	metadata  Metadata
}

func parseIsccObj(obj IsccObj) (parsed, error) {
	switch obj.kind {
	case kindText:
		b, err := bitcodec.Decode(obj.text)
		if err != nil {
			return parsed{}, err
		}
		return parsed{isccBytes: b}, nil
	case kindBytes:
		return parsed{isccBytes: obj.raw}, nil
	case kindCode:
		b, err := bitcodec.Compose(obj.code)
		if err != nil {
			return parsed{}, err
		}
		return parsed{isccBytes: b}, nil
	case kindRich:
		b, err := parseIsccAny(obj.rich.ISCC)
		if err != nil {
			return parsed{}, err
		}
		return parsed{isccBytes: b, features: obj.rich.Features, metadata: obj.rich.Metadata}, nil
	default:
		return parsed{}, errors.Internal("unknown IsccObj variant", nil)
	}
}

// parseIsccAny resolves the ISCC field of a Rich object, which may hold
// any of the three plain shapes.
func parseIsccAny(v any) ([]byte, error) {
	switch t := v.(type) {
	case string:
		return bitcodec.Decode(t)
	case []byte:
		return t, nil
	case []bitcodec.Component:
		return bitcodec.Compose(t)
	default:
		return nil, errors.MalformedCode("Rich.ISCC must be a string, []byte, or []bitcodec.Component", nil)
	}
}
