// Package envelope implements the single self-describing binary value
// format for the index: every structured value it stores
// (metadata payloads, `(fkey, position)` feature tuples) is serialized
// through it. CBOR round-trips integers, floats, text, bytes, lists, and
// maps losslessly and keeps the on-disk artifact portable across
// languages.
//
// Ordered keys (the fkey encoding itself) are NOT serialized through this
// envelope: CBOR's variable-width integer encoding does not preserve
// byte-lexicographic order across the signed range, which the fkey
// encoding requires for autoincrement (see internal/keycodec). The
// envelope is strictly for values.
package envelope

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/coblo/isccidx/internal/errors"
)

// decMode decodes CBOR integers into int64 (not the default uint64) when
// the target is an empty interface, so an int64 position written by a
// caller comes back as an int64 and stays distinguishable from a float.
var decMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{IntDec: cbor.IntDecConvertSigned}.DecMode()
	if err != nil {
		panic("envelope: failed to build cbor decode mode: " + err.Error())
	}
	return dm
}()

// Marshal serializes v into its envelope bytes.
func Marshal(v any) ([]byte, error) {
	data, err := cbor.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	return data, nil
}

// Unmarshal parses envelope bytes produced by Marshal into v.
func Unmarshal(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return nil
}

// FeatureValue is the envelope payload stored under a feature key: which
// entry it belongs to and its offset within that entry's content.
// Position is an int64 or float64 depending on what the caller supplied;
// CBOR's distinct integer/float major types keep that distinction through
// a round trip (the "preserve numeric type faithfully" design note).
type FeatureValue struct {
	FKey     []byte `cbor:"fkey"`
	Position any    `cbor:"position"`
}

// PackFeatureValue serializes a (fkey, position) feature tuple.
func PackFeatureValue(fkey []byte, position any) ([]byte, error) {
	return Marshal(FeatureValue{FKey: fkey, Position: position})
}

// UnpackFeatureValue parses a (fkey, position) feature tuple.
func UnpackFeatureValue(data []byte) (FeatureValue, error) {
	var fv FeatureValue
	if err := Unmarshal(data, &fv); err != nil {
		return FeatureValue{}, err
	}
	return fv, nil
}
