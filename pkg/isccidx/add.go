package isccidx

import (
	"bytes"
	"context"

	"github.com/coblo/isccidx/internal/ann"
	"github.com/coblo/isccidx/internal/bitcodec"
	"github.com/coblo/isccidx/internal/envelope"
	"github.com/coblo/isccidx/internal/errors"
	"github.com/coblo/isccidx/internal/keycodec"
	"github.com/coblo/isccidx/internal/store"
)

// Add inserts obj, returning the Key it was stored under. If key is
// non-nil it is used as the caller-supplied identifier; otherwise the
// next autoincrement integer is allocated. An ISCC already present
// (by canonical bytes) is not duplicated: Add returns its existing Key.
func (idx *Index) Add(ctx context.Context, obj IsccObj, key *Key) (Key, error) {
	p, err := parseIsccObj(obj)
	if err != nil {
		return Key{}, err
	}

	if existingKey, ok, err := idx.getKey(ctx, p.isccBytes); err != nil {
		return Key{}, err
	} else if ok {
		return existingKey, nil
	}

	components, err := bitcodec.Decompose(p.isccBytes)
	if err != nil {
		return Key{}, err
	}
	canonical, err := bitcodec.Compose(components)
	if err != nil {
		return Key{}, err
	}

	// Sub-store creation is DDL on the shared connection and cannot run
	// while the write transaction below holds it.
	var featureGroups []FeatureGroup
	if idx.opts.FeaturesEnabled() {
		featureGroups = p.features
		for _, group := range featureGroups {
			if err := idx.store.EnsureSubStore(featSubStoreName(group.Kind), true); err != nil {
				return Key{}, err
			}
		}
	}

	var resultKey Key
	err = idx.store.Write(ctx, func(tx *store.Tx) error {
		var fkeyBytes []byte
		if key != nil {
			resultKey = *key
		} else {
			next, err := idx.allocateNextKey(tx)
			if err != nil {
				return err
			}
			resultKey = keycodec.Int(next)
		}
		fkeyBytes = keycodec.Encode(resultKey)

		if key != nil {
			existing, ok, err := tx.Get(subStoreISCCs, fkeyBytes)
			if err != nil {
				return err
			}
			if ok && !bytes.Equal(existing, canonical) {
				return errors.KeyAlreadyUsed("caller-supplied key already maps to a different ISCC").
					WithDetail("key", resultKey.String())
			}
		}

		if err := tx.Put(subStoreISCCs, fkeyBytes, canonical, false, true); err != nil {
			return err
		}

		if idx.opts.ComponentsEnabled() {
			for _, c := range components {
				if err := idx.addComponent(tx, c, fkeyBytes); err != nil {
					return err
				}
			}
		}

		for _, group := range featureGroups {
			if err := idx.writeFeatureGroup(tx, group, fkeyBytes); err != nil {
				return err
			}
		}

		if idx.opts.MetadataEnabled() && p.metadata != nil {
			encoded, err := envelope.EncodeMetadata(p.metadata)
			if err != nil {
				return err
			}
			if err := tx.Put(subStoreMetadata, fkeyBytes, encoded, false, true); err != nil {
				return err
			}
		}

		idx.cache.Add(string(fkeyBytes), append([]byte(nil), canonical...))
		return nil
	})
	if err != nil {
		return Key{}, err
	}
	return resultKey, nil
}

// addComponent is the internal `_add_component` primitive: attach one
// decomposed component to fkey in the components sub-store, and feed
// the HNSW scanner when that backend is selected.
func (idx *Index) addComponent(tx *store.Tx, c bitcodec.Component, fkeyBytes []byte) error {
	if err := tx.Put(subStoreComponents, c.Bytes(), fkeyBytes, true, true); err != nil {
		return err
	}
	if hnsw, ok := idx.scan.(*ann.HNSWScanner); ok {
		hnsw.Ingest(c.HeaderByte(), fkeyBytes, c.Body())
	}
	return nil
}

// AddFeature is the internal `_add_feature` primitive: attach one
// (feature bytes, position) pair of the given kind to fkey.
func (idx *Index) AddFeature(ctx context.Context, kind string, key Key, feature []byte, position any) error {
	if err := idx.store.EnsureSubStore(featSubStoreName(kind), true); err != nil {
		return err
	}
	fkeyBytes := keycodec.Encode(key)
	return idx.store.Write(ctx, func(tx *store.Tx) error {
		return idx.addFeature(tx, kind, feature, fkeyBytes, position)
	})
}

func (idx *Index) addFeature(tx *store.Tx, kind string, feature, fkeyBytes []byte, position any) error {
	subName := featSubStoreName(kind)
	val, err := envelope.PackFeatureValue(fkeyBytes, position)
	if err != nil {
		return err
	}
	return tx.Put(subName, feature, val, true, true)
}

// writeFeatureGroup walks a feature group,
// running-summing position over Sizes unless explicit Positions are
// supplied, and attach each to fkey.
func (idx *Index) writeFeatureGroup(tx *store.Tx, group FeatureGroup, fkeyBytes []byte) error {
	var pos int64
	for i, feat := range group.Features {
		var position any
		switch {
		case group.Positions != nil && i < len(group.Positions):
			position = group.Positions[i]
		default:
			position = pos
			if i < len(group.Sizes) {
				pos += int64(group.Sizes[i])
			}
		}
		if err := idx.addFeature(tx, group.Kind, feat, fkeyBytes, position); err != nil {
			return err
		}
	}
	return nil
}

// allocateNextKey implements KeyCodec's next_key: the smallest
// non-negative integer strictly greater than the maximum integer fkey
// currently present, found by scanning the KindInt tag range in
// ascending order and keeping the last key seen.
func (idx *Index) allocateNextKey(tx *store.Tx) (int64, error) {
	lower := []byte{byte(keycodec.KindInt)}
	upper := []byte{byte(keycodec.KindInt) + 1}
	cur, err := tx.Scan(subStoreISCCs, lower, upper)
	if err != nil {
		return 0, err
	}

	var max int64
	hasAny := false
	for cur.Valid() {
		k, err := keycodec.Decode(cur.Key())
		if err != nil {
			return 0, err
		}
		max = k.Int64()
		hasAny = true
		cur.Next()
	}
	return keycodec.NextKey(max, hasAny), nil
}
