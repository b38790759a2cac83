package isccidx

import (
	"bytes"
	"context"
	"sort"

	"github.com/coblo/isccidx/internal/bitcodec"
	"github.com/coblo/isccidx/internal/envelope"
	"github.com/coblo/isccidx/internal/keycodec"
	"github.com/coblo/isccidx/internal/store"
)

// MatchComponent is the internal `match_component` primitive: every Key
// whose ISCC holds a component of the same (main-type, sub-type) as
// code within Hamming distance ct, de-duplicated.
func (idx *Index) MatchComponent(ctx context.Context, code bitcodec.Component, ct int) ([]Key, error) {
	if !idx.opts.ComponentsEnabled() {
		return nil, nil
	}

	set := newCandidateSet()
	err := idx.store.Read(ctx, func(tx *store.Tx) error {
		fks, err := idx.scan.MatchComponent(tx, subStoreComponents, code, ct)
		if err != nil {
			return err
		}
		for _, fk := range fks {
			set.add(fk)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]Key, 0, len(set.fkeys()))
	for _, fk := range set.fkeys() {
		k, err := keycodec.Decode(fk)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

// MatchFeature is the internal `match_feature` primitive: every stored
// feature of the given kind within Hamming distance ft of feature,
// reported as a FeatureMatch per occurrence.
func (idx *Index) MatchFeature(ctx context.Context, kind string, feature []byte, ft int) ([]FeatureMatch, error) {
	var out []FeatureMatch
	err := idx.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		out, err = idx.scanFeatureKind(tx, kind, feature, ft)
		return err
	})
	return out, err
}

// scanFeatureKind is the feature scan: a natural-key-order
// cursor walk of feat_<kind>, collecting every stored feature within ft
// bits and, for each, every (fkey, position) attached to it.
func (idx *Index) scanFeatureKind(tx *store.Tx, kind string, feature []byte, ft int) ([]FeatureMatch, error) {
	subName := featSubStoreName(kind)
	if !idx.hasSubStore(subName) {
		return nil, nil
	}

	cur, err := tx.Scan(subName, nil, nil)
	if err != nil {
		return nil, err
	}

	var out []FeatureMatch
	for cur.Valid() {
		dist, err := bitcodec.Distance(feature, cur.Key())
		if err != nil {
			return nil, err
		}
		if dist <= ft {
			matchedFeature := cur.Key()
			for {
				fv, err := envelope.UnpackFeatureValue(cur.Value())
				if err != nil {
					return nil, err
				}
				matchedISCC, ok, err := tx.Get(subStoreISCCs, fv.FKey)
				if err != nil {
					return nil, err
				}
				if ok {
					out = append(out, FeatureMatch{
						MatchedISCC:     bitcodec.Encode(matchedISCC),
						Kind:            kind,
						SourceFeature:   bitcodec.Encode(feature),
						MatchedFeature:  bitcodec.Encode(matchedFeature),
						MatchedPosition: fv.Position,
						Distance:        dist,
					})
				}
				if !cur.NextDup() {
					break
				}
			}
		}
		if !cur.NextNoDup() {
			break
		}
	}
	return out, nil
}

func (idx *Index) hasSubStore(name string) bool {
	for _, n := range idx.store.SubStoreNames() {
		if n == name {
			return true
		}
	}
	return false
}

// Query answers a near-neighbor query over obj: up to k ISCC matches
// ranked ascending by distance, and (when obj carries features and
// index_features is on) feature matches within ft bits.
func (idx *Index) Query(ctx context.Context, obj IsccObj, k, ct, ft int) (QueryResult, error) {
	p, err := parseIsccObj(obj)
	if err != nil {
		return QueryResult{}, err
	}

	queryComponents, err := bitcodec.Decompose(p.isccBytes)
	if err != nil {
		return QueryResult{}, err
	}
	queryCanonical, err := bitcodec.Compose(queryComponents)
	if err != nil {
		return QueryResult{}, err
	}

	var (
		matches    []IsccMatch
		matchFkeys [][]byte
	)

	err = idx.store.Read(ctx, func(tx *store.Tx) error {
		set := newCandidateSet()
		if idx.opts.ComponentsEnabled() {
			for _, c := range queryComponents {
				fks, err := idx.scan.MatchComponent(tx, subStoreComponents, c, ct)
				if err != nil {
					return err
				}
				for _, fk := range fks {
					set.add(fk)
				}
			}
		}

		for _, fkeyBytes := range set.fkeys() {
			matchedBytes, ok, err := tx.Get(subStoreISCCs, fkeyBytes)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}

			key, err := keycodec.Decode(fkeyBytes)
			if err != nil {
				return err
			}
			matchedComponents, err := bitcodec.Decompose(matchedBytes)
			if err != nil {
				return err
			}
			dist, err := isccDistance(queryCanonical, matchedBytes)
			if err != nil {
				return err
			}
			cmp := bitcodec.CompareCodes(queryComponents, matchedComponents)

			matches = append(matches, IsccMatch{
				Key:         key,
				MatchedISCC: bitcodec.Encode(matchedBytes),
				Distance:    dist,
				MDist:       cmp.MDist,
				CDist:       cmp.CDist,
				DDist:       cmp.DDist,
				IMatch:      cmp.IMatch,
			})
			matchFkeys = append(matchFkeys, fkeyBytes)
		}
		return nil
	})
	if err != nil {
		return QueryResult{}, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return bytes.Compare(matchFkeys[i], matchFkeys[j]) < 0
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}

	var featureMatches []FeatureMatch
	if idx.opts.FeaturesEnabled() && len(p.features) > 0 {
		err = idx.store.Read(ctx, func(tx *store.Tx) error {
			for _, group := range p.features {
				var pos int64
				for i, feat := range group.Features {
					var queryPos any
					switch {
					case group.Positions != nil && i < len(group.Positions):
						queryPos = group.Positions[i]
					default:
						queryPos = pos
						if i < len(group.Sizes) {
							pos += int64(group.Sizes[i])
						}
					}

					found, err := idx.scanFeatureKind(tx, group.Kind, feat, ft)
					if err != nil {
						return err
					}
					for j := range found {
						found[j].SourcePos = queryPos
					}
					featureMatches = append(featureMatches, found...)
				}
			}
			return nil
		})
		if err != nil {
			return QueryResult{}, err
		}

		sort.SliceStable(featureMatches, func(i, j int) bool {
			return featureMatches[i].Distance < featureMatches[j].Distance
		})
	}

	return QueryResult{IsccMatches: matches, FeatureMatches: featureMatches}, nil
}

// isccDistance computes Hamming distance between two canonical ISCC
// byte strings that may differ in length (a query may carry fewer
// components than a matched entry): common bytes contribute their
// exact bit distance, and every byte of length difference contributes
// a full 8 bits.
func isccDistance(a, b []byte) (int, error) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	common, err := bitcodec.Distance(a[:n], b[:n])
	if err != nil {
		return 0, err
	}
	diff := len(a) - len(b)
	if diff < 0 {
		diff = -diff
	}
	return common + 8*diff, nil
}
