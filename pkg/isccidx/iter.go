package isccidx

import (
	"context"
	"iter"

	"github.com/coblo/isccidx/internal/store"
)

// IterISCCs yields every stored canonical ISCC byte value in fkey
// ascending order. All values are read in one read transaction before
// the sequence is returned, so a storage failure is reported through
// err and no sequence is produced; the consumer may stop pulling early.
func (idx *Index) IterISCCs(ctx context.Context) (iter.Seq[[]byte], error) {
	var values [][]byte
	err := idx.store.Read(ctx, func(tx *store.Tx) error {
		cur, err := tx.Scan(subStoreISCCs, nil, nil)
		if err != nil {
			return err
		}
		for cur.Valid() {
			values = append(values, append([]byte(nil), cur.Value()...))
			cur.Next()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return func(yield func([]byte) bool) {
		for _, v := range values {
			if !yield(v) {
				return
			}
		}
	}, nil
}

// IterComponents yields each distinct stored component key once,
// header-then-body byte order.
func (idx *Index) IterComponents(ctx context.Context) (iter.Seq[[]byte], error) {
	if !idx.opts.ComponentsEnabled() {
		return func(func([]byte) bool) {}, nil
	}

	var keys [][]byte
	err := idx.store.Read(ctx, func(tx *store.Tx) error {
		cur, err := tx.Scan(subStoreComponents, nil, nil)
		if err != nil {
			return err
		}
		for cur.Valid() {
			keys = append(keys, append([]byte(nil), cur.Key()...))
			if !cur.NextNoDup() {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return func(yield func([]byte) bool) {
		for _, k := range keys {
			if !yield(k) {
				return
			}
		}
	}, nil
}
