package isccidx

import (
	"bytes"
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/coblo/isccidx/internal/ann"
	"github.com/coblo/isccidx/internal/bitcodec"
	"github.com/coblo/isccidx/internal/config"
	"github.com/coblo/isccidx/internal/envelope"
	"github.com/coblo/isccidx/internal/errors"
	"github.com/coblo/isccidx/internal/keycodec"
	"github.com/coblo/isccidx/internal/store"
)

// Options controls what an Index stores and where; see internal/config
// for field documentation and defaults.
type Options = config.Options

// DefaultOptions returns the zero-value-safe defaults: component
// indexing on, features/metadata off, exact cursor scanning.
func DefaultOptions() Options { return config.DefaultOptions() }

// OptBool builds a tri-state toggle value for Options' IndexComponents,
// IndexFeatures, and IndexMetadata fields, e.g.
// Options{IndexFeatures: isccidx.OptBool(true)}.
func OptBool(b bool) *bool { return config.Bool(b) }

const (
	subStoreISCCs      = "isccs"
	subStoreComponents = "components"
	subStoreMetadata   = "metadata"
	featSubStorePrefix = "feat_"

	// isccCacheSize bounds the fkey->ISCC-bytes read cache fronting the
	// isccs sub-store, cutting repeated point lookups during ranking.
	isccCacheSize = 4096
)

// Index is the public surface over a persistent ISCC similarity index.
type Index struct {
	name  string
	dir   string
	opts  Options
	store *store.Store
	scan  ann.Scanner
	cache *lru.Cache[string, []byte]
}

// Open creates or reopens the named index under opts.IndexRoot. When that
// directory already holds an options.yaml sidecar from an earlier Open,
// the recorded options replace the caller's overrides (the directory
// itself stays the one derived from the overrides), so reopening an
// index can't silently change its shape.
func Open(name string, overrides Options) (*Index, error) {
	opts := DefaultOptions().Merge(overrides)
	dir := opts.Dir(name)

	if existing, ok, err := config.Load(dir); err != nil {
		return nil, err
	} else if ok {
		opts = existing
	} else if err := config.Save(dir, opts); err != nil {
		return nil, err
	}

	st, err := store.Open(dir, opts.InitialMapSize)
	if err != nil {
		return nil, err
	}

	if err := st.EnsureSubStore(subStoreISCCs, false); err != nil {
		_ = st.Close()
		return nil, err
	}
	if opts.ComponentsEnabled() {
		if err := st.EnsureSubStore(subStoreComponents, true); err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	if opts.MetadataEnabled() {
		if err := st.EnsureSubStore(subStoreMetadata, false); err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	var scanner ann.Scanner = ann.CursorScanner{}
	if opts.ANNBackend == "hnsw" {
		scanner = ann.NewHNSWScanner()
	}

	// The HNSW graph lives in memory only; rebuild it from the stored
	// components when reopening an existing index with that backend.
	if hs, ok := scanner.(*ann.HNSWScanner); ok && opts.ComponentsEnabled() {
		err := st.Read(context.Background(), func(tx *store.Tx) error {
			cur, err := tx.Scan(subStoreComponents, nil, nil)
			if err != nil {
				return err
			}
			for cur.Valid() {
				k := cur.Key()
				hs.Ingest(k[0], cur.Value(), k[bitcodec.HeaderLen:])
				cur.Next()
			}
			return nil
		})
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	cache, err := lru.New[string, []byte](isccCacheSize)
	if err != nil {
		_ = st.Close()
		return nil, errors.Internal("failed to allocate read cache", err)
	}

	return &Index{name: name, dir: dir, opts: opts, store: st, scan: scanner, cache: cache}, nil
}

// Close releases the backing store's resources.
func (idx *Index) Close() error {
	return idx.store.Close()
}

// Destroy closes the index and removes every file under its directory.
func (idx *Index) Destroy() error {
	return idx.store.Destroy()
}

// Len returns the number of entries in the isccs sub-store.
func (idx *Index) Len(ctx context.Context) (int64, error) {
	var n int64
	err := idx.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		n, err = tx.Count(subStoreISCCs)
		return err
	})
	return n, err
}

// Stats returns per-sub-store entry counts.
func (idx *Index) Stats() (Stats, error) {
	return idx.store.Stats()
}

// DBs lists the names of every sub-store created so far.
func (idx *Index) DBs() []string {
	return idx.store.SubStoreNames()
}

// GetISCC returns the canonical ISCC bytes stored under key, or
// ok=false if absent. An absent key is not an error.
func (idx *Index) GetISCC(ctx context.Context, key Key) ([]byte, bool, error) {
	fkeyBytes := keycodec.Encode(key)

	if cached, ok := idx.cache.Get(string(fkeyBytes)); ok {
		return cached, true, nil
	}

	var out []byte
	var found bool
	err := idx.store.Read(ctx, func(tx *store.Tx) error {
		v, ok, err := tx.Get(subStoreISCCs, fkeyBytes)
		if err != nil {
			return err
		}
		found = ok
		if ok {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if found {
		idx.cache.Add(string(fkeyBytes), out)
	}
	return out, found, nil
}

// GetMetadata returns the metadata payload stored under key, or ok=false
// if absent or metadata storage is off.
func (idx *Index) GetMetadata(ctx context.Context, key Key) (Metadata, bool, error) {
	if !idx.opts.MetadataEnabled() {
		return nil, false, nil
	}

	fkeyBytes := keycodec.Encode(key)
	var framed []byte
	var found bool
	err := idx.store.Read(ctx, func(tx *store.Tx) error {
		v, ok, err := tx.Get(subStoreMetadata, fkeyBytes)
		if err != nil {
			return err
		}
		found = ok
		if ok {
			framed = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || !found {
		return nil, false, err
	}

	var meta Metadata
	if err := envelope.DecodeMetadata(framed, &meta); err != nil {
		return nil, false, err
	}
	return meta, true, nil
}

// GetKey returns the fkey-bearing Key of a stored ISCC equal to obj, or
// ok=false if no stored ISCC matches.
func (idx *Index) GetKey(ctx context.Context, obj IsccObj) (Key, bool, error) {
	p, err := parseIsccObj(obj)
	if err != nil {
		return Key{}, false, err
	}
	return idx.getKey(ctx, p.isccBytes)
}

// Contains reports whether obj's canonical ISCC is already stored.
func (idx *Index) Contains(ctx context.Context, obj IsccObj) (bool, error) {
	_, ok, err := idx.GetKey(ctx, obj)
	return ok, err
}

// getKey implements the get_key lookup against raw (possibly
// non-canonical-order) ISCC bytes: canonicalize, then for each
// component read the first attached fkey and check whether it points
// to an isccs entry equal to the canonicalized bytes.
func (idx *Index) getKey(ctx context.Context, isccBytes []byte) (Key, bool, error) {
	if !idx.opts.ComponentsEnabled() {
		return Key{}, false, nil
	}

	components, err := bitcodec.Decompose(isccBytes)
	if err != nil {
		return Key{}, false, err
	}
	canonical, err := bitcodec.Compose(components)
	if err != nil {
		return Key{}, false, err
	}

	var fkeyBytes []byte
	err = idx.store.Read(ctx, func(tx *store.Tx) error {
		for _, c := range components {
			fk, ok, err := tx.Get(subStoreComponents, c.Bytes())
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			existing, ok2, err := tx.Get(subStoreISCCs, fk)
			if err != nil {
				return err
			}
			if ok2 && bytes.Equal(existing, canonical) {
				fkeyBytes = append([]byte(nil), fk...)
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return Key{}, false, err
	}
	if fkeyBytes == nil {
		return Key{}, false, nil
	}

	key, err := keycodec.Decode(fkeyBytes)
	if err != nil {
		return Key{}, false, err
	}
	return key, true, nil
}

func featSubStoreName(kind string) string {
	return featSubStorePrefix + kind
}
