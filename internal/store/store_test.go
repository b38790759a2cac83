package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "idx")
	s, err := Open(dir, 8<<20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnsureSubStore_IdempotentAndCreatesTable(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.EnsureSubStore("isccs", false))
	require.NoError(t, s.EnsureSubStore("isccs", false))
	assert.Contains(t, s.SubStoreNames(), "isccs")
}

func TestPutGet_SingletonStore(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.EnsureSubStore("isccs", false))

	err := s.Write(context.Background(), func(tx *Tx) error {
		return tx.Put("isccs", []byte{0x00}, []byte("hello"), false, true)
	})
	require.NoError(t, err)

	var got []byte
	err = s.Read(context.Background(), func(tx *Tx) error {
		v, ok, err := tx.Get("isccs", []byte{0x00})
		require.NoError(t, err)
		require.True(t, ok)
		got = v
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestPut_NoOverwriteFailsOnExistingDifferentValue(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.EnsureSubStore("isccs", false))

	err := s.Write(context.Background(), func(tx *Tx) error {
		return tx.Put("isccs", []byte{0x01}, []byte("a"), false, true)
	})
	require.NoError(t, err)

	err = s.Write(context.Background(), func(tx *Tx) error {
		return tx.Put("isccs", []byte{0x01}, []byte("b"), false, false)
	})
	require.Error(t, err)
	assert.True(t, IsAlreadyPresent(err))
}

func TestPut_DupSortIsNoOpOnExistingPair(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.EnsureSubStore("components", true))

	write := func() error {
		return s.Write(context.Background(), func(tx *Tx) error {
			return tx.Put("components", []byte("comp"), []byte("k1"), true, true)
		})
	}
	require.NoError(t, write())
	require.NoError(t, write())

	err := s.Read(context.Background(), func(tx *Tx) error {
		vals, err := tx.GetAllDup("components", []byte("comp"))
		require.NoError(t, err)
		assert.Len(t, vals, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestScan_OrdersByKeyThenValueThenInsertion(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.EnsureSubStore("components", true))

	err := s.Write(context.Background(), func(tx *Tx) error {
		for _, kv := range []struct{ k, v string }{
			{"b", "2"}, {"a", "2"}, {"a", "1"}, {"c", "1"},
		} {
			if err := tx.Put("components", []byte(kv.k), []byte(kv.v), true, true); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	var seen []string
	err = s.Read(context.Background(), func(tx *Tx) error {
		cur, err := tx.Scan("components", nil, nil)
		require.NoError(t, err)
		for cur.Valid() {
			seen = append(seen, string(cur.Key())+":"+string(cur.Value()))
			cur.Next()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a:1", "a:2", "b:2", "c:1"}, seen)
}

func TestSeekPrefix_BoundsToHeaderRange(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.EnsureSubStore("components", true))

	err := s.Write(context.Background(), func(tx *Tx) error {
		for _, k := range []string{"\x00a", "\x00b", "\x01a", "\x02a"} {
			if err := tx.Put("components", []byte(k), []byte("v"), true, true); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	var seen []string
	err = s.Read(context.Background(), func(tx *Tx) error {
		cur, err := tx.SeekPrefix("components", []byte{0x00})
		require.NoError(t, err)
		for cur.Valid() && cur.HasPrefix([]byte{0x00}) {
			seen = append(seen, string(cur.Key()))
			cur.Next()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"\x00a", "\x00b"}, seen)
}

func TestCursor_NextDupAndNextNoDup(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.EnsureSubStore("components", true))

	err := s.Write(context.Background(), func(tx *Tx) error {
		for _, kv := range []struct{ k, v string }{
			{"a", "1"}, {"a", "2"}, {"a", "3"}, {"b", "1"},
		} {
			if err := tx.Put("components", []byte(kv.k), []byte(kv.v), true, true); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	err = s.Read(context.Background(), func(tx *Tx) error {
		cur, err := tx.Scan("components", nil, nil)
		require.NoError(t, err)

		require.True(t, cur.Valid())
		assert.Equal(t, "a", string(cur.Key()))
		assert.True(t, cur.NextDup())
		assert.True(t, cur.NextDup())
		assert.False(t, cur.NextDup())

		require.True(t, cur.NextNoDup())
		assert.Equal(t, "b", string(cur.Key()))
		assert.False(t, cur.NextNoDup())
		return nil
	})
	require.NoError(t, err)
}

func TestMapFull_DoublesAndRetriesOnce(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.EnsureSubStore("isccs", false))
	s.mapSize.Store(5) // smaller than the payload about to be written

	before := s.MapSize()
	err := s.Write(context.Background(), func(tx *Tx) error {
		return tx.Put("isccs", []byte{0x00}, []byte("payload"), false, true)
	})
	require.NoError(t, err)
	assert.Greater(t, s.MapSize(), before)

	var got []byte
	err = s.Read(context.Background(), func(tx *Tx) error {
		v, ok, err := tx.Get("isccs", []byte{0x00})
		require.NoError(t, err)
		require.True(t, ok)
		got = v
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestStats_CountsRowsPerSubStore(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.EnsureSubStore("isccs", false))
	require.NoError(t, s.EnsureSubStore("components", true))

	err := s.Write(context.Background(), func(tx *Tx) error {
		if err := tx.Put("isccs", []byte{0x00}, []byte("a"), false, true); err != nil {
			return err
		}
		if err := tx.Put("components", []byte("c1"), []byte("a"), true, true); err != nil {
			return err
		}
		return tx.Put("components", []byte("c1"), []byte("b"), true, true)
	})
	require.NoError(t, err)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats["isccs"])
	assert.Equal(t, int64(2), stats["components"])
}

func TestDestroy_RemovesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	s, err := Open(dir, 1<<20)
	require.NoError(t, err)
	require.NoError(t, s.EnsureSubStore("isccs", false))
	require.NoError(t, s.Destroy())

	_, err = Open(dir, 1<<20)
	require.NoError(t, err) // directory recreated cleanly, not corrupted
}

// Every write below pairs an isccs row with a components row in one
// transaction; a reader that ever sees one without the other has
// observed a partial write.
func TestConcurrentReaders_NeverObservePartialWrite(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.EnsureSubStore("isccs", false))
	require.NoError(t, s.EnsureSubStore("components", true))

	ctx := context.Background()
	done := make(chan struct{})

	var g errgroup.Group
	g.Go(func() error {
		defer close(done)
		for i := 0; i < 50; i++ {
			n := byte(i)
			if err := s.Write(ctx, func(tx *Tx) error {
				if err := tx.Put("isccs", []byte{n}, []byte{n}, false, true); err != nil {
					return err
				}
				return tx.Put("components", []byte{0x10, n}, []byte{n}, true, true)
			}); err != nil {
				return err
			}
		}
		return nil
	})

	for r := 0; r < 4; r++ {
		g.Go(func() error {
			for {
				select {
				case <-done:
					return nil
				default:
				}
				if err := s.Read(ctx, func(tx *Tx) error {
					cur, err := tx.Scan("isccs", nil, nil)
					if err != nil {
						return err
					}
					for cur.Valid() {
						n := cur.Key()[0]
						vals, err := tx.GetAllDup("components", []byte{0x10, n})
						if err != nil {
							return err
						}
						if len(vals) != 1 {
							return fmt.Errorf("entry %d visible without its component", n)
						}
						cur.Next()
					}
					return nil
				}); err != nil {
					return err
				}
			}
		})
	}

	require.NoError(t, g.Wait())
}
