// Package store wraps a single-file SQLite database (via the pure-Go
// modernc.org/sqlite driver) as an ordered, duplicate-sorted key-value
// store standing in for the embedded memory-mapped store the index's
// design is written against: named sub-stores, prefix-seekable cursors,
// and an explicit, observable MapFull/grow-and-retry contract.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"golang.org/x/sync/semaphore"

	_ "modernc.org/sqlite"

	"github.com/coblo/isccidx/internal/errors"
	"github.com/coblo/isccidx/internal/logging"
)

var subStoreNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// subStore records how a named sub-store's table was created.
type subStore struct {
	dupSort bool
}

// Store is an ordered KV store backed by SQLite, scoped to a single index
// directory. It owns the single-writer admission control required by the
// index's concurrency model: a cross-process flock pairs with an
// in-process weighted semaphore so a single os.process, and a single
// goroutine within it, ever holds the write transaction.
type Store struct {
	mu        sync.RWMutex
	db        *sql.DB
	dir       string
	path      string
	mapSize   atomic.Int64
	usedBytes atomic.Int64
	subStores map[string]subStore
	fileLock  *flock.Flock
	writeSem  *semaphore.Weighted
	closed    bool

	logger     *slog.Logger
	logCleanup func()
}

// Open creates or opens the SQLite-backed store rooted at dir, creating dir
// if it does not exist. initialMapSize is the starting soft ceiling, in bytes, on
// the database file; exceeding it during a write surfaces MapFull and
// doubles the ceiling for the caller to retry against (see Write).
func Open(dir string, initialMapSize int64) (*Store, error) {
	if initialMapSize <= 0 {
		initialMapSize = 1 << 20
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.IOErr("failed to create index directory", err)
	}

	path := filepath.Join(dir, "data.sqlite3")
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.IOErr("failed to open store", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = OFF",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, errors.IOErr("failed to set store pragma", err)
		}
	}

	logger, logCleanup, err := logging.Setup(logging.Config{
		Level:         "info",
		FilePath:      filepath.Join(dir, "index.log"),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false,
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.IOErr("failed to set up store logger", err)
	}

	s := &Store{
		db:         db,
		dir:        dir,
		path:       path,
		subStores:  make(map[string]subStore),
		fileLock:   flock.New(filepath.Join(dir, "data.sqlite3.lock")),
		writeSem:   semaphore.NewWeighted(1),
		logger:     logger,
		logCleanup: logCleanup,
	}
	s.mapSize.Store(initialMapSize)

	if err := s.discoverSubStores(); err != nil {
		_ = db.Close()
		logCleanup()
		return nil, err
	}

	// On reopen, start the soft-ceiling accounting from the on-disk size
	// so growth resumes where the previous process left off.
	if len(s.subStores) > 0 {
		if info, statErr := os.Stat(path); statErr == nil {
			s.usedBytes.Store(info.Size())
			for s.mapSize.Load() < info.Size() {
				s.mapSize.Store(s.mapSize.Load() * 2)
			}
		}
	}

	return s, nil
}

// discoverSubStores reloads sub-stores created by a previous process, so a
// reopened index still sees its feat_<kind> tables without the caller
// re-declaring every kind. The dup_sort flag is recovered from the table's
// recorded DDL.
func (s *Store) discoverSubStores() error {
	rows, err := s.db.Query(
		`SELECT name, sql FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return errors.IOErr("failed to list sub-store tables", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, ddl string
		if err := rows.Scan(&name, &ddl); err != nil {
			return errors.IOErr("failed to scan sub-store table row", err)
		}
		if !subStoreNamePattern.MatchString(name) || strings.HasSuffix(name, "_skey_idx") {
			continue
		}
		s.subStores[name] = subStore{dupSort: strings.Contains(ddl, "UNIQUE(skey, sval)")}
	}
	if err := rows.Err(); err != nil {
		return errors.IOErr("failed to list sub-store tables", err)
	}
	return nil
}

// MapSize returns the current soft byte ceiling.
func (s *Store) MapSize() int64 {
	return s.mapSize.Load()
}

// EnsureSubStore creates the named sub-store's backing table if absent.
// dupSort marks it as holding several sorted values per key, each
// (key, value) pair stored once (`components`, `feat_<kind>`); otherwise it is a singleton key->value
// table (`isccs`, `metadata`).
func (s *Store) EnsureSubStore(name string, dupSort bool) error {
	if !subStoreNamePattern.MatchString(name) {
		return errors.Internal("invalid sub-store name", nil).WithDetail("name", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.subStores[name]; ok {
		if existing.dupSort != dupSort {
			return errors.Internal("sub-store reopened with conflicting dup_sort flag", nil).
				WithDetail("name", name)
		}
		return nil
	}

	var ddl string
	if dupSort {
		ddl = fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (skey BLOB NOT NULL, sval BLOB NOT NULL, UNIQUE(skey, sval))`,
			quoteIdent(name))
	} else {
		ddl = fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (skey BLOB PRIMARY KEY, sval BLOB NOT NULL)`,
			quoteIdent(name))
	}

	if _, err := s.db.Exec(ddl); err != nil {
		return errors.IOErr("failed to create sub-store table", err)
	}
	idxDDL := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(skey)`,
		quoteIdent(name+"_skey_idx"), quoteIdent(name))
	if _, err := s.db.Exec(idxDDL); err != nil {
		return errors.IOErr("failed to create sub-store index", err)
	}

	s.subStores[name] = subStore{dupSort: dupSort}
	return nil
}

// SubStoreNames returns the names of every sub-store created so far,
// supporting the maintenance-level dbs() listing.
func (s *Store) SubStoreNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.subStores))
	for name := range s.subStores {
		names = append(names, name)
	}
	return names
}

// Tx is a single SQLite transaction plus the sub-store schema needed to
// translate Put/Get/Scan calls into table-qualified SQL. bytesWritten
// accumulates the approximate payload size of this transaction's writes,
// checked against the store's soft map-size ceiling before commit.
type Tx struct {
	sqlTx        *sql.Tx
	store        *Store
	bytesWritten int64
}

// Read runs fn inside a read-only transaction, which sees a consistent
// snapshot. The store keeps a single pooled database connection, so read
// transactions do not run in parallel with each other or with a write
// transaction: each waits until that connection is free.
func (s *Store) Read(ctx context.Context, fn func(*Tx) error) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return errors.IOErr("store is closed", nil)
	}

	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return errors.IOErr("failed to begin read transaction", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&Tx{sqlTx: sqlTx, store: s}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// Write runs fn inside a write transaction, serialized process-wide by a
// flock and in-process by a weighted semaphore. If the tracked payload
// size (see attemptWrite) would exceed the current soft map-size ceiling,
// the transaction is
// rolled back, the ceiling is doubled, and fn is retried exactly once
// (the one-retry-after-doubling contract).
func (s *Store) Write(ctx context.Context, fn func(*Tx) error) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return errors.IOErr("store is closed", nil)
	}

	if err := s.writeSem.Acquire(ctx, 1); err != nil {
		return errors.Locked("failed to acquire in-process write lock", err)
	}
	defer s.writeSem.Release(1)

	if err := s.fileLock.Lock(); err != nil {
		return errors.Locked("failed to acquire cross-process write lock", err)
	}
	defer func() { _ = s.fileLock.Unlock() }()

	return errors.RetryOnce(ctx,
		func() error { return s.attemptWrite(ctx, fn) },
		func(err error) bool { return errors.GetCode(err) == errors.ErrCodeMapFull },
		func() error { return s.growMapSize() },
	)
}

// attemptWrite runs one write transaction and checks the soft map-size
// ceiling, tracked as an approximate cumulative payload byte count
// (rather than relying on an actually-full disk), before committing.
func (s *Store) attemptWrite(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.IOErr("failed to begin write transaction", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	tx := &Tx{sqlTx: sqlTx, store: s}
	if err := fn(tx); err != nil {
		return err
	}

	baseline := s.usedBytes.Load()
	prospective := baseline + tx.bytesWritten
	if prospective > s.mapSize.Load() {
		return errors.MapFullErr("store map size exhausted", nil).
			WithDetail("size_bytes", humanize.Bytes(uint64(prospective))).
			WithDetail("map_size_bytes", humanize.Bytes(uint64(s.mapSize.Load())))
	}

	if err := sqlTx.Commit(); err != nil {
		cerr := errors.IOErr("failed to commit write transaction", err)
		s.logger.Error("store_commit_failed", slog.Any("error", errors.FormatForLog(cerr)))
		return cerr
	}
	s.usedBytes.Store(prospective)
	return nil
}

// growMapSize doubles the soft ceiling and logs the resize in
// human-readable sizes.
func (s *Store) growMapSize() error {
	old := s.mapSize.Load()
	next := old * 2
	if next <= old {
		next = old + (1 << 20)
	}
	s.mapSize.Store(next)
	s.logger.Info("store_map_size_doubled",
		slog.String("old_size", humanize.Bytes(uint64(old))),
		slog.String("new_size", humanize.Bytes(uint64(next))))
	return nil
}

// Stats returns the row count of every created sub-store.
func (s *Store) Stats() (map[string]int64, error) {
	s.mu.RLock()
	names := make([]string, 0, len(s.subStores))
	for name := range s.subStores {
		names = append(names, name)
	}
	s.mu.RUnlock()

	out := make(map[string]int64, len(names))
	for _, name := range names {
		var count int64
		q := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(name))
		if err := s.db.QueryRow(q).Scan(&count); err != nil {
			return nil, errors.IOErr("failed to count sub-store rows", err).WithDetail("name", name)
		}
		out[name] = count
	}
	return out, nil
}

// Close releases the database handle and the cross-process lock.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := s.db.Close()
	_ = s.fileLock.Close()
	if s.logCleanup != nil {
		s.logCleanup()
	}
	if err != nil {
		return errors.IOErr("failed to close store", err)
	}
	return nil
}

// Destroy closes the store and removes every file under its directory.
func (s *Store) Destroy() error {
	if err := s.Close(); err != nil {
		return err
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return errors.IOErr("failed to remove index directory", err)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}
