package store

import (
	"database/sql"
	"fmt"

	"github.com/coblo/isccidx/internal/errors"
)

// Put writes (key, value) into the named sub-store.
//
// allowDup selects dup_sort semantics: the pair is inserted if absent and
// left untouched (a no-op, not an error) if already present, so the same
// component/feature can be attached to a key repeatedly without caller-side
// existence checks.
//
// When allowDup is false the sub-store is a singleton key->value mapping.
// overwrite=true replaces any existing value unconditionally (used to
// normalize the canonical ISCC bytes on first write). overwrite=false
// leaves an existing value unchanged and returns an error for which
// IsAlreadyPresent reports true; the caller decides whether that is
// KeyAlreadyUsed.
func (tx *Tx) Put(subStore string, key, value []byte, allowDup, overwrite bool) error {
	table := quoteIdent(subStore)
	payload := int64(len(key) + len(value))

	if allowDup {
		q := fmt.Sprintf(`INSERT OR IGNORE INTO %s (skey, sval) VALUES (?, ?)`, table)
		res, err := tx.sqlTx.Exec(q, key, value)
		if err != nil {
			return errors.IOErr("failed to write dup-sort entry", err).WithDetail("sub_store", subStore)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			tx.bytesWritten += payload
		}
		return nil
	}

	if overwrite {
		q := fmt.Sprintf(`INSERT OR REPLACE INTO %s (skey, sval) VALUES (?, ?)`, table)
		if _, err := tx.sqlTx.Exec(q, key, value); err != nil {
			return errors.IOErr("failed to write entry", err).WithDetail("sub_store", subStore)
		}
		tx.bytesWritten += payload
		return nil
	}

	q := fmt.Sprintf(`INSERT INTO %s (skey, sval) VALUES (?, ?)`, table)
	if _, err := tx.sqlTx.Exec(q, key, value); err != nil {
		// Key already present without overwrite: not a storage failure,
		// the caller (Index.add) decides whether this is KeyAlreadyUsed.
		if _, present, _ := tx.Get(subStore, key); present {
			return errAlreadyPresent
		}
		return errors.IOErr("failed to write entry", err).WithDetail("sub_store", subStore)
	}
	tx.bytesWritten += payload
	return nil
}

// errAlreadyPresent is a sentinel distinguishing a UNIQUE-constraint
// rejection (expected, handled by the caller) from a genuine IOError.
var errAlreadyPresent = errors.New("ERR_ALREADY_PRESENT_SENTINEL", "key already present", nil)

// IsAlreadyPresent reports whether err came from a non-overwrite Put that
// found the key already populated.
func IsAlreadyPresent(err error) bool {
	return err == errAlreadyPresent
}

// Get returns the first value stored under key in insertion order (by
// rowid), or ok=false if the key is absent. For a dup_sort sub-store this
// is the first fkey attached to it, which is all a dedup probe needs.
func (tx *Tx) Get(subStore string, key []byte) (value []byte, ok bool, err error) {
	q := fmt.Sprintf(`SELECT sval FROM %s WHERE skey = ? ORDER BY rowid ASC LIMIT 1`, quoteIdent(subStore))
	row := tx.sqlTx.QueryRow(q, key)
	if scanErr := row.Scan(&value); scanErr != nil {
		return nil, false, nil
	}
	return value, true, nil
}

// GetAllDup returns every value stored under key in insertion order.
func (tx *Tx) GetAllDup(subStore string, key []byte) ([][]byte, error) {
	q := fmt.Sprintf(`SELECT sval FROM %s WHERE skey = ? ORDER BY rowid ASC`, quoteIdent(subStore))
	rows, err := tx.sqlTx.Query(q, key)
	if err != nil {
		return nil, errors.IOErr("failed to read dup-sort entries", err).WithDetail("sub_store", subStore)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var v []byte
		if err := rows.Scan(&v); err != nil {
			return nil, errors.IOErr("failed to scan dup-sort value", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Count returns the number of rows in the named sub-store.
func (tx *Tx) Count(subStore string) (int64, error) {
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(subStore))
	var n int64
	if err := tx.sqlTx.QueryRow(q).Scan(&n); err != nil {
		return 0, errors.IOErr("failed to count sub-store rows", err)
	}
	return n, nil
}

// Scan opens a cursor over [lower, upper) of the named sub-store, ordered
// by (skey, sval, rowid). A nil upper scans to the end of the key space.
func (tx *Tx) Scan(subStore string, lower, upper []byte) (*Cursor, error) {
	table := quoteIdent(subStore)
	var (
		rows *sql.Rows
		err  error
	)

	switch {
	case upper != nil:
		q := fmt.Sprintf(`SELECT skey, sval FROM %s WHERE skey >= ? AND skey < ? ORDER BY skey ASC, sval ASC, rowid ASC`, table)
		rows, err = tx.sqlTx.Query(q, lower, upper)
	case lower != nil:
		q := fmt.Sprintf(`SELECT skey, sval FROM %s WHERE skey >= ? ORDER BY skey ASC, sval ASC, rowid ASC`, table)
		rows, err = tx.sqlTx.Query(q, lower)
	default:
		q := fmt.Sprintf(`SELECT skey, sval FROM %s ORDER BY skey ASC, sval ASC, rowid ASC`, table)
		rows, err = tx.sqlTx.Query(q)
	}
	if err != nil {
		return nil, errors.IOErr("failed to scan sub-store", err).WithDetail("sub_store", subStore)
	}
	defer rows.Close()

	var buffered []row
	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, errors.IOErr("failed to scan row", err)
		}
		buffered = append(buffered, row{key: k, value: v})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.IOErr("cursor iteration failed", err)
	}

	c := &Cursor{rows: buffered, pos: -1}
	c.Next()
	return c, nil
}

// SeekPrefix opens a cursor positioned at the first key >= prefix,
// bounded above by the lexicographic successor of prefix so the query
// does not scan sub-stores holding other header ranges.
func (tx *Tx) SeekPrefix(subStore string, prefix []byte) (*Cursor, error) {
	return tx.Scan(subStore, prefix, incrementPrefix(prefix))
}

// incrementPrefix returns the smallest byte string that is strictly
// greater than every string beginning with prefix, or nil if prefix is
// empty or all 0xff (no finite upper bound exists).
func incrementPrefix(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}
