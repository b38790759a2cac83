package store

import "bytes"

// row is one buffered (key, value) pair from a sub-store scan.
type row struct {
	key   []byte
	value []byte
}

// Cursor walks a pre-fetched, ordered slice of (key, value) pairs from a
// single sub-store scan. The ordering contract (skey, sval, insertion
// order) is established once by the SQL query that produced it; Cursor
// only exposes positional movement over that fixed ordering, mirroring
// the seek/next/next_dup/iter_no_dup primitives the index's design is
// built against.
type Cursor struct {
	rows []row
	pos  int
}

// Valid reports whether the cursor is positioned on a row.
func (c *Cursor) Valid() bool {
	return c.pos >= 0 && c.pos < len(c.rows)
}

// Key returns the current row's key. Valid must be true.
func (c *Cursor) Key() []byte {
	return c.rows[c.pos].key
}

// Value returns the current row's value. Valid must be true.
func (c *Cursor) Value() []byte {
	return c.rows[c.pos].value
}

// Next advances to the next row in the scan, regardless of key.
func (c *Cursor) Next() bool {
	c.pos++
	return c.Valid()
}

// NextDup advances to the next row only if it shares the current row's
// key, i.e. the next duplicate value in the same dup_sort group. It
// leaves the cursor unmoved and returns false at the end of the group.
func (c *Cursor) NextDup() bool {
	if !c.Valid() {
		return false
	}
	if c.pos+1 < len(c.rows) && bytes.Equal(c.rows[c.pos+1].key, c.rows[c.pos].key) {
		c.pos++
		return true
	}
	return false
}

// NextNoDup advances past every remaining row sharing the current key and
// lands on the first row of the next distinct key, implementing
// iter_no_dup's "each distinct key once" semantics.
func (c *Cursor) NextNoDup() bool {
	if !c.Valid() {
		return false
	}
	cur := c.rows[c.pos].key
	for c.pos+1 < len(c.rows) && bytes.Equal(c.rows[c.pos+1].key, cur) {
		c.pos++
	}
	c.pos++
	return c.Valid()
}

// HasPrefix reports whether the current row's key begins with prefix,
// letting match_component's "while stored key still begins with header"
// loop condition stay expressed at the call site.
func (c *Cursor) HasPrefix(prefix []byte) bool {
	return c.Valid() && bytes.HasPrefix(c.rows[c.pos].key, prefix)
}
