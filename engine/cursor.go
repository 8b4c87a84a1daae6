package engine

import (
	"math/rand"
	"sort"
)

// Cursor is a positioned, snapshot-isolated iterator over one table's
// entries in RecordId order, exposing the search/searchNear/next/prev/
// getKey/getValue/reset surface the record store layer drives. It operates against a frozen copy of the table taken at
// NewCursor/Reset time (see orderedTable.snapshot), so the cursor's own
// motion is never disturbed by concurrent writers; the record store layer
// above is responsible for save()/restore() across transaction
// boundaries, as a real WTCursor handle would be.
type Cursor struct {
	tb      *Table
	entries []entry // always ascending by id
	pos     int     // index into entries; -1 before start, len(entries) past end
	valid   bool
}

// NewCursor opens a forward-ordered cursor, positioned before the first
// entry.
func (tb *Table) NewCursor() *Cursor {
	return &Cursor{tb: tb, entries: tb.h.tbl.snapshot(), pos: -1}
}

// Reset repositions the cursor before the first entry and refreshes its
// snapshot, matching the engine contract's reset().
func (c *Cursor) Reset() {
	c.entries = c.tb.h.tbl.snapshot()
	c.pos = -1
	c.valid = false
}

// Close releases the cursor's snapshot.
func (c *Cursor) Close() {
	c.entries = nil
	c.valid = false
}

// Search seeks exactly to id. Returns false (not found) if absent,
// mirroring the engine's WT_NOTFOUND.
func (c *Cursor) Search(id int64) bool {
	i := c.find(id)
	if i < len(c.entries) && c.entries[i].id == id {
		c.pos = i
		c.valid = true
		return true
	}
	c.valid = false
	return false
}

// SearchNear seeks to the entry at or nearest id, returning a three-way
// comparison: -1 if the landed entry is less than
// id, 0 if equal, 1 if greater. ok is false if the table is empty.
func (c *Cursor) SearchNear(id int64) (cmp int, ok bool) {
	if len(c.entries) == 0 {
		c.valid = false
		return 0, false
	}
	i := c.find(id)
	switch {
	case i < len(c.entries) && c.entries[i].id == id:
		c.pos = i
		c.valid = true
		return 0, true
	case i < len(c.entries):
		c.pos = i
		c.valid = true
		return 1, true
	default:
		c.pos = len(c.entries) - 1
		c.valid = true
		return -1, true
	}
}

func (c *Cursor) find(id int64) int {
	return sort.Search(len(c.entries), func(i int) bool { return c.entries[i].id >= id })
}

// Next advances to the next higher id. Returns false at end-of-table.
func (c *Cursor) Next() bool {
	if !c.valid {
		c.pos = -1
	}
	c.pos++
	if c.pos >= len(c.entries) {
		c.valid = false
		return false
	}
	c.valid = true
	return true
}

// Prev advances to the next lower id. Returns false at start-of-table.
func (c *Cursor) Prev() bool {
	if !c.valid {
		c.pos = len(c.entries)
	}
	c.pos--
	if c.pos < 0 {
		c.valid = false
		return false
	}
	c.valid = true
	return true
}

// GetKey returns the current entry's RecordId. Valid only after a
// successful Search/SearchNear/Next/Prev.
func (c *Cursor) GetKey() int64 { return c.entries[c.pos].id }

// GetValue returns the current entry's decoded value.
func (c *Cursor) GetValue() ([]byte, error) {
	_, value, err := decodeEntry(c.entries[c.pos].value)
	return value, err
}

// RandomCursor returns records in no particular order via a dedicated
// "next-random"-configured handle; it is not
// save/restore-stable across transactions.
type RandomCursor struct {
	tb *Table
}

// NewRandomCursor opens a random cursor over tb.
func (tb *Table) NewRandomCursor() *RandomCursor { return &RandomCursor{tb: tb} }

// Next returns a uniformly chosen (id, value) pair, or ok=false if the
// table is empty.
func (rc *RandomCursor) Next() (id int64, value []byte, ok bool) {
	snap := rc.tb.h.tbl.snapshot()
	if len(snap) == 0 {
		return 0, nil, false
	}
	e := snap[rand.Intn(len(snap))] //nolint:gosec // sampling only, not security-sensitive
	_, v, err := decodeEntry(e.value)
	if err != nil {
		return 0, nil, false
	}
	return e.id, v, true
}

func (rc *RandomCursor) Close() {}
