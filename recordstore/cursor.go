package recordstore

import (
	"math"

	"github.com/arborstore/recordstore/engine"
)

// Cursor is a forward or reverse ordered iterator over a Store's records,
// filtering out records hidden by an in-flight uncommitted insert on
// capped/oplog collections, and bounding an oplog forward scan at the
// read-till point captured when the cursor was opened.
//
// ec is nil while fresh, saved, or detached, and non-nil once positioned.
type Cursor struct {
	store *Store
	fwd   bool

	ec *engine.Cursor

	lastID    RecordId
	lastValue []byte
	hasLast   bool
	eof       bool

	readUntil    RecordId
	hasReadUntil bool // forward oplog cursors only
}

// newCursor is called by Store.GetCursor.
func newCursor(s *Store, forward bool) *Cursor {
	c := &Cursor{store: s, fwd: forward}
	if forward && s.opts.IsOplog {
		if f, ok := s.uncommitted.front(); ok {
			c.readUntil = f
		} else {
			c.readUntil = s.oplogHighestSeen()
		}
		c.hasReadUntil = true
	}
	return c
}

func (c *Cursor) ensureOpen() {
	if c.ec == nil {
		c.ec = c.store.table.NewCursor()
	}
}

// isVisible hides in-flight inserts: on capped/oplog collections a
// record at or above the lowest still-uncommitted id is invisible.
func (c *Cursor) isVisible(id RecordId) bool {
	if !c.store.opts.IsCapped && !c.store.opts.IsOplog {
		return true
	}
	return !c.store.uncommitted.isHidden(id)
}

// reverseExclusiveBound returns the exclusive upper bound a fresh reverse
// capped/oplog cursor must land below: the forward read-till point bumped
// past its inclusive boundary, or the lowest hidden id. ok is false when
// neither applies (no hidden floor); the cursor then starts from the
// true end of the table.
func (c *Cursor) reverseExclusiveBound() (RecordId, bool) {
	if c.hasReadUntil {
		return c.readUntil + 1, true
	}
	if f, ok := c.store.uncommitted.front(); ok {
		return f, true
	}
	return 0, false
}

// positionFreshReverse implements the reverse-capped/oplog "first call"
// positioning rule: seek near the exclusive visibility
// bound, then use the searchNear comparison sign to land exactly on the
// highest visible record instead of one past it.
func (c *Cursor) positionFreshReverse() bool {
	bound, ok := c.reverseExclusiveBound()
	if !ok {
		_, found := c.ec.SearchNear(math.MaxInt64)
		return found // cmp is always -1 here (landed on the true last entry); no step needed
	}
	cmp, found := c.ec.SearchNear(bound)
	if !found {
		return false
	}
	if cmp >= 0 {
		return c.ec.Prev()
	}
	return true
}

// Next advances the cursor and reports whether a visible record was
// found. On false, the cursor is at EOF.
func (c *Cursor) Next() bool {
	if c.eof {
		return false
	}
	c.ensureOpen()

	var advanced bool
	switch {
	case !c.hasLast && !c.fwd && (c.store.opts.IsCapped || c.store.opts.IsOplog):
		advanced = c.positionFreshReverse()
	case c.fwd:
		advanced = c.ec.Next()
	default:
		advanced = c.ec.Prev()
	}
	if !advanced {
		c.eof = true
		return false
	}

	id := c.ec.GetKey()
	if c.fwd && c.hasReadUntil && id > c.readUntil {
		c.eof = true
		return false
	}
	if !c.isVisible(id) {
		c.eof = true
		return false
	}
	value, err := c.ec.GetValue()
	if err != nil {
		c.eof = true
		return false
	}
	c.lastID = id
	c.lastValue = value
	c.hasLast = true
	return true
}

// SeekExact positions the cursor exactly at id, returning false (EOF) if
// absent or hidden.
func (c *Cursor) SeekExact(id RecordId) bool {
	c.ensureOpen()
	if !c.ec.Search(id) || !c.isVisible(id) {
		c.eof = true
		return false
	}
	value, err := c.ec.GetValue()
	if err != nil {
		c.eof = true
		return false
	}
	c.lastID = id
	c.lastValue = value
	c.hasLast = true
	c.eof = false
	return true
}

// Key returns the current record's id. Valid only after Next/SeekExact
// returned true.
func (c *Cursor) Key() RecordId { return c.lastID }

// Value returns the current record's bytes. Valid only after Next/
// SeekExact returned true.
func (c *Cursor) Value() []byte { return c.lastValue }

// Save detaches the engine cursor ahead of the owning transaction ending;
// an engine cursor is never carried across transactions. lastReturnedId
// is preserved so Restore can re-seek.
func (c *Cursor) Save() { c.ec = nil }

// SaveUnpositioned is Save plus clearing lastReturnedId, for a cursor that
// was never successfully positioned.
func (c *Cursor) SaveUnpositioned() {
	c.Save()
	c.hasLast = false
}

// Restore reopens the engine cursor under the current transaction and
// re-seeks to where the cursor left off. It returns false only when a
// capped/oplog cursor's last-returned record has since been evicted, a
// hole scanning must not silently step over;
// non-capped collections instead land one step away so the next Next()
// call picks up exactly where scanning left off.
func (c *Cursor) Restore() bool {
	if c.eof {
		return true
	}
	c.ec = c.store.table.NewCursor()
	if !c.hasLast {
		return true
	}

	cmp, found := c.ec.SearchNear(c.lastID)
	if !found {
		c.eof = true
		return true // collection is now empty; not a hole, just nothing left
	}

	capped := c.store.opts.IsCapped || c.store.opts.IsOplog
	switch {
	case cmp == 0:
		// landed exactly on lastReturnedId; the next Next() naturally
		// advances past it.
	case capped:
		c.eof = true
		return false
	case cmp > 0 && c.fwd:
		c.ec.Prev()
	case cmp < 0 && !c.fwd:
		c.ec.Next()
	case cmp < 0 && c.fwd:
		c.eof = true
	}
	return true
}

// Detach drops the engine cursor without affecting lastReturnedId/eof
// state, for a cursor being held across an indefinite gap rather than a
// single transaction boundary.
func (c *Cursor) Detach() { c.ec = nil }

// RandomCursor returns records from a Store in no particular order. It is
// not save/restore-stable across transactions.
type RandomCursor struct {
	ec *engine.RandomCursor
}

func newRandomCursor(s *Store) *RandomCursor {
	return &RandomCursor{ec: s.table.NewRandomCursor()}
}

// Next returns a uniformly chosen (id, value), or ok=false if the store
// is empty.
func (rc *RandomCursor) Next() (id RecordId, value []byte, ok bool) {
	return rc.ec.Next()
}
