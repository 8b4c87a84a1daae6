package recordstore

import (
	"bytes"
	"testing"
)

func TestSeekExact(t *testing.T) {
	db := openTestDB(t)
	s := openTestStore(t, db, StoreConfig{URI: "coll.seek"})
	mustInsert(t, s, []byte("one"))
	mustInsert(t, s, []byte("two"))

	c := s.GetCursor(true)
	if !c.SeekExact(2) {
		t.Fatalf("SeekExact(2) = false")
	}
	if c.Key() != 2 || string(c.Value()) != "two" {
		t.Fatalf("SeekExact(2) = (%d, %q)", c.Key(), c.Value())
	}

	if s.GetCursor(true).SeekExact(99) {
		t.Fatalf("SeekExact(99) = true on missing record")
	}
}

func TestCursorHidesUncommittedInserts(t *testing.T) {
	db := openTestDB(t)
	s := openTestStore(t, db, StoreConfig{
		URI: "coll.visibility", IsCapped: true, CappedMaxBytes: 1 << 20,
	})
	mustInsert(t, s, []byte("committed-1"))

	ru := s.Begin()
	if _, err := s.Insert(ru, []byte("in-flight")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	ids, _ := collect(s.GetCursor(true))
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("cursor with in-flight insert yielded %v, want [1]", ids)
	}

	if err := ru.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	ids, _ = collect(s.GetCursor(true))
	if len(ids) != 2 || ids[1] != 2 {
		t.Fatalf("cursor after commit yielded %v, want [1 2]", ids)
	}
}

// A record that is physically in the table but at or above the lowest
// uncommitted id must stop the scan, preserving no-holes semantics: ids
// past it may only be surfaced once everything below them is settled.
func TestCursorStopsAtHiddenFloor(t *testing.T) {
	db := openTestDB(t)
	s := openTestStore(t, db, StoreConfig{
		URI: "coll.floor", IsCapped: true, CappedMaxBytes: 1 << 20,
	})
	mustInsert(t, s, []byte("a"))
	mustInsert(t, s, []byte("b"))

	// Land record 5 in the engine while its id is still registered as
	// uncommitted, as a racing committed-after-us writer would.
	txn := s.table.Begin()
	if err := txn.Put(5, []byte("e")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	s.uncommitted.addOnInsert(5)

	ids, _ := collect(s.GetCursor(true))
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("forward scan yielded %v, want [1 2]", ids)
	}

	s.uncommitted.remove(5)
	ids, _ = collect(s.GetCursor(true))
	if len(ids) != 3 || ids[2] != 5 {
		t.Fatalf("forward scan after settle yielded %v, want [1 2 5]", ids)
	}
}

func TestReverseCursorStartsBelowHiddenFloor(t *testing.T) {
	db := openTestDB(t)
	s := openTestStore(t, db, StoreConfig{
		URI: "coll.revfloor", IsCapped: true, CappedMaxBytes: 1 << 20,
	})
	mustInsert(t, s, []byte("a"))
	mustInsert(t, s, []byte("b"))

	txn := s.table.Begin()
	if err := txn.Put(3, []byte("c")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	s.uncommitted.addOnInsert(3)

	ids, _ := collect(s.GetCursor(false))
	if len(ids) != 2 || ids[0] != 2 || ids[1] != 1 {
		t.Fatalf("reverse scan yielded %v, want [2 1]", ids)
	}
}

func TestOplogForwardCursorCapsAtReadTill(t *testing.T) {
	db := openTestDB(t)
	s := openTestStore(t, db, StoreConfig{
		URI: "coll.readtill", IsCapped: true, IsOplog: true, CappedMaxBytes: 1 << 20,
	})
	mustInsert(t, s, oplogDoc(1, 32))
	mustInsert(t, s, oplogDoc(2, 32))

	ru := s.Begin()
	if _, err := s.Insert(ru, oplogDoc(4, 32)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	ids, _ := collect(s.GetCursor(true))
	if len(ids) != 2 || ids[1] != 2 {
		t.Fatalf("cursor with in-flight oplog insert yielded %v, want [1 2]", ids)
	}

	if err := ru.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	ids, _ = collect(s.GetCursor(true))
	if len(ids) != 3 || ids[2] != 4 {
		t.Fatalf("cursor after commit yielded %v, want [1 2 4]", ids)
	}
}

func TestSaveRestoreContinuesScan(t *testing.T) {
	db := openTestDB(t)
	s := openTestStore(t, db, StoreConfig{URI: "coll.saverestore"})
	for i := 0; i < 5; i++ {
		mustInsert(t, s, []byte{byte('a' + i)})
	}

	c := s.GetCursor(true)
	if !c.Next() || !c.Next() {
		t.Fatalf("initial positioning failed")
	}
	if c.Key() != 2 {
		t.Fatalf("positioned at %d, want 2", c.Key())
	}
	c.Save()

	// Delete the record the cursor would visit next; a non-capped restore
	// lands adjacent and the scan continues without reporting a hole.
	ru := s.Begin()
	if err := s.Delete(ru, 3); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := ru.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if !c.Restore() {
		t.Fatalf("Restore on non-capped store = false")
	}
	if !c.Next() || c.Key() != 4 {
		t.Fatalf("Next after restore = %d, want 4", c.Key())
	}
}

func TestRestoreOnNonCappedToleratesEvictedPosition(t *testing.T) {
	db := openTestDB(t)
	s := openTestStore(t, db, StoreConfig{URI: "coll.restoremiss"})
	for i := 0; i < 5; i++ {
		mustInsert(t, s, []byte("x"))
	}

	c := s.GetCursor(true)
	c.Next()
	c.Next() // at id 2
	c.Save()

	ru := s.Begin()
	if err := s.Delete(ru, 2); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := ru.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if !c.Restore() {
		t.Fatalf("Restore = false on non-capped store")
	}
	if !c.Next() || c.Key() != 3 {
		t.Fatalf("Next after restore = %d, want 3", c.Key())
	}
}

// A capped cursor whose last-returned record has been evicted must fail
// restore rather than silently skipping the hole.
func TestCappedRestoreDetectsHole(t *testing.T) {
	db := openTestDB(t)
	s := openTestStore(t, db, StoreConfig{
		URI: "coll.hole", IsCapped: true, CappedMaxBytes: 30,
	})
	for i := 0; i < 10; i++ {
		mustInsert(t, s, []byte("abc"))
	}

	c := s.GetCursor(true)
	if !c.Next() || c.Key() != 1 {
		t.Fatalf("first record = %d, want 1", c.Key())
	}
	c.Save()

	// Push the store over its cap so eviction removes record 1.
	for i := 0; i < 3; i++ {
		mustInsert(t, s, []byte("abc"))
	}
	if _, err := s.FindRecord(1); err == nil {
		t.Fatalf("record 1 still present; eviction did not run")
	}

	if c.Restore() {
		t.Fatalf("Restore = true over an evicted position on a capped store")
	}
}

func TestSaveUnpositionedForgetsPosition(t *testing.T) {
	db := openTestDB(t)
	s := openTestStore(t, db, StoreConfig{URI: "coll.unpos"})
	mustInsert(t, s, []byte("a"))
	mustInsert(t, s, []byte("b"))

	c := s.GetCursor(true)
	c.Next()
	c.SaveUnpositioned()

	if !c.Restore() {
		t.Fatalf("Restore: %v", false)
	}
	if !c.Next() || c.Key() != 1 {
		t.Fatalf("Next after unpositioned restore = %d, want 1 (scan restarts)", c.Key())
	}
}

func TestRandomCursorReturnsValidRecords(t *testing.T) {
	db := openTestDB(t)
	s := openTestStore(t, db, StoreConfig{URI: "coll.random"})
	docs := map[RecordId][]byte{}
	for i := 0; i < 10; i++ {
		doc := []byte{byte(i)}
		docs[mustInsert(t, s, doc)] = doc
	}

	rc := s.GetRandomCursor()
	for i := 0; i < 20; i++ {
		id, value, ok := rc.Next()
		if !ok {
			t.Fatalf("random cursor on non-empty store returned ok=false")
		}
		want, exists := docs[id]
		if !exists || !bytes.Equal(value, want) {
			t.Fatalf("random cursor returned (%d, %v), not an inserted record", id, value)
		}
	}
}
