package engine

import "testing"

func seedTable(t *testing.T, tb *Table, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		txn := tb.Begin()
		if err := txn.Put(id, []byte{byte(id)}); err != nil {
			t.Fatalf("Put(%d): %v", id, err)
		}
		if err := txn.Commit(); err != nil {
			t.Fatalf("Commit(%d): %v", id, err)
		}
	}
}

func TestCursorForwardIteration(t *testing.T) {
	db := openTestDB(t)
	tb, _ := db.CreateTable("coll.fwd", TableConfig{})
	seedTable(t, tb, 5, 1, 3)

	c := tb.NewCursor()
	var got []int64
	for c.Next() {
		got = append(got, c.GetKey())
	}
	want := []int64{1, 3, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestCursorReverseIteration(t *testing.T) {
	db := openTestDB(t)
	tb, _ := db.CreateTable("coll.rev", TableConfig{})
	seedTable(t, tb, 1, 2, 3)

	c := tb.NewCursor()
	var got []int64
	for c.Prev() {
		got = append(got, c.GetKey())
	}
	want := []int64{3, 2, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestCursorSearchNear(t *testing.T) {
	db := openTestDB(t)
	tb, _ := db.CreateTable("coll.near", TableConfig{})
	seedTable(t, tb, 10, 20, 30)

	c := tb.NewCursor()
	if cmp, ok := c.SearchNear(20); !ok || cmp != 0 || c.GetKey() != 20 {
		t.Fatalf("SearchNear(20) = (%d,%v), key=%d", cmp, ok, c.GetKey())
	}
	if cmp, ok := c.SearchNear(15); !ok || cmp != 1 || c.GetKey() != 20 {
		t.Fatalf("SearchNear(15) = (%d,%v), key=%d", cmp, ok, c.GetKey())
	}
	if cmp, ok := c.SearchNear(100); !ok || cmp != -1 || c.GetKey() != 30 {
		t.Fatalf("SearchNear(100) = (%d,%v), key=%d", cmp, ok, c.GetKey())
	}
}

func TestRandomCursorEmptyTable(t *testing.T) {
	db := openTestDB(t)
	tb, _ := db.CreateTable("coll.empty", TableConfig{})
	rc := tb.NewRandomCursor()
	if _, _, ok := rc.Next(); ok {
		t.Fatalf("Next() on empty table returned ok=true")
	}
}
