package engine

import "testing"

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCreateTableThenOpenTable(t *testing.T) {
	db := openTestDB(t)

	tb, err := db.CreateTable("coll.foo", TableConfig{})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if tb.URI() != "coll.foo" {
		t.Fatalf("URI = %q, want %q", tb.URI(), "coll.foo")
	}

	if _, err := db.CreateTable("coll.foo", TableConfig{}); err != ErrTableExists {
		t.Fatalf("CreateTable duplicate: err = %v, want ErrTableExists", err)
	}

	reopened, err := db.OpenTable("coll.foo")
	if err != nil {
		t.Fatalf("OpenTable: %v", err)
	}
	if reopened.URI() != tb.URI() {
		t.Fatalf("reopened URI mismatch")
	}

	if _, err := db.OpenTable("coll.bar"); err != ErrTableNotFound {
		t.Fatalf("OpenTable missing: err = %v, want ErrTableNotFound", err)
	}
}

func TestReplayAfterReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	tb1, err := db1.CreateTable("coll.oplog", TableConfig{})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	for i := int64(1); i <= 5; i++ {
		txn := tb1.Begin()
		if err := txn.Put(i, []byte{byte(i)}); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if err := txn.Commit(); err != nil {
			t.Fatalf("Commit: %v", err)
		}
	}
	if err := txnDelete(tb1, 3); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := db1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db2, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()

	tb2, err := db2.OpenTable("coll.oplog")
	if err != nil {
		t.Fatalf("OpenTable after reopen: %v", err)
	}
	if got := tb2.Count(); got != 4 {
		t.Fatalf("Count after replay = %d, want 4", got)
	}
	if _, err := tb2.Get(3); err != ErrNotFound {
		t.Fatalf("Get(3) after replay+delete: err = %v, want ErrNotFound", err)
	}
	v, err := tb2.Get(1)
	if err != nil || len(v) != 1 || v[0] != 1 {
		t.Fatalf("Get(1) after replay = %v, %v", v, err)
	}
}

func txnDelete(tb *Table, id int64) error {
	txn := tb.Begin()
	if err := txn.Delete(id); err != nil {
		return err
	}
	return txn.Commit()
}
