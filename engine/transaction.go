package engine

import "fmt"

// Table is a handle onto one open table, the engine-level object backing
// a single collection. It is obtained from DB.CreateTable/OpenTable and
// is the entry point for transactions and cursors.
type Table struct {
	db *DB
	h  *tableHandle
}

// URI returns the table's URI.
func (tb *Table) URI() string { return tb.h.uri }

// AppMetadata returns the app-metadata derived from the table's in-memory
// config. The config is not written to the WAL: a table recovered by Open
// carries the default TableConfig and so reports no oplog key extraction
// version, whatever it was created with.
func (tb *Table) AppMetadata() AppMetadata {
	meta := AppMetadata{FormatVersion: FormatVersion}
	if tb.h.tbl.cfg.Oplog {
		meta.OplogKeyExtractionVersion = 1
	}
	return meta
}

// Count returns the current number of entries, for diagnostics/tests; the
// record store keeps its own authoritative count via the size tracker.
func (tb *Table) Count() int { return tb.h.tbl.count() }

// Get performs a point lookup, decoding and checksum-verifying the stored
// entry.
func (tb *Table) Get(id int64) ([]byte, error) {
	raw, ok := tb.h.tbl.get(id)
	if !ok {
		return nil, ErrNotFound
	}
	_, value, err := decodeEntry(raw)
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Verify checksum-verifies every stored entry, reporting the first
// corruption encountered.
func (tb *Table) Verify() error {
	for _, e := range tb.h.tbl.snapshot() {
		if _, _, err := decodeEntry(e.value); err != nil {
			return fmt.Errorf("engine: verify %s: %w", tb.h.uri, err)
		}
	}
	return nil
}

// Compact is a no-op: this engine keeps a single in-memory ordered table
// per file with no SST tier to merge, so there is nothing to compact.
func (tb *Table) Compact() error { return nil }

// Transaction accumulates mutations against one table and applies them to
// the in-memory ordered table plus its WAL atomically on Commit. Writes
// are buffered locally and validated against the table's version at
// commit time rather than taking a lock for the whole transaction
// lifetime.
type Transaction struct {
	tb    *Table
	ops   []pendingOp
	done  bool
	check bool // conflict-checked: see EnableConflictCheck
	base  uint64
}

type opKind byte

const (
	opPut opKind = iota + 1
	opDelete
	opTruncateRange
)

// pendingOp is one staged mutation. For opPut, blob holds the entry
// already rendered by encodeEntry, so commit, WAL persistence, and
// replay all share one encoding.
type pendingOp struct {
	kind     opKind
	id       int64
	blob     []byte
	startID  int64
	endID    int64
	hasStart bool
	hasEnd   bool
}

// Begin starts a new transaction against tb.
func (tb *Table) Begin() *Transaction {
	return &Transaction{tb: tb, base: tb.h.tbl.version.Load()}
}

// EnableConflictCheck marks this transaction as requiring its base
// version to still be current at Commit time, reporting ErrConflict
// otherwise. Side transactions (capped eviction, oplog stone reclaim) use
// this so a concurrent writer's intervening commit is detected rather
// than silently overwritten; ordinary record-store writers do not, since
// the table's commit mutex already serializes them with the table they
// are mutating.
func (txn *Transaction) EnableConflictCheck() { txn.check = true }

// Put stages an insert/overwrite of id.
func (txn *Transaction) Put(id int64, value []byte) error {
	if txn.done {
		return ErrTxnClosed
	}
	blob, err := encodeEntry(id, value, txn.tb.h.tbl.compressor)
	if err != nil {
		return err
	}
	txn.ops = append(txn.ops, pendingOp{kind: opPut, id: id, blob: blob})
	return nil
}

// Delete stages removal of id.
func (txn *Transaction) Delete(id int64) error {
	if txn.done {
		return ErrTxnClosed
	}
	txn.ops = append(txn.ops, pendingOp{kind: opDelete, id: id})
	return nil
}

// TruncateRange stages removal of every id in [startID, endID). Pass
// hasStart=false for an unbounded low end (from the beginning) and
// hasEnd=false for an unbounded high end (to the end).
func (txn *Transaction) TruncateRange(startID int64, hasStart bool, endID int64, hasEnd bool) error {
	if txn.done {
		return ErrTxnClosed
	}
	txn.ops = append(txn.ops, pendingOp{
		kind:     opTruncateRange,
		startID:  startID,
		endID:    endID,
		hasStart: hasStart,
		hasEnd:   hasEnd,
	})
	return nil
}

// Commit durably appends the transaction's batch to the WAL and applies
// it to the in-memory table. Returns ErrConflict (without applying
// anything) if EnableConflictCheck was called and another transaction has
// committed against this table since Begin.
func (txn *Transaction) Commit() error {
	if txn.done {
		return ErrTxnClosed
	}
	txn.done = true
	if len(txn.ops) == 0 {
		return nil
	}

	th := txn.tb.h
	th.mu.Lock()
	defer th.mu.Unlock()

	if txn.check && th.tbl.version.Load() != txn.base {
		return ErrConflict
	}

	if err := th.w.Append(encodeOps(th.tbl.version.Load()+1, txn.ops)); err != nil {
		return fmt.Errorf("engine: wal append: %w", err)
	}
	if err := th.w.Sync(); err != nil {
		return fmt.Errorf("engine: wal sync: %w", err)
	}

	applyOps(th.tbl, txn.ops)
	th.tbl.version.Add(1)
	return nil
}

// Rollback discards the transaction's staged operations without applying
// them. Since this engine buffers writes locally and only touches shared
// state at Commit, Rollback is simply a no-op on the underlying table.
func (txn *Transaction) Rollback() error {
	if txn.done {
		return ErrTxnClosed
	}
	txn.done = true
	return nil
}
