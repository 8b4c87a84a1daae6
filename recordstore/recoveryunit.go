package recordstore

import "github.com/arborstore/recordstore/engine"

// Change is the commit/rollback hook capability pair the outer
// transaction manager invokes at end-of-transaction. Each hook kind this
// package registers is one small Change implementation below.
type Change interface {
	Commit()
	Rollback()
}

// CappedDeleteCallback is invoked once per record immediately before it
// is evicted or truncated-after. A non-nil error aborts the
// eviction/truncate-after operation.
type CappedDeleteCallback func(id RecordId, data []byte) error

// RecoveryUnit is the subset of the outer transaction manager's API this
// package consumes: registering Changes and exposing the
// engine.Transaction writes go through. The outer transaction manager
// itself lives above this layer; this interface is the seam.
type RecoveryUnit interface {
	// RegisterChange records c to be invoked on this recovery unit's
	// eventual Commit or Rollback, in registration order for Commit and
	// reverse registration order for Rollback.
	RegisterChange(c Change)

	// EngineTxn returns the underlying engine transaction that Put,
	// Delete, and TruncateRange calls in this package stage their work
	// against.
	EngineTxn() *engine.Transaction
}

// TxnRecoveryUnit is a concrete RecoveryUnit wrapping one engine
// transaction. A real outer transaction manager would own this role, but
// a concrete adapter is needed to exercise and test the rest of this
// package, so one ships here.
type TxnRecoveryUnit struct {
	txn     *engine.Transaction
	changes []Change
}

// NewTxnRecoveryUnit wraps txn as a RecoveryUnit.
func NewTxnRecoveryUnit(txn *engine.Transaction) *TxnRecoveryUnit {
	return &TxnRecoveryUnit{txn: txn}
}

func (ru *TxnRecoveryUnit) RegisterChange(c Change) { ru.changes = append(ru.changes, c) }

func (ru *TxnRecoveryUnit) EngineTxn() *engine.Transaction { return ru.txn }

// Commit commits the underlying engine transaction, then runs every
// registered Change's Commit in registration order.
func (ru *TxnRecoveryUnit) Commit() error {
	if err := ru.txn.Commit(); err != nil {
		return err
	}
	for _, c := range ru.changes {
		c.Commit()
	}
	return nil
}

// Rollback rolls back the underlying engine transaction, then runs every
// registered Change's Rollback in reverse registration order (undoing
// the most recently staged effect first).
func (ru *TxnRecoveryUnit) Rollback() error {
	err := ru.txn.Rollback()
	for i := len(ru.changes) - 1; i >= 0; i-- {
		ru.changes[i].Rollback()
	}
	return err
}

// uncommittedInsertChange removes an inserted id from the uncommitted-id
// registry on either outcome.
type uncommittedInsertChange struct {
	reg *uncommittedIDs
	id  RecordId
}

func (c *uncommittedInsertChange) Commit()   { c.reg.remove(c.id) }
func (c *uncommittedInsertChange) Rollback() { c.reg.remove(c.id) }

// sizeChange undoes a numRecords/dataSize delta on rollback; the delta
// was already applied optimistically when the operation was staged, so
// Commit has nothing left to do.
type sizeChange struct {
	size         *sizeInfo
	recordsDelta int64
	bytesDelta   int64
}

func (c *sizeChange) Commit() {}
func (c *sizeChange) Rollback() {
	c.size.addRecords(-c.recordsDelta)
	c.size.addBytes(-c.bytesDelta)
}

// stoneInsertChange feeds one insert's accounting into the oplog stones
// on commit only; a rolled-back insert never reached the engine, so there
// is nothing to account for.
type stoneInsertChange struct {
	stones *OplogStones
	id     RecordId
	bytes  int64
}

func (c *stoneInsertChange) Commit()   { c.stones.onInsertCommit(c.id, c.bytes) }
func (c *stoneInsertChange) Rollback() {}

// truncateChange clears the oplog stones only once the truncate that
// emptied the collection has actually committed.
type truncateChange struct {
	stones *OplogStones
}

func (c *truncateChange) Commit() {
	if c.stones != nil {
		c.stones.clear()
	}
}
func (c *truncateChange) Rollback() {}
