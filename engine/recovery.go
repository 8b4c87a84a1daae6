package engine

import (
	"github.com/arborstore/recordstore/internal/wal"
)

// applyOps applies one batch of staged or replayed ops directly to tbl.
// Callers hold the table's commit mutex (live commit) or have exclusive
// access (WAL replay before the table is published).
func applyOps(tbl *orderedTable, ops []pendingOp) {
	for _, op := range ops {
		switch op.kind {
		case opPut:
			tbl.put(op.id, op.blob)
		case opDelete:
			tbl.remove(op.id)
		case opTruncateRange:
			tbl.truncateRange(op.startID, op.hasStart, op.endID, op.hasEnd)
		}
	}
}

// verifyOps checks that every put blob in a replayed batch still decodes
// cleanly before it is applied, so a damaged record surfaces at open
// rather than on first read.
func verifyOps(ops []pendingOp) error {
	for _, op := range ops {
		if op.kind != opPut {
			continue
		}
		if _, _, err := decodeEntry(op.blob); err != nil {
			return err
		}
	}
	return nil
}

// writeCheckpoint writes the entire current contents of tbl as a single
// batch record, used to re-seed a freshly (re)created WAL file after
// replaying an existing one (vfs.FS.Create truncates, so the replayed
// state must be re-persisted before new transactions append to it).
func writeCheckpoint(w *wal.Writer, tbl *orderedTable) error {
	snap := tbl.snapshot()
	if len(snap) == 0 {
		return nil
	}
	ops := make([]pendingOp, 0, len(snap))
	for _, e := range snap {
		ops = append(ops, pendingOp{kind: opPut, id: e.id, blob: e.value})
	}
	return w.Append(encodeOps(0, ops))
}
