package recordstore

import "sync"

// uncommittedIDs is the ordered set of in-flight inserted RecordIds for a
// capped or oplog collection. addOnInsert places each id at its sorted
// position (concurrent inserters can register ids in a different order
// than the allocator handed them out), so the slice stays sorted
// ascending regardless of which entry is removed first; front() is
// therefore always just the first element, no scan required. Removal
// tolerates being invoked out of insertion order (a rollback can resolve
// before an earlier insert's commit).
type uncommittedIDs struct {
	mu  sync.Mutex
	ids []RecordId
}

// addOnInsert records id as uncommitted, keeping the set sorted. The
// common case (id above every registered id) is a plain append.
func (u *uncommittedIDs) addOnInsert(id RecordId) {
	u.mu.Lock()
	defer u.mu.Unlock()
	i := len(u.ids)
	for i > 0 && u.ids[i-1] > id {
		i--
	}
	u.ids = append(u.ids, 0)
	copy(u.ids[i+1:], u.ids[i:])
	u.ids[i] = id
}

// remove drops id from the uncommitted set, called from the commit or
// rollback hook registered at insert time. It is a no-op if id is not
// present (defensive against double-invocation).
func (u *uncommittedIDs) remove(id RecordId) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i, v := range u.ids {
		if v == id {
			u.ids = append(u.ids[:i], u.ids[i+1:]...)
			return
		}
	}
}

// front returns the lowest still-uncommitted id, or ok=false if the set
// is empty (no hidden floor).
func (u *uncommittedIDs) front() (RecordId, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.ids) == 0 {
		return 0, false
	}
	return u.ids[0], true
}

// isHidden reports whether id should be invisible to a cursor on a capped
// or oplog collection: some transaction inserted it (or an id below it in
// the same batch) but has not yet committed or rolled back.
func (u *uncommittedIDs) isHidden(id RecordId) bool {
	f, ok := u.front()
	return ok && f <= id
}
