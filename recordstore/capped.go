package recordstore

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arborstore/recordstore/engine"
)

const (
	// evictionBatchCap bounds the number of records one eviction
	// invocation will remove.
	evictionBatchCap = 20000

	// evictionTryWait is the try-lock timeout a contended evictor waits
	// before giving up.
	evictionTryWait = 200 * time.Millisecond

	// maxSlackBytes is the ceiling on the contention-relief margin.
	maxSlackBytes = 16 << 20

	// noProtectedID marks "nothing to protect" for deleteAsNeeded calls
	// not triggered by a specific just-inserted record (e.g. an
	// update-triggered check); 0 is never a valid RecordId.
	noProtectedID RecordId = 0
)

// cappedController implements the capped eviction subsystem:
// over-cap detection, the single-writer back-pressure protocol, and the
// eviction loop itself, running under a side transaction distinct from
// the caller's.
type cappedController struct {
	store *Store
	mu    sync.Mutex

	// waitedNanos accumulates time spent waiting on the try-lock timeout
	// path, for metrics.
	waitedNanos atomic.Int64
}

func newCappedController(s *Store) *cappedController {
	return &cappedController{store: s}
}

// slackFor computes the contention-relief margin for a byte-bounded
// capped collection.
func slackFor(maxBytes int64) int64 {
	s := maxBytes / 10
	if s > maxSlackBytes {
		return maxSlackBytes
	}
	return s
}

func (cc *cappedController) needsEviction() bool {
	s := cc.store
	if s.opts.CappedMaxBytes > 0 && s.size.DataSize() >= s.opts.CappedMaxBytes {
		return true
	}
	if s.opts.CappedMaxDocs != -1 && s.size.NumRecords() > s.opts.CappedMaxDocs {
		return true
	}
	return false
}

// deleteAsNeeded implements cappedDeleteAsNeeded: the single-writer
// back-pressure protocol followed (if this goroutine wins the right to
// evict) by the eviction loop. justInserted is the record that triggered
// this check and is never evicted; pass noProtectedID when
// there is none (e.g. an update-triggered check).
func (cc *cappedController) deleteAsNeeded(justInserted RecordId) (int64, error) {
	s := cc.store
	if s.shuttingDown.Load() {
		return 0, nil
	}
	if !cc.needsEviction() {
		return 0, nil
	}

	if s.opts.CappedMaxDocs != -1 {
		// Exactness required: block for the lock.
		cc.mu.Lock()
		defer cc.mu.Unlock()
		return cc.runEvictionLoop(justInserted)
	}

	if cc.mu.TryLock() {
		defer cc.mu.Unlock()
		return cc.runEvictionLoop(justInserted)
	}

	overshoot := s.size.DataSize() - s.opts.CappedMaxBytes
	slack := slackFor(s.opts.CappedMaxBytes)
	if overshoot < slack {
		return 0, nil // someone else will handle it
	}

	start := time.Now()
	ok := cc.tryLockTimeout(evictionTryWait)
	cc.waitedNanos.Add(int64(time.Since(start)))
	if !ok {
		return 0, nil
	}
	defer cc.mu.Unlock()

	overshoot = s.size.DataSize() - s.opts.CappedMaxBytes
	if overshoot < 2*slack {
		return 0, nil // also yield
	}
	return cc.runEvictionLoop(justInserted)
}

func (cc *cappedController) tryLockTimeout(d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if cc.mu.TryLock() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

// runEvictionLoop must be called with cc.mu held. It scans the oldest
// records forward, invoking the capped-delete callback on each candidate,
// stopping before justInserted, and issues one range truncate for
// whatever prefix it collected.
func (cc *cappedController) runEvictionLoop(justInserted RecordId) (int64, error) {
	s := cc.store

	overshoot := s.size.DataSize() - s.opts.CappedMaxBytes
	if overshoot < 0 {
		overshoot = 0
	}
	var docOvershoot int64
	if s.opts.CappedMaxDocs != -1 {
		docOvershoot = s.size.NumRecords() - s.opts.CappedMaxDocs
		if docOvershoot < 0 {
			docOvershoot = 0
		}
	}

	c := s.table.NewCursor()
	var firstID, lastID RecordId
	var sizeSaved, docsRemoved int64
	haveCandidate := false

	for scanned := 0; scanned < evictionBatchCap; scanned++ {
		if sizeSaved >= overshoot && docsRemoved >= docOvershoot {
			break
		}
		if s.shuttingDown.Load() {
			break
		}
		if !c.Next() {
			break
		}
		id := c.GetKey()
		if justInserted != noProtectedID && id >= justInserted {
			break
		}
		value, err := c.GetValue()
		if err != nil {
			break
		}
		if s.deleteCallback != nil {
			if err := s.deleteCallback(id, value); err != nil {
				return 0, err
			}
		}
		if !haveCandidate {
			firstID = id
			haveCandidate = true
		}
		lastID = id
		sizeSaved += int64(len(value))
		docsRemoved++
	}

	if !haveCandidate {
		return 0, nil
	}

	txn := s.table.Begin()
	txn.EnableConflictCheck()
	if err := txn.TruncateRange(firstID, true, lastID+1, true); err != nil {
		return 0, err
	}
	if err := txn.Commit(); err != nil {
		if errors.Is(err, engine.ErrConflict) {
			return 0, nil
		}
		if errors.Is(err, engine.ErrNotFound) {
			s.log.Warnf("[capped] truncate range reported not found for %s, treating as soft failure", s.opts.URI)
			return 0, nil
		}
		return 0, err
	}

	s.size.addRecords(-docsRemoved)
	s.size.addBytes(-sizeSaved)
	return docsRemoved, nil
}
