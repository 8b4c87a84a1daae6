package recordstore

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arborstore/recordstore/engine"
)

const (
	samplesPerStone     = 10
	minStonesToKeep     = 10
	maxStonesToKeep     = 100
	maxBSONInternalSize = 16 << 20 // matches the 16MiB document-size ceiling stone sizing is calibrated against
)

// Stone is one coarse-grained truncation marker: a contiguous
// prefix-suffix range whose last key is LastRecord and whose combined
// size is Bytes.
type Stone struct {
	Records    int64
	Bytes      int64
	LastRecord RecordId
}

// OplogStones implements the oplog truncation marker scheme:
// placement (scan or sampling at open), insert accounting, truncate-after
// accounting, and reclaim signaling. A background StoneReclaimer consumes
// it.
type OplogStones struct {
	store *Store

	mu     sync.Mutex
	cond   *sync.Cond
	stones []Stone
	dead   atomic.Bool

	firstRecord atomic.Int64

	currentRecords atomic.Int64
	currentBytes   atomic.Int64

	minBytesPerStone int64
	numStonesToKeep  int
}

// newOplogStones sizes the marker scheme for a collection capped at
// maxBytes. numStonesToKeepOverride, when positive, is taken as-is (admin
// and test knob); the computed default is clamped into
// [minStonesToKeep, maxStonesToKeep].
func newOplogStones(s *Store, numStonesToKeepOverride int) *OplogStones {
	maxBytes := s.opts.CappedMaxBytes
	n := clampInt(int(maxBytes/maxBSONInternalSize), minStonesToKeep, maxStonesToKeep)
	if numStonesToKeepOverride > 0 {
		n = numStonesToKeepOverride
	}
	os := &OplogStones{
		store:            s,
		numStonesToKeep:  n,
		minBytesPerStone: maxBytes / int64(n),
	}
	os.cond = sync.NewCond(&os.mu)
	return os
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// initialize populates stones from the collection's current contents at
// open, choosing between the scan and sample strategies.
func (os *OplogStones) initialize() {
	s := os.store
	numRecords := s.size.NumRecords()
	dataSize := s.size.DataSize()

	threshold := int64(20) * samplesPerStone * int64(os.numStonesToKeep)
	if numRecords == 0 || numRecords < threshold {
		os.scanInitialize()
		return
	}
	if !os.sampleInitialize(numRecords, dataSize) {
		os.scanInitialize()
	}
}

func (os *OplogStones) scanInitialize() {
	s := os.store
	c := s.table.NewCursor()
	var curRecords, curBytes int64
	for c.Next() {
		id := c.GetKey()
		value, err := c.GetValue()
		if err != nil {
			continue
		}
		curRecords++
		curBytes += int64(len(value))
		if curBytes >= os.minBytesPerStone {
			os.mu.Lock()
			os.stones = append(os.stones, Stone{Records: curRecords, Bytes: curBytes, LastRecord: id})
			os.mu.Unlock()
			curRecords, curBytes = 0, 0
		}
	}
	os.currentRecords.Store(curRecords)
	os.currentBytes.Store(curBytes)
	os.maybeSignal()
}

// sampleInitialize estimates stone boundaries from a random sample
// instead of scanning every record. It returns false
// (asking the caller to fall back to scanInitialize) if the random
// cursor short-returns before producing the requested sample count.
func (os *OplogStones) sampleInitialize(numRecords, dataSize int64) bool {
	s := os.store
	if numRecords == 0 {
		return false
	}
	avgRecordSize := dataSize / numRecords
	if avgRecordSize <= 0 {
		return false
	}
	estRecordsPerStone := (os.minBytesPerStone + avgRecordSize - 1) / avgRecordSize
	if estRecordsPerStone <= 0 {
		return false
	}
	estBytesPerStone := estRecordsPerStone * avgRecordSize
	wholeStones := numRecords / estRecordsPerStone
	if wholeStones <= 0 {
		return false
	}
	numSamples := int64(samplesPerStone) * wholeStones

	rc := s.table.NewRandomCursor()
	samples := make([]RecordId, 0, numSamples)
	for i := int64(0); i < numSamples; i++ {
		id, _, ok := rc.Next()
		if !ok {
			return false
		}
		samples = append(samples, id)
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	os.mu.Lock()
	for i := samplesPerStone - 1; i < len(samples); i += samplesPerStone {
		os.stones = append(os.stones, Stone{Records: estRecordsPerStone, Bytes: estBytesPerStone, LastRecord: samples[i]})
	}
	os.mu.Unlock()

	consumedRecords := wholeStones * estRecordsPerStone
	consumedBytes := wholeStones * estBytesPerStone
	os.currentRecords.Store(numRecords - consumedRecords)
	os.currentBytes.Store(dataSize - consumedBytes)
	os.maybeSignal()
	return true
}

// onInsertCommit adds one committed insert's accounting to the current
// accumulator, emitting a new stone if it now crosses minBytesPerStone.
func (os *OplogStones) onInsertCommit(id RecordId, bytesInserted int64) {
	os.currentRecords.Add(1)
	if os.currentBytes.Add(bytesInserted) < os.minBytesPerStone {
		return
	}
	if !os.mu.TryLock() {
		return
	}
	defer os.mu.Unlock()
	if os.currentBytes.Load() < os.minBytesPerStone {
		return // a racing insert already emitted a stone
	}
	os.stones = append(os.stones, Stone{
		Records:    os.currentRecords.Load(),
		Bytes:      os.currentBytes.Load(),
		LastRecord: id,
	})
	os.currentRecords.Store(0)
	os.currentBytes.Store(0)
	if len(os.stones) > os.numStonesToKeep {
		os.cond.Broadcast()
	}
}

// truncateAfter is called when cappedTruncateAfter removes a range
// starting at firstRemovedID: every stone whose LastRecord falls inside
// the removed range is dropped and its counters credited back to the
// accumulator, then the actually-removed totals (which may differ from
// the credited stone estimates) are subtracted.
func (os *OplogStones) truncateAfter(firstRemovedID, removedRecords, removedBytes int64) {
	os.mu.Lock()
	kept := make([]Stone, 0, len(os.stones))
	var creditRecords, creditBytes int64
	for _, st := range os.stones {
		if st.LastRecord >= firstRemovedID {
			creditRecords += st.Records
			creditBytes += st.Bytes
			continue
		}
		kept = append(kept, st)
	}
	os.stones = kept
	os.mu.Unlock()

	os.currentRecords.Add(creditRecords - removedRecords)
	os.currentBytes.Add(creditBytes - removedBytes)
}

// clear empties the stones and accumulators, called on commit of a
// truncate() that emptied the whole collection.
func (os *OplogStones) clear() {
	os.mu.Lock()
	os.stones = nil
	os.mu.Unlock()
	os.currentRecords.Store(0)
	os.currentBytes.Store(0)
	os.firstRecord.Store(0)
}

func (os *OplogStones) maybeSignal() {
	os.mu.Lock()
	excess := len(os.stones) > os.numStonesToKeep
	os.mu.Unlock()
	if excess {
		os.cond.Broadcast()
	}
}

// numStones returns the current stone count.
func (os *OplogStones) numStones() int {
	os.mu.Lock()
	defer os.mu.Unlock()
	return len(os.stones)
}

// snapshotStones returns a copy of the current stone sequence, oldest
// first.
func (os *OplogStones) snapshotStones() []Stone {
	os.mu.Lock()
	defer os.mu.Unlock()
	out := make([]Stone, len(os.stones))
	copy(out, os.stones)
	return out
}

// awaitHasExcessStonesOrDead blocks the reclaimer until there are more
// stones than numStonesToKeep, or until kill() is called. Returns false
// in the latter case.
func (os *OplogStones) awaitHasExcessStonesOrDead() bool {
	os.mu.Lock()
	defer os.mu.Unlock()
	for len(os.stones) <= os.numStonesToKeep && !os.dead.Load() {
		os.cond.Wait()
	}
	return !os.dead.Load()
}

// peekOldestIfExcess returns the oldest stone if there are more than
// numStonesToKeep, without popping it.
func (os *OplogStones) peekOldestIfExcess() (Stone, bool) {
	os.mu.Lock()
	defer os.mu.Unlock()
	if len(os.stones) <= os.numStonesToKeep {
		return Stone{}, false
	}
	return os.stones[0], true
}

// popOldest removes the oldest stone if it still matches expected
// (guards against a racing truncateAfter having already removed it).
func (os *OplogStones) popOldest(expected Stone) {
	os.mu.Lock()
	defer os.mu.Unlock()
	if len(os.stones) > 0 && os.stones[0].LastRecord == expected.LastRecord {
		os.stones = os.stones[1:]
	}
}

// kill is idempotent and wakes any goroutine blocked in
// awaitHasExcessStonesOrDead.
func (os *OplogStones) kill() {
	os.dead.Store(true)
	os.cond.Broadcast()
}

// StoneReclaimer is the external background task that consumes
// OplogStones, issuing bulk range truncates through the engine as oldest
// stones accumulate past numStonesToKeep. It is started and stopped
// explicitly rather than via a global thread pool.
type StoneReclaimer struct {
	store  *Store
	stones *OplogStones
	stop   chan struct{}
	done   chan struct{}
}

// NewStoneReclaimer builds a reclaimer for s's oplog stones. s must have
// been opened with IsOplog set.
func NewStoneReclaimer(s *Store) *StoneReclaimer {
	return &StoneReclaimer{store: s, stones: s.stones, stop: make(chan struct{}), done: make(chan struct{})}
}

// Start runs the reclaim loop on a new goroutine.
func (r *StoneReclaimer) Start() { go r.run() }

// Stop signals the reclaim loop to exit and waits for it to do so.
func (r *StoneReclaimer) Stop() {
	close(r.stop)
	r.stones.kill()
	<-r.done
}

func (r *StoneReclaimer) run() {
	defer close(r.done)
	for {
		if !r.stones.awaitHasExcessStonesOrDead() {
			return
		}
		select {
		case <-r.stop:
			return
		default:
		}
		for {
			if r.store.shuttingDown.Load() {
				return
			}
			st, ok := r.stones.peekOldestIfExcess()
			if !ok {
				break
			}
			if !r.reclaimOne(st) {
				time.Sleep(time.Millisecond)
			}
		}
	}
}

// reclaimOne issues one truncateRange covering [firstRecord, st.LastRecord]
// and, on success, advances firstRecord and pops the stone. Returns false
// on conflict so the caller retries.
func (r *StoneReclaimer) reclaimOne(st Stone) bool {
	s := r.store
	first := r.stones.firstRecord.Load()

	txn := s.table.Begin()
	txn.EnableConflictCheck()
	if err := txn.TruncateRange(first, true, st.LastRecord+1, true); err != nil {
		return false
	}
	if err := txn.Commit(); err != nil {
		if errors.Is(err, engine.ErrConflict) {
			return false
		}
		s.log.Warnf("[stones] reclaim of %s failed: %v", s.opts.URI, err)
		return false
	}

	s.size.addRecords(-st.Records)
	s.size.addBytes(-st.Bytes)
	r.stones.popOldest(st)
	r.stones.firstRecord.Store(st.LastRecord)
	return true
}
