package recordstore

import (
	"sync"
	"sync/atomic"

	"github.com/arborstore/recordstore/internal/logging"
)

// flushStride is the number of size deltas between flushes to the
// external size-storer.
const flushStride = 1000

// SizeStorer is a thin cached size/count persistence store: a URI-keyed
// cache of
// (numRecords, dataSize) that survives process restarts so a reopened
// collection does not need a full scan to learn its size.
type SizeStorer interface {
	// Load returns the last-stored counts for uri, or ok=false if none
	// have ever been stored.
	Load(uri string) (numRecords, dataSize int64, ok bool)

	// Store persists the current counts for uri.
	Store(uri string, numRecords, dataSize int64)
}

// MemorySizeStorer is an in-process SizeStorer, used by tests. It is not
// installed by default: a store opened without a SizeStorer recomputes its
// counts from a scan.
type MemorySizeStorer struct {
	mu sync.Mutex
	m  map[string][2]int64
}

// NewMemorySizeStorer returns an empty in-memory size storer.
func NewMemorySizeStorer() *MemorySizeStorer {
	return &MemorySizeStorer{m: make(map[string][2]int64)}
}

func (s *MemorySizeStorer) Load(uri string) (int64, int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[uri]
	return v[0], v[1], ok
}

func (s *MemorySizeStorer) Store(uri string, numRecords, dataSize int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[uri] = [2]int64{numRecords, dataSize}
}

// sizeInfo is the in-memory {numRecords, dataSize} pair: atomics with an
// external-store flush every flushStride deltas.
type sizeInfo struct {
	numRecords atomic.Int64
	dataSize   atomic.Int64

	uri    string
	storer SizeStorer
	log    logging.Logger

	deltas atomic.Int64
}

func newSizeInfo(uri string, storer SizeStorer, log logging.Logger) *sizeInfo {
	if log == nil {
		log = logging.Discard
	}
	si := &sizeInfo{uri: uri, storer: storer, log: log}
	if storer != nil {
		if n, d, ok := storer.Load(uri); ok {
			si.numRecords.Store(n)
			si.dataSize.Store(d)
		}
	}
	return si
}

// seed overwrites the tracked counts directly, without going through the
// delta/flush path; used at open when a fresh scan (not the size-storer)
// is the source of truth.
func (si *sizeInfo) seed(numRecords, dataSize int64) {
	si.numRecords.Store(numRecords)
	si.dataSize.Store(dataSize)
}

func (si *sizeInfo) NumRecords() int64 { return si.numRecords.Load() }
func (si *sizeInfo) DataSize() int64   { return si.dataSize.Load() }

// addRecords applies delta to numRecords, clamping at zero and logging
// when the clamp actually triggers; persistent underflow indicates
// accounting drift.
func (si *sizeInfo) addRecords(delta int64) { si.clampAdd(&si.numRecords, delta); si.maybeFlush() }

// addBytes applies delta to dataSize with the same clamp-and-log
// behavior as addRecords.
func (si *sizeInfo) addBytes(delta int64) { si.clampAdd(&si.dataSize, delta); si.maybeFlush() }

func (si *sizeInfo) clampAdd(counter *atomic.Int64, delta int64) {
	for {
		old := counter.Load()
		next := old + delta
		if next < 0 {
			next = 0
		}
		if counter.CompareAndSwap(old, next) {
			if next == 0 && old+delta < 0 {
				si.log.Warnf("[recordstore] size counter underflow clamped to zero (uri=%s, attempted=%d)", si.uri, old+delta)
			}
			return
		}
	}
}

func (si *sizeInfo) maybeFlush() {
	if si.storer == nil {
		return
	}
	if si.deltas.Add(1)%flushStride == 0 {
		si.flush()
	}
}

func (si *sizeInfo) flush() {
	if si.storer == nil {
		return
	}
	si.storer.Store(si.uri, si.numRecords.Load(), si.dataSize.Load())
}

// reconcile overwrites the tracked counts with recomputed truth from a
// full scan, logging a warning and reporting
// mismatched=true if drift was found, then always flushing the
// (possibly unchanged) truth to the external store.
func (si *sizeInfo) reconcile(numRecords, dataSize int64) (mismatched bool) {
	if si.numRecords.Load() != numRecords || si.dataSize.Load() != dataSize {
		si.log.Warnf("[recordstore] size drift uri=%s tracked=(records=%d,bytes=%d) actual=(records=%d,bytes=%d)",
			si.uri, si.numRecords.Load(), si.dataSize.Load(), numRecords, dataSize)
		mismatched = true
	}
	si.numRecords.Store(numRecords)
	si.dataSize.Store(dataSize)
	si.flush()
	return mismatched
}
