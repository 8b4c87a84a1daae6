package engine

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/zeebo/xxh3"

	"github.com/arborstore/recordstore/internal/compression"
)

// entry is one stored (RecordId, value) pair, held in key order.
type entry struct {
	id    int64
	value []byte // encoded entry blob, see encodeEntry
}

// orderedTable is the in-memory ordered keyspace backing one open table.
// Keys are int64 RecordIds; their numeric order agrees with the byte
// order of the big-endian encoding entries carry.
//
// An insert-only skiplist does not fit here: the table must support point
// overwrite and point/range delete without a tombstone+compaction scheme
// on top. A plain sorted slice under a mutex has no such restriction, and
// every operation this table needs (get/put/remove/truncateRange/cursor
// seek) is a straightforward binary search.
type orderedTable struct {
	mu         sync.RWMutex
	entries    []entry
	cfg        TableConfig
	compressor compression.Type
	uri        string
	version    atomic.Uint64 // bumped on every committed mutating transaction
}

func newOrderedTable(uri string, cfg TableConfig) (*orderedTable, error) {
	if err := validateExtra(cfg.Extra); err != nil {
		return nil, err
	}
	comp, err := cfg.Compressor()
	if err != nil {
		return nil, err
	}
	return &orderedTable{
		uri:        uri,
		cfg:        cfg,
		compressor: comp,
	}, nil
}

// find returns the index of id in t.entries, or the insertion point and
// false if absent.
func (t *orderedTable) find(id int64) (int, bool) {
	i := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].id >= id
	})
	if i < len(t.entries) && t.entries[i].id == id {
		return i, true
	}
	return i, false
}

func (t *orderedTable) get(id int64) ([]byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.find(id)
	if !ok {
		return nil, false
	}
	v := make([]byte, len(t.entries[i].value))
	copy(v, t.entries[i].value)
	return v, true
}

func (t *orderedTable) put(id int64, value []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.find(id)
	v := make([]byte, len(value))
	copy(v, value)
	if ok {
		t.entries[i].value = v
		return
	}
	t.entries = append(t.entries, entry{})
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = entry{id: id, value: v}
}

func (t *orderedTable) remove(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.find(id)
	if !ok {
		return false
	}
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
	return true
}

// truncateRange removes every entry with id in [startID, endID), matching
// the half-open convention the record store's truncateRange uses.
// hasStart=false or hasEnd=false makes that side unbounded, whatever the
// matching id holds.
func (t *orderedTable) truncateRange(startID int64, hasStart bool, endID int64, hasEnd bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	lo := 0
	if hasStart {
		lo, _ = t.find(startID)
	}
	hi := len(t.entries)
	if hasEnd {
		hi, _ = t.find(endID)
	}
	if lo >= hi {
		return 0
	}
	removed := hi - lo
	t.entries = append(t.entries[:lo], t.entries[hi:]...)
	return removed
}

func (t *orderedTable) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// snapshot returns a copy of the current entries for cursor iteration.
// Cursors operate against this frozen view rather than the live slice, so
// a concurrent insert/remove never corrupts an in-flight scan; it may
// simply not observe the mutation (acceptable given the record store
// layers its own visibility rules on top via UncommittedIds).
func (t *orderedTable) snapshot() []entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// encodeEntry renders a value the way it is stored on disk / in the WAL:
// [8-byte big-endian RecordId][1-byte compressor][varint32 uncompressed
// length][varint32 compressed length][compressed value][4-byte
// xxh3-truncated checksum]. The compressor byte makes entries
// self-describing, so a WAL replayed before the table's creation config
// is known still decodes. The uncompressed length sizes the decode
// buffer and cross-checks the decompressed result.
func encodeEntry(id int64, value []byte, comp compression.Type) ([]byte, error) {
	compressed, err := compression.Compress(comp, value)
	if err != nil {
		return nil, fmt.Errorf("engine: compress: %w", err)
	}

	out := make([]byte, 8, 8+1+2*binary.MaxVarintLen32+len(compressed)+4)
	binary.BigEndian.PutUint64(out, uint64(id))
	out = append(out, byte(comp))
	out = binary.AppendUvarint(out, uint64(len(value)))
	out = binary.AppendUvarint(out, uint64(len(compressed)))
	out = append(out, compressed...)

	sum := uint32(xxh3.Hash(out))
	out = binary.LittleEndian.AppendUint32(out, sum)
	return out, nil
}

// decodeEntry is the inverse of encodeEntry, verifying the trailing
// checksum before decompressing.
func decodeEntry(data []byte) (id int64, value []byte, err error) {
	if len(data) < 8+1+4 {
		return 0, nil, fmt.Errorf("%w: entry too short", ErrCorrupt)
	}
	id = int64(binary.BigEndian.Uint64(data[:8]))

	body := data[:len(data)-4]
	wantSum := binary.LittleEndian.Uint32(data[len(data)-4:])
	if uint32(xxh3.Hash(body)) != wantSum {
		return 0, nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	comp := compression.Type(body[8])
	rest := body[9:]
	ulen, n := binary.Uvarint(rest)
	if n <= 0 {
		return 0, nil, fmt.Errorf("%w: bad uncompressed length", ErrCorrupt)
	}
	rest = rest[n:]
	clen, n := binary.Uvarint(rest)
	if n <= 0 {
		return 0, nil, fmt.Errorf("%w: bad compressed length", ErrCorrupt)
	}
	rest = rest[n:]
	if uint64(len(rest)) != clen {
		return 0, nil, fmt.Errorf("%w: compressed length mismatch", ErrCorrupt)
	}

	value, err = compression.Decompress(comp, rest, int(ulen))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: decompress: %v", ErrCorrupt, err)
	}
	return id, value, nil
}
