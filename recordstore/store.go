// Package recordstore implements the record store layer sitting between a
// document-level API and an ordered key/value engine: record identity and
// ordered storage, capped-collection eviction, oplog stone truncation, and
// snapshot/MVCC cursor visibility.
package recordstore

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arborstore/recordstore/engine"
	"github.com/arborstore/recordstore/internal/logging"
)

// StoreConfig describes a collection to open: the engine table creation
// string fields plus the record-store-level collection attributes.
type StoreConfig struct {
	URI       string
	Namespace string

	IsCapped bool
	IsOplog  bool

	// CappedMaxBytes is >0 iff IsCapped.
	CappedMaxBytes int64
	// CappedMaxDocs is -1 (unbounded) or >0; only meaningful when IsCapped.
	CappedMaxDocs int64

	BlockCompressor   string
	PrefixCompression bool
	Extra             map[string]string

	// NumStonesToKeep overrides the computed default (clamp of
	// CappedMaxBytes/maxBSONInternalSize into [10,100]); 0 means compute it.
	NumStonesToKeep int

	// SizeStorer is the external {uri -> (numRecords, dataSize)} cache.
	// Nil means always recompute from a full scan at open.
	SizeStorer SizeStorer

	// DeleteCallback is invoked per record immediately before a capped
	// eviction or CappedTruncateAfter removes it.
	DeleteCallback CappedDeleteCallback

	Logger logging.Logger
}

// Store is the record store core: ID allocation, insert/
// update/delete/find, forward+reverse iteration, truncate, and
// repair-stats reporting, composed with the capped eviction controller,
// uncommitted-id registry, and (for oplog collections) stone accounting.
type Store struct {
	opts  StoreConfig
	table *engine.Table
	log   logging.Logger

	size        *sizeInfo
	uncommitted *uncommittedIDs

	capped *cappedController

	stones    *OplogStones
	reclaimer *StoneReclaimer

	deleteCallback CappedDeleteCallback

	nextID atomic.Int64 // non-oplog only

	highestSeenMu sync.Mutex // oplog only
	highestSeen   RecordId

	shuttingDown atomic.Bool
}

// OpenStore opens (creating if necessary) the engine table for cfg.URI and
// wires a Store around it.
func OpenStore(db *engine.DB, cfg StoreConfig) (*Store, error) {
	log := cfg.Logger
	if log == nil {
		log = logging.Discard
	}
	if cfg.IsCapped && cfg.CappedMaxDocs == 0 {
		cfg.CappedMaxDocs = -1
	}

	tableCfg := engine.TableConfig{
		Oplog:             cfg.IsOplog,
		BlockCompressor:   cfg.BlockCompressor,
		PrefixCompression: cfg.PrefixCompression,
		Extra:             cfg.Extra,
	}

	tb, err := db.OpenTable(cfg.URI)
	if err != nil {
		if !errors.Is(err, engine.ErrTableNotFound) {
			return nil, fmt.Errorf("recordstore: open %s: %w", cfg.URI, err)
		}
		tb, err = db.CreateTable(cfg.URI, tableCfg)
		if err != nil {
			if errors.Is(err, engine.ErrInvalidOptions) {
				return nil, &Error{Kind: InvalidOptions, Err: err}
			}
			return nil, fmt.Errorf("recordstore: create %s: %w", cfg.URI, err)
		}
	}

	meta := tb.AppMetadata()
	if err := engine.ValidateFormatVersion(meta.FormatVersion); err != nil {
		return nil, &Error{Kind: FormatVersionUnsupported, Err: err}
	}

	s := &Store{
		opts:           cfg,
		table:          tb,
		log:            log,
		uncommitted:    &uncommittedIDs{},
		deleteCallback: cfg.DeleteCallback,
	}
	s.size = newSizeInfo(cfg.URI, cfg.SizeStorer, log)

	maxID, scannedRecords, scannedBytes := scanForSeed(tb)
	if cfg.SizeStorer == nil {
		s.size.seed(scannedRecords, scannedBytes)
	}
	if cfg.IsOplog {
		s.highestSeen = maxID
	} else {
		s.nextID.Store(maxID)
	}

	if cfg.IsCapped {
		s.capped = newCappedController(s)
	}
	if cfg.IsOplog {
		s.stones = newOplogStones(s, cfg.NumStonesToKeep)
		s.stones.initialize()
		s.reclaimer = NewStoneReclaimer(s)
	}

	return s, nil
}

// scanForSeed forward-scans tb once to learn the maximum key and the true
// record/byte counts, used to seed nextID/highestSeen always and the size
// tracker when no external size-storer supplied prior values.
func scanForSeed(tb *engine.Table) (maxID RecordId, numRecords, dataSize int64) {
	c := tb.NewCursor()
	for c.Next() {
		id := c.GetKey()
		if id > maxID {
			maxID = id
		}
		value, err := c.GetValue()
		if err != nil {
			continue
		}
		numRecords++
		dataSize += int64(len(value))
	}
	return maxID, numRecords, dataSize
}

// Begin starts a new engine transaction against the store's table,
// wrapped in the RecoveryUnit adapter writes are staged through. A real
// outer transaction manager would supply its own RecoveryUnit spanning
// multiple stores; Begin covers the single-store case.
func (s *Store) Begin() *TxnRecoveryUnit {
	return NewTxnRecoveryUnit(s.table.Begin())
}

// StartReclaiming launches the background stone reclaimer for an oplog
// store. It is a no-op on non-oplog stores.
func (s *Store) StartReclaiming() {
	if s.reclaimer != nil {
		s.reclaimer.Start()
	}
}

// StopReclaiming signals shutdown and stops the
// background reclaimer, blocking until it has exited.
func (s *Store) StopReclaiming() {
	s.shuttingDown.Store(true)
	if s.reclaimer != nil {
		s.reclaimer.Stop()
	}
}

func (s *Store) oplogHighestSeen() RecordId {
	s.highestSeenMu.Lock()
	defer s.highestSeenMu.Unlock()
	return s.highestSeen
}

func (s *Store) advanceHighestSeen(id RecordId) {
	s.highestSeenMu.Lock()
	defer s.highestSeenMu.Unlock()
	if id > s.highestSeen {
		s.highestSeen = id
	}
}

// Insert allocates (or, for oplog collections, extracts) a RecordId for
// data, stages the engine write against ru's transaction, and registers
// the commit/rollback hooks that settle it. It returns the assigned
// RecordId.
func (s *Store) Insert(ru RecoveryUnit, data []byte) (RecordId, error) {
	if s.opts.IsCapped && int64(len(data)) > s.opts.CappedMaxBytes {
		return 0, &Error{Kind: ObjectTooLargeForCapped, Err: fmt.Errorf("document of %d bytes exceeds capped limit %d", len(data), s.opts.CappedMaxBytes)}
	}

	var id RecordId
	if s.opts.IsOplog {
		extracted, err := ExtractRecordID(data)
		if err != nil {
			return 0, err
		}
		id = extracted
		s.advanceHighestSeen(id)
	} else {
		id = s.nextID.Add(1)
		if id <= 0 {
			return 0, &Error{Kind: BadValue, Err: fmt.Errorf("record id allocator overflowed: %d", id)}
		}
	}

	if s.opts.IsCapped || s.opts.IsOplog {
		s.uncommitted.addOnInsert(id)
		ru.RegisterChange(&uncommittedInsertChange{reg: s.uncommitted, id: id})
	}

	if err := ru.EngineTxn().Put(id, data); err != nil {
		return 0, err
	}

	bytes := int64(len(data))
	s.size.addRecords(1)
	s.size.addBytes(bytes)
	ru.RegisterChange(&sizeChange{size: s.size, recordsDelta: 1, bytesDelta: bytes})

	if s.opts.IsOplog {
		ru.RegisterChange(&stoneInsertChange{stones: s.stones, id: id, bytes: bytes})
	} else if s.opts.IsCapped {
		if _, err := s.capped.deleteAsNeeded(id); err != nil {
			return 0, err
		}
	}

	return id, nil
}

// Update overwrites the record at id with data. Oplog
// collections forbid any size change.
func (s *Store) Update(ru RecoveryUnit, id RecordId, data []byte) error {
	old, err := s.table.Get(id)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if s.opts.IsOplog && len(data) != len(old) {
		return &Error{Kind: IllegalOperation, Err: fmt.Errorf("oplog update changes record size from %d to %d", len(old), len(data))}
	}

	if err := ru.EngineTxn().Put(id, data); err != nil {
		return err
	}

	delta := int64(len(data) - len(old))
	s.size.addBytes(delta)
	ru.RegisterChange(&sizeChange{size: s.size, bytesDelta: delta})

	if s.opts.IsCapped && !s.opts.IsOplog {
		if _, err := s.capped.deleteAsNeeded(noProtectedID); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the record at id. Forbidden on capped/oplog collections,
// where removal is bulk-only via Truncate/CappedTruncateAfter.
func (s *Store) Delete(ru RecoveryUnit, id RecordId) error {
	if s.opts.IsCapped || s.opts.IsOplog {
		return ErrDeleteForbiddenOnCapped
	}
	old, err := s.table.Get(id)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := ru.EngineTxn().Delete(id); err != nil {
		return err
	}
	s.size.addRecords(-1)
	s.size.addBytes(-int64(len(old)))
	ru.RegisterChange(&sizeChange{size: s.size, recordsDelta: -1, bytesDelta: -int64(len(old))})
	return nil
}

// FindRecord performs a point lookup.
func (s *Store) FindRecord(id RecordId) ([]byte, error) {
	data, err := s.table.Get(id)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// DataFor is an alias of FindRecord.
func (s *Store) DataFor(id RecordId) ([]byte, error) { return s.FindRecord(id) }

// GetCursor opens a forward or reverse cursor.
func (s *Store) GetCursor(forward bool) *Cursor { return newCursor(s, forward) }

// GetRandomCursor opens a cursor returning records in no particular
// order.
func (s *Store) GetRandomCursor() *RandomCursor { return newRandomCursor(s) }

// Truncate empties the collection: an open-ended range truncate, a
// size-tracker reset, and (on commit) clearing the oplog stones.
func (s *Store) Truncate(ru RecoveryUnit) error {
	if err := ru.EngineTxn().TruncateRange(0, false, 0, false); err != nil {
		return err
	}

	oldRecords, oldBytes := s.size.NumRecords(), s.size.DataSize()
	s.size.addRecords(-oldRecords)
	s.size.addBytes(-oldBytes)
	ru.RegisterChange(&sizeChange{size: s.size, recordsDelta: -oldRecords, bytesDelta: -oldBytes})
	ru.RegisterChange(&truncateChange{stones: s.stones})
	return nil
}

// CappedTruncateAfter removes every record from end (exclusive unless
// inclusive is set) to the tail, invoking the delete callback per record
// first and crediting stone accounting for any stone it guts.
func (s *Store) CappedTruncateAfter(ru RecoveryUnit, end RecordId, inclusive bool) error {
	probe := s.table.NewCursor()
	if !probe.Search(end) {
		return ErrNotFound
	}

	start := end
	if !inclusive {
		start++
	}

	c := s.table.NewCursor()
	cmp, ok := c.SearchNear(start)
	if !ok || cmp < 0 {
		return nil // nothing at or after start
	}

	var firstID, lastID RecordId
	var records, bytesRemoved int64
	have := false
	for {
		id := c.GetKey()
		value, err := c.GetValue()
		if err != nil {
			return err
		}
		if s.deleteCallback != nil {
			if err := s.deleteCallback(id, value); err != nil {
				return err
			}
		}
		if !have {
			firstID = id
			have = true
		}
		lastID = id
		records++
		bytesRemoved += int64(len(value))
		if !c.Next() {
			break
		}
	}
	if !have {
		return nil
	}

	if err := ru.EngineTxn().TruncateRange(firstID, true, lastID+1, true); err != nil {
		return err
	}

	s.size.addRecords(-records)
	s.size.addBytes(-bytesRemoved)
	ru.RegisterChange(&sizeChange{size: s.size, recordsDelta: -records, bytesDelta: -bytesRemoved})

	if s.stones != nil {
		s.stones.truncateAfter(firstID, records, bytesRemoved)
	}
	return nil
}

// ValidateResults reports the outcome of Validate: whether the underlying
// table verified cleanly, any warnings (e.g. size-tracker drift), and the
// record/byte counts as of the check.
type ValidateResults struct {
	Valid      bool
	Warnings   []string
	NumRecords int64
	DataSize   int64
}

// Validate verifies the underlying table and, if full is set, rescans the
// collection and reconciles the size tracker with recomputed totals,
// logging (and reporting) a warning on drift.
func (s *Store) Validate(full bool) (*ValidateResults, error) {
	res := &ValidateResults{Valid: true}

	if err := s.table.Verify(); err != nil {
		res.Valid = false
		res.Warnings = append(res.Warnings, err.Error())
	}

	if full {
		_, numRecords, dataSize := scanForSeed(s.table)
		if mismatched := s.size.reconcile(numRecords, dataSize); mismatched {
			res.Warnings = append(res.Warnings, fmt.Sprintf("size tracker drift reconciled for %s", s.opts.URI))
		}
	}

	res.NumRecords = s.size.NumRecords()
	res.DataSize = s.size.DataSize()
	return res, nil
}

// NumRecords and DataSize expose the live size tracker.
func (s *Store) NumRecords() int64 { return s.size.NumRecords() }
func (s *Store) DataSize() int64   { return s.size.DataSize() }

// URI returns the collection's identifying URI.
func (s *Store) URI() string { return s.opts.URI }
