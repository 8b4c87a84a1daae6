package engine

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/arborstore/recordstore/internal/logging"
	"github.com/arborstore/recordstore/internal/vfs"
	"github.com/arborstore/recordstore/internal/wal"
)

// DB is the top-level handle over a directory of tables, each backed by
// its own write-ahead log for durability.
type DB struct {
	mu     sync.RWMutex
	dir    string
	fs     vfs.FS
	log    logging.Logger
	tables map[string]*tableHandle
	closed bool
}

// tableHandle bundles a table's in-memory ordered keyspace with the WAL
// that durably records mutations against it.
type tableHandle struct {
	uri  string
	path string
	file vfs.File
	w    *wal.Writer
	tbl  *orderedTable

	mu sync.Mutex // serializes commits; orderedTable has its own lock
}

// Options configures a DB.
type Options struct {
	// FS is the filesystem to use. Defaults to vfs.Default() (the real OS
	// filesystem) if nil.
	FS vfs.FS

	// Logger receives diagnostic messages. Defaults to logging.Discard.
	Logger logging.Logger
}

// Open opens (creating if necessary) a DB rooted at dir, replaying the WAL
// of any table files already present.
func Open(dir string, opts Options) (*DB, error) {
	fs := opts.FS
	if fs == nil {
		fs = vfs.Default()
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: open: %w", err)
	}

	db := &DB{
		dir:    dir,
		fs:     fs,
		log:    log,
		tables: make(map[string]*tableHandle),
	}

	names, err := fs.List(dir)
	if err != nil {
		return nil, fmt.Errorf("engine: list %s: %w", dir, err)
	}
	for _, name := range names {
		uri := uriFromFileName(name)
		if uri == "" {
			continue
		}
		if _, err := db.openOrCreateLocked(uri, TableConfig{}, false); err != nil {
			return nil, fmt.Errorf("engine: recover table %q: %w", uri, err)
		}
	}

	return db, nil
}

// Close flushes and closes every open table's WAL file.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	db.closed = true
	var firstErr error
	for _, th := range db.tables {
		th.mu.Lock()
		if err := th.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		th.mu.Unlock()
	}
	return firstErr
}

func fileNameForURI(uri string) string {
	return fmt.Sprintf("%s.log", sanitizeURI(uri))
}

// sanitizeURI must be reversible up to the characters it passes through:
// a recovered file name maps back to the URI the table was created under,
// so only path-hostile characters are rewritten.
func sanitizeURI(uri string) string {
	out := make([]byte, len(uri))
	for i := 0; i < len(uri); i++ {
		c := uri[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '.', c == '-', c == '_':
			out[i] = c
		default:
			out[i] = '_'
		}
	}
	return string(out)
}

func uriFromFileName(name string) string {
	const suffix = ".log"
	if len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
		return ""
	}
	return name[:len(name)-len(suffix)]
}

// CreateTable creates and opens a new table for uri. It is an error if the
// table is already open.
func (db *DB) CreateTable(uri string, cfg TableConfig) (*Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}
	if _, ok := db.tables[uri]; ok {
		return nil, ErrTableExists
	}
	th, err := db.openOrCreateLocked(uri, cfg, true)
	if err != nil {
		return nil, err
	}
	return &Table{db: db, h: th}, nil
}

// OpenTable opens an already-created table.
func (db *DB) OpenTable(uri string) (*Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}
	th, ok := db.tables[uri]
	if !ok {
		return nil, ErrTableNotFound
	}
	return &Table{db: db, h: th}, nil
}

// openOrCreateLocked opens an existing table's WAL (replaying it) or, if
// create is true and it doesn't exist, creates one fresh. db.mu must be
// held by the caller.
func (db *DB) openOrCreateLocked(uri string, cfg TableConfig, create bool) (*tableHandle, error) {
	if th, ok := db.tables[uri]; ok {
		return th, nil
	}

	tbl, err := newOrderedTable(uri, cfg)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(db.dir, fileNameForURI(uri))
	existed := db.fs.Exists(path)
	if existed {
		if err := db.replayWAL(path, tbl); err != nil {
			return nil, err
		}
	} else if !create {
		return nil, ErrTableNotFound
	}

	// vfs.FS.Create truncates, so recovered state is re-persisted as a
	// single checkpoint batch before the file is handed to a fresh
	// wal.Writer for subsequent transactions to append to.
	f, err := db.fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("engine: create wal %s: %w", path, err)
	}
	w := wal.NewWriter(f)
	if existed {
		if err := writeCheckpoint(w, tbl); err != nil {
			return nil, err
		}
	}

	th := &tableHandle{
		uri:  uri,
		path: path,
		file: f,
		w:    w,
		tbl:  tbl,
	}
	db.tables[uri] = th
	return th, nil
}

// replayWAL reads every batch in the WAL at path and applies it to tbl.
// Replay stops at the first unreadable record: everything before it is
// intact, and nothing after it can be trusted to have committed in order.
func (db *DB) replayWAL(path string, tbl *orderedTable) error {
	sf, err := db.fs.Open(path)
	if err != nil {
		return fmt.Errorf("engine: open wal %s: %w", path, err)
	}
	defer func() { _ = sf.Close() }()

	r := wal.NewReader(sf)
	for {
		payload, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			db.log.Warnf("[engine] wal %s: stopping replay: %v", path, err)
			return nil
		}
		_, ops, err := decodeOps(payload)
		if err != nil {
			db.log.Warnf("[engine] wal %s: stopping replay: %v", path, err)
			return nil
		}
		if err := verifyOps(ops); err != nil {
			db.log.Warnf("[engine] wal %s: stopping replay: %v", path, err)
			return nil
		}
		applyOps(tbl, ops)
	}
}
