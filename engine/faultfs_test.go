package engine

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/arborstore/recordstore/internal/vfs"
)

// faultFS wraps the real filesystem and, once armed, fails every write,
// exercising the Options.FS seam the engine persists through.
type faultFS struct {
	real vfs.FS
	fail atomic.Bool
}

var errInjected = errors.New("injected write failure")

func (f *faultFS) Create(name string) (vfs.File, error) {
	file, err := f.real.Create(name)
	if err != nil {
		return nil, err
	}
	return &faultFile{File: file, fs: f}, nil
}

func (f *faultFS) Open(name string) (io.ReadCloser, error)     { return f.real.Open(name) }
func (f *faultFS) Remove(name string) error                    { return f.real.Remove(name) }
func (f *faultFS) MkdirAll(dir string, perm os.FileMode) error { return f.real.MkdirAll(dir, perm) }
func (f *faultFS) Exists(name string) bool                     { return f.real.Exists(name) }
func (f *faultFS) List(dir string) ([]string, error)           { return f.real.List(dir) }

type faultFile struct {
	vfs.File
	fs *faultFS
}

func (f *faultFile) Write(p []byte) (int, error) {
	if f.fs.fail.Load() {
		return 0, errInjected
	}
	return f.File.Write(p)
}

func TestCommitSurfacesWALWriteFailure(t *testing.T) {
	fs := &faultFS{real: vfs.Default()}
	db, err := Open(t.TempDir(), Options{FS: fs})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	tb, err := db.CreateTable("coll.fault", TableConfig{})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	txn := tb.Begin()
	if err := txn.Put(1, []byte("safe")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit before fault: %v", err)
	}

	fs.fail.Store(true)
	txn2 := tb.Begin()
	if err := txn2.Put(2, []byte("lost")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	err = txn2.Commit()
	if err == nil || !errors.Is(err, errInjected) {
		t.Fatalf("Commit with failing WAL = %v, want injected error", err)
	}
	if !strings.Contains(err.Error(), "wal append") {
		t.Fatalf("error does not identify the WAL append: %v", err)
	}

	// The failed commit must not have reached the in-memory table.
	if _, err := tb.Get(2); err != ErrNotFound {
		t.Fatalf("Get(2) after failed commit = %v, want ErrNotFound", err)
	}
	if _, err := tb.Get(1); err != nil {
		t.Fatalf("Get(1): %v", err)
	}
}
