// Package vfs abstracts the filesystem the engine persists through, so
// tests can substitute failing or instrumented implementations without
// touching the real disk paths.
package vfs

import (
	"io"
	"os"
	"sort"
)

// File is a writable file handle whose contents can be forced to stable
// storage.
type File interface {
	io.Writer
	io.Closer

	// Sync flushes written data to stable storage.
	Sync() error
}

// FS is the filesystem surface the engine needs: creating, reading, and
// listing the per-table log files under its directory.
type FS interface {
	// Create opens name for writing, truncating it if it exists.
	Create(name string) (File, error)

	// Open opens an existing file for sequential reading.
	Open(name string) (io.ReadCloser, error)

	// Remove deletes a file.
	Remove(name string) error

	// MkdirAll creates dir and any missing parents.
	MkdirAll(dir string, perm os.FileMode) error

	// Exists reports whether name exists.
	Exists(name string) bool

	// List returns the names of the entries in dir, sorted.
	List(dir string) ([]string, error)
}

// Default returns the real OS filesystem.
func Default() FS { return osFS{} }

type osFS struct{}

func (osFS) Create(name string) (File, error)            { return os.Create(name) }
func (osFS) Open(name string) (io.ReadCloser, error)     { return os.Open(name) }
func (osFS) Remove(name string) error                    { return os.Remove(name) }
func (osFS) MkdirAll(dir string, perm os.FileMode) error { return os.MkdirAll(dir, perm) }

func (osFS) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

func (osFS) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
