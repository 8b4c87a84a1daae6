package engine

import "errors"

// Errors returned by the engine adapter. Transient conflicts surface from
// Transaction.Commit (the caller's outer transaction should retry); cursor
// motion reports end-of-range as false, not as an error.
var (
	// ErrNotFound indicates a point lookup found no entry for the key.
	ErrNotFound = errors.New("engine: not found")

	// ErrConflict indicates a transient write conflict; the caller should
	// retry the surrounding transaction.
	ErrConflict = errors.New("engine: write conflict")

	// ErrTableNotFound indicates an operation referenced an unopened table.
	ErrTableNotFound = errors.New("engine: table not found")

	// ErrTableExists indicates CreateTable was called for a URI that is
	// already open.
	ErrTableExists = errors.New("engine: table already exists")

	// ErrInvalidOptions indicates an unknown key under the creation
	// config's customization field.
	ErrInvalidOptions = errors.New("engine: invalid options")

	// ErrClosed indicates an operation on a closed DB or table.
	ErrClosed = errors.New("engine: closed")

	// ErrCorrupt indicates a checksum mismatch or malformed on-disk record.
	ErrCorrupt = errors.New("engine: corrupt data")

	// ErrTxnClosed indicates Put/Delete/TruncateRange/Commit/Rollback on
	// an already committed or rolled-back transaction.
	ErrTxnClosed = errors.New("engine: transaction already closed")
)
