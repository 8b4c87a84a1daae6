package recordstore

import (
	"errors"
	"fmt"
)

// Kind is the error-kind taxonomy surfaced to callers, distinguishing
// transient conditions the outer transaction should retry from fatal
// ones.
type Kind int

const (
	// ObjectTooLargeForCapped: insert into a capped collection whose
	// length exceeds cappedMaxBytes.
	ObjectTooLargeForCapped Kind = iota
	// BadValue: malformed oplog key, or another invalid value.
	BadValue
	// IllegalOperation: a resize update on an oplog record. (Delete on a
	// capped collection returns ErrDeleteForbiddenOnCapped instead.)
	IllegalOperation
	// InvalidOptions: an unknown customization key.
	InvalidOptions
	// StorageConflict is transient: the engine reported a write
	// conflict and the caller should retry.
	StorageConflict
	// StorageCorrupt is fatal for the operation: a verify failure.
	StorageCorrupt
	// FormatVersionUnsupported is fatal at open.
	FormatVersionUnsupported
)

func (k Kind) String() string {
	switch k {
	case ObjectTooLargeForCapped:
		return "ObjectTooLargeForCapped"
	case BadValue:
		return "BadValue"
	case IllegalOperation:
		return "IllegalOperation"
	case InvalidOptions:
		return "InvalidOptions"
	case StorageConflict:
		return "StorageConflict"
	case StorageCorrupt:
		return "StorageCorrupt"
	case FormatVersionUnsupported:
		return "FormatVersionUnsupported"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying error with a Kind so callers can distinguish
// transient conflicts from fatal errors with errors.As.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("recordstore: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err (or any error it wraps) is a *Error of kind k.
func IsKind(err error, k Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == k
	}
	return false
}

// Sentinel errors for conditions outside the Kind taxonomy that still
// need a distinct, checkable identity.
var (
	// ErrNotFound indicates a point lookup or seekExact found no record.
	ErrNotFound = errors.New("recordstore: record not found")

	// ErrDeleteForbiddenOnCapped indicates Delete was called on a capped
	// collection, where removal is bulk-only via truncateRange/
	// cappedTruncateAfter.
	ErrDeleteForbiddenOnCapped = errors.New("recordstore: delete is forbidden on capped collections")

	// ErrClosed indicates an operation against a shut-down store.
	ErrClosed = errors.New("recordstore: store is shut down")
)
