package store

import "errors"

var (
	// ErrInvalidSavepoint is returned by RollbackToSavepoint for an
	// unknown or already-released save-point handle.
	ErrInvalidSavepoint = errors.New("store: invalid savepoint")
	// ErrBlockNotFound names a missed block lookup. The block lookups
	// in this package do not return it; they report a miss through
	// their ok result.
	ErrBlockNotFound = errors.New("store: block not found")
	// ErrNotContiguous names a block that does not extend the current
	// tip by exactly one. InsertBlock does not check continuity and
	// does not return it.
	ErrNotContiguous = errors.New("store: block does not extend current tip")
	// ErrStateRecordExpired is returned when DetachBlock is asked to
	// detach a block whose state record has already been pruned past
	// the retention window.
	ErrStateRecordExpired = errors.New("store: state record for block has expired")
)
