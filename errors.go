package rowstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a label has no live row.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned by operations on a closed Store.
	ErrClosed = errors.New("store closed")
)

// ErrSparseLengthMismatch indicates a candidate whose sparse terms and
// sparse values differ in length.
type ErrSparseLengthMismatch struct {
	Label  uint64
	Terms  int
	Values int
}

func (e *ErrSparseLengthMismatch) Error() string {
	return fmt.Sprintf("label %d: %d sparse terms but %d sparse values", e.Label, e.Terms, e.Values)
}

// ErrRecovery indicates that Open could not rebuild the table from the
// snapshot and the delta log.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrRecovery struct {
	Stage string // "snapshot" or "wal"
	cause error
}

func (e *ErrRecovery) Error() string {
	return fmt.Sprintf("recovery failed at %s: %v", e.Stage, e.cause)
}

func (e *ErrRecovery) Unwrap() error { return e.cause }
