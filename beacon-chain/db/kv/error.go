package kv

import "errors"

// ErrNotFound is the root of this package's not-found error tree:
// every more specific not-found sentinel below wraps it, so callers
// that only care "was it found" can match on this single value.
var ErrNotFound = errors.New("kv: not found")

// ErrNotFoundState is returned when a state root has no state saved
// against it.
var ErrNotFoundState = wrap(ErrNotFound, "kv: state not found")

// ErrNotFoundBlock is returned when a block root has no block saved
// against it.
var ErrNotFoundBlock = wrap(ErrNotFound, "kv: block not found")

// ErrNotFoundOriginBlockRoot is returned when the store has no
// genesis/origin block root recorded yet, the state a freshly opened
// store is in before genesis is saved.
var ErrNotFoundOriginBlockRoot = wrap(ErrNotFound, "kv: origin block root not found")

func wrap(inner error, msg string) error {
	return &DBError{Wraps: inner, Outer: errors.New(msg)}
}

// DBError pairs a package-specific sentinel (Outer, what gets
// logged/matched by message) with the broader sentinel it Is-a
// (Wraps), so errors.Is(err, ErrNotFound) succeeds for any of this
// package's more specific not-found errors without every call site
// needing to know the full tree.
type DBError struct {
	Wraps error
	Outer error
}

func (e *DBError) Error() string {
	return e.Outer.Error()
}

func (e *DBError) Unwrap() error {
	return e.Wraps
}
