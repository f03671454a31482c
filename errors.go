package lockcache

import (
	"errors"
	"fmt"
)

var (
	// ErrTypeMismatch matches every *TypeMismatchError.
	ErrTypeMismatch = errors.New("lockcache: type mismatch")

	ErrNoStore  = errors.New("lockcache: store is required")
	ErrNoCodec  = errors.New("lockcache: codec is required")
	ErrNoLoader = errors.New("lockcache: loader is required")
)

// TypeMismatchError is returned when a present, non-null entry cannot be
// decoded as the cache's value type.
type TypeMismatchError struct {
	Key string
	Err error
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("lockcache: entry %q is not of the cache value type: %v", e.Key, e.Err)
}

func (e *TypeMismatchError) Is(target error) bool { return target == ErrTypeMismatch }
func (e *TypeMismatchError) Unwrap() error        { return e.Err }

// ComputeError wraps a loader failure. Nothing is written for the key when it
// is returned. Loader is the Loader[V] that failed.
type ComputeError struct {
	Key    string
	Loader any
	Err    error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("lockcache: load %q: %v", e.Key, e.Err)
}

func (e *ComputeError) Unwrap() error { return e.Err }

// PanicError is the cause of a ComputeError when the loader panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("loader panic: %v", e.Value) }
