package datastore

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrCorruptDatastore is returned when the files are smaller than the configured shape.
	ErrCorruptDatastore = errors.New("corrupt datastore")

	// ErrClosed is returned when searching a closed datastore.
	ErrClosed = errors.New("datastore is closed")
)

// ErrDimensionMismatch indicates a query dimensionality that differs from the keys.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrCapacityExceeded indicates a request for more neighbors than entries.
type ErrCapacityExceeded struct {
	K    int
	Size int
}

func (e *ErrCapacityExceeded) Error() string {
	return fmt.Sprintf("k=%d exceeds datastore size %d", e.K, e.Size)
}
