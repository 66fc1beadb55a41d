package knnlm

import (
	"errors"
	"fmt"

	"github.com/hupe1980/knnlm/datastore"
	"github.com/hupe1980/knnlm/knn"
	"github.com/hupe1980/knnlm/resource"
	"github.com/hupe1980/knnlm/scorer"
	"github.com/hupe1980/knnlm/sweep"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrInvalidTemperature is returned for a temperature that is not a positive number.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrEnsembleConfiguration is returned for an invalid model ensemble.
	ErrEnsembleConfiguration = errors.New("ensemble configuration error")

	// ErrLengthMismatch is returned when paired inputs differ in length.
	ErrLengthMismatch = errors.New("length mismatch")

	// ErrCorruptDatastore is returned when datastore files do not match the configured shape.
	ErrCorruptDatastore = errors.New("corrupt datastore")

	// ErrMemoryBudgetExceeded is returned when a load does not fit the memory budget.
	ErrMemoryBudgetExceeded = errors.New("memory budget exceeded")

	// ErrClosed is returned when using a closed LM.
	ErrClosed = errors.New("knnlm is closed")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrCapacityExceeded indicates a request for more neighbors than the datastore holds.
type ErrCapacityExceeded struct {
	K     int
	Size  int
	cause error
}

func (e *ErrCapacityExceeded) Error() string {
	return fmt.Sprintf("capacity exceeded: k=%d, datastore size %d", e.K, e.Size)
}

func (e *ErrCapacityExceeded) Unwrap() error { return e.cause }

// ErrInvalidMixingWeight indicates an interpolation weight outside (0, 1).
type ErrInvalidMixingWeight struct {
	Lambda float64
	cause  error
}

func (e *ErrInvalidMixingWeight) Error() string {
	return fmt.Sprintf("invalid mixing weight: %v", e.Lambda)
}

func (e *ErrInvalidMixingWeight) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var dm *datastore.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}
	var ce *datastore.ErrCapacityExceeded
	if errors.As(err, &ce) {
		return &ErrCapacityExceeded{K: ce.K, Size: ce.Size, cause: err}
	}
	var mw *knn.ErrInvalidMixingWeight
	if errors.As(err, &mw) {
		return &ErrInvalidMixingWeight{Lambda: mw.Lambda, cause: err}
	}

	switch {
	case errors.Is(err, datastore.ErrInvalidK):
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	case errors.Is(err, knn.ErrInvalidTemperature):
		return fmt.Errorf("%w: %w", ErrInvalidTemperature, err)
	case errors.Is(err, scorer.ErrEnsembleConfiguration):
		return fmt.Errorf("%w: %w", ErrEnsembleConfiguration, err)
	case errors.Is(err, sweep.ErrLengthMismatch), errors.Is(err, knn.ErrLengthMismatch):
		return fmt.Errorf("%w: %w", ErrLengthMismatch, err)
	case errors.Is(err, datastore.ErrCorruptDatastore):
		return fmt.Errorf("%w: %w", ErrCorruptDatastore, err)
	case errors.Is(err, resource.ErrMemoryBudgetExceeded):
		return fmt.Errorf("%w: %w", ErrMemoryBudgetExceeded, err)
	case errors.Is(err, datastore.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return err
}
