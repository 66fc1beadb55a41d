package knn

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTemperature is returned for a temperature that is not a positive number.
	ErrInvalidTemperature = errors.New("temperature must be positive")

	// ErrLengthMismatch is returned when buffers do not describe the same number of rows.
	ErrLengthMismatch = errors.New("length mismatch")
)

// ErrInvalidMixingWeight indicates a λ outside the open interval (0, 1).
type ErrInvalidMixingWeight struct {
	Lambda float64
}

func (e *ErrInvalidMixingWeight) Error() string {
	return fmt.Sprintf("invalid mixing weight %v: must be in (0, 1)", e.Lambda)
}
