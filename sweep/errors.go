package sweep

import "errors"

var (
	// ErrLengthMismatch is returned when queries and tokens differ in length.
	ErrLengthMismatch = errors.New("queries and tokens differ in length")

	// ErrInvalidRange is returned for a temperature range that produces no values.
	ErrInvalidRange = errors.New("invalid temperature range")

	// ErrUnknownCompression is returned for an unsupported compression name.
	ErrUnknownCompression = errors.New("unknown compression")
)
