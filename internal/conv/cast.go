package conv

import (
	"fmt"
	"math"
	"math/bits"
)

// IntToUint32 converts int to uint32 safely.
func IntToUint32(v int) (uint32, error) {
	if v < 0 {
		return 0, fmt.Errorf("integer overflow: %d cannot be converted to uint32 (negative)", v)
	}
	if uint64(v) > math.MaxUint32 {
		return 0, fmt.Errorf("integer overflow: %d cannot be converted to uint32 (too large)", v)
	}
	return uint32(v), nil
}

// Uint64ToInt converts uint64 to int safely.
func Uint64ToInt(v uint64) (int, error) {
	if v > uint64(math.MaxInt) {
		return 0, fmt.Errorf("integer overflow: %d cannot be converted to int (too large)", v)
	}
	return int(v), nil
}

// Int64ToInt converts int64 to int safely (relevant on 32-bit platforms).
func Int64ToInt(v int64) (int, error) {
	if v > int64(math.MaxInt) || v < int64(math.MinInt) {
		return 0, fmt.Errorf("integer overflow: %d cannot be converted to int", v)
	}
	return int(v), nil
}

// MulInt multiplies non-negative factors and reports overflow.
func MulInt(factors ...int) (int, error) {
	out := uint64(1)
	for _, f := range factors {
		if f < 0 {
			return 0, fmt.Errorf("integer overflow: negative factor %d", f)
		}
		hi, lo := bits.Mul64(out, uint64(f))
		if hi != 0 || lo > uint64(math.MaxInt) {
			return 0, fmt.Errorf("integer overflow: product of %v exceeds int", factors)
		}
		out = lo
	}
	return int(out), nil
}
