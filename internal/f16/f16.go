// Package f16 implements IEEE-754 binary16 (float16) encoding/decoding.
//
// Datastore keys and query dumps are stored as float16 on disk; all arithmetic
// happens in float32 after decoding.
package f16

import (
	"encoding/binary"
	"math"
)

// Size is the encoded size of one value in bytes.
const Size = 2

// Bits is the raw IEEE-754 binary16 bit-pattern.
//
// Layout:
//
//	sign: 1 bit
//	exp:  5 bits (bias 15)
//	frac: 10 bits
type Bits uint16

const (
	signMask Bits = 0x8000
	expMask  Bits = 0x7C00
	fracMask Bits = 0x03FF
)

// ToFloat32 converts a binary16 bit-pattern to float32.
func ToFloat32(h Bits) float32 {
	neg := h&signMask != 0
	exp := int((h & expMask) >> 10)
	frac := uint32(h & fracMask)

	var v float32
	switch exp {
	case 0:
		// Zero or subnormal: frac * 2^-24.
		v = float32(math.Ldexp(float64(frac), -24))
	case 0x1F:
		if frac != 0 {
			// Keep the payload so NaNs survive a round trip.
			bits := uint32(0x7F800000) | frac<<13
			if neg {
				bits |= 0x80000000
			}
			return math.Float32frombits(bits)
		}
		v = float32(math.Inf(1))
	default:
		bits := uint32(exp-15+127)<<23 | frac<<13
		v = math.Float32frombits(bits)
	}
	if neg {
		return -v
	}
	return v
}

// FromFloat32 converts a float32 value into a binary16 bit-pattern.
//
// Rounding mode: round-to-nearest, ties-to-even.
func FromFloat32(f float32) Bits {
	bits := math.Float32bits(f)
	sign := Bits(bits>>16) & signMask
	exp := int32(bits>>23) & 0xFF
	frac := bits & 0x007FFFFF

	switch {
	case exp == 0xFF && frac != 0:
		payload := Bits(frac>>13) | 0x0200
		return sign | expMask | payload&fracMask
	case exp == 0xFF:
		return sign | expMask
	case exp == 0:
		return sign
	}

	e := exp - 127 + 15
	if e >= 0x1F {
		return sign | expMask
	}

	if e <= 0 {
		if e < -10 {
			return sign
		}
		mant := frac | 0x00800000
		shift := uint32(14 - e)
		return sign | Bits(roundShift(mant, shift))
	}

	m := roundShift(frac, 13)
	if m == 0x0400 {
		m = 0
		e++
		if e >= 0x1F {
			return sign | expMask
		}
	}
	return sign | Bits(uint32(e)<<10) | Bits(m)
}

// roundShift shifts v right by n bits rounding to nearest even.
func roundShift(v, n uint32) uint32 {
	out := v >> n
	rem := v & (1<<n - 1)
	half := uint32(1) << (n - 1)
	if rem > half || (rem == half && out&1 == 1) {
		out++
	}
	return out
}

// Decode converts a slice of binary16 bit-patterns to float32.
// dst must have length >= len(src).
func Decode(dst []float32, src []Bits) {
	for i, h := range src {
		dst[i] = ToFloat32(h)
	}
}

// Encode converts a slice of float32 to binary16.
// dst must have length >= len(src).
func Encode(dst []Bits, src []float32) {
	for i, f := range src {
		dst[i] = FromFloat32(f)
	}
}

// DecodeBytes decodes little-endian binary16 values from src into dst.
// It decodes min(len(dst), len(src)/2) values and returns that count.
func DecodeBytes(dst []float32, src []byte) int {
	n := min(len(dst), len(src)/Size)
	for i := range n {
		dst[i] = ToFloat32(Bits(binary.LittleEndian.Uint16(src[i*Size:])))
	}
	return n
}

// EncodeBytes writes src as little-endian binary16 into dst.
// dst must have length >= 2*len(src).
func EncodeBytes(dst []byte, src []float32) {
	for i, f := range src {
		binary.LittleEndian.PutUint16(dst[i*Size:], uint16(FromFloat32(f)))
	}
}
