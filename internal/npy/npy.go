// Package npy reads and writes the NumPy .npy array format (versions 1.0 and 2.0).
//
// Only little-endian, C-ordered arrays of the element types the pipeline
// exchanges are supported: float16/float32/float64 vectors, int32/int64 token
// ids and fixed-width byte or unicode strings.
package npy

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hupe1980/knnlm/internal/conv"
)

// DType is a NumPy dtype descriptor.
type DType string

const (
	Float16 DType = "<f2"
	Float32 DType = "<f4"
	Float64 DType = "<f8"
	Int32   DType = "<i4"
	Int64   DType = "<i8"
)

// Size returns the element size in bytes, or 0 for an unknown dtype.
func (d DType) Size() int {
	switch d {
	case Float16:
		return 2
	case Float32, Int32:
		return 4
	case Int64, Float64:
		return 8
	}
	if n, ok := d.strLen(); ok {
		if d[0] == '<' {
			return 4 * n
		}
		return n
	}
	return 0
}

// strLen returns the character count of a |S<n> or <U<n> dtype.
func (d DType) strLen() (int, bool) {
	if len(d) < 3 || (d[:2] != "|S" && d[:2] != "<U") {
		return 0, false
	}
	n, err := strconv.Atoi(string(d[2:]))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

var (
	// ErrBadMagic is returned when the input does not start with the npy magic string.
	ErrBadMagic = errors.New("npy: bad magic")
	// ErrUnsupportedDType is returned for dtypes outside the supported set.
	ErrUnsupportedDType = errors.New("npy: unsupported dtype")
	// ErrFortranOrder is returned for column-major arrays.
	ErrFortranOrder = errors.New("npy: fortran order is not supported")
	// ErrMalformedHeader is returned when the header dictionary cannot be parsed.
	ErrMalformedHeader = errors.New("npy: malformed header")
)

var magic = []byte("\x93NUMPY")

// Header describes an array.
type Header struct {
	DType DType
	Shape []int
}

// Count returns the number of elements.
func (h Header) Count() (int, error) {
	return conv.MulInt(h.Shape...)
}

// DataSize returns the payload size in bytes.
func (h Header) DataSize() (int, error) {
	n, err := h.Count()
	if err != nil {
		return 0, err
	}
	return conv.MulInt(n, h.DType.Size())
}

// ParseHeader parses the header at the start of b and returns it together with
// the offset of the array payload.
func ParseHeader(b []byte) (Header, int, error) {
	if len(b) < 10 || !bytes.Equal(b[:6], magic) {
		return Header{}, 0, ErrBadMagic
	}

	var hlen, start int
	switch b[6] {
	case 1:
		hlen, start = int(binary.LittleEndian.Uint16(b[8:10])), 10
	case 2, 3:
		if len(b) < 12 {
			return Header{}, 0, ErrMalformedHeader
		}
		n, err := conv.Uint64ToInt(uint64(binary.LittleEndian.Uint32(b[8:12])))
		if err != nil {
			return Header{}, 0, err
		}
		hlen, start = n, 12
	default:
		return Header{}, 0, fmt.Errorf("npy: unsupported version %d.%d", b[6], b[7])
	}
	if len(b) < start+hlen {
		return Header{}, 0, ErrMalformedHeader
	}

	h, err := parseDict(string(b[start : start+hlen]))
	if err != nil {
		return Header{}, 0, err
	}
	return h, start + hlen, nil
}

// ReadHeader reads and parses a header from r, leaving r at the payload.
func ReadHeader(r io.Reader) (Header, error) {
	pre := make([]byte, 12)
	if _, err := io.ReadFull(r, pre[:10]); err != nil {
		return Header{}, err
	}
	if !bytes.Equal(pre[:6], magic) {
		return Header{}, ErrBadMagic
	}

	var hlen int
	prefix := pre[:10]
	switch pre[6] {
	case 1:
		hlen = int(binary.LittleEndian.Uint16(pre[8:10]))
	case 2, 3:
		if _, err := io.ReadFull(r, pre[10:12]); err != nil {
			return Header{}, err
		}
		n, err := conv.Uint64ToInt(uint64(binary.LittleEndian.Uint32(pre[8:12])))
		if err != nil {
			return Header{}, err
		}
		hlen, prefix = n, pre[:12]
	default:
		return Header{}, fmt.Errorf("npy: unsupported version %d.%d", pre[6], pre[7])
	}

	buf := make([]byte, len(prefix)+hlen)
	copy(buf, prefix)
	if _, err := io.ReadFull(r, buf[len(prefix):]); err != nil {
		return Header{}, err
	}
	h, _, err := ParseHeader(buf)
	return h, err
}

func parseDict(s string) (Header, error) {
	var h Header

	descr, ok := dictValue(s, "descr")
	if !ok {
		return h, ErrMalformedHeader
	}
	h.DType = DType(strings.Trim(descr, `'"`))
	if h.DType.Size() == 0 {
		return h, fmt.Errorf("%w: %s", ErrUnsupportedDType, h.DType)
	}

	order, ok := dictValue(s, "fortran_order")
	if !ok {
		return h, ErrMalformedHeader
	}
	if order == "True" {
		return h, ErrFortranOrder
	}

	shape, ok := dictValue(s, "shape")
	if !ok || !strings.HasPrefix(shape, "(") {
		return h, ErrMalformedHeader
	}
	for _, part := range strings.Split(strings.Trim(shape, "()"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		dim, err := strconv.Atoi(strings.TrimSuffix(part, "L"))
		if err != nil || dim < 0 {
			return h, fmt.Errorf("%w: shape %s", ErrMalformedHeader, shape)
		}
		h.Shape = append(h.Shape, dim)
	}
	return h, nil
}

// dictValue extracts the raw value of key from a Python dict literal.
func dictValue(s, key string) (string, bool) {
	i := strings.Index(s, "'"+key+"'")
	if i < 0 {
		return "", false
	}
	rest := s[i+len(key)+2:]
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return "", false
	}
	rest = strings.TrimSpace(rest[colon+1:])
	if strings.HasPrefix(rest, "(") {
		end := strings.IndexByte(rest, ')')
		if end < 0 {
			return "", false
		}
		return rest[:end+1], true
	}
	end := strings.IndexAny(rest, ",}")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// WriteHeader writes a version 1.0 header (64-byte aligned).
func WriteHeader(w io.Writer, h Header) error {
	if h.DType.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedDType, h.DType)
	}
	dims := make([]string, len(h.Shape))
	for i, d := range h.Shape {
		dims[i] = strconv.Itoa(d)
	}
	shape := "(" + strings.Join(dims, ", ")
	if len(dims) == 1 {
		shape += ","
	}
	shape += ")"

	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", h.DType, shape)
	total := 10 + len(dict) + 1
	pad := (64 - total%64) % 64
	dict += strings.Repeat(" ", pad) + "\n"
	if len(dict) > 0xFFFF {
		return ErrMalformedHeader
	}

	buf := make([]byte, 10, 10+len(dict))
	copy(buf, magic)
	buf[6], buf[7] = 1, 0
	binary.LittleEndian.PutUint16(buf[8:], uint16(len(dict)))
	buf = append(buf, dict...)
	_, err := w.Write(buf)
	return err
}
