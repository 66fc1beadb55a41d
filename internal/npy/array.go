package npy

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/hupe1980/knnlm/internal/f16"
)

const chunkElems = 1 << 14

// Writer streams the payload of an array whose shape is known up front.
type Writer struct {
	bw      *bufio.Writer
	dtype   DType
	pending int
	buf     []byte
}

// NewWriter writes the header of h to w and returns a Writer for its payload.
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	n, err := h.Count()
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriter(w)
	if err := WriteHeader(bw, h); err != nil {
		return nil, err
	}
	return &Writer{bw: bw, dtype: h.DType, pending: n}, nil
}

// Remaining returns the number of elements still expected.
func (w *Writer) Remaining() int { return w.pending }

func (w *Writer) reserve(n int, dtypes ...DType) ([]byte, error) {
	ok := false
	for _, d := range dtypes {
		ok = ok || d == w.dtype
	}
	if !ok {
		return nil, fmt.Errorf("%w: cannot write to %s", ErrUnsupportedDType, w.dtype)
	}
	if n > w.pending {
		return nil, fmt.Errorf("npy: %d values exceed the %d remaining", n, w.pending)
	}
	w.pending -= n
	size := n * w.dtype.Size()
	if cap(w.buf) < size {
		w.buf = make([]byte, size)
	}
	return w.buf[:size], nil
}

// WriteFloat32 appends float values, encoding them as the header's dtype.
func (w *Writer) WriteFloat32(data []float32) error {
	for start := 0; start < len(data); start += chunkElems {
		part := data[start:min(start+chunkElems, len(data))]
		b, err := w.reserve(len(part), Float32, Float16)
		if err != nil {
			return err
		}
		if w.dtype == Float16 {
			f16.EncodeBytes(b, part)
		} else {
			for i, v := range part {
				binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
			}
		}
		if _, err := w.bw.Write(b); err != nil {
			return err
		}
	}
	return nil
}

// WriteInt64 appends integer values, encoding them as the header's dtype.
func (w *Writer) WriteInt64(data []int64) error {
	for start := 0; start < len(data); start += chunkElems {
		part := data[start:min(start+chunkElems, len(data))]
		b, err := w.reserve(len(part), Int64, Int32)
		if err != nil {
			return err
		}
		if w.dtype == Int32 {
			for i, v := range part {
				binary.LittleEndian.PutUint32(b[4*i:], uint32(int32(v)))
			}
		} else {
			for i, v := range part {
				binary.LittleEndian.PutUint64(b[8*i:], uint64(v))
			}
		}
		if _, err := w.bw.Write(b); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes buffered data. It fails if the payload is incomplete.
func (w *Writer) Flush() error {
	if w.pending != 0 {
		return fmt.Errorf("npy: payload short by %d values", w.pending)
	}
	return w.bw.Flush()
}

// WriteFloat32 writes data as a float32 array of the given shape.
func WriteFloat32(w io.Writer, shape []int, data []float32) error {
	return writeFloats(w, Float32, shape, data)
}

// WriteFloat16 writes data as a float16 array of the given shape.
func WriteFloat16(w io.Writer, shape []int, data []float32) error {
	return writeFloats(w, Float16, shape, data)
}

func writeFloats(w io.Writer, dtype DType, shape []int, data []float32) error {
	if err := checkShape(shape, len(data)); err != nil {
		return err
	}
	nw, err := NewWriter(w, Header{DType: dtype, Shape: shape})
	if err != nil {
		return err
	}
	if err := nw.WriteFloat32(data); err != nil {
		return err
	}
	return nw.Flush()
}

// WriteInt64 writes data as an int64 array of the given shape.
func WriteInt64(w io.Writer, shape []int, data []int64) error {
	if err := checkShape(shape, len(data)); err != nil {
		return err
	}
	nw, err := NewWriter(w, Header{DType: Int64, Shape: shape})
	if err != nil {
		return err
	}
	if err := nw.WriteInt64(data); err != nil {
		return err
	}
	return nw.Flush()
}

// DecodeFloat32 decodes a float16, float32 or float64 payload into dst.
func DecodeFloat32(dst []float32, dtype DType, src []byte) error {
	switch dtype {
	case Float16:
		if f16.DecodeBytes(dst, src) != len(dst) {
			return io.ErrUnexpectedEOF
		}
	case Float32:
		if len(src) < 4*len(dst) {
			return io.ErrUnexpectedEOF
		}
		for i := range dst {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[4*i:]))
		}
	case Float64:
		if len(src) < 8*len(dst) {
			return io.ErrUnexpectedEOF
		}
		for i := range dst {
			dst[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(src[8*i:])))
		}
	default:
		return fmt.Errorf("%w: %s is not a float type", ErrUnsupportedDType, dtype)
	}
	return nil
}

// DecodeInt64 decodes an int32 or int64 payload into dst.
func DecodeInt64(dst []int64, dtype DType, src []byte) error {
	switch dtype {
	case Int64:
		if len(src) < 8*len(dst) {
			return io.ErrUnexpectedEOF
		}
		for i := range dst {
			dst[i] = int64(binary.LittleEndian.Uint64(src[8*i:]))
		}
	case Int32:
		if len(src) < 4*len(dst) {
			return io.ErrUnexpectedEOF
		}
		for i := range dst {
			dst[i] = int64(int32(binary.LittleEndian.Uint32(src[4*i:])))
		}
	default:
		return fmt.Errorf("%w: %s is not an integer type", ErrUnsupportedDType, dtype)
	}
	return nil
}

// ReadFloat32 reads a whole float16/float32 array from r.
func ReadFloat32(r io.Reader) (Header, []float32, error) {
	h, payload, err := readPayload(r)
	if err != nil {
		return h, nil, err
	}
	n, _ := h.Count()
	out := make([]float32, n)
	return h, out, DecodeFloat32(out, h.DType, payload)
}

// ReadInt64 reads a whole int32/int64 array from r.
func ReadInt64(r io.Reader) (Header, []int64, error) {
	h, payload, err := readPayload(r)
	if err != nil {
		return h, nil, err
	}
	n, _ := h.Count()
	out := make([]int64, n)
	return h, out, DecodeInt64(out, h.DType, payload)
}

// ReadString reads a single-element byte string or unicode array, the way
// numpy stores a Python str or bytes scalar. Trailing NULs are dropped.
func ReadString(r io.Reader) (string, error) {
	h, payload, err := readPayload(r)
	if err != nil {
		return "", err
	}
	n, ok := h.DType.strLen()
	if !ok {
		return "", fmt.Errorf("%w: %s is not a string type", ErrUnsupportedDType, h.DType)
	}
	if c, _ := h.Count(); c != 1 {
		return "", fmt.Errorf("npy: expected one string, shape is %v", h.Shape)
	}
	if h.DType[0] == '|' {
		return strings.TrimRight(string(payload), "\x00"), nil
	}
	var sb strings.Builder
	for i := 0; i < n; i++ {
		c := binary.LittleEndian.Uint32(payload[4*i:])
		if c == 0 {
			break
		}
		sb.WriteRune(rune(c))
	}
	return sb.String(), nil
}

func readPayload(r io.Reader) (Header, []byte, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return h, nil, err
	}
	size, err := h.DataSize()
	if err != nil {
		return h, nil, err
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return h, nil, err
	}
	return h, payload, nil
}

func checkShape(shape []int, n int) error {
	want := 1
	for _, d := range shape {
		want *= d
	}
	if want != n {
		return fmt.Errorf("npy: shape %v does not hold %d values", shape, n)
	}
	return nil
}
