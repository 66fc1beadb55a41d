package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/knnlm/internal/conv"
	"github.com/hupe1980/knnlm/internal/mmap"
	"github.com/hupe1980/knnlm/internal/npy"
	"github.com/hupe1980/knnlm/tensor"
)

// loadChunkElems is the number of elements decoded per throttled read.
const loadChunkElems = 1 << 20

// LoadQueries reads a 2-D float16 or float32 .npy file into memory.
// The decoded size is reserved against the resource controller and stays
// reserved for the lifetime of the returned matrix.
func LoadQueries(ctx context.Context, path string, optFns ...Option) (*tensor.Matrix, error) {
	o := applyOptions(optFns)

	m, h, payload, err := openArray(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = m.Close() }()

	if len(h.Shape) != 2 {
		return nil, fmt.Errorf("sweep: %s: queries must be 2-D, got shape %v", path, h.Shape)
	}
	rows, cols := h.Shape[0], h.Shape[1]
	n, err := conv.MulInt(rows, cols)
	if err != nil {
		return nil, err
	}
	if err := o.resource.ReserveMemory(int64(n) * 4); err != nil {
		return nil, fmt.Errorf("sweep: load %s: %w", path, err)
	}

	begin := time.Now()
	o.logger.Info("loading queries", "path", path, "rows", rows, "dimension", cols, "dtype", string(h.DType), "bytes", int64(n)*4)

	out := tensor.New(rows, cols)
	elem := h.DType.Size()
	for lo := 0; lo < n; lo += loadChunkElems {
		if err := ctx.Err(); err != nil {
			o.resource.ReleaseMemory(int64(n) * 4)
			return nil, err
		}
		hi := min(lo+loadChunkElems, n)
		if err := o.resource.AcquireIO(ctx, (hi-lo)*elem); err != nil {
			o.resource.ReleaseMemory(int64(n) * 4)
			return nil, err
		}
		if err := npy.DecodeFloat32(out.Data[lo:hi], h.DType, payload[lo*elem:hi*elem]); err != nil {
			o.resource.ReleaseMemory(int64(n) * 4)
			return nil, fmt.Errorf("sweep: %s: %w", path, err)
		}
	}

	o.logger.Info("queries loaded", "path", path, "elapsed", time.Since(begin))
	return out, nil
}

// LoadTokens reads an int64 or int32 .npy file of target ids. Shapes [N] and
// [N, 1] are accepted.
func LoadTokens(ctx context.Context, path string, optFns ...Option) ([]int64, error) {
	o := applyOptions(optFns)

	m, h, payload, err := openArray(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = m.Close() }()

	if len(h.Shape) == 0 || len(h.Shape) > 2 || (len(h.Shape) == 2 && h.Shape[1] != 1) {
		return nil, fmt.Errorf("sweep: %s: tokens must have shape [N] or [N, 1], got %v", path, h.Shape)
	}
	n := h.Shape[0]
	if err := o.resource.ReserveMemory(int64(n) * 8); err != nil {
		return nil, fmt.Errorf("sweep: load %s: %w", path, err)
	}
	if err := o.resource.AcquireIO(ctx, n*h.DType.Size()); err != nil {
		o.resource.ReleaseMemory(int64(n) * 8)
		return nil, err
	}

	out := make([]int64, n)
	if err := npy.DecodeInt64(out, h.DType, payload); err != nil {
		o.resource.ReleaseMemory(int64(n) * 8)
		return nil, fmt.Errorf("sweep: %s: %w", path, err)
	}
	o.logger.Info("tokens loaded", "path", path, "count", n, "dtype", string(h.DType))
	return out, nil
}

func openArray(path string) (*mmap.Mapping, npy.Header, []byte, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, npy.Header{}, nil, fmt.Errorf("sweep: open %s: %w", path, err)
	}
	h, off, err := npy.ParseHeader(m.Bytes())
	if err != nil {
		_ = m.Close()
		return nil, npy.Header{}, nil, fmt.Errorf("sweep: %s: %w", path, err)
	}
	size, err := h.DataSize()
	if err != nil {
		_ = m.Close()
		return nil, npy.Header{}, nil, err
	}
	payload, err := m.Slice(off, size)
	if err != nil {
		_ = m.Close()
		return nil, npy.Header{}, nil, fmt.Errorf("sweep: %s: truncated payload: %w", path, err)
	}
	_ = m.Advise(mmap.AccessSequential)
	return m, h, payload, nil
}
