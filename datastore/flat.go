package datastore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/knnlm/distance"
	"github.com/hupe1980/knnlm/internal/mmap"
	"github.com/hupe1980/knnlm/internal/npy"
	"github.com/hupe1980/knnlm/internal/pool"
	"github.com/hupe1980/knnlm/resource"
	"github.com/hupe1980/knnlm/tensor"
)

// Compile-time check to ensure Flat satisfies Searcher.
var _ Searcher = (*Flat)(nil)

// ctxCheckInterval is the number of scanned entries between cancellation checks.
const ctxCheckInterval = 1 << 14

// keySource yields key rows. Implementations may decode into buf.
type keySource interface {
	row(i int, buf []float32) []float32
}

type denseKeys struct{ m *tensor.Matrix }

func (d denseKeys) row(i int, _ []float32) []float32 { return d.m.Row(i) }

type mappedKeys struct {
	data  []byte
	dim   int
	dtype npy.DType
}

func (m mappedKeys) row(i int, buf []float32) []float32 {
	size := m.dtype.Size() * m.dim
	// The file length was validated on open.
	_ = npy.DecodeFloat32(buf[:m.dim], m.dtype, m.data[i*size:(i+1)*size])
	return buf[:m.dim]
}

// Flat is an exact brute-force datastore.
type Flat struct {
	dim    int
	size   int
	metric distance.Metric
	distFn distance.Func

	keys      keySource
	values    []int64 // materialized values, nil when mapped
	rawValues []byte

	logger   *slog.Logger
	rc       *resource.Controller
	reserved int64
	mappings []*mmap.Mapping
	closed   atomic.Bool
}

// NewFlat builds an in-memory datastore. keys has one row per entry and
// values holds the matching value ids. The slices are not copied.
func NewFlat(keys *tensor.Matrix, values []int64, optFns ...Option) (*Flat, error) {
	return NewFlatWithMetric(keys, values, distance.MetricL2, optFns...)
}

// NewFlatWithMetric is NewFlat with an explicit metric.
func NewFlatWithMetric(keys *tensor.Matrix, values []int64, metric distance.Metric, optFns ...Option) (*Flat, error) {
	if keys == nil || keys.Rows == 0 || keys.Cols == 0 {
		return nil, errors.New("datastore: empty keys")
	}
	if keys.Rows != len(values) {
		return nil, fmt.Errorf("datastore: %d keys but %d values", keys.Rows, len(values))
	}
	fn, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}
	o := applyOptions(optFns)
	return &Flat{
		dim:    keys.Cols,
		size:   keys.Rows,
		metric: metric,
		distFn: fn,
		keys:   denseKeys{m: keys},
		values: values,
		logger: o.logger,
		rc:     o.resource,
	}, nil
}

// Dimension returns the key dimensionality.
func (f *Flat) Dimension() int { return f.dim }

// Size returns the number of entries.
func (f *Flat) Size() int { return f.size }

// Metric returns the distance metric.
func (f *Flat) Metric() distance.Metric { return f.metric }

// Value returns the value id of entry i.
func (f *Flat) Value(i int64) int64 {
	if f.values != nil {
		return f.values[i]
	}
	return int64(binary.LittleEndian.Uint64(f.rawValues[i*8:]))
}

// Search returns the k nearest entries of every query row, ascending by
// distance with ties broken by lower entry index.
func (f *Flat) Search(ctx context.Context, queries *tensor.Matrix, k int) (*Neighbors, error) {
	if f.closed.Load() {
		return nil, ErrClosed
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if queries.Cols != f.dim {
		return nil, &ErrDimensionMismatch{Expected: f.dim, Actual: queries.Cols}
	}
	if k > f.size {
		return nil, &ErrCapacityExceeded{K: k, Size: f.size}
	}

	res := NewNeighbors(queries.Rows, k)
	if queries.Rows == 0 {
		return res, nil
	}

	workers := f.rc.Workers()
	block := (queries.Rows + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < queries.Rows; start += block {
		end := min(start+block, queries.Rows)
		g.Go(func() error {
			return f.scan(ctx, queries, start, end, res)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// scan answers queries [start, end) with one pass over the keys, so every
// key row is decoded once per block.
func (f *Flat) scan(ctx context.Context, queries *tensor.Matrix, start, end int, res *Neighbors) error {
	sc := pool.Get(end-start, res.K, f.dim)
	defer pool.Put(sc)
	heaps, buf := sc.Heaps, sc.Buf

	for id := 0; id < f.size; id++ {
		if id%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		key := f.keys.row(id, buf)
		for qi, h := range heaps {
			h.Push(int64(id), f.distFn(queries.Row(start+qi), key))
		}
	}

	for qi, h := range heaps {
		dists, ids, values := res.Row(start + qi)
		h.Drain(dists, ids)
		for j, id := range ids {
			values[j] = f.Value(id)
		}
	}
	return nil
}

// Close releases the mappings and the memory reservation. It is idempotent.
func (f *Flat) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	var errs []error
	for _, m := range f.mappings {
		errs = append(errs, m.Close())
	}
	f.rc.ReleaseMemory(f.reserved)
	return errors.Join(errs...)
}
