package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/knnlm/distance"
	"github.com/hupe1980/knnlm/internal/conv"
	"github.com/hupe1980/knnlm/internal/mmap"
	"github.com/hupe1980/knnlm/internal/npy"
	"github.com/hupe1980/knnlm/tensor"
)

// loadChunkRows is the number of key rows decoded per throttled read.
const loadChunkRows = 4096

// Open maps the datastore described by cfg. It returns once the store is
// fully loaded and searchable.
func Open(ctx context.Context, cfg Config, optFns ...Option) (*Flat, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := applyOptions(optFns)
	metric, _ := distance.ParseMetric(cfg.Metric)
	fn, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}

	keyBytes, err := conv.MulInt(cfg.Size, cfg.Dimension, cfg.keyElemSize())
	if err != nil {
		return nil, err
	}
	valBytes, err := conv.MulInt(cfg.Size, 8)
	if err != nil {
		return nil, err
	}

	keysMap, err := openMapping(cfg.KeysPath(), keyBytes)
	if err != nil {
		return nil, err
	}
	valsMap, err := openMapping(cfg.ValuesPath(), valBytes)
	if err != nil {
		_ = keysMap.Close()
		return nil, err
	}

	dtype := npy.Float32
	if cfg.FP16 {
		dtype = npy.Float16
	}

	f := &Flat{
		dim:       cfg.Dimension,
		size:      cfg.Size,
		metric:    metric,
		distFn:    fn,
		keys:      mappedKeys{data: keysMap.Bytes()[:keyBytes], dim: cfg.Dimension, dtype: dtype},
		rawValues: valsMap.Bytes()[:valBytes],
		logger:    o.logger,
		rc:        o.resource,
		mappings:  []*mmap.Mapping{keysMap, valsMap},
	}

	if !cfg.LoadToMemory {
		_ = keysMap.Advise(mmap.AccessSequential)
		_ = valsMap.Advise(mmap.AccessRandom)
		o.logger.Info("datastore mapped",
			"path", cfg.Path, "size", cfg.Size, "dimension", cfg.Dimension, "fp16", cfg.FP16, "metric", metric.String())
		return f, nil
	}

	if err := f.materialize(ctx, dtype, keyBytes, valBytes); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func openMapping(path string, want int) (*mmap.Mapping, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("datastore: open %s: %w", path, err)
	}
	if m.Size() < want {
		_ = m.Close()
		return nil, fmt.Errorf("%w: %s has %d bytes, expected at least %d", ErrCorruptDatastore, path, m.Size(), want)
	}
	return m, nil
}

// materialize copies keys and values into RAM and drops the mappings.
func (f *Flat) materialize(ctx context.Context, dtype npy.DType, keyBytes, valBytes int) error {
	need := int64(f.size)*int64(f.dim)*4 + int64(valBytes)
	if err := f.rc.ReserveMemory(need); err != nil {
		return err
	}
	f.reserved = need

	begin := time.Now()
	f.logger.Info("loading datastore to memory", "size", f.size, "dimension", f.dim, "bytes", need)

	src := f.keys.(mappedKeys)
	m := tensor.New(f.size, f.dim)
	rowBytes := dtype.Size() * f.dim
	for start := 0; start < f.size; start += loadChunkRows {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+loadChunkRows, f.size)
		if err := f.rc.AcquireIO(ctx, (end-start)*rowBytes); err != nil {
			return err
		}
		if err := npy.DecodeFloat32(m.Data[start*f.dim:end*f.dim], dtype, src.data[start*rowBytes:end*rowBytes]); err != nil {
			return err
		}
	}

	values := make([]int64, f.size)
	if err := npy.DecodeInt64(values, npy.Int64, f.rawValues[:valBytes]); err != nil {
		return err
	}

	f.keys = denseKeys{m: m}
	f.values = values
	f.rawValues = nil
	for _, mp := range f.mappings {
		if err := mp.Close(); err != nil {
			return err
		}
	}
	f.mappings = nil

	f.logger.Info("datastore loaded", "keys_bytes", keyBytes, "elapsed", time.Since(begin))
	return nil
}
