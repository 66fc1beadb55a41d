package datastore

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/hupe1980/knnlm/internal/f16"
	"github.com/hupe1980/knnlm/tensor"
)

// Writer appends entries to a new datastore.
type Writer struct {
	dim   int
	fp16  bool
	count int

	keysFile, valsFile *os.File
	keys, vals         *bufio.Writer
	scratch            []byte
}

// Create starts a datastore at base path, truncating existing files.
func Create(path string, dim int, fp16 bool) (*Writer, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("datastore: invalid dimension %d", dim)
	}
	kf, err := os.Create(KeysPath(path))
	if err != nil {
		return nil, err
	}
	vf, err := os.Create(ValuesPath(path))
	if err != nil {
		_ = kf.Close()
		return nil, err
	}
	elem := 4
	if fp16 {
		elem = 2
	}
	return &Writer{
		dim:      dim,
		fp16:     fp16,
		keysFile: kf,
		valsFile: vf,
		keys:     bufio.NewWriter(kf),
		vals:     bufio.NewWriter(vf),
		scratch:  make([]byte, elem*dim),
	}, nil
}

// Add appends one entry per key row.
func (w *Writer) Add(keys *tensor.Matrix, values []int64) error {
	if keys.Cols != w.dim {
		return &ErrDimensionMismatch{Expected: w.dim, Actual: keys.Cols}
	}
	if keys.Rows != len(values) {
		return fmt.Errorf("datastore: %d keys but %d values", keys.Rows, len(values))
	}

	var vb [8]byte
	for i := 0; i < keys.Rows; i++ {
		row := keys.Row(i)
		if w.fp16 {
			f16.EncodeBytes(w.scratch, row)
		} else {
			for j, v := range row {
				binary.LittleEndian.PutUint32(w.scratch[4*j:], math.Float32bits(v))
			}
		}
		if _, err := w.keys.Write(w.scratch); err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(vb[:], uint64(values[i]))
		if _, err := w.vals.Write(vb[:]); err != nil {
			return err
		}
	}
	w.count += keys.Rows
	return nil
}

// Count returns the number of entries written so far.
func (w *Writer) Count() int { return w.count }

// Close flushes and closes both files.
func (w *Writer) Close() error {
	return errors.Join(
		w.keys.Flush(),
		w.vals.Flush(),
		w.keysFile.Close(),
		w.valsFile.Close(),
	)
}
