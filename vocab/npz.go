package vocab

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/hupe1980/knnlm/internal/npy"
)

// OpenNPZ reads a projection from a scipy sparse matrix file (save_npz).
func OpenNPZ(path string) (*Sparse, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return loadNPZ(&rc.Reader)
}

// LoadNPZ reads a projection from a scipy sparse matrix archive of size
// bytes. Matrix rows are pseudo entries and columns are words; coo, csr and
// csc layouts are accepted.
func LoadNPZ(r io.ReaderAt, size int64) (*Sparse, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProjection, err)
	}
	return loadNPZ(zr)
}

type npzArchive map[string]*zip.File

func loadNPZ(zr *zip.Reader) (*Sparse, error) {
	a := make(npzArchive, len(zr.File))
	for _, f := range zr.File {
		a[strings.TrimSuffix(f.Name, ".npy")] = f
	}

	var format string
	if err := a.read("format", func(r io.Reader) (err error) {
		format, err = npy.ReadString(r)
		return err
	}); err != nil {
		return nil, err
	}
	shape, err := a.ints("shape")
	if err != nil {
		return nil, err
	}
	if len(shape) != 2 {
		return nil, fmt.Errorf("%w: npz shape %v is not a matrix", ErrInvalidProjection, shape)
	}
	rows, cols := int(shape[0]), int(shape[1])

	var data []float32
	if err := a.read("data", func(r io.Reader) (err error) {
		_, data, err = npy.ReadFloat32(r)
		return err
	}); err != nil {
		return nil, err
	}

	var entries []Entry
	switch format {
	case "coo":
		row, err := a.ints("row")
		if err != nil {
			return nil, err
		}
		col, err := a.ints("col")
		if err != nil {
			return nil, err
		}
		if len(row) != len(data) || len(col) != len(data) {
			return nil, fmt.Errorf("%w: coo with %d rows, %d cols, %d values", ErrInvalidProjection, len(row), len(col), len(data))
		}
		entries = make([]Entry, len(data))
		for i, w := range data {
			entries[i] = Entry{Pseudo: int(row[i]), Word: int(col[i]), Weight: w}
		}
	case "csr", "csc":
		major := rows
		if format == "csc" {
			major = cols
		}
		indptr, indices, err := a.compressed(major, len(data))
		if err != nil {
			return nil, err
		}
		entries = make([]Entry, 0, len(data))
		for m := 0; m < major; m++ {
			for j := indptr[m]; j < indptr[m+1]; j++ {
				e := Entry{Pseudo: m, Word: int(indices[j]), Weight: data[j]}
				if format == "csc" {
					e.Pseudo, e.Word = e.Word, e.Pseudo
				}
				entries = append(entries, e)
			}
		}
	default:
		return nil, fmt.Errorf("%w: unsupported sparse format %q", ErrInvalidProjection, format)
	}
	return NewSparse(rows, cols, entries)
}

func (a npzArchive) read(name string, fn func(io.Reader) error) error {
	f, ok := a[name]
	if !ok {
		return fmt.Errorf("%w: npz has no %q array", ErrInvalidProjection, name)
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := fn(rc); err != nil {
		return fmt.Errorf("%w: npz array %q: %w", ErrInvalidProjection, name, err)
	}
	return nil
}

func (a npzArchive) ints(name string) ([]int64, error) {
	var out []int64
	err := a.read(name, func(r io.Reader) (err error) {
		_, out, err = npy.ReadInt64(r)
		return err
	})
	return out, err
}

// compressed reads and checks the indptr/indices pair of a csr or csc matrix
// with major rows and nnz stored values.
func (a npzArchive) compressed(major, nnz int) ([]int, []int64, error) {
	ptr, err := a.ints("indptr")
	if err != nil {
		return nil, nil, err
	}
	indices, err := a.ints("indices")
	if err != nil {
		return nil, nil, err
	}
	if len(ptr) != major+1 || len(indices) != nnz {
		return nil, nil, fmt.Errorf("%w: indptr of %d for %d rows, %d indices for %d values", ErrInvalidProjection, len(ptr), major, len(indices), nnz)
	}
	indptr := make([]int, len(ptr))
	for i, p := range ptr {
		if p < 0 || p > int64(nnz) || (i > 0 && int(p) < indptr[i-1]) {
			return nil, nil, fmt.Errorf("%w: indptr is not monotone within [0, %d]", ErrInvalidProjection, nnz)
		}
		indptr[i] = int(p)
	}
	return indptr, indices, nil
}
