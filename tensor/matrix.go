// Package tensor provides the row-major float32 matrix shared by the datastore,
// the retrieval math and the scorer.
//
// A Matrix is a view: Rows, Cols and a flat Data slice of length Rows*Cols.
// Slicing rows never copies.
package tensor

import (
	"fmt"
	"slices"
)

// Matrix is a dense row-major float32 matrix.
type Matrix struct {
	Rows int
	Cols int
	Data []float32
}

// New allocates a zeroed rows×cols matrix.
func New(rows, cols int) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// FromData wraps data as a rows×cols matrix without copying.
func FromData(rows, cols int, data []float32) (*Matrix, error) {
	if rows < 0 || cols < 0 || len(data) != rows*cols {
		return nil, fmt.Errorf("tensor: %d values cannot form a %dx%d matrix", len(data), rows, cols)
	}
	return &Matrix{Rows: rows, Cols: cols, Data: data}, nil
}

// FromRows copies equally sized rows into a new matrix.
func FromRows(rows [][]float32) (*Matrix, error) {
	if len(rows) == 0 {
		return &Matrix{}, nil
	}
	cols := len(rows[0])
	m := New(len(rows), cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("tensor: row %d has %d values, expected %d", i, len(r), cols)
		}
		copy(m.Row(i), r)
	}
	return m, nil
}

// Row returns row i as a slice aliasing the matrix data.
func (m *Matrix) Row(i int) []float32 {
	return m.Data[i*m.Cols : (i+1)*m.Cols : (i+1)*m.Cols]
}

// At returns element (i, j).
func (m *Matrix) At(i, j int) float32 {
	return m.Data[i*m.Cols+j]
}

// Set assigns element (i, j).
func (m *Matrix) Set(i, j int, v float32) {
	m.Data[i*m.Cols+j] = v
}

// Slice returns the rows [start, end) as a view.
func (m *Matrix) Slice(start, end int) *Matrix {
	return &Matrix{Rows: end - start, Cols: m.Cols, Data: m.Data[start*m.Cols : end*m.Cols]}
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	return &Matrix{Rows: m.Rows, Cols: m.Cols, Data: slices.Clone(m.Data)}
}

// SelectRows copies the given rows into a new matrix.
func (m *Matrix) SelectRows(idx []int) *Matrix {
	out := New(len(idx), m.Cols)
	for i, r := range idx {
		copy(out.Row(i), m.Row(r))
	}
	return out
}

// AddInPlace adds o element-wise into m. Shapes must match.
func (m *Matrix) AddInPlace(o *Matrix) error {
	if m.Rows != o.Rows || m.Cols != o.Cols {
		return fmt.Errorf("tensor: shape %dx%d does not match %dx%d", o.Rows, o.Cols, m.Rows, m.Cols)
	}
	for i, v := range o.Data {
		m.Data[i] += v
	}
	return nil
}

// Scale multiplies every element by s.
func (m *Matrix) Scale(s float32) {
	for i := range m.Data {
		m.Data[i] *= s
	}
}

// String implements fmt.Stringer with the shape only.
func (m *Matrix) String() string {
	return fmt.Sprintf("Matrix(%dx%d)", m.Rows, m.Cols)
}
