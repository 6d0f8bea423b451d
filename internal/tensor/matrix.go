// Package tensor implements the dense 2D float32 matrix used throughout
// densekit.
//
// The package is deliberately small: a retriever model only needs row-major
// matrices, a handful of in-place arithmetic ops, and vertical stacking for
// assembling per-batch embedding blocks. Everything runs on the CPU; MatMul
// optionally fans rows out across goroutines (the "parallel" device).
package tensor

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync"
)

// Matrix is a dense row-major 2D float32 matrix.
type Matrix struct {
	rows int
	cols int
	data []float32
}

// New creates a zero-filled rows x cols matrix.
//
// Panics if rows or cols is negative; shape errors are programmer errors.
func New(rows, cols int) *Matrix {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("tensor: invalid shape %dx%d", rows, cols))
	}
	return &Matrix{
		rows: rows,
		cols: cols,
		data: make([]float32, rows*cols),
	}
}

// FromSlice creates a rows x cols matrix backed by data.
//
// The slice is used directly, not copied. Panics if len(data) != rows*cols.
func FromSlice(rows, cols int, data []float32) *Matrix {
	if len(data) != rows*cols {
		panic(fmt.Sprintf("tensor: data length %d does not match shape %dx%d", len(data), rows, cols))
	}
	return &Matrix{rows: rows, cols: cols, data: data}
}

// Randn creates a rows x cols matrix with values drawn from N(0, std^2)
// using the given seed. Used for parameter initialization.
func Randn(rows, cols int, std float64, seed int64) *Matrix {
	m := New(rows, cols)
	rng := rand.New(rand.NewSource(seed))
	for i := range m.data {
		m.data[i] = float32(rng.NormFloat64() * std)
	}
	return m
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m *Matrix) Cols() int { return m.cols }

// Data returns the underlying row-major storage.
func (m *Matrix) Data() []float32 { return m.data }

// At returns the element at (i, j).
func (m *Matrix) At(i, j int) float32 { return m.data[i*m.cols+j] }

// Set assigns the element at (i, j).
func (m *Matrix) Set(i, j int, v float32) { m.data[i*m.cols+j] = v }

// Row returns row i as a slice view into the matrix storage.
func (m *Matrix) Row(i int) []float32 {
	return m.data[i*m.cols : (i+1)*m.cols]
}

// Clone returns a deep copy of the matrix.
func (m *Matrix) Clone() *Matrix {
	out := New(m.rows, m.cols)
	copy(out.data, m.data)
	return out
}

// Zero resets all elements to zero.
func (m *Matrix) Zero() {
	for i := range m.data {
		m.data[i] = 0
	}
}

// AddScaled performs m += scale * other element-wise.
func (m *Matrix) AddScaled(other *Matrix, scale float32) {
	if m.rows != other.rows || m.cols != other.cols {
		panic(fmt.Sprintf("tensor: shape mismatch %dx%d vs %dx%d", m.rows, m.cols, other.rows, other.cols))
	}
	for i, v := range other.data {
		m.data[i] += scale * v
	}
}

// Scale multiplies every element by s in place.
func (m *Matrix) Scale(s float32) {
	for i := range m.data {
		m.data[i] *= s
	}
}

// MulVec computes out = x * m for a row vector x of length m.rows,
// writing the result of length m.cols into out.
func (m *Matrix) MulVec(x, out []float32) {
	if len(x) != m.rows || len(out) != m.cols {
		panic(fmt.Sprintf("tensor: MulVec shape mismatch: x=%d out=%d for %dx%d", len(x), len(out), m.rows, m.cols))
	}
	for j := range out {
		out[j] = 0
	}
	for i, xi := range x {
		if xi == 0 {
			continue
		}
		row := m.Row(i)
		for j, w := range row {
			out[j] += xi * w
		}
	}
}

// MatMul computes a @ b. When parallel is true, rows of a are distributed
// across GOMAXPROCS worker goroutines.
func MatMul(a, b *Matrix, parallel bool) *Matrix {
	if a.cols != b.rows {
		panic(fmt.Sprintf("tensor: MatMul shape mismatch %dx%d @ %dx%d", a.rows, a.cols, b.rows, b.cols))
	}
	out := New(a.rows, b.cols)

	mulRows := func(lo, hi int) {
		for i := lo; i < hi; i++ {
			arow := a.Row(i)
			orow := out.Row(i)
			for k, av := range arow {
				if av == 0 {
					continue
				}
				brow := b.Row(k)
				for j, bv := range brow {
					orow[j] += av * bv
				}
			}
		}
	}

	workers := runtime.GOMAXPROCS(0)
	if !parallel || workers < 2 || a.rows < 2 {
		mulRows(0, a.rows)
		return out
	}

	var wg sync.WaitGroup
	chunk := (a.rows + workers - 1) / workers
	for lo := 0; lo < a.rows; lo += chunk {
		hi := min(lo+chunk, a.rows)
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			mulRows(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
	return out
}

// VStack concatenates blocks vertically in order. All blocks must share the
// same column count.
func VStack(blocks []*Matrix) (*Matrix, error) {
	if len(blocks) == 0 {
		return New(0, 0), nil
	}
	cols := blocks[0].cols
	rows := 0
	for _, b := range blocks {
		if b.cols != cols {
			return nil, fmt.Errorf("tensor: vstack column mismatch: %d vs %d", cols, b.cols)
		}
		rows += b.rows
	}
	out := New(rows, cols)
	offset := 0
	for _, b := range blocks {
		copy(out.data[offset:], b.data)
		offset += len(b.data)
	}
	return out, nil
}
