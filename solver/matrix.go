package solver

import (
	"errors"
	"fmt"
	"sort"

	"github.com/james-bowman/sparse"
)

var (
	ErrNewNonzero   = errors.New("solver: new nonzero outside the preallocated pattern")
	ErrNotConverged = errors.New("solver: iteration did not converge")
)

type row struct {
	cols []int // global column indices, capacity fixed at preallocation
	vals []float64
}

func newRow(capacity int) row {
	return row{cols: make([]int, 0, capacity), vals: make([]float64, 0, capacity)}
}

func (r *row) add(col int, v float64) bool {
	for k, c := range r.cols {
		if c == col {
			r.vals[k] += v
			return true
		}
	}
	if len(r.cols) == cap(r.cols) {
		return false
	}
	r.cols = append(r.cols, col)
	r.vals = append(r.vals, v)
	return true
}

// Matrix is the block of rows [RowOffset, RowOffset+LocalRows) of a square
// distributed matrix of order GlobalSize. Storage is preallocated per row,
// split into the diagonal block (columns in the same range as the rows) and
// the off-diagonal block (every other column). Inserting an entry that does
// not fit the preallocation fails with ErrNewNonzero.
type Matrix struct {
	LocalRows, GlobalSize, RowOffset int
	// IgnoreZeroEntries drops exact zero insertions without taking a slot.
	IgnoreZeroEntries bool
	diag, off         []row
	csr               *sparse.CSR
	halo              *halo // built from the nonzero structure of csr
}

func NewMatrix(localRows, globalSize, rowOffset int, nnzDiag, nnzOff []int) (*Matrix, error) {
	if len(nnzDiag) != localRows || len(nnzOff) != localRows {
		return nil, fmt.Errorf("solver: preallocation for %d/%d rows, matrix has %d local rows",
			len(nnzDiag), len(nnzOff), localRows)
	}
	if rowOffset < 0 || rowOffset+localRows > globalSize {
		return nil, fmt.Errorf("solver: rows [%d,%d) outside matrix of order %d",
			rowOffset, rowOffset+localRows, globalSize)
	}
	m := &Matrix{
		LocalRows:         localRows,
		GlobalSize:        globalSize,
		RowOffset:         rowOffset,
		IgnoreZeroEntries: true,
		diag:              make([]row, localRows),
		off:               make([]row, localRows),
	}
	for i := 0; i < localRows; i++ {
		if nnzDiag[i] < 0 || nnzOff[i] < 0 {
			return nil, fmt.Errorf("solver: negative preallocation for row %d", rowOffset+i)
		}
		m.diag[i] = newRow(min(nnzDiag[i], localRows))
		m.off[i] = newRow(min(nnzOff[i], globalSize-localRows))
	}
	return m, nil
}

func (m *Matrix) Owns(globalRow int) bool {
	return globalRow >= m.RowOffset && globalRow < m.RowOffset+m.LocalRows
}

// Add accumulates v into entry (gr, col), both global indices. The row must
// be owned by this block.
func (m *Matrix) Add(gr, col int, v float64) error {
	if !m.Owns(gr) {
		return fmt.Errorf("solver: row %d not in local range [%d,%d)", gr, m.RowOffset, m.RowOffset+m.LocalRows)
	}
	if col < 0 || col >= m.GlobalSize {
		return fmt.Errorf("solver: column %d out of range [0,%d)", col, m.GlobalSize)
	}
	if v == 0 && m.IgnoreZeroEntries {
		return nil
	}
	i := gr - m.RowOffset
	r := &m.off[i]
	if m.Owns(col) {
		r = &m.diag[i]
	}
	n := len(r.cols)
	if !r.add(col, v) {
		return fmt.Errorf("%w: row %d col %d", ErrNewNonzero, gr, col)
	}
	m.csr = nil
	if len(r.cols) != n {
		m.halo = nil
	}
	return nil
}

// Zero clears every value and keeps the nonzero structure, so the halo plan
// survives.
func (m *Matrix) Zero() {
	for i := range m.diag {
		clear(m.diag[i].vals)
		clear(m.off[i].vals)
	}
	m.csr = nil
}

// NNZ is the number of stored entries.
func (m *Matrix) NNZ() (nnz int) {
	for i := range m.diag {
		nnz += len(m.diag[i].cols) + len(m.off[i].cols)
	}
	return
}

// Unused is the number of preallocated slots never filled.
func (m *Matrix) Unused() (n int) {
	for i := range m.diag {
		n += cap(m.diag[i].cols) - len(m.diag[i].cols)
		n += cap(m.off[i].cols) - len(m.off[i].cols)
	}
	return
}

// At returns entry (gr, col) of the owned global row gr.
func (m *Matrix) At(gr, col int) float64 {
	if !m.Owns(gr) {
		panic(fmt.Sprintf("solver: row %d not owned", gr))
	}
	i := gr - m.RowOffset
	for _, r := range []*row{&m.diag[i], &m.off[i]} {
		for k, c := range r.cols {
			if c == col {
				return r.vals[k]
			}
		}
	}
	return 0
}

// Assemble compresses the local rows into a LocalRows x GlobalSize CSR matrix
// with ascending columns in every row.
func (m *Matrix) Assemble() *sparse.CSR {
	if m.csr != nil {
		return m.csr
	}
	var (
		nnz    = m.NNZ()
		indptr = make([]int, m.LocalRows+1)
		ind    = make([]int, 0, nnz)
		data   = make([]float64, 0, nnz)
	)
	type entry struct {
		col int
		val float64
	}
	for i := 0; i < m.LocalRows; i++ {
		entries := make([]entry, 0, len(m.diag[i].cols)+len(m.off[i].cols))
		for _, r := range []*row{&m.diag[i], &m.off[i]} {
			for k, c := range r.cols {
				entries = append(entries, entry{c, r.vals[k]})
			}
		}
		sort.Slice(entries, func(a, b int) bool { return entries[a].col < entries[b].col })
		for _, e := range entries {
			ind = append(ind, e.col)
			data = append(data, e.val)
		}
		indptr[i+1] = len(ind)
	}
	m.csr = sparse.NewCSR(m.LocalRows, m.GlobalSize, indptr, ind, data)
	return m.csr
}

// Diagonal returns the owned diagonal entries.
func (m *Matrix) Diagonal() []float64 {
	d := make([]float64, m.LocalRows)
	for i := range d {
		d[i] = m.At(m.RowOffset+i, m.RowOffset+i)
	}
	return d
}
