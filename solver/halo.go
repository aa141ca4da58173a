package solver

import (
	"fmt"
	"sort"

	"github.com/notargets/gopwld/comm"
)

// halo is the communication plan of a distributed matrix-vector product: the
// off-block columns this rank reads from other ranks and the owned entries it
// sends to them.
type halo struct {
	recv  map[int][]int // owner rank -> global columns, ascending
	send  map[int][]int // rank -> local indices requested by it
	index []int         // per CSR nonzero, position in the extended vector
	ext   []float64     // owned values followed by received values
}

// haloPlan returns the plan cached on A, rebuilding it on every rank when any
// rank changed its nonzero structure since the last build. It is collective.
func haloPlan(c *comm.Comm, A *Matrix) (*halo, error) {
	var stale float64
	if A.halo == nil {
		stale = 1
	}
	stale, err := c.AllReduceMaxFloat(stale)
	if err != nil {
		return nil, err
	}
	if stale == 0 {
		return A.halo, nil
	}
	if A.halo, err = newHalo(c, A); err != nil {
		return nil, err
	}
	return A.halo, nil
}

func newHalo(c *comm.Comm, A *Matrix) (*halo, error) {
	offsets, err := c.AllGatherInts(A.RowOffset)
	if err != nil {
		return nil, err
	}
	counts, err := c.AllGatherInts(A.LocalRows)
	if err != nil {
		return nil, err
	}
	owner := func(col int) int {
		for r := range offsets {
			if col >= offsets[r] && col < offsets[r]+counts[r] {
				return r
			}
		}
		return -1
	}

	var (
		csr    = A.Assemble().RawMatrix()
		h      = &halo{recv: make(map[int][]int), index: make([]int, len(csr.Ind))}
		needed = make(map[int]bool)
	)
	for _, col := range csr.Ind {
		if !A.Owns(col) && !needed[col] {
			needed[col] = true
			r := owner(col)
			if r < 0 || r == c.Rank() {
				return nil, fmt.Errorf("solver: no rank owns column %d", col)
			}
			h.recv[r] = append(h.recv[r], col)
		}
	}
	position := make(map[int]int, len(needed))
	ranks := make([]int, 0, len(h.recv))
	for r := range h.recv {
		sort.Ints(h.recv[r])
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	next := A.LocalRows
	for _, r := range ranks {
		for _, col := range h.recv[r] {
			position[col] = next
			next++
		}
	}
	for k, col := range csr.Ind {
		if A.Owns(col) {
			h.index[k] = col - A.RowOffset
		} else {
			h.index[k] = position[col]
		}
	}
	h.ext = make([]float64, next)

	requests, err := comm.Exchange(c, h.recv)
	if err != nil {
		return nil, err
	}
	h.send = make(map[int][]int, len(requests))
	for r, cols := range requests {
		local := make([]int, len(cols))
		for i, col := range cols {
			if !A.Owns(col) {
				return nil, fmt.Errorf("solver: rank %d asked for column %d not owned here", r, col)
			}
			local[i] = col - A.RowOffset
		}
		h.send[r] = local
	}
	return h, nil
}

// mulVec computes y = A x for the local rows.
func (h *halo) mulVec(c *comm.Comm, A *Matrix, x, y []float64) error {
	out := make(map[int][]float64, len(h.send))
	for r, idx := range h.send {
		vals := make([]float64, len(idx))
		for i, j := range idx {
			vals[i] = x[j]
		}
		out[r] = vals
	}
	in, err := comm.Exchange(c, out)
	if err != nil {
		return err
	}
	copy(h.ext, x)
	for r, cols := range h.recv {
		vals := in[r]
		if len(vals) != len(cols) {
			return fmt.Errorf("solver: rank %d sent %d halo values, expected %d", r, len(vals), len(cols))
		}
	}
	// received blocks follow the ascending rank order used for positions
	next := A.LocalRows
	ranks := make([]int, 0, len(h.recv))
	for r := range h.recv {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	for _, r := range ranks {
		next += copy(h.ext[next:], in[r])
	}
	csr := A.Assemble().RawMatrix()
	for i := 0; i < A.LocalRows; i++ {
		var sum float64
		for k := csr.Indptr[i]; k < csr.Indptr[i+1]; k++ {
			sum += csr.Data[k] * h.ext[h.index[k]]
		}
		y[i] = sum
	}
	return nil
}
