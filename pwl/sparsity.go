package pwl

import (
	"fmt"

	"github.com/notargets/gopwld/mesh"
	"github.com/notargets/gopwld/unknowns"
)

// BuildSparsityPattern counts, for every local row, the columns it couples to
// in the diagonal block (owned by this rank) and in the off-diagonal block
// (owned by other ranks). A row of cell c couples to every node of c and to
// every node of each distinct face neighbor of c. With C components per node
// (from uk, nil meaning one) every row couples to all C components of those
// nodes, so both counts scale by C and rows are numbered node*C + component.
func (d *Discretization) BuildSparsityPattern(uk *unknowns.Manager) (nnzDiag, nnzOff []int, err error) {
	if !d.current(d.orderVersion) {
		return nil, nil, fmt.Errorf("%w: sparsity needs a current node ordering", ErrStale)
	}
	if !d.current(d.sparsityVersion) {
		if err = d.countNodeCouplings(); err != nil {
			return nil, nil, err
		}
		d.sparsityVersion = d.part.Version
	}
	C := components(uk)
	nnzDiag = make([]int, len(d.nnzDiag)*C)
	nnzOff = make([]int, len(d.nnzOff)*C)
	for node := range d.nnzDiag {
		for comp := 0; comp < C; comp++ {
			nnzDiag[node*C+comp] = d.nnzDiag[node] * C
			nnzOff[node*C+comp] = d.nnzOff[node] * C
		}
	}
	return nnzDiag, nnzOff, nil
}

func (d *Discretization) countNodeCouplings() error {
	o := d.ordering
	d.nnzDiag = make([]int, o.LocalDOFCount)
	d.nnzOff = make([]int, o.LocalDOFCount)
	for ci, cv := range d.cellViews {
		var (
			diag, off = cv.NumNodes, 0
			locals    = make(map[int]bool)
			ghosts    = make(map[mesh.GhostKey]bool)
		)
		for _, f := range cv.Faces {
			nbr := f.Neighbor
			switch nbr.Kind {
			case mesh.Local:
				if nbr.LocalID == ci || locals[nbr.LocalID] {
					continue
				}
				if nbr.LocalID < 0 || nbr.LocalID >= len(d.cellViews) {
					return fmt.Errorf("cell %d: local neighbor %d out of range", cv.GlobalID, nbr.LocalID)
				}
				locals[nbr.LocalID] = true
				diag += d.cellViews[nbr.LocalID].NumNodes
			case mesh.Ghost:
				key := nbr.Key()
				if ghosts[key] {
					continue
				}
				g, ok := o.Ghosts[key]
				if !ok {
					return fmt.Errorf("%w: cell %d ghost %v", ErrGhostDirectory, cv.GlobalID, key)
				}
				ghosts[key] = true
				off += g.NumNodes
			}
		}
		for i := 0; i < cv.NumNodes; i++ {
			d.nnzDiag[o.CellOffsets[ci]+i] = diag
			d.nnzOff[o.CellOffsets[ci]+i] = off
		}
	}
	return nil
}
