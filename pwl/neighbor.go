package pwl

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/gopwld/mesh"
)

// NeighborView is the reduced record of a ghost cell: enough to evaluate its
// shape functions and their gradients on the faces it shares with local
// cells, and no volume integrals.
type NeighborView struct {
	Key           mesh.GhostKey
	GlobalID      int
	Type          mesh.CellType
	MaterialID    int
	NumNodes      int
	VertexIDs     []int
	NodeLocations []r3.Vec
	CharLength    float64
	sideGrads     map[sideKey][]r3.Vec // sides touching shared faces only
}

// Coupling is the neighbor side of a face: the neighbor's shape functions and
// gradients evaluated at this cell's face quadrature points.
type Coupling struct {
	Neighbor   mesh.Neighbor
	NumNodes   int
	VertexIDs  []int
	MaterialID int
	CharLength float64
	Shape      [][]float64 // [face qp][neighbor node]
	Grad       [][]r3.Vec  // [face qp][neighbor node]
}

// neighborCell is what coupling needs from either a local CellView or a
// ghost NeighborView.
type neighborCell struct {
	vertexIDs  []int
	materialID int
	charLength float64
	sideGrads  map[sideKey][]r3.Vec
}

func newNeighborView(key mesh.GhostKey, g *mesh.Cell, verts []r3.Vec, sharedFaces map[string]bool) (*NeighborView, error) {
	cv, err := newCellView(g, verts)
	if err != nil {
		return nil, err
	}
	nv := &NeighborView{
		Key:           key,
		GlobalID:      g.GlobalID,
		Type:          g.Type,
		MaterialID:    g.MaterialID,
		NumNodes:      cv.NumNodes,
		VertexIDs:     cv.VertexIDs,
		NodeLocations: cv.NodeLocations,
		CharLength:    cv.CharLength,
		sideGrads:     make(map[sideKey][]r3.Vec),
	}
	for k, grads := range cv.sideGrads {
		if k.face == "" || sharedFaces[k.face] {
			nv.sideGrads[k] = grads
		}
	}
	return nv, nil
}

// PreComputeNeighborCellSDValues builds the NeighborView of every ghost cell
// adjacent to a local cell and fills the Coupling of every interior face.
func (d *Discretization) PreComputeNeighborCellSDValues() error {
	if !d.current(d.cellVersion) {
		return fmt.Errorf("%w: neighbor values need current cell values", ErrStale)
	}
	if d.current(d.nbrVersion) {
		return nil
	}
	shared := make(map[mesh.GhostKey]map[string]bool)
	for ci := range d.part.LocalCells {
		for _, f := range d.part.LocalCells[ci].Faces {
			if f.Neighbor.Kind != mesh.Ghost {
				continue
			}
			key := f.Neighbor.Key()
			if shared[key] == nil {
				shared[key] = make(map[string]bool)
			}
			shared[key][mesh.FaceKey(f.VertexIDs)] = true
		}
	}
	views := make(map[mesh.GhostKey]*NeighborView, len(shared))
	for key, faces := range shared {
		g, ok := d.part.Ghost(key)
		if !ok {
			return fmt.Errorf("%w: no geometry for ghost cell %v", ErrGhostDirectory, key)
		}
		nv, err := newNeighborView(key, g, d.part.Vertices, faces)
		if err != nil {
			return err
		}
		views[key] = nv
	}
	d.neighborViews = views

	for _, cv := range d.cellViews {
		for f := range cv.Faces {
			fv := &cv.Faces[f]
			fv.Coupling = nil
			if fv.Neighbor.IsBoundary() {
				continue
			}
			nc, err := d.neighborCell(fv.Neighbor)
			if err != nil {
				return fmt.Errorf("cell %d face %d: %w", cv.GlobalID, f, err)
			}
			if fv.Coupling, err = couple(cv, fv, nc); err != nil {
				return fmt.Errorf("cell %d face %d: %w", cv.GlobalID, f, err)
			}
		}
	}
	d.nbrVersion = d.part.Version
	return nil
}

func (d *Discretization) neighborCell(n mesh.Neighbor) (*neighborCell, error) {
	switch n.Kind {
	case mesh.Local:
		if n.LocalID < 0 || n.LocalID >= len(d.cellViews) {
			return nil, fmt.Errorf("local neighbor %d out of range", n.LocalID)
		}
		cv := d.cellViews[n.LocalID]
		return &neighborCell{cv.VertexIDs, cv.MaterialID, cv.CharLength, cv.sideGrads}, nil
	case mesh.Ghost:
		nv, ok := d.neighborViews[n.Key()]
		if !ok {
			return nil, fmt.Errorf("%w: ghost %v", ErrGhostDirectory, n.Key())
		}
		return &neighborCell{nv.VertexIDs, nv.MaterialID, nv.CharLength, nv.sideGrads}, nil
	}
	return nil, fmt.Errorf("boundary face has no neighbor")
}

// couple evaluates the neighbor basis on this cell's face quadrature points.
// On a shared face the neighbor's node on vertex v takes the value of this
// cell's node on v; neighbor nodes off the face vanish there.
func couple(cv *CellView, fv *FaceView, nc *neighborCell) (*Coupling, error) {
	Nn := len(nc.vertexIDs)
	cp := &Coupling{
		Neighbor:   fv.Neighbor,
		NumNodes:   Nn,
		VertexIDs:  nc.vertexIDs,
		MaterialID: nc.materialID,
		CharLength: nc.charLength,
		Shape:      make([][]float64, len(fv.QP)),
		Grad:       make([][]r3.Vec, len(fv.QP)),
	}
	ownNode := make([]int, Nn)
	for k, v := range nc.vertexIDs {
		if i, ok := cv.NodeOfVertex(v); ok {
			ownNode[k] = i
		} else {
			ownNode[k] = -1
		}
	}
	for q := range fv.QP {
		qp := &fv.QP[q]
		grads, ok := nc.sideGrads[qp.key]
		if !ok {
			return nil, fmt.Errorf("neighbor has no side matching face {%s}", qp.key.face)
		}
		shape := make([]float64, Nn)
		for k, i := range ownNode {
			if i >= 0 {
				shape[k] = qp.Shape[i]
			}
		}
		cp.Shape[q], cp.Grad[q] = shape, grads
	}
	return cp, nil
}

// NeighborFaceValues returns the coupling data of face f of local cell id.
func (d *Discretization) NeighborFaceValues(id, f int) (*Coupling, error) {
	if !d.current(d.nbrVersion) {
		return nil, ErrNotComputed
	}
	cv, err := d.CellView(id)
	if err != nil {
		return nil, err
	}
	if f < 0 || f >= len(cv.Faces) {
		return nil, fmt.Errorf("cell %d has no face %d", id, f)
	}
	if cv.Faces[f].Coupling == nil {
		return nil, fmt.Errorf("cell %d face %d is a boundary face", id, f)
	}
	return cv.Faces[f].Coupling, nil
}

// NeighborView returns the reduced view of a ghost cell.
func (d *Discretization) NeighborView(key mesh.GhostKey) (*NeighborView, error) {
	if !d.current(d.nbrVersion) {
		return nil, ErrNotComputed
	}
	nv, ok := d.neighborViews[key]
	if !ok {
		return nil, fmt.Errorf("%w: ghost %v", ErrGhostDirectory, key)
	}
	return nv, nil
}

func (d *Discretization) NumNeighborViews() int { return len(d.neighborViews) }
