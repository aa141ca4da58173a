package mesh

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

type faceRef struct {
	cell, face int
}

// BuildConnectivity pairs faces that share the same vertex set. Paired faces
// become Local neighbors (global ids); unpaired faces stay boundary faces and
// take their id from BoundaryTags when one is registered for them.
func (m *Mesh) BuildConnectivity() error {
	faceMap := make(map[string]faceRef)
	for ci := range m.Cells {
		c := &m.Cells[ci]
		for fi := range c.Faces {
			key := FaceKey(c.Faces[fi].VertexIDs)
			other, exists := faceMap[key]
			if !exists {
				faceMap[key] = faceRef{ci, fi}
				continue
			}
			if other.cell < 0 {
				return fmt.Errorf("face {%s} is shared by more than two cells", key)
			}
			c.Faces[fi].Neighbor = LocalNeighbor(other.cell)
			m.Cells[other.cell].Faces[other.face].Neighbor = LocalNeighbor(ci)
			faceMap[key] = faceRef{-1, -1}
		}
	}
	for key, ref := range faceMap {
		if ref.cell < 0 {
			continue
		}
		if bid, ok := m.BoundaryTags[key]; ok {
			m.Cells[ref.cell].Faces[ref.face].Neighbor = BoundaryNeighbor(bid)
		}
	}
	return nil
}

// TagBoundariesByBox assigns boundary ids to boundary faces lying on the
// bounding box of the mesh: 2*axis for the minimum plane, 2*axis+1 for the
// maximum plane. Faces that lie on no box plane keep their id.
func (m *Mesh) TagBoundariesByBox(dim int) {
	if len(m.Vertices) == 0 {
		return
	}
	var (
		lo, hi = bounds(m.Vertices)
		tol    = 1.e-10 * math.Max(1, r3.Norm(r3.Sub(hi, lo)))
	)
	for ci := range m.Cells {
		c := &m.Cells[ci]
		for fi := range c.Faces {
			f := &c.Faces[fi]
			if !f.Neighbor.IsBoundary() {
				continue
			}
			var ctr r3.Vec
			for _, v := range f.VertexIDs {
				ctr = r3.Add(ctr, m.Vertices[v])
			}
			ctr = r3.Scale(1./float64(len(f.VertexIDs)), ctr)
			for axis := 0; axis < dim; axis++ {
				x, l, h := component(ctr, axis), component(lo, axis), component(hi, axis)
				if math.Abs(x-l) < tol {
					f.Neighbor = BoundaryNeighbor(2 * axis)
					break
				}
				if math.Abs(x-h) < tol {
					f.Neighbor = BoundaryNeighbor(2*axis + 1)
					break
				}
			}
		}
	}
}

func bounds(verts []r3.Vec) (lo, hi r3.Vec) {
	lo, hi = verts[0], verts[0]
	for _, v := range verts[1:] {
		lo = r3.Vec{X: math.Min(lo.X, v.X), Y: math.Min(lo.Y, v.Y), Z: math.Min(lo.Z, v.Z)}
		hi = r3.Vec{X: math.Max(hi.X, v.X), Y: math.Max(hi.Y, v.Y), Z: math.Max(hi.Z, v.Z)}
	}
	return
}

func component(v r3.Vec, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// ElementType is a linear Gmsh element shape.
type ElementType int

const (
	Point ElementType = iota
	Line
	Triangle
	Quad
	Tet
	Hex
	Prism
	Pyramid
)

func (e ElementType) String() string {
	return [...]string{"Point", "Line", "Triangle", "Quad", "Tet", "Hex", "Prism", "Pyramid"}[e]
}

func (e ElementType) Dimension() int {
	switch e {
	case Point:
		return 0
	case Line:
		return 1
	case Triangle, Quad:
		return 2
	default:
		return 3
	}
}

// CellType maps an element shape to the cell geometry that carries it.
func (e ElementType) CellType() CellType {
	switch e.Dimension() {
	case 1:
		return Slab
	case 2:
		return Polygon
	default:
		return Polyhedron
	}
}

// ElementFaces returns the faces of an element as vertex lists. Polygon faces
// are its edges in cyclic order, polyhedron faces are cyclic vertex loops.
func ElementFaces(elemType ElementType, vertices []int) [][]int {
	switch elemType {
	case Line:
		return [][]int{{vertices[0]}, {vertices[1]}}
	case Triangle, Quad:
		n := len(vertices)
		faces := make([][]int, n)
		for i := 0; i < n; i++ {
			faces[i] = []int{vertices[i], vertices[(i+1)%n]}
		}
		return faces
	case Tet:
		return [][]int{
			{vertices[0], vertices[2], vertices[1]},
			{vertices[0], vertices[1], vertices[3]},
			{vertices[1], vertices[2], vertices[3]},
			{vertices[0], vertices[3], vertices[2]},
		}
	case Hex:
		return [][]int{
			{vertices[0], vertices[3], vertices[2], vertices[1]}, // bottom
			{vertices[4], vertices[5], vertices[6], vertices[7]}, // top
			{vertices[0], vertices[1], vertices[5], vertices[4]},
			{vertices[1], vertices[2], vertices[6], vertices[5]},
			{vertices[2], vertices[3], vertices[7], vertices[6]},
			{vertices[3], vertices[0], vertices[4], vertices[7]},
		}
	case Prism:
		return [][]int{
			{vertices[0], vertices[2], vertices[1]},
			{vertices[3], vertices[4], vertices[5]},
			{vertices[0], vertices[1], vertices[4], vertices[3]},
			{vertices[1], vertices[2], vertices[5], vertices[4]},
			{vertices[2], vertices[0], vertices[3], vertices[5]},
		}
	case Pyramid:
		return [][]int{
			{vertices[0], vertices[3], vertices[2], vertices[1]},
			{vertices[0], vertices[1], vertices[4]},
			{vertices[1], vertices[2], vertices[4]},
			{vertices[2], vertices[3], vertices[4]},
			{vertices[3], vertices[0], vertices[4]},
		}
	default:
		return [][]int{}
	}
}
