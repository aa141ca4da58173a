package mesh

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Linspace returns n+1 equally spaced points covering [min, max].
func Linspace(min, max float64, n int) []float64 {
	xs := make([]float64, n+1)
	for i := range xs {
		xs[i] = min + (max-min)*float64(i)/float64(n)
	}
	return xs
}

// NewSlabMesh builds a 1D mesh of slab cells along x with the given vertex
// coordinates. Boundary ids: 0 at the left end, 1 at the right end.
func NewSlabMesh(xs []float64) (*Mesh, error) {
	if len(xs) < 2 {
		return nil, fmt.Errorf("slab mesh needs at least two vertices, got %d", len(xs))
	}
	m := NewMesh()
	for _, x := range xs {
		m.Vertices = append(m.Vertices, r3.Vec{X: x})
	}
	for i := 0; i < len(xs)-1; i++ {
		verts := []int{i, i + 1}
		m.AddCell(Slab, verts, ElementFaces(Line, verts), 0)
	}
	return m.finish(1)
}

// NewOrthoMesh2D builds a mesh of quadrilateral polygons on the tensor grid
// xs × ys in the z=0 plane. Boundary ids: 0,1 = xmin,xmax; 2,3 = ymin,ymax.
func NewOrthoMesh2D(xs, ys []float64) (*Mesh, error) {
	if len(xs) < 2 || len(ys) < 2 {
		return nil, fmt.Errorf("ortho mesh needs at least two vertices per axis")
	}
	var (
		m  = NewMesh()
		nx = len(xs)
	)
	vid := func(i, j int) int { return i + j*nx }
	for _, y := range ys {
		for _, x := range xs {
			m.Vertices = append(m.Vertices, r3.Vec{X: x, Y: y})
		}
	}
	for j := 0; j < len(ys)-1; j++ {
		for i := 0; i < nx-1; i++ {
			verts := []int{vid(i, j), vid(i+1, j), vid(i+1, j+1), vid(i, j+1)}
			m.AddCell(Polygon, verts, ElementFaces(Quad, verts), 0)
		}
	}
	return m.finish(2)
}

// NewOrthoMesh3D builds a mesh of hexahedral polyhedra on the tensor grid
// xs × ys × zs. Boundary ids follow NewOrthoMesh2D with 4,5 = zmin,zmax.
func NewOrthoMesh3D(xs, ys, zs []float64) (*Mesh, error) {
	if len(xs) < 2 || len(ys) < 2 || len(zs) < 2 {
		return nil, fmt.Errorf("ortho mesh needs at least two vertices per axis")
	}
	var (
		m      = NewMesh()
		nx, ny = len(xs), len(ys)
	)
	vid := func(i, j, k int) int { return i + nx*(j+ny*k) }
	for _, z := range zs {
		for _, y := range ys {
			for _, x := range xs {
				m.Vertices = append(m.Vertices, r3.Vec{X: x, Y: y, Z: z})
			}
		}
	}
	for k := 0; k < len(zs)-1; k++ {
		for j := 0; j < ny-1; j++ {
			for i := 0; i < nx-1; i++ {
				verts := []int{
					vid(i, j, k), vid(i+1, j, k), vid(i+1, j+1, k), vid(i, j+1, k),
					vid(i, j, k+1), vid(i+1, j, k+1), vid(i+1, j+1, k+1), vid(i, j+1, k+1),
				}
				m.AddCell(Polyhedron, verts, ElementFaces(Hex, verts), 0)
			}
		}
	}
	return m.finish(3)
}

func (m *Mesh) finish(dim int) (*Mesh, error) {
	if err := m.BuildConnectivity(); err != nil {
		return nil, err
	}
	m.TagBoundariesByBox(dim)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
