// Package mesh is the cell model consumed by the discretization: cells with
// vertices, faces and neighbor descriptors, split across ranks into local and
// ghost cells. Neighbors are always plain values, never references into
// another rank's memory.
package mesh

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// CellType is the closed set of cell geometries.
type CellType uint8

const (
	Slab CellType = iota
	Polygon
	Polyhedron
)

func (c CellType) String() string {
	return [...]string{"Slab", "Polygon", "Polyhedron"}[c]
}

// Dimension of the cell's own space.
func (c CellType) Dimension() int {
	return int(c) + 1
}

type NeighborKind uint8

const (
	Boundary NeighborKind = iota
	Local
	Ghost
)

func (n NeighborKind) String() string {
	return [...]string{"Boundary", "Local", "Ghost"}[n]
}

// Neighbor describes what lies across a face. For Local, LocalID indexes the
// cells of the same rank (or the global cell list of an unpartitioned Mesh).
// For Ghost, the cell is RemoteID in the local numbering of rank Rank.
type Neighbor struct {
	Kind       NeighborKind
	LocalID    int
	Rank       int
	RemoteID   int
	BoundaryID int
}

func LocalNeighbor(id int) Neighbor { return Neighbor{Kind: Local, LocalID: id} }

func GhostNeighbor(rank, remoteID int) Neighbor {
	return Neighbor{Kind: Ghost, Rank: rank, RemoteID: remoteID}
}

func BoundaryNeighbor(bid int) Neighbor { return Neighbor{Kind: Boundary, BoundaryID: bid} }

func (n Neighbor) IsBoundary() bool { return n.Kind == Boundary }

// Key returns the ghost directory key of a ghost neighbor.
func (n Neighbor) Key() GhostKey { return GhostKey{Rank: n.Rank, RemoteID: n.RemoteID} }

// GhostKey identifies a cell owned by another rank.
type GhostKey struct {
	Rank, RemoteID int
}

func (k GhostKey) String() string { return fmt.Sprintf("(%d,%d)", k.Rank, k.RemoteID) }

type Face struct {
	VertexIDs []int // cyclic for polyhedron faces, the edge for polygons, one vertex for slabs
	Neighbor  Neighbor
}

type Cell struct {
	GlobalID   int
	LocalID    int
	Owner      int
	Type       CellType
	VertexIDs  []int // one node per vertex
	Faces      []Face
	MaterialID int
}

// NumNodes is the number of PWL nodes, one per vertex.
func (c *Cell) NumNodes() int { return len(c.VertexIDs) }

func (c *Cell) Clone() Cell {
	cc := *c
	cc.VertexIDs = append([]int(nil), c.VertexIDs...)
	cc.Faces = make([]Face, len(c.Faces))
	for i, f := range c.Faces {
		cc.Faces[i] = Face{VertexIDs: append([]int(nil), f.VertexIDs...), Neighbor: f.Neighbor}
	}
	return cc
}

// Centroid is the vertex average.
func (c *Cell) Centroid(verts []r3.Vec) (ctr r3.Vec) {
	for _, v := range c.VertexIDs {
		ctr = r3.Add(ctr, verts[v])
	}
	return r3.Scale(1./float64(len(c.VertexIDs)), ctr)
}

// FaceKey identifies a face by its sorted vertex set, independent of the
// cell it is seen from.
func FaceKey(vertexIDs []int) string {
	sorted := append([]int(nil), vertexIDs...)
	sort.Ints(sorted)
	var sb strings.Builder
	for i, v := range sorted {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(v))
	}
	return sb.String()
}

// Mesh is the global, not yet partitioned mesh. Face neighbors of kind Local
// hold global cell ids.
type Mesh struct {
	Vertices     []r3.Vec
	Cells        []Cell
	BoundaryTags map[string]int // FaceKey -> boundary id, applied to unmatched faces
}

func NewMesh() *Mesh {
	return &Mesh{BoundaryTags: make(map[string]int)}
}

func (m *Mesh) NumCells() int { return len(m.Cells) }

// AddCell appends a cell, assigning its global id, with every face marked as
// boundary until BuildConnectivity runs.
func (m *Mesh) AddCell(t CellType, vertexIDs []int, faces [][]int, materialID int) int {
	id := len(m.Cells)
	c := Cell{
		GlobalID:   id,
		LocalID:    id,
		Type:       t,
		VertexIDs:  vertexIDs,
		Faces:      make([]Face, len(faces)),
		MaterialID: materialID,
	}
	for i, fv := range faces {
		c.Faces[i] = Face{VertexIDs: fv, Neighbor: BoundaryNeighbor(0)}
	}
	m.Cells = append(m.Cells, c)
	return id
}

func (m *Mesh) Validate() error {
	for i := range m.Cells {
		c := &m.Cells[i]
		if len(c.VertexIDs) < 2 {
			return fmt.Errorf("cell %d has %d vertices", i, len(c.VertexIDs))
		}
		for _, v := range c.VertexIDs {
			if v < 0 || v >= len(m.Vertices) {
				return fmt.Errorf("cell %d references vertex %d out of range [0,%d)", i, v, len(m.Vertices))
			}
		}
		for f, face := range c.Faces {
			if face.Neighbor.Kind == Local &&
				(face.Neighbor.LocalID < 0 || face.Neighbor.LocalID >= len(m.Cells)) {
				return fmt.Errorf("cell %d face %d references cell %d out of range [0,%d)",
					i, f, face.Neighbor.LocalID, len(m.Cells))
			}
		}
	}
	return nil
}

func (m *Mesh) PrintStatistics() {
	typeCounts := make(map[CellType]int)
	boundaryFaces := 0
	for i := range m.Cells {
		typeCounts[m.Cells[i].Type]++
		for _, f := range m.Cells[i].Faces {
			if f.Neighbor.IsBoundary() {
				boundaryFaces++
			}
		}
	}
	fmt.Printf("Mesh Statistics:\n")
	fmt.Printf("  Vertices: %d\n", len(m.Vertices))
	fmt.Printf("  Cells: %d\n", len(m.Cells))
	for _, t := range []CellType{Slab, Polygon, Polyhedron} {
		if n := typeCounts[t]; n != 0 {
			fmt.Printf("    %s: %d\n", t, n)
		}
	}
	fmt.Printf("  Boundary faces: %d\n", boundaryFaces)
}
