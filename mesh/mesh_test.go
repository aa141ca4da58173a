package mesh

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlabMesh(t *testing.T) {
	m, err := NewSlabMesh(Linspace(0, 1, 4))
	require.NoError(t, err)
	assert.Equal(t, 4, m.NumCells())
	assert.Equal(t, 5, len(m.Vertices))

	left := m.Cells[0].Faces[0].Neighbor
	assert.True(t, left.IsBoundary())
	assert.Equal(t, 0, left.BoundaryID)
	right := m.Cells[3].Faces[1].Neighbor
	assert.True(t, right.IsBoundary())
	assert.Equal(t, 1, right.BoundaryID)

	for i := 0; i < 3; i++ {
		assert.Equal(t, LocalNeighbor(i+1), m.Cells[i].Faces[1].Neighbor)
		assert.Equal(t, LocalNeighbor(i), m.Cells[i+1].Faces[0].Neighbor)
	}

	_, err = NewSlabMesh([]float64{0})
	assert.Error(t, err)
}

func countFaces(m *Mesh) (interior, boundary int) {
	for i := range m.Cells {
		for _, f := range m.Cells[i].Faces {
			if f.Neighbor.IsBoundary() {
				boundary++
			} else {
				interior++
			}
		}
	}
	return
}

func TestOrthoMeshes(t *testing.T) {
	m2, err := NewOrthoMesh2D(Linspace(0, 1, 3), Linspace(0, 2, 2))
	require.NoError(t, err)
	assert.Equal(t, 6, m2.NumCells())
	interior, boundary := countFaces(m2)
	// 7 interior edges seen from both sides, 10 boundary edges
	assert.Equal(t, 14, interior)
	assert.Equal(t, 10, boundary)

	m3, err := NewOrthoMesh3D(Linspace(0, 1, 2), Linspace(0, 1, 2), Linspace(0, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, 8, m3.NumCells())
	interior, boundary = countFaces(m3)
	assert.Equal(t, 24, interior)
	assert.Equal(t, 24, boundary)
	ids := make(map[int]int)
	for i := range m3.Cells {
		for _, f := range m3.Cells[i].Faces {
			if f.Neighbor.IsBoundary() {
				ids[f.Neighbor.BoundaryID]++
			}
		}
	}
	for bid := 0; bid < 6; bid++ {
		assert.Equal(t, 4, ids[bid], "boundary %d", bid)
	}
}

func TestBuildConnectivityRejectsNonManifold(t *testing.T) {
	m, err := NewSlabMesh([]float64{0, 1, 2})
	require.NoError(t, err)
	// a third cell sharing vertex 1
	m.AddCell(Slab, []int{1, 2}, [][]int{{1}, {2}}, 0)
	assert.Error(t, m.BuildConnectivity())
}

func TestFaceKey(t *testing.T) {
	assert.Equal(t, FaceKey([]int{3, 1, 2}), FaceKey([]int{2, 3, 1}))
	assert.Equal(t, "1,2,3", FaceKey([]int{3, 1, 2}))
	assert.NotEqual(t, FaceKey([]int{1, 2}), FaceKey([]int{12}))
}

func TestBlockPartition(t *testing.T) {
	EToP := BlockPartition(10, 3)
	assert.Equal(t, []int{0, 0, 0, 0, 1, 1, 1, 2, 2, 2}, EToP)
	assert.Equal(t, []int{0, 0}, BlockPartition(2, 1))
	// more ranks than cells leaves trailing ranks empty
	assert.Equal(t, []int{0, 1}, BlockPartition(2, 4))
}

func TestSplit(t *testing.T) {
	m, err := NewOrthoMesh2D(Linspace(0, 1, 2), Linspace(0, 1, 2))
	require.NoError(t, err)
	// cells: 0 1 / 2 3 ; rank 0 gets 0 and 3, rank 1 gets 1 and 2
	parts, err := Split(m, []int{0, 1, 1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, parts, 2)

	p0, p1 := parts[0], parts[1]
	assert.Equal(t, 2, len(p0.LocalCells))
	assert.Equal(t, 2, len(p1.LocalCells))
	assert.Equal(t, 2, len(p0.GhostCells))
	assert.Equal(t, []int{0, 3}, []int{p0.LocalCells[0].GlobalID, p0.LocalCells[1].GlobalID})
	assert.Equal(t, []int{1, 2}, []int{p1.LocalCells[0].GlobalID, p1.LocalCells[1].GlobalID})

	for _, p := range parts {
		assert.Equal(t, uint64(1), p.Version)
		for i, c := range p.LocalCells {
			assert.Equal(t, i, c.LocalID)
			assert.Equal(t, p.Rank, c.Owner)
			for _, f := range c.Faces {
				switch f.Neighbor.Kind {
				case Local:
					t.Errorf("checkerboard split has no same-rank neighbors")
				case Ghost:
					g, ok := p.Ghost(f.Neighbor.Key())
					require.True(t, ok)
					assert.Equal(t, 1-p.Rank, g.Owner)
					// the ghost sees this cell back as a local neighbor
					found := false
					for _, gf := range g.Faces {
						if gf.Neighbor.Kind == Local && gf.Neighbor.LocalID == i {
							found = true
						}
					}
					assert.True(t, found)
				}
			}
		}
	}
	p0.Touch()
	assert.Equal(t, uint64(2), p0.Version)

	_, err = Split(m, []int{0, 1}, 2)
	assert.Error(t, err)
	_, err = Split(m, []int{0, 1, 2, 0}, 2)
	assert.Error(t, err)
}

func TestNewPartitionRejectsOwnGhost(t *testing.T) {
	m, err := NewSlabMesh(Linspace(0, 1, 2))
	require.NoError(t, err)
	local := []Cell{m.Cells[0].Clone()}
	ghost := m.Cells[1].Clone()
	ghost.LocalID, ghost.Owner = 0, 0
	_, err = NewPartition(0, 2, 2, m.Vertices, local, []Cell{ghost})
	assert.Error(t, err)
}

func TestMetisPartitionSingle(t *testing.T) {
	m, err := NewSlabMesh(Linspace(0, 1, 5))
	require.NoError(t, err)
	EToP, err := MetisPartition(m, DefaultPartitionConfig(1))
	require.NoError(t, err)
	assert.Equal(t, make([]int, 5), EToP)
	_, err = MetisPartition(m, DefaultPartitionConfig(0))
	assert.Error(t, err)
}

func TestMetisPartition(t *testing.T) {
	m, err := NewOrthoMesh2D(Linspace(0, 1, 4), Linspace(0, 1, 4))
	require.NoError(t, err)
	EToP, err := MetisPartition(m, DefaultPartitionConfig(2))
	require.NoError(t, err)
	require.Len(t, EToP, 16)
	counts := make([]int, 2)
	for _, p := range EToP {
		require.True(t, p == 0 || p == 1)
		counts[p]++
	}
	assert.Greater(t, counts[0], 0)
	assert.Greater(t, counts[1], 0)
}

func TestMetisGraph(t *testing.T) {
	m, err := NewSlabMesh(Linspace(0, 1, 3))
	require.NoError(t, err)
	xadj, adjncy, vwgt, adjwgt := buildMetisGraph(m)
	assert.Equal(t, []int32{0, 1, 3, 4}, xadj)
	assert.Equal(t, []int32{1, 0, 2, 1}, adjncy)
	assert.Equal(t, []int32{4, 4, 4}, vwgt)
	assert.Equal(t, []int32{1, 1, 1, 1}, adjwgt)
}

func writeMsh(t *testing.T, content string) string {
	t.Helper()
	fileName := filepath.Join(t.TempDir(), "test.msh")
	require.NoError(t, os.WriteFile(fileName, []byte(content), 0644))
	return fileName
}

func TestReadGmsh22(t *testing.T) {
	// two triangles with tagged outer edges, arbitrary node ids
	content := `$MeshFormat
2.2 0 8
$EndMeshFormat
$PhysicalNames
2
1 7 "wall"
2 3 "fuel"
$EndPhysicalNames
$Nodes
4
10 0 0 0
20 1 0 0
30 1 1 0
40 0 1 0
$EndNodes
$Elements
4
1 1 2 7 1 10 20
2 1 2 7 1 20 30
3 2 2 3 1 10 20 30
4 2 2 3 1 10 30 40
$EndElements
`
	m, err := ReadGmsh22(writeMsh(t, content))
	require.NoError(t, err)
	assert.Equal(t, 4, len(m.Vertices))
	require.Equal(t, 2, m.NumCells())
	for _, c := range m.Cells {
		assert.Equal(t, Polygon, c.Type)
		assert.Equal(t, 3, c.MaterialID)
	}
	interior, boundary := countFaces(m)
	assert.Equal(t, 2, interior)
	assert.Equal(t, 4, boundary)
	// tagged edges carry id 7, the others keep 0
	tagged := 0
	for _, f := range m.Cells[0].Faces {
		if f.Neighbor.IsBoundary() && f.Neighbor.BoundaryID == 7 {
			tagged++
		}
	}
	assert.Equal(t, 2, tagged)
}

func TestReadGmsh22Errors(t *testing.T) {
	_, err := ReadGmsh22(filepath.Join(t.TempDir(), "missing.msh"))
	assert.Error(t, err)

	binary := "$MeshFormat\n2.2 1 8\n$EndMeshFormat\n"
	_, err = ReadGmsh22(writeMsh(t, binary))
	assert.Error(t, err)

	badNode := "$MeshFormat\n2.2 0 8\n$EndMeshFormat\n$Nodes\n1\n1 0 0 0\n$EndNodes\n" +
		"$Elements\n1\n1 1 0 1 2\n$EndElements\n"
	_, err = ReadGmsh22(writeMsh(t, badNode))
	assert.Error(t, err)

	secondOrder := "$MeshFormat\n2.2 0 8\n$EndMeshFormat\n$Nodes\n0\n$EndNodes\n" +
		"$Elements\n1\n1 9 0 1 2 3 4 5 6\n$EndElements\n"
	_, err = ReadGmsh22(writeMsh(t, secondOrder))
	assert.Error(t, err)
}
