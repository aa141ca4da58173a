package pwl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/gopwld/mesh"
)

func interiorFace(t *testing.T, cv *CellView) int {
	t.Helper()
	for f := range cv.Faces {
		if !cv.Faces[f].Neighbor.IsBoundary() {
			return f
		}
	}
	t.Fatalf("cell %d has no interior face", cv.GlobalID)
	return -1
}

// The neighbor basis seen through a ghost must be identical to the one seen
// through a local neighbor.
func TestGhostCouplingMatchesLocal(t *testing.T) {
	for name, m := range testMeshes(t) {
		serial := runRanks(t, m, 1)[0].d
		for NP := 2; NP <= 3; NP++ {
			for _, r := range runRanks(t, m, NP) {
				views, err := r.d.CellViews()
				require.NoError(t, err)
				for id, cv := range views {
					ref, err := serial.CellView(cv.GlobalID)
					require.NoError(t, err)
					for f := range cv.Faces {
						if cv.Faces[f].Neighbor.IsBoundary() {
							assert.Nil(t, cv.Faces[f].Coupling)
							continue
						}
						got, err := r.d.NeighborFaceValues(id, f)
						require.NoError(t, err)
						want := ref.Faces[f].Coupling
						require.NotNil(t, want)
						assert.Equal(t, want.Shape, got.Shape, "%s NP=%d cell %d face %d", name, NP, cv.GlobalID, f)
						assert.Equal(t, want.Grad, got.Grad)
						assert.Equal(t, want.VertexIDs, got.VertexIDs)
						assert.Equal(t, want.CharLength, got.CharLength)
						assert.Equal(t, cv.Faces[f].Neighbor, got.Neighbor)
					}
				}
			}
		}
	}
}

func TestCouplingProperties(t *testing.T) {
	for name, m := range testMeshes(t) {
		for _, r := range runRanks(t, m, 2) {
			views, err := r.d.CellViews()
			require.NoError(t, err)
			for _, cv := range views {
				for f := range cv.Faces {
					fv := &cv.Faces[f]
					if fv.Coupling == nil {
						continue
					}
					cp := fv.Coupling
					for q, qp := range fv.QP {
						var (
							sum  float64
							grad r3.Vec
							x    r3.Vec
						)
						for k := 0; k < cp.NumNodes; k++ {
							sum += cp.Shape[q][k]
							grad = r3.Add(grad, cp.Grad[q][k])
							x = r3.Add(x, r3.Scale(cp.Shape[q][k], r.d.Partition().Vertices[cp.VertexIDs[k]]))
						}
						assert.InDelta(t, 1., sum, tol, name)
						assert.InDelta(t, 0., r3.Norm(grad), tol, name)
						// the neighbor basis reproduces the quadrature point
						assert.InDelta(t, 0., r3.Norm(r3.Sub(x, qp.Position)), tol, name)
					}
				}
			}
		}
	}
}

func TestNeighborViewIsReduced(t *testing.T) {
	m, err := mesh.NewOrthoMesh2D(mesh.Linspace(0, 2, 2), []float64{0, 1})
	require.NoError(t, err)
	results := runRanks(t, m, 2)
	d := results[0].d
	assert.Equal(t, 1, d.NumNeighborViews())
	nv, err := d.NeighborView(mesh.GhostKey{Rank: 1, RemoteID: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, nv.GlobalID)
	assert.Equal(t, 4, nv.NumNodes)
	assert.InDelta(t, 1., nv.CharLength, tol)
	// only the side on the shared face is kept
	assert.Len(t, nv.sideGrads, 1)

	_, err = d.NeighborView(mesh.GhostKey{Rank: 1, RemoteID: 3})
	assert.ErrorIs(t, err, ErrGhostDirectory)

	id := 0
	cv, err := d.CellView(id)
	require.NoError(t, err)
	f := interiorFace(t, cv)
	_, err = d.NeighborFaceValues(id, f)
	assert.NoError(t, err)
	_, err = d.NeighborFaceValues(id, (f+1)%4)
	assert.Error(t, err)
}
