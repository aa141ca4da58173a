package pwl

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gopwld/comm"
	"github.com/notargets/gopwld/mesh"
	"github.com/notargets/gopwld/unknowns"
)

// rankResult is what each rank reports back to the test goroutine.
type rankResult struct {
	d               *Discretization
	ordering        *Ordering
	local, global   int
	nnzDiag, nnzOff []int
	localAddrs      []int
	globalAddrs     []int
}

func initialize(c *comm.Comm, d *Discretization) error {
	if err := d.PreComputeCellSDValues(); err != nil {
		return err
	}
	if err := d.PreComputeNeighborCellSDValues(); err != nil {
		return err
	}
	if err := c.Barrier(); err != nil {
		return err
	}
	_, _, err := d.OrderNodes(c)
	return err
}

// runRanks splits m into NP contiguous blocks and initializes a
// discretization on every rank.
func runRanks(t *testing.T, m *mesh.Mesh, NP int) []rankResult {
	t.Helper()
	parts, err := mesh.Split(m, mesh.BlockPartition(m.NumCells(), NP), NP)
	require.NoError(t, err)
	results := make([]rankResult, NP)
	err = comm.Run(NP, func(c *comm.Comm) (err error) {
		r := &results[c.Rank()]
		r.d = New(parts[c.Rank()])
		if err = initialize(c, r.d); err != nil {
			return
		}
		if r.local, r.global, err = r.d.OrderNodes(c); err != nil {
			return
		}
		if r.ordering, err = r.d.Ordering(); err != nil {
			return
		}
		if r.nnzDiag, r.nnzOff, err = r.d.BuildSparsityPattern(nil); err != nil {
			return
		}
		for id, cell := range r.d.Partition().LocalCells {
			for node := 0; node < cell.NumNodes(); node++ {
				var l, g int
				if l, err = r.d.MapDOFLocal(id, node, nil, 0, 0); err != nil {
					return
				}
				if g, err = r.d.MapDOF(id, node, nil, 0, 0); err != nil {
					return
				}
				r.localAddrs = append(r.localAddrs, l)
				r.globalAddrs = append(r.globalAddrs, g)
			}
		}
		return
	})
	require.NoError(t, err)
	return results
}

func testMeshes(t *testing.T) map[string]*mesh.Mesh {
	slab, err := mesh.NewSlabMesh(mesh.Linspace(0, 1, 7))
	require.NoError(t, err)
	quads, err := mesh.NewOrthoMesh2D(mesh.Linspace(0, 1, 3), mesh.Linspace(0, 1, 3))
	require.NoError(t, err)
	hexes, err := mesh.NewOrthoMesh3D(mesh.Linspace(0, 1, 2), mesh.Linspace(0, 1, 2), mesh.Linspace(0, 1, 2))
	require.NoError(t, err)
	return map[string]*mesh.Mesh{"slab": slab, "quads": quads, "hexes": hexes}
}

func TestOrderingBijection(t *testing.T) {
	for name, m := range testMeshes(t) {
		nodes := 0
		for i := range m.Cells {
			nodes += m.Cells[i].NumNodes()
		}
		for NP := 1; NP <= 4; NP++ {
			results := runRanks(t, m, NP)
			var (
				all      []int
				localSum int
			)
			for rank, r := range results {
				localSum += r.local
				assert.Equal(t, nodes, r.global, "%s NP=%d", name, NP)
				assert.Equal(t, r.local, r.ordering.LocalDOFCount)

				// local addresses tile [0, local)
				la := append([]int(nil), r.localAddrs...)
				sort.Ints(la)
				for i, a := range la {
					require.Equal(t, i, a, "%s NP=%d rank %d", name, NP, rank)
				}
				for i, g := range r.globalAddrs {
					assert.Equal(t, r.ordering.RankOffset+r.localAddrs[i], g)
					assert.True(t, r.ordering.IsLocal(g))
					assert.Equal(t, rank, r.ordering.OwnerOfGlobal(g))
				}
				all = append(all, r.globalAddrs...)
			}
			// global addresses of all ranks tile [0, global)
			assert.Equal(t, nodes, localSum)
			sort.Ints(all)
			for i, a := range all {
				require.Equal(t, i, a, "%s NP=%d", name, NP)
			}
			// every ghost entry agrees with its owner's numbering
			for _, r := range results {
				for key, g := range r.ordering.Ghosts {
					owner := results[key.Rank].ordering
					assert.Equal(t, owner.RankOffset+owner.CellOffsets[key.RemoteID], g.GlobalOffset)
					assert.Equal(t, results[key.Rank].d.Partition().LocalCells[key.RemoteID].NumNodes(), g.NumNodes)
				}
			}
		}
	}
}

func TestOwnerOfGlobal(t *testing.T) {
	o := &Ordering{GlobalDOFCount: 10, RankOffsets: []int{0, 4, 4, 10}}
	assert.Equal(t, 0, o.OwnerOfGlobal(0))
	assert.Equal(t, 0, o.OwnerOfGlobal(3))
	// rank 1 owns nothing
	assert.Equal(t, 2, o.OwnerOfGlobal(4))
	assert.Equal(t, 2, o.OwnerOfGlobal(9))
	assert.Equal(t, -1, o.OwnerOfGlobal(10))
	assert.Equal(t, -1, o.OwnerOfGlobal(-1))
}

func TestSparsitySingleCell(t *testing.T) {
	for _, m := range []func() (*mesh.Mesh, error){
		func() (*mesh.Mesh, error) { return mesh.NewSlabMesh([]float64{0, 1}) },
		func() (*mesh.Mesh, error) { return mesh.NewOrthoMesh2D([]float64{0, 1}, []float64{0, 1}) },
		func() (*mesh.Mesh, error) {
			return mesh.NewOrthoMesh3D([]float64{0, 1}, []float64{0, 1}, []float64{0, 1})
		},
	} {
		msh, err := m()
		require.NoError(t, err)
		N := msh.Cells[0].NumNodes()
		r := runRanks(t, msh, 1)[0]
		assert.Equal(t, N, r.local)
		assert.Equal(t, N, r.global)
		for row := 0; row < N; row++ {
			assert.Equal(t, N, r.nnzDiag[row])
			assert.Equal(t, 0, r.nnzOff[row])
		}
	}
}

func TestSparsitySlabScenarios(t *testing.T) {
	m, err := mesh.NewSlabMesh(mesh.Linspace(0, 1, 4))
	require.NoError(t, err)

	serial := runRanks(t, m, 1)[0]
	assert.Equal(t, 8, serial.local)
	assert.Equal(t, 8, serial.global)
	assert.Equal(t, []int{4, 4, 6, 6, 6, 6, 4, 4}, serial.nnzDiag)
	assert.Equal(t, make([]int, 8), serial.nnzOff)

	split := runRanks(t, m, 2)
	for _, r := range split {
		assert.Equal(t, 4, r.local)
		assert.Equal(t, 8, r.global)
	}
	assert.Equal(t, []int{4, 4, 4, 4}, split[0].nnzDiag)
	assert.Equal(t, []int{0, 0, 2, 2}, split[0].nnzOff)
	assert.Equal(t, []int{4, 4, 4, 4}, split[1].nnzDiag)
	assert.Equal(t, []int{2, 2, 0, 0}, split[1].nnzOff)
}

func TestSparsityTwoRankSymmetry(t *testing.T) {
	quads, err := mesh.NewOrthoMesh2D(mesh.Linspace(0, 2, 2), []float64{0, 1})
	require.NoError(t, err)
	slabs, err := mesh.NewSlabMesh(mesh.Linspace(0, 2, 2))
	require.NoError(t, err)
	for _, m := range []*mesh.Mesh{quads, slabs} {
		N := m.Cells[0].NumNodes()
		results := runRanks(t, m, 2)
		for _, r := range results {
			for row := range r.nnzOff {
				assert.Equal(t, N, r.nnzDiag[row])
				assert.Equal(t, N, r.nnzOff[row])
			}
		}
		assert.Equal(t, results[0].nnzOff, results[1].nnzOff)
	}
}

// With contiguous block partitions the global numbering matches the serial
// one, so each row's total coupling must match the serial row.
func TestSparsityMatchesSerial(t *testing.T) {
	for name, m := range testMeshes(t) {
		serial := runRanks(t, m, 1)[0]
		for NP := 2; NP <= 4; NP++ {
			var total []int
			for _, r := range runRanks(t, m, NP) {
				for row := range r.nnzDiag {
					total = append(total, r.nnzDiag[row]+r.nnzOff[row])
					assert.LessOrEqual(t, r.nnzDiag[row], r.local)
				}
			}
			assert.Equal(t, serial.nnzDiag, total, "%s NP=%d", name, NP)
		}
	}
}

func TestSparsityComponents(t *testing.T) {
	m, err := mesh.NewSlabMesh(mesh.Linspace(0, 1, 2))
	require.NoError(t, err)
	parts, err := mesh.Split(m, []int{0, 1}, 2)
	require.NoError(t, err)
	diags := make([][]int, 2)
	offs := make([][]int, 2)
	addrs := make([][]int, 2)
	require.NoError(t, comm.Run(2, func(c *comm.Comm) (err error) {
		d := New(parts[c.Rank()])
		if err = initialize(c, d); err != nil {
			return
		}
		uk := unknowns.NewManager()
		uk.AddUnknown(unknowns.Scalar)
		flux := uk.AddUnknown(unknowns.Vector2)
		if diags[c.Rank()], offs[c.Rank()], err = d.BuildSparsityPattern(uk); err != nil {
			return
		}
		var a int
		if a, err = d.MapDOF(0, 1, uk, flux, 1); err != nil {
			return
		}
		addrs[c.Rank()] = append(addrs[c.Rank()], a)
		if c.Rank() == 1 {
			// node 1 of rank 0's only cell, seen as a ghost
			if a, err = d.MapGhostDOF(mesh.GhostKey{Rank: 0, RemoteID: 0}, 1, uk, flux, 1); err != nil {
				return
			}
			addrs[c.Rank()] = append(addrs[c.Rank()], a)
		}
		return
	}))
	for rank := 0; rank < 2; rank++ {
		assert.Len(t, diags[rank], 6)
		for row := range diags[rank] {
			assert.Equal(t, 6, diags[rank][row])
			assert.Equal(t, 6, offs[rank][row])
		}
	}
	// (offset + node) * 3 + MapUnknown(flux, 1)
	assert.Equal(t, []int{5}, addrs[0])
	assert.Equal(t, []int{11, 5}, addrs[1])
}

func TestLifecycle(t *testing.T) {
	m, err := mesh.NewSlabMesh(mesh.Linspace(0, 1, 4))
	require.NoError(t, err)
	parts, err := mesh.Split(m, make([]int, 4), 1)
	require.NoError(t, err)
	require.NoError(t, comm.Run(1, func(c *comm.Comm) error {
		d := New(parts[0])
		_, _, err := d.OrderNodes(c)
		assert.ErrorIs(t, err, ErrStale)
		assert.ErrorIs(t, d.PreComputeNeighborCellSDValues(), ErrStale)
		_, _, err = d.BuildSparsityPattern(nil)
		assert.ErrorIs(t, err, ErrStale)

		if err = initialize(c, d); err != nil {
			return err
		}
		first, err := d.Ordering()
		if err != nil {
			return err
		}
		// no-op on a current context
		if _, _, err = d.OrderNodes(c); err != nil {
			return err
		}
		second, _ := d.Ordering()
		assert.Same(t, first, second)

		// a mesh change makes every later step stale until recomputed
		d.Partition().Touch()
		_, _, err = d.BuildSparsityPattern(nil)
		assert.ErrorIs(t, err, ErrStale)
		_, _, err = d.OrderNodes(c)
		assert.ErrorIs(t, err, ErrStale)
		_, err = d.MapDOF(0, 0, nil, 0, 0)
		assert.ErrorIs(t, err, ErrNotComputed)

		if err = initialize(c, d); err != nil {
			return err
		}
		third, _ := d.Ordering()
		assert.NotSame(t, first, third)
		assert.Equal(t, first.CellOffsets, third.CellOffsets)
		_, _, err = d.BuildSparsityPattern(nil)
		return err
	}))
}

func TestGhostDirectoryMissingCell(t *testing.T) {
	m, err := mesh.NewSlabMesh(mesh.Linspace(0, 2, 2))
	require.NoError(t, err)
	// rank 0 believes its neighbor is cell 5 of rank 1, which does not exist
	c0 := m.Cells[0].Clone()
	c0.Faces[1].Neighbor = mesh.GhostNeighbor(1, 5)
	g1 := m.Cells[1].Clone()
	g1.Owner, g1.LocalID = 1, 5
	g1.Faces[0].Neighbor = mesh.LocalNeighbor(0)

	c1 := m.Cells[1].Clone()
	c1.LocalID, c1.Owner = 0, 1
	c1.Faces[0].Neighbor = mesh.GhostNeighbor(0, 0)
	g0 := m.Cells[0].Clone()
	g0.Faces[1].Neighbor = mesh.LocalNeighbor(0)

	p0, err := mesh.NewPartition(0, 2, 2, m.Vertices, []mesh.Cell{c0}, []mesh.Cell{g1})
	require.NoError(t, err)
	p1, err := mesh.NewPartition(1, 2, 2, m.Vertices, []mesh.Cell{c1}, []mesh.Cell{g0})
	require.NoError(t, err)
	parts := []*mesh.Partition{p0, p1}

	err = comm.Run(2, func(c *comm.Comm) error {
		return initialize(c, New(parts[c.Rank()]))
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGhostDirectory)
}

func TestGhostDirectoryNodeMismatch(t *testing.T) {
	m, err := mesh.NewOrthoMesh2D(mesh.Linspace(0, 2, 2), []float64{0, 1})
	require.NoError(t, err)
	parts, err := mesh.Split(m, []int{0, 1}, 2)
	require.NoError(t, err)
	// rank 0's copy of the ghost loses a vertex
	g := &parts[0].GhostCells[0]
	g.VertexIDs = g.VertexIDs[:3]
	err = comm.Run(2, func(c *comm.Comm) error {
		d := New(parts[c.Rank()])
		if err := d.PreComputeCellSDValues(); err != nil {
			return err
		}
		_, _, err := d.OrderNodes(c)
		return err
	})
	assert.ErrorIs(t, err, ErrGhostDirectory)
}
