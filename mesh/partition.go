package mesh

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Partition is one rank's view of a split mesh: the cells it owns plus
// read-only copies of the ghost cells across its partition boundary.
type Partition struct {
	Rank, NumRanks int
	NumGlobalCells int
	Vertices       []r3.Vec
	LocalCells     []Cell // LocalCells[i].LocalID == i
	GhostCells     []Cell // LocalID is the id on the owning rank
	ghostIndex     map[GhostKey]int
	// Version changes whenever the mesh state changes, invalidating anything
	// computed from it.
	Version uint64
}

// Ghost looks up a ghost cell by its owner and owner-local id.
func (p *Partition) Ghost(key GhostKey) (*Cell, bool) {
	i, ok := p.ghostIndex[key]
	if !ok {
		return nil, false
	}
	return &p.GhostCells[i], true
}

// NeighborCell resolves a Local or Ghost neighbor to its cell geometry.
func (p *Partition) NeighborCell(n Neighbor) (*Cell, bool) {
	switch n.Kind {
	case Local:
		if n.LocalID < 0 || n.LocalID >= len(p.LocalCells) {
			return nil, false
		}
		return &p.LocalCells[n.LocalID], true
	case Ghost:
		return p.Ghost(n.Key())
	}
	return nil, false
}

// Touch marks the mesh as modified.
func (p *Partition) Touch() { p.Version++ }

// NewPartition assembles a partition from already split cell lists.
func NewPartition(rank, numRanks, numGlobal int, verts []r3.Vec, local, ghosts []Cell) (*Partition, error) {
	p := &Partition{
		Rank:           rank,
		NumRanks:       numRanks,
		NumGlobalCells: numGlobal,
		Vertices:       verts,
		LocalCells:     local,
		GhostCells:     ghosts,
		ghostIndex:     make(map[GhostKey]int, len(ghosts)),
		Version:        1,
	}
	for i := range local {
		if local[i].LocalID != i {
			return nil, fmt.Errorf("rank %d: local cell %d carries local id %d", rank, i, local[i].LocalID)
		}
	}
	for i, g := range ghosts {
		key := GhostKey{Rank: g.Owner, RemoteID: g.LocalID}
		if g.Owner == rank {
			return nil, fmt.Errorf("rank %d: ghost cell %v is owned by this rank", rank, key)
		}
		p.ghostIndex[key] = i
	}
	return p, nil
}

// GlobalToLocal maps a global cell id to its owning partition and the local
// index within that partition. Local indices follow ascending global id.
type GlobalToLocal struct {
	PartitionID []int
	LocalIndex  []int
	Counts      []int
}

func NewGlobalToLocal(EToP []int, NP int) (*GlobalToLocal, error) {
	g2l := &GlobalToLocal{
		PartitionID: make([]int, len(EToP)),
		LocalIndex:  make([]int, len(EToP)),
		Counts:      make([]int, NP),
	}
	for globalIdx, partID := range EToP {
		if partID < 0 || partID >= NP {
			return nil, fmt.Errorf("cell %d assigned to partition %d, outside [0,%d)", globalIdx, partID, NP)
		}
		g2l.PartitionID[globalIdx] = partID
		g2l.LocalIndex[globalIdx] = g2l.Counts[partID]
		g2l.Counts[partID]++
	}
	return g2l, nil
}

// Split divides a global mesh into NP partitions according to EToP.
func Split(m *Mesh, EToP []int, NP int) ([]*Partition, error) {
	if len(EToP) != len(m.Cells) {
		return nil, fmt.Errorf("partition vector has %d entries for %d cells", len(EToP), len(m.Cells))
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	g2l, err := NewGlobalToLocal(EToP, NP)
	if err != nil {
		return nil, err
	}
	translate := func(rank int, n Neighbor) Neighbor {
		if n.Kind != Local {
			return n
		}
		g := n.LocalID
		if g2l.PartitionID[g] == rank {
			return LocalNeighbor(g2l.LocalIndex[g])
		}
		return GhostNeighbor(g2l.PartitionID[g], g2l.LocalIndex[g])
	}
	parts := make([]*Partition, NP)
	for rank := 0; rank < NP; rank++ {
		var (
			local    = make([]Cell, 0, g2l.Counts[rank])
			ghosts   []Cell
			ghostSet = make(map[int]bool)
		)
		for g := range m.Cells {
			if g2l.PartitionID[g] != rank {
				continue
			}
			c := m.Cells[g].Clone()
			c.LocalID, c.Owner = g2l.LocalIndex[g], rank
			for fi := range c.Faces {
				nbr := c.Faces[fi].Neighbor
				if nbr.Kind == Local && g2l.PartitionID[nbr.LocalID] != rank {
					ghostSet[nbr.LocalID] = true
				}
				c.Faces[fi].Neighbor = translate(rank, nbr)
			}
			local = append(local, c)
		}
		for g := range m.Cells {
			if !ghostSet[g] {
				continue
			}
			c := m.Cells[g].Clone()
			c.LocalID, c.Owner = g2l.LocalIndex[g], g2l.PartitionID[g]
			for fi := range c.Faces {
				c.Faces[fi].Neighbor = translate(rank, c.Faces[fi].Neighbor)
			}
			ghosts = append(ghosts, c)
		}
		if parts[rank], err = NewPartition(rank, NP, len(m.Cells), m.Vertices, local, ghosts); err != nil {
			return nil, err
		}
	}
	return parts, nil
}
