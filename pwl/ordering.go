package pwl

import (
	"fmt"
	"sort"

	"github.com/notargets/gopwld/comm"
	"github.com/notargets/gopwld/mesh"
	"github.com/notargets/gopwld/unknowns"
)

// GhostEntry is what the owning rank reports about one of its cells.
type GhostEntry struct {
	GlobalOffset int // global address of node 0
	NumNodes     int
}

// Ordering is the distributed numbering of the PWLD nodes. Local addresses
// run over local cells in ascending local id, then over the nodes of each
// cell; the global address of a local node is RankOffset plus its local
// address, so every rank owns one contiguous global range.
type Ordering struct {
	LocalDOFCount  int
	GlobalDOFCount int
	RankOffset     int
	RankOffsets    []int // len NP+1, rank r owns [RankOffsets[r], RankOffsets[r+1])
	CellOffsets    []int // local address of node 0 of each local cell
	Ghosts         map[mesh.GhostKey]GhostEntry
}

// OwnerOfGlobal returns the rank owning global node address g.
func (o *Ordering) OwnerOfGlobal(g int) int {
	if g < 0 || g >= o.GlobalDOFCount {
		return -1
	}
	return sort.Search(len(o.RankOffsets)-1, func(r int) bool {
		return o.RankOffsets[r+1] > g
	})
}

func (o *Ordering) IsLocal(g int) bool {
	return g >= o.RankOffset && g < o.RankOffset+o.LocalDOFCount
}

// ghostReply answers one ghost directory request.
type ghostReply struct {
	RemoteID     int
	GlobalOffset int
	NumNodes     int // -1 when the owner has no such cell
}

// OrderNodes numbers the nodes of the local cells and resolves the global
// addresses of the ghost cells' nodes with their owners. It is collective:
// every rank must call it. Cell values must be current.
func (d *Discretization) OrderNodes(c *comm.Comm) (localCount, globalCount int, err error) {
	if !d.current(d.cellVersion) {
		return 0, 0, fmt.Errorf("%w: ordering needs current cell values", ErrStale)
	}
	if d.current(d.orderVersion) {
		return d.ordering.LocalDOFCount, d.ordering.GlobalDOFCount, nil
	}
	if c.Size() != d.part.NumRanks || c.Rank() != d.part.Rank {
		return 0, 0, fmt.Errorf("partition of rank %d/%d used on rank %d/%d",
			d.part.Rank, d.part.NumRanks, c.Rank(), c.Size())
	}
	d.sparsityVersion = 0

	o := &Ordering{
		CellOffsets: make([]int, len(d.cellViews)),
		Ghosts:      make(map[mesh.GhostKey]GhostEntry),
	}
	for i, cv := range d.cellViews {
		o.CellOffsets[i] = o.LocalDOFCount
		o.LocalDOFCount += cv.NumNodes
	}
	if o.RankOffset, err = c.ExScanInt(o.LocalDOFCount); err != nil {
		return
	}
	if o.GlobalDOFCount, err = c.AllReduceSumInt(o.LocalDOFCount); err != nil {
		return
	}
	counts, err := c.AllGatherInts(o.LocalDOFCount)
	if err != nil {
		return
	}
	o.RankOffsets = make([]int, len(counts)+1)
	for r, n := range counts {
		o.RankOffsets[r+1] = o.RankOffsets[r] + n
	}
	if o.RankOffsets[c.Rank()] != o.RankOffset || o.RankOffsets[len(counts)] != o.GlobalDOFCount {
		return 0, 0, fmt.Errorf("%w: prefix sum disagrees with gathered counts", comm.ErrMismatch)
	}
	if err = d.resolveGhosts(c, o); err != nil {
		return 0, 0, err
	}
	d.ordering = o
	d.orderVersion = d.part.Version
	return o.LocalDOFCount, o.GlobalDOFCount, nil
}

// resolveGhosts asks the owner of every ghost neighbor for the global offset
// and node count of the cell, then checks the answers against the ghost
// geometry held locally.
func (d *Discretization) resolveGhosts(c *comm.Comm, o *Ordering) error {
	var (
		requests = make(map[int][]int)
		seen     = make(map[mesh.GhostKey]bool)
	)
	for ci := range d.part.LocalCells {
		for _, f := range d.part.LocalCells[ci].Faces {
			if f.Neighbor.Kind != mesh.Ghost {
				continue
			}
			key := f.Neighbor.Key()
			if seen[key] {
				continue
			}
			if key.Rank < 0 || key.Rank >= c.Size() || key.Rank == c.Rank() {
				return fmt.Errorf("%w: cell %d references ghost %v with invalid owner",
					ErrGhostDirectory, d.part.LocalCells[ci].GlobalID, key)
			}
			seen[key] = true
			requests[key.Rank] = append(requests[key.Rank], key.RemoteID)
		}
	}
	for r := range requests {
		sort.Ints(requests[r])
	}
	incoming, err := comm.Exchange(c, requests)
	if err != nil {
		return err
	}
	replies := make(map[int][]ghostReply, len(incoming))
	for src, ids := range incoming {
		out := make([]ghostReply, len(ids))
		for i, id := range ids {
			out[i] = ghostReply{RemoteID: id, GlobalOffset: -1, NumNodes: -1}
			if id >= 0 && id < len(d.cellViews) {
				out[i].GlobalOffset = o.RankOffset + o.CellOffsets[id]
				out[i].NumNodes = d.cellViews[id].NumNodes
			}
		}
		replies[src] = out
	}
	answers, err := comm.Exchange(c, replies)
	if err != nil {
		return err
	}
	for owner, list := range answers {
		for _, a := range list {
			key := mesh.GhostKey{Rank: owner, RemoteID: a.RemoteID}
			if a.NumNodes < 0 {
				return fmt.Errorf("%w: rank %d has no cell %d", ErrGhostDirectory, owner, a.RemoteID)
			}
			if g, ok := d.part.Ghost(key); ok && g.NumNodes() != a.NumNodes {
				return fmt.Errorf("%w: ghost %v has %d nodes locally, %d on its owner",
					ErrGhostDirectory, key, g.NumNodes(), a.NumNodes)
			}
			o.Ghosts[key] = GhostEntry{GlobalOffset: a.GlobalOffset, NumNodes: a.NumNodes}
		}
	}
	for key := range seen {
		if _, ok := o.Ghosts[key]; !ok {
			return fmt.Errorf("%w: no answer for ghost %v", ErrGhostDirectory, key)
		}
	}
	return nil
}

// Ordering returns the current node ordering.
func (d *Discretization) Ordering() (*Ordering, error) {
	if !d.current(d.orderVersion) {
		return nil, ErrNotComputed
	}
	return d.ordering, nil
}

func components(uk *unknowns.Manager) int {
	if uk == nil {
		return 1
	}
	return uk.TotalComponents()
}

func offsetOf(uk *unknowns.Manager, u, comp int) int {
	if uk == nil {
		if u != 0 || comp != 0 {
			panic(fmt.Sprintf("unknown %d component %d without an unknown manager", u, comp))
		}
		return 0
	}
	return uk.MapUnknown(u, comp)
}

// MapDOFLocal returns the local address of component comp of unknown u at node
// of local cell id. A nil manager stands for a single scalar unknown.
func (d *Discretization) MapDOFLocal(id, node int, uk *unknowns.Manager, u, comp int) (int, error) {
	o, err := d.Ordering()
	if err != nil {
		return 0, err
	}
	if err = d.checkNode(id, node); err != nil {
		return 0, err
	}
	return (o.CellOffsets[id]+node)*components(uk) + offsetOf(uk, u, comp), nil
}

// MapDOF is the global counterpart of MapDOFLocal.
func (d *Discretization) MapDOF(id, node int, uk *unknowns.Manager, u, comp int) (int, error) {
	o, err := d.Ordering()
	if err != nil {
		return 0, err
	}
	if err = d.checkNode(id, node); err != nil {
		return 0, err
	}
	return (o.RankOffset+o.CellOffsets[id]+node)*components(uk) + offsetOf(uk, u, comp), nil
}

// MapGhostDOF returns the global address of a node of a ghost cell.
func (d *Discretization) MapGhostDOF(key mesh.GhostKey, node int, uk *unknowns.Manager, u, comp int) (int, error) {
	o, err := d.Ordering()
	if err != nil {
		return 0, err
	}
	g, ok := o.Ghosts[key]
	if !ok {
		return 0, fmt.Errorf("%w: ghost %v", ErrGhostDirectory, key)
	}
	if node < 0 || node >= g.NumNodes {
		return 0, fmt.Errorf("ghost %v has no node %d", key, node)
	}
	return (g.GlobalOffset+node)*components(uk) + offsetOf(uk, u, comp), nil
}

func (d *Discretization) checkNode(id, node int) error {
	if id < 0 || id >= len(d.cellViews) {
		return fmt.Errorf("local cell %d out of range [0,%d)", id, len(d.cellViews))
	}
	if node < 0 || node >= d.cellViews[id].NumNodes {
		return fmt.Errorf("cell %d has no node %d", id, node)
	}
	return nil
}
