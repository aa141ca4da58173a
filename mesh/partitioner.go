package mesh

import (
	"fmt"
	"log"

	metis "github.com/notargets/go-metis"
)

// BlockPartition splits the cells into NP contiguous blocks of global ids
// with a maximum imbalance of one cell.
func BlockPartition(numCells, NP int) []int {
	var (
		EToP      = make([]int, numCells)
		Npart     = numCells / NP
		remainder = numCells % NP
	)
	for rank := 0; rank < NP; rank++ {
		// spread the remainder over the first blocks
		begin := rank*Npart + min(rank, remainder)
		end := begin + Npart
		if rank < remainder {
			end++
		}
		for k := begin; k < end; k++ {
			EToP[k] = rank
		}
	}
	return EToP
}

// PartitionConfig holds configuration for graph partitioning
type PartitionConfig struct {
	NumPartitions    int32
	ImbalanceFactor  float32 // e.g., 1.05 for 5% imbalance
	UseEdgeWeights   bool
	UseVertexWeights bool
	Objective        string // "cut" or "vol"
}

func DefaultPartitionConfig(nparts int32) *PartitionConfig {
	return &PartitionConfig{
		NumPartitions:    nparts,
		ImbalanceFactor:  1.05,
		UseEdgeWeights:   true,
		UseVertexWeights: true,
		Objective:        "vol", // minimize communication volume
	}
}

// cellCost is the relative assembly cost of a cell: PWLD work grows with the
// number of nodes squared.
func cellCost(c *Cell) int32 {
	n := int32(c.NumNodes())
	return n * n
}

// faceCost is the number of nodes exchanged across a face.
func faceCost(f *Face) int32 {
	return int32(len(f.VertexIDs))
}

// MetisPartition partitions the cell adjacency graph with METIS k-way.
func MetisPartition(m *Mesh, config *PartitionConfig) ([]int, error) {
	ne := len(m.Cells)
	if config.NumPartitions < 1 {
		return nil, fmt.Errorf("number of partitions must be positive, got %d", config.NumPartitions)
	}
	if config.NumPartitions == 1 || ne == 0 {
		return make([]int, ne), nil
	}
	log.Printf("Partitioning mesh with %d cells into %d parts", ne, config.NumPartitions)

	xadj, adjncy, vwgt, adjwgt := buildMetisGraph(m)

	opts := make([]int32, metis.NoOptions)
	if err := metis.SetDefaultOptions(opts); err != nil {
		return nil, fmt.Errorf("failed to set METIS options: %w", err)
	}
	if config.Objective == "vol" {
		opts[metis.OptionObjType] = metis.ObjTypeVol
	} else {
		opts[metis.OptionObjType] = metis.ObjTypeCut
	}
	ubvec := []float32{config.ImbalanceFactor}

	var vwgtPtr, adjwgtPtr []int32
	if config.UseVertexWeights {
		vwgtPtr = vwgt
	}
	if config.UseEdgeWeights {
		adjwgtPtr = adjwgt
	}
	part, objval, err := metis.PartGraphKwayWeighted(
		xadj, adjncy, vwgtPtr, adjwgtPtr,
		config.NumPartitions, nil, ubvec, opts,
	)
	if err != nil {
		return nil, fmt.Errorf("METIS partitioning failed: %w", err)
	}
	EToP := make([]int, ne)
	for i := range EToP {
		EToP[i] = int(part[i])
	}
	log.Printf("  Objective value: %d", objval)
	return EToP, nil
}

// buildMetisGraph converts cell connectivity to METIS CSR adjacency
func buildMetisGraph(m *Mesh) (xadj, adjncy, vwgt, adjwgt []int32) {
	ne := len(m.Cells)
	vwgt = make([]int32, ne)
	xadj = make([]int32, ne+1)
	for elem := 0; elem < ne; elem++ {
		c := &m.Cells[elem]
		vwgt[elem] = cellCost(c)
		for fi := range c.Faces {
			nbr := c.Faces[fi].Neighbor
			if nbr.Kind == Local && nbr.LocalID != elem {
				adjncy = append(adjncy, int32(nbr.LocalID))
				adjwgt = append(adjwgt, faceCost(&c.Faces[fi]))
			}
		}
		xadj[elem+1] = int32(len(adjncy))
	}
	return
}
