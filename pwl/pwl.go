// Package pwl implements the piecewise-linear discontinuous (PWLD) spatial
// discretization of a partitioned mesh: per-cell shape function data, the
// reduced neighbor data needed for face coupling, the distributed numbering
// of the nodal degrees of freedom and the sparsity pattern of the resulting
// matrix.
//
// All cached state belongs to a Discretization and is tied to the Version of
// the partition it was built from. Repeating a step on a context that is up
// to date is a no-op; after Invalidate, or once the partition Version has
// changed, the next call recomputes the step from scratch. Steps that depend
// on an earlier one fail with ErrStale when the earlier one is out of date.
package pwl

import (
	"errors"

	"github.com/notargets/gopwld/mesh"
	"github.com/notargets/gopwld/quadrature"
)

var (
	ErrDegenerateCell = errors.New("pwl: degenerate cell geometry")
	ErrGhostDirectory = errors.New("pwl: ghost directory lookup failed")
	ErrStale          = errors.New("pwl: prerequisite step missing or out of date")
	ErrNotComputed    = errors.New("pwl: values not precomputed")
)

type SDMType uint8

const (
	PiecewiseLinearDiscontinuous SDMType = iota
	PiecewiseLinearContinuous
)

func (t SDMType) String() string {
	return [...]string{"PiecewiseLinearDiscontinuous", "PiecewiseLinearContinuous"}[t]
}

// SpatialDiscretization is what a solver needs to know about the method it is
// handed before it starts using it.
type SpatialDiscretization interface {
	Type() SDMType
}

// QuadratureOrder is fixed for every cell type.
const QuadratureOrder = quadrature.Second

type Discretization struct {
	part *mesh.Partition

	cellViews   []*CellView
	cellVersion uint64

	neighborViews map[mesh.GhostKey]*NeighborView
	nbrVersion    uint64

	ordering     *Ordering
	orderVersion uint64

	nnzDiag, nnzOff []int // one scalar component per node
	sparsityVersion uint64
}

func New(part *mesh.Partition) *Discretization {
	return &Discretization{part: part}
}

func (d *Discretization) Type() SDMType { return PiecewiseLinearDiscontinuous }

func (d *Discretization) Partition() *mesh.Partition { return d.part }

// Invalidate marks every cached step dirty.
func (d *Discretization) Invalidate() {
	d.cellVersion, d.nbrVersion, d.orderVersion, d.sparsityVersion = 0, 0, 0, 0
}

// current reports whether a step stamped with version v is up to date.
func (d *Discretization) current(v uint64) bool {
	return v != 0 && v == d.part.Version
}

func (d *Discretization) NumLocalCells() int { return len(d.part.LocalCells) }
