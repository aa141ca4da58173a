// Package diffusion assembles and solves the one-group neutron diffusion
// equation discretized with PWLD and the modified interior penalty (MIP)
// method.
package diffusion

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/gopwld/comm"
	"github.com/notargets/gopwld/mesh"
	"github.com/notargets/gopwld/pwl"
	"github.com/notargets/gopwld/solver"
	"github.com/notargets/gopwld/unknowns"
)

var ErrDiscretizationType = errors.New("diffusion: spatial discretization is not PWLD")

// penaltyConstant scales the MIP penalty.
const penaltyConstant = 4.

type Options struct {
	Materials  map[int]Material
	Boundaries map[int]BoundaryType // unlisted boundary ids are Vacuum
	// LinearSolver is "cg" (default) or "lu".
	LinearSolver string
	Solver       solver.Options
	UserOptions  string // appended to the solver hints
	// IgnoreZeroEntries is applied to the system matrix.
	IgnoreZeroEntries bool
}

func DefaultOptions() Options {
	return Options{
		Materials:         make(map[int]Material),
		Boundaries:        make(map[int]BoundaryType),
		LinearSolver:      "cg",
		Solver:            solver.DefaultOptions(),
		IgnoreZeroEntries: true,
	}
}

type Solver struct {
	Comm           *comm.Comm
	Options        Options
	UnknownManager *unknowns.Manager
	LocalDOFCount  int
	GlobalDOFCount int
	Hints          []string
	A              *solver.Matrix

	sdm    pwl.SpatialDiscretization
	pwld   *pwl.Discretization
	phi    []float64
	b      []float64
	linear solver.LinearSolver
}

func NewSolver(c *comm.Comm, sdm pwl.SpatialDiscretization, opts Options) *Solver {
	return &Solver{Comm: c, Options: opts, sdm: sdm}
}

// Initialize prepares the discretization and allocates the system: cell and
// neighbor values, node ordering, sparsity pattern and the preallocated
// matrix. It is collective.
func (s *Solver) Initialize(verbose bool) (err error) {
	c := s.Comm
	if verbose {
		c.Log("Computing cell matrices")
	}
	if s.sdm == nil || s.sdm.Type() != pwl.PiecewiseLinearDiscontinuous {
		return ErrDiscretizationType
	}
	d, ok := s.sdm.(*pwl.Discretization)
	if !ok {
		return fmt.Errorf("%w: unsupported implementation %T", ErrDiscretizationType, s.sdm)
	}
	s.pwld = d
	for id, m := range s.Options.Materials {
		if err = m.Validate(); err != nil {
			return fmt.Errorf("material %d: %w", id, err)
		}
	}
	if err = d.PreComputeCellSDValues(); err != nil {
		return
	}
	if err = d.PreComputeNeighborCellSDValues(); err != nil {
		return
	}
	if err = c.Barrier(); err != nil {
		return
	}

	if verbose {
		c.Log("Computing nodal reorderings for PWLD")
	}
	start := time.Now()
	if s.LocalDOFCount, s.GlobalDOFCount, err = d.OrderNodes(c); err != nil {
		return
	}
	if err = c.Barrier(); err != nil {
		return
	}
	if verbose {
		c.Log("Time taken during nodal reordering %.6f", time.Since(start).Seconds())
	}

	s.UnknownManager = unknowns.NewManager()
	s.UnknownManager.AddUnknown(unknowns.Scalar)
	s.phi = make([]float64, s.LocalDOFCount*s.UnknownManager.TotalComponents())
	s.b = make([]float64, len(s.phi))

	if verbose {
		c.Log("Building sparsity pattern.")
	}
	nnzDiag, nnzOff, err := d.BuildSparsityPattern(s.UnknownManager)
	if err != nil {
		return
	}
	ordering, err := d.Ordering()
	if err != nil {
		return
	}
	C := s.UnknownManager.TotalComponents()
	if s.A, err = solver.NewMatrix(len(s.phi), s.GlobalDOFCount*C, ordering.RankOffset*C, nnzDiag, nnzOff); err != nil {
		return
	}
	s.A.IgnoreZeroEntries = s.Options.IgnoreZeroEntries

	if d.NumLocalCells() != 0 {
		s.Hints = solver.Hints(d.Partition().LocalCells[0].Type, s.Options.UserOptions)
	}
	solverOptions := s.Options.Solver
	solverOptions.Hints = s.Hints
	switch s.Options.LinearSolver {
	case "", "cg":
		s.linear = solver.NewCG(solverOptions)
	case "lu":
		s.linear = solver.DenseLU{}
	default:
		return fmt.Errorf("unknown linear solver %q", s.Options.LinearSolver)
	}
	return nil
}

func (s *Solver) material(id int) (Material, error) {
	m, ok := s.Options.Materials[id]
	if !ok {
		return Material{}, fmt.Errorf("no material with id %d", id)
	}
	return m, nil
}

func (s *Solver) boundary(id int) BoundaryType {
	if bt, ok := s.Options.Boundaries[id]; ok {
		return bt
	}
	return Vacuum
}

func (s *Solver) Discretization() *pwl.Discretization { return s.pwld }

// Phi is the local scalar flux, one value per local node.
func (s *Solver) Phi() []float64 { return s.phi }

func (s *Solver) RHS() []float64 { return s.b }

// penalty is the MIP penalty coefficient of a face between two cells.
func penalty(Dc, hc, Dn, hn float64) float64 {
	return math.Max(0.25, penaltyConstant/2*(Dc/hc+Dn/hn))
}

// AssembleMatrix assembles the MIP diffusion operator into A.
func (s *Solver) AssembleMatrix() error {
	if s.A == nil {
		return fmt.Errorf("diffusion: solver not initialized")
	}
	d := s.pwld
	views, err := d.CellViews()
	if err != nil {
		return err
	}
	s.A.Zero()
	for id, cv := range views {
		xs, err := s.material(cv.MaterialID)
		if err != nil {
			return fmt.Errorf("cell %d: %w", cv.GlobalID, err)
		}
		N := cv.NumNodes
		rows := make([]int, N)
		for i := range rows {
			if rows[i], err = d.MapDOF(id, i, s.UnknownManager, 0, 0); err != nil {
				return err
			}
		}
		own := make([][]float64, N)
		for i := range own {
			own[i] = make([]float64, N)
			for j := 0; j < N; j++ {
				own[i][j] = xs.D*cv.IntVGradGrad.At(i, j) + xs.SigmaA*cv.IntVShapeShape.At(i, j)
			}
		}
		for f := range cv.Faces {
			fv := &cv.Faces[f]
			if fv.Neighbor.IsBoundary() {
				if s.boundary(fv.Neighbor.BoundaryID) == Vacuum {
					for i := 0; i < N; i++ {
						for j := 0; j < N; j++ {
							own[i][j] += 0.5 * fv.IntSShapeShape.At(i, j)
						}
					}
				}
				continue
			}
			if err = s.assembleInteriorFace(cv, fv, xs, own, rows); err != nil {
				return fmt.Errorf("cell %d face %d: %w", cv.GlobalID, f, err)
			}
		}
		for i := 0; i < N; i++ {
			for j := 0; j < N; j++ {
				if err = s.A.Add(rows[i], rows[j], own[i][j]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *Solver) assembleInteriorFace(cv *pwl.CellView, fv *pwl.FaceView, xs Material,
	own [][]float64, rows []int) error {
	var (
		d   = s.pwld
		cp  = fv.Coupling
		N   = cv.NumNodes
		Nn  = cp.NumNodes
		err error
	)
	if cp == nil {
		return fmt.Errorf("missing neighbor values")
	}
	nxs, err := s.material(cp.MaterialID)
	if err != nil {
		return err
	}
	var (
		Dc, Dn = xs.D, nxs.D
		kappa  = penalty(Dc, cv.CharLength, Dn, cp.CharLength)
		cols   = make([]int, Nn)
		nbr    = make([][]float64, N)
	)
	for k := range cols {
		switch cp.Neighbor.Kind {
		case mesh.Local:
			cols[k], err = d.MapDOF(cp.Neighbor.LocalID, k, s.UnknownManager, 0, 0)
		case mesh.Ghost:
			cols[k], err = d.MapGhostDOF(cp.Neighbor.Key(), k, s.UnknownManager, 0, 0)
		}
		if err != nil {
			return err
		}
	}
	for i := range nbr {
		nbr[i] = make([]float64, Nn)
	}
	for q, qp := range fv.QP {
		w, n := qp.JxW, qp.Normal
		for i := 0; i < N; i++ {
			bi, gin := qp.Shape[i], r3.Dot(qp.Grad[i], n)
			for j := 0; j < N; j++ {
				bj := qp.Shape[j]
				gjn := r3.Dot(qp.Grad[j], n)
				own[i][j] += w * (kappa*bi*bj - 0.5*Dc*gjn*bi - 0.5*Dc*gin*bj)
			}
			for k := 0; k < Nn; k++ {
				bk, gkn := cp.Shape[q][k], r3.Dot(cp.Grad[q][k], n)
				nbr[i][k] += w * (-kappa*bk*bi - 0.5*Dn*gkn*bi + 0.5*Dc*gin*bk)
			}
		}
	}
	for i := 0; i < N; i++ {
		for k := 0; k < Nn; k++ {
			if err = s.A.Add(rows[i], cols[k], nbr[i][k]); err != nil {
				return err
			}
		}
	}
	return nil
}

// AssembleSource sets the right hand side from the fixed sources of the
// materials.
func (s *Solver) AssembleSource() error {
	views, err := s.pwld.CellViews()
	if err != nil {
		return err
	}
	clear(s.b)
	for id, cv := range views {
		xs, err := s.material(cv.MaterialID)
		if err != nil {
			return err
		}
		for i := 0; i < cv.NumNodes; i++ {
			ir, err := s.pwld.MapDOFLocal(id, i, s.UnknownManager, 0, 0)
			if err != nil {
				return err
			}
			s.b[ir] += xs.Source * cv.IntVShape[i]
		}
	}
	return nil
}

// FissionSource returns the right hand side nuSigmaF M phi / k.
func (s *Solver) FissionSource(k float64) ([]float64, error) {
	views, err := s.pwld.CellViews()
	if err != nil {
		return nil, err
	}
	q := make([]float64, len(s.phi))
	for id, cv := range views {
		xs, err := s.material(cv.MaterialID)
		if err != nil {
			return nil, err
		}
		if xs.NuSigmaF == 0 {
			continue
		}
		base, err := s.pwld.MapDOFLocal(id, 0, s.UnknownManager, 0, 0)
		if err != nil {
			return nil, err
		}
		for i := 0; i < cv.NumNodes; i++ {
			for j := 0; j < cv.NumNodes; j++ {
				q[base+i] += xs.NuSigmaF / k * cv.IntVShapeShape.At(i, j) * s.phi[base+j]
			}
		}
	}
	return q, nil
}

// FissionProduction is the global integral of nuSigmaF phi. It is collective.
func (s *Solver) FissionProduction() (float64, error) {
	views, err := s.pwld.CellViews()
	if err != nil {
		return 0, err
	}
	var local float64
	for id, cv := range views {
		xs, err := s.material(cv.MaterialID)
		if err != nil {
			return 0, err
		}
		for i := 0; i < cv.NumNodes; i++ {
			ir, err := s.pwld.MapDOFLocal(id, i, s.UnknownManager, 0, 0)
			if err != nil {
				return 0, err
			}
			local += xs.NuSigmaF * cv.IntVShape[i] * s.phi[ir]
		}
	}
	return s.Comm.AllReduceSumFloat(local)
}

// SolveWithRHS solves A phi = b using the current phi as initial guess.
func (s *Solver) SolveWithRHS(b []float64) error {
	return s.linear.Solve(s.Comm, s.A, b, s.phi)
}

// Solve assembles the system with the fixed sources and solves it.
func (s *Solver) Solve() error {
	if err := s.AssembleMatrix(); err != nil {
		return err
	}
	if err := s.AssembleSource(); err != nil {
		return err
	}
	return s.SolveWithRHS(s.b)
}
