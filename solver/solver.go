// Package solver is the boundary to the linear algebra backend: a row block
// distributed matrix preallocated from the discretization's sparsity pattern,
// and solvers for A x = b over such matrices.
package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gopwld/comm"
)

// LinearSolver solves A x = b, where every rank holds its block of rows of A
// and the matching entries of b and x. x carries the initial guess on entry.
// Solve is collective.
type LinearSolver interface {
	Solve(c *comm.Comm, A *Matrix, b, x []float64) error
}

func checkSizes(A *Matrix, b, x []float64) error {
	if len(b) != A.LocalRows || len(x) != A.LocalRows {
		return fmt.Errorf("solver: vectors of length %d and %d for %d local rows",
			len(b), len(x), A.LocalRows)
	}
	return nil
}

// DenseLU gathers the whole system on every rank and factorizes it with a
// dense LU decomposition. It is meant for small problems and for checking the
// iterative solvers.
type DenseLU struct{}

type triplet struct {
	Row, Col int
	Val      float64
}

func (DenseLU) Solve(c *comm.Comm, A *Matrix, b, x []float64) error {
	if err := checkSizes(A, b, x); err != nil {
		return err
	}
	var (
		csr  = A.Assemble().RawMatrix()
		mine = make([]triplet, 0, len(csr.Data))
		n    = A.GlobalSize
	)
	for i := 0; i < A.LocalRows; i++ {
		for k := csr.Indptr[i]; k < csr.Indptr[i+1]; k++ {
			mine = append(mine, triplet{A.RowOffset + i, csr.Ind[k], csr.Data[k]})
		}
	}
	allEntries, err := comm.AllGather(c, mine)
	if err != nil {
		return err
	}
	allB, err := comm.AllGather(c, append([]float64(nil), b...))
	if err != nil {
		return err
	}
	var (
		dense = mat.NewDense(n, n, nil)
		rhs   = make([]float64, 0, n)
	)
	for _, entries := range allEntries {
		for _, e := range entries {
			dense.Set(e.Row, e.Col, e.Val)
		}
	}
	// ranks own contiguous row ranges in rank order
	for _, bb := range allB {
		rhs = append(rhs, bb...)
	}
	if len(rhs) != n {
		return fmt.Errorf("solver: gathered %d right hand side entries for order %d", len(rhs), n)
	}
	var (
		lu  mat.LU
		sol mat.VecDense
	)
	lu.Factorize(dense)
	if err = lu.SolveVecTo(&sol, false, mat.NewVecDense(n, rhs)); err != nil {
		return fmt.Errorf("solver: dense LU: %w", err)
	}
	for i := range x {
		x[i] = sol.AtVec(A.RowOffset + i)
	}
	return nil
}

// CG is the Jacobi preconditioned conjugate gradient method for symmetric
// positive definite systems. Iterations and Residual describe the last solve.
type CG struct {
	Options    Options
	Iterations int
	Residual   float64 // relative residual norm
}

func NewCG(o Options) *CG { return &CG{Options: o} }

func dot(c *comm.Comm, a, b []float64) (float64, error) {
	return c.AllReduceSumFloat(floats.Dot(a, b))
}

func (s *CG) Solve(c *comm.Comm, A *Matrix, b, x []float64) error {
	if err := checkSizes(A, b, x); err != nil {
		return err
	}
	h, err := haloPlan(c, A)
	if err != nil {
		return err
	}
	var (
		n    = A.LocalRows
		r    = make([]float64, n)
		z    = make([]float64, n)
		p    = make([]float64, n)
		q    = make([]float64, n)
		dinv = A.Diagonal()
	)
	for i, d := range dinv {
		if d == 0 {
			d = 1
		}
		dinv[i] = 1 / d
	}
	bnorm, err := dot(c, b, b)
	if err != nil {
		return err
	}
	bnorm = math.Sqrt(bnorm)
	if bnorm == 0 {
		clear(x)
		s.Iterations, s.Residual = 0, 0
		return nil
	}
	if err = h.mulVec(c, A, x, q); err != nil {
		return err
	}
	floats.SubTo(r, b, q)
	floats.MulTo(z, dinv, r)
	copy(p, z)
	rz, err := dot(c, r, z)
	if err != nil {
		return err
	}
	for s.Iterations = 0; s.Iterations < s.Options.MaxIterations; s.Iterations++ {
		rr, err := dot(c, r, r)
		if err != nil {
			return err
		}
		s.Residual = math.Sqrt(rr) / bnorm
		if s.Options.Verbose {
			c.Log("CG iteration %4d residual %.6e", s.Iterations, s.Residual)
		}
		if s.Residual <= s.Options.Tolerance {
			return nil
		}
		if err = h.mulVec(c, A, p, q); err != nil {
			return err
		}
		pq, err := dot(c, p, q)
		if err != nil {
			return err
		}
		if pq <= 0 {
			return fmt.Errorf("solver: CG breakdown, matrix is not positive definite (p.Ap = %g)", pq)
		}
		alpha := rz / pq
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, q)
		floats.MulTo(z, dinv, r)
		rzNew, err := dot(c, r, z)
		if err != nil {
			return err
		}
		beta := rzNew / rz
		rz = rzNew
		floats.AddScaledTo(p, z, beta, p)
	}
	return fmt.Errorf("%w: relative residual %.3e after %d iterations",
		ErrNotConverged, s.Residual, s.Iterations)
}
