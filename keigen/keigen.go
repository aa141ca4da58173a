// Package keigen computes the multiplication eigenvalue of a diffusion
// problem by power iteration and initializes the delayed neutron precursor
// concentrations from the converged flux.
package keigen

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/gopwld/diffusion"
	"github.com/notargets/gopwld/unknowns"
)

type Options struct {
	Tolerance     float64 // on the relative change of k
	MaxIterations int
	UsePrecursors bool
	Verbose       bool
}

func DefaultOptions() Options {
	return Options{Tolerance: 1.e-8, MaxIterations: 200, UsePrecursors: true}
}

type Result struct {
	K          float64
	Iterations int
	Precursors *Precursors // nil unless requested
}

// Solve runs the power iteration
//
//	A phi' = nuSigmaF M phi / k,  k' = k P(phi') / P(phi)
//
// where P is the global fission production. phi is normalized to unit
// production after every iteration. Solve is collective.
func Solve(s *diffusion.Solver, o Options) (*Result, error) {
	c := s.Comm
	if err := s.AssembleMatrix(); err != nil {
		return nil, err
	}
	phi := s.Phi()
	for i := range phi {
		phi[i] = 1
	}
	production, err := s.FissionProduction()
	if err != nil {
		return nil, err
	}
	if production <= 0 {
		return nil, fmt.Errorf("keigen: no fission production in the problem")
	}
	floats.Scale(1/production, phi)

	res := &Result{K: 1}
	for res.Iterations = 1; res.Iterations <= o.MaxIterations; res.Iterations++ {
		q, err := s.FissionSource(res.K)
		if err != nil {
			return nil, err
		}
		if err = s.SolveWithRHS(q); err != nil {
			return nil, err
		}
		if production, err = s.FissionProduction(); err != nil {
			return nil, err
		}
		if production <= 0 {
			return nil, fmt.Errorf("keigen: fission production vanished at iteration %d", res.Iterations)
		}
		kNew := res.K * production
		floats.Scale(1/production, phi)
		change := math.Abs(kNew-res.K) / kNew
		res.K = kNew
		if o.Verbose {
			c.Log("Iteration %4d  k_eff %.10f  change %.3e", res.Iterations, res.K, change)
		}
		if change < o.Tolerance {
			if o.UsePrecursors {
				if res.Precursors, err = InitializePrecursors(s, res.K); err != nil {
					return nil, err
				}
			}
			return res, nil
		}
	}
	return nil, fmt.Errorf("keigen: k did not converge in %d iterations (k = %.8f)", o.MaxIterations, res.K)
}

// Precursors holds the nodal precursor concentrations, addressed through
// their own unknown manager with one VectorN unknown of NumPrecursors
// components.
type Precursors struct {
	UnknownManager *unknowns.Manager
	NumPrecursors  int
	Values         []float64
}

// At returns precursor j at node of local cell id.
func (p *Precursors) At(s *diffusion.Solver, id, node, j int) (float64, error) {
	ir, err := s.Discretization().MapDOFLocal(id, node, p.UnknownManager, 0, j)
	if err != nil {
		return 0, err
	}
	return p.Values[ir], nil
}

// InitializePrecursors sets C_j = yield_j / lambda_j * nuDelayedSigmaF * phi / k
// at every node. Materials without precursors contribute zero. It is
// collective, since every rank must agree on the number of precursors.
func InitializePrecursors(s *diffusion.Solver, k float64) (*Precursors, error) {
	var J int
	for _, m := range s.Options.Materials {
		J = max(J, len(m.Precursors))
	}
	maxJ, err := s.Comm.AllReduceMaxFloat(float64(J))
	if err != nil {
		return nil, err
	}
	p := &Precursors{UnknownManager: unknowns.NewManager(), NumPrecursors: int(maxJ)}
	if p.NumPrecursors == 0 {
		return p, nil
	}
	p.UnknownManager.AddUnknown(unknowns.VectorN, p.NumPrecursors)
	p.Values = make([]float64, s.LocalDOFCount*p.UnknownManager.TotalComponents())

	d := s.Discretization()
	views, err := d.CellViews()
	if err != nil {
		return nil, err
	}
	phi := s.Phi()
	for id, cv := range views {
		xs, ok := s.Options.Materials[cv.MaterialID]
		if !ok {
			return nil, fmt.Errorf("keigen: no material with id %d", cv.MaterialID)
		}
		for i := 0; i < cv.NumNodes; i++ {
			ir, err := d.MapDOFLocal(id, i, s.UnknownManager, 0, 0)
			if err != nil {
				return nil, err
			}
			for j, pr := range xs.Precursors {
				jr, err := d.MapDOFLocal(id, i, p.UnknownManager, 0, j)
				if err != nil {
					return nil, err
				}
				p.Values[jr] += pr.Yield / pr.Lambda * xs.NuDelayedSigmaF * phi[ir] / k
			}
		}
	}
	return p, nil
}
