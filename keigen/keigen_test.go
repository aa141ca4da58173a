package keigen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gopwld/comm"
	"github.com/notargets/gopwld/diffusion"
	"github.com/notargets/gopwld/mesh"
	"github.com/notargets/gopwld/pwl"
)

func run(t *testing.T, m *mesh.Mesh, NP int, opts diffusion.Options, fn func(s *diffusion.Solver) error) {
	t.Helper()
	parts, err := mesh.Split(m, mesh.BlockPartition(m.NumCells(), NP), NP)
	require.NoError(t, err)
	require.NoError(t, comm.Run(NP, func(c *comm.Comm) error {
		s := diffusion.NewSolver(c, pwl.New(parts[c.Rank()]), opts)
		if err := s.Initialize(false); err != nil {
			return err
		}
		return fn(s)
	}))
}

func fuel() diffusion.Material {
	return diffusion.Material{
		D: 1, SigmaA: 0.8, NuSigmaF: 1.0, NuDelayedSigmaF: 0.0065,
		Precursors: []diffusion.Precursor{{Yield: 0.4, Lambda: 0.1}, {Yield: 0.6, Lambda: 3}},
	}
}

func TestInfiniteMediumK(t *testing.T) {
	quads, err := mesh.NewOrthoMesh2D(mesh.Linspace(0, 1, 3), mesh.Linspace(0, 1, 2))
	require.NoError(t, err)
	slab, err := mesh.NewSlabMesh(mesh.Linspace(0, 1, 5))
	require.NoError(t, err)
	for _, m := range []*mesh.Mesh{quads, slab} {
		for NP := 1; NP <= 2; NP++ {
			opts := diffusion.DefaultOptions()
			opts.Materials[0] = fuel()
			opts.Solver.Tolerance = 1.e-12
			for bid := 0; bid < 4; bid++ {
				opts.Boundaries[bid] = diffusion.Reflecting
			}
			results := make([]*Result, NP)
			run(t, m, NP, opts, func(s *diffusion.Solver) error {
				res, err := Solve(s, DefaultOptions())
				if err != nil {
					return err
				}
				results[s.Comm.Rank()] = res
				// unit production on a unit volume: phi = 1 / nuSigmaF
				for _, v := range s.Phi() {
					assert.InDelta(t, 1., v, 1.e-8)
				}
				C, err := res.Precursors.At(s, 0, 0, 1)
				if err != nil {
					return err
				}
				assert.InDelta(t, 0.6/3*0.0065*1/res.K, C, 1.e-10)
				return nil
			})
			for _, res := range results {
				assert.InDelta(t, 1.25, res.K, 1.e-8)
				assert.LessOrEqual(t, res.Iterations, 3)
				assert.Equal(t, 2, res.Precursors.NumPrecursors)
			}
		}
	}
}

func TestLeakageLowersK(t *testing.T) {
	m, err := mesh.NewSlabMesh(mesh.Linspace(0, 10, 20))
	require.NoError(t, err)
	opts := diffusion.DefaultOptions()
	opts.Materials[0] = fuel()
	opts.Solver.Tolerance = 1.e-12
	o := DefaultOptions()
	o.UsePrecursors = false
	run(t, m, 2, opts, func(s *diffusion.Solver) error {
		res, err := Solve(s, o)
		if err != nil {
			return err
		}
		assert.Less(t, res.K, 1.25)
		assert.Greater(t, res.K, 0.5)
		assert.Nil(t, res.Precursors)
		return nil
	})
}

func TestPrecursorsWithoutData(t *testing.T) {
	m, err := mesh.NewSlabMesh(mesh.Linspace(0, 1, 2))
	require.NoError(t, err)
	opts := diffusion.DefaultOptions()
	opts.Materials[0] = diffusion.Material{D: 1, SigmaA: 1}
	run(t, m, 1, opts, func(s *diffusion.Solver) error {
		p, err := InitializePrecursors(s, 1)
		if err != nil {
			return err
		}
		assert.Equal(t, 0, p.NumPrecursors)
		assert.Empty(t, p.Values)
		_, err = Solve(s, DefaultOptions())
		assert.Error(t, err)
		return nil
	})
}
