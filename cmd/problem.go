package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/notargets/gopwld/InputParameters"
	"github.com/notargets/gopwld/comm"
	"github.com/notargets/gopwld/diffusion"
	"github.com/notargets/gopwld/mesh"
	"github.com/notargets/gopwld/pwl"
)

// Problem is a parsed input file with its mesh split over the ranks
type Problem struct {
	Input   *InputParameters.Parameters
	Mesh    *mesh.Mesh
	EToP    []int
	Parts   []*mesh.Partition
	Ranks   int
	Verbose bool
}

func processInput(file string) (ip *InputParameters.Parameters, err error) {
	if len(file) == 0 {
		exampleFile := `
########################################
Title: "Bare slab"
Mesh:
  Type: Slab # Ortho2D, Ortho3D or Gmsh with File
  Extent: [10.]
  Cells: [20]
Materials:
  0: {D: 1.2, SigmaA: 0.1, NuSigmaF: 0.12}
Boundaries:
  0: Reflecting
KEigen: true
########################################
`
		fmt.Printf("Example File:%s\n", exampleFile)
		return nil, fmt.Errorf("must supply an input parameters file (-I, --inputConditionsFile)")
	}
	var data []byte
	if data, err = os.ReadFile(file); err != nil {
		return
	}
	ip = InputParameters.NewParameters()
	if err = ip.Parse(data); err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return
}

// LoadProblem reads the input file, applies the command line overrides and
// partitions the mesh.
func LoadProblem(file string) (p *Problem, err error) {
	p = &Problem{Verbose: viper.GetBool("verbose")}
	if p.Input, err = processInput(file); err != nil {
		return nil, err
	}
	p.Ranks = p.Input.Ranks
	if r := viper.GetInt("ranks"); r > 0 {
		p.Ranks = r
	}
	if p.Mesh, err = p.Input.BuildMesh(); err != nil {
		return nil, err
	}
	if p.Ranks > p.Mesh.NumCells() {
		return nil, fmt.Errorf("%d ranks for %d cells", p.Ranks, p.Mesh.NumCells())
	}
	if p.EToP, err = p.Input.Partition(p.Mesh, p.Ranks); err != nil {
		return nil, err
	}
	if p.Parts, err = mesh.Split(p.Mesh, p.EToP, p.Ranks); err != nil {
		return nil, err
	}
	return
}

// runRanks builds and initializes a diffusion solver on every rank and
// hands it to fn.
func (p *Problem) runRanks(fn func(s *diffusion.Solver) error) error {
	opts, err := p.Input.DiffusionOptions()
	if err != nil {
		return err
	}
	return comm.Run(p.Ranks, func(c *comm.Comm) error {
		s := diffusion.NewSolver(c, pwl.New(p.Parts[c.Rank()]), opts)
		if err := s.Initialize(p.Verbose); err != nil {
			return err
		}
		return fn(s)
	})
}
