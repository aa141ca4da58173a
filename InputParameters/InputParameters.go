package InputParameters

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ghodss/yaml"

	"github.com/notargets/gopwld/diffusion"
	"github.com/notargets/gopwld/keigen"
	"github.com/notargets/gopwld/mesh"
)

// MeshParameters selects either a generated orthogonal mesh or a mesh file
type MeshParameters struct {
	Type   string    `json:"Type"`   // Slab, Ortho2D, Ortho3D, Gmsh or SU2
	File   string    `json:"File"`   // Gmsh 2.2 ASCII or native SU2 file
	Extent []float64 `json:"Extent"` // Domain length per axis, starting at the origin
	Cells  []int     `json:"Cells"`  // Cells per axis
}

// Parameters obtained from the YAML input file
type Parameters struct {
	Title          string                     `json:"Title"`
	Mesh           MeshParameters             `json:"Mesh"`
	Partitioner    string                     `json:"Partitioner"` // Block or Metis
	Ranks          int                        `json:"Ranks"`
	Materials      map[int]diffusion.Material `json:"Materials"`  // Keyed by material id
	Boundaries     map[int]string             `json:"Boundaries"` // Boundary id to Vacuum or Reflecting
	LinearSolver   string                     `json:"LinearSolver"`
	Tolerance      float64                    `json:"Tolerance"`
	MaxIterations  int                        `json:"MaxIterations"`
	SolverOptions  string                     `json:"SolverOptions"` // Appended to the solver hints
	KEigen         bool                       `json:"KEigen"`
	KTolerance     float64                    `json:"KTolerance"`
	KMaxIterations int                        `json:"KMaxIterations"`
	Precursors     bool                       `json:"Precursors"`
}

func NewParameters() *Parameters {
	so, ko := diffusion.DefaultOptions(), keigen.DefaultOptions()
	return &Parameters{
		Partitioner:    "Block",
		Ranks:          1,
		Materials:      make(map[int]diffusion.Material),
		Boundaries:     make(map[int]string),
		LinearSolver:   so.LinearSolver,
		Tolerance:      so.Solver.Tolerance,
		MaxIterations:  so.Solver.MaxIterations,
		KTolerance:     ko.Tolerance,
		KMaxIterations: ko.MaxIterations,
		Precursors:     ko.UsePrecursors,
	}
}

// Parse overlays the YAML data onto the current values, so fields absent from
// the file keep their defaults
func (ip *Parameters) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, ip); err != nil {
		return err
	}
	return ip.Validate()
}

func (ip *Parameters) Validate() (err error) {
	switch strings.ToLower(ip.Mesh.Type) {
	case "slab", "ortho2d", "ortho3d":
		dim := ip.meshDimension()
		if len(ip.Mesh.Extent) != dim || len(ip.Mesh.Cells) != dim {
			return fmt.Errorf("mesh type %s needs %d extents and cell counts, have %d and %d",
				ip.Mesh.Type, dim, len(ip.Mesh.Extent), len(ip.Mesh.Cells))
		}
		for i := 0; i < dim; i++ {
			if ip.Mesh.Extent[i] <= 0 || ip.Mesh.Cells[i] < 1 {
				return fmt.Errorf("mesh axis %d: extent %g and cell count %d must be positive",
					i, ip.Mesh.Extent[i], ip.Mesh.Cells[i])
			}
		}
	case "gmsh", "su2":
		if len(ip.Mesh.File) == 0 {
			return fmt.Errorf("mesh type %s needs a File", ip.Mesh.Type)
		}
	default:
		return fmt.Errorf("unknown mesh type %q", ip.Mesh.Type)
	}
	switch strings.ToLower(ip.Partitioner) {
	case "block", "metis":
	default:
		return fmt.Errorf("unknown partitioner %q", ip.Partitioner)
	}
	if ip.Ranks < 1 {
		return fmt.Errorf("ranks must be at least 1, have %d", ip.Ranks)
	}
	if len(ip.Materials) == 0 {
		return fmt.Errorf("no materials defined")
	}
	for id, m := range ip.Materials {
		if err = m.Validate(); err != nil {
			return fmt.Errorf("material %d: %w", id, err)
		}
	}
	for id, name := range ip.Boundaries {
		if _, err = diffusion.ParseBoundaryType(name); err != nil {
			return fmt.Errorf("boundary %d: %w", id, err)
		}
	}
	switch ip.LinearSolver {
	case "cg", "lu":
	default:
		return fmt.Errorf("unknown linear solver %q", ip.LinearSolver)
	}
	return nil
}

func (ip *Parameters) meshDimension() int {
	switch strings.ToLower(ip.Mesh.Type) {
	case "slab":
		return 1
	case "ortho2d":
		return 2
	case "ortho3d":
		return 3
	}
	return 0
}

func (ip *Parameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	if len(ip.Mesh.File) != 0 {
		fmt.Printf("[%s]\t\t= Mesh File\n", ip.Mesh.File)
	} else {
		fmt.Printf("[%s] %v %v\t= Mesh Extent, Cells\n", ip.Mesh.Type, ip.Mesh.Extent, ip.Mesh.Cells)
	}
	fmt.Printf("[%s] x %d\t\t= Partitioner, Ranks\n", ip.Partitioner, ip.Ranks)
	fmt.Printf("[%s]\t\t\t= Linear Solver\n", ip.LinearSolver)
	fmt.Printf("%8.2e\t\t= Tolerance\n", ip.Tolerance)
	if ip.KEigen {
		fmt.Printf("%8.2e\t\t= k-eigenvalue Tolerance\n", ip.KTolerance)
	}
	ids := make([]int, 0, len(ip.Materials))
	for id := range ip.Materials {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fmt.Printf("Materials[%d] = %+v\n", id, ip.Materials[id])
	}
	ids = ids[:0]
	for id := range ip.Boundaries {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fmt.Printf("Boundaries[%d] = %s\n", id, ip.Boundaries[id])
	}
}

// BuildMesh generates or reads the global mesh
func (ip *Parameters) BuildMesh() (*mesh.Mesh, error) {
	axis := func(i int) []float64 {
		return mesh.Linspace(0, ip.Mesh.Extent[i], ip.Mesh.Cells[i])
	}
	switch strings.ToLower(ip.Mesh.Type) {
	case "slab":
		return mesh.NewSlabMesh(axis(0))
	case "ortho2d":
		return mesh.NewOrthoMesh2D(axis(0), axis(1))
	case "ortho3d":
		return mesh.NewOrthoMesh3D(axis(0), axis(1), axis(2))
	case "gmsh":
		return mesh.ReadGmsh22(ip.Mesh.File)
	case "su2":
		m, markers, err := mesh.ReadSU2(ip.Mesh.File)
		if err == nil {
			for bid, name := range markers {
				fmt.Printf("Boundary %d = marker %s\n", bid, name)
			}
		}
		return m, err
	}
	return nil, fmt.Errorf("unknown mesh type %q", ip.Mesh.Type)
}

// Partition assigns each cell of m to one of ranks
func (ip *Parameters) Partition(m *mesh.Mesh, ranks int) ([]int, error) {
	if strings.EqualFold(ip.Partitioner, "metis") {
		return mesh.MetisPartition(m, mesh.DefaultPartitionConfig(int32(ranks)))
	}
	return mesh.BlockPartition(m.NumCells(), ranks), nil
}

func (ip *Parameters) DiffusionOptions() (opts diffusion.Options, err error) {
	opts = diffusion.DefaultOptions()
	for id, m := range ip.Materials {
		opts.Materials[id] = m
	}
	for id, name := range ip.Boundaries {
		if opts.Boundaries[id], err = diffusion.ParseBoundaryType(name); err != nil {
			return
		}
	}
	opts.LinearSolver = ip.LinearSolver
	opts.Solver.Tolerance = ip.Tolerance
	opts.Solver.MaxIterations = ip.MaxIterations
	opts.UserOptions = ip.SolverOptions
	return
}

func (ip *Parameters) KEigenOptions() keigen.Options {
	return keigen.Options{
		Tolerance:     ip.KTolerance,
		MaxIterations: ip.KMaxIterations,
		UsePrecursors: ip.Precursors,
	}
}
