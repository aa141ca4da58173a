package solver

import (
	"strings"

	"github.com/notargets/gopwld/mesh"
)

// Options configures a LinearSolver. Hints are passed through untouched to
// solver backends that understand them.
type Options struct {
	Hints         []string
	Tolerance     float64 // relative residual
	MaxIterations int
	Verbose       bool
}

func DefaultOptions() Options {
	return Options{Tolerance: 1.e-8, MaxIterations: 1000}
}

var commonHints = []string{
	"-pc_hypre_boomeramg_P_max 4",
	"-pc_hypre_boomeramg_grid_sweeps_coarse 1",
	"-pc_hypre_boomeramg_max_levels 25",
	"-pc_hypre_boomeramg_relax_type_all symmetric-SOR/Jacobi",
	"-pc_hypre_boomeramg_coarsen_type HMIS",
	"-pc_hypre_boomeramg_interp_type ext+i",
}

// Hints returns the algebraic multigrid options tuned per cell geometry,
// followed by the user supplied options string when it is not empty.
func Hints(cellType mesh.CellType, userOptions string) (hints []string) {
	switch cellType {
	case mesh.Slab:
		hints = append(hints, "-pc_hypre_boomeramg_agg_nl 1")
		hints = append(hints, commonHints...)
		hints = append(hints, "-options_left")
	case mesh.Polygon:
		hints = append(hints, "-pc_hypre_boomeramg_strong_threshold 0.6")
		hints = append(hints, commonHints...)
		hints = append(hints, "-options_left")
	case mesh.Polyhedron:
		hints = append(hints, "-pc_hypre_boomeramg_strong_threshold 0.8", "-pc_hypre_boomeramg_agg_nl 1")
		hints = append(hints, commonHints...)
	}
	if s := strings.TrimSpace(userOptions); s != "" {
		hints = append(hints, s)
	}
	return
}
