package diffusion

import "fmt"

type Precursor struct {
	Yield  float64
	Lambda float64 // decay constant
}

// Material holds one-group diffusion data.
type Material struct {
	D               float64
	SigmaA          float64
	NuSigmaF        float64
	Source          float64
	NuDelayedSigmaF float64
	Precursors      []Precursor
}

func (m Material) Validate() error {
	if m.D <= 0 {
		return fmt.Errorf("diffusion coefficient must be positive, got %g", m.D)
	}
	if m.SigmaA < 0 || m.NuSigmaF < 0 || m.NuDelayedSigmaF < 0 {
		return fmt.Errorf("cross sections must be non-negative")
	}
	for j, p := range m.Precursors {
		if p.Lambda <= 0 {
			return fmt.Errorf("precursor %d: decay constant must be positive, got %g", j, p.Lambda)
		}
	}
	return nil
}

type BoundaryType uint8

const (
	// Vacuum is the Marshak condition: no incoming partial current.
	Vacuum BoundaryType = iota
	// Reflecting is the natural zero-current condition.
	Reflecting
)

func (b BoundaryType) String() string {
	return [...]string{"Vacuum", "Reflecting"}[b]
}

func ParseBoundaryType(s string) (BoundaryType, error) {
	switch s {
	case "vacuum", "Vacuum":
		return Vacuum, nil
	case "reflecting", "Reflecting":
		return Reflecting, nil
	}
	return 0, fmt.Errorf("unknown boundary type %q", s)
}
