// Package quadrature holds the simplex quadrature rules used by the PWL
// discretization. Rules are expressed in barycentric coordinates of the
// reference simplex with weights normalised to sum to one, so a caller scales
// the weights by the measure of the physical simplex.
package quadrature

import (
	"fmt"
	"math"
)

type Order uint8

const (
	Second Order = 2
)

func (o Order) String() string {
	switch o {
	case Second:
		return "Second"
	default:
		return fmt.Sprintf("Order(%d)", uint8(o))
	}
}

type Rule struct {
	Dim     int
	Order   Order
	Lambda  [][]float64 // [qp][Dim+1] barycentric coordinates
	Weights []float64   // sum to one
}

func (r *Rule) NumPoints() int { return len(r.Weights) }

// ForSimplex returns the rule for a simplex of the given dimension: a point
// (0), a line (1), a triangle (2) or a tetrahedron (3).
func ForSimplex(dim int, order Order) (*Rule, error) {
	if order != Second {
		return nil, fmt.Errorf("quadrature: unsupported order %v", order)
	}
	switch dim {
	case 0:
		return &Rule{Dim: 0, Order: order,
			Lambda:  [][]float64{{1}},
			Weights: []float64{1},
		}, nil
	case 1:
		// Two point Gauss-Legendre, exact up to degree 3
		g := 0.5 / math.Sqrt(3.)
		return &Rule{Dim: 1, Order: order,
			Lambda: [][]float64{
				{0.5 + g, 0.5 - g},
				{0.5 - g, 0.5 + g},
			},
			Weights: []float64{0.5, 0.5},
		}, nil
	case 2:
		// Strang-Fix three point rule, exact up to degree 2
		a, b := 2./3., 1./6.
		return &Rule{Dim: 2, Order: order,
			Lambda: [][]float64{
				{a, b, b},
				{b, a, b},
				{b, b, a},
			},
			Weights: []float64{1. / 3., 1. / 3., 1. / 3.},
		}, nil
	case 3:
		// Symmetric four point rule with points near the vertices, exact up
		// to degree 2
		a := 0.58541019662496845446
		b := 0.13819660112501051518
		return &Rule{Dim: 3, Order: order,
			Lambda: [][]float64{
				{a, b, b, b},
				{b, a, b, b},
				{b, b, a, b},
				{b, b, b, a},
			},
			Weights: []float64{0.25, 0.25, 0.25, 0.25},
		}, nil
	}
	return nil, fmt.Errorf("quadrature: no rule for simplex dimension %d", dim)
}
