package quadrature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRulesAreNormalised(t *testing.T) {
	for dim := 0; dim <= 3; dim++ {
		r, err := ForSimplex(dim, Second)
		require.NoError(t, err)
		var wsum float64
		for q, w := range r.Weights {
			wsum += w
			require.Len(t, r.Lambda[q], dim+1)
			var lsum float64
			for _, l := range r.Lambda[q] {
				lsum += l
			}
			assert.InDelta(t, 1., lsum, 1.e-14)
		}
		assert.InDelta(t, 1., wsum, 1.e-14)
	}
}

func TestQuadraticExactness(t *testing.T) {
	// Mean of λi·λj over a d-simplex is (1+δij)/((d+1)(d+2))
	for dim := 1; dim <= 3; dim++ {
		r, err := ForSimplex(dim, Second)
		require.NoError(t, err)
		for i := 0; i <= dim; i++ {
			for j := 0; j <= dim; j++ {
				var sum float64
				for q, w := range r.Weights {
					sum += w * r.Lambda[q][i] * r.Lambda[q][j]
				}
				exact := 1. / float64((dim+1)*(dim+2))
				if i == j {
					exact *= 2
				}
				assert.InDeltaf(t, exact, sum, 1.e-14, "dim %d, i %d, j %d", dim, i, j)
			}
		}
	}
}

func TestUnsupported(t *testing.T) {
	_, err := ForSimplex(4, Second)
	assert.Error(t, err)
	_, err = ForSimplex(2, Order(5))
	assert.Error(t, err)
}
