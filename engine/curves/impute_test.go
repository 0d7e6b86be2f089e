package curves

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestImputeZeros(t *testing.T) {
	x := []float64{0, 0.1, 1}
	y := []float64{0.5, 0, 0}

	xs, ys := ImputeZeros(x, y)

	assert.Equal(t, []float64{Epsilon, 0.1, 1}, xs)
	assert.Equal(t, []float64{0.5, Epsilon, Epsilon}, ys)
	assert.Equal(t, []float64{0, 0.1, 1}, x, "input x mutated")
	assert.Equal(t, []float64{0.5, 0, 0}, y, "input y mutated")
}

func TestImputeZerosEmpty(t *testing.T) {
	xs, ys := ImputeZeros(nil, nil)
	assert.Empty(t, xs)
	assert.Empty(t, ys)
}

func TestEpsilonPositive(t *testing.T) {
	assert.Greater(t, Epsilon, 0.0)
	assert.Less(t, Epsilon, 1e-70)
}

func TestImputeZerosProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	// Mix exact zeros into the generated values.
	values := gen.SliceOf(gen.OneGenOf(gen.Const(0.0), gen.Float64Range(-10, 10)))

	properties.Property("no zeros survive and non-zero values are unchanged", prop.ForAll(
		func(v []float64) bool {
			out, _ := ImputeZeros(v, nil)
			if len(out) != len(v) {
				return false
			}
			for i := range v {
				if v[i] == 0 && out[i] != Epsilon {
					return false
				}
				if v[i] != 0 && out[i] != v[i] {
					return false
				}
			}
			return true
		},
		values,
	))

	properties.Property("idempotent", prop.ForAll(
		func(v []float64) bool {
			once, _ := ImputeZeros(v, nil)
			twice, _ := ImputeZeros(once, nil)
			for i := range once {
				if once[i] != twice[i] {
					return false
				}
			}
			return true
		},
		values,
	))

	properties.Property("slices are imputed independently", prop.ForAll(
		func(x, y []float64) bool {
			xs, ys := ImputeZeros(x, y)
			xOnly, _ := ImputeZeros(x, nil)
			_, yOnly := ImputeZeros(nil, y)
			for i := range xs {
				if xs[i] != xOnly[i] {
					return false
				}
			}
			for i := range ys {
				if ys[i] != yOnly[i] {
					return false
				}
			}
			return true
		},
		values, values,
	))

	properties.TestingRun(t)
}
