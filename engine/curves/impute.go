package curves

// Epsilon replaces exact zeros before taking logarithms: 2^-256, positive but
// far below any rate or intensity the tables carry.
const Epsilon = 0x1p-256

// ImputeZeros returns copies of x and y with every exact zero replaced by
// Epsilon. The slices are handled independently and the inputs are not modified.
func ImputeZeros(x, y []float64) ([]float64, []float64) {
	return imputeSlice(x), imputeSlice(y)
}

func imputeSlice(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		if f == 0 {
			f = Epsilon
		}
		out[i] = f
	}
	return out
}
