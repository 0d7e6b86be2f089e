package curves

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// MaxDegree is the highest spline degree Fit accepts.
const MaxDegree = 5

// BSpline is an interpolating B-spline of arbitrary degree. Knots follow the
// not-a-knot placement: the ends are clamped with multiplicity Degree+1 and
// the interior knots are data sites (odd degree) or midpoints between them
// (even degree), which keeps the collocation matrix nonsingular. It
// implements interp.FittablePredictor.
type BSpline struct {
	Degree int

	knots  []float64
	coeffs []float64
}

// Fit solves the collocation system so the spline passes through every
// (xs[i], ys[i]). xs must be strictly increasing with at least Degree+1 points.
func (b *BSpline) Fit(xs, ys []float64) error {
	k, n := b.Degree, len(xs)
	if k < 1 {
		return fmt.Errorf("bspline: degree %d", k)
	}
	if n != len(ys) {
		return errors.New("bspline: xs and ys differ in length")
	}
	if n < k+1 {
		return fmt.Errorf("bspline: degree %d needs %d points, got %d", k, k+1, n)
	}
	for i := 1; i < n; i++ {
		if !(xs[i] > xs[i-1]) {
			return errors.New("bspline: xs not strictly increasing")
		}
	}

	b.knots = notAKnot(xs, k)
	a := mat.NewDense(n, n, nil)
	for i, x := range xs {
		span, basis := b.basis(x, n)
		for r, v := range basis {
			a.Set(i, span-k+r, v)
		}
	}
	var c mat.VecDense
	if err := c.SolveVec(a, mat.NewVecDense(n, append([]float64(nil), ys...))); err != nil {
		return fmt.Errorf("bspline: collocation: %w", err)
	}
	b.coeffs = make([]float64, n)
	for i := range b.coeffs {
		b.coeffs[i] = c.AtVec(i)
	}
	return nil
}

// Predict evaluates the spline at x. Outside the knot range the end
// polynomial pieces are continued.
func (b *BSpline) Predict(x float64) float64 {
	n := len(b.coeffs)
	if n == 0 {
		return 0
	}
	span, basis := b.basis(x, n)
	var y float64
	for r, v := range basis {
		y += v * b.coeffs[span-b.Degree+r]
	}
	return y
}

func notAKnot(xs []float64, k int) []float64 {
	n := len(xs)
	var inner []float64
	if k%2 == 1 {
		h := (k + 1) / 2
		inner = xs[h : n-h]
	} else {
		h := k / 2
		mids := make([]float64, n-1)
		for i := range mids {
			mids[i] = (xs[i] + xs[i+1]) / 2
		}
		inner = mids[h : n-1-h]
	}
	t := make([]float64, 0, n+k+1)
	for i := 0; i <= k; i++ {
		t = append(t, xs[0])
	}
	t = append(t, inner...)
	for i := 0; i <= k; i++ {
		t = append(t, xs[n-1])
	}
	return t
}

// basis returns the knot span holding x and the Degree+1 basis functions
// that are nonzero there, for coefficients span-Degree .. span.
func (b *BSpline) basis(x float64, n int) (int, []float64) {
	k, t := b.Degree, b.knots
	// largest span in [k, n-1] with t[span] <= x
	span := sort.Search(n-k, func(i int) bool { return t[k+i+1] > x }) + k
	if span > n-1 {
		span = n - 1
	}

	vals := make([]float64, k+1)
	left := make([]float64, k+1)
	right := make([]float64, k+1)
	vals[0] = 1
	for j := 1; j <= k; j++ {
		left[j] = x - t[span+1-j]
		right[j] = t[span+j] - x
		saved := 0.0
		for r := 0; r < j; r++ {
			tmp := vals[r] / (right[r+1] + left[j-r])
			vals[r] = saved + right[r+1]*tmp
			saved = left[j-r] * tmp
		}
		vals[j] = saved
	}
	return span, vals
}
