// Package curves fits interpolating splines to hazard curves in log-log space
// and evaluates them at arbitrary intensities.
package curves

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"

	"github.com/greenresilience/orchestration/engine/domain"
)

const (
	// DefaultDegree is the spline degree used when none is configured.
	DefaultDegree = 3
	// DefaultGranularity is the number of samples drawn for diagnostic plots.
	DefaultGranularity = 500
)

// PlotSink stores rendered diagnostic plots.
type PlotSink interface {
	Put(ctx context.Context, name string, data []byte) error
}

// FitOptions controls a fit. The zero value fits a cubic spline without plots.
type FitOptions struct {
	Degree      int
	Granularity int
	Plot        PlotSink // optional
	Location    string
	Model       string
	Logger      *slog.Logger
}

// Spline is an immutable fitted hazard curve. Eval maps intensities to
// exceedance rates through exp(fit(log(x))).
type Spline struct {
	Location string
	Model    string
	degree   int
	fit      interp.Predictor
	logXMin  float64
	logXMax  float64
	samples  domain.Curve // imputed and sorted by x
}

// Degree returns the polynomial degree of the fit.
func (s *Spline) Degree() int { return s.degree }

// Domain returns the smallest and largest fitted intensities.
func (s *Spline) Domain() (float64, float64) {
	return s.samples.X[0], s.samples.X[len(s.samples.X)-1]
}

// Samples returns a copy of the imputed, x-sorted points the spline passes through.
func (s *Spline) Samples() domain.Curve {
	x := make([]float64, len(s.samples.X))
	y := make([]float64, len(s.samples.Y))
	copy(x, s.samples.X)
	copy(y, s.samples.Y)
	return domain.Curve{X: x, Y: y}
}

// At evaluates the spline at one intensity. Zero is imputed like the fit
// inputs; intensities outside the fitted range take the nearest end value.
// Negative and NaN intensities have no rate and yield NaN.
func (s *Spline) At(x float64) float64 {
	if x < 0 || math.IsNaN(x) {
		return math.NaN()
	}
	if x == 0 {
		x = Epsilon
	}
	lx := math.Log(x)
	if lx < s.logXMin {
		lx = s.logXMin
	}
	if lx > s.logXMax {
		lx = s.logXMax
	}
	return math.Exp(s.fit.Predict(lx))
}

// Eval evaluates the spline at every query point. The curve is held
// constant beyond its fitted range rather than extrapolated, so rates never
// grow past the first sample or fall below the last.
func (s *Spline) Eval(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = s.At(x)
	}
	return out
}

func (o FitOptions) degree() int {
	if o.Degree <= 0 {
		return DefaultDegree
	}
	return o.Degree
}

func (o FitOptions) granularity() int {
	if o.Granularity <= 1 {
		return DefaultGranularity
	}
	return o.Granularity
}

func (o FitOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// newPredictor picks gonum's interpolators for degrees 1 and 3 and a
// general B-spline for the others.
func newPredictor(degree int) (interp.FittablePredictor, bool) {
	switch {
	case degree == 1:
		return &interp.PiecewiseLinear{}, true
	case degree == 3:
		return &interp.NaturalCubic{}, true
	case degree >= 2 && degree <= MaxDegree:
		return &BSpline{Degree: degree}, true
	}
	return nil, false
}

// Fit builds the spline for one curve, labelled with opts.Location and
// opts.Model. Degenerate curves fail with a *domain.CurveFitError. When a
// PlotSink is set a diagnostic plot is written; plot failures are logged and
// do not affect the result.
func Fit(ctx context.Context, c domain.Curve, opts FitOptions) (*Spline, error) {
	location, model := opts.Location, opts.Model
	degree := opts.degree()
	pred, ok := newPredictor(degree)
	if !ok {
		return nil, domain.NewCurveFitError(location, model, "unsupported degree %d (want 1..%d)", degree, MaxDegree)
	}
	if len(c.X) != len(c.Y) {
		return nil, domain.NewCurveFitError(location, model, "x has %d values, y has %d", len(c.X), len(c.Y))
	}

	x, y := ImputeZeros(c.X, c.Y)
	imputed := domain.Curve{X: x, Y: y}
	if err := domain.ValidateCurve(location, model, imputed, degree+1); err != nil {
		return nil, err
	}
	sortByX(imputed)

	lx := make([]float64, len(x))
	ly := make([]float64, len(y))
	for i := range imputed.X {
		lx[i] = math.Log(imputed.X[i])
		ly[i] = math.Log(imputed.Y[i])
	}
	if err := pred.Fit(lx, ly); err != nil {
		return nil, domain.NewCurveFitError(location, model, "%v", err)
	}

	s := &Spline{
		Location: location,
		Model:    model,
		degree:   degree,
		fit:      pred,
		logXMin:  lx[0],
		logXMax:  lx[len(lx)-1],
		samples:  imputed,
	}
	if opts.Plot != nil {
		plotSpline(ctx, s, opts)
	}
	return s, nil
}

func sortByX(c domain.Curve) {
	idx := make([]int, len(c.X))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return c.X[idx[a]] < c.X[idx[b]] })
	x := make([]float64, len(c.X))
	y := make([]float64, len(c.Y))
	for i, j := range idx {
		x[i], y[i] = c.X[j], c.Y[j]
	}
	copy(c.X, x)
	copy(c.Y, y)
}

// Linspace returns n evenly spaced values over [lo, hi].
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}
