package domain

import "math"

// ValidateCurve checks the structural invariants of a curve before fitting:
// equal lengths, at least minPoints samples, non-negative finite values and no
// duplicate intensity levels.
func ValidateCurve(location, model string, c Curve, minPoints int) error {
	if len(c.X) != len(c.Y) {
		return NewCurveFitError(location, model, "x has %d values, y has %d", len(c.X), len(c.Y))
	}
	seen := make(map[float64]struct{}, len(c.X))
	for i, x := range c.X {
		if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(c.Y[i]) || math.IsInf(c.Y[i], 0) {
			return NewCurveFitError(location, model, "non-finite sample at index %d", i)
		}
		if x < 0 || c.Y[i] < 0 {
			return NewCurveFitError(location, model, "negative sample at index %d", i)
		}
		if _, dup := seen[x]; dup {
			return NewCurveFitError(location, model, "duplicate intensity %g", x)
		}
		seen[x] = struct{}{}
	}
	if len(seen) < minPoints {
		return NewCurveFitError(location, model, "need %d distinct points, have %d", minPoints, len(seen))
	}
	return nil
}
