// Package domain defines the shared types and the error taxonomy of the
// resilience pipeline: hazard curves keyed by location and intensity measure,
// and the typed failures every stage reports.
package domain

// Intensity measures published in the USGS hazard curve sets. The names double
// as subdirectory names under the hazard base directory.
const (
	PGA   = "PGA"   // peak ground acceleration
	SA0P2 = "SA0P2" // spectral acceleration, 0.2 s period
	SA1P0 = "SA1P0" // spectral acceleration, 1.0 s period
)

// DefaultModels is the set of intensity measures the engine expects.
var DefaultModels = []string{PGA, SA0P2, SA1P0}

// Curve is one hazard curve: intensity levels X paired index-for-index with
// annual exceedance rates Y.
type Curve struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

// Len returns the number of samples.
func (c Curve) Len() int { return len(c.X) }

// Dataset maps location -> model -> curve.
type Dataset map[string]map[string]Curve

// Put stores a curve, creating the location entry when needed.
func (d Dataset) Put(location, model string, c Curve) {
	byModel, ok := d[location]
	if !ok {
		byModel = make(map[string]Curve)
		d[location] = byModel
	}
	byModel[model] = c
}

// Get returns the curve for a (location, model) pair.
func (d Dataset) Get(location, model string) (Curve, bool) {
	c, ok := d[location][model]
	return c, ok
}

// Pairs returns the number of (location, model) curves held.
func (d Dataset) Pairs() int {
	n := 0
	for _, byModel := range d {
		n += len(byModel)
	}
	return n
}
