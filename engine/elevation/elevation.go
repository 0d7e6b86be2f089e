// Package elevation turns level query results into the sorted elevation
// vector the structural engine takes.
package elevation

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/greenresilience/orchestration/engine/semgraph"
	"github.com/greenresilience/orchestration/pkg/fn"
)

// InchesPerFoot converts model elevations (feet) to engine units (inches).
const InchesPerFoot = 12.0

// Extract flattens every value list, keeps the values that parse as floats,
// multiplies them by scale, and returns them deduplicated in ascending order.
// Non-numeric values are names and descriptions attached to the same
// boundaries; they are dropped without error, as are NaN and infinities.
// A scale of 0 means 1.
func Extract(levels map[semgraph.Term][]semgraph.Term, scale float64) []float64 {
	if scale == 0 {
		scale = 1
	}
	var all []semgraph.Term
	for _, vals := range levels {
		all = append(all, vals...)
	}
	parsed := fn.FilterMap(all, func(t semgraph.Term) (float64, bool) {
		f, err := strconv.ParseFloat(strings.TrimSpace(t.Value), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f * scale, true
	})
	out := fn.Unique(parsed)
	sort.Float64s(out)
	if out == nil {
		out = []float64{}
	}
	return out
}

// FeetToInches converts an elevation vector for engines configured in inches.
func FeetToInches(elevFt []float64) []float64 {
	return fn.Map(elevFt, func(ft float64) float64 { return ft * InchesPerFoot })
}
