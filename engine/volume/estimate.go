// Package volume estimates concrete and steel volumes of columns and beams
// from the dimension literals stored in the building model.
//
// It is a feasibility heuristic. Literals come from an ifcXML export and carry
// at most a depth and up to three extents; there is no geometry beyond that.
// Any field that is missing or not numeric (the export writes None for unknown
// beam extents) drops that element from the total and is reported, never
// substituted.
package volume

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/greenresilience/orchestration/engine/domain"
)

// SquareInchesPerSquareFoot converts section areas to square feet.
const SquareInchesPerSquareFoot = 144.0

// Result is the outcome for one literal.
type Result struct {
	Element Element
	Family  Family
	Volume  float64 // ft^3 for wide-flange members, model units^3 otherwise
	OK      bool
	Errs    []error
}

// Report aggregates a batch. Total sums only the estimable elements.
type Report struct {
	Results   []Result
	Total     float64
	Estimated int
	Errors    []error
}

// Partial reports whether some but not all elements were estimable.
func (r Report) Partial() bool { return r.Estimated > 0 && r.Estimated < len(r.Results) }

// None reports whether no element could be estimated.
func (r Report) None() bool { return r.Estimated == 0 }

// Estimator computes volumes against a section table.
type Estimator struct {
	Shapes ShapeTable
	Logger *slog.Logger
}

// NewEstimator creates an Estimator. A nil table fails every wide-flange
// lookup.
func NewEstimator(shapes ShapeTable, log *slog.Logger) *Estimator {
	return &Estimator{Shapes: shapes, Logger: log}
}

func (e *Estimator) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Estimate parses and estimates each literal.
func (e *Estimator) Estimate(literals ...string) Report {
	var rep Report
	for _, lit := range literals {
		el, err := ParseElement(lit)
		var res Result
		if err != nil {
			res = Result{Errs: []error{err}}
		} else {
			res = e.EstimateElement(el)
		}
		rep.Results = append(rep.Results, res)
		if res.OK {
			rep.Total += res.Volume
			rep.Estimated++
			continue
		}
		rep.Errors = append(rep.Errors, res.Errs...)
		e.logger().Debug("element volume skipped", "name", res.Element.Name, "id", res.Element.ID, "errors", len(res.Errs))
	}
	return rep
}

// EstimateElement applies the family's formula.
func (e *Estimator) EstimateElement(el Element) Result {
	res := Result{Element: el, Family: el.Family()}
	f := fieldReader{fields: el.Fields}

	switch res.Family {
	case FamilyWideFlangeColumn, FamilyWideFlangeBeam:
		// Columns run along depth, beams along their first extent.
		lengthField := "depth"
		if res.Family == FamilyWideFlangeBeam {
			lengthField = "XandYDim"
		}
		section, _ := el.Section()
		area, err := e.Shapes.Area(section)
		if err != nil {
			f.errs = append(f.errs, err)
		}
		res.Volume = area * f.num(lengthField, 0) / SquareInchesPerSquareFoot
	case FamilyRectColumn:
		res.Volume = f.num("depth", 0) * f.num("XandYDim", 0) * f.num("XandYDim", 1)
	case FamilyRectBeam:
		res.Volume = f.num("XandYDim", 0) * f.num("XandYDim", 1) * f.num("XandYDim", 2)
	default:
		f.errs = append(f.errs, &domain.ParseError{Field: "kind", Value: el.Class})
	}

	res.Errs = f.errs
	res.OK = len(f.errs) == 0
	if !res.OK {
		res.Volume = 0
	}
	return res
}

type fieldReader struct {
	fields map[string][]string
	errs   []error
}

// num parses fields[key][i], recording a ParseError on failure.
func (r *fieldReader) num(key string, i int) float64 {
	name := fmt.Sprintf("%s[%d]", key, i)
	vals := r.fields[key]
	if i >= len(vals) {
		r.errs = append(r.errs, &domain.ParseError{Field: name, Value: ""})
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(vals[i]), 64)
	if err != nil {
		r.errs = append(r.errs, &domain.ParseError{Field: name, Value: vals[i]})
		return 0
	}
	return v
}
