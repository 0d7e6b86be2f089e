package curves

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/greenresilience/orchestration/engine/domain"
)

// SplineSet maps location -> model -> spline, mirroring domain.Dataset.
type SplineSet map[string]map[string]*Spline

// Get returns the spline for a (location, model) pair.
func (s SplineSet) Get(location, model string) (*Spline, bool) {
	sp, ok := s[location][model]
	return sp, ok
}

// Locations returns the location keys in sorted order.
func (s SplineSet) Locations() []string {
	out := make([]string, 0, len(s))
	for loc := range s {
		out = append(out, loc)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of splines held.
func (s SplineSet) Len() int {
	n := 0
	for _, m := range s {
		n += len(m)
	}
	return n
}

func (s SplineSet) put(sp *Spline) {
	m, ok := s[sp.Location]
	if !ok {
		m = make(map[string]*Spline)
		s[sp.Location] = m
	}
	m[sp.Model] = sp
}

// PairError is one failed (location, model) fit.
type PairError struct {
	Location string
	Model    string
	Err      error
}

// BatchError lists every pair BuildAllSplines could not fit, in location then
// model order.
type BatchError struct {
	Failures []PairError
}

func (e *BatchError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s/%s", f.Location, f.Model)
	}
	return fmt.Sprintf("%d curve fit(s) failed: %s", len(e.Failures), strings.Join(parts, ", "))
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// BuildAllSplines fits every curve in ds. Every pair is attempted; the result
// holds each successful fit and the error, a *BatchError, lists the rest. The
// Location and Model fields of opts are set per pair. Cancellation stops the
// batch and returns ctx.Err().
func BuildAllSplines(ctx context.Context, ds domain.Dataset, opts FitOptions) (SplineSet, error) {
	out := make(SplineSet, len(ds))
	var failed []PairError

	locations := make([]string, 0, len(ds))
	for loc := range ds {
		locations = append(locations, loc)
	}
	sort.Strings(locations)

	for _, loc := range locations {
		models := make([]string, 0, len(ds[loc]))
		for m := range ds[loc] {
			models = append(models, m)
		}
		sort.Strings(models)
		for _, m := range models {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			o := opts
			o.Location, o.Model = loc, m
			sp, err := Fit(ctx, ds[loc][m], o)
			if err != nil {
				opts.logger().Warn("curve fit failed", "location", loc, "model", m, "error", err)
				failed = append(failed, PairError{Location: loc, Model: m, Err: err})
				continue
			}
			out.put(sp)
		}
	}
	if len(failed) > 0 {
		return out, &BatchError{Failures: failed}
	}
	return out, nil
}

// IsBatchError reports whether err carries a *BatchError, returning it.
func IsBatchError(err error) (*BatchError, bool) {
	var be *BatchError
	ok := errors.As(err, &be)
	return be, ok
}
