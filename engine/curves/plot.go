package curves

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotName is the object name a diagnostic plot is stored under.
func PlotName(location, model string) string {
	return location + model + ".png"
}

// plotSpline renders the fitted curve over its positive samples and hands the
// PNG to opts.Plot. Errors are logged only.
func plotSpline(ctx context.Context, s *Spline, opts FitOptions) {
	log := opts.logger().With("location", s.Location, "model", s.Model)
	data, err := RenderPlot(s, opts.granularity())
	if err != nil {
		log.Warn("plot render failed", "error", err)
		return
	}
	if err := opts.Plot.Put(ctx, PlotName(s.Location, s.Model), data); err != nil {
		log.Warn("plot write failed", "error", err)
	}
}

// RenderPlot draws a log-log chart of the spline's samples and of the fit
// sampled at n points, returning PNG bytes. Imputed zeros are left out so the
// axes stay within the data's real range.
func RenderPlot(s *Spline, n int) ([]byte, error) {
	var pts plotter.XYs
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, x := range s.samples.X {
		y := s.samples.Y[i]
		if x <= Epsilon || y <= Epsilon {
			continue
		}
		pts = append(pts, plotter.XY{X: x, Y: y})
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	if len(pts) < 2 {
		return nil, fmt.Errorf("plot %s/%s: fewer than two positive samples", s.Location, s.Model)
	}

	var line plotter.XYs
	for _, x := range Linspace(lo, hi, n) {
		if y := s.At(x); y > 0 {
			line = append(line, plotter.XY{X: x, Y: y})
		}
	}

	p := plot.New()
	p.Title.Text = s.Location + "\n" + s.Model
	p.X.Label.Text = "intensity (g)"
	p.Y.Label.Text = "annual exceedance rate"
	p.X.Scale = plot.LogScale{}
	p.Y.Scale = plot.LogScale{}
	p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("plot %s/%s: scatter: %w", s.Location, s.Model, err)
	}
	fitted, err := plotter.NewLine(line)
	if err != nil {
		return nil, fmt.Errorf("plot %s/%s: line: %w", s.Location, s.Model, err)
	}
	p.Add(scatter, fitted)

	w, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("plot %s/%s: %w", s.Location, s.Model, err)
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("plot %s/%s: encode: %w", s.Location, s.Model, err)
	}
	return buf.Bytes(), nil
}
