// Package hazard reads USGS hazard curve tables into a location -> model ->
// curve dataset.
package hazard

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/greenresilience/orchestration/engine/domain"
)

const (
	// CurveFile is the per-model table produced by the USGS curve tooling.
	CurveFile = "total.csv"
	// DefaultAuxColumns counts the columns after the location (lat, lon) that are dropped.
	DefaultAuxColumns = 2
)

// Loader reads one CurveFile per model under a base directory.
type Loader struct {
	AuxColumns int
	Logger     *slog.Logger
}

// NewLoader creates a Loader that drops the default lat/lon columns.
func NewLoader(log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{AuxColumns: DefaultAuxColumns, Logger: log}
}

// Load reads <baseDir>/<model>/total.csv for every model and reshapes the
// tables into a Dataset. Model names must match the subdirectory names.
func (l *Loader) Load(ctx context.Context, models []string, baseDir string) (domain.Dataset, error) {
	ds := domain.Dataset{}
	for _, model := range models {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := filepath.Join(baseDir, model, CurveFile)
		if err := l.loadModel(ds, model, p); err != nil {
			return nil, err
		}
		l.logger().Info("hazard: model loaded", "model", model, "path", p)
	}
	return ds, nil
}

func (l *Loader) loadModel(ds domain.Dataset, model, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return &domain.DataFormatError{Model: model, Path: p, Msg: "open", Err: err}
	}
	defer f.Close()

	curves, err := l.Read(f, model, p)
	if err != nil {
		return err
	}
	for location, c := range curves {
		ds.Put(location, model, c)
	}
	return nil
}

// Read parses one model table. The first row holds the intensity levels after
// the location label and the auxiliary columns; every following row is a
// location, its auxiliary columns and one exceedance rate per level. name is
// only used in errors.
func (l *Loader) Read(r io.Reader, model, name string) (map[string]domain.Curve, error) {
	aux := l.AuxColumns
	if aux < 0 {
		aux = 0
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &domain.DataFormatError{Model: model, Path: name, Msg: "empty file"}
	}
	if err != nil {
		return nil, &domain.DataFormatError{Model: model, Path: name, Msg: "read header", Err: err}
	}
	skip := 1 + aux
	if len(header) <= skip {
		return nil, &domain.DataFormatError{Model: model, Path: name, Row: 1,
			Msg: fmt.Sprintf("header has %d columns, need more than %d", len(header), skip)}
	}
	xs, err := parseFloats(header[skip:])
	if err != nil {
		return nil, &domain.DataFormatError{Model: model, Path: name, Row: 1, Msg: "intensity level", Err: err}
	}

	out := make(map[string]domain.Curve)
	for row := 2; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &domain.DataFormatError{Model: model, Path: name, Row: row, Msg: "read row", Err: err}
		}
		if len(rec) != len(header) {
			return nil, &domain.DataFormatError{Model: model, Path: name, Row: row,
				Msg: fmt.Sprintf("%d values, header has %d", len(rec), len(header))}
		}
		location := strings.TrimSpace(rec[0])
		ys, err := parseFloats(rec[skip:])
		if err != nil {
			return nil, &domain.DataFormatError{Model: model, Path: name, Row: row, Msg: "exceedance rate", Err: err}
		}
		if _, dup := out[location]; dup {
			l.logger().Warn("hazard: duplicate location, keeping later row", "model", model, "location", location, "row", row)
		}
		x := make([]float64, len(xs))
		copy(x, xs)
		out[location] = domain.Curve{X: x, Y: ys}
	}
	return out, nil
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func parseFloats(cells []string) ([]float64, error) {
	out := make([]float64, len(cells))
	for i, c := range cells {
		v, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Discover returns the model names under baseDir that carry a CurveFile,
// sorted. pattern selects model directories, e.g. "*" or "SA*".
func Discover(baseDir, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	matches, err := doublestar.Glob(os.DirFS(baseDir), path.Join(pattern, CurveFile))
	if err != nil {
		return nil, fmt.Errorf("hazard: discover %s: %w", pattern, err)
	}
	models := make([]string, 0, len(matches))
	for _, m := range matches {
		models = append(models, path.Dir(m))
	}
	sort.Strings(models)
	return models, nil
}

// ResolveModels expands glob entries such as "*" against baseDir and keeps
// plain names as given. Duplicates are dropped.
func ResolveModels(baseDir string, entries []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, e := range entries {
		names := []string{e}
		if strings.ContainsAny(e, "*?[{") {
			found, err := Discover(baseDir, e)
			if err != nil {
				return nil, err
			}
			names = found
		}
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out, nil
}
