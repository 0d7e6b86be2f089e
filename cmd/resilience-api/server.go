package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/greenresilience/orchestration/engine/curves"
	"github.com/greenresilience/orchestration/engine/elevation"
	"github.com/greenresilience/orchestration/engine/hazard"
	"github.com/greenresilience/orchestration/engine/semgraph"
	"github.com/greenresilience/orchestration/pkg/config"
	"github.com/greenresilience/orchestration/pkg/metrics"
)

// reloadDebounce coalesces the burst of events one file rewrite produces.
const reloadDebounce = 500 * time.Millisecond

// server owns the fitted curves. Readers take the read lock; a reload fits
// a fresh set off-lock and swaps it in.
type server struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *metrics.Registry
	queries *semgraph.Queries
	closer  func()

	mu       sync.RWMutex
	splines  curves.SplineSet
	failures int
	loadedAt time.Time
}

func newServer(ctx context.Context, cfg *config.Config, reg *metrics.Registry, log *slog.Logger) (*server, error) {
	s := &server{cfg: cfg, log: log, metrics: reg, closer: func() {}}
	store, err := s.openStore(ctx)
	if err != nil {
		return nil, err
	}
	s.queries = semgraph.NewQueries(store, reg, log)
	if err := s.reload(ctx); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *server) openStore(ctx context.Context) (semgraph.Store, error) {
	g := s.cfg.Graph
	if g.Source != "neo4j" {
		return semgraph.LoadFile(g.File)
	}
	driver, err := neo4j.NewDriverWithContext(g.Neo4jURL, neo4j.BasicAuth(g.Neo4jUser, g.Neo4jPass, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connect %s: %w", g.Neo4jURL, err)
	}
	s.closer = func() { driver.Close(context.Background()) }
	return semgraph.NewNeo4jStore(driver, g.Database), nil
}

func (s *server) close() { s.closer() }

// reload re-reads every hazard table and refits. On error the previous
// curves stay in service.
func (s *server) reload(ctx context.Context) error {
	start := time.Now()
	h := s.cfg.Hazard
	models, err := hazard.ResolveModels(h.BaseDir, h.Models)
	if err != nil {
		return err
	}
	loader := hazard.NewLoader(s.log)
	loader.AuxColumns = h.AuxColumns
	ds, err := loader.Load(ctx, models, h.BaseDir)
	if err != nil {
		return err
	}
	set, err := curves.BuildAllSplines(ctx, ds, curves.FitOptions{
		Degree:      s.cfg.Spline.Degree,
		Granularity: s.cfg.Spline.Granularity,
		Logger:      s.log,
	})
	failures := 0
	if be, ok := curves.IsBatchError(err); ok {
		failures = len(be.Failures)
		for _, f := range be.Failures {
			s.metrics.ObserveCurveFit(f.Model, f.Err)
		}
	} else if err != nil {
		return err
	}

	s.mu.Lock()
	s.splines, s.failures, s.loadedAt = set, failures, time.Now()
	s.mu.Unlock()
	s.log.Info("hazard curves loaded", "locations", set.Len(), "failures", failures, "took", time.Since(start))
	return nil
}

func (s *server) snapshot() (curves.SplineSet, int, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.splines, s.failures, s.loadedAt
}

func (s *server) locationCount() int {
	set, _, _ := s.snapshot()
	return len(set)
}

// watch reloads after any total.csv under the hazard directory changes.
func (s *server) watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	base := s.cfg.Hazard.BaseDir
	if err := w.Add(base); err != nil {
		return err
	}
	models, err := hazard.ResolveModels(base, s.cfg.Hazard.Models)
	if err != nil {
		return err
	}
	for _, m := range models {
		if err := w.Add(filepath.Join(base, m)); err != nil {
			s.log.Warn("cannot watch model directory", "model", m, "err", err)
		}
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != hazard.CurveFile || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			if err := s.reload(ctx); err != nil {
				s.log.Error("hazard reload failed", "err", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("hazard watcher error", "err", err)
		}
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/locations", s.handleLocations)
	mux.HandleFunc("GET /api/curves/{location}/{model}", s.handleCurve)
	mux.HandleFunc("GET /api/elevations", s.handleElevations)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

// --- Handlers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// HealthResponse is the JSON body of GET /api/health.
type HealthResponse struct {
	Status      string    `json:"status"`
	Locations   int       `json:"locations"`
	FitFailures int       `json:"fit_failures"`
	LoadedAt    time.Time `json:"loaded_at"`
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	set, failures, at := s.snapshot()
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Locations: len(set), FitFailures: failures, LoadedAt: at})
}

func (s *server) handleLocations(w http.ResponseWriter, _ *http.Request) {
	set, _, _ := s.snapshot()
	writeJSON(w, http.StatusOK, map[string][]string{"locations": set.Locations()})
}

// CurveResponse is the JSON body of GET /api/curves/{location}/{model}.
type CurveResponse struct {
	Location string    `json:"location"`
	Model    string    `json:"model"`
	Degree   int       `json:"degree"`
	X        []float64 `json:"x"`
	Y        []float64 `json:"y"`
}

func (s *server) handleCurve(w http.ResponseWriter, r *http.Request) {
	loc, model := r.PathValue("location"), r.PathValue("model")
	set, _, _ := s.snapshot()
	sp, ok := set.Get(loc, model)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no curve for %s/%s", loc, model))
		return
	}
	xs := curves.Linspace(s.cfg.Query.Lo, s.cfg.Query.Hi, s.cfg.Query.N)
	if q := r.URL.Query().Get("x"); q != "" {
		parsed, err := parseXs(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		xs = parsed
	}
	writeJSON(w, http.StatusOK, CurveResponse{Location: loc, Model: model, Degree: sp.Degree(), X: xs, Y: sp.Eval(xs)})
}

func parseXs(q string) ([]float64, error) {
	parts := strings.Split(q, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || v < 0 || math.IsNaN(v) {
			return nil, fmt.Errorf("x must be non-negative numbers, got %q", p)
		}
		out = append(out, v)
	}
	return out, nil
}

// ElevationsResponse is the JSON body of GET /api/elevations.
type ElevationsResponse struct {
	Unit       string    `json:"unit"`
	Elevations []float64 `json:"elevations"`
}

func (s *server) handleElevations(w http.ResponseWriter, r *http.Request) {
	levels, err := s.queries.GetLevels(r.Context())
	if err != nil {
		s.log.Error("level query failed", "err", err)
		code := http.StatusInternalServerError
		if errors.Is(err, context.Canceled) {
			code = http.StatusServiceUnavailable
		}
		writeError(w, code, "graph query failed")
		return
	}
	resp := ElevationsResponse{Unit: "ft", Elevations: elevation.Extract(levels, s.cfg.Engine.ElevationScale)}
	switch r.URL.Query().Get("unit") {
	case "", "ft":
	case "in":
		resp.Unit, resp.Elevations = "in", elevation.FeetToInches(resp.Elevations)
	default:
		writeError(w, http.StatusBadRequest, "unit must be ft or in")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
