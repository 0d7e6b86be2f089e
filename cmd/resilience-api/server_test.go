package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/greenresilience/orchestration/pkg/config"
	"github.com/greenresilience/orchestration/pkg/metrics"
	"github.com/greenresilience/orchestration/pkg/mid"
)

const buildingTTL = `@prefix rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#> .
@prefix ubo: <http://www.sw.org/UBO#> .
@prefix ex: <http://example.org/b#> .

ex:SB1 rdf:type ubo:SpaceBoundary ; ubo:hasProperty ex:SB1_elev .
ex:SB1_elev ubo:hasValue "10.5" .
ex:SB2 rdf:type ubo:SpaceBoundary ; ubo:hasProperty ex:SB2_elev .
ex:SB2_elev ubo:hasValue "0" .
`

const hazardTable = "loc,lat,lon,0.1,0.5,1,2\nChicago IL,41.8,-87.6,0.05,0.008,0.002,0.0003\n"

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// testConfig lays out two hazard models and a building graph under a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	for _, m := range []string{"PGA", "SA1P0"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "hazard", m), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "hazard", m, "total.csv"), []byte(hazardTable), 0o644))
	}
	ttl := filepath.Join(dir, "building.ttl")
	require.NoError(t, os.WriteFile(ttl, []byte(buildingTTL), 0o644))

	c := config.Default()
	cfg := &c
	cfg.Location = "Chicago IL"
	cfg.Hazard.BaseDir = filepath.Join(dir, "hazard")
	cfg.Hazard.Models = []string{"*"}
	cfg.Spline.Degree = 1
	cfg.Graph.Source = "file"
	cfg.Graph.File = ttl
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *server {
	t.Helper()
	s, err := newServer(context.Background(), cfg, metrics.New(), quiet())
	require.NoError(t, err)
	t.Cleanup(s.close)
	return s
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	rec := get(t, s.routes(), "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.Locations)
	assert.Zero(t, body.FitFailures)
	assert.False(t, body.LoadedAt.IsZero())
}

func TestLocations(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	rec := get(t, s.routes(), "/api/locations")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"locations":["Chicago IL"]}`, rec.Body.String())
}

func TestCurve(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	rec := get(t, s.routes(), "/api/curves/Chicago%20IL/PGA?x=0.5,1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body CurveResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Chicago IL", body.Location)
	assert.Equal(t, 1, body.Degree)
	assert.Equal(t, []float64{0.5, 1}, body.X)
	require.Len(t, body.Y, 2)
	assert.InDelta(t, 0.008, body.Y[0], 1e-12)
	assert.InDelta(t, 0.002, body.Y[1], 1e-12)
}

func TestCurveDefaultGrid(t *testing.T) {
	cfg := testConfig(t)
	s := newTestServer(t, cfg)
	rec := get(t, s.routes(), "/api/curves/Chicago%20IL/SA1P0")
	require.Equal(t, http.StatusOK, rec.Code)

	var body CurveResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Len(t, body.X, cfg.Query.N)
	assert.Len(t, body.Y, cfg.Query.N)
}

func TestCurveErrors(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	h := s.routes()

	rec := get(t, h, "/api/curves/Atlantis/PGA")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Atlantis")

	rec = get(t, h, "/api/curves/Chicago%20IL/PGA?x=0.5,abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, h, "/api/curves/Chicago%20IL/PGA?x=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, h, "/api/curves/Chicago%20IL/PGA?x=0.5,NaN")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestElevations(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	h := s.routes()

	rec := get(t, h, "/api/elevations")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"unit":"ft","elevations":[0,10.5]}`, rec.Body.String())

	rec = get(t, h, "/api/elevations?unit=in")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"unit":"in","elevations":[0,126]}`, rec.Body.String())

	rec = get(t, h, "/api/elevations?unit=m")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	h := mid.Chain(s.routes(), mid.Metrics(s.metrics))
	get(t, h, "/api/health")

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "resilience_http_requests_total")
}

func TestRateLimitedChain(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	h := mid.Chain(s.routes(), mid.RateLimit(rate.NewLimiter(rate.Every(time.Hour), 1)))

	assert.Equal(t, http.StatusOK, get(t, h, "/api/health").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(t, h, "/api/health").Code)
}

func TestNewServerBadHazard(t *testing.T) {
	cfg := testConfig(t)
	cfg.Hazard.Models = []string{"PGV"}
	_, err := newServer(context.Background(), cfg, metrics.New(), quiet())
	assert.Error(t, err)
}

func TestReloadKeepsOldCurvesOnError(t *testing.T) {
	cfg := testConfig(t)
	s := newTestServer(t, cfg)

	path := filepath.Join(cfg.Hazard.BaseDir, "PGA", "total.csv")
	require.NoError(t, os.WriteFile(path, []byte("loc,lat,lon,0.1\nChicago IL,1,2,oops\n"), 0o644))
	assert.Error(t, s.reload(context.Background()))
	assert.Equal(t, 1, s.locationCount())
}

func TestWatchReloadsChangedTable(t *testing.T) {
	cfg := testConfig(t)
	s := newTestServer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.watch(ctx) }()
	// give the watcher time to register its directories
	time.Sleep(100 * time.Millisecond)

	extra := strings.TrimSuffix(hazardTable, "\n") + "\nMemphis TN,35.1,-90,0.09,0.01,0.003,0.0005\n"
	for _, m := range []string{"PGA", "SA1P0"} {
		path := filepath.Join(cfg.Hazard.BaseDir, m, "total.csv")
		require.NoError(t, os.WriteFile(path, []byte(extra), 0o644))
	}

	require.Eventually(t, func() bool { return s.locationCount() == 2 }, 5*time.Second, 50*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
