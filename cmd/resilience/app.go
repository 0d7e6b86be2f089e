package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/greenresilience/orchestration/engine/curves"
	"github.com/greenresilience/orchestration/engine/figures"
	"github.com/greenresilience/orchestration/engine/hazard"
	"github.com/greenresilience/orchestration/engine/hazardindex"
	"github.com/greenresilience/orchestration/engine/orchestrate"
	"github.com/greenresilience/orchestration/engine/semgraph"
	"github.com/greenresilience/orchestration/engine/structural"
	"github.com/greenresilience/orchestration/engine/volume"
	"github.com/greenresilience/orchestration/pkg/config"
	"github.com/greenresilience/orchestration/pkg/fn"
	"github.com/greenresilience/orchestration/pkg/metrics"
	"github.com/greenresilience/orchestration/pkg/resilience"
)

// app holds what every subcommand shares. Connections are opened lazily
// and released by close.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *metrics.Registry

	closers []func()
}

func newApp(configPath, logLevel string) (*app, error) {
	log := newLogger(logLevel)
	slog.SetDefault(log)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, metrics: metrics.New()}, nil
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) serveMetrics() {
	if a.cfg.Metrics.Port > 0 {
		a.metrics.ServeAsync(a.cfg.Metrics.Port, a.log)
	}
}

func (a *app) loader() *hazard.Loader {
	l := hazard.NewLoader(a.log)
	l.AuxColumns = a.cfg.Hazard.AuxColumns
	return l
}

func (a *app) plotSink(ctx context.Context) (curves.PlotSink, error) {
	f := a.cfg.Figures
	switch f.Sink {
	case "dir":
		return figures.DirSink{Dir: f.Dir}, nil
	case "s3":
		return figures.NewS3Sink(ctx, figures.S3Options{Bucket: f.Bucket, Prefix: f.Prefix, Region: f.Region, Endpoint: f.Endpoint})
	default:
		return nil, nil
	}
}

func (a *app) fitOptions(ctx context.Context) (curves.FitOptions, error) {
	sink, err := a.plotSink(ctx)
	if err != nil {
		return curves.FitOptions{}, fmt.Errorf("figures: %w", err)
	}
	return curves.FitOptions{
		Degree:      a.cfg.Spline.Degree,
		Granularity: a.cfg.Spline.Granularity,
		Plot:        sink,
		Logger:      a.log,
	}, nil
}

// splines loads the hazard tables and fits every pair. Per-pair failures
// are logged and the fitted remainder returned.
func (a *app) splines(ctx context.Context) (curves.SplineSet, error) {
	models, err := hazard.ResolveModels(a.cfg.Hazard.BaseDir, a.cfg.Hazard.Models)
	if err != nil {
		return nil, err
	}
	ds, err := a.loader().Load(ctx, models, a.cfg.Hazard.BaseDir)
	if err != nil {
		return nil, err
	}
	opts, err := a.fitOptions(ctx)
	if err != nil {
		return nil, err
	}
	set, err := curves.BuildAllSplines(ctx, ds, opts)
	if be, ok := curves.IsBatchError(err); ok {
		for _, f := range be.Failures {
			a.log.Warn("curve fit failed", "location", f.Location, "model", f.Model, "error", f.Err)
		}
		return set, nil
	}
	return set, err
}

func (a *app) neo4jStore(ctx context.Context) (*semgraph.Neo4jStore, error) {
	g := a.cfg.Graph
	driver, err := neo4j.NewDriverWithContext(g.Neo4jURL, neo4j.BasicAuth(g.Neo4jUser, g.Neo4jPass, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connect %s: %w", g.Neo4jURL, err)
	}
	a.closers = append(a.closers, func() { driver.Close(context.Background()) })
	return semgraph.NewNeo4jStore(driver, g.Database), nil
}

// store opens the configured building graph.
func (a *app) store(ctx context.Context) (semgraph.Store, error) {
	if a.cfg.Graph.Source == "neo4j" {
		return a.neo4jStore(ctx)
	}
	return semgraph.LoadFile(a.cfg.Graph.File)
}

func (a *app) queries(ctx context.Context) (*semgraph.Queries, error) {
	st, err := a.store(ctx)
	if err != nil {
		return nil, err
	}
	return semgraph.NewQueries(st, a.metrics, a.log), nil
}

func (a *app) estimator() (*volume.Estimator, error) {
	if a.cfg.Volume.ShapeTable == "" {
		return nil, nil
	}
	shapes, err := volume.LoadShapeTable(a.cfg.Volume.ShapeTable)
	if err != nil {
		return nil, err
	}
	return volume.NewEstimator(shapes, a.log), nil
}

func (a *app) nats() (*nats.Conn, error) {
	if a.cfg.NATS.URL == "" {
		return nil, nil
	}
	nc, err := nats.Connect(a.cfg.NATS.URL, nats.Name("resilience"))
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", a.cfg.NATS.URL, err)
	}
	a.closers = append(a.closers, nc.Close)
	return nc, nil
}

func (a *app) index() (*hazardindex.Index, error) {
	if a.cfg.Qdrant.Addr == "" {
		return nil, nil
	}
	ix, err := hazardindex.New(hazardindex.Options{Addr: a.cfg.Qdrant.Addr, Collection: a.cfg.Qdrant.Collection, Logger: a.log})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { ix.Close() })
	return ix, nil
}

func (a *app) clientOpts() structural.ClientOpts {
	e := a.cfg.Engine
	retry := fn.DefaultRetry
	retry.MaxAttempts = e.Retries
	return structural.ClientOpts{
		Breaker: resilience.BreakerOpts{FailThreshold: e.BreakerThreshold},
		Retry:   retry,
		Metrics: a.metrics,
		Logger:  a.log,
	}
}

// execEngine always runs the local command, whatever the transport.
func (a *app) execEngine() *structural.Client {
	e := a.cfg.Engine
	return structural.NewExecEngine(structural.ExecConfig{Command: e.Command, Dir: e.Dir, Timeout: e.Timeout}, a.clientOpts())
}

func (a *app) engine() (structural.Engine, error) {
	if a.cfg.Engine.Transport != "nats" {
		return a.execEngine(), nil
	}
	nc, err := a.nats()
	if err != nil {
		return nil, err
	}
	if nc == nil {
		return nil, errors.New("engine transport nats needs nats.url")
	}
	return structural.NewNATSEngine(nc, a.cfg.Engine.Subject, a.clientOpts()), nil
}

func (a *app) orchestrator(ctx context.Context, dryRun bool) (*orchestrate.Orchestrator, error) {
	q, err := a.queries(ctx)
	if err != nil {
		return nil, err
	}
	est, err := a.estimator()
	if err != nil {
		return nil, err
	}
	fit, err := a.fitOptions(ctx)
	if err != nil {
		return nil, err
	}
	deps := orchestrate.Deps{Loader: a.loader(), Queries: q, Estimator: est, Metrics: a.metrics, Logger: a.log}
	if !dryRun {
		if deps.Engine, err = a.engine(); err != nil {
			return nil, err
		}
	}
	if deps.Index, err = a.index(); err != nil {
		return nil, err
	}
	if a.cfg.NATS.PublishRuns {
		if deps.NATS, err = a.nats(); err != nil {
			return nil, err
		}
	}
	c := a.cfg
	return orchestrate.New(deps, orchestrate.Options{
		HazardDir:      c.Hazard.BaseDir,
		Models:         c.Hazard.Models,
		Location:       c.Location,
		QueryLo:        c.Query.Lo,
		QueryHi:        c.Query.Hi,
		QueryN:         c.Query.N,
		Fit:            fit,
		ElevationScale: c.Engine.ElevationScale,
		EngineInches:   c.Engine.Inches,
		ModelPath:      c.Engine.ModelPath,
		Units:          c.Engine.Units,
		Intervals:      c.Engine.Intervals,
		SoilClass:      c.Engine.SoilClass,
		FrameType:      c.Engine.FrameType,
		Gravity:        c.Engine.Gravity,
		DryRun:         dryRun,
	})
}
