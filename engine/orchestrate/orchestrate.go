// Package orchestrate sequences a full resilience run: load hazard curves,
// fit splines, sample the chosen location, pull floor elevations and
// component dimensions from the building graph, then drive the structural
// engine through its hazard, response and damage modules.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/greenresilience/orchestration/engine/curves"
	"github.com/greenresilience/orchestration/engine/domain"
	"github.com/greenresilience/orchestration/engine/elevation"
	"github.com/greenresilience/orchestration/engine/hazard"
	"github.com/greenresilience/orchestration/engine/hazardindex"
	"github.com/greenresilience/orchestration/engine/semgraph"
	"github.com/greenresilience/orchestration/engine/structural"
	"github.com/greenresilience/orchestration/engine/volume"
	"github.com/greenresilience/orchestration/pkg/fn"
	"github.com/greenresilience/orchestration/pkg/metrics"
	"github.com/greenresilience/orchestration/pkg/natsutil"
)

// CompletedSubject carries a Summary after every successful run.
const CompletedSubject = "resilience.run.completed"

// Stage names, also used as metric labels and span names.
const (
	StageLoadHazard     = "load_hazard"
	StageFitCurves      = "fit_curves"
	StageIndexCurves    = "index_curves"
	StageSampleCurves   = "sample_curves"
	StageQueryElevation = "query_elevations"
	StageEstimateVolume = "estimate_volumes"
	StageHazard         = "engine_hazard"
	StageResponse       = "engine_response"
	StageDamage         = "engine_damage"
)

// Query grid used to sample each curve before it goes to the engine.
const (
	DefaultQueryLo = 0.0
	DefaultQueryHi = 5.0
	DefaultQueryN  = 50
)

// Deps holds the collaborators of a run. Index, Estimator and NATS are
// optional.
type Deps struct {
	Loader    *hazard.Loader
	Queries   *semgraph.Queries
	Estimator *volume.Estimator
	Engine    structural.Engine
	Index     *hazardindex.Index
	NATS      *nats.Conn
	Metrics   *metrics.Registry
	Logger    *slog.Logger
}

// Options parameterise a run. Zero values take the package defaults.
type Options struct {
	HazardDir string
	Models    []string // directory entries under HazardDir
	Location  string

	QueryLo, QueryHi float64
	QueryN           int

	Fit curves.FitOptions

	ElevationScale float64
	EngineInches   bool // convert feet to inches before calling the engine
	ModelPath      string
	Units          int
	Intervals      int
	SoilClass      string
	FrameType      string
	Gravity        float64
	DryRun         bool // stop before the engine stages
	CompletedTopic string
}

func (o Options) withDefaults() Options {
	if len(o.Models) == 0 {
		o.Models = domain.DefaultModels
	}
	if o.QueryN <= 0 {
		o.QueryLo, o.QueryHi, o.QueryN = DefaultQueryLo, DefaultQueryHi, DefaultQueryN
	}
	if o.ElevationScale == 0 {
		o.ElevationScale = 1
	}
	if o.Units == 0 {
		o.Units = structural.DefaultUnits
	}
	if o.Intervals == 0 {
		o.Intervals = structural.DefaultIntervals
	}
	if o.SoilClass == "" {
		o.SoilClass = structural.DefaultSoilClass
	}
	if o.FrameType == "" {
		o.FrameType = structural.DefaultFrameType
	}
	if o.Gravity == 0 {
		o.Gravity = structural.DefaultGravity
	}
	if o.CompletedTopic == "" {
		o.CompletedTopic = CompletedSubject
	}
	return o
}

// QueryPoints returns the sampling grid.
func (o Options) QueryPoints() []float64 {
	o = o.withDefaults()
	return curves.Linspace(o.QueryLo, o.QueryHi, o.QueryN)
}

// Run is the state threaded through the stages.
type Run struct {
	ID      string
	Started time.Time

	Models      []string
	Dataset     domain.Dataset
	Splines     curves.SplineSet
	FitFailures []curves.PairError
	Indexed     int

	QueryPoints []float64
	Sampled     map[string]domain.Curve // model -> curve at QueryPoints

	ElevFt  []float64 // level elevations in feet, ascending
	Volumes volume.Report

	Hazard   structural.HazardOutput
	Response structural.ResponseOutput
	Damage   structural.DamageOutput
}

// Summary is the published digest of a run.
type Summary struct {
	RunID       string    `json:"run_id"`
	Location    string    `json:"location"`
	Models      []string  `json:"models"`
	ElevFt      []float64 `json:"elevations_ft"`
	Volume      float64   `json:"volume"` // ft^3 for wide-flange members, model length unit cubed otherwise
	FitFailures int       `json:"fit_failures"`
	Cost        []float64 `json:"cost"`
	DurationMS  int64     `json:"duration_ms"`
}

// Summary digests r for the given location.
func (r *Run) Summary(location string) Summary {
	return Summary{
		RunID:       r.ID,
		Location:    location,
		Models:      r.Models,
		ElevFt:      r.ElevFt,
		Volume:      r.Volumes.Total,
		FitFailures: len(r.FitFailures),
		Cost:        r.Damage.Cost,
		DurationMS:  time.Since(r.Started).Milliseconds(),
	}
}

// Orchestrator wires the pipeline stages.
type Orchestrator struct {
	deps Deps
	opts Options
	log  *slog.Logger
}

// New validates deps and returns an Orchestrator.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Loader == nil {
		deps.Loader = hazard.NewLoader(deps.Logger)
	}
	if deps.Queries == nil {
		return nil, errors.New("orchestrate: graph queries are required")
	}
	opts = opts.withDefaults()
	if opts.Location == "" {
		return nil, errors.New("orchestrate: location is required")
	}
	if deps.Engine == nil && !opts.DryRun {
		return nil, errors.New("orchestrate: structural engine is required unless dry-run")
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{deps: deps, opts: opts, log: log.With("location", opts.Location)}, nil
}

// Pipeline composes the stages for the configured options.
func (o *Orchestrator) Pipeline() fn.Stage[*Run, *Run] {
	stages := []fn.Stage[*Run, *Run]{
		o.stage(StageLoadHazard, o.loadHazard),
		o.stage(StageFitCurves, o.fitCurves),
	}
	if o.deps.Index != nil {
		stages = append(stages, o.stage(StageIndexCurves, o.indexCurves))
	}
	stages = append(stages,
		o.stage(StageSampleCurves, o.sampleCurves),
		o.stage(StageQueryElevation, o.queryElevations),
	)
	if o.deps.Estimator != nil {
		stages = append(stages, o.stage(StageEstimateVolume, o.estimateVolumes))
	}
	if !o.opts.DryRun {
		stages = append(stages,
			o.stage(StageHazard, o.runHazard),
			o.stage(StageResponse, o.runResponse),
			o.stage(StageDamage, o.runDamage),
		)
	}
	return fn.Pipeline(stages...)
}

// Run executes one full run.
func (o *Orchestrator) Run(ctx context.Context) (*Run, error) {
	r := &Run{ID: uuid.NewString(), Started: time.Now()}
	o.log.Info("run.start", "run", r.ID, "dry_run", o.opts.DryRun)

	run, err := o.Pipeline()(ctx, r).Unwrap()
	if err != nil {
		o.log.Error("run.failed", "run", r.ID, "error", err)
		return r, err
	}
	sum := run.Summary(o.opts.Location)
	o.log.Info("run.done", "run", r.ID, "duration", time.Since(r.Started), "volume", sum.Volume)
	if o.deps.NATS != nil {
		if err := natsutil.Publish(ctx, o.deps.NATS, o.opts.CompletedTopic, sum); err != nil {
			o.log.Warn("run summary not published", "run", r.ID, "error", err)
		}
	}
	return run, nil
}

// stage wraps f with a span, enter/exit logs and a latency metric.
func (o *Orchestrator) stage(name string, f func(context.Context, *Run) error) fn.Stage[*Run, *Run] {
	return fn.TracedStage(name, func(ctx context.Context, r *Run) fn.Result[*Run] {
		if err := ctx.Err(); err != nil {
			return fn.Err[*Run](err)
		}
		o.log.Info("stage.enter", "stage", name, "run", r.ID)
		start := time.Now()
		err := f(ctx, r)
		o.deps.Metrics.ObserveStage(name, start, err)
		if err != nil {
			return fn.Err[*Run](fmt.Errorf("%s: %w", name, err))
		}
		o.log.Info("stage.exit", "stage", name, "run", r.ID, "duration", time.Since(start))
		return fn.Ok(r)
	})
}

func (o *Orchestrator) loadHazard(ctx context.Context, r *Run) error {
	models, err := hazard.ResolveModels(o.opts.HazardDir, o.opts.Models)
	if err != nil {
		return err
	}
	ds, err := o.deps.Loader.Load(ctx, models, o.opts.HazardDir)
	if err != nil {
		return err
	}
	r.Models, r.Dataset = models, ds
	return nil
}

// fitCurves fits every pair. Failures elsewhere are tolerated; the run
// location must fit for every intensity measure the engine consumes.
func (o *Orchestrator) fitCurves(ctx context.Context, r *Run) error {
	set, err := curves.BuildAllSplines(ctx, r.Dataset, o.opts.Fit)
	failed := map[[2]string]error{}
	if be, ok := curves.IsBatchError(err); ok {
		r.FitFailures = be.Failures
		for _, f := range be.Failures {
			failed[[2]string{f.Location, f.Model}] = f.Err
			o.deps.Metrics.ObserveCurveFit(f.Model, f.Err)
			o.log.Warn("curve fit failed", "pair", f.Location+"/"+f.Model, "error", f.Err)
		}
	} else if err != nil {
		return err
	}
	for _, loc := range set.Locations() {
		for m := range set[loc] {
			o.deps.Metrics.ObserveCurveFit(m, nil)
		}
	}
	r.Splines = set

	for _, m := range domain.DefaultModels {
		if _, ok := set.Get(o.opts.Location, m); ok {
			continue
		}
		if ferr := failed[[2]string{o.opts.Location, m}]; ferr != nil {
			return ferr
		}
		return &domain.LookupError{Table: "hazard curves", Key: o.opts.Location + "/" + m}
	}
	return nil
}

func (o *Orchestrator) indexCurves(ctx context.Context, r *Run) error {
	n, err := o.deps.Index.Index(ctx, r.Splines, o.opts.QueryPoints())
	if err != nil {
		// similarity search is auxiliary
		o.log.Warn("curve index not updated", "error", err)
		return nil
	}
	r.Indexed = n
	return nil
}

func (o *Orchestrator) sampleCurves(_ context.Context, r *Run) error {
	xs := o.opts.QueryPoints()
	r.QueryPoints = xs
	r.Sampled = make(map[string]domain.Curve, len(domain.DefaultModels))
	for _, m := range domain.DefaultModels {
		s, _ := r.Splines.Get(o.opts.Location, m)
		r.Sampled[m] = domain.Curve{X: append([]float64(nil), xs...), Y: s.Eval(xs)}
	}
	return nil
}

func (o *Orchestrator) queryElevations(ctx context.Context, r *Run) error {
	levels, err := o.deps.Queries.GetLevels(ctx)
	if err != nil {
		return err
	}
	r.ElevFt = elevation.Extract(levels, o.opts.ElevationScale)
	if len(r.ElevFt) == 0 {
		return fmt.Errorf("no numeric level elevations among %d space boundaries", len(levels))
	}
	return nil
}

// estimateVolumes never fails the run; unparsable fields are reported.
func (o *Orchestrator) estimateVolumes(ctx context.Context, r *Run) error {
	dims, err := fn.FanOutResult(
		func() fn.Result[map[semgraph.Term][]semgraph.Term] {
			return fn.FromPair(o.deps.Queries.GetColumnDimensions(ctx))
		},
		func() fn.Result[map[semgraph.Term][]semgraph.Term] {
			return fn.FromPair(o.deps.Queries.GetBeamDimensions(ctx))
		},
	).Unwrap()
	if err != nil {
		return err
	}
	literals := append(dimensionLiterals(dims[0]), dimensionLiterals(dims[1])...)
	r.Volumes = o.deps.Estimator.Estimate(literals...)
	o.deps.Metrics.SetVolume(r.Volumes.Total)
	if len(r.Volumes.Errors) > 0 {
		o.log.Warn("volume estimate incomplete",
			"elements", len(r.Volumes.Results), "estimated", r.Volumes.Estimated, "errors", len(r.Volumes.Errors))
	}
	return nil
}

// dimensionLiterals flattens a dimension map in element order.
func dimensionLiterals(m map[semgraph.Term][]semgraph.Term) []string {
	keys := make([]semgraph.Term, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Value < keys[j].Value })
	return fn.FlatMap(keys, func(k semgraph.Term) []string { return semgraph.Literals(m[k]) })
}

// engineElevations returns the level elevations in the engine's length unit
// together with that unit.
func (o *Orchestrator) engineElevations(r *Run) ([]float64, string) {
	if o.opts.EngineInches {
		elevIn := elevation.FeetToInches(r.ElevFt)
		return elevIn, structural.UnitInches
	}
	return r.ElevFt, structural.UnitFeet
}

func (o *Orchestrator) hazardInput(r *Run) structural.HazardInput {
	elev, unit := o.engineElevations(r)
	return structural.HazardInput{
		ModelPath:     o.opts.ModelPath,
		Units:         o.opts.Units,
		Elevations:    elev,
		ElevationUnit: unit,
		PGA:           r.Sampled[domain.PGA],
		SA1P0:         r.Sampled[domain.SA1P0],
		SA0P2:         r.Sampled[domain.SA0P2],
		SoilClass:     o.opts.SoilClass,
		Intervals:     o.opts.Intervals,
	}
}

func (o *Orchestrator) runHazard(ctx context.Context, r *Run) error {
	out, err := o.deps.Engine.Hazard(ctx, o.hazardInput(r))
	if err != nil {
		return err
	}
	r.Hazard = out
	return nil
}

func (o *Orchestrator) runResponse(ctx context.Context, r *Run) error {
	in := structural.NewResponseInput(o.hazardInput(r), r.Hazard, o.opts.FrameType, o.opts.Gravity)
	out, err := o.deps.Engine.Response(ctx, in)
	if err != nil {
		return err
	}
	r.Response = out
	return nil
}

func (o *Orchestrator) runDamage(ctx context.Context, r *Run) error {
	out, err := o.deps.Engine.Damage(ctx, structural.NewDamageInput(r.Response, o.opts.Intervals))
	if err != nil {
		return err
	}
	r.Damage = out
	o.log.Info("repair cost estimated", "run", r.ID, "cost", out.Cost)
	return nil
}
