// Package main is the resilience command line: it runs the full pipeline
// and exposes its individual steps for inspection.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/greenresilience/orchestration/engine/curves"
	"github.com/greenresilience/orchestration/engine/domain"
	"github.com/greenresilience/orchestration/engine/elevation"
	"github.com/greenresilience/orchestration/engine/orchestrate"
	"github.com/greenresilience/orchestration/engine/semgraph"
	"github.com/greenresilience/orchestration/engine/structural"
	"github.com/greenresilience/orchestration/engine/volume"
	"github.com/greenresilience/orchestration/pkg/natsutil"
)

const Version = "0.3.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globals struct {
	configPath string
	logLevel   string
}

func (g *globals) app() (*app, error) {
	return newApp(g.configPath, g.logLevel)
}

func rootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:   "resilience",
		Short: "Seismic resilience pipeline for building models",
		Long: `resilience fits site hazard curves, reads floor elevations and structural
members from a building graph, and drives the structural engine through its
hazard, response and damage modules.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "configs/pipeline.yaml", "Pipeline config (YAML)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		runCmd(g),
		curvesCmd(g),
		levelsCmd(g),
		volumesCmd(g),
		similarCmd(g),
		loadGraphCmd(g),
		dumpGraphCmd(g),
		engineWorkerCmd(g),
		watchRunsCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "resilience %s\n", Version)
			},
		},
	)
	return cmd
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runCmd(g *globals) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline and print the run summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.app()
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := signalContext(cmd)
			defer cancel()
			a.serveMetrics()

			o, err := a.orchestrator(ctx, dryRun)
			if err != nil {
				return err
			}
			run, err := o.Run(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), run.Summary(a.cfg.Location))
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Stop before calling the structural engine")
	return cmd
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || v < 0 || math.IsNaN(v) {
			return nil, &domain.ParseError{Field: "x", Value: f}
		}
		out = append(out, v)
	}
	return out, nil
}

func curvesCmd(g *globals) *cobra.Command {
	var location, xs string
	cmd := &cobra.Command{
		Use:   "curves",
		Short: "Fit hazard curves and print a location's rates on the query grid",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.app()
			if err != nil {
				return err
			}
			defer a.close()
			if location == "" {
				location = a.cfg.Location
			}
			points := curves.Linspace(a.cfg.Query.Lo, a.cfg.Query.Hi, a.cfg.Query.N)
			if xs != "" {
				if points, err = parseFloats(xs); err != nil {
					return err
				}
			}
			set, err := a.splines(cmd.Context())
			if err != nil {
				return err
			}
			models, ok := set[location]
			if !ok {
				return &domain.LookupError{Table: "hazard curves", Key: location}
			}
			names := make([]string, 0, len(models))
			for m := range models {
				names = append(names, m)
			}
			sort.Strings(names)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "x\t%s\n", strings.Join(names, "\t"))
			for _, x := range points {
				row := []string{strconv.FormatFloat(x, 'g', 6, 64)}
				for _, m := range names {
					row = append(row, strconv.FormatFloat(models[m].At(x), 'e', 4, 64))
				}
				fmt.Fprintln(tw, strings.Join(row, "\t"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&location, "location", "", "Location (defaults to the configured one)")
	cmd.Flags().StringVar(&xs, "x", "", "Comma-separated intensities (defaults to the query grid)")
	return cmd
}

func levelsCmd(g *globals) *cobra.Command {
	var inches bool
	cmd := &cobra.Command{
		Use:   "levels",
		Short: "Print the numeric floor elevations found in the building graph",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.app()
			if err != nil {
				return err
			}
			defer a.close()
			q, err := a.queries(cmd.Context())
			if err != nil {
				return err
			}
			levels, err := q.GetLevels(cmd.Context())
			if err != nil {
				return err
			}
			elev := elevation.Extract(levels, a.cfg.Engine.ElevationScale)
			if inches {
				elev = elevation.FeetToInches(elev)
			}
			for _, e := range elev {
				fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatFloat(e, 'f', -1, 64))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&inches, "inches", false, "Print in inches instead of feet")
	return cmd
}

func volumesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "volumes",
		Short: "Estimate column and beam volumes from their dimension literals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.app()
			if err != nil {
				return err
			}
			defer a.close()
			est, err := a.estimator()
			if err != nil {
				return err
			}
			if est == nil {
				return errors.New("volume.shape_table is not configured")
			}
			q, err := a.queries(cmd.Context())
			if err != nil {
				return err
			}
			var literals []string
			for _, kind := range []semgraph.Term{semgraph.ColumnType, semgraph.BeamType} {
				rows, err := q.DimensionRows(cmd.Context(), kind)
				if err != nil {
					return err
				}
				for _, r := range rows {
					literals = append(literals, r.Object.Value)
				}
			}
			return printVolumes(cmd.OutOrStdout(), est.Estimate(literals...))
		},
	}
}

func printVolumes(w io.Writer, rep volume.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "id\tname\tfamily\tvolume\tnote")
	for _, r := range rep.Results {
		vol, note := "-", ""
		if r.OK {
			vol = strconv.FormatFloat(r.Volume, 'f', 4, 64)
		}
		if len(r.Errs) > 0 {
			note = errors.Join(r.Errs...).Error()
			note = strings.ReplaceAll(note, "\n", "; ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Element.ID, r.Element.Name, r.Family, vol, note)
	}
	fmt.Fprintf(tw, "total\t\t\t%s\t%d of %d estimated\n",
		strconv.FormatFloat(rep.Total, 'f', 4, 64), rep.Estimated, len(rep.Results))
	return tw.Flush()
}

func similarCmd(g *globals) *cobra.Command {
	var (
		location, model string
		topK            int
		reindex         bool
	)
	cmd := &cobra.Command{
		Use:   "similar",
		Short: "List locations whose hazard curve is closest to a location's",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.app()
			if err != nil {
				return err
			}
			defer a.close()
			ix, err := a.index()
			if err != nil {
				return err
			}
			if ix == nil {
				return errors.New("qdrant.addr is not configured")
			}
			if location == "" {
				location = a.cfg.Location
			}
			if topK == 0 {
				topK = a.cfg.Qdrant.TopK
			}
			ctx := cmd.Context()
			if reindex {
				set, err := a.splines(ctx)
				if err != nil {
					return err
				}
				if _, err := ix.Index(ctx, set, curves.Linspace(a.cfg.Query.Lo, a.cfg.Query.Hi, a.cfg.Query.N)); err != nil {
					return err
				}
			}
			matches, err := ix.Similar(ctx, location, model, topK)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), matches)
		},
	}
	cmd.Flags().StringVar(&location, "location", "", "Location (defaults to the configured one)")
	cmd.Flags().StringVar(&model, "model", domain.PGA, "Intensity measure")
	cmd.Flags().IntVar(&topK, "top", 0, "Number of matches (defaults to qdrant.top_k)")
	cmd.Flags().BoolVar(&reindex, "reindex", false, "Fit and index every curve first")
	return cmd
}

func loadGraphCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "load-graph <file.ttl|file.nt>",
		Short: "Load a Turtle or N-Triples building graph into Neo4j",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.app()
			if err != nil {
				return err
			}
			defer a.close()
			mem, err := semgraph.LoadFile(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			ts, err := mem.Match(ctx, semgraph.Pattern{})
			if err != nil {
				return err
			}
			st, err := a.neo4jStore(ctx)
			if err != nil {
				return err
			}
			if err := st.Load(ctx, ts); err != nil {
				return err
			}
			a.log.Info("graph loaded", "file", args[0], "triples", len(ts))
			return nil
		},
	}
}

func dumpGraphCmd(g *globals) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "dump-graph",
		Short: "Write the configured building graph as N-Triples",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.app()
			if err != nil {
				return err
			}
			defer a.close()
			q, err := a.queries(cmd.Context())
			if err != nil {
				return err
			}
			ts, err := q.AllTriples(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return semgraph.Encode(w, ts)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "Output file")
	return cmd
}

func engineWorkerCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "engine-worker",
		Short: "Serve the local structural engine to remote pipelines over NATS",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.app()
			if err != nil {
				return err
			}
			defer a.close()
			nc, err := a.nats()
			if err != nil {
				return err
			}
			if nc == nil {
				return errors.New("nats.url is not configured")
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()
			a.serveMetrics()

			subs, err := structural.Serve(nc, a.cfg.Engine.Subject, a.cfg.NATS.Queue, a.execEngine())
			if err != nil {
				return err
			}
			a.log.Info("engine worker ready", "subject", structural.Subject(a.cfg.Engine.Subject, "*"), "queue", a.cfg.NATS.Queue)
			<-ctx.Done()
			for _, s := range subs {
				s.Drain()
			}
			return nil
		},
	}
}

func watchRunsCmd(g *globals) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "watch-runs",
		Short: "Print run summaries published by pipelines, one JSON object per line",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.app()
			if err != nil {
				return err
			}
			defer a.close()
			nc, err := a.nats()
			if err != nil {
				return err
			}
			if nc == nil {
				return errors.New("nats.url is not configured")
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()

			enc := json.NewEncoder(cmd.OutOrStdout())
			seen := 0
			sub, err := natsutil.Subscribe(nc, orchestrate.CompletedSubject, func(_ context.Context, sum orchestrate.Summary) {
				if err := enc.Encode(sum); err != nil {
					a.log.Warn("cannot write summary", "run", sum.RunID, "err", err)
				}
				if seen++; count > 0 && seen >= count {
					cancel()
				}
			})
			if err != nil {
				return err
			}
			defer sub.Unsubscribe()
			a.log.Info("watching runs", "subject", orchestrate.CompletedSubject)
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "exit after this many summaries (0 waits for a signal)")
	return cmd
}
