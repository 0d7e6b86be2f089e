// Package metrics holds the pipeline's Prometheus collectors and serves them
// on /metrics. All Observe methods are safe on a nil *Registry, so components
// can run without metrics wired in.
package metrics

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "resilience"

// DefaultBuckets are the histogram buckets (in seconds).
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Registry owns a private Prometheus registry and the pipeline collectors.
type Registry struct {
	reg *prometheus.Registry

	curveFits    *prometheus.CounterVec
	graphQueries *prometheus.HistogramVec
	engineCalls  *prometheus.HistogramVec
	stages       *prometheus.HistogramVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	volumes      prometheus.Gauge
}

// New creates a Registry with the pipeline collectors plus the Go runtime and
// process collectors.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		curveFits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "curve_fits_total",
			Help:      "Spline fits by intensity measure and outcome.",
		}, []string{"model", "outcome"}),
		graphQueries: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_query_duration_seconds",
			Help:      "Semantic graph query latency.",
			Buckets:   DefaultBuckets,
		}, []string{"query", "outcome"}),
		engineCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_call_duration_seconds",
			Help:      "Structural engine module call latency.",
			Buckets:   DefaultBuckets,
		}, []string{"module", "outcome"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage latency.",
			Buckets:   DefaultBuckets,
		}, []string{"stage", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by method and status code.",
		}, []string{"method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency.",
			Buckets:   DefaultBuckets,
		}, []string{"method"}),
		volumes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "component_volume",
			Help:      "Total estimated structural component volume of the last run (ft^3 for wide-flange members, model length unit cubed otherwise).",
		}),
	}
	r.reg.MustRegister(
		r.curveFits, r.graphQueries, r.engineCalls, r.stages,
		r.httpRequests, r.httpDuration, r.volumes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveCurveFit counts one spline fit.
func (r *Registry) ObserveCurveFit(model string, err error) {
	if r == nil {
		return
	}
	r.curveFits.WithLabelValues(model, outcome(err)).Inc()
}

// ObserveGraphQuery records a graph query that started at start.
func (r *Registry) ObserveGraphQuery(query string, start time.Time, err error) {
	if r == nil {
		return
	}
	r.graphQueries.WithLabelValues(query, outcome(err)).Observe(time.Since(start).Seconds())
}

// ObserveEngineCall records a structural engine call that started at start.
func (r *Registry) ObserveEngineCall(module string, start time.Time, err error) {
	if r == nil {
		return
	}
	r.engineCalls.WithLabelValues(module, outcome(err)).Observe(time.Since(start).Seconds())
}

// ObserveStage records a pipeline stage that started at start.
func (r *Registry) ObserveStage(stage string, start time.Time, err error) {
	if r == nil {
		return
	}
	r.stages.WithLabelValues(stage, outcome(err)).Observe(time.Since(start).Seconds())
}

// ObserveHTTP records one served API request.
func (r *Registry) ObserveHTTP(method string, code int, start time.Time) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	r.httpDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// SetVolume sets the total component volume gauge.
func (r *Registry) SetVolume(v float64) {
	if r == nil {
		return
	}
	r.volumes.Set(v)
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler returns an http.Handler that serves /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Serve starts an HTTP server on the given port serving /metrics.
func (r *Registry) Serve(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}

// ServeAsync starts the metrics server in a goroutine. Errors are logged.
func (r *Registry) ServeAsync(port int, log *slog.Logger) {
	go func() {
		if err := r.Serve(port); err != nil {
			log.Error("metrics server stopped", "port", port, "error", err)
		}
	}()
}
