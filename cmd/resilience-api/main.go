// Package main implements the resilience API server: read-only access to
// fitted hazard curves and building elevations, reloading curves whenever
// the hazard tables change on disk.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/greenresilience/orchestration/pkg/config"
	"github.com/greenresilience/orchestration/pkg/metrics"
	"github.com/greenresilience/orchestration/pkg/mid"
)

// Config holds all environment-based configuration.
type Config struct {
	Port         string
	PipelinePath string
	CORSOrigin   string
	RateLimit    float64 // requests per second
	RateBurst    int
}

func loadConfig() Config {
	return Config{
		Port:         envOr("PORT", "8080"),
		PipelinePath: envOr("RESILIENCE_CONFIG", "configs/pipeline.yaml"),
		CORSOrigin:   envOr("CORS_ORIGIN", "*"),
		RateLimit:    envFloat("RATE_LIMIT", 20),
		RateBurst:    int(envFloat("RATE_BURST", 40)),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, err := config.Load(cfg.PipelinePath)
	if err != nil {
		return err
	}
	reg := metrics.New()

	srv, err := newServer(ctx, pipeline, reg, logger)
	if err != nil {
		return err
	}
	defer srv.close()

	go func() {
		if err := srv.watch(ctx); err != nil {
			logger.Error("hazard watcher stopped", "err", err)
		}
	}()

	handler := mid.Chain(srv.routes(),
		mid.Recover(logger),
		mid.Logger(logger),
		mid.OTel("resilience-api"),
		mid.Metrics(reg),
		mid.RateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)),
		mid.CORS(cfg.CORSOrigin),
	)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "locations", srv.locationCount())
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}
