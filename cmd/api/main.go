// Package main is the entry point for the Rainpoint API server.
//
// It loads the configuration, wires the dataset source (local directory or
// S3 bucket), the memoizing dataset cache, the horizon evaluation service
// and the HTTP chassis, and starts listening for requests.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"rainpoint/internal/api/handlers"
	"rainpoint/internal/config"
	"rainpoint/internal/core"
	"rainpoint/internal/dataset"
	"rainpoint/internal/horizon"
	"rainpoint/internal/observe"
)

// shutdownGrace is the maximum time allowed for in-flight requests to
// complete during shutdown.
const shutdownGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("rainpoint API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"horizons", len(cfg.Data.Horizons),
	)

	ctx := context.Background()

	source, err := buildSource(ctx, cfg)
	if err != nil {
		return err
	}

	loader := dataset.NewLoader(source, dataset.ColumnSpec{
		Lat:     cfg.Data.LatColumn,
		Lon:     cfg.Data.LonColumn,
		Metrics: cfg.Data.MetricColumns,
	}, logger)
	cache := dataset.NewCache(loader, logger)

	svc := horizon.NewService(
		cache,
		cfg.Data.Horizons,
		cfg.Data.MetricKinds(),
		cfg.Data.Baseline(),
		logger,
	)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	srv.Metrics = buildMetrics(ctx, cfg, logger)

	sourceIDs := make([]string, 0, len(cfg.Data.Horizons))
	for _, h := range cfg.Data.Horizons {
		sourceIDs = append(sourceIDs, h.Source)
	}
	srv.HealthProbes = append(srv.HealthProbes, dataset.NewProbe(source, sourceIDs))

	estimateHandler := handlers.NewEstimateHandler(svc, srv.Validator, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		estimateHandler.RegisterRoutes(r)
	})

	srv.MountRoutes()

	return serve(srv, logger)
}

// buildSource selects the dataset source: an S3 bucket behind a circuit
// breaker when DATA_BUCKET is set, the local data directory otherwise.
func buildSource(ctx context.Context, cfg *config.Config) (dataset.Source, error) {
	if cfg.Data.Bucket == "" {
		return dataset.NewFileSource(cfg.Data.Dir), nil
	}

	client, err := dataset.NewAWSObjectClient(ctx, cfg.AWS.Region, cfg.AWS.EndpointURL)
	if err != nil {
		return nil, fmt.Errorf("creating S3 client: %w", err)
	}
	s3src := dataset.NewS3Source(client, cfg.Data.Bucket)
	return dataset.NewBreakerSource(s3src, "dataset-s3"), nil
}

// buildMetrics selects the metrics collector: CloudWatch when enabled
// outside local mode, noop otherwise.
func buildMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) core.MetricsCollector {
	if !cfg.Observability.EnableMetrics || cfg.Environment == "local" {
		return observe.NoopCollector{}
	}

	client, err := observe.NewCloudWatchMetricsClient(ctx, cfg.AWS.Region, cfg.AWS.EndpointURL)
	if err != nil {
		logger.Warn("CloudWatch metrics unavailable, falling back to noop", "error", err)
		return observe.NoopCollector{}
	}
	return observe.NewCloudWatchCollector(client, cfg.Observability.MetricNamespace, logger)
}

// serve runs the HTTP server until SIGINT/SIGTERM, then drains in-flight
// requests within the shutdown grace period.
func serve(srv *core.Server, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:    ":" + srv.Config.Server.Port,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-stop:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server shutdown complete")
	return nil
}

// newLogger builds the application-wide structured logger at the
// configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
