// Package main implements the rainquery CLI tool for interpolating rainfall
// metrics at a coordinate across configured horizons, without running the
// API server.
//
// Usage:
//
//	go run ./cmd/tools/rainquery \
//	  --lat=43.6 --lon=1.44 \
//	  --data-dir=./data
//
// The tool loads the per-horizon dataset files from the data directory,
// evaluates the point against each horizon and prints the interpolated
// values plus the percentage deltas versus the baseline horizon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"rainpoint/internal/config"
	"rainpoint/internal/dataset"
	"rainpoint/internal/horizon"
	"rainpoint/internal/types"
)

func main() {
	lat := flag.String("lat", "", "Latitude of the query point (required)")
	lon := flag.String("lon", "", "Longitude of the query point (required)")
	dataDir := flag.String("data-dir", os.Getenv("DATA_DIR"), "Directory containing dataset files (or DATA_DIR env)")
	verbose := flag.Bool("v", false, "Enable debug logging")

	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *lat == "" || *lon == "" {
		logger.Error("--lat and --lon are required")
		os.Exit(1)
	}
	latF, err := strconv.ParseFloat(*lat, 64)
	if err != nil {
		logger.Error("invalid latitude", "lat", *lat, "error", err)
		os.Exit(1)
	}
	lonF, err := strconv.ParseFloat(*lon, 64)
	if err != nil {
		logger.Error("invalid longitude", "lon", *lon, "error", err)
		os.Exit(1)
	}
	if *dataDir == "" {
		*dataDir = "."
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("loading configuration", "error", err)
		os.Exit(1)
	}

	source := dataset.NewFileSource(*dataDir)
	loader := dataset.NewLoader(source, dataset.ColumnSpec{
		Lat:     cfg.Data.LatColumn,
		Lon:     cfg.Data.LonColumn,
		Metrics: cfg.Data.MetricColumns,
	}, logger)
	cache := dataset.NewCache(loader, logger)
	svc := horizon.NewService(cache, cfg.Data.Horizons, cfg.Data.MetricKinds(), cfg.Data.Baseline(), logger)

	estimate, err := svc.EvaluatePoint(context.Background(), latF, lonF)
	if err != nil {
		logger.Error("evaluation failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Query point: (%.6f, %.6f)\n", latF, lonF)
	fmt.Printf("Baseline horizon: %s\n\n", estimate.Baseline)

	for _, hr := range estimate.Series {
		fmt.Printf("Horizon %s:\n", hr.Horizon)
		if hr.Err != nil {
			fmt.Printf("  unavailable: %s (%s)\n", hr.Err.Message, hr.Err.Code)
			continue
		}
		for _, kind := range svc.MetricKinds() {
			res := hr.Results[kind]
			fmt.Printf("  %-22s %s", kind, formatResult(res))
			if d, ok := estimate.Deltas[hr.Horizon][kind]; ok && hr.Horizon != estimate.Baseline {
				fmt.Printf("  (%s vs %s)", formatDelta(d), estimate.Baseline)
			}
			fmt.Println()
		}
	}
}

func formatResult(res types.InterpolationResult) string {
	if res.OutOfCoverage || res.Value == nil {
		return "out of coverage"
	}
	return fmt.Sprintf("%.2f mm", *res.Value)
}

func formatDelta(d types.Delta) string {
	if d.Undefined || d.PctChange == nil {
		return "delta undefined"
	}
	return fmt.Sprintf("%+.1f%%", *d.PctChange)
}
