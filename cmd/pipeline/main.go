// cmd/pipeline/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/funnel-etl/internal/app"
	"github.com/javajoker/funnel-etl/internal/clock"
	"github.com/javajoker/funnel-etl/internal/config"
	"github.com/javajoker/funnel-etl/internal/database"
	"github.com/javajoker/funnel-etl/internal/logger"
	"github.com/javajoker/funnel-etl/internal/services"
	"github.com/javajoker/funnel-etl/internal/utils"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "optional YAML config file; environment variables override it")
	flag.Parse()

	clk := clock.New()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		return emit(services.FailedResult(clk, services.StageConfig, err))
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to prepare directories:", err)
		return emit(services.FailedResult(clk, services.StageConfig, err))
	}

	log, logCloser, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize logger:", err)
		return emit(services.FailedResult(clk, services.StageConfig, err))
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"db_host":     cfg.Database.Host(),
		"api":         cfg.API.BaseURL,
	}).Info("Configuration loaded")

	// Initialize database
	db, err := database.Initialize(ctx, cfg.Database, log)
	if err != nil {
		log.WithError(err).Error("Failed to initialize database")
		return emit(services.FailedResult(clk, services.StageConnect, err))
	}
	defer database.Close(db, log)

	a, err := app.Initialize(db, cfg, clk, log)
	if err != nil {
		log.WithError(err).Error("Failed to initialize services")
		return emit(services.FailedResult(clk, services.StageConfig, err))
	}
	defer a.Close()
	log.WithField("seed", a.Seed).Info("Funnel randomness seeded")

	result := a.Pipeline.Run(ctx)

	latency := a.APIClient.Latency()
	log.WithFields(logrus.Fields{
		"requests": latency.Count,
		"p50":      latency.P50.String(),
		"p95":      latency.P95.String(),
		"p99":      latency.P99.String(),
		"max":      latency.Max.String(),
	}).Info("API latency")

	return emit(result)
}

// emit prints the result as JSON on stdout and returns the process exit code.
func emit(result services.RunResult) int {
	if err := utils.WriteJSON(os.Stdout, result, true); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to write result:", err)
	}
	if result.Succeeded() {
		return 0
	}
	return 1
}
