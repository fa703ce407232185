// internal/app/app.go
package app

import (
	"io"
	"math/rand/v2"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/funnel-etl/internal/clock"
	"github.com/javajoker/funnel-etl/internal/config"
	"github.com/javajoker/funnel-etl/internal/metrics"
	"github.com/javajoker/funnel-etl/internal/services"
)

// App is a fully wired pipeline together with the pieces the caller inspects afterwards.
type App struct {
	Pipeline  *services.PipelineService
	APIClient *services.APIClient
	Metrics   *metrics.Metrics
	Seed      uint64

	closers []io.Closer
}

// Initialize builds every service from cfg on top of an open database.
func Initialize(db *gorm.DB, cfg *config.Config, clk clock.Clock, log logrus.FieldLogger) (*App, error) {
	m := metrics.New()

	// Initialize services
	storageService, err := services.NewStorageService(cfg, clk, log)
	if err != nil {
		return nil, err
	}
	apiClient := services.NewAPIClient(cfg.API, log, m)
	fetchService := services.NewFetchService(apiClient, storageService, m, log)
	loadService := services.NewLoadService(db, clk, cfg.Load.BatchSize, m, log).
		WithAutoMigrate(cfg.Database.AutoMigrate)

	seed := cfg.Funnel.Seed
	if seed == 0 {
		seed = uint64(clk.Now().UnixNano())
	}
	policy := services.DefaultFunnelPolicy()
	policy.AddToCartProb = cfg.Funnel.AddToCartProb
	policy.PurchaseProb = cfg.Funnel.PurchaseProb

	a := &App{APIClient: apiClient, Metrics: m, Seed: seed}

	// Run reporting
	var reporters services.MultiReporter
	if cfg.Report.Dir != "" {
		reporters = append(reporters, services.NewFileReporter(cfg.Report.Dir, log))
	}
	if len(cfg.Report.KafkaBrokers) > 0 {
		kafkaReporter := services.NewKafkaReporter(cfg.Report.KafkaBrokers, cfg.Report.KafkaTopic)
		a.closers = append(a.closers, kafkaReporter)
		reporters = append(reporters, kafkaReporter)
	}

	var pusher *metrics.Pusher
	if cfg.Metrics.PushgatewayURL != "" {
		pusher = metrics.NewPusher(cfg.Metrics.PushgatewayURL, cfg.Metrics.JobName, map[string]string{
			"environment": cfg.Environment,
		})
	}

	a.Pipeline = services.NewPipelineService(services.PipelineDeps{
		Fetcher:     fetchService,
		Normalizer:  services.NewProductNormalizer(clk, m, log),
		Synthesizer: services.NewEventSynthesizer(policy, rand.New(rand.NewPCG(seed, seed)), m, log),
		Enricher:    services.NewEventEnricher(m, log),
		Store:       loadService,
		Reporter:    reporters,
		Metrics:     m,
		Pusher:      pusher,
		Clock:       clk,
	}, log)

	return a, nil
}

// Close releases reporter connections.
func (a *App) Close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
