// internal/services/pipeline_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/funnel-etl/internal/clock"
	"github.com/javajoker/funnel-etl/internal/database"
	"github.com/javajoker/funnel-etl/internal/metrics"
	"github.com/javajoker/funnel-etl/internal/models"
)

const (
	StageConfig    = "config"
	StageConnect   = "connect"
	StagePrepare   = "prepare"
	StageFetch     = "fetch"
	StageTransform = "transform"
	StageLoad      = "load"
)

// StageError records which pipeline stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ErrorType renders err as "<stage>.<kind>", for example "load.connectivity".
func ErrorType(err error) string {
	if err == nil {
		return ""
	}
	stage := "pipeline"
	var se *StageError
	if errors.As(err, &se) {
		stage = se.Stage
	}
	return stage + "." + errorKind(err)
}

func errorKind(err error) string {
	var (
		statusErr  *HTTPStatusError
		decodeErr  *DecodeError
		sizeErr    *ResponseTooLargeError
		persistErr *PersistError
		storeErr   *database.StoreError
		netErr     net.Error
	)
	switch {
	case errors.As(err, &storeErr):
		return string(storeErr.Kind)
	case errors.As(err, &statusErr):
		return "http_status"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.As(err, &sizeErr):
		return "response_too_large"
	case errors.As(err, &persistErr):
		return "persist"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return "timeout"
		}
		return "transport"
	}
	var tErr *transportError
	if errors.As(err, &tErr) {
		return "transport"
	}
	return "unknown"
}

// RunResult is the structured outcome of one run.
type RunResult struct {
	RunID          string           `json:"run_id"`
	Status         models.RunStatus `json:"status"`
	DurationSec    float64          `json:"duration_sec"`
	ProductsLoaded int64            `json:"products_loaded"`
	EventsLoaded   int64            `json:"events_loaded"`
	EventsSkipped  int64            `json:"events_skipped"`
	RunAt          time.Time        `json:"run_at"`
	Error          string           `json:"error,omitempty"`
	ErrorType      string           `json:"error_type,omitempty"`
}

// Succeeded maps the result onto the process exit contract.
func (r RunResult) Succeeded() bool {
	return r.Status == models.RunStatusSuccess
}

// FailedResult describes a run that could not start, such as an unreachable database.
func FailedResult(clk clock.Clock, stage string, err error) RunResult {
	now := clk.Now().UTC()
	stageErr := &StageError{Stage: stage, Err: err}
	return RunResult{
		RunID:     uuid.NewString(),
		Status:    models.RunStatusFailed,
		RunAt:     now,
		Error:     stageErr.Error(),
		ErrorType: ErrorType(stageErr),
	}
}

// Fetcher supplies the three raw record sets.
type Fetcher interface {
	FetchProducts(ctx context.Context) ([]models.RawRecord, error)
	FetchCarts(ctx context.Context) ([]models.RawRecord, error)
	FetchUsers(ctx context.Context) ([]models.RawRecord, error)
}

// Store is the idempotent sink for products and events.
type Store interface {
	Prepare(ctx context.Context) error
	LoadProducts(ctx context.Context, rows []models.Product) (ProductLoadResult, error)
	LoadEvents(ctx context.Context, rows []models.Event) (EventLoadResult, error)
}

type PipelineService struct {
	fetcher     Fetcher
	normalizer  *ProductNormalizer
	synthesizer *EventSynthesizer
	enricher    *EventEnricher
	store       Store
	reporter    Reporter
	metrics     *metrics.Metrics
	pusher      *metrics.Pusher
	clock       clock.Clock
	log         *logrus.Entry

	mu     sync.Mutex
	status models.RunStatus
}

type PipelineDeps struct {
	Fetcher     Fetcher
	Normalizer  *ProductNormalizer
	Synthesizer *EventSynthesizer
	Enricher    *EventEnricher
	Store       Store
	Reporter    Reporter         // optional
	Metrics     *metrics.Metrics // optional
	Pusher      *metrics.Pusher  // optional
	Clock       clock.Clock
}

func NewPipelineService(deps PipelineDeps, log logrus.FieldLogger) *PipelineService {
	return &PipelineService{
		fetcher:     deps.Fetcher,
		normalizer:  deps.Normalizer,
		synthesizer: deps.Synthesizer,
		enricher:    deps.Enricher,
		store:       deps.Store,
		reporter:    deps.Reporter,
		metrics:     deps.Metrics,
		pusher:      deps.Pusher,
		clock:       deps.Clock,
		log:         log.WithField("component", "pipeline"),
		status:      models.RunStatusPending,
	}
}

func (p *PipelineService) Status() models.RunStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *PipelineService) setStatus(status models.RunStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

// Run executes one fetch, transform, load cycle. It never panics on stage errors and
// never retries; the outcome is reported in the returned RunResult.
func (p *PipelineService) Run(ctx context.Context) RunResult {
	start := p.clock.Now().UTC()
	p.setStatus(models.RunStatusRunning)

	result := RunResult{
		RunID:  uuid.NewString(),
		Status: models.RunStatusRunning,
		RunAt:  start,
	}
	log := p.log.WithField("run_id", result.RunID)
	log.Info("Starting ETL pipeline")

	err := p.execute(ctx, log, &result)

	result.DurationSec = p.clock.Now().Sub(start).Seconds()
	if err != nil {
		result.Status = models.RunStatusFailed
		result.Error = err.Error()
		result.ErrorType = ErrorType(err)
		log.WithFields(logrus.Fields{
			"error_type":   result.ErrorType,
			"duration_sec": result.DurationSec,
		}).WithError(err).Error("Pipeline failed")
	} else {
		result.Status = models.RunStatusSuccess
		log.WithFields(logrus.Fields{
			"duration_sec":    result.DurationSec,
			"products_loaded": result.ProductsLoaded,
			"events_loaded":   result.EventsLoaded,
			"events_skipped":  result.EventsSkipped,
		}).Info("Pipeline completed successfully")
	}
	p.setStatus(result.Status)

	p.observe(result)
	p.publish(ctx, log, result)
	return result
}

func (p *PipelineService) execute(ctx context.Context, log *logrus.Entry, result *RunResult) error {
	log.Info("[1/4] Preparing store")
	if err := p.store.Prepare(ctx); err != nil {
		return &StageError{Stage: StagePrepare, Err: err}
	}

	log.Info("[2/4] Extracting data from source")
	rawProducts, err := p.fetcher.FetchProducts(ctx)
	if err != nil {
		return &StageError{Stage: StageFetch, Err: err}
	}
	rawCarts, err := p.fetcher.FetchCarts(ctx)
	if err != nil {
		return &StageError{Stage: StageFetch, Err: err}
	}
	rawUsers, err := p.fetcher.FetchUsers(ctx)
	if err != nil {
		return &StageError{Stage: StageFetch, Err: err}
	}

	log.Info("[3/4] Transforming data")
	products, _ := p.normalizer.Normalize(rawProducts)
	events, _ := p.synthesizer.Synthesize(rawCarts, rawUsers)
	events, _ = p.enricher.Enrich(events, products)
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: StageTransform, Err: err}
	}

	log.Info("[4/4] Loading data into store")
	productResult, err := p.store.LoadProducts(ctx, products)
	if err != nil {
		return &StageError{Stage: StageLoad, Err: err}
	}
	result.ProductsLoaded = productResult.Total()

	eventResult, err := p.store.LoadEvents(ctx, events)
	if err != nil {
		return &StageError{Stage: StageLoad, Err: err}
	}
	result.EventsLoaded = eventResult.Inserted
	result.EventsSkipped = eventResult.Skipped
	return nil
}

func (p *PipelineService) observe(result RunResult) {
	if p.metrics == nil {
		return
	}
	p.metrics.RunDuration.Set(result.DurationSec)
	if result.Succeeded() {
		p.metrics.RunSuccess.Set(1)
		p.metrics.LastSuccess.Set(float64(p.clock.Now().Unix()))
	} else {
		p.metrics.RunSuccess.Set(0)
	}
}

// publish hands the result to the reporter and the pushgateway. Failures here are logged
// and never change the run status.
func (p *PipelineService) publish(ctx context.Context, log *logrus.Entry, result RunResult) {
	ctx = context.WithoutCancel(ctx)

	if p.reporter != nil {
		if err := p.reporter.Report(ctx, result); err != nil {
			log.WithError(err).Warn("Failed to report run result")
		}
	}
	if p.pusher != nil && p.metrics != nil {
		if err := p.pusher.Push(ctx, p.metrics.Registry); err != nil {
			log.WithError(err).Warn("Failed to push metrics")
		}
	}
}
