// internal/metrics/metrics.go
package metrics

import (
	"context"
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "funnel_etl"

// Metrics holds the collectors of one pipeline run on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	RecordsFetched    *prometheus.CounterVec
	RecordsSkipped    *prometheus.CounterVec
	EventsSynthesized *prometheus.CounterVec
	EventsUnmatched   prometheus.Counter
	RowsLoaded        *prometheus.CounterVec
	APIRetries        prometheus.Counter
	RunDuration       prometheus.Gauge
	RunSuccess        prometheus.Gauge
	LastSuccess       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RecordsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_fetched_total",
			Help:      "Raw records received from the source API.",
		}, []string{"entity"}),
		RecordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Raw records dropped during transform.",
		}, []string{"entity", "reason"}),
		EventsSynthesized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_synthesized_total",
			Help:      "Funnel events generated from carts.",
		}, []string{"event_type"}),
		EventsUnmatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_unmatched_total",
			Help:      "Events without a matching product during enrichment.",
		}),
		RowsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_loaded_total",
			Help:      "Rows written to the store by table and outcome.",
		}, []string{"table", "outcome"}),
		APIRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_retries_total",
			Help:      "Source API requests that were retried.",
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		RunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_success",
			Help:      "1 if the last run succeeded, 0 otherwise.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}

	m.Registry.MustRegister(
		m.RecordsFetched,
		m.RecordsSkipped,
		m.EventsSynthesized,
		m.EventsUnmatched,
		m.RowsLoaded,
		m.APIRetries,
		m.RunDuration,
		m.RunSuccess,
		m.LastSuccess,
	)
	return m
}

// Pusher sends a registry to a Prometheus Pushgateway.
type Pusher struct {
	endpoint string
	job      string
	grouping map[string]string
}

func NewPusher(endpoint, job string, grouping map[string]string) *Pusher {
	return &Pusher{
		endpoint: strings.TrimSpace(endpoint),
		job:      strings.TrimSpace(job),
		grouping: grouping,
	}
}

func (p *Pusher) Push(ctx context.Context, registry *prometheus.Registry) error {
	if p == nil || registry == nil {
		return nil
	}
	if p.endpoint == "" {
		return errors.New("pushgateway endpoint is required")
	}
	if p.job == "" {
		return errors.New("pushgateway job is required")
	}

	pusher := push.New(p.endpoint, p.job).Gatherer(registry)
	for key, value := range p.grouping {
		if key == "" || value == "" {
			continue
		}
		pusher = pusher.Grouping(key, value)
	}
	return pusher.PushContext(ctx)
}
