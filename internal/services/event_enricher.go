// internal/services/event_enricher.go
package services

import (
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/funnel-etl/internal/metrics"
	"github.com/javajoker/funnel-etl/internal/models"
)

// EnrichStats splits events by whether their product was found.
type EnrichStats struct {
	Total     int
	Matched   int
	Unmatched int
}

// EventEnricher attaches product price and category to events.
type EventEnricher struct {
	metrics *metrics.Metrics
	log     *logrus.Entry
}

func NewEventEnricher(m *metrics.Metrics, log logrus.FieldLogger) *EventEnricher {
	return &EventEnricher{
		metrics: m,
		log:     log.WithField("component", "enricher"),
	}
}

// Enrich returns a copy of events in the same order. Events whose product is unknown,
// or that carry no product id, get price 0 and category "unknown".
func (e *EventEnricher) Enrich(events []models.Event, products []models.Product) ([]models.Event, EnrichStats) {
	e.log.Info("Enriching events with product attributes...")

	lookup := make(map[int64]models.Product, len(products))
	for _, p := range products {
		lookup[p.ProductID] = p
	}

	stats := EnrichStats{Total: len(events)}
	enriched := make([]models.Event, len(events))
	for i, event := range events {
		var (
			product models.Product
			found   bool
		)
		if event.ProductID != nil {
			product, found = lookup[*event.ProductID]
		}

		if found {
			event.Price = product.Price
			event.Category = product.Category
			stats.Matched++
		} else {
			event.Price = decimal.Zero
			event.Category = models.UnknownCategory
			stats.Unmatched++
		}
		enriched[i] = event
	}

	if stats.Unmatched > 0 {
		if e.metrics != nil {
			e.metrics.EventsUnmatched.Add(float64(stats.Unmatched))
		}
		e.log.WithFields(logrus.Fields{
			"unmatched": stats.Unmatched,
			"total":     stats.Total,
		}).Warn("Events without matching product, using default price and category")
	}

	e.log.WithField("matched", stats.Matched).Info("Event enrichment completed")
	return enriched, stats
}
