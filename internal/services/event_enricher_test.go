// internal/services/event_enricher_test.go
package services

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/funnel-etl/internal/logger"
	"github.com/javajoker/funnel-etl/internal/metrics"
	"github.com/javajoker/funnel-etl/internal/models"
)

func TestEnrichAttachesProductAttributes(t *testing.T) {
	products := []models.Product{
		{ProductID: 1, Price: decimal.RequireFromString("9.99"), Category: "c"},
		{ProductID: 2, Price: decimal.RequireFromString("20.00"), Category: "jewelery"},
	}
	events := []models.Event{
		{EventID: "view_5_1", ProductID: int64Ptr(1)},
		{EventID: "view_5_2", ProductID: int64Ptr(2)},
		{EventID: "view_5_99", ProductID: int64Ptr(99)},
		{EventID: "view_5_nil"},
	}

	m := metrics.New()
	enriched, stats := NewEventEnricher(m, logger.Discard()).Enrich(events, products)

	require.Len(t, enriched, 4)
	assert.Equal(t, EnrichStats{Total: 4, Matched: 2, Unmatched: 2}, stats)

	assert.Equal(t, "view_5_1", enriched[0].EventID)
	assert.True(t, decimal.RequireFromString("9.99").Equal(enriched[0].Price))
	assert.Equal(t, "c", enriched[0].Category)
	assert.Equal(t, "jewelery", enriched[1].Category)

	for _, e := range enriched[2:] {
		assert.True(t, e.Price.IsZero())
		assert.Equal(t, models.UnknownCategory, e.Category)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsUnmatched))
}

func TestEnrichLeavesInputUntouched(t *testing.T) {
	events := []models.Event{{EventID: "view_1_1", ProductID: int64Ptr(1)}}
	products := []models.Product{{ProductID: 1, Price: decimal.NewFromInt(3), Category: "c"}}

	enriched, _ := NewEventEnricher(nil, logger.Discard()).Enrich(events, products)

	assert.Equal(t, "c", enriched[0].Category)
	assert.Empty(t, events[0].Category)
	assert.True(t, events[0].Price.IsZero())
}

func TestEnrichEmpty(t *testing.T) {
	enriched, stats := NewEventEnricher(nil, logger.Discard()).Enrich(nil, nil)
	assert.Empty(t, enriched)
	assert.Equal(t, EnrichStats{}, stats)
}
