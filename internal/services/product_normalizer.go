// internal/services/product_normalizer.go
package services

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/funnel-etl/internal/clock"
	"github.com/javajoker/funnel-etl/internal/metrics"
	"github.com/javajoker/funnel-etl/internal/models"
	"github.com/javajoker/funnel-etl/internal/utils"
)

// NormalizeStats counts what happened to a raw product batch.
type NormalizeStats struct {
	Total      int
	Valid      int
	Invalid    int
	Duplicates int
}

// ProductNormalizer turns raw product records into validated product rows.
type ProductNormalizer struct {
	clock   clock.Clock
	metrics *metrics.Metrics
	log     *logrus.Entry
}

func NewProductNormalizer(clk clock.Clock, m *metrics.Metrics, log logrus.FieldLogger) *ProductNormalizer {
	return &ProductNormalizer{
		clock:   clk,
		metrics: m,
		log:     log.WithField("component", "normalizer"),
	}
}

// Normalize never fails: malformed records are logged and dropped. When a product id
// repeats, the later record replaces the earlier one in the earlier one's position.
func (n *ProductNormalizer) Normalize(raw []models.RawRecord) ([]models.Product, NormalizeStats) {
	n.log.Info("Transforming products data...")

	stats := NormalizeStats{Total: len(raw)}
	loadedAt := n.clock.Now().UTC()

	products := make([]models.Product, 0, len(raw))
	position := make(map[int64]int, len(raw))

	for _, record := range raw {
		product, err := parseProduct(record)
		if err != nil {
			stats.Invalid++
			n.skipped("invalid")
			n.log.WithFields(logrus.Fields{
				"product_id": record.Ref(),
				"error":      err.Error(),
			}).Warn("Skipping invalid product")
			continue
		}
		product.LoadedAt = loadedAt

		if i, seen := position[product.ProductID]; seen {
			stats.Duplicates++
			n.skipped("duplicate")
			n.log.WithField("product_id", product.ProductID).Warn("Duplicate product id in batch, keeping the later record")
			products[i] = product
			continue
		}
		position[product.ProductID] = len(products)
		products = append(products, product)
	}

	stats.Valid = len(products)
	n.log.WithFields(logrus.Fields{
		"valid":      stats.Valid,
		"total":      stats.Total,
		"invalid":    stats.Invalid,
		"duplicates": stats.Duplicates,
	}).Infof("Transformed %d valid products out of %d raw records", stats.Valid, stats.Total)

	return products, stats
}

func (n *ProductNormalizer) skipped(reason string) {
	if n.metrics != nil {
		n.metrics.RecordsSkipped.WithLabelValues(EntityProducts, reason).Inc()
	}
}

func parseProduct(record models.RawRecord) (models.Product, error) {
	var p models.Product

	id, err := record.Int("id")
	if err != nil {
		return p, err
	}
	title, err := record.String("title")
	if err != nil {
		return p, err
	}
	price, err := record.Float("price")
	if err != nil {
		return p, err
	}
	category, err := record.String("category")
	if err != nil {
		return p, err
	}
	rating, err := record.Object("rating")
	if err != nil {
		return p, err
	}
	rate, err := rating.Float("rate")
	if err != nil {
		return p, fmt.Errorf("rating: %w", err)
	}
	count, err := rating.Int("count")
	if err != nil {
		return p, fmt.Errorf("rating: %w", err)
	}

	p = models.Product{
		ProductID:   id,
		Title:       title,
		Price:       decimal.NewFromFloat(price),
		Category:    category,
		Rating:      decimal.NewFromFloat(rate),
		RatingCount: count,
	}
	if err := utils.ValidateStruct(p); err != nil {
		return p, fmt.Errorf("%s", utils.JoinValidationErrors(err))
	}

	// stored precision
	p.Price = p.Price.Round(2)
	p.Rating = p.Rating.Round(2)
	return p, nil
}
