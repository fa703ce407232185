// internal/services/load_service.go
package services

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/funnel-etl/internal/clock"
	"github.com/javajoker/funnel-etl/internal/database"
	"github.com/javajoker/funnel-etl/internal/metrics"
	"github.com/javajoker/funnel-etl/internal/models"
	"github.com/javajoker/funnel-etl/internal/utils"
)

type ProductLoadResult struct {
	Inserted int64
	Updated  int64
}

// Total is the number of rows written, inserted plus updated.
func (r ProductLoadResult) Total() int64 {
	return r.Inserted + r.Updated
}

type EventLoadResult struct {
	Inserted int64
	Skipped  int64
}

// LoadService owns the products and events tables. Every call runs in a single transaction.
type LoadService struct {
	db          *gorm.DB
	clock       clock.Clock
	batchSize   int
	autoMigrate bool
	metrics     *metrics.Metrics
	log         *logrus.Entry
}

func NewLoadService(db *gorm.DB, clk clock.Clock, batchSize int, m *metrics.Metrics, log logrus.FieldLogger) *LoadService {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &LoadService{
		db:          db,
		clock:       clk,
		batchSize:   batchSize,
		autoMigrate: true,
		metrics:     m,
		log:         log.WithField("component", "loader"),
	}
}

// WithAutoMigrate controls whether Prepare creates the schema or only checks connectivity.
func (s *LoadService) WithAutoMigrate(enabled bool) *LoadService {
	s.autoMigrate = enabled
	return s
}

// Prepare verifies the connection and makes sure both tables exist.
func (s *LoadService) Prepare(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return database.Classify("prepare", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return database.Classify("prepare", err)
	}
	if !s.autoMigrate {
		return nil
	}
	return database.EnsureSchema(ctx, s.db, s.log)
}

// LoadProducts upserts rows keyed on product_id, overwriting every other column and
// stamping loaded_at with the load time.
func (s *LoadService) LoadProducts(ctx context.Context, rows []models.Product) (ProductLoadResult, error) {
	var result ProductLoadResult
	s.log.WithField("count", len(rows)).Info("Loading products into database...")
	if len(rows) == 0 {
		return result, nil
	}

	loadedAt := s.clock.Now().UTC()
	batch := dedupeProducts(rows)
	ids := make([]int64, len(batch))
	for i := range batch {
		batch[i].LoadedAt = loadedAt
		ids[i] = batch[i].ProductID
	}

	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		var existing int64
		for _, chunk := range utils.Chunk(ids, s.batchSize) {
			var n int64
			if err := tx.Model(&models.Product{}).Where("product_id IN ?", chunk).Count(&n).Error; err != nil {
				return err
			}
			existing += n
		}

		upsert := clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns(models.ProductColumns[1:]),
		}
		if err := tx.Clauses(upsert).CreateInBatches(&batch, s.batchSize).Error; err != nil {
			return err
		}

		result.Updated = existing
		result.Inserted = int64(len(batch)) - existing
		return nil
	})
	if err != nil {
		s.log.WithError(err).Error("Database error during products load")
		return ProductLoadResult{}, database.Classify("load_products", err)
	}

	if s.metrics != nil {
		s.metrics.RowsLoaded.WithLabelValues("products", "inserted").Add(float64(result.Inserted))
		s.metrics.RowsLoaded.WithLabelValues("products", "updated").Add(float64(result.Updated))
	}
	s.log.WithFields(logrus.Fields{
		"inserted": result.Inserted,
		"updated":  result.Updated,
	}).Infof("Loaded %d products (upserted existing records)", result.Total())
	return result, nil
}

// LoadEvents inserts rows whose event_id is not stored yet. Existing rows are left untouched.
func (s *LoadService) LoadEvents(ctx context.Context, rows []models.Event) (EventLoadResult, error) {
	var result EventLoadResult
	s.log.WithField("count", len(rows)).Info("Loading events into database...")
	if len(rows) == 0 {
		return result, nil
	}

	loadedAt := s.clock.Now().UTC()
	batch := make([]models.Event, len(rows))
	for i, row := range rows {
		row.LoadedAt = loadedAt
		batch[i] = row
	}

	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		insert := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).CreateInBatches(&batch, s.batchSize)
		if insert.Error != nil {
			return insert.Error
		}
		result.Inserted = insert.RowsAffected
		return nil
	})
	if err != nil {
		s.log.WithError(err).Error("Database error during events load")
		return EventLoadResult{}, database.Classify("load_events", err)
	}
	result.Skipped = int64(len(rows)) - result.Inserted

	if s.metrics != nil {
		s.metrics.RowsLoaded.WithLabelValues("events", "inserted").Add(float64(result.Inserted))
		s.metrics.RowsLoaded.WithLabelValues("events", "skipped").Add(float64(result.Skipped))
	}
	s.log.WithFields(logrus.Fields{
		"inserted": result.Inserted,
		"skipped":  result.Skipped,
	}).Infof("Inserted %d new events, skipped %d duplicates", result.Inserted, result.Skipped)
	return result, nil
}

// dedupeProducts keeps the last row per product id, in first-seen order.
func dedupeProducts(rows []models.Product) []models.Product {
	position := make(map[int64]int, len(rows))
	out := make([]models.Product, 0, len(rows))
	for _, row := range rows {
		if i, ok := position[row.ProductID]; ok {
			out[i] = row
			continue
		}
		position[row.ProductID] = len(out)
		out = append(out, row)
	}
	return out
}
