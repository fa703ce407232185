// internal/services/fetch_service.go
package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/funnel-etl/internal/metrics"
	"github.com/javajoker/funnel-etl/internal/models"
)

const (
	EntityProducts = "products"
	EntityCarts    = "carts"
	EntityUsers    = "users"
)

// RecordFetcher returns the complete record list behind an API endpoint.
type RecordFetcher interface {
	FetchList(ctx context.Context, endpoint string) ([]models.RawRecord, error)
}

// RawStore persists a fetched payload before it is transformed.
type RawStore interface {
	SaveRaw(ctx context.Context, entity string, records []models.RawRecord) (string, error)
}

// PersistError means a payload was fetched but could not be written to the data lake.
type PersistError struct {
	Entity string
	Err    error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to persist raw %s: %v", e.Entity, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

type FetchService struct {
	client  RecordFetcher
	store   RawStore
	metrics *metrics.Metrics
	log     *logrus.Entry
}

func NewFetchService(client RecordFetcher, store RawStore, m *metrics.Metrics, log logrus.FieldLogger) *FetchService {
	return &FetchService{
		client:  client,
		store:   store,
		metrics: m,
		log:     log.WithField("component", "fetcher"),
	}
}

func (s *FetchService) FetchProducts(ctx context.Context) ([]models.RawRecord, error) {
	return s.fetch(ctx, EntityProducts, "/products")
}

func (s *FetchService) FetchCarts(ctx context.Context) ([]models.RawRecord, error) {
	return s.fetch(ctx, EntityCarts, "/carts")
}

func (s *FetchService) FetchUsers(ctx context.Context) ([]models.RawRecord, error) {
	return s.fetch(ctx, EntityUsers, "/users")
}

func (s *FetchService) fetch(ctx context.Context, entity, endpoint string) ([]models.RawRecord, error) {
	s.log.WithField("entity", entity).Info("Fetching data")

	records, err := s.client.FetchList(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", entity, err)
	}

	if _, err := s.store.SaveRaw(ctx, entity, records); err != nil {
		return nil, &PersistError{Entity: entity, Err: err}
	}

	if s.metrics != nil {
		s.metrics.RecordsFetched.WithLabelValues(entity).Add(float64(len(records)))
	}
	s.log.WithFields(logrus.Fields{
		"entity": entity,
		"count":  len(records),
	}).Info("Fetched records")
	return records, nil
}
