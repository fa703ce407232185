// internal/services/helpers_test.go
package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/javajoker/funnel-etl/internal/config"
	"github.com/javajoker/funnel-etl/internal/database"
	"github.com/javajoker/funnel-etl/internal/logger"
	"github.com/javajoker/funnel-etl/internal/models"
)

// rawRecords decodes a JSON array the way the API client does.
func rawRecords(t *testing.T, s string) []models.RawRecord {
	t.Helper()
	records, err := decodeRecords([]byte(s))
	require.NoError(t, err)
	return records
}

// newTestDB opens a private in-memory SQLite database with the schema in place.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := config.DatabaseConfig{
		URL:          "file::memory:",
		Driver:       config.DriverSQLite,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     "silent",
	}
	db, err := database.Initialize(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db, logger.Discard()) })

	require.NoError(t, database.EnsureSchema(context.Background(), db, logger.Discard()))
	return db
}

func int64Ptr(v int64) *int64 {
	return &v
}

// scriptedRand replays fixed draws. Once a script runs out it returns the fallback values.
type scriptedRand struct {
	floats        []float64
	ints          []int
	floatFallback float64
}

func (r *scriptedRand) Float64() float64 {
	if len(r.floats) == 0 {
		return r.floatFallback
	}
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}

func (r *scriptedRand) IntN(n int) int {
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	if v >= n {
		return n - 1
	}
	return v
}
