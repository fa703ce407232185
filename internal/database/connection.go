// internal/database/connection.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	// registers the "postgres" database/sql driver used by DB_DRIVER=libpq
	_ "github.com/lib/pq"

	"github.com/javajoker/funnel-etl/internal/config"
	"github.com/javajoker/funnel-etl/internal/models"
)

// Dialect picks the gorm dialector for the configured driver.
func Dialect(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	switch cfg.ResolvedDriver() {
	case config.DriverPostgres:
		return postgres.Open(dsn), nil
	case config.DriverLibPQ:
		return postgres.New(postgres.Config{DriverName: "postgres", DSN: dsn}), nil
	case config.DriverMySQL:
		return mysql.Open(dsn), nil
	case config.DriverSQLite:
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported %s type", cfg.Driver)
	}
}

func Initialize(ctx context.Context, cfg config.DatabaseConfig, log logrus.FieldLogger) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, Classify("connect", err)
	}

	gormConfig := &gorm.Config{
		Logger: logger.New(log, logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
		}),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, Classify("connect", fmt.Errorf("failed to connect to database: %w", err))
	}

	// Get underlying sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, Classify("connect", fmt.Errorf("failed to ping database: %w", err))
	}

	log.WithFields(logrus.Fields{
		"driver": cfg.ResolvedDriver(),
		"host":   cfg.Host(),
	}).Info("Database connection established successfully")
	return db, nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "info":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	default:
		return logger.Silent
	}
}

func Close(db *gorm.DB, log logrus.FieldLogger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.WithError(err).Error("Error getting underlying sql.DB")
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.WithError(err).Error("Error closing database connection")
	} else {
		log.Debug("Database connection closed successfully")
	}
}

// EnsureSchema creates the products and events tables with their indexes and check
// constraints. Running it against an existing schema changes nothing.
func EnsureSchema(ctx context.Context, db *gorm.DB, log logrus.FieldLogger) error {
	log.Info("Creating database schema...")

	if err := db.WithContext(ctx).AutoMigrate(&models.Product{}, &models.Event{}); err != nil {
		return Classify("schema", fmt.Errorf("failed to run migrations: %w", err))
	}

	log.Info("Database schema ready")
	return nil
}

// WithTransaction runs fn inside one transaction. Any error or panic rolls everything back.
func WithTransaction(ctx context.Context, db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
