package service

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/syndicatehq/syndicate/internal/config"
	"github.com/syndicatehq/syndicate/internal/models"
	"github.com/syndicatehq/syndicate/pkg/retry"
)

func NewDatabase(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
		cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port, cfg.SSLMode, cfg.TimeZone)

	var db *gorm.DB
	err := retry.WithBackoff(context.Background(), retry.DBConfig(), func() error {
		var openErr error
		db, openErr = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		return openErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Migrate applies the schema for all durable records. The unique composite
// index on publications(content_id, integration_id) is what enforces the
// one-row-per-pair invariant at the store layer.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Article{},
		&models.Integration{},
		&models.Publication{},
		&models.DeliveryJob{},
		&models.ErrorLog{},
		&models.MetricsSample{},
	)
}
