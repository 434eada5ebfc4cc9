package database

import (
	"fmt"
	"time"

	"github.com/Eursukkul/checkout-service/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewPostgresDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Event{},
		&models.TicketTier{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderTransition{},
		&models.Ticket{},
		&models.FeeTransaction{},
		&models.ProcessedWebhook{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	// Partial index: the sweeper only scans line items that still need work
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_order_items_unsettled
		ON order_items (updated_at)
		WHERE status IN ('pending', 'allocated', 'oversold_conflict')
	`).Error; err != nil {
		return fmt.Errorf("create unsettled items index: %w", err)
	}

	return nil
}
