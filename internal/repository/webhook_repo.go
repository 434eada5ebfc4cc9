package repository

import (
	"context"

	"github.com/Eursukkul/checkout-service/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WebhookRepository interface {
	IsProcessed(ctx context.Context, key string) (bool, error)
	MarkProcessed(ctx context.Context, record *models.ProcessedWebhook) error
}

type webhookRepository struct {
	db *gorm.DB
}

func NewWebhookRepository(db *gorm.DB) WebhookRepository {
	return &webhookRepository{db: db}
}

func (r *webhookRepository) IsProcessed(ctx context.Context, key string) (bool, error) {
	var count int64
	err := conn(ctx, r.db).
		Model(&models.ProcessedWebhook{}).
		Where("idempotency_key = ?", key).
		Count(&count).Error
	return count > 0, err
}

func (r *webhookRepository) MarkProcessed(ctx context.Context, record *models.ProcessedWebhook) error {
	return conn(ctx, r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(record).Error
}
