package repository

import (
	"context"

	"github.com/Eursukkul/checkout-service/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FeeRepository interface {
	CreateIfAbsent(ctx context.Context, fee *models.FeeTransaction) (bool, error)
	FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.FeeTransaction, error)
}

type feeRepository struct {
	db *gorm.DB
}

func NewFeeRepository(db *gorm.DB) FeeRepository {
	return &feeRepository{db: db}
}

func (r *feeRepository) CreateIfAbsent(ctx context.Context, fee *models.FeeTransaction) (bool, error) {
	res := conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoNothing: true,
	}).Create(fee)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *feeRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.FeeTransaction, error) {
	var fee models.FeeTransaction
	if err := conn(ctx, r.db).First(&fee, "order_id = ?", orderID).Error; err != nil {
		return nil, translate(err)
	}
	return &fee, nil
}
