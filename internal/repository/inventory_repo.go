package repository

import (
	"context"

	"github.com/Eursukkul/checkout-service/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InventoryRepository interface {
	// ConditionalIncrement adds units to the tier's sold counter if and only
	// if the result stays within quantity. It reports whether the increment
	// was applied.
	ConditionalIncrement(ctx context.Context, tierID uuid.UUID, units int) (bool, error)
	FindTier(ctx context.Context, tierID uuid.UUID) (*models.TicketTier, error)
}

type inventoryRepository struct {
	db *gorm.DB
}

func NewInventoryRepository(db *gorm.DB) InventoryRepository {
	return &inventoryRepository{db: db}
}

func (r *inventoryRepository) ConditionalIncrement(ctx context.Context, tierID uuid.UUID, units int) (bool, error) {
	// Single statement: Postgres re-checks the WHERE clause against the
	// locked row, so concurrent increments cannot push sold past quantity.
	res := conn(ctx, r.db).
		Model(&models.TicketTier{}).
		Where("id = ? AND sold + ? <= quantity", tierID, units).
		UpdateColumns(map[string]any{
			"sold":       gorm.Expr("sold + ?", units),
			"updated_at": gorm.Expr("NOW()"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *inventoryRepository) FindTier(ctx context.Context, tierID uuid.UUID) (*models.TicketTier, error) {
	var tier models.TicketTier
	if err := conn(ctx, r.db).First(&tier, "id = ?", tierID).Error; err != nil {
		return nil, translate(err)
	}
	return &tier, nil
}
