package repository

import (
	"context"

	"github.com/Eursukkul/checkout-service/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TicketRepository interface {
	// CreateIfAbsent inserts the ticket unless one already exists for the
	// same (order item, sequence) unit. It reports whether a row was written.
	CreateIfAbsent(ctx context.Context, ticket *models.Ticket) (bool, error)
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Ticket, error)
	CountByTier(ctx context.Context, tierID uuid.UUID) (int64, error)
}

type ticketRepository struct {
	db *gorm.DB
}

func NewTicketRepository(db *gorm.DB) TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) CreateIfAbsent(ctx context.Context, ticket *models.Ticket) (bool, error) {
	res := conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_item_id"}, {Name: "sequence"}},
		DoNothing: true,
	}).Create(ticket)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *ticketRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := conn(ctx, r.db).
		Where("order_id = ?", orderID).
		Order("ticket_number ASC").
		Find(&tickets).Error
	return tickets, err
}

func (r *ticketRepository) CountByTier(ctx context.Context, tierID uuid.UUID) (int64, error) {
	var count int64
	err := conn(ctx, r.db).
		Model(&models.Ticket{}).
		Where("tier_id = ?", tierID).
		Count(&count).Error
	return count, err
}
