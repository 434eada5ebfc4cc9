package repository

import (
	"context"

	"github.com/Eursukkul/checkout-service/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	// Upsert writes event metadata and tier definitions. Tier sold counts
	// are never written here.
	Upsert(ctx context.Context, event *models.Event) error
}

type eventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Create(ctx context.Context, event *models.Event) error {
	return conn(ctx, r.db).Create(event).Error
}

func (r *eventRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	err := conn(ctx, r.db).
		Preload("Tiers", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC, created_at ASC")
		}).
		First(&event, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &event, nil
}

func (r *eventRepository) Upsert(ctx context.Context, event *models.Event) error {
	db := conn(ctx, r.db)

	err := db.Omit("Tiers").Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"host_id", "name", "type", "description", "location", "starts_at",
			"ends_at", "capacity", "currency", "status", "ui_config", "updated_at",
		}),
	}).Create(event).Error
	if err != nil {
		return err
	}

	for i := range event.Tiers {
		tier := event.Tiers[i]
		tier.EventID = event.ID
		err := db.Omit("sold").Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "description", "price", "quantity", "sort_order", "updated_at"}),
		}).Create(&tier).Error
		if err != nil {
			return err
		}
	}
	return nil
}
