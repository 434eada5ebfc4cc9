package repository

import (
	"context"
	"time"

	"github.com/Eursukkul/checkout-service/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByPaymentSession(ctx context.Context, sessionID string) (*models.Order, error)
	FindByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error)
	// CompareAndSetStatus moves the order to `to` only if it is currently in
	// `from`. It reports whether this call performed the change.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) (bool, error)
	UpdatePaymentDetails(ctx context.Context, id uuid.UUID, details PaymentDetails) error
	RecordTransition(ctx context.Context, t *models.OrderTransition) error
	ListTransitions(ctx context.Context, orderID uuid.UUID) ([]models.OrderTransition, error)

	FindItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error)
	CompareAndSetItemStatus(ctx context.Context, itemID uuid.UUID, from, to models.LineItemStatus) (bool, error)
	// ListStalledItems returns line items of paid orders that are in one of
	// statuses and were last updated before cutoff, oldest first.
	ListStalledItems(ctx context.Context, statuses []models.LineItemStatus, cutoff time.Time, limit int) ([]models.OrderItem, error)
}

// PaymentDetails are the customer fields the payment provider reports at
// capture time. Empty fields leave the stored value untouched.
type PaymentDetails struct {
	CustomerEmail   string
	CustomerName    string
	PaymentIntentID string
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *models.Order) error {
	return conn(ctx, r.db).Create(order).Error
}

func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := conn(ctx, r.db).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (r *orderRepository) FindByPaymentSession(ctx context.Context, sessionID string) (*models.Order, error) {
	var order models.Order
	err := conn(ctx, r.db).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&order, "payment_session_id = ?", sessionID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (r *orderRepository) FindByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error) {
	var order models.Order
	err := conn(ctx, r.db).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&order, "payment_intent_id = ?", intentID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (r *orderRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) (bool, error) {
	res := conn(ctx, r.db).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		UpdateColumns(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *orderRepository) UpdatePaymentDetails(ctx context.Context, id uuid.UUID, details PaymentDetails) error {
	updates := map[string]any{}
	if details.CustomerEmail != "" {
		updates["customer_email"] = details.CustomerEmail
	}
	if details.CustomerName != "" {
		updates["customer_name"] = details.CustomerName
	}
	if details.PaymentIntentID != "" {
		updates["payment_intent_id"] = details.PaymentIntentID
	}
	if len(updates) == 0 {
		return nil
	}
	return conn(ctx, r.db).Model(&models.Order{}).Where("id = ?", id).UpdateColumns(updates).Error
}

func (r *orderRepository) RecordTransition(ctx context.Context, t *models.OrderTransition) error {
	return conn(ctx, r.db).Create(t).Error
}

func (r *orderRepository) ListTransitions(ctx context.Context, orderID uuid.UUID) ([]models.OrderTransition, error) {
	var transitions []models.OrderTransition
	err := conn(ctx, r.db).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&transitions).Error
	return transitions, err
}

func (r *orderRepository) FindItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error) {
	var item models.OrderItem
	if err := conn(ctx, r.db).First(&item, "id = ?", itemID).Error; err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

func (r *orderRepository) CompareAndSetItemStatus(ctx context.Context, itemID uuid.UUID, from, to models.LineItemStatus) (bool, error) {
	res := conn(ctx, r.db).
		Model(&models.OrderItem{}).
		Where("id = ? AND status = ?", itemID, from).
		UpdateColumns(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *orderRepository) ListStalledItems(ctx context.Context, statuses []models.LineItemStatus, cutoff time.Time, limit int) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := conn(ctx, r.db).
		Select("order_items.*").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.status = ? AND order_items.status IN ? AND order_items.updated_at < ?",
			models.OrderStatusPaid, statuses, cutoff).
		Order("order_items.updated_at ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}
