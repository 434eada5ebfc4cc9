// Package memory implements the repository interfaces on in-process maps.
// A single Store backs every repository so transactions started with
// WithTx see one consistent state. There is no rollback: a failed WithTx
// keeps whatever writes happened before the error.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Eursukkul/checkout-service/internal/models"
	"github.com/Eursukkul/checkout-service/internal/repository"
	"github.com/google/uuid"
)

var (
	ErrAlreadyExists   = errors.New("memory: already exists")
	ErrCheckConstraint = errors.New("memory: check constraint violated")
)

type unitKey struct {
	itemID   uuid.UUID
	sequence int
}

type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	events      map[uuid.UUID]*models.Event
	tiers       map[uuid.UUID]*models.TicketTier
	orders      map[uuid.UUID]*models.Order
	items       map[uuid.UUID]*models.OrderItem
	transitions []models.OrderTransition

	tickets       map[uuid.UUID]*models.Ticket
	ticketUnits   map[unitKey]uuid.UUID
	ticketNumbers map[string]uuid.UUID

	fees     map[uuid.UUID]*models.FeeTransaction
	webhooks map[string]models.ProcessedWebhook
}

func New() *Store {
	return &Store{
		events:        make(map[uuid.UUID]*models.Event),
		tiers:         make(map[uuid.UUID]*models.TicketTier),
		orders:        make(map[uuid.UUID]*models.Order),
		items:         make(map[uuid.UUID]*models.OrderItem),
		tickets:       make(map[uuid.UUID]*models.Ticket),
		ticketUnits:   make(map[unitKey]uuid.UUID),
		ticketNumbers: make(map[string]uuid.UUID),
		fees:          make(map[uuid.UUID]*models.FeeTransaction),
		webhooks:      make(map[string]models.ProcessedWebhook),
	}
}

type txKey struct{}

// WithTx serializes fn against every other WithTx on the same store.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, true))
}

func (s *Store) Events() repository.EventRepository { return eventRepo{s} }
func (s *Store) Inventory() repository.InventoryRepository { return inventoryRepo{s} }
func (s *Store) Orders() repository.OrderRepository { return orderRepo{s} }
func (s *Store) Tickets() repository.TicketRepository { return ticketRepo{s} }
func (s *Store) Fees() repository.FeeRepository { return feeRepo{s} }
func (s *Store) Webhooks() repository.WebhookRepository { return webhookRepo{s} }

// Events

type eventRepo struct{ s *Store }

func (r eventRepo) Create(_ context.Context, event *models.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.events[event.ID]; exists {
		return ErrAlreadyExists
	}
	now := time.Now().UTC()
	event.CreatedAt, event.UpdatedAt = now, now
	stored := *event
	stored.Tiers = nil
	r.s.events[event.ID] = &stored
	for i := range event.Tiers {
		event.Tiers[i].EventID = event.ID
		event.Tiers[i].CreatedAt, event.Tiers[i].UpdatedAt = now, now
		tier := event.Tiers[i]
		r.s.tiers[tier.ID] = &tier
	}
	return nil
}

func (r eventRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	stored, ok := r.s.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	event := *stored
	event.Tiers = nil
	for _, tier := range r.s.tiers {
		if tier.EventID == id {
			event.Tiers = append(event.Tiers, *tier)
		}
	}
	sort.SliceStable(event.Tiers, func(i, j int) bool {
		if event.Tiers[i].SortOrder != event.Tiers[j].SortOrder {
			return event.Tiers[i].SortOrder < event.Tiers[j].SortOrder
		}
		return event.Tiers[i].CreatedAt.Before(event.Tiers[j].CreatedAt)
	})
	return &event, nil
}

func (r eventRepo) Upsert(_ context.Context, event *models.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, tier := range event.Tiers {
		if existing, ok := r.s.tiers[tier.ID]; ok && tier.Quantity < existing.Sold {
			return fmt.Errorf("tier %s: %w", tier.ID, ErrCheckConstraint)
		}
	}

	now := time.Now().UTC()
	stored := *event
	stored.Tiers = nil
	stored.UpdatedAt = now
	if existing, ok := r.s.events[event.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	r.s.events[event.ID] = &stored

	for _, tier := range event.Tiers {
		if existing, ok := r.s.tiers[tier.ID]; ok {
			existing.Name = tier.Name
			existing.Description = tier.Description
			existing.Price = tier.Price
			existing.Quantity = tier.Quantity
			existing.SortOrder = tier.SortOrder
			existing.UpdatedAt = now
			continue
		}
		tier.EventID = event.ID
		tier.Sold = 0
		tier.CreatedAt, tier.UpdatedAt = now, now
		r.s.tiers[tier.ID] = &tier
	}
	return nil
}

// Inventory

type inventoryRepo struct{ s *Store }

func (r inventoryRepo) ConditionalIncrement(_ context.Context, tierID uuid.UUID, units int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	tier, ok := r.s.tiers[tierID]
	if !ok || tier.Sold+units > tier.Quantity {
		return false, nil
	}
	tier.Sold += units
	tier.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r inventoryRepo) FindTier(_ context.Context, tierID uuid.UUID) (*models.TicketTier, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	tier, ok := r.s.tiers[tierID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *tier
	return &out, nil
}

// Orders

type orderRepo struct{ s *Store }

func (r orderRepo) Create(_ context.Context, order *models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.orders[order.ID]; exists {
		return ErrAlreadyExists
	}
	for _, o := range r.s.orders {
		if o.PaymentSessionID == order.PaymentSessionID {
			return fmt.Errorf("payment session %s: %w", order.PaymentSessionID, ErrAlreadyExists)
		}
	}

	now := time.Now().UTC()
	order.CreatedAt, order.UpdatedAt = now, now
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}
	stored := *order
	stored.Items = nil
	r.s.orders[order.ID] = &stored
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		order.Items[i].CreatedAt, order.Items[i].UpdatedAt = now, now
		if order.Items[i].Status == "" {
			order.Items[i].Status = models.LineItemPending
		}
		item := order.Items[i]
		r.s.items[item.ID] = &item
	}
	return nil
}

func (r orderRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	stored, ok := r.s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.assemble(stored), nil
}

func (r orderRepo) FindByPaymentSession(_ context.Context, sessionID string) (*models.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, o := range r.s.orders {
		if o.PaymentSessionID == sessionID {
			return r.assemble(o), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r orderRepo) FindByPaymentIntent(_ context.Context, intentID string) (*models.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, o := range r.s.orders {
		if intentID != "" && o.PaymentIntentID == intentID {
			return r.assemble(o), nil
		}
	}
	return nil, repository.ErrNotFound
}

// assemble must be called with mu held.
func (r orderRepo) assemble(stored *models.Order) *models.Order {
	order := *stored
	order.Items = nil
	for _, item := range r.s.items {
		if item.OrderID == order.ID {
			order.Items = append(order.Items, *item)
		}
	}
	sort.Slice(order.Items, func(i, j int) bool { return order.Items[i].Position < order.Items[j].Position })
	return &order
}

func (r orderRepo) CompareAndSetStatus(_ context.Context, id uuid.UUID, from, to models.OrderStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	order, ok := r.s.orders[id]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	order.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r orderRepo) UpdatePaymentDetails(_ context.Context, id uuid.UUID, details repository.PaymentDetails) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	order, ok := r.s.orders[id]
	if !ok {
		return nil
	}
	if details.CustomerEmail != "" {
		order.CustomerEmail = details.CustomerEmail
	}
	if details.CustomerName != "" {
		order.CustomerName = details.CustomerName
	}
	if details.PaymentIntentID != "" {
		order.PaymentIntentID = details.PaymentIntentID
	}
	return nil
}

func (r orderRepo) RecordTransition(_ context.Context, t *models.OrderTransition) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t.ID = uint(len(r.s.transitions) + 1)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	r.s.transitions = append(r.s.transitions, *t)
	return nil
}

func (r orderRepo) ListTransitions(_ context.Context, orderID uuid.UUID) ([]models.OrderTransition, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []models.OrderTransition
	for _, t := range r.s.transitions {
		if t.OrderID == orderID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r orderRepo) FindItem(_ context.Context, itemID uuid.UUID) (*models.OrderItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	item, ok := r.s.items[itemID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *item
	return &out, nil
}

func (r orderRepo) CompareAndSetItemStatus(_ context.Context, itemID uuid.UUID, from, to models.LineItemStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	item, ok := r.s.items[itemID]
	if !ok || item.Status != from {
		return false, nil
	}
	item.Status = to
	item.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r orderRepo) ListStalledItems(_ context.Context, statuses []models.LineItemStatus, cutoff time.Time, limit int) ([]models.OrderItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []models.OrderItem
	for _, item := range r.s.items {
		order, ok := r.s.orders[item.OrderID]
		if !ok || order.Status != models.OrderStatusPaid || !item.UpdatedAt.Before(cutoff) {
			continue
		}
		for _, st := range statuses {
			if item.Status == st {
				out = append(out, *item)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Tickets

type ticketRepo struct{ s *Store }

func (r ticketRepo) CreateIfAbsent(_ context.Context, ticket *models.Ticket) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := unitKey{itemID: ticket.OrderItemID, sequence: ticket.Sequence}
	if _, exists := r.s.ticketUnits[key]; exists {
		return false, nil
	}
	if _, exists := r.s.ticketNumbers[ticket.TicketNumber]; exists {
		return false, fmt.Errorf("ticket number %s: %w", ticket.TicketNumber, ErrAlreadyExists)
	}
	stored := *ticket
	r.s.tickets[ticket.ID] = &stored
	r.s.ticketUnits[key] = ticket.ID
	r.s.ticketNumbers[ticket.TicketNumber] = ticket.ID
	return true, nil
}

func (r ticketRepo) FindByOrder(_ context.Context, orderID uuid.UUID) ([]models.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []models.Ticket
	for _, t := range r.s.tickets {
		if t.OrderID == orderID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketNumber < out[j].TicketNumber })
	return out, nil
}

func (r ticketRepo) CountByTier(_ context.Context, tierID uuid.UUID) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var n int64
	for _, t := range r.s.tickets {
		if t.TierID == tierID {
			n++
		}
	}
	return n, nil
}

// Fees

type feeRepo struct{ s *Store }

func (r feeRepo) CreateIfAbsent(_ context.Context, fee *models.FeeTransaction) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.fees[fee.OrderID]; exists {
		return false, nil
	}
	if fee.CreatedAt.IsZero() {
		fee.CreatedAt = time.Now().UTC()
	}
	stored := *fee
	r.s.fees[fee.OrderID] = &stored
	return true, nil
}

func (r feeRepo) FindByOrder(_ context.Context, orderID uuid.UUID) (*models.FeeTransaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	fee, ok := r.s.fees[orderID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *fee
	return &out, nil
}

// Webhooks

type webhookRepo struct{ s *Store }

func (r webhookRepo) IsProcessed(_ context.Context, key string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	_, ok := r.s.webhooks[key]
	return ok, nil
}

func (r webhookRepo) MarkProcessed(_ context.Context, record *models.ProcessedWebhook) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.webhooks[record.IdempotencyKey]; !exists {
		r.s.webhooks[record.IdempotencyKey] = *record
	}
	return nil
}
