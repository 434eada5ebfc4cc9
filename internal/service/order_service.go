package service

import (
	"context"
	"errors"

	"github.com/Eursukkul/checkout-service/internal/models"
	"github.com/Eursukkul/checkout-service/internal/repository"
	"github.com/google/uuid"
)

// OrderView is the post-purchase read of an order.
type OrderView struct {
	Order       *models.Order
	Tickets     []models.Ticket
	Fee         *models.FeeTransaction
	Transitions []models.OrderTransition
}

type OrderService interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*OrderView, error)
}

type orderService struct {
	orders  repository.OrderRepository
	tickets repository.TicketRepository
	fees    repository.FeeRepository
}

func NewOrderService(orders repository.OrderRepository, tickets repository.TicketRepository, fees repository.FeeRepository) OrderService {
	return &orderService{orders: orders, tickets: tickets, fees: fees}
}

func (s *orderService) GetOrder(ctx context.Context, id uuid.UUID) (*OrderView, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	tickets, err := s.tickets.FindByOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	transitions, err := s.orders.ListTransitions(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &OrderView{Order: order, Tickets: tickets, Transitions: transitions}
	fee, err := s.fees.FindByOrder(ctx, id)
	switch {
	case err == nil:
		view.Fee = fee
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}
	return view, nil
}
