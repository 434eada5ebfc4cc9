package service

import (
	"context"
	"fmt"

	"github.com/Eursukkul/checkout-service/internal/clock"
	"github.com/Eursukkul/checkout-service/internal/metrics"
	"github.com/Eursukkul/checkout-service/internal/models"
	"github.com/Eursukkul/checkout-service/internal/repository"
	"github.com/Eursukkul/checkout-service/internal/ticketcode"
	"github.com/google/uuid"
)

type TicketIssuer interface {
	// IssueLineItem writes one ticket per unit of an allocated line item
	// and marks the item fulfilled. Units that already have a ticket are
	// skipped, so a partially issued item can be resumed. It returns the
	// tickets written by this call.
	IssueLineItem(ctx context.Context, order *models.Order, item *models.OrderItem) ([]models.Ticket, error)
}

type ticketIssuer struct {
	tickets repository.TicketRepository
	orders  repository.OrderRepository
	codec   *ticketcode.Codec
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewTicketIssuer(tickets repository.TicketRepository, orders repository.OrderRepository, codec *ticketcode.Codec, clk clock.Clock, m *metrics.Metrics) TicketIssuer {
	return &ticketIssuer{tickets: tickets, orders: orders, codec: codec, clock: clk, metrics: m}
}

func (i *ticketIssuer) IssueLineItem(ctx context.Context, order *models.Order, item *models.OrderItem) ([]models.Ticket, error) {
	switch item.Status {
	case models.LineItemFulfilled:
		return nil, nil
	case models.LineItemAllocated:
	default:
		return nil, fmt.Errorf("line item %s is %s, not allocated", item.ID, item.Status)
	}

	var issued []models.Ticket
	for seq := 0; seq < item.Quantity; seq++ {
		ticket, created, err := i.issueUnit(ctx, order, item, seq)
		if err != nil {
			return issued, fmt.Errorf("issue unit %d of line item %s: %w", seq, item.ID, err)
		}
		if created {
			issued = append(issued, *ticket)
			i.metrics.TicketIssued()
		}
	}

	if _, err := i.orders.CompareAndSetItemStatus(ctx, item.ID, models.LineItemAllocated, models.LineItemFulfilled); err != nil {
		return issued, err
	}
	item.Status = models.LineItemFulfilled
	return issued, nil
}

func (i *ticketIssuer) issueUnit(ctx context.Context, order *models.Order, item *models.OrderItem, seq int) (*models.Ticket, bool, error) {
	number, err := ticketcode.NewNumber()
	if err != nil {
		return nil, false, err
	}
	issuedAt := i.clock.Now()
	payload, err := i.codec.Encode(ticketcode.Claims{
		TicketNumber: number,
		EventID:      order.EventID,
		IssuedAt:     issuedAt,
	})
	if err != nil {
		return nil, false, err
	}

	ticket := &models.Ticket{
		ID:           uuid.New(),
		OrderID:      order.ID,
		OrderItemID:  item.ID,
		Sequence:     seq,
		TierID:       item.TierID,
		EventID:      order.EventID,
		TicketNumber: number,
		QRPayload:    payload,
		IssuedAt:     issuedAt,
	}
	created, err := i.tickets.CreateIfAbsent(ctx, ticket)
	if err != nil {
		return nil, false, err
	}
	return ticket, created, nil
}
