package dto

import (
	"encoding/json"
	"time"

	"github.com/Eursukkul/checkout-service/internal/models"
	"github.com/Eursukkul/checkout-service/internal/service"
	"github.com/google/uuid"
)

type CheckoutSessionResponse struct {
	SessionID string    `json:"sessionId"`
	URL       string    `json:"url"`
	OrderID   uuid.UUID `json:"orderId"`
}

type WebhookResponse struct {
	Received bool `json:"received"`
}

type TierResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int64     `json:"price"`
	Quantity    int       `json:"quantity"`
	Sold        int       `json:"sold"`
	Available   int       `json:"available"`
}

type EventResponse struct {
	ID          uuid.UUID          `json:"id"`
	HostID      string             `json:"hostId"`
	Name        string             `json:"name"`
	Type        string             `json:"type,omitempty"`
	Description string             `json:"description,omitempty"`
	Location    string             `json:"location,omitempty"`
	StartsAt    time.Time          `json:"startsAt"`
	EndsAt      *time.Time         `json:"endsAt,omitempty"`
	Capacity    int                `json:"capacity"`
	Currency    string             `json:"currency"`
	Status      models.EventStatus `json:"status"`
	UIConfig    json.RawMessage    `json:"uiConfig,omitempty"`
	Tiers       []TierResponse     `json:"tiers"`
}

type OrderItemResponse struct {
	ID        uuid.UUID             `json:"id"`
	TierID    uuid.UUID             `json:"tierId"`
	Quantity  int                   `json:"quantity"`
	UnitPrice int64                 `json:"unitPrice"`
	Subtotal  int64                 `json:"subtotal"`
	Status    models.LineItemStatus `json:"status"`
}

type TicketResponse struct {
	ID           uuid.UUID `json:"id"`
	TicketNumber string    `json:"ticketNumber"`
	TierID       uuid.UUID `json:"tierId"`
	QRPayload    string    `json:"qrPayload"`
	CheckedIn    bool      `json:"checkedIn"`
	IssuedAt     time.Time `json:"issuedAt"`
}

type FeeResponse struct {
	Amount     int64             `json:"amount"`
	FeeAmount  int64             `json:"feeAmount"`
	FeeRateBps int               `json:"feeRateBps"`
	Payout     int64             `json:"payout"`
	Plan       string            `json:"plan"`
	RateSource models.RateSource `json:"rateSource"`
}

type TransitionResponse struct {
	From      models.OrderStatus `json:"from"`
	To        models.OrderStatus `json:"to"`
	Reason    string             `json:"reason,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
}

type OrderResponse struct {
	ID            uuid.UUID            `json:"id"`
	EventID       uuid.UUID            `json:"eventId"`
	CustomerEmail string               `json:"customerEmail"`
	CustomerName  string               `json:"customerName"`
	TotalAmount   int64                `json:"totalAmount"`
	Currency      string               `json:"currency"`
	Status        models.OrderStatus   `json:"status"`
	CreatedAt     time.Time            `json:"createdAt"`
	Items         []OrderItemResponse  `json:"items"`
	Tickets       []TicketResponse     `json:"tickets"`
	Fee           *FeeResponse         `json:"fee,omitempty"`
	History       []TransitionResponse `json:"history"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

func ToCheckoutSessionResponse(s *service.CheckoutSession) CheckoutSessionResponse {
	return CheckoutSessionResponse{SessionID: s.SessionID, URL: s.URL, OrderID: s.OrderID}
}

func ToEventResponse(e *models.Event) EventResponse {
	resp := EventResponse{
		ID:          e.ID,
		HostID:      e.HostID,
		Name:        e.Name,
		Type:        e.Type,
		Description: e.Description,
		Location:    e.Location,
		StartsAt:    e.StartsAt,
		EndsAt:      e.EndsAt,
		Capacity:    e.Capacity,
		Currency:    e.Currency,
		Status:      e.Status,
		Tiers:       make([]TierResponse, len(e.Tiers)),
	}
	if len(e.UIConfig) > 0 {
		resp.UIConfig = json.RawMessage(e.UIConfig)
	}
	for i, t := range e.Tiers {
		resp.Tiers[i] = TierResponse{
			ID:          t.ID,
			Name:        t.Name,
			Description: t.Description,
			Price:       t.Price,
			Quantity:    t.Quantity,
			Sold:        t.Sold,
			Available:   t.Available(),
		}
	}
	return resp
}

func ToOrderResponse(v *service.OrderView) OrderResponse {
	o := v.Order
	resp := OrderResponse{
		ID:            o.ID,
		EventID:       o.EventID,
		CustomerEmail: o.CustomerEmail,
		CustomerName:  o.CustomerName,
		TotalAmount:   o.TotalAmount,
		Currency:      o.Currency,
		Status:        o.Status,
		CreatedAt:     o.CreatedAt,
		Items:         make([]OrderItemResponse, len(o.Items)),
		Tickets:       make([]TicketResponse, len(v.Tickets)),
		History:       make([]TransitionResponse, len(v.Transitions)),
	}
	for i, it := range o.Items {
		resp.Items[i] = OrderItemResponse{
			ID:        it.ID,
			TierID:    it.TierID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Subtotal:  it.Subtotal(),
			Status:    it.Status,
		}
	}
	for i, t := range v.Tickets {
		resp.Tickets[i] = TicketResponse{
			ID:           t.ID,
			TicketNumber: t.TicketNumber,
			TierID:       t.TierID,
			QRPayload:    t.QRPayload,
			CheckedIn:    t.CheckedIn,
			IssuedAt:     t.IssuedAt,
		}
	}
	for i, tr := range v.Transitions {
		resp.History[i] = TransitionResponse{From: tr.FromStatus, To: tr.ToStatus, Reason: tr.Reason, CreatedAt: tr.CreatedAt}
	}
	if f := v.Fee; f != nil {
		resp.Fee = &FeeResponse{
			Amount:     f.Amount,
			FeeAmount:  f.FeeAmount,
			FeeRateBps: f.FeeRateBps,
			Payout:     f.Payout,
			Plan:       f.Plan,
			RateSource: f.RateSource,
		}
	}
	return resp
}
