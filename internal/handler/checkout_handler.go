package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/Eursukkul/checkout-service/internal/dto"
	"github.com/Eursukkul/checkout-service/internal/service"
	"github.com/Eursukkul/checkout-service/pkg/payment"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type CheckoutHandler struct {
	checkout service.CheckoutService
	webhooks service.WebhookService
	logger   *zap.Logger
}

func NewCheckoutHandler(checkout service.CheckoutService, webhooks service.WebhookService, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, webhooks: webhooks, logger: logger.Named("checkout_handler")}
}

func (h *CheckoutHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/checkout")
	g.POST("/create-session", h.CreateSession)
	g.POST("/webhook", h.Webhook)
}

func (h *CheckoutHandler) CreateSession(c echo.Context) error {
	var req dto.CreateCheckoutSessionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	// validate tags already checked the uuid format
	in := service.CheckoutRequest{
		EventID:       uuid.MustParse(req.EventID),
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		Items:         make([]service.CheckoutItem, len(req.Items)),
	}
	for i, it := range req.Items {
		in.Items[i] = service.CheckoutItem{TierID: uuid.MustParse(it.TierID), Quantity: it.Quantity}
	}

	session, err := h.checkout.CreateSession(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, dto.ToCheckoutSessionResponse(session))
}

// Webhook acknowledges every authenticated delivery. Processing failures are
// logged rather than surfaced, so the provider does not redeliver. A failed
// delivery leaves its idempotency key unrecorded; the background sweeper
// finishes the paid order's line items, and a manual resend from the
// provider dashboard is applied in full.
func (h *CheckoutHandler) Webhook(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, dto.ErrorResponse{Error: "unreadable body"})
	}
	signature := c.Request().Header.Get(payment.SignatureHeader)

	err = h.webhooks.Process(c.Request().Context(), payload, signature)
	switch {
	case errors.Is(err, service.ErrAuthenticationFailed):
		h.logger.Warn("webhook rejected", zap.Error(err))
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "webhook signature verification failed"})
	case errors.Is(err, service.ErrValidation):
		h.logger.Warn("webhook rejected", zap.Error(err))
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	case err != nil:
		h.logger.Error("webhook processing failed", zap.Error(err))
	}

	return c.JSON(http.StatusOK, dto.WebhookResponse{Received: true})
}
