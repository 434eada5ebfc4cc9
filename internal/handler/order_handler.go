package handler

import (
	"net/http"

	"github.com/Eursukkul/checkout-service/internal/dto"
	"github.com/Eursukkul/checkout-service/internal/service"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	svc service.OrderService
}

func NewOrderHandler(svc service.OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

func (h *OrderHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/:id", h.GetOrder)
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid order id", Code: "validation_error"})
	}

	view, err := h.svc.GetOrder(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, dto.ToOrderResponse(view))
}
