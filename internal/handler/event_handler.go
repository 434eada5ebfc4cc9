package handler

import (
	"net/http"
	"strings"

	"github.com/Eursukkul/checkout-service/internal/dto"
	"github.com/Eursukkul/checkout-service/internal/models"
	"github.com/Eursukkul/checkout-service/internal/service"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/datatypes"
)

type EventHandler struct {
	svc service.EventService
}

func NewEventHandler(svc service.EventService) *EventHandler {
	return &EventHandler{svc: svc}
}

func (h *EventHandler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.CreateEvent)
	g.GET("/:id", h.GetEvent)
}

func (h *EventHandler) CreateEvent(c echo.Context) error {
	var req dto.CreateEventRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	event := &models.Event{
		HostID:      req.HostID,
		Name:        req.Name,
		Type:        req.Type,
		Description: req.Description,
		Location:    req.Location,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		Currency:    strings.ToLower(req.Currency),
		Status:      models.EventStatus(req.Status),
		Tiers:       make([]models.TicketTier, len(req.Tiers)),
	}
	if len(req.UIConfig) > 0 {
		event.UIConfig = datatypes.JSON(req.UIConfig)
	}
	for i, t := range req.Tiers {
		event.Tiers[i] = models.TicketTier{
			Name:        t.Name,
			Description: t.Description,
			Price:       t.Price,
			Quantity:    t.Quantity,
		}
	}

	if err := h.svc.CreateEvent(c.Request().Context(), event); err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, dto.ToEventResponse(event))
}

func (h *EventHandler) GetEvent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid event id", Code: "validation_error"})
	}

	event, err := h.svc.GetEvent(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, dto.ToEventResponse(event))
}
