package handler

import (
	"errors"
	"net/http"

	"github.com/Eursukkul/checkout-service/internal/dto"
	"github.com/Eursukkul/checkout-service/internal/service"
	"github.com/labstack/echo/v4"
)

type inventoryDetails struct {
	TierID    string `json:"tierId"`
	TierName  string `json:"tierName"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Shortfall int    `json:"shortfall"`
}

// httpError maps service errors onto status codes.
func httpError(err error) error {
	var (
		verr *service.ValidationError
		ierr *service.InventoryUnavailableError
	)
	switch {
	case errors.As(err, &verr):
		var details any
		if verr.Field != "" {
			details = map[string]string{"field": verr.Field}
		}
		return echo.NewHTTPError(http.StatusBadRequest, dto.ErrorResponse{Error: verr.Error(), Code: "validation_error", Details: details})
	case errors.Is(err, service.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Code: "validation_error"})
	case errors.Is(err, service.ErrEventNotFound),
		errors.Is(err, service.ErrTierNotFound),
		errors.Is(err, service.ErrOrderNotFound):
		return echo.NewHTTPError(http.StatusNotFound, dto.ErrorResponse{Error: err.Error(), Code: "not_found"})
	case errors.As(err, &ierr):
		return echo.NewHTTPError(http.StatusConflict, dto.ErrorResponse{
			Error: ierr.Error(),
			Code:  "inventory_unavailable",
			Details: inventoryDetails{
				TierID:    ierr.TierID.String(),
				TierName:  ierr.TierName,
				Requested: ierr.Requested,
				Available: ierr.Available,
				Shortfall: ierr.Shortfall,
			},
		})
	case errors.Is(err, service.ErrExternalProvider):
		he := echo.NewHTTPError(http.StatusInternalServerError, dto.ErrorResponse{
			Error: "payment provider unavailable, please retry",
			Code:  "provider_error",
		})
		return he.SetInternal(err)
	default:
		he := echo.NewHTTPError(http.StatusInternalServerError, dto.ErrorResponse{
			Error: http.StatusText(http.StatusInternalServerError),
			Code:  "internal_error",
		})
		return he.SetInternal(err)
	}
}
