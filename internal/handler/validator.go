package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/Eursukkul/checkout-service/internal/dto"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// RequestValidator plugs go-playground/validator into echo.Context.Validate.
type RequestValidator struct {
	v *validator.Validate
}

func NewValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{v: v}
}

func (rv *RequestValidator) Validate(i any) error {
	return rv.v.Struct(i)
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// bindAndValidate decodes the JSON body into req and runs its validate tags.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, dto.ErrorResponse{
			Error: "invalid request body",
			Code:  "validation_error",
		})
	}
	if err := c.Validate(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return echo.NewHTTPError(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Code: "validation_error"})
		}
		details := make([]fieldError, len(verrs))
		for i, fe := range verrs {
			details[i] = fieldError{Field: trimNamespace(fe.Namespace()), Rule: fe.Tag(), Param: fe.Param()}
		}
		return echo.NewHTTPError(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "request validation failed",
			Code:    "validation_error",
			Details: details,
		})
	}
	return nil
}

// trimNamespace drops the leading struct name: "CreateEventRequest.tiers[0].name" -> "tiers[0].name".
func trimNamespace(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
