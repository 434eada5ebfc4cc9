package middleware

import (
	"net/http"

	"github.com/Eursukkul/checkout-service/internal/dto"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ErrorHandler renders every error as {"error", "code", "details"}.
// Handlers put a dto.ErrorResponse in echo.HTTPError.Message when they
// have a code or details to report.
func ErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	logger = logger.Named("http")
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		resp := dto.ErrorResponse{Error: http.StatusText(code), Code: "internal_error"}

		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			switch m := he.Message.(type) {
			case dto.ErrorResponse:
				resp = m
			case string:
				resp = dto.ErrorResponse{Error: m}
			default:
				resp = dto.ErrorResponse{Error: http.StatusText(code)}
			}
		}

		if code >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Int("status", code),
				zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, resp)
	}
}
