package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// writeError traduce la taxonomía de dominio a código HTTP. Los 5xx se registran y no exponen la causa.
func writeError(c *fiber.Ctx, log *logger.Logger, err error) error {
	resp := dto.ErrorResponse{Code: "INTERNAL", Message: "error interno", Retryable: domain.IsRetryable(err)}
	status := fiber.StatusInternalServerError

	var insufficient *domain.InsufficientStockError
	var invalid *domain.ValidationError
	switch {
	case errors.As(err, &invalid):
		status, resp.Code, resp.Message = fiber.StatusBadRequest, "VALIDATION", err.Error()
		resp.Details = map[string]any{"field": invalid.Field}
	case errors.Is(err, domain.ErrInvalidInput):
		status, resp.Code, resp.Message = fiber.StatusBadRequest, "VALIDATION", err.Error()
	case errors.As(err, &insufficient):
		status, resp.Code, resp.Message = fiber.StatusConflict, "INSUFFICIENT_STOCK", "stock insuficiente"
		resp.Details = map[string]any{
			"product_id": insufficient.ProductID,
			"available":  insufficient.Available,
			"requested":  insufficient.Requested,
		}
	case errors.Is(err, domain.ErrInsufficientStock):
		status, resp.Code, resp.Message = fiber.StatusConflict, "INSUFFICIENT_STOCK", "stock insuficiente"
	case errors.Is(err, domain.ErrConcurrencyConflict):
		status, resp.Code, resp.Message = fiber.StatusConflict, "CONCURRENCY_CONFLICT", "producto ocupado, reintente"
	case errors.Is(err, domain.ErrDuplicate), errors.Is(err, domain.ErrConflict):
		status, resp.Code, resp.Message = fiber.StatusConflict, "CONFLICT", err.Error()
	case errors.Is(err, domain.ErrNotFound):
		status, resp.Code, resp.Message = fiber.StatusNotFound, "NOT_FOUND", err.Error()
	case errors.Is(err, domain.ErrForbidden):
		status, resp.Code, resp.Message = fiber.StatusForbidden, "FORBIDDEN", "acceso denegado al recurso"
	case errors.Is(err, domain.ErrUnauthorized):
		status, resp.Code, resp.Message = fiber.StatusUnauthorized, "UNAUTHORIZED", "no autorizado"
	case errors.Is(err, domain.ErrPersistence):
		status, resp.Code, resp.Message = fiber.StatusServiceUnavailable, "PERSISTENCE", "almacenamiento no disponible, reintente"
	}

	if status >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("error procesando la petición")
	}
	if resp.Retryable {
		c.Set(fiber.HeaderRetryAfter, "1")
	}
	return c.Status(status).JSON(resp)
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
}
