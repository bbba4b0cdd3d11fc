package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/Kardex-api/internal/application/dto"
	"github.com/jhoicas/Kardex-api/internal/application/ledger"
	"github.com/jhoicas/Kardex-api/internal/domain"
	"github.com/jhoicas/Kardex-api/internal/domain/entity"
)

// LedgerHandler maneja las peticiones HTTP de escritura del kardex (protegido).
type LedgerHandler struct {
	engine *ledger.Engine
}

// NewLedgerHandler construye el handler.
func NewLedgerHandler(engine *ledger.Engine) *LedgerHandler {
	return &LedgerHandler{engine: engine}
}

// ApplyMovement godoc
// @Summary      Aplicar movimiento de kardex
// @Description  Aplica RECEIPT, TRANSFER o ISSUE de forma atómica e idempotente
//
//	por causation_id. Un reenvío de la misma causación responde 200 con
//	replayed=true y el resultado original.
//
// @Tags         ledger
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.ApplyMovementRequest  true  "type, product_code, quantity, causation_id, source/destination según tipo"
// @Success      201   {object}  dto.ApplyMovementResponse
// @Success      200   {object}  dto.ApplyMovementResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      503   {object}  dto.ErrorResponse
// @Router       /api/ledger/movements [post]
func (h *LedgerHandler) ApplyMovement(c *fiber.Ctx) error {
	userID := GetUserID(c)
	var in dto.ApplyMovementRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	input := ledger.MovementInput{
		Type:        in.Type,
		ProductCode: in.ProductCode,
		Quantity:    in.Quantity,
		CausationID: in.CausationID,
		Source:      in.Source.ToEntity(),
		Destination: in.Destination.ToEntity(),
		UserID:      userID,
	}
	res, err := h.engine.Apply(c.Context(), input)
	if err != nil {
		return ledgerError(c, err)
	}
	status := fiber.StatusCreated
	if res.Replayed {
		// Replay seguro: el movimiento ya estaba registrado, no se volvió a contar
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(dto.ApplyMovementResponse{
		MovementID: res.Movement.ID,
		Replayed:   res.Replayed,
		Cells:      dto.StockCellsFromEntities(res.Cells),
	})
}

// RebuildBalance godoc
// @Summary      Reconstruir saldo de una celda desde el log
// @Tags         ledger
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.RebuildRequest  true  "warehouse_id, bucket_id, product_code"
// @Success      200   {object}  dto.StockCellDTO
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      503   {object}  dto.ErrorResponse
// @Router       /api/ledger/rebuild [post]
func (h *LedgerHandler) RebuildBalance(c *fiber.Ctx) error {
	var in dto.RebuildRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if in.WarehouseID == "" || in.BucketID == "" || in.ProductCode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "warehouse_id, bucket_id y product_code son requeridos"})
	}
	key := entity.CellKey{WarehouseID: in.WarehouseID, BucketID: in.BucketID, ProductCode: in.ProductCode}
	cell, err := h.engine.RebuildBalance(c.Context(), key)
	if err != nil {
		return ledgerError(c, err)
	}
	return c.JSON(dto.StockCellFromEntity(cell))
}

// ledgerError mapea errores del motor a respuestas HTTP con mensaje accionable.
func ledgerError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidMovement):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_MOVEMENT", Message: err.Error()})
	case errors.Is(err, domain.ErrNegativeBalance):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "INSUFFICIENT_STOCK", Message: "stock insuficiente en la celda origen"})
	case errors.Is(err, domain.ErrStoreUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Code: "STORE_UNAVAILABLE", Message: "storage no disponible, reintente más tarde"})
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "datos inválidos"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}
