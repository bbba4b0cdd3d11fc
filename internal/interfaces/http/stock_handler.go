package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/jhoicas/Kardex-api/internal/application/dto"
	"github.com/jhoicas/Kardex-api/internal/application/ledger"
	"github.com/jhoicas/Kardex-api/internal/domain/entity"
)

// StockHandler maneja las consultas de solo lectura del kardex (protegido).
type StockHandler struct {
	query            *ledger.QueryService
	defaultThreshold decimal.Decimal
}

// NewStockHandler construye el handler. defaultThreshold aplica cuando
// /api/stock/low no recibe el query param threshold.
func NewStockHandler(query *ledger.QueryService, defaultThreshold decimal.Decimal) *StockHandler {
	return &StockHandler{query: query, defaultThreshold: defaultThreshold}
}

// ByWarehouse godoc
// @Summary      Stock por bodega
// @Tags         stock
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "ID de bodega"
// @Success      200  {object}  map[string]interface{}
// @Router       /api/stock/warehouses/{id} [get]
func (h *StockHandler) ByWarehouse(c *fiber.Ctx) error {
	cells, err := h.query.StockByWarehouse(c.Params("id"))
	if err != nil {
		return ledgerError(c, err)
	}
	return c.JSON(fiber.Map{"total": len(cells), "cells": dto.StockCellsFromEntities(cells)})
}

// ByBucket godoc
// @Summary      Stock por reserva a través de bodegas
// @Tags         stock
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "ID de reserva"
// @Success      200  {object}  map[string]interface{}
// @Router       /api/stock/buckets/{id} [get]
func (h *StockHandler) ByBucket(c *fiber.Ctx) error {
	cells, err := h.query.StockByBucket(c.Params("id"))
	if err != nil {
		return ledgerError(c, err)
	}
	return c.JSON(fiber.Map{"total": len(cells), "cells": dto.StockCellsFromEntities(cells)})
}

// Cell godoc
// @Summary      Saldo de una celda puntual
// @Description  Una celda sin filas registradas responde saldo en cero, no 404.
// @Tags         stock
// @Security     Bearer
// @Produce      json
// @Param        warehouse_id  query  string  true  "Bodega de la celda"
// @Param        bucket_id     query  string  true  "Reserva de la celda"
// @Param        product_code  query  string  true  "Producto de la celda"
// @Success      200  {object}  dto.StockCellDTO
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/stock/cells [get]
func (h *StockHandler) Cell(c *fiber.Ctx) error {
	key := entity.CellKey{
		WarehouseID: c.Query("warehouse_id"),
		BucketID:    c.Query("bucket_id"),
		ProductCode: c.Query("product_code"),
	}
	cell, err := h.query.CellBalance(key)
	if err != nil {
		return ledgerError(c, err)
	}
	return c.JSON(dto.StockCellFromEntity(cell))
}

// LowStock godoc
// @Summary      Celdas con stock bajo
// @Tags         stock
// @Security     Bearer
// @Produce      json
// @Param        warehouse_id  query  string  false  "Filtrar por bodega. Vacío = todas."
// @Param        threshold     query  string  false  "Umbral decimal; por defecto el configurado"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/stock/low [get]
func (h *StockHandler) LowStock(c *fiber.Ctx) error {
	threshold := h.defaultThreshold
	if raw := c.Query("threshold"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "threshold inválido"})
		}
		threshold = parsed
	}
	cells, err := h.query.LowStock(c.Query("warehouse_id"), threshold)
	if err != nil {
		return ledgerError(c, err)
	}
	return c.JSON(fiber.Map{"total": len(cells), "threshold": threshold, "cells": dto.StockCellsFromEntities(cells)})
}

// Movements godoc
// @Summary      Historial de movimientos de una celda
// @Description  Ordenado por occurred_at con desempate por id; reanudable con since.
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        warehouse_id  query  string  true   "Bodega de la celda"
// @Param        bucket_id     query  string  true   "Reserva de la celda"
// @Param        product_code  query  string  true   "Producto de la celda"
// @Param        since         query  string  false  "RFC3339; vacío = desde el principio"
// @Param        limit         query  int     false  "Máximo de filas (0 = sin límite)"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/ledger/movements [get]
func (h *StockHandler) Movements(c *fiber.Ctx) error {
	key := entity.CellKey{
		WarehouseID: c.Query("warehouse_id"),
		BucketID:    c.Query("bucket_id"),
		ProductCode: c.Query("product_code"),
	}
	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "since debe ser RFC3339"})
		}
		since = &t
	}
	limit := c.QueryInt("limit", 0)

	movements, err := h.query.MovementsFor(key, since, limit)
	if err != nil {
		return ledgerError(c, err)
	}
	list := make([]dto.MovementDTO, 0, len(movements))
	for _, m := range movements {
		list = append(list, dto.MovementFromEntity(m))
	}
	return c.JSON(fiber.Map{"total": len(list), "movements": list})
}
