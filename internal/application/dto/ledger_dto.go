package dto

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/jhoicas/Kardex-api/internal/domain/entity"
)

// CellRefDTO referencia a una celda (bodega + reserva); el producto viaja aparte.
type CellRefDTO struct {
	WarehouseID string `json:"warehouse_id"`
	BucketID    string `json:"bucket_id"`
}

// ToEntity convierte la referencia a dominio (nil se preserva).
func (r *CellRefDTO) ToEntity() *entity.CellRef {
	if r == nil {
		return nil
	}
	return &entity.CellRef{WarehouseID: r.WarehouseID, BucketID: r.BucketID}
}

// CellRefFromEntity convierte una referencia de dominio (nil se preserva).
func CellRefFromEntity(r *entity.CellRef) *CellRefDTO {
	if r == nil {
		return nil
	}
	return &CellRefDTO{WarehouseID: r.WarehouseID, BucketID: r.BucketID}
}

// ApplyMovementRequest body para POST /api/ledger/movements.
// causation_id es el identificador de la línea del documento origen (línea de
// recepción, línea de traslado, línea de despacho); el mismo id reenviado
// produce replay, no doble conteo.
type ApplyMovementRequest struct {
	Type        string          `json:"type"` // RECEIPT | TRANSFER | ISSUE
	ProductCode string          `json:"product_code"`
	Quantity    decimal.Decimal `json:"quantity"`
	CausationID string          `json:"causation_id"`
	Source      *CellRefDTO     `json:"source,omitempty"`
	Destination *CellRefDTO     `json:"destination,omitempty"`
}

// ApplyMovementResponse resultado de aplicar (o reproducir) un movimiento.
type ApplyMovementResponse struct {
	MovementID string         `json:"movement_id"`
	Replayed   bool           `json:"replayed"`
	Cells      []StockCellDTO `json:"cells"`
}

// RebuildRequest body para POST /api/ledger/rebuild.
type RebuildRequest struct {
	WarehouseID string `json:"warehouse_id"`
	BucketID    string `json:"bucket_id"`
	ProductCode string `json:"product_code"`
}

// StockCellDTO fila de saldo en respuestas de consulta.
type StockCellDTO struct {
	WarehouseID      string          `json:"warehouse_id"`
	BucketID         string          `json:"bucket_id"`
	ProductCode      string          `json:"product_code"`
	QuantityOnHand   decimal.Decimal `json:"quantity_on_hand"`
	QuantityReserved decimal.Decimal `json:"quantity_reserved"`
	LastUpdated      time.Time       `json:"last_updated"`
}

// StockCellFromEntity convierte una celda de dominio.
func StockCellFromEntity(c *entity.StockCell) StockCellDTO {
	return StockCellDTO{
		WarehouseID:      c.WarehouseID,
		BucketID:         c.BucketID,
		ProductCode:      c.ProductCode,
		QuantityOnHand:   c.QuantityOnHand,
		QuantityReserved: c.QuantityReserved,
		LastUpdated:      c.LastUpdated,
	}
}

// StockCellsFromEntities convierte un listado de celdas.
func StockCellsFromEntities(cells []*entity.StockCell) []StockCellDTO {
	list := make([]StockCellDTO, 0, len(cells))
	for _, c := range cells {
		list = append(list, StockCellFromEntity(c))
	}
	return list
}

// MovementDTO entrada del log en respuestas de consulta.
type MovementDTO struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	ProductCode string          `json:"product_code"`
	Quantity    decimal.Decimal `json:"quantity"`
	Source      *CellRefDTO     `json:"source,omitempty"`
	Destination *CellRefDTO     `json:"destination,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
	CausationID string          `json:"causation_id"`
	CreatedBy   string          `json:"created_by,omitempty"`
}

// MovementFromEntity convierte un movimiento de dominio.
func MovementFromEntity(m *entity.MovementRecord) MovementDTO {
	return MovementDTO{
		ID:          m.ID,
		Type:        m.Type,
		ProductCode: m.ProductCode,
		Quantity:    m.Quantity,
		Source:      CellRefFromEntity(m.Source),
		Destination: CellRefFromEntity(m.Destination),
		OccurredAt:  m.OccurredAt,
		CausationID: m.CausationID,
		CreatedBy:   m.CreatedBy,
	}
}
