package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/jhoicas/Kardex-api/internal/domain"
	"github.com/jhoicas/Kardex-api/internal/domain/entity"
	"github.com/jhoicas/Kardex-api/internal/domain/repository"
)

// QueryService proyecciones de solo lectura sobre el kardex.
// Lee sus propias escrituras contra el mismo store; no promete snapshot
// consistente entre celdas distintas aplicadas concurrentemente.
type QueryService struct {
	stock     repository.StockQueryRepository
	movements repository.MovementLogRepository
}

// NewQueryService construye el servicio de consultas.
func NewQueryService(stock repository.StockQueryRepository, movements repository.MovementLogRepository) *QueryService {
	return &QueryService{stock: stock, movements: movements}
}

// CellBalance devuelve el saldo actual de la celda (en cero si no existe).
func (s *QueryService) CellBalance(key entity.CellKey) (*entity.StockCell, error) {
	if key.WarehouseID == "" || key.BucketID == "" || key.ProductCode == "" {
		return nil, domain.ErrInvalidInput
	}
	return s.stock.Get(key)
}

// StockByWarehouse lista saldos por bodega: (reserva, producto, disponible, reservado).
func (s *QueryService) StockByWarehouse(warehouseID string) ([]*entity.StockCell, error) {
	if warehouseID == "" {
		return nil, domain.ErrInvalidInput
	}
	return s.stock.ListByWarehouse(warehouseID)
}

// StockByBucket lista saldos por reserva: (bodega, producto, disponible, reservado).
func (s *QueryService) StockByBucket(bucketID string) ([]*entity.StockCell, error) {
	if bucketID == "" {
		return nil, domain.ErrInvalidInput
	}
	return s.stock.ListByBucket(bucketID)
}

// MovementsFor devuelve el historial de una celda ordenado por occurred_at con
// desempate por id; reanudable pasando un since posterior.
func (s *QueryService) MovementsFor(key entity.CellKey, since *time.Time, limit int) ([]*entity.MovementRecord, error) {
	if key.WarehouseID == "" || key.BucketID == "" || key.ProductCode == "" {
		return nil, domain.ErrInvalidInput
	}
	return s.movements.ListByCell(key, since, limit)
}

// LowStock detecta celdas con disponible igual o por debajo del umbral,
// mayor déficit primero. warehouseID vacío = todas las bodegas.
func (s *QueryService) LowStock(warehouseID string, threshold decimal.Decimal) ([]*entity.StockCell, error) {
	if threshold.LessThan(decimal.Zero) {
		return nil, domain.ErrInvalidInput
	}
	return s.stock.ListBelowThreshold(warehouseID, threshold)
}
