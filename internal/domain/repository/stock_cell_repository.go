package repository

import (
	"github.com/shopspring/decimal"
	"github.com/jhoicas/Kardex-api/internal/domain/entity"
)

// StockCellRepository define el puerto de escritura para saldos por celda.
// Usado solo dentro de transacciones del motor de stock.
type StockCellRepository interface {
	// Get devuelve la celda; si no existe devuelve una celda en cero (nunca error por ausencia).
	Get(key entity.CellKey) (*entity.StockCell, error)

	// ApplyDelta suma deltas con signo al saldo disponible y al reservado de forma atómica
	// y devuelve el estado resultante. Falla con domain.ErrNegativeBalance si algún
	// saldo quedaría por debajo de cero.
	ApplyDelta(key entity.CellKey, deltaOnHand, deltaReserved decimal.Decimal) (*entity.StockCell, error)

	// Upsert escribe la celda completa. Usado por el rebuild de saldos.
	Upsert(cell *entity.StockCell) error
}

// StockQueryRepository define el puerto de lectura para proyecciones de stock.
type StockQueryRepository interface {
	Get(key entity.CellKey) (*entity.StockCell, error)
	ListByWarehouse(warehouseID string) ([]*entity.StockCell, error)
	ListByBucket(bucketID string) ([]*entity.StockCell, error)

	// ListBelowThreshold devuelve las celdas de la bodega con disponible <= umbral,
	// mayor déficit primero. warehouseID vacío = todas las bodegas.
	ListBelowThreshold(warehouseID string, threshold decimal.Decimal) ([]*entity.StockCell, error)
}
