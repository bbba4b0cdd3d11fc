package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/jhoicas/Kardex-api/internal/domain"
	"github.com/jhoicas/Kardex-api/internal/domain/entity"
	"github.com/jhoicas/Kardex-api/internal/domain/repository"
)

var _ repository.StockCellRepository = (*StockCellRepo)(nil)
var _ repository.StockQueryRepository = (*StockCellRepo)(nil)

// StockCellRepo implementación sobre PostgreSQL de los puertos de celda (usable con pool o tx).
// Tabla: stock_cell(warehouse_id, bucket_id, product_code, quantity_on_hand,
// quantity_reserved, last_updated), PK sobre la tripleta, CHECK de no-negatividad.
type StockCellRepo struct {
	q Querier
}

// NewStockCellRepository construye el adaptador. Pasar pool o tx (Querier).
func NewStockCellRepository(q Querier) *StockCellRepo {
	return &StockCellRepo{q: q}
}

// Get obtiene el saldo de una celda; en cero si la fila no existe (representación sparse).
func (r *StockCellRepo) Get(key entity.CellKey) (*entity.StockCell, error) {
	query := `
		SELECT warehouse_id, bucket_id, product_code, quantity_on_hand, quantity_reserved, last_updated
		FROM stock_cell WHERE warehouse_id = $1 AND bucket_id = $2 AND product_code = $3`
	var c entity.StockCell
	err := r.q.QueryRow(context.Background(), query, key.WarehouseID, key.BucketID, key.ProductCode).Scan(
		&c.WarehouseID, &c.BucketID, &c.ProductCode, &c.QuantityOnHand, &c.QuantityReserved, &c.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entity.ZeroCell(key), nil
		}
		return nil, fmt.Errorf("get stock cell: %w", err)
	}
	return &c, nil
}

// ApplyDelta suma los deltas en un solo upsert y devuelve el estado resultante.
// El UPDATE toma el row lock, así que las escrituras a la misma celda quedan
// serializadas por el storage. El saldo negativo se detecta sobre el valor
// retornado (y lo respalda el CHECK de la tabla); dentro de una transacción el
// rollback posterior deja la fila intacta.
func (r *StockCellRepo) ApplyDelta(key entity.CellKey, deltaOnHand, deltaReserved decimal.Decimal) (*entity.StockCell, error) {
	query := `
		INSERT INTO stock_cell (warehouse_id, bucket_id, product_code, quantity_on_hand, quantity_reserved, last_updated)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (warehouse_id, bucket_id, product_code)
		DO UPDATE SET
			quantity_on_hand = stock_cell.quantity_on_hand + EXCLUDED.quantity_on_hand,
			quantity_reserved = stock_cell.quantity_reserved + EXCLUDED.quantity_reserved,
			last_updated = now()
		RETURNING warehouse_id, bucket_id, product_code, quantity_on_hand, quantity_reserved, last_updated`
	var c entity.StockCell
	err := r.q.QueryRow(context.Background(), query,
		key.WarehouseID, key.BucketID, key.ProductCode, deltaOnHand, deltaReserved,
	).Scan(&c.WarehouseID, &c.BucketID, &c.ProductCode, &c.QuantityOnHand, &c.QuantityReserved, &c.LastUpdated)
	if err != nil {
		if isCheckViolation(err) {
			return nil, domain.ErrNegativeBalance
		}
		return nil, fmt.Errorf("apply delta: %w", err)
	}
	if c.QuantityOnHand.LessThan(decimal.Zero) || c.QuantityReserved.LessThan(decimal.Zero) {
		return nil, domain.ErrNegativeBalance
	}
	return &c, nil
}

// Upsert escribe la celda completa (rebuild de saldos).
func (r *StockCellRepo) Upsert(cell *entity.StockCell) error {
	query := `
		INSERT INTO stock_cell (warehouse_id, bucket_id, product_code, quantity_on_hand, quantity_reserved, last_updated)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (warehouse_id, bucket_id, product_code)
		DO UPDATE SET
			quantity_on_hand = EXCLUDED.quantity_on_hand,
			quantity_reserved = EXCLUDED.quantity_reserved,
			last_updated = now()`
	_, err := r.q.Exec(context.Background(), query,
		cell.WarehouseID, cell.BucketID, cell.ProductCode, cell.QuantityOnHand, cell.QuantityReserved,
	)
	if err != nil {
		return fmt.Errorf("upsert stock cell: %w", err)
	}
	return nil
}

// ListByWarehouse lista los saldos de una bodega.
func (r *StockCellRepo) ListByWarehouse(warehouseID string) ([]*entity.StockCell, error) {
	query := `
		SELECT warehouse_id, bucket_id, product_code, quantity_on_hand, quantity_reserved, last_updated
		FROM stock_cell WHERE warehouse_id = $1
		ORDER BY bucket_id, product_code`
	return r.list(query, warehouseID)
}

// ListByBucket lista los saldos de una reserva a través de todas las bodegas.
func (r *StockCellRepo) ListByBucket(bucketID string) ([]*entity.StockCell, error) {
	query := `
		SELECT warehouse_id, bucket_id, product_code, quantity_on_hand, quantity_reserved, last_updated
		FROM stock_cell WHERE bucket_id = $1
		ORDER BY warehouse_id, product_code`
	return r.list(query, bucketID)
}

// ListBelowThreshold devuelve celdas con disponible <= umbral, mayor déficit primero.
func (r *StockCellRepo) ListBelowThreshold(warehouseID string, threshold decimal.Decimal) ([]*entity.StockCell, error) {
	query := `
		SELECT warehouse_id, bucket_id, product_code, quantity_on_hand, quantity_reserved, last_updated
		FROM stock_cell WHERE quantity_on_hand <= $1`
	args := []any{threshold}
	if warehouseID != "" {
		query += " AND warehouse_id = $2"
		args = append(args, warehouseID)
	}
	query += " ORDER BY quantity_on_hand ASC, warehouse_id, bucket_id, product_code"
	return r.list(query, args...)
}

func (r *StockCellRepo) list(query string, args ...any) ([]*entity.StockCell, error) {
	rows, err := r.q.Query(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stock cells: %w", err)
	}
	defer rows.Close()
	var list []*entity.StockCell
	for rows.Next() {
		var c entity.StockCell
		if err := rows.Scan(&c.WarehouseID, &c.BucketID, &c.ProductCode,
			&c.QuantityOnHand, &c.QuantityReserved, &c.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan stock cell: %w", err)
		}
		list = append(list, &c)
	}
	return list, rows.Err()
}
