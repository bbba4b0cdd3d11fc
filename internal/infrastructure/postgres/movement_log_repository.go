package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/Kardex-api/internal/domain"
	"github.com/jhoicas/Kardex-api/internal/domain/entity"
	"github.com/jhoicas/Kardex-api/internal/domain/repository"
)

var _ repository.MovementLogRepository = (*MovementLogRepo)(nil)

// MovementLogRepo implementación sobre PostgreSQL del log de movimientos (usable con pool o tx).
// Tabla: movement_log(id, type, product_code, quantity, source_warehouse_id,
// source_bucket_id, dest_warehouse_id, dest_bucket_id, occurred_at, causation_id,
// created_by), UNIQUE (causation_id, type). Solo INSERT y SELECT: nunca UPDATE ni DELETE.
type MovementLogRepo struct {
	q Querier
}

// NewMovementLogRepository construye el adaptador. Pasar pool o tx (Querier).
func NewMovementLogRepository(q Querier) *MovementLogRepo {
	return &MovementLogRepo{q: q}
}

// Append persiste un movimiento. La violación del UNIQUE (causation_id, type)
// se traduce a domain.ErrDuplicateMovement: replay del mismo evento upstream.
func (r *MovementLogRepo) Append(m *entity.MovementRecord) error {
	query := `
		INSERT INTO movement_log (id, type, product_code, quantity,
			source_warehouse_id, source_bucket_id, dest_warehouse_id, dest_bucket_id,
			occurred_at, causation_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	srcWh, srcBk := refColumns(m.Source)
	dstWh, dstBk := refColumns(m.Destination)
	createdBy := (*string)(nil)
	if m.CreatedBy != "" {
		createdBy = &m.CreatedBy
	}
	_, err := r.q.Exec(context.Background(), query,
		m.ID, m.Type, m.ProductCode, m.Quantity,
		srcWh, srcBk, dstWh, dstBk,
		m.OccurredAt, m.CausationID, createdBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateMovement
		}
		return fmt.Errorf("append movement: %w", err)
	}
	return nil
}

// GetByCausation devuelve el movimiento registrado para (causación, tipo), o nil.
func (r *MovementLogRepo) GetByCausation(causationID, movementType string) (*entity.MovementRecord, error) {
	query := selectMovement + ` WHERE causation_id = $1 AND type = $2`
	row := r.q.QueryRow(context.Background(), query, causationID, movementType)
	m, err := scanMovement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get movement by causation: %w", err)
	}
	return m, nil
}

// ListByCell lista los movimientos que tocan la celda (como origen o destino),
// ordenados por occurred_at con desempate por id.
func (r *MovementLogRepo) ListByCell(key entity.CellKey, since *time.Time, limit int) ([]*entity.MovementRecord, error) {
	query := selectMovement + `
		WHERE product_code = $1
		  AND ((source_warehouse_id = $2 AND source_bucket_id = $3)
		    OR (dest_warehouse_id = $2 AND dest_bucket_id = $3))`
	args := []any{key.ProductCode, key.WarehouseID, key.BucketID}
	pos := 4
	if since != nil {
		query += fmt.Sprintf(" AND occurred_at >= $%d", pos)
		args = append(args, *since)
		pos++
	}
	query += " ORDER BY occurred_at, id"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", pos)
		args = append(args, limit)
	}

	rows, err := r.q.Query(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()
	var list []*entity.MovementRecord
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

const selectMovement = `
		SELECT id, type, product_code, quantity,
			source_warehouse_id, source_bucket_id, dest_warehouse_id, dest_bucket_id,
			occurred_at, causation_id, created_by
		FROM movement_log`

func scanMovement(row pgx.Row) (*entity.MovementRecord, error) {
	var m entity.MovementRecord
	var srcWh, srcBk, dstWh, dstBk, createdBy *string
	if err := row.Scan(&m.ID, &m.Type, &m.ProductCode, &m.Quantity,
		&srcWh, &srcBk, &dstWh, &dstBk,
		&m.OccurredAt, &m.CausationID, &createdBy); err != nil {
		return nil, err
	}
	m.Source = refFromColumns(srcWh, srcBk)
	m.Destination = refFromColumns(dstWh, dstBk)
	if createdBy != nil {
		m.CreatedBy = *createdBy
	}
	return &m, nil
}

func refColumns(ref *entity.CellRef) (warehouseID, bucketID *string) {
	if ref == nil {
		return nil, nil
	}
	return &ref.WarehouseID, &ref.BucketID
}

func refFromColumns(warehouseID, bucketID *string) *entity.CellRef {
	if warehouseID == nil || bucketID == nil {
		return nil
	}
	return &entity.CellRef{WarehouseID: *warehouseID, BucketID: *bucketID}
}
