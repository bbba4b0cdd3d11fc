package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/Kardex-api/internal/domain/entity"
	"github.com/jhoicas/Kardex-api/internal/domain/repository"
)

var _ repository.RejectionLogRepository = (*RejectionLogRepo)(nil)

// RejectionLogRepo rastro de auditoría de movimientos rechazados (tabla rejected_movements).
// Separado de movement_log: los rechazos no cuentan para saldos ni para el rebuild.
type RejectionLogRepo struct {
	q Querier
}

// NewRejectionLogRepository construye el adaptador. Pasar pool o tx (Querier).
func NewRejectionLogRepository(q Querier) *RejectionLogRepo {
	return &RejectionLogRepo{q: q}
}

// Append persiste el rechazo.
func (r *RejectionLogRepo) Append(rej *entity.RejectedMovement) error {
	query := `
		INSERT INTO rejected_movements (id, type, product_code, quantity,
			source_warehouse_id, source_bucket_id, dest_warehouse_id, dest_bucket_id,
			causation_id, reason, rejected_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	srcWh, srcBk := refColumns(rej.Source)
	dstWh, dstBk := refColumns(rej.Destination)
	createdBy := (*string)(nil)
	if rej.CreatedBy != "" {
		createdBy = &rej.CreatedBy
	}
	_, err := r.q.Exec(context.Background(), query,
		rej.ID, rej.Type, rej.ProductCode, rej.Quantity,
		srcWh, srcBk, dstWh, dstBk,
		rej.CausationID, rej.Reason, rej.RejectedAt, createdBy,
	)
	if err != nil {
		return fmt.Errorf("append rejection: %w", err)
	}
	return nil
}
