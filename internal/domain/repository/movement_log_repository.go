package repository

import (
	"time"

	"github.com/jhoicas/Kardex-api/internal/domain/entity"
)

// MovementLogRepository define el puerto del log de movimientos (append-only).
// El log es la fuente de verdad; los saldos son proyección reconstruible.
type MovementLogRepository interface {
	// Append persiste un movimiento. Falla con domain.ErrDuplicateMovement si ya
	// existe un registro con la misma (causationID, type): guarda de idempotencia
	// para replays del mismo evento de negocio.
	Append(movement *entity.MovementRecord) error

	// GetByCausation devuelve el movimiento registrado para esa causación y tipo,
	// o nil si no existe.
	GetByCausation(causationID, movementType string) (*entity.MovementRecord, error)

	// ListByCell devuelve los movimientos que tocan la celda, ordenados por
	// occurred_at con desempate por id. since nil = desde el principio;
	// limit <= 0 = sin límite. Reanudable pasando un since posterior.
	ListByCell(key entity.CellKey, since *time.Time, limit int) ([]*entity.MovementRecord, error)
}
