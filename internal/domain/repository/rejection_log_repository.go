package repository

import "github.com/jhoicas/Kardex-api/internal/domain/entity"

// RejectionLogRepository define el puerto del rastro de movimientos rechazados.
// Best-effort: un fallo al registrar un rechazo no debe afectar la respuesta al caller.
type RejectionLogRepository interface {
	Append(rejection *entity.RejectedMovement) error
}
