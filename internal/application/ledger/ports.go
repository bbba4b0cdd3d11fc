package ledger

import (
	"context"

	"github.com/jhoicas/Kardex-api/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción de BD, pasando repositorios atados a esa tx.
// Garantiza atomicidad para el motor de stock: o se aplican todas las patas de un
// movimiento y su registro en el log, o ninguna.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		cellRepo repository.StockCellRepository,
		movementRepo repository.MovementLogRepository,
	) error) error
}
