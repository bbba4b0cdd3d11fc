package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/jhoicas/Kardex-api/internal/domain"
	"github.com/jhoicas/Kardex-api/internal/domain/entity"
	"github.com/jhoicas/Kardex-api/internal/domain/ledger"
	"github.com/jhoicas/Kardex-api/internal/domain/repository"
	"github.com/jhoicas/Kardex-api/pkg/logger"
)

// Config parámetros operativos del motor.
type Config struct {
	RetryAttempts int           // intentos totales ante fallos transitorios del storage
	RetryBackoff  time.Duration // backoff base; se duplica en cada intento
}

// Engine es el único escritor del kardex: convierte un movimiento solicitado en un
// cambio durable de estado, de forma transaccional. Ciclo por solicitud:
// Received -> Validated -> Applied | Rejected.
type Engine struct {
	txRunner   TxRunner
	rejections repository.RejectionLogRepository // opcional; nil = solo log estructurado
	log        *logger.Logger
	attempts   int
	backoff    time.Duration
}

// NewEngine construye el motor. rejections puede ser nil.
func NewEngine(txRunner TxRunner, rejections repository.RejectionLogRepository, log *logger.Logger, cfg Config) *Engine {
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	return &Engine{
		txRunner:   txRunner,
		rejections: rejections,
		log:        log,
		attempts:   attempts,
		backoff:    backoff,
	}
}

// MovementInput solicitud de movimiento. CausationID identifica la línea del
// documento de negocio (recepción, traslado, despacho) que lo origina; el mismo
// evento reenviado produce un replay seguro, no un doble conteo.
type MovementInput struct {
	Type        string
	ProductCode string
	Quantity    decimal.Decimal
	CausationID string
	Source      *entity.CellRef
	Destination *entity.CellRef
	UserID      string
}

// ApplyResult resultado de aplicar (o reproducir) un movimiento.
type ApplyResult struct {
	Movement *entity.MovementRecord
	Cells    []*entity.StockCell // estado resultante de las celdas tocadas
	Replayed bool                // true si la causación ya estaba registrada (no-op seguro)
}

// Apply valida y aplica el movimiento. Errores de dominio (ErrInvalidMovement,
// ErrNegativeBalance) son rechazos terminales y no se reintentan; fallos del
// storage se reintentan con backoff acotado y luego se reportan como
// ErrStoreUnavailable.
func (e *Engine) Apply(ctx context.Context, input MovementInput) (*ApplyResult, error) {
	prop := ledger.Proposal{
		Type:        input.Type,
		ProductCode: input.ProductCode,
		Quantity:    input.Quantity,
		CausationID: input.CausationID,
		Source:      input.Source,
		Destination: input.Destination,
	}
	if err := ledger.Validate(prop); err != nil {
		e.recordRejection(input, err.Error())
		return nil, err
	}

	res, err := e.applyWithRetry(ctx, input)
	if err != nil {
		if errors.Is(err, domain.ErrNegativeBalance) {
			e.recordRejection(input, err.Error())
		}
		return nil, err
	}

	evt := e.log.Info().
		Str("type", input.Type).
		Str("product_code", input.ProductCode).
		Str("causation_id", input.CausationID).
		Bool("replayed", res.Replayed)
	if res.Movement != nil {
		evt = evt.Str("movement_id", res.Movement.ID)
	}
	evt.Msg("movimiento aplicado")
	return res, nil
}

func (e *Engine) applyWithRetry(ctx context.Context, input MovementInput) (*ApplyResult, error) {
	var lastErr error
	for attempt := 0; attempt < e.attempts; attempt++ {
		if attempt > 0 {
			if err := e.wait(ctx, attempt); err != nil {
				return nil, err
			}
		}
		res, err := e.applyOnce(ctx, input)
		if errors.Is(err, domain.ErrDuplicateMovement) {
			// Carrera entre dos solicitudes con la misma causación: la otra ganó
			// el insert; releer recupera su resultado como replay. Si la relectura
			// falla por storage, cae al flujo normal de reintentos.
			res, err = e.applyOnce(ctx, input)
		}
		switch {
		case err == nil:
			return res, nil
		case errors.Is(err, domain.ErrNegativeBalance), errors.Is(err, domain.ErrInvalidMovement):
			// Rechazo de dominio: terminal, decide el workflow de negocio
			return nil, err
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		}
		lastErr = err
		e.log.Warn().Err(err).
			Int("attempt", attempt+1).
			Str("causation_id", input.CausationID).
			Msg("fallo transitorio del storage, reintentando")
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, lastErr)
}

// wait duerme el backoff exponencial del intento, respetando el contexto.
func (e *Engine) wait(ctx context.Context, attempt int) error {
	d := e.backoff << (attempt - 1)
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// applyOnce ejecuta la unidad atómica: chequeo de idempotencia, deltas por pata
// y append al log, todo dentro de una sola transacción. Si la transacción no
// llega a commit, ningún estado cambió.
func (e *Engine) applyOnce(ctx context.Context, input MovementInput) (*ApplyResult, error) {
	now := time.Now().UTC()
	var result *ApplyResult

	err := e.txRunner.Run(ctx, func(
		cellRepo repository.StockCellRepository,
		movementRepo repository.MovementLogRepository,
	) error {
		// Replay seguro: la misma causación y tipo devuelve el resultado previo
		prior, err := movementRepo.GetByCausation(input.CausationID, input.Type)
		if err != nil {
			return err
		}
		if prior != nil {
			cells, err := currentCells(cellRepo, prior)
			if err != nil {
				return err
			}
			result = &ApplyResult{Movement: prior, Cells: cells, Replayed: true}
			return nil
		}

		record := &entity.MovementRecord{
			ID:          uuid.New().String(),
			Type:        input.Type,
			ProductCode: input.ProductCode,
			Quantity:    input.Quantity,
			Source:      input.Source,
			Destination: input.Destination,
			OccurredAt:  now,
			CausationID: input.CausationID,
			CreatedBy:   input.UserID,
		}

		var cells []*entity.StockCell
		for _, l := range movementLegs(record) {
			cell, err := cellRepo.ApplyDelta(l.key, l.delta, decimal.Zero)
			if err != nil {
				return err
			}
			cells = append(cells, cell)
		}
		if err := movementRepo.Append(record); err != nil {
			return err
		}
		result = &ApplyResult{Movement: record, Cells: cells}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RebuildBalance recalcula el saldo de una celda reproduciendo su historial de
// movimientos y reescribe la proyección materializada. Camino de reparación y
// verificación, no de hot path. quantity_reserved no tiene eventos en el log,
// así que se conserva el valor actual.
func (e *Engine) RebuildBalance(ctx context.Context, key entity.CellKey) (*entity.StockCell, error) {
	var rebuilt *entity.StockCell
	err := e.txRunner.Run(ctx, func(
		cellRepo repository.StockCellRepository,
		movementRepo repository.MovementLogRepository,
	) error {
		current, err := cellRepo.Get(key)
		if err != nil {
			return err
		}
		movements, err := movementRepo.ListByCell(key, nil, 0)
		if err != nil {
			return err
		}
		onHand := decimal.Zero
		for _, m := range movements {
			onHand = onHand.Add(m.DeltaFor(key))
		}
		cell := &entity.StockCell{
			WarehouseID:      key.WarehouseID,
			BucketID:         key.BucketID,
			ProductCode:      key.ProductCode,
			QuantityOnHand:   onHand,
			QuantityReserved: current.QuantityReserved,
			LastUpdated:      time.Now().UTC(),
		}
		if err := cellRepo.Upsert(cell); err != nil {
			return err
		}
		rebuilt = cell
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info().
		Str("cell", key.String()).
		Str("quantity_on_hand", rebuilt.QuantityOnHand.String()).
		Msg("saldo reconstruido desde el log")
	return rebuilt, nil
}

// AdjustReservation ajusta quantity_reserved de una celda (apartado o liberación).
// Punto de extensión para el workflow que aparta sin despachar; no toca el
// disponible ni genera registro en el log de movimientos.
func (e *Engine) AdjustReservation(ctx context.Context, key entity.CellKey, delta decimal.Decimal) (*entity.StockCell, error) {
	var cell *entity.StockCell
	err := e.txRunner.Run(ctx, func(
		cellRepo repository.StockCellRepository,
		_ repository.MovementLogRepository,
	) error {
		c, err := cellRepo.ApplyDelta(key, decimal.Zero, delta)
		if err != nil {
			return err
		}
		cell = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cell, nil
}

type movementLeg struct {
	key   entity.CellKey
	delta decimal.Decimal
}

// movementLegs devuelve las patas del movimiento (celda, delta con signo),
// en orden estable de clave: así dos traslados opuestos concurrentes bloquean
// las filas en el mismo orden y no se interbloquean.
func movementLegs(m *entity.MovementRecord) []movementLeg {
	var legs []movementLeg
	if key, ok := m.SourceKey(); ok {
		legs = append(legs, movementLeg{key: key, delta: m.Quantity.Neg()})
	}
	if key, ok := m.DestinationKey(); ok {
		legs = append(legs, movementLeg{key: key, delta: m.Quantity})
	}
	sort.Slice(legs, func(i, j int) bool { return legs[i].key.Less(legs[j].key) })
	return legs
}

// currentCells lee el estado actual de las celdas que toca un movimiento.
func currentCells(cellRepo repository.StockCellRepository, m *entity.MovementRecord) ([]*entity.StockCell, error) {
	var cells []*entity.StockCell
	for _, l := range movementLegs(m) {
		cell, err := cellRepo.Get(l.key)
		if err != nil {
			return nil, err
		}
		cells = append(cells, cell)
	}
	return cells, nil
}

// recordRejection deja rastro del rechazo (auditoría separada del log comprometido).
func (e *Engine) recordRejection(input MovementInput, reason string) {
	e.log.Info().
		Str("type", input.Type).
		Str("product_code", input.ProductCode).
		Str("causation_id", input.CausationID).
		Str("reason", reason).
		Msg("movimiento rechazado")
	if e.rejections == nil {
		return
	}
	rejection := &entity.RejectedMovement{
		ID:          uuid.New().String(),
		Type:        input.Type,
		ProductCode: input.ProductCode,
		Quantity:    input.Quantity,
		Source:      input.Source,
		Destination: input.Destination,
		CausationID: input.CausationID,
		Reason:      reason,
		RejectedAt:  time.Now().UTC(),
		CreatedBy:   input.UserID,
	}
	if err := e.rejections.Append(rejection); err != nil {
		e.log.Warn().Err(err).
			Str("causation_id", input.CausationID).
			Msg("no se pudo registrar el rechazo en auditoría")
	}
}
