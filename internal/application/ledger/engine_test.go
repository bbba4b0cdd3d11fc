package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appledger "github.com/jhoicas/Kardex-api/internal/application/ledger"
	"github.com/jhoicas/Kardex-api/internal/domain"
	"github.com/jhoicas/Kardex-api/internal/domain/entity"
	"github.com/jhoicas/Kardex-api/internal/domain/repository"
	"github.com/jhoicas/Kardex-api/internal/infrastructure/memory"
	"github.com/jhoicas/Kardex-api/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

var (
	cellA = entity.CellKey{WarehouseID: "WH1", BucketID: "BUCKET-A", ProductCode: "P001"}
	cellB = entity.CellKey{WarehouseID: "WH1", BucketID: "BUCKET-B", ProductCode: "P001"}
	refA  = &entity.CellRef{WarehouseID: "WH1", BucketID: "BUCKET-A"}
	refB  = &entity.CellRef{WarehouseID: "WH1", BucketID: "BUCKET-B"}
)

func newEngine(t *testing.T) (*appledger.Engine, *memory.Ledger) {
	t.Helper()
	mem := memory.NewLedger()
	log := logger.New(logger.Config{Env: "production", Level: "error"})
	eng := appledger.NewEngine(mem, mem.RejectionLog(), log, appledger.Config{
		RetryAttempts: 3,
		RetryBackoff:  time.Millisecond,
	})
	return eng, mem
}

func receipt(qty int64, causation string) appledger.MovementInput {
	return appledger.MovementInput{
		Type:        entity.MovementTypeRECEIPT,
		ProductCode: "P001",
		Quantity:    decimal.NewFromInt(qty),
		CausationID: causation,
		Destination: refA,
		UserID:      "bodeguero-1",
	}
}

func transfer(qty int64, causation string) appledger.MovementInput {
	return appledger.MovementInput{
		Type:        entity.MovementTypeTRANSFER,
		ProductCode: "P001",
		Quantity:    decimal.NewFromInt(qty),
		CausationID: causation,
		Source:      refA,
		Destination: refB,
		UserID:      "bodeguero-1",
	}
}

func issue(qty int64, causation string) appledger.MovementInput {
	return appledger.MovementInput{
		Type:        entity.MovementTypeISSUE,
		ProductCode: "P001",
		Quantity:    decimal.NewFromInt(qty),
		CausationID: causation,
		Source:      refA,
		UserID:      "bodeguero-1",
	}
}

func onHand(t *testing.T, mem *memory.Ledger, key entity.CellKey) decimal.Decimal {
	t.Helper()
	cell, err := mem.Get(key)
	require.NoError(t, err)
	return cell.QuantityOnHand
}

// ──────────────────────────────────────────────────────────────────────────────
// Escenarios de referencia (A-D)
// ──────────────────────────────────────────────────────────────────────────────

// Escenario A: recepción de 100 unidades en (WH1, BUCKET-A).
func TestApply_Receipt(t *testing.T) {
	eng, mem := newEngine(t)

	res, err := eng.Apply(context.Background(), receipt(100, "recepcion-1"))
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	require.NotNil(t, res.Movement)
	assert.NotEmpty(t, res.Movement.ID)

	cells, err := mem.ListByWarehouse("WH1")
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, "BUCKET-A", cells[0].BucketID)
	assert.Equal(t, "P001", cells[0].ProductCode)
	assert.True(t, cells[0].QuantityOnHand.Equal(decimal.NewFromInt(100)))
	assert.True(t, cells[0].QuantityReserved.IsZero())
}

// Escenario B: traslado de 40 unidades de BUCKET-A a BUCKET-B.
func TestApply_Transfer(t *testing.T) {
	eng, mem := newEngine(t)
	_, err := eng.Apply(context.Background(), receipt(100, "recepcion-1"))
	require.NoError(t, err)

	res, err := eng.Apply(context.Background(), transfer(40, "traslado-1"))
	require.NoError(t, err)
	require.Len(t, res.Cells, 2, "el resultado trae el estado de ambas celdas")

	assert.True(t, onHand(t, mem, cellA).Equal(decimal.NewFromInt(60)))
	assert.True(t, onHand(t, mem, cellB).Equal(decimal.NewFromInt(40)))
}

// Escenario C: traslado imposible (1000 > 60) rechazado sin tocar saldos.
func TestApply_TransferStockInsuficiente(t *testing.T) {
	eng, mem := newEngine(t)
	_, err := eng.Apply(context.Background(), receipt(100, "recepcion-1"))
	require.NoError(t, err)
	_, err = eng.Apply(context.Background(), transfer(40, "traslado-1"))
	require.NoError(t, err)

	_, err = eng.Apply(context.Background(), transfer(1000, "traslado-2"))
	require.ErrorIs(t, err, domain.ErrNegativeBalance)

	// Atomicidad: ni débito en origen ni crédito en destino
	assert.True(t, onHand(t, mem, cellA).Equal(decimal.NewFromInt(60)), "origen sin cambios")
	assert.True(t, onHand(t, mem, cellB).Equal(decimal.NewFromInt(40)), "destino sin cambios")

	// El rechazo quedó en el rastro de auditoría, no en el log comprometido
	rejections := mem.Rejections()
	require.Len(t, rejections, 1)
	assert.Equal(t, "traslado-2", rejections[0].CausationID)

	movs, err := mem.ListByCell(cellA, nil, 0)
	require.NoError(t, err)
	assert.Len(t, movs, 2, "el log solo tiene los movimientos comprometidos")
}

// Escenario D: la misma recepción enviada dos veces no doble-cuenta.
func TestApply_ReplayIdempotente(t *testing.T) {
	eng, mem := newEngine(t)

	primero, err := eng.Apply(context.Background(), receipt(100, "recepcion-1"))
	require.NoError(t, err)
	require.False(t, primero.Replayed)

	segundo, err := eng.Apply(context.Background(), receipt(100, "recepcion-1"))
	require.NoError(t, err, "un replay no es un error para el caller")
	assert.True(t, segundo.Replayed)
	assert.Equal(t, primero.Movement.ID, segundo.Movement.ID,
		"el replay devuelve el resultado registrado originalmente")

	assert.True(t, onHand(t, mem, cellA).Equal(decimal.NewFromInt(100)),
		"el saldo queda en 100, no en 200")
}

// ──────────────────────────────────────────────────────────────────────────────
// Issue y validación
// ──────────────────────────────────────────────────────────────────────────────

func TestApply_Issue(t *testing.T) {
	eng, mem := newEngine(t)
	_, err := eng.Apply(context.Background(), receipt(100, "recepcion-1"))
	require.NoError(t, err)

	_, err = eng.Apply(context.Background(), issue(30, "despacho-1"))
	require.NoError(t, err)
	assert.True(t, onHand(t, mem, cellA).Equal(decimal.NewFromInt(70)))

	_, err = eng.Apply(context.Background(), issue(71, "despacho-2"))
	assert.ErrorIs(t, err, domain.ErrNegativeBalance)
	assert.True(t, onHand(t, mem, cellA).Equal(decimal.NewFromInt(70)), "el rechazo no toca el saldo")
}

// Un RECEIPT con celda origen espuria debitaría el origen al derivar las patas;
// debe rechazarse antes de tocar saldos. Simétrico para ISSUE con destino.
func TestApply_EndpointEspurioRechazado(t *testing.T) {
	eng, mem := newEngine(t)
	_, err := eng.Apply(context.Background(), receipt(100, "recepcion-semilla"))
	require.NoError(t, err)

	conOrigen := receipt(40, "recepcion-rara")
	conOrigen.Source = refA
	conOrigen.Destination = refB
	_, err = eng.Apply(context.Background(), conOrigen)
	require.ErrorIs(t, err, domain.ErrInvalidMovement)
	assert.True(t, onHand(t, mem, cellA).Equal(decimal.NewFromInt(100)),
		"el origen espurio no debe debitarse")
	assert.True(t, onHand(t, mem, cellB).IsZero())

	conDestino := issue(10, "despacho-raro")
	conDestino.Destination = refB
	_, err = eng.Apply(context.Background(), conDestino)
	require.ErrorIs(t, err, domain.ErrInvalidMovement)
	assert.True(t, onHand(t, mem, cellA).Equal(decimal.NewFromInt(100)))
	assert.True(t, onHand(t, mem, cellB).IsZero(), "el destino espurio no debe acreditarse")

	movs, err := mem.ListByCell(cellA, nil, 0)
	require.NoError(t, err)
	assert.Len(t, movs, 1, "solo la recepción semilla llegó al log")
}

func TestApply_MovimientoInvalidoNoLlegaAlStorage(t *testing.T) {
	eng, mem := newEngine(t)

	casos := []appledger.MovementInput{
		{Type: entity.MovementTypeRECEIPT, ProductCode: "P001", Quantity: decimal.Zero, CausationID: "x", Destination: refA},
		{Type: entity.MovementTypeTRANSFER, ProductCode: "P001", Quantity: decimal.NewFromInt(5), CausationID: "y", Source: refA, Destination: refA},
		{Type: "AJUSTE", ProductCode: "P001", Quantity: decimal.NewFromInt(5), CausationID: "z", Source: refA, Destination: refB},
	}
	for _, in := range casos {
		_, err := eng.Apply(context.Background(), in)
		assert.ErrorIs(t, err, domain.ErrInvalidMovement)
	}

	movs, err := mem.ListByCell(cellA, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, movs, "nada rechazado en validación debe llegar al log")
	assert.Len(t, mem.Rejections(), len(casos), "cada rechazo deja rastro de auditoría")
}

// ──────────────────────────────────────────────────────────────────────────────
// Propiedades: conservación y no-negatividad bajo concurrencia
// ──────────────────────────────────────────────────────────────────────────────

func TestApply_ConservacionBajoTrasladosConcurrentes(t *testing.T) {
	eng, mem := newEngine(t)
	total := decimal.NewFromInt(1000)
	_, err := eng.Apply(context.Background(), receipt(1000, "recepcion-semilla"))
	require.NoError(t, err)

	const workers = 8
	const porWorker = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers*porWorker)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < porWorker; i++ {
				in := appledger.MovementInput{
					Type:        entity.MovementTypeTRANSFER,
					ProductCode: "P001",
					Quantity:    decimal.NewFromInt(3),
					CausationID: fmt.Sprintf("traslado-%d-%d", w, i),
					Source:      refA,
					Destination: refB,
				}
				// La mitad de los workers traslada en sentido contrario
				if w%2 == 1 {
					in.Source, in.Destination = refB, refA
				}
				if _, err := eng.Apply(context.Background(), in); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	// Los traslados B->A pueden rechazarse si B aún no tiene saldo; ningún
	// otro error es aceptable
	for err := range errs {
		assert.ErrorIs(t, err, domain.ErrNegativeBalance)
	}

	a := onHand(t, mem, cellA)
	b := onHand(t, mem, cellB)
	assert.True(t, a.Add(b).Equal(total),
		"los traslados conservan el total del producto: %s + %s != %s", a, b, total)
	assert.False(t, a.IsNegative())
	assert.False(t, b.IsNegative())
}

// ──────────────────────────────────────────────────────────────────────────────
// Rebuild: el log es la verdad, el saldo es cache
// ──────────────────────────────────────────────────────────────────────────────

func TestRebuildBalance_ReproduceElSaldoDesdeElLog(t *testing.T) {
	eng, mem := newEngine(t)
	ctx := context.Background()
	_, err := eng.Apply(ctx, receipt(100, "recepcion-1"))
	require.NoError(t, err)
	_, err = eng.Apply(ctx, transfer(40, "traslado-1"))
	require.NoError(t, err)
	_, err = eng.Apply(ctx, issue(10, "despacho-1"))
	require.NoError(t, err)

	// Corromper la proyección materializada por fuera del motor
	err = mem.Run(ctx, func(cells repository.StockCellRepository, _ repository.MovementLogRepository) error {
		return cells.Upsert(&entity.StockCell{
			WarehouseID: cellA.WarehouseID, BucketID: cellA.BucketID, ProductCode: cellA.ProductCode,
			QuantityOnHand: decimal.NewFromInt(9999), QuantityReserved: decimal.Zero,
		})
	})
	require.NoError(t, err)
	require.True(t, onHand(t, mem, cellA).Equal(decimal.NewFromInt(9999)))

	rebuilt, err := eng.RebuildBalance(ctx, cellA)
	require.NoError(t, err)
	assert.True(t, rebuilt.QuantityOnHand.Equal(decimal.NewFromInt(50)),
		"100 - 40 - 10 = 50 según el historial")
	assert.True(t, onHand(t, mem, cellA).Equal(decimal.NewFromInt(50)))
}

func TestRebuildBalance_CeldaSinHistorialQuedaEnCero(t *testing.T) {
	eng, _ := newEngine(t)
	rebuilt, err := eng.RebuildBalance(context.Background(), cellB)
	require.NoError(t, err)
	assert.True(t, rebuilt.QuantityOnHand.IsZero())
}

// ──────────────────────────────────────────────────────────────────────────────
// Hook de reservas
// ──────────────────────────────────────────────────────────────────────────────

func TestAdjustReservation(t *testing.T) {
	eng, mem := newEngine(t)
	ctx := context.Background()
	_, err := eng.Apply(ctx, receipt(100, "recepcion-1"))
	require.NoError(t, err)

	cell, err := eng.AdjustReservation(ctx, cellA, decimal.NewFromInt(30))
	require.NoError(t, err)
	assert.True(t, cell.QuantityReserved.Equal(decimal.NewFromInt(30)))
	assert.True(t, cell.QuantityOnHand.Equal(decimal.NewFromInt(100)),
		"apartar no toca el disponible")

	_, err = eng.AdjustReservation(ctx, cellA, decimal.NewFromInt(-31))
	assert.ErrorIs(t, err, domain.ErrNegativeBalance, "el reservado tampoco puede quedar negativo")

	movs, err := mem.ListByCell(cellA, nil, 0)
	require.NoError(t, err)
	assert.Len(t, movs, 1, "los ajustes de reserva no generan movimientos en el log")
}

// ──────────────────────────────────────────────────────────────────────────────
// Reintentos ante fallos transitorios del storage
// ──────────────────────────────────────────────────────────────────────────────

// flakyRunner falla las primeras n transacciones y luego delega.
type flakyRunner struct {
	inner    appledger.TxRunner
	failures int
	calls    int
}

func (f *flakyRunner) Run(ctx context.Context, fn func(
	repository.StockCellRepository,
	repository.MovementLogRepository,
) error) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("conexión caída")
	}
	return f.inner.Run(ctx, fn)
}

func TestApply_ReintentaFallosTransitorios(t *testing.T) {
	mem := memory.NewLedger()
	runner := &flakyRunner{inner: mem, failures: 2}
	log := logger.New(logger.Config{Env: "production", Level: "error"})
	eng := appledger.NewEngine(runner, nil, log, appledger.Config{
		RetryAttempts: 3,
		RetryBackoff:  time.Millisecond,
	})

	res, err := eng.Apply(context.Background(), receipt(100, "recepcion-1"))
	require.NoError(t, err, "dos fallos transitorios con tres intentos deben terminar bien")
	assert.False(t, res.Replayed)
	assert.Equal(t, 3, runner.calls)
	assert.True(t, onHand(t, mem, cellA).Equal(decimal.NewFromInt(100)))
}

func TestApply_AgotaReintentosYReportaStoreUnavailable(t *testing.T) {
	mem := memory.NewLedger()
	runner := &flakyRunner{inner: mem, failures: 100}
	log := logger.New(logger.Config{Env: "production", Level: "error"})
	eng := appledger.NewEngine(runner, nil, log, appledger.Config{
		RetryAttempts: 3,
		RetryBackoff:  time.Millisecond,
	})

	_, err := eng.Apply(context.Background(), receipt(100, "recepcion-1"))
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, 3, runner.calls, "los intentos están acotados")
}

func TestApply_RechazoDeDominioNoSeReintenta(t *testing.T) {
	mem := memory.NewLedger()
	contador := &countingRunner{inner: mem}
	log := logger.New(logger.Config{Env: "production", Level: "error"})
	eng := appledger.NewEngine(contador, nil, log, appledger.Config{
		RetryAttempts: 5,
		RetryBackoff:  time.Millisecond,
	})

	_, err := eng.Apply(context.Background(), issue(10, "despacho-1"))
	require.ErrorIs(t, err, domain.ErrNegativeBalance)
	assert.Equal(t, 1, contador.calls, "un rechazo de dominio es terminal, no se reintenta")
}

type countingRunner struct {
	inner appledger.TxRunner
	calls int
}

func (c *countingRunner) Run(ctx context.Context, fn func(
	repository.StockCellRepository,
	repository.MovementLogRepository,
) error) error {
	c.calls++
	return c.inner.Run(ctx, fn)
}

// scriptedRunner devuelve los errores programados, en orden, antes de delegar.
type scriptedRunner struct {
	inner appledger.TxRunner
	errs  []error
	calls int
}

func (s *scriptedRunner) Run(ctx context.Context, fn func(
	repository.StockCellRepository,
	repository.MovementLogRepository,
) error) error {
	s.calls++
	if s.calls <= len(s.errs) {
		return s.errs[s.calls-1]
	}
	return s.inner.Run(ctx, fn)
}

// Si al perder la carrera de causación la relectura falla por storage, el fallo
// debe entrar al flujo de reintentos y terminar en replay, no salir crudo.
func TestApply_CarreraDeCausacionConStorageInestable(t *testing.T) {
	mem := memory.NewLedger()
	_, err := eng0(mem).Apply(context.Background(), receipt(100, "recepcion-1"))
	require.NoError(t, err)

	runner := &scriptedRunner{
		inner: mem,
		errs: []error{
			domain.ErrDuplicateMovement,  // la otra solicitud ganó el insert
			errors.New("conexión caída"), // la relectura tropieza
		},
	}
	log := logger.New(logger.Config{Env: "production", Level: "error"})
	eng := appledger.NewEngine(runner, nil, log, appledger.Config{
		RetryAttempts: 3,
		RetryBackoff:  time.Millisecond,
	})

	res, err := eng.Apply(context.Background(), receipt(100, "recepcion-1"))
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, 3, runner.calls)
	assert.True(t, onHand(t, mem, cellA).Equal(decimal.NewFromInt(100)),
		"el saldo no se doble-contó en la recuperación")
}

func eng0(mem *memory.Ledger) *appledger.Engine {
	log := logger.New(logger.Config{Env: "production", Level: "error"})
	return appledger.NewEngine(mem, nil, log, appledger.Config{RetryAttempts: 1, RetryBackoff: time.Millisecond})
}

func TestApply_ContextoCanceladoAbandonaSinEfecto(t *testing.T) {
	eng, mem := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Apply(ctx, receipt(100, "recepcion-1"))
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, onHand(t, mem, cellA).IsZero(), "abandono sin efecto parcial")
}
