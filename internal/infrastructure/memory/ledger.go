package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/jhoicas/Kardex-api/internal/application/ledger"
	"github.com/jhoicas/Kardex-api/internal/domain"
	"github.com/jhoicas/Kardex-api/internal/domain/entity"
	"github.com/jhoicas/Kardex-api/internal/domain/repository"
)

var _ ledger.TxRunner = (*Ledger)(nil)
var _ repository.StockQueryRepository = (*Ledger)(nil)
var _ repository.MovementLogRepository = (*Ledger)(nil)

type causationKey struct {
	causationID  string
	movementType string
}

// Ledger implementación en memoria del kardex completo: TxRunner, puertos de
// lectura y rastro de rechazos. Usada por los tests y por APP_ENV=test.
// Las transacciones trabajan sobre una copia y se publican solo en commit,
// así un error a mitad de movimiento no deja efecto parcial (misma semántica
// que la transacción PostgreSQL).
type Ledger struct {
	mu          sync.RWMutex
	cells       map[entity.CellKey]entity.StockCell
	movements   []entity.MovementRecord
	byCausation map[causationKey]int
	rejections  []entity.RejectedMovement
}

// NewLedger construye un kardex vacío.
func NewLedger() *Ledger {
	return &Ledger{
		cells:       make(map[entity.CellKey]entity.StockCell),
		byCausation: make(map[causationKey]int),
	}
}

// Run ejecuta fn sobre una copia del estado; publica los cambios solo si fn
// retorna nil. El mutex serializa transacciones completas: equivalente en
// memoria al row locking por celda.
func (l *Ledger) Run(ctx context.Context, fn func(
	cellRepo repository.StockCellRepository,
	movementRepo repository.MovementLogRepository,
) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &txState{
		cells:       make(map[entity.CellKey]entity.StockCell, len(l.cells)),
		movements:   append([]entity.MovementRecord(nil), l.movements...),
		byCausation: make(map[causationKey]int, len(l.byCausation)),
	}
	for k, v := range l.cells {
		tx.cells[k] = v
	}
	for k, v := range l.byCausation {
		tx.byCausation[k] = v
	}

	if err := fn(&txCellRepo{tx: tx}, &txMovementRepo{tx: tx}); err != nil {
		return err
	}

	l.cells = tx.cells
	l.movements = tx.movements
	l.byCausation = tx.byCausation
	return nil
}

// Get devuelve el saldo de la celda (en cero si no existe).
func (l *Ledger) Get(key entity.CellKey) (*entity.StockCell, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cellOrZero(l.cells, key), nil
}

// ListByWarehouse lista saldos de una bodega ordenados por reserva y producto.
func (l *Ledger) ListByWarehouse(warehouseID string) ([]*entity.StockCell, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var list []*entity.StockCell
	for _, c := range l.cells {
		if c.WarehouseID == warehouseID {
			cc := c
			list = append(list, &cc)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].BucketID != list[j].BucketID {
			return list[i].BucketID < list[j].BucketID
		}
		return list[i].ProductCode < list[j].ProductCode
	})
	return list, nil
}

// ListByBucket lista saldos de una reserva ordenados por bodega y producto.
func (l *Ledger) ListByBucket(bucketID string) ([]*entity.StockCell, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var list []*entity.StockCell
	for _, c := range l.cells {
		if c.BucketID == bucketID {
			cc := c
			list = append(list, &cc)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].WarehouseID != list[j].WarehouseID {
			return list[i].WarehouseID < list[j].WarehouseID
		}
		return list[i].ProductCode < list[j].ProductCode
	})
	return list, nil
}

// ListBelowThreshold celdas con disponible <= umbral, mayor déficit primero.
func (l *Ledger) ListBelowThreshold(warehouseID string, threshold decimal.Decimal) ([]*entity.StockCell, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var list []*entity.StockCell
	for _, c := range l.cells {
		if warehouseID != "" && c.WarehouseID != warehouseID {
			continue
		}
		if c.QuantityOnHand.LessThanOrEqual(threshold) {
			cc := c
			list = append(list, &cc)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].QuantityOnHand.Equal(list[j].QuantityOnHand) {
			return list[i].QuantityOnHand.LessThan(list[j].QuantityOnHand)
		}
		return list[i].Key().Less(list[j].Key())
	})
	return list, nil
}

// Append registra un movimiento fuera de transacción (uso directo en tests).
func (l *Ledger) Append(m *entity.MovementRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return appendMovement(&l.movements, l.byCausation, m)
}

// GetByCausation devuelve el movimiento para (causación, tipo), o nil.
func (l *Ledger) GetByCausation(causationID, movementType string) (*entity.MovementRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return movementByCausation(l.movements, l.byCausation, causationID, movementType), nil
}

// ListByCell historial de la celda ordenado por occurred_at con desempate por id.
func (l *Ledger) ListByCell(key entity.CellKey, since *time.Time, limit int) ([]*entity.MovementRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return listByCell(l.movements, key, since, limit), nil
}

// RejectionLog devuelve el puerto de rechazos respaldado por este kardex.
// Adaptador aparte porque Append ya está tomado por el log de movimientos.
func (l *Ledger) RejectionLog() repository.RejectionLogRepository {
	return &rejectionLog{l: l}
}

type rejectionLog struct {
	l *Ledger
}

var _ repository.RejectionLogRepository = (*rejectionLog)(nil)

func (r *rejectionLog) Append(rej *entity.RejectedMovement) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	r.l.rejections = append(r.l.rejections, *rej)
	return nil
}

// Rejections devuelve una copia del rastro de rechazos (inspección en tests).
func (l *Ledger) Rejections() []entity.RejectedMovement {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]entity.RejectedMovement(nil), l.rejections...)
}

// ──────────────────────────────────────────────────────────────────────────────
// Estado transaccional
// ──────────────────────────────────────────────────────────────────────────────

type txState struct {
	cells       map[entity.CellKey]entity.StockCell
	movements   []entity.MovementRecord
	byCausation map[causationKey]int
}

type txCellRepo struct {
	tx *txState
}

var _ repository.StockCellRepository = (*txCellRepo)(nil)

func (r *txCellRepo) Get(key entity.CellKey) (*entity.StockCell, error) {
	return cellOrZero(r.tx.cells, key), nil
}

func (r *txCellRepo) ApplyDelta(key entity.CellKey, deltaOnHand, deltaReserved decimal.Decimal) (*entity.StockCell, error) {
	current := cellOrZero(r.tx.cells, key)
	onHand := current.QuantityOnHand.Add(deltaOnHand)
	reserved := current.QuantityReserved.Add(deltaReserved)
	if onHand.LessThan(decimal.Zero) || reserved.LessThan(decimal.Zero) {
		return nil, domain.ErrNegativeBalance
	}
	cell := entity.StockCell{
		WarehouseID:      key.WarehouseID,
		BucketID:         key.BucketID,
		ProductCode:      key.ProductCode,
		QuantityOnHand:   onHand,
		QuantityReserved: reserved,
		LastUpdated:      time.Now().UTC(),
	}
	r.tx.cells[key] = cell
	return &cell, nil
}

func (r *txCellRepo) Upsert(cell *entity.StockCell) error {
	r.tx.cells[cell.Key()] = *cell
	return nil
}

type txMovementRepo struct {
	tx *txState
}

var _ repository.MovementLogRepository = (*txMovementRepo)(nil)

func (r *txMovementRepo) Append(m *entity.MovementRecord) error {
	return appendMovement(&r.tx.movements, r.tx.byCausation, m)
}

func (r *txMovementRepo) GetByCausation(causationID, movementType string) (*entity.MovementRecord, error) {
	return movementByCausation(r.tx.movements, r.tx.byCausation, causationID, movementType), nil
}

func (r *txMovementRepo) ListByCell(key entity.CellKey, since *time.Time, limit int) ([]*entity.MovementRecord, error) {
	return listByCell(r.tx.movements, key, since, limit), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers compartidos entre el estado publicado y el transaccional
// ──────────────────────────────────────────────────────────────────────────────

func cellOrZero(cells map[entity.CellKey]entity.StockCell, key entity.CellKey) *entity.StockCell {
	if c, ok := cells[key]; ok {
		cc := c
		return &cc
	}
	return entity.ZeroCell(key)
}

func appendMovement(movements *[]entity.MovementRecord, index map[causationKey]int, m *entity.MovementRecord) error {
	ck := causationKey{causationID: m.CausationID, movementType: m.Type}
	if _, ok := index[ck]; ok {
		return domain.ErrDuplicateMovement
	}
	index[ck] = len(*movements)
	*movements = append(*movements, *m)
	return nil
}

func movementByCausation(movements []entity.MovementRecord, index map[causationKey]int, causationID, movementType string) *entity.MovementRecord {
	i, ok := index[causationKey{causationID: causationID, movementType: movementType}]
	if !ok {
		return nil
	}
	m := movements[i]
	return &m
}

func listByCell(movements []entity.MovementRecord, key entity.CellKey, since *time.Time, limit int) []*entity.MovementRecord {
	var list []*entity.MovementRecord
	for i := range movements {
		m := movements[i]
		src, hasSrc := m.SourceKey()
		dst, hasDst := m.DestinationKey()
		if (!hasSrc || src != key) && (!hasDst || dst != key) {
			continue
		}
		if since != nil && m.OccurredAt.Before(*since) {
			continue
		}
		mm := m
		list = append(list, &mm)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].OccurredAt.Equal(list[j].OccurredAt) {
			return list[i].OccurredAt.Before(list[j].OccurredAt)
		}
		return list[i].ID < list[j].ID
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list
}
