package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de movimiento del kardex.
const (
	MovementTypeRECEIPT  = "RECEIPT"  // entrada de material a una bodega
	MovementTypeTRANSFER = "TRANSFER" // traslado entre celdas (bodega/reserva)
	MovementTypeISSUE    = "ISSUE"    // salida de material del sistema
)

// CellRef referencia a una celda sin el producto (el producto va en el movimiento).
type CellRef struct {
	WarehouseID string
	BucketID    string
}

// KeyFor devuelve la clave de celda completa para un producto.
func (r CellRef) KeyFor(productCode string) CellKey {
	return CellKey{WarehouseID: r.WarehouseID, BucketID: r.BucketID, ProductCode: productCode}
}

// MovementRecord entrada inmutable del log de movimientos (append-only).
// Source es nil para RECEIPT; Destination es nil para ISSUE; ambos presentes en TRANSFER.
// Quantity siempre es positiva; el signo lo aporta el rol de la celda (origen o destino).
type MovementRecord struct {
	ID          string
	Type        string
	ProductCode string
	Quantity    decimal.Decimal
	Source      *CellRef
	Destination *CellRef
	OccurredAt  time.Time
	CausationID string // identificador de la línea de documento que originó el movimiento
	CreatedBy   string
}

// SourceKey devuelve la clave de la celda origen, si el movimiento tiene una.
func (m *MovementRecord) SourceKey() (CellKey, bool) {
	if m.Source == nil {
		return CellKey{}, false
	}
	return m.Source.KeyFor(m.ProductCode), true
}

// DestinationKey devuelve la clave de la celda destino, si el movimiento tiene una.
func (m *MovementRecord) DestinationKey() (CellKey, bool) {
	if m.Destination == nil {
		return CellKey{}, false
	}
	return m.Destination.KeyFor(m.ProductCode), true
}

// DeltaFor devuelve el delta con signo que este movimiento aporta al saldo de la celda.
// Base del rebuild: sumar DeltaFor sobre el historial reproduce quantity_on_hand.
func (m *MovementRecord) DeltaFor(key CellKey) decimal.Decimal {
	delta := decimal.Zero
	if src, ok := m.SourceKey(); ok && src == key {
		delta = delta.Sub(m.Quantity)
	}
	if dst, ok := m.DestinationKey(); ok && dst == key {
		delta = delta.Add(m.Quantity)
	}
	return delta
}

// RejectedMovement rastro de auditoría de un movimiento rechazado.
// Separado del log comprometido: los rechazos no afectan saldos ni participan del rebuild.
type RejectedMovement struct {
	ID          string
	Type        string
	ProductCode string
	Quantity    decimal.Decimal
	Source      *CellRef
	Destination *CellRef
	CausationID string
	Reason      string
	RejectedAt  time.Time
	CreatedBy   string
}
