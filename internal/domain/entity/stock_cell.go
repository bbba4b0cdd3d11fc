package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CellKey identifica la unidad direccionable de inventario: bodega + reserva + producto.
// La tupla es única en storage.
type CellKey struct {
	WarehouseID string
	BucketID    string
	ProductCode string
}

// String devuelve la clave en formato bodega/reserva/producto (logs y mapas).
func (k CellKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.WarehouseID, k.BucketID, k.ProductCode)
}

// Less define un orden total estable entre claves. Las celdas se bloquean
// siempre en este orden dentro de una transacción para que dos traslados
// opuestos no se interbloqueen.
func (k CellKey) Less(o CellKey) bool {
	if k.WarehouseID != o.WarehouseID {
		return k.WarehouseID < o.WarehouseID
	}
	if k.BucketID != o.BucketID {
		return k.BucketID < o.BucketID
	}
	return k.ProductCode < o.ProductCode
}

// StockCell representa el saldo actual de un producto en una celda (bodega, reserva).
// Es una proyección materializada del log de movimientos: el log es la verdad,
// la celda es cache reconstruible.
type StockCell struct {
	WarehouseID      string
	BucketID         string
	ProductCode      string
	QuantityOnHand   decimal.Decimal
	QuantityReserved decimal.Decimal
	LastUpdated      time.Time
}

// Key devuelve la clave de la celda.
func (c *StockCell) Key() CellKey {
	return CellKey{WarehouseID: c.WarehouseID, BucketID: c.BucketID, ProductCode: c.ProductCode}
}

// ZeroCell devuelve una celda en cero para la clave. Una celda ausente en storage
// y una celda presente con ceros deben ser indistinguibles para quien consulta.
func ZeroCell(key CellKey) *StockCell {
	return &StockCell{
		WarehouseID:      key.WarehouseID,
		BucketID:         key.BucketID,
		ProductCode:      key.ProductCode,
		QuantityOnHand:   decimal.Zero,
		QuantityReserved: decimal.Zero,
	}
}
