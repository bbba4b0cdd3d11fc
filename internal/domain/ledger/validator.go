package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/jhoicas/Kardex-api/internal/domain"
	"github.com/jhoicas/Kardex-api/internal/domain/entity"
)

// Reglas que puede violar un movimiento propuesto.
const (
	RuleQuantityNotPositive   = "QUANTITY_NOT_POSITIVE"
	RuleMissingProduct        = "MISSING_PRODUCT"
	RuleMissingCausation      = "MISSING_CAUSATION"
	RuleMissingSource         = "MISSING_SOURCE"
	RuleMissingDestination    = "MISSING_DESTINATION"
	RuleUnexpectedSource      = "UNEXPECTED_SOURCE"
	RuleUnexpectedDestination = "UNEXPECTED_DESTINATION"
	RuleSameCell              = "SAME_CELL"
	RuleUnknownType           = "UNKNOWN_TYPE"
)

// RuleViolation indica la regla concreta que rompió el movimiento.
// Envuelve domain.ErrInvalidMovement para que errors.Is funcione en los handlers.
type RuleViolation struct {
	Rule   string
	Detail string
}

func (e *RuleViolation) Error() string {
	return fmt.Sprintf("movimiento inválido [%s]: %s", e.Rule, e.Detail)
}

func (e *RuleViolation) Unwrap() error {
	return domain.ErrInvalidMovement
}

// Proposal movimiento propuesto, todavía sin aplicar.
type Proposal struct {
	Type        string
	ProductCode string
	Quantity    decimal.Decimal
	CausationID string
	Source      *entity.CellRef
	Destination *entity.CellRef
}

// Validate aplica las reglas de dominio sobre un movimiento propuesto.
// Es puro y sin efectos: la verificación de saldo suficiente se re-chequea
// atómicamente al aplicar (el saldo puede cambiar entre validación y apply).
func Validate(p Proposal) error {
	if p.ProductCode == "" {
		return &RuleViolation{Rule: RuleMissingProduct, Detail: "product_code requerido"}
	}
	if p.CausationID == "" {
		return &RuleViolation{Rule: RuleMissingCausation, Detail: "causation_id requerido"}
	}
	if !p.Quantity.GreaterThan(decimal.Zero) {
		return &RuleViolation{Rule: RuleQuantityNotPositive, Detail: "quantity debe ser > 0"}
	}

	// Las patas del movimiento se derivan de los endpoints presentes, así que un
	// endpoint que el tipo no admite debitaría o acreditaría una celda de más:
	// la ausencia se exige igual que la presencia.
	switch p.Type {
	case entity.MovementTypeRECEIPT:
		if !validRef(p.Destination) {
			return &RuleViolation{Rule: RuleMissingDestination, Detail: "RECEIPT requiere celda destino"}
		}
		if p.Source != nil {
			return &RuleViolation{Rule: RuleUnexpectedSource, Detail: "RECEIPT no admite celda origen"}
		}
	case entity.MovementTypeISSUE:
		if !validRef(p.Source) {
			return &RuleViolation{Rule: RuleMissingSource, Detail: "ISSUE requiere celda origen"}
		}
		if p.Destination != nil {
			return &RuleViolation{Rule: RuleUnexpectedDestination, Detail: "ISSUE no admite celda destino"}
		}
	case entity.MovementTypeTRANSFER:
		if !validRef(p.Source) {
			return &RuleViolation{Rule: RuleMissingSource, Detail: "TRANSFER requiere celda origen"}
		}
		if !validRef(p.Destination) {
			return &RuleViolation{Rule: RuleMissingDestination, Detail: "TRANSFER requiere celda destino"}
		}
		if *p.Source == *p.Destination {
			return &RuleViolation{Rule: RuleSameCell, Detail: "origen y destino no pueden ser la misma celda"}
		}
	default:
		return &RuleViolation{Rule: RuleUnknownType, Detail: fmt.Sprintf("tipo desconocido %q", p.Type)}
	}
	return nil
}

func validRef(r *entity.CellRef) bool {
	return r != nil && r.WarehouseID != "" && r.BucketID != ""
}
