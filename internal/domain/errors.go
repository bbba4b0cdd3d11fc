package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")

	// ErrInvalidMovement el movimiento propuesto viola una regla de dominio
	// (cantidad no positiva, endpoint faltante, origen igual a destino).
	ErrInvalidMovement = errors.New("movimiento inválido")

	// ErrNegativeBalance aplicar el movimiento dejaría el stock disponible por debajo de cero.
	ErrNegativeBalance = errors.New("stock insuficiente: el saldo quedaría negativo")

	// ErrDuplicateMovement ya existe un movimiento registrado con la misma causación y tipo.
	// Para el caller no es un error: señala un replay seguro (no-op).
	ErrDuplicateMovement = errors.New("movimiento ya registrado para esa causación")

	// ErrStoreUnavailable fallo transitorio del storage que persistió tras agotar los reintentos.
	ErrStoreUnavailable = errors.New("storage no disponible")
)
