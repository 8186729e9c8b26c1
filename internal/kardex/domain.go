package kardex

import (
	"errors"
	"time"
)

// MovementKind enumerates stock movement types in the kardex.
type MovementKind string

const (
	// MovementEntrada represents inbound stock from a delivery trip.
	MovementEntrada MovementKind = "ENTRADA"
	// MovementSalida represents outbound stock committed to a dispatch.
	MovementSalida MovementKind = "SALIDA"
	// MovementAjustePos is a positive correction (e.g. dispatch reversal).
	MovementAjustePos MovementKind = "AJUSTE_POS"
	// MovementAjusteNeg is a negative correction.
	MovementAjusteNeg MovementKind = "AJUSTE_NEG"
	// MovementDevolucion represents a return to stock.
	MovementDevolucion MovementKind = "DEVOLUCION"
	// MovementAjusteManual is a manual correction with caller-determined sign.
	MovementAjusteManual MovementKind = "AJUSTE_MANUAL"
)

// IsValid reports whether the kind is a known movement type.
func (k MovementKind) IsValid() bool {
	switch k {
	case MovementEntrada, MovementSalida, MovementAjustePos, MovementAjusteNeg, MovementDevolucion, MovementAjusteManual:
		return true
	default:
		return false
	}
}

// Sign returns the ledger contribution direction for the kind: +1 inbound,
// -1 outbound, 0 when the caller supplies the sign (AJUSTE_MANUAL).
func (k MovementKind) Sign() int {
	switch k {
	case MovementEntrada, MovementAjustePos, MovementDevolucion:
		return 1
	case MovementSalida, MovementAjusteNeg:
		return -1
	default:
		return 0
	}
}

// Movement is one immutable entry in the stock ledger. Quantity is the signed
// delta applied to the product's stock; corrections are compensating entries,
// never edits.
type Movement struct {
	ID                int64        `json:"id_movimiento"`
	ProductID         int64        `json:"id_producto"`
	Kind              MovementKind `json:"tipo"`
	Quantity          int64        `json:"cantidad"`
	DispatchID        *int64       `json:"id_despacho,omitempty"`
	TripID            *int64       `json:"id_viaje,omitempty"`
	RequirementLineID *int64       `json:"id_detalle_requerimiento,omitempty"`
	RefID             string       `json:"ref_id,omitempty"`
	Note              string       `json:"observacion,omitempty"`
	RegisteredBy      string       `json:"usuario_registro"`
	CreatedAt         time.Time    `json:"fecha_registro"`
}

// RecordInput describes a movement to append. Quantity is a positive magnitude
// for directional kinds; for AJUSTE_MANUAL the caller supplies the sign.
type RecordInput struct {
	ProductID         int64
	Kind              MovementKind
	Quantity          int64
	DispatchID        *int64
	TripID            *int64
	RequirementLineID *int64
	Note              string
	Actor             string
}

// HistoryFilter narrows ledger queries. Zero values mean "no filter".
type HistoryFilter struct {
	ProductID int64
	Kind      MovementKind
	From      time.Time
	To        time.Time
	Limit     int
}

var (
	// ErrInvalidKind indicates an unknown movement kind.
	ErrInvalidKind = errors.New("kardex: invalid movement kind")
	// ErrZeroQuantity indicates a movement with no stock effect.
	ErrZeroQuantity = errors.New("kardex: quantity must be non zero")
	// ErrNegativeMagnitude indicates a directional kind with a non-positive magnitude.
	ErrNegativeMagnitude = errors.New("kardex: quantity must be positive for this kind")
)

// SignedQuantity converts a caller quantity into the signed ledger delta for
// the kind. Directional kinds require a positive magnitude; AJUSTE_MANUAL
// passes the caller's sign through and only rejects zero.
func SignedQuantity(kind MovementKind, quantity int64) (int64, error) {
	if !kind.IsValid() {
		return 0, ErrInvalidKind
	}
	if kind == MovementAjusteManual {
		if quantity == 0 {
			return 0, ErrZeroQuantity
		}
		return quantity, nil
	}
	if quantity <= 0 {
		return 0, ErrNegativeMagnitude
	}
	return int64(kind.Sign()) * quantity, nil
}
