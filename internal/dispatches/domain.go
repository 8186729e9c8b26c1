package dispatches

import (
	"time"
)

// Status enumerates the dispatch lifecycle.
type Status string

const (
	// StatusPreparando is the initial, still editable state.
	StatusPreparando Status = "PREPARANDO"
	// StatusEnTransito means stock has been committed and the truck left.
	StatusEnTransito Status = "EN_TRANSITO"
	// StatusEntregado is the terminal success state.
	StatusEntregado Status = "ENTREGADO"
	// StatusAnulado is the terminal cancellation, reachable from any other state.
	StatusAnulado Status = "ANULADO"
)

// IsValid reports whether the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPreparando, StatusEnTransito, StatusEntregado, StatusAnulado:
		return true
	default:
		return false
	}
}

// minCancelReason is the shortest accepted cancellation reason.
const minCancelReason = 10

// Dispatch is an outbound shipment of stock to a mine.
type Dispatch struct {
	ID                 int64      `json:"id_despacho"`
	Code               string     `json:"codigo"`
	MineID             int64      `json:"id_mina"`
	SupervisorID       *int64     `json:"id_supervisor,omitempty"`
	TripID             *int64     `json:"id_viaje,omitempty"`
	Notes              string     `json:"observaciones,omitempty"`
	Status             Status     `json:"estado"`
	CancellationReason string     `json:"motivo_anulacion,omitempty"`
	DepartureAt        *time.Time `json:"fecha_salida,omitempty"`
	DeliveredAt        *time.Time `json:"fecha_entrega,omitempty"`
	CreatedBy          string     `json:"created_by"`
	UpdatedBy          string     `json:"updated_by,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	Lines              []Line     `json:"detalles,omitempty"`
}

// Line is one product row within a dispatch. Lines are only mutable while the
// dispatch is PREPARANDO and are always replaced wholesale.
type Line struct {
	ID         int64  `json:"id_detalle_despacho"`
	DispatchID int64  `json:"id_despacho"`
	ProductID  int64  `json:"id_producto"`
	UnitID     int64  `json:"id_medida"`
	Quantity   int64  `json:"cantidad"`
	Note       string `json:"observaciones,omitempty"`
}

// CreateInput describes a dispatch to create.
type CreateInput struct {
	MineID       int64
	SupervisorID *int64
	TripID       *int64
	Notes        string
	Lines        []LineInput
	Actor        string
}

// LineInput describes one dispatch line.
type LineInput struct {
	ProductID int64
	UnitID    int64
	Quantity  int64
	Note      string
}

// UpdateInput carries editable fields. Nil means unchanged; a non-nil Lines
// slice replaces all existing lines.
type UpdateInput struct {
	MineID       *int64
	SupervisorID *int64
	TripID       *int64
	Notes        *string
	Lines        *[]LineInput
	Actor        string
}

// ListFilter narrows dispatch listings.
type ListFilter struct {
	Status  Status
	MineID  int64
	Page    int
	PerPage int
}
