package trips

import (
	"time"
)

// Outcome tags the delivery condition of one trip line. Only OK lines credit
// the requirement line and the stock ledger.
type Outcome string

const (
	OutcomeOK        Outcome = "OK"
	OutcomeRechazado Outcome = "RECHAZADO"
	OutcomeParcial   Outcome = "PARCIAL"
	OutcomeMuestra   Outcome = "MUESTRA"
	OutcomeDanado    Outcome = "DANADO"
)

// IsValid reports whether the outcome is a known value.
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeOK, OutcomeRechazado, OutcomeParcial, OutcomeMuestra, OutcomeDanado:
		return true
	default:
		return false
	}
}

// Trip is one physical delivery event against a requirement. TripNumber is
// sequential per requirement, assigned under the requirement row lock.
type Trip struct {
	ID            int64     `json:"id_viaje"`
	RequirementID int64     `json:"id_requerimiento"`
	TripNumber    int64     `json:"numero_viaje"`
	VehiclePlate  string    `json:"placa_vehiculo"`
	Driver        string    `json:"conductor"`
	IngressDate   time.Time `json:"fecha_ingreso"`
	Notes         string    `json:"observaciones,omitempty"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	Lines         []Line    `json:"detalles,omitempty"`
}

// Line is one requirement-line entry within a trip. All outcomes are recorded,
// not just accepted ones.
type Line struct {
	ID                int64   `json:"id_detalle_viaje"`
	TripID            int64   `json:"id_viaje"`
	RequirementLineID int64   `json:"id_detalle_requerimiento"`
	ProductID         int64   `json:"id_producto"`
	QuantityReceived  int64   `json:"cantidad_recibida"`
	Outcome           Outcome `json:"resultado"`
	Note              string  `json:"observaciones,omitempty"`
}

// RegisterInput describes a trip to register.
type RegisterInput struct {
	RequirementID int64
	VehiclePlate  string
	Driver        string
	IngressDate   time.Time
	Notes         string
	Lines         []LineInput
	Actor         string
}

// LineInput describes one received line.
type LineInput struct {
	RequirementLineID int64
	QuantityReceived  int64
	Outcome           Outcome
	Note              string
}
