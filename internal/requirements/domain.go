package requirements

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates the requirement lifecycle.
type Status string

const (
	// StatusPendiente means no quantity has been delivered yet.
	StatusPendiente Status = "PENDIENTE"
	// StatusParcial means some but not all quantity has been delivered.
	StatusParcial Status = "PARCIAL"
	// StatusCompletado means delivered covers solicited on every line.
	StatusCompletado Status = "COMPLETADO"
	// StatusAnulado is a terminal manual cancellation.
	StatusAnulado Status = "ANULADO"
	// StatusRechazado is a terminal manual rejection.
	StatusRechazado Status = "RECHAZADO"
)

// IsValid reports whether the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPendiente, StatusParcial, StatusCompletado, StatusAnulado, StatusRechazado:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are permitted.
func (s Status) IsTerminal() bool {
	return s == StatusAnulado || s == StatusRechazado
}

// StatusFromTotals derives the fulfillment status from line sums. Delivered
// beyond solicited still reads COMPLETADO, never a distinct overflow state.
func StatusFromTotals(solicited, delivered int64) Status {
	switch {
	case delivered <= 0:
		return StatusPendiente
	case delivered >= solicited:
		return StatusCompletado
	default:
		return StatusParcial
	}
}

// Requirement is a purchase order to a supplier for a mine.
type Requirement struct {
	ID                 int64      `json:"id_requerimiento"`
	Code               string     `json:"codigo"`
	SupplierID         int64      `json:"id_proveedor"`
	MineID             int64      `json:"id_mina"`
	SupervisorID       int64      `json:"id_supervisor"`
	IssueDate          time.Time  `json:"fecha_emision"`
	PromisedDate       *time.Time `json:"fecha_prometida,omitempty"`
	Notes              string     `json:"observaciones,omitempty"`
	Status             Status     `json:"estado"`
	CancellationReason string     `json:"motivo_anulacion,omitempty"`
	CreatedBy          string     `json:"created_by"`
	UpdatedBy          string     `json:"updated_by,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	Lines              []Line     `json:"detalles,omitempty"`
}

// Line is one product row within a requirement. QuantityDelivered accumulates
// from accepted trip lines and never decreases.
type Line struct {
	ID                int64           `json:"id_detalle_requerimiento"`
	RequirementID     int64           `json:"id_requerimiento"`
	ProductID         int64           `json:"id_producto"`
	QuantitySolicited int64           `json:"cantidad_solicitada"`
	SupplierPrice     decimal.Decimal `json:"precio_proveedor"`
	MinePrice         decimal.Decimal `json:"precio_mina"`
	QuantityDelivered int64           `json:"cantidad_entregada"`
	Note              string          `json:"observaciones,omitempty"`
}

// CreateInput describes a requirement to create.
type CreateInput struct {
	SupplierID   int64
	MineID       int64
	SupervisorID int64
	IssueDate    time.Time
	PromisedDate *time.Time
	Notes        string
	Lines        []LineInput
	Actor        string
}

// LineInput describes one line of a new requirement.
type LineInput struct {
	ProductID         int64
	QuantitySolicited int64
	SupplierPrice     decimal.Decimal
	MinePrice         decimal.Decimal
	Note              string
}

// UpdateHeaderInput carries the editable header fields. Nil means unchanged.
type UpdateHeaderInput struct {
	SupplierID   *int64
	MineID       *int64
	SupervisorID *int64
	IssueDate    *time.Time
	PromisedDate *time.Time
	Notes        *string
	Actor        string
}

// Progress reports fulfillment per line and overall, percent capped at 100.
type Progress struct {
	RequirementID  int64          `json:"id_requerimiento"`
	Status         Status         `json:"estado"`
	OverallPercent float64        `json:"porcentaje_total"`
	Lines          []LineProgress `json:"detalles"`
}

// LineProgress is the per-line share of Progress.
type LineProgress struct {
	ProductID int64   `json:"id_producto"`
	Solicited int64   `json:"cantidad_solicitada"`
	Delivered int64   `json:"cantidad_entregada"`
	Percent   float64 `json:"porcentaje"`
}

// ListFilter narrows requirement listings.
type ListFilter struct {
	Status     Status
	SupplierID int64
	MineID     int64
	Page       int
	PerPage    int
}

func clampPercent(solicited, delivered int64) float64 {
	if solicited <= 0 {
		return 0
	}
	pct := float64(delivered) / float64(solicited) * 100
	if pct > 100 {
		return 100
	}
	return pct
}
