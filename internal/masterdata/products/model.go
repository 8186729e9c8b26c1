package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a supply item tracked in the stock ledger.
type Product struct {
	ID             int64           `json:"id_producto"`
	Code           string          `json:"codigo"`
	Name           string          `json:"nombre"`
	Classification string          `json:"clasificacion,omitempty"`
	UnitID         int64           `json:"id_medida"`
	ListPrice      decimal.Decimal `json:"precio_lista"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Input carries the writable product fields.
type Input struct {
	Code           string          `json:"codigo" validate:"required,max=40"`
	Name           string          `json:"nombre" validate:"required,max=200"`
	Classification string          `json:"clasificacion" validate:"max=80"`
	UnitID         int64           `json:"id_medida" validate:"required,gt=0"`
	ListPrice      decimal.Decimal `json:"precio_lista"`
}
