package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the referenced record does not exist or is soft-deleted.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrConflict indicates a concurrent mutation was detected (duplicate key,
	// sequence collision). The whole operation may be retried from scratch.
	ErrConflict = errors.New("conflict")
)

// ValidationError reports business-invalid input that passed schema validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidStateError reports an operation forbidden by the entity's current status.
type InvalidStateError struct {
	Entity string
	ID     int64
	Status string
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %d: cannot %s in status %s", e.Entity, e.ID, e.Op, e.Status)
}

// InsufficientStockError reports a dispatch quantity exceeding current stock.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Available   int64
	Required    int64
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = fmt.Sprintf("product %d", e.ProductID)
	}
	return fmt.Sprintf("insufficient stock for %s: available %d, required %d", name, e.Available, e.Required)
}
