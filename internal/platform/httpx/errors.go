// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/veta-logistics/veta/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var (
		validationErr *shared.ValidationError
		stateErr      *shared.InvalidStateError
		stockErr      *shared.InsufficientStockError
	)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.As(err, &stockErr):
		JSON(w, http.StatusUnprocessableEntity, ProblemDetail{
			Title:  "Insufficient Stock",
			Status: http.StatusUnprocessableEntity,
			Detail: stockErr.Error(),
			Extra: map[string]any{
				"product_id": stockErr.ProductID,
				"available":  stockErr.Available,
				"required":   stockErr.Required,
			},
		})
	case errors.As(err, &stateErr):
		Problem(w, http.StatusConflict, "Invalid State", stateErr.Error())
	case errors.As(err, &validationErr):
		Problem(w, http.StatusBadRequest, "Validation Failed", validationErr.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
