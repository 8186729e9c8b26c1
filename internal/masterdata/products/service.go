package products

import (
	"context"

	mdshared "github.com/veta-logistics/veta/internal/masterdata/shared"
	"github.com/veta-logistics/veta/internal/shared"
)

// Service wraps product master data rules.
type Service struct {
	repo Repository
}

// NewService constructs Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns a filtered page of products.
func (s *Service) List(ctx context.Context, filters mdshared.ListFilters) ([]Product, int, error) {
	return s.repo.List(ctx, filters)
}

// Get loads one product.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.NewValidationError("id_producto", "invalid id")
	}
	return s.repo.Get(ctx, id)
}

// Create registers a product. Duplicate codes surface as a conflict.
func (s *Service) Create(ctx context.Context, in Input) (Product, error) {
	if in.ListPrice.IsNegative() {
		return Product{}, shared.NewValidationError("precio_lista", "price must not be negative")
	}
	return s.repo.Create(ctx, in)
}

// Update edits a product.
func (s *Service) Update(ctx context.Context, id int64, in Input) error {
	if id <= 0 {
		return shared.NewValidationError("id_producto", "invalid id")
	}
	if in.ListPrice.IsNegative() {
		return shared.NewValidationError("precio_lista", "price must not be negative")
	}
	return s.repo.Update(ctx, id, in)
}

// Delete soft-deletes a product.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.NewValidationError("id_producto", "invalid id")
	}
	return s.repo.Delete(ctx, id)
}
