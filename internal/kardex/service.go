package kardex

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/veta-logistics/veta/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CurrentStock(ctx context.Context, productID int64) (int64, error)
	History(ctx context.Context, filter HistoryFilter) ([]Movement, error)
	StockTotals(ctx context.Context) ([]StockTotal, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CachePort invalidates cached stock figures after a write.
type CachePort interface {
	Invalidate(ctx context.Context, productID int64) error
}

// Service owns the append-only stock ledger.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	cache CachePort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cache CachePort) *Service {
	return &Service{repo: repo, audit: audit, cache: cache}
}

// RecordMovement appends one ledger entry. Appending never fails for lack of
// stock; sufficiency is the caller's concern (the dispatch engine checks it
// inside its own transaction).
func (s *Service) RecordMovement(ctx context.Context, input RecordInput) (Movement, error) {
	if input.ProductID == 0 {
		return Movement{}, errors.New("kardex: product required")
	}
	signed, err := SignedQuantity(input.Kind, input.Quantity)
	if err != nil {
		return Movement{}, err
	}
	m := Movement{
		ProductID:         input.ProductID,
		Kind:              input.Kind,
		Quantity:          signed,
		DispatchID:        input.DispatchID,
		TripID:            input.TripID,
		RequirementLineID: input.RequirementLineID,
		RefID:             uuid.NewString(),
		Note:              input.Note,
		RegisteredBy:      actorName(input.Actor),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertMovement(ctx, m)
		if err != nil {
			return err
		}
		m.ID = id
		return nil
	})
	if err != nil {
		return Movement{}, err
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, input.ProductID)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   fmt.Sprintf("kardex:%s", input.Kind),
			Entity:   "movimiento_stock",
			EntityID: fmt.Sprintf("%d", m.ID),
			Meta: map[string]any{
				"id_producto": input.ProductID,
				"cantidad":    signed,
				"observacion": input.Note,
			},
		})
	}
	return m, nil
}

// CurrentStock returns the derived stock for a product.
func (s *Service) CurrentStock(ctx context.Context, productID int64) (int64, error) {
	if productID == 0 {
		return 0, errors.New("kardex: product required")
	}
	return s.repo.CurrentStock(ctx, productID)
}

// History lists ledger entries newest first.
func (s *Service) History(ctx context.Context, filter HistoryFilter) ([]Movement, error) {
	if filter.Kind != "" && !filter.Kind.IsValid() {
		return nil, ErrInvalidKind
	}
	return s.repo.History(ctx, filter)
}

// StockTotals lists derived stock per product.
func (s *Service) StockTotals(ctx context.Context) ([]StockTotal, error) {
	return s.repo.StockTotals(ctx)
}

func actorName(actor string) string {
	if actor == "" {
		return "system"
	}
	return actor
}
