package trips

import (
	"context"
	"fmt"
	"time"

	"github.com/veta-logistics/veta/internal/kardex"
	"github.com/veta-logistics/veta/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Trip, error)
	ListByRequirement(ctx context.Context, requirementID int64) ([]Trip, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CachePort invalidates cached stock figures after a write.
type CachePort interface {
	Invalidate(ctx context.Context, productID int64) error
}

// Service registers delivery trips against requirements.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	cache CachePort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cache CachePort) *Service {
	return &Service{repo: repo, audit: audit, cache: cache}
}

// RegisterTrip records one delivery in a single transaction: the requirement
// is locked, the trip number allocated under that lock, the trip and every
// line inserted, ENTRADA movements posted and delivered totals incremented for
// OK lines, and the requirement status recomputed. Any failure rolls the
// whole operation back.
func (s *Service) RegisterTrip(ctx context.Context, input RegisterInput) (Trip, error) {
	if input.RequirementID <= 0 {
		return Trip{}, shared.NewValidationError("id_requerimiento", "requirement is required")
	}
	if len(input.Lines) == 0 {
		return Trip{}, shared.NewValidationError("detalles", "at least one line is required")
	}
	for i, l := range input.Lines {
		if l.RequirementLineID <= 0 {
			return Trip{}, shared.NewValidationError(fmt.Sprintf("detalles[%d].id_detalle_requerimiento", i), "requirement line is required")
		}
		if l.QuantityReceived <= 0 {
			return Trip{}, shared.NewValidationError(fmt.Sprintf("detalles[%d].cantidad_recibida", i), "quantity must be positive")
		}
		if !l.Outcome.IsValid() {
			return Trip{}, shared.NewValidationError(fmt.Sprintf("detalles[%d].resultado", i), "unknown outcome")
		}
	}
	ingress := input.IngressDate
	if ingress.IsZero() {
		ingress = time.Now()
	}

	var (
		tripID   int64
		affected []int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetRequirementForUpdate(ctx, input.RequirementID)
		if err != nil {
			return err
		}
		if req.Status.IsTerminal() {
			return &shared.InvalidStateError{Entity: "requerimiento", ID: req.ID, Status: string(req.Status), Op: "registrar viaje"}
		}

		number, err := tx.NextTripNumber(ctx, req.ID)
		if err != nil {
			return fmt.Errorf("allocate trip number: %w", err)
		}
		tripID, err = tx.InsertTrip(ctx, Trip{
			RequirementID: req.ID,
			TripNumber:    number,
			VehiclePlate:  input.VehiclePlate,
			Driver:        input.Driver,
			IngressDate:   ingress,
			Notes:         input.Notes,
			CreatedBy:     input.Actor,
		})
		if err != nil {
			return fmt.Errorf("insert trip: %w", err)
		}

		for _, l := range input.Lines {
			reqLine, err := tx.RequirementLine(ctx, l.RequirementLineID)
			if err != nil {
				return err
			}
			if reqLine.RequirementID != req.ID {
				return shared.NewValidationError("detalles", fmt.Sprintf("line %d does not belong to requirement %d", l.RequirementLineID, req.ID))
			}
			if _, err := tx.InsertLine(ctx, Line{
				TripID:            tripID,
				RequirementLineID: l.RequirementLineID,
				QuantityReceived:  l.QuantityReceived,
				Outcome:           l.Outcome,
				Note:              l.Note,
			}); err != nil {
				return fmt.Errorf("insert trip line: %w", err)
			}
			// Non-OK outcomes are recorded for traceability but never touch
			// the ledger or the delivered totals.
			if l.Outcome != OutcomeOK {
				continue
			}
			refLine := l.RequirementLineID
			refTrip := tripID
			if _, err := tx.InsertMovement(ctx, kardex.Movement{
				ProductID:         reqLine.ProductID,
				Kind:              kardex.MovementEntrada,
				Quantity:          l.QuantityReceived,
				TripID:            &refTrip,
				RequirementLineID: &refLine,
				Note:              fmt.Sprintf("ingreso viaje %d requerimiento %s", number, req.Code),
				RegisteredBy:      input.Actor,
			}); err != nil {
				return fmt.Errorf("post entrada: %w", err)
			}
			if err := tx.AddDelivered(ctx, l.RequirementLineID, l.QuantityReceived); err != nil {
				return fmt.Errorf("increment delivered: %w", err)
			}
			affected = append(affected, reqLine.ProductID)
		}

		if _, err := tx.RecomputeStatus(ctx, req.ID, input.Actor); err != nil {
			return fmt.Errorf("recompute status: %w", err)
		}
		return nil
	})
	if err != nil {
		return Trip{}, err
	}

	if s.cache != nil {
		for _, productID := range affected {
			_ = s.cache.Invalidate(ctx, productID)
		}
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "viajes:registrar",
			Entity:   "viaje",
			EntityID: fmt.Sprintf("%d", tripID),
			Meta:     map[string]any{"id_requerimiento": input.RequirementID},
		})
	}
	return s.repo.Get(ctx, tripID)
}

// Get loads a trip with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Trip, error) {
	return s.repo.Get(ctx, id)
}

// ListByRequirement returns a requirement's trips ordered by trip number.
func (s *Service) ListByRequirement(ctx context.Context, requirementID int64) ([]Trip, error) {
	return s.repo.ListByRequirement(ctx, requirementID)
}
