package dispatches

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/veta-logistics/veta/internal/kardex"
	"github.com/veta-logistics/veta/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Dispatch, error)
	List(ctx context.Context, filter ListFilter) ([]Dispatch, int, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CachePort invalidates cached stock figures after a write.
type CachePort interface {
	Invalidate(ctx context.Context, productID int64) error
}

// Service owns the dispatch lifecycle and its stock commitments.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	cache CachePort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cache CachePort) *Service {
	return &Service{repo: repo, audit: audit, cache: cache}
}

// Create registers a dispatch in PREPARANDO. No stock is touched until the
// commit to transit.
func (s *Service) Create(ctx context.Context, input CreateInput) (Dispatch, error) {
	if input.MineID <= 0 {
		return Dispatch{}, shared.NewValidationError("id_mina", "mine is required")
	}
	if err := validateLines(input.Lines); err != nil {
		return Dispatch{}, err
	}

	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		year := time.Now().Year()
		seq, err := tx.NextSequence(ctx, fmt.Sprintf("DSP-%d", year))
		if err != nil {
			return fmt.Errorf("allocate code: %w", err)
		}
		id, err = tx.InsertDispatch(ctx, Dispatch{
			Code:         fmt.Sprintf("DSP-%d-%04d", year, seq),
			MineID:       input.MineID,
			SupervisorID: input.SupervisorID,
			TripID:       input.TripID,
			Notes:        input.Notes,
			Status:       StatusPreparando,
			CreatedBy:    input.Actor,
		})
		if err != nil {
			return fmt.Errorf("insert dispatch: %w", err)
		}
		return insertLines(ctx, tx, id, input.Lines)
	})
	if err != nil {
		return Dispatch{}, err
	}
	s.recordAudit(ctx, "despachos:crear", id, nil)
	return s.repo.Get(ctx, id)
}

// Update edits a PREPARANDO dispatch. A supplied line set replaces the
// existing lines wholesale.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Dispatch, error) {
	if input.Lines != nil {
		if err := validateLines(*input.Lines); err != nil {
			return Dispatch{}, err
		}
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if existing.Status != StatusPreparando {
			return &shared.InvalidStateError{Entity: "despacho", ID: id, Status: string(existing.Status), Op: "editar"}
		}
		updates := map[string]any{}
		if input.MineID != nil {
			updates["id_mina"] = *input.MineID
		}
		if input.SupervisorID != nil {
			updates["id_supervisor"] = *input.SupervisorID
		}
		if input.TripID != nil {
			updates["id_viaje"] = *input.TripID
		}
		if input.Notes != nil {
			updates["observaciones"] = *input.Notes
		}
		if len(updates) > 0 {
			updates["updated_by"] = input.Actor
			if err := tx.UpdateHeader(ctx, id, updates); err != nil {
				return fmt.Errorf("update header: %w", err)
			}
		}
		if input.Lines != nil {
			if err := tx.DeleteLines(ctx, id); err != nil {
				return fmt.Errorf("delete lines: %w", err)
			}
			if err := insertLines(ctx, tx, id, *input.Lines); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Dispatch{}, err
	}
	s.recordAudit(ctx, "despachos:editar", id, nil)
	return s.repo.Get(ctx, id)
}

// Delete soft-deletes a PREPARANDO dispatch.
func (s *Service) Delete(ctx context.Context, id int64, actor string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if existing.Status != StatusPreparando {
			return &shared.InvalidStateError{Entity: "despacho", ID: id, Status: string(existing.Status), Op: "eliminar"}
		}
		return tx.SoftDelete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "despachos:eliminar", id, map[string]any{"usuario": actor})
	return nil
}

// CommitToTransit checks every line against the ledger and, only when all of
// them fit, posts the SALIDA movements and moves the dispatch to EN_TRANSITO.
// Products are locked in id order before any read so two commits over the same
// products serialize instead of deadlocking, and the check can never go stale
// before the deduction lands.
func (s *Service) CommitToTransit(ctx context.Context, id int64, departureAt *time.Time, actor string) (Dispatch, error) {
	var affected []int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if existing.Status != StatusPreparando {
			return &shared.InvalidStateError{Entity: "despacho", ID: id, Status: string(existing.Status), Op: "despachar"}
		}
		lines, err := tx.Lines(ctx, id)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return shared.NewValidationError("detalles", "dispatch has no lines")
		}

		required := map[int64]int64{}
		order := []int64{}
		for _, l := range lines {
			if _, seen := required[l.ProductID]; !seen {
				order = append(order, l.ProductID)
			}
			required[l.ProductID] += l.Quantity
		}
		sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

		// All products checked before any movement is posted.
		for _, productID := range order {
			name, err := tx.LockProduct(ctx, productID)
			if err != nil {
				return fmt.Errorf("lock product %d: %w", productID, err)
			}
			available, err := tx.CurrentStock(ctx, productID)
			if err != nil {
				return fmt.Errorf("stock for product %d: %w", productID, err)
			}
			if available < required[productID] {
				return &shared.InsufficientStockError{
					ProductID:   productID,
					ProductName: name,
					Available:   available,
					Required:    required[productID],
				}
			}
		}

		dispatchRef := id
		for _, l := range lines {
			if _, err := tx.InsertMovement(ctx, kardex.Movement{
				ProductID:    l.ProductID,
				Kind:         kardex.MovementSalida,
				Quantity:     -l.Quantity,
				DispatchID:   &dispatchRef,
				Note:         fmt.Sprintf("salida despacho %s", existing.Code),
				RegisteredBy: actor,
			}); err != nil {
				return fmt.Errorf("post salida: %w", err)
			}
		}
		affected = order

		departed := time.Now()
		if departureAt != nil {
			departed = *departureAt
		}
		return tx.UpdateStatus(ctx, id, StatusEnTransito, map[string]any{
			"fecha_salida": departed,
			"updated_by":   actor,
		})
	})
	if err != nil {
		return Dispatch{}, err
	}
	s.invalidate(ctx, affected)
	s.recordAudit(ctx, "despachos:despachar", id, nil)
	return s.repo.Get(ctx, id)
}

// MarkDelivered closes an EN_TRANSITO dispatch as ENTREGADO.
func (s *Service) MarkDelivered(ctx context.Context, id int64, deliveredAt *time.Time, actor string) (Dispatch, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if existing.Status != StatusEnTransito {
			return &shared.InvalidStateError{Entity: "despacho", ID: id, Status: string(existing.Status), Op: "entregar"}
		}
		delivered := time.Now()
		if deliveredAt != nil {
			delivered = *deliveredAt
		}
		return tx.UpdateStatus(ctx, id, StatusEntregado, map[string]any{
			"fecha_entrega": delivered,
			"updated_by":    actor,
		})
	})
	if err != nil {
		return Dispatch{}, err
	}
	s.recordAudit(ctx, "despachos:entregar", id, nil)
	return s.repo.Get(ctx, id)
}

// Cancel voids a dispatch. When stock was already committed (EN_TRANSITO or
// ENTREGADO) a compensating AJUSTE_POS is posted per line so the ledger sums
// back to the pre-commit value.
func (s *Service) Cancel(ctx context.Context, id int64, reason string, actor string) (Dispatch, error) {
	if len(strings.TrimSpace(reason)) < minCancelReason {
		return Dispatch{}, shared.NewValidationError("motivo_anulacion", fmt.Sprintf("reason must be at least %d characters", minCancelReason))
	}
	var affected []int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if existing.Status == StatusAnulado {
			return &shared.InvalidStateError{Entity: "despacho", ID: id, Status: string(existing.Status), Op: "anular"}
		}
		if existing.Status == StatusEnTransito || existing.Status == StatusEntregado {
			lines, err := tx.Lines(ctx, id)
			if err != nil {
				return err
			}
			dispatchRef := id
			for _, l := range lines {
				if _, err := tx.InsertMovement(ctx, kardex.Movement{
					ProductID:    l.ProductID,
					Kind:         kardex.MovementAjustePos,
					Quantity:     l.Quantity,
					DispatchID:   &dispatchRef,
					Note:         fmt.Sprintf("reversion despacho %s: %s", existing.Code, reason),
					RegisteredBy: actor,
				}); err != nil {
					return fmt.Errorf("post reversal: %w", err)
				}
				affected = append(affected, l.ProductID)
			}
		}
		return tx.UpdateStatus(ctx, id, StatusAnulado, map[string]any{
			"motivo_anulacion": reason,
			"updated_by":       actor,
		})
	})
	if err != nil {
		return Dispatch{}, err
	}
	s.invalidate(ctx, affected)
	s.recordAudit(ctx, "despachos:anular", id, map[string]any{"motivo": reason})
	return s.repo.Get(ctx, id)
}

// Get loads a dispatch with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Dispatch, error) {
	return s.repo.Get(ctx, id)
}

// List returns a filtered page of dispatches.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Dispatch, int, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, shared.NewValidationError("estado", "unknown status")
	}
	return s.repo.List(ctx, filter)
}

func validateLines(lines []LineInput) error {
	if len(lines) == 0 {
		return shared.NewValidationError("detalles", "at least one line is required")
	}
	for i, l := range lines {
		if l.ProductID <= 0 {
			return shared.NewValidationError(fmt.Sprintf("detalles[%d].id_producto", i), "product is required")
		}
		if l.UnitID <= 0 {
			return shared.NewValidationError(fmt.Sprintf("detalles[%d].id_medida", i), "unit is required")
		}
		if l.Quantity <= 0 {
			return shared.NewValidationError(fmt.Sprintf("detalles[%d].cantidad", i), "quantity must be positive")
		}
	}
	return nil
}

func insertLines(ctx context.Context, tx TxRepository, dispatchID int64, lines []LineInput) error {
	for _, l := range lines {
		if _, err := tx.InsertLine(ctx, Line{
			DispatchID: dispatchID,
			ProductID:  l.ProductID,
			UnitID:     l.UnitID,
			Quantity:   l.Quantity,
			Note:       l.Note,
		}); err != nil {
			return fmt.Errorf("insert line: %w", err)
		}
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, productIDs []int64) {
	if s.cache == nil {
		return
	}
	for _, id := range productIDs {
		_ = s.cache.Invalidate(ctx, id)
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "despacho",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
