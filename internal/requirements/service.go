package requirements

import (
	"context"
	"fmt"
	"time"

	"github.com/veta-logistics/veta/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Requirement, error)
	List(ctx context.Context, filter ListFilter) ([]Requirement, int, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the requirement lifecycle.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Create registers a requirement with its lines. The code is allocated from a
// per-year sequence inside the same transaction, so concurrent creations never
// share a code.
func (s *Service) Create(ctx context.Context, input CreateInput) (Requirement, error) {
	if len(input.Lines) == 0 {
		return Requirement{}, shared.NewValidationError("detalles", "at least one line is required")
	}
	for i, l := range input.Lines {
		if l.ProductID <= 0 {
			return Requirement{}, shared.NewValidationError(fmt.Sprintf("detalles[%d].id_producto", i), "product is required")
		}
		if l.QuantitySolicited <= 0 {
			return Requirement{}, shared.NewValidationError(fmt.Sprintf("detalles[%d].cantidad_solicitada", i), "quantity must be positive")
		}
		if l.SupplierPrice.IsNegative() || l.MinePrice.IsNegative() {
			return Requirement{}, shared.NewValidationError(fmt.Sprintf("detalles[%d]", i), "prices must not be negative")
		}
	}
	issue := input.IssueDate
	if issue.IsZero() {
		issue = time.Now()
	}

	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextSequence(ctx, fmt.Sprintf("REQ-%d", issue.Year()))
		if err != nil {
			return fmt.Errorf("allocate code: %w", err)
		}
		req := Requirement{
			Code:         fmt.Sprintf("REQ-%d-%04d", issue.Year(), seq),
			SupplierID:   input.SupplierID,
			MineID:       input.MineID,
			SupervisorID: input.SupervisorID,
			IssueDate:    issue,
			PromisedDate: input.PromisedDate,
			Notes:        input.Notes,
			Status:       StatusPendiente,
			CreatedBy:    input.Actor,
		}
		id, err = tx.InsertRequirement(ctx, req)
		if err != nil {
			return fmt.Errorf("insert requirement: %w", err)
		}
		for _, l := range input.Lines {
			if _, err := tx.InsertLine(ctx, Line{
				RequirementID:     id,
				ProductID:         l.ProductID,
				QuantitySolicited: l.QuantitySolicited,
				SupplierPrice:     l.SupplierPrice,
				MinePrice:         l.MinePrice,
				Note:              l.Note,
			}); err != nil {
				return fmt.Errorf("insert line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Requirement{}, err
	}
	s.recordAudit(ctx, "requerimientos:crear", id, nil)
	return s.repo.Get(ctx, id)
}

// UpdateHeader edits header fields while the requirement is still PENDIENTE.
func (s *Service) UpdateHeader(ctx context.Context, id int64, input UpdateHeaderInput) (Requirement, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if existing.Status != StatusPendiente {
			return &shared.InvalidStateError{Entity: "requerimiento", ID: id, Status: string(existing.Status), Op: "editar"}
		}
		updates := map[string]any{}
		if input.SupplierID != nil {
			updates["id_proveedor"] = *input.SupplierID
		}
		if input.MineID != nil {
			updates["id_mina"] = *input.MineID
		}
		if input.SupervisorID != nil {
			updates["id_supervisor"] = *input.SupervisorID
		}
		if input.IssueDate != nil {
			updates["fecha_emision"] = *input.IssueDate
		}
		if input.PromisedDate != nil {
			updates["fecha_prometida"] = *input.PromisedDate
		}
		if input.Notes != nil {
			updates["observaciones"] = *input.Notes
		}
		if len(updates) == 0 {
			return nil
		}
		updates["updated_by"] = input.Actor
		return tx.UpdateHeader(ctx, id, updates)
	})
	if err != nil {
		return Requirement{}, err
	}
	s.recordAudit(ctx, "requerimientos:editar", id, nil)
	return s.repo.Get(ctx, id)
}

// SetStatus applies a manual status change. Terminal statuses admit no exit,
// and ANULADO demands a cancellation reason.
func (s *Service) SetStatus(ctx context.Context, id int64, next Status, reason string, actor string) (Requirement, error) {
	if !next.IsValid() {
		return Requirement{}, shared.NewValidationError("estado", "unknown status")
	}
	if next == StatusAnulado && reason == "" {
		return Requirement{}, shared.NewValidationError("motivo_anulacion", "cancellation reason is required")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if existing.Status.IsTerminal() {
			return &shared.InvalidStateError{Entity: "requerimiento", ID: id, Status: string(existing.Status), Op: "cambiar estado"}
		}
		return tx.UpdateStatus(ctx, id, next, reason, actor)
	})
	if err != nil {
		return Requirement{}, err
	}
	s.recordAudit(ctx, fmt.Sprintf("requerimientos:%s", next), id, map[string]any{"motivo": reason})
	return s.repo.Get(ctx, id)
}

// RecomputeStatus rederives the status from line totals. Trip registration
// performs the same recomputation inside its own transaction; this entry point
// serves manual reconciliation calls.
func (s *Service) RecomputeStatus(ctx context.Context, id int64, actor string) (Requirement, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if existing.Status.IsTerminal() {
			return nil
		}
		solicited, delivered, err := tx.LineTotals(ctx, id)
		if err != nil {
			return err
		}
		next := StatusFromTotals(solicited, delivered)
		if next == existing.Status {
			return nil
		}
		return tx.UpdateStatus(ctx, id, next, "", actor)
	})
	if err != nil {
		return Requirement{}, err
	}
	return s.repo.Get(ctx, id)
}

// GetProgress reports per-line and overall fulfillment, capped at 100 percent.
func (s *Service) GetProgress(ctx context.Context, id int64) (Progress, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Progress{}, err
	}
	progress := Progress{RequirementID: req.ID, Status: req.Status, Lines: []LineProgress{}}
	var solicited, delivered int64
	for _, l := range req.Lines {
		solicited += l.QuantitySolicited
		delivered += l.QuantityDelivered
		progress.Lines = append(progress.Lines, LineProgress{
			ProductID: l.ProductID,
			Solicited: l.QuantitySolicited,
			Delivered: l.QuantityDelivered,
			Percent:   clampPercent(l.QuantitySolicited, l.QuantityDelivered),
		})
	}
	progress.OverallPercent = clampPercent(solicited, delivered)
	return progress, nil
}

// Get loads a requirement with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Requirement, error) {
	return s.repo.Get(ctx, id)
}

// List returns a filtered page of requirements.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Requirement, int, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, shared.NewValidationError("estado", "unknown status")
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "requerimiento",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
