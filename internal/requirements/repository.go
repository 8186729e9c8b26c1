package requirements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veta-logistics/veta/internal/platform/db"
	"github.com/veta-logistics/veta/internal/shared"
)

// Repository persists requirements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by the service.
type TxRepository interface {
	NextSequence(ctx context.Context, scope string) (int64, error)
	InsertRequirement(ctx context.Context, r Requirement) (int64, error)
	InsertLine(ctx context.Context, l Line) (int64, error)
	GetForUpdate(ctx context.Context, id int64) (Requirement, error)
	UpdateHeader(ctx context.Context, id int64, updates map[string]any) error
	UpdateStatus(ctx context.Context, id int64, status Status, reason string, actor string) error
	LineTotals(ctx context.Context, requirementID int64) (solicited, delivered int64, err error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("requirements repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) NextSequence(ctx context.Context, scope string) (int64, error) {
	return shared.NextInTx(ctx, r.tx, scope)
}

func (r *txRepository) InsertRequirement(ctx context.Context, req Requirement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO requerimientos
(codigo, id_proveedor, id_mina, id_supervisor, fecha_emision, fecha_prometida, observaciones, estado, created_by, updated_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9) RETURNING id_requerimiento`,
		req.Code, req.SupplierID, req.MineID, req.SupervisorID, req.IssueDate, req.PromisedDate, req.Notes, string(req.Status), req.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLine(ctx context.Context, l Line) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO requerimiento_detalles
(id_requerimiento, id_producto, cantidad_solicitada, precio_proveedor, precio_mina, cantidad_entregada, observaciones)
VALUES ($1,$2,$3,$4,$5,0,$6) RETURNING id_detalle_requerimiento`,
		l.RequirementID, l.ProductID, l.QuantitySolicited, l.SupplierPrice, l.MinePrice, l.Note).Scan(&id)
	return id, err
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Requirement, error) {
	return GetForUpdateTx(ctx, r.tx, id)
}

func (r *txRepository) UpdateHeader(ctx context.Context, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	var (
		sets []string
		args []any
	)
	for col, val := range updates {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	args = append(args, id)
	sql := fmt.Sprintf(`UPDATE requerimientos SET %s, updated_at=NOW() WHERE id_requerimiento=$%d AND deleted_at IS NULL`,
		strings.Join(sets, ", "), len(args))
	_, err := r.tx.Exec(ctx, sql, args...)
	return err
}

func (r *txRepository) UpdateStatus(ctx context.Context, id int64, status Status, reason string, actor string) error {
	_, err := r.tx.Exec(ctx, `UPDATE requerimientos
SET estado=$1, motivo_anulacion=NULLIF($2,''), updated_by=$3, updated_at=NOW()
WHERE id_requerimiento=$4 AND deleted_at IS NULL`,
		string(status), reason, actor, id)
	return err
}

func (r *txRepository) LineTotals(ctx context.Context, requirementID int64) (int64, int64, error) {
	return lineTotalsTx(ctx, r.tx, requirementID)
}

// GetForUpdateTx loads and row-locks a requirement header inside an existing
// transaction. Trip registration locks through here so trip numbers and
// delivered totals serialize per requirement.
func GetForUpdateTx(ctx context.Context, tx pgx.Tx, id int64) (Requirement, error) {
	var (
		req    Requirement
		status string
		reason *string
	)
	err := tx.QueryRow(ctx, `SELECT id_requerimiento, codigo, id_proveedor, id_mina, id_supervisor, fecha_emision, fecha_prometida, COALESCE(observaciones,''), estado, motivo_anulacion, created_by, COALESCE(updated_by,''), created_at, updated_at
FROM requerimientos WHERE id_requerimiento=$1 AND deleted_at IS NULL FOR UPDATE`, id).Scan(
		&req.ID, &req.Code, &req.SupplierID, &req.MineID, &req.SupervisorID, &req.IssueDate, &req.PromisedDate,
		&req.Notes, &status, &reason, &req.CreatedBy, &req.UpdatedBy, &req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Requirement{}, shared.ErrNotFound
	}
	if err != nil {
		return Requirement{}, err
	}
	req.Status = Status(status)
	if reason != nil {
		req.CancellationReason = *reason
	}
	return req, nil
}

// LineTx loads one requirement line inside an existing transaction.
func LineTx(ctx context.Context, tx pgx.Tx, lineID int64) (Line, error) {
	var l Line
	err := tx.QueryRow(ctx, `SELECT id_detalle_requerimiento, id_requerimiento, id_producto, cantidad_solicitada, precio_proveedor, precio_mina, cantidad_entregada, COALESCE(observaciones,'')
FROM requerimiento_detalles WHERE id_detalle_requerimiento=$1`, lineID).Scan(
		&l.ID, &l.RequirementID, &l.ProductID, &l.QuantitySolicited, &l.SupplierPrice, &l.MinePrice, &l.QuantityDelivered, &l.Note)
	if errors.Is(err, pgx.ErrNoRows) {
		return Line{}, shared.ErrNotFound
	}
	return l, err
}

// AddDeliveredTx increments a line's cumulative delivered quantity.
func AddDeliveredTx(ctx context.Context, tx pgx.Tx, lineID, qty int64) error {
	tag, err := tx.Exec(ctx, `UPDATE requerimiento_detalles
SET cantidad_entregada = cantidad_entregada + $1
WHERE id_detalle_requerimiento=$2`, qty, lineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// RecomputeStatusTx rederives the requirement status from its line totals in
// the same transaction that mutated the lines. Terminal statuses are left
// untouched.
func RecomputeStatusTx(ctx context.Context, tx pgx.Tx, requirementID int64, actor string) (Status, error) {
	var current string
	err := tx.QueryRow(ctx, `SELECT estado FROM requerimientos WHERE id_requerimiento=$1 AND deleted_at IS NULL`, requirementID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", shared.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if Status(current).IsTerminal() {
		return Status(current), nil
	}
	solicited, delivered, err := lineTotalsTx(ctx, tx, requirementID)
	if err != nil {
		return "", err
	}
	next := StatusFromTotals(solicited, delivered)
	if next == Status(current) {
		return next, nil
	}
	_, err = tx.Exec(ctx, `UPDATE requerimientos SET estado=$1, updated_by=$2, updated_at=NOW() WHERE id_requerimiento=$3`,
		string(next), actor, requirementID)
	return next, err
}

func lineTotalsTx(ctx context.Context, tx pgx.Tx, requirementID int64) (int64, int64, error) {
	var solicited, delivered int64
	err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(cantidad_solicitada),0), COALESCE(SUM(cantidad_entregada),0)
FROM requerimiento_detalles WHERE id_requerimiento=$1`, requirementID).Scan(&solicited, &delivered)
	return solicited, delivered, err
}

// Get loads a requirement with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Requirement, error) {
	if r == nil {
		return Requirement{}, errors.New("requirements repository not initialised")
	}
	var (
		req    Requirement
		status string
		reason *string
	)
	err := r.pool.QueryRow(ctx, `SELECT id_requerimiento, codigo, id_proveedor, id_mina, id_supervisor, fecha_emision, fecha_prometida, COALESCE(observaciones,''), estado, motivo_anulacion, created_by, COALESCE(updated_by,''), created_at, updated_at
FROM requerimientos WHERE id_requerimiento=$1 AND deleted_at IS NULL`, id).Scan(
		&req.ID, &req.Code, &req.SupplierID, &req.MineID, &req.SupervisorID, &req.IssueDate, &req.PromisedDate,
		&req.Notes, &status, &reason, &req.CreatedBy, &req.UpdatedBy, &req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Requirement{}, shared.ErrNotFound
	}
	if err != nil {
		return Requirement{}, err
	}
	req.Status = Status(status)
	if reason != nil {
		req.CancellationReason = *reason
	}
	req.Lines, err = r.lines(ctx, id)
	return req, err
}

func (r *Repository) lines(ctx context.Context, requirementID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT id_detalle_requerimiento, id_requerimiento, id_producto, cantidad_solicitada, precio_proveedor, precio_mina, cantidad_entregada, COALESCE(observaciones,'')
FROM requerimiento_detalles WHERE id_requerimiento=$1 ORDER BY id_detalle_requerimiento`, requirementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.RequirementID, &l.ProductID, &l.QuantitySolicited, &l.SupplierPrice, &l.MinePrice, &l.QuantityDelivered, &l.Note); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// List returns a filtered page of requirements plus the total row count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Requirement, int, error) {
	if r == nil {
		return nil, 0, errors.New("requirements repository not initialised")
	}
	var (
		conds = []string{"deleted_at IS NULL"}
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("estado=$%d", len(args)))
	}
	if filter.SupplierID != 0 {
		args = append(args, filter.SupplierID)
		conds = append(conds, fmt.Sprintf("id_proveedor=$%d", len(args)))
	}
	if filter.MineID != 0 {
		args = append(args, filter.MineID)
		conds = append(conds, fmt.Sprintf("id_mina=$%d", len(args)))
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM requerimientos WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := filter.PerPage
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	sql := fmt.Sprintf(`SELECT id_requerimiento, codigo, id_proveedor, id_mina, id_supervisor, fecha_emision, fecha_prometida, COALESCE(observaciones,''), estado, motivo_anulacion, created_by, COALESCE(updated_by,''), created_at, updated_at
FROM requerimientos WHERE %s ORDER BY fecha_emision DESC, id_requerimiento DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	reqs := []Requirement{}
	for rows.Next() {
		var (
			req       Requirement
			status    string
			reason    *string
			promised  *time.Time
		)
		if err := rows.Scan(&req.ID, &req.Code, &req.SupplierID, &req.MineID, &req.SupervisorID, &req.IssueDate, &promised,
			&req.Notes, &status, &reason, &req.CreatedBy, &req.UpdatedBy, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, 0, err
		}
		req.Status = Status(status)
		req.PromisedDate = promised
		if reason != nil {
			req.CancellationReason = *reason
		}
		reqs = append(reqs, req)
	}
	return reqs, total, rows.Err()
}
