package dispatches

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veta-logistics/veta/internal/kardex"
	"github.com/veta-logistics/veta/internal/platform/db"
	"github.com/veta-logistics/veta/internal/shared"
)

// Repository persists dispatches in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by the service.
// CommitToTransit runs its stock check and SALIDA postings entirely through
// one of these, so the check and the deduction cannot interleave with another
// commit for the same product.
type TxRepository interface {
	NextSequence(ctx context.Context, scope string) (int64, error)
	InsertDispatch(ctx context.Context, d Dispatch) (int64, error)
	InsertLine(ctx context.Context, l Line) (int64, error)
	DeleteLines(ctx context.Context, dispatchID int64) error
	GetForUpdate(ctx context.Context, id int64) (Dispatch, error)
	Lines(ctx context.Context, dispatchID int64) ([]Line, error)
	UpdateHeader(ctx context.Context, id int64, updates map[string]any) error
	UpdateStatus(ctx context.Context, id int64, status Status, updates map[string]any) error
	SoftDelete(ctx context.Context, id int64) error
	LockProduct(ctx context.Context, productID int64) (string, error)
	CurrentStock(ctx context.Context, productID int64) (int64, error)
	InsertMovement(ctx context.Context, m kardex.Movement) (int64, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("dispatches repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) NextSequence(ctx context.Context, scope string) (int64, error) {
	return shared.NextInTx(ctx, r.tx, scope)
}

func (r *txRepository) InsertDispatch(ctx context.Context, d Dispatch) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO despachos
(codigo, id_mina, id_supervisor, id_viaje, observaciones, estado, created_by, updated_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7) RETURNING id_despacho`,
		d.Code, d.MineID, d.SupervisorID, d.TripID, d.Notes, string(d.Status), d.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLine(ctx context.Context, l Line) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO despacho_detalles
(id_despacho, id_producto, id_medida, cantidad, observaciones)
VALUES ($1,$2,$3,$4,$5) RETURNING id_detalle_despacho`,
		l.DispatchID, l.ProductID, l.UnitID, l.Quantity, l.Note).Scan(&id)
	return id, err
}

func (r *txRepository) DeleteLines(ctx context.Context, dispatchID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM despacho_detalles WHERE id_despacho=$1`, dispatchID)
	return err
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Dispatch, error) {
	var (
		d      Dispatch
		status string
		reason *string
	)
	err := r.tx.QueryRow(ctx, `SELECT id_despacho, codigo, id_mina, id_supervisor, id_viaje, COALESCE(observaciones,''), estado, motivo_anulacion, fecha_salida, fecha_entrega, created_by, COALESCE(updated_by,''), created_at, updated_at
FROM despachos WHERE id_despacho=$1 AND deleted_at IS NULL FOR UPDATE`, id).Scan(
		&d.ID, &d.Code, &d.MineID, &d.SupervisorID, &d.TripID, &d.Notes, &status, &reason,
		&d.DepartureAt, &d.DeliveredAt, &d.CreatedBy, &d.UpdatedBy, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Dispatch{}, shared.ErrNotFound
	}
	if err != nil {
		return Dispatch{}, err
	}
	d.Status = Status(status)
	if reason != nil {
		d.CancellationReason = *reason
	}
	return d, nil
}

func (r *txRepository) Lines(ctx context.Context, dispatchID int64) ([]Line, error) {
	rows, err := r.tx.Query(ctx, `SELECT id_detalle_despacho, id_despacho, id_producto, id_medida, cantidad, COALESCE(observaciones,'')
FROM despacho_detalles WHERE id_despacho=$1 ORDER BY id_detalle_despacho`, dispatchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLines(rows)
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
	sql := fmt.Sprintf(`UPDATE despachos SET %s, updated_at=NOW() WHERE id_despacho=$%d AND deleted_at IS NULL`,
		strings.Join(sets, ", "), len(args))
	_, err := r.tx.Exec(ctx, sql, args...)
	return err
}

func (r *txRepository) UpdateStatus(ctx context.Context, id int64, status Status, updates map[string]any) error {
	sets := []string{"estado=$1", "updated_at=NOW()"}
	args := []any{string(status)}
	for col, val := range updates {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	args = append(args, id)
	sql := fmt.Sprintf(`UPDATE despachos SET %s WHERE id_despacho=$%d AND deleted_at IS NULL`,
		strings.Join(sets, ", "), len(args))
	_, err := r.tx.Exec(ctx, sql, args...)
	return err
}

func (r *txRepository) SoftDelete(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE despachos SET deleted_at=NOW() WHERE id_despacho=$1 AND deleted_at IS NULL`, id)
	return err
}

// LockProduct row-locks a product and returns its name. The lock serializes
// concurrent commits touching the same product, so the stock read that follows
// cannot be stale by commit time.
func (r *txRepository) LockProduct(ctx context.Context, productID int64) (string, error) {
	var name string
	err := r.tx.QueryRow(ctx, `SELECT nombre FROM productos WHERE id_producto=$1 AND deleted_at IS NULL FOR UPDATE`, productID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", shared.ErrNotFound
	}
	return name, err
}

func (r *txRepository) CurrentStock(ctx context.Context, productID int64) (int64, error) {
	return kardex.CurrentStockTx(ctx, r.tx, productID)
}

func (r *txRepository) InsertMovement(ctx context.Context, m kardex.Movement) (int64, error) {
	return kardex.InsertMovementTx(ctx, r.tx, m)
}

// Get loads a dispatch with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Dispatch, error) {
	if r == nil {
		return Dispatch{}, errors.New("dispatches repository not initialised")
	}
	var (
		d      Dispatch
		status string
		reason *string
	)
	err := r.pool.QueryRow(ctx, `SELECT id_despacho, codigo, id_mina, id_supervisor, id_viaje, COALESCE(observaciones,''), estado, motivo_anulacion, fecha_salida, fecha_entrega, created_by, COALESCE(updated_by,''), created_at, updated_at
FROM despachos WHERE id_despacho=$1 AND deleted_at IS NULL`, id).Scan(
		&d.ID, &d.Code, &d.MineID, &d.SupervisorID, &d.TripID, &d.Notes, &status, &reason,
		&d.DepartureAt, &d.DeliveredAt, &d.CreatedBy, &d.UpdatedBy, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Dispatch{}, shared.ErrNotFound
	}
	if err != nil {
		return Dispatch{}, err
	}
	d.Status = Status(status)
	if reason != nil {
		d.CancellationReason = *reason
	}
	rows, err := r.pool.Query(ctx, `SELECT id_detalle_despacho, id_despacho, id_producto, id_medida, cantidad, COALESCE(observaciones,'')
FROM despacho_detalles WHERE id_despacho=$1 ORDER BY id_detalle_despacho`, id)
	if err != nil {
		return Dispatch{}, err
	}
	defer rows.Close()
	d.Lines, err = scanLines(rows)
	return d, err
}

// List returns a filtered page of dispatches plus the total row count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Dispatch, int, error) {
	if r == nil {
		return nil, 0, errors.New("dispatches repository not initialised")
	}
	var (
		conds = []string{"deleted_at IS NULL"}
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("estado=$%d", len(args)))
	}
	if filter.MineID != 0 {
		args = append(args, filter.MineID)
		conds = append(conds, fmt.Sprintf("id_mina=$%d", len(args)))
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM despachos WHERE `+where, args...).Scan(&total); err != nil {
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
	sql := fmt.Sprintf(`SELECT id_despacho, codigo, id_mina, id_supervisor, id_viaje, COALESCE(observaciones,''), estado, motivo_anulacion, fecha_salida, fecha_entrega, created_by, COALESCE(updated_by,''), created_at, updated_at
FROM despachos WHERE %s ORDER BY created_at DESC, id_despacho DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	dispatches := []Dispatch{}
	for rows.Next() {
		var (
			d      Dispatch
			status string
			reason *string
		)
		if err := rows.Scan(&d.ID, &d.Code, &d.MineID, &d.SupervisorID, &d.TripID, &d.Notes, &status, &reason,
			&d.DepartureAt, &d.DeliveredAt, &d.CreatedBy, &d.UpdatedBy, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, 0, err
		}
		d.Status = Status(status)
		if reason != nil {
			d.CancellationReason = *reason
		}
		dispatches = append(dispatches, d)
	}
	return dispatches, total, rows.Err()
}

func scanLines(rows pgx.Rows) ([]Line, error) {
	lines := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.DispatchID, &l.ProductID, &l.UnitID, &l.Quantity, &l.Note); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
