package kardex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veta-logistics/veta/internal/platform/db"
)

// Repository persists ledger entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	InsertMovement(ctx context.Context, m Movement) (int64, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("kardex repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// InsertMovementTx appends one ledger row inside an existing transaction. The
// trip and dispatch repositories share this statement so every writer records
// movements identically.
func InsertMovementTx(ctx context.Context, tx pgx.Tx, m Movement) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `INSERT INTO movimientos_stock
(id_producto, tipo, cantidad, id_despacho, id_viaje, id_detalle_requerimiento, ref_id, observacion, usuario_registro, created_by, fecha_registro)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9,NOW()) RETURNING id_movimiento`,
		m.ProductID, string(m.Kind), m.Quantity, m.DispatchID, m.TripID, m.RequirementLineID, nullString(m.RefID), m.Note, m.RegisteredBy).Scan(&id)
	return id, err
}

// CurrentStockTx computes the derived stock for a product inside a transaction.
// Callers needing a linearizable check-then-deduct must lock the product row
// first (see dispatches).
func CurrentStockTx(ctx context.Context, tx pgx.Tx, productID int64) (int64, error) {
	var stock int64
	err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(cantidad), 0) FROM movimientos_stock WHERE id_producto=$1`, productID).Scan(&stock)
	return stock, err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	return InsertMovementTx(ctx, r.tx, m)
}

// CurrentStock sums all movement deltas for a product. The stock is derived
// from the ledger on every read and never stored, so it cannot drift.
func (r *Repository) CurrentStock(ctx context.Context, productID int64) (int64, error) {
	if r == nil {
		return 0, errors.New("kardex repository not initialised")
	}
	var stock int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(cantidad), 0) FROM movimientos_stock WHERE id_producto=$1`, productID).Scan(&stock)
	return stock, err
}

// History lists movements newest first, applying the filter as parameterized
// predicates.
func (r *Repository) History(ctx context.Context, filter HistoryFilter) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("kardex repository not initialised")
	}
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT id_movimiento, id_producto, tipo, cantidad, id_despacho, id_viaje, id_detalle_requerimiento, COALESCE(ref_id::text, ''), observacion, usuario_registro, fecha_registro
FROM movimientos_stock`)
	var conds []string
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		conds = append(conds, fmt.Sprintf("id_producto=$%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		conds = append(conds, fmt.Sprintf("tipo=$%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conds = append(conds, fmt.Sprintf("fecha_registro >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conds = append(conds, fmt.Sprintf("fecha_registro <= $%d", len(args)))
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	sb.WriteString(fmt.Sprintf(" ORDER BY fecha_registro DESC, id_movimiento DESC LIMIT $%d", len(args)))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Kind, &m.Quantity, &m.DispatchID, &m.TripID, &m.RequirementLineID, &m.RefID, &m.Note, &m.RegisteredBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// ProductLedger returns every movement for a product in insertion order. The
// integrity scan replays this to cross-check the aggregate stock.
func (r *Repository) ProductLedger(ctx context.Context, productID int64) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("kardex repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id_movimiento, id_producto, tipo, cantidad, id_despacho, id_viaje, id_detalle_requerimiento, COALESCE(ref_id::text, ''), observacion, usuario_registro, fecha_registro
FROM movimientos_stock WHERE id_producto=$1 ORDER BY fecha_registro ASC, id_movimiento ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Kind, &m.Quantity, &m.DispatchID, &m.TripID, &m.RequirementLineID, &m.RefID, &m.Note, &m.RegisteredBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// StockTotal pairs a product with its derived stock.
type StockTotal struct {
	ProductID int64 `json:"id_producto"`
	Stock     int64 `json:"stock_actual"`
}

// StockTotals returns derived stock for every product with at least one
// movement, used by the integrity scan and the stock listing endpoint.
func (r *Repository) StockTotals(ctx context.Context) ([]StockTotal, error) {
	if r == nil {
		return nil, errors.New("kardex repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id_producto, COALESCE(SUM(cantidad), 0) AS stock
FROM movimientos_stock GROUP BY id_producto ORDER BY id_producto`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := []StockTotal{}
	for rows.Next() {
		var t StockTotal
		if err := rows.Scan(&t.ProductID, &t.Stock); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
