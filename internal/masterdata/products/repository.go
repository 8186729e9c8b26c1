package products

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	mdshared "github.com/veta-logistics/veta/internal/masterdata/shared"
	"github.com/veta-logistics/veta/internal/shared"
)

// Repository defines persistence operations for products.
type Repository interface {
	List(ctx context.Context, filters mdshared.ListFilters) ([]Product, int, error)
	Get(ctx context.Context, id int64) (Product, error)
	Create(ctx context.Context, in Input) (Product, error)
	Update(ctx context.Context, id int64, in Input) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const productColumns = `id_producto, codigo, nombre, COALESCE(clasificacion,''), id_medida, precio_lista, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters mdshared.ListFilters) ([]Product, int, error) {
	filters = filters.Normalize()
	where := "deleted_at IS NULL"
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+mdshared.Fold(filters.Search)+"%")
		where += fmt.Sprintf(" AND (nombre_normalizado LIKE $%d OR LOWER(codigo) LIKE $%d)", len(args), len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM productos WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filters.PerPage, filters.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM productos WHERE %s ORDER BY nombre LIMIT $%d OFFSET $%d`,
		productColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Classification, &p.UnitID, &p.ListPrice, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM productos WHERE id_producto=$1 AND deleted_at IS NULL`, productColumns), id).
		Scan(&p.ID, &p.Code, &p.Name, &p.Classification, &p.UnitID, &p.ListPrice, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.ErrNotFound
	}
	return p, err
}

func (r *repository) Create(ctx context.Context, in Input) (Product, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO productos (codigo, nombre, nombre_normalizado, clasificacion, id_medida, precio_lista)
VALUES ($1,$2,$3,NULLIF($4,''),$5,$6) RETURNING id_producto`,
		in.Code, in.Name, mdshared.Fold(in.Name), in.Classification, in.UnitID, in.ListPrice).Scan(&id)
	if err != nil {
		return Product{}, mapUnique(err)
	}
	return r.Get(ctx, id)
}

func (r *repository) Update(ctx context.Context, id int64, in Input) error {
	tag, err := r.pool.Exec(ctx, `UPDATE productos
SET codigo=$1, nombre=$2, nombre_normalizado=$3, clasificacion=NULLIF($4,''), id_medida=$5, precio_lista=$6, updated_at=NOW()
WHERE id_producto=$7 AND deleted_at IS NULL`,
		in.Code, in.Name, mdshared.Fold(in.Name), in.Classification, in.UnitID, in.ListPrice, id)
	if err != nil {
		return mapUnique(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE productos SET deleted_at=NOW() WHERE id_producto=$1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func mapUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrConflict
	}
	return err
}
