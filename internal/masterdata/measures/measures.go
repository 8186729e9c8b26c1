package measures

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	mdshared "github.com/veta-logistics/veta/internal/masterdata/shared"
	"github.com/veta-logistics/veta/internal/shared"
)

// Measure is a unit of measure referenced by products and dispatch lines.
type Measure struct {
	ID        int64     `json:"id_medida"`
	Code      string    `json:"codigo"`
	Name      string    `json:"nombre"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Input carries the writable measure fields.
type Input struct {
	Code string `json:"codigo" validate:"required,max=10"`
	Name string `json:"nombre" validate:"required,max=100"`
}

// Repository defines persistence operations for measures.
type Repository interface {
	List(ctx context.Context, filters mdshared.ListFilters) ([]Measure, int, error)
	Get(ctx context.Context, id int64) (Measure, error)
	Create(ctx context.Context, in Input) (Measure, error)
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

func (r *repository) List(ctx context.Context, filters mdshared.ListFilters) ([]Measure, int, error) {
	filters = filters.Normalize()
	where := "deleted_at IS NULL"
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+mdshared.Fold(filters.Search)+"%")
		where += fmt.Sprintf(" AND (nombre_normalizado LIKE $%d OR LOWER(codigo) LIKE $%d)", len(args), len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM medidas WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filters.PerPage, filters.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT id_medida, codigo, nombre, created_at, updated_at
FROM medidas WHERE %s ORDER BY codigo LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	measures := []Measure{}
	for rows.Next() {
		var m Measure
		if err := rows.Scan(&m.ID, &m.Code, &m.Name, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, 0, err
		}
		measures = append(measures, m)
	}
	return measures, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Measure, error) {
	var m Measure
	err := r.pool.QueryRow(ctx, `SELECT id_medida, codigo, nombre, created_at, updated_at
FROM medidas WHERE id_medida=$1 AND deleted_at IS NULL`, id).Scan(&m.ID, &m.Code, &m.Name, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Measure{}, shared.ErrNotFound
	}
	return m, err
}

func (r *repository) Create(ctx context.Context, in Input) (Measure, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO medidas (codigo, nombre, nombre_normalizado)
VALUES ($1,$2,$3) RETURNING id_medida`, in.Code, in.Name, mdshared.Fold(in.Name)).Scan(&id)
	if err != nil {
		return Measure{}, mapUnique(err)
	}
	return r.Get(ctx, id)
}

func (r *repository) Update(ctx context.Context, id int64, in Input) error {
	tag, err := r.pool.Exec(ctx, `UPDATE medidas SET codigo=$1, nombre=$2, nombre_normalizado=$3, updated_at=NOW()
WHERE id_medida=$4 AND deleted_at IS NULL`, in.Code, in.Name, mdshared.Fold(in.Name), id)
	if err != nil {
		return mapUnique(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE medidas SET deleted_at=NOW() WHERE id_medida=$1 AND deleted_at IS NULL`, id)
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

// Service wraps measure master data rules.
type Service struct {
	repo Repository
}

// NewService constructs Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters mdshared.ListFilters) ([]Measure, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Measure, error) {
	if id <= 0 {
		return Measure{}, shared.NewValidationError("id_medida", "invalid id")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, in Input) (Measure, error) {
	return s.repo.Create(ctx, in)
}

func (s *Service) Update(ctx context.Context, id int64, in Input) error {
	if id <= 0 {
		return shared.NewValidationError("id_medida", "invalid id")
	}
	return s.repo.Update(ctx, id, in)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.NewValidationError("id_medida", "invalid id")
	}
	return s.repo.Delete(ctx, id)
}
