package mines

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

// Mine is a destination site for requirements and dispatches.
type Mine struct {
	ID        int64     `json:"id_mina"`
	Name      string    `json:"nombre"`
	Zone      string    `json:"zona,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Input carries the writable mine fields.
type Input struct {
	Name string `json:"nombre" validate:"required,max=200"`
	Zone string `json:"zona" validate:"max=120"`
}

// Repository defines persistence operations for mines.
type Repository interface {
	List(ctx context.Context, filters mdshared.ListFilters) ([]Mine, int, error)
	Get(ctx context.Context, id int64) (Mine, error)
	Create(ctx context.Context, in Input) (Mine, error)
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

func (r *repository) List(ctx context.Context, filters mdshared.ListFilters) ([]Mine, int, error) {
	filters = filters.Normalize()
	where := "deleted_at IS NULL"
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+mdshared.Fold(filters.Search)+"%")
		where += fmt.Sprintf(" AND nombre_normalizado LIKE $%d", len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM minas WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filters.PerPage, filters.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT id_mina, nombre, COALESCE(zona,''), created_at, updated_at
FROM minas WHERE %s ORDER BY nombre LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	mines := []Mine{}
	for rows.Next() {
		var m Mine
		if err := rows.Scan(&m.ID, &m.Name, &m.Zone, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, 0, err
		}
		mines = append(mines, m)
	}
	return mines, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Mine, error) {
	var m Mine
	err := r.pool.QueryRow(ctx, `SELECT id_mina, nombre, COALESCE(zona,''), created_at, updated_at
FROM minas WHERE id_mina=$1 AND deleted_at IS NULL`, id).Scan(&m.ID, &m.Name, &m.Zone, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Mine{}, shared.ErrNotFound
	}
	return m, err
}

func (r *repository) Create(ctx context.Context, in Input) (Mine, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO minas (nombre, nombre_normalizado, zona)
VALUES ($1,$2,NULLIF($3,'')) RETURNING id_mina`, in.Name, mdshared.Fold(in.Name), in.Zone).Scan(&id)
	if err != nil {
		return Mine{}, mapUnique(err)
	}
	return r.Get(ctx, id)
}

func (r *repository) Update(ctx context.Context, id int64, in Input) error {
	tag, err := r.pool.Exec(ctx, `UPDATE minas SET nombre=$1, nombre_normalizado=$2, zona=NULLIF($3,''), updated_at=NOW()
WHERE id_mina=$4 AND deleted_at IS NULL`, in.Name, mdshared.Fold(in.Name), in.Zone, id)
	if err != nil {
		return mapUnique(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE minas SET deleted_at=NOW() WHERE id_mina=$1 AND deleted_at IS NULL`, id)
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

// Service wraps mine master data rules.
type Service struct {
	repo Repository
}

// NewService constructs Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters mdshared.ListFilters) ([]Mine, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Mine, error) {
	if id <= 0 {
		return Mine{}, shared.NewValidationError("id_mina", "invalid id")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, in Input) (Mine, error) {
	return s.repo.Create(ctx, in)
}

func (s *Service) Update(ctx context.Context, id int64, in Input) error {
	if id <= 0 {
		return shared.NewValidationError("id_mina", "invalid id")
	}
	return s.repo.Update(ctx, id, in)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.NewValidationError("id_mina", "invalid id")
	}
	return s.repo.Delete(ctx, id)
}
