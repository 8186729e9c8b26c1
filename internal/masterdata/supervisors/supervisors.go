package supervisors

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

// Supervisor is the mine-side owner of a requirement.
type Supervisor struct {
	ID        int64     `json:"id_supervisor"`
	FullName  string    `json:"nombre_completo"`
	DNI       string    `json:"dni"`
	Phone     string    `json:"telefono,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Input carries the writable supervisor fields.
type Input struct {
	FullName string `json:"nombre_completo" validate:"required,max=200"`
	DNI      string `json:"dni" validate:"required,len=8,numeric"`
	Phone    string `json:"telefono" validate:"max=20"`
}

// Repository defines persistence operations for supervisors.
type Repository interface {
	List(ctx context.Context, filters mdshared.ListFilters) ([]Supervisor, int, error)
	Get(ctx context.Context, id int64) (Supervisor, error)
	Create(ctx context.Context, in Input) (Supervisor, error)
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

func (r *repository) List(ctx context.Context, filters mdshared.ListFilters) ([]Supervisor, int, error) {
	filters = filters.Normalize()
	where := "deleted_at IS NULL"
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+mdshared.Fold(filters.Search)+"%")
		where += fmt.Sprintf(" AND (nombre_normalizado LIKE $%d OR dni LIKE $%d)", len(args), len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM supervisores WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filters.PerPage, filters.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT id_supervisor, nombre_completo, dni, COALESCE(telefono,''), created_at, updated_at
FROM supervisores WHERE %s ORDER BY nombre_completo LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	supervisors := []Supervisor{}
	for rows.Next() {
		var s Supervisor
		if err := rows.Scan(&s.ID, &s.FullName, &s.DNI, &s.Phone, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, 0, err
		}
		supervisors = append(supervisors, s)
	}
	return supervisors, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Supervisor, error) {
	var s Supervisor
	err := r.pool.QueryRow(ctx, `SELECT id_supervisor, nombre_completo, dni, COALESCE(telefono,''), created_at, updated_at
FROM supervisores WHERE id_supervisor=$1 AND deleted_at IS NULL`, id).Scan(&s.ID, &s.FullName, &s.DNI, &s.Phone, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supervisor{}, shared.ErrNotFound
	}
	return s, err
}

func (r *repository) Create(ctx context.Context, in Input) (Supervisor, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO supervisores (nombre_completo, nombre_normalizado, dni, telefono)
VALUES ($1,$2,$3,NULLIF($4,'')) RETURNING id_supervisor`,
		in.FullName, mdshared.Fold(in.FullName), in.DNI, in.Phone).Scan(&id)
	if err != nil {
		return Supervisor{}, mapUnique(err)
	}
	return r.Get(ctx, id)
}

func (r *repository) Update(ctx context.Context, id int64, in Input) error {
	tag, err := r.pool.Exec(ctx, `UPDATE supervisores
SET nombre_completo=$1, nombre_normalizado=$2, dni=$3, telefono=NULLIF($4,''), updated_at=NOW()
WHERE id_supervisor=$5 AND deleted_at IS NULL`,
		in.FullName, mdshared.Fold(in.FullName), in.DNI, in.Phone, id)
	if err != nil {
		return mapUnique(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE supervisores SET deleted_at=NOW() WHERE id_supervisor=$1 AND deleted_at IS NULL`, id)
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

// Service wraps supervisor master data rules.
type Service struct {
	repo Repository
}

// NewService constructs Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters mdshared.ListFilters) ([]Supervisor, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Supervisor, error) {
	if id <= 0 {
		return Supervisor{}, shared.NewValidationError("id_supervisor", "invalid id")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, in Input) (Supervisor, error) {
	return s.repo.Create(ctx, in)
}

func (s *Service) Update(ctx context.Context, id int64, in Input) error {
	if id <= 0 {
		return shared.NewValidationError("id_supervisor", "invalid id")
	}
	return s.repo.Update(ctx, id, in)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.NewValidationError("id_supervisor", "invalid id")
	}
	return s.repo.Delete(ctx, id)
}
