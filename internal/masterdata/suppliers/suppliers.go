package suppliers

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

// Supplier is a vendor the mines buy from.
type Supplier struct {
	ID        int64     `json:"id_proveedor"`
	RUC       string    `json:"ruc"`
	Name      string    `json:"razon_social"`
	Contact   string    `json:"contacto,omitempty"`
	Phone     string    `json:"telefono,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Input carries the writable supplier fields.
type Input struct {
	RUC     string `json:"ruc" validate:"required,len=11,numeric"`
	Name    string `json:"razon_social" validate:"required,max=200"`
	Contact string `json:"contacto" validate:"max=120"`
	Phone   string `json:"telefono" validate:"max=20"`
}

// Repository defines persistence operations for suppliers.
type Repository interface {
	List(ctx context.Context, filters mdshared.ListFilters) ([]Supplier, int, error)
	Get(ctx context.Context, id int64) (Supplier, error)
	Create(ctx context.Context, in Input) (Supplier, error)
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

const supplierColumns = `id_proveedor, ruc, razon_social, COALESCE(contacto,''), COALESCE(telefono,''), created_at, updated_at`

func (r *repository) List(ctx context.Context, filters mdshared.ListFilters) ([]Supplier, int, error) {
	filters = filters.Normalize()
	where := "deleted_at IS NULL"
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+mdshared.Fold(filters.Search)+"%")
		where += fmt.Sprintf(" AND (razon_social_normalizada LIKE $%d OR ruc LIKE $%d)", len(args), len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM proveedores WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filters.PerPage, filters.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM proveedores WHERE %s ORDER BY razon_social LIMIT $%d OFFSET $%d`,
		supplierColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	suppliers := []Supplier{}
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.RUC, &s.Name, &s.Contact, &s.Phone, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, 0, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Supplier, error) {
	var s Supplier
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM proveedores WHERE id_proveedor=$1 AND deleted_at IS NULL`, supplierColumns), id).
		Scan(&s.ID, &s.RUC, &s.Name, &s.Contact, &s.Phone, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, shared.ErrNotFound
	}
	return s, err
}

func (r *repository) Create(ctx context.Context, in Input) (Supplier, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO proveedores (ruc, razon_social, razon_social_normalizada, contacto, telefono)
VALUES ($1,$2,$3,NULLIF($4,''),NULLIF($5,'')) RETURNING id_proveedor`,
		in.RUC, in.Name, mdshared.Fold(in.Name), in.Contact, in.Phone).Scan(&id)
	if err != nil {
		return Supplier{}, mapUnique(err)
	}
	return r.Get(ctx, id)
}

func (r *repository) Update(ctx context.Context, id int64, in Input) error {
	tag, err := r.pool.Exec(ctx, `UPDATE proveedores
SET ruc=$1, razon_social=$2, razon_social_normalizada=$3, contacto=NULLIF($4,''), telefono=NULLIF($5,''), updated_at=NOW()
WHERE id_proveedor=$6 AND deleted_at IS NULL`,
		in.RUC, in.Name, mdshared.Fold(in.Name), in.Contact, in.Phone, id)
	if err != nil {
		return mapUnique(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE proveedores SET deleted_at=NOW() WHERE id_proveedor=$1 AND deleted_at IS NULL`, id)
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

// Service wraps supplier master data rules.
type Service struct {
	repo Repository
}

// NewService constructs Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters mdshared.ListFilters) ([]Supplier, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, shared.NewValidationError("id_proveedor", "invalid id")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, in Input) (Supplier, error) {
	return s.repo.Create(ctx, in)
}

func (s *Service) Update(ctx context.Context, id int64, in Input) error {
	if id <= 0 {
		return shared.NewValidationError("id_proveedor", "invalid id")
	}
	return s.repo.Update(ctx, id, in)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.NewValidationError("id_proveedor", "invalid id")
	}
	return s.repo.Delete(ctx, id)
}
