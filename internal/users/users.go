package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/veta-logistics/veta/internal/auth"
	mdshared "github.com/veta-logistics/veta/internal/masterdata/shared"
	"github.com/veta-logistics/veta/internal/shared"
)

// User is an account that can sign in to the API.
type User struct {
	ID        int64     `json:"id_usuario"`
	Username  string    `json:"username"`
	FullName  string    `json:"nombre_completo"`
	Role      string    `json:"rol"`
	IsActive  bool      `json:"activo"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateInput carries the fields for a new account.
type CreateInput struct {
	Username string `json:"username" validate:"required,min=3,max=60,alphanum"`
	FullName string `json:"nombre_completo" validate:"required,max=200"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Role     string `json:"rol" validate:"required,oneof=ADMIN OPERADOR CONSULTA"`
}

// UpdateInput carries the mutable account fields. Nil means "keep".
type UpdateInput struct {
	FullName *string `json:"nombre_completo" validate:"omitempty,max=200"`
	Role     *string `json:"rol" validate:"omitempty,oneof=ADMIN OPERADOR CONSULTA"`
	IsActive *bool   `json:"activo"`
}

// Repository defines persistence operations for accounts.
type Repository interface {
	List(ctx context.Context, filters mdshared.ListFilters) ([]User, int, error)
	Get(ctx context.Context, id int64) (User, error)
	Create(ctx context.Context, in CreateInput, passwordHash string) (User, error)
	Update(ctx context.Context, id int64, in UpdateInput) error
	SetPassword(ctx context.Context, id int64, passwordHash string) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const userColumns = `id_usuario, username, nombre_completo, rol, activo, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters mdshared.ListFilters) ([]User, int, error) {
	filters = filters.Normalize()
	where := "deleted_at IS NULL"
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+mdshared.Fold(filters.Search)+"%")
		where += fmt.Sprintf(" AND (LOWER(username) LIKE $%d OR nombre_normalizado LIKE $%d)", len(args), len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM usuarios WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filters.PerPage, filters.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM usuarios WHERE %s ORDER BY username LIMIT $%d OFFSET $%d`,
		userColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.FullName, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM usuarios WHERE id_usuario=$1 AND deleted_at IS NULL`, id).
		Scan(&u.ID, &u.Username, &u.FullName, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	return u, err
}

func (r *repository) Create(ctx context.Context, in CreateInput, passwordHash string) (User, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO usuarios (username, nombre_completo, nombre_normalizado, password_hash, rol, activo)
VALUES ($1,$2,$3,$4,$5,TRUE) RETURNING id_usuario`,
		in.Username, in.FullName, mdshared.Fold(in.FullName), passwordHash, in.Role).Scan(&id)
	if err != nil {
		return User{}, mapUnique(err)
	}
	return r.Get(ctx, id)
}

func (r *repository) Update(ctx context.Context, id int64, in UpdateInput) error {
	sets := []string{"updated_at=NOW()"}
	args := []any{}
	if in.FullName != nil {
		args = append(args, *in.FullName)
		sets = append(sets, fmt.Sprintf("nombre_completo=$%d", len(args)))
		args = append(args, mdshared.Fold(*in.FullName))
		sets = append(sets, fmt.Sprintf("nombre_normalizado=$%d", len(args)))
	}
	if in.Role != nil {
		args = append(args, *in.Role)
		sets = append(sets, fmt.Sprintf("rol=$%d", len(args)))
	}
	if in.IsActive != nil {
		args = append(args, *in.IsActive)
		sets = append(sets, fmt.Sprintf("activo=$%d", len(args)))
	}
	args = append(args, id)
	tag, err := r.pool.Exec(ctx, fmt.Sprintf(`UPDATE usuarios SET %s WHERE id_usuario=$%d AND deleted_at IS NULL`,
		joinSets(sets), len(args)), args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE usuarios SET password_hash=$1, updated_at=NOW() WHERE id_usuario=$2 AND deleted_at IS NULL`, passwordHash, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func joinSets(sets []string) string {
	out := sets[0]
	for _, s := range sets[1:] {
		out += ", " + s
	}
	return out
}

func mapUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrConflict
	}
	return err
}

// Service wraps account management rules. All operations are admin-only at
// the routing layer.
type Service struct {
	repo Repository
}

// NewService constructs Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters mdshared.ListFilters) ([]User, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	if id <= 0 {
		return User{}, shared.NewValidationError("id_usuario", "invalid id")
	}
	return s.repo.Get(ctx, id)
}

// Create hashes the password and stores the account.
func (s *Service) Create(ctx context.Context, in CreateInput) (User, error) {
	if !auth.Role(in.Role).IsValid() {
		return User{}, shared.NewValidationError("rol", "unknown role")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	return s.repo.Create(ctx, in, string(hash))
}

func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) error {
	if id <= 0 {
		return shared.NewValidationError("id_usuario", "invalid id")
	}
	if in.Role != nil && !auth.Role(*in.Role).IsValid() {
		return shared.NewValidationError("rol", "unknown role")
	}
	if in.FullName == nil && in.Role == nil && in.IsActive == nil {
		return shared.NewValidationError("body", "nothing to update")
	}
	return s.repo.Update(ctx, id, in)
}

// ResetPassword replaces the stored hash with one for the new password.
func (s *Service) ResetPassword(ctx context.Context, id int64, password string) error {
	if id <= 0 {
		return shared.NewValidationError("id_usuario", "invalid id")
	}
	if len(password) < 8 {
		return shared.NewValidationError("password", "must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.SetPassword(ctx, id, string(hash))
}
