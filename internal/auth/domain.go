package auth

import "time"

// Role enumerates the access levels.
type Role string

const (
	// RoleAdmin has full access including manual adjustments and master data.
	RoleAdmin Role = "ADMIN"
	// RoleOperador operates the pipeline: requirements, trips, dispatches.
	RoleOperador Role = "OPERADOR"
	// RoleConsulta has read-only access.
	RoleConsulta Role = "CONSULTA"
)

// IsValid reports whether the role is a known value.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleOperador, RoleConsulta:
		return true
	default:
		return false
	}
}

// CanWrite reports whether the role may mutate pipeline entities.
func (r Role) CanWrite() bool {
	return r == RoleAdmin || r == RoleOperador
}

// User represents an authenticated user account.
type User struct {
	ID           int64     `json:"id_usuario"`
	Username     string    `json:"username"`
	FullName     string    `json:"nombre_completo"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"rol"`
	IsActive     bool      `json:"activo"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// LoginResult carries the issued token and the authenticated user.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expira_en"`
	User      User      `json:"usuario"`
}
