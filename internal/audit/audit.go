package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one row of the audit trail, joined with the acting user.
type Entry struct {
	ID         int64          `json:"id"`
	ActorID    int64          `json:"actor_id"`
	ActorName  string         `json:"actor,omitempty"`
	Action     string         `json:"action"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entity_id"`
	Meta       map[string]any `json:"meta,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Filters narrows the trail query. Zero values mean "no filter".
type Filters struct {
	ActorID int64
	Action  string
	Entity  string
	From    time.Time
	To      time.Time
	Page    int
	PerPage int
}

func (f Filters) normalize() Filters {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PerPage <= 0 {
		f.PerPage = 20
	}
	if f.PerPage > 100 {
		f.PerPage = 100
	}
	return f
}

// Repository reads the audit trail.
type Repository interface {
	List(ctx context.Context, filters Filters) ([]Entry, int, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context, filters Filters) ([]Entry, int, error) {
	filters = filters.normalize()

	var (
		conds []string
		args  []any
	)
	if filters.ActorID != 0 {
		args = append(args, filters.ActorID)
		conds = append(conds, fmt.Sprintf("a.actor_id = $%d", len(args)))
	}
	if filters.Action != "" {
		args = append(args, filters.Action)
		conds = append(conds, fmt.Sprintf("a.action = $%d", len(args)))
	}
	if filters.Entity != "" {
		args = append(args, filters.Entity)
		conds = append(conds, fmt.Sprintf("a.entity = $%d", len(args)))
	}
	if !filters.From.IsZero() {
		args = append(args, filters.From)
		conds = append(conds, fmt.Sprintf("a.occurred_at >= $%d", len(args)))
	}
	if !filters.To.IsZero() {
		args = append(args, filters.To)
		conds = append(conds, fmt.Sprintf("a.occurred_at <= $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs a`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filters.PerPage, (filters.Page-1)*filters.PerPage)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT a.id, a.actor_id, COALESCE(u.nombre_completo, ''), a.action, a.entity, a.entity_id, a.meta, a.occurred_at
FROM audit_logs a
LEFT JOIN usuarios u ON u.id_usuario = a.actor_id
%s ORDER BY a.occurred_at DESC, a.id DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e    Entry
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorName, &e.Action, &e.Entity, &e.EntityID, &meta, &e.OccurredAt); err != nil {
			return nil, 0, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &e.Meta)
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// Service exposes the audit trail to HTTP.
type Service struct {
	repo Repository
}

// NewService constructs Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns trail entries newest first.
func (s *Service) List(ctx context.Context, filters Filters) ([]Entry, int, error) {
	if s == nil || s.repo == nil {
		return nil, 0, errors.New("audit: repository not configured")
	}
	return s.repo.List(ctx, filters)
}
