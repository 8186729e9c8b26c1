package trips

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veta-logistics/veta/internal/kardex"
	"github.com/veta-logistics/veta/internal/platform/db"
	"github.com/veta-logistics/veta/internal/requirements"
	"github.com/veta-logistics/veta/internal/shared"
)

// Repository persists trips in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes every write trip registration performs. All of it runs
// on one transaction so a failure at any step leaves nothing behind.
type TxRepository interface {
	GetRequirementForUpdate(ctx context.Context, id int64) (requirements.Requirement, error)
	NextTripNumber(ctx context.Context, requirementID int64) (int64, error)
	InsertTrip(ctx context.Context, t Trip) (int64, error)
	InsertLine(ctx context.Context, l Line) (int64, error)
	RequirementLine(ctx context.Context, lineID int64) (requirements.Line, error)
	AddDelivered(ctx context.Context, lineID, qty int64) error
	InsertMovement(ctx context.Context, m kardex.Movement) (int64, error)
	RecomputeStatus(ctx context.Context, requirementID int64, actor string) (requirements.Status, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("trips repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) GetRequirementForUpdate(ctx context.Context, id int64) (requirements.Requirement, error) {
	return requirements.GetForUpdateTx(ctx, r.tx, id)
}

// NextTripNumber computes MAX+1 over the requirement's trips. Callers hold the
// requirement row lock, which serializes concurrent registrations.
func (r *txRepository) NextTripNumber(ctx context.Context, requirementID int64) (int64, error) {
	var next int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(numero_viaje),0)+1 FROM viajes WHERE id_requerimiento=$1`, requirementID).Scan(&next)
	return next, err
}

func (r *txRepository) InsertTrip(ctx context.Context, t Trip) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO viajes
(id_requerimiento, numero_viaje, placa_vehiculo, conductor, fecha_ingreso, observaciones, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id_viaje`,
		t.RequirementID, t.TripNumber, t.VehiclePlate, t.Driver, t.IngressDate, t.Notes, t.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLine(ctx context.Context, l Line) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO viaje_detalles
(id_viaje, id_detalle_requerimiento, cantidad_recibida, resultado, observaciones)
VALUES ($1,$2,$3,$4,$5) RETURNING id_detalle_viaje`,
		l.TripID, l.RequirementLineID, l.QuantityReceived, string(l.Outcome), l.Note).Scan(&id)
	return id, err
}

func (r *txRepository) RequirementLine(ctx context.Context, lineID int64) (requirements.Line, error) {
	return requirements.LineTx(ctx, r.tx, lineID)
}

func (r *txRepository) AddDelivered(ctx context.Context, lineID, qty int64) error {
	return requirements.AddDeliveredTx(ctx, r.tx, lineID, qty)
}

func (r *txRepository) InsertMovement(ctx context.Context, m kardex.Movement) (int64, error) {
	return kardex.InsertMovementTx(ctx, r.tx, m)
}

func (r *txRepository) RecomputeStatus(ctx context.Context, requirementID int64, actor string) (requirements.Status, error) {
	return requirements.RecomputeStatusTx(ctx, r.tx, requirementID, actor)
}

// Get loads a trip with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Trip, error) {
	if r == nil {
		return Trip{}, errors.New("trips repository not initialised")
	}
	var t Trip
	err := r.pool.QueryRow(ctx, `SELECT id_viaje, id_requerimiento, numero_viaje, placa_vehiculo, conductor, fecha_ingreso, COALESCE(observaciones,''), created_by, created_at
FROM viajes WHERE id_viaje=$1`, id).Scan(
		&t.ID, &t.RequirementID, &t.TripNumber, &t.VehiclePlate, &t.Driver, &t.IngressDate, &t.Notes, &t.CreatedBy, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Trip{}, shared.ErrNotFound
	}
	if err != nil {
		return Trip{}, err
	}
	t.Lines, err = r.linesFor(ctx, id)
	return t, err
}

// ListByRequirement returns a requirement's trips ordered by trip number.
func (r *Repository) ListByRequirement(ctx context.Context, requirementID int64) ([]Trip, error) {
	if r == nil {
		return nil, errors.New("trips repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id_viaje, id_requerimiento, numero_viaje, placa_vehiculo, conductor, fecha_ingreso, COALESCE(observaciones,''), created_by, created_at
FROM viajes WHERE id_requerimiento=$1 ORDER BY numero_viaje`, requirementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trips := []Trip{}
	for rows.Next() {
		var t Trip
		if err := rows.Scan(&t.ID, &t.RequirementID, &t.TripNumber, &t.VehiclePlate, &t.Driver, &t.IngressDate, &t.Notes, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range trips {
		trips[i].Lines, err = r.linesFor(ctx, trips[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return trips, nil
}

func (r *Repository) linesFor(ctx context.Context, tripID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT vd.id_detalle_viaje, vd.id_viaje, vd.id_detalle_requerimiento, rd.id_producto, vd.cantidad_recibida, vd.resultado, COALESCE(vd.observaciones,'')
FROM viaje_detalles vd
JOIN requerimiento_detalles rd ON rd.id_detalle_requerimiento = vd.id_detalle_requerimiento
WHERE vd.id_viaje=$1 ORDER BY vd.id_detalle_viaje`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.TripID, &l.RequirementLineID, &l.ProductID, &l.QuantityReceived, &l.Outcome, &l.Note); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
