package trips

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veta-logistics/veta/internal/kardex"
	"github.com/veta-logistics/veta/internal/requirements"
	"github.com/veta-logistics/veta/internal/shared"
)

type fakeRepo struct {
	requirements map[int64]*requirements.Requirement
	reqLines     map[int64]*requirements.Line
	trips        map[int64]*Trip
	tripLines    map[int64]*Line
	movements    []kardex.Movement
	nextTripID   int64
	nextLineID   int64

	// snapshot state for rollback emulation
	failOn string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		requirements: map[int64]*requirements.Requirement{},
		reqLines:     map[int64]*requirements.Line{},
		trips:        map[int64]*Trip{},
		tripLines:    map[int64]*Line{},
	}
}

func (f *fakeRepo) seedRequirement(id int64, status requirements.Status, lines ...requirements.Line) {
	f.requirements[id] = &requirements.Requirement{ID: id, Code: "REQ-2026-0001", Status: status}
	for i := range lines {
		l := lines[i]
		l.RequirementID = id
		f.reqLines[l.ID] = &l
	}
}

type fakeTx struct {
	repo *fakeRepo

	requirements map[int64]requirements.Requirement
	reqLines     map[int64]requirements.Line
	trips        map[int64]Trip
	tripLines    map[int64]Line
	movements    []kardex.Movement
	nextTripID   int64
	nextLineID   int64
}

// WithTx emulates transactional semantics: mutations land on a copy and are
// published only when the callback succeeds.
func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &fakeTx{
		repo:         f,
		requirements: map[int64]requirements.Requirement{},
		reqLines:     map[int64]requirements.Line{},
		trips:        map[int64]Trip{},
		tripLines:    map[int64]Line{},
		movements:    append([]kardex.Movement{}, f.movements...),
		nextTripID:   f.nextTripID,
		nextLineID:   f.nextLineID,
	}
	for id, r := range f.requirements {
		tx.requirements[id] = *r
	}
	for id, l := range f.reqLines {
		tx.reqLines[id] = *l
	}
	for id, t := range f.trips {
		tx.trips[id] = *t
	}
	for id, l := range f.tripLines {
		tx.tripLines[id] = *l
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, r := range tx.requirements {
		c := r
		f.requirements[id] = &c
	}
	for id, l := range tx.reqLines {
		c := l
		f.reqLines[id] = &c
	}
	for id, t := range tx.trips {
		c := t
		f.trips[id] = &c
	}
	for id, l := range tx.tripLines {
		c := l
		f.tripLines[id] = &c
	}
	f.movements = tx.movements
	f.nextTripID = tx.nextTripID
	f.nextLineID = tx.nextLineID
	return nil
}

func (t *fakeTx) GetRequirementForUpdate(_ context.Context, id int64) (requirements.Requirement, error) {
	r, ok := t.requirements[id]
	if !ok {
		return requirements.Requirement{}, shared.ErrNotFound
	}
	return r, nil
}

func (t *fakeTx) NextTripNumber(_ context.Context, requirementID int64) (int64, error) {
	var max int64
	for _, tr := range t.trips {
		if tr.RequirementID == requirementID && tr.TripNumber > max {
			max = tr.TripNumber
		}
	}
	return max + 1, nil
}

func (t *fakeTx) InsertTrip(_ context.Context, trip Trip) (int64, error) {
	t.nextTripID++
	trip.ID = t.nextTripID
	trip.CreatedAt = time.Now()
	t.trips[trip.ID] = trip
	return trip.ID, nil
}

func (t *fakeTx) InsertLine(_ context.Context, l Line) (int64, error) {
	t.nextLineID++
	l.ID = t.nextLineID
	t.tripLines[l.ID] = l
	return l.ID, nil
}

func (t *fakeTx) RequirementLine(_ context.Context, lineID int64) (requirements.Line, error) {
	l, ok := t.reqLines[lineID]
	if !ok {
		return requirements.Line{}, shared.ErrNotFound
	}
	return l, nil
}

func (t *fakeTx) AddDelivered(_ context.Context, lineID, qty int64) error {
	l, ok := t.reqLines[lineID]
	if !ok {
		return shared.ErrNotFound
	}
	if t.repo.failOn == "delivered" {
		return context.DeadlineExceeded
	}
	l.QuantityDelivered += qty
	t.reqLines[lineID] = l
	return nil
}

func (t *fakeTx) InsertMovement(_ context.Context, m kardex.Movement) (int64, error) {
	m.ID = int64(len(t.movements) + 1)
	t.movements = append(t.movements, m)
	return m.ID, nil
}

func (t *fakeTx) RecomputeStatus(_ context.Context, requirementID int64, _ string) (requirements.Status, error) {
	r, ok := t.requirements[requirementID]
	if !ok {
		return "", shared.ErrNotFound
	}
	if r.Status.IsTerminal() {
		return r.Status, nil
	}
	var solicited, delivered int64
	for _, l := range t.reqLines {
		if l.RequirementID == requirementID {
			solicited += l.QuantitySolicited
			delivered += l.QuantityDelivered
		}
	}
	r.Status = requirements.StatusFromTotals(solicited, delivered)
	t.requirements[requirementID] = r
	return r.Status, nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (Trip, error) {
	t, ok := f.trips[id]
	if !ok {
		return Trip{}, shared.ErrNotFound
	}
	out := *t
	for i := int64(1); i <= f.nextLineID; i++ {
		if l, ok := f.tripLines[i]; ok && l.TripID == id {
			out.Lines = append(out.Lines, *l)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListByRequirement(_ context.Context, requirementID int64) ([]Trip, error) {
	out := []Trip{}
	for i := int64(1); i <= f.nextTripID; i++ {
		if t, ok := f.trips[i]; ok && t.RequirementID == requirementID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func okInput(requirementID, lineID, qty int64) RegisterInput {
	return RegisterInput{
		RequirementID: requirementID,
		VehiclePlate:  "ABC-123",
		Driver:        "Juan Perez",
		Lines:         []LineInput{{RequirementLineID: lineID, QuantityReceived: qty, Outcome: OutcomeOK}},
		Actor:         "maria",
	}
}

func TestRegisterTripCreditsDeliveredAndLedger(t *testing.T) {
	repo := newFakeRepo()
	repo.seedRequirement(1, requirements.StatusPendiente,
		requirements.Line{ID: 11, ProductID: 7, QuantitySolicited: 100})
	svc := NewService(repo, nil, nil)

	trip, err := svc.RegisterTrip(context.Background(), okInput(1, 11, 40))
	require.NoError(t, err)
	require.Equal(t, int64(1), trip.TripNumber)

	require.Equal(t, int64(40), repo.reqLines[11].QuantityDelivered)
	require.Equal(t, requirements.StatusParcial, repo.requirements[1].Status)
	require.Len(t, repo.movements, 1)
	require.Equal(t, kardex.MovementEntrada, repo.movements[0].Kind)
	require.Equal(t, int64(40), repo.movements[0].Quantity)
	require.Equal(t, int64(7), repo.movements[0].ProductID)

	// Second trip completes the requirement.
	trip, err = svc.RegisterTrip(context.Background(), okInput(1, 11, 60))
	require.NoError(t, err)
	require.Equal(t, int64(2), trip.TripNumber)
	require.Equal(t, requirements.StatusCompletado, repo.requirements[1].Status)
}

func TestRegisterTripNonOKOutcomeRecordsLineOnly(t *testing.T) {
	repo := newFakeRepo()
	repo.seedRequirement(1, requirements.StatusPendiente,
		requirements.Line{ID: 11, ProductID: 7, QuantitySolicited: 100})
	svc := NewService(repo, nil, nil)

	input := okInput(1, 11, 25)
	input.Lines[0].Outcome = OutcomeDanado
	trip, err := svc.RegisterTrip(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, trip.Lines, 1)
	require.Equal(t, OutcomeDanado, trip.Lines[0].Outcome)
	require.Empty(t, repo.movements)
	require.Zero(t, repo.reqLines[11].QuantityDelivered)
	require.Equal(t, requirements.StatusPendiente, repo.requirements[1].Status)
}

func TestRegisterTripRejectsTerminalRequirement(t *testing.T) {
	repo := newFakeRepo()
	repo.seedRequirement(1, requirements.StatusAnulado,
		requirements.Line{ID: 11, ProductID: 7, QuantitySolicited: 100})
	svc := NewService(repo, nil, nil)

	_, err := svc.RegisterTrip(context.Background(), okInput(1, 11, 10))
	var serr *shared.InvalidStateError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, string(requirements.StatusAnulado), serr.Status)
	require.Empty(t, repo.trips)
}

func TestRegisterTripUnknownRequirement(t *testing.T) {
	svc := NewService(newFakeRepo(), nil, nil)

	_, err := svc.RegisterTrip(context.Background(), okInput(99, 11, 10))
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRegisterTripRejectsForeignLine(t *testing.T) {
	repo := newFakeRepo()
	repo.seedRequirement(1, requirements.StatusPendiente,
		requirements.Line{ID: 11, ProductID: 7, QuantitySolicited: 100})
	repo.seedRequirement(2, requirements.StatusPendiente,
		requirements.Line{ID: 22, ProductID: 8, QuantitySolicited: 50})
	svc := NewService(repo, nil, nil)

	_, err := svc.RegisterTrip(context.Background(), okInput(1, 22, 10))
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Empty(t, repo.trips)
	require.Empty(t, repo.movements)
}

func TestRegisterTripValidation(t *testing.T) {
	svc := NewService(newFakeRepo(), nil, nil)

	input := okInput(1, 11, 10)
	input.Lines = nil
	_, err := svc.RegisterTrip(context.Background(), input)
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)

	input = okInput(1, 11, 0)
	_, err = svc.RegisterTrip(context.Background(), input)
	require.ErrorAs(t, err, &verr)

	input = okInput(1, 11, 10)
	input.Lines[0].Outcome = "EXTRAVIADO"
	_, err = svc.RegisterTrip(context.Background(), input)
	require.ErrorAs(t, err, &verr)
}

func TestRegisterTripFailureLeavesNoPartialState(t *testing.T) {
	repo := newFakeRepo()
	repo.seedRequirement(1, requirements.StatusPendiente,
		requirements.Line{ID: 11, ProductID: 7, QuantitySolicited: 100})
	repo.failOn = "delivered"
	svc := NewService(repo, nil, nil)

	_, err := svc.RegisterTrip(context.Background(), okInput(1, 11, 40))
	require.Error(t, err)

	require.Empty(t, repo.trips)
	require.Empty(t, repo.movements)
	require.Zero(t, repo.reqLines[11].QuantityDelivered)
	require.Equal(t, requirements.StatusPendiente, repo.requirements[1].Status)
}

func TestRegisterTripInvalidatesStockCache(t *testing.T) {
	repo := newFakeRepo()
	repo.seedRequirement(1, requirements.StatusPendiente,
		requirements.Line{ID: 11, ProductID: 7, QuantitySolicited: 100})
	cache := &fakeInvalidator{}
	svc := NewService(repo, nil, cache)

	_, err := svc.RegisterTrip(context.Background(), okInput(1, 11, 40))
	require.NoError(t, err)
	require.Equal(t, []int64{7}, cache.invalidated)
}

type fakeInvalidator struct {
	invalidated []int64
}

func (f *fakeInvalidator) Invalidate(_ context.Context, productID int64) error {
	f.invalidated = append(f.invalidated, productID)
	return nil
}
