package requirements

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/veta-logistics/veta/internal/shared"
)

type fakeRepo struct {
	sequences    map[string]int64
	requirements map[int64]*Requirement
	lines        map[int64]*Line
	nextReqID    int64
	nextLineID   int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		sequences:    map[string]int64{},
		requirements: map[int64]*Requirement{},
		lines:        map[int64]*Line{},
	}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, f)
}

func (f *fakeRepo) NextSequence(_ context.Context, scope string) (int64, error) {
	f.sequences[scope]++
	return f.sequences[scope], nil
}

func (f *fakeRepo) InsertRequirement(_ context.Context, r Requirement) (int64, error) {
	f.nextReqID++
	r.ID = f.nextReqID
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	f.requirements[r.ID] = &r
	return r.ID, nil
}

func (f *fakeRepo) InsertLine(_ context.Context, l Line) (int64, error) {
	f.nextLineID++
	l.ID = f.nextLineID
	f.lines[l.ID] = &l
	return l.ID, nil
}

func (f *fakeRepo) GetForUpdate(_ context.Context, id int64) (Requirement, error) {
	r, ok := f.requirements[id]
	if !ok {
		return Requirement{}, shared.ErrNotFound
	}
	return *r, nil
}

func (f *fakeRepo) UpdateHeader(_ context.Context, id int64, updates map[string]any) error {
	r, ok := f.requirements[id]
	if !ok {
		return shared.ErrNotFound
	}
	if v, ok := updates["observaciones"]; ok {
		r.Notes = v.(string)
	}
	if v, ok := updates["id_proveedor"]; ok {
		r.SupplierID = v.(int64)
	}
	return nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, id int64, status Status, reason string, actor string) error {
	r, ok := f.requirements[id]
	if !ok {
		return shared.ErrNotFound
	}
	r.Status = status
	r.CancellationReason = reason
	r.UpdatedBy = actor
	return nil
}

func (f *fakeRepo) LineTotals(_ context.Context, requirementID int64) (int64, int64, error) {
	var solicited, delivered int64
	for _, l := range f.lines {
		if l.RequirementID == requirementID {
			solicited += l.QuantitySolicited
			delivered += l.QuantityDelivered
		}
	}
	return solicited, delivered, nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (Requirement, error) {
	r, ok := f.requirements[id]
	if !ok {
		return Requirement{}, shared.ErrNotFound
	}
	out := *r
	out.Lines = nil
	for i := int64(1); i <= f.nextLineID; i++ {
		if l, ok := f.lines[i]; ok && l.RequirementID == id {
			out.Lines = append(out.Lines, *l)
		}
	}
	return out, nil
}

func (f *fakeRepo) List(_ context.Context, filter ListFilter) ([]Requirement, int, error) {
	out := []Requirement{}
	for i := int64(1); i <= f.nextReqID; i++ {
		r, ok := f.requirements[i]
		if !ok {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, *r)
	}
	return out, len(out), nil
}

func validInput() CreateInput {
	return CreateInput{
		SupplierID:   1,
		MineID:       2,
		SupervisorID: 3,
		IssueDate:    time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Lines: []LineInput{
			{ProductID: 10, QuantitySolicited: 100, SupplierPrice: decimal.NewFromFloat(12.50), MinePrice: decimal.NewFromFloat(14)},
		},
		Actor: "maria",
	}
}

func TestCreateAssignsSequentialCodes(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	first, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	require.Equal(t, "REQ-2026-0001", first.Code)
	require.Equal(t, StatusPendiente, first.Status)

	second, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	require.Equal(t, "REQ-2026-0002", second.Code)
}

func TestCreateRejectsEmptyLines(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	input := validInput()
	input.Lines = nil
	_, err := svc.Create(context.Background(), input)

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "detalles", verr.Field)
}

func TestCreateRejectsNonPositiveQuantity(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	input := validInput()
	input.Lines[0].QuantitySolicited = 0
	_, err := svc.Create(context.Background(), input)

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestUpdateHeaderOnlyWhilePendiente(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	created, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	notes := "entrega por turno noche"
	updated, err := svc.UpdateHeader(context.Background(), created.ID, UpdateHeaderInput{Notes: &notes, Actor: "maria"})
	require.NoError(t, err)
	require.Equal(t, notes, updated.Notes)

	repo.requirements[created.ID].Status = StatusParcial
	_, err = svc.UpdateHeader(context.Background(), created.ID, UpdateHeaderInput{Notes: &notes, Actor: "maria"})
	var serr *shared.InvalidStateError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, string(StatusParcial), serr.Status)
}

func TestSetStatusTerminalIsFinal(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	created, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	cancelled, err := svc.SetStatus(context.Background(), created.ID, StatusAnulado, "proveedor sin stock", "maria")
	require.NoError(t, err)
	require.Equal(t, StatusAnulado, cancelled.Status)
	require.Equal(t, "proveedor sin stock", cancelled.CancellationReason)

	_, err = svc.SetStatus(context.Background(), created.ID, StatusPendiente, "", "maria")
	var serr *shared.InvalidStateError
	require.ErrorAs(t, err, &serr)
}

func TestSetStatusAnuladoRequiresReason(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	created, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	_, err = svc.SetStatus(context.Background(), created.ID, StatusAnulado, "", "maria")
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "motivo_anulacion", verr.Field)
}

func TestSetStatusNotFound(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	_, err := svc.SetStatus(context.Background(), 99, StatusRechazado, "", "maria")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRecomputeStatusProgression(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	created, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	// Nothing delivered yet.
	r, err := svc.RecomputeStatus(context.Background(), created.ID, "system")
	require.NoError(t, err)
	require.Equal(t, StatusPendiente, r.Status)

	repo.lines[created.Lines[0].ID].QuantityDelivered = 40
	r, err = svc.RecomputeStatus(context.Background(), created.ID, "system")
	require.NoError(t, err)
	require.Equal(t, StatusParcial, r.Status)

	repo.lines[created.Lines[0].ID].QuantityDelivered = 100
	r, err = svc.RecomputeStatus(context.Background(), created.ID, "system")
	require.NoError(t, err)
	require.Equal(t, StatusCompletado, r.Status)
}

func TestRecomputeStatusSkipsTerminal(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	created, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	repo.requirements[created.ID].Status = StatusAnulado
	repo.lines[created.Lines[0].ID].QuantityDelivered = 100

	r, err := svc.RecomputeStatus(context.Background(), created.ID, "system")
	require.NoError(t, err)
	require.Equal(t, StatusAnulado, r.Status)
}

func TestGetProgressClampsAtHundred(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	created, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	repo.lines[created.Lines[0].ID].QuantityDelivered = 40
	progress, err := svc.GetProgress(context.Background(), created.ID)
	require.NoError(t, err)
	require.InDelta(t, 40, progress.OverallPercent, 0.001)
	require.InDelta(t, 40, progress.Lines[0].Percent, 0.001)

	// Overdelivery reports 100, never more.
	repo.lines[created.Lines[0].ID].QuantityDelivered = 130
	progress, err = svc.GetProgress(context.Background(), created.ID)
	require.NoError(t, err)
	require.InDelta(t, 100, progress.OverallPercent, 0.001)
	require.InDelta(t, 100, progress.Lines[0].Percent, 0.001)
}

func TestStatusFromTotals(t *testing.T) {
	require.Equal(t, StatusPendiente, StatusFromTotals(100, 0))
	require.Equal(t, StatusParcial, StatusFromTotals(100, 1))
	require.Equal(t, StatusParcial, StatusFromTotals(100, 99))
	require.Equal(t, StatusCompletado, StatusFromTotals(100, 100))
	require.Equal(t, StatusCompletado, StatusFromTotals(100, 130))
}
