package dispatches

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veta-logistics/veta/internal/kardex"
	"github.com/veta-logistics/veta/internal/shared"
)

type fakeProduct struct {
	name string
}

type fakeRepo struct {
	products   map[int64]fakeProduct
	dispatches map[int64]*Dispatch
	lines      map[int64]*Line
	movements  []kardex.Movement
	sequences  map[string]int64
	nextID     int64
	nextLineID int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		products:   map[int64]fakeProduct{},
		dispatches: map[int64]*Dispatch{},
		lines:      map[int64]*Line{},
		sequences:  map[string]int64{},
	}
}

func (f *fakeRepo) seedProduct(id int64, name string, stock int64) {
	f.products[id] = fakeProduct{name: name}
	if stock != 0 {
		f.movements = append(f.movements, kardex.Movement{ProductID: id, Kind: kardex.MovementEntrada, Quantity: stock})
	}
}

func (f *fakeRepo) stock(productID int64) int64 {
	var total int64
	for _, m := range f.movements {
		if m.ProductID == productID {
			total += m.Quantity
		}
	}
	return total
}

type fakeTx struct {
	repo *fakeRepo

	dispatches map[int64]Dispatch
	lines      map[int64]Line
	movements  []kardex.Movement
	sequences  map[string]int64
	nextID     int64
	nextLineID int64
}

// WithTx stages mutations on a copy and publishes only on success, matching
// the rollback behavior of the real repository.
func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &fakeTx{
		repo:       f,
		dispatches: map[int64]Dispatch{},
		lines:      map[int64]Line{},
		movements:  append([]kardex.Movement{}, f.movements...),
		sequences:  map[string]int64{},
		nextID:     f.nextID,
		nextLineID: f.nextLineID,
	}
	for id, d := range f.dispatches {
		tx.dispatches[id] = *d
	}
	for id, l := range f.lines {
		tx.lines[id] = *l
	}
	for scope, v := range f.sequences {
		tx.sequences[scope] = v
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	f.dispatches = map[int64]*Dispatch{}
	for id, d := range tx.dispatches {
		c := d
		f.dispatches[id] = &c
	}
	f.lines = map[int64]*Line{}
	for id, l := range tx.lines {
		c := l
		f.lines[id] = &c
	}
	f.movements = tx.movements
	f.sequences = tx.sequences
	f.nextID = tx.nextID
	f.nextLineID = tx.nextLineID
	return nil
}

func (t *fakeTx) NextSequence(_ context.Context, scope string) (int64, error) {
	t.sequences[scope]++
	return t.sequences[scope], nil
}

func (t *fakeTx) InsertDispatch(_ context.Context, d Dispatch) (int64, error) {
	t.nextID++
	d.ID = t.nextID
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	t.dispatches[d.ID] = d
	return d.ID, nil
}

func (t *fakeTx) InsertLine(_ context.Context, l Line) (int64, error) {
	t.nextLineID++
	l.ID = t.nextLineID
	t.lines[l.ID] = l
	return l.ID, nil
}

func (t *fakeTx) DeleteLines(_ context.Context, dispatchID int64) error {
	for id, l := range t.lines {
		if l.DispatchID == dispatchID {
			delete(t.lines, id)
		}
	}
	return nil
}

func (t *fakeTx) GetForUpdate(_ context.Context, id int64) (Dispatch, error) {
	d, ok := t.dispatches[id]
	if !ok {
		return Dispatch{}, shared.ErrNotFound
	}
	return d, nil
}

func (t *fakeTx) Lines(_ context.Context, dispatchID int64) ([]Line, error) {
	out := []Line{}
	for i := int64(1); i <= t.nextLineID; i++ {
		if l, ok := t.lines[i]; ok && l.DispatchID == dispatchID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (t *fakeTx) UpdateHeader(_ context.Context, id int64, updates map[string]any) error {
	d, ok := t.dispatches[id]
	if !ok {
		return shared.ErrNotFound
	}
	if v, ok := updates["observaciones"]; ok {
		d.Notes = v.(string)
	}
	if v, ok := updates["id_mina"]; ok {
		d.MineID = v.(int64)
	}
	t.dispatches[id] = d
	return nil
}

func (t *fakeTx) UpdateStatus(_ context.Context, id int64, status Status, updates map[string]any) error {
	d, ok := t.dispatches[id]
	if !ok {
		return shared.ErrNotFound
	}
	d.Status = status
	if v, ok := updates["fecha_salida"]; ok {
		at := v.(time.Time)
		d.DepartureAt = &at
	}
	if v, ok := updates["fecha_entrega"]; ok {
		at := v.(time.Time)
		d.DeliveredAt = &at
	}
	if v, ok := updates["motivo_anulacion"]; ok {
		d.CancellationReason = v.(string)
	}
	t.dispatches[id] = d
	return nil
}

func (t *fakeTx) SoftDelete(_ context.Context, id int64) error {
	delete(t.dispatches, id)
	return nil
}

func (t *fakeTx) LockProduct(_ context.Context, productID int64) (string, error) {
	p, ok := t.repo.products[productID]
	if !ok {
		return "", shared.ErrNotFound
	}
	return p.name, nil
}

func (t *fakeTx) CurrentStock(_ context.Context, productID int64) (int64, error) {
	var total int64
	for _, m := range t.movements {
		if m.ProductID == productID {
			total += m.Quantity
		}
	}
	return total, nil
}

func (t *fakeTx) InsertMovement(_ context.Context, m kardex.Movement) (int64, error) {
	m.ID = int64(len(t.movements) + 1)
	t.movements = append(t.movements, m)
	return m.ID, nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (Dispatch, error) {
	d, ok := f.dispatches[id]
	if !ok {
		return Dispatch{}, shared.ErrNotFound
	}
	out := *d
	for i := int64(1); i <= f.nextLineID; i++ {
		if l, ok := f.lines[i]; ok && l.DispatchID == id {
			out.Lines = append(out.Lines, *l)
		}
	}
	return out, nil
}

func (f *fakeRepo) List(_ context.Context, filter ListFilter) ([]Dispatch, int, error) {
	out := []Dispatch{}
	for i := int64(1); i <= f.nextID; i++ {
		d, ok := f.dispatches[i]
		if !ok {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		out = append(out, *d)
	}
	return out, len(out), nil
}

func createInput(productID, qty int64) CreateInput {
	return CreateInput{
		MineID: 1,
		Lines:  []LineInput{{ProductID: productID, UnitID: 1, Quantity: qty}},
		Actor:  "maria",
	}
}

func TestCreateAssignsCodeAndStartsPreparando(t *testing.T) {
	repo := newFakeRepo()
	repo.seedProduct(7, "Broca 36mm", 0)
	svc := NewService(repo, nil, nil)

	d, err := svc.Create(context.Background(), createInput(7, 10))
	require.NoError(t, err)
	require.Equal(t, StatusPreparando, d.Status)
	require.Regexp(t, `^DSP-\d{4}-0001$`, d.Code)
	require.Len(t, d.Lines, 1)
	require.Empty(t, repo.movements)
}

func TestCreateRejectsEmptyLines(t *testing.T) {
	svc := NewService(newFakeRepo(), nil, nil)

	input := createInput(7, 10)
	input.Lines = nil
	_, err := svc.Create(context.Background(), input)
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCommitToTransitPostsSalidaAndSetsDeparture(t *testing.T) {
	repo := newFakeRepo()
	repo.seedProduct(7, "Broca 36mm", 80)
	svc := NewService(repo, nil, nil)

	d, err := svc.Create(context.Background(), createInput(7, 50))
	require.NoError(t, err)

	committed, err := svc.CommitToTransit(context.Background(), d.ID, nil, "maria")
	require.NoError(t, err)
	require.Equal(t, StatusEnTransito, committed.Status)
	require.NotNil(t, committed.DepartureAt)

	require.Equal(t, int64(30), repo.stock(7))
	last := repo.movements[len(repo.movements)-1]
	require.Equal(t, kardex.MovementSalida, last.Kind)
	require.Equal(t, int64(-50), last.Quantity)
	require.NotNil(t, last.DispatchID)
	require.Equal(t, d.ID, *last.DispatchID)
}

func TestCommitToTransitInsufficientStock(t *testing.T) {
	repo := newFakeRepo()
	repo.seedProduct(7, "Broca 36mm", 30)
	svc := NewService(repo, nil, nil)

	d, err := svc.Create(context.Background(), createInput(7, 50))
	require.NoError(t, err)

	_, err = svc.CommitToTransit(context.Background(), d.ID, nil, "maria")
	var ierr *shared.InsufficientStockError
	require.ErrorAs(t, err, &ierr)
	require.Equal(t, int64(7), ierr.ProductID)
	require.Equal(t, "Broca 36mm", ierr.ProductName)
	require.Equal(t, int64(30), ierr.Available)
	require.Equal(t, int64(50), ierr.Required)

	// Nothing committed: still PREPARANDO, ledger untouched.
	after, err := svc.Get(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPreparando, after.Status)
	require.Equal(t, int64(30), repo.stock(7))
}

func TestCommitToTransitChecksAllLinesBeforeAnyMovement(t *testing.T) {
	repo := newFakeRepo()
	repo.seedProduct(1, "Cable 10m", 100)
	repo.seedProduct(2, "Dinamita", 5)
	svc := NewService(repo, nil, nil)

	d, err := svc.Create(context.Background(), CreateInput{
		MineID: 1,
		Lines: []LineInput{
			{ProductID: 1, UnitID: 1, Quantity: 10},
			{ProductID: 2, UnitID: 1, Quantity: 50},
		},
		Actor: "maria",
	})
	require.NoError(t, err)

	_, err = svc.CommitToTransit(context.Background(), d.ID, nil, "maria")
	var ierr *shared.InsufficientStockError
	require.ErrorAs(t, err, &ierr)
	require.Equal(t, int64(2), ierr.ProductID)

	// The passing first line must not have deducted anything either.
	require.Equal(t, int64(100), repo.stock(1))
	require.Equal(t, int64(5), repo.stock(2))
}

func TestCommitToTransitAggregatesDuplicateProductLines(t *testing.T) {
	repo := newFakeRepo()
	repo.seedProduct(7, "Broca 36mm", 50)
	svc := NewService(repo, nil, nil)

	d, err := svc.Create(context.Background(), CreateInput{
		MineID: 1,
		Lines: []LineInput{
			{ProductID: 7, UnitID: 1, Quantity: 30},
			{ProductID: 7, UnitID: 1, Quantity: 30},
		},
		Actor: "maria",
	})
	require.NoError(t, err)

	_, err = svc.CommitToTransit(context.Background(), d.ID, nil, "maria")
	var ierr *shared.InsufficientStockError
	require.ErrorAs(t, err, &ierr)
	require.Equal(t, int64(60), ierr.Required)
}

func TestCommitToTransitOnlyFromPreparando(t *testing.T) {
	repo := newFakeRepo()
	repo.seedProduct(7, "Broca 36mm", 100)
	svc := NewService(repo, nil, nil)

	d, err := svc.Create(context.Background(), createInput(7, 10))
	require.NoError(t, err)
	_, err = svc.CommitToTransit(context.Background(), d.ID, nil, "maria")
	require.NoError(t, err)

	_, err = svc.CommitToTransit(context.Background(), d.ID, nil, "maria")
	var serr *shared.InvalidStateError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, string(StatusEnTransito), serr.Status)
}

func TestMarkDeliveredOnlyFromEnTransito(t *testing.T) {
	repo := newFakeRepo()
	repo.seedProduct(7, "Broca 36mm", 100)
	svc := NewService(repo, nil, nil)

	d, err := svc.Create(context.Background(), createInput(7, 10))
	require.NoError(t, err)

	_, err = svc.MarkDelivered(context.Background(), d.ID, nil, "maria")
	var serr *shared.InvalidStateError
	require.ErrorAs(t, err, &serr)

	_, err = svc.CommitToTransit(context.Background(), d.ID, nil, "maria")
	require.NoError(t, err)
	delivered, err := svc.MarkDelivered(context.Background(), d.ID, nil, "maria")
	require.NoError(t, err)
	require.Equal(t, StatusEntregado, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)
}

func TestCancelEnTransitoRestoresStock(t *testing.T) {
	repo := newFakeRepo()
	repo.seedProduct(7, "Broca 36mm", 80)
	svc := NewService(repo, nil, nil)

	d, err := svc.Create(context.Background(), createInput(7, 50))
	require.NoError(t, err)
	_, err = svc.CommitToTransit(context.Background(), d.ID, nil, "maria")
	require.NoError(t, err)
	require.Equal(t, int64(30), repo.stock(7))

	cancelled, err := svc.Cancel(context.Background(), d.ID, "carga contaminada en ruta", "maria")
	require.NoError(t, err)
	require.Equal(t, StatusAnulado, cancelled.Status)
	require.Equal(t, int64(80), repo.stock(7))

	last := repo.movements[len(repo.movements)-1]
	require.Equal(t, kardex.MovementAjustePos, last.Kind)
	require.Equal(t, int64(50), last.Quantity)
}

func TestCancelPreparandoPostsNoMovements(t *testing.T) {
	repo := newFakeRepo()
	repo.seedProduct(7, "Broca 36mm", 80)
	svc := NewService(repo, nil, nil)

	d, err := svc.Create(context.Background(), createInput(7, 50))
	require.NoError(t, err)
	before := len(repo.movements)

	cancelled, err := svc.Cancel(context.Background(), d.ID, "pedido duplicado por error", "maria")
	require.NoError(t, err)
	require.Equal(t, StatusAnulado, cancelled.Status)
	require.Len(t, repo.movements, before)
	require.Equal(t, int64(80), repo.stock(7))
}

func TestCancelRequiresLongReason(t *testing.T) {
	repo := newFakeRepo()
	repo.seedProduct(7, "Broca 36mm", 80)
	svc := NewService(repo, nil, nil)

	d, err := svc.Create(context.Background(), createInput(7, 10))
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), d.ID, "corto", "maria")
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "motivo_anulacion", verr.Field)
}

func TestCancelTwiceFails(t *testing.T) {
	repo := newFakeRepo()
	repo.seedProduct(7, "Broca 36mm", 80)
	svc := NewService(repo, nil, nil)

	d, err := svc.Create(context.Background(), createInput(7, 10))
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), d.ID, "pedido duplicado por error", "maria")
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), d.ID, "pedido duplicado por error", "maria")
	var serr *shared.InvalidStateError
	require.ErrorAs(t, err, &serr)
}

func TestUpdateReplacesLinesWholesale(t *testing.T) {
	repo := newFakeRepo()
	repo.seedProduct(7, "Broca 36mm", 0)
	repo.seedProduct(8, "Cable 10m", 0)
	svc := NewService(repo, nil, nil)

	d, err := svc.Create(context.Background(), createInput(7, 10))
	require.NoError(t, err)

	lines := []LineInput{
		{ProductID: 8, UnitID: 2, Quantity: 4},
		{ProductID: 7, UnitID: 1, Quantity: 2},
	}
	updated, err := svc.Update(context.Background(), d.ID, UpdateInput{Lines: &lines, Actor: "maria"})
	require.NoError(t, err)
	require.Len(t, updated.Lines, 2)
	require.Equal(t, int64(8), updated.Lines[0].ProductID)
}

func TestUpdateOnlyWhilePreparando(t *testing.T) {
	repo := newFakeRepo()
	repo.seedProduct(7, "Broca 36mm", 100)
	svc := NewService(repo, nil, nil)

	d, err := svc.Create(context.Background(), createInput(7, 10))
	require.NoError(t, err)
	_, err = svc.CommitToTransit(context.Background(), d.ID, nil, "maria")
	require.NoError(t, err)

	notes := "cambio de destino"
	_, err = svc.Update(context.Background(), d.ID, UpdateInput{Notes: &notes, Actor: "maria"})
	var serr *shared.InvalidStateError
	require.ErrorAs(t, err, &serr)
}

func TestDeleteOnlyWhilePreparando(t *testing.T) {
	repo := newFakeRepo()
	repo.seedProduct(7, "Broca 36mm", 100)
	svc := NewService(repo, nil, nil)

	d, err := svc.Create(context.Background(), createInput(7, 10))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), d.ID, "maria"))

	d, err = svc.Create(context.Background(), createInput(7, 10))
	require.NoError(t, err)
	_, err = svc.CommitToTransit(context.Background(), d.ID, nil, "maria")
	require.NoError(t, err)
	err = svc.Delete(context.Background(), d.ID, "maria")
	var serr *shared.InvalidStateError
	require.ErrorAs(t, err, &serr)
}
