package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	mdshared "github.com/veta-logistics/veta/internal/masterdata/shared"
	"github.com/veta-logistics/veta/internal/shared"
)

type fakeRepo struct {
	nextID int64
	users  map[int64]User
	hashes map[int64]string
	byName map[string]int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: map[int64]User{}, hashes: map[int64]string{}, byName: map[string]int64{}}
}

func (f *fakeRepo) List(ctx context.Context, filters mdshared.ListFilters) ([]User, int, error) {
	out := []User{}
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, len(out), nil
}

func (f *fakeRepo) Get(ctx context.Context, id int64) (User, error) {
	u, ok := f.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (f *fakeRepo) Create(ctx context.Context, in CreateInput, passwordHash string) (User, error) {
	if _, exists := f.byName[in.Username]; exists {
		return User{}, shared.ErrConflict
	}
	f.nextID++
	u := User{ID: f.nextID, Username: in.Username, FullName: in.FullName, Role: in.Role, IsActive: true}
	f.users[u.ID] = u
	f.hashes[u.ID] = passwordHash
	f.byName[in.Username] = u.ID
	return u, nil
}

func (f *fakeRepo) Update(ctx context.Context, id int64, in UpdateInput) error {
	u, ok := f.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	if in.FullName != nil {
		u.FullName = *in.FullName
	}
	if in.Role != nil {
		u.Role = *in.Role
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
	f.users[id] = u
	return nil
}

func (f *fakeRepo) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	if _, ok := f.users[id]; !ok {
		return shared.ErrNotFound
	}
	f.hashes[id] = passwordHash
	return nil
}

func TestCreateHashesPassword(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	u, err := svc.Create(context.Background(), CreateInput{
		Username: "almacen2",
		FullName: "Segundo Almacenero",
		Password: "sup3rsecreto",
		Role:     "OPERADOR",
	})
	require.NoError(t, err)
	require.True(t, u.IsActive)

	hash := repo.hashes[u.ID]
	require.NotEqual(t, "sup3rsecreto", hash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("sup3rsecreto")))
}

func TestCreateRejectsUnknownRole(t *testing.T) {
	svc := NewService(newFakeRepo())

	_, err := svc.Create(context.Background(), CreateInput{
		Username: "x", FullName: "X", Password: "12345678", Role: "GERENTE",
	})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCreateDuplicateUsernameConflicts(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	_, err := svc.Create(context.Background(), CreateInput{Username: "admin", FullName: "A", Password: "12345678", Role: "ADMIN"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), CreateInput{Username: "admin", FullName: "B", Password: "12345678", Role: "ADMIN"})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestUpdateRequiresSomeField(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	u, err := svc.Create(context.Background(), CreateInput{Username: "a", FullName: "A", Password: "12345678", Role: "CONSULTA"})
	require.NoError(t, err)

	var verr *shared.ValidationError
	require.ErrorAs(t, svc.Update(context.Background(), u.ID, UpdateInput{}), &verr)

	inactive := false
	require.NoError(t, svc.Update(context.Background(), u.ID, UpdateInput{IsActive: &inactive}))
	got, err := svc.Get(context.Background(), u.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
}

func TestResetPasswordEnforcesLength(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	u, err := svc.Create(context.Background(), CreateInput{Username: "a", FullName: "A", Password: "12345678", Role: "CONSULTA"})
	require.NoError(t, err)

	var verr *shared.ValidationError
	require.ErrorAs(t, svc.ResetPassword(context.Background(), u.ID, "corta"), &verr)

	require.NoError(t, svc.ResetPassword(context.Background(), u.ID, "nueva-clave-larga"))
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes[u.ID]), []byte("nueva-clave-larga")))
}
