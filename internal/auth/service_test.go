package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/veta-logistics/veta/internal/shared"
)

type fakeRepo struct {
	users map[string]*User
}

func (f *fakeRepo) FindByUsername(_ context.Context, username string) (*User, error) {
	u, ok := f.users[username]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (f *fakeRepo) FindByID(_ context.Context, id int64) (*User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func newTestService(t *testing.T) (*Service, *fakeRepo) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correcthorse1"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &fakeRepo{users: map[string]*User{
		"maria": {ID: 1, Username: "maria", FullName: "Maria Quispe", PasswordHash: string(hash), Role: RoleOperador, IsActive: true},
		"baja":  {ID: 2, Username: "baja", PasswordHash: string(hash), Role: RoleConsulta, IsActive: false},
	}}
	return NewService(repo, NewTokenIssuer("test-secret", time.Hour)), repo
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)

	user, err := svc.Authenticate(context.Background(), "maria", "correcthorse1")
	require.NoError(t, err)
	require.Equal(t, int64(1), user.ID)

	_, err = svc.Authenticate(context.Background(), "maria", "wrongpass99")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(context.Background(), "nadie", "correcthorse1")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	// Inactive accounts fail identically to bad passwords.
	_, err = svc.Authenticate(context.Background(), "baja", "correcthorse1")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Login(context.Background(), "maria", "correcthorse1")
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	require.True(t, result.ExpiresAt.After(time.Now()))

	actor, err := svc.ActorFromToken(result.Token)
	require.NoError(t, err)
	require.Equal(t, int64(1), actor.UserID)
	require.Equal(t, "maria", actor.Username)
	require.Equal(t, string(RoleOperador), actor.Role)
}

func TestActorFromTokenRejectsTampering(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Login(context.Background(), "maria", "correcthorse1")
	require.NoError(t, err)

	other := NewService(&fakeRepo{}, NewTokenIssuer("other-secret", time.Hour))
	_, err = other.ActorFromToken(result.Token)
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.ActorFromToken("not-a-token")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestExpiredTokenRejected(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correcthorse1"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &fakeRepo{users: map[string]*User{
		"maria": {ID: 1, Username: "maria", PasswordHash: string(hash), Role: RoleOperador, IsActive: true},
	}}
	issuer := NewTokenIssuer("test-secret", time.Hour)
	svc := NewService(repo, issuer)

	user, err := svc.Authenticate(context.Background(), "maria", "correcthorse1")
	require.NoError(t, err)
	token, _, err := issuer.Issue(user, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	_, err = svc.ActorFromToken(token)
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestMiddlewarePopulatesActor(t *testing.T) {
	svc, _ := newTestService(t)
	result, err := svc.Login(context.Background(), "maria", "correcthorse1")
	require.NoError(t, err)

	var got shared.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+result.Token)
	rec := httptest.NewRecorder()
	svc.Middleware(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "maria", got.Username)
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	svc, _ := newTestService(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	svc.Middleware(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireWriter(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{UserID: 3, Username: "lector", Role: string(RoleConsulta)}))
	rec := httptest.NewRecorder()
	RequireWriter(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{UserID: 1, Username: "maria", Role: string(RoleOperador)}))
	rec = httptest.NewRecorder()
	RequireWriter(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
