package auth

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/veta-logistics/veta/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *TokenIssuer
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenIssuer) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// Authenticate validates username/password credentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues an access token.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return LoginResult{}, err
	}
	token, expiresAt, err := s.tokens.Issue(user, time.Now())
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, ExpiresAt: expiresAt, User: *user}, nil
}

// ActorFromToken verifies a token and maps its claims to an actor.
func (s *Service) ActorFromToken(tokenString string) (shared.Actor, error) {
	claims, err := s.tokens.Verify(tokenString)
	if err != nil {
		return shared.Actor{}, shared.ErrInvalidCredentials
	}
	subject, err := claims.GetSubject()
	if err != nil {
		return shared.Actor{}, shared.ErrInvalidCredentials
	}
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return shared.Actor{}, shared.ErrInvalidCredentials
	}
	return shared.Actor{UserID: id, Username: claims.Username, Role: claims.Role}, nil
}
