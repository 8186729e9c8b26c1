package auth

import (
	"net/http"
	"strings"

	"github.com/veta-logistics/veta/internal/platform/httpx"
	"github.com/veta-logistics/veta/internal/shared"
)

// Middleware extracts the bearer token, verifies it and places the actor in
// the request context. Requests without a valid token get 401.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
			return
		}
		actor, err := s.ActorFromToken(token)
		if err != nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// RequireWriter rejects read-only roles on mutating endpoints.
func RequireWriter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := shared.ActorFromContext(r.Context())
		if !Role(actor.Role).CanWrite() {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "role does not permit this operation")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin restricts an endpoint to administrators.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := shared.ActorFromContext(r.Context())
		if Role(actor.Role) != RoleAdmin {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "administrator role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
