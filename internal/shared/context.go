package shared

import "context"

// Actor identifies the authenticated user performing an operation.
type Actor struct {
	UserID   int64  `json:"id_usuario"`
	Username string `json:"username"`
	Role     string `json:"rol"`
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. The zero Actor means
// the request was not authenticated.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}

// Name returns the username or "system" when unauthenticated.
func (a Actor) Name() string {
	if a.Username == "" {
		return "system"
	}
	return a.Username
}
