package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"medtrace/internal/domain"
)

// TokenValidator is implemented by the authentication collaborator. It turns
// a bearer token into a verified actor identity.
type TokenValidator interface {
	ValidateToken(tokenString string) (domain.Actor, error)
}

type contextKeyActor struct{}

// ContextKeyActor is exported for use in handlers and tests.
var ContextKeyActor = contextKeyActor{}

// GetActor retrieves the authenticated actor from the context.
func GetActor(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(ContextKeyActor).(domain.Actor)
	return actor, ok
}

// WithActor stores an actor in the context. Exposed for tests and adapters.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, ContextKeyActor, actor)
}

// RequireAuth validates the bearer token and injects the actor into context.
// Core services still perform their own role and ownership checks.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				unauthorized(w)
				return
			}
			actor, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"Invalid or expired token"}`))
}
