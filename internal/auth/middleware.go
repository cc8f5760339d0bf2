package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/hackgods/citizen-appointments/internal/appointment"
)

type contextKey string

const actorKey contextKey = "actor"

// Middleware requires a valid bearer token and stores the actor in the
// request context.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				unauthorized(w, "missing_token", "authorization header must carry a bearer token")
				return
			}

			claims, err := ValidateToken(strings.TrimPrefix(header, "Bearer "), secret)
			if err != nil {
				code := "invalid_token"
				if errors.Is(err, ErrTokenExpired) {
					code = "token_expired"
				}
				unauthorized(w, code, err.Error())
				return
			}
			actor, err := claims.Actor()
			if err != nil {
				unauthorized(w, "invalid_token", err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func WithActor(ctx context.Context, actor appointment.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// FromContext returns the authenticated actor.
func FromContext(ctx context.Context) (appointment.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(appointment.Actor)
	return actor, ok
}

func unauthorized(w http.ResponseWriter, code, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"details": details,
	})
}
