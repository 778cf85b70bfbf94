// Package auth turns the identity headers set by the upstream authenticator
// into a request-scoped actor. Session issuance happens elsewhere.
package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/joao-fontenele/parashop/internal/domain"
)

const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"
)

type ctxKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(ctxKey{}).(domain.Actor)
	return actor, ok && actor.UserID != ""
}

// Middleware attaches the actor when identity headers are present. It never
// rejects; handlers decide what they require. A user id that is not a uuid
// leaves the request anonymous.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get(HeaderUserID))
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		userID := id.String()
		role := domain.Role(r.Header.Get(HeaderRole))
		if role == "" {
			role = domain.RoleClient
		}
		ctx := WithActor(r.Context(), domain.Actor{UserID: userID, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require wraps h so it only runs for an authenticated actor holding one of
// roles. With no roles any authenticated actor passes.
func Require(h http.HandlerFunc, roles ...domain.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if len(roles) > 0 && !actor.HasRole(roles...) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		h(w, r)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
