package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cmlabs-hris/hris-leave-go/internal/handler/http/response"
)

// Headers set by the authenticating gateway in front of this service.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"

	RoleAdmin = "admin"
)

type actorKey struct{}

type actor struct {
	id   string
	role string
}

// ActorRequired rejects requests without an actor id and stores the actor in
// the request context.
func ActorRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderActorID))
		if id == "" {
			response.Unauthorized(w, "Missing "+HeaderActorID+" header")
			return
		}
		a := actor{id: id, role: strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderActorRole)))}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, a)))
	})
}

// ActorID returns the actor id stored by ActorRequired.
func ActorID(ctx context.Context) string {
	a, _ := ctx.Value(actorKey{}).(actor)
	return a.id
}

// IsAdmin reports whether the actor carries the admin role.
func IsAdmin(ctx context.Context) bool {
	a, _ := ctx.Value(actorKey{}).(actor)
	return a.role == RoleAdmin
}
