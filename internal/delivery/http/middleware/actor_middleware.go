package middleware

import (
	"context"
	"net/http"

	"ptm-statistics/pkg/response"

	"github.com/google/uuid"
)

type contextKey string

const (
	ActorIDKey contextKey = "actor_id"

	// ActorHeader carries the id of the administrator behind a write, as
	// forwarded by the gateway that authenticated them.
	ActorHeader = "X-Actor-ID"
)

type ActorMiddleware struct {
}

func NewActorMiddleware() *ActorMiddleware {
	return &ActorMiddleware{}
}

// Identify puts the forwarded actor id into the request context.
// Requests without the header pass through anonymously.
func (m *ActorMiddleware) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(ActorHeader)
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		actorID, err := uuid.Parse(header)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid "+ActorHeader+" header", nil)
			return
		}

		ctx := context.WithValue(r.Context(), ActorIDKey, actorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetActorIDFromContext extracts actor ID from context
func GetActorIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	actorID, ok := ctx.Value(ActorIDKey).(uuid.UUID)
	return actorID, ok
}
