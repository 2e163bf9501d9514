package rest

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	contextKeyRequestID contextKey = "request_id"
	contextKeyActorID   contextKey = "actor_id"
)

func withActorID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, contextKeyActorID, id)
}

// actorFromContext returns the authenticated actor, if any.
func actorFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(contextKeyActorID).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, id)
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}
