package rest

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/davidleathers/secops-incident-engine/internal/domain/errors"
	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/auth"
	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/telemetry"
)

// TokenValidator verifies bearer tokens from the identity provider.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// AuthMiddleware authenticates the caller. It establishes identity only; roles are resolved
// per request by the handlers.
type AuthMiddleware struct {
	tokens TokenValidator
	base   *BaseHandler
	tracer trace.Tracer
}

func NewAuthMiddleware(tokens TokenValidator, base *BaseHandler) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
		base:   base,
		tracer: telemetry.Tracer("api.rest.auth"),
	}
}

func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.StartSpan(r.Context(), a.tracer, "auth.middleware")
		defer span.End()

		token, ok := bearerToken(r)
		if !ok {
			a.base.writeError(ctx, w, errors.NewUnauthorizedError("authorization required"))
			return
		}

		claims, err := a.tokens.Validate(token)
		if err != nil {
			telemetry.RecordError(span, err)
			a.base.logger.Debug("token rejected", zap.Error(err))
			a.base.writeError(ctx, w, errors.NewUnauthorizedError(err.Error()))
			return
		}
		actorID, err := claims.ActorID()
		if err != nil {
			a.base.writeError(ctx, w, errors.NewUnauthorizedError("invalid token subject"))
			return
		}

		span.SetAttributes(attribute.String("actor.id", actorID.String()))
		next.ServeHTTP(w, r.WithContext(withActorID(ctx, actorID)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
