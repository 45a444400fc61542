package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/vapvarun/fymodules"
)

// NonceHeader carries the anti-forgery nonce on state-changing requests.
const NonceHeader = "X-FY-Nonce"

// ActorResolver turns a bearer token into an actor.
type ActorResolver interface {
	ParseToken(token string) (fymodules.Actor, error)
}

// NonceService issues and verifies anti-forgery nonces.
type NonceService interface {
	IssueNonce(actorID string) (string, time.Time, error)
	VerifyNonce(nonce, actorID string) error
}

type actorKey struct{}

// WithActor returns a context carrying actor.
func WithActor(ctx context.Context, actor fymodules.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor resolved for the request.
func ActorFromContext(ctx context.Context) (fymodules.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(fymodules.Actor)
	return actor, ok
}

// Authenticate resolves the actor from the Authorization bearer token once
// per request. Requests without a valid token are rejected.
func Authenticate(resolver ActorResolver, logger fymodules.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				writeFailure(w, ReasonUnauthenticated, "bearer token required")
				return
			}
			actor, err := resolver.ParseToken(strings.TrimSpace(token))
			if err != nil {
				logger.Debug("Rejected bearer token", "error", err, "requestId", middleware.GetReqID(r.Context()))
				writeFailure(w, ReasonUnauthenticated, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// StaticActor makes every request act as actor. It is meant for trusted
// local tooling and tests.
func StaticActor(actor fymodules.Actor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireNonce rejects state-changing requests whose nonce was not issued to
// the request's actor. Safe methods pass through.
func RequireNonce(nonces NonceService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			actor, _ := ActorFromContext(r.Context())
			if err := nonces.VerifyNonce(r.Header.Get(NonceHeader), actor.ID); err != nil {
				writeFailure(w, fymodules.KindForbidden, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs each request after it completes.
func requestLogger(logger fymodules.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("Request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"requestId", middleware.GetReqID(r.Context()),
			)
		})
	}
}
