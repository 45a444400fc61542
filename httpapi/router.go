package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vapvarun/fymodules"
	"github.com/vapvarun/fymodules/health"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Manager *fymodules.Manager
	Logger  fymodules.Logger

	// BasePath prefixes the module routes, e.g. "/api".
	BasePath string

	// Actors resolves bearer tokens. When nil, Actor is used for every
	// request instead.
	Actors ActorResolver
	Actor  fymodules.Actor

	// Nonces enables the anti-forgery check and the nonce endpoint.
	Nonces NonceService

	// Health backs /healthz. When nil, /healthz only reports liveness.
	Health *health.Aggregator
}

// NewRouter builds the HTTP handler serving the module endpoints and a
// health check.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = fymodules.NopLogger()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthHandler(cfg.Health))

	base := cfg.BasePath
	if base == "" {
		base = "/"
	}
	ctrl := NewController(cfg.Manager, cfg.Nonces, logger)
	r.Route(base, func(r chi.Router) {
		if cfg.Actors != nil {
			r.Use(Authenticate(cfg.Actors, logger))
		} else {
			r.Use(StaticActor(cfg.Actor))
		}
		if cfg.Nonces != nil {
			r.Use(RequireNonce(cfg.Nonces))
		}
		ctrl.Mount(r)
	})
	return r
}

func healthHandler(agg *health.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if agg == nil {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("ok"))
			return
		}
		status := agg.CheckAll(r.Context())
		code := http.StatusOK
		if status.Status == health.StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}
