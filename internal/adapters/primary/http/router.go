package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	mw "github.com/lorrc/petcare-backend/internal/adapters/primary/http/middleware"
	"github.com/lorrc/petcare-backend/internal/auth"
	"github.com/lorrc/petcare-backend/internal/core/domain"
)

// RouterDeps collects everything the HTTP surface is built from. Nil
// limiters and a nil Metrics handler disable those features.
type RouterDeps struct {
	Logger      *slog.Logger
	Tokens      *auth.TokenManager
	CORSOrigins []string

	Health     *HealthHandler
	Session    *SessionHandler
	Operations *OperationHandler
	WebSocket  *WebSocketHandler
	Stream     *StreamHandler
	Admin      *AdminHandler

	Metrics     http.Handler
	MetricsPath string

	GeneralLimiter   *mw.RateLimiter
	AuthLimiter      *mw.RateLimiter
	OperationLimiter *mw.RateLimitByKey
}

// NewRouter assembles the chi router for the public HTTP surface.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(deps.Logger))
	r.Use(mw.RecoveryLogger(deps.Logger))

	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mw.RequestIDHeader, "Last-Event-ID"},
			ExposedHeaders:   []string{mw.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	if deps.GeneralLimiter != nil {
		r.Use(deps.GeneralLimiter.Middleware)
	}

	// Probe paths stay outside /api/v1
	if deps.Health != nil {
		deps.Health.RegisterRoutes(r)
	}
	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Authentication inside the handler: token query parameter or
		// authenticate frames
		if deps.WebSocket != nil {
			r.Get("/ws", deps.WebSocket.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(mw.Session(deps.Tokens))

			if deps.Session != nil {
				r.Group(func(r chi.Router) {
					if deps.AuthLimiter != nil {
						r.Use(deps.AuthLimiter.Middleware)
					}
					r.Route("/auth", deps.Session.RegisterRoutes)
				})
			}

			if deps.Operations != nil {
				r.Group(func(r chi.Router) {
					if deps.OperationLimiter != nil {
						r.Use(deps.OperationLimiter.Middleware(mw.SessionKey))
					}
					r.Route("/operations", deps.Operations.RegisterRoutes)
				})
			}

			if deps.Stream != nil {
				r.Get("/stream", deps.Stream.ServeHTTP)
			}

			if deps.Admin != nil {
				r.Group(func(r chi.Router) {
					r.Use(mw.RequireRole(domain.RoleAdmin))
					r.Route("/admin", deps.Admin.RegisterRoutes)
				})
			}
		})
	})

	return r
}
